package storage_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/graph/storage"
	"github.com/treeverse/commitgraph/pkg/testutil"
)

func downloadNames(t *testing.T, s *storage.Storage, dag *testutil.DAG, repo graph.RepoID, required, existing graph.CommitSet) []string {
	t.Helper()
	it, err := s.Download(context.Background(), repo, required, existing)
	testutil.MustDo(t, "download", err)
	entries, err := graph.CollectEntries(it)
	testutil.MustDo(t, "collect entries", err)
	names := make([]string, 0, len(entries))
	for i, e := range entries {
		if i > 0 {
			require.LessOrEqual(t, e.CommitID.Level, entries[i-1].CommitID.Level, "entries out of level order")
		}
		require.Equal(t, dag.Commits()[e.CommitID], e.Commit)
		names = append(names, dag.Name(e.CommitID))
	}
	return names
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	repo, dag := newRepo(t, 1, "repo")
	// R <- A <- B <- C <- D
	//        \- X <-----'
	dag.Add("R")
	dag.Add("A", "R")
	dag.Add("B", "A")
	dag.Add("X", "A")
	dag.Add("C", "B", "X")
	dag.Add("D", "C")
	saveAll(t, ctx, s, dag, "R", "A", "B", "X", "C", "D")

	cases := []struct {
		name     string
		required []string
		existing []string
		expected []string
	}{
		{name: "everything", required: []string{"D"}, expected: []string{"D", "C", "B", "X", "A", "R"}},
		{name: "nothing_required", existing: []string{"D"}, expected: []string{}},
		{name: "up_to_date", required: []string{"D"}, existing: []string{"D"}, expected: []string{}},
		{name: "from_A", required: []string{"D"}, existing: []string{"A"}, expected: []string{"D", "C", "B", "X"}},
		{name: "from_B", required: []string{"D"}, existing: []string{"B"}, expected: []string{"D", "C", "X"}},
		{name: "side_branch", required: []string{"X"}, existing: []string{"B"}, expected: []string{"X"}},
		{name: "existing_above_required", required: []string{"B"}, existing: []string{"C"}, expected: []string{}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := downloadNames(t, s, dag, repo, dag.Set(tt.required...), dag.Set(tt.existing...))
			require.ElementsMatch(t, tt.expected, got)
		})
	}
}

func TestDownloadSkipsMissingCommits(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	repo, dag := newRepo(t, 1, "repo")
	dag.Add("R")
	dag.Add("A", "R")
	dag.Add("B", "A")
	saveAll(t, ctx, s, dag, "A", "B")

	unknown := graph.CommitID{Level: 9, Hash: "unknown"}
	required := dag.Set("B")
	required.Add(unknown)
	got := downloadNames(t, s, dag, repo, required, graph.NewCommitSet())
	require.Equal(t, []string{"B", "A"}, got)
}

func TestDownloadAttachesHeads(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	repo, dag := newRepo(t, 1, "repo")
	kp := testutil.NewKeyPair(t, 1)
	dag.Add("R")
	head := dag.Add("A", "R")
	saveAll(t, ctx, s, dag, "R", "A")
	_, err := s.MergeHeads(ctx, repo, []graph.SignedHead{graph.NewSignedHead(repo, head, kp.Private)})
	testutil.MustDo(t, "merge heads", err)

	it, err := s.Download(ctx, repo, dag.Set("A"), nil)
	testutil.MustDo(t, "download", err)
	entries, err := graph.CollectEntries(it)
	testutil.MustDo(t, "collect", err)
	require.Len(t, entries, 2)
	require.NotNil(t, entries[0].Head)
	require.Equal(t, head, entries[0].Head.Value.CommitID)
	require.Nil(t, entries[1].Head)
}

func TestDownloadEarlyClose(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	repo, dag := newRepo(t, 1, "repo")
	dag.Add("R")
	dag.Add("A", "R")
	saveAll(t, ctx, s, dag, "R", "A")

	it, err := s.Download(ctx, repo, dag.Set("A"), nil)
	testutil.MustDo(t, "download", err)
	require.True(t, it.Next())
	it.Close()
	require.False(t, it.Next())
	require.NoError(t, it.Err())
}

func TestDownloadMinimalRandom(t *testing.T) {
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(3)) //nolint:gosec
	for round := 0; round < 20; round++ {
		s := newStorage(t)
		repo, _ := newRepo(t, 1, "repo")
		dag := testutil.RandomDAG(t, rnd, 40, 3)
		for _, id := range dag.IDs() {
			_, err := s.SaveCommit(ctx, id, dag.Commits()[id])
			testutil.MustDo(t, "save commit", err)
		}
		ids := dag.IDs()
		required := graph.NewCommitSet(ids[len(ids)-1], ids[rnd.Intn(len(ids))])
		existing := graph.NewCommitSet(ids[rnd.Intn(len(ids))], ids[rnd.Intn(len(ids))])

		closure := func(set graph.CommitSet) graph.CommitSet {
			c := set.Clone()
			for id := range set {
				for a := range dag.Ancestors(id) {
					c.Add(a)
				}
			}
			return c
		}
		expected := graph.NewCommitSet()
		have := closure(existing)
		for id := range closure(required) {
			if !have.Has(id) {
				expected.Add(id)
			}
		}

		it, err := s.Download(ctx, repo, required, existing)
		testutil.MustDo(t, "download", err)
		entries, err := graph.CollectEntries(it)
		testutil.MustDo(t, "collect", err)
		got := graph.NewCommitSet()
		for _, e := range entries {
			require.False(t, got.Has(e.CommitID), "round %d: %s emitted twice", round, dag.Name(e.CommitID))
			got.Add(e.CommitID)
		}
		require.Equal(t, dag.Names(expected), dag.Names(got), "round %d", round)
	}
}

func TestWalk(t *testing.T) {
	ctx := context.Background()
	s := newStorage(t)
	repo, dag := newRepo(t, 1, "repo")
	kp := testutil.NewKeyPair(t, 1)
	dag.Add("R")
	dag.Add("A", "R")
	dag.Add("B", "R")
	saveAll(t, ctx, s, dag, "R", "A", "B")
	_, err := s.MergeHeads(ctx, repo, []graph.SignedHead{
		graph.NewSignedHead(repo, dag.ID("A"), kp.Private),
		graph.NewSignedHead(repo, dag.ID("B"), kp.Private),
	})
	testutil.MustDo(t, "merge heads", err)

	it, err := s.Walk(ctx, repo)
	testutil.MustDo(t, "walk", err)
	entries, err := graph.CollectEntries(it)
	testutil.MustDo(t, "collect", err)
	require.Len(t, entries, 3)
	require.Equal(t, dag.ID("R"), entries[2].CommitID)
}
