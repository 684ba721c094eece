package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/testutil"
)

func TestNewCommitLevels(t *testing.T) {
	dag := testutil.NewDAG(t)
	root := dag.Add("root")
	a := dag.Add("a", "root")
	b := dag.Add("b", "a")
	merge := dag.Add("merge", "root", "b")

	require.Equal(t, int64(0), root.Level)
	require.True(t, dag.Commit("root").IsRoot())
	require.Equal(t, int64(1), a.Level)
	require.Equal(t, int64(2), b.Level)
	require.Equal(t, int64(3), merge.Level)
}

func TestCommitIDDeterministic(t *testing.T) {
	dag := testutil.NewDAG(t)
	p1 := dag.Add("p1")
	p2 := dag.Add("p2")

	id1, _, err := graph.NewCommit([]graph.CommitID{p1, p2}, []byte("payload"))
	testutil.MustDo(t, "new commit", err)
	id2, _, err := graph.NewCommit([]graph.CommitID{p2, p1}, []byte("payload"))
	testutil.MustDo(t, "new commit reversed parents", err)
	require.Equal(t, id1, id2)

	id3, _, err := graph.NewCommit([]graph.CommitID{p1, p2}, []byte("other payload"))
	testutil.MustDo(t, "new commit other payload", err)
	require.NotEqual(t, id1, id3)
}

func TestComputeCommitIDMatchesNewCommit(t *testing.T) {
	id, commit, err := graph.NewCommit(nil, []byte("root"))
	testutil.MustDo(t, "new commit", err)
	computed, err := graph.ComputeCommitID(commit)
	testutil.MustDo(t, "compute commit id", err)
	require.Equal(t, id, computed)
}

func TestCommitIDString(t *testing.T) {
	id, _, err := graph.NewCommit(nil, []byte("root"))
	testutil.MustDo(t, "new commit", err)

	parsed, err := graph.ParseCommitID(id.String())
	testutil.MustDo(t, "parse commit id", err)
	require.Equal(t, id, parsed)

	require.Equal(t, "", graph.CommitID{}.String())
	require.True(t, graph.CommitID{}.IsZero())

	_, err = graph.ParseCommitID("not a commit id")
	require.ErrorIs(t, err, graph.ErrInvalidCommitID)
	_, err = graph.CommitIDFromBytes([]byte{0, 0, 0})
	require.ErrorIs(t, err, graph.ErrInvalidCommitID)
}

func TestCommitIDOrdering(t *testing.T) {
	low := graph.CommitID{Level: 1, Hash: "b"}
	high := graph.CommitID{Level: 2, Hash: "a"}
	sameLevel := graph.CommitID{Level: 1, Hash: "c"}

	require.True(t, low.Less(high))
	require.False(t, high.Less(low))
	require.True(t, low.Less(sameLevel))

	sorted := graph.NewCommitSet(high, sameLevel, low).Sorted()
	require.Equal(t, []graph.CommitID{low, sameLevel, high}, sorted)
}

func TestCommitSet(t *testing.T) {
	a := graph.CommitID{Level: 0, Hash: "a"}
	b := graph.CommitID{Level: 1, Hash: "b"}
	s := graph.NewCommitSet(a)
	c := s.Clone()
	c.Add(b)
	require.False(t, s.Has(b))
	require.True(t, c.Has(b))

	u := s.Union(graph.NewCommitSet(b))
	require.Len(t, u, 2)
	require.Len(t, s, 1)

	u.Remove(a)
	require.Equal(t, graph.NewCommitSet(b), u)
}

func TestRepoID(t *testing.T) {
	kp := testutil.NewKeyPair(t, 1)
	repo := graph.RepoID{Owner: kp.Public, Name: "repo"}
	testutil.MustDo(t, "validate", repo.Validate())

	parsed, err := graph.ParseRepoID(repo.String())
	testutil.MustDo(t, "parse repo id", err)
	require.Equal(t, repo, parsed)

	require.ErrorIs(t, graph.RepoID{Name: "repo"}.Validate(), graph.ErrInvalidRepoID)
	require.ErrorIs(t, graph.RepoID{Owner: kp.Public, Name: "a/b"}.Validate(), graph.ErrInvalidRepoID)
	_, err = graph.ParseRepoID("no-slash")
	require.ErrorIs(t, err, graph.ErrInvalidRepoID)
}

func TestSignedVerify(t *testing.T) {
	owner := testutil.NewKeyPair(t, 1)
	other := testutil.NewKeyPair(t, 2)
	repo := graph.RepoID{Owner: owner.Public, Name: "repo"}
	id, _, err := graph.NewCommit(nil, []byte("root"))
	testutil.MustDo(t, "new commit", err)

	t.Run("head", func(t *testing.T) {
		head := graph.NewSignedHead(repo, id, owner.Private)
		require.True(t, head.Verify())

		forged := graph.NewSignedHead(repo, id, other.Private)
		require.False(t, forged.Verify())

		tampered := head
		tampered.Value.Timestamp++
		require.False(t, tampered.Verify())
	})

	t.Run("pull_request", func(t *testing.T) {
		fork := graph.RepoID{Owner: other.Public, Name: "fork"}
		pr := graph.Sign(graph.RawPullRequest{Repository: repo, Fork: fork}, other.Private)
		require.True(t, pr.Verify())

		bySource := graph.Sign(graph.RawPullRequest{Repository: repo, Fork: fork}, owner.Private)
		require.False(t, bySource.Verify())
	})

	t.Run("snapshot", func(t *testing.T) {
		snap := graph.Sign(graph.RawSnapshot{RepositoryID: repo, CommitID: id, Payload: []byte("state")}, owner.Private)
		require.True(t, snap.Verify())
		require.True(t, snap.Equal(snap))
	})
}
