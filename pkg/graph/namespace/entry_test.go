package namespace_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/testutil"
)

func entriesOf(dag *testutil.DAG, names ...string) []*graph.CommitEntry {
	entries := make([]*graph.CommitEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, &graph.CommitEntry{CommitID: dag.ID(name), Commit: dag.Commit(name)})
	}
	return entries
}

func TestFetch(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	repo := entry.Repo()
	dag := testutil.NewDAG(t)
	dag.Add("R")
	dag.Add("A", "R")
	b := dag.Add("B", "A")
	head := graph.NewSignedHead(repo, b, e.owner.Private)

	m := e.masters["m1"]
	m.EXPECT().GetHeads(gomock.Any(), repo).Return([]graph.SignedHead{head}, nil)
	m.EXPECT().Download(gomock.Any(), repo, dag.Set("B"), graph.NewCommitSet()).
		Return(graph.NewCommitEntrySliceIterator(entriesOf(dag, "B", "A", "R")), nil)

	testutil.MustDo(t, "fetch", entry.Fetch(ctx))

	for _, name := range []string{"R", "A", "B"} {
		complete, err := e.storage.IsCompleteCommit(ctx, dag.ID(name))
		testutil.MustDo(t, "is complete", err)
		require.True(t, complete, name)
	}
	heads, err := entry.GetHeads(ctx)
	testutil.MustDo(t, "get heads", err)
	require.Len(t, heads, 1)
	require.True(t, heads[0].Equal(head))
}

func TestFetchFromExisting(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	repo := entry.Repo()
	dag := testutil.NewDAG(t)
	dag.Add("R")
	a := dag.Add("A", "R")
	c := dag.Add("C", "A")
	for _, name := range []string{"R", "A"} {
		_, err := e.storage.SaveCommit(ctx, dag.ID(name), dag.Commit(name))
		testutil.MustDo(t, "save", err)
	}
	_, err := e.storage.MarkCompleteCommits(ctx)
	testutil.MustDo(t, "mark complete", err)
	testutil.MustDo(t, "save local head", entry.SaveHeads(ctx, []graph.SignedHead{graph.NewSignedHead(repo, a, e.owner.Private)}))

	m := e.masters["m1"]
	m.EXPECT().GetHeads(gomock.Any(), repo).Return([]graph.SignedHead{graph.NewSignedHead(repo, c, e.owner.Private)}, nil)
	m.EXPECT().Download(gomock.Any(), repo, dag.Set("C"), dag.Set("A")).
		Return(graph.NewCommitEntrySliceIterator(entriesOf(dag, "C")), nil)

	testutil.MustDo(t, "fetch", entry.Fetch(ctx))
	heads, err := entry.GetHeads(ctx)
	testutil.MustDo(t, "get heads", err)
	require.Equal(t, dag.Set("C"), graph.HeadsSet(heads))
}

func TestFetchUpToDate(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	repo := entry.Repo()
	dag := testutil.NewDAG(t)
	r := dag.Add("R")
	_, err := e.storage.SaveCommit(ctx, r, dag.Commit("R"))
	testutil.MustDo(t, "save", err)
	head := graph.NewSignedHead(repo, r, e.owner.Private)
	testutil.MustDo(t, "save head", entry.SaveHeads(ctx, []graph.SignedHead{head}))

	// no Download expected
	e.masters["m1"].EXPECT().GetHeads(gomock.Any(), repo).Return([]graph.SignedHead{head}, nil)
	testutil.MustDo(t, "fetch", entry.Fetch(ctx))
}

func TestPush(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	repo := entry.Repo()
	dag := testutil.NewDAG(t)
	dag.Add("R")
	dag.Add("A", "R")
	b := dag.Add("B", "A")
	for _, name := range []string{"R", "A", "B"} {
		_, err := e.storage.SaveCommit(ctx, dag.ID(name), dag.Commit(name))
		testutil.MustDo(t, "save", err)
	}
	head := graph.NewSignedHead(repo, b, e.owner.Private)
	testutil.MustDo(t, "save head", entry.SaveHeads(ctx, []graph.SignedHead{head}))

	m := e.masters["m1"]
	m.EXPECT().GetHeadsInfo(gomock.Any(), repo).
		Return(&graph.HeadsInfo{Existing: dag.Set("R"), Required: graph.NewCommitSet()}, nil)
	m.EXPECT().Upload(gomock.Any(), repo, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ graph.RepoID, heads []graph.SignedHead, it graph.CommitEntryIterator) error {
			require.Len(t, heads, 1)
			require.True(t, heads[0].Equal(head))
			entries, err := graph.CollectEntries(it)
			require.NoError(t, err)
			var names []string
			for _, ce := range entries {
				names = append(names, dag.Name(ce.CommitID))
			}
			require.Equal(t, []string{"B", "A"}, names)
			return nil
		})
	testutil.MustDo(t, "push", entry.Push(ctx))

	// the master already holds the head complete
	m.EXPECT().GetHeadsInfo(gomock.Any(), repo).
		Return(&graph.HeadsInfo{Existing: dag.Set("B"), Required: graph.NewCommitSet()}, nil)
	testutil.MustDo(t, "push again", entry.Push(ctx))
}

func TestUpdateHeadsDebounced(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	e.masters["m1"].EXPECT().GetHeads(gomock.Any(), entry.Repo()).Return(nil, nil).Times(1)
	for i := 0; i < 3; i++ {
		testutil.MustDo(t, "update heads", entry.UpdateHeads(ctx))
	}
}

func TestUpdateHeadsFailureNotDebounced(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	errDown := errors.New("down")
	gomock.InOrder(
		e.masters["m1"].EXPECT().GetHeads(gomock.Any(), entry.Repo()).Return(nil, errDown),
		e.masters["m1"].EXPECT().GetHeads(gomock.Any(), entry.Repo()).Return(nil, nil),
	)
	require.ErrorIs(t, entry.UpdateHeads(ctx), errDown)
	testutil.MustDo(t, "update heads", entry.UpdateHeads(ctx))
}

func TestFetchCoalesced(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 0, "m1")
	entry := e.ns.Repository("repo")
	started := make(chan struct{})
	release := make(chan struct{})
	e.masters["m1"].EXPECT().GetHeads(gomock.Any(), entry.Repo()).
		DoAndReturn(func(context.Context, graph.RepoID) ([]graph.SignedHead, error) {
			close(started)
			<-release
			return nil, nil
		}).Times(1)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- entry.Fetch(ctx)
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- entry.Fetch(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}

func TestPollHeads(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour)
	entry := e.ns.Repository("repo")
	repo := entry.Repo()
	dag := testutil.NewDAG(t)
	a := dag.Add("A")
	b := dag.Add("B", "A")
	for _, name := range []string{"A", "B"} {
		_, err := e.storage.SaveCommit(ctx, dag.ID(name), dag.Commit(name))
		testutil.MustDo(t, "save", err)
	}
	testutil.MustDo(t, "save head", entry.SaveHeads(ctx, []graph.SignedHead{graph.NewSignedHead(repo, a, e.owner.Private)}))

	// known differs: returns at once
	heads, err := entry.PollHeads(ctx, graph.NewCommitSet())
	testutil.MustDo(t, "poll", err)
	require.Equal(t, dag.Set("A"), graph.HeadsSet(heads))

	const pollers = 2
	results := make(chan []graph.SignedHead, pollers)
	for i := 0; i < pollers; i++ {
		go func() {
			heads, err := entry.PollHeads(ctx, dag.Set("A"))
			if err != nil {
				t.Error("poll:", err)
			}
			results <- heads
		}()
	}
	time.Sleep(20 * time.Millisecond)
	testutil.MustDo(t, "save head", entry.SaveHeads(ctx, []graph.SignedHead{graph.NewSignedHead(repo, b, e.owner.Private)}))
	for i := 0; i < pollers; i++ {
		select {
		case heads := <-results:
			require.Equal(t, dag.Set("B"), graph.HeadsSet(heads))
		case <-time.After(5 * time.Second):
			t.Fatal("poller not woken")
		}
	}
}

func TestPollHeadsTimeout(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour)
	entry := e.ns.Repository("repo")
	start := time.Now()
	heads, err := entry.PollHeads(ctx, graph.NewCommitSet())
	testutil.MustDo(t, "poll", err)
	require.Empty(t, heads)
	require.GreaterOrEqual(t, time.Since(start), pollTimeout)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = entry.PollHeads(cancelled, graph.NewCommitSet())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotsAndPullRequests(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Hour, "m1")
	entry := e.ns.Repository("repo")
	repo := entry.Repo()
	dag := testutil.NewDAG(t)
	a := dag.Add("A")
	b := dag.Add("B", "A")
	remoteSnapshot := graph.Sign(graph.RawSnapshot{RepositoryID: repo, CommitID: a, Payload: []byte("a")}, e.owner.Private)
	localSnapshot := graph.Sign(graph.RawSnapshot{RepositoryID: repo, CommitID: b, Payload: []byte("b")}, e.owner.Private)
	_, err := e.storage.SaveSnapshot(ctx, localSnapshot)
	testutil.MustDo(t, "save local snapshot", err)

	forker := testutil.NewKeyPair(t, 9)
	pr := graph.Sign(graph.RawPullRequest{Repository: repo, Fork: graph.RepoID{Owner: forker.Public, Name: "fork"}}, forker.Private)

	m := e.masters["m1"]
	m.EXPECT().ListSnapshots(gomock.Any(), repo).Return(graph.NewCommitSet(a), nil).Times(2)
	m.EXPECT().LoadSnapshot(gomock.Any(), repo, a).Return(&remoteSnapshot, nil)
	m.EXPECT().SaveSnapshot(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s graph.SignedSnapshot) error {
			require.True(t, s.Equal(localSnapshot))
			return nil
		})
	m.EXPECT().GetPullRequests(gomock.Any(), repo).Return([]graph.SignedPullRequest{pr}, nil).Times(2)

	testutil.MustDo(t, "update snapshots", entry.UpdateSnapshots(ctx))
	testutil.MustDo(t, "push snapshots", entry.PushSnapshots(ctx))
	testutil.MustDo(t, "update pull requests", entry.UpdatePullRequests(ctx))
	// the master already holds it: nothing sent
	testutil.MustDo(t, "push pull requests", entry.PushPullRequests(ctx))

	ids, err := e.storage.ListSnapshots(ctx, repo)
	testutil.MustDo(t, "list snapshots", err)
	require.Equal(t, graph.NewCommitSet(a, b), ids)
	prs, err := e.storage.GetPullRequests(ctx, repo)
	testutil.MustDo(t, "get pull requests", err)
	require.Len(t, prs, 1)
}
