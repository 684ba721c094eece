package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/graph/discovery"
	"github.com/treeverse/commitgraph/pkg/graph/namespace"
	"github.com/treeverse/commitgraph/pkg/graph/storage"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/signature"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMinSuccesses = 1

	roleMaster  = "master"
	roleReplica = "replica"
)

var requestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "commitgraph_node_requests_total",
		Help: "node requests by operation and by whether the node was master",
	},
	[]string{"operation", "role"})

type Config struct {
	// MinSuccesses is the number of masters that must accept a write forwarded by a
	// node that is not master.
	MinSuccesses int
	Namespace    namespace.Config
}

// LocalNode serves the commit graph protocol from local storage. For owners it is not
// master of, reads fall back to the masters and writes are forwarded to them.
type LocalNode struct {
	cfg       Config
	storage   *storage.Storage
	discovery discovery.Discovery
	resolver  discovery.NodeResolver

	mu         sync.Mutex
	namespaces map[signature.PublicKey]*namespace.Namespace
}

var _ graph.Node = (*LocalNode)(nil)

func New(st *storage.Storage, d discovery.Discovery, resolver discovery.NodeResolver, cfg Config) *LocalNode {
	if cfg.MinSuccesses <= 0 {
		cfg.MinSuccesses = DefaultMinSuccesses
	}
	if cfg.Namespace.MaxFanout <= 0 {
		cfg.Namespace.MaxFanout = namespace.DefaultMaxFanout
	}
	return &LocalNode{
		cfg:        cfg,
		storage:    st,
		discovery:  d,
		resolver:   resolver,
		namespaces: make(map[signature.PublicKey]*namespace.Namespace),
	}
}

func (n *LocalNode) ServerID() string {
	return n.cfg.Namespace.ServerID
}

// Namespace returns the namespace of owner, creating it on first use.
func (n *LocalNode) Namespace(owner signature.PublicKey) *namespace.Namespace {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, ok := n.namespaces[owner]
	if !ok {
		ns = namespace.New(owner, n.storage, n.discovery, n.resolver, n.cfg.Namespace)
		n.namespaces[owner] = ns
	}
	return ns
}

func (n *LocalNode) Repository(repo graph.RepoID) *namespace.RepositoryEntry {
	return n.Namespace(repo.Owner).Repository(repo.Name)
}

// begin resolves the role of the node for owner and counts the request.
func (n *LocalNode) begin(ctx context.Context, op string, owner signature.PublicKey) (context.Context, *namespace.Namespace, bool, error) {
	ns := n.Namespace(owner)
	ctx = logging.AddFields(ctx, logging.Fields{
		logging.OperationFieldKey: op,
		logging.OwnerFieldKey:     owner.String(),
	})
	isMaster, err := ns.IsMaster(ctx)
	if err != nil {
		return ctx, ns, false, err
	}
	role := roleReplica
	if isMaster {
		role = roleMaster
	}
	requestsTotal.WithLabelValues(op, role).Inc()
	return ctx, ns, isMaster, nil
}

// quorum forwards a write to the masters, at most MaxFanout at a time, and requires
// MinSuccesses of them to accept it.
func (n *LocalNode) quorum(ctx context.Context, ns *namespace.Namespace, fn func(ctx context.Context, m namespace.Master) error) error {
	masters, err := ns.Masters(ctx)
	if err != nil {
		return err
	}
	if len(masters) == 0 {
		return graph.ErrNoMasters
	}
	var (
		mu        sync.Mutex
		merr      *multierror.Error
		successes int
		g         errgroup.Group
	)
	g.SetLimit(n.cfg.Namespace.MaxFanout)
	for _, m := range masters {
		g.Go(func() error {
			err := fn(ctx, m)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", m.ServerID, err))
			} else {
				successes++
			}
			return nil
		})
	}
	_ = g.Wait()
	if successes >= n.cfg.MinSuccesses {
		if merr != nil {
			logging.FromContext(ctx).WithError(merr).Warn("Write rejected by some masters")
		}
		return nil
	}
	if merr == nil {
		return fmt.Errorf("%w: %d of %d", graph.ErrNotEnoughSuccesses, successes, n.cfg.MinSuccesses)
	}
	return fmt.Errorf("%w: %d of %d: %w", graph.ErrNotEnoughSuccesses, successes, n.cfg.MinSuccesses, merr)
}

// firstSuccess returns the first result a master produces. The other calls are cancelled.
func firstSuccess[T any](ctx context.Context, ns *namespace.Namespace, fn func(ctx context.Context, m namespace.Master) (T, error)) (T, error) {
	var zero T
	masters, err := ns.Masters(ctx)
	if err != nil {
		return zero, err
	}
	if len(masters) == 0 {
		return zero, graph.ErrNoMasters
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	type result struct {
		value T
		err   error
	}
	results := make(chan result, len(masters))
	for _, m := range masters {
		go func() {
			v, err := fn(ctx, m)
			if err != nil {
				err = fmt.Errorf("%s: %w", m.ServerID, err)
			}
			results <- result{value: v, err: err}
		}()
	}
	var merr *multierror.Error
	for range masters {
		r := <-results
		if r.err == nil {
			return r.value, nil
		}
		merr = multierror.Append(merr, r.err)
	}
	return zero, merr.ErrorOrNil()
}

func (n *LocalNode) List(ctx context.Context, owner signature.PublicKey) ([]string, error) {
	ctx, ns, isMaster, err := n.begin(ctx, "list", owner)
	if err != nil {
		return nil, err
	}
	local, err := n.storage.ListRepositories(ctx, owner)
	if err != nil || isMaster {
		return local, err
	}
	remote, err := firstSuccess(ctx, ns, func(ctx context.Context, m namespace.Master) ([]string, error) {
		return m.Node.List(ctx, owner)
	})
	if err != nil {
		logging.FromContext(ctx).WithError(err).Debug("List from masters failed, serving local")
		return local, nil
	}
	return mergeNames(local, remote), nil
}

func (n *LocalNode) Save(ctx context.Context, repo graph.RepoID, commits map[graph.CommitID]*graph.RawCommit) error {
	ctx, ns, isMaster, err := n.begin(ctx, "save", repo.Owner)
	if err != nil {
		return err
	}
	if err := n.saveLocal(ctx, repo, commits); err != nil {
		return err
	}
	if isMaster {
		return nil
	}
	return n.quorum(ctx, ns, func(ctx context.Context, m namespace.Master) error {
		return m.Node.Save(ctx, repo, commits)
	})
}

func (n *LocalNode) saveLocal(ctx context.Context, repo graph.RepoID, commits map[graph.CommitID]*graph.RawCommit) error {
	if err := n.storage.AddRepository(ctx, repo); err != nil {
		return err
	}
	var err error
	saved := 0
	for _, id := range sortedIDs(commits) {
		if _, err = n.storage.SaveCommit(ctx, id, commits[id]); err != nil {
			break
		}
		saved++
	}
	if saved == 0 {
		return err
	}
	if _, markErr := n.storage.MarkCompleteCommits(ctx); markErr != nil {
		if err == nil {
			return markErr
		}
		return multierror.Append(err, markErr)
	}
	return err
}

func (n *LocalNode) SaveHeads(ctx context.Context, repo graph.RepoID, heads []graph.SignedHead) error {
	ctx, ns, isMaster, err := n.begin(ctx, "save_heads", repo.Owner)
	if err != nil {
		return err
	}
	if err := n.Repository(repo).SaveHeads(ctx, heads); err != nil {
		return err
	}
	if isMaster {
		return nil
	}
	return n.quorum(ctx, ns, func(ctx context.Context, m namespace.Master) error {
		return m.Node.SaveHeads(ctx, repo, heads)
	})
}

func (n *LocalNode) LoadCommit(ctx context.Context, repo graph.RepoID, id graph.CommitID) (*graph.RawCommit, error) {
	ctx, ns, isMaster, err := n.begin(ctx, "load_commit", repo.Owner)
	if err != nil {
		return nil, err
	}
	commit, err := n.storage.LoadCommit(ctx, id)
	if isMaster || !errors.Is(err, graph.ErrCommitNotFound) {
		return commit, err
	}
	commit, err = firstSuccess(ctx, ns, func(ctx context.Context, m namespace.Master) (*graph.RawCommit, error) {
		return m.Node.LoadCommit(ctx, repo, id)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", id, graph.ErrCommitNotFound, err)
	}
	if _, err := n.storage.SaveCommit(ctx, id, commit); err != nil {
		return nil, err
	}
	if _, err := n.storage.MarkCompleteCommits(ctx); err != nil {
		return nil, err
	}
	return commit, nil
}

// refresh brings the repository up to date from the masters when the node is not master.
// Failures are logged and the local state is served.
func (n *LocalNode) refresh(ctx context.Context, isMaster bool, fn func(ctx context.Context) error) {
	if isMaster {
		return
	}
	if err := fn(ctx); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Refresh from masters failed, serving local")
	}
}

func (n *LocalNode) Download(ctx context.Context, repo graph.RepoID, required, existing graph.CommitSet) (graph.CommitEntryIterator, error) {
	ctx, _, isMaster, err := n.begin(ctx, "download", repo.Owner)
	if err != nil {
		return nil, err
	}
	n.refresh(ctx, isMaster, n.Repository(repo).Update)
	return n.storage.Download(ctx, repo, required, existing)
}

func (n *LocalNode) Upload(ctx context.Context, repo graph.RepoID, heads []graph.SignedHead, entries graph.CommitEntryIterator) error {
	ctx, ns, isMaster, err := n.begin(ctx, "upload", repo.Owner)
	if err != nil {
		return err
	}
	entry := n.Repository(repo)
	if err := n.storage.AddRepository(ctx, repo); err != nil {
		return err
	}
	if err := entry.SaveEntries(ctx, heads, entries); err != nil {
		return err
	}
	if isMaster {
		return nil
	}
	return n.quorum(ctx, ns, entry.PushTo)
}

func (n *LocalNode) SaveSnapshot(ctx context.Context, snapshot graph.SignedSnapshot) error {
	repo := snapshot.Value.RepositoryID
	ctx, ns, isMaster, err := n.begin(ctx, "save_snapshot", repo.Owner)
	if err != nil {
		return err
	}
	if _, err := n.storage.SaveSnapshot(ctx, snapshot); err != nil {
		return err
	}
	if isMaster {
		return nil
	}
	return n.quorum(ctx, ns, func(ctx context.Context, m namespace.Master) error {
		return m.Node.SaveSnapshot(ctx, snapshot)
	})
}

func (n *LocalNode) LoadSnapshot(ctx context.Context, repo graph.RepoID, id graph.CommitID) (*graph.SignedSnapshot, error) {
	ctx, ns, isMaster, err := n.begin(ctx, "load_snapshot", repo.Owner)
	if err != nil {
		return nil, err
	}
	snapshot, err := n.storage.LoadSnapshot(ctx, repo, id)
	if isMaster || !errors.Is(err, graph.ErrSnapshotNotFound) {
		return snapshot, err
	}
	snapshot, err = firstSuccess(ctx, ns, func(ctx context.Context, m namespace.Master) (*graph.SignedSnapshot, error) {
		return m.Node.LoadSnapshot(ctx, repo, id)
	})
	if err != nil {
		return nil, fmt.Errorf("%s@%s: %w: %w", repo, id, graph.ErrSnapshotNotFound, err)
	}
	if _, err := n.storage.SaveSnapshot(ctx, *snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (n *LocalNode) ListSnapshots(ctx context.Context, repo graph.RepoID) (graph.CommitSet, error) {
	ctx, _, isMaster, err := n.begin(ctx, "list_snapshots", repo.Owner)
	if err != nil {
		return nil, err
	}
	n.refresh(ctx, isMaster, n.Repository(repo).UpdateSnapshots)
	return n.storage.ListSnapshots(ctx, repo)
}

func (n *LocalNode) GetHeads(ctx context.Context, repo graph.RepoID) ([]graph.SignedHead, error) {
	ctx, _, isMaster, err := n.begin(ctx, "get_heads", repo.Owner)
	if err != nil {
		return nil, err
	}
	entry := n.Repository(repo)
	n.refresh(ctx, isMaster, entry.UpdateHeads)
	return entry.GetHeads(ctx)
}

func (n *LocalNode) PollHeads(ctx context.Context, repo graph.RepoID, known graph.CommitSet) ([]graph.SignedHead, error) {
	ctx, ns, isMaster, err := n.begin(ctx, "poll_heads", repo.Owner)
	if err != nil {
		return nil, err
	}
	entry := n.Repository(repo)
	n.refresh(ctx, isMaster, entry.UpdateHeads)
	if isMaster {
		return entry.PollHeads(ctx, known)
	}
	// the masters are polled alongside the local wait. Their answer is merged locally,
	// which releases the local wait.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		heads, err := firstSuccess(ctx, ns, func(ctx context.Context, m namespace.Master) ([]graph.SignedHead, error) {
			return m.Node.PollHeads(ctx, repo, known)
		})
		if err == nil {
			err = entry.SaveHeads(ctx, heads)
		}
		if err != nil && ctx.Err() == nil {
			logging.FromContext(ctx).WithError(err).Warn("Poll of masters failed, waiting locally")
		}
	}()
	return entry.PollHeads(ctx, known)
}

func (n *LocalNode) SendPullRequest(ctx context.Context, pr graph.SignedPullRequest) error {
	repo := pr.Value.Repository
	ctx, ns, isMaster, err := n.begin(ctx, "send_pull_request", repo.Owner)
	if err != nil {
		return err
	}
	if _, err := n.storage.SavePullRequest(ctx, pr); err != nil {
		return err
	}
	if isMaster {
		return nil
	}
	return n.quorum(ctx, ns, func(ctx context.Context, m namespace.Master) error {
		return m.Node.SendPullRequest(ctx, pr)
	})
}

func (n *LocalNode) GetPullRequests(ctx context.Context, repo graph.RepoID) ([]graph.SignedPullRequest, error) {
	ctx, _, isMaster, err := n.begin(ctx, "get_pull_requests", repo.Owner)
	if err != nil {
		return nil, err
	}
	n.refresh(ctx, isMaster, n.Repository(repo).UpdatePullRequests)
	return n.storage.GetPullRequests(ctx, repo)
}

func (n *LocalNode) GetHeadsInfo(ctx context.Context, repo graph.RepoID) (*graph.HeadsInfo, error) {
	ctx, _, _, err := n.begin(ctx, "get_heads_info", repo.Owner)
	if err != nil {
		return nil, err
	}
	return n.storage.HeadsInfo(ctx, repo)
}

// SyncRepository pulls repo from its masters and pushes local data back to them.
func (n *LocalNode) SyncRepository(ctx context.Context, repo graph.RepoID) error {
	entry := n.Repository(repo)
	var merr *multierror.Error
	for _, step := range []func(context.Context) error{entry.Update, entry.Push, entry.PushSnapshots, entry.PushPullRequests} {
		if err := step(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

// Sync synchronizes every stored repository. A failing repository is logged and does not
// stop the others.
func (n *LocalNode) Sync(ctx context.Context) error {
	repos, err := n.storage.Repositories(ctx)
	if err != nil {
		return err
	}
	var merr *multierror.Error
	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.SyncRepository(ctx, repo); err != nil {
			logging.FromContext(ctx).
				WithError(err).
				WithField(logging.RepositoryFieldKey, repo.String()).
				Warn("Repository sync failed")
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", repo, err))
		}
	}
	return merr.ErrorOrNil()
}

// Run calls Sync every interval until ctx is done.
func (n *LocalNode) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := logging.FromContext(ctx).WithField(logging.ServerIDFieldKey, n.ServerID())
	for {
		if err := n.Sync(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("Sync finished with failures")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
