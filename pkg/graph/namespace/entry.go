package namespace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/treeverse/commitgraph/pkg/cache"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/graph/storage"
	"github.com/treeverse/commitgraph/pkg/logging"
)

const (
	OpUpdate             = "update"
	OpUpdateHeads        = "update_heads"
	OpUpdateSnapshots    = "update_snapshots"
	OpUpdatePullRequests = "update_pull_requests"
	OpFetch              = "fetch"
	OpPush               = "push"
	OpPushSnapshots      = "push_snapshots"
	OpPushPullRequests   = "push_pull_requests"
)

// update operations are skipped while their last success is within the latency margin
var debounced = map[string]bool{
	OpUpdate:             true,
	OpUpdateHeads:        true,
	OpUpdateSnapshots:    true,
	OpUpdatePullRequests: true,
}

var syncDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "commitgraph_sync_duration_seconds",
		Help:    "duration of repository sync operations",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	},
	[]string{"operation"})

// RepositoryEntry synchronizes one repository with the masters of its namespace. Every
// operation is coalesced: a call made while the same operation runs waits for that run.
type RepositoryEntry struct {
	ns      *Namespace
	repo    graph.RepoID
	storage *storage.Storage
	ops     *cache.OnlyOne[struct{}]

	mu      sync.Mutex
	lastRun map[string]time.Time
	wake    chan struct{}
}

func newRepositoryEntry(ns *Namespace, repo graph.RepoID) *RepositoryEntry {
	return &RepositoryEntry{
		ns:      ns,
		repo:    repo,
		storage: ns.storage,
		ops:     cache.NewOnlyOne[struct{}](),
		lastRun: make(map[string]time.Time),
	}
}

func (e *RepositoryEntry) Repo() graph.RepoID {
	return e.repo
}

func (e *RepositoryEntry) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if debounced[op] {
		e.mu.Lock()
		fresh := e.ns.fresh(e.lastRun[op])
		e.mu.Unlock()
		if fresh {
			return nil
		}
	}
	ctx = logging.AddFields(ctx, logging.Fields{
		logging.RepositoryFieldKey: e.repo.String(),
		logging.OperationFieldKey:  op,
	})
	_, err := e.ops.Compute(ctx, op, func(ctx context.Context) (struct{}, error) {
		start := time.Now()
		err := fn(ctx)
		syncDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			return struct{}{}, err
		}
		e.mu.Lock()
		e.lastRun[op] = start
		e.mu.Unlock()
		return struct{}{}, nil
	})
	return err
}

// Update fetches commits, snapshots and pull requests from the masters.
func (e *RepositoryEntry) Update(ctx context.Context) error {
	return e.run(ctx, OpUpdate, func(ctx context.Context) error {
		var merr *multierror.Error
		for _, step := range []func(context.Context) error{e.Fetch, e.UpdateSnapshots, e.UpdatePullRequests} {
			if err := step(ctx); err != nil {
				merr = multierror.Append(merr, err)
			}
		}
		return merr.ErrorOrNil()
	})
}

// UpdateHeads merges the heads of the masters into the local head set.
func (e *RepositoryEntry) UpdateHeads(ctx context.Context) error {
	return e.run(ctx, OpUpdateHeads, func(ctx context.Context) error {
		return e.ns.ForEachMaster(ctx, OpUpdateHeads, func(ctx context.Context, m Master) error {
			heads, err := m.Node.GetHeads(ctx, e.repo)
			if err != nil {
				return err
			}
			return e.SaveHeads(ctx, heads)
		})
	})
}

// Fetch downloads from every master the commits needed to complete its heads and merges
// those heads.
func (e *RepositoryEntry) Fetch(ctx context.Context) error {
	return e.run(ctx, OpFetch, func(ctx context.Context) error {
		return e.ns.ForEachMaster(ctx, OpFetch, e.fetchFrom)
	})
}

func (e *RepositoryEntry) fetchFrom(ctx context.Context, m Master) error {
	heads, err := m.Node.GetHeads(ctx, e.repo)
	if err != nil {
		return err
	}
	info, err := e.storage.HeadsInfo(ctx, e.repo)
	if err != nil {
		return err
	}
	required := info.Required.Clone()
	for _, head := range heads {
		id := head.Value.CommitID
		if info.Existing.Has(id) {
			continue
		}
		complete, err := e.storage.IsCompleteCommit(ctx, id)
		if err != nil {
			return err
		}
		if !complete {
			required.Add(id)
		}
	}
	if len(required) > 0 {
		it, err := m.Node.Download(ctx, e.repo, required, info.Existing)
		if err != nil {
			return err
		}
		received, err := e.saveEntries(ctx, it)
		if err != nil {
			return err
		}
		heads = append(heads, received...)
		logging.FromContext(ctx).
			WithFields(logging.Fields{
				logging.ServerIDFieldKey: m.ServerID,
				"required":               len(required),
				"existing":               len(info.Existing),
			}).
			Debug("Fetched commits")
	}
	return e.SaveHeads(ctx, heads)
}

// saveEntries stores a commit stream and propagates completeness. It returns the heads
// carried by the entries.
func (e *RepositoryEntry) saveEntries(ctx context.Context, it graph.CommitEntryIterator) ([]graph.SignedHead, error) {
	defer it.Close()
	var (
		heads []graph.SignedHead
		saved int
		err   error
	)
	for it.Next() {
		entry := it.Value()
		if _, err = e.storage.SaveCommit(ctx, entry.CommitID, entry.Commit); err != nil {
			break
		}
		saved++
		if entry.Head != nil {
			heads = append(heads, *entry.Head)
		}
	}
	if err == nil {
		err = it.Err()
	}
	// commits stored before a failure still propagate their completion
	if saved > 0 {
		if _, markErr := e.storage.MarkCompleteCommits(ctx); markErr != nil {
			if err == nil {
				return nil, markErr
			}
			err = multierror.Append(err, markErr)
		}
	}
	if err != nil {
		return nil, err
	}
	return heads, nil
}

// SaveEntries stores an uploaded commit stream and merges heads together with the heads the
// entries carry.
func (e *RepositoryEntry) SaveEntries(ctx context.Context, heads []graph.SignedHead, it graph.CommitEntryIterator) error {
	received, err := e.saveEntries(ctx, it)
	if err != nil {
		return err
	}
	return e.SaveHeads(ctx, append(append([]graph.SignedHead(nil), heads...), received...))
}

// Push sends every master the commits it misses together with the local heads.
func (e *RepositoryEntry) Push(ctx context.Context) error {
	return e.run(ctx, OpPush, func(ctx context.Context) error {
		return e.ns.ForEachMaster(ctx, OpPush, e.PushTo)
	})
}

// PushTo sends m the commits reachable from the local heads that are not reachable from
// its complete heads.
func (e *RepositoryEntry) PushTo(ctx context.Context, m Master) error {
	info, err := m.Node.GetHeadsInfo(ctx, e.repo)
	if err != nil {
		return err
	}
	local, err := e.storage.GetHeads(ctx, e.repo)
	if err != nil {
		return err
	}
	required := graph.NewCommitSet()
	heads := make([]graph.SignedHead, 0, len(local))
	for id, head := range local {
		heads = append(heads, head)
		if !info.Existing.Has(id) {
			required.Add(id)
		}
	}
	if len(required) == 0 {
		return nil
	}
	graph.SortHeads(heads)
	it, err := e.storage.Download(ctx, e.repo, required, info.Existing)
	if err != nil {
		return err
	}
	defer it.Close()
	return m.Node.Upload(ctx, e.repo, heads, it)
}

// UpdateSnapshots loads the snapshots masters list and the local store misses.
func (e *RepositoryEntry) UpdateSnapshots(ctx context.Context) error {
	return e.run(ctx, OpUpdateSnapshots, func(ctx context.Context) error {
		return e.ns.ForEachMaster(ctx, OpUpdateSnapshots, func(ctx context.Context, m Master) error {
			remote, err := m.Node.ListSnapshots(ctx, e.repo)
			if err != nil {
				return err
			}
			local, err := e.storage.ListSnapshots(ctx, e.repo)
			if err != nil {
				return err
			}
			for _, id := range remote.Sorted() {
				if local.Has(id) {
					continue
				}
				snapshot, err := m.Node.LoadSnapshot(ctx, e.repo, id)
				if err != nil {
					return err
				}
				if _, err := e.storage.SaveSnapshot(ctx, *snapshot); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// PushSnapshots sends masters the local snapshots they do not list.
func (e *RepositoryEntry) PushSnapshots(ctx context.Context) error {
	return e.run(ctx, OpPushSnapshots, func(ctx context.Context) error {
		local, err := e.storage.ListSnapshots(ctx, e.repo)
		if err != nil {
			return err
		}
		if len(local) == 0 {
			return nil
		}
		return e.ns.ForEachMaster(ctx, OpPushSnapshots, func(ctx context.Context, m Master) error {
			remote, err := m.Node.ListSnapshots(ctx, e.repo)
			if err != nil {
				return err
			}
			for _, id := range local.Sorted() {
				if remote.Has(id) {
					continue
				}
				snapshot, err := e.storage.LoadSnapshot(ctx, e.repo, id)
				if err != nil {
					return err
				}
				if err := m.Node.SaveSnapshot(ctx, *snapshot); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// UpdatePullRequests stores the pull requests masters hold for the repository.
func (e *RepositoryEntry) UpdatePullRequests(ctx context.Context) error {
	return e.run(ctx, OpUpdatePullRequests, func(ctx context.Context) error {
		return e.ns.ForEachMaster(ctx, OpUpdatePullRequests, func(ctx context.Context, m Master) error {
			prs, err := m.Node.GetPullRequests(ctx, e.repo)
			if err != nil {
				return err
			}
			for _, pr := range prs {
				if _, err := e.storage.SavePullRequest(ctx, pr); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func containsPullRequest(prs []graph.SignedPullRequest, pr graph.SignedPullRequest) bool {
	for _, p := range prs {
		if p.Equal(pr) {
			return true
		}
	}
	return false
}

// PushPullRequests sends masters the local pull requests they do not hold.
func (e *RepositoryEntry) PushPullRequests(ctx context.Context) error {
	return e.run(ctx, OpPushPullRequests, func(ctx context.Context) error {
		local, err := e.storage.GetPullRequests(ctx, e.repo)
		if err != nil {
			return err
		}
		if len(local) == 0 {
			return nil
		}
		return e.ns.ForEachMaster(ctx, OpPushPullRequests, func(ctx context.Context, m Master) error {
			remote, err := m.Node.GetPullRequests(ctx, e.repo)
			if err != nil {
				return err
			}
			for _, pr := range local {
				if containsPullRequest(remote, pr) {
					continue
				}
				if err := m.Node.SendPullRequest(ctx, pr); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// SaveHeads merges heads into the head set and wakes a pending poll when the set changed.
func (e *RepositoryEntry) SaveHeads(ctx context.Context, heads []graph.SignedHead) error {
	if len(heads) == 0 {
		return nil
	}
	update, err := e.storage.MergeHeads(ctx, e.repo, heads)
	if err != nil {
		return fmt.Errorf("save heads of %s: %w", e.repo, err)
	}
	if update.Changed() {
		e.wakeup()
	}
	return nil
}

// waitChan returns the channel closed by the next head change. All pollers share it.
func (e *RepositoryEntry) waitChan() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wake == nil {
		e.wake = make(chan struct{})
	}
	return e.wake
}

func (e *RepositoryEntry) wakeup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.wake != nil {
		close(e.wake)
		e.wake = nil
	}
}

func headsList(heads map[graph.CommitID]graph.SignedHead) []graph.SignedHead {
	list := make([]graph.SignedHead, 0, len(heads))
	for _, h := range heads {
		list = append(list, h)
	}
	graph.SortHeads(list)
	return list
}

func sameIDs(heads map[graph.CommitID]graph.SignedHead, known graph.CommitSet) bool {
	if len(heads) != len(known) {
		return false
	}
	for id := range heads {
		if !known.Has(id) {
			return false
		}
	}
	return true
}

// GetHeads returns the local head set ordered by commit id.
func (e *RepositoryEntry) GetHeads(ctx context.Context) ([]graph.SignedHead, error) {
	heads, err := e.storage.GetHeads(ctx, e.repo)
	if err != nil {
		return nil, err
	}
	return headsList(heads), nil
}

// PollHeads returns the head set as soon as it differs from known. After the poll timeout
// it returns the unchanged head set.
func (e *RepositoryEntry) PollHeads(ctx context.Context, known graph.CommitSet) ([]graph.SignedHead, error) {
	timer := time.NewTimer(e.ns.cfg.PollTimeout)
	defer timer.Stop()
	for {
		wake := e.waitChan()
		heads, err := e.storage.GetHeads(ctx, e.repo)
		if err != nil {
			return nil, err
		}
		if !sameIDs(heads, known) {
			return headsList(heads), nil
		}
		select {
		case <-wake:
		case <-timer.C:
			return headsList(heads), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
