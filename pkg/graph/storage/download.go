package storage

import (
	"container/heap"
	"context"
	"errors"

	"github.com/treeverse/commitgraph/pkg/graph"
)

type walkState struct {
	skip bool
}

// DownloadIterator walks commits by level from the required and existing commits. Commits
// reachable from an existing commit are walked as skipped and are never emitted. The walk
// ends once only skipped commits are left in the queue.
type DownloadIterator struct {
	ctx     context.Context
	loader  graph.CommitLoader
	heads   map[graph.CommitID]graph.SignedHead
	queue   graph.CommitQueue[*walkState]
	queued  map[graph.CommitID]*walkState
	pending int
	value   *graph.CommitEntry
	err     error
	closed  bool
}

func NewDownloadIterator(ctx context.Context, loader graph.CommitLoader, heads map[graph.CommitID]graph.SignedHead, required, existing graph.CommitSet) *DownloadIterator {
	it := &DownloadIterator{
		ctx:    ctx,
		loader: loader,
		heads:  heads,
		queue:  graph.NewCommitQueue[*walkState](),
		queued: make(map[graph.CommitID]*walkState),
	}
	for _, id := range existing.Sorted() {
		it.push(id, true)
	}
	for _, id := range required.Sorted() {
		it.push(id, false)
	}
	return it
}

// push queues id, or marks it skipped when a skipped commit reaches it.
func (it *DownloadIterator) push(id graph.CommitID, skip bool) {
	if id.IsZero() {
		return
	}
	if state, ok := it.queued[id]; ok {
		if skip && !state.skip {
			state.skip = true
			it.pending--
		}
		return
	}
	state := &walkState{skip: skip}
	it.queued[id] = state
	if !skip {
		it.pending++
	}
	heap.Push(&it.queue, &graph.QueueItem[*walkState]{ID: id, Value: state})
}

func (it *DownloadIterator) Next() bool {
	it.value = nil
	if it.closed || it.err != nil {
		return false
	}
	for it.pending > 0 && it.queue.Len() > 0 {
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		item := heap.Pop(&it.queue).(*graph.QueueItem[*walkState])
		skip := item.Value.skip
		if !skip {
			it.pending--
		}
		commit, err := it.loader.LoadCommit(it.ctx, item.ID)
		if errors.Is(err, graph.ErrCommitNotFound) {
			continue
		}
		if err != nil {
			it.err = err
			return false
		}
		for _, parent := range commit.Parents {
			it.push(parent, skip)
		}
		if skip {
			continue
		}
		entry := &graph.CommitEntry{CommitID: item.ID, Commit: commit}
		if head, ok := it.heads[item.ID]; ok {
			h := head
			entry.Head = &h
		}
		it.value = entry
		return true
	}
	return false
}

func (it *DownloadIterator) Value() *graph.CommitEntry {
	return it.value
}

func (it *DownloadIterator) Err() error {
	return it.err
}

func (it *DownloadIterator) Close() {
	it.closed = true
	it.value = nil
}

// Download streams the commits of repo needed to complete required, skipping everything
// reachable from existing. Entries of commits that are heads of repo carry the signed head.
func (s *Storage) Download(ctx context.Context, repo graph.RepoID, required, existing graph.CommitSet) (graph.CommitEntryIterator, error) {
	heads, err := s.GetHeads(ctx, repo)
	if err != nil {
		return nil, err
	}
	return NewDownloadIterator(ctx, s, heads, required, existing), nil
}

// Walk streams every stored commit reachable from the heads of repo, highest level first.
func (s *Storage) Walk(ctx context.Context, repo graph.RepoID) (graph.CommitEntryIterator, error) {
	heads, err := s.GetHeads(ctx, repo)
	if err != nil {
		return nil, err
	}
	required := graph.NewCommitSet()
	for id := range heads {
		required.Add(id)
	}
	return NewDownloadIterator(ctx, s, heads, required, graph.NewCommitSet()), nil
}
