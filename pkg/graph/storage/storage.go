package storage

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/retry"
)

const (
	DefaultCommitCacheSize       = 10000
	DefaultMarkCompleteBatchSize = 1000
)

type Config struct {
	CommitCacheSize       int
	MarkCompleteBatchSize int
}

// Storage keeps commits, heads, snapshots and pull requests in a kv.Store and tracks which
// commits are complete, that is stored together with all their ancestors.
//
// A commit saved while some parents are not complete gets a counter of those parents, and
// every parent to child edge is recorded. The edge is flagged when it was counted. A commit
// whose counter reaches zero is queued as pending, and MarkCompleteCommits propagates
// pending commits to their children.
type Storage struct {
	store     kv.Store
	commits   *lru.Cache[graph.CommitID, *graph.RawCommit]
	batchSize int
}

func New(store kv.Store, cfg Config) (*Storage, error) {
	size := cfg.CommitCacheSize
	if size <= 0 {
		size = DefaultCommitCacheSize
	}
	cache, err := lru.New[graph.CommitID, *graph.RawCommit](size)
	if err != nil {
		return nil, fmt.Errorf("commit cache: %w", err)
	}
	batchSize := cfg.MarkCompleteBatchSize
	if batchSize <= 0 {
		batchSize = DefaultMarkCompleteBatchSize
	}
	return &Storage{
		store:     store,
		commits:   cache,
		batchSize: batchSize,
	}, nil
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", graph.ErrStorage, err)
}

func (s *Storage) view(ctx context.Context, fn func(tx kv.Tx) error) error {
	return s.store.View(ctx, fn)
}

// update runs fn in a transaction, rerunning it when it lost a race with another writer.
func (s *Storage) update(ctx context.Context, fn func(tx kv.Tx) error) error {
	return retry.Do(ctx, retry.Conflicts(ctx), func() error {
		return s.store.Update(ctx, fn)
	}, func(err error) bool {
		return errors.Is(err, kv.ErrConflict)
	})
}

// scanN collects up to limit entries of a prefix scan.
func scanN(tx kv.Tx, partitionKey, prefix []byte, limit int) ([]kv.Entry, error) {
	it, err := tx.Scan(partitionKey, prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var entries []kv.Entry
	for len(entries) < limit && it.Next() {
		entries = append(entries, *it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func uniqueParents(commit *graph.RawCommit) []graph.CommitID {
	return graph.NewCommitSet(commit.Parents...).Sorted()
}

func isCompleteTx(tx kv.Tx, id graph.CommitID) (bool, error) {
	if id.IsZero() {
		return true, nil
	}
	key := id.Bytes()
	_, err := tx.Get(commitsPartition, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageErr(err)
	}
	val, err := tx.Get(incompletePartition, key)
	if errors.Is(err, kv.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, storageErr(err)
	}
	n, err := decodeCounter(val)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// SaveCommit stores commit under id and reports whether it was new. Saving an existing
// commit is a no-op.
func (s *Storage) SaveCommit(ctx context.Context, id graph.CommitID, commit *graph.RawCommit) (bool, error) {
	data := graph.MarshalCommit(commit)
	var saved bool
	err := s.update(ctx, func(tx kv.Tx) error {
		saved = false
		key := id.Bytes()
		_, err := tx.Get(commitsPartition, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kv.ErrNotFound) {
			return storageErr(err)
		}
		if err := tx.Set(commitsPartition, key, data); err != nil {
			return storageErr(err)
		}
		var incomplete uint64
		for _, parent := range uniqueParents(commit) {
			complete, err := isCompleteTx(tx, parent)
			if err != nil {
				return err
			}
			flag := edgeResolved
			if !complete {
				incomplete++
				flag = edgeCounted
			}
			if err := tx.Set(childrenPartition, childKey(parent, id), []byte{flag}); err != nil {
				return storageErr(err)
			}
		}
		if incomplete == 0 {
			err = tx.Set(pendingPartition, key, presentValue)
		} else {
			err = tx.Set(incompletePartition, key, encodeCounter(incomplete))
		}
		if err != nil {
			return storageErr(err)
		}
		saved = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if saved {
		s.commits.Add(id, commit)
		logging.FromContext(ctx).
			WithField(logging.CommitIDFieldKey, id.String()).
			Trace("Commit saved")
	}
	return saved, nil
}

// MarkCompleteCommits propagates completion from pending commits down to their children
// until nothing is pending. It returns the commits whose completion was propagated.
func (s *Storage) MarkCompleteCommits(ctx context.Context) (graph.CommitSet, error) {
	completed := graph.NewCommitSet()
	for {
		var batch []graph.CommitID
		err := s.update(ctx, func(tx kv.Tx) error {
			batch = batch[:0]
			pending, err := scanN(tx, pendingPartition, nil, s.batchSize)
			if err != nil {
				return storageErr(err)
			}
			for _, entry := range pending {
				id, err := graph.CommitIDFromBytes(entry.Key)
				if err != nil {
					return err
				}
				if err := tx.Delete(pendingPartition, entry.Key); err != nil {
					return storageErr(err)
				}
				if err := propagateTx(tx, id); err != nil {
					return err
				}
				batch = append(batch, id)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			return completed, nil
		}
		for _, id := range batch {
			completed.Add(id)
		}
	}
}

// propagateTx resolves the counted edges of a completed commit and queues children that have
// no incomplete parents left.
func propagateTx(tx kv.Tx, id graph.CommitID) error {
	edges, err := kv.ScanAll(tx, childrenPartition, commitKey(id))
	if err != nil {
		return storageErr(err)
	}
	for _, edge := range edges {
		if len(edge.Value) != 1 || edge.Value[0] != edgeCounted {
			continue
		}
		child, err := childFromKey(id, edge.Key)
		if err != nil {
			return err
		}
		if err := tx.Set(childrenPartition, edge.Key, []byte{edgeResolved}); err != nil {
			return storageErr(err)
		}
		key := child.Bytes()
		val, err := tx.Get(incompletePartition, key)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return storageErr(err)
		}
		n, err := decodeCounter(val)
		if err != nil {
			return err
		}
		if n > 1 {
			if err := tx.Set(incompletePartition, key, encodeCounter(n-1)); err != nil {
				return storageErr(err)
			}
			continue
		}
		if err := tx.Delete(incompletePartition, key); err != nil {
			return storageErr(err)
		}
		if err := tx.Set(pendingPartition, key, presentValue); err != nil {
			return storageErr(err)
		}
	}
	return nil
}

// IsCompleteCommit reports whether id and all its ancestors are stored. The zero CommitID is
// always complete.
func (s *Storage) IsCompleteCommit(ctx context.Context, id graph.CommitID) (bool, error) {
	var complete bool
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		complete, err = isCompleteTx(tx, id)
		return err
	})
	return complete, err
}

// IncompleteCount returns the number of parents of id that are not complete yet.
func (s *Storage) IncompleteCount(ctx context.Context, id graph.CommitID) (uint64, error) {
	var n uint64
	err := s.view(ctx, func(tx kv.Tx) error {
		val, err := tx.Get(incompletePartition, id.Bytes())
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storageErr(err)
		}
		n, err = decodeCounter(val)
		return err
	})
	return n, err
}

func (s *Storage) LoadCommit(ctx context.Context, id graph.CommitID) (*graph.RawCommit, error) {
	if commit, ok := s.commits.Get(id); ok {
		return commit, nil
	}
	var data []byte
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		data, err = tx.Get(commitsPartition, id.Bytes())
		return err
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, graph.ErrCommitNotFound)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	commit, err := graph.UnmarshalCommit(data)
	if err != nil {
		return nil, err
	}
	s.commits.Add(id, commit)
	return commit, nil
}

func (s *Storage) HasCommit(ctx context.Context, id graph.CommitID) (bool, error) {
	if s.commits.Contains(id) {
		return true, nil
	}
	var found bool
	err := s.view(ctx, func(tx kv.Tx) error {
		_, err := tx.Get(commitsPartition, id.Bytes())
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		if err != nil {
			return storageErr(err)
		}
		found = true
		return nil
	})
	return found, err
}

func (s *Storage) GetChildren(ctx context.Context, id graph.CommitID) (graph.CommitSet, error) {
	children := graph.NewCommitSet()
	err := s.view(ctx, func(tx kv.Tx) error {
		edges, err := kv.ScanAll(tx, childrenPartition, commitKey(id))
		if err != nil {
			return storageErr(err)
		}
		for _, edge := range edges {
			child, err := childFromKey(id, edge.Key)
			if err != nil {
				return err
			}
			children.Add(child)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}
