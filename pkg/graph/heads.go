package graph

import (
	"container/heap"
	"context"
	"errors"
)

// CommitLoader loads stored commits. Missing commits fail with ErrCommitNotFound.
type CommitLoader interface {
	LoadCommit(ctx context.Context, id CommitID) (*RawCommit, error)
}

// ExcludeParents returns the members of candidates that are not ancestors of another member.
// The walk pops commits by level and stops below the lowest candidate level, since nothing
// under it can be a candidate. Candidates that are not stored stay in the result but are
// not walked.
func ExcludeParents(ctx context.Context, loader CommitLoader, candidates CommitSet) (CommitSet, error) {
	result := candidates.Clone()
	if len(candidates) < 2 {
		return result, nil
	}
	minLevel := int64(-1)
	for id := range candidates {
		if minLevel < 0 || id.Level < minLevel {
			minLevel = id.Level
		}
	}

	queue := NewCommitQueue[*RawCommit]()
	visited := make(CommitSet, len(candidates))
	push := func(id CommitID) error {
		visited.Add(id)
		commit, err := loader.LoadCommit(ctx, id)
		if errors.Is(err, ErrCommitNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		heap.Push(&queue, &QueueItem[*RawCommit]{ID: id, Value: commit})
		return nil
	}
	for _, id := range candidates.Sorted() {
		if err := push(id); err != nil {
			return nil, err
		}
	}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item := heap.Pop(&queue).(*QueueItem[*RawCommit])
		if item.ID.Level < minLevel {
			break
		}
		for _, parent := range item.Value.Parents {
			result.Remove(parent)
			// parents at minLevel have no ancestors among the candidates
			if visited.Has(parent) || parent.Level <= minLevel {
				continue
			}
			if err := push(parent); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}
