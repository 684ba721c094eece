package storage

import (
	"bytes"
	"context"
	"errors"

	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/retry"
)

var errHeadsChanged = errors.New("heads changed")

// HeadsUpdate describes a change of a head set.
type HeadsUpdate struct {
	Added   graph.CommitSet
	Removed graph.CommitSet
}

func (u *HeadsUpdate) Changed() bool {
	return len(u.Added) > 0 || len(u.Removed) > 0
}

func headsTx(tx kv.Tx, repo graph.RepoID) (map[graph.CommitID]graph.SignedHead, error) {
	entries, err := kv.ScanAll(tx, headsPartition, repoKey(repo))
	if err != nil {
		return nil, storageErr(err)
	}
	heads := make(map[graph.CommitID]graph.SignedHead, len(entries))
	for _, entry := range entries {
		head, err := graph.UnmarshalSignedHead(entry.Value)
		if err != nil {
			return nil, err
		}
		heads[head.Value.CommitID] = head
	}
	return heads, nil
}

// GetHeads returns the head set of repo keyed by commit id.
func (s *Storage) GetHeads(ctx context.Context, repo graph.RepoID) (map[graph.CommitID]graph.SignedHead, error) {
	var heads map[graph.CommitID]graph.SignedHead
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		heads, err = headsTx(tx, repo)
		return err
	})
	return heads, err
}

func updateHeadsTx(tx kv.Tx, repo graph.RepoID, add []graph.SignedHead, remove graph.CommitSet) error {
	for id := range remove {
		if err := tx.Delete(headsPartition, repoCommitKey(repo, id)); err != nil {
			return storageErr(err)
		}
	}
	for _, head := range add {
		if err := tx.Set(headsPartition, repoCommitKey(repo, head.Value.CommitID), graph.MarshalSignedHead(head)); err != nil {
			return storageErr(err)
		}
	}
	return registerTx(tx, repo)
}

// UpdateHeads removes and adds heads of repo in one transaction.
func (s *Storage) UpdateHeads(ctx context.Context, repo graph.RepoID, add []graph.SignedHead, remove graph.CommitSet) error {
	return s.update(ctx, func(tx kv.Tx) error {
		return updateHeadsTx(tx, repo, add, remove)
	})
}

func sameHeads(a, b map[graph.CommitID]graph.SignedHead) bool {
	if len(a) != len(b) {
		return false
	}
	for id, ha := range a {
		hb, ok := b[id]
		if !ok || !bytes.Equal(ha.Signature, hb.Signature) {
			return false
		}
	}
	return true
}

// MergeHeads adds heads to the head set of repo and drops every head that is an ancestor of
// another one. The head set is replaced only if nobody changed it meanwhile; otherwise the
// merge is recomputed.
func (s *Storage) MergeHeads(ctx context.Context, repo graph.RepoID, heads []graph.SignedHead) (*HeadsUpdate, error) {
	var result *HeadsUpdate
	err := retry.Do(ctx, retry.Conflicts(ctx), func() error {
		current, err := s.GetHeads(ctx, repo)
		if err != nil {
			return err
		}
		merged := make(map[graph.CommitID]graph.SignedHead, len(current)+len(heads))
		for id, h := range current {
			merged[id] = h
		}
		for _, h := range heads {
			if prev, ok := merged[h.Value.CommitID]; ok && prev.Value.Timestamp >= h.Value.Timestamp {
				continue
			}
			merged[h.Value.CommitID] = h
		}
		candidates := graph.NewCommitSet()
		for id := range merged {
			candidates.Add(id)
		}
		keep, err := graph.ExcludeParents(ctx, s, candidates)
		if err != nil {
			return err
		}

		update := &HeadsUpdate{Added: graph.NewCommitSet(), Removed: graph.NewCommitSet()}
		var add []graph.SignedHead
		for id := range keep {
			h := merged[id]
			if prev, ok := current[id]; ok && bytes.Equal(prev.Signature, h.Signature) {
				continue
			}
			add = append(add, h)
			if _, ok := current[id]; !ok {
				update.Added.Add(id)
			}
		}
		for id := range current {
			if !keep.Has(id) {
				update.Removed.Add(id)
			}
		}
		if len(add) == 0 && len(update.Removed) == 0 {
			result = update
			return nil
		}
		graph.SortHeads(add)
		err = s.update(ctx, func(tx kv.Tx) error {
			latest, err := headsTx(tx, repo)
			if err != nil {
				return err
			}
			if !sameHeads(current, latest) {
				return errHeadsChanged
			}
			return updateHeadsTx(tx, repo, add, update.Removed)
		})
		if err != nil {
			return err
		}
		result = update
		return nil
	}, func(err error) bool {
		return errors.Is(err, errHeadsChanged)
	})
	if err != nil {
		return nil, err
	}
	if result.Changed() {
		logging.FromContext(ctx).
			WithFields(logging.Fields{
				logging.RepositoryFieldKey: repo.String(),
				"added":                    len(result.Added),
				"removed":                  len(result.Removed),
			}).
			Debug("Heads updated")
	}
	return result, nil
}

// HeadsInfo splits the heads of repo into complete and incomplete ones.
func (s *Storage) HeadsInfo(ctx context.Context, repo graph.RepoID) (*graph.HeadsInfo, error) {
	info := &graph.HeadsInfo{Existing: graph.NewCommitSet(), Required: graph.NewCommitSet()}
	err := s.view(ctx, func(tx kv.Tx) error {
		heads, err := headsTx(tx, repo)
		if err != nil {
			return err
		}
		for id := range heads {
			complete, err := isCompleteTx(tx, id)
			if err != nil {
				return err
			}
			if complete {
				info.Existing.Add(id)
			} else {
				info.Required.Add(id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
