package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/ident"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/signature"
)

func repositoryKey(repo graph.RepoID) []byte {
	return append(ownerKey(repo), repo.Name...)
}

func registerTx(tx kv.Tx, repo graph.RepoID) error {
	key := repositoryKey(repo)
	_, err := tx.Get(repositoriesPartition, key)
	if err == nil {
		return nil
	}
	if !errors.Is(err, kv.ErrNotFound) {
		return storageErr(err)
	}
	return storageErr(tx.Set(repositoriesPartition, key, graph.MarshalRepoID(repo)))
}

// AddRepository registers repo so it is listed and synced.
func (s *Storage) AddRepository(ctx context.Context, repo graph.RepoID) error {
	return s.update(ctx, func(tx kv.Tx) error {
		return registerTx(tx, repo)
	})
}

func (s *Storage) scanRepositories(ctx context.Context, prefix []byte) ([]graph.RepoID, error) {
	var repos []graph.RepoID
	err := s.view(ctx, func(tx kv.Tx) error {
		entries, err := kv.ScanAll(tx, repositoriesPartition, prefix)
		if err != nil {
			return storageErr(err)
		}
		for _, entry := range entries {
			repo, err := graph.UnmarshalRepoID(entry.Value)
			if err != nil {
				return err
			}
			repos = append(repos, repo)
		}
		return nil
	})
	return repos, err
}

// ListRepositories returns the repository names of owner in name order.
func (s *Storage) ListRepositories(ctx context.Context, owner signature.PublicKey) ([]string, error) {
	repos, err := s.scanRepositories(ctx, owner[:])
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(repos))
	for _, repo := range repos {
		names = append(names, repo.Name)
	}
	return names, nil
}

// Repositories returns every registered repository.
func (s *Storage) Repositories(ctx context.Context) ([]graph.RepoID, error) {
	return s.scanRepositories(ctx, nil)
}

// SaveSnapshot stores a snapshot and reports whether it was new.
func (s *Storage) SaveSnapshot(ctx context.Context, snapshot graph.SignedSnapshot) (bool, error) {
	repo := snapshot.Value.RepositoryID
	key := repoCommitKey(repo, snapshot.Value.CommitID)
	var saved bool
	err := s.update(ctx, func(tx kv.Tx) error {
		saved = false
		_, err := tx.Get(snapshotsPartition, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kv.ErrNotFound) {
			return storageErr(err)
		}
		if err := tx.Set(snapshotsPartition, key, graph.MarshalSignedSnapshot(snapshot)); err != nil {
			return storageErr(err)
		}
		saved = true
		return registerTx(tx, repo)
	})
	return saved, err
}

func (s *Storage) LoadSnapshot(ctx context.Context, repo graph.RepoID, id graph.CommitID) (*graph.SignedSnapshot, error) {
	var data []byte
	err := s.view(ctx, func(tx kv.Tx) error {
		var err error
		data, err = tx.Get(snapshotsPartition, repoCommitKey(repo, id))
		return err
	})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%s@%s: %w", repo, id, graph.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	snapshot, err := graph.UnmarshalSignedSnapshot(data)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListSnapshots returns the commit ids that have a snapshot in repo.
func (s *Storage) ListSnapshots(ctx context.Context, repo graph.RepoID) (graph.CommitSet, error) {
	ids := graph.NewCommitSet()
	err := s.view(ctx, func(tx kv.Tx) error {
		entries, err := kv.ScanAll(tx, snapshotsPartition, repoKey(repo))
		if err != nil {
			return storageErr(err)
		}
		for _, entry := range entries {
			id, err := commitFromRepoKey(repo, entry.Key)
			if err != nil {
				return err
			}
			ids.Add(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func pullRequestKey(pr graph.SignedPullRequest) ([]byte, error) {
	h, err := ident.Hash(pr.Value)
	if err != nil {
		return nil, err
	}
	return append(repoKey(pr.Value.Repository), h...), nil
}

// SavePullRequest stores a pull request under its target repository and reports whether it was new.
func (s *Storage) SavePullRequest(ctx context.Context, pr graph.SignedPullRequest) (bool, error) {
	key, err := pullRequestKey(pr)
	if err != nil {
		return false, err
	}
	var saved bool
	err = s.update(ctx, func(tx kv.Tx) error {
		saved = false
		_, err := tx.Get(pullRequestsPartition, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kv.ErrNotFound) {
			return storageErr(err)
		}
		if err := tx.Set(pullRequestsPartition, key, graph.MarshalSignedPullRequest(pr)); err != nil {
			return storageErr(err)
		}
		saved = true
		return registerTx(tx, pr.Value.Repository)
	})
	return saved, err
}

// GetPullRequests returns the pull requests targeting repo.
func (s *Storage) GetPullRequests(ctx context.Context, repo graph.RepoID) ([]graph.SignedPullRequest, error) {
	var prs []graph.SignedPullRequest
	err := s.view(ctx, func(tx kv.Tx) error {
		entries, err := kv.ScanAll(tx, pullRequestsPartition, repoKey(repo))
		if err != nil {
			return storageErr(err)
		}
		for _, entry := range entries {
			pr, err := graph.UnmarshalSignedPullRequest(entry.Value)
			if err != nil {
				return err
			}
			prs = append(prs, pr)
		}
		return nil
	})
	return prs, err
}
