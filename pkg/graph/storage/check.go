package storage

import (
	"context"
	"fmt"

	"github.com/treeverse/commitgraph/pkg/graph"
)

// CheckReport lists the problems found in a repository.
type CheckReport struct {
	Heads           int
	MissingHeads    graph.CommitSet
	IncompleteHeads graph.CommitSet
	DominatedHeads  graph.CommitSet
	BadCommits      map[graph.CommitID]error
	Walked          int
}

func (r *CheckReport) OK() bool {
	return len(r.MissingHeads) == 0 && len(r.IncompleteHeads) == 0 &&
		len(r.DominatedHeads) == 0 && len(r.BadCommits) == 0
}

// Check verifies the heads of repo and every commit reachable from them: heads must be stored,
// complete and independent of each other, and commits must match their ids.
func (s *Storage) Check(ctx context.Context, repo graph.RepoID) (*CheckReport, error) {
	heads, err := s.GetHeads(ctx, repo)
	if err != nil {
		return nil, err
	}
	report := &CheckReport{
		Heads:           len(heads),
		MissingHeads:    graph.NewCommitSet(),
		IncompleteHeads: graph.NewCommitSet(),
		DominatedHeads:  graph.NewCommitSet(),
		BadCommits:      make(map[graph.CommitID]error),
	}
	ids := graph.NewCommitSet()
	for id := range heads {
		ids.Add(id)
		found, err := s.HasCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			report.MissingHeads.Add(id)
			continue
		}
		complete, err := s.IsCompleteCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		if !complete {
			report.IncompleteHeads.Add(id)
		}
	}
	independent, err := graph.ExcludeParents(ctx, s, ids)
	if err != nil {
		return nil, err
	}
	for id := range ids {
		if !independent.Has(id) {
			report.DominatedHeads.Add(id)
		}
	}

	it, err := s.Walk(ctx, repo)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.Next() {
		entry := it.Value()
		report.Walked++
		computed, err := graph.ComputeCommitID(entry.Commit)
		if err != nil {
			return nil, err
		}
		if computed != entry.CommitID {
			report.BadCommits[entry.CommitID] = fmt.Errorf("computed %s: %w", computed, graph.ErrHashMismatch)
			continue
		}
		if expected := graph.ExpectedLevel(entry.Commit.Parents); expected != entry.Commit.Level {
			report.BadCommits[entry.CommitID] = fmt.Errorf("level %d, expected %d: %w", entry.Commit.Level, expected, graph.ErrInvalidLevel)
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return report, nil
}
