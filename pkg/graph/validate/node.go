package validate

import (
	"context"
	"fmt"

	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/signature"
)

// Node wraps a graph.Node and rejects invalid commits and signed values before they reach it.
// Results read from the wrapped node are checked the same way.
type Node struct {
	next graph.Node
}

var _ graph.Node = (*Node)(nil)

func New(next graph.Node) *Node {
	return &Node{next: next}
}

func (n *Node) List(ctx context.Context, owner signature.PublicKey) ([]string, error) {
	return n.next.List(ctx, owner)
}

func (n *Node) Save(ctx context.Context, repo graph.RepoID, commits map[graph.CommitID]*graph.RawCommit) error {
	if err := ValidateRepoID(repo); err != nil {
		return err
	}
	for id, commit := range commits {
		if err := Commit(id, commit); err != nil {
			return err
		}
	}
	return n.next.Save(ctx, repo, commits)
}

func (n *Node) SaveHeads(ctx context.Context, repo graph.RepoID, heads []graph.SignedHead) error {
	if err := ValidateRepoID(repo); err != nil {
		return err
	}
	if err := Heads(repo, heads); err != nil {
		return err
	}
	return n.next.SaveHeads(ctx, repo, heads)
}

func (n *Node) LoadCommit(ctx context.Context, repo graph.RepoID, id graph.CommitID) (*graph.RawCommit, error) {
	if err := Validate([]ValidateArg{
		{Name: "repository", Value: repo, Fn: ValidateRepoID},
		{Name: "commit_id", Value: id, Fn: ValidateCommitID},
	}); err != nil {
		return nil, err
	}
	commit, err := n.next.LoadCommit(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if err := Commit(id, commit); err != nil {
		return nil, err
	}
	return commit, nil
}

// checkEntry validates a streamed entry together with the head it carries.
func checkEntry(repo graph.RepoID) graph.FilterFunc {
	return func(entry *graph.CommitEntry) error {
		if err := Entry(entry); err != nil {
			return err
		}
		if entry.Head == nil {
			return nil
		}
		if entry.Head.Value.CommitID != entry.CommitID {
			return fmt.Errorf("head %s on entry %s: %w", entry.Head.Value.CommitID, entry.CommitID, graph.ErrValidation)
		}
		return Head(repo, *entry.Head)
	}
}

func (n *Node) Download(ctx context.Context, repo graph.RepoID, required, existing graph.CommitSet) (graph.CommitEntryIterator, error) {
	if err := Validate([]ValidateArg{
		{Name: "repository", Value: repo, Fn: ValidateRepoID},
		{Name: "required", Value: required, Fn: ValidateCommitSet},
		{Name: "existing", Value: existing, Fn: ValidateCommitSet},
	}); err != nil {
		return nil, err
	}
	it, err := n.next.Download(ctx, repo, required, existing)
	if err != nil {
		return nil, err
	}
	return graph.NewCheckedIterator(it, checkEntry(repo)), nil
}

// Upload checks heads up front and entries as they stream. A rejected entry ends the stream
// with its error, and the entries before it are forwarded.
func (n *Node) Upload(ctx context.Context, repo graph.RepoID, heads []graph.SignedHead, entries graph.CommitEntryIterator) error {
	if err := ValidateRepoID(repo); err != nil {
		return err
	}
	if err := Heads(repo, heads); err != nil {
		return err
	}
	return n.next.Upload(ctx, repo, heads, graph.NewCheckedIterator(entries, checkEntry(repo)))
}

func (n *Node) SaveSnapshot(ctx context.Context, snapshot graph.SignedSnapshot) error {
	if err := Snapshot(snapshot); err != nil {
		return err
	}
	return n.next.SaveSnapshot(ctx, snapshot)
}

func (n *Node) LoadSnapshot(ctx context.Context, repo graph.RepoID, id graph.CommitID) (*graph.SignedSnapshot, error) {
	snapshot, err := n.next.LoadSnapshot(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	if snapshot.Value.RepositoryID != repo || snapshot.Value.CommitID != id {
		return nil, fmt.Errorf("snapshot %s of %s: %w", snapshot.Value.CommitID, snapshot.Value.RepositoryID, graph.ErrOwnerMismatch)
	}
	if err := Snapshot(*snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (n *Node) ListSnapshots(ctx context.Context, repo graph.RepoID) (graph.CommitSet, error) {
	return n.next.ListSnapshots(ctx, repo)
}

func (n *Node) GetHeads(ctx context.Context, repo graph.RepoID) ([]graph.SignedHead, error) {
	heads, err := n.next.GetHeads(ctx, repo)
	if err != nil {
		return nil, err
	}
	if err := Heads(repo, heads); err != nil {
		return nil, err
	}
	return heads, nil
}

func (n *Node) PollHeads(ctx context.Context, repo graph.RepoID, known graph.CommitSet) ([]graph.SignedHead, error) {
	heads, err := n.next.PollHeads(ctx, repo, known)
	if err != nil {
		return nil, err
	}
	if err := Heads(repo, heads); err != nil {
		return nil, err
	}
	return heads, nil
}

func (n *Node) SendPullRequest(ctx context.Context, pr graph.SignedPullRequest) error {
	if err := PullRequest(pr); err != nil {
		return err
	}
	return n.next.SendPullRequest(ctx, pr)
}

func (n *Node) GetPullRequests(ctx context.Context, repo graph.RepoID) ([]graph.SignedPullRequest, error) {
	prs, err := n.next.GetPullRequests(ctx, repo)
	if err != nil {
		return nil, err
	}
	for _, pr := range prs {
		if pr.Value.Repository != repo {
			return nil, fmt.Errorf("pull request for %s in %s: %w", pr.Value.Repository, repo, graph.ErrOwnerMismatch)
		}
		if err := PullRequest(pr); err != nil {
			return nil, err
		}
	}
	return prs, nil
}

func (n *Node) GetHeadsInfo(ctx context.Context, repo graph.RepoID) (*graph.HeadsInfo, error) {
	return n.next.GetHeadsInfo(ctx, repo)
}
