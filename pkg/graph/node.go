package graph

//go:generate go run github.com/golang/mock/mockgen@v1.6.0 -package=mock -destination=mock/graph.go github.com/treeverse/commitgraph/pkg/graph Node

import (
	"context"

	"github.com/treeverse/commitgraph/pkg/signature"
)

// Node is the commit graph protocol surface. A local node, a validating decorator and a
// remote peer all implement it.
type Node interface {
	// List returns the names of the repositories of owner.
	List(ctx context.Context, owner signature.PublicKey) ([]string, error)

	// Save stores commits. Commits already stored are ignored.
	Save(ctx context.Context, repo RepoID, commits map[CommitID]*RawCommit) error

	// SaveHeads merges heads into the head set of repo.
	SaveHeads(ctx context.Context, repo RepoID, heads []SignedHead) error

	// LoadCommit returns a commit or ErrCommitNotFound.
	LoadCommit(ctx context.Context, repo RepoID, id CommitID) (*RawCommit, error)

	// Download streams, highest level first, the ancestors of required that are not
	// ancestors of existing.
	Download(ctx context.Context, repo RepoID, required, existing CommitSet) (CommitEntryIterator, error)

	// Upload stores the streamed commits and then merges heads.
	Upload(ctx context.Context, repo RepoID, heads []SignedHead, entries CommitEntryIterator) error

	SaveSnapshot(ctx context.Context, snapshot SignedSnapshot) error
	LoadSnapshot(ctx context.Context, repo RepoID, id CommitID) (*SignedSnapshot, error)
	ListSnapshots(ctx context.Context, repo RepoID) (CommitSet, error)

	GetHeads(ctx context.Context, repo RepoID) ([]SignedHead, error)

	// PollHeads returns the heads once they differ from known. It returns the current heads
	// when the poll timeout passes first, and an error when ctx is done.
	PollHeads(ctx context.Context, repo RepoID, known CommitSet) ([]SignedHead, error)

	SendPullRequest(ctx context.Context, pr SignedPullRequest) error
	GetPullRequests(ctx context.Context, repo RepoID) ([]SignedPullRequest, error)

	// GetHeadsInfo splits the heads of repo into complete and incomplete ones.
	GetHeadsInfo(ctx context.Context, repo RepoID) (*HeadsInfo, error)
}
