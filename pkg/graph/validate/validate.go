package validate

import (
	"fmt"

	"github.com/treeverse/commitgraph/pkg/graph"
)

type ValidateFunc func(v interface{}) error

type ValidateArg struct {
	Name  string
	Value interface{}
	Fn    ValidateFunc
}

func Validate(args []ValidateArg) error {
	for _, arg := range args {
		err := arg.Fn(arg.Value)
		if err != nil {
			return fmt.Errorf("argument %s: %w", arg.Name, err)
		}
	}
	return nil
}

func ValidateRepoID(v interface{}) error {
	repo, ok := v.(graph.RepoID)
	if !ok {
		panic(fmt.Errorf("%w: not a repository id", graph.ErrValidation))
	}
	return repo.Validate()
}

func ValidateCommitID(v interface{}) error {
	id, ok := v.(graph.CommitID)
	if !ok {
		panic(fmt.Errorf("%w: not a commit id", graph.ErrValidation))
	}
	if id.IsZero() || id.Level < 0 {
		return fmt.Errorf("%w: %s", graph.ErrInvalidCommitID, id)
	}
	return nil
}

func ValidateCommitSet(v interface{}) error {
	set, ok := v.(graph.CommitSet)
	if !ok {
		panic(fmt.Errorf("%w: not a commit set", graph.ErrValidation))
	}
	for id := range set {
		if err := ValidateCommitID(id); err != nil {
			return err
		}
	}
	return nil
}

// Commit checks that commit hashes to id, that its parents are listed in canonical order
// and that its level follows them.
func Commit(id graph.CommitID, commit *graph.RawCommit) error {
	if commit == nil {
		return fmt.Errorf("%s: %w: missing commit", id, graph.ErrValidation)
	}
	// parents are sorted and unique, so each id has a single stored form
	for i, p := range commit.Parents {
		if err := ValidateCommitID(p); err != nil {
			return fmt.Errorf("%s: parent: %w", id, err)
		}
		if i > 0 && !commit.Parents[i-1].Less(p) {
			return fmt.Errorf("%s: parents not sorted or repeated at %s: %w", id, p, graph.ErrInvalidCommitID)
		}
	}
	if expected := graph.ExpectedLevel(commit.Parents); commit.Level != expected {
		return fmt.Errorf("%s: level %d, expected %d: %w", id, commit.Level, expected, graph.ErrInvalidLevel)
	}
	computed, err := graph.ComputeCommitID(commit)
	if err != nil {
		return err
	}
	if computed != id {
		return fmt.Errorf("%s: computed %s: %w", id, computed, graph.ErrHashMismatch)
	}
	return nil
}

func Entry(entry *graph.CommitEntry) error {
	return Commit(entry.CommitID, entry.Commit)
}

// Head checks that head belongs to repo and is signed by the repository owner.
func Head(repo graph.RepoID, head graph.SignedHead) error {
	if head.Value.RepositoryID != repo {
		return fmt.Errorf("head of %s in %s: %w", head.Value.RepositoryID, repo, graph.ErrOwnerMismatch)
	}
	if !head.Verify() {
		return fmt.Errorf("head %s of %s: %w", head.Value.CommitID, repo, graph.ErrInvalidSignature)
	}
	return nil
}

func Heads(repo graph.RepoID, heads []graph.SignedHead) error {
	for _, head := range heads {
		if err := Head(repo, head); err != nil {
			return err
		}
	}
	return nil
}

func Snapshot(snapshot graph.SignedSnapshot) error {
	if err := snapshot.Value.RepositoryID.Validate(); err != nil {
		return err
	}
	if !snapshot.Verify() {
		return fmt.Errorf("snapshot %s of %s: %w", snapshot.Value.CommitID, snapshot.Value.RepositoryID, graph.ErrInvalidSignature)
	}
	return nil
}

// PullRequest checks both repositories and that the fork owner signed the request.
func PullRequest(pr graph.SignedPullRequest) error {
	if err := pr.Value.Repository.Validate(); err != nil {
		return err
	}
	if err := pr.Value.Fork.Validate(); err != nil {
		return err
	}
	if !pr.Verify() {
		return fmt.Errorf("pull request from %s to %s: %w", pr.Value.Fork, pr.Value.Repository, graph.ErrInvalidSignature)
	}
	return nil
}
