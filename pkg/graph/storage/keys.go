package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/treeverse/commitgraph/pkg/graph"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	commitsPartition      = []byte("commits")
	headsPartition        = []byte("heads")
	snapshotsPartition    = []byte("snapshots")
	pullRequestsPartition = []byte("pull_requests")
	incompletePartition   = []byte("incomplete")
	childrenPartition     = []byte("children")
	pendingPartition      = []byte("pending")
	repositoriesPartition = []byte("repositories")
)

// edge flags on children entries
const (
	edgeResolved byte = 0
	edgeCounted  byte = 1
)

var presentValue = []byte{1}

// commitKey is a length prefixed commit id, so it can prefix other keys.
func commitKey(id graph.CommitID) []byte {
	b := id.Bytes()
	k := binary.AppendUvarint(make([]byte, 0, len(b)+binary.MaxVarintLen16), uint64(len(b)))
	return append(k, b...)
}

func childKey(parent, child graph.CommitID) []byte {
	return append(commitKey(parent), child.Bytes()...)
}

func childFromKey(parent graph.CommitID, key []byte) (graph.CommitID, error) {
	prefix := len(commitKey(parent))
	if len(key) <= prefix {
		return graph.CommitID{}, fmt.Errorf("children key too short: %w", graph.ErrDecode)
	}
	return graph.CommitIDFromBytes(key[prefix:])
}

// ownerKey and repoKey prefix per-repository keys. Repository names never contain a slash.
func ownerKey(repo graph.RepoID) []byte {
	return append([]byte(nil), repo.Owner[:]...)
}

func repoKey(repo graph.RepoID) []byte {
	k := ownerKey(repo)
	k = append(k, repo.Name...)
	return append(k, '/')
}

func repoCommitKey(repo graph.RepoID, id graph.CommitID) []byte {
	return append(repoKey(repo), id.Bytes()...)
}

func commitFromRepoKey(repo graph.RepoID, key []byte) (graph.CommitID, error) {
	prefix := len(repoKey(repo))
	if len(key) <= prefix {
		return graph.CommitID{}, fmt.Errorf("repository key too short: %w", graph.ErrDecode)
	}
	return graph.CommitIDFromBytes(key[prefix:])
}

func encodeCounter(n uint64) []byte {
	return protowire.AppendVarint(nil, n)
}

func decodeCounter(b []byte) (uint64, error) {
	n, read := protowire.ConsumeVarint(b)
	if read < 0 {
		return 0, fmt.Errorf("incomplete counter: %s: %w", protowire.ParseError(read), graph.ErrDecode)
	}
	return n, nil
}
