package graph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/treeverse/commitgraph/pkg/ident"
	"github.com/treeverse/commitgraph/pkg/signature"
)

// Hash is the raw multihash of a commit identity.
type Hash string

// CommitID identifies a commit by its level in the DAG and its content hash.
// The zero value is a sentinel that stands for "no commit".
type CommitID struct {
	Level int64
	Hash  Hash
}

const commitIDLevelSize = 8

func (c CommitID) IsZero() bool {
	return c.Level == 0 && c.Hash == ""
}

// Bytes returns the big endian level followed by the hash, so byte order sorts by level first.
func (c CommitID) Bytes() []byte {
	b := make([]byte, 0, commitIDLevelSize+len(c.Hash))
	b = binary.BigEndian.AppendUint64(b, uint64(c.Level))
	return append(b, c.Hash...)
}

func (c CommitID) String() string {
	if c.IsZero() {
		return ""
	}
	s, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return s
}

// Less orders commit ids by level, then by hash.
func (c CommitID) Less(o CommitID) bool {
	if c.Level != o.Level {
		return c.Level < o.Level
	}
	return c.Hash < o.Hash
}

func CommitIDFromBytes(b []byte) (CommitID, error) {
	if len(b) <= commitIDLevelSize {
		return CommitID{}, fmt.Errorf("%w: length %d", ErrInvalidCommitID, len(b))
	}
	level := int64(binary.BigEndian.Uint64(b[:commitIDLevelSize]))
	if level < 0 {
		return CommitID{}, fmt.Errorf("%w: level %d", ErrInvalidCommitID, level)
	}
	return CommitID{Level: level, Hash: Hash(b[commitIDLevelSize:])}, nil
}

func ParseCommitID(s string) (CommitID, error) {
	_, b, err := multibase.Decode(s)
	if err != nil {
		return CommitID{}, fmt.Errorf("%w: %s", ErrInvalidCommitID, err)
	}
	return CommitIDFromBytes(b)
}

// CommitSet is a set of commit ids.
type CommitSet map[CommitID]struct{}

func NewCommitSet(ids ...CommitID) CommitSet {
	s := make(CommitSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s CommitSet) Add(id CommitID) {
	s[id] = struct{}{}
}

func (s CommitSet) Has(id CommitID) bool {
	_, ok := s[id]
	return ok
}

func (s CommitSet) Remove(id CommitID) {
	delete(s, id)
}

func (s CommitSet) Clone() CommitSet {
	c := make(CommitSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// Union returns a new set holding the members of s and other.
func (s CommitSet) Union(other CommitSet) CommitSet {
	u := s.Clone()
	for id := range other {
		u[id] = struct{}{}
	}
	return u
}

// Sorted returns the members ordered by CommitID.Less.
func (s CommitSet) Sorted() []CommitID {
	ids := make([]CommitID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// RawCommit is an immutable DAG node. Level is the max parent level plus one, or zero for a root.
type RawCommit struct {
	Parents []CommitID
	Level   int64
	Payload []byte
}

func (c *RawCommit) IsRoot() bool {
	return len(c.Parents) == 0
}

// Identity writes the canonical form of the commit. Parents are written sorted so the
// identity does not depend on their order.
func (c *RawCommit) Identity() []byte {
	parents := NewCommitSet(c.Parents...).Sorted()
	w := ident.NewAddressWriter()
	w.MarshalString("commit:v1")
	w.MarshalInt64(c.Level)
	w.MarshalInt64(int64(len(parents)))
	for _, p := range parents {
		w.MarshalBytes(p.Bytes())
	}
	w.MarshalBytes(c.Payload)
	return w.Identity()
}

// ExpectedLevel computes the level a commit with the given parents must have.
func ExpectedLevel(parents []CommitID) int64 {
	if len(parents) == 0 {
		return 0
	}
	var level int64
	for _, p := range parents {
		if p.Level > level {
			level = p.Level
		}
	}
	return level + 1
}

// ComputeCommitID hashes the commit identity. It does not check the level.
func ComputeCommitID(c *RawCommit) (CommitID, error) {
	h, err := ident.Hash(c)
	if err != nil {
		return CommitID{}, err
	}
	return CommitID{Level: c.Level, Hash: Hash(h)}, nil
}

// NewCommit builds a commit over parents and computes its id.
func NewCommit(parents []CommitID, payload []byte) (CommitID, *RawCommit, error) {
	var sorted []CommitID
	if len(parents) > 0 {
		sorted = NewCommitSet(parents...).Sorted()
	}
	commit := &RawCommit{
		Parents: sorted,
		Level:   ExpectedLevel(parents),
		Payload: payload,
	}
	id, err := ComputeCommitID(commit)
	if err != nil {
		return CommitID{}, nil, err
	}
	return id, commit, nil
}

// RepoID identifies a repository by owner and name.
type RepoID struct {
	Owner signature.PublicKey
	Name  string
}

func (r RepoID) String() string {
	return r.Owner.String() + "/" + r.Name
}

func (r RepoID) Identity() []byte {
	w := ident.NewAddressWriter()
	w.MarshalBytes(r.Owner[:])
	w.MarshalString(r.Name)
	return w.Identity()
}

func (r RepoID) Validate() error {
	if r.Owner.IsZero() {
		return fmt.Errorf("%w: missing owner", ErrInvalidRepoID)
	}
	if r.Name == "" || strings.Contains(r.Name, "/") {
		return fmt.Errorf("%w: name %q", ErrInvalidRepoID, r.Name)
	}
	return nil
}

func ParseRepoID(s string) (RepoID, error) {
	owner, name, ok := strings.Cut(s, "/")
	if !ok {
		return RepoID{}, fmt.Errorf("%w: %q", ErrInvalidRepoID, s)
	}
	pk, err := signature.ParsePublicKey(owner)
	if err != nil {
		return RepoID{}, fmt.Errorf("%w: %s", ErrInvalidRepoID, err)
	}
	repo := RepoID{Owner: pk, Name: name}
	return repo, repo.Validate()
}

// Signable values carry the key expected to sign them.
type Signable interface {
	ident.Identifiable
	SignerKey() signature.PublicKey
}

// Signed pairs a value with the signature of its identity.
type Signed[T Signable] struct {
	Value     T
	Signature []byte
}

func Sign[T Signable](value T, key *signature.PrivateKey) Signed[T] {
	return Signed[T]{Value: value, Signature: key.Sign(value.Identity())}
}

// Verify checks the signature against the value's signer key.
func (s Signed[T]) Verify() bool {
	return s.Value.SignerKey().Verify(s.Value.Identity(), s.Signature)
}

func (s Signed[T]) Identity() []byte {
	w := ident.NewAddressWriter()
	w.MarshalIdentifiable(s.Value)
	w.MarshalBytes(s.Signature)
	return w.Identity()
}

func (s Signed[T]) Equal(o Signed[T]) bool {
	return bytes.Equal(s.Identity(), o.Identity())
}

// RawCommitHead claims that CommitID is a tip of the repository. Timestamp is in unix milliseconds.
type RawCommitHead struct {
	RepositoryID RepoID
	CommitID     CommitID
	Timestamp    int64
}

func (h RawCommitHead) SignerKey() signature.PublicKey {
	return h.RepositoryID.Owner
}

func (h RawCommitHead) Identity() []byte {
	w := ident.NewAddressWriter()
	w.MarshalString("head:v1")
	w.MarshalIdentifiable(h.RepositoryID)
	w.MarshalBytes(h.CommitID.Bytes())
	w.MarshalInt64(h.Timestamp)
	return w.Identity()
}

// RawSnapshot is a compacted state of the repository at CommitID.
type RawSnapshot struct {
	RepositoryID RepoID
	CommitID     CommitID
	Payload      []byte
}

func (s RawSnapshot) SignerKey() signature.PublicKey {
	return s.RepositoryID.Owner
}

func (s RawSnapshot) Identity() []byte {
	w := ident.NewAddressWriter()
	w.MarshalString("snapshot:v1")
	w.MarshalIdentifiable(s.RepositoryID)
	w.MarshalBytes(s.CommitID.Bytes())
	w.MarshalBytes(s.Payload)
	return w.Identity()
}

// RawPullRequest asks the owner of Repository to merge Fork. It is signed by the fork owner.
type RawPullRequest struct {
	Repository RepoID
	Fork       RepoID
}

func (p RawPullRequest) SignerKey() signature.PublicKey {
	return p.Fork.Owner
}

func (p RawPullRequest) Identity() []byte {
	w := ident.NewAddressWriter()
	w.MarshalString("pull_request:v1")
	w.MarshalIdentifiable(p.Repository)
	w.MarshalIdentifiable(p.Fork)
	return w.Identity()
}

type (
	SignedHead        = Signed[RawCommitHead]
	SignedSnapshot    = Signed[RawSnapshot]
	SignedPullRequest = Signed[RawPullRequest]
)

// NewSignedHead signs a head of repo at id with the current time.
func NewSignedHead(repo RepoID, id CommitID, key *signature.PrivateKey) SignedHead {
	return Sign(RawCommitHead{
		RepositoryID: repo,
		CommitID:     id,
		Timestamp:    time.Now().UnixMilli(),
	}, key)
}

// CommitEntry is the unit of commit transfer. Head is set when the commit is a head of the sender.
type CommitEntry struct {
	CommitID CommitID
	Commit   *RawCommit
	Head     *SignedHead
}

// HeadsInfo describes what a node holds: Existing heads are complete, Required heads are
// known but still miss ancestors.
type HeadsInfo struct {
	Existing CommitSet
	Required CommitSet
}

// HeadsSet returns the commit ids of heads.
func HeadsSet(heads []SignedHead) CommitSet {
	s := make(CommitSet, len(heads))
	for _, h := range heads {
		s[h.Value.CommitID] = struct{}{}
	}
	return s
}

// SortHeads orders heads by commit id.
func SortHeads(heads []SignedHead) {
	sort.Slice(heads, func(i, j int) bool {
		return heads[i].Value.CommitID.Less(heads[j].Value.CommitID)
	})
}
