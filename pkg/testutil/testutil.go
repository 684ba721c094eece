package testutil

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/signature"
)

func MustDo(t testing.TB, what string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s, expected no error, got err=%s", what, err)
	}
}

// SetupLogging silences logging unless tests run verbose. Call it from TestMain after flag.Parse.
func SetupLogging() {
	if !testing.Verbose() {
		logging.SetLevel("panic")
	}
}

// NewKeyPair derives a deterministic key pair from a single seed byte.
func NewKeyPair(t testing.TB, seed byte) *signature.KeyPair {
	t.Helper()
	kp, err := signature.KeyPairFromSeed(bytes.Repeat([]byte{seed}, 32))
	MustDo(t, "key pair from seed", err)
	return kp
}

// DAG builds commit graphs by name for tests. It also serves as an in memory CommitLoader.
type DAG struct {
	t       testing.TB
	ids     map[string]graph.CommitID
	names   map[graph.CommitID]string
	commits map[graph.CommitID]*graph.RawCommit
	order   []graph.CommitID
}

func NewDAG(t testing.TB) *DAG {
	return &DAG{
		t:       t,
		ids:     make(map[string]graph.CommitID),
		names:   make(map[graph.CommitID]string),
		commits: make(map[graph.CommitID]*graph.RawCommit),
	}
}

// Add creates commit name over the named parents. Parents must be added first.
func (d *DAG) Add(name string, parents ...string) graph.CommitID {
	d.t.Helper()
	if _, ok := d.ids[name]; ok {
		d.t.Fatalf("commit %s already added", name)
	}
	parentIDs := make([]graph.CommitID, 0, len(parents))
	for _, p := range parents {
		parentIDs = append(parentIDs, d.ID(p))
	}
	id, commit, err := graph.NewCommit(parentIDs, []byte(name))
	MustDo(d.t, "new commit "+name, err)
	d.ids[name] = id
	d.names[id] = name
	d.commits[id] = commit
	d.order = append(d.order, id)
	return id
}

func (d *DAG) ID(name string) graph.CommitID {
	d.t.Helper()
	id, ok := d.ids[name]
	if !ok {
		d.t.Fatalf("unknown commit %s", name)
	}
	return id
}

func (d *DAG) Name(id graph.CommitID) string {
	if name, ok := d.names[id]; ok {
		return name
	}
	return id.String()
}

func (d *DAG) Commit(name string) *graph.RawCommit {
	d.t.Helper()
	return d.commits[d.ID(name)]
}

// Set returns the ids of the named commits.
func (d *DAG) Set(names ...string) graph.CommitSet {
	d.t.Helper()
	s := graph.NewCommitSet()
	for _, name := range names {
		s.Add(d.ID(name))
	}
	return s
}

// Names maps a set of ids back to sorted commit names.
func (d *DAG) Names(s graph.CommitSet) []string {
	names := make([]string, 0, len(s))
	for _, id := range s.Sorted() {
		names = append(names, d.Name(id))
	}
	return names
}

// IDs returns all commit ids in the order they were added, parents before children.
func (d *DAG) IDs() []graph.CommitID {
	return append([]graph.CommitID(nil), d.order...)
}

func (d *DAG) Commits() map[graph.CommitID]*graph.RawCommit {
	m := make(map[graph.CommitID]*graph.RawCommit, len(d.commits))
	for id, c := range d.commits {
		m[id] = c
	}
	return m
}

func (d *DAG) LoadCommit(_ context.Context, id graph.CommitID) (*graph.RawCommit, error) {
	c, ok := d.commits[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, graph.ErrCommitNotFound)
	}
	return c, nil
}

// Ancestors returns every transitive parent of id.
func (d *DAG) Ancestors(id graph.CommitID) graph.CommitSet {
	result := graph.NewCommitSet()
	stack := []graph.CommitID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range d.commits[cur].Parents {
			if !result.Has(p) {
				result.Add(p)
				stack = append(stack, p)
			}
		}
	}
	return result
}

// RandomDAG builds size commits named c0..cN, each with up to maxParents random earlier parents.
func RandomDAG(t testing.TB, rnd *rand.Rand, size, maxParents int) *DAG {
	t.Helper()
	d := NewDAG(t)
	for i := 0; i < size; i++ {
		var parents []string
		if i > 0 {
			n := rnd.Intn(maxParents + 1)
			if n == 0 && rnd.Intn(4) > 0 {
				n = 1
			}
			seen := make(map[int]bool)
			for j := 0; j < n; j++ {
				p := rnd.Intn(i)
				if !seen[p] {
					seen[p] = true
					parents = append(parents, fmt.Sprintf("c%d", p))
				}
			}
		}
		d.Add(fmt.Sprintf("c%d", i), parents...)
	}
	return d
}
