package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/signature"
)

var ErrUnknownServer = errors.New("unknown server")

// Discovery finds the servers that are masters of an owner's repositories.
type Discovery interface {
	Masters(ctx context.Context, owner signature.PublicKey) ([]string, error)
}

// NodeResolver returns the node serving a server id.
type NodeResolver interface {
	Resolve(serverID string) (graph.Node, error)
}

// Static is a Discovery with a fixed owner to masters table.
type Static struct {
	masters map[signature.PublicKey][]string
}

func NewStatic(masters map[signature.PublicKey][]string) *Static {
	m := make(map[signature.PublicKey][]string, len(masters))
	for owner, ids := range masters {
		m[owner] = append([]string(nil), ids...)
	}
	return &Static{masters: m}
}

// ParseStatic builds a Static discovery from multibase encoded owner keys.
func ParseStatic(masters map[string][]string) (*Static, error) {
	m := make(map[signature.PublicKey][]string, len(masters))
	for key, ids := range masters {
		owner, err := signature.ParsePublicKey(key)
		if err != nil {
			return nil, fmt.Errorf("discovery owner %s: %w", key, err)
		}
		m[owner] = ids
	}
	return NewStatic(m), nil
}

func (s *Static) Masters(_ context.Context, owner signature.PublicKey) ([]string, error) {
	ids := append([]string(nil), s.masters[owner]...)
	sort.Strings(ids)
	return ids, nil
}

// Registry is a NodeResolver over nodes registered in process.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]graph.Node
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]graph.Node)}
}

func (r *Registry) Register(serverID string, node graph.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[serverID] = node
}

func (r *Registry) Resolve(serverID string) (graph.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	node, ok := r.nodes[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	return node, nil
}
