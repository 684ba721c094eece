package namespace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/treeverse/commitgraph/pkg/cache"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/graph/discovery"
	"github.com/treeverse/commitgraph/pkg/graph/storage"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/retry"
	"github.com/treeverse/commitgraph/pkg/signature"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultLatencyMargin = 10 * time.Second
	DefaultPollTimeout   = 30 * time.Second
	DefaultMaxFanout     = 3
)

type Config struct {
	// ServerID is the id discovery uses for this server.
	ServerID string
	// LatencyMargin is how long master lists and update results stay fresh.
	LatencyMargin time.Duration
	// PollTimeout bounds a single PollHeads wait.
	PollTimeout time.Duration
	// MaxFanout bounds the masters contacted in parallel.
	MaxFanout int
	Retry     retry.Policy
}

// Master is a peer server authoritative for a namespace.
type Master struct {
	ServerID string
	Node     graph.Node
}

// Namespace holds the sync state of the repositories of one owner: the cached master list
// and a RepositoryEntry per repository.
type Namespace struct {
	owner     signature.PublicKey
	cfg       Config
	storage   *storage.Storage
	discovery discovery.Discovery
	resolver  discovery.NodeResolver
	discover  *cache.OnlyOne[[]Master]

	mu             sync.Mutex
	masters        []Master
	isMaster       bool
	mastersUpdated time.Time
	repositories   map[string]*RepositoryEntry
}

func New(owner signature.PublicKey, st *storage.Storage, d discovery.Discovery, resolver discovery.NodeResolver, cfg Config) *Namespace {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.MaxFanout <= 0 {
		cfg.MaxFanout = DefaultMaxFanout
	}
	return &Namespace{
		owner:        owner,
		cfg:          cfg,
		storage:      st,
		discovery:    d,
		resolver:     resolver,
		discover:     cache.NewOnlyOne[[]Master](),
		repositories: make(map[string]*RepositoryEntry),
	}
}

func (n *Namespace) Owner() signature.PublicKey {
	return n.owner
}

func (n *Namespace) fresh(t time.Time) bool {
	return !t.IsZero() && time.Since(t) < n.cfg.LatencyMargin
}

// Masters returns the masters of the namespace other than this server. The list is
// rediscovered once it is older than the latency margin.
func (n *Namespace) Masters(ctx context.Context) ([]Master, error) {
	n.mu.Lock()
	if n.fresh(n.mastersUpdated) {
		masters := n.masters
		n.mu.Unlock()
		return masters, nil
	}
	n.mu.Unlock()
	return n.discover.Compute(ctx, "masters", n.discoverMasters)
}

// discoverMasters looks the owner up in discovery. An owner nobody claims is served by
// this server alone.
func (n *Namespace) discoverMasters(ctx context.Context) ([]Master, error) {
	log := logging.FromContext(ctx).WithField(logging.OwnerFieldKey, n.owner.String())
	ids, err := n.discovery.Masters(ctx, n.owner)
	if err != nil {
		return nil, fmt.Errorf("discover masters: %w", err)
	}
	isMaster := len(ids) == 0
	masters := make([]Master, 0, len(ids))
	for _, id := range ids {
		if id == n.cfg.ServerID {
			isMaster = true
			continue
		}
		node, err := n.resolver.Resolve(id)
		if err != nil {
			log.WithError(err).WithField(logging.ServerIDFieldKey, id).Warn("Failed to resolve master")
			continue
		}
		masters = append(masters, Master{ServerID: id, Node: node})
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.mastersUpdated.IsZero() && n.isMaster != isMaster {
		log.WithField("master", isMaster).Info("Master role changed")
	}
	n.masters = masters
	n.isMaster = isMaster
	n.mastersUpdated = time.Now()
	return masters, nil
}

// IsMaster reports whether this server is authoritative for the namespace.
func (n *Namespace) IsMaster(ctx context.Context) (bool, error) {
	if _, err := n.Masters(ctx); err != nil {
		return false, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.isMaster, nil
}

// Repository returns the entry of the named repository, creating it on first use.
func (n *Namespace) Repository(name string) *RepositoryEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.repositories[name]
	if !ok {
		entry = newRepositoryEntry(n, graph.RepoID{Owner: n.owner, Name: name})
		n.repositories[name] = entry
	}
	return entry
}

// Repositories returns the entries created so far in name order.
func (n *Namespace) Repositories() []*RepositoryEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	entries := make([]*RepositoryEntry, 0, len(n.repositories))
	for _, entry := range n.repositories {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].repo.Name < entries[j].repo.Name })
	return entries
}

func retryable(err error) bool {
	return !errors.Is(err, graph.ErrValidation)
}

// ForEachMaster runs fn against every master, each under the retry policy. Failures are
// logged and do not stop the other masters. It fails only when every master failed, or
// when no master could be resolved for a namespace this server does not serve.
func (n *Namespace) ForEachMaster(ctx context.Context, op string, fn func(ctx context.Context, m Master) error) error {
	masters, err := n.Masters(ctx)
	if err != nil {
		return err
	}
	if len(masters) == 0 {
		isMaster, err := n.IsMaster(ctx)
		if err != nil {
			return err
		}
		if !isMaster {
			return graph.ErrNoMasters
		}
		return nil
	}
	var (
		mu        sync.Mutex
		merr      *multierror.Error
		successes int
		g         errgroup.Group
	)
	g.SetLimit(n.cfg.MaxFanout)
	for _, m := range masters {
		g.Go(func() error {
			err := retry.Do(ctx, n.cfg.Retry.BackOff(ctx), func() error {
				return fn(ctx, m)
			}, retryable)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logging.FromContext(ctx).
					WithError(err).
					WithFields(logging.Fields{
						logging.ServerIDFieldKey:  m.ServerID,
						logging.OperationFieldKey: op,
					}).
					Warn("Master sync failed")
				merr = multierror.Append(merr, fmt.Errorf("%s: %w", m.ServerID, err))
				return nil
			}
			successes++
			return nil
		})
	}
	_ = g.Wait()
	if successes == 0 {
		return merr.ErrorOrNil()
	}
	return nil
}
