package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/mitchellh/go-homedir"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
	"github.com/treeverse/commitgraph/pkg/logging"
)

const (
	DriverName           = "local"
	DefaultDirectoryPath = "~/commitgraph/metadata"
	DefaultPrefetchSize  = 256
)

var (
	driverLock    = &sync.Mutex{}
	connectionMap = make(map[string]*Store)
)

type Driver struct{}

func normalizeDBParams(p *kvparams.Local) error {
	if p.InMemory {
		p.Path = ""
	} else {
		if len(p.Path) == 0 {
			p.Path = DefaultDirectoryPath
		}
		path, err := homedir.Expand(p.Path)
		if err != nil {
			return fmt.Errorf("%w: path %s: %s", kv.ErrDriverConfiguration, p.Path, err)
		}
		p.Path = path
	}
	if p.PrefetchSize <= 0 {
		p.PrefetchSize = DefaultPrefetchSize
	}
	return nil
}

func (d *Driver) Open(ctx context.Context, kvParams kvparams.Config) (kv.Store, error) {
	if kvParams.Local == nil {
		return nil, fmt.Errorf("missing %s settings: %w", DriverName, kv.ErrDriverConfiguration)
	}
	params := *kvParams.Local
	if err := normalizeDBParams(&params); err != nil {
		return nil, err
	}
	if params.InMemory {
		return open(ctx, params)
	}

	driverLock.Lock()
	defer driverLock.Unlock()
	if connection, ok := connectionMap[params.Path]; ok {
		connection.refCount++
		return connection, nil
	}
	connection, err := open(ctx, params)
	if err != nil {
		return nil, err
	}
	connectionMap[params.Path] = connection
	return connection, nil
}

func open(ctx context.Context, params kvparams.Local) (*Store, error) {
	logger := logging.Dummy()
	if params.EnableLogging {
		logger = logging.FromContext(ctx).WithField("store", DriverName)
	}
	opts := badger.DefaultOptions(params.Path).
		WithInMemory(params.InMemory).
		WithSyncWrites(params.SyncWrites).
		WithLogger(&BadgerLogger{logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrConnectFailed, err)
	}
	return &Store{
		db:           db,
		logger:       logger,
		prefetchSize: params.PrefetchSize,
		path:         params.Path,
		inMemory:     params.InMemory,
		refCount:     1,
	}, nil
}

//nolint:gochecknoinits
func init() {
	kv.Register(DriverName, &Driver{})
}
