package pebble

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/mitchellh/go-homedir"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
)

const (
	DriverName           = "pebble"
	DefaultDirectoryPath = "~/commitgraph/pebble"
	DefaultCacheSize     = 64 << 20
)

type Driver struct{}

// Store serializes update transactions over an indexed batch. Views read from a snapshot.
type Store struct {
	db      *pebble.DB
	writeMu sync.Mutex
}

//nolint:gochecknoinits
func init() {
	kv.Register(DriverName, &Driver{})
}

func (d *Driver) Open(_ context.Context, kvParams kvparams.Config) (kv.Store, error) {
	path := DefaultDirectoryPath
	cacheSize := int64(DefaultCacheSize)
	if kvParams.Pebble != nil {
		if kvParams.Pebble.Path != "" {
			path = kvParams.Pebble.Path
		}
		if kvParams.Pebble.CacheSizeBytes > 0 {
			cacheSize = kvParams.Pebble.CacheSizeBytes
		}
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("%w: path %s: %s", kv.ErrDriverConfiguration, path, err)
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()
	db, err := pebble.Open(path, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", kv.ErrConnectFailed, err)
	}
	return &Store{db: db}, nil
}

func composeKey(partitionKey, key []byte) []byte {
	k := make([]byte, 0, len(partitionKey)+len(kv.PathDelimiter)+len(key))
	k = append(k, partitionKey...)
	k = append(k, kv.PathDelimiter...)
	return append(k, key...)
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) *pebble.Iterator
}

func (s *Store) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.db.NewSnapshot()
	defer func() { _ = snap.Close() }()
	return fn(&tx{r: snap})
}

func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	batch := s.db.NewIndexedBatch()
	defer func() { _ = batch.Close() }()
	if err := fn(&tx{r: batch, batch: batch}); err != nil {
		return err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return nil
}

func (s *Store) Close() {
	_ = s.db.Close()
}

type tx struct {
	r     reader
	batch *pebble.Batch
}

func (t *tx) Get(partitionKey, key []byte) ([]byte, error) {
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return nil, err
	}
	val, closer, err := t.r.Get(composeKey(partitionKey, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	defer func() { _ = closer.Close() }()
	return bytes.Clone(val), nil
}

func (t *tx) Set(partitionKey, key, value []byte) error {
	if t.batch == nil {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	if value == nil {
		return kv.ErrMissingValue
	}
	if err := t.batch.Set(composeKey(partitionKey, key), value, nil); err != nil {
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return nil
}

func (t *tx) Delete(partitionKey, key []byte) error {
	if t.batch == nil {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	if err := t.batch.Delete(composeKey(partitionKey, key), nil); err != nil {
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return nil
}

func (t *tx) Scan(partitionKey, prefix []byte) (kv.EntriesIterator, error) {
	if len(partitionKey) == 0 {
		return nil, kv.ErrMissingPartitionKey
	}
	lower := composeKey(partitionKey, prefix)
	it := t.r.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: kv.PrefixUpperBound(lower),
	})
	return &EntriesIterator{
		iter:         it,
		partitionKey: partitionKey,
		strip:        len(partitionKey) + len(kv.PathDelimiter),
	}, nil
}

type EntriesIterator struct {
	iter         *pebble.Iterator
	partitionKey []byte
	strip        int
	entry        *kv.Entry
	err          error
	started      bool
}

func (e *EntriesIterator) Next() bool {
	if e.err != nil || e.iter == nil {
		e.entry = nil
		return false
	}
	var valid bool
	if e.started {
		valid = e.iter.Next()
	} else {
		valid = e.iter.First()
		e.started = true
	}
	if !valid {
		e.err = e.iter.Error()
		e.entry = nil
		return false
	}
	e.entry = &kv.Entry{
		PartitionKey: e.partitionKey,
		Key:          bytes.Clone(e.iter.Key()[e.strip:]),
		Value:        bytes.Clone(e.iter.Value()),
	}
	return true
}

func (e *EntriesIterator) Entry() *kv.Entry {
	return e.entry
}

func (e *EntriesIterator) Err() error {
	return e.err
}

func (e *EntriesIterator) Close() {
	if e.iter != nil {
		_ = e.iter.Close()
		e.iter = nil
	}
	e.entry = nil
	e.err = kv.ErrClosedEntries
}
