package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/logging"
)

type Store struct {
	db           *badger.DB
	logger       logging.Logger
	prefetchSize int
	path         string
	inMemory     bool
	refCount     int
}

func composeKey(partitionKey, key []byte) []byte {
	k := make([]byte, 0, len(partitionKey)+len(kv.PathDelimiter)+len(key))
	k = append(k, partitionKey...)
	k = append(k, kv.PathDelimiter...)
	return append(k, key...)
}

func (s *Store) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, store: s, readOnly: true})
	})
}

func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, store: s})
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%s: %w", err, kv.ErrConflict)
	}
	return err
}

func (s *Store) Close() {
	if s.inMemory {
		_ = s.db.Close()
		return
	}
	driverLock.Lock()
	defer driverLock.Unlock()
	s.refCount--
	if s.refCount > 0 {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.WithError(err).Error("Failed to close badger")
	}
	delete(connectionMap, s.path)
}

type tx struct {
	txn      *badger.Txn
	store    *Store
	readOnly bool
}

func (t *tx) Get(partitionKey, key []byte) ([]byte, error) {
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return nil, err
	}
	item, err := t.txn.Get(composeKey(partitionKey, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return item.ValueCopy(nil)
}

func (t *tx) Set(partitionKey, key, value []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	if value == nil {
		return kv.ErrMissingValue
	}
	if err := t.txn.Set(composeKey(partitionKey, key), value); err != nil {
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return nil
}

func (t *tx) Delete(partitionKey, key []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	if err := t.txn.Delete(composeKey(partitionKey, key)); err != nil {
		return fmt.Errorf("%s: %w", err, kv.ErrOperationFailed)
	}
	return nil
}

func (t *tx) Scan(partitionKey, prefix []byte) (kv.EntriesIterator, error) {
	if len(partitionKey) == 0 {
		return nil, kv.ErrMissingPartitionKey
	}
	fullPrefix := composeKey(partitionKey, prefix)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = t.store.prefetchSize
	opts.Prefix = fullPrefix
	it := t.txn.NewIterator(opts)
	it.Seek(fullPrefix)
	return &EntriesIterator{
		iter:         it,
		partitionKey: partitionKey,
		prefix:       fullPrefix,
		strip:        len(partitionKey) + len(kv.PathDelimiter),
	}, nil
}

// EntriesIterator wraps a badger iterator positioned on the first key of the prefix.
type EntriesIterator struct {
	iter         *badger.Iterator
	partitionKey []byte
	prefix       []byte
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
	if e.started {
		e.iter.Next()
	}
	e.started = true
	if !e.iter.ValidForPrefix(e.prefix) {
		e.entry = nil
		return false
	}
	item := e.iter.Item()
	value, err := item.ValueCopy(nil)
	if err != nil {
		e.err = err
		e.entry = nil
		return false
	}
	key := item.KeyCopy(nil)
	e.entry = &kv.Entry{
		PartitionKey: e.partitionKey,
		Key:          bytes.Clone(key[e.strip:]),
		Value:        value,
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
		e.iter.Close()
		e.iter = nil
	}
	e.entry = nil
	e.err = kv.ErrClosedEntries
}
