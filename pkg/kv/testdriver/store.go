package testdriver

import (
	"context"
	"sync"

	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/logging"
)

type StoreCallback int

const (
	GetCallback StoreCallback = iota
	SetCallback
	DeleteCallback
	ScanCallback
	UpdateCallback
)

// Callbacks returning a nil error fall through to the wrapped store.
type (
	GetCB    func(partitionKey, key []byte) error
	SetCB    func(partitionKey, key []byte) error
	DeleteCB func(partitionKey, key []byte) error
	ScanCB   func(partitionKey, prefix []byte) error
	UpdateCB func() error
)

type Store struct {
	store kv.Store
	mu    sync.Mutex
	cbMap map[StoreCallback]interface{}
	log   logging.Logger
}

type TestStore interface {
	kv.Store
	SetStoreCallback(cb StoreCallback, fn interface{})
	ClearStoreCallback(cb StoreCallback)
}

func NewTestStore(store kv.Store) TestStore {
	log := logging.Default().WithField("test", "TestStore")
	return &Store{
		store: store,
		cbMap: map[StoreCallback]interface{}{},
		log:   log,
	}
}

func (s *Store) callback(cb StoreCallback) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cbMap[cb]
}

func (s *Store) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	return s.store.View(ctx, func(tx kv.Tx) error {
		return fn(&testTx{tx: tx, store: s})
	})
}

func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	if cb := s.callback(UpdateCallback); cb != nil {
		f, ok := cb.(UpdateCB)
		if !ok {
			panic("invalid callback")
		}
		s.log.Info("Running test driver callback for 'Update' operation")
		if err := f(); err != nil {
			return err
		}
	}
	return s.store.Update(ctx, func(tx kv.Tx) error {
		return fn(&testTx{tx: tx, store: s})
	})
}

func (s *Store) Close() {
	s.store.Close()
}

func (s *Store) SetStoreCallback(cb StoreCallback, fn interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cbMap[cb] = fn
}

func (s *Store) ClearStoreCallback(cb StoreCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cbMap, cb)
}

type testTx struct {
	tx    kv.Tx
	store *Store
}

func (t *testTx) Get(partitionKey, key []byte) ([]byte, error) {
	if cb := t.store.callback(GetCallback); cb != nil {
		f, ok := cb.(GetCB)
		if !ok {
			panic("invalid callback")
		}
		t.store.log.Info("Running test driver callback for 'Get' operation")
		if err := f(partitionKey, key); err != nil {
			return nil, err
		}
	}
	return t.tx.Get(partitionKey, key)
}

func (t *testTx) Set(partitionKey, key, value []byte) error {
	if cb := t.store.callback(SetCallback); cb != nil {
		f, ok := cb.(SetCB)
		if !ok {
			panic("invalid callback")
		}
		t.store.log.Info("Running test driver callback for 'Set' operation")
		if err := f(partitionKey, key); err != nil {
			return err
		}
	}
	return t.tx.Set(partitionKey, key, value)
}

func (t *testTx) Delete(partitionKey, key []byte) error {
	if cb := t.store.callback(DeleteCallback); cb != nil {
		f, ok := cb.(DeleteCB)
		if !ok {
			panic("invalid callback")
		}
		t.store.log.Info("Running test driver callback for 'Delete' operation")
		if err := f(partitionKey, key); err != nil {
			return err
		}
	}
	return t.tx.Delete(partitionKey, key)
}

func (t *testTx) Scan(partitionKey, prefix []byte) (kv.EntriesIterator, error) {
	if cb := t.store.callback(ScanCallback); cb != nil {
		f, ok := cb.(ScanCB)
		if !ok {
			panic("invalid callback")
		}
		t.store.log.Info("Running test driver callback for 'Scan' operation")
		if err := f(partitionKey, prefix); err != nil {
			return nil, err
		}
	}
	return t.tx.Scan(partitionKey, prefix)
}
