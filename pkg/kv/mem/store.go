package mem

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
)

const DriverName = "mem"

type Driver struct{}

type partition map[string][]byte

// Store keeps every partition in memory. Update transactions are serialized.
type Store struct {
	mu         sync.RWMutex
	partitions map[string]partition
}

//nolint:gochecknoinits
func init() {
	kv.Register(DriverName, &Driver{})
}

func (d *Driver) Open(_ context.Context, _ kvparams.Config) (kv.Store, error) {
	return New(), nil
}

func New() *Store {
	return &Store{partitions: make(map[string]partition)}
}

func (s *Store) View(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{store: s, readOnly: true})
}

func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tx{store: s, writes: make(map[string]map[string][]byte)}
	if err := fn(t); err != nil {
		return err
	}
	for pk, writes := range t.writes {
		p, ok := s.partitions[pk]
		if !ok {
			p = make(partition)
			s.partitions[pk] = p
		}
		for k, v := range writes {
			if v == nil {
				delete(p, k)
			} else {
				p[k] = v
			}
		}
		if len(p) == 0 {
			delete(s.partitions, pk)
		}
	}
	return nil
}

func (s *Store) Close() {}

// tx holds pending writes until the update commits. A nil value marks a delete.
type tx struct {
	store    *Store
	readOnly bool
	writes   map[string]map[string][]byte
}

func (t *tx) Get(partitionKey, key []byte) ([]byte, error) {
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return nil, err
	}
	if w, ok := t.writes[string(partitionKey)]; ok {
		if v, ok := w[string(key)]; ok {
			if v == nil {
				return nil, kv.ErrNotFound
			}
			return bytes.Clone(v), nil
		}
	}
	v, ok := t.store.partitions[string(partitionKey)][string(key)]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (t *tx) write(partitionKey, key, value []byte) {
	w, ok := t.writes[string(partitionKey)]
	if !ok {
		w = make(map[string][]byte)
		t.writes[string(partitionKey)] = w
	}
	w[string(key)] = value
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
	t.write(partitionKey, key, bytes.Clone(value))
	return nil
}

func (t *tx) Delete(partitionKey, key []byte) error {
	if t.readOnly {
		return kv.ErrReadOnly
	}
	if err := kv.ValidateArgs(partitionKey, key); err != nil {
		return err
	}
	t.write(partitionKey, key, nil)
	return nil
}

func (t *tx) Scan(partitionKey, prefix []byte) (kv.EntriesIterator, error) {
	if len(partitionKey) == 0 {
		return nil, kv.ErrMissingPartitionKey
	}
	merged := make(map[string][]byte)
	for k, v := range t.store.partitions[string(partitionKey)] {
		if bytes.HasPrefix([]byte(k), prefix) {
			merged[k] = v
		}
	}
	for k, v := range t.writes[string(partitionKey)] {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(merged, k)
		} else {
			merged[k] = v
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	entries := make([]kv.Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, kv.Entry{
			PartitionKey: bytes.Clone(partitionKey),
			Key:          []byte(k),
			Value:        bytes.Clone(merged[k]),
		})
	}
	return kv.NewSliceIterator(entries), nil
}
