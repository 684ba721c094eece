package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
)

const PathDelimiter = "/"

var (
	ErrClosedEntries       = errors.New("closed entries")
	ErrConflict            = errors.New("transaction conflict")
	ErrConnectFailed       = errors.New("connect failed")
	ErrDriverConfiguration = errors.New("driver configuration")
	ErrMissingPartitionKey = errors.New("missing partition key")
	ErrMissingKey          = errors.New("missing key")
	ErrMissingValue        = errors.New("missing value")
	ErrNotFound            = errors.New("not found")
	ErrOperationFailed     = errors.New("operation failed")
	ErrReadOnly            = errors.New("read only transaction")
	ErrSetupFailed         = errors.New("setup failed")
	ErrUnknownDriver       = errors.New("unknown driver")
)

func FormatPath(p ...string) string {
	return strings.Join(p, PathDelimiter)
}

// Driver is the interface to access a kv database as a Store.
// Each kv provider implements a Driver.
type Driver interface {
	// Open opens access to the database store. Implementations give access to the same storage based on the params.
	Open(ctx context.Context, params kvparams.Config) (Store, error)
}

// Store is a partitioned, ordered key-value database with serializable transactions.
type Store interface {
	// View runs fn inside a read-only transaction. Writes from fn fail with ErrReadOnly.
	View(ctx context.Context, fn func(tx Tx) error) error

	// Update runs fn inside a read-write transaction. All writes made by fn become visible together
	// when fn returns nil, and none of them when it returns an error.
	// A transaction that lost a race with a concurrent one fails with ErrConflict and may be retried.
	Update(ctx context.Context, fn func(tx Tx) error) error

	// Close access to the database store. After calling Close the instance is unusable.
	Close()
}

// Tx is a transaction bound to the context it was started with.
type Tx interface {
	// Get returns the value of key under partitionKey, or ErrNotFound.
	Get(partitionKey, key []byte) ([]byte, error)

	// Set stores the given value, overwriting an existing value if one exists
	Set(partitionKey, key, value []byte) error

	// Delete removes the key, no error if the key doesn't exist
	Delete(partitionKey, key []byte) error

	// Scan returns the entries of partitionKey whose key starts with prefix, in key order.
	// The iterator must be closed before the transaction ends.
	Scan(partitionKey, prefix []byte) (EntriesIterator, error)
}

// EntriesIterator used to enumerate over Scan results
type EntriesIterator interface {
	// Next should be called first before access Entry.
	// it will process the next entry and return true if it was successful, and false when none or error.
	Next() bool

	// Entry current entry read after calling Next, set to nil in case of an error or no more entries.
	Entry() *Entry

	// Err set to last error by reading or parse the next entry.
	Err() error

	// Close should be called at the end of processing entries, required to release resources used to scan entries.
	Close()
}

// Entry holds a pair of key/value
type Entry struct {
	PartitionKey []byte
	Key          []byte
	Value        []byte
}

func (e *Entry) String() string {
	if e == nil {
		return "Entry{nil}"
	}
	return fmt.Sprintf("Entry{%s, %v, %v}", e.PartitionKey, e.Key, e.Value)
}

// ValidateArgs checks the common arguments of a transaction operation.
func ValidateArgs(partitionKey, key []byte) error {
	if len(partitionKey) == 0 {
		return ErrMissingPartitionKey
	}
	if len(key) == 0 {
		return ErrMissingKey
	}
	return nil
}

// PrefixUpperBound returns the smallest key greater than every key with the given prefix,
// or nil when no such key exists.
func PrefixUpperBound(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// ScanAll collects all the entries of a prefix scan. Collecting before writing in the same
// transaction keeps drivers that cannot interleave reads and writes on one connection happy.
func ScanAll(tx Tx, partitionKey, prefix []byte) ([]Entry, error) {
	it, err := tx.Scan(partitionKey, prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var entries []Entry
	for it.Next() {
		entries = append(entries, *it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// map drivers implementation
var (
	drivers   = make(map[string]Driver)
	driversMu sync.RWMutex
)

// Register 'driver' implementation under 'name'. Panic in case of empty name, nil driver or name already registered.
func Register(name string, driver Driver) {
	if name == "" {
		panic("kv store register name is missing")
	}
	if driver == nil {
		panic("kv store Register driver is nil")
	}
	driversMu.Lock()
	defer driversMu.Unlock()
	if _, found := drivers[name]; found {
		panic("kv store Register driver already registered " + name)
	}
	drivers[name] = driver
}

// Open lookup driver with params.Type and return a Store wrapped with metrics.
// Failed with ErrUnknownDriver in case the type is not registered
func Open(ctx context.Context, params kvparams.Config) (Store, error) {
	driversMu.RLock()
	d, ok := drivers[params.Type]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, params.Type)
	}
	store, err := d.Open(ctx, params)
	if err != nil {
		return nil, err
	}
	return &StoreMetricsWrapper{Store: store, StoreType: params.Type}, nil
}

// Drivers returns a sorted list of registered driver names
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
