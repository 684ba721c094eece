package kvtest

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-test/deep"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/treeverse/commitgraph/pkg/kv"
)

type MakeStore func(t testing.TB, ctx context.Context) kv.Store

var runTestID = nanoid.MustGenerate("abcdef1234567890", 8)

func uniqueKey(k string) []byte {
	return []byte(runTestID + "-" + k)
}

func uniquePartitionKey() []byte {
	return []byte(nanoid.MustGenerate("abcdef1234567890", 10))
}

func sampleEntry(partitionKey []byte, prefix string, n int) kv.Entry {
	k := fmt.Sprintf("%s-key-%04d", prefix, n)
	v := fmt.Sprintf("%s-value-%04d", prefix, n)
	return kv.Entry{PartitionKey: partitionKey, Key: []byte(k), Value: []byte(v)}
}

func setupSampleData(t *testing.T, ctx context.Context, store kv.Store, partitionKey []byte, prefix string, items int) []kv.Entry {
	t.Helper()
	entries := make([]kv.Entry, 0, items)
	err := store.Update(ctx, func(tx kv.Tx) error {
		for i := 0; i < items; i++ {
			entry := sampleEntry(partitionKey, prefix, i)
			if err := tx.Set(entry.PartitionKey, entry.Key, entry.Value); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("failed to setup data with prefix '%s': %s", prefix, err)
	}
	return entries
}

func get(ctx context.Context, store kv.Store, partitionKey, key []byte) ([]byte, error) {
	var value []byte
	err := store.View(ctx, func(tx kv.Tx) error {
		var err error
		value, err = tx.Get(partitionKey, key)
		return err
	})
	return value, err
}

func set(ctx context.Context, store kv.Store, partitionKey, key, value []byte) error {
	return store.Update(ctx, func(tx kv.Tx) error {
		return tx.Set(partitionKey, key, value)
	})
}

// DriverTest runs the conformance suite every kv driver should pass.
func DriverTest(t *testing.T, ms MakeStore) {
	t.Run("Driver_Open", func(t *testing.T) { testDriverOpen(t, ms) })
	t.Run("Store_SetGet", func(t *testing.T) { testStoreSetGet(t, ms) })
	t.Run("Store_Delete", func(t *testing.T) { testStoreDelete(t, ms) })
	t.Run("Store_Scan", func(t *testing.T) { testStoreScan(t, ms) })
	t.Run("Store_MissingArgument", func(t *testing.T) { testStoreMissingArgument(t, ms) })
	t.Run("Store_Partitions", func(t *testing.T) { testStorePartitions(t, ms) })
	t.Run("Tx_ReadOnly", func(t *testing.T) { testTxReadOnly(t, ms) })
	t.Run("Tx_Rollback", func(t *testing.T) { testTxRollback(t, ms) })
	t.Run("Tx_ReadYourWrites", func(t *testing.T) { testTxReadYourWrites(t, ms) })
	t.Run("Tx_ConcurrentIncrements", func(t *testing.T) { testTxConcurrentIncrements(t, ms) })
}

func testDriverOpen(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	_ = ms(t, ctx)
	_ = ms(t, ctx)
}

func testStoreSetGet(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()

	testKey := uniqueKey("key")
	testValue1 := []byte("value")
	testValue2 := []byte("a different kind of value")

	if err := set(ctx, store, pk, testKey, testValue1); err != nil {
		t.Fatalf("failed to set key '%s', to value '%s': %s", testKey, testValue1, err)
	}
	val, err := get(ctx, store, pk, testKey)
	switch {
	case err != nil:
		t.Fatalf("failed to get key '%s': %s", testKey, err)
	case val == nil:
		t.Fatalf("got value with nil")
	case !bytes.Equal(testValue1, val):
		t.Fatalf("key='%s' value='%s' doesn't match, expected='%s'", testKey, val, testValue1)
	}

	// override key with value2
	if err := set(ctx, store, pk, testKey, testValue2); err != nil {
		t.Fatalf("failed to set key '%s', to value '%s': %s", testKey, testValue2, err)
	}
	val2, err := get(ctx, store, pk, testKey)
	if err != nil {
		t.Fatalf("failed to get key '%s': %s", testKey, err)
	}
	if !bytes.Equal(testValue2, val2) {
		t.Fatalf("key='%s' value='%s' doesn't match, expected='%s'", testKey, val2, testValue2)
	}

	keyNotExists := uniqueKey("key-not-exists")
	val3, err := get(ctx, store, pk, keyNotExists)
	if !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("get key='%s' err=%s, expected not found", keyNotExists, err)
	}
	if val3 != nil {
		t.Fatalf("get key='%s' value='%s', expected nil", keyNotExists, val3)
	}
}

func testStoreDelete(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()

	t.Run("exists", func(t *testing.T) {
		keyToDel := uniqueKey("key-to-delete")
		if err := set(ctx, store, pk, keyToDel, []byte("value to delete")); err != nil {
			t.Fatalf("failed to set key='%s': %s", keyToDel, err)
		}
		err := store.Update(ctx, func(tx kv.Tx) error {
			return tx.Delete(pk, keyToDel)
		})
		if err != nil {
			t.Fatalf("failed to delete key='%s': %s", keyToDel, err)
		}
		if _, err := get(ctx, store, pk, keyToDel); !errors.Is(err, kv.ErrNotFound) {
			t.Fatalf("get deleted key='%s' err=%v, expected not found", keyToDel, err)
		}
	})

	t.Run("non_exists", func(t *testing.T) {
		keyToDel := uniqueKey("missing-key-to-delete")
		err := store.Update(ctx, func(tx kv.Tx) error {
			return tx.Delete(pk, keyToDel)
		})
		if err != nil {
			t.Fatalf("delete missing key '%s', err=%v expected nil", keyToDel, err)
		}
	})
}

func testStoreScan(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()

	const sampleItems = 50
	sampleData := setupSampleData(t, ctx, store, pk, "scan", sampleItems)
	_ = setupSampleData(t, ctx, store, pk, "scan2", sampleItems)
	_ = setupSampleData(t, ctx, store, pk, "other", sampleItems)

	scanAll := func(t *testing.T, prefix []byte) []kv.Entry {
		t.Helper()
		var entries []kv.Entry
		err := store.View(ctx, func(tx kv.Tx) error {
			var err error
			entries, err = kv.ScanAll(tx, pk, prefix)
			return err
		})
		if err != nil {
			t.Fatal("failed to scan", err)
		}
		return entries
	}

	t.Run("prefix", func(t *testing.T) {
		entries := scanAll(t, []byte("scan-"))
		if diff := deep.Equal(entries, sampleData); diff != nil {
			t.Fatal("scan data didn't match:", diff)
		}
	})

	t.Run("narrow_prefix", func(t *testing.T) {
		entries := scanAll(t, []byte("scan-key-001"))
		if diff := deep.Equal(entries, sampleData[10:20]); diff != nil {
			t.Fatal("scan data didn't match:", diff)
		}
	})

	t.Run("whole_partition", func(t *testing.T) {
		entries := scanAll(t, nil)
		if len(entries) != 3*sampleItems {
			t.Fatalf("scan partition got %d entries, expected %d", len(entries), 3*sampleItems)
		}
		for i := 1; i < len(entries); i++ {
			if bytes.Compare(entries[i-1].Key, entries[i].Key) >= 0 {
				t.Fatalf("scan entries not ordered at %d: '%s' >= '%s'", i, entries[i-1].Key, entries[i].Key)
			}
		}
	})

	t.Run("no_match", func(t *testing.T) {
		entries := scanAll(t, []byte("nothing-here"))
		if len(entries) != 0 {
			t.Fatalf("scan got %d entries, expected none", len(entries))
		}
	})

	t.Run("closed_iterator", func(t *testing.T) {
		err := store.View(ctx, func(tx kv.Tx) error {
			it, err := tx.Scan(pk, []byte("scan-"))
			if err != nil {
				return err
			}
			it.Close()
			if it.Next() {
				t.Error("Next after Close returned true")
			}
			if !errors.Is(it.Err(), kv.ErrClosedEntries) {
				t.Errorf("Err after Close = %v, expected %s", it.Err(), kv.ErrClosedEntries)
			}
			return nil
		})
		if err != nil {
			t.Fatal("view failed", err)
		}
	})
}

func testStoreMissingArgument(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()

	t.Run("Get", func(t *testing.T) {
		if _, err := get(ctx, store, pk, nil); !errors.Is(err, kv.ErrMissingKey) {
			t.Errorf("Get using nil key - err=%v, expected %s", err, kv.ErrMissingKey)
		}
		if _, err := get(ctx, store, nil, []byte("k")); !errors.Is(err, kv.ErrMissingPartitionKey) {
			t.Errorf("Get using nil partition key - err=%v, expected %s", err, kv.ErrMissingPartitionKey)
		}
	})

	t.Run("Set", func(t *testing.T) {
		if err := set(ctx, store, pk, nil, []byte("v")); !errors.Is(err, kv.ErrMissingKey) {
			t.Errorf("Set using nil key - err=%v, expected %s", err, kv.ErrMissingKey)
		}
		key := uniqueKey("test-missing-argument")
		if err := set(ctx, store, pk, key, nil); !errors.Is(err, kv.ErrMissingValue) {
			t.Errorf("Set using nil value - err=%v, expected %s", err, kv.ErrMissingValue)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Update(ctx, func(tx kv.Tx) error {
			return tx.Delete(pk, nil)
		})
		if !errors.Is(err, kv.ErrMissingKey) {
			t.Errorf("Delete using nil key - err=%v, expected %s", err, kv.ErrMissingKey)
		}
	})

	t.Run("Scan", func(t *testing.T) {
		err := store.View(ctx, func(tx kv.Tx) error {
			_, err := tx.Scan(nil, nil)
			return err
		})
		if !errors.Is(err, kv.ErrMissingPartitionKey) {
			t.Errorf("Scan using nil partition key - err=%v, expected %s", err, kv.ErrMissingPartitionKey)
		}
	})
}

func testStorePartitions(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk1 := uniquePartitionKey()
	pk2 := uniquePartitionKey()
	key := uniqueKey("shared")

	if err := set(ctx, store, pk1, key, []byte("one")); err != nil {
		t.Fatalf("set partition %s: %s", pk1, err)
	}
	if _, err := get(ctx, store, pk2, key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("get key from other partition err=%v, expected not found", err)
	}
	if err := set(ctx, store, pk2, key, []byte("two")); err != nil {
		t.Fatalf("set partition %s: %s", pk2, err)
	}
	val, err := get(ctx, store, pk1, key)
	if err != nil || !bytes.Equal(val, []byte("one")) {
		t.Fatalf("get partition %s = '%s', %v, expected 'one'", pk1, val, err)
	}
}

func testTxReadOnly(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()

	err := store.View(ctx, func(tx kv.Tx) error {
		return tx.Set(pk, uniqueKey("read-only"), []byte("v"))
	})
	if !errors.Is(err, kv.ErrReadOnly) {
		t.Fatalf("Set in view err=%v, expected %s", err, kv.ErrReadOnly)
	}
	err = store.View(ctx, func(tx kv.Tx) error {
		return tx.Delete(pk, uniqueKey("read-only"))
	})
	if !errors.Is(err, kv.ErrReadOnly) {
		t.Fatalf("Delete in view err=%v, expected %s", err, kv.ErrReadOnly)
	}
}

var errAbort = errors.New("abort")

func testTxRollback(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()
	kept := uniqueKey("kept")
	dropped := uniqueKey("dropped")

	if err := set(ctx, store, pk, kept, []byte("v1")); err != nil {
		t.Fatalf("set key '%s': %s", kept, err)
	}
	err := store.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Set(pk, dropped, []byte("v")); err != nil {
			return err
		}
		if err := tx.Set(pk, kept, []byte("v2")); err != nil {
			return err
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("update err=%v, expected %s", err, errAbort)
	}
	if _, err := get(ctx, store, pk, dropped); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("get rolled back key err=%v, expected not found", err)
	}
	val, err := get(ctx, store, pk, kept)
	if err != nil || !bytes.Equal(val, []byte("v1")) {
		t.Fatalf("get key '%s' = '%s', %v, expected 'v1'", kept, val, err)
	}
}

func testTxReadYourWrites(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()
	_ = setupSampleData(t, ctx, store, pk, "ryw", 3)

	err := store.Update(ctx, func(tx kv.Tx) error {
		extra := sampleEntry(pk, "ryw", 3)
		if err := tx.Set(pk, extra.Key, extra.Value); err != nil {
			return err
		}
		if err := tx.Delete(pk, sampleEntry(pk, "ryw", 0).Key); err != nil {
			return err
		}
		val, err := tx.Get(pk, extra.Key)
		if err != nil {
			return err
		}
		if !bytes.Equal(val, extra.Value) {
			return fmt.Errorf("read own write '%s', expected '%s'", val, extra.Value)
		}
		entries, err := kv.ScanAll(tx, pk, []byte("ryw-"))
		if err != nil {
			return err
		}
		expected := []kv.Entry{sampleEntry(pk, "ryw", 1), sampleEntry(pk, "ryw", 2), extra}
		if diff := deep.Equal(entries, expected); diff != nil {
			return fmt.Errorf("scan own writes: %s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func testTxConcurrentIncrements(t *testing.T, ms MakeStore) {
	ctx := context.Background()
	store := ms(t, ctx)
	pk := uniquePartitionKey()
	key := uniqueKey("counter")

	const (
		workers    = 8
		increments = 10
	)
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				for {
					err := store.Update(ctx, func(tx kv.Tx) error {
						var n uint64
						val, err := tx.Get(pk, key)
						switch {
						case errors.Is(err, kv.ErrNotFound):
						case err != nil:
							return err
						default:
							n = binary.BigEndian.Uint64(val)
						}
						return tx.Set(pk, key, binary.BigEndian.AppendUint64(nil, n+1))
					})
					if errors.Is(err, kv.ErrConflict) {
						continue
					}
					if err != nil {
						errs <- err
						return
					}
					break
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal("increment failed:", err)
	}
	val, err := get(ctx, store, pk, key)
	if err != nil {
		t.Fatalf("get counter: %s", err)
	}
	if n := binary.BigEndian.Uint64(val); n != workers*increments {
		t.Fatalf("counter = %d, expected %d", n, workers*increments)
	}
}
