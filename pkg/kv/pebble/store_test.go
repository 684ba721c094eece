package pebble_test

import (
	"context"
	"testing"

	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
	"github.com/treeverse/commitgraph/pkg/kv/kvtest"
	"github.com/treeverse/commitgraph/pkg/kv/pebble"
)

func TestPebbleKV(t *testing.T) {
	kvtest.DriverTest(t, func(t testing.TB, ctx context.Context) kv.Store {
		t.Helper()
		store, err := kv.Open(ctx, kvparams.Config{
			Type:   pebble.DriverName,
			Pebble: &kvparams.Pebble{Path: t.TempDir()},
		})
		if err != nil {
			t.Fatalf("failed to open kv '%s' store: %s", pebble.DriverName, err)
		}
		t.Cleanup(store.Close)
		return store
	})
}
