package local_test

import (
	"context"
	"testing"

	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
	"github.com/treeverse/commitgraph/pkg/kv/kvtest"
	"github.com/treeverse/commitgraph/pkg/kv/local"
)

func TestLocalKV(t *testing.T) {
	cases := []struct {
		Name   string
		Params func(t testing.TB) *kvparams.Local
	}{
		{Name: "disk", Params: func(t testing.TB) *kvparams.Local {
			return &kvparams.Local{Path: t.TempDir(), PrefetchSize: 16}
		}},
		{Name: "disk_sync_writes", Params: func(t testing.TB) *kvparams.Local {
			return &kvparams.Local{Path: t.TempDir(), SyncWrites: true}
		}},
		{Name: "in_memory", Params: func(testing.TB) *kvparams.Local {
			return &kvparams.Local{InMemory: true}
		}},
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			kvtest.DriverTest(t, func(t testing.TB, ctx context.Context) kv.Store {
				t.Helper()
				store, err := kv.Open(ctx, kvparams.Config{Type: local.DriverName, Local: c.Params(t)})
				if err != nil {
					t.Fatalf("open %s store (%s): %s", local.DriverName, c.Name, err)
				}
				t.Cleanup(store.Close)
				return store
			})
		})
	}
}

func TestLocalKVMissingParams(t *testing.T) {
	_, err := kv.Open(t.Context(), kvparams.Config{Type: local.DriverName})
	if err == nil {
		t.Fatal("expected open without local params to fail")
	}
}
