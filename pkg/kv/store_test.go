package kv_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/kv"
	"github.com/treeverse/commitgraph/pkg/kv/kvparams"
	_ "github.com/treeverse/commitgraph/pkg/kv/mem"
)

func TestPrefixUpperBound(t *testing.T) {
	cases := []struct {
		name     string
		prefix   []byte
		expected []byte
	}{
		{name: "simple", prefix: []byte("abc"), expected: []byte("abd")},
		{name: "trailing_ff", prefix: []byte{'a', 0xff}, expected: []byte("b")},
		{name: "all_ff", prefix: []byte{0xff, 0xff}, expected: nil},
		{name: "empty", prefix: nil, expected: nil},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := kv.PrefixUpperBound(tt.prefix)
			if diff := deep.Equal(got, tt.expected); diff != nil {
				t.Fatal("upper bound:", diff)
			}
		})
	}
}

func TestSliceIterator(t *testing.T) {
	entries := []kv.Entry{
		{PartitionKey: []byte("p"), Key: []byte("a"), Value: []byte("1")},
		{PartitionKey: []byte("p"), Key: []byte("b"), Value: []byte("2")},
	}
	it := kv.NewSliceIterator(entries)
	var got []kv.Entry
	for it.Next() {
		got = append(got, *it.Entry())
	}
	require.NoError(t, it.Err())
	require.Equal(t, entries, got)
	require.Nil(t, it.Entry())

	it.Close()
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), kv.ErrClosedEntries)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := kv.Open(context.Background(), kvparams.Config{Type: "no-such-driver"})
	require.ErrorIs(t, err, kv.ErrUnknownDriver)
}

func TestDrivers(t *testing.T) {
	require.Contains(t, kv.Drivers(), "mem")
}

func TestScanAllPropagatesScanError(t *testing.T) {
	store, err := kv.Open(context.Background(), kvparams.Config{Type: "mem"})
	require.NoError(t, err)
	defer store.Close()
	err = store.View(context.Background(), func(tx kv.Tx) error {
		_, err := kv.ScanAll(tx, nil, nil)
		return err
	})
	if !errors.Is(err, kv.ErrMissingPartitionKey) {
		t.Fatalf("ScanAll err=%v, expected %s", err, kv.ErrMissingPartitionKey)
	}
}

func TestFormatPath(t *testing.T) {
	require.Equal(t, "heads/owner/repo", kv.FormatPath("heads", "owner", "repo"))
}
