package discovery_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"github.com/treeverse/commitgraph/pkg/graph/discovery"
	"github.com/treeverse/commitgraph/pkg/graph/mock"
	"github.com/treeverse/commitgraph/pkg/testutil"
)

func TestParseStatic(t *testing.T) {
	ctx := context.Background()
	alice := testutil.NewKeyPair(t, 1)
	bob := testutil.NewKeyPair(t, 2)
	d, err := discovery.ParseStatic(map[string][]string{
		alice.Public.String(): {"s2", "s1"},
	})
	testutil.MustDo(t, "parse static", err)

	masters, err := d.Masters(ctx, alice.Public)
	testutil.MustDo(t, "alice masters", err)
	require.Equal(t, []string{"s1", "s2"}, masters)

	masters, err = d.Masters(ctx, bob.Public)
	testutil.MustDo(t, "bob masters", err)
	require.Empty(t, masters)

	_, err = discovery.ParseStatic(map[string][]string{"not-a-key": {"s1"}})
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	ctrl := gomock.NewController(t)
	node := mock.NewMockNode(ctrl)
	r := discovery.NewRegistry()
	r.Register("s1", node)

	got, err := r.Resolve("s1")
	testutil.MustDo(t, "resolve s1", err)
	require.Same(t, node, got)

	_, err = r.Resolve("s2")
	if !errors.Is(err, discovery.ErrUnknownServer) {
		t.Fatalf("got err=%v, expected ErrUnknownServer", err)
	}
}
