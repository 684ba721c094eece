package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/pflag"
	"github.com/treeverse/commitgraph/pkg/config"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/graph/discovery"
	"github.com/treeverse/commitgraph/pkg/graph/node"
	"github.com/treeverse/commitgraph/pkg/graph/storage"
	"github.com/treeverse/commitgraph/pkg/graph/validate"
	"github.com/treeverse/commitgraph/pkg/kv"
	_ "github.com/treeverse/commitgraph/pkg/kv/local"
	_ "github.com/treeverse/commitgraph/pkg/kv/mem"
	_ "github.com/treeverse/commitgraph/pkg/kv/pebble"
	_ "github.com/treeverse/commitgraph/pkg/kv/postgres"
	"github.com/treeverse/commitgraph/pkg/logging"
)

type closer func()

func openStorage(ctx context.Context, cfg *config.Config) (*storage.Storage, closer) {
	logger := logging.FromContext(ctx)
	params, err := cfg.GetKVParams()
	if err != nil {
		logger.WithError(err).Fatal("Bad database configuration")
	}
	store, err := kv.Open(ctx, params)
	if err != nil {
		logger.WithError(err).WithField("type", params.Type).Fatal("Failed to open KV store")
	}
	st, err := storage.New(store, cfg.GetStorageConfig())
	if err != nil {
		store.Close()
		logger.WithError(err).Fatal("Failed to create storage")
	}
	return st, store.Close
}

// openNode returns the validated local node and its storage. Only the local node is
// resolvable in process, so masters on other servers are skipped.
func openNode(ctx context.Context, cfg *config.Config) (graph.Node, *node.LocalNode, *storage.Storage, closer) {
	st, closeStore := openStorage(ctx, cfg)
	d, err := cfg.GetDiscovery()
	if err != nil {
		closeStore()
		logging.FromContext(ctx).WithError(err).Fatal("Bad discovery configuration")
	}
	registry := discovery.NewRegistry()
	n := node.New(st, d, registry, cfg.GetNodeConfig())
	v := validate.New(n)
	registry.Register(n.ServerID(), v)
	return v, n, st, closeStore
}

func parseRepo(s string) graph.RepoID {
	repo, err := graph.ParseRepoID(s)
	if err != nil {
		die(err)
	}
	return repo
}

func parseCommitID(s string) graph.CommitID {
	id, err := graph.ParseCommitID(s)
	if err != nil {
		die(err)
	}
	return id
}

func die(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func newTable(headers ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(headers)
	return t
}

func mustFlagString(flags *pflag.FlagSet, name string) string {
	v, err := flags.GetString(name)
	if err != nil {
		die(err)
	}
	return v
}

func mustFlagBool(flags *pflag.FlagSet, name string) bool {
	v, err := flags.GetBool(name)
	if err != nil {
		die(err)
	}
	return v
}

func mustFlagInt(flags *pflag.FlagSet, name string) int {
	v, err := flags.GetInt(name)
	if err != nil {
		die(err)
	}
	return v
}

func mustFlagStringSlice(flags *pflag.FlagSet, name string) []string {
	v, err := flags.GetStringSlice(name)
	if err != nil {
		die(err)
	}
	return v
}
