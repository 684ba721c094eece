package graph_test

import (
	"flag"
	"os"
	"testing"

	"github.com/treeverse/commitgraph/pkg/testutil"
)

func TestMain(m *testing.M) {
	flag.Parse()
	testutil.SetupLogging()
	code := m.Run()
	os.Exit(code)
}
