package node

import (
	"sort"

	"github.com/treeverse/commitgraph/pkg/graph"
)

func sortedIDs(commits map[graph.CommitID]*graph.RawCommit) []graph.CommitID {
	ids := make([]graph.CommitID, 0, len(commits))
	for id := range commits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// mergeNames returns the sorted union of two name lists.
func mergeNames(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	names := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
