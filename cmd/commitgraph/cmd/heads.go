package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/graph"
)

var headsCmd = &cobra.Command{
	Use:   "heads <owner/name>",
	Short: "Show the heads of a repository",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		repo := parseRepo(args[0])
		n, _, _, closeStore := openNode(ctx, cfg)
		defer closeStore()

		heads, err := n.GetHeads(ctx, repo)
		if err != nil {
			die(err)
		}
		if mustFlagBool(cmd.Flags(), "wait") {
			heads, err = n.PollHeads(ctx, repo, graph.HeadsSet(heads))
			if err != nil {
				die(err)
			}
		}
		printHeads(heads)
	},
}

func printHeads(heads []graph.SignedHead) {
	graph.SortHeads(heads)
	t := newTable("Commit", "Level", "Timestamp")
	for _, h := range heads {
		ts := time.UnixMilli(h.Value.Timestamp).UTC().Format(time.RFC3339)
		t.AppendRow([]interface{}{h.Value.CommitID.String(), h.Value.CommitID.Level, ts})
	}
	t.Render()
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(headsCmd)
	headsCmd.Flags().Bool("wait", false, "wait until the heads change or the poll timeout passes")
}
