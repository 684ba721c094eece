package cmd

import (
	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/graph"
)

const logPayloadWidth = 60

var logCmd = &cobra.Command{
	Use:   "log <owner/name>",
	Short: "List the stored commits reachable from the heads of a repository, newest level first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		repo := parseRepo(args[0])
		_, _, st, closeStore := openNode(ctx, cfg)
		defer closeStore()

		amount := mustFlagInt(cmd.Flags(), "amount")
		it, err := st.Walk(ctx, repo)
		if err != nil {
			die(err)
		}
		defer it.Close()

		t := newTable("Commit", "Level", "Parents", "Head", "Payload")
		for i := 0; it.Next() && (amount <= 0 || i < amount); i++ {
			e := it.Value()
			t.AppendRow([]interface{}{e.CommitID.String(), e.CommitID.Level, len(e.Commit.Parents), e.Head != nil, payloadSummary(e)})
		}
		if err := it.Err(); err != nil {
			die(err)
		}
		t.Render()
	},
}

func payloadSummary(e *graph.CommitEntry) string {
	s := string(e.Commit.Payload)
	if len(s) > logPayloadWidth {
		s = s[:logPayloadWidth] + "..."
	}
	return s
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().Int("amount", 0, "number of commits to list, 0 for all")
}
