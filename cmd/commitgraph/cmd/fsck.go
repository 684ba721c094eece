package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/graph"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck <owner/name>",
	Short: "Check the stored heads and commits of a repository",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		repo := parseRepo(args[0])
		st, closeStore := openStorage(ctx, cfg)
		defer closeStore()

		report, err := st.Check(ctx, repo)
		if err != nil {
			die(err)
		}
		fmt.Printf("%d heads, %d commits walked\n", report.Heads, report.Walked)
		if report.OK() {
			fmt.Println("OK")
			return
		}
		t := newTable("Problem", "Commit", "Detail")
		for _, id := range report.MissingHeads.Sorted() {
			t.AppendRow([]interface{}{"missing head", id.String(), ""})
		}
		for _, id := range report.IncompleteHeads.Sorted() {
			t.AppendRow([]interface{}{"incomplete head", id.String(), ""})
		}
		for _, id := range report.DominatedHeads.Sorted() {
			t.AppendRow([]interface{}{"dominated head", id.String(), ""})
		}
		bad := graph.NewCommitSet()
		for id := range report.BadCommits {
			bad.Add(id)
		}
		for _, id := range bad.Sorted() {
			t.AppendRow([]interface{}{"bad commit", id.String(), report.BadCommits[id].Error()})
		}
		t.Render()
		closeStore()
		os.Exit(1)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(fsckCmd)
}
