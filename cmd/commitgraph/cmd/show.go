package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <owner/name> <commit>",
	Short: "Show a commit",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		repo := parseRepo(args[0])
		id := parseCommitID(args[1])
		n, _, st, closeStore := openNode(ctx, cfg)
		defer closeStore()

		commit, err := n.LoadCommit(ctx, repo, id)
		if err != nil {
			die(err)
		}
		complete, err := st.IsCompleteCommit(ctx, id)
		if err != nil {
			die(err)
		}
		fmt.Printf("commit   %s\n", id)
		fmt.Printf("level    %d\n", commit.Level)
		fmt.Printf("complete %t\n", complete)
		for _, p := range commit.Parents {
			fmt.Printf("parent   %s\n", p)
		}
		fmt.Printf("\n%s\n", commit.Payload)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(showCmd)
}
