package cmd

import (
	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/signature"
)

var reposCmd = &cobra.Command{
	Use:   "repos [owner]",
	Short: "List repositories, of one owner or of every owner stored locally",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		n, _, st, closeStore := openNode(ctx, cfg)
		defer closeStore()

		t := newTable("Owner", "Name")
		if len(args) == 1 {
			owner, err := signature.ParsePublicKey(args[0])
			if err != nil {
				die(err)
			}
			names, err := n.List(ctx, owner)
			if err != nil {
				die(err)
			}
			for _, name := range names {
				t.AppendRow([]interface{}{owner.String(), name})
			}
		} else {
			repos, err := st.Repositories(ctx)
			if err != nil {
				die(err)
			}
			for _, repo := range repos {
				t.AppendRow([]interface{}{repo.Owner.String(), repo.Name})
			}
		}
		t.Render()
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(reposCmd)
}
