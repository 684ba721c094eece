package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/graph"
	"github.com/treeverse/commitgraph/pkg/logging"
	"github.com/treeverse/commitgraph/pkg/signature"
)

const privateKeyEnv = "COMMITGRAPH_PRIVATE_KEY"

var commitCmd = &cobra.Command{
	Use:   "commit <name>",
	Short: "Create a commit in a repository of the key owner and make it a head",
	Long: "Create a commit in a repository of the key owner and make it a head. Without --parent, " +
		"the commit merges the current heads of the repository.",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()

		key := mustFlagString(cmd.Flags(), "key")
		if key == "" {
			key = os.Getenv(privateKeyEnv)
		}
		if key == "" {
			die(fmt.Errorf("missing --key or %s", privateKeyEnv))
		}
		kp, err := signature.ParsePrivateKey(key)
		if err != nil {
			die(err)
		}
		repo := graph.RepoID{Owner: kp.Public, Name: args[0]}
		if err := repo.Validate(); err != nil {
			die(err)
		}
		ctx = logging.AddFields(ctx, logging.Fields{logging.RepositoryFieldKey: repo.String()})

		n, _, _, closeStore := openNode(ctx, cfg)
		defer closeStore()

		parentArgs := mustFlagStringSlice(cmd.Flags(), "parent")
		var parents []graph.CommitID
		if len(parentArgs) > 0 {
			for _, p := range parentArgs {
				parents = append(parents, parseCommitID(p))
			}
		} else {
			heads, err := n.GetHeads(ctx, repo)
			if err != nil {
				die(err)
			}
			parents = graph.HeadsSet(heads).Sorted()
		}

		message := mustFlagString(cmd.Flags(), "message")
		id, commit, err := graph.NewCommit(parents, []byte(message))
		if err != nil {
			die(err)
		}
		if err := n.Save(ctx, repo, map[graph.CommitID]*graph.RawCommit{id: commit}); err != nil {
			die(err)
		}
		if err := n.SaveHeads(ctx, repo, []graph.SignedHead{graph.NewSignedHead(repo, id, kp.Private)}); err != nil {
			die(err)
		}
		fmt.Println(id)
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().String("key", "", "multibase private key of the repository owner (default $"+privateKeyEnv+")")
	commitCmd.Flags().StringSliceP("parent", "p", nil, "parent commit id, repeat for merges")
	commitCmd.Flags().StringP("message", "m", "", "commit payload")
}
