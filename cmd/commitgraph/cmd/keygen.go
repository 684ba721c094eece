package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/signature"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an owner key pair",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		kp, err := signature.GenerateKeyPair()
		if err != nil {
			die(err)
		}
		fmt.Printf("public:  %s\n", kp.Public)
		fmt.Printf("private: %s\n", signature.EncodePrivateKey(kp.Private))
	},
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(keygenCmd)
}
