package main

import "github.com/treeverse/commitgraph/cmd/commitgraph/cmd"

func main() {
	cmd.Execute()
}
