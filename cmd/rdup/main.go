package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:     "rdup",
		Short:   "Find duplicate files and replace redundant copies with links",
		Version: version + " (" + commit + ")",
	}

	root.AddCommand(newDedupeCmd())
	root.AddCommand(newRecoverCmd())

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}
