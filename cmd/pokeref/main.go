// Command pokeref serves the Pokémon reference queries and lets operators
// fetch results and manage the query cache from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pokeref",
		Short:         "Pokémon reference backend with a consolidated, cached query layer",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./pokeref.yaml)")

	root.AddCommand(
		newServeCmd(&configPath),
		newFetchCmd(&configPath),
		newCacheCmd(&configPath),
	)
	return root
}
