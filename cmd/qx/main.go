// Package main is the entry point for the qx CLI.
package main

import (
	"fmt"
	"os"

	"github.com/gandaldf/qx/cmd/qx/commands"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	rootCmd := &cobra.Command{
		Use:           "qx",
		Short:         "Resolve SQL query templates",
		Long:          "qx resolves SQL templates with optional criteria, order-by, join and paging tokens from YAML query definitions",
		Version:       commands.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewResolveCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd.Execute()
}
