package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. cfgFile is shared by the subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "contentcore",
		Short: "Headless content store with schema-driven field hooks",
		Long: `contentcore serves collections and globals described in YAML schema files.

Every write runs the field hook pipeline (beforeValidate, beforeChange,
afterRead, afterChange) over the document before and after it is stored.

Quick start:
  contentcore validate   # Check config and schema
  contentcore serve      # Start the REST API

Hooks:
  contentcore hooks list
  contentcore hooks run formatSlug '"Hello World"'`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "contentcore.yaml", "config file path")

	rootCmd.AddCommand(
		newServeCmd(&cfgFile),
		newValidateCmd(&cfgFile),
		newHooksCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
