package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artpar/contentcore/bootstrap"
	"github.com/artpar/contentcore/config"
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the contentcore REST API.

The server will:
  - Load configuration from contentcore.yaml (or --config)
  - Or load configuration from CONTENTCORE_* environment variables
  - Load and sanitize the schema directory
  - Serve /api/{collection} and /api/globals/{slug}
  - Reload on config file changes or SIGHUP, and on schema changes when schema.watch is set

Environment variables (for container deployments):
  CONTENTCORE_SCHEMA_DIR       - Schema directory (required without a config file)
  CONTENTCORE_DATABASE_DRIVER  - sqlite or memory
  CONTENTCORE_DATABASE_DSN     - SQLite path (default: contentcore.db)
  CONTENTCORE_SERVER_PORT      - Server port (default: 3000)
  CONTENTCORE_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  contentcore serve
  contentcore serve --config /etc/contentcore/config.yaml
  CONTENTCORE_SCHEMA_DIR=./schema contentcore serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, *cfgFile)
		},
	}
}

func runServe(cmd *cobra.Command, cfgFile string) error {
	_, statErr := os.Stat(cfgFile)
	if statErr != nil && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s with at least schema.dir\n", cfgFile)
		fmt.Fprintln(out, "Option 2: Set the CONTENTCORE_SCHEMA_DIR environment variable")
		return fmt.Errorf("no configuration found")
	}

	app, err := bootstrap.NewFromFile(cfgFile, bootstrap.Options{Version: version})
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(background(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}

// background is used when a command runs without a context.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
