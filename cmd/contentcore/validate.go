package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/contentcore/bootstrap"
	"github.com/artpar/contentcore/config"
	"github.com/artpar/contentcore/core/runtime"
	"github.com/artpar/contentcore/core/storage"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func newValidateCmd(cfgFile *string) *cobra.Command {
	var schemaDir string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and schema before deployment",
		Long: `Validate the contentcore configuration and schema directory.

Checks:
  - Config YAML syntax and required fields
  - Schema YAML syntax
  - Field types, names and relationship targets
  - Hook names resolve to registered functions

Examples:
  contentcore validate
  contentcore validate --config /etc/contentcore/config.yaml
  contentcore validate --schema ./schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, *cfgFile, schemaDir)
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema", "", "validate this schema directory without a config file")
	return cmd
}

func runValidate(cmd *cobra.Command, cfgFile, schemaDir string) error {
	out := cmd.OutOrStdout()

	var cfg *config.Config
	if schemaDir != "" {
		cfg = &config.Config{Schema: config.SchemaConfig{Dir: schemaDir}}
		fmt.Fprintf(out, "Validating %s...\n\n", schemaDir)
	} else {
		fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

		var err error
		cfg, err = config.LoadWithFallback(cfgFile)
		if err != nil {
			fmt.Fprintf(out, "  %s Config valid\n", crossMark)
			return fmt.Errorf("config error: %w", err)
		}
		fmt.Fprintf(out, "  %s Config valid\n", checkMark)
		fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
		fmt.Fprintf(out, "  %s Nested docs plugins: %d\n", checkMark, len(cfg.Plugins.NestedDocs))
	}

	if err := validateSchema(background(cmd), out, cfg); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

// validateSchema loads the schema into a throwaway runtime, which runs the
// same sanitizer the server does.
func validateSchema(ctx context.Context, out io.Writer, cfg *config.Config) error {
	s, err := bootstrap.BuildSchema(cfg)
	if err != nil {
		fmt.Fprintf(out, "  %s Schema syntax valid\n", crossMark)
		return fmt.Errorf("schema error: %w", err)
	}
	fmt.Fprintf(out, "  %s Schema syntax valid\n", checkMark)

	rt := runtime.New(storage.NewMemoryStore(), runtime.Config{Logger: zerolog.Nop()})
	if err := rt.Load(ctx, s); err != nil {
		fmt.Fprintf(out, "  %s Schema sanitized\n", crossMark)
		return fmt.Errorf("schema error: %w", err)
	}
	fmt.Fprintf(out, "  %s Schema sanitized: %d collections, %d globals\n",
		checkMark, len(s.Collections), len(s.Globals))
	return nil
}
