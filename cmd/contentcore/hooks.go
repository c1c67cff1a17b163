package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/contentcore/core/runtime"
	"github.com/artpar/contentcore/core/schema"
	"github.com/artpar/contentcore/core/storage"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "Inspect and try the named field hooks",
	}
	cmd.AddCommand(newHooksListCmd(), newHooksRunCmd())
	return cmd
}

func newHooksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the hook names schema files can use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range newFunctions().List() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func newHooksRunCmd() *cobra.Command {
	var (
		siblingJSON string
		phase       string
	)

	cmd := &cobra.Command{
		Use:   "run <name> <json-value>",
		Short: "Run a named hook on a value and print the result",
		Long: `Run a named hook on a JSON value and print the JSON result.

"unchanged" is printed when the hook leaves the value as it is.

Examples:
  contentcore hooks run trim '"  padded  "'
  contentcore hooks run formatSlug 'null' --sibling '{"title": "Hello World"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHook(cmd, args[0], args[1], siblingJSON, schema.Phase(phase))
		},
	}

	cmd.Flags().StringVar(&siblingJSON, "sibling", "", "sibling data as a JSON object")
	cmd.Flags().StringVar(&phase, "phase", string(schema.PhaseBeforeChange), "hook phase passed to the function")
	return cmd
}

func runHook(cmd *cobra.Command, name, valueJSON, siblingJSON string, phase schema.Phase) error {
	var value any
	if err := json.Unmarshal([]byte(valueJSON), &value); err != nil {
		return fmt.Errorf("parse value: %w", err)
	}

	sibling := map[string]any{}
	if siblingJSON != "" {
		if err := json.Unmarshal([]byte(siblingJSON), &sibling); err != nil {
			return fmt.Errorf("parse sibling data: %w", err)
		}
	}

	result, err := newFunctions().Call(background(cmd), name, schema.FieldHookArgs{
		Phase:       phase,
		Operation:   schema.OperationCreate,
		Value:       value,
		SiblingData: sibling,
		Data:        sibling,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch result {
	case nil:
		fmt.Fprintln(out, "unchanged")
		return nil
	case schema.Null:
		fmt.Fprintln(out, "null")
		return nil
	}

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// newFunctions returns the functions a fresh runtime registers.
func newFunctions() *runtime.FunctionRegistry {
	return runtime.New(storage.NewMemoryStore(), runtime.Config{Logger: zerolog.Nop()}).Functions()
}
