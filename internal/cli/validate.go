package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cairnproj/cairn/internal/pipeline"
)

// ValidationResult holds the outcome of spec validation.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Actions []string `json:"actions,omitempty"` // topological order
	Error   string   `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-file>",
		Short: "Validate a pipeline spec",
		Long: `Validate a pipeline spec without touching the store.

Checks action name uniqueness, dependency references, graph acyclicity,
and reserved-key collisions, and reports the deterministic topological
order materialization will use.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, specPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	spec, err := pipeline.Load(specPath)
	if err != nil {
		_ = formatter.JSON(ValidationResult{Valid: false, Error: err.Error()}, func(w io.Writer) {
			fmt.Fprintf(w, "invalid: %v\n", err)
		})
		if pipeline.IsValidationError(err) {
			return WrapExitError(ExitFailure, "spec validation failed", err)
		}
		return WrapExitError(ExitCommandError, "failed to load spec", err)
	}

	order := spec.TopologicalActions()
	names := make([]string, len(order))
	for i, a := range order {
		names[i] = a.Name
	}
	return formatter.JSON(ValidationResult{Valid: true, Actions: names}, func(w io.Writer) {
		fmt.Fprintf(w, "valid: %d actions, %d experiments\n", len(spec.Actions), len(spec.Experiments))
		for i, name := range names {
			fmt.Fprintf(w, "  %d. %s\n", i+1, name)
		}
	})
}
