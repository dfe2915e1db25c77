package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cairnproj/cairn/internal/materialize"
)

// MaterializeOptions holds flags for the materialize command.
type MaterializeOptions struct {
	*RootOptions
	DryRun bool
}

// NewMaterializeCommand creates the materialize command.
func NewMaterializeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaterializeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "materialize <spec-file>",
		Short: "Create entries for every experiment row",
		Long: `Walk experiments across actions in dependency order, creating one
entry per (action, state point) pair. Re-running against an unchanged
spec is a no-op for existing entries.

Example:
  cairn materialize pipeline.toml
  cairn materialize pipeline.toml --dry-run --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterialize(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute identifiers without writing")
	return cmd
}

func runMaterialize(opts *MaterializeOptions, specPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, store, err := openProject(opts.RootOptions, specPath)
	if err != nil {
		return err
	}
	formatter.VerboseLog("materializing %d experiment row(s) into %s", len(spec.Experiments), opts.Project)

	report, err := materialize.New(spec, store, opts.DryRun).Run()
	if err != nil {
		return WrapExitError(ExitCommandError, "materialization failed", err)
	}

	if err := formatter.JSON(report, func(w io.Writer) {
		var counts []string
		actions := make([]string, 0, len(report.PerAction))
		for name := range report.PerAction {
			actions = append(actions, name)
		}
		sort.Strings(actions)
		for _, name := range actions {
			counts = append(counts, fmt.Sprintf("%s:%d", name, len(report.PerAction[name])))
		}
		label := "materialized"
		if report.DryRun {
			label = "would materialize"
		}
		fmt.Fprintf(w, "%s total=%d created=%d [%s]\n", label, report.Total, report.Created, strings.Join(counts, ","))
		for _, msg := range report.RowErrors {
			fmt.Fprintf(w, "  row error: %s\n", msg)
		}
	}); err != nil {
		return err
	}

	if len(report.RowErrors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d experiment row(s) failed validation", len(report.RowErrors)))
	}
	return nil
}
