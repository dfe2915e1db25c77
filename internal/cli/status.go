package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ActionStatus summarizes the store's contents for one action.
type ActionStatus struct {
	Action  string `json:"action"`
	Count   int    `json:"count"`
	Missing int    `json:"missing_outputs"` // entries lacking at least one declared output
}

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	MissingOnly bool
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "status <spec-file>",
		Short:         "Summarize entry counts and missing outputs per action",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.MissingOnly, "missing-only", false, "show only actions with missing outputs")
	return cmd
}

func runStatus(opts *StatusOptions, specPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, store, err := openProject(opts.RootOptions, specPath)
	if err != nil {
		return err
	}

	var summary []ActionStatus
	for _, action := range spec.TopologicalActions() {
		ids, err := store.List(action.Name)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to enumerate entries", err)
		}
		st := ActionStatus{Action: action.Name, Count: len(ids)}
		for _, id := range ids {
			for _, out := range action.Outputs {
				if !store.HasArtifact(id, out) {
					st.Missing++
					break
				}
			}
		}
		if opts.MissingOnly && st.Missing == 0 {
			continue
		}
		summary = append(summary, st)
	}

	return formatter.JSON(summary, func(w io.Writer) {
		for _, st := range summary {
			fmt.Fprintf(w, "%s: count=%d missing=%d\n", st.Action, st.Count, st.Missing)
		}
	})
}
