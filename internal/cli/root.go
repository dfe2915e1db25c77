package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Project string // project root directory
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cairn CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cairn",
		Short: "cairn - parameterized pipeline entries with migratable identities",
		Long: `cairn materializes pipeline stages as content-addressed entries and
keeps parent/child links intact while the parameter schema evolves.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
			slog.SetDefault(slog.New(handler))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Project, "project", "p", ".", "project root directory")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewMaterializeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewCollectCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewUnlockCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openProject loads the spec file and opens the project's entry store.
func openProject(opts *RootOptions, specPath string) (*pipeline.Spec, *workspace.Dir, error) {
	spec, err := pipeline.Load(specPath)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to load spec", err)
	}
	store, err := workspace.OpenDir(opts.Project, spec.Workspace.ValueFile)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open project", err)
	}
	return spec, store, nil
}
