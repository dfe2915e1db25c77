package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/resolve"
)

// CollectOptions holds flags for the collect command.
type CollectOptions struct {
	*RootOptions
	IncludeDoc bool
	MissingOK  bool
	Output     string
}

// NewCollectCommand creates the collect command.
func NewCollectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CollectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "collect <spec-file> <action>",
		Short: "Flatten parameters across dependency chains",
		Long: `Collect one row per entry of the target action, with every
ancestor's parameters flattened in as <action>.<key> columns.

With --format json the rows are emitted as objects; the default text
format renders CSV. Use --output to write to a file instead of stdout.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.IncludeDoc, "include-doc", false, "include non-reserved document keys")
	cmd.Flags().BoolVar(&opts.MissingOK, "missing-ok", false, "skip rows with unresolvable parents")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write to file instead of stdout")
	return cmd
}

func runCollect(opts *CollectOptions, specPath, action string, cmd *cobra.Command) error {
	spec, store, err := openProject(opts.RootOptions, specPath)
	if err != nil {
		return err
	}

	collector := resolve.NewCollector(spec, store)
	collector.IncludeDoc = opts.IncludeDoc
	collector.MissingOK = opts.MissingOK

	rows, err := collector.Collect(action)
	if err != nil {
		if resolve.IsMissingParent(err) {
			return WrapExitError(ExitFailure, "collection failed", err)
		}
		return WrapExitError(ExitCommandError, "collection failed", err)
	}

	out := cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer f.Close()
		out = f
	}

	if opts.Format == "json" {
		return writeRowsJSON(out, rows)
	}
	return writeRowsCSV(out, rows)
}

func writeRowsJSON(w io.Writer, rows []resolve.Row) error {
	payload := make([]map[string]any, len(rows))
	for i, row := range rows {
		obj := make(map[string]any, len(row.Values))
		for col, v := range row.Values {
			obj[col] = params.ToAny(v)
		}
		payload[i] = obj
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// writeRowsCSV renders rows with a header built from the union of columns
// in first-appearance order, matching the chain order of the spec.
func writeRowsCSV(w io.Writer, rows []resolve.Row) error {
	var header []string
	seen := make(map[string]bool)
	for _, row := range rows {
		for _, col := range row.Columns {
			if !seen[col] {
				seen[col] = true
				header = append(header, col)
			}
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		record := make([]string, len(header))
		for i, col := range header {
			if v, ok := row.Values[col]; ok {
				record[i] = fmt.Sprint(params.ToAny(v))
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
