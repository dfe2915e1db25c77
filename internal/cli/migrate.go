package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cairnproj/cairn/internal/migrate"
	"github.com/cairnproj/cairn/internal/params"
)

// NewMigrateCommand creates the migrate command group.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Plan and apply state-point schema migrations",
	}
	cmd.AddCommand(newMigratePlanCommand(rootOpts))
	cmd.AddCommand(newMigrateApplyCommand(rootOpts))
	return cmd
}

// MigratePlanOptions holds flags for migrate plan.
type MigratePlanOptions struct {
	*RootOptions
	SetDefaults []string
	Renames     []string
	Drops       []string
	PlanPath    string
}

func newMigratePlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigratePlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <spec-file> <action>",
		Short: "Compute a migration plan for one action",
		Long: `Apply a schema transform to every persisted entry of an action,
record the old-to-new identity mapping, and write it as an immutable
plan artifact. Nothing in the store is modified.

Transforms compose left to right from the repeatable flags:

  cairn migrate plan pipeline.toml s1 --set-default b=0
  cairn migrate plan pipeline.toml s1 --rename alpha=lr --drop legacy

Values for --set-default parse as JSON when possible (numbers, bools),
falling back to plain strings.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigratePlan(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.SetDefaults, "set-default", nil, "add key=value where the key is absent (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Renames, "rename", nil, "rename old=new state-point key (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Drops, "drop", nil, "remove a state-point key (repeatable)")
	cmd.Flags().StringVar(&opts.PlanPath, "plan", "", "plan artifact path (defaults to a timestamped file)")
	return cmd
}

func runMigratePlan(opts *MigratePlanOptions, specPath, action string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, store, err := openProject(opts.RootOptions, specPath)
	if err != nil {
		return err
	}

	transform, description, err := buildTransform(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid transform", err)
	}

	plan, err := migrate.NewPlanner(spec, store).Plan(action, transform, description)
	if err != nil {
		return WrapExitError(ExitCommandError, "planning failed", err)
	}

	planPath := opts.PlanPath
	if planPath == "" {
		planPath = migrate.DefaultPlanPath(opts.Project, action)
	}
	if err := migrate.SavePlan(plan, planPath); err != nil {
		return WrapExitError(ExitCommandError, "failed to write plan", err)
	}

	type planSummary struct {
		Plan       string              `json:"plan"`
		Action     string              `json:"action"`
		Entries    int                 `json:"entries"`
		Changed    int                 `json:"changed"`
		Collisions []migrate.Collision `json:"collisions,omitempty"`
	}
	changed := 0
	for _, row := range plan.Rows {
		if row.OldID != row.NewID {
			changed++
		}
	}
	summary := planSummary{
		Plan:       planPath,
		Action:     action,
		Entries:    len(plan.Rows),
		Changed:    changed,
		Collisions: plan.Collisions,
	}

	if err := formatter.JSON(summary, func(w io.Writer) {
		fmt.Fprintf(w, "wrote plan %s: %d entries, %d changed\n", planPath, len(plan.Rows), changed)
		for _, c := range plan.Collisions {
			fmt.Fprintf(w, "  collision: %d entries converge on %s\n", len(c.OldIDs), c.NewID)
		}
	}); err != nil {
		return err
	}

	if plan.HasCollisions() {
		return NewExitError(ExitFailure, fmt.Sprintf("plan has %d collision group(s); apply requires --force", len(plan.Collisions)))
	}
	return nil
}

// buildTransform composes the flag-driven transforms and a description
// for the plan artifact.
func buildTransform(opts *MigratePlanOptions) (migrate.Transform, string, error) {
	var transforms []migrate.Transform
	var parts []string

	for _, item := range opts.SetDefaults {
		key, raw, err := splitPair(item)
		if err != nil {
			return nil, "", err
		}
		transforms = append(transforms, migrate.SetDefault(key, parseFlagValue(raw)))
		parts = append(parts, fmt.Sprintf("set-default %s=%s", key, raw))
	}
	for _, item := range opts.Renames {
		from, to, err := splitPair(item)
		if err != nil {
			return nil, "", err
		}
		transforms = append(transforms, migrate.RenameKey(from, to))
		parts = append(parts, fmt.Sprintf("rename %s=%s", from, to))
	}
	for _, key := range opts.Drops {
		transforms = append(transforms, migrate.DropKey(key))
		parts = append(parts, fmt.Sprintf("drop %s", key))
	}

	if len(transforms) == 0 {
		return nil, "", fmt.Errorf("no transform given: use --set-default, --rename, or --drop")
	}
	return migrate.Chain(transforms...), strings.Join(parts, "; "), nil
}

func splitPair(item string) (string, string, error) {
	key, value, ok := strings.Cut(item, "=")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid key=value pair %q", item)
	}
	return key, value, nil
}

// parseFlagValue interprets a flag value as JSON when possible, so
// --set-default b=0 yields the number 0 rather than the string "0".
func parseFlagValue(raw string) params.Value {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
		if v, err := params.FromAny(decoded); err == nil {
			return v
		}
	}
	return params.String(raw)
}

// MigrateApplyOptions holds flags for migrate apply.
type MigrateApplyOptions struct {
	*RootOptions
	PlanPath string
	DryRun   bool
	NoResume bool
	Force    bool
}

func newMigrateApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <spec-file>",
		Short: "Apply a migration plan and cascade pointer rewrites",
		Long: `Apply a previously computed plan under the project lock: rewrite the
target action's entries to their new identities, then rewrite the
dependency pointers of every downstream entry that references a changed
identifier. Progress is persisted per entry; an interrupted apply is
resumed by rerunning the same command.

Without --plan the newest plan artifact in the project is applied.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrateApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PlanPath, "plan", "", "plan artifact to apply (defaults to the newest)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the plan without writing (no lock taken)")
	cmd.Flags().BoolVar(&opts.NoResume, "no-resume", false, "ignore a previous run's progress log")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "apply even if the plan has collisions")
	return cmd
}

func runMigrateApply(opts *MigrateApplyOptions, specPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	spec, store, err := openProject(opts.RootOptions, specPath)
	if err != nil {
		return err
	}

	planPath := opts.PlanPath
	if planPath == "" {
		planPath, err = migrate.LatestPlan(opts.Project)
		if err != nil {
			return WrapExitError(ExitCommandError, "no plan to apply", err)
		}
		formatter.VerboseLog("using newest plan %s", planPath)
	}
	plan, err := migrate.LoadPlan(planPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load plan", err)
	}

	if opts.DryRun {
		return formatter.JSON(plan, func(w io.Writer) {
			fmt.Fprintf(w, "plan %s targets action %q with %d entries\n", planPath, plan.Action, len(plan.Rows))
			for _, row := range plan.Rows {
				marker := " "
				if row.OldID != row.NewID {
					marker = "*"
				}
				fmt.Fprintf(w, "  %s %s -> %s\n", marker, row.OldID, row.NewID)
			}
		})
	}

	report, err := migrate.Execute(spec, store, plan, opts.Project, migrate.Options{
		PlanPath: planPath,
		Resume:   !opts.NoResume,
		Force:    opts.Force,
	})
	if err != nil {
		if migrate.IsCollision(err) || migrate.IsLockContention(err) {
			return WrapExitError(ExitFailure, "apply refused", err)
		}
		return WrapExitError(ExitCommandError, "apply failed", err)
	}

	return formatter.JSON(report, func(w io.Writer) {
		actions := make([]string, 0, len(report.Updated))
		for name := range report.Updated {
			actions = append(actions, name)
		}
		sort.Strings(actions)
		var counts []string
		for _, name := range actions {
			counts = append(counts, fmt.Sprintf("%s:%d", name, report.Updated[name]))
		}
		fmt.Fprintf(w, "applied plan %s run=%s updated {%s}\n", planPath, report.RunID, strings.Join(counts, ", "))
	})
}

// NewUnlockCommand creates the unlock command.
func NewUnlockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Clear a stale migration lock left by a crashed run",
		Long: `Remove the project migration lock. Refuses while a live apply still
holds it. Locks are never auto-expired; this command is the explicit
operator action required after a crash.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := migrate.ClearStaleLock(rootOpts.Project); err != nil {
				return WrapExitError(ExitFailure, "unlock failed", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "lock cleared")
			return nil
		},
	}
	return cmd
}
