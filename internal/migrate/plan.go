package migrate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

// Transform rewrites one state point into its successor schema. It must be
// pure: the planner hands it a clone and never writes to the store while
// planning. The action discriminator is reset after the transform runs, so
// a transform cannot move an entry to a different action.
type Transform func(params.Object) (params.Object, error)

// MappingRow records one entry's identity change.
type MappingRow struct {
	OldID    string        `json:"old_id"`
	NewID    string        `json:"new_id"`
	OldState params.Object `json:"old_statepoint"`
	NewState params.Object `json:"new_statepoint"`
}

// Collision records two or more distinct old identifiers converging on one
// new identifier. A collision-flagged plan cannot be applied unless the
// operator forces it.
type Collision struct {
	NewID  string   `json:"new_id"`
	OldIDs []string `json:"old_ids"`
}

// Plan is the immutable artifact produced by planning: the full old-to-new
// identity mapping for one action plus any detected collisions. Plans are
// written once and never mutated.
type Plan struct {
	Action     string       `json:"action"`
	CreatedAt  time.Time    `json:"created_at"`
	Transform  string       `json:"transform"`
	Rows       []MappingRow `json:"mapping"`
	Collisions []Collision  `json:"collisions,omitempty"`
}

// HasCollisions reports whether the plan maps distinct old identifiers to
// a shared new identifier.
func (p *Plan) HasCollisions() bool {
	return len(p.Collisions) > 0
}

// Fingerprint derives a stable identifier for the plan from its action and
// mapping. A progress log records the fingerprint of the plan it belongs
// to, so a resumed run can refuse a mismatched plan.
func (p *Plan) Fingerprint() string {
	pairs := make(params.Object, len(p.Rows))
	for _, row := range p.Rows {
		pairs[row.OldID] = params.String(row.NewID)
	}
	return params.MustEntryID(params.Object{
		"action":  params.String(p.Action),
		"mapping": pairs,
	})
}

// Planner computes migration plans without touching the store.
type Planner struct {
	spec  *pipeline.Spec
	store workspace.Store
}

// NewPlanner creates a Planner over a spec and store.
func NewPlanner(spec *pipeline.Spec, store workspace.Store) *Planner {
	return &Planner{spec: spec, store: store}
}

// Plan applies the transform to every persisted entry of the action and
// records the resulting identity mapping. Collisions are detected here,
// transform-agnostically, and flagged on the plan rather than resolved:
// the executor refuses flagged plans unless explicitly overridden.
func (pl *Planner) Plan(actionName string, transform Transform, description string) (*Plan, error) {
	if _, err := pl.spec.Action(actionName); err != nil {
		return nil, err
	}

	ids, err := pl.store.List(actionName)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Action:    actionName,
		CreatedAt: time.Now().UTC(),
		Transform: description,
	}
	targets := make(map[string][]string)

	for _, id := range ids {
		oldState, err := pl.store.State(id)
		if err != nil {
			return nil, err
		}
		newState, err := transform(oldState.Clone())
		if err != nil {
			return nil, fmt.Errorf("transform entry %s of action %q: %w", id, actionName, err)
		}
		newState[pipeline.ActionKey] = params.String(actionName)

		newID, err := params.EntryID(newState)
		if err != nil {
			return nil, fmt.Errorf("entry %s of action %q: %w", id, actionName, err)
		}
		plan.Rows = append(plan.Rows, MappingRow{
			OldID:    id,
			NewID:    newID,
			OldState: oldState,
			NewState: newState,
		})
		targets[newID] = append(targets[newID], id)
	}

	newIDs := make([]string, 0, len(targets))
	for newID := range targets {
		newIDs = append(newIDs, newID)
	}
	sort.Strings(newIDs)
	for _, newID := range newIDs {
		if olds := targets[newID]; len(olds) > 1 {
			sort.Strings(olds)
			plan.Collisions = append(plan.Collisions, Collision{NewID: newID, OldIDs: olds})
		}
	}
	return plan, nil
}

// MigrationsDir returns the directory holding plan and run artifacts for a
// project root.
func MigrationsDir(root string) string {
	return filepath.Join(root, ".cairn", "migrations")
}

// DefaultPlanPath returns a timestamped path for a new plan artifact.
func DefaultPlanPath(root, action string) string {
	stamp := time.Now().UTC().Format("20060102T150405")
	return filepath.Join(MigrationsDir(root), fmt.Sprintf("plan_%s_%s.json", action, stamp))
}

// SavePlan writes the plan artifact. Plans are write-once; an existing
// file at the path is an error.
func SavePlan(plan *Plan, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("plan artifact %s already exists", path)
	}
	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadPlan reads a plan artifact from disk.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("load plan %s: %w", path, err)
	}
	return &plan, nil
}

// LatestPlan returns the newest plan artifact under the project root, by
// the timestamp embedded in the file name.
func LatestPlan(root string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(MigrationsDir(root), "plan_*.json"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no migration plans found under %s", MigrationsDir(root))
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// SetDefault returns a transform that adds key with value wherever the key
// is absent. Even an add-only transform can collide: two old entries that
// differ only in the defaulted key's presence converge after defaulting,
// so collision detection still runs on the resulting plan.
func SetDefault(key string, value params.Value) Transform {
	return func(sp params.Object) (params.Object, error) {
		if _, ok := sp[key]; !ok {
			sp[key] = value
		}
		return sp, nil
	}
}

// RenameKey returns a transform that renames a state-point key.
func RenameKey(from, to string) Transform {
	return func(sp params.Object) (params.Object, error) {
		if _, exists := sp[to]; exists {
			return nil, fmt.Errorf("rename %q: key %q already present", from, to)
		}
		if v, ok := sp[from]; ok {
			delete(sp, from)
			sp[to] = v
		}
		return sp, nil
	}
}

// DropKey returns a transform that removes a state-point key.
func DropKey(key string) Transform {
	return func(sp params.Object) (params.Object, error) {
		delete(sp, key)
		return sp, nil
	}
}

// Chain composes transforms left to right.
func Chain(transforms ...Transform) Transform {
	return func(sp params.Object) (params.Object, error) {
		var err error
		for _, t := range transforms {
			sp, err = t(sp)
			if err != nil {
				return nil, err
			}
		}
		return sp, nil
	}
}
