package migrate

import (
	"fmt"
	"log/slog"

	"github.com/cairnproj/cairn/internal/materialize"
	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

// Options configure one apply run.
type Options struct {
	// PlanPath is recorded in the progress log for traceability.
	PlanPath string
	// Resume picks up an interrupted run of the same plan, skipping
	// entries already marked done.
	Resume bool
	// Force applies a collision-flagged plan anyway. Colliding entries
	// merge at the shared new identifier.
	Force bool
}

// Report summarizes an apply run.
type Report struct {
	Action string `json:"action"`
	RunID  string `json:"run_id"`
	// Updated counts rewritten entries per action, target included.
	Updated    map[string]int `json:"updated"`
	Collisions []Collision    `json:"collisions,omitempty"`
	PlanPath   string         `json:"plan_path,omitempty"`
	Resumed    bool           `json:"resumed"`
}

// Executor applies a migration plan: it rewrites the target action's
// entries to their new identities, then cascades pointer rewrites through
// every downstream action in topological order. All progress is persisted
// per entry, and every step is idempotent, so an interrupted apply resumed
// later converges to the same store state as an uninterrupted one.
type Executor struct {
	spec         *pipeline.Spec
	store        workspace.Store
	plan         *Plan
	progress     *Progress
	progressFile string
	log          *slog.Logger
}

// Execute runs a plan under the project lock. The lock is acquired
// non-blockingly and released on every exit path. root is the project
// directory holding migration artifacts and the lock.
func Execute(spec *pipeline.Spec, store workspace.Store, plan *Plan, root string, opts Options) (*Report, error) {
	if plan.HasCollisions() && !opts.Force {
		return nil, &CollisionError{Action: plan.Action, Collisions: plan.Collisions}
	}
	if _, err := spec.Action(plan.Action); err != nil {
		return nil, err
	}

	lock, err := AcquireLock(root)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	ex := &Executor{
		spec:         spec,
		store:        store,
		plan:         plan,
		progressFile: progressPath(root, plan),
		log:          slog.Default().With("component", "migrate", "action", plan.Action),
	}

	resumed := false
	if opts.Resume {
		prev, err := loadProgress(ex.progressFile)
		if err != nil {
			return nil, err
		}
		if prev != nil && prev.PlanFingerprint == plan.Fingerprint() {
			ex.progress = prev
			resumed = true
			ex.log.Info("resuming interrupted run", "run", prev.RunID)
		}
	}
	if ex.progress == nil {
		ex.progress = newProgress(plan, opts.PlanPath)
	}

	if err := ex.run(); err != nil {
		ex.progress.State = RunFailed
		if saveErr := ex.progress.save(ex.progressFile); saveErr != nil {
			ex.log.Error("progress log not persisted", "error", saveErr)
		}
		return nil, err
	}

	return &Report{
		Action:     plan.Action,
		RunID:      ex.progress.RunID,
		Updated:    ex.progress.Updated,
		Collisions: plan.Collisions,
		PlanPath:   opts.PlanPath,
		Resumed:    resumed,
	}, nil
}

func (ex *Executor) run() error {
	if err := ex.rewriteTarget(); err != nil {
		return err
	}
	if err := ex.cascade(); err != nil {
		return err
	}
	ex.progress.State = RunDone
	return ex.progress.save(ex.progressFile)
}

// rewriteTarget applies the plan's mapping rows to the target action. Each
// entry's new state point is written at the old location first, then the
// entry is relocated to its new identifier. Relocation keeps the old copy
// until the new one is verified, so any crash point here is re-runnable.
func (ex *Executor) rewriteTarget() error {
	ex.progress.State = RunRewriting
	mapping := ex.progress.mapping(ex.plan.Action)

	for _, row := range ex.plan.Rows {
		mapping[row.OldID] = row.NewID
		if ex.progress.Entries[row.OldID] == StatusDone {
			continue
		}
		if err := ex.rewriteEntry(row); err != nil {
			ex.progress.Entries[row.OldID] = StatusFailed
			return fmt.Errorf("run %s: rewrite entry %s of action %q: %w",
				ex.progress.RunID, row.OldID, ex.plan.Action, err)
		}
		ex.progress.Entries[row.OldID] = StatusDone
		if err := ex.progress.save(ex.progressFile); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Executor) rewriteEntry(row MappingRow) error {
	if row.OldID == row.NewID {
		return nil // identity transform for this entry
	}
	if !ex.store.Has(row.OldID) {
		if ex.store.Has(row.NewID) {
			return nil // relocated by an earlier interrupted run
		}
		return fmt.Errorf("entry vanished: %w", workspace.ErrNotFound)
	}

	current, err := ex.store.State(row.OldID)
	if err != nil {
		return err
	}
	if !current.Equal(row.NewState) {
		if err := ex.store.SetState(row.OldID, row.NewState); err != nil {
			return err
		}
	}
	if err := ex.store.Relocate(row.OldID, row.NewID); err != nil {
		return err
	}
	ex.progress.Updated[ex.plan.Action]++
	ex.log.Debug("entry rewritten", "old", row.OldID, "new", row.NewID)
	return nil
}

// cascade walks every action downstream of the target in topological
// order. An entry is rewritten when its pointer value matches a changed
// identifier in the parent action's mapping, or when its identifier no
// longer hashes its state point; the rewrite changes the entry's own
// identity, which feeds this action's mapping for the next hop. Per-entry
// failures are logged as failed and do not abort the cascade; a resumed
// run retries them.
func (ex *Executor) cascade() error {
	ex.progress.State = RunCascading
	if err := ex.progress.save(ex.progressFile); err != nil {
		return err
	}

	failures := 0
	for _, action := range ex.spec.Downstream(ex.plan.Action) {
		parentMap := ex.progress.Mapping[action.Dependency.Action]
		if len(parentMap) == 0 {
			continue
		}
		ids, err := ex.store.List(action.Name)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if ex.progress.Entries[id] == StatusDone {
				continue
			}
			changed, err := ex.rewritePointer(action, id, parentMap)
			if err != nil {
				ex.log.Warn("downstream rewrite failed", "downstream", action.Name, "entry", id, "error", err)
				ex.progress.Entries[id] = StatusFailed
				failures++
				if saveErr := ex.progress.save(ex.progressFile); saveErr != nil {
					return saveErr
				}
				continue
			}
			if changed {
				ex.progress.Entries[id] = StatusDone
				if err := ex.progress.save(ex.progressFile); err != nil {
					return err
				}
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("run %s: %d downstream entries failed; rerun apply to retry them", ex.progress.RunID, failures)
	}
	return nil
}

// rewritePointer updates one downstream entry whose pointer references a
// changed parent identifier. The decision is made against current stored
// state, not just the mapping: an entry whose state point was already
// rewritten but never relocated (a crash between the two steps) still has
// an identifier that is not the hash of its state point, and must be
// relocated and recorded on rescan even though its pointer needs no change.
func (ex *Executor) rewritePointer(action *pipeline.Action, id string, parentMap map[string]string) (bool, error) {
	sp, err := ex.store.State(id)
	if err != nil {
		return false, err
	}
	ptr := action.PointerKey()
	newSP := sp
	if parentID, ok := sp[ptr].(params.String); ok {
		if newParentID, mapped := parentMap[string(parentID)]; mapped && newParentID != string(parentID) {
			newSP = sp.Clone()
			newSP[ptr] = params.String(newParentID)
		}
	}
	newID, err := params.EntryID(newSP)
	if err != nil {
		return false, err
	}
	if newID == id {
		return false, nil
	}

	if !sp.Equal(newSP) {
		if err := ex.store.SetState(id, newSP); err != nil {
			return false, err
		}
	}
	if err := ex.store.Relocate(id, newID); err != nil {
		return false, err
	}
	if pid, ok := newSP[ptr].(params.String); ok {
		ex.refreshBreadcrumb(newID, action, string(pid))
	}

	ex.progress.mapping(action.Name)[id] = newID
	ex.progress.Updated[action.Name]++
	ex.log.Debug("pointer rewritten", "downstream", action.Name, "old", id, "new", newID)
	return true, nil
}

// refreshBreadcrumb repairs the deps_meta snapshot after a pointer
// rewrite. Best effort: a failure leaves a stale breadcrumb, never a
// broken entry.
func (ex *Executor) refreshBreadcrumb(id string, action *pipeline.Action, parentID string) {
	parentState, err := ex.store.State(parentID)
	if err != nil {
		ex.log.Warn("breadcrumb refresh skipped", "entry", id, "error", err)
		return
	}
	doc, err := ex.store.Document(id)
	if err != nil {
		ex.log.Warn("breadcrumb refresh skipped", "entry", id, "error", err)
		return
	}
	meta, _ := doc[materialize.DepsMetaKey].(params.Object)
	if meta == nil {
		meta = params.Object{}
	}
	meta[action.Dependency.Action] = params.Object{
		"entry_id":   params.String(parentID),
		"statepoint": parentState,
	}
	doc[materialize.DepsMetaKey] = meta
	if err := ex.store.SetDocument(id, doc); err != nil {
		ex.log.Warn("breadcrumb refresh skipped", "entry", id, "error", err)
	}
}
