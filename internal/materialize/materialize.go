package materialize

import (
	"fmt"
	"log/slog"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

// DepsMetaKey is the reserved document key holding parent breadcrumbs: a
// snapshot of each parent's state point taken at materialization time.
const DepsMetaKey = "deps_meta"

// Report summarizes one materialization run.
type Report struct {
	// PerAction maps action name to the entry ids visited for it.
	PerAction map[string][]string `json:"per_action"`
	// Created counts entries that did not exist before this run.
	Created int `json:"created"`
	// Total counts all entries visited, new or existing.
	Total int `json:"total"`
	// DryRun records whether the store was left untouched.
	DryRun bool `json:"dry_run"`
	// RowErrors holds one message per aborted experiment row. Rows fail
	// independently; a bad row never affects its neighbors.
	RowErrors []string `json:"row_errors,omitempty"`
}

// Materializer walks experiments across actions in topological order,
// computing each entry's state point and creating it in the store.
type Materializer struct {
	spec   *pipeline.Spec
	store  workspace.Store
	dryRun bool
	log    *slog.Logger
}

// New creates a Materializer. With dryRun set, identifiers are computed
// and reported but the store is never written.
func New(spec *pipeline.Spec, store workspace.Store, dryRun bool) *Materializer {
	return &Materializer{
		spec:   spec,
		store:  store,
		dryRun: dryRun,
		log:    slog.Default().With("component", "materialize"),
	}
}

// Run materializes every experiment row. Re-running against an unchanged
// spec and experiment set is a no-op for existing entries: identifiers are
// deterministic and creation is create-or-open. Validation failures abort
// only the offending row and are collected in the report.
func (m *Materializer) Run() (*Report, error) {
	report := &Report{
		PerAction: make(map[string][]string),
		DryRun:    m.dryRun,
	}
	for i, row := range m.spec.Experiments {
		if err := m.runRow(row, report); err != nil {
			m.log.Warn("experiment row aborted", "row", i, "error", err)
			report.RowErrors = append(report.RowErrors, fmt.Sprintf("experiment #%d: %v", i, err))
		}
	}
	return report, nil
}

// runRow materializes one experiment row in topological action order, so a
// parent's id is always known before its children need it.
func (m *Materializer) runRow(row pipeline.Experiment, report *Report) error {
	type parent struct {
		id    string
		state params.Object
	}
	parents := make(map[string]parent)

	for _, action := range m.spec.TopologicalActions() {
		raw, declared := row[action.Name]
		if !declared {
			continue
		}

		values, err := m.validateParams(action, raw)
		if err != nil {
			return err
		}

		sp := params.Object{pipeline.ActionKey: params.String(action.Name)}
		for k, v := range values {
			sp[k] = v
		}

		var par parent
		if action.Dependency != nil {
			p, ok := parents[action.Dependency.Action]
			if !ok {
				return &pipeline.ValidationError{
					Action:  action.Name,
					Message: fmt.Sprintf("row does not materialize parent action %q", action.Dependency.Action),
				}
			}
			par = p
			sp[action.PointerKey()] = params.String(p.id)
		}

		id, err := m.materializeEntry(action, sp, par.id, par.state, report)
		if err != nil {
			return err
		}
		parents[action.Name] = parent{id: id, state: sp}
		report.PerAction[action.Name] = append(report.PerAction[action.Name], id)
		report.Total++
	}
	return nil
}

func (m *Materializer) materializeEntry(action *pipeline.Action, sp params.Object, parentID string, parentState params.Object, report *Report) (string, error) {
	if m.dryRun {
		id, err := params.EntryID(sp)
		if err != nil {
			return "", err
		}
		return id, nil
	}

	id, created, err := m.store.OpenOrCreate(sp)
	if err != nil {
		return "", err
	}
	if created {
		report.Created++
		m.log.Debug("entry created", "action", action.Name, "entry", id)
	}
	if parentID != "" {
		if err := m.writeBreadcrumb(id, action, parentID, parentState); err != nil {
			return "", err
		}
	}
	return id, nil
}

// writeBreadcrumb records the parent's full state point in the child's
// document under DepsMetaKey, keyed by the parent action name. The
// snapshot makes ancestry traceable even if the parent entry later
// disappears.
func (m *Materializer) writeBreadcrumb(id string, action *pipeline.Action, parentID string, parentState params.Object) error {
	doc, err := m.store.Document(id)
	if err != nil {
		return err
	}
	meta, _ := doc[DepsMetaKey].(params.Object)
	if meta == nil {
		meta = params.Object{}
	}
	meta[action.Dependency.Action] = params.Object{
		"entry_id":   params.String(parentID),
		"statepoint": parentState.Clone(),
	}
	doc[DepsMetaKey] = meta
	return m.store.SetDocument(id, doc)
}

// validateParams whitelists a row's parameters against the action's
// identity keys: undeclared keys and omitted keys both abort the row.
func (m *Materializer) validateParams(action *pipeline.Action, raw map[string]any) (params.Object, error) {
	for k := range raw {
		if !action.HasKey(k) {
			return nil, &pipeline.ValidationError{
				Action:  action.Name,
				Message: fmt.Sprintf("unknown parameter key %q", k),
			}
		}
	}
	values := make(params.Object, len(action.Keys))
	for _, k := range action.Keys {
		v, ok := raw[k]
		if !ok {
			return nil, &pipeline.ValidationError{
				Action:  action.Name,
				Message: fmt.Sprintf("missing required parameter key %q", k),
			}
		}
		pv, err := params.FromAny(v)
		if err != nil {
			return nil, &pipeline.ValidationError{
				Action:  action.Name,
				Message: fmt.Sprintf("parameter %q: %v", k, err),
			}
		}
		values[k] = pv
	}
	return values, nil
}
