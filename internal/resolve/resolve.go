package resolve

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

// MissingParentError reports a dependent entry whose parent cannot be
// resolved: the pointer key is absent from its state point, or no entry
// exists under the referenced identifier. Never silently defaulted.
type MissingParentError struct {
	EntryID    string
	PointerKey string
	ParentID   string // empty when the pointer key itself is absent
}

func (e *MissingParentError) Error() string {
	if e.ParentID == "" {
		return fmt.Sprintf("entry %s has no %q key in its state point", e.EntryID, e.PointerKey)
	}
	return fmt.Sprintf("parent entry %s not found for entry %s", e.ParentID, e.EntryID)
}

// IsMissingParent reports whether err is (or wraps) a MissingParentError.
func IsMissingParent(err error) bool {
	var mpe *MissingParentError
	return errors.As(err, &mpe)
}

// Resolver looks up parent entries through dependency pointers. It is
// shared by the materializer, the migration executor, and downstream
// action scripts, so resolution logic lives in exactly one place.
type Resolver struct {
	spec  *pipeline.Spec
	store workspace.Store
}

// New creates a Resolver over a spec and store.
func New(spec *pipeline.Spec, store workspace.Store) *Resolver {
	return &Resolver{spec: spec, store: store}
}

// Parent returns the id of the entry referenced by the dependency pointer
// in the given entry's state point. The spec's dependency declaration for
// the entry's action decides which pointer key to read.
func (r *Resolver) Parent(id string) (string, error) {
	sp, err := r.store.State(id)
	if err != nil {
		return "", err
	}
	action, err := r.actionOf(id, sp)
	if err != nil {
		return "", err
	}
	if action.Dependency == nil {
		return "", fmt.Errorf("action %q declares no dependency", action.Name)
	}
	ptr := action.PointerKey()
	parentID, ok := sp[ptr].(params.String)
	if !ok {
		return "", &MissingParentError{EntryID: id, PointerKey: ptr}
	}
	if !r.store.Has(string(parentID)) {
		return "", &MissingParentError{EntryID: id, PointerKey: ptr, ParentID: string(parentID)}
	}
	return string(parentID), nil
}

// ParentState returns the parent's current state point, freshly read.
func (r *Resolver) ParentState(id string) (params.Object, error) {
	parentID, err := r.Parent(id)
	if err != nil {
		return nil, err
	}
	return r.store.State(parentID)
}

// ParentPath returns the parent entry's workspace directory.
func (r *Resolver) ParentPath(id string) (string, error) {
	parentID, err := r.Parent(id)
	if err != nil {
		return "", err
	}
	return r.store.Path(parentID), nil
}

// ParentFile returns the path of a named file inside the parent entry's
// workspace, failing when the file does not exist yet. Use ProductExists
// for a non-fatal check.
func (r *Resolver) ParentFile(id, relpath string) (string, error) {
	parentID, err := r.Parent(id)
	if err != nil {
		return "", err
	}
	if !r.store.HasArtifact(parentID, relpath) {
		return "", fmt.Errorf("parent entry %s has no file %q", parentID, relpath)
	}
	return filepath.Join(r.store.Path(parentID), relpath), nil
}

// ProductExists reports whether a named output path exists under the
// resolved parent's workspace. Downstream consumers use this to gate
// their own work without duplicating resolution logic.
func (r *Resolver) ProductExists(id, relpath string) (bool, error) {
	parentID, err := r.Parent(id)
	if err != nil {
		return false, err
	}
	return r.store.HasArtifact(parentID, relpath), nil
}

// ParentDoc returns a value from the parent entry's document, ignoring
// reserved bookkeeping keys. The second return reports presence.
func (r *Resolver) ParentDoc(id, key string) (params.Value, bool, error) {
	if reservedDocKeys[key] {
		return nil, false, nil
	}
	parentID, err := r.Parent(id)
	if err != nil {
		return nil, false, err
	}
	doc, err := r.store.Document(parentID)
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	return v, ok, nil
}

func (r *Resolver) actionOf(id string, sp params.Object) (*pipeline.Action, error) {
	name, ok := sp[pipeline.ActionKey].(params.String)
	if !ok {
		return nil, fmt.Errorf("entry %s: state point has no %q key", id, pipeline.ActionKey)
	}
	return r.spec.Action(string(name))
}
