package workspace

import (
	"errors"
	"fmt"

	"github.com/cairnproj/cairn/internal/params"
)

// ErrNotFound is returned when no entry exists under the requested id.
var ErrNotFound = errors.New("entry not found")

// Store is the persistence contract for pipeline entries. Every read is a
// fresh lookup against the backing medium; implementations must not cache
// entries across calls, so concurrent external mutation (for example by a
// running action) is observed at the next read.
type Store interface {
	// OpenOrCreate resolves the entry for a canonical state point,
	// creating it when absent. Returns the entry id and whether a new
	// entry was created. Idempotent.
	OpenOrCreate(statePoint params.Object) (id string, created bool, err error)

	// State returns the entry's current state point.
	State(id string) (params.Object, error)

	// SetState overwrites the entry's state point in place, without
	// changing the entry's location. Used mid-migration before relocation.
	SetState(id string, statePoint params.Object) error

	// Document returns the entry's auxiliary document map. A missing
	// document on an existing entry reads as an empty object.
	Document(id string) (params.Object, error)

	// SetDocument overwrites the entry's document map.
	SetDocument(id string, doc params.Object) error

	// List enumerates the ids of all entries belonging to an action,
	// in lexicographic id order.
	List(action string) ([]string, error)

	// Has reports whether an entry exists under the id.
	Has(id string) bool

	// Relocate moves an entry's full persisted contents from oldID to
	// newID. The old copy is deleted only after the new copy is verified
	// present, and re-running after a crash converges: if only the new
	// copy exists the call is a no-op.
	Relocate(oldID, newID string) error

	// Path returns the entry's workspace directory, where action
	// processes read inputs and write declared outputs.
	Path(id string) string

	// HasArtifact reports whether a file exists at relpath inside the
	// entry's workspace.
	HasArtifact(id, relpath string) bool
}

// RelocationError reports an I/O failure while copying an entry to its new
// identifier. Both the old and new copies remain on disk; the operation is
// safe to retry.
type RelocationError struct {
	OldID string
	NewID string
	Err   error
}

func (e *RelocationError) Error() string {
	return fmt.Sprintf("relocate entry %s -> %s: %v", e.OldID, e.NewID, e.Err)
}

func (e *RelocationError) Unwrap() error {
	return e.Err
}
