package workspace

import (
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
)

// Mem is an in-memory Store used by tests and dry runs. Entries are deep
// copied in and out, so callers never share mutable state with the store.
type Mem struct {
	mu     sync.Mutex
	states map[string]params.Object
	docs   map[string]params.Object
	files  map[string]map[string]bool // simulated workspace artifacts per entry
}

// NewMem creates an empty in-memory store.
func NewMem() *Mem {
	return &Mem{
		states: make(map[string]params.Object),
		docs:   make(map[string]params.Object),
		files:  make(map[string]map[string]bool),
	}
}

// OpenOrCreate implements Store.
func (m *Mem) OpenOrCreate(statePoint params.Object) (string, bool, error) {
	id, err := params.EntryID(statePoint)
	if err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; ok {
		return id, false, nil
	}
	m.states[id] = statePoint.Clone()
	return id, true, nil
}

// Has implements Store.
func (m *Mem) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.states[id]
	return ok
}

// State implements Store.
func (m *Mem) State(id string) (params.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.states[id]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return sp.Clone(), nil
}

// SetState implements Store.
func (m *Mem) SetState(id string, statePoint params.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return fmt.Errorf("set state of %s: %w", id, ErrNotFound)
	}
	m.states[id] = statePoint.Clone()
	return nil
}

// Document implements Store.
func (m *Mem) Document(id string) (params.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return nil, fmt.Errorf("document of %s: %w", id, ErrNotFound)
	}
	doc, ok := m.docs[id]
	if !ok {
		return params.Object{}, nil
	}
	return doc.Clone(), nil
}

// SetDocument implements Store.
func (m *Mem) SetDocument(id string, doc params.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[id]; !ok {
		return fmt.Errorf("set document of %s: %w", id, ErrNotFound)
	}
	m.docs[id] = doc.Clone()
	return nil
}

// List implements Store.
func (m *Mem) List(action string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, sp := range m.states {
		if name, ok := sp[pipeline.ActionKey].(params.String); ok && string(name) == action {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Relocate implements Store.
func (m *Mem) Relocate(oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[oldID]; !ok {
		if _, ok := m.states[newID]; ok {
			return nil // already relocated
		}
		return fmt.Errorf("relocate %s: %w", oldID, ErrNotFound)
	}
	m.states[newID] = m.states[oldID]
	if doc, ok := m.docs[oldID]; ok {
		m.docs[newID] = doc
	}
	if fs, ok := m.files[oldID]; ok {
		m.files[newID] = fs
	}
	delete(m.states, oldID)
	delete(m.docs, oldID)
	delete(m.files, oldID)
	return nil
}

// Path implements Store with a synthetic per-entry path.
func (m *Mem) Path(id string) string {
	return path.Join("mem:", id)
}

// Touch records a simulated artifact file for an entry. Tests use it to
// exercise output-existence checks without a real filesystem.
func (m *Mem) Touch(id, relpath string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[id] == nil {
		m.files[id] = make(map[string]bool)
	}
	m.files[id][relpath] = true
}

// HasArtifact implements Store against the simulated artifact set.
func (m *Mem) HasArtifact(id, relpath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[id][relpath]
}
