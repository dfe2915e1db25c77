package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
)

// DocumentFile is the file name each entry's document map is stored under.
const DocumentFile = "cairn_document.json"

// Dir is a filesystem-backed Store. Each entry owns one directory named by
// its id under <root>/workspace, holding the state-point value file, the
// document file, and whatever artifacts the action writes there.
type Dir struct {
	root      string
	valueFile string
}

// OpenDir opens (creating if needed) a directory store rooted at root.
// valueFile is the per-entry state-point file name; empty selects the
// default.
func OpenDir(root, valueFile string) (*Dir, error) {
	if valueFile == "" {
		valueFile = pipeline.DefaultValueFile
	}
	if err := os.MkdirAll(filepath.Join(root, "workspace"), 0o755); err != nil {
		return nil, fmt.Errorf("init workspace at %s: %w", root, err)
	}
	return &Dir{root: root, valueFile: valueFile}, nil
}

// Root returns the project root directory.
func (d *Dir) Root() string {
	return d.root
}

// Path returns the entry's workspace directory.
func (d *Dir) Path(id string) string {
	return filepath.Join(d.root, "workspace", id)
}

// HasArtifact implements Store.
func (d *Dir) HasArtifact(id, relpath string) bool {
	_, err := os.Stat(filepath.Join(d.Path(id), relpath))
	return err == nil
}

func (d *Dir) statePath(id string) string {
	return filepath.Join(d.Path(id), d.valueFile)
}

func (d *Dir) docPath(id string) string {
	return filepath.Join(d.Path(id), DocumentFile)
}

// OpenOrCreate implements Store.
func (d *Dir) OpenOrCreate(statePoint params.Object) (string, bool, error) {
	id, err := params.EntryID(statePoint)
	if err != nil {
		return "", false, err
	}
	if d.Has(id) {
		return id, false, nil
	}
	if err := os.MkdirAll(d.Path(id), 0o755); err != nil {
		return "", false, fmt.Errorf("create entry %s: %w", id, err)
	}
	if err := writeJSON(d.statePath(id), statePoint); err != nil {
		return "", false, fmt.Errorf("create entry %s: %w", id, err)
	}
	return id, true, nil
}

// Has implements Store. Existence is defined by the state-point file, not
// the bare directory, so a half-created entry does not count.
func (d *Dir) Has(id string) bool {
	_, err := os.Stat(d.statePath(id))
	return err == nil
}

// State implements Store.
func (d *Dir) State(id string) (params.Object, error) {
	return readJSON(d.statePath(id), id)
}

// SetState implements Store.
func (d *Dir) SetState(id string, statePoint params.Object) error {
	if !d.Has(id) {
		return fmt.Errorf("set state of %s: %w", id, ErrNotFound)
	}
	return writeJSON(d.statePath(id), statePoint)
}

// Document implements Store. An entry without a document file reads as an
// empty object.
func (d *Dir) Document(id string) (params.Object, error) {
	if !d.Has(id) {
		return nil, fmt.Errorf("document of %s: %w", id, ErrNotFound)
	}
	if _, err := os.Stat(d.docPath(id)); os.IsNotExist(err) {
		return params.Object{}, nil
	}
	return readJSON(d.docPath(id), id)
}

// SetDocument implements Store.
func (d *Dir) SetDocument(id string, doc params.Object) error {
	if !d.Has(id) {
		return fmt.Errorf("set document of %s: %w", id, ErrNotFound)
	}
	return writeJSON(d.docPath(id), doc)
}

// List implements Store. Each candidate's state point is read fresh and
// filtered on its action discriminator.
func (d *Dir) List(action string) ([]string, error) {
	dirs, err := os.ReadDir(filepath.Join(d.root, "workspace"))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var ids []string
	for _, ent := range dirs {
		if !ent.IsDir() {
			continue
		}
		id := ent.Name()
		sp, err := d.State(id)
		if errors.Is(err, ErrNotFound) {
			continue // no state point file yet, e.g. a create that crashed
		}
		if err != nil {
			return nil, fmt.Errorf("list entries: %w", err)
		}
		if name, ok := sp[pipeline.ActionKey].(params.String); ok && string(name) == action {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Relocate implements Store. Copy first, verify, then delete the old copy;
// every step tolerates a rerun after a crash.
func (d *Dir) Relocate(oldID, newID string) error {
	if oldID == newID {
		return nil
	}
	oldPath, newPath := d.Path(oldID), d.Path(newID)

	if _, err := os.Stat(oldPath); os.IsNotExist(err) {
		if d.Has(newID) {
			return nil // already relocated by an earlier run
		}
		return fmt.Errorf("relocate %s: %w", oldID, ErrNotFound)
	}

	if err := copyTree(oldPath, newPath); err != nil {
		return &RelocationError{OldID: oldID, NewID: newID, Err: err}
	}
	if !d.Has(newID) {
		return &RelocationError{OldID: oldID, NewID: newID, Err: fmt.Errorf("copy verification failed: %s missing", d.statePath(newID))}
	}
	if err := os.RemoveAll(oldPath); err != nil {
		return &RelocationError{OldID: oldID, NewID: newID, Err: err}
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeJSON(path string, obj params.Object) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func readJSON(path, id string) (params.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var obj params.Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("entry %s: corrupt %s: %w", id, filepath.Base(path), err)
	}
	return obj, nil
}
