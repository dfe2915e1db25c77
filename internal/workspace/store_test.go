package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
)

// stores returns each Store implementation under test.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	dir, err := OpenDir(t.TempDir(), "")
	require.NoError(t, err)
	return map[string]Store{
		"dir": dir,
		"mem": NewMem(),
	}
}

func sp(action string, key string, v int64) params.Object {
	return params.Object{
		"action": params.String(action),
		key:      params.Int(v),
	}
}

func TestOpenOrCreate_Idempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, created, err := store.OpenOrCreate(sp("s1", "p1", 1))
			require.NoError(t, err)
			assert.True(t, created)

			again, created, err := store.OpenOrCreate(sp("s1", "p1", 1))
			require.NoError(t, err)
			assert.False(t, created, "second open of same state point must not create")
			assert.Equal(t, id, again)
		})
	}
}

func TestStateRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			orig := sp("s1", "p1", 1)
			id, _, err := store.OpenOrCreate(orig)
			require.NoError(t, err)

			got, err := store.State(id)
			require.NoError(t, err)
			assert.True(t, orig.Equal(got))

			updated := sp("s1", "p1", 2)
			require.NoError(t, store.SetState(id, updated))
			got, err = store.State(id)
			require.NoError(t, err)
			assert.True(t, updated.Equal(got))
		})
	}
}

func TestDocument_DefaultsEmpty(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, _, err := store.OpenOrCreate(sp("s1", "p1", 1))
			require.NoError(t, err)

			doc, err := store.Document(id)
			require.NoError(t, err)
			assert.Empty(t, doc)

			doc["note"] = params.String("hi")
			require.NoError(t, store.SetDocument(id, doc))
			got, err := store.Document(id)
			require.NoError(t, err)
			assert.Equal(t, params.String("hi"), got["note"])
		})
	}
}

func TestList_FiltersByAction(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a1, _, err := store.OpenOrCreate(sp("s1", "p1", 1))
			require.NoError(t, err)
			a2, _, err := store.OpenOrCreate(sp("s1", "p1", 2))
			require.NoError(t, err)
			_, _, err = store.OpenOrCreate(sp("s2", "p2", 1))
			require.NoError(t, err)

			ids, err := store.List("s1")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{a1, a2}, ids)
			assert.IsIncreasing(t, ids, "enumeration must be deterministic")
		})
	}
}

func TestMissingEntryErrors(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const ghost = "deadbeef"
			_, err := store.State(ghost)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.Document(ghost)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.SetState(ghost, sp("s1", "p1", 1)), ErrNotFound)
			assert.False(t, store.Has(ghost))
		})
	}
}

func TestRelocate(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			id, _, err := store.OpenOrCreate(sp("s1", "p1", 1))
			require.NoError(t, err)
			require.NoError(t, store.SetDocument(id, params.Object{"note": params.String("keep")}))

			newState := sp("s1", "p1", 99)
			newID, err := params.EntryID(newState)
			require.NoError(t, err)
			require.NoError(t, store.SetState(id, newState))
			require.NoError(t, store.Relocate(id, newID))

			assert.False(t, store.Has(id), "old copy deleted after verification")
			assert.True(t, store.Has(newID))

			doc, err := store.Document(newID)
			require.NoError(t, err)
			assert.Equal(t, params.String("keep"), doc["note"], "document travels with the entry")

			// Re-running the same relocation is a no-op, not an error.
			require.NoError(t, store.Relocate(id, newID))

			// Relocating to the same id is a no-op.
			require.NoError(t, store.Relocate(newID, newID))
		})
	}
}

func TestRelocate_MissingSource(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Relocate("missing-old", "missing-new")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestDir_RelocateCarriesArtifacts(t *testing.T) {
	dir, err := OpenDir(t.TempDir(), "")
	require.NoError(t, err)

	id, _, err := dir.OpenOrCreate(sp("s1", "p1", 1))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(dir.Path(id), "out"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir.Path(id), "out", "result.csv"), []byte("x\n"), 0o644))
	assert.True(t, dir.HasArtifact(id, "out/result.csv"))

	newState := sp("s1", "p1", 2)
	newID, err := params.EntryID(newState)
	require.NoError(t, err)
	require.NoError(t, dir.SetState(id, newState))
	require.NoError(t, dir.Relocate(id, newID))

	assert.True(t, dir.HasArtifact(newID, "out/result.csv"), "workspace artifacts move with the entry")
	_, statErr := os.Stat(dir.Path(id))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDir_HalfCreatedEntryNotCounted(t *testing.T) {
	dir, err := OpenDir(t.TempDir(), "")
	require.NoError(t, err)

	// A bare directory without a state-point file is not an entry.
	require.NoError(t, os.MkdirAll(dir.Path("orphan"), 0o755))
	assert.False(t, dir.Has("orphan"))

	ids, err := dir.List("s1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestDir_ListSurfacesCorruptEntry(t *testing.T) {
	dir, err := OpenDir(t.TempDir(), "")
	require.NoError(t, err)

	healthy, _, err := dir.OpenOrCreate(sp("s1", "p1", 1))
	require.NoError(t, err)
	damaged, _, err := dir.OpenOrCreate(sp("s1", "p1", 2))
	require.NoError(t, err)
	spFile := filepath.Join(dir.Path(damaged), pipeline.DefaultValueFile)
	require.NoError(t, os.WriteFile(spFile, []byte("{not json"), 0o644))

	// A damaged entry must not silently vanish from enumeration.
	_, err = dir.List("s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), damaged)
	assert.True(t, dir.Has(healthy))
}
