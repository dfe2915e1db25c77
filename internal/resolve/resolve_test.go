package resolve

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnproj/cairn/internal/materialize"
	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

func testSpec(t *testing.T) *pipeline.Spec {
	t.Helper()
	spec, err := pipeline.NewSpec([]*pipeline.Action{
		{Name: "s1", Keys: []string{"p1"}, Outputs: []string{"out.dat"}},
		{Name: "s2", Keys: []string{"p2"}, Dependency: &pipeline.Dependency{Action: "s1"}},
		{Name: "s3", Keys: []string{"p3"}, Dependency: &pipeline.Dependency{Action: "s2"}},
	}, []pipeline.Experiment{{
		"s1": {"p1": 1},
		"s2": {"p2": 10},
		"s3": {"p3": 0.1},
	}}, pipeline.Workspace{})
	require.NoError(t, err)
	return spec
}

// seed materializes the single experiment row and returns the store plus
// the entry ids keyed by action.
func seed(t *testing.T, spec *pipeline.Spec) (*workspace.Mem, map[string]string) {
	t.Helper()
	store := workspace.NewMem()
	report, err := materialize.New(spec, store, false).Run()
	require.NoError(t, err)
	require.Empty(t, report.RowErrors)

	ids := make(map[string]string)
	for action, list := range report.PerAction {
		require.Len(t, list, 1)
		ids[action] = list[0]
	}
	return store, ids
}

func TestParent(t *testing.T) {
	spec := testSpec(t)
	store, ids := seed(t, spec)
	r := New(spec, store)

	parent, err := r.Parent(ids["s2"])
	require.NoError(t, err)
	assert.Equal(t, ids["s1"], parent)

	parent, err = r.Parent(ids["s3"])
	require.NoError(t, err)
	assert.Equal(t, ids["s2"], parent)
}

func TestParent_NoDependencyDeclared(t *testing.T) {
	spec := testSpec(t)
	store, ids := seed(t, spec)

	_, err := New(spec, store).Parent(ids["s1"])
	require.Error(t, err)
	assert.False(t, IsMissingParent(err), "a root action is a usage error, not a broken pointer")
}

func TestParent_PointerKeyAbsent(t *testing.T) {
	spec := testSpec(t)
	store := workspace.NewMem()
	id, _, err := store.OpenOrCreate(params.Object{
		pipeline.ActionKey: params.String("s2"),
		"p2":               params.Int(10),
	})
	require.NoError(t, err)

	_, err = New(spec, store).Parent(id)
	require.Error(t, err)
	assert.True(t, IsMissingParent(err))
}

func TestParent_DanglingPointer(t *testing.T) {
	spec := testSpec(t)
	store := workspace.NewMem()
	id, _, err := store.OpenOrCreate(params.Object{
		pipeline.ActionKey:         params.String("s2"),
		"p2":                       params.Int(10),
		pipeline.DefaultPointerKey: params.String("deadbeef"),
	})
	require.NoError(t, err)

	_, err = New(spec, store).Parent(id)
	require.Error(t, err)
	assert.True(t, IsMissingParent(err))
	assert.Contains(t, err.Error(), "deadbeef")
}

func TestParentState(t *testing.T) {
	spec := testSpec(t)
	store, ids := seed(t, spec)

	sp, err := New(spec, store).ParentState(ids["s2"])
	require.NoError(t, err)
	assert.Equal(t, params.Int(1), sp["p1"])
	assert.Equal(t, params.String("s1"), sp[pipeline.ActionKey])
}

func TestProductExists(t *testing.T) {
	spec := testSpec(t)
	store, ids := seed(t, spec)
	r := New(spec, store)

	ok, err := r.ProductExists(ids["s2"], "out.dat")
	require.NoError(t, err)
	assert.False(t, ok)

	store.Touch(ids["s1"], "out.dat")
	ok, err = r.ProductExists(ids["s2"], "out.dat")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParentFile(t *testing.T) {
	spec := testSpec(t)
	store, ids := seed(t, spec)
	r := New(spec, store)

	_, err := r.ParentFile(ids["s2"], "out.dat")
	require.Error(t, err, "the parent has not produced the file yet")

	store.Touch(ids["s1"], "out.dat")
	path, err := r.ParentFile(ids["s2"], "out.dat")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Path(ids["s1"]), "out.dat"), path)
}

func TestParentDoc(t *testing.T) {
	spec := testSpec(t)
	store, ids := seed(t, spec)
	r := New(spec, store)

	doc, err := store.Document(ids["s1"])
	require.NoError(t, err)
	doc["energy"] = params.Float(-1.5)
	require.NoError(t, store.SetDocument(ids["s1"], doc))

	v, ok, err := r.ParentDoc(ids["s2"], "energy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, params.Float(-1.5), v)

	// Bookkeeping keys are invisible even when present.
	_, ok, err = r.ParentDoc(ids["s3"], materialize.DepsMetaKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
