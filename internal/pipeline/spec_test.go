package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainActions() []*Action {
	return []*Action{
		{Name: "s1", Keys: []string{"p1"}},
		{Name: "s2", Keys: []string{"p2"}, Dependency: &Dependency{Action: "s1"}},
		{Name: "s3", Keys: []string{"p3"}, Dependency: &Dependency{Action: "s2"}},
	}
}

func TestNewSpec_ValidChain(t *testing.T) {
	spec, err := NewSpec(chainActions(), nil, Workspace{})
	require.NoError(t, err)

	order := spec.TopologicalActions()
	names := make([]string, len(order))
	for i, a := range order {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"s1", "s2", "s3"}, names)
	assert.Equal(t, DefaultValueFile, spec.Workspace.ValueFile)
}

func TestTopologicalActions_ParentAlwaysFirst(t *testing.T) {
	// Declared with children before parents; the order must still put
	// every parent ahead of its dependents.
	actions := []*Action{
		{Name: "leaf", Keys: []string{"x"}, Dependency: &Dependency{Action: "mid"}},
		{Name: "mid", Keys: []string{"y"}, Dependency: &Dependency{Action: "root"}},
		{Name: "root", Keys: []string{"z"}},
		{Name: "side", Keys: []string{"w"}, Dependency: &Dependency{Action: "root"}},
	}
	spec, err := NewSpec(actions, nil, Workspace{})
	require.NoError(t, err)

	pos := map[string]int{}
	for i, a := range spec.TopologicalActions() {
		pos[a.Name] = i
	}
	assert.Less(t, pos["root"], pos["mid"])
	assert.Less(t, pos["mid"], pos["leaf"])
	assert.Less(t, pos["root"], pos["side"])
}

func TestTopologicalActions_DeclarationOrderTieBreak(t *testing.T) {
	// Three independent roots: ties resolve by declaration order.
	actions := []*Action{
		{Name: "c", Keys: []string{"x"}},
		{Name: "a", Keys: []string{"y"}},
		{Name: "b", Keys: []string{"z"}},
	}
	spec, err := NewSpec(actions, nil, Workspace{})
	require.NoError(t, err)

	var names []string
	for _, a := range spec.TopologicalActions() {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestNewSpec_CycleDetected(t *testing.T) {
	actions := []*Action{
		{Name: "a", Keys: []string{"x"}, Dependency: &Dependency{Action: "b"}},
		{Name: "b", Keys: []string{"y"}, Dependency: &Dependency{Action: "a"}},
	}
	_, err := NewSpec(actions, nil, Workspace{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "cycle")
}

func TestNewSpec_DanglingDependency(t *testing.T) {
	actions := []*Action{
		{Name: "a", Keys: []string{"x"}, Dependency: &Dependency{Action: "ghost"}},
	}
	_, err := NewSpec(actions, nil, Workspace{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestNewSpec_DuplicateName(t *testing.T) {
	actions := []*Action{
		{Name: "a", Keys: []string{"x"}},
		{Name: "a", Keys: []string{"y"}},
	}
	_, err := NewSpec(actions, nil, Workspace{})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestNewSpec_ReservedKeyRejected(t *testing.T) {
	actions := []*Action{
		{Name: "a", Keys: []string{ActionKey}},
	}
	_, err := NewSpec(actions, nil, Workspace{})
	assert.Error(t, err)
}

func TestNewSpec_PointerKeyCollision(t *testing.T) {
	actions := []*Action{
		{Name: "a", Keys: []string{"x"}},
		{Name: "b", Keys: []string{"parent_action"}, Dependency: &Dependency{Action: "a"}},
	}
	_, err := NewSpec(actions, nil, Workspace{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pointer key")
}

func TestPointerKey_Default(t *testing.T) {
	a := &Action{Name: "b", Dependency: &Dependency{Action: "a"}}
	assert.Equal(t, DefaultPointerKey, a.PointerKey())

	a.Dependency.PointerKey = "upstream"
	assert.Equal(t, "upstream", a.PointerKey())

	root := &Action{Name: "a"}
	assert.Equal(t, "", root.PointerKey())
}

func TestDownstream(t *testing.T) {
	actions := []*Action{
		{Name: "root", Keys: []string{"r"}},
		{Name: "mid", Keys: []string{"m"}, Dependency: &Dependency{Action: "root"}},
		{Name: "leaf", Keys: []string{"l"}, Dependency: &Dependency{Action: "mid"}},
		{Name: "island", Keys: []string{"i"}},
	}
	spec, err := NewSpec(actions, nil, Workspace{})
	require.NoError(t, err)

	var names []string
	for _, a := range spec.Downstream("root") {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"mid", "leaf"}, names)
	assert.Empty(t, spec.Downstream("leaf"))
	assert.Empty(t, spec.Downstream("island"))
}

func TestChain(t *testing.T) {
	spec, err := NewSpec(chainActions(), nil, Workspace{})
	require.NoError(t, err)

	chain, err := spec.Chain("s3")
	require.NoError(t, err)
	var names []string
	for _, a := range chain {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"s1", "s2", "s3"}, names, "chain runs root first")
}
