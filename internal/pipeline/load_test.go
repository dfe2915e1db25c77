package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const specTOML = `
[workspace]
value_file = "statepoint.json"

[[actions]]
name = "s1"
keys = ["p1"]
outputs = ["result.csv"]
runner = "python run_s1.py"

[[actions]]
name = "s2"
keys = ["p2"]
[actions.deps]
action = "s1"

[[experiments]]
[experiments.s1]
p1 = 1
[experiments.s2]
p2 = 10
`

const specYAML = `
workspace:
  value_file: statepoint.json
actions:
  - name: s1
    keys: [p1]
  - name: s2
    keys: [p2]
    deps:
      action: s1
      pointer_key: upstream
experiments:
  - s1: {p1: 1}
    s2: {p2: 10}
`

func writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_TOML(t *testing.T) {
	spec, err := Load(writeSpec(t, "pipeline.toml", specTOML))
	require.NoError(t, err)

	require.Len(t, spec.Actions, 2)
	assert.Equal(t, []string{"p1"}, spec.Actions[0].Keys)
	assert.Equal(t, []string{"result.csv"}, spec.Actions[0].Outputs)
	assert.Equal(t, "python run_s1.py", spec.Actions[0].Runner)

	s2 := spec.Actions[1]
	require.NotNil(t, s2.Dependency)
	assert.Equal(t, "s1", s2.Dependency.Action)
	assert.Equal(t, DefaultPointerKey, s2.PointerKey())

	require.Len(t, spec.Experiments, 1)
	assert.Equal(t, map[string]any{"p1": int64(1)}, spec.Experiments[0]["s1"])
}

func TestLoad_YAML(t *testing.T) {
	spec, err := Load(writeSpec(t, "pipeline.yaml", specYAML))
	require.NoError(t, err)

	require.Len(t, spec.Actions, 2)
	assert.Equal(t, "upstream", spec.Actions[1].PointerKey())
	require.Len(t, spec.Experiments, 1)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	_, err := Load(writeSpec(t, "pipeline.ini", "[a]\n"))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoad_InvalidGraphRejected(t *testing.T) {
	bad := `
actions:
  - name: a
    keys: [x]
    deps: {action: a}
`
	_, err := Load(writeSpec(t, "bad.yaml", bad))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
