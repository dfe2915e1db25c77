package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// rawSpec is the on-disk shape shared by the TOML and YAML encodings.
type rawSpec struct {
	Actions     []*Action    `yaml:"actions" toml:"actions"`
	Experiments []Experiment `yaml:"experiments" toml:"experiments"`
	Workspace   Workspace    `yaml:"workspace" toml:"workspace"`
}

// Load reads and validates a pipeline spec from a TOML or YAML file,
// chosen by extension.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}

	var raw rawSpec
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("parse %s: %v", path, err)}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("parse %s: %v", path, err)}
		}
	default:
		return nil, &ValidationError{
			Message: fmt.Sprintf("unsupported spec extension %q (want .toml, .yaml, or .yml)", filepath.Ext(path)),
		}
	}

	return NewSpec(raw.Actions, raw.Experiments, raw.Workspace)
}
