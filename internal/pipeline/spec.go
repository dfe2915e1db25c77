package pipeline

import (
	"fmt"
	"slices"
)

// DefaultPointerKey is the state-point key that holds the parent entry id
// on a dependent action, unless the dependency declares its own.
const DefaultPointerKey = "parent_action"

// ActionKey is the reserved state-point key naming the owning action. It
// discriminates identically-parameterized entries of different actions.
const ActionKey = "action"

// Dependency declares a single parent for an action.
type Dependency struct {
	// Action is the name of the parent action.
	Action string `yaml:"action" toml:"action"`
	// PointerKey is the state-point key that stores the parent entry id
	// in the child. Defaults to DefaultPointerKey.
	PointerKey string `yaml:"pointer_key" toml:"pointer_key"`
}

// Action describes one stage of the pipeline.
type Action struct {
	Name       string      `yaml:"name" toml:"name"`
	Keys       []string    `yaml:"keys" toml:"keys"`
	Dependency *Dependency `yaml:"deps" toml:"deps"`
	Outputs    []string    `yaml:"outputs" toml:"outputs"`
	Runner     string      `yaml:"runner" toml:"runner"`
}

// HasKey reports whether name is one of the action's identity keys.
func (a *Action) HasKey(name string) bool {
	return slices.Contains(a.Keys, name)
}

// PointerKey returns the dependency's pointer key, or the default when the
// dependency omits one. Empty for root actions.
func (a *Action) PointerKey() string {
	if a.Dependency == nil {
		return ""
	}
	if a.Dependency.PointerKey == "" {
		return DefaultPointerKey
	}
	return a.Dependency.PointerKey
}

// Workspace carries store-layout settings.
type Workspace struct {
	// ValueFile is the file name each entry's state point is stored under.
	ValueFile string `yaml:"value_file" toml:"value_file"`
}

// DefaultValueFile is used when the spec omits workspace.value_file.
const DefaultValueFile = "statepoint.json"

// Experiment maps action names to flat parameter maps, one row per desired
// pipeline instance. Actions missing from a row are skipped for that row.
type Experiment map[string]map[string]any

// Spec is a validated pipeline specification.
type Spec struct {
	Actions     []*Action
	Experiments []Experiment
	Workspace   Workspace

	byName map[string]*Action
	order  []*Action
}

// NewSpec validates the action set and computes the topological order.
// Returns a *ValidationError on duplicate names, dangling dependency
// references, or cycles; in that case no ordering is available and
// materialization must not start.
func NewSpec(actions []*Action, experiments []Experiment, ws Workspace) (*Spec, error) {
	if len(actions) == 0 {
		return nil, &ValidationError{Message: "spec declares no actions"}
	}
	if ws.ValueFile == "" {
		ws.ValueFile = DefaultValueFile
	}

	byName := make(map[string]*Action, len(actions))
	for _, a := range actions {
		if a.Name == "" {
			return nil, &ValidationError{Message: "every action must declare a name"}
		}
		if _, dup := byName[a.Name]; dup {
			return nil, &ValidationError{Action: a.Name, Message: "action name declared twice"}
		}
		byName[a.Name] = a
	}

	for _, a := range actions {
		if err := validateAction(a, byName); err != nil {
			return nil, err
		}
	}

	s := &Spec{
		Actions:     actions,
		Experiments: experiments,
		Workspace:   ws,
		byName:      byName,
	}
	order, err := topoSort(actions)
	if err != nil {
		return nil, err
	}
	s.order = order
	return s, nil
}

func validateAction(a *Action, byName map[string]*Action) error {
	for _, k := range a.Keys {
		if k == ActionKey {
			return &ValidationError{
				Action:  a.Name,
				Message: fmt.Sprintf("key %q is reserved", ActionKey),
			}
		}
	}
	if a.Dependency == nil {
		return nil
	}
	if a.Dependency.Action == "" {
		return &ValidationError{Action: a.Name, Message: "deps.action is required"}
	}
	if _, ok := byName[a.Dependency.Action]; !ok {
		return &ValidationError{
			Action:  a.Name,
			Message: fmt.Sprintf("depends on undeclared action %q", a.Dependency.Action),
		}
	}
	if ptr := a.PointerKey(); a.HasKey(ptr) {
		return &ValidationError{
			Action:  a.Name,
			Message: fmt.Sprintf("identity key %q collides with the dependency pointer key", ptr),
		}
	}
	return nil
}

// Action returns the named action, or a *ValidationError if unknown.
func (s *Spec) Action(name string) (*Action, error) {
	a, ok := s.byName[name]
	if !ok {
		return nil, &ValidationError{Action: name, Message: "unknown action"}
	}
	return a, nil
}

// TopologicalActions returns the actions with every parent ordered before
// its children. Ties are broken by declaration order, so the ordering is
// identical across runs.
func (s *Spec) TopologicalActions() []*Action {
	return slices.Clone(s.order)
}

// Downstream returns, in topological order, every action transitively
// reachable from the named action via dependency edges. The named action
// itself is excluded.
func (s *Spec) Downstream(name string) []*Action {
	reachable := map[string]bool{name: true}
	var out []*Action
	for _, a := range s.order {
		if a.Dependency != nil && reachable[a.Dependency.Action] && !reachable[a.Name] {
			reachable[a.Name] = true
			out = append(out, a)
		}
	}
	return out
}

// Chain returns the dependency chain ending at the named action, root
// first. Used by the collector to flatten ancestor parameters.
func (s *Spec) Chain(name string) ([]*Action, error) {
	var chain []*Action
	current := name
	for current != "" {
		a, err := s.Action(current)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
		if a.Dependency == nil {
			break
		}
		current = a.Dependency.Action
	}
	slices.Reverse(chain)
	return chain, nil
}
