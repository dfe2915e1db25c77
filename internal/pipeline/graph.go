package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// topoSort orders actions parent-before-child using Kahn's algorithm. At
// every step the ready action with the lowest declaration index is emitted,
// which makes the ordering deterministic across runs for any valid graph.
func topoSort(actions []*Action) ([]*Action, error) {
	index := make(map[string]int, len(actions))
	for i, a := range actions {
		index[a.Name] = i
	}

	indegree := make([]int, len(actions))
	children := make(map[int][]int, len(actions))
	for i, a := range actions {
		if a.Dependency == nil {
			continue
		}
		parent := index[a.Dependency.Action]
		indegree[i]++
		children[parent] = append(children[parent], i)
	}

	ready := make([]int, 0, len(actions))
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	ordered := make([]*Action, 0, len(actions))
	for len(ready) > 0 {
		sort.Ints(ready)
		current := ready[0]
		ready = ready[1:]
		ordered = append(ordered, actions[current])
		for _, child := range children[current] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	if len(ordered) != len(actions) {
		var stuck []string
		for i, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, actions[i].Name)
			}
		}
		return nil, &ValidationError{
			Message: fmt.Sprintf("action graph contains a cycle through: %s", strings.Join(stuck, ", ")),
		}
	}
	return ordered, nil
}
