package resolve

import (
	"fmt"
	"sort"

	"github.com/cairnproj/cairn/internal/materialize"
	"github.com/cairnproj/cairn/internal/params"
	"github.com/cairnproj/cairn/internal/pipeline"
	"github.com/cairnproj/cairn/internal/workspace"
)

// reservedDocKeys are bookkeeping keys never surfaced to consumers.
var reservedDocKeys = map[string]bool{
	materialize.DepsMetaKey: true,
}

// Row is one flattened record: a leaf entry plus its ancestors' parameters
// (and optionally document values), keyed "<action>.<key>" and
// "<action>.doc.<key>" so fields from different stages never collide.
// Columns preserves chain order, root action first, for tabular export.
type Row struct {
	Columns []string
	Values  map[string]params.Value
}

// Collector flattens parameter and document values across dependency
// chains for a target action, one row per leaf entry.
type Collector struct {
	spec       *pipeline.Spec
	store      workspace.Store
	resolver   *Resolver
	IncludeDoc bool
	// MissingOK skips rows whose ancestry cannot be fully resolved
	// instead of failing the collection.
	MissingOK bool
}

// NewCollector creates a Collector over a spec and store.
func NewCollector(spec *pipeline.Spec, store workspace.Store) *Collector {
	return &Collector{
		spec:     spec,
		store:    store,
		resolver: New(spec, store),
	}
}

// Collect returns one row per entry of the target action, walking each
// entry's ancestry root-first.
func (c *Collector) Collect(targetAction string) ([]Row, error) {
	chain, err := c.spec.Chain(targetAction)
	if err != nil {
		return nil, err
	}
	ids, err := c.store.List(targetAction)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, leaf := range ids {
		states, docs, err := c.resolveChain(chain, leaf)
		if err != nil {
			if c.MissingOK && IsMissingParent(err) {
				continue
			}
			return nil, fmt.Errorf("collect %q: %w", targetAction, err)
		}
		rows = append(rows, c.flatten(chain, states, docs))
	}
	return rows, nil
}

// resolveChain walks leaf-to-root through pointer keys, returning each
// chain action's state point (and document, if requested) keyed by action
// name.
func (c *Collector) resolveChain(chain []*pipeline.Action, leaf string) (map[string]params.Object, map[string]params.Object, error) {
	states := make(map[string]params.Object, len(chain))
	docs := make(map[string]params.Object, len(chain))

	id := leaf
	for i := len(chain) - 1; i >= 0; i-- {
		action := chain[i]
		sp, err := c.store.State(id)
		if err != nil {
			return nil, nil, err
		}
		states[action.Name] = sp
		if c.IncludeDoc {
			doc, err := c.store.Document(id)
			if err != nil {
				return nil, nil, err
			}
			docs[action.Name] = doc
		}
		if i == 0 {
			break
		}
		id, err = c.resolver.Parent(id)
		if err != nil {
			return nil, nil, err
		}
	}
	return states, docs, nil
}

func (c *Collector) flatten(chain []*pipeline.Action, states, docs map[string]params.Object) Row {
	row := Row{Values: make(map[string]params.Value)}
	for _, action := range chain {
		sp := states[action.Name]
		for _, key := range action.Keys {
			if v, ok := sp[key]; ok {
				col := action.Name + "." + key
				row.Columns = append(row.Columns, col)
				row.Values[col] = v
			}
		}
		if !c.IncludeDoc {
			continue
		}
		doc := docs[action.Name]
		docKeys := make([]string, 0, len(doc))
		for k := range doc {
			if !reservedDocKeys[k] {
				docKeys = append(docKeys, k)
			}
		}
		sort.Strings(docKeys)
		for _, k := range docKeys {
			col := action.Name + ".doc." + k
			row.Columns = append(row.Columns, col)
			row.Values[col] = doc[k]
		}
	}
	return row
}
