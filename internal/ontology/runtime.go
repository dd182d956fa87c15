package ontology

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// Runtime owns one atomically-swappable catalog per tenant scope. Reads
// never block writes and never observe a partially loaded catalog:
// Load builds a brand-new catalog off to the side and only then swaps
// the atomic pointer.
type Runtime struct {
	repo       Repository
	governance GovernanceConfig

	mu         sync.Mutex // serializes concurrent Load calls per scope
	catalogs   sync.Map   // scope.Scope -> *atomic.Pointer[catalog]
}

// NewRuntime builds a Runtime backed by repo.
func NewRuntime(repo Repository, governance GovernanceConfig) *Runtime {
	return &Runtime{repo: repo, governance: governance}
}

func (rt *Runtime) slot(s scope.Scope) *atomic.Pointer[catalog] {
	v, _ := rt.catalogs.LoadOrStore(s, &atomic.Pointer[catalog]{})
	return v.(*atomic.Pointer[catalog])
}

// Load reads all definition kinds from the repository concurrently,
// rebuilds the indices off to the side, runs referential checks, and
// atomically swaps them in. On any referential failure the previous
// state is left intact and ontology-invalid is returned.
func (rt *Runtime) Load(ctx context.Context, s scope.Scope) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	type result struct {
		entities   []EntityDef
		properties []PropertyDef
		relations  []RelationDef
		enums      []EnumDef
		aliases    []AliasDef
		shapes     []ShapeDef
		err        error
	}

	var wg sync.WaitGroup
	res := &result{}
	var mu sync.Mutex
	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if res.err == nil && err != nil {
			res.err = err
		}
	}

	wg.Add(6)
	go func() { defer wg.Done(); v, err := rt.repo.ListEntities(ctx, s); setErr(err); res.entities = v }()
	go func() { defer wg.Done(); v, err := rt.repo.ListProperties(ctx, s); setErr(err); res.properties = v }()
	go func() { defer wg.Done(); v, err := rt.repo.ListRelations(ctx, s); setErr(err); res.relations = v }()
	go func() { defer wg.Done(); v, err := rt.repo.ListEnums(ctx, s); setErr(err); res.enums = v }()
	go func() { defer wg.Done(); v, err := rt.repo.ListAliases(ctx, s); setErr(err); res.aliases = v }()
	go func() { defer wg.Done(); v, err := rt.repo.ListShapes(ctx, s); setErr(err); res.shapes = v }()
	wg.Wait()

	if res.err != nil {
		return apierr.Wrap(apierr.KindUpstreamError, "failed to read ontology repository", res.err)
	}

	c, err := buildCatalog(s, res.entities, res.properties, res.relations, res.enums, res.aliases, res.shapes)
	if err != nil {
		return apierr.Wrap(apierr.KindOntologyInvalid, "ontology referential check failed", err)
	}

	rt.slot(s).Store(c)
	return nil
}

func (rt *Runtime) current(s scope.Scope) (*catalog, error) {
	c := rt.slot(s).Load()
	if c == nil {
		return nil, apierr.New(apierr.KindNotFound, "ontology catalog not loaded for scope")
	}
	return c, nil
}

// GetEntity looks up an entity definition by local name.
func (rt *Runtime) GetEntity(s scope.Scope, localName string) (EntityDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return EntityDef{}, err
	}
	e, ok := c.entities[localName]
	if !ok {
		return EntityDef{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("entity %q not found", localName))
	}
	return e, nil
}

// ListEntities returns all entities, sorted by local name so repeated
// listings are order-stable.
func (rt *Runtime) ListEntities(s scope.Scope) ([]EntityDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return nil, err
	}
	out := make([]EntityDef, 0, len(c.entities))
	for _, e := range c.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalName < out[j].LocalName })
	return out, nil
}

// GetProperty looks up a property definition by owning entity and name.
func (rt *Runtime) GetProperty(s scope.Scope, owner, localName string) (PropertyDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return PropertyDef{}, err
	}
	owned, ok := c.properties[owner]
	if !ok {
		return PropertyDef{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("entity %q has no properties", owner))
	}
	p, ok := owned[localName]
	if !ok {
		return PropertyDef{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("property %q.%q not found", owner, localName))
	}
	return p, nil
}

// ListProperties returns all property definitions across all owners.
func (rt *Runtime) ListProperties(s scope.Scope) ([]PropertyDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return nil, err
	}
	var out []PropertyDef
	for _, owned := range c.properties {
		for _, p := range owned {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Owner != out[j].Owner {
			return out[i].Owner < out[j].Owner
		}
		return out[i].LocalName < out[j].LocalName
	})
	return out, nil
}

// GetRelation looks up a relation definition by local name.
func (rt *Runtime) GetRelation(s scope.Scope, localName string) (RelationDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return RelationDef{}, err
	}
	r, ok := c.relations[localName]
	if !ok {
		return RelationDef{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("relation %q not found", localName))
	}
	return r, nil
}

// ListRelations returns all relation definitions, sorted by local name.
func (rt *Runtime) ListRelations(s scope.Scope) ([]RelationDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return nil, err
	}
	out := make([]RelationDef, 0, len(c.relations))
	for _, r := range c.relations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalName < out[j].LocalName })
	return out, nil
}

// GetEnum looks up an enum definition by local name.
func (rt *Runtime) GetEnum(s scope.Scope, localName string) (EnumDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return EnumDef{}, err
	}
	e, ok := c.enums[localName]
	if !ok {
		return EnumDef{}, apierr.New(apierr.KindNotFound, fmt.Sprintf("enum %q not found", localName))
	}
	return e, nil
}

// GetShape looks up the shape constraining an entity, if any.
func (rt *Runtime) GetShape(s scope.Scope, entity string) (ShapeDef, bool, error) {
	c, err := rt.current(s)
	if err != nil {
		return ShapeDef{}, false, err
	}
	sh, ok := c.shapes[entity]
	return sh, ok, nil
}

// Aliases returns the alias/synonym table for resolution.
func (rt *Runtime) Aliases(s scope.Scope) (map[string]AliasDef, error) {
	c, err := rt.current(s)
	if err != nil {
		return nil, err
	}
	out := make(map[string]AliasDef, len(c.aliases))
	for k, v := range c.aliases {
		out[k] = v
	}
	return out, nil
}
