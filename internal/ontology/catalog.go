package ontology

import (
	"fmt"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// catalog is the immutable, fully-indexed snapshot for one scope. It is
// built once by buildCatalog and never mutated afterward. Reload
// produces a brand new catalog which is then atomically swapped in by
// the Runtime, so readers see either the old or new complete catalog,
// never a partial one.
type catalog struct {
	scope scope.Scope

	entities   map[string]EntityDef
	properties map[string]map[string]PropertyDef // owner -> localName -> def
	relations  map[string]RelationDef
	enums      map[string]EnumDef
	aliases    map[string]AliasDef
	shapes     map[string]ShapeDef // appliesToEntity -> def

	// canonical URI -> entity local name, for the property-key mapper.
	entityByURI map[string]string
}

func buildCatalog(s scope.Scope, entities []EntityDef, properties []PropertyDef,
	relations []RelationDef, enums []EnumDef, aliases []AliasDef, shapes []ShapeDef) (*catalog, error) {
	c := &catalog{
		scope:       s,
		entities:    make(map[string]EntityDef, len(entities)),
		properties:  make(map[string]map[string]PropertyDef),
		relations:   make(map[string]RelationDef, len(relations)),
		enums:       make(map[string]EnumDef, len(enums)),
		aliases:     make(map[string]AliasDef, len(aliases)),
		shapes:      make(map[string]ShapeDef, len(shapes)),
		entityByURI: make(map[string]string, len(entities)),
	}

	for _, e := range entities {
		if _, exists := c.entities[e.LocalName]; exists {
			return nil, fmt.Errorf("duplicate entity local name %q", e.LocalName)
		}
		c.entities[e.LocalName] = e
		if e.CanonicalURI != "" {
			c.entityByURI[e.CanonicalURI] = e.LocalName
		}
	}
	for _, e := range entities {
		for _, parent := range e.Parents {
			if _, ok := c.entities[parent]; !ok {
				return nil, fmt.Errorf("entity %q references missing parent %q", e.LocalName, parent)
			}
		}
	}

	for _, p := range properties {
		if _, ok := c.entities[p.Owner]; !ok {
			return nil, fmt.Errorf("property %q references missing owner entity %q", p.LocalName, p.Owner)
		}
		if isEntityRange(p.Range) {
			if _, ok := c.entities[p.Range]; !ok {
				return nil, fmt.Errorf("property %q.%q has entity range %q which does not exist", p.Owner, p.LocalName, p.Range)
			}
		}
		owned, ok := c.properties[p.Owner]
		if !ok {
			owned = make(map[string]PropertyDef)
			c.properties[p.Owner] = owned
		}
		if _, exists := owned[p.LocalName]; exists {
			return nil, fmt.Errorf("duplicate property %q on entity %q", p.LocalName, p.Owner)
		}
		owned[p.LocalName] = p
	}

	for _, r := range relations {
		if _, ok := c.entities[r.FromEntity]; !ok {
			return nil, fmt.Errorf("relation %q references missing fromEntity %q", r.LocalName, r.FromEntity)
		}
		if _, ok := c.entities[r.ToEntity]; !ok {
			return nil, fmt.Errorf("relation %q references missing toEntity %q", r.LocalName, r.ToEntity)
		}
		if _, exists := c.relations[r.LocalName]; exists {
			return nil, fmt.Errorf("duplicate relation local name %q", r.LocalName)
		}
		c.relations[r.LocalName] = r
	}

	for _, e := range enums {
		if _, exists := c.enums[e.LocalName]; exists {
			return nil, fmt.Errorf("duplicate enum local name %q", e.LocalName)
		}
		c.enums[e.LocalName] = e
	}

	for _, a := range aliases {
		if _, exists := c.aliases[a.Canonical]; exists {
			return nil, fmt.Errorf("duplicate alias canonical %q", a.Canonical)
		}
		c.aliases[a.Canonical] = a
	}

	for _, sh := range shapes {
		if _, ok := c.entities[sh.AppliesToEntity]; !ok {
			return nil, fmt.Errorf("shape references missing entity %q", sh.AppliesToEntity)
		}
		c.shapes[sh.AppliesToEntity] = sh
	}

	return c, nil
}

// isEntityRange reports whether a property's Range string names an
// entity rather than an XSD datatype tag.
func isEntityRange(r string) bool {
	if len(r) >= 4 && r[:4] == "xsd:" {
		return false
	}
	return r != ""
}
