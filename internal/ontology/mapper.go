package ontology

import (
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// MappedProperty is the result of resolving a predicate reference
// (CURIE, absolute IRI, or local name) to a concrete property key on a
// specific entity's properties.
type MappedProperty struct {
	Owner     string
	LocalName string
}

// PropertyKeyMapper resolves tool-supplied predicate references to a
// concrete graph property key: exact local-name match first, then
// canonical URI, then a bare local-name fallback search across all
// entities. Unmapped predicates are reported via ok=false so callers
// can warn and skip on effects and fail closed on preconditions.
type PropertyKeyMapper struct {
	runtime *Runtime
	prefixes *PrefixTable
}

// NewPropertyKeyMapper builds a mapper bound to a runtime and prefix table.
func NewPropertyKeyMapper(rt *Runtime, prefixes *PrefixTable) *PropertyKeyMapper {
	return &PropertyKeyMapper{runtime: rt, prefixes: prefixes}
}

// Resolve maps predicate (CURIE, absolute IRI, or "owner.localName"/
// "localName") against owner's properties in scope s.
func (m *PropertyKeyMapper) Resolve(s scope.Scope, owner, predicate string) (MappedProperty, bool) {
	c, err := m.runtime.current(s)
	if err != nil {
		return MappedProperty{}, false
	}

	// 1. exact match: owner has a property with this exact local name.
	if owned, ok := c.properties[owner]; ok {
		if _, ok := owned[predicate]; ok {
			return MappedProperty{Owner: owner, LocalName: predicate}, true
		}
	}

	// 2. canonical URI match, expanding CURIEs first.
	if uri, err := m.prefixes.Expand(predicate); err == nil {
		for ownerName, owned := range c.properties {
			for localName, def := range owned {
				for _, ann := range def.Annotations {
					if ann == uri {
						return MappedProperty{Owner: ownerName, LocalName: localName}, true
					}
				}
			}
		}
	}

	// 3. local-name fallback: search every entity's properties for a
	// property whose local name equals the bare predicate.
	for ownerName, owned := range c.properties {
		if _, ok := owned[predicate]; ok {
			return MappedProperty{Owner: ownerName, LocalName: predicate}, true
		}
	}

	return MappedProperty{}, false
}
