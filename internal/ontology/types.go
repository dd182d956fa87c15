// Package ontology implements the per-tenant-scope typed vocabulary:
// entities, properties, relations, enums, aliases, and shapes, loaded
// from a repository into an in-memory read store, with CURIE
// expansion, a property-key mapper for precondition/effect evaluation,
// and JSON-LD/Turtle export.
package ontology

import "time"

// Status is the governance lifecycle state of a definition.
type Status string

const (
	StatusProposed  Status = "Proposed"
	StatusPublished Status = "Published"
	StatusRejected  Status = "Rejected"
)

// Governance carries the fields shared by every kind of definition.
type Governance struct {
	Confidence float64
	Complexity int
	Depth      int
	Status     Status
	Version    int
	Provenance string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EntityDef is a named class in the vocabulary.
type EntityDef struct {
	LocalName   string
	CanonicalURI string
	Parents     []string
	Annotations map[string]string
	Governance  Governance
}

// PropertyDef is a typed attribute owned by an entity. Range is either an
// XSD datatype tag (e.g. "xsd:string") or another entity's local name.
type PropertyDef struct {
	Owner       string
	LocalName   string
	Range       string
	MinCard     int
	MaxCard     int // 0 means unbounded
	Annotations map[string]string
	Governance  Governance
}

// RelationDef is a typed edge kind between two entities.
type RelationDef struct {
	LocalName  string
	FromEntity string
	ToEntity   string
	MinCard    int
	MaxCard    int
	Governance Governance
}

// EnumDef is a closed set of literal values.
type EnumDef struct {
	LocalName  string
	Values     []string
	Governance Governance
}

// AliasDef maps a canonical term to its synonyms, optionally per locale.
type AliasDef struct {
	Canonical  string
	Aliases    []string
	Locale     string
	Governance Governance
}

// PropertyConstraint restricts one property of a shape's target entity.
type PropertyConstraint struct {
	Property string
	Pattern  string   // optional regex
	In       []string // optional closed value set
	MinCard  int
	MaxCard  int
}

// ShapeDef validates instances of an entity against a set of property
// constraints (a lightweight analogue of SHACL).
type ShapeDef struct {
	AppliesToEntity     string
	PropertyConstraints []PropertyConstraint
	Governance          Governance
}
