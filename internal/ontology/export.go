package ontology

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// ExportFormat selects the catalog export encoding for the
// /api/ontology/export endpoint.
type ExportFormat string

const (
	FormatJSONLD ExportFormat = "jsonld"
	FormatTurtle ExportFormat = "turtle"
)

// jsonldContext is the @context block emitted for every export: the
// default prefix table, plus each entity's canonical URI (where set) as
// a term.
func jsonldContext(c *catalog) map[string]any {
	ctx := map[string]any{}
	for prefix, uri := range defaultPrefixes {
		ctx[prefix] = uri
	}
	for _, e := range c.entities {
		if e.CanonicalURI != "" {
			ctx[e.LocalName] = e.CanonicalURI
		}
	}
	return ctx
}

// ExportJSONLD renders the catalog as a JSON-LD document: one @context
// plus one @graph entry per entity, property, relation and enum.
// Aliases, shapes, annotations and the governance fields other than
// status (and, for entities, confidence) are not included, so the
// document does not carry the whole catalog, and nothing in this
// package reads it back into a Repository.
func (rt *Runtime) ExportJSONLD(s scope.Scope) ([]byte, error) {
	c, err := rt.current(s)
	if err != nil {
		return nil, err
	}

	graph := make([]map[string]any, 0, len(c.entities)+len(c.relations)+len(c.enums))

	entityNames := sortedKeys(c.entities)
	for _, name := range entityNames {
		e := c.entities[name]
		node := map[string]any{
			"@id":   curieOrLocal(e.LocalName, e.CanonicalURI),
			"@type": "ldm:Entity",
			"ldm:localName": e.LocalName,
			"ldm:parents":   e.Parents,
			"ldm:status":    string(e.Governance.Status),
			"ldm:confidence": e.Governance.Confidence,
		}
		graph = append(graph, node)
	}

	for _, ownerName := range sortedKeys(c.properties) {
		owned := c.properties[ownerName]
		for _, name := range sortedStringKeys(owned) {
			p := owned[name]
			graph = append(graph, map[string]any{
				"@id":           fmt.Sprintf("ldm:%s.%s", ownerName, p.LocalName),
				"@type":         "ldm:Property",
				"ldm:owner":     p.Owner,
				"ldm:localName": p.LocalName,
				"ldm:range":     p.Range,
				"ldm:minCard":   p.MinCard,
				"ldm:maxCard":   p.MaxCard,
				"ldm:status":    string(p.Governance.Status),
			})
		}
	}

	for _, name := range sortedKeys(c.relations) {
		r := c.relations[name]
		graph = append(graph, map[string]any{
			"@id":         "ldm:" + r.LocalName,
			"@type":       "ldm:Relation",
			"ldm:from":    r.FromEntity,
			"ldm:to":      r.ToEntity,
			"ldm:minCard": r.MinCard,
			"ldm:maxCard": r.MaxCard,
		})
	}

	for _, name := range sortedKeys(c.enums) {
		en := c.enums[name]
		graph = append(graph, map[string]any{
			"@id":      "ldm:" + en.LocalName,
			"@type":    "ldm:Enum",
			"ldm:values": en.Values,
		})
	}

	doc := map[string]any{
		"@context": jsonldContext(c),
		"@graph":   graph,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ExportTurtle renders the catalog as RDF Turtle.
func (rt *Runtime) ExportTurtle(s scope.Scope) ([]byte, error) {
	c, err := rt.current(s)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for prefix, uri := range defaultPrefixes {
		fmt.Fprintf(&b, "@prefix %s: <%s> .\n", prefix, uri)
	}
	b.WriteString("\n")

	for _, name := range sortedKeys(c.entities) {
		e := c.entities[name]
		fmt.Fprintf(&b, "ldm:%s a owl:Class ;\n", e.LocalName)
		fmt.Fprintf(&b, "  rdfs:label %q ;\n", e.LocalName)
		for i, parent := range e.Parents {
			sep := " ;"
			if i == len(e.Parents)-1 {
				sep = " ."
			}
			fmt.Fprintf(&b, "  rdfs:subClassOf ldm:%s%s\n", parent, sep)
		}
		if len(e.Parents) == 0 {
			// close the label statement if there are no parents
			b.WriteString("  .\n")
		}
		b.WriteString("\n")
	}

	for ownerName, owned := range c.properties {
		for _, name := range sortedStringKeys(owned) {
			p := owned[name]
			fmt.Fprintf(&b, "ldm:%s_%s a owl:DatatypeProperty ;\n", ownerName, p.LocalName)
			fmt.Fprintf(&b, "  rdfs:domain ldm:%s ;\n", p.Owner)
			fmt.Fprintf(&b, "  rdfs:range %s .\n\n", rangeTerm(p.Range))
		}
	}

	for _, name := range sortedKeys(c.relations) {
		r := c.relations[name]
		fmt.Fprintf(&b, "ldm:%s a owl:ObjectProperty ;\n", r.LocalName)
		fmt.Fprintf(&b, "  rdfs:domain ldm:%s ;\n", r.FromEntity)
		fmt.Fprintf(&b, "  rdfs:range ldm:%s .\n\n", r.ToEntity)
	}

	return []byte(b.String()), nil
}

func rangeTerm(r string) string {
	if strings.HasPrefix(r, "xsd:") {
		return r
	}
	return "ldm:" + r
}

func curieOrLocal(local, uri string) string {
	if uri != "" {
		return uri
	}
	return "ldm:" + local
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]PropertyDef) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
