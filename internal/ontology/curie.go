package ontology

import (
	"strings"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
)

// defaultPrefixes are the built-in CURIE prefixes.
var defaultPrefixes = map[string]string{
	"ldm":  "https://limbodancer.dev/ontology#",
	"rdf":  "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs": "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":  "http://www.w3.org/2001/XMLSchema#",
	"owl":  "http://www.w3.org/2002/07/owl#",
}

// PrefixTable expands CURIEs against a configurable prefix map, seeded
// with the defaults and extendable per deployment.
type PrefixTable struct {
	prefixes map[string]string
}

// NewPrefixTable builds a table seeded with the default prefixes, plus
// any extra overrides/additions supplied.
func NewPrefixTable(extra map[string]string) *PrefixTable {
	t := &PrefixTable{prefixes: make(map[string]string, len(defaultPrefixes)+len(extra))}
	for k, v := range defaultPrefixes {
		t.prefixes[k] = v
	}
	for k, v := range extra {
		t.prefixes[k] = v
	}
	return t
}

// isAbsoluteURI reports whether s already looks like a URI rather than a
// CURIE (i.e. it has a scheme).
func isAbsoluteURI(s string) bool {
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return false
	}
	scheme := s[:idx]
	return strings.HasPrefix(s, scheme+"://") || scheme == "urn"
}

// Expand resolves a CURIE of the form "prefix:local" to an absolute URI.
// Absolute URIs pass through unchanged. An unknown prefix is
// unknown-prefix.
func (t *PrefixTable) Expand(curie string) (string, error) {
	if isAbsoluteURI(curie) {
		return curie, nil
	}
	idx := strings.Index(curie, ":")
	if idx < 0 {
		return "", apierr.New(apierr.KindUnknownPrefix, "not a CURIE and not an absolute URI: "+curie)
	}
	prefix, local := curie[:idx], curie[idx+1:]
	base, ok := t.prefixes[prefix]
	if !ok {
		return "", apierr.New(apierr.KindUnknownPrefix, "unknown CURIE prefix: "+prefix)
	}
	return base + local, nil
}
