package tools

import (
	"context"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// GraphHandlers serves graph_query and the precondition/effect
// operations that ground tool side-effects in the ontology.
type GraphHandlers struct {
	store  GraphStore
	mapper PredicateMapper
	warn   func(msg string)
}

// PredicateMapper resolves an ontology predicate reference to a concrete
// graph property key; ontology.PropertyKeyMapper satisfies it.
type PredicateMapper interface {
	Resolve(s scope.Scope, owner, predicate string) (ontology.MappedProperty, bool)
}

// NewGraphHandlers builds the handler set. warn receives unmapped
// predicate notices; nil disables them.
func NewGraphHandlers(store GraphStore, mapper PredicateMapper, warn func(msg string)) *GraphHandlers {
	if warn == nil {
		warn = func(string) {}
	}
	return &GraphHandlers{store: store, mapper: mapper, warn: warn}
}

type graphQueryResult struct {
	Vertices   []Vertex `json:"vertices"`
	NextCursor string   `json:"nextCursor,omitempty"`
}

var validOps = map[string]struct{}{
	"eq": {}, "neq": {}, "exists": {}, "not_exists": {},
}

var validDirections = map[string]struct{}{
	"out": {}, "in": {}, "both": {},
}

// Query implements graph.query. Every hop re-applies the tenant guard;
// that is the store adapter's contract, enforced again here by passing
// the tenant explicitly rather than inside a filter the caller controls.
func (h *GraphHandlers) Query(ctx context.Context, args map[string]any) (any, error) {
	sc, ok := scope.FromContext(ctx)
	if !ok {
		return nil, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request")
	}

	subjectIDs := stringSliceArg(args, "subjectIds")
	limit := clampLimit(intArg(args, "limit"))

	var filters []GraphFilter
	if raw, ok := args["filters"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			f := GraphFilter{}
			f.Property, _ = m["property"].(string)
			f.Op, _ = m["op"].(string)
			f.Value = m["value"]
			if _, ok := validOps[f.Op]; !ok {
				return nil, apierr.New(apierr.KindSchemaInvalid, "filter op must be one of eq, neq, exists, not_exists")
			}
			filters = append(filters, f)
		}
	}

	var traversals []Traversal
	if raw, ok := args["traverse"].([]any); ok {
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			t := Traversal{}
			t.Direction, _ = m["direction"].(string)
			t.Relation, _ = m["relation"].(string)
			t.Hops = intArg(m, "hops")
			if _, ok := validDirections[t.Direction]; !ok {
				return nil, apierr.New(apierr.KindSchemaInvalid, "traverse direction must be one of out, in, both")
			}
			if t.Hops < 1 {
				t.Hops = 1
			}
			traversals = append(traversals, t)
		}
	}

	vertices, cursor, err := h.store.Query(ctx, sc.TenantID, subjectIDs, filters, traversals, limit)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "graph query failed", err)
	}
	if vertices == nil {
		vertices = []Vertex{}
	}
	return graphQueryResult{Vertices: vertices, NextCursor: cursor}, nil
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
