package tools

import (
	"context"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// MemoryHandlers serves memory_search.
type MemoryHandlers struct {
	index VectorIndex
}

// NewMemoryHandlers builds the handler set over index.
func NewMemoryHandlers(index VectorIndex) *MemoryHandlers {
	return &MemoryHandlers{index: index}
}

type memorySearchResult struct {
	Hits []MemoryHit `json:"hits"`
}

// Search implements memory.search. At least one of queryText and
// queryVector is required. The tenant filter is mandatory and appended
// to any caller-supplied filter; callers cannot widen it. Text-only
// runs lexical + semantic, vector-only runs pure vector, both runs a
// hybrid with fan-out 2k.
func (h *MemoryHandlers) Search(ctx context.Context, args map[string]any) (any, error) {
	sc, ok := scope.FromContext(ctx)
	if !ok {
		return nil, apierr.New(apierr.KindTenantUnresolved, "no tenant scope on request")
	}

	queryText, _ := args["queryText"].(string)
	vector := floatSliceArg(args, "queryVector")
	if queryText == "" && len(vector) == 0 {
		return nil, apierr.New(apierr.KindSchemaInvalid, "at least one of queryText and queryVector is required")
	}

	k := clampLimit(intArg(args, "k"))

	filters := map[string]string{}
	if raw, ok := args["filters"].(map[string]any); ok {
		for key, v := range raw {
			if s, ok := v.(string); ok {
				filters[key] = s
			}
		}
	}
	if class, ok := args["ontologyClass"].(string); ok && class != "" {
		filters["ontologyClass"] = class
	}
	// Tenant equality always wins over whatever the caller supplied.
	filters["tenant"] = sc.TenantID

	fanOut := k
	if queryText != "" && len(vector) > 0 {
		fanOut = 2 * k
	}

	hits, err := h.index.SearchHybrid(ctx, HybridQuery{
		TenantID: sc.TenantID,
		Text:     queryText,
		Vector:   vector,
		K:        k,
		FanOut:   fanOut,
		Filters:  filters,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.KindUpstreamError, "memory index search failed", err)
	}
	if hits == nil {
		hits = []MemoryHit{}
	}
	return memorySearchResult{Hits: hits}, nil
}

func floatSliceArg(args map[string]any, key string) []float32 {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(raw))
	for _, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
