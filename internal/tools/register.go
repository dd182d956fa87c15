package tools

import (
	"time"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/registry"
)

// Defaults applied when a tool's registration leaves a knob unset.
type Defaults struct {
	Timeout time.Duration
}

// Registrations builds the server's declarative tool set: names,
// schemas, categories, permissions, and resilience knobs, fixed at
// startup. history_append is not retryable; the read-path tools are.
func Registrations(history *HistoryHandlers, memory *MemoryHandlers, graph *GraphHandlers, d Defaults) []registry.Registration {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return []registry.Registration{
		{
			Name:        "history_get",
			Description: "Read a session's chat history, ascending by timestamp.",
			Category:    "history",
			Permissions: []string{"history:read"},
			Retryable:   true,
			Timeout:     timeout,
			Handler:     history.Get,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"sessionId"},
				"properties": map[string]any{
					"sessionId": map[string]any{"type": "string", "minLength": 1},
					"limit":     map[string]any{"type": "integer"},
					"before":    map[string]any{"type": "string"},
				},
				"additionalProperties": false,
			},
			OutputShape: map[string]any{
				"sessionId": "string",
				"messages":  []any{map[string]any{"id": "string", "sender": "string", "text": "string", "timestamp": "string"}},
			},
		},
		{
			Name:        "history_append",
			Description: "Append a message to a session's chat history.",
			Category:    "history",
			Permissions: []string{"history:write"},
			Retryable:   false,
			Timeout:     timeout,
			Handler:     history.Append,
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"sessionId", "sender", "text"},
				"properties": map[string]any{
					"sessionId": map[string]any{"type": "string", "minLength": 1},
					"sender":    map[string]any{"type": "string", "minLength": 1},
					"text":      map[string]any{"type": "string"},
					"metadata":  map[string]any{"type": "object"},
				},
				"additionalProperties": false,
			},
			OutputShape: map[string]any{"id": "string", "sessionId": "string", "timestamp": "string"},
		},
		{
			Name:        "memory_search",
			Description: "Search tenant memory by text, vector, or both (hybrid).",
			Category:    "memory",
			Permissions: []string{"memory:read"},
			Retryable:   true,
			Timeout:     timeout,
			Handler:     memory.Search,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"queryText":     map[string]any{"type": "string"},
					"queryVector":   map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
					"k":             map[string]any{"type": "integer"},
					"filters":       map[string]any{"type": "object"},
					"ontologyClass": map[string]any{"type": "string"},
				},
				"anyOf": []any{
					map[string]any{"required": []any{"queryText"}},
					map[string]any{"required": []any{"queryVector"}},
				},
				"additionalProperties": false,
			},
			OutputShape: map[string]any{"hits": []any{map[string]any{"id": "string", "score": "number"}}},
		},
		{
			Name:        "graph_query",
			Description: "Query the knowledge graph with filters and relation traversals.",
			Category:    "graph",
			Permissions: []string{"graph:read"},
			Retryable:   true,
			Timeout:     timeout,
			Handler:     graph.Query,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"subjectIds": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"filters": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":     "object",
							"required": []any{"property", "op"},
							"properties": map[string]any{
								"property": map[string]any{"type": "string"},
								"op":       map[string]any{"type": "string", "enum": []any{"eq", "neq", "exists", "not_exists"}},
								"value":    map[string]any{},
							},
						},
					},
					"traverse": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type":     "object",
							"required": []any{"direction", "relation"},
							"properties": map[string]any{
								"direction": map[string]any{"type": "string", "enum": []any{"out", "in", "both"}},
								"relation":  map[string]any{"type": "string"},
								"hops":      map[string]any{"type": "integer"},
							},
						},
					},
					"limit": map[string]any{"type": "integer"},
				},
				"additionalProperties": false,
			},
			OutputShape: map[string]any{"vertices": []any{map[string]any{"id": "string", "properties": "object"}}},
		},
	}
}
