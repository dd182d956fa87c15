// Package tools implements the four tool handlers (history get/append,
// memory search, graph query) plus the ontology-grounded precondition/
// effect evaluation against the graph. Each handler consumes its
// external store through the narrow interface declared here and refuses
// to run without a resolved tenant scope on the context.
package tools

import (
	"context"
	"time"
)

// StoredMessage is a persisted chat history entry.
type StoredMessage struct {
	ID        string         `json:"id"`
	SessionID string         `json:"sessionId"`
	TenantID  string         `json:"-"`
	Sender    string         `json:"sender"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// HistoryStore is the tenant-scoped, transactional history collaborator.
type HistoryStore interface {
	CreateSession(ctx context.Context, tenantID, sessionID string) error
	SessionExists(ctx context.Context, tenantID, sessionID string) (bool, error)
	AppendMessage(ctx context.Context, tenantID string, msg StoredMessage) (StoredMessage, error)
	// ListMessages returns messages ascending by timestamp. A zero
	// before means no upper bound.
	ListMessages(ctx context.Context, tenantID, sessionID string, limit int, before time.Time) ([]StoredMessage, error)
}

// MemoryDoc is one document in the memory index.
type MemoryDoc struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant"`
	Title         string    `json:"title,omitempty"`
	Source        string    `json:"source,omitempty"`
	Chunk         string    `json:"chunk,omitempty"`
	OntologyClass string    `json:"ontologyClass,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	Content       string    `json:"content,omitempty"`
	Vector        []float32 `json:"-"`
}

// MemoryHit is one search result with its relevance score.
type MemoryHit struct {
	ID            string   `json:"id"`
	Title         string   `json:"title,omitempty"`
	Source        string   `json:"source,omitempty"`
	Chunk         string   `json:"chunk,omitempty"`
	OntologyClass string   `json:"ontologyClass,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	Content       string   `json:"content,omitempty"`
	Score         float64  `json:"score"`
}

// HybridQuery is the request shape for the vector index. The tenant
// filter is mandatory; the index must refuse a query without one.
type HybridQuery struct {
	TenantID string
	Text     string
	Vector   []float32
	K        int
	// FanOut is the per-leg candidate count before merging; the
	// handler sets it to 2k for hybrid queries.
	FanOut  int
	Filters map[string]string
}

// VectorIndex is the memory search collaborator.
type VectorIndex interface {
	EnsureIndex(ctx context.Context, dim int) error
	Upsert(ctx context.Context, docs []MemoryDoc) error
	SearchHybrid(ctx context.Context, q HybridQuery) ([]MemoryHit, error)
}

// Vertex is one graph vertex with its property map.
type Vertex struct {
	ID         string         `json:"id"`
	Properties map[string]any `json:"properties"`
}

// GraphFilter is one property predicate on a graph query.
type GraphFilter struct {
	Property string `json:"property"`
	Op       string `json:"op"` // eq, neq, exists, not_exists
	Value    any    `json:"value,omitempty"`
}

// Traversal is one relation hop specification.
type Traversal struct {
	Direction string `json:"direction"` // out, in, both
	Relation  string `json:"relation"`
	Hops      int    `json:"hops"`
}

// GraphStore is the knowledge graph collaborator. Every operation
// carries a tenant guard; the adapter re-applies it on every hop.
type GraphStore interface {
	GetVertex(ctx context.Context, tenantID, id string) (Vertex, bool, error)
	GetVertexProperty(ctx context.Context, tenantID, id, key string) (any, bool, error)
	UpsertVertexProperty(ctx context.Context, tenantID, id, key string, value any) error
	UpsertEdge(ctx context.Context, tenantID, fromID, toID, label string) error
	Query(ctx context.Context, tenantID string, subjectIDs []string, filters []GraphFilter, traversals []Traversal, limit int) ([]Vertex, string, error)
	Ping(ctx context.Context) error
}
