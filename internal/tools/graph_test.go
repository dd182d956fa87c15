package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

// fakeGraphStore keeps vertices per tenant and records writes.
type fakeGraphStore struct {
	vertices map[string]map[string]Vertex // tenant -> id -> vertex
	edges    []string                     // "from->to:label"
	failOn   string                       // property key whose upsert fails
	lastQuery struct {
		tenantID   string
		subjectIDs []string
		filters    []GraphFilter
		traversals []Traversal
		limit      int
	}
}

func newFakeGraphStore() *fakeGraphStore {
	return &fakeGraphStore{vertices: map[string]map[string]Vertex{}}
}

func (f *fakeGraphStore) put(tenantID string, v Vertex) {
	if f.vertices[tenantID] == nil {
		f.vertices[tenantID] = map[string]Vertex{}
	}
	f.vertices[tenantID][v.ID] = v
}

func (f *fakeGraphStore) GetVertex(_ context.Context, tenantID, id string) (Vertex, bool, error) {
	v, ok := f.vertices[tenantID][id]
	return v, ok, nil
}

func (f *fakeGraphStore) GetVertexProperty(_ context.Context, tenantID, id, key string) (any, bool, error) {
	v, ok := f.vertices[tenantID][id]
	if !ok {
		return nil, false, nil
	}
	value, ok := v.Properties[key]
	return value, ok, nil
}

func (f *fakeGraphStore) UpsertVertexProperty(_ context.Context, tenantID, id, key string, value any) error {
	if key == f.failOn {
		return assert.AnError
	}
	v, ok := f.vertices[tenantID][id]
	if !ok {
		v = Vertex{ID: id, Properties: map[string]any{}}
	}
	v.Properties[key] = value
	f.put(tenantID, v)
	return nil
}

func (f *fakeGraphStore) UpsertEdge(_ context.Context, tenantID, fromID, toID, label string) error {
	f.edges = append(f.edges, fromID+"->"+toID+":"+label)
	return nil
}

func (f *fakeGraphStore) Query(_ context.Context, tenantID string, subjectIDs []string, filters []GraphFilter, traversals []Traversal, limit int) ([]Vertex, string, error) {
	f.lastQuery.tenantID = tenantID
	f.lastQuery.subjectIDs = subjectIDs
	f.lastQuery.filters = filters
	f.lastQuery.traversals = traversals
	f.lastQuery.limit = limit
	var out []Vertex
	for _, v := range f.vertices[tenantID] {
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, "", nil
}

func (f *fakeGraphStore) Ping(context.Context) error { return nil }

// staticMapper maps a fixed predicate set.
type staticMapper struct {
	known map[string]string // predicate -> property key
}

func (m staticMapper) Resolve(_ scope.Scope, owner, predicate string) (ontology.MappedProperty, bool) {
	key, ok := m.known[predicate]
	return ontology.MappedProperty{Owner: owner, LocalName: key}, ok
}

func graphFixture() (*GraphHandlers, *fakeGraphStore, *[]string) {
	store := newFakeGraphStore()
	var warnings []string
	h := NewGraphHandlers(store, staticMapper{known: map[string]string{
		"status":   "status",
		"ldm:size": "size",
	}}, func(msg string) { warnings = append(warnings, msg) })
	return h, store, &warnings
}

func TestGraphQuery_AppliesTenantAndClampsLimit(t *testing.T) {
	h, store, _ := graphFixture()
	store.put("acme", Vertex{ID: "v1", Properties: map[string]any{"tenant": "acme"}})

	result, err := h.Query(scopedContext(t, "acme"), map[string]any{
		"limit": float64(9999),
	})
	require.NoError(t, err)
	assert.Equal(t, "acme", store.lastQuery.tenantID)
	assert.Equal(t, 1000, store.lastQuery.limit)
	assert.Len(t, result.(graphQueryResult).Vertices, 1)
}

func TestGraphQuery_RejectsBadOperator(t *testing.T) {
	h, _, _ := graphFixture()

	_, err := h.Query(scopedContext(t, "acme"), map[string]any{
		"filters": []any{map[string]any{"property": "x", "op": "gt", "value": float64(3)}},
	})
	require.Error(t, err)
	assert.True(t, apierr.As(err, apierr.KindSchemaInvalid))
}

func TestGraphQuery_RejectsBadDirection(t *testing.T) {
	h, _, _ := graphFixture()

	_, err := h.Query(scopedContext(t, "acme"), map[string]any{
		"traverse": []any{map[string]any{"direction": "sideways", "relation": "knows"}},
	})
	require.Error(t, err)
	assert.True(t, apierr.As(err, apierr.KindSchemaInvalid))
}

func TestGraphQuery_PassesFiltersAndTraversals(t *testing.T) {
	h, store, _ := graphFixture()

	_, err := h.Query(scopedContext(t, "acme"), map[string]any{
		"subjectIds": []any{"v1", "v2"},
		"filters":    []any{map[string]any{"property": "status", "op": "eq", "value": "open"}},
		"traverse":   []any{map[string]any{"direction": "out", "relation": "knows", "hops": float64(2)}},
		"limit":      float64(50),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, store.lastQuery.subjectIDs)
	require.Len(t, store.lastQuery.filters, 1)
	assert.Equal(t, "eq", store.lastQuery.filters[0].Op)
	require.Len(t, store.lastQuery.traversals, 1)
	assert.Equal(t, 2, store.lastQuery.traversals[0].Hops)
}

func TestEvaluatePreconditions_SubjectMissing(t *testing.T) {
	h, _, _ := graphFixture()
	sc, _ := scope.New("acme", "crm", "prod")

	result, err := h.EvaluatePreconditions(context.Background(), sc, "Task", "missing-vertex", []Precondition{
		{Predicate: "status", Op: "eq", Expected: "open"},
		{Predicate: "ldm:size", Op: "exists"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsSatisfied)
	require.Len(t, result.Violations, 2)
	for _, v := range result.Violations {
		assert.Equal(t, "subject-missing", v.Reason)
	}
}

func TestEvaluatePreconditions_Operators(t *testing.T) {
	h, store, _ := graphFixture()
	sc, _ := scope.New("acme", "crm", "prod")
	store.put("acme", Vertex{ID: "t1", Properties: map[string]any{"status": "open", "size": float64(3)}})

	tests := []struct {
		name      string
		pre       Precondition
		satisfied bool
	}{
		{"eq holds", Precondition{Predicate: "status", Op: "eq", Expected: "open"}, true},
		{"eq fails", Precondition{Predicate: "status", Op: "eq", Expected: "closed"}, false},
		{"eq numeric across json erasure", Precondition{Predicate: "ldm:size", Op: "eq", Expected: 3}, true},
		{"neq holds", Precondition{Predicate: "status", Op: "neq", Expected: "closed"}, true},
		{"neq fails", Precondition{Predicate: "status", Op: "neq", Expected: "open"}, false},
		{"exists holds", Precondition{Predicate: "status", Op: "exists"}, true},
		{"unknown op fails", Precondition{Predicate: "status", Op: "matches"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.EvaluatePreconditions(context.Background(), sc, "Task", "t1", []Precondition{tt.pre})
			require.NoError(t, err)
			assert.Equal(t, tt.satisfied, result.IsSatisfied)
		})
	}
}

func TestEvaluatePreconditions_UnmappedFailsClosed(t *testing.T) {
	h, store, warnings := graphFixture()
	sc, _ := scope.New("acme", "crm", "prod")
	store.put("acme", Vertex{ID: "t1", Properties: map[string]any{"status": "open"}})

	result, err := h.EvaluatePreconditions(context.Background(), sc, "Task", "t1", []Precondition{
		{Predicate: "unmapped:thing", Op: "exists"},
	})
	require.NoError(t, err)
	assert.False(t, result.IsSatisfied)
	assert.Equal(t, "unmapped-predicate", result.Violations[0].Reason)
	assert.NotEmpty(t, *warnings)
}

func TestCommitEffects_AppliesInOrder(t *testing.T) {
	h, store, _ := graphFixture()
	sc, _ := scope.New("acme", "crm", "prod")
	store.put("acme", Vertex{ID: "t1", Properties: map[string]any{}})

	err := h.CommitEffects(context.Background(), sc, "Task", "t1", []Effect{
		{Predicate: "status", Value: "closed", Mode: EffectSet},
		{EdgeTarget: "t2", EdgeLabel: "blocks"},
	})
	require.NoError(t, err)

	v, _, _ := store.GetVertex(context.Background(), "acme", "t1")
	assert.Equal(t, "closed", v.Properties["status"])
	assert.Equal(t, []string{"t1->t2:blocks"}, store.edges)
}

func TestCommitEffects_UnmappedSkippedWithWarning(t *testing.T) {
	h, store, warnings := graphFixture()
	sc, _ := scope.New("acme", "crm", "prod")
	store.put("acme", Vertex{ID: "t1", Properties: map[string]any{}})

	err := h.CommitEffects(context.Background(), sc, "Task", "t1", []Effect{
		{Predicate: "unmapped:thing", Value: "x"},
		{Predicate: "status", Value: "done"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, *warnings)

	v, _, _ := store.GetVertex(context.Background(), "acme", "t1")
	assert.Equal(t, "done", v.Properties["status"])
	assert.NotContains(t, v.Properties, "unmapped:thing")
}

func TestCommitEffects_FailureAbortsRemainder(t *testing.T) {
	h, store, _ := graphFixture()
	store.failOn = "status"
	sc, _ := scope.New("acme", "crm", "prod")
	store.put("acme", Vertex{ID: "t1", Properties: map[string]any{}})

	err := h.CommitEffects(context.Background(), sc, "Task", "t1", []Effect{
		{Predicate: "status", Value: "closed"},
		{Predicate: "ldm:size", Value: 5},
	})
	require.Error(t, err)
	assert.True(t, apierr.As(err, apierr.KindEffectFailed))

	// The second effect never ran.
	v, _, _ := store.GetVertex(context.Background(), "acme", "t1")
	assert.NotContains(t, v.Properties, "size")
}
