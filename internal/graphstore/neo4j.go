// Package graphstore is the Neo4j-backed reference adapter for the
// knowledge graph collaborator. Every Cypher statement it issues carries
// the tenant guard as a vertex property equality; traversal hops
// re-apply it on each step so a path can never escape the tenant.
package graphstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/tools"
)

// Store implements tools.GraphStore over the Neo4j Bolt driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.SugaredLogger
}

// Open creates the driver and verifies connectivity.
func Open(ctx context.Context, uri, user, password string, logger *zap.SugaredLogger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("unable to create graph driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("unable to connect to graph store: %w", err)
	}
	return &Store{driver: driver, database: "neo4j", logger: logger}, nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Ping verifies connectivity, for readiness checks and `kg ping`.
func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database, AccessMode: mode})
}

// GetVertex fetches one vertex by id within the tenant.
func (s *Store) GetVertex(ctx context.Context, tenantID, id string) (tools.Vertex, bool, error) {
	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	result, err := sess.Run(ctx,
		`MATCH (v {id: $id, tenant: $tenant}) RETURN properties(v) AS props LIMIT 1`,
		map[string]any{"id": id, "tenant": tenantID})
	if err != nil {
		return tools.Vertex{}, false, err
	}
	record, err := result.Single(ctx)
	if err != nil {
		// Single returns an error for zero records; treat as absent.
		return tools.Vertex{}, false, nil
	}
	props, _ := record.Get("props")
	m, _ := props.(map[string]any)
	return tools.Vertex{ID: id, Properties: m}, true, nil
}

// GetVertexProperty reads a single property from a tenant's vertex.
func (s *Store) GetVertexProperty(ctx context.Context, tenantID, id, key string) (any, bool, error) {
	v, found, err := s.GetVertex(ctx, tenantID, id)
	if err != nil || !found {
		return nil, false, err
	}
	value, ok := v.Properties[key]
	return value, ok, nil
}

// UpsertVertexProperty sets one property on a tenant's vertex, creating
// the vertex if absent.
func (s *Store) UpsertVertexProperty(ctx context.Context, tenantID, id, key string, value any) error {
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	// Cypher cannot SET a dynamically-named property directly; merging a
	// one-entry map gets the same effect.
	_, err := sess.Run(ctx,
		`MERGE (v {id: $id, tenant: $tenant}) SET v += $props`,
		map[string]any{"id": id, "tenant": tenantID, "props": map[string]any{key: value}})
	return err
}

// UpsertEdge creates or refreshes a directed edge between two vertices
// of the same tenant. The relationship type is carried as a property so
// the label does not have to be a static Cypher identifier.
func (s *Store) UpsertEdge(ctx context.Context, tenantID, fromID, toID, label string) error {
	sess := s.session(ctx, neo4j.AccessModeWrite)
	defer sess.Close(ctx)

	_, err := sess.Run(ctx,
		`MATCH (a {id: $from, tenant: $tenant})
		 MATCH (b {id: $to, tenant: $tenant})
		 MERGE (a)-[r:REL {label: $label}]->(b)`,
		map[string]any{"from": fromID, "to": toID, "tenant": tenantID, "label": label})
	return err
}

// Query runs the filtered, optionally traversing vertex query. The
// tenant guard is applied to the subject match and re-applied on every
// traversal hop.
func (s *Store) Query(ctx context.Context, tenantID string, subjectIDs []string, filters []tools.GraphFilter, traversals []tools.Traversal, limit int) ([]tools.Vertex, string, error) {
	sess := s.session(ctx, neo4j.AccessModeRead)
	defer sess.Close(ctx)

	params := map[string]any{"tenant": tenantID, "limit": limit}

	var b strings.Builder
	b.WriteString("MATCH (v {tenant: $tenant})\n")

	var conditions []string
	if len(subjectIDs) > 0 {
		params["subjectIds"] = subjectIDs
		conditions = append(conditions, "v.id IN $subjectIds")
	}
	for i, f := range filters {
		p := fmt.Sprintf("f%d", i)
		switch f.Op {
		case "eq":
			params[p] = f.Value
			conditions = append(conditions, fmt.Sprintf("v[$%sk] = $%s", p, p))
		case "neq":
			params[p] = f.Value
			conditions = append(conditions, fmt.Sprintf("v[$%sk] <> $%s", p, p))
		case "exists":
			conditions = append(conditions, fmt.Sprintf("v[$%sk] IS NOT NULL", p))
		case "not_exists":
			conditions = append(conditions, fmt.Sprintf("v[$%sk] IS NULL", p))
		default:
			return nil, "", fmt.Errorf("unknown filter operator %q", f.Op)
		}
		params[p+"k"] = f.Property
	}
	if len(conditions) > 0 {
		b.WriteString("WHERE " + strings.Join(conditions, " AND ") + "\n")
	}

	// Each traversal expands from the current frontier; the target node
	// pattern repeats the tenant guard.
	resultVar := "v"
	for i, t := range traversals {
		next := fmt.Sprintf("t%d", i)
		lp := fmt.Sprintf("rel%d", i)
		params[lp] = t.Relation
		hops := t.Hops
		if hops < 1 {
			hops = 1
		}
		var pattern string
		switch t.Direction {
		case "out":
			pattern = fmt.Sprintf("(%s)-[r%d:REL*1..%d]->(%s {tenant: $tenant})", resultVar, i, hops, next)
		case "in":
			pattern = fmt.Sprintf("(%s)<-[r%d:REL*1..%d]-(%s {tenant: $tenant})", resultVar, i, hops, next)
		case "both":
			pattern = fmt.Sprintf("(%s)-[r%d:REL*1..%d]-(%s {tenant: $tenant})", resultVar, i, hops, next)
		default:
			return nil, "", fmt.Errorf("unknown traversal direction %q", t.Direction)
		}
		b.WriteString(fmt.Sprintf("MATCH %s\nWHERE all(rel IN r%d WHERE rel.label = $%s)\n", pattern, i, lp))
		resultVar = next
	}

	b.WriteString(fmt.Sprintf("RETURN DISTINCT %s.id AS id, properties(%s) AS props LIMIT $limit", resultVar, resultVar))

	result, err := sess.Run(ctx, b.String(), params)
	if err != nil {
		return nil, "", err
	}

	var vertices []tools.Vertex
	for result.Next(ctx) {
		record := result.Record()
		idVal, _ := record.Get("id")
		propsVal, _ := record.Get("props")
		id, _ := idVal.(string)
		props, _ := propsVal.(map[string]any)
		vertices = append(vertices, tools.Vertex{ID: id, Properties: props})
	}
	if err := result.Err(); err != nil {
		return nil, "", err
	}
	return vertices, "", nil
}
