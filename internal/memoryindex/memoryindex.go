// Package memoryindex is the reference adapter for the vector index
// collaborator: a bleve index serves the lexical leg and a Postgres
// table with pgvector serves the semantic leg. Tenant equality is a
// mandatory part of every query.
package memoryindex

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/tools"
)

// Embedder turns query text into a vector for the semantic leg of a
// text-only search. Optional: without one, text-only queries run the
// lexical leg alone.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index implements tools.VectorIndex over bleve + Postgres/pgvector.
type Index struct {
	bleve    bleve.Index
	db       *sql.DB
	embedder Embedder
	logger   *zap.SugaredLogger
}

// Open opens the bleve index at blevePath and, when vectorDSN is
// non-empty, connects to Postgres. embedder may be nil.
func Open(blevePath, vectorDSN string, embedder Embedder, logger *zap.SugaredLogger) (*Index, error) {
	bi, err := openBleve(blevePath)
	if err != nil {
		return nil, err
	}

	var db *sql.DB
	if vectorDSN != "" {
		db, err = sql.Open("postgres", vectorDSN)
		if err != nil {
			bi.Close()
			return nil, fmt.Errorf("open vector database: %w", err)
		}
	}

	return &Index{bleve: bi, db: db, embedder: embedder, logger: logger}, nil
}

// Close releases both halves.
func (i *Index) Close() error {
	err := i.bleve.Close()
	if i.db != nil {
		if dberr := i.db.Close(); err == nil {
			err = dberr
		}
	}
	return err
}

// EnsureIndex creates the semantic-side table and ANN index for the
// given embedding dimensionality. Invoked by `vector init`; idempotent.
func (i *Index) EnsureIndex(ctx context.Context, dim int) error {
	if i.db == nil {
		return fmt.Errorf("no vector database configured")
	}
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_docs (
			id TEXT PRIMARY KEY,
			tenant TEXT NOT NULL,
			title TEXT,
			source TEXT,
			chunk TEXT,
			ontology_class TEXT,
			tags TEXT,
			content TEXT,
			embedding vector(%d)
		)`, dim),
		`CREATE INDEX IF NOT EXISTS memory_docs_tenant_idx ON memory_docs (tenant)`,
		`CREATE INDEX IF NOT EXISTS memory_docs_embedding_idx ON memory_docs
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range statements {
		if _, err := i.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure vector index: %w", err)
		}
	}
	return nil
}

// Upsert writes docs to both legs.
func (i *Index) Upsert(ctx context.Context, docs []tools.MemoryDoc) error {
	for _, d := range docs {
		if err := i.bleve.Index(d.ID, bleveDoc{
			Tenant:        d.TenantID,
			Title:         d.Title,
			Source:        d.Source,
			Chunk:         d.Chunk,
			OntologyClass: d.OntologyClass,
			Tags:          strings.Join(d.Tags, " "),
			Content:       d.Content,
		}); err != nil {
			return fmt.Errorf("index document %s: %w", d.ID, err)
		}

		if i.db != nil && len(d.Vector) > 0 {
			_, err := i.db.ExecContext(ctx, `
				INSERT INTO memory_docs (id, tenant, title, source, chunk, ontology_class, tags, content, embedding)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (id) DO UPDATE SET
					tenant = EXCLUDED.tenant,
					title = EXCLUDED.title,
					source = EXCLUDED.source,
					chunk = EXCLUDED.chunk,
					ontology_class = EXCLUDED.ontology_class,
					tags = EXCLUDED.tags,
					content = EXCLUDED.content,
					embedding = EXCLUDED.embedding`,
				d.ID, d.TenantID, d.Title, d.Source, d.Chunk, d.OntologyClass,
				strings.Join(d.Tags, " "), d.Content, pgvector.NewVector(d.Vector))
			if err != nil {
				return fmt.Errorf("upsert vector row %s: %w", d.ID, err)
			}
		}
	}
	return nil
}

// SearchHybrid dispatches per the query shape: text-only runs lexical
// plus (when an embedder is present) semantic; vector-only runs pure
// vector; both runs the two legs at FanOut candidates each and merges.
func (i *Index) SearchHybrid(ctx context.Context, q tools.HybridQuery) ([]tools.MemoryHit, error) {
	if q.TenantID == "" {
		return nil, fmt.Errorf("tenant filter is mandatory")
	}
	if q.Filters == nil {
		q.Filters = map[string]string{}
	}
	q.Filters["tenant"] = q.TenantID
	if q.FanOut < q.K {
		q.FanOut = q.K
	}

	var lexical, semantic []tools.MemoryHit
	var err error

	if q.Text != "" {
		lexical, err = i.searchLexical(q)
		if err != nil {
			return nil, err
		}
	}

	vector := q.Vector
	if len(vector) == 0 && q.Text != "" && i.embedder != nil {
		vector, err = i.embedder.Embed(ctx, q.Text)
		if err != nil {
			i.logger.Warnw("embedding query text failed, lexical leg only", "error", err)
			vector = nil
		}
	}
	if len(vector) > 0 && i.db != nil {
		semantic, err = i.searchVector(ctx, q, vector)
		if err != nil {
			return nil, err
		}
	}

	return mergeHits(lexical, semantic, q.K), nil
}

func (i *Index) searchVector(ctx context.Context, q tools.HybridQuery, vector []float32) ([]tools.MemoryHit, error) {
	where := []string{"tenant = $1"}
	params := []any{q.TenantID}
	if class, ok := q.Filters["ontologyClass"]; ok && class != "" {
		params = append(params, class)
		where = append(where, fmt.Sprintf("ontology_class = $%d", len(params)))
	}
	params = append(params, pgvector.NewVector(vector))
	orderParam := len(params)
	params = append(params, q.FanOut)

	rows, err := i.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, title, source, chunk, ontology_class, tags, content,
		       1 - (embedding <=> $%d) AS score
		FROM memory_docs
		WHERE %s
		ORDER BY embedding <=> $%d
		LIMIT $%d`, orderParam, strings.Join(where, " AND "), orderParam, len(params)),
		params...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []tools.MemoryHit
	for rows.Next() {
		var h tools.MemoryHit
		var tags sql.NullString
		var title, source, chunk, class, content sql.NullString
		if err := rows.Scan(&h.ID, &title, &source, &chunk, &class, &tags, &content, &h.Score); err != nil {
			return nil, err
		}
		h.Title, h.Source, h.Chunk = title.String, source.String, chunk.String
		h.OntologyClass, h.Content = class.String, content.String
		if tags.String != "" {
			h.Tags = strings.Fields(tags.String)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// mergeHits fuses the two legs with reciprocal rank fusion, dedupes by
// id, and truncates to k.
func mergeHits(lexical, semantic []tools.MemoryHit, k int) []tools.MemoryHit {
	const rrfK = 60.0

	scored := map[string]*tools.MemoryHit{}
	fused := map[string]float64{}
	accumulate := func(hits []tools.MemoryHit) {
		for rank, h := range hits {
			hit := h
			if _, ok := scored[h.ID]; !ok {
				scored[h.ID] = &hit
			}
			fused[h.ID] += 1.0 / (rrfK + float64(rank+1))
		}
	}
	accumulate(lexical)
	accumulate(semantic)

	out := make([]tools.MemoryHit, 0, len(scored))
	for id, h := range scored {
		merged := *h
		merged.Score = fused[id]
		out = append(out, merged)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ID < out[b].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}
