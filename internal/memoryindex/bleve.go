package memoryindex

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/tools"
)

// bleveDoc is the lexical projection of a memory document.
type bleveDoc struct {
	Tenant        string `json:"tenant"`
	Title         string `json:"title"`
	Source        string `json:"source"`
	Chunk         string `json:"chunk"`
	OntologyClass string `json:"ontology_class"`
	Tags          string `json:"tags"`
	Content       string `json:"content"`
}

func openBleve(path string) (bleve.Index, error) {
	index, err := bleve.Open(path)
	if err == nil {
		return index, nil
	}
	index, err = bleve.New(path, buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return index, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Exact-match fields use the keyword analyzer; the tenant field in
	// particular must never be tokenized, or the tenant guard would
	// match on substrings.
	for _, field := range []string{"tenant", "ontology_class", "source", "chunk"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		fm.Index = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	for _, field := range []string{"title", "tags", "content"} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = true
		fm.Index = true
		docMapping.AddFieldMappingsAt(field, fm)
	}

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// searchLexical runs the bleve leg: a match query over the free-text
// fields, conjoined with exact term filters (tenant always included).
func (i *Index) searchLexical(q tools.HybridQuery) ([]tools.MemoryHit, error) {
	match := bleve.NewMatchQuery(q.Text)

	conjuncts := []query.Query{match}
	for field, value := range q.Filters {
		tq := bleve.NewTermQuery(value)
		tq.SetField(bleveFilterField(field))
		conjuncts = append(conjuncts, tq)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conjuncts...), q.FanOut, 0, false)
	req.Fields = []string{"*"}

	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]tools.MemoryHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, tools.MemoryHit{
			ID:            h.ID,
			Title:         fieldString(h.Fields, "title"),
			Source:        fieldString(h.Fields, "source"),
			Chunk:         fieldString(h.Fields, "chunk"),
			OntologyClass: fieldString(h.Fields, "ontology_class"),
			Content:       fieldString(h.Fields, "content"),
			Score:         h.Score,
		})
	}
	return hits, nil
}

func bleveFilterField(field string) string {
	if field == "ontologyClass" {
		return "ontology_class"
	}
	return field
}

func fieldString(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
