package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	// DefaultLimit is used when a query asks for no limit.
	DefaultLimit = 20
	// MaxLimit caps a single page of results.
	MaxLimit = 100
)

// Params configures a search query.
type Params struct {
	Query string
	Tags  []string // all listed tags must be present
	// PublicOnly restricts results to recipes marked public.
	PublicOnly bool
	Limit      int
	Offset     int
}

// Hit is a single search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Title string  `json:"title"`
}

// Result is a page of search hits.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Search returns the ids of recipes matching q in relevance order.
// An empty query matches nothing.
func (s *Index) Search(ctx context.Context, q string, limit int) ([]string, error) {
	if strings.TrimSpace(q) == "" {
		return []string{}, nil
	}

	result, err := s.Query(ctx, Params{Query: q, Limit: limit})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// Query executes params against the index.
func (s *Index) Query(ctx context.Context, params Params) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	req := bleve.NewSearchRequestOptions(buildQuery(params), limit, params.Offset, false)
	req.SortBy([]string{"-_score", "title"})
	req.Fields = []string{"title"}

	res, err := s.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	result := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		h := Hit{ID: hit.ID, Score: hit.Score}
		if title, ok := hit.Fields["title"].(string); ok {
			h.Title = title
		}
		result.Hits = append(result.Hits, h)
	}
	return result, nil
}

// buildQuery ORs the text matches (title weighted highest, then tags and
// ingredients) and ANDs the filters.
func buildQuery(params Params) query.Query {
	var queries []query.Query

	if text := strings.TrimSpace(params.Query); text != "" {
		var textQueries []query.Query

		titleMatch := bleve.NewMatchQuery(text)
		titleMatch.SetField("title")
		titleMatch.SetBoost(3.0)
		textQueries = append(textQueries, titleMatch)

		tagTerm := bleve.NewTermQuery(strings.ToLower(text))
		tagTerm.SetField("tags")
		tagTerm.SetBoost(2.0)
		textQueries = append(textQueries, tagTerm)

		ingredientMatch := bleve.NewMatchQuery(text)
		ingredientMatch.SetField("ingredients")
		ingredientMatch.SetBoost(1.5)
		textQueries = append(textQueries, ingredientMatch)

		authorMatch := bleve.NewMatchQuery(text)
		authorMatch.SetField("author")
		textQueries = append(textQueries, authorMatch)

		for _, field := range []string{"description", "steps", "notes"} {
			m := bleve.NewMatchQuery(text)
			m.SetField(field)
			m.SetBoost(0.5)
			textQueries = append(textQueries, m)
		}

		// Typo tolerance on titles.
		fuzzy := bleve.NewFuzzyQuery(strings.ToLower(text))
		fuzzy.SetFuzziness(1)
		fuzzy.SetField("title")
		fuzzy.SetBoost(0.8)
		textQueries = append(textQueries, fuzzy)

		// Autocomplete.
		if len(text) >= 2 {
			prefix := bleve.NewPrefixQuery(strings.ToLower(text))
			prefix.SetField("title")
			prefix.SetBoost(0.5)
			textQueries = append(textQueries, prefix)
		}

		queries = append(queries, bleve.NewDisjunctionQuery(textQueries...))
	}

	for _, tag := range params.Tags {
		tq := bleve.NewTermQuery(strings.ToLower(strings.TrimSpace(tag)))
		tq.SetField("tags")
		queries = append(queries, tq)
	}

	if params.PublicOnly {
		pq := bleve.NewBoolFieldQuery(true)
		pq.SetField("public")
		queries = append(queries, pq)
	}

	switch len(queries) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return queries[0]
	default:
		return bleve.NewConjunctionQuery(queries...)
	}
}
