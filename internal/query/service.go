package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
)

// Searcher is the slice of the search client the query service uses.
type Searcher interface {
	Search(ctx context.Context, index string, body []byte) (*elasticsearch.SearchResult, error)
	Capabilities() *elasticsearch.Capabilities
}

// Hit is one search result.
type Hit struct {
	ID        string              `json:"id"`
	Score     float64             `json:"score"`
	Source    json.RawMessage     `json:"source"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// Result is a page of search results.
type Result struct {
	Total   int64         `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Took    time.Duration `json:"-"`
	Hits    []Hit         `json:"hits"`
}

// Service executes searches against the read aliases.
type Service struct {
	es     Searcher
	prefix string
	log    logger.Logger
}

// NewService creates a query service for the given index name prefix.
func NewService(es Searcher, prefix string, log logger.Logger) *Service {
	return &Service{es: es, prefix: prefix, log: log}
}

// Search runs one request. Queries always go through the read alias so
// in-flight migrations never change what users see mid-search.
func (s *Service) Search(ctx context.Context, req *Request) (*Result, error) {
	body, err := Build(req, s.es.Capabilities())
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	alias := lifecycle.ReadAlias(s.prefix, req.DocType)

	started := time.Now()
	res, err := s.es.Search(ctx, alias, data)
	if err != nil {
		return nil, err
	}
	took := time.Since(started)

	result := &Result{
		Total:   res.Total,
		Page:    req.page(),
		PerPage: req.perPage(),
		Took:    took,
		Hits:    make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		result.Hits = append(result.Hits, Hit{
			ID:        h.ID,
			Score:     h.Score,
			Source:    h.Source,
			Highlight: h.Highlight,
		})
	}

	s.log.Debug("search executed",
		logger.String("doc_type", req.DocType),
		logger.Int64("total", result.Total),
		logger.Duration("took", took),
	)
	return result, nil
}
