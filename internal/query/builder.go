// Package query builds and executes search requests against the read
// aliases. Field references go through the mappings tables so queries can
// never drift from the indexed schema.
package query

import (
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Request describes one search.
type Request struct {
	DocType string
	Query   string

	// Locale selects the search-time analyzer, falling back to the
	// default chain for locales without one.
	Locale string

	// Filters are exact-match constraints. Slice values become terms
	// queries, everything else a term query. Fields must be declared
	// filter fields of the document type.
	Filters map[string]any

	// VisibleAt restricts results to documents whose visibility window
	// covers the given instant. Documents without a window are always
	// visible. Only meaningful for types with a visible_during field.
	VisibleAt *time.Time

	Highlight bool

	// Hybrid requests reciprocal rank fusion of lexical retrievers.
	// Requires a protocol version that supports it.
	Hybrid bool

	Page    int
	PerPage int
}

func (r *Request) page() int {
	if r.Page < 1 {
		return 1
	}
	return r.Page
}

func (r *Request) perPage() int {
	switch {
	case r.PerPage <= 0:
		return defaultPerPage
	case r.PerPage > maxPerPage:
		return maxPerPage
	default:
		return r.PerPage
	}
}

// Build renders the request to a search body for the given capabilities.
func Build(req *Request, caps *elasticsearch.Capabilities) (map[string]any, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("empty query string")
	}
	searchFields := mappings.SearchFields(req.DocType)
	if len(searchFields) == 0 {
		return nil, fmt.Errorf("unknown document type: %s", req.DocType)
	}

	filters, err := buildFilters(req)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"from": (req.page() - 1) * req.perPage(),
		"size": req.perPage(),
	}

	match := multiMatch(req, searchFields)
	if req.Hybrid {
		if err := caps.Require(elasticsearch.FeatureHybridRRF); err != nil {
			return nil, err
		}
		body["retriever"] = rrfRetriever(req, searchFields, filters)
	} else {
		boolQuery := map[string]any{"must": []any{match}}
		if len(filters) > 0 {
			boolQuery["filter"] = filters
		}
		body["query"] = map[string]any{"bool": boolQuery}
	}

	if req.Highlight {
		if hl := highlight(req.DocType); hl != nil {
			body["highlight"] = hl
		}
	}
	return body, nil
}

func multiMatch(req *Request, fields []string) map[string]any {
	inner := map[string]any{
		"query":  req.Query,
		"fields": fields,
	}
	if req.Locale != "" {
		inner["analyzer"] = mappings.SearchAnalyzerName(req.Locale)
	}
	return map[string]any{"multi_match": inner}
}

// phraseMatch is the second retriever in hybrid mode, favoring documents
// where the terms appear together.
func phraseMatch(req *Request, fields []string) map[string]any {
	inner := map[string]any{
		"query":  req.Query,
		"fields": fields,
		"type":   "phrase",
	}
	if req.Locale != "" {
		inner["analyzer"] = mappings.SearchAnalyzerName(req.Locale)
	}
	return map[string]any{"multi_match": inner}
}

func rrfRetriever(req *Request, fields []string, filters []any) map[string]any {
	standard := func(query map[string]any) map[string]any {
		boolQuery := map[string]any{"must": []any{query}}
		if len(filters) > 0 {
			boolQuery["filter"] = filters
		}
		return map[string]any{
			"standard": map[string]any{
				"query": map[string]any{"bool": boolQuery},
			},
		}
	}
	return map[string]any{
		"rrf": map[string]any{
			"retrievers": []any{
				standard(multiMatch(req, fields)),
				standard(phraseMatch(req, fields)),
			},
		},
	}
}

func buildFilters(req *Request) ([]any, error) {
	var filters []any

	for field, value := range req.Filters {
		if !mappings.HasFilterField(req.DocType, field) {
			return nil, fmt.Errorf("field %s is not a filter field of %s", field, req.DocType)
		}
		switch v := value.(type) {
		case []string:
			filters = append(filters, map[string]any{"terms": map[string]any{field: v}})
		case []int64:
			filters = append(filters, map[string]any{"terms": map[string]any{field: v}})
		case []any:
			filters = append(filters, map[string]any{"terms": map[string]any{field: v}})
		default:
			filters = append(filters, map[string]any{"term": map[string]any{field: v}})
		}
	}

	if req.VisibleAt != nil {
		at := req.VisibleAt.UTC().Format(time.RFC3339)
		// Visible when the window overlaps the instant, or when no window
		// was ever set.
		filters = append(filters, map[string]any{
			"bool": map[string]any{
				"minimum_should_match": 1,
				"should": []any{
					map[string]any{
						"bool": map[string]any{
							"must_not": map[string]any{
								"exists": map[string]any{"field": "visible_during"},
							},
						},
					},
					map[string]any{
						"range": map[string]any{
							"visible_during": map[string]any{
								"gte":      at,
								"lte":      at,
								"relation": "intersects",
							},
						},
					},
				},
			},
		})
	}
	return filters, nil
}

func highlight(docType string) map[string]any {
	fields := mappings.HighlightFields(docType)
	if len(fields) == 0 {
		return nil
	}
	rendered := map[string]any{}
	for _, f := range fields {
		rendered[f] = map[string]any{}
	}
	return map[string]any{
		"pre_tags":  []string{"<strong>"},
		"post_tags": []string{"</strong>"},
		"fields":    rendered,
	}
}
