package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// driver is the version-specific protocol strategy. Exactly one
// implementation backs a Client, selected at construction; no other code
// branches on the protocol version for request shape.
type driver interface {
	Version() Version
	Ping(ctx context.Context) error
	Info(ctx context.Context) (*ClusterInfo, error)

	// UpsertDocument inserts the document or fully replaces an existing one
	// with the same ID. Partial merges are never performed.
	UpsertDocument(ctx context.Context, index, id string, body []byte, refresh bool) error
	DeleteDocument(ctx context.Context, index, id string, refresh bool) error
	GetDocument(ctx context.Context, index, id string) (map[string]any, error)
	Bulk(ctx context.Context, index string, items []BulkItem, opts BulkOptions) (*BulkStats, []BulkItemError, error)
	UpdateByQuery(ctx context.Context, index string, body []byte) (*UpdateByQueryResult, error)
	Search(ctx context.Context, index string, body []byte) (*SearchResult, error)
	Refresh(ctx context.Context, index string) error

	CreateIndex(ctx context.Context, name string, body []byte) error
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	ListIndices(ctx context.Context, pattern string) ([]string, error)
	CloseIndex(ctx context.Context, name string) error
	OpenIndex(ctx context.Context, name string) error
	PutSettings(ctx context.Context, name string, body []byte) error
	PutMapping(ctx context.Context, name string, body []byte) error
	GetMapping(ctx context.Context, name string) (map[string]any, error)
	ReloadSearchAnalyzers(ctx context.Context, name string) error

	PutAlias(ctx context.Context, index, alias string, isWriteIndex bool) error
	UpdateAliases(ctx context.Context, actions []AliasAction) error
	GetAlias(ctx context.Context, alias string) ([]string, error)
	AliasExists(ctx context.Context, alias string) (bool, error)
	DeleteAlias(ctx context.Context, index, alias string) error
}

// ClusterInfo holds the subset of the cluster root response we care about.
type ClusterInfo struct {
	ClusterName   string
	VersionNumber string
}

// BulkItem is one action in a bulk request.
type BulkItem struct {
	// Action is "index" or "delete".
	Action     string
	DocumentID string
	Body       []byte
}

// BulkOptions tunes a single bulk call.
type BulkOptions struct {
	Workers    int
	FlushBytes int
	Refresh    bool
}

// BulkStats summarizes one bulk call. Item ordering in the failure list
// follows submission order for error attribution.
type BulkStats struct {
	Added  int64
	Failed int64
}

// UpdateByQueryResult reports an update-by-query outcome. Version conflicts
// are counted, not fatal.
type UpdateByQueryResult struct {
	Total            int64 `json:"total"`
	Updated          int64 `json:"updated"`
	VersionConflicts int64 `json:"version_conflicts"`
}

// SearchHit is one search result document.
type SearchHit struct {
	ID        string
	Index     string
	Score     float64
	Source    json.RawMessage
	Highlight map[string][]string
}

// SearchResult holds a decoded search response.
type SearchResult struct {
	Total int64
	Hits  []SearchHit
}

// AliasAction is one entry in an update-aliases request. Add actions may
// mark the index as the write target where the protocol supports it.
type AliasAction struct {
	Remove       bool
	Index        string
	Alias        string
	IsWriteIndex bool
}

// searchResponse is the wire shape both drivers decode search results from.
type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Index     string              `json:"_index"`
			Score     float64             `json:"_score"`
			Source    json.RawMessage     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *searchResponse) toResult() *SearchResult {
	out := &SearchResult{Total: r.Hits.Total.Value}
	out.Hits = make([]SearchHit, 0, len(r.Hits.Hits))
	for _, h := range r.Hits.Hits {
		out.Hits = append(out.Hits, SearchHit{
			ID:        h.ID,
			Index:     h.Index,
			Score:     h.Score,
			Source:    h.Source,
			Highlight: h.Highlight,
		})
	}
	return out
}

// parseAliasIndices decodes a get-alias response body into the sorted list
// of index names the alias points at.
func parseAliasIndices(body io.Reader) ([]string, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode get alias response: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// parseMappingBody decodes a get-mapping response, which nests the mapping
// under the concrete index name, into the bare mappings section.
func parseMappingBody(body io.Reader) (map[string]any, error) {
	var raw map[string]struct {
		Mappings map[string]any `json:"mappings"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode get mapping response: %w", err)
	}
	for _, entry := range raw {
		return entry.Mappings, nil
	}
	return nil, fmt.Errorf("get mapping response contained no index")
}

// aliasActionsBody renders update-aliases actions to the wire format.
// includeWriteIndex controls whether is_write_index is emitted; the legacy
// protocol rejects unknown alias parameters in some configurations so it is
// only sent where supported.
func aliasActionsBody(actions []AliasAction, includeWriteIndex bool) ([]byte, error) {
	rendered := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		inner := map[string]any{
			"index": a.Index,
			"alias": a.Alias,
		}
		if a.Remove {
			rendered = append(rendered, map[string]any{"remove": inner})
			continue
		}
		if includeWriteIndex && a.IsWriteIndex {
			inner["is_write_index"] = true
		}
		rendered = append(rendered, map[string]any{"add": inner})
	}
	return json.Marshal(map[string]any{"actions": rendered})
}
