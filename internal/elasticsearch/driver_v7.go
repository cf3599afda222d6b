package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	es7 "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/elastic/go-elasticsearch/v7/esutil"
)

// v7Driver speaks the legacy protocol. SSL verification and explicit
// timeouts are NOT configured by default, matching how deployments on the
// old client have always connected.
type v7Driver struct {
	es *es7.Client
}

func newV7Driver(cfg *Config) (*v7Driver, error) {
	clientCfg := es7.Config{
		Addresses:  cfg.URLs,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.CloudID != "" {
		clientCfg.CloudID = cfg.CloudID
		clientCfg.Addresses = nil
	}
	if cfg.Username != "" {
		clientCfg.Username = cfg.Username
		clientCfg.Password = cfg.Password
	}

	es, err := es7.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create v7 client: %w", err)
	}
	return &v7Driver{es: es}, nil
}

func (d *v7Driver) Version() Version { return V7 }

// check drains error responses into the taxonomy. The response body is
// always closed.
func (d *v7Driver) check(op, index string, res *esapi.Response, err error) error {
	if err != nil {
		return &OpError{Op: op, Index: index, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return newOpError(op, index, res.StatusCode, string(body))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (d *v7Driver) Ping(ctx context.Context) error {
	res, err := esapi.PingRequest{}.Do(ctx, d.es)
	return d.check("ping", "", res, err)
}

func (d *v7Driver) Info(ctx context.Context) (*ClusterInfo, error) {
	res, err := esapi.InfoRequest{}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "info", Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, newOpError("info", "", res.StatusCode, string(body))
	}

	var raw struct {
		ClusterName string `json:"cluster_name"`
		Version     struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode info response: %w", err)
	}
	return &ClusterInfo{ClusterName: raw.ClusterName, VersionNumber: raw.Version.Number}, nil
}

// UpsertDocument performs insert-or-fully-replace through the update API:
// a script that overwrites _source plus an upsert clause. The legacy client
// has no single request that both creates and fully replaces, so this is the
// version quirk the shim hides.
func (d *v7Driver) UpsertDocument(ctx context.Context, index, id string, body []byte, refresh bool) error {
	payload := map[string]any{
		"script": map[string]any{
			"source": "ctx._source = params.doc",
			"lang":   "painless",
			"params": map[string]any{"doc": json.RawMessage(body)},
		},
		"upsert": json.RawMessage(body),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal upsert body: %w", err)
	}

	req := esapi.UpdateRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(buf),
	}
	if refresh {
		req.Refresh = "true"
	}
	res, err := req.Do(ctx, d.es)
	return d.check("upsert", index, res, err)
}

func (d *v7Driver) DeleteDocument(ctx context.Context, index, id string, refresh bool) error {
	req := esapi.DeleteRequest{Index: index, DocumentID: id}
	if refresh {
		req.Refresh = "true"
	}
	res, err := req.Do(ctx, d.es)
	return d.check("delete", index, res, err)
}

func (d *v7Driver) GetDocument(ctx context.Context, index, id string) (map[string]any, error) {
	res, err := esapi.GetRequest{Index: index, DocumentID: id}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "get", Index: index, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, newOpError("get", index, res.StatusCode, string(body))
	}

	var raw struct {
		Source map[string]any `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode get response: %w", err)
	}
	return raw.Source, nil
}

func (d *v7Driver) Bulk(ctx context.Context, index string, items []BulkItem, opts BulkOptions) (*BulkStats, []BulkItemError, error) {
	biCfg := esutil.BulkIndexerConfig{
		Client:     d.es,
		Index:      index,
		NumWorkers: opts.Workers,
		FlushBytes: opts.FlushBytes,
	}
	if opts.Refresh {
		biCfg.Refresh = "true"
	}

	bi, err := esutil.NewBulkIndexer(biCfg)
	if err != nil {
		return nil, nil, &OpError{Op: "bulk", Index: index, Err: err}
	}

	var mu sync.Mutex
	var failures []BulkItemError
	onFailure := func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
		reason := res.Error.Reason
		if err != nil {
			reason = err.Error()
		}
		mu.Lock()
		failures = append(failures, BulkItemError{
			DocumentID: item.DocumentID,
			Action:     item.Action,
			Status:     res.Status,
			Reason:     reason,
		})
		mu.Unlock()
	}

	for _, item := range items {
		bulkItem := esutil.BulkIndexerItem{
			Action:     item.Action,
			DocumentID: item.DocumentID,
			OnFailure:  onFailure,
		}
		if len(item.Body) > 0 {
			bulkItem.Body = bytes.NewReader(item.Body)
		}
		if err := bi.Add(ctx, bulkItem); err != nil {
			_ = bi.Close(ctx)
			return nil, failures, &OpError{Op: "bulk", Index: index, Err: err}
		}
	}

	if err := bi.Close(ctx); err != nil {
		return nil, failures, &OpError{Op: "bulk", Index: index, Err: err}
	}

	stats := bi.Stats()
	return &BulkStats{Added: int64(stats.NumAdded), Failed: int64(stats.NumFailed)}, failures, nil
}

func (d *v7Driver) UpdateByQuery(ctx context.Context, index string, body []byte) (*UpdateByQueryResult, error) {
	res, err := esapi.UpdateByQueryRequest{
		Index:     []string{index},
		Body:      bytes.NewReader(body),
		Conflicts: "proceed",
	}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "update_by_query", Index: index, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, newOpError("update_by_query", index, res.StatusCode, string(raw))
	}

	var result UpdateByQueryResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode update_by_query response: %w", err)
	}
	return &result, nil
}

func (d *v7Driver) Search(ctx context.Context, index string, body []byte) (*SearchResult, error) {
	res, err := esapi.SearchRequest{
		Index:          []string{index},
		Body:           bytes.NewReader(body),
		TrackTotalHits: true,
	}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "search", Index: index, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, newOpError("search", index, res.StatusCode, string(raw))
	}

	var decoded searchResponse
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return decoded.toResult(), nil
}

func (d *v7Driver) Refresh(ctx context.Context, index string) error {
	res, err := esapi.IndicesRefreshRequest{Index: []string{index}}.Do(ctx, d.es)
	return d.check("refresh", index, res, err)
}

func (d *v7Driver) CreateIndex(ctx context.Context, name string, body []byte) error {
	req := esapi.IndicesCreateRequest{Index: name}
	if len(body) > 0 {
		req.Body = bytes.NewReader(body)
	}
	res, err := req.Do(ctx, d.es)
	return d.check("create index", name, res, err)
}

func (d *v7Driver) DeleteIndex(ctx context.Context, name string) error {
	res, err := esapi.IndicesDeleteRequest{
		Index:             []string{name},
		IgnoreUnavailable: esapi.BoolPtr(true),
	}.Do(ctx, d.es)
	return d.check("delete index", name, res, err)
}

func (d *v7Driver) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := esapi.IndicesExistsRequest{Index: []string{name}}.Do(ctx, d.es)
	if err != nil {
		return false, &OpError{Op: "index exists", Index: name, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, newOpError("index exists", name, res.StatusCode, res.String())
	}
	return true, nil
}

func (d *v7Driver) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	res, err := esapi.CatIndicesRequest{Index: []string{pattern}, Format: "json"}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "list indices", Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, newOpError("list indices", pattern, res.StatusCode, string(raw))
	}

	var rows []map[string]any
	if err := json.NewDecoder(res.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode cat indices response: %w", err)
	}

	var names []string
	for _, row := range rows {
		if name, ok := row["index"].(string); ok && !strings.HasPrefix(name, ".") {
			names = append(names, name)
		}
	}
	return names, nil
}

func (d *v7Driver) CloseIndex(ctx context.Context, name string) error {
	res, err := esapi.IndicesCloseRequest{Index: []string{name}}.Do(ctx, d.es)
	return d.check("close index", name, res, err)
}

func (d *v7Driver) OpenIndex(ctx context.Context, name string) error {
	res, err := esapi.IndicesOpenRequest{Index: []string{name}}.Do(ctx, d.es)
	return d.check("open index", name, res, err)
}

func (d *v7Driver) PutSettings(ctx context.Context, name string, body []byte) error {
	res, err := esapi.IndicesPutSettingsRequest{
		Index: []string{name},
		Body:  bytes.NewReader(body),
	}.Do(ctx, d.es)
	return d.check("put settings", name, res, err)
}

func (d *v7Driver) GetMapping(ctx context.Context, name string) (map[string]any, error) {
	res, err := esapi.IndicesGetMappingRequest{Index: []string{name}}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "get mapping", Index: name, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, newOpError("get mapping", name, res.StatusCode, string(raw))
	}
	return parseMappingBody(res.Body)
}

func (d *v7Driver) ReloadSearchAnalyzers(ctx context.Context, name string) error {
	res, err := esapi.IndicesReloadSearchAnalyzersRequest{Index: []string{name}}.Do(ctx, d.es)
	return d.check("reload search analyzers", name, res, err)
}

func (d *v7Driver) PutMapping(ctx context.Context, name string, body []byte) error {
	res, err := esapi.IndicesPutMappingRequest{
		Index: []string{name},
		Body:  bytes.NewReader(body),
	}.Do(ctx, d.es)
	return d.check("put mapping", name, res, err)
}

// PutAlias ignores isWriteIndex: the legacy protocol has no write-index
// flag, a write alias may only ever point at a single index.
func (d *v7Driver) PutAlias(ctx context.Context, index, alias string, _ bool) error {
	res, err := esapi.IndicesPutAliasRequest{
		Index: []string{index},
		Name:  alias,
	}.Do(ctx, d.es)
	return d.check("put alias", index, res, err)
}

func (d *v7Driver) UpdateAliases(ctx context.Context, actions []AliasAction) error {
	body, err := aliasActionsBody(actions, false)
	if err != nil {
		return fmt.Errorf("marshal alias actions: %w", err)
	}
	res, err := esapi.IndicesUpdateAliasesRequest{Body: bytes.NewReader(body)}.Do(ctx, d.es)
	return d.check("update aliases", "", res, err)
}

func (d *v7Driver) GetAlias(ctx context.Context, alias string) ([]string, error) {
	res, err := esapi.IndicesGetAliasRequest{Name: []string{alias}}.Do(ctx, d.es)
	if err != nil {
		return nil, &OpError{Op: "get alias", Index: alias, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		raw, _ := io.ReadAll(res.Body)
		return nil, newOpError("get alias", alias, res.StatusCode, string(raw))
	}
	return parseAliasIndices(res.Body)
}

func (d *v7Driver) AliasExists(ctx context.Context, alias string) (bool, error) {
	res, err := esapi.IndicesExistsAliasRequest{Name: []string{alias}}.Do(ctx, d.es)
	if err != nil {
		return false, &OpError{Op: "alias exists", Index: alias, Err: err}
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if res.IsError() {
		return false, newOpError("alias exists", alias, res.StatusCode, res.String())
	}
	return true, nil
}

func (d *v7Driver) DeleteAlias(ctx context.Context, index, alias string) error {
	res, err := esapi.IndicesDeleteAliasRequest{
		Index: []string{index},
		Name:  []string{alias},
	}.Do(ctx, d.es)
	return d.check("delete alias", index, res, err)
}
