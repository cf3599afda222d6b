package elasticsearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"
)

// v8Driver speaks the current protocol. Unlike the legacy driver, TLS
// verification and an explicit timeout are always configured: the current
// server generation enables security by default.
type v8Driver struct {
	es *es8.Client
}

func newV8Driver(cfg *Config) (*v8Driver, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !cfg.VerifyCerts,
		},
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	clientCfg := es8.Config{
		Addresses:  cfg.URLs,
		Transport:  transport,
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

	es, err := es8.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create v8 client: %w", err)
	}
	return &v8Driver{es: es}, nil
}

func (d *v8Driver) Version() Version { return V8 }

func (d *v8Driver) check(op, index string, res *esapi.Response, err error) error {
	if err != nil {
		return &OpError{Op: op, Index: index, Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return newOpError(op, index, res.StatusCode, string(body))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (d *v8Driver) Ping(ctx context.Context) error {
	res, err := d.es.Ping(d.es.Ping.WithContext(ctx))
	return d.check("ping", "", res, err)
}

func (d *v8Driver) Info(ctx context.Context) (*ClusterInfo, error) {
	res, err := d.es.Info(d.es.Info.WithContext(ctx))
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

// UpsertDocument uses the index API: on the current protocol a plain index
// request with an explicit ID is already insert-or-fully-replace.
func (d *v8Driver) UpsertDocument(ctx context.Context, index, id string, body []byte, refresh bool) error {
	opts := []func(*esapi.IndexRequest){
		d.es.Index.WithDocumentID(id),
		d.es.Index.WithContext(ctx),
	}
	if refresh {
		opts = append(opts, d.es.Index.WithRefresh("true"))
	}
	res, err := d.es.Index(index, bytes.NewReader(body), opts...)
	return d.check("upsert", index, res, err)
}

func (d *v8Driver) DeleteDocument(ctx context.Context, index, id string, refresh bool) error {
	opts := []func(*esapi.DeleteRequest){
		d.es.Delete.WithContext(ctx),
	}
	if refresh {
		opts = append(opts, d.es.Delete.WithRefresh("true"))
	}
	res, err := d.es.Delete(index, id, opts...)
	return d.check("delete", index, res, err)
}

func (d *v8Driver) GetDocument(ctx context.Context, index, id string) (map[string]any, error) {
	res, err := d.es.Get(index, id, d.es.Get.WithContext(ctx))
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

func (d *v8Driver) Bulk(ctx context.Context, index string, items []BulkItem, opts BulkOptions) (*BulkStats, []BulkItemError, error) {
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

func (d *v8Driver) UpdateByQuery(ctx context.Context, index string, body []byte) (*UpdateByQueryResult, error) {
	res, err := d.es.UpdateByQuery(
		[]string{index},
		d.es.UpdateByQuery.WithBody(bytes.NewReader(body)),
		d.es.UpdateByQuery.WithConflicts("proceed"),
		d.es.UpdateByQuery.WithContext(ctx),
	)
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

func (d *v8Driver) Search(ctx context.Context, index string, body []byte) (*SearchResult, error) {
	res, err := d.es.Search(
		d.es.Search.WithIndex(index),
		d.es.Search.WithBody(bytes.NewReader(body)),
		d.es.Search.WithTrackTotalHits(true),
		d.es.Search.WithContext(ctx),
	)
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

func (d *v8Driver) Refresh(ctx context.Context, index string) error {
	res, err := d.es.Indices.Refresh(
		d.es.Indices.Refresh.WithIndex(index),
		d.es.Indices.Refresh.WithContext(ctx),
	)
	return d.check("refresh", index, res, err)
}

func (d *v8Driver) CreateIndex(ctx context.Context, name string, body []byte) error {
	opts := []func(*esapi.IndicesCreateRequest){
		d.es.Indices.Create.WithContext(ctx),
	}
	if len(body) > 0 {
		opts = append(opts, d.es.Indices.Create.WithBody(bytes.NewReader(body)))
	}
	res, err := d.es.Indices.Create(name, opts...)
	return d.check("create index", name, res, err)
}

func (d *v8Driver) DeleteIndex(ctx context.Context, name string) error {
	res, err := d.es.Indices.Delete(
		[]string{name},
		d.es.Indices.Delete.WithIgnoreUnavailable(true),
		d.es.Indices.Delete.WithContext(ctx),
	)
	return d.check("delete index", name, res, err)
}

func (d *v8Driver) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := d.es.Indices.Exists([]string{name}, d.es.Indices.Exists.WithContext(ctx))
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

func (d *v8Driver) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	res, err := d.es.Cat.Indices(
		d.es.Cat.Indices.WithIndex(pattern),
		d.es.Cat.Indices.WithFormat("json"),
		d.es.Cat.Indices.WithContext(ctx),
	)
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

func (d *v8Driver) CloseIndex(ctx context.Context, name string) error {
	res, err := d.es.Indices.Close([]string{name}, d.es.Indices.Close.WithContext(ctx))
	return d.check("close index", name, res, err)
}

func (d *v8Driver) OpenIndex(ctx context.Context, name string) error {
	res, err := d.es.Indices.Open([]string{name}, d.es.Indices.Open.WithContext(ctx))
	return d.check("open index", name, res, err)
}

func (d *v8Driver) PutSettings(ctx context.Context, name string, body []byte) error {
	res, err := d.es.Indices.PutSettings(
		bytes.NewReader(body),
		d.es.Indices.PutSettings.WithIndex(name),
		d.es.Indices.PutSettings.WithContext(ctx),
	)
	return d.check("put settings", name, res, err)
}

func (d *v8Driver) GetMapping(ctx context.Context, name string) (map[string]any, error) {
	res, err := d.es.Indices.GetMapping(
		d.es.Indices.GetMapping.WithIndex(name),
		d.es.Indices.GetMapping.WithContext(ctx),
	)
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

func (d *v8Driver) ReloadSearchAnalyzers(ctx context.Context, name string) error {
	res, err := d.es.Indices.ReloadSearchAnalyzers(
		[]string{name},
		d.es.Indices.ReloadSearchAnalyzers.WithContext(ctx),
	)
	return d.check("reload search analyzers", name, res, err)
}

func (d *v8Driver) PutMapping(ctx context.Context, name string, body []byte) error {
	res, err := d.es.Indices.PutMapping(
		[]string{name},
		bytes.NewReader(body),
		d.es.Indices.PutMapping.WithContext(ctx),
	)
	return d.check("put mapping", name, res, err)
}

// PutAlias marks the index as the write target when requested; the current
// protocol requires an explicit is_write_index flag for unambiguous writes.
func (d *v8Driver) PutAlias(ctx context.Context, index, alias string, isWriteIndex bool) error {
	opts := []func(*esapi.IndicesPutAliasRequest){
		d.es.Indices.PutAlias.WithContext(ctx),
	}
	if isWriteIndex {
		body, err := json.Marshal(map[string]any{"is_write_index": true})
		if err != nil {
			return fmt.Errorf("marshal alias body: %w", err)
		}
		opts = append(opts, d.es.Indices.PutAlias.WithBody(bytes.NewReader(body)))
	}
	res, err := d.es.Indices.PutAlias([]string{index}, alias, opts...)
	return d.check("put alias", index, res, err)
}

func (d *v8Driver) UpdateAliases(ctx context.Context, actions []AliasAction) error {
	body, err := aliasActionsBody(actions, true)
	if err != nil {
		return fmt.Errorf("marshal alias actions: %w", err)
	}
	res, err := d.es.Indices.UpdateAliases(
		bytes.NewReader(body),
		d.es.Indices.UpdateAliases.WithContext(ctx),
	)
	return d.check("update aliases", "", res, err)
}

func (d *v8Driver) GetAlias(ctx context.Context, alias string) ([]string, error) {
	res, err := d.es.Indices.GetAlias(
		d.es.Indices.GetAlias.WithName(alias),
		d.es.Indices.GetAlias.WithContext(ctx),
	)
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

func (d *v8Driver) AliasExists(ctx context.Context, alias string) (bool, error) {
	res, err := d.es.Indices.ExistsAlias([]string{alias}, d.es.Indices.ExistsAlias.WithContext(ctx))
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

func (d *v8Driver) DeleteAlias(ctx context.Context, index, alias string) error {
	res, err := d.es.Indices.DeleteAlias(
		[]string{index},
		[]string{alias},
		d.es.Indices.DeleteAlias.WithContext(ctx),
	)
	return d.check("delete alias", index, res, err)
}
