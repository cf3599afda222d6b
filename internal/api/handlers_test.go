package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/indexer"
	"github.com/jonesrussell/support-search/internal/lifecycle"
	"github.com/jonesrussell/support-search/internal/logger"
	"github.com/jonesrussell/support-search/internal/query"
)

type fakeLifecycle struct {
	statuses   []lifecycle.TypeStatus
	ensureErr  error
	migrated   []string
	readsMoved []string
	retired    []string
	retireErr  error
	reloadErr  error
}

func (f *fakeLifecycle) EnsureAll(context.Context) error { return f.ensureErr }

func (f *fakeLifecycle) Status(context.Context) ([]lifecycle.TypeStatus, error) {
	return f.statuses, nil
}

func (f *fakeLifecycle) MigrateWrites(_ context.Context, docType string) (string, string, error) {
	f.migrated = append(f.migrated, docType)
	return "old_index", "new_index", nil
}

func (f *fakeLifecycle) MigrateReads(_ context.Context, docType string) error {
	f.readsMoved = append(f.readsMoved, docType)
	return nil
}

func (f *fakeLifecycle) ListGenerations(_ context.Context, docType string) ([]string, error) {
	return []string{"support_" + docType + "document_20250601000000"}, nil
}

func (f *fakeLifecycle) RetireIndex(_ context.Context, _, name string) error {
	if f.retireErr != nil {
		return f.retireErr
	}
	f.retired = append(f.retired, name)
	return nil
}

func (f *fakeLifecycle) UpdateAnalysis(context.Context, string) error { return nil }

func (f *fakeLifecycle) ReloadSynonyms(context.Context, string) error { return f.reloadErr }

type fakeSyncer struct {
	reindexed []string
	removes   []string
	result    *indexer.BulkResult
	err       error
	doc       map[string]any
	docErr    error
}

func (f *fakeSyncer) ReindexAll(_ context.Context, docType string, _ domain.Source) (*indexer.BulkResult, error) {
	f.reindexed = append(f.reindexed, docType)
	return f.result, f.err
}

func (f *fakeSyncer) RemoveFromField(_ context.Context, docType, field, value string) error {
	f.removes = append(f.removes, docType+"/"+field+"/"+value)
	return f.err
}

func (f *fakeSyncer) GetDocument(context.Context, string, int64) (map[string]any, error) {
	return f.doc, f.docErr
}

type fakeSearch struct {
	lastReq *query.Request
	result  *query.Result
	err     error
}

func (f *fakeSearch) Search(_ context.Context, req *query.Request) (*query.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(context.Context) error { return f.err }

type nilSource struct{}

func (nilSource) FetchBatch(context.Context, string, int64, int) ([]domain.Entity, error) {
	return nil, nil
}

func (nilSource) FetchByID(context.Context, string, int64) (domain.Entity, error) {
	return nil, domain.ErrEntityNotFound
}

type testEnv struct {
	router    *gin.Engine
	lifecycle *fakeLifecycle
	syncer    *fakeSyncer
	search    *fakeSearch
	pinger    *fakePinger
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		lifecycle: &fakeLifecycle{},
		syncer:    &fakeSyncer{result: &indexer.BulkResult{Indexed: 3}},
		search:    &fakeSearch{result: &query.Result{Total: 1, Hits: []query.Hit{{ID: "1"}}}},
		pinger:    &fakePinger{},
	}

	h := NewHandler(env.lifecycle, env.syncer, env.search, nilSource{}, env.pinger, logger.NewNop())
	env.router = gin.New()
	SetupRoutes(env.router, h)
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv()
	w := env.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestReadinessReflectsCluster(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, http.MethodGet, "/ready", "")
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d", w.Code)
	}

	env.pinger.err = errors.New("connection refused")
	w = env.do(t, http.MethodGet, "/ready", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready status = %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv()
	env.lifecycle.statuses = []lifecycle.TypeStatus{
		{DocType: "kbarticle", WriteIndex: "a", ReadIndex: "a", CodeVersion: "2.1.0"},
	}

	w := env.do(t, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Types []lifecycle.TypeStatus `json:"types"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Types) != 1 || body.Types[0].DocType != "kbarticle" {
		t.Errorf("body = %+v", body)
	}
}

func TestMigrateRunsFullSequence(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, http.MethodPost, "/api/v1/indices/kbarticle/migrate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if len(env.lifecycle.migrated) != 1 || env.lifecycle.migrated[0] != "kbarticle" {
		t.Errorf("migrated = %v", env.lifecycle.migrated)
	}
	if len(env.syncer.reindexed) != 1 {
		t.Errorf("reindexed = %v", env.syncer.reindexed)
	}
	if len(env.lifecycle.readsMoved) != 1 {
		t.Errorf("readsMoved = %v", env.lifecycle.readsMoved)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["new_index"] != "new_index" {
		t.Errorf("body = %v", body)
	}
}

func TestMigrateToleratesPartialBulkFailures(t *testing.T) {
	env := newTestEnv()
	env.syncer.err = &elasticsearch.BulkError{Items: []elasticsearch.BulkItemError{
		{DocumentID: "4", Reason: "mapper_parsing_exception"},
	}}

	w := env.do(t, http.MethodPost, "/api/v1/indices/question/migrate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	// Reads must still be repointed despite item failures.
	if len(env.lifecycle.readsMoved) != 1 {
		t.Errorf("readsMoved = %v", env.lifecycle.readsMoved)
	}
}

func TestReindexEndpoint(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, http.MethodPost, "/api/v1/indices/question/reindex", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["indexed"] != float64(3) {
		t.Errorf("indexed = %v", body["indexed"])
	}
}

func TestRetireConflict(t *testing.T) {
	env := newTestEnv()
	env.lifecycle.retireErr = errors.New("index still serves alias")

	w := env.do(t, http.MethodDelete, "/api/v1/indices/kbarticle/support_kbarticledocument_1", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d", w.Code)
	}
}

func TestRemoveFromFieldValidation(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, http.MethodPost, "/api/v1/indices/question/remove-field-value", `{"field":"tags"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing value: status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/indices/question/remove-field-value",
		`{"field":"tags","value":"obsolete"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(env.syncer.removes) != 1 || env.syncer.removes[0] != "question/tags/obsolete" {
		t.Errorf("removes = %v", env.syncer.removes)
	}
}

func TestGetDocument(t *testing.T) {
	env := newTestEnv()
	env.syncer.doc = map[string]any{"title": "Install Firefox"}

	w := env.do(t, http.MethodGet, "/api/v1/documents/kbarticle/42", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var body struct {
		Document map[string]any `json:"document"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Document["title"] != "Install Firefox" {
		t.Errorf("document = %v", body.Document)
	}
}

func TestGetDocumentMissing(t *testing.T) {
	env := newTestEnv()
	env.syncer.docErr = &elasticsearch.OpError{
		Op: "get document", StatusCode: 404, Err: elasticsearch.ErrNotFound,
	}

	w := env.do(t, http.MethodGet, "/api/v1/documents/kbarticle/42", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/api/v1/documents/kbarticle/not-a-number", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", w.Code)
	}
}

func TestSearchGet(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, http.MethodGet, "/api/v1/search?q=cookies&locale=en-US&product=firefox", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	req := env.search.lastReq
	if req.Query != "cookies" || req.Locale != "en-US" {
		t.Errorf("request = %+v", req)
	}
	if req.Filters["product_slugs"] != "firefox" {
		t.Errorf("filters = %v", req.Filters)
	}
	if req.VisibleAt == nil {
		t.Error("kbarticle search missing visibility instant")
	}
}

func TestSearchPost(t *testing.T) {
	env := newTestEnv()

	w := env.do(t, http.MethodPost, "/api/v1/search",
		`{"doc_type":"question","query":"crash","filters":{"is_solved":true}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	req := env.search.lastReq
	if req.DocType != "question" || req.Filters["is_solved"] != true {
		t.Errorf("request = %+v", req)
	}
	if req.VisibleAt != nil {
		t.Error("question search must not carry a visibility instant")
	}
}

func TestSearchMissingQuery(t *testing.T) {
	env := newTestEnv()
	w := env.do(t, http.MethodGet, "/api/v1/search", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSearchUnsupportedFeature(t *testing.T) {
	env := newTestEnv()
	env.search.err = &elasticsearch.UnsupportedError{
		Feature: elasticsearch.FeatureHybridRRF,
		Version: elasticsearch.V7,
	}

	w := env.do(t, http.MethodGet, "/api/v1/search?q=x&hybrid=true", "")
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", w.Code)
	}
}
