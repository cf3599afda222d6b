package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/support-search/internal/elasticsearch"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
	"github.com/jonesrussell/support-search/internal/logger"
)

// fakeCluster simulates the index and alias state machine in memory.
type fakeCluster struct {
	version elasticsearch.Version

	indices     map[string]map[string]any // index -> mappings section
	aliases     map[string]map[string]bool
	writeFlags  map[string]bool // "alias/index" -> is_write_index
	closed      map[string]bool
	reloaded    []string
	aliasCalls  [][]elasticsearch.AliasAction
	settingsErr error
}

func newFakeCluster(v elasticsearch.Version) *fakeCluster {
	return &fakeCluster{
		version:    v,
		indices:    map[string]map[string]any{},
		aliases:    map[string]map[string]bool{},
		writeFlags: map[string]bool{},
		closed:     map[string]bool{},
	}
}

func (f *fakeCluster) CreateIndex(_ context.Context, name string, body []byte) error {
	if _, ok := f.indices[name]; ok {
		return fmt.Errorf("index %s already exists", name)
	}
	var decoded struct {
		Mappings map[string]any `json:"mappings"`
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return err
		}
	}
	f.indices[name] = decoded.Mappings
	return nil
}

func (f *fakeCluster) DeleteIndex(_ context.Context, name string) error {
	delete(f.indices, name)
	return nil
}

func (f *fakeCluster) IndexExists(_ context.Context, name string) (bool, error) {
	_, ok := f.indices[name]
	return ok, nil
}

func (f *fakeCluster) ListIndices(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var names []string
	for name := range f.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeCluster) CloseIndex(_ context.Context, name string) error {
	f.closed[name] = true
	return nil
}

func (f *fakeCluster) OpenIndex(_ context.Context, name string) error {
	f.closed[name] = false
	return nil
}

func (f *fakeCluster) PutSettings(_ context.Context, name string, _ []byte) error {
	if f.settingsErr != nil {
		return f.settingsErr
	}
	if !f.closed[name] {
		return fmt.Errorf("index %s must be closed for analysis updates", name)
	}
	return nil
}

func (f *fakeCluster) PutMapping(_ context.Context, name string, body []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return err
	}
	f.indices[name] = decoded
	return nil
}

func (f *fakeCluster) GetMapping(_ context.Context, name string) (map[string]any, error) {
	m, ok := f.indices[name]
	if !ok {
		return nil, elasticsearch.ErrNotFound
	}
	return m, nil
}

func (f *fakeCluster) ReloadSearchAnalyzers(_ context.Context, name string) error {
	f.reloaded = append(f.reloaded, name)
	return nil
}

func (f *fakeCluster) PutAlias(_ context.Context, index, alias string, isWrite bool) error {
	if f.aliases[alias] == nil {
		f.aliases[alias] = map[string]bool{}
	}
	f.aliases[alias][index] = true
	f.writeFlags[alias+"/"+index] = isWrite
	return nil
}

func (f *fakeCluster) UpdateAliases(_ context.Context, actions []elasticsearch.AliasAction) error {
	f.aliasCalls = append(f.aliasCalls, actions)
	for _, a := range actions {
		if a.Remove {
			delete(f.aliases[a.Alias], a.Index)
			continue
		}
		if f.aliases[a.Alias] == nil {
			f.aliases[a.Alias] = map[string]bool{}
		}
		f.aliases[a.Alias][a.Index] = true
		f.writeFlags[a.Alias+"/"+a.Index] = a.IsWriteIndex
	}
	return nil
}

func (f *fakeCluster) GetAlias(_ context.Context, alias string) ([]string, error) {
	set := f.aliases[alias]
	if len(set) == 0 {
		return nil, elasticsearch.ErrNotFound
	}
	var names []string
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeCluster) AliasExists(_ context.Context, alias string) (bool, error) {
	return len(f.aliases[alias]) > 0, nil
}

func (f *fakeCluster) DeleteAlias(_ context.Context, index, alias string) error {
	delete(f.aliases[alias], index)
	return nil
}

func (f *fakeCluster) Capabilities() *elasticsearch.Capabilities {
	return elasticsearch.CapabilitiesFor(f.version)
}

func newTestManager(v elasticsearch.Version) (*Manager, *fakeCluster) {
	fake := newFakeCluster(v)
	m := NewManager(fake, "support", mappings.DefaultSettings(), logger.NewNop())

	// Deterministic, strictly increasing clock.
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return m, fake
}

func TestEnsureIndexProvisionsAliases(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	name, err := m.EnsureIndex(ctx, mappings.DocTypeKBArticle)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if !strings.HasPrefix(name, "support_kbarticledocument_") {
		t.Errorf("index name = %q", name)
	}
	if _, ok := fake.indices[name]; !ok {
		t.Fatal("index was not created")
	}

	write := WriteAlias("support", mappings.DocTypeKBArticle)
	read := ReadAlias("support", mappings.DocTypeKBArticle)
	if !fake.aliases[write][name] {
		t.Errorf("write alias not pointing at %s", name)
	}
	if !fake.aliases[read][name] {
		t.Errorf("read alias not pointing at %s", name)
	}
	if !fake.writeFlags[write+"/"+name] {
		t.Error("write alias missing is_write_index on v8")
	}
}

func TestEnsureIndexIsIdempotent(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	first, err := m.EnsureIndex(ctx, mappings.DocTypeQuestion)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	second, err := m.EnsureIndex(ctx, mappings.DocTypeQuestion)
	if err != nil {
		t.Fatalf("EnsureIndex (second): %v", err)
	}
	if first != second {
		t.Errorf("second call returned %q, want %q", second, first)
	}
	if len(fake.indices) != 1 {
		t.Errorf("expected 1 index, have %d", len(fake.indices))
	}
}

func TestEnsureIndexOnV7OmitsWriteFlag(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V7)
	ctx := context.Background()

	name, err := m.EnsureIndex(ctx, mappings.DocTypeProfile)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	write := WriteAlias("support", mappings.DocTypeProfile)
	if fake.writeFlags[write+"/"+name] {
		t.Error("v7 must not set is_write_index")
	}
}

func TestMigrateWritesRepointsAtomically(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	old, err := m.EnsureIndex(ctx, mappings.DocTypeKBArticle)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	fake.aliasCalls = nil

	gotOld, next, err := m.MigrateWrites(ctx, mappings.DocTypeKBArticle)
	if err != nil {
		t.Fatalf("MigrateWrites: %v", err)
	}
	if gotOld != old {
		t.Errorf("old = %q, want %q", gotOld, old)
	}
	if next == old {
		t.Error("new index name equals old")
	}

	// Remove and add must travel in one update-aliases request.
	if len(fake.aliasCalls) != 1 {
		t.Fatalf("expected 1 update-aliases call, got %d", len(fake.aliasCalls))
	}
	actions := fake.aliasCalls[0]
	if len(actions) != 2 || !actions[0].Remove || actions[1].Remove {
		t.Fatalf("unexpected actions: %+v", actions)
	}

	write := WriteAlias("support", mappings.DocTypeKBArticle)
	read := ReadAlias("support", mappings.DocTypeKBArticle)
	if !fake.aliases[write][next] || fake.aliases[write][old] {
		t.Error("write alias not repointed")
	}
	if !fake.aliases[read][old] {
		t.Error("read alias must keep serving the old index until MigrateReads")
	}
}

func TestMigrateReadsFollowsWrites(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	old, err := m.EnsureIndex(ctx, mappings.DocTypeKBArticle)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	_, next, err := m.MigrateWrites(ctx, mappings.DocTypeKBArticle)
	if err != nil {
		t.Fatalf("MigrateWrites: %v", err)
	}

	if err := m.MigrateReads(ctx, mappings.DocTypeKBArticle); err != nil {
		t.Fatalf("MigrateReads: %v", err)
	}

	read := ReadAlias("support", mappings.DocTypeKBArticle)
	if !fake.aliases[read][next] || fake.aliases[read][old] {
		t.Error("read alias not repointed at the write index")
	}

	// Already in sync, repeated call must not touch aliases.
	fake.aliasCalls = nil
	if err := m.MigrateReads(ctx, mappings.DocTypeKBArticle); err != nil {
		t.Fatalf("MigrateReads (repeat): %v", err)
	}
	if len(fake.aliasCalls) != 0 {
		t.Errorf("repeat MigrateReads issued %d alias calls", len(fake.aliasCalls))
	}
}

func TestAliasedIndexAmbiguous(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	fake.aliases["broken"] = map[string]bool{"a": true, "b": true}
	_, err := m.AliasedIndex(ctx, "broken")
	if !errors.Is(err, ErrAmbiguousAlias) {
		t.Errorf("err = %v, want ErrAmbiguousAlias", err)
	}
}

func TestRetireIndexProtectsAliasedGenerations(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	live, err := m.EnsureIndex(ctx, mappings.DocTypeAnswer)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	if err := m.RetireIndex(ctx, mappings.DocTypeAnswer, live); err == nil {
		t.Fatal("retiring the live index must fail")
	}

	old, _, err := m.MigrateWrites(ctx, mappings.DocTypeAnswer)
	if err != nil {
		t.Fatalf("MigrateWrites: %v", err)
	}
	if err := m.MigrateReads(ctx, mappings.DocTypeAnswer); err != nil {
		t.Fatalf("MigrateReads: %v", err)
	}

	if err := m.RetireIndex(ctx, mappings.DocTypeAnswer, old); err != nil {
		t.Fatalf("RetireIndex: %v", err)
	}
	if _, ok := fake.indices[old]; ok {
		t.Error("old index still exists after retirement")
	}
}

func TestCheckMappingDrift(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	name, err := m.EnsureIndex(ctx, mappings.DocTypeQuestion)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	report, err := m.CheckMappingDrift(ctx, mappings.DocTypeQuestion)
	if err != nil {
		t.Fatalf("CheckMappingDrift: %v", err)
	}
	if report.Drifted() {
		t.Errorf("fresh index reported drift: %+v", report)
	}

	fake.indices[name]["_meta"] = map[string]any{"mapping_version": "0.9.0"}
	report, err = m.CheckMappingDrift(ctx, mappings.DocTypeQuestion)
	if err != nil {
		t.Fatalf("CheckMappingDrift (stale): %v", err)
	}
	if !report.Drifted() {
		t.Error("stale mapping version not reported as drift")
	}
	if report.LiveVersion != "0.9.0" {
		t.Errorf("LiveVersion = %q", report.LiveVersion)
	}
}

func TestUpdateAnalysisReopensAfterFailure(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	name, err := m.EnsureIndex(ctx, mappings.DocTypeForumPost)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	fake.settingsErr = errors.New("settings rejected")
	if err := m.UpdateAnalysis(ctx, mappings.DocTypeForumPost); err == nil {
		t.Fatal("expected settings failure")
	}
	if fake.closed[name] {
		t.Error("index left closed after failed analysis update")
	}

	fake.settingsErr = nil
	if err := m.UpdateAnalysis(ctx, mappings.DocTypeForumPost); err != nil {
		t.Fatalf("UpdateAnalysis: %v", err)
	}
	if fake.closed[name] {
		t.Error("index left closed after analysis update")
	}
}

func TestReloadSynonyms(t *testing.T) {
	m, fake := newTestManager(elasticsearch.V8)
	ctx := context.Background()

	name, err := m.EnsureIndex(ctx, mappings.DocTypeKBArticle)
	if err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if err := m.ReloadSynonyms(ctx, mappings.DocTypeKBArticle); err != nil {
		t.Fatalf("ReloadSynonyms: %v", err)
	}
	if len(fake.reloaded) != 1 || fake.reloaded[0] != name {
		t.Errorf("reloaded = %v", fake.reloaded)
	}
}

func TestIndexNaming(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	if got := IndexName("support", "kbarticle", at); got != "support_kbarticledocument_20250601103000" {
		t.Errorf("IndexName = %q", got)
	}
	if got := WriteAlias("support", "kbarticle"); got != "support_kbarticledocument_write" {
		t.Errorf("WriteAlias = %q", got)
	}
	if got := ReadAlias("support", "kbarticle"); got != "support_kbarticledocument_read" {
		t.Errorf("ReadAlias = %q", got)
	}
	if got := IndexPattern("support", "question"); got != "support_questiondocument_*" {
		t.Errorf("IndexPattern = %q", got)
	}
	if got := BaseName("sumo", "question"); got != "sumo_questiondocument" {
		t.Errorf("BaseName = %q", got)
	}
}
