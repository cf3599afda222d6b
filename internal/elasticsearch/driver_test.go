package elasticsearch

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDriverConstruction(t *testing.T) {
	cfg := &Config{
		URLs:       []string{"http://localhost:9200"},
		MaxRetries: 3,
		Timeout:    5 * time.Second,
	}

	v7, err := newV7Driver(cfg)
	if err != nil {
		t.Fatalf("newV7Driver: %v", err)
	}
	if v7.Version() != V7 {
		t.Errorf("v7 Version() = %v", v7.Version())
	}

	v8, err := newV8Driver(cfg)
	if err != nil {
		t.Fatalf("newV8Driver: %v", err)
	}
	if v8.Version() != V8 {
		t.Errorf("v8 Version() = %v", v8.Version())
	}
}

func TestAliasActionsBody(t *testing.T) {
	actions := []AliasAction{
		{Remove: true, Index: "support_kbarticledocument_20250101000000", Alias: "support_kbarticledocument_write"},
		{Index: "support_kbarticledocument_20250601000000", Alias: "support_kbarticledocument_write", IsWriteIndex: true},
	}

	body, err := aliasActionsBody(actions, true)
	if err != nil {
		t.Fatalf("aliasActionsBody: %v", err)
	}

	var decoded struct {
		Actions []map[string]map[string]any `json:"actions"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(decoded.Actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(decoded.Actions))
	}

	remove, ok := decoded.Actions[0]["remove"]
	if !ok {
		t.Fatal("first action is not a remove")
	}
	if remove["index"] != "support_kbarticledocument_20250101000000" {
		t.Errorf("remove index = %v", remove["index"])
	}

	add, ok := decoded.Actions[1]["add"]
	if !ok {
		t.Fatal("second action is not an add")
	}
	if add["is_write_index"] != true {
		t.Errorf("add is missing is_write_index: %v", add)
	}
}

func TestAliasActionsBodyOmitsWriteIndexFlag(t *testing.T) {
	actions := []AliasAction{
		{Index: "support_questiondocument_20250601000000", Alias: "support_questiondocument_write", IsWriteIndex: true},
	}

	body, err := aliasActionsBody(actions, false)
	if err != nil {
		t.Fatalf("aliasActionsBody: %v", err)
	}
	if strings.Contains(string(body), "is_write_index") {
		t.Errorf("body contains is_write_index despite being disabled: %s", body)
	}
}

func TestParseAliasIndices(t *testing.T) {
	body := strings.NewReader(`{
		"support_kbarticledocument_20250601000000": {"aliases": {"support_kbarticledocument_read": {}}},
		"support_kbarticledocument_20250101000000": {"aliases": {"support_kbarticledocument_read": {}}}
	}`)

	names, err := parseAliasIndices(body)
	if err != nil {
		t.Fatalf("parseAliasIndices: %v", err)
	}
	want := []string{"support_kbarticledocument_20250101000000", "support_kbarticledocument_20250601000000"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q (sorted)", i, names[i], want[i])
		}
	}
}

func TestParseMappingBody(t *testing.T) {
	body := strings.NewReader(`{
		"support_kbarticledocument_20250601000000": {
			"mappings": {
				"dynamic": "false",
				"_meta": {"mapping_version": "2.1.0"}
			}
		}
	}`)

	mappings, err := parseMappingBody(body)
	if err != nil {
		t.Fatalf("parseMappingBody: %v", err)
	}
	meta, ok := mappings["_meta"].(map[string]any)
	if !ok {
		t.Fatalf("mappings missing _meta: %v", mappings)
	}
	if meta["mapping_version"] != "2.1.0" {
		t.Errorf("mapping_version = %v, want 2.1.0", meta["mapping_version"])
	}
}

func TestParseMappingBodyEmptyResponse(t *testing.T) {
	if _, err := parseMappingBody(strings.NewReader(`{}`)); err == nil {
		t.Fatal("expected error for response with no index entry")
	}
}

func TestSearchResponseToResult(t *testing.T) {
	raw := `{
		"hits": {
			"total": {"value": 42},
			"hits": [
				{
					"_id": "7",
					"_index": "support_kbarticledocument_20250601000000",
					"_score": 3.5,
					"_source": {"title": "Update Firefox"},
					"highlight": {"title": ["Update <strong>Firefox</strong>"]}
				}
			]
		}
	}`

	var resp searchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	result := resp.toResult()
	if result.Total != 42 {
		t.Errorf("Total = %d, want 42", result.Total)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(result.Hits))
	}
	hit := result.Hits[0]
	if hit.ID != "7" || hit.Score != 3.5 {
		t.Errorf("hit = %+v", hit)
	}
	if got := hit.Highlight["title"][0]; got != "Update <strong>Firefox</strong>" {
		t.Errorf("highlight = %q", got)
	}
}
