package mapper

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestDefaultRegistryCoversAllDocTypes(t *testing.T) {
	r := DefaultRegistry()
	for _, docType := range mappings.AllDocTypes() {
		m, err := r.Lookup(docType)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", docType, err)
		}
		if m.DocType() != docType {
			t.Errorf("mapper for %s reports type %s", docType, m.DocType())
		}
	}
	if got := len(r.All()); got != len(mappings.AllDocTypes()) {
		t.Errorf("All() returned %d mappers, want %d", got, len(mappings.AllDocTypes()))
	}
}

func TestLookupUnknownType(t *testing.T) {
	if _, err := DefaultRegistry().Lookup("webpage"); err == nil {
		t.Fatal("expected error for unknown document type")
	}
}

func TestKBArticleToDocument(t *testing.T) {
	m := &KBArticleMapper{now: fixedClock}

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	article := &domain.KBArticle{
		ID:       42,
		Title:    "Clear cookies",
		Slug:     "clear-cookies",
		Summary:  "How to clear cookies",
		Content:  "Open settings and clear cookies.",
		Keywords: []string{"cookies", "privacy"},
		Locale:   "en-US",
		Category: 10,
		Products: []domain.Product{{ID: 1, Slug: "firefox", Title: "Firefox"}},
		Topics:   []domain.Topic{{ID: 7, Slug: "settings", Title: "Settings"}},

		VisibleFrom:  from,
		VisibleUntil: until,
		Updated:      time.Date(2025, 5, 20, 9, 30, 0, 0, time.UTC),
	}

	doc, err := m.ToDocument(article)
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}
	got, ok := doc.(*KBArticleDocument)
	if !ok {
		t.Fatalf("ToDocument returned %T", doc)
	}

	if got.DocID() != "42" {
		t.Errorf("DocID = %q, want 42", got.DocID())
	}
	if got.DocType() != mappings.DocTypeKBArticle {
		t.Errorf("DocType = %q", got.DocType())
	}
	if len(got.ProductIDs) != 1 || got.ProductIDs[0] != 1 {
		t.Errorf("ProductIDs = %v, want [1]", got.ProductIDs)
	}
	if len(got.TopicSlugs) != 1 || got.TopicSlugs[0] != "settings" {
		t.Errorf("TopicSlugs = %v, want [settings]", got.TopicSlugs)
	}
	if got.VisibleDuring == nil {
		t.Fatal("VisibleDuring is nil")
	}
	if got.VisibleDuring.Gte == nil || !got.VisibleDuring.Gte.Equal(from) {
		t.Errorf("VisibleDuring.Gte = %v, want %v", got.VisibleDuring.Gte, from)
	}
	if got.VisibleDuring.Lte == nil || !got.VisibleDuring.Lte.Equal(until) {
		t.Errorf("VisibleDuring.Lte = %v, want %v", got.VisibleDuring.Lte, until)
	}
	if !got.IndexedOn.Equal(fixedNow) {
		t.Errorf("IndexedOn = %v, want %v", got.IndexedOn, fixedNow)
	}
}

func TestVisibilityWindow(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		from, until time.Time
		wantNil    bool
		wantGte    bool
		wantLte    bool
	}{
		{name: "always visible", wantNil: true},
		{name: "open end", from: from, wantGte: true},
		{name: "open start", until: until, wantLte: true},
		{name: "bounded", from: from, until: until, wantGte: true, wantLte: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := visibilityWindow(tt.from, tt.until)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("got %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("got nil range")
			}
			if (got.Gte != nil) != tt.wantGte {
				t.Errorf("Gte = %v, want present=%v", got.Gte, tt.wantGte)
			}
			if (got.Lte != nil) != tt.wantLte {
				t.Errorf("Lte = %v, want present=%v", got.Lte, tt.wantLte)
			}
		})
	}
}

func TestMultiValueFieldsNeverNull(t *testing.T) {
	m := &KBArticleMapper{now: fixedClock}
	doc, err := m.ToDocument(&domain.KBArticle{ID: 1, Locale: "en-US"})
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := string(data)

	for _, field := range []string{"keywords", "product_ids", "product_slugs", "topic_ids", "topic_slugs"} {
		if strings.Contains(raw, `"`+field+`":null`) {
			t.Errorf("field %s serialized as null: %s", field, raw)
		}
		if !strings.Contains(raw, `"`+field+`":[]`) {
			t.Errorf("field %s missing empty array: %s", field, raw)
		}
	}
	if strings.Contains(raw, "visible_during") {
		t.Errorf("always-visible article should omit visible_during: %s", raw)
	}
}

func TestUnmappableEntities(t *testing.T) {
	tests := []struct {
		name   string
		mapper Mapper
		entity domain.Entity
	}{
		{"article without ID", NewKBArticleMapper(), &domain.KBArticle{}},
		{"question without ID", NewQuestionMapper(), &domain.Question{}},
		{"wrong entity type", NewKBArticleMapper(), &domain.Question{ID: 1}},
		{"profile without ID", NewProfileMapper(), &domain.Profile{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mapper.ToDocument(tt.entity)
			if !errors.Is(err, ErrUnmappable) {
				t.Errorf("err = %v, want ErrUnmappable", err)
			}
		})
	}
}

func TestDiscardedEntities(t *testing.T) {
	tests := []struct {
		name   string
		mapper Mapper
		entity domain.Entity
	}{
		{"spam question", NewQuestionMapper(), &domain.Question{ID: 5, IsSpam: true}},
		{"spam answer", NewAnswerMapper(), &domain.Answer{ID: 6, IsSpam: true}},
		{"unindexable profile", NewProfileMapper(), &domain.Profile{ID: 7, Unindexable: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.mapper.ToDocument(tt.entity)
			if !errors.Is(err, ErrDiscard) {
				t.Errorf("err = %v, want ErrDiscard", err)
			}
		})
	}
}

func TestAnswerToDocument(t *testing.T) {
	m := &AnswerMapper{now: fixedClock}
	doc, err := m.ToDocument(&domain.Answer{
		ID:         9,
		QuestionID: 5,
		Content:    "Restart the browser.",
		Locale:     "de",
		CreatorID:  3,
		IsSolution: true,
		NumVotes:   2,
		Created:    time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}
	got := doc.(*AnswerDocument)
	if got.QuestionID != 5 || !got.IsSolution {
		t.Errorf("unexpected document: %+v", got)
	}
}

func TestDocumentFieldsMatchMapping(t *testing.T) {
	m := &QuestionMapper{now: fixedClock}
	doc, err := m.ToDocument(&domain.Question{ID: 1, Title: "t", Locale: "en-US"})
	if err != nil {
		t.Fatalf("ToDocument: %v", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	props := mappings.QuestionMapping(mappings.DefaultSettings())["mappings"].(map[string]any)["properties"].(map[string]any)
	for field := range fields {
		if _, ok := props[field]; !ok {
			t.Errorf("document field %q not declared in mapping", field)
		}
	}
}
