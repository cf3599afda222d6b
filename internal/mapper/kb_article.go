package mapper

import (
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

// KBArticleMapper maps knowledge base articles.
type KBArticleMapper struct {
	now func() time.Time
}

// NewKBArticleMapper returns a mapper stamping indexed_on with the wall
// clock.
func NewKBArticleMapper() *KBArticleMapper {
	return &KBArticleMapper{now: time.Now}
}

func (m *KBArticleMapper) DocType() string { return mappings.DocTypeKBArticle }

func (m *KBArticleMapper) ToDocument(e domain.Entity) (Document, error) {
	article, ok := e.(*domain.KBArticle)
	if !ok {
		return nil, fmt.Errorf("%w: expected *domain.KBArticle, got %T", ErrUnmappable, e)
	}
	if article.ID <= 0 {
		return nil, fmt.Errorf("%w: article has no persisted ID", ErrUnmappable)
	}

	return &KBArticleDocument{
		ID:            article.ID,
		Title:         article.Title,
		Slug:          article.Slug,
		Summary:       article.Summary,
		Content:       article.Content,
		Keywords:      nonNilStrings(article.Keywords),
		Locale:        article.Locale,
		Category:      article.Category,
		ProductIDs:    productIDs(article.Products),
		ProductSlugs:  productSlugs(article.Products),
		TopicIDs:      topicIDs(article.Topics),
		TopicSlugs:    topicSlugs(article.Topics),
		VisibleDuring: visibilityWindow(article.VisibleFrom, article.VisibleUntil),
		Updated:       article.Updated.UTC(),
		IndexedOn:     m.now().UTC(),
	}, nil
}

// visibilityWindow converts the article's visibility bounds into a range
// value. A zero bound is open-ended; both zero means always visible and
// the field is omitted entirely.
func visibilityWindow(from, until time.Time) *DateRange {
	if from.IsZero() && until.IsZero() {
		return nil
	}
	r := &DateRange{}
	if !from.IsZero() {
		f := from.UTC()
		r.Gte = &f
	}
	if !until.IsZero() {
		u := until.UTC()
		r.Lte = &u
	}
	return r
}
