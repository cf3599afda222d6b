package mapper

import (
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

// ForumPostMapper maps discussion forum posts.
type ForumPostMapper struct {
	now func() time.Time
}

func NewForumPostMapper() *ForumPostMapper {
	return &ForumPostMapper{now: time.Now}
}

func (m *ForumPostMapper) DocType() string { return mappings.DocTypeForumPost }

func (m *ForumPostMapper) ToDocument(e domain.Entity) (Document, error) {
	p, ok := e.(*domain.ForumPost)
	if !ok {
		return nil, fmt.Errorf("%w: expected *domain.ForumPost, got %T", ErrUnmappable, e)
	}
	if p.ID <= 0 {
		return nil, fmt.Errorf("%w: post has no persisted ID", ErrUnmappable)
	}

	return &ForumPostDocument{
		ID:        p.ID,
		ThreadID:  p.ThreadID,
		ForumID:   p.ForumID,
		Title:     p.Title,
		Content:   p.Content,
		AuthorID:  p.AuthorID,
		Locale:    p.Locale,
		Created:   p.Created.UTC(),
		Updated:   p.Updated.UTC(),
		IndexedOn: m.now().UTC(),
	}, nil
}

// ProfileMapper maps user profiles.
type ProfileMapper struct {
	now func() time.Time
}

func NewProfileMapper() *ProfileMapper {
	return &ProfileMapper{now: time.Now}
}

func (m *ProfileMapper) DocType() string { return mappings.DocTypeProfile }

func (m *ProfileMapper) ToDocument(e domain.Entity) (Document, error) {
	p, ok := e.(*domain.Profile)
	if !ok {
		return nil, fmt.Errorf("%w: expected *domain.Profile, got %T", ErrUnmappable, e)
	}
	if p.ID <= 0 {
		return nil, fmt.Errorf("%w: profile has no persisted ID", ErrUnmappable)
	}
	if p.Unindexable {
		return nil, fmt.Errorf("%w: profile %d is unindexable", ErrDiscard, p.ID)
	}

	return &ProfileDocument{
		ID:        p.ID,
		Username:  p.Username,
		Name:      p.Name,
		Locale:    p.Locale,
		Groups:    nonNilStrings(p.Groups),
		IndexedOn: m.now().UTC(),
	}, nil
}
