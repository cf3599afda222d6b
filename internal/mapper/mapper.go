// Package mapper converts domain entities into the flat documents the
// search cluster stores. Each document type has one mapper; the registry
// dispatches by type name.
package mapper

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jonesrussell/support-search/internal/domain"
)

var (
	// ErrUnmappable marks an entity that can never produce a valid
	// document, such as one without a persisted ID.
	ErrUnmappable = errors.New("entity cannot be mapped")

	// ErrDiscard marks an entity that must be removed from the index
	// rather than indexed, such as content flagged as spam. Callers
	// translate it into a delete.
	ErrDiscard = errors.New("entity must not be indexed")
)

// Document is a fully mapped search document ready for serialization.
type Document interface {
	// DocID is the document identifier, derived from the entity ID.
	DocID() string
	// DocType names the document type the document belongs to.
	DocType() string
}

// Mapper converts entities of one document type into documents.
type Mapper interface {
	DocType() string

	// ToDocument maps the entity. It returns ErrDiscard when the entity
	// must be deleted from the index instead, and ErrUnmappable when the
	// entity is invalid.
	ToDocument(e domain.Entity) (Document, error)
}

// Registry holds the mapper for each document type.
type Registry struct {
	mu      sync.RWMutex
	mappers map[string]Mapper
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{mappers: make(map[string]Mapper)}
}

// DefaultRegistry returns a registry with every built-in mapper registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewKBArticleMapper())
	r.Register(NewQuestionMapper())
	r.Register(NewAnswerMapper())
	r.Register(NewForumPostMapper())
	r.Register(NewProfileMapper())
	return r
}

// Register adds or replaces the mapper for its document type.
func (r *Registry) Register(m Mapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappers[m.DocType()] = m
}

// Lookup returns the mapper for a document type.
func (r *Registry) Lookup(docType string) (Mapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappers[docType]
	if !ok {
		return nil, fmt.Errorf("no mapper registered for document type %s", docType)
	}
	return m, nil
}

// All returns the registered mappers sorted by document type.
func (r *Registry) All() []Mapper {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Mapper, 0, len(r.mappers))
	for _, m := range r.mappers {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DocType() < all[j].DocType() })
	return all
}

// Multi-value fields always serialize as arrays, never null, so queries can
// rely on a consistent shape.

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func productIDs(products []domain.Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func productSlugs(products []domain.Product) []string {
	slugs := make([]string, 0, len(products))
	for _, p := range products {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}

func topicIDs(topics []domain.Topic) []int64 {
	ids := make([]int64, 0, len(topics))
	for _, t := range topics {
		ids = append(ids, t.ID)
	}
	return ids
}

func topicSlugs(topics []domain.Topic) []string {
	slugs := make([]string, 0, len(topics))
	for _, t := range topics {
		slugs = append(slugs, t.Slug)
	}
	return slugs
}
