package mapper

import (
	"fmt"
	"time"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

// QuestionMapper maps support forum questions.
type QuestionMapper struct {
	now func() time.Time
}

func NewQuestionMapper() *QuestionMapper {
	return &QuestionMapper{now: time.Now}
}

func (m *QuestionMapper) DocType() string { return mappings.DocTypeQuestion }

func (m *QuestionMapper) ToDocument(e domain.Entity) (Document, error) {
	q, ok := e.(*domain.Question)
	if !ok {
		return nil, fmt.Errorf("%w: expected *domain.Question, got %T", ErrUnmappable, e)
	}
	if q.ID <= 0 {
		return nil, fmt.Errorf("%w: question has no persisted ID", ErrUnmappable)
	}
	if q.IsSpam {
		return nil, fmt.Errorf("%w: question %d is flagged as spam", ErrDiscard, q.ID)
	}

	return &QuestionDocument{
		ID:           q.ID,
		Title:        q.Title,
		Content:      q.Content,
		Locale:       q.Locale,
		CreatorID:    q.CreatorID,
		IsSolved:     q.IsSolved,
		IsLocked:     q.IsLocked,
		NumVotes:     q.NumVotes,
		ProductIDs:   productIDs(q.Products),
		ProductSlugs: productSlugs(q.Products),
		TopicIDs:     topicIDs(q.Topics),
		TopicSlugs:   topicSlugs(q.Topics),
		Tags:         nonNilStrings(q.Tags),
		Created:      q.Created.UTC(),
		Updated:      q.Updated.UTC(),
		IndexedOn:    m.now().UTC(),
	}, nil
}

// AnswerMapper maps support forum answers.
type AnswerMapper struct {
	now func() time.Time
}

func NewAnswerMapper() *AnswerMapper {
	return &AnswerMapper{now: time.Now}
}

func (m *AnswerMapper) DocType() string { return mappings.DocTypeAnswer }

func (m *AnswerMapper) ToDocument(e domain.Entity) (Document, error) {
	a, ok := e.(*domain.Answer)
	if !ok {
		return nil, fmt.Errorf("%w: expected *domain.Answer, got %T", ErrUnmappable, e)
	}
	if a.ID <= 0 {
		return nil, fmt.Errorf("%w: answer has no persisted ID", ErrUnmappable)
	}
	if a.IsSpam {
		return nil, fmt.Errorf("%w: answer %d is flagged as spam", ErrDiscard, a.ID)
	}

	return &AnswerDocument{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		Content:    a.Content,
		Locale:     a.Locale,
		CreatorID:  a.CreatorID,
		IsSolution: a.IsSolution,
		NumVotes:   a.NumVotes,
		Created:    a.Created.UTC(),
		IndexedOn:  m.now().UTC(),
	}, nil
}
