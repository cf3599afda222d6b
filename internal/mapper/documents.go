package mapper

import (
	"strconv"
	"time"

	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

// DateRange is the gte/lte pair serialized into date_range fields.
// A nil bound is open-ended.
type DateRange struct {
	Gte *time.Time `json:"gte,omitempty"`
	Lte *time.Time `json:"lte,omitempty"`
}

// KBArticleDocument is the indexed projection of a knowledge base article.
type KBArticleDocument struct {
	ID            int64      `json:"-"`
	Title         string     `json:"title"`
	Slug          string     `json:"slug"`
	Summary       string     `json:"summary"`
	Content       string     `json:"content"`
	Keywords      []string   `json:"keywords"`
	Locale        string     `json:"locale"`
	Category      int        `json:"category"`
	ProductIDs    []int64    `json:"product_ids"`
	ProductSlugs  []string   `json:"product_slugs"`
	TopicIDs      []int64    `json:"topic_ids"`
	TopicSlugs    []string   `json:"topic_slugs"`
	VisibleDuring *DateRange `json:"visible_during,omitempty"`
	Updated       time.Time  `json:"updated"`
	IndexedOn     time.Time  `json:"indexed_on"`
}

func (d *KBArticleDocument) DocID() string   { return strconv.FormatInt(d.ID, 10) }
func (d *KBArticleDocument) DocType() string { return mappings.DocTypeKBArticle }

// QuestionDocument is the indexed projection of a forum question.
type QuestionDocument struct {
	ID           int64     `json:"-"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Locale       string    `json:"locale"`
	CreatorID    int64     `json:"creator_id"`
	IsSolved     bool      `json:"is_solved"`
	IsLocked     bool      `json:"is_locked"`
	NumVotes     int       `json:"num_votes"`
	ProductIDs   []int64   `json:"product_ids"`
	ProductSlugs []string  `json:"product_slugs"`
	TopicIDs     []int64   `json:"topic_ids"`
	TopicSlugs   []string  `json:"topic_slugs"`
	Tags         []string  `json:"tags"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	IndexedOn    time.Time `json:"indexed_on"`
}

func (d *QuestionDocument) DocID() string   { return strconv.FormatInt(d.ID, 10) }
func (d *QuestionDocument) DocType() string { return mappings.DocTypeQuestion }

// AnswerDocument is the indexed projection of a forum answer.
type AnswerDocument struct {
	ID         int64     `json:"-"`
	QuestionID int64     `json:"question_id"`
	Content    string    `json:"content"`
	Locale     string    `json:"locale"`
	CreatorID  int64     `json:"creator_id"`
	IsSolution bool      `json:"is_solution"`
	NumVotes   int       `json:"num_votes"`
	Created    time.Time `json:"created"`
	IndexedOn  time.Time `json:"indexed_on"`
}

func (d *AnswerDocument) DocID() string   { return strconv.FormatInt(d.ID, 10) }
func (d *AnswerDocument) DocType() string { return mappings.DocTypeAnswer }

// ForumPostDocument is the indexed projection of a discussion forum post.
type ForumPostDocument struct {
	ID        int64     `json:"-"`
	ThreadID  int64     `json:"thread_id"`
	ForumID   int64     `json:"forum_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  int64     `json:"author_id"`
	Locale    string    `json:"locale"`
	Created   time.Time `json:"created"`
	Updated   time.Time `json:"updated"`
	IndexedOn time.Time `json:"indexed_on"`
}

func (d *ForumPostDocument) DocID() string   { return strconv.FormatInt(d.ID, 10) }
func (d *ForumPostDocument) DocType() string { return mappings.DocTypeForumPost }

// ProfileDocument is the indexed projection of a user profile.
type ProfileDocument struct {
	ID        int64     `json:"-"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Locale    string    `json:"locale"`
	Groups    []string  `json:"groups"`
	IndexedOn time.Time `json:"indexed_on"`
}

func (d *ProfileDocument) DocID() string   { return strconv.FormatInt(d.ID, 10) }
func (d *ProfileDocument) DocType() string { return mappings.DocTypeProfile }
