// Package domain defines the application entities kept in sync with the
// search cluster, and the document projections they serialize to.
package domain

import "time"

// Entity is implemented by every indexable application object.
// The entity ID is the stable identifier the search document inherits.
type Entity interface {
	EntityID() int64
}

// Product is a product an entity relates to, denormalized into documents.
type Product struct {
	ID    int64
	Slug  string
	Title string
}

// Topic is a topic an entity relates to, denormalized into documents.
type Topic struct {
	ID    int64
	Slug  string
	Title string
}

// KBArticle is a knowledge base article.
type KBArticle struct {
	ID       int64
	Title    string
	Slug     string
	Summary  string
	Content  string
	Keywords []string
	Locale   string
	Category int

	Products []Product
	Topics   []Topic

	// VisibleFrom/VisibleUntil bound the article's scheduled visibility
	// window. Both zero means always visible.
	VisibleFrom  time.Time
	VisibleUntil time.Time

	Updated time.Time
}

func (a *KBArticle) EntityID() int64 { return a.ID }

// Question is a support forum question.
type Question struct {
	ID        int64
	Title     string
	Content   string
	Locale    string
	CreatorID int64
	IsSolved  bool
	IsSpam    bool
	IsLocked  bool
	NumVotes  int

	Products []Product
	Topics   []Topic
	Tags     []string

	Created time.Time
	Updated time.Time
}

func (q *Question) EntityID() int64 { return q.ID }

// Answer is a reply to a support forum question.
type Answer struct {
	ID         int64
	QuestionID int64
	Content    string
	Locale     string
	CreatorID  int64
	IsSolution bool
	IsSpam     bool
	NumVotes   int

	Created time.Time
}

func (a *Answer) EntityID() int64 { return a.ID }

// ForumPost is a post in a discussion forum thread.
type ForumPost struct {
	ID       int64
	ThreadID int64
	ForumID  int64
	Title    string
	Content  string
	AuthorID int64
	Locale   string

	Created time.Time
	Updated time.Time
}

func (p *ForumPost) EntityID() int64 { return p.ID }

// Profile is a user profile.
type Profile struct {
	ID       int64
	Username string
	Name     string
	Locale   string

	// Group names the user belongs to, denormalized for filtering.
	Groups []string

	// Unindexable marks profiles excluded from search (e.g. system users).
	Unindexable bool
}

func (p *Profile) EntityID() int64 { return p.ID }
