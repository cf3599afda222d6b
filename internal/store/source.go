package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jonesrussell/support-search/internal/domain"
	"github.com/jonesrussell/support-search/internal/elasticsearch/mappings"
)

// SQLSource implements domain.Source over the application's relational
// schema. Batches scan in ascending ID order so reindex jobs can resume
// from the last processed ID.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource creates a SQLSource over an open connection.
func NewSQLSource(conn *Connection) *SQLSource {
	return &SQLSource{db: conn.DB}
}

// FetchBatch returns up to limit entities with IDs greater than afterID.
func (s *SQLSource) FetchBatch(ctx context.Context, docType string, afterID int64, limit int) ([]domain.Entity, error) {
	switch docType {
	case mappings.DocTypeKBArticle:
		return s.fetchKBArticles(ctx, afterID, limit)
	case mappings.DocTypeQuestion:
		return s.fetchQuestions(ctx, afterID, limit)
	case mappings.DocTypeAnswer:
		return s.fetchAnswers(ctx, afterID, limit)
	case mappings.DocTypeForumPost:
		return s.fetchForumPosts(ctx, afterID, limit)
	case mappings.DocTypeProfile:
		return s.fetchProfiles(ctx, afterID, limit)
	default:
		return nil, fmt.Errorf("unknown document type: %s", docType)
	}
}

// FetchByID returns the single entity with the given ID. Rows scan in
// ascending ID order, so a batch starting just below the ID either begins
// with the row or proves it gone.
func (s *SQLSource) FetchByID(ctx context.Context, docType string, id int64) (domain.Entity, error) {
	batch, err := s.FetchBatch(ctx, docType, id-1, 1)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 || batch[0].EntityID() != id {
		return nil, domain.ErrEntityNotFound
	}
	return batch[0], nil
}

func (s *SQLSource) fetchKBArticles(ctx context.Context, afterID int64, limit int) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, slug, summary, content, keywords, locale, category,
		       visible_from, visible_until, updated_at
		FROM kb_articles
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query kb articles: %w", err)
	}
	defer rows.Close()

	var (
		entities []domain.Entity
		ids      []int64
		byID     = map[int64]*domain.KBArticle{}
	)
	for rows.Next() {
		a := &domain.KBArticle{}
		var visibleFrom, visibleUntil sql.NullTime
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Slug, &a.Summary, &a.Content,
			pq.Array(&a.Keywords), &a.Locale, &a.Category,
			&visibleFrom, &visibleUntil, &a.Updated,
		); err != nil {
			return nil, fmt.Errorf("scan kb article: %w", err)
		}
		if visibleFrom.Valid {
			a.VisibleFrom = visibleFrom.Time
		}
		if visibleUntil.Valid {
			a.VisibleUntil = visibleUntil.Time
		}
		entities = append(entities, a)
		ids = append(ids, a.ID)
		byID[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kb articles: %w", err)
	}
	if len(ids) == 0 {
		return entities, nil
	}

	products, err := s.fetchProducts(ctx, "kb_article_products", "article_id", ids)
	if err != nil {
		return nil, err
	}
	topics, err := s.fetchTopics(ctx, "kb_article_topics", "article_id", ids)
	if err != nil {
		return nil, err
	}
	for id, a := range byID {
		a.Products = products[id]
		a.Topics = topics[id]
	}
	return entities, nil
}

func (s *SQLSource) fetchQuestions(ctx context.Context, afterID int64, limit int) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, locale, creator_id,
		       is_solved, is_spam, is_locked, num_votes, tags,
		       created_at, updated_at
		FROM questions
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var (
		entities []domain.Entity
		ids      []int64
		byID     = map[int64]*domain.Question{}
	)
	for rows.Next() {
		q := &domain.Question{}
		if err := rows.Scan(
			&q.ID, &q.Title, &q.Content, &q.Locale, &q.CreatorID,
			&q.IsSolved, &q.IsSpam, &q.IsLocked, &q.NumVotes, pq.Array(&q.Tags),
			&q.Created, &q.Updated,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		entities = append(entities, q)
		ids = append(ids, q.ID)
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(ids) == 0 {
		return entities, nil
	}

	products, err := s.fetchProducts(ctx, "question_products", "question_id", ids)
	if err != nil {
		return nil, err
	}
	topics, err := s.fetchTopics(ctx, "question_topics", "question_id", ids)
	if err != nil {
		return nil, err
	}
	for id, q := range byID {
		q.Products = products[id]
		q.Topics = topics[id]
	}
	return entities, nil
}

func (s *SQLSource) fetchAnswers(ctx context.Context, afterID int64, limit int) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_id, content, locale, creator_id,
		       is_solution, is_spam, num_votes, created_at
		FROM answers
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		a := &domain.Answer{}
		if err := rows.Scan(
			&a.ID, &a.QuestionID, &a.Content, &a.Locale, &a.CreatorID,
			&a.IsSolution, &a.IsSpam, &a.NumVotes, &a.Created,
		); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		entities = append(entities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return entities, nil
}

func (s *SQLSource) fetchForumPosts(ctx context.Context, afterID int64, limit int) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, forum_id, title, content, author_id, locale,
		       created_at, updated_at
		FROM forum_posts
		WHERE id > $1
		ORDER BY id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query forum posts: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		p := &domain.ForumPost{}
		if err := rows.Scan(
			&p.ID, &p.ThreadID, &p.ForumID, &p.Title, &p.Content,
			&p.AuthorID, &p.Locale, &p.Created, &p.Updated,
		); err != nil {
			return nil, fmt.Errorf("scan forum post: %w", err)
		}
		entities = append(entities, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate forum posts: %w", err)
	}
	return entities, nil
}

func (s *SQLSource) fetchProfiles(ctx context.Context, afterID int64, limit int) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.username, p.name, p.locale, p.unindexable,
		       COALESCE(array_agg(g.name) FILTER (WHERE g.name IS NOT NULL), '{}')
		FROM profiles p
		LEFT JOIN profile_groups pg ON pg.profile_id = p.id
		LEFT JOIN groups g ON g.id = pg.group_id
		WHERE p.id > $1
		GROUP BY p.id
		ORDER BY p.id
		LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		p := &domain.Profile{}
		if err := rows.Scan(
			&p.ID, &p.Username, &p.Name, &p.Locale, &p.Unindexable,
			pq.Array(&p.Groups),
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		entities = append(entities, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return entities, nil
}

// fetchProducts loads the products related to a batch of entities through a
// junction table, keyed by entity ID.
func (s *SQLSource) fetchProducts(ctx context.Context, junction, fk string, ids []int64) (map[int64][]domain.Product, error) {
	query := fmt.Sprintf(`
		SELECT j.%s, p.id, p.slug, p.title
		FROM %s j
		JOIN products p ON p.id = j.product_id
		WHERE j.%s = ANY($1)
		ORDER BY p.id`, fk, junction, fk)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", junction, err)
	}
	defer rows.Close()

	out := map[int64][]domain.Product{}
	for rows.Next() {
		var entityID int64
		var p domain.Product
		if err := rows.Scan(&entityID, &p.ID, &p.Slug, &p.Title); err != nil {
			return nil, fmt.Errorf("scan %s: %w", junction, err)
		}
		out[entityID] = append(out[entityID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", junction, err)
	}
	return out, nil
}

func (s *SQLSource) fetchTopics(ctx context.Context, junction, fk string, ids []int64) (map[int64][]domain.Topic, error) {
	query := fmt.Sprintf(`
		SELECT j.%s, t.id, t.slug, t.title
		FROM %s j
		JOIN topics t ON t.id = j.topic_id
		WHERE j.%s = ANY($1)
		ORDER BY t.id`, fk, junction, fk)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", junction, err)
	}
	defer rows.Close()

	out := map[int64][]domain.Topic{}
	for rows.Next() {
		var entityID int64
		var t domain.Topic
		if err := rows.Scan(&entityID, &t.ID, &t.Slug, &t.Title); err != nil {
			return nil, fmt.Errorf("scan %s: %w", junction, err)
		}
		out[entityID] = append(out[entityID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", junction, err)
	}
	return out, nil
}
