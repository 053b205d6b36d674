package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotifierArticle is the Notifier's own denormalized view of an article
// ready for distribution consideration. It is populated once, after
// categorization completes, and never mutated except for Skip/Failed.
type NotifierArticle struct {
	ID                uuid.UUID
	ArticleID         string
	PublishedAt       time.Time
	Relation          Relation
	SmartCategoryName string
	Skip              bool
	Failed            bool
}

// NotifierArticleStore provides data access for NotifierArticle rows.
type NotifierArticleStore struct{}

// NewNotifierArticleStore creates a new NotifierArticleStore.
func NewNotifierArticleStore() *NotifierArticleStore {
	return &NotifierArticleStore{}
}

// Insert records the notifier-facing projection of a freshly categorized
// article. Safe to call more than once for the same article (no-op on
// conflict), since the unique article_id constraint guards against
// duplicate projections if categorization is ever retried.
func (s *NotifierArticleStore) Insert(ctx context.Context, q Queryer, n NotifierArticle) error {
	id := n.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO notifier_article (id, article_id, published_at, relation, smart_category_name, skip, failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (article_id) DO NOTHING
	`, id, n.ArticleID, n.PublishedAt, string(n.Relation), n.SmartCategoryName, n.Skip, n.Failed)
	if err != nil {
		return fmt.Errorf("notifier article insert %s: %w", n.ArticleID, err)
	}
	return nil
}

// CandidatesInWindow returns notifier articles published in [from, to) that
// are neither skipped nor failed, whose relation is DIRECT or INDIRECT,
// whose smart category is not ignored, and that have not yet been sent,
// ordered oldest first.
func (s *NotifierArticleStore) CandidatesInWindow(ctx context.Context, q Queryer, from, to time.Time) ([]NotifierArticle, error) {
	rows, err := q.Query(ctx, `
		SELECT na.id, na.article_id, na.published_at, na.relation, na.smart_category_name, na.skip, na.failed
		FROM notifier_article na
		JOIN smart_category sc ON sc.name = na.smart_category_name
		LEFT JOIN sent_log sl ON sl.article_id = na.article_id
		WHERE na.published_at >= $1 AND na.published_at < $2
			AND na.skip = false AND na.failed = false
			AND na.relation IN ('DIRECT', 'INDIRECT')
			AND sc.ignore = false
			AND sl.article_id IS NULL
		ORDER BY na.published_at ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("notifier article candidates: %w", err)
	}
	defer rows.Close()

	var out []NotifierArticle
	for rows.Next() {
		var n NotifierArticle
		var relation string
		if err := rows.Scan(&n.ID, &n.ArticleID, &n.PublishedAt, &relation, &n.SmartCategoryName, &n.Skip, &n.Failed); err != nil {
			return nil, fmt.Errorf("notifier article candidates scan: %w", err)
		}
		n.Relation = Relation(relation)
		out = append(out, n)
	}
	return out, rows.Err()
}
