package models

import (
	"context"
	"fmt"
	"time"
)

// Article is a single source article as tracked through its processing
// lifecycle. ID is the source's own identifier, never internally
// generated.
type Article struct {
	ID            string
	URL           string
	Title         string
	PublishedAt   time.Time
	CategoryPaths []string
	ContentPath   *string
	Skipped       bool
	Failed        bool
	FailureReason *string
	DiscoveredAt  time.Time
	ProcessedAt   *time.Time
}

// Pending reports whether an article has neither been processed, skipped,
// nor permanently failed (the partial index predicate on articles
// mirrors this exactly).
func (a Article) Pending() bool {
	return a.ContentPath == nil && !a.Skipped && !a.Failed
}

// ArticleStore provides data access for Article rows.
type ArticleStore struct{}

// NewArticleStore creates a new ArticleStore.
func NewArticleStore() *ArticleStore {
	return &ArticleStore{}
}

// Insert records a newly discovered article. Safe to call more than once
// for the same ID (upsert, no-op on conflict) since a source's daily index
// can list the same article across more than one fetch.
func (s *ArticleStore) Insert(ctx context.Context, q Queryer, a Article) error {
	_, err := q.Exec(ctx, `
		INSERT INTO articles (id, url, title, published_at, category_paths, discovered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.URL, a.Title, a.PublishedAt, a.CategoryPaths, a.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("article insert %s: %w", a.ID, err)
	}
	return nil
}

// Get returns a single article by ID, or nil if it doesn't exist.
func (s *ArticleStore) Get(ctx context.Context, q Queryer, id string) (*Article, error) {
	a, err := scanArticle(q.QueryRow(ctx, `
		SELECT id, url, title, published_at, category_paths, content_path,
			skipped, failed, failure_reason, discovered_at, processed_at
		FROM articles WHERE id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("article get %s: %w", id, err)
	}
	return &a, nil
}

// PendingByPriority returns up to limit pending articles in two tiers:
// articles whose published_at falls inside [windowFrom, windowTo) sort
// first, oldest first within that tier (fresh news goes out promptly);
// everything else sorts after, newest first (backlog catches up toward
// the present).
func (s *ArticleStore) PendingByPriority(ctx context.Context, q Queryer, windowFrom, windowTo time.Time, limit int) ([]Article, error) {
	rows, err := q.Query(ctx, `
		SELECT id, url, title, published_at, category_paths, content_path,
			skipped, failed, failure_reason, discovered_at, processed_at
		FROM articles
		WHERE content_path IS NULL AND skipped = false AND failed = false
		ORDER BY
			(published_at >= $1 AND published_at < $2) DESC,
			CASE WHEN published_at >= $1 AND published_at < $2 THEN published_at END ASC,
			CASE WHEN NOT (published_at >= $1 AND published_at < $2) THEN published_at END DESC
		LIMIT $3
	`, windowFrom, windowTo, limit)
	if err != nil {
		return nil, fmt.Errorf("article pending by priority: %w", err)
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("article pending by priority scan: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkSkipped marks an article as permanently skipped (e.g. one of its
// source-declared categories is in the downloader's ignore list).
func (s *ArticleStore) MarkSkipped(ctx context.Context, q Queryer, id string) error {
	_, err := q.Exec(ctx, `
		UPDATE articles SET skipped = true, processed_at = $2 WHERE id = $1
	`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("article mark skipped %s: %w", id, err)
	}
	return nil
}

// MarkFailed marks an article as permanently failed. Failed articles are
// terminal: no automatic retry is ever scheduled for them again.
func (s *ArticleStore) MarkFailed(ctx context.Context, q Queryer, id, reason string) error {
	_, err := q.Exec(ctx, `
		UPDATE articles SET failed = true, failure_reason = $2, processed_at = $3 WHERE id = $1
	`, id, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("article mark failed %s: %w", id, err)
	}
	return nil
}

// MarkProcessed records the article's extracted title and stored markdown
// content path, clearing it from the pending set. The title is only
// known once the HTML has been parsed to markdown.
func (s *ArticleStore) MarkProcessed(ctx context.Context, q Queryer, id, title, contentPath string) error {
	_, err := q.Exec(ctx, `
		UPDATE articles SET title = $2, content_path = $3, processed_at = $4 WHERE id = $1
	`, id, title, contentPath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("article mark processed %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (Article, error) {
	var a Article
	err := row.Scan(
		&a.ID, &a.URL, &a.Title, &a.PublishedAt, &a.CategoryPaths, &a.ContentPath,
		&a.Skipped, &a.Failed, &a.FailureReason, &a.DiscoveredAt, &a.ProcessedAt,
	)
	return a, err
}
