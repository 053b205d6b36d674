package models

import (
	"context"
	"fmt"
	"time"
)

// SentLog records that an article has been delivered on a messaging
// channel, giving the Notifier idempotence across restarts.
type SentLog struct {
	ArticleID   string
	PublishedAt time.Time
	SentAt      time.Time
}

// SentLogStore provides data access for SentLog rows.
type SentLogStore struct{}

// NewSentLogStore creates a new SentLogStore.
func NewSentLogStore() *SentLogStore {
	return &SentLogStore{}
}

// Insert records a successful send, immediately after the dispatch and
// one row per article. A crash between send and insert can duplicate at
// most one message; the candidate query excludes anything already in
// sent_log, which bounds it.
func (s *SentLogStore) Insert(ctx context.Context, q Queryer, articleID string, publishedAt time.Time) error {
	_, err := q.Exec(ctx, `
		INSERT INTO sent_log (article_id, published_at) VALUES ($1, $2)
		ON CONFLICT (article_id) DO NOTHING
	`, articleID, publishedAt)
	if err != nil {
		return fmt.Errorf("sent log insert %s: %w", articleID, err)
	}
	return nil
}

// Sent reports whether an article has already been sent.
func (s *SentLogStore) Sent(ctx context.Context, q Queryer, articleID string) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sent_log WHERE article_id = $1)`, articleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sent log exists %s: %w", articleID, err)
	}
	return exists, nil
}

// PruneOlderThan deletes sent_log rows whose published_at is before the
// retention cutoff, keeping the table from growing unbounded while
// preserving enough history to dedupe any plausible re-delivery window.
func (s *SentLogStore) PruneOlderThan(ctx context.Context, q Queryer, cutoff time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `DELETE FROM sent_log WHERE published_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sent log prune: %w", err)
	}
	return tag.RowsAffected(), nil
}
