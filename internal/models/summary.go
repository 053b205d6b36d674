package models

import (
	"context"
	"fmt"
)

// Summary is a per-language summary of an article (the English original or
// a translation), stored as a text file on disk with only the path recorded
// in Postgres.
type Summary struct {
	ArticleID string
	Language  string
	FilePath  string
}

// SummaryStore provides data access for Summary rows.
type SummaryStore struct{}

// NewSummaryStore creates a new SummaryStore.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{}
}

// Insert records a generated summary file. Safe to call more than once for
// the same article/language pair (upsert).
func (s *SummaryStore) Insert(ctx context.Context, q Queryer, sm Summary) error {
	_, err := q.Exec(ctx, `
		INSERT INTO summary (article_id, language, file_path)
		VALUES ($1, $2, $3)
		ON CONFLICT (article_id, language) DO UPDATE SET file_path = EXCLUDED.file_path
	`, sm.ArticleID, sm.Language, sm.FilePath)
	if err != nil {
		return fmt.Errorf("summary insert %s/%s: %w", sm.ArticleID, sm.Language, err)
	}
	return nil
}

// ByArticle returns every summary recorded for an article, one per
// language.
func (s *SummaryStore) ByArticle(ctx context.Context, q Queryer, articleID string) ([]Summary, error) {
	rows, err := q.Query(ctx, `
		SELECT article_id, language, file_path FROM summary WHERE article_id = $1
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("summary by article %s: %w", articleID, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ArticleID, &sm.Language, &sm.FilePath); err != nil {
			return nil, fmt.Errorf("summary scan: %w", err)
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}
