package models

import (
	"context"
	"fmt"
)

// ArticleCategory is the many-to-many link between an Article and the
// CategoriesCatalog paths it was published under, capturing the source's
// own declared categories. An article with N category paths gets N rows.
type ArticleCategory struct {
	ArticleID    string
	CategoryPath string
}

// ArticleCategoryStore provides data access for ArticleCategory rows.
type ArticleCategoryStore struct{}

// NewArticleCategoryStore creates a new ArticleCategoryStore.
func NewArticleCategoryStore() *ArticleCategoryStore {
	return &ArticleCategoryStore{}
}

// InsertAll records the source-declared category links for an article,
// replacing any prior links for that article_id (ingestion of an
// already-indexed day is a no-op write, but a retry must not leave
// duplicate rows behind).
func (s *ArticleCategoryStore) InsertAll(ctx context.Context, q Queryer, articleID string, categoryPaths []string) error {
	if _, err := q.Exec(ctx, `DELETE FROM article_category WHERE article_id = $1`, articleID); err != nil {
		return fmt.Errorf("article category: clear %s: %w", articleID, err)
	}
	for _, path := range categoryPaths {
		if _, err := q.Exec(ctx, `
			INSERT INTO article_category (article_id, category_path)
			VALUES ($1, $2)
		`, articleID, path); err != nil {
			return fmt.Errorf("article category: insert %s/%s: %w", articleID, path, err)
		}
	}
	return nil
}

// ByArticle returns every category link recorded for an article.
func (s *ArticleCategoryStore) ByArticle(ctx context.Context, q Queryer, articleID string) ([]ArticleCategory, error) {
	rows, err := q.Query(ctx, `
		SELECT article_id, category_path FROM article_category WHERE article_id = $1
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("article category: by article %s: %w", articleID, err)
	}
	defer rows.Close()

	var out []ArticleCategory
	for rows.Next() {
		var j ArticleCategory
		if err := rows.Scan(&j.ArticleID, &j.CategoryPath); err != nil {
			return nil, fmt.Errorf("article category: scan: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
