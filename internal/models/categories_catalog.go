package models

import (
	"context"
	"fmt"
)

// CategoriesCatalogStore provides data access for the append-only set of
// source-declared category paths.
type CategoriesCatalogStore struct{}

// NewCategoriesCatalogStore creates a new CategoriesCatalogStore.
func NewCategoriesCatalogStore() *CategoriesCatalogStore {
	return &CategoriesCatalogStore{}
}

// NewPaths returns the subset of paths not already present in the catalog.
func (s *CategoriesCatalogStore) NewPaths(ctx context.Context, q Queryer, paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	rows, err := q.Query(ctx, `SELECT path FROM categories_catalog WHERE path = ANY($1)`, paths)
	if err != nil {
		return nil, fmt.Errorf("categories catalog: query existing: %w", err)
	}
	defer rows.Close()

	existing := make(map[string]bool, len(paths))
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("categories catalog: scan: %w", err)
		}
		existing[p] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("categories catalog: rows: %w", err)
	}

	var fresh []string
	for _, p := range paths {
		if !existing[p] {
			fresh = append(fresh, p)
		}
	}
	return fresh, nil
}

// Insert appends new category paths to the catalog. Safe to call with paths
// that already exist (upsert, no-op on conflict), matching the append-only
// invariant.
func (s *CategoriesCatalogStore) Insert(ctx context.Context, q Queryer, paths []string) error {
	for _, p := range paths {
		if _, err := q.Exec(ctx, `
			INSERT INTO categories_catalog (path) VALUES ($1)
			ON CONFLICT (path) DO NOTHING
		`, p); err != nil {
			return fmt.Errorf("categories catalog: insert %q: %w", p, err)
		}
	}
	return nil
}
