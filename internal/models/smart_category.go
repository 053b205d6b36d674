package models

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SmartCategory is a named, LLM-curated grouping that article categories
// get folded into. __unknown__ is seeded at startup and is never deleted
// (see UnknownSmartCategory).
type SmartCategory struct {
	ID          uuid.UUID
	Name        string
	Description string
	Ignore      bool
}

// SmartCategoryStore provides data access for SmartCategory rows.
type SmartCategoryStore struct{}

// NewSmartCategoryStore creates a new SmartCategoryStore.
func NewSmartCategoryStore() *SmartCategoryStore {
	return &SmartCategoryStore{}
}

// Seed inserts the given categories if the table is empty. It is a no-op
// once any row exists, so it is safe to call unconditionally on every
// startup.
func (s *SmartCategoryStore) Seed(ctx context.Context, q Queryer, seeds []SmartCategory) error {
	var count int
	if err := q.QueryRow(ctx, `SELECT count(*) FROM smart_category`).Scan(&count); err != nil {
		return fmt.Errorf("smart category: seed count: %w", err)
	}
	if count > 0 {
		return nil
	}
	for _, c := range seeds {
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO smart_category (id, name, description, ignore)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO NOTHING
		`, id, c.Name, c.Description, c.Ignore); err != nil {
			return fmt.Errorf("smart category: seed insert %q: %w", c.Name, err)
		}
	}
	return nil
}

// All returns every smart category.
func (s *SmartCategoryStore) All(ctx context.Context, q Queryer) ([]SmartCategory, error) {
	rows, err := q.Query(ctx, `SELECT id, name, description, ignore FROM smart_category ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("smart category: all: %w", err)
	}
	defer rows.Close()

	var out []SmartCategory
	for rows.Next() {
		var c SmartCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Ignore); err != nil {
			return nil, fmt.Errorf("smart category: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ByName returns a single smart category by name, or nil if none exists.
func (s *SmartCategoryStore) ByName(ctx context.Context, q Queryer, name string) (*SmartCategory, error) {
	var c SmartCategory
	err := q.QueryRow(ctx, `
		SELECT id, name, description, ignore FROM smart_category WHERE name = $1
	`, name).Scan(&c.ID, &c.Name, &c.Description, &c.Ignore)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("smart category: by name %q: %w", name, err)
	}
	return &c, nil
}

// Admit inserts a newly proposed smart category. New categories
// auto-admit with ignore=false so the pipeline keeps flowing; an operator
// can flip Ignore later via direct administration.
func (s *SmartCategoryStore) Admit(ctx context.Context, q Queryer, name, description string) (SmartCategory, error) {
	c := SmartCategory{ID: uuid.New(), Name: name, Description: description, Ignore: false}
	_, err := q.Exec(ctx, `
		INSERT INTO smart_category (id, name, description, ignore)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, c.ID, c.Name, c.Description, c.Ignore)
	if err != nil {
		return SmartCategory{}, fmt.Errorf("smart category: admit %q: %w", name, err)
	}
	existing, err := s.ByName(ctx, q, name)
	if err != nil {
		return SmartCategory{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	return c, nil
}
