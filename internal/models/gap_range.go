package models

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GapRange is a contiguous half-open date interval [From, To) known to be
// missing a DailyIndex.
type GapRange struct {
	ID   uuid.UUID
	From time.Time
	To   time.Time
}

// GapRangeStore provides data access for GapRange rows, including the
// merge-on-insert behavior required to keep ranges disjoint.
type GapRangeStore struct{}

// NewGapRangeStore creates a new GapRangeStore.
func NewGapRangeStore() *GapRangeStore {
	return &GapRangeStore{}
}

// Open inserts a new gap covering [from, to), coalescing with any existing
// range that touches or overlaps it so the disjoint-ranges invariant holds
// after the call. from/to are truncated to whole dates; a request where
// from >= to is a no-op.
func (s *GapRangeStore) Open(ctx context.Context, q Queryer, from, to time.Time) error {
	from, to = dateOnly(from), dateOnly(to)
	if !from.Before(to) {
		return nil
	}

	rows, err := q.Query(ctx, `
		SELECT id, from_date, to_date FROM gap_range
		WHERE from_date <= $2 AND to_date >= $1
	`, from, to)
	if err != nil {
		return fmt.Errorf("gap range: query overlapping: %w", err)
	}

	var toDelete []uuid.UUID
	mergedFrom, mergedTo := from, to
	for rows.Next() {
		var id uuid.UUID
		var f, t time.Time
		if err := rows.Scan(&id, &f, &t); err != nil {
			rows.Close()
			return fmt.Errorf("gap range: scan overlapping: %w", err)
		}
		toDelete = append(toDelete, id)
		if f.Before(mergedFrom) {
			mergedFrom = f
		}
		if t.After(mergedTo) {
			mergedTo = t
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("gap range: rows: %w", err)
	}
	rows.Close()

	for _, id := range toDelete {
		if _, err := q.Exec(ctx, `DELETE FROM gap_range WHERE id = $1`, id); err != nil {
			return fmt.Errorf("gap range: delete merged %s: %w", id, err)
		}
	}

	_, err = q.Exec(ctx, `
		INSERT INTO gap_range (id, from_date, to_date) VALUES ($1, $2, $3)
	`, uuid.New(), mergedFrom, mergedTo)
	if err != nil {
		return fmt.Errorf("gap range: insert merged: %w", err)
	}
	return nil
}

// Earliest returns the gap range with the smallest from_date, or nil if none
// exist.
func (s *GapRangeStore) Earliest(ctx context.Context, q Queryer) (*GapRange, error) {
	var g GapRange
	err := q.QueryRow(ctx, `
		SELECT id, from_date, to_date FROM gap_range ORDER BY from_date ASC LIMIT 1
	`).Scan(&g.ID, &g.From, &g.To)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gap range: earliest: %w", err)
	}
	return &g, nil
}

// ShrinkFrom advances a gap range's From boundary to newFrom (one or more
// dates have now been processed, oldest first). If newFrom reaches or
// passes To, the range is deleted instead.
func (s *GapRangeStore) ShrinkFrom(ctx context.Context, q Queryer, id uuid.UUID, newFrom time.Time) error {
	newFrom = dateOnly(newFrom)

	var to time.Time
	if err := q.QueryRow(ctx, `SELECT to_date FROM gap_range WHERE id = $1`, id).Scan(&to); err != nil {
		if isNoRows(err) {
			return nil
		}
		return fmt.Errorf("gap range: shrink lookup: %w", err)
	}

	if !newFrom.Before(to) {
		if _, err := q.Exec(ctx, `DELETE FROM gap_range WHERE id = $1`, id); err != nil {
			return fmt.Errorf("gap range: delete emptied %s: %w", id, err)
		}
		return nil
	}

	if _, err := q.Exec(ctx, `UPDATE gap_range SET from_date = $1 WHERE id = $2`, newFrom, id); err != nil {
		return fmt.Errorf("gap range: shrink %s: %w", id, err)
	}
	return nil
}
