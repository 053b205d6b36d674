package models

import (
	"context"
	"fmt"
	"time"
)

// DailyIndex records that a day's source index has been ingested.
// Immutable once written.
type DailyIndex struct {
	Date       time.Time
	IndexPath  string
	IngestedAt time.Time
}

// DailyIndexStore provides data access for DailyIndex rows.
type DailyIndexStore struct{}

// NewDailyIndexStore creates a new DailyIndexStore.
func NewDailyIndexStore() *DailyIndexStore {
	return &DailyIndexStore{}
}

// Exists reports whether a day has already been ingested.
func (s *DailyIndexStore) Exists(ctx context.Context, q Queryer, date time.Time) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM daily_index WHERE date = $1)`, dateOnly(date)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("daily index exists: %w", err)
	}
	return exists, nil
}

// Insert records a day's index as ingested.
func (s *DailyIndexStore) Insert(ctx context.Context, q Queryer, date time.Time, indexPath string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO daily_index (date, index_path) VALUES ($1, $2)
		ON CONFLICT (date) DO NOTHING
	`, dateOnly(date), indexPath)
	if err != nil {
		return fmt.Errorf("daily index insert: %w", err)
	}
	return nil
}

// LastDate returns the most recent ingested date, or the zero time if none
// exist.
func (s *DailyIndexStore) LastDate(ctx context.Context, q Queryer) (time.Time, error) {
	var t time.Time
	err := q.QueryRow(ctx, `SELECT date FROM daily_index ORDER BY date DESC LIMIT 1`).Scan(&t)
	if err != nil {
		if isNoRows(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("daily index last date: %w", err)
	}
	return t, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
