package models

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGapRangeStore_Open_NoOverlap(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewGapRangeStore()
	from, to := date(2024, 6, 2), date(2024, 6, 4)

	mock.ExpectQuery("SELECT id, from_date, to_date FROM gap_range").
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_date", "to_date"}))
	mock.ExpectExec("INSERT INTO gap_range").
		WithArgs(pgxmock.AnyArg(), from, to).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Open(context.Background(), mock, from, to))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGapRangeStore_Open_MergesOverlapping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewGapRangeStore()
	existingID := uuid.New()
	from, to := date(2024, 6, 2), date(2024, 6, 4)
	existingFrom, existingTo := date(2024, 6, 3), date(2024, 6, 6)

	mock.ExpectQuery("SELECT id, from_date, to_date FROM gap_range").
		WithArgs(from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_date", "to_date"}).
			AddRow(existingID, existingFrom, existingTo))
	mock.ExpectExec("DELETE FROM gap_range").WithArgs(existingID).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO gap_range").
		WithArgs(pgxmock.AnyArg(), from, existingTo).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Open(context.Background(), mock, from, to))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGapRangeStore_ShrinkFrom_DeletesWhenEmptied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewGapRangeStore()
	id := uuid.New()
	to := date(2024, 6, 4)

	mock.ExpectQuery("SELECT to_date FROM gap_range").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"to_date"}).AddRow(to))
	mock.ExpectExec("DELETE FROM gap_range").WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, s.ShrinkFrom(context.Background(), mock, id, to))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGapRangeStore_ShrinkFrom_PartialAdvance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewGapRangeStore()
	id := uuid.New()
	to := date(2024, 6, 6)
	newFrom := date(2024, 6, 3)

	mock.ExpectQuery("SELECT to_date FROM gap_range").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"to_date"}).AddRow(to))
	mock.ExpectExec("UPDATE gap_range SET from_date").WithArgs(newFrom, id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.ShrinkFrom(context.Background(), mock, id, newFrom))
	require.NoError(t, mock.ExpectationsWereMet())
}
