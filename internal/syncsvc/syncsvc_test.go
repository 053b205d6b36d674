package syncsvc

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
	"github.com/chungachanga/crhoy-pipeline/internal/sourceapi"
)

type fakeIndexFetcher struct {
	entries []sourceapi.IndexEntry
	err     error
}

func (f *fakeIndexFetcher) Probe(ctx context.Context) error { return nil }

func (f *fakeIndexFetcher) DailyIndex(ctx context.Context, date time.Time) ([]sourceapi.IndexEntry, error) {
	return f.entries, f.err
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{DaysChunkSize: 2}
}

func TestDetectDaySwitch_OpensGapCoveringMissedDays(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)

	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT date FROM daily_index").
		WillReturnRows(pgxmock.NewRows([]string{"date"}).AddRow(last))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(today).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	gapFrom := last.AddDate(0, 0, 1)
	mock.ExpectQuery("SELECT id, from_date, to_date FROM gap_range").
		WithArgs(gapFrom, today).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_date", "to_date"}))
	mock.ExpectExec("INSERT INTO gap_range").
		WithArgs(pgxmock.AnyArg(), gapFrom, today).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, svc.detectDaySwitch(context.Background(), today))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectDaySwitch_NoOpWhenTodayAlreadyIndexed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT date FROM daily_index").
		WillReturnRows(pgxmock.NewRows([]string{"date"}).AddRow(last))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(today).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, svc.detectDaySwitch(context.Background(), today))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectDaySwitch_FirstRunOpensGapFromFirstDay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := testSyncConfig()
	cfg.FirstDay = time.Date(2026, 7, 28, 0, 0, 0, 0, time.UTC)
	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, cfg, time.UTC)

	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT date FROM daily_index").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(today).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT id, from_date, to_date FROM gap_range").
		WithArgs(cfg.FirstDay, today).
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_date", "to_date"}))
	mock.ExpectExec("INSERT INTO gap_range").
		WithArgs(pgxmock.AnyArg(), cfg.FirstDay, today).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, svc.detectDaySwitch(context.Background(), today))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDetectDaySwitch_NoOpWithoutFirstDayOnFirstRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)
	today := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT date FROM daily_index").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(today).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	require.NoError(t, svc.detectDaySwitch(context.Background(), today))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestDay_InsertsArticleCategoryLinksAndDailyIndexInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)

	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	entries := []sourceapi.IndexEntry{
		{ID: "A1", URL: "https://www.crhoy.com/a1", PublishedAt: date, Categories: []string{"nacionales", "economia"}},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT path FROM categories_catalog").
		WithArgs([]string{"nacionales", "economia"}).
		WillReturnRows(pgxmock.NewRows([]string{"path"}).AddRow("nacionales"))
	mock.ExpectExec("INSERT INTO categories_catalog").
		WithArgs("economia").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO articles").
		WithArgs("A1", "https://www.crhoy.com/a1", "", date, []string{"nacionales", "economia"}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM article_category").
		WithArgs("A1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO article_category").
		WithArgs("A1", "nacionales").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO article_category").
		WithArgs("A1", "economia").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO daily_index").
		WithArgs(date, "/data/metadata/2026/07/31.json").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, svc.ingestDay(context.Background(), date, "/data/metadata/2026/07/31.json", entries))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessGapChunk_ShrinksRangeAsDaysAreProcessed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)

	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 7, 5, 0, 0, 0, 0, time.UTC)
	gapID := uuid.New()

	mock.ExpectQuery("SELECT id, from_date, to_date FROM gap_range ORDER BY").
		WillReturnRows(pgxmock.NewRows([]string{"id", "from_date", "to_date"}).AddRow(gapID, from, to))

	// chunkSize is 2: two days get processed (each a no-op "already
	// ingested" check), each followed by a ShrinkFrom call.
	day1 := from
	day2 := from.AddDate(0, 0, 1)
	mock.ExpectQuery("SELECT EXISTS").WithArgs(day1).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT to_date FROM gap_range").
		WithArgs(gapID).
		WillReturnRows(pgxmock.NewRows([]string{"to_date"}).AddRow(to))
	mock.ExpectExec("UPDATE gap_range SET from_date").
		WithArgs(day2, gapID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectQuery("SELECT EXISTS").WithArgs(day2).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT to_date FROM gap_range").
		WithArgs(gapID).
		WillReturnRows(pgxmock.NewRows([]string{"to_date"}).AddRow(to))
	mock.ExpectExec("UPDATE gap_range SET from_date").
		WithArgs(from.AddDate(0, 0, 2), gapID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, svc.processGapChunk(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessGapChunk_NoOpWhenNoGapsOpen(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)

	mock.ExpectQuery("SELECT id, from_date, to_date FROM gap_range ORDER BY").
		WillReturnError(pgx.ErrNoRows)

	require.NoError(t, svc.processGapChunk(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessDay_AlreadyIngestedIsNoOpWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	svc := newService(mock, &fakeIndexFetcher{}, filestore.New(t.TempDir()), nil, testSyncConfig(), time.UTC)
	date := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT EXISTS").WithArgs(date).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, svc.processDay(context.Background(), date))
	require.NoError(t, mock.ExpectationsWereMet())
}
