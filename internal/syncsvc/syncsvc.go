// Package syncsvc implements the Synchronizer service: it keeps the
// database's DailyIndex coverage complete from a configured first day up
// to today, opening and backfilling GapRanges as needed.
package syncsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chungachanga/crhoy-pipeline/internal/archive"
	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
	"github.com/chungachanga/crhoy-pipeline/internal/models"
	"github.com/chungachanga/crhoy-pipeline/internal/sched"
	"github.com/chungachanga/crhoy-pipeline/internal/sourceapi"
)

// dbPool is the subset of *pgxpool.Pool the synchronizer depends on,
// narrowed to an interface (also satisfied by pgxmock's pool) so the
// service can be unit tested without a live Postgres.
type dbPool interface {
	models.Queryer
	Begin(ctx context.Context) (pgx.Tx, error)
}

// indexFetcher is the subset of *sourceapi.Client the synchronizer depends
// on, narrowed to an interface so tests can substitute a stub instead of
// hitting the network.
type indexFetcher interface {
	Probe(ctx context.Context) error
	DailyIndex(ctx context.Context, date time.Time) ([]sourceapi.IndexEntry, error)
}

// Service runs the synchronizer's main cycle.
type Service struct {
	pool    dbPool
	source  indexFetcher
	files   *filestore.Store
	archive *archive.Client
	cfg     config.SyncConfig
	loc     *time.Location

	dailyIndex *models.DailyIndexStore
	gapRange   *models.GapRangeStore
	catalog    *models.CategoriesCatalogStore
	articles   *models.ArticleStore
	artCat     *models.ArticleCategoryStore
}

// New creates a Service. mirror is the optional S3-compatible archive
// client; pass a Client with an empty Endpoint to run without off-host
// mirroring.
func New(pool *pgxpool.Pool, source *sourceapi.Client, files *filestore.Store, mirror *archive.Client, cfg config.SyncConfig, loc *time.Location) *Service {
	return newService(pool, source, files, mirror, cfg, loc)
}

func newService(pool dbPool, source indexFetcher, files *filestore.Store, mirror *archive.Client, cfg config.SyncConfig, loc *time.Location) *Service {
	return &Service{
		pool:       pool,
		source:     source,
		files:      files,
		archive:    mirror,
		cfg:        cfg,
		loc:        loc,
		dailyIndex: models.NewDailyIndexStore(),
		gapRange:   models.NewGapRangeStore(),
		catalog:    models.NewCategoriesCatalogStore(),
		articles:   models.NewArticleStore(),
		artCat:     models.NewArticleCategoryStore(),
	}
}

// Run executes the refined-sleep main loop until shutdown is requested.
func (s *Service) Run(ctx context.Context, shutdown *sched.Shutdown) {
	for {
		if shutdown.Requested() || ctx.Err() != nil {
			return
		}
		if err := s.RunCycle(ctx); err != nil {
			slog.Error("synchronizer: cycle failed", "err", err)
		}
		if !sched.SleepFor(ctx, shutdown, s.cfg.CheckUpdatesInterval, sched.DefaultQuantum) {
			return
		}
	}
}

// RunCycle executes one synchronizer cycle: day-switch detection, today's
// ingestion, and one gap chunk.
func (s *Service) RunCycle(ctx context.Context) error {
	if err := s.source.Probe(ctx); err != nil {
		slog.Warn("synchronizer: source unreachable, skipping cycle", "err", err)
		return nil
	}

	today := nowInLocation(s.loc)

	if err := s.detectDaySwitch(ctx, today); err != nil {
		return fmt.Errorf("synchronizer: detect day switch: %w", err)
	}

	if err := s.processDay(ctx, today); err != nil {
		slog.Error("synchronizer: process today failed", "date", today.Format("2006-01-02"), "err", err)
	}

	if err := s.processGapChunk(ctx); err != nil {
		slog.Error("synchronizer: process gap chunk failed", "err", err)
	}

	return nil
}

// detectDaySwitch opens a GapRange covering [last+1, today) when today has
// no index yet and the last processed date lies in the past. On a fresh
// database with no index at all, coverage starts at the configured first
// day, so the gap is [first_day, today).
func (s *Service) detectDaySwitch(ctx context.Context, today time.Time) error {
	last, err := s.dailyIndex.LastDate(ctx, s.pool)
	if err != nil {
		return err
	}

	exists, err := s.dailyIndex.Exists(ctx, s.pool, today)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	gapStart := s.cfg.FirstDay
	if !last.IsZero() {
		gapStart = last.AddDate(0, 0, 1)
	}
	if gapStart.IsZero() || !gapStart.Before(today) {
		return nil
	}

	slog.Info("synchronizer: day switch detected, opening gap", "from", gapStart.Format("2006-01-02"), "to", today.Format("2006-01-02"))
	return s.gapRange.Open(ctx, s.pool, gapStart, today)
}

// processDay fetches, persists, and ingests one day's index. Re-running
// over an already-ingested day is a no-op write.
func (s *Service) processDay(ctx context.Context, date time.Time) error {
	already, err := s.dailyIndex.Exists(ctx, s.pool, date)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	entries, err := s.source.DailyIndex(ctx, date)
	if err != nil {
		return fmt.Errorf("fetch index: %w", err)
	}

	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	path := s.files.IndexPath(date)
	if err := s.files.WriteAtomic(path, raw); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if s.archive != nil {
		s.archive.PutIndex(ctx, date.Format("2006/01/02")+".json", raw)
	}

	if err := s.ingestDay(ctx, date, path, entries); err != nil {
		return fmt.Errorf("ingest day: %w", err)
	}

	slog.Info("synchronizer: ingested day", "date", date.Format("2006-01-02"), "articles", len(entries))
	return nil
}

// ingestDay performs the single-day ingestion transaction: new catalog
// entries, new Article rows, ArticleCategory links, and the DailyIndex
// row, all-or-nothing.
func (s *Service) ingestDay(ctx context.Context, date time.Time, indexPath string, entries []sourceapi.IndexEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	pathSet := map[string]bool{}
	var allPaths []string
	for _, e := range entries {
		for _, p := range e.Categories {
			if !pathSet[p] {
				pathSet[p] = true
				allPaths = append(allPaths, p)
			}
		}
	}

	newPaths, err := s.catalog.NewPaths(ctx, tx, allPaths)
	if err != nil {
		return err
	}
	if err := s.catalog.Insert(ctx, tx, newPaths); err != nil {
		return err
	}

	for _, e := range entries {
		if err := s.articles.Insert(ctx, tx, models.Article{
			ID:            e.ID,
			URL:           e.URL,
			Title:         "",
			PublishedAt:   e.PublishedAt,
			CategoryPaths: e.Categories,
			DiscoveredAt:  time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := s.artCat.InsertAll(ctx, tx, e.ID, e.Categories); err != nil {
			return err
		}
	}

	if err := s.dailyIndex.Insert(ctx, tx, date, indexPath); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// processGapChunk processes up to DaysChunkSize dates from the earliest
// GapRange, oldest first, shrinking or deleting the range as dates are
// covered.
func (s *Service) processGapChunk(ctx context.Context) error {
	gap, err := s.gapRange.Earliest(ctx, s.pool)
	if err != nil {
		return err
	}
	if gap == nil {
		return nil
	}

	chunkSize := s.cfg.DaysChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}

	cursor := gap.From
	processed := 0
	for processed < chunkSize && cursor.Before(gap.To) {
		if err := s.processDay(ctx, cursor); err != nil {
			slog.Error("synchronizer: gap day failed", "date", cursor.Format("2006-01-02"), "err", err)
			break
		}
		cursor = cursor.AddDate(0, 0, 1)
		processed++
		if err := s.gapRange.ShrinkFrom(ctx, s.pool, gap.ID, cursor); err != nil {
			return err
		}
	}
	return nil
}

func nowInLocation(loc *time.Location) time.Time {
	now := time.Now().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
