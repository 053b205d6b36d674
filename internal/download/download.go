// Package download implements the Downloader service: prioritized article
// selection, HTML fetch + markdown conversion, and the LLM analysis stage.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chungachanga/crhoy-pipeline/internal/archive"
	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
	"github.com/chungachanga/crhoy-pipeline/internal/llm"
	"github.com/chungachanga/crhoy-pipeline/internal/models"
	"github.com/chungachanga/crhoy-pipeline/internal/notify"
	"github.com/chungachanga/crhoy-pipeline/internal/sched"
	"github.com/chungachanga/crhoy-pipeline/internal/sourceapi"
)

// sourceFetcher is the subset of *sourceapi.Client the downloader depends
// on, narrowed to an interface so tests can substitute a stub instead of
// hitting the network.
type sourceFetcher interface {
	Probe(ctx context.Context) error
	FetchAndConvert(ctx context.Context, articleURL string, conv sourceapi.HTMLToMarkdown) (title, markdown string, err error)
}

// analyzer is the subset of *llm.Pipeline the downloader depends on,
// narrowed to an interface so tests can substitute a stub instead of
// invoking a real LLM engine.
type analyzer interface {
	Categorize(ctx context.Context, articleMarkdown string, existing []models.SmartCategory, sessionID string) (llm.CategorizationResult, error)
	Summarize(ctx context.Context, articleMarkdown string, languages []string, sessionID string) (llm.SummarizationResult, error)
}

// dbPool is the subset of *pgxpool.Pool the downloader depends on, narrowed
// to an interface (also satisfied by pgxmock's pool) so the service can be
// unit tested without a live Postgres.
type dbPool interface {
	models.Queryer
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service runs the downloader's main cycle.
type Service struct {
	pool     dbPool
	source   sourceFetcher
	conv     sourceapi.HTMLToMarkdown
	files    *filestore.Store
	archive  *archive.Client
	pipeline analyzer
	cfg      config.DownloadConfig
	llmCfg   config.LLMConfig
	notify   config.NotifyConfig
	loc      *time.Location

	articles   *models.ArticleStore
	smartCat   *models.SmartCategoryStore
	summaries  *models.SummaryStore
	notifierAr *models.NotifierArticleStore
}

// New creates a Service. mirror is the optional S3-compatible archive
// client; pass a Client with an empty Endpoint to run without off-host
// mirroring.
func New(pool *pgxpool.Pool, source *sourceapi.Client, conv sourceapi.HTMLToMarkdown, files *filestore.Store, mirror *archive.Client, pipeline *llm.Pipeline, cfg config.DownloadConfig, llmCfg config.LLMConfig, notify config.NotifyConfig, loc *time.Location) *Service {
	return newService(pool, source, conv, files, mirror, pipeline, cfg, llmCfg, notify, loc)
}

func newService(pool dbPool, source sourceFetcher, conv sourceapi.HTMLToMarkdown, files *filestore.Store, mirror *archive.Client, pipeline analyzer, cfg config.DownloadConfig, llmCfg config.LLMConfig, notify config.NotifyConfig, loc *time.Location) *Service {
	return &Service{
		pool:       pool,
		source:     source,
		conv:       conv,
		files:      files,
		archive:    mirror,
		pipeline:   pipeline,
		cfg:        cfg,
		llmCfg:     llmCfg,
		notify:     notify,
		loc:        loc,
		articles:   models.NewArticleStore(),
		smartCat:   models.NewSmartCategoryStore(),
		summaries:  models.NewSummaryStore(),
		notifierAr: models.NewNotifierArticleStore(),
	}
}

// Run executes the refined-sleep main loop until shutdown is requested.
func (s *Service) Run(ctx context.Context, shutdown *sched.Shutdown) {
	for {
		if shutdown.Requested() || ctx.Err() != nil {
			return
		}
		if err := s.RunCycle(ctx); err != nil {
			slog.Error("downloader: cycle failed", "err", err)
		}
		if !sched.SleepFor(ctx, shutdown, s.cfg.DownloadInterval, sched.DefaultQuantum) {
			return
		}
	}
}

// RunCycle selects up to DownloadsChunkSize pending articles by priority
// and processes each in its own transaction sequence.
func (s *Service) RunCycle(ctx context.Context) error {
	if err := s.source.Probe(ctx); err != nil {
		slog.Warn("downloader: source unreachable, skipping cycle", "err", err)
		return nil
	}

	windowFrom, windowTo := currentNotificationWindow(time.Now().In(s.loc), s.notify)

	candidates, err := s.articles.PendingByPriority(ctx, s.pool, windowFrom, windowTo, s.cfg.DownloadsChunkSize)
	if err != nil {
		return fmt.Errorf("downloader: select candidates: %w", err)
	}

	for _, a := range candidates {
		if err := s.processArticle(ctx, a); err != nil {
			slog.Error("downloader: process article failed", "article_id", a.ID, "err", err)
		}
	}
	return nil
}

// processArticle runs the per-article pipeline, each step committing its
// own transaction so a successful download is never lost to a later LLM
// failure.
func (s *Service) processArticle(ctx context.Context, a models.Article) error {
	if s.isIgnoredCategory(a.CategoryPaths) {
		return s.markSkipped(ctx, a.ID)
	}

	title, markdown, err := s.source.FetchAndConvert(ctx, a.URL, s.conv)
	if err != nil {
		slog.Warn("downloader: fetch failed", "article_id", a.ID, "err", err)
		return s.markFailed(ctx, a.ID, err.Error())
	}

	contentPath := s.files.ArticlePath(a.PublishedAt, a.ID)
	if err := s.files.WriteAtomic(contentPath, []byte(markdown)); err != nil {
		return fmt.Errorf("write article markdown: %w", err)
	}
	if s.archive != nil {
		s.archive.PutSummary(ctx, fmt.Sprintf("%s/%s-%s.md", a.PublishedAt.Format("2006-01-02"), a.PublishedAt.Format("15-04"), a.ID), []byte(markdown))
	}
	if err := s.articles.MarkProcessed(ctx, s.pool, a.ID, title, contentPath); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	slog.Info("downloader: article downloaded", "article_id", a.ID)

	if err := s.analyze(ctx, a, markdown); err != nil {
		slog.Warn("downloader: analysis failed", "article_id", a.ID, "err", err)
	}
	return nil
}

func (s *Service) isIgnoredCategory(paths []string) bool {
	ignore := make(map[string]bool, len(s.cfg.IgnoreCategories))
	for _, c := range s.cfg.IgnoreCategories {
		ignore[c] = true
	}
	for _, p := range paths {
		if ignore[p] {
			return true
		}
	}
	return false
}

func (s *Service) markSkipped(ctx context.Context, id string) error {
	if err := s.articles.MarkSkipped(ctx, s.pool, id); err != nil {
		return err
	}
	slog.Info("downloader: article skipped (ignored category)", "article_id", id)
	return nil
}

func (s *Service) markFailed(ctx context.Context, id, reason string) error {
	if err := s.articles.MarkFailed(ctx, s.pool, id, reason); err != nil {
		return err
	}
	slog.Info("downloader: article failed", "article_id", id, "reason", reason)
	return nil
}

// analyze runs categorization and summarization in a transaction separate
// from the download itself. Articles older than the analysis age horizon
// are left downloaded but absent from notifier_article.
func (s *Service) analyze(ctx context.Context, a models.Article, markdown string) error {
	if !force(ctx) && time.Since(a.PublishedAt) > s.cfg.AnalysisAgeHorizon {
		slog.Info("downloader: analysis skipped (age horizon)", "article_id", a.ID)
		return nil
	}

	existing, err := s.smartCat.All(ctx, s.pool)
	if err != nil {
		return fmt.Errorf("load smart categories: %w", err)
	}

	result, err := s.pipeline.Categorize(ctx, markdown, existing, a.ID)
	if err != nil {
		return s.recordAnalysisFailure(ctx, a)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin analysis tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if result.Skip {
		if err := s.notifierAr.Insert(ctx, tx, models.NotifierArticle{
			ArticleID: a.ID, PublishedAt: a.PublishedAt, Relation: result.Relation,
			SmartCategoryName: models.UnknownSmartCategory, Skip: true,
		}); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		slog.Info("downloader: article not applicable", "article_id", a.ID)
		return nil
	}

	var chosen *models.SmartCategory
	if result.IsNewCategory {
		admitted, err := s.smartCat.Admit(ctx, tx, result.SmartCategoryName, result.SmartCategoryDesc)
		if err != nil {
			return err
		}
		chosen = &admitted
	} else {
		for _, c := range existing {
			if c.Name == result.SmartCategoryName {
				c := c
				chosen = &c
				break
			}
		}
		if chosen == nil {
			return fmt.Errorf("chosen category %q not found among existing", result.SmartCategoryName)
		}
	}

	if err := s.notifierAr.Insert(ctx, tx, models.NotifierArticle{
		ArticleID: a.ID, PublishedAt: a.PublishedAt, Relation: result.Relation,
		SmartCategoryName: chosen.Name,
	}); err != nil {
		return err
	}

	if !chosen.Ignore {
		if err := s.summarizeAndStore(ctx, tx, a, markdown); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	slog.Info("downloader: article analyzed", "article_id", a.ID, "smart_category", chosen.Name, "relation", result.Relation)
	return nil
}

func (s *Service) summarizeAndStore(ctx context.Context, q models.Queryer, a models.Article, markdown string) error {
	result, err := s.pipeline.Summarize(ctx, markdown, onlyNonEnglish(s.llmCfg.TranslationLanguages), a.ID)
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}

	enPath := s.files.SummaryPath(a.PublishedAt, a.ID, "en")
	if err := s.files.WriteAtomic(enPath, []byte(result.English)); err != nil {
		return err
	}
	if err := s.summaries.Insert(ctx, q, models.Summary{ArticleID: a.ID, Language: "en", FilePath: enPath}); err != nil {
		return err
	}
	if s.archive != nil {
		s.archive.PutSummary(ctx, fmt.Sprintf("%s/%s-%s-sum.en.txt", a.PublishedAt.Format("2006-01-02"), a.PublishedAt.Format("15-04"), a.ID), []byte(result.English))
	}

	for lang, text := range result.Translations {
		path := s.files.SummaryPath(a.PublishedAt, a.ID, lang)
		if err := s.files.WriteAtomic(path, []byte(text)); err != nil {
			return err
		}
		if err := s.summaries.Insert(ctx, q, models.Summary{ArticleID: a.ID, Language: lang, FilePath: path}); err != nil {
			return err
		}
		if s.archive != nil {
			s.archive.PutSummary(ctx, fmt.Sprintf("%s/%s-%s-sum.%s.txt", a.PublishedAt.Format("2006-01-02"), a.PublishedAt.Format("15-04"), a.ID, lang), []byte(text))
		}
	}
	return nil
}

// recordAnalysisFailure records a NotifierArticle row with the fallback
// __unknown__ category when the LLM pipeline exhausts its retries. The
// download itself stays recorded.
func (s *Service) recordAnalysisFailure(ctx context.Context, a models.Article) error {
	err := s.notifierAr.Insert(ctx, s.pool, models.NotifierArticle{
		ArticleID: a.ID, PublishedAt: a.PublishedAt, Relation: models.RelationNotApplicable,
		SmartCategoryName: models.UnknownSmartCategory, Failed: true,
	})
	if err != nil {
		return fmt.Errorf("record analysis failure: %w", err)
	}
	return nil
}

func onlyNonEnglish(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if l != "" && l != "en" {
			out = append(out, l)
		}
	}
	return out
}

type forceKey struct{}

// WithForce returns a context flagging that age gating should be bypassed
// for this call, used by operator tooling to reanalyze old articles on
// demand.
func WithForce(ctx context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, true)
}

func force(ctx context.Context) bool {
	v, _ := ctx.Value(forceKey{}).(bool)
	return v
}

// currentNotificationWindow reuses the notifier's own shifted-window
// arithmetic so the downloader's freshness tier matches exactly what the
// notifier will later use to pick candidates.
func currentNotificationWindow(now time.Time, notifyCfg config.NotifyConfig) (from, to time.Time) {
	minutes := notify.TriggerMinutes(notifyCfg.TriggerTimes)
	previous, current := notify.PreviousAndCurrentTrigger(now, minutes, now.Location())
	return notify.Window(previous, current, notifyCfg.WindowShift)
}
