// Package notify implements the Notifier service: shifted-window candidate
// selection, rate-limited publishing, and idempotent send tracking.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/models"
	"github.com/chungachanga/crhoy-pipeline/internal/sched"
)

// dbPool is the subset of *pgxpool.Pool the notifier depends on, narrowed
// to an interface (also satisfied by pgxmock's pool) for unit testing
// without a live Postgres.
type dbPool interface {
	models.Queryer
}

// Service runs the notifier's per-trigger cycle.
type Service struct {
	pool   dbPool
	sender Sender
	cfg    config.NotifyConfig
	loc    *time.Location

	notifierArticles *models.NotifierArticleStore
	summaries        *models.SummaryStore
	sentLog          *models.SentLogStore

	triggerMinutes []int
}

// New creates a Service.
func New(pool *pgxpool.Pool, sender Sender, cfg config.NotifyConfig, loc *time.Location) *Service {
	return newService(pool, sender, cfg, loc)
}

func newService(pool dbPool, sender Sender, cfg config.NotifyConfig, loc *time.Location) *Service {
	return &Service{
		pool:             pool,
		sender:           sender,
		cfg:              cfg,
		loc:              loc,
		notifierArticles: models.NewNotifierArticleStore(),
		summaries:        models.NewSummaryStore(),
		sentLog:          models.NewSentLogStore(),
		triggerMinutes:   TriggerMinutes(cfg.TriggerTimes),
	}
}

// Run executes the refined-sleep main loop, waking at each configured
// trigger time and sleeping in MaxInactivityInterval-bounded quanta in
// between.
func (s *Service) Run(ctx context.Context, shutdown *sched.Shutdown) {
	for {
		if shutdown.Requested() || ctx.Err() != nil {
			return
		}

		if err := s.RunCycle(ctx); err != nil {
			slog.Error("notifier: cycle failed", "err", err)
		}

		next := s.nextTrigger(time.Now().In(s.loc))
		quantum := s.cfg.MaxInactivityInterval
		if quantum <= 0 {
			quantum = sched.DefaultQuantum
		}
		if !sched.SleepUntil(ctx, shutdown, next, quantum) {
			return
		}
	}
}

// nextTrigger returns the first configured trigger strictly after now,
// scanning forward up to two calendar days.
func (s *Service) nextTrigger(now time.Time) time.Time {
	if len(s.triggerMinutes) == 0 {
		return now.Add(s.cfg.MaxInactivityInterval)
	}
	for _, dayOffset := range []int{0, 1, 2} {
		date := now.AddDate(0, 0, dayOffset)
		for _, m := range s.triggerMinutes {
			t := triggerOnDate(date, m, s.loc)
			if t.After(now) {
				return t
			}
		}
	}
	return now.Add(24 * time.Hour)
}

// RunCycle executes one notifier cycle: compute the shifted window, prune
// stale SentLog rows, select unsent candidates in ascending publication
// order, and send each with a delay between sends.
func (s *Service) RunCycle(ctx context.Context) error {
	now := time.Now().In(s.loc)
	previous, current := PreviousAndCurrentTrigger(now, s.triggerMinutes, s.loc)
	if current.IsZero() {
		return nil
	}
	from, to := Window(previous, current, s.cfg.WindowShift)

	cutoff := now.Add(-s.cfg.SentLogRetention)
	if _, err := s.sentLog.PruneOlderThan(ctx, s.pool, cutoff); err != nil {
		return fmt.Errorf("notifier: prune sent log: %w", err)
	}

	candidates, err := s.notifierArticles.CandidatesInWindow(ctx, s.pool, from, to)
	if err != nil {
		return fmt.Errorf("notifier: select candidates: %w", err)
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.sendOne(ctx, c); err != nil {
			slog.Error("notifier: send failed", "article_id", c.ArticleID, "err", err)
			continue
		}
		if s.cfg.MessageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.cfg.MessageDelay):
			}
		}
	}
	return nil
}

// sendOne loads the candidate's summary, formats the message, sends it
// with retries, and records SentLog immediately after a successful send.
// The send-then-record order admits a small duplication window on crash;
// the SentLog presence check on the next cycle bounds it.
func (s *Service) sendOne(ctx context.Context, c models.NotifierArticle) error {
	summaries, err := s.summaries.ByArticle(ctx, s.pool, c.ArticleID)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	lang := s.cfg.SummaryLanguage
	if lang == "" {
		lang = "en"
	}
	var text string
	for _, sm := range summaries {
		if sm.Language == lang {
			data, err := os.ReadFile(sm.FilePath)
			if err != nil {
				return fmt.Errorf("read summary file %s: %w", sm.FilePath, err)
			}
			text = string(data)
			break
		}
	}
	if text == "" {
		return fmt.Errorf("no summary found in language %q for article %s", lang, c.ArticleID)
	}

	url := s.articleURL(ctx, c.ArticleID)

	message := FormatMessage(text, c.PublishedAt, s.loc, url, c.SmartCategoryName)

	if err := s.sendWithRetries(ctx, message); err != nil {
		return fmt.Errorf("send after retries: %w", err)
	}

	if err := s.sentLog.Insert(ctx, s.pool, c.ArticleID, c.PublishedAt); err != nil {
		return fmt.Errorf("record sent log: %w", err)
	}
	slog.Info("notifier: article sent", "article_id", c.ArticleID)
	return nil
}

// articleURL looks up the canonical URL for an article to embed in the
// published message.
func (s *Service) articleURL(ctx context.Context, articleID string) string {
	var url string
	err := s.pool.QueryRow(ctx, `SELECT url FROM articles WHERE id = $1`, articleID).Scan(&url)
	if err != nil {
		return ""
	}
	return url
}

// sendWithRetries retries a transient send failure up to MaxRetries times.
// Exhausting retries is not fatal: the caller logs and leaves the article
// unsent for the next trigger to retry, as long as its timestamp is still
// in-window.
func (s *Service) sendWithRetries(ctx context.Context, message string) error {
	var lastErr error
	attempts := s.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
		if err := s.sender.Send(ctx, message); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

