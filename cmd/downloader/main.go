// Command downloader runs the Downloader service: prioritized article
// selection, HTML fetch + markdown conversion, and the LLM categorization
// and summarization pipeline.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chungachanga/crhoy-pipeline/internal/archive"
	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/dbx"
	"github.com/chungachanga/crhoy-pipeline/internal/download"
	"github.com/chungachanga/crhoy-pipeline/internal/filestore"
	"github.com/chungachanga/crhoy-pipeline/internal/llm"
	"github.com/chungachanga/crhoy-pipeline/internal/sched"
	"github.com/chungachanga/crhoy-pipeline/internal/sourceapi"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("downloader: starting")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := dbx.Connect(ctx, cfg.DB)
	if err != nil {
		slog.Error("downloader: database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	mirror, err := archive.New(ctx, cfg.S3)
	if err != nil {
		slog.Error("downloader: archive client creation failed", "err", err)
		os.Exit(1)
	}

	if err := download.SeedSmartCategories(ctx, pool, cfg.Down.SmartCategorySeedPath); err != nil {
		slog.Warn("downloader: smart category seed skipped", "err", err)
	}

	files := filestore.New(cfg.Data.DataDir)
	source := sourceapi.New(cfg.Data.SourceBaseURL, cfg.Down.RequestTimeout, cfg.Down.MaxRetries)
	conv := sourceapi.NewDefaultHTMLToMarkdown("", "")
	loc := cfg.Data.Location()

	engine := llm.NewHTTPEngine(cfg.LLM.EngineBaseURL, cfg.LLM.APIKey, cfg.Down.RequestTimeout)
	limiters := llm.NewLimiterRegistry()
	pipeline := llm.NewPipeline(cfg.LLM, engine, limiters, files)

	svc := download.New(pool, source, conv, files, mirror, pipeline, cfg.Down, cfg.LLM, cfg.Notify, loc)

	var shutdown sched.Shutdown

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		svc.Run(ctx, &shutdown)
		slog.Info("downloader: main loop stopped")
	}()

	srv := newHealthServer(cfg.Health.Addr)
	go func() {
		slog.Info("downloader: health server starting", "addr", cfg.Health.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("downloader: health server error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("downloader: received shutdown signal", "signal", sig.String())

	shutdown.Request()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("downloader: health server shutdown error", "err", err)
	}

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		slog.Warn("downloader: main loop did not stop before shutdown timeout")
	}

	slog.Info("downloader: shutdown complete")
}

func newHealthServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}}))
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
}
