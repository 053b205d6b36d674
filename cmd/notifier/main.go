// Command notifier runs the Notifier service: it watches for smart
// categorized articles crossing a trigger boundary and publishes them to
// the configured messaging channel.
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

	"github.com/chungachanga/crhoy-pipeline/internal/config"
	"github.com/chungachanga/crhoy-pipeline/internal/dbx"
	"github.com/chungachanga/crhoy-pipeline/internal/notify"
	"github.com/chungachanga/crhoy-pipeline/internal/sched"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	slog.Info("notifier: starting")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := dbx.Connect(ctx, cfg.DB)
	if err != nil {
		slog.Error("notifier: database connection failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	sender, err := notify.NewTelegramSender(cfg.Notify.BotToken, cfg.Notify.ChannelID)
	if err != nil {
		slog.Error("notifier: telegram sender creation failed", "err", err)
		os.Exit(1)
	}

	loc := cfg.Data.Location()
	svc := notify.New(pool, sender, cfg.Notify, loc)

	var shutdown sched.Shutdown

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		svc.Run(ctx, &shutdown)
		slog.Info("notifier: main loop stopped")
	}()

	srv := newHealthServer(cfg.Health.Addr)
	go func() {
		slog.Info("notifier: health server starting", "addr", cfg.Health.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("notifier: health server error", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("notifier: received shutdown signal", "signal", sig.String())

	shutdown.Request()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("notifier: health server shutdown error", "err", err)
	}

	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		slog.Warn("notifier: main loop did not stop before shutdown timeout")
	}

	slog.Info("notifier: shutdown complete")
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
