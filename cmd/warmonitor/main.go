package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/backyonatan-alt/warmonitor/backend/internal/backoff"
	"github.com/backyonatan-alt/warmonitor/backend/internal/cache"
	"github.com/backyonatan-alt/warmonitor/backend/internal/config"
	"github.com/backyonatan-alt/warmonitor/backend/internal/fetcher"
	"github.com/backyonatan-alt/warmonitor/backend/internal/history"
	"github.com/backyonatan-alt/warmonitor/backend/internal/observability"
	"github.com/backyonatan-alt/warmonitor/backend/internal/pipeline"
	"github.com/backyonatan-alt/warmonitor/backend/internal/scheduler"
	"github.com/backyonatan-alt/warmonitor/backend/internal/server"
	"github.com/backyonatan-alt/warmonitor/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg))

	st, closeDB := openStore(cfg)
	defer closeDB()

	var collector *observability.Collector
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector, err = observability.NewCollector(reg)
		if err != nil {
			slog.Error("failed to register metrics", "error", err)
			os.Exit(1)
		}
		metricsHandler = collector.Handler()
	}

	shutdownTracing, err := observability.InitTracing(context.Background(), observability.TracingConfig{
		Enabled:     cfg.TracingEnabled,
		Exporter:    cfg.TracingExporter,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRate,
	})
	if err != nil {
		slog.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	c := cache.New()
	f := fetcher.New(cfg, collector)
	agg := history.NewAggregator(f, cfg.HistoryConcurrency)
	p := pipeline.New(f, agg, c, st, collector)

	sched := scheduler.New(p, scheduler.Options{
		FastInterval: cfg.FastInterval,
		SlowInterval: cfg.SlowInterval,
		Timeout:      cfg.CycleTimeout,
		Policy: backoff.Policy{
			Margin:            cfg.BackoffMargin,
			DefaultRetryAfter: cfg.DefaultRetryAfter,
		},
		Clock:   backoff.System(),
		Status:  c,
		Metrics: collector,
	})
	go sched.Start(context.Background())

	srv := server.New(cfg, c, st, sched, metricsHandler)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	slog.Info("shutdown complete")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore connects to Postgres when DATABASE_URL is set. Without it the
// archive is disabled and the service runs from memory only.
func openStore(cfg *config.Config) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set, snapshot archive disabled")
		return store.Nop{}, func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	pg := store.NewPostgres(db)
	if err := pg.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pg, func() { db.Close() }
}
