// Command analytics runs the standalone lookup analytics service.
//
// It consumes location lookup events from Kafka, aggregates them in memory
// (lookup volume, latency percentiles, mode counts, top and zero-result
// locations) and serves them at GET /api/v1/analytics. With postgres enabled
// it also snapshots the aggregate periodically and on shutdown.
//
// Usage:
//
//	PW_SERVER_PORT=8084 go run ./cmd/analytics [-config configs/development.yaml] [-from-beginning]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/postgres"
)

// maxConsumerLag is the backlog above which the service reports degraded.
const maxConsumerLag = 10000

func main() {
	configPath := flag.String("config", "", "path to config file")
	fromBeginning := flag.Bool("from-beginning", false, "replay the topic from its first offset")
	snapshotEvery := flag.Duration("snapshot-interval", time.Minute, "how often to persist a snapshot")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to read .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	var opts []kafka.ConsumerOption
	if *fromBeginning {
		opts = append(opts, kafka.FromBeginning())
	}
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg), opts...)

	go func() {
		if err := agg.Start(ctx, consumer); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		stats := consumer.Stats()
		msg := fmt.Sprintf("processed=%d failed=%d lag=%d", stats.Processed, stats.Failed, stats.Lag)
		if stats.Lag > maxConsumerLag {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: msg}
	})

	var handlerOpts []analytics.HandlerOption
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx, aggregator.Schema); err != nil {
			slog.Error("failed to migrate snapshot table", "error", err)
			os.Exit(1)
		}
		store := aggregator.NewStore(db)
		if latest, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("failed to read latest snapshot", "error", err)
		} else if latest != nil {
			slog.Info("previous snapshot found",
				"captured_at", latest.CapturedAt,
				"total_lookups", latest.Stats.TotalLookups,
			)
		}
		store.StartPeriodicSave(ctx, agg, *snapshotEvery)
		handlerOpts = append(handlerOpts, analytics.WithHistory(store))
		checker.Register("postgres", health.PingCheck(db.Ping, true))
	}

	mux := http.NewServeMux()
	statsHandler := analytics.NewHandler(agg, handlerOpts...)
	mux.HandleFunc("GET /api/v1/analytics", statsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", statsHandler.History)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
