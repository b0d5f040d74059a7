// Command searcher serves the market location search API.
//
// It loads the geocoded market records (JSON files or a SQL table), builds
// the location index in memory and answers lookups over HTTP. Redis caching
// of /markets responses, Kafka analytics publishing and Google geocoding are
// enabled through configuration.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion/loader"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/geocoder"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Market-Location-Search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
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
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, closeSource, err := source.Open(ctx, cfg.Data)
	if err != nil {
		slog.Error("failed to open record source", "error", err)
		os.Exit(1)
	}
	loaded, err := loader.New(src).Load(ctx)
	closeSource()
	if err != nil {
		slog.Error("failed to load records", "error", err)
		os.Exit(1)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, nil)
		defer shutdownMetrics(context.Background())
	}

	builder := tokenizer.Default()
	idx := index.Build(loaded.Records, builder)
	slog.Info("location index built",
		"records", idx.RecordCount(),
		"tokens", idx.TokenCount(),
		"data_source", loaded.DataSource,
	)

	engineOpts := []executor.Option{executor.WithMetrics(m)}
	geo := geocoder.New(cfg.Geocoder, builder, geocoder.WithMetrics(m))
	if geo.Enabled() {
		engineOpts = append(engineOpts, executor.WithResolver(geo))
		slog.Info("geocoder enabled", "timeout", cfg.Geocoder.Timeout)
	} else {
		slog.Info("geocoder disabled, no api key configured")
	}
	engine := executor.New(idx, engineOpts...)

	handlerOpts := []handler.Option{}

	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, response caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			handlerOpts = append(handlerOpts, handler.WithCache(cache.New(redisClient, cfg.Redis.CacheTTL, m)))
			slog.Info("response cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var publisher analytics.Publisher
	var producer *kafka.Producer
	var batch *collector.BatchCollector
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		batch = collector.NewBatchCollector(producer,
			collector.WithBatchSize(100),
			collector.WithFlushInterval(2*time.Second),
		)
		batch.Start(ctx)
		defer batch.Close()
		publisher = batch
		slog.Info("analytics publishing enabled", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}
	handlerOpts = append(handlerOpts, handler.WithCollector(analytics.NewCollector(aggregator, publisher)))

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if idx.RecordCount() == 0 {
			return health.ComponentHealth{Status: health.StatusDown, Message: "no records"}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d records, %d tokens", idx.RecordCount(), idx.TokenCount())}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
	} else {
		checker.Register("redis", health.Static(health.StatusUp, "disabled"))
	}
	if producer != nil {
		checker.Register("kafka", health.PingCheck(producer.Ping, false))
		checker.Register("analytics-publisher", func(ctx context.Context) health.ComponentHealth {
			st := batch.Stats()
			msg := fmt.Sprintf("published=%d pending=%d dropped=%d", st.Published, st.Pending, st.Dropped)
			if st.FailedFlushes > 0 && st.Pending > 0 {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: msg}
			}
			return health.ComponentHealth{Status: health.StatusUp, Message: msg}
		})
	}
	checker.Register("geocoder", func(ctx context.Context) health.ComponentHealth {
		if !geo.Enabled() {
			return health.ComponentHealth{Status: health.StatusUp, Message: "disabled"}
		}
		if state := geo.BreakerState(); state != resilience.StateClosed {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "circuit " + state.String()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var limiter *ratelimit.Limiter
	if cfg.Limit.Enabled {
		limiter = ratelimit.New(cfg.Limit.Requests, cfg.Limit.Window)
		limiter.StartCleanup(ctx, 5*time.Minute)
		slog.Info("rate limiting enabled", "requests", cfg.Limit.Requests, "window", cfg.Limit.Window)
	}

	h := handler.New(engine, cfg.Search, loaded.DataSource, handlerOpts...)
	router := handler.NewRouter(h, handler.RouterConfig{
		Checker:   checker,
		Analytics: analytics.NewHandler(aggregator),
		Metrics:   m,
		Limiter:   limiter,
		CORS: middleware.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"*"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           600,
		},
		Timeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}
