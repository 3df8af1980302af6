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

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/searcher/library"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searcher", "port", cfg.Server.Port, "public_dir", cfg.Catalog.PublicDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	lib := library.New(cfg.Catalog, cfg.Search.MaxTranscript)

	checker := health.NewChecker()
	checker.Register("catalog", func(ctx context.Context) health.ComponentHealth {
		snap, err := lib.Snapshot()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d entries, version %s", len(snap.Catalog.Entries), snap.Version),
		}
	})

	var facetCache *cache.FacetCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, filter caching disabled", "error", err)
			checker.Register("redis", health.Static(health.StatusDegraded, err.Error()))
		} else {
			defer redisClient.Close()
			facetCache = cache.New(redisClient, cfg.Redis, m)
			checker.Register("redis", health.PingCheck(redisClient.Ping, false))
			slog.Info("filter cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	} else {
		checker.Register("redis", health.Static(health.StatusUp, "disabled"))
	}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 10000, 100, 2*time.Second)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("publishing filter events", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	h := handler.New(lib, facetCache, collector, m, cfg.Search)
	if _, err := h.ReloadCatalog(ctx, "startup"); err != nil {
		slog.Warn("catalog not loaded at startup, serving 503 until reload", "error", err)
	}

	if cfg.Kafka.Enabled {
		watcher := kafka.NewBroadcastConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt, h.IndexBuiltHandler())
		go func() {
			if err := watcher.Start(ctx); err != nil {
				slog.Error("index build watcher stopped", "error", err)
			}
		}()
		slog.Info("watching index builds", "topic", cfg.Kafka.Topics.IndexBuilt)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		go limiter.RunSweeper(ctx)
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins))(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelError),
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

	slog.Info("searcher listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("searcher stopped")
}
