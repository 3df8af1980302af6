// Command analytics consumes the searcher's filter events and the indexer's
// build announcements from Kafka and serves the running aggregates.
//
// Usage:
//
//	go run ./cmd/analytics [-config atlas.yaml]
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

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/middleware"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	aggregator := analytics.NewAggregator()
	handle := analytics.HandleMessage(aggregator)
	consumers := []*kafka.Consumer{
		kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, handle),
		kafka.NewBroadcastConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt, handle),
	}
	for _, c := range consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				slog.Error("kafka consumer stopped", "error", err)
			}
		}()
	}
	slog.Info("analytics aggregator started",
		"events_topic", cfg.Kafka.Topics.AnalyticsEvents,
		"builds_topic", cfg.Kafka.Topics.IndexBuilt,
	)

	checker := health.NewChecker()
	checker.Register("kafka", health.Static(health.StatusUp, "consumers active"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
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
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
