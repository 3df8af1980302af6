package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/resolver"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/postgres"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 when every guest was bound, 1 when
// any guest is unmatched or the build failed.
func run() int {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting indexer",
		"source", cfg.Catalog.SourceCSV,
		"transcripts_dir", cfg.Catalog.TranscriptsDir,
		"public_dir", cfg.Catalog.PublicDir,
		"threshold", cfg.Resolver.Threshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var mirror indexer.Mirror
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("postgres unavailable, index will not be mirrored", "error", err)
		} else {
			defer db.Close()
			store := indexstore.NewSQLStore(db)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Error("preparing index mirror failed", "error", err)
			} else {
				mirror = store
			}
		}
	}

	var publisher indexer.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexBuilt)
		defer producer.Close()
		publisher = producer
	}

	out, err := indexer.New(cfg.Catalog, cfg.Resolver, mirror, publisher).Run(ctx)
	if err != nil {
		slog.Error("index build failed", "error", err)
		return 1
	}

	if err := resolver.WriteReport(os.Stdout, out.Result); err != nil {
		slog.Error("writing report failed", "error", err)
		return 1
	}
	if err := out.Result.Err(); err != nil {
		slog.Warn("index written with unmatched guests", "error", err)
		return 1
	}
	return 0
}
