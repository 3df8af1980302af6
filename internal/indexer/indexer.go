// Package indexer runs the build-time pipeline: load the catalog, bind each
// guest to a transcript file, write the lookup index and stage the published
// artefacts for the searcher.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/resolver"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/tracing"
)

// Mirror receives a copy of every index written.
type Mirror interface {
	Replace(ctx context.Context, index indexstore.Index) error
}

// Publisher announces finished builds.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Outcome summarises one Run.
type Outcome struct {
	BuildID string
	Entries int
	Result  *resolver.Result
	Staged  indexstore.StageStats
}

type Indexer struct {
	catalog   config.CatalogConfig
	resolver  config.ResolverConfig
	mirror    Mirror
	publisher Publisher
	logger    *slog.Logger
}

// New creates an Indexer. mirror and publisher may be nil.
func New(catalogCfg config.CatalogConfig, resolverCfg config.ResolverConfig, mirror Mirror, publisher Publisher) *Indexer {
	return &Indexer{
		catalog:   catalogCfg,
		resolver:  resolverCfg,
		mirror:    mirror,
		publisher: publisher,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// Run executes one build. Every input is read before anything is written,
// so a read failure leaves the published directory untouched. Unmatched
// guests are not an error here; callers inspect Outcome.Result.
//
// Mirror and publish failures are logged: the index file is the source of
// truth and has already been written by then.
func (ix *Indexer) Run(ctx context.Context) (*Outcome, error) {
	buildID := uuid.NewString()
	ctx, span := tracing.Start(ctx, "index-build", buildID)
	defer func() {
		span.End()
		span.Log(ix.logger)
	}()

	cat, pool, err := ix.load(ctx)
	if err != nil {
		return nil, err
	}

	_, resolveSpan := tracing.StartChild(ctx, "resolve")
	res, err := resolver.Build(ctx, cat.Entries, pool, resolver.Options{
		Threshold:      ix.resolver.Threshold,
		Workers:        ix.resolver.Workers,
		FoldSeparators: ix.resolver.FoldSeparators,
	})
	resolveSpan.End()
	if err != nil {
		return nil, err
	}
	resolveSpan.SetAttr("exact", len(res.Exact))
	resolveSpan.SetAttr("fuzzy", len(res.Fuzzy))
	resolveSpan.SetAttr("unmatched", len(res.Unmatched))

	if err := indexstore.CheckSources(ix.catalog.TranscriptsDir, res.Files()); err != nil {
		return nil, err
	}

	staged, err := ix.write(ctx, res)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		BuildID: buildID,
		Entries: len(cat.Entries),
		Result:  res,
		Staged:  staged,
	}
	ix.announce(ctx, out)

	ix.logger.Info("index built",
		"build_id", out.BuildID,
		"exact", len(res.Exact),
		"fuzzy", len(res.Fuzzy),
		"unmatched", len(res.Unmatched),
		"collisions", len(res.Collisions),
		"duration", time.Since(span.StartTime),
	)
	return out, nil
}

// load reads the catalog and lists the transcript pool.
func (ix *Indexer) load(ctx context.Context) (*catalog.Catalog, *resolver.Pool, error) {
	_, span := tracing.StartChild(ctx, "load")
	defer span.End()

	parse, err := catalog.ParserFor(ix.catalog.Parser)
	if err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(ix.catalog.SourceCSV)
	if err != nil {
		return nil, nil, fmt.Errorf("reading catalog %s: %w", ix.catalog.SourceCSV, err)
	}
	cat, err := catalog.Load(string(raw), parse)
	if err != nil {
		return nil, nil, fmt.Errorf("loading catalog %s: %w", ix.catalog.SourceCSV, err)
	}
	pool, err := resolver.PoolFromDir(ix.catalog.TranscriptsDir, ix.resolver.TranscriptExt)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttr("entries", len(cat.Entries))
	span.SetAttr("candidates", pool.Len())
	return cat, pool, nil
}

// write publishes the referenced transcripts, then the catalog copy, then
// the index. The index goes last so it never names a transcript that was
// not staged.
func (ix *Indexer) write(ctx context.Context, res *resolver.Result) (indexstore.StageStats, error) {
	_, span := tracing.StartChild(ctx, "write")
	defer span.End()

	staged, err := indexstore.StageTranscripts(ix.catalog.TranscriptsDir, ix.catalog.PublishedTranscriptsDir(), res.Files())
	if err != nil {
		return staged, err
	}
	if err := indexstore.CopyFile(ix.catalog.SourceCSV, ix.catalog.PublishedCSV()); err != nil {
		return staged, err
	}
	if err := indexstore.WriteFile(ix.catalog.IndexPath(), res.Index); err != nil {
		return staged, err
	}
	span.SetAttr("copied", staged.Copied)
	span.SetAttr("skipped", staged.Skipped)
	return staged, nil
}

// announce mirrors the index and publishes the build event.
func (ix *Indexer) announce(ctx context.Context, out *Outcome) {
	ctx, span := tracing.StartChild(ctx, "announce")
	defer span.End()

	if ix.mirror != nil {
		if err := ix.mirror.Replace(ctx, out.Result.Index); err != nil {
			ix.logger.Error("index mirror failed", "error", err)
		}
	}
	if ix.publisher != nil {
		event := kafka.Event{Key: out.BuildID, Value: out.event(ix.catalog.IndexPath())}
		if err := ix.publisher.Publish(ctx, event); err != nil {
			ix.logger.Error("publishing index build failed", "build_id", out.BuildID, "error", err)
		}
	}
}

func (o *Outcome) event(indexPath string) analytics.IndexBuiltEvent {
	return analytics.IndexBuiltEvent{
		Type:       analytics.EventIndexBuilt,
		BuildID:    o.BuildID,
		Entries:    o.Entries,
		Exact:      len(o.Result.Exact),
		Fuzzy:      len(o.Result.Fuzzy),
		Unmatched:  len(o.Result.Unmatched),
		Collisions: len(o.Result.Collisions),
		IndexPath:  indexPath,
		Timestamp:  time.Now().UTC(),
	}
}
