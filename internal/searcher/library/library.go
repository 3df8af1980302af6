// Package library holds the searcher's view of the published catalog: the
// parsed entries linked to their transcripts, swapped wholesale on reload so
// concurrent readers never observe a half-loaded catalog.
package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/errors"
)

// NoTranscriptMessage is shown for entries without a linked transcript.
const NoTranscriptMessage = "No transcript file linked."

// Snapshot is one immutable load of the catalog and its index.
type Snapshot struct {
	Catalog    *catalog.Catalog
	Index      indexstore.Index
	Vocabulary [catalog.NumDimensions][]string
	Companies  []string
	// Version is derived from the catalog and index contents, so processes
	// that loaded the same files agree on it.
	Version    string
	Generation uint64
	LoadedAt   time.Time
}

// Filter evaluates state against the snapshot's entries.
func (s *Snapshot) Filter(state facet.State) facet.Result {
	return facet.Filter(s.Catalog.Entries, state)
}

// Linked counts the entries with and without a transcript.
func (s *Snapshot) Linked() (linked, missing int) {
	for _, e := range s.Catalog.Entries {
		if e.HasTranscript() {
			linked++
		} else {
			missing++
		}
	}
	return linked, missing
}

// Library serves the current Snapshot and reloads it from disk.
type Library struct {
	cfg           config.CatalogConfig
	maxTranscript int64
	current       atomic.Pointer[Snapshot]
	generation    atomic.Uint64
	reloadMu      sync.Mutex
	logger        *slog.Logger
}

// New creates an empty Library reading the published files of cfg.
func New(cfg config.CatalogConfig, maxTranscript int64) *Library {
	return &Library{
		cfg:           cfg,
		maxTranscript: maxTranscript,
		logger:        slog.Default().With("component", "library"),
	}
}

// Config returns the catalog locations the library reads from.
func (l *Library) Config() config.CatalogConfig {
	return l.cfg
}

// Snapshot returns the current snapshot, or ErrCatalogNotLoaded before the
// first successful load.
func (l *Library) Snapshot() (*Snapshot, error) {
	s := l.current.Load()
	if s == nil {
		return nil, apperrors.ErrCatalogNotLoaded
	}
	return s, nil
}

// Reload parses the published catalog and index and swaps them in. On
// failure the previous snapshot stays in place. A missing index file is
// not an error: every entry is then shown without a transcript.
func (l *Library) Reload(ctx context.Context) (*Snapshot, error) {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	start := time.Now()
	parse, err := catalog.ParserFor(l.cfg.Parser)
	if err != nil {
		return nil, err
	}
	csvPath := l.cfg.PublishedCSV()
	csv, err := os.ReadFile(csvPath)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", csvPath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cat, err := catalog.Load(string(csv), parse)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", csvPath, err)
	}

	index, err := indexstore.LoadFile(l.cfg.IndexPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Warn("transcript index missing, serving catalog without transcripts", "path", l.cfg.IndexPath())
		index = indexstore.Index{}
	case err != nil:
		return nil, err
	}

	snap := newSnapshot(cat, index, version(csv, index))
	snap.Generation = l.generation.Add(1)
	l.current.Store(snap)

	linked, missing := snap.Linked()
	l.logger.Info("catalog loaded",
		"entries", len(cat.Entries),
		"linked", linked,
		"missing", missing,
		"version", snap.Version,
		"generation", snap.Generation,
		"duration", time.Since(start),
	)
	return snap, nil
}

// Swap installs a catalog built in memory. It is used by tests and tools
// that do not read from disk.
func (l *Library) Swap(cat *catalog.Catalog, index indexstore.Index) *Snapshot {
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()
	snap := newSnapshot(cat, index, "")
	snap.Generation = l.generation.Add(1)
	snap.Version = fmt.Sprintf("mem-%d", snap.Generation)
	l.current.Store(snap)
	return snap
}

func newSnapshot(cat *catalog.Catalog, index indexstore.Index, version string) *Snapshot {
	linkedCat := cat.WithTranscripts(index)
	return &Snapshot{
		Catalog:    linkedCat,
		Index:      index,
		Vocabulary: linkedCat.Vocabulary(),
		Companies:  linkedCat.Companies(),
		Version:    version,
		LoadedAt:   time.Now().UTC(),
	}
}

func version(csv []byte, index indexstore.Index) string {
	h := sha256.New()
	h.Write(csv)
	for _, k := range slices.Sorted(maps.Keys(index)) {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(index[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

// Transcript returns the entry with the given id and the contents of its
// transcript. Entries without a transcript yield ErrNotFound carrying
// NoTranscriptMessage.
func (l *Library) Transcript(id string) (catalog.Entry, []byte, error) {
	snap, err := l.Snapshot()
	if err != nil {
		return catalog.Entry{}, nil, err
	}
	entry, ok := snap.Catalog.Find(id)
	if !ok {
		return catalog.Entry{}, nil, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "episode %q not found", id)
	}
	if !entry.HasTranscript() {
		return entry, nil, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, NoTranscriptMessage)
	}

	path := filepath.Join(l.cfg.PublishedTranscriptsDir(), filepath.Base(entry.TranscriptFile))
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return entry, nil, apperrors.New(apperrors.ErrNotFound, http.StatusNotFound, NoTranscriptMessage)
	}
	if err != nil {
		return entry, nil, fmt.Errorf("opening transcript %s: %w", path, err)
	}
	defer f.Close()

	limit := l.maxTranscript
	if limit <= 0 {
		limit = 8 << 20
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return entry, nil, fmt.Errorf("reading transcript %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return entry, nil, fmt.Errorf("transcript %s exceeds %d bytes: %w", entry.TranscriptFile, limit, apperrors.ErrInternal)
	}
	return entry, data, nil
}
