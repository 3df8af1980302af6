package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/facet"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/searcher/library"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/resilience"
)

// Handler serves the episode browsing API.
type Handler struct {
	library   *library.Library
	cache     *cache.FacetCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	cfg       config.SearchConfig
	logger    *slog.Logger
}

// New creates a Handler. cache, collector and m are optional.
func New(lib *library.Library, facetCache *cache.FacetCache, collector *analytics.Collector, m *metrics.Metrics, cfg config.SearchConfig) *Handler {
	return &Handler{
		library:   lib,
		cache:     facetCache,
		collector: collector,
		metrics:   m,
		cfg:       cfg,
		logger:    slog.Default().With("component", "episode-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/episodes", h.Episodes)
	mux.HandleFunc("GET /api/v1/episodes/{id}", h.Episode)
	mux.HandleFunc("GET /api/v1/episodes/{id}/transcript", h.Transcript)
	mux.HandleFunc("GET /api/v1/facets", h.Facets)
	mux.HandleFunc("POST /api/v1/catalog/reload", h.Reload)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

type episode struct {
	catalog.Entry
	HasTranscript bool `json:"has_transcript"`
}

type dimensionControls struct {
	Key   string             `json:"key"`
	Title string             `json:"title"`
	Tags  []facet.TagControl `json:"tags"`
}

type episodesResponse struct {
	Total     int                       `json:"total"`
	Version   string                    `json:"version"`
	Query     stateJSON                 `json:"query"`
	Results   []episode                 `json:"results"`
	Counts    map[string]map[string]int `json:"counts"`
	Controls  []dimensionControls       `json:"controls"`
	Companies []string                  `json:"companies"`
	CacheHit  bool                      `json:"cache_hit"`
}

type stateJSON struct {
	Tags    map[string][]string `json:"tags"`
	Company string              `json:"company,omitempty"`
	Query   string              `json:"q,omitempty"`
}

// Episodes filters the catalog by the l1..l4, company and q parameters.
func (h *Handler) Episodes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	state, err := h.parseState(r.URL.Query())
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	snap, err := h.library.Snapshot()
	if err != nil {
		h.recordFilter("error", "", 0, time.Since(start))
		h.writeAppError(w, err)
		return
	}

	var result facet.Result
	cacheHit := false
	if h.cache != nil {
		result, cacheHit = h.cache.GetOrCompute(ctx, snap.Version, state, func() facet.Result {
			return snap.Filter(state)
		})
	} else {
		result = snap.Filter(state)
	}
	latency := time.Since(start)

	cacheStatus := "miss"
	if cacheHit {
		cacheStatus = "hit"
	}
	outcome := cacheStatus
	if result.Total == 0 {
		outcome = "zero_result"
	}
	h.recordFilter(outcome, cacheStatus, result.Total, latency)

	log.Info("filter completed",
		"state", state.Key(),
		"total", result.Total,
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if h.collector != nil {
		h.collector.Track("filter", analytics.FilterEvent{
			Type:      analytics.EventFilter,
			Query:     state.Query(),
			Company:   state.Company(),
			Tags:      encodeState(state).Tags,
			StateKey:  state.Key(),
			Total:     result.Total,
			LatencyMs: latency.Milliseconds(),
			CacheHit:  cacheHit,
			Version:   snap.Version,
			Timestamp: time.Now().UTC(),
			RequestID: logger.RequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, buildResponse(snap, state, result, cacheHit))
}

func buildResponse(snap *library.Snapshot, state facet.State, result facet.Result, cacheHit bool) episodesResponse {
	resp := episodesResponse{
		Total:     result.Total,
		Version:   snap.Version,
		Query:     encodeState(state),
		Results:   make([]episode, 0, len(result.Entries)),
		Counts:    make(map[string]map[string]int, catalog.NumDimensions),
		Companies: snap.Companies,
		CacheHit:  cacheHit,
	}
	for _, e := range result.Entries {
		resp.Results = append(resp.Results, episode{Entry: e, HasTranscript: e.HasTranscript()})
	}
	controls := facet.Controls(snap.Vocabulary, state, result)
	for _, d := range catalog.Dimensions {
		counts := result.Counts[d]
		if counts == nil {
			counts = map[string]int{}
		}
		resp.Counts[d.Key()] = counts
		resp.Controls = append(resp.Controls, dimensionControls{Key: d.Key(), Title: d.Title(), Tags: controls[d]})
	}
	return resp
}

// parseState reads the filter state from query parameters. Empty values
// are ignored; unknown tags simply match nothing.
func (h *Handler) parseState(q url.Values) (facet.State, error) {
	var tags [catalog.NumDimensions][]string
	for _, d := range catalog.Dimensions {
		for _, v := range q[d.Key()] {
			if v = strings.TrimSpace(v); v != "" {
				tags[d] = append(tags[d], v)
			}
		}
	}
	query := strings.TrimSpace(q.Get("q"))
	if h.cfg.MaxQueryLength > 0 && len(query) > h.cfg.MaxQueryLength {
		return facet.State{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query exceeds %d characters", h.cfg.MaxQueryLength)
	}
	return facet.NewState(tags, strings.TrimSpace(q.Get("company")), query), nil
}

func encodeState(state facet.State) stateJSON {
	s := stateJSON{Tags: make(map[string][]string), Company: state.Company(), Query: state.Query()}
	for _, d := range catalog.Dimensions {
		if sel := state.Selected(d); len(sel) > 0 {
			s.Tags[d.Key()] = sel
		}
	}
	return s
}

// Episode returns one entry by id.
func (h *Handler) Episode(w http.ResponseWriter, r *http.Request) {
	snap, err := h.library.Snapshot()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	id := r.PathValue("id")
	e, ok := snap.Catalog.Find(id)
	if !ok {
		h.writeAppError(w, apperrors.Newf(apperrors.ErrNotFound, http.StatusNotFound, "episode %q not found", id))
		return
	}
	h.writeJSON(w, http.StatusOK, episode{Entry: e, HasTranscript: e.HasTranscript()})
}

// Transcript serves the transcript of one entry as plain text.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	entry, data, err := h.library.Transcript(r.PathValue("id"))
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", entry.TranscriptFile))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type facetsResponse struct {
	Version    string           `json:"version"`
	Dimensions []facetDimension `json:"dimensions"`
	Companies  []string         `json:"companies"`
}

type facetDimension struct {
	Key   string   `json:"key"`
	Title string   `json:"title"`
	Tags  []string `json:"tags"`
}

// Facets returns the tag vocabulary of every dimension and the companies.
func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	snap, err := h.library.Snapshot()
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	resp := facetsResponse{Version: snap.Version, Companies: snap.Companies}
	for _, d := range catalog.Dimensions {
		resp.Dimensions = append(resp.Dimensions, facetDimension{Key: d.Key(), Title: d.Title(), Tags: snap.Vocabulary[d]})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Reload re-reads the published catalog and index.
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ReloadCatalog(r.Context(), "api")
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	linked, missing := snap.Linked()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "reloaded",
		"version":    snap.Version,
		"generation": snap.Generation,
		"entries":    len(snap.Catalog.Entries),
		"linked":     linked,
		"missing":    missing,
	})
}

// ReloadCatalog reloads the library within the configured timeout and
// drops cached results. reason is recorded in the logs.
func (h *Handler) ReloadCatalog(ctx context.Context, reason string) (*library.Snapshot, error) {
	var snap *library.Snapshot
	err := resilience.WithTimeout(ctx, h.cfg.ReloadTimeout, "catalog-reload", func(ctx context.Context) error {
		var err error
		snap, err = h.library.Reload(ctx)
		return err
	})
	if err != nil {
		if h.metrics != nil {
			h.metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
		}
		h.logger.Error("catalog reload failed", "reason", reason, "error", err)
		return nil, err
	}
	if h.metrics != nil {
		linked, missing := snap.Linked()
		h.metrics.CatalogReloadsTotal.WithLabelValues("ok").Inc()
		h.metrics.CatalogEntries.WithLabelValues("linked").Set(float64(linked))
		h.metrics.CatalogEntries.WithLabelValues("missing").Set(float64(missing))
		h.metrics.CatalogGeneration.Set(float64(snap.Generation))
	}
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			h.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	h.logger.Info("catalog reloaded", "reason", reason, "version", snap.Version, "generation", snap.Generation)
	return snap, nil
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) recordFilter(outcome, cacheStatus string, total int, latency time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.FilterRequestsTotal.WithLabelValues(outcome).Inc()
	if cacheStatus != "" {
		h.metrics.FilterLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
		h.metrics.FilterResultsCount.Observe(float64(total))
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeAppError maps err to a status code. Only AppError messages reach the
// client; other errors are logged and reported generically.
func (h *Handler) writeAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeError(w, status, appErr.Message)
		return
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeError(w, status, http.StatusText(status))
}
