package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/kafka"
)

const maxLatencySamples = 10000

// AggregatedStats summarizes the filter traffic seen so far.
type AggregatedStats struct {
	TotalFilters      int64            `json:"total_filters"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []NameCount      `json:"top_queries"`
	TopTags           []NameCount      `json:"top_tags"`
	TopCompanies      []NameCount      `json:"top_companies"`
	ZeroResultFilters []NameCount      `json:"zero_result_filters"`
	IndexBuilds       int64            `json:"index_builds"`
	LastBuild         *IndexBuiltEvent `json:"last_build,omitempty"`
	FiltersPerMinute  float64          `json:"filters_per_minute"`
}

type NameCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Aggregator folds FilterEvent and IndexBuiltEvent messages into running
// counters. It is safe for concurrent use.
type Aggregator struct {
	mu                sync.RWMutex
	totalFilters      int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	nextLatency       int
	queryCounts       map[string]int64
	tagCounts         map[string]int64
	companyCounts     map[string]int64
	zeroResultFilters map[string]int64
	indexBuilds       int64
	lastBuild         *IndexBuiltEvent
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		tagCounts:         make(map[string]int64),
		companyCounts:     make(map[string]int64),
		zeroResultFilters: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleMessage returns a kafka.MessageHandler feeding agg. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleMessage(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var env envelope
		if err := json.Unmarshal(value, &env); err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventFilter:
			event, err := kafka.DecodeJSON[FilterEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode filter event", "error", err)
				return nil
			}
			agg.RecordFilter(event)
		case EventIndexBuilt:
			event, err := kafka.DecodeJSON[IndexBuiltEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode index event", "error", err)
				return nil
			}
			agg.RecordIndexBuilt(event)
		default:
			agg.logger.Debug("ignoring analytics event", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordFilter(event FilterEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalFilters++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.Total == 0 {
		a.zeroResults++
		a.zeroResultFilters[describe(event)]++
	}

	// Latencies are kept in a fixed-size ring.
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.nextLatency] = event.LatencyMs
		a.nextLatency = (a.nextLatency + 1) % maxLatencySamples
	}

	if q := strings.ToLower(strings.TrimSpace(event.Query)); q != "" {
		a.queryCounts[q]++
	}
	if event.Company != "" {
		a.companyCounts[event.Company]++
	}
	for dim, tags := range event.Tags {
		for _, t := range tags {
			a.tagCounts[dim+":"+t]++
		}
	}
}

func (a *Aggregator) RecordIndexBuilt(event IndexBuiltEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indexBuilds++
	a.lastBuild = &event
}

// describe renders the filter of a zero-result event for display.
func describe(event FilterEvent) string {
	if event.StateKey != "" {
		return event.StateKey
	}
	return "(empty)"
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalFilters:    a.totalFilters,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		IndexBuilds:     a.indexBuilds,
	}
	if a.lastBuild != nil {
		last := *a.lastBuild
		stats.LastBuild = &last
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.TopTags = topN(a.tagCounts, 10)
	stats.TopCompanies = topN(a.companyCounts, 10)
	stats.ZeroResultFilters = topN(a.zeroResultFilters, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.FiltersPerMinute = float64(stats.TotalFilters) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n largest counts, ties broken by name.
func topN(counts map[string]int64, n int) []NameCount {
	result := make([]NameCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, NameCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
