// Command loadtest drives the searcher with random filter states and prints
// latency and status-code tables.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	MaxTags     int
}

// vocabulary mirrors the searcher's /api/v1/facets response.
type vocabulary struct {
	Dimensions []struct {
		Key  string   `json:"key"`
		Tags []string `json:"tags"`
	} `json:"dimensions"`
	Companies []string `json:"companies"`
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the searcher")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	maxTags := flag.Int("max-tags", 2, "maximum tags selected per request")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		MaxTags:     max(*maxTags, 1),
	}

	vocab, err := fetchVocabulary(cfg.BaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fetching facets: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Product Atlas Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Companies:   %d\n", len(vocab.Companies))
	fmt.Println()

	stats := runLoadTest(cfg, vocab)
	if !printReport(stats, cfg.Duration) {
		os.Exit(1)
	}
}

func fetchVocabulary(baseURL string) (*vocabulary, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/facets")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var v vocabulary
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding facets: %w", err)
	}
	return &v, nil
}

// randomState picks up to maxTags tags across dimensions and, now and then,
// a company.
func randomState(rng *rand.Rand, vocab *vocabulary, maxTags int) url.Values {
	v := url.Values{}
	for range rng.IntN(maxTags) + 1 {
		if len(vocab.Dimensions) == 0 {
			break
		}
		d := vocab.Dimensions[rng.IntN(len(vocab.Dimensions))]
		if len(d.Tags) == 0 {
			continue
		}
		tag := d.Tags[rng.IntN(len(d.Tags))]
		if !slices.Contains(v[d.Key], tag) {
			v.Add(d.Key, tag)
		}
	}
	if len(vocab.Companies) > 0 && rng.IntN(5) == 0 {
		v.Set("company", vocab.Companies[rng.IntN(len(vocab.Companies))])
	}
	return v
}

func runLoadTest(cfg Config, vocab *vocabulary) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := range cfg.Concurrency {
		wg.Go(func() {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for ctx.Err() == nil {
				target := cfg.BaseURL + "/api/v1/episodes?" + randomState(rng, vocab, cfg.MaxTags).Encode()
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
				if err != nil {
					stats.RecordRequest(0, 0, err)
					continue
				}

				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						stats.RecordRequest(time.Since(start), 0, err)
					}
					continue
				}
				var body struct {
					Total    int  `json:"total"`
					CacheHit bool `json:"cache_hit"`
				}
				decodeErr := json.NewDecoder(resp.Body).Decode(&body)
				resp.Body.Close()
				stats.RecordRequest(time.Since(start), resp.StatusCode, nil)
				if decodeErr == nil && resp.StatusCode == http.StatusOK {
					if body.CacheHit {
						stats.cacheHits.Add(1)
					}
					if body.Total == 0 {
						stats.zeroResults.Add(1)
					}
				}
			}
		})
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// printReport writes the result tables and reports whether any request
// completed.
func printReport(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()

	summary := table.NewWriter()
	summary.SetStyle(table.StyleRounded)
	summary.SetTitle("Results")
	summary.AppendRows([]table.Row{
		{"Total requests", total},
		{"Successful", success},
		{"Errors", stats.errorCount.Load()},
		{"Cache hits", stats.cacheHits.Load()},
		{"Zero results", stats.zeroResults.Load()},
	})
	if total > 0 {
		summary.AppendRows([]table.Row{
			{"Error rate", fmt.Sprintf("%.2f%%", float64(stats.errorCount.Load())/float64(total)*100)},
			{"Requests/sec", fmt.Sprintf("%.2f", float64(total)/duration.Seconds())},
		})
	}
	fmt.Println(summary.Render())

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		lt := table.NewWriter()
		lt.SetStyle(table.StyleRounded)
		lt.SetTitle("Latency")
		lt.AppendHeader(table.Row{"Min", "Avg", "P50", "P90", "P95", "P99", "Max"})
		lt.AppendRow(table.Row{
			latencies[0], avg,
			percentile(latencies, 50), percentile(latencies, 90),
			percentile(latencies, 95), percentile(latencies, 99),
			latencies[len(latencies)-1],
		})
		fmt.Println(lt.Render())
	}

	codes := table.NewWriter()
	codes.SetStyle(table.StyleRounded)
	codes.SetTitle("Status codes")
	codes.AppendHeader(table.Row{"Code", "Count"})
	stats.statusCodesMu.Lock()
	for _, code := range slices.Sorted(maps.Keys(stats.statusCodes)) {
		codes.AppendRow(table.Row{code, stats.statusCodes[code].Load()})
	}
	stats.statusCodesMu.Unlock()
	fmt.Println(codes.Render())

	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the searcher running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
