package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/searcher/library"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/metrics"
)

const catalogCSV = "Sr No,Podcast Guest,Company Name,CEO Summary,Level 1 Tags,Level 2 Tags,Level 3 Tags,Level 4 Tags\n" +
	"1,Jane Doe,Acme,Growth loops,\"A, B\",Pricing,PM,Moats\n" +
	"2,John Smith,Globex,Hiring,A,,Founder,\n" +
	"3,Cid Park,Acme,Pricing power,B,,,\n"

func searchConfig() config.SearchConfig {
	return config.SearchConfig{MaxQueryLength: 16, ReloadTimeout: 5 * time.Second}
}

func setup(t *testing.T) (*Handler, *http.ServeMux) {
	t.Helper()
	cfg := config.CatalogConfig{PublicDir: t.TempDir(), Parser: "lenient"}
	if err := os.MkdirAll(cfg.PublishedTranscriptsDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.PublishedCSV()), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.PublishedCSV(), []byte(catalogCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := indexstore.WriteFile(cfg.IndexPath(), indexstore.Index{"jane doe": "jane-doe.txt"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.PublishedTranscriptsDir(), "jane-doe.txt"), []byte("hello from jane"), 0o644); err != nil {
		t.Fatal(err)
	}

	h := New(library.New(cfg, 0), nil, nil, metrics.NewWithRegistry(prometheus.NewRegistry()), searchConfig())
	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func do(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestEpisodesBeforeLoad(t *testing.T) {
	_, mux := setup(t)
	rec := do(t, mux, http.MethodGet, "/api/v1/episodes")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 before the catalog is loaded", rec.Code)
	}
}

func TestEpisodes(t *testing.T) {
	_, mux := setup(t)
	if rec := do(t, mux, http.MethodPost, "/api/v1/catalog/reload"); rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d: %s", rec.Code, rec.Body)
	}

	tests := []struct {
		name   string
		target string
		guests []string
	}{
		{"all", "/api/v1/episodes", []string{"Jane Doe", "John Smith", "Cid Park"}},
		{"one tag", "/api/v1/episodes?l1=A", []string{"Jane Doe", "John Smith"}},
		{"two tags same dimension", "/api/v1/episodes?l1=A&l1=B", []string{"Jane Doe"}},
		{"company", "/api/v1/episodes?company=Acme", []string{"Jane Doe", "Cid Park"}},
		{"query", "/api/v1/episodes?q=PRICING", []string{"Cid Park"}},
		{"no match", "/api/v1/episodes?l3=Nobody", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodGet, tt.target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body)
			}
			var resp episodesResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			got := make([]string, 0, len(resp.Results))
			for _, e := range resp.Results {
				got = append(got, e.Guest)
			}
			if strings.Join(got, "|") != strings.Join(tt.guests, "|") {
				t.Errorf("guests = %q, want %q", got, tt.guests)
			}
			if resp.Total != len(tt.guests) {
				t.Errorf("total = %d, want %d", resp.Total, len(tt.guests))
			}
			if len(resp.Controls) != 4 || len(resp.Counts) != 4 {
				t.Errorf("controls=%d counts=%d, want 4 each", len(resp.Controls), len(resp.Counts))
			}
		})
	}
}

func TestEpisodesCountsAndControls(t *testing.T) {
	_, mux := setup(t)
	do(t, mux, http.MethodPost, "/api/v1/catalog/reload")

	rec := do(t, mux, http.MethodGet, "/api/v1/episodes?l1=A")
	var resp episodesResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Counts["l1"]["A"] != 2 || resp.Counts["l1"]["B"] != 1 {
		t.Errorf("l1 counts = %v, want A=2 B=1", resp.Counts["l1"])
	}
	if !resp.Results[0].HasTranscript || resp.Results[1].HasTranscript {
		t.Errorf("has_transcript = %v, %v", resp.Results[0].HasTranscript, resp.Results[1].HasTranscript)
	}
	l1 := resp.Controls[0]
	if l1.Key != "l1" || l1.Title != "Core" {
		t.Errorf("first control = %s/%s", l1.Key, l1.Title)
	}
	for _, c := range l1.Tags {
		if c.Tag == "A" && !c.Selected {
			t.Error("A should be selected")
		}
	}
	if len(resp.Query.Tags["l1"]) != 1 || resp.Query.Tags["l1"][0] != "A" {
		t.Errorf("echoed query = %+v", resp.Query)
	}
}

func TestEpisodesQueryTooLong(t *testing.T) {
	_, mux := setup(t)
	do(t, mux, http.MethodPost, "/api/v1/catalog/reload")
	rec := do(t, mux, http.MethodGet, "/api/v1/episodes?q="+strings.Repeat("x", 17))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEpisodeAndTranscript(t *testing.T) {
	_, mux := setup(t)
	do(t, mux, http.MethodPost, "/api/v1/catalog/reload")

	rec := do(t, mux, http.MethodGet, "/api/v1/episodes/1")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"has_transcript":true`) {
		t.Errorf("episode 1: %d %s", rec.Code, rec.Body)
	}

	tests := []struct {
		id     string
		status int
		body   string
	}{
		{"1", http.StatusOK, "hello from jane"},
		{"2", http.StatusNotFound, library.NoTranscriptMessage},
		{"99", http.StatusNotFound, "not found"},
	}
	for _, tt := range tests {
		rec := do(t, mux, http.MethodGet, "/api/v1/episodes/"+tt.id+"/transcript")
		if rec.Code != tt.status || !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("transcript %s = %d %q, want %d containing %q", tt.id, rec.Code, rec.Body, tt.status, tt.body)
		}
	}
	rec = do(t, mux, http.MethodGet, "/api/v1/episodes/1/transcript")
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestFacets(t *testing.T) {
	_, mux := setup(t)
	do(t, mux, http.MethodPost, "/api/v1/catalog/reload")
	rec := do(t, mux, http.MethodGet, "/api/v1/facets")
	var resp facetsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Dimensions) != 4 || strings.Join(resp.Dimensions[0].Tags, ",") != "A,B" {
		t.Errorf("dimensions = %+v", resp.Dimensions)
	}
	if strings.Join(resp.Companies, ",") != "Acme,Globex" {
		t.Errorf("companies = %q", resp.Companies)
	}
}

func TestReloadFailureKeepsSnapshot(t *testing.T) {
	h, mux := setup(t)
	if rec := do(t, mux, http.MethodPost, "/api/v1/catalog/reload"); rec.Code != http.StatusOK {
		t.Fatal(rec.Body)
	}
	if err := os.Remove(h.library.Config().PublishedCSV()); err != nil {
		t.Fatal(err)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/catalog/reload"); rec.Code != http.StatusInternalServerError {
		t.Errorf("reload of missing catalog = %d, want 500", rec.Code)
	}
	if rec := do(t, mux, http.MethodGet, "/api/v1/episodes"); rec.Code != http.StatusOK {
		t.Errorf("episodes after failed reload = %d, want 200", rec.Code)
	}
}

func TestCacheEndpointsDisabled(t *testing.T) {
	_, mux := setup(t)
	rec := do(t, mux, http.MethodGet, "/api/v1/cache/stats")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "disabled") {
		t.Errorf("stats = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, http.MethodPost, "/api/v1/cache/invalidate"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate = %d, want 503", rec.Code)
	}
}

func TestIndexBuiltHandler(t *testing.T) {
	h, _ := setup(t)
	handle := h.IndexBuiltHandler()

	if err := handle(context.Background(), nil, []byte(`{"type":"filter"}`)); err != nil {
		t.Fatalf("unrelated event: %v", err)
	}
	if _, err := h.library.Snapshot(); err == nil {
		t.Fatal("unrelated event must not load the catalog")
	}

	if err := handle(context.Background(), nil, []byte(`{"type":"index_built","build_id":"b1"}`)); err != nil {
		t.Fatalf("index_built: %v", err)
	}
	snap, err := h.library.Snapshot()
	if err != nil || snap.Generation != 1 {
		t.Fatalf("snapshot after event = %v, %v", snap, err)
	}

	if err := handle(context.Background(), nil, []byte("not json")); err == nil {
		t.Error("expected decode error")
	}
}
