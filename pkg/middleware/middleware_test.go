package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/pkg/metrics"
)

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("request id not stored in context")
	}
	if got := rec.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "abc-123" {
		t.Errorf("request id = %q, want abc-123", seen)
	}
}

func TestTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		<-release
		w.Write([]byte("late"))
	})
	rec := httptest.NewRecorder()
	Timeout(10*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	close(release)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestTimeoutFastHandler(t *testing.T) {
	fast := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "ok")
	})
	rec := httptest.NewRecorder()
	Timeout(time.Second)(fast).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusCreated || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestTimeoutHandlerHeadersAfterDeadline(t *testing.T) {
	done := make(chan struct{})
	busy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		for i := 0; r.Context().Err() == nil || i < 1000; i++ {
			w.Header().Set("X-Progress", strconv.Itoa(i))
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("late"))
	})
	srv := httptest.NewServer(Timeout(time.Millisecond)(busy))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	<-done

	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", resp.StatusCode)
	}
	if resp.Header.Get("X-Progress") != "" {
		t.Errorf("handler header leaked into timeout response: %q", resp.Header.Get("X-Progress"))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestTimeoutCopiesHandlerHeaders(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Episode", "42")
		io.WriteString(w, "ok")
		w.Header().Set("X-After-Write", "ignored")
	})
	rec := httptest.NewRecorder()
	Timeout(time.Second)(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Episode") != "42" {
		t.Errorf("got %d headers %v", rec.Code, rec.Header())
	}
	if rec.Header().Get("X-After-Write") != "" {
		t.Error("headers set after the first write must not reach the client")
	}
}

func TestMetricsUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/episodes/{id}/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Metrics(m)(mux)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/episodes/42/transcript", nil))

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["path"] == "GET /api/v1/episodes/{id}/transcript" && labels["status"] == "404" {
				if v := metric.GetCounter().GetValue(); v != 1 {
					t.Errorf("counter = %v, want 1", v)
				}
				return
			}
		}
	}
	t.Error("no http_requests_total sample for the route pattern")
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := CORS(DefaultCORSConfig([]string{"https://atlas.example"}))(ok)

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{"no origin", http.MethodGet, "", false, http.StatusOK, ""},
		{"allowed", http.MethodGet, "https://atlas.example", false, http.StatusOK, "https://atlas.example"},
		{"other origin", http.MethodGet, "https://evil.example", false, http.StatusOK, ""},
		{"preflight", http.MethodOptions, "https://atlas.example", true, http.StatusNoContent, "https://atlas.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/episodes", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tt.wantOrigin)
			}
		})
	}
}

func TestLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if l.Allow("a") {
		t.Error("third request within the window should be limited")
	}
	if !l.Allow("b") {
		t.Error("keys are limited independently")
	}

	now = now.Add(30 * time.Second)
	if !l.Allow("a") {
		t.Error("half a window refills one token")
	}

	now = now.Add(5 * time.Minute)
	if n := l.Sweep(); n != 2 {
		t.Errorf("Sweep() removed %d buckets, want 2", n)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	h := RateLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if got := send("/api/v1/episodes"); got != http.StatusOK {
		t.Fatalf("first request = %d", got)
	}
	if got := send("/api/v1/episodes"); got != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", got)
	}
	if got := send("/health/ready"); got != http.StatusOK {
		t.Errorf("health request = %d, want exempt", got)
	}
}
