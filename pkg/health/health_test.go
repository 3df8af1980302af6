package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunWorstStatusWins(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{"all up", map[string]Check{"a": Static(StatusUp, "")}, StatusUp},
		{"degraded", map[string]Check{"a": Static(StatusUp, ""), "b": Static(StatusDegraded, "off")}, StatusDegraded},
		{"down", map[string]Check{"a": Static(StatusDegraded, ""), "b": Static(StatusDown, "")}, StatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for n, ch := range tt.checks {
				c.Register(n, ch)
			}
			report := c.Run(context.Background())
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
			if len(report.Components) != len(tt.checks) {
				t.Errorf("components = %d, want %d", len(report.Components), len(tt.checks))
			}
		})
	}
}

func TestPingCheck(t *testing.T) {
	failing := func(context.Context) error { return errors.New("refused") }
	if got := PingCheck(failing, false)(context.Background()); got.Status != StatusDegraded || got.Message != "refused" {
		t.Errorf("optional failing ping = %+v", got)
	}
	if got := PingCheck(failing, true)(context.Background()); got.Status != StatusDown {
		t.Errorf("required failing ping = %+v", got)
	}
	ok := func(context.Context) error { return nil }
	if got := PingCheck(ok, true)(context.Background()); got.Status != StatusUp {
		t.Errorf("passing ping = %+v", got)
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", Static(StatusDegraded, "not configured"))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded readiness status = %d, want 200", rec.Code)
	}

	c.Register("catalog", Static(StatusDown, "not loaded"))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down readiness status = %d, want 503", rec.Code)
	}
}
