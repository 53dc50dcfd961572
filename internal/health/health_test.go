package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/shopbot/internal/domain"
)

type staticChecker Check

func (s staticChecker) Check(context.Context) Check { return Check(s) }

func TestHandler_AggregatesWorstStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []Status
		want     Status
		wantCode int
	}{
		{name: "no checks", want: StatusHealthy, wantCode: http.StatusOK},
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy, wantCode: http.StatusOK},
		{name: "degraded keeps 200", statuses: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded, wantCode: http.StatusOK},
		{name: "unhealthy wins", statuses: []Status{StatusUnhealthy, StatusDegraded, StatusHealthy}, want: StatusUnhealthy, wantCode: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("v1.0.0")
			for i, st := range tt.statuses {
				name := string(rune('a' + i))
				h.RegisterChecker(name, staticChecker{Name: name, Status: st, Duration: 3 * time.Millisecond})
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if w.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp Response
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.want || resp.Version != "v1.0.0" || len(resp.Checks) != len(tt.statuses) {
				t.Fatalf("unexpected response %+v", resp)
			}
			for _, c := range resp.Checks {
				if c.DurationMs != 3 {
					t.Fatalf("duration_ms = %d, want 3", c.DurationMs)
				}
			}
		})
	}
}

func TestHandler_Probes(t *testing.T) {
	t.Parallel()

	failing := NewHandler("dev")
	failing.RegisterChecker("journal", NewSimpleChecker("journal", func(context.Context) error {
		return errors.New("connection refused")
	}))

	tests := []struct {
		name     string
		serve    http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{name: "live", serve: LivenessHandler, wantCode: http.StatusOK, wantBody: "ok"},
		{name: "ready", serve: NewHandler("dev").ReadinessHandler, wantCode: http.StatusOK, wantBody: "ready"},
		{name: "not ready", serve: failing.ReadinessHandler, wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.serve(w, httptest.NewRequest(http.MethodGet, "/", nil))
			if w.Code != tt.wantCode || strings.TrimSpace(w.Body.String()) != tt.wantBody {
				t.Fatalf("got %d %q, want %d %q", w.Code, w.Body.String(), tt.wantCode, tt.wantBody)
			}
		})
	}
}

func TestHandler_TimeoutReachesCheckers(t *testing.T) {
	t.Parallel()

	h := NewHandler("dev")
	h.timeout = 20 * time.Millisecond
	h.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	overall, checks := h.Run(context.Background())
	if overall != StatusUnhealthy || !strings.Contains(checks["slow"].Message, "deadline") {
		t.Fatalf("slow check must fail on the handler timeout, got %s %+v", overall, checks["slow"])
	}
}

func TestSimpleChecker(t *testing.T) {
	t.Parallel()

	ok := NewSimpleChecker("journal", func(context.Context) error { return nil }).Check(context.Background())
	if ok.Status != StatusHealthy || ok.Name != "journal" || ok.Message != "" {
		t.Fatalf("unexpected check %+v", ok)
	}

	bad := NewSimpleChecker("journal", func(context.Context) error { return errors.New("no route") }).Check(context.Background())
	if bad.Status != StatusUnhealthy || bad.Message != "no route" {
		t.Fatalf("unexpected check %+v", bad)
	}
}

type fakeCatalog struct {
	ready    bool
	loadedAt time.Time
}

func (f fakeCatalog) Ready() bool         { return f.ready }
func (f fakeCatalog) LoadedAt() time.Time { return f.loadedAt }

func TestCatalogChecker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		catalog fakeCatalog
		maxAge  time.Duration
		want    Status
	}{
		{name: "not loaded", catalog: fakeCatalog{}, maxAge: time.Hour, want: StatusUnhealthy},
		{name: "fresh", catalog: fakeCatalog{ready: true, loadedAt: now.Add(-time.Minute)}, maxAge: time.Hour, want: StatusHealthy},
		{name: "stale", catalog: fakeCatalog{ready: true, loadedAt: now.Add(-2 * time.Hour)}, maxAge: time.Hour, want: StatusDegraded},
		{name: "no max age", catalog: fakeCatalog{ready: true, loadedAt: now.Add(-48 * time.Hour)}, want: StatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCatalogChecker(tt.catalog, tt.maxAge)
			c.now = func() time.Time { return now }
			if got := c.Check(context.Background()).Status; got != tt.want {
				t.Fatalf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

type outboxStatsFunc func(ctx context.Context) (domain.OutboxStats, error)

func (f outboxStatsFunc) Stats(ctx context.Context) (domain.OutboxStats, error) { return f(ctx) }

func TestOutboxChecker(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		stats domain.OutboxStats
		err   error
		want  Status
	}{
		{name: "empty", want: StatusHealthy},
		{name: "fresh backlog", stats: domain.OutboxStats{Pending: 3, OldestPendingAt: now.Add(-10 * time.Second)}, want: StatusHealthy},
		{name: "lagging backlog", stats: domain.OutboxStats{Pending: 3, OldestPendingAt: now.Add(-5 * time.Minute)}, want: StatusDegraded},
		{name: "parked", stats: domain.OutboxStats{Parked: 1}, want: StatusDegraded},
		{name: "stats error", err: errors.New("connection refused"), want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewOutboxChecker(outboxStatsFunc(func(context.Context) (domain.OutboxStats, error) {
				return tt.stats, tt.err
			}), time.Minute)
			checker.now = func() time.Time { return now }

			if got := checker.Check(context.Background()); got.Status != tt.want {
				t.Fatalf("status = %s (%s), want %s", got.Status, got.Message, tt.want)
			}
		})
	}
}
