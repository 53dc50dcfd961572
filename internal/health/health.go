// Package health агрегирует проверки компонентов для /healthz, /readyz и gRPC health.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var severity = map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}

// worse возвращает более тяжёлый из двух статусов.
func worse(a, b Status) Status {
	if severity[b] > severity[a] {
		return b
	}
	return a
}

// Check — результат проверки одного компонента.
type Check struct {
	Name       string        `json:"name"`
	Status     Status        `json:"status"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент в пределах ctx.
type Checker interface {
	Check(ctx context.Context) Check
}

// Handler хранит зарегистрированные проверки. Degraded не снимает готовность:
// бот продолжает продавать по старому каталогу или с отложенными событиями.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
	}
}

func (h *Handler) RegisterChecker(name string, checker Checker) {
	h.mu.Lock()
	h.checkers[name] = checker
	h.mu.Unlock()
}

// Run выполняет проверки параллельно с общим таймаутом.
func (h *Handler) Run(ctx context.Context) (Status, map[string]Check) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make([]Checker, 0, len(h.checkers))
	for name, c := range h.checkers {
		names = append(names, name)
		checkers = append(checkers, c)
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make([]Check, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = c.Check(ctx)
			results[i].DurationMs = results[i].Duration.Milliseconds()
			return nil
		})
	}
	_ = g.Wait()

	overall := StatusHealthy
	checks := make(map[string]Check, len(results))
	for i, check := range results {
		checks[names[i]] = check
		overall = worse(overall, check.Status)
	}
	return overall, checks
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	overall, checks := h.Run(r.Context())

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(Response{
		Status:        overall,
		Timestamp:     time.Now(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	})
}

// ReadinessHandler отвечает 503, пока хотя бы одна проверка unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if overall, _ := h.Run(r.Context()); overall == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// SimpleChecker превращает функцию вида Ping в проверку: ошибка — unhealthy.
type SimpleChecker struct {
	name string
	fn   func(ctx context.Context) error
}

func NewSimpleChecker(name string, fn func(ctx context.Context) error) *SimpleChecker {
	return &SimpleChecker{name: name, fn: fn}
}

func (c *SimpleChecker) Check(ctx context.Context) Check {
	start := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.fn(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.Duration = time.Since(start)
	return check
}
