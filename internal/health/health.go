// Package health отдаёт liveness/readiness пробы и сводный health-отчёт.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/oda/internal/domain"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const defaultCheckTimeout = 2 * time.Second

// ErrCheckTimeout: проверка не уложилась в таймаут.
var ErrCheckTimeout = errors.New("health check timed out")

// Checker проверяет одну зависимость; nil означает, что она в порядке.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc адаптирует функцию к Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// DatasetLoaded падает с domain.ErrDatasetEmpty, пока в хранилище нет строк.
func DatasetLoaded(repo domain.DatasetRepository) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		count, err := repo.Count(ctx)
		if err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrDatasetEmpty
		}
		return nil
	})
}

// Check: результат одной проверки в отчёте.
type Check struct {
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response: тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

type probe struct {
	checker Checker
	// optional: сбой понижает общий статус только до degraded.
	optional bool
}

// Handler хранит зарегистрированные проверки и отдаёт их по HTTP.
type Handler struct {
	mu      sync.RWMutex
	probes  map[string]probe
	version string
	started time.Time
	timeout time.Duration
}

type Option func(*Handler)

// WithTimeout ограничивает время каждой проверки.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		probes:  make(map[string]probe),
		version: version,
		started: time.Now(),
		timeout: defaultCheckTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register добавляет обязательную проверку: её сбой делает сервис unhealthy.
func (h *Handler) Register(name string, checker Checker) {
	h.register(name, probe{checker: checker})
}

// RegisterOptional добавляет проверку необязательной зависимости (Kafka).
func (h *Handler) RegisterOptional(name string, checker Checker) {
	h.register(name, probe{checker: checker, optional: true})
}

func (h *Handler) register(name string, p probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// Report параллельно выполняет все проверки.
func (h *Handler) Report(ctx context.Context) Response {
	h.mu.RLock()
	probes := make(map[string]probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]Check, len(probes))
	)
	for name, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check := h.run(ctx, p)
			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}()
	}
	wg.Wait()

	return Response{
		Status:        overall(checks),
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
}

func (h *Handler) run(ctx context.Context, p probe) Check {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := p.checker.Check(ctx)
	check := Check{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err == nil {
		return check
	}

	check.Status = StatusUnhealthy
	if p.optional {
		check.Status = StatusDegraded
	}
	check.Message = err.Error()
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		check.Message = ErrCheckTimeout.Error()
	}
	return check
}

func overall(checks map[string]Check) Status {
	status := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// ServeHTTP отдаёт отчёт в JSON; 503, если сервис unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Report(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// ReadinessHandler: "ready" или 503 "not ready".
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if h.Report(r.Context()).Status == StatusUnhealthy {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ready"))
}

func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}
