package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/InfernusReal/beddingstore/internal/platform/httpx"
)

// ReadinessChecker reports whether a downstream dependency can serve.
type ReadinessChecker func(ctx context.Context) error

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	startedAt time.Time
	clock     func() time.Time
	checks    map[string]ReadinessChecker
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// NewHealthHandlers constructs handlers for /healthz and /readyz.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{
		startedAt: time.Now(),
		clock:     time.Now,
		checks:    make(map[string]ReadinessChecker),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithHealthClock overrides the clock. Test hook.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
			h.startedAt = clock()
		}
	}
}

// WithHealthCheck registers a named readiness check.
func WithHealthCheck(name string, check ReadinessChecker) HealthOption {
	return func(h *HealthHandlers) {
		if name != "" && check != nil {
			h.checks[name] = check
		}
	}
}

// Healthz reports liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.startedAt).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

// Readyz runs every registered readiness check and degrades to 503 when any
// fails.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	payload := map[string]any{"status": "ok", "checks": checks}
	if status != http.StatusOK {
		payload["status"] = "degraded"
	}
	httpx.WriteJSON(w, status, payload)
}
