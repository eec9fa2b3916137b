package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/larachado/coordinator/api"
)

// HealthHandler serves the liveness/readiness endpoints.
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck is one pluggable readiness dependency (e.g. the cache ping).
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ReadyStatus is the /ready response body.
type ReadyStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, checks: make([]HealthCheck, 0)}
}

func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// HandleHealth serves GET /health with the exact {"status":"ok"} body the
// external API contract specifies.
// @Summary Liveness
// @Produce json
// @Success 200 {object} api.HealthResponse
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}

// HandleHealthz is the Kubernetes-style liveness probe alias of /health.
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady runs every registered readiness check and reports the
// aggregate result; used to gate traffic until collaborators are reachable.
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := ReadyStatus{Status: "ok", Checks: make(map[string]CheckResult)}
	allHealthy := true

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false
			h.logger.Warn("readiness check failed", zap.String("check", check.Name()), zap.Error(err))
		}
		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "not_ready"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// CacheHealthCheck pings the response cache as a readiness dependency.
type CacheHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

func NewCacheHealthCheck(name string, ping func(ctx context.Context) error) *CacheHealthCheck {
	return &CacheHealthCheck{name: name, ping: ping}
}

func (c *CacheHealthCheck) Name() string { return c.name }

func (c *CacheHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }
