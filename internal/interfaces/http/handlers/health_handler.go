package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
)

// HealthChecker is a dependency that can report its health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

type checkerFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c checkerFunc) Name() string                    { return c.name }
func (c checkerFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// NewChecker adapts a ping function such as postgres.Connection.HealthCheck.
func NewChecker(name string, fn func(ctx context.Context) error) HealthChecker {
	return checkerFunc{name: name, fn: fn}
}

// ProviderStatus reports the AI provider chain.
type ProviderStatus interface {
	Health() provider.ProviderHealthState
	Providers() (primary, fallback string)
}

// HealthReporter receives component health after every readiness check.
type HealthReporter interface {
	SetHealth(component string, up bool)
}

// HealthHandler serves the liveness, readiness and detail checks.
type HealthHandler struct {
	checkers  []HealthChecker
	providers ProviderStatus
	reporter  HealthReporter
	version   string
	startAt   time.Time
	logger    logging.Logger
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithProviderStatus adds the provider breaker to the detail check.
func WithProviderStatus(p ProviderStatus) HealthOption {
	return func(h *HealthHandler) { h.providers = p }
}

// WithHealthReporter exports check results, typically as metrics.
func WithHealthReporter(r HealthReporter) HealthOption {
	return func(h *HealthHandler) { h.reporter = r }
}

// NewHealthHandler creates a HealthHandler over checkers.
func NewHealthHandler(version string, logger logging.Logger, checkers []HealthChecker, opts ...HealthOption) *HealthHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	h := &HealthHandler{
		checkers: checkers,
		version:  version,
		startAt:  time.Now(),
		logger:   logger.Named("health"),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// LivenessResponse is the liveness check body.
type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ReadinessResponse is the readiness check body.
type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

// ComponentCheck is the health of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// DetailedResponse is the detail check body.
type DetailedResponse struct {
	Status     string                    `json:"status"`
	Version    string                    `json:"version"`
	Uptime     string                    `json:"uptime"`
	Components map[string]ComponentCheck `json:"components"`
	Providers  *ProvidersInfo            `json:"providers,omitempty"`
}

// ProvidersInfo names the provider chain and the primary breaker state.
type ProvidersInfo struct {
	Primary  string                       `json:"primary"`
	Fallback string                       `json:"fallback"`
	Breaker  provider.ProviderHealthState `json:"breaker"`
}

// Liveness handles GET /healthz. It never checks dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  h.uptime(),
	})
}

// Readiness handles GET /readyz: 200 when every dependency answers, 503
// otherwise. An open provider breaker does not make the service unready
// because the fallback provider still serves.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if len(h.checkers) == 0 {
		writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	components, healthy := h.checkAll(ctx)
	resp := ReadinessResponse{Status: "ready", Components: components}
	code := http.StatusOK
	if !healthy {
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Detailed handles GET /healthz/detail.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	components, healthy := h.checkAll(ctx)
	resp := DetailedResponse{
		Status:     "healthy",
		Version:    h.version,
		Uptime:     h.uptime(),
		Components: components,
	}
	if h.providers != nil {
		primary, fallback := h.providers.Providers()
		resp.Providers = &ProvidersInfo{Primary: primary, Fallback: fallback, Breaker: h.providers.Health()}
		if resp.Providers.Breaker.State == provider.StateOpen {
			resp.Status = "degraded"
		}
	}
	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.startAt).Truncate(time.Second).String()
}

// checkAll runs the checkers concurrently.
func (h *HealthHandler) checkAll(ctx context.Context) (map[string]ComponentCheck, bool) {
	results := make(map[string]ComponentCheck, len(h.checkers))
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
	)
	for _, checker := range h.checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			start := time.Now()
			err := c.Check(ctx)
			cc := ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = "unhealthy"
				cc.Error = err.Error()
				h.logger.Warn("dependency unhealthy", logging.String("component", c.Name()), logging.Err(err))
			}
			if h.reporter != nil {
				h.reporter.SetHealth(c.Name(), err == nil)
			}

			mu.Lock()
			results[c.Name()] = cc
			if err != nil {
				healthy = false
			}
			mu.Unlock()
		}(checker)
	}
	wg.Wait()
	return results, healthy
}
