// Package http assembles the royalty API: the chi route tree and the server
// that hosts it.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http/handlers"
	"github.com/turtacn/LicenseIQ-Royalty/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil members are skipped.
type RouterConfig struct {
	// Handlers
	ContractHandler *handlers.ContractHandler
	HealthHandler   *handlers.HealthHandler

	// Middleware
	CORS        *middleware.CORSConfig
	RateLimiter *middleware.RateLimiter
	Auth        *middleware.Authenticator // guards /api/v1 only
	Logging     middleware.LoggingConfig

	// Infrastructure
	Logger         logging.Logger
	HTTPMetrics    middleware.HTTPMetrics
	MetricsHandler http.Handler
	MetricsPath    string
}

// NewRouter builds the route tree: health checks and metrics at the root, the
// royalty endpoints under /api/v1.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.HTTPMetrics, cfg.Logging))
	r.Use(chimw.Recoverer)
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Handler)
	}

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/healthz/detail", cfg.HealthHandler.Detailed)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		if cfg.Auth != nil {
			api.Use(cfg.Auth.Handler)
		}
		if cfg.ContractHandler != nil {
			cfg.ContractHandler.RegisterRoutes(api)
		}
	})
	return r
}
