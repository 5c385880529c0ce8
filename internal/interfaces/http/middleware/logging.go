// Package middleware holds the HTTP middleware chain of the royalty API.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// HTTPMetrics records served requests.
type HTTPMetrics interface {
	RecordHTTPRequest(method, path string, statusCode int, d time.Duration, reqSize, respSize int64)
	AddInFlight(method string, delta float64)
}

// LoggingConfig tunes request logging.
type LoggingConfig struct {
	// SkipPaths are neither logged nor measured.
	SkipPaths []string
	// SlowThreshold promotes successful requests slower than this to WARN.
	SlowThreshold time.Duration
}

// DefaultLoggingConfig skips the health and scrape endpoints.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		SkipPaths:     []string{"/healthz", "/readyz", "/metrics"},
		SlowThreshold: 10 * time.Second,
	}
}

// unmatchedRoute labels requests no route matched, keeping path cardinality
// bounded.
const unmatchedRoute = "unmatched"

// RequestLogging logs one line per request and records request metrics under
// the chi route pattern. It must run after chi's RequestID middleware so the
// request id reaches handler loggers through logging.FromContext.
func RequestLogging(log logging.Logger, metrics HTTPMetrics, cfg LoggingConfig) func(http.Handler) http.Handler {
	if log == nil {
		log = logging.NewNopLogger()
	}
	log = log.Named("http")
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			reqID := chimw.GetReqID(r.Context())
			if reqID != "" {
				w.Header().Set("X-Request-ID", reqID)
				r = r.WithContext(context.WithValue(r.Context(), common.ContextKeyRequestID, reqID))
			}

			if metrics != nil {
				metrics.AddInFlight(r.Method, 1)
				defer metrics.AddInFlight(r.Method, -1)
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			if metrics != nil {
				reqSize := r.ContentLength
				if reqSize < 0 {
					reqSize = 0
				}
				metrics.RecordHTTPRequest(r.Method, route, status, elapsed, reqSize, int64(ww.BytesWritten()))
			}

			fields := []logging.Field{
				logging.String("method", r.Method),
				logging.String("path", r.URL.Path),
				logging.String("route", route),
				logging.Int("status", status),
				logging.Duration("latency", elapsed),
				logging.Int("bytes", ww.BytesWritten()),
				logging.String("remote_addr", r.RemoteAddr),
			}
			if reqID != "" {
				fields = append(fields, logging.String("request_id", reqID))
			}

			switch {
			case status >= http.StatusInternalServerError:
				log.Error("request failed", fields...)
			case status >= http.StatusBadRequest:
				log.Warn("request rejected", fields...)
			case cfg.SlowThreshold > 0 && elapsed > cfg.SlowThreshold:
				log.Warn("slow request", fields...)
			default:
				log.Info("request served", fields...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}
