package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/testutil"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

type recordedRequest struct {
	method, path string
	status       int
	respSize     int64
}

type fakeHTTPMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
	inFlight map[string]float64
}

func newFakeHTTPMetrics() *fakeHTTPMetrics {
	return &fakeHTTPMetrics{inFlight: map[string]float64{}}
}

func (f *fakeHTTPMetrics) RecordHTTPRequest(method, path string, status int, _ time.Duration, _, respSize int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{method, path, status, respSize})
}

func (f *fakeHTTPMetrics) AddInFlight(method string, delta float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[method] += delta
}

func newLoggedRouter(log logging.Logger, m HTTPMetrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogging(log, m, DefaultLoggingConfig()))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/contracts/{id}/rules", func(w http.ResponseWriter, r *http.Request) {
		id, _ := r.Context().Value(common.ContextKeyRequestID).(string)
		_, _ = w.Write([]byte(id))
	})
	r.Post("/contracts/{id}/calculate", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func TestRequestLogging_RecordsRoutePattern(t *testing.T) {
	log := testutil.NewMockLogger()
	m := newFakeHTTPMetrics()
	router := newLoggedRouter(log, m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contracts/C-1/rules", nil))

	require.Equal(t, http.StatusOK, w.Code)
	reqID := w.Header().Get("X-Request-ID")
	assert.NotEmpty(t, reqID)
	assert.Equal(t, reqID, w.Body.String(), "request id reaches the handler context")

	require.Len(t, m.requests, 1)
	assert.Equal(t, recordedRequest{"GET", "/contracts/{id}/rules", 200, int64(len(reqID))}, m.requests[0])
	assert.Equal(t, 0.0, m.inFlight["GET"])

	entry, ok := log.Find("info", "request served")
	require.True(t, ok)
	assert.Equal(t, "http", entry.Logger)
	route, _ := entry.Field("route")
	assert.Equal(t, "/contracts/{id}/rules", route)
}

func TestRequestLogging_ServerErrorLoggedAsError(t *testing.T) {
	log := testutil.NewMockLogger()
	router := newLoggedRouter(log, newFakeHTTPMetrics())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/contracts/C-1/calculate", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	entry, ok := log.Find("error", "request failed")
	require.True(t, ok)
	status, _ := entry.Field("status")
	assert.Equal(t, 500, status)
}

func TestRequestLogging_UnmatchedRoute(t *testing.T) {
	log := testutil.NewMockLogger()
	m := newFakeHTTPMetrics()
	router := newLoggedRouter(log, m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	require.Len(t, m.requests, 1)
	assert.Equal(t, unmatchedRoute, m.requests[0].path)
	assert.True(t, log.HasMessage("warn", "request rejected"))
}

func TestRequestLogging_SkipsHealthChecks(t *testing.T) {
	log := testutil.NewMockLogger()
	m := newFakeHTTPMetrics()
	router := newLoggedRouter(log, m)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, m.requests)
	assert.Empty(t, log.GetMessages())
}

func TestRequestLogging_NilCollaborators(t *testing.T) {
	router := newLoggedRouter(nil, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contracts/C-1/rules", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
