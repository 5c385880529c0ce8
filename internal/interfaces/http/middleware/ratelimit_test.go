package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(rps float64, burst int) (*RateLimiter, *time.Time) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: rps, Burst: burst, IdleTTL: time.Minute})
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	l, now := newTestLimiter(1, 2)

	ok, _ := l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
	ok, wait := l.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.InDelta(t, time.Second.Seconds(), wait.Seconds(), 0.01)

	*now = now.Add(time.Second)
	ok, _ = l.Allow("10.0.0.1")
	assert.True(t, ok)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, 1)

	ok, _ := l.Allow("a")
	assert.True(t, ok)
	ok, _ = l.Allow("a")
	assert.False(t, ok)
	ok, _ = l.Allow("b")
	assert.True(t, ok)
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	l, now := newTestLimiter(5, 5)
	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Clients())

	*now = now.Add(2 * time.Minute)
	l.Allow("c")

	assert.Equal(t, 1, l.Clients())
}

func TestRateLimiter_Handler(t *testing.T) {
	l, _ := newTestLimiter(1, 1)
	h := l.Handler(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contracts/C-1/extract", nil)
	req.RemoteAddr = "192.0.2.7:51000"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req.RemoteAddr = "192.0.2.7:51001"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "COMMON_007", body["code"])
}

func TestRateLimiter_SkipPaths(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, Burst: 1, SkipPaths: []string{"/healthz"}})
	h := l.Handler(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Zero(t, l.Clients())
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 2.5})
	assert.Equal(t, 3, l.cfg.Burst)
	assert.Equal(t, DefaultRateLimitConfig().IdleTTL, l.cfg.IdleTTL)
	assert.NotNil(t, l.cfg.KeyFunc)
}
