package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

type chatServer struct {
	*httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	requests []chatRequest
	auth     string
}

// newChatServer replies with respond(call) where call counts from 1.
func newChatServer(t *testing.T, respond func(call int, w http.ResponseWriter)) *chatServer {
	t.Helper()
	s := &chatServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req chatRequest
		_ = json.Unmarshal(body, &req)
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()
		respond(int(s.calls.Add(1)), w)
	}))
	t.Cleanup(s.Close)
	return s
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	})
	return string(b)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func newTestClient(url string, sleeper *sleepRecorder) *ChatClient {
	cfg := ChatConfig{Name: GroqName, BaseURL: url, APIKey: "test-key", MaxRetries: 2, RetryBase: 10 * time.Millisecond}
	cfg.applyDefaults(GroqBaseURL, GroqModel)
	return NewChatClient(cfg, nil, nil, WithSleep(sleeper.sleep))
}

func TestChatClient_Success(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, completion(`{"ok": true}`))
	})
	c := newTestClient(srv.URL, &sleepRecorder{})

	out, err := c.Complete(context.Background(), OpAnalyze, Prompt{System: "sys", User: "user"})
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)

	require.Len(t, srv.requests, 1)
	req := srv.requests[0]
	assert.Equal(t, "Bearer test-key", srv.auth)
	assert.Equal(t, GroqModel, req.Model)
	assert.Equal(t, DefaultTemperature, req.Temperature)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.Nil(t, req.ResponseFormat)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Content)
}

func TestChatClient_NotConfigured(t *testing.T) {
	c := NewChatClient(ChatConfig{Name: OpenAIName}, nil, nil)
	_, err := c.Complete(context.Background(), OpAnalyze, Prompt{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.False(t, IsRetriable(err))
	assert.True(t, apperrors.IsCode(ToAppError(err), apperrors.ErrCodeProviderNotConfigured))
}

func TestChatClient_RateLimitRetriedThenSucceeds(t *testing.T) {
	srv := newChatServer(t, func(call int, w http.ResponseWriter) {
		if call == 1 {
			w.Header().Set("Retry-After", "2")
			writeJSON(w, http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`)
			return
		}
		writeJSON(w, http.StatusOK, completion("done"))
	})
	sleeper := &sleepRecorder{}
	c := newTestClient(srv.URL, sleeper)

	out, err := c.Complete(context.Background(), OpExtract, Prompt{})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(2), srv.calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, sleeper.delays)
}

func TestChatClient_RateLimitExhausted(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`)
	})
	sleeper := &sleepRecorder{}
	c := newTestClient(srv.URL, sleeper)

	_, err := c.Complete(context.Background(), OpExtract, Prompt{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusTooManyRequests, pe.StatusCode)
	assert.Equal(t, "slow down", pe.Message)
	assert.True(t, IsRetriable(err))
	assert.Equal(t, int32(3), srv.calls.Load())
	assert.Len(t, sleeper.delays, 2)
	assert.True(t, apperrors.IsCode(ToAppError(err), apperrors.ErrCodeProviderRateLimited))
}

func TestChatClient_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retriable bool
		code      apperrors.ErrorCode
	}{
		{http.StatusInternalServerError, true, apperrors.ErrCodeProviderUnavailable},
		{http.StatusBadGateway, true, apperrors.ErrCodeProviderUnavailable},
		{http.StatusBadRequest, false, apperrors.ErrCodeProviderRejected},
		{http.StatusUnauthorized, false, apperrors.ErrCodeProviderRejected},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
				writeJSON(w, tt.status, "upstream says no")
			})
			c := newTestClient(srv.URL, &sleepRecorder{})

			_, err := c.Complete(context.Background(), OpAnalyze, Prompt{})
			require.Error(t, err)
			assert.Equal(t, tt.retriable, IsRetriable(err))
			assert.Equal(t, int32(1), srv.calls.Load(), "only 429 is retried")
			assert.Contains(t, err.Error(), "upstream says no")
			assert.True(t, apperrors.IsCode(ToAppError(err), tt.code))
		})
	}
}

func TestChatClient_EmptyCompletionIsBadOutput(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, `{"choices": []}`)
	})
	c := newTestClient(srv.URL, &sleepRecorder{})

	_, err := c.Complete(context.Background(), OpAnalyze, Prompt{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.BadOutput)
	assert.False(t, IsRetriable(err))
	assert.True(t, apperrors.IsCode(ToAppError(err), apperrors.ErrCodeProviderBadOutput))
}

func TestChatClient_TransportErrorIsRetriable(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {})
	url := srv.URL
	srv.Close()
	c := newTestClient(url, &sleepRecorder{})

	_, err := c.Complete(context.Background(), OpAnalyze, Prompt{})
	require.Error(t, err)
	assert.True(t, IsRetriable(err))
}

func TestChatClient_CancelledIsPermanent(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, completion("late"))
	})
	c := newTestClient(srv.URL, &sleepRecorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, OpAnalyze, Prompt{})
	require.Error(t, err)
	assert.False(t, IsRetriable(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenAIAdapter_UsesJSONMode(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, completion(`{"isValid": true, "confidence": 0.9, "reasoning": "ok"}`))
	})
	a := NewOpenAIAdapter(ChatConfig{BaseURL: srv.URL, APIKey: "k"}, testSchemas, nil, nil)

	v, err := a.ValidateMatch(context.Background(), MatchValidationRequest{TransactionRef: "tx-9", ProductName: "Rose"})
	require.NoError(t, err)
	assert.Equal(t, "tx-9", v.TransactionRef)
	assert.True(t, v.IsValid)

	require.Len(t, srv.requests, 1)
	require.NotNil(t, srv.requests[0].ResponseFormat)
	assert.Equal(t, "json_object", srv.requests[0].ResponseFormat.Type)
	assert.Equal(t, OpenAIModel, srv.requests[0].Model)
	assert.Contains(t, srv.requests[0].Messages[1].Content, "Rose")
}

func TestGroqAdapter_ExtractRoyaltyRules(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, completion(extractionFixture))
	})
	a := NewGroqAdapter(ChatConfig{BaseURL: srv.URL, APIKey: "k"}, testSchemas, nil, nil)

	out, err := a.ExtractRoyaltyRules(context.Background(), "Section 4. Royalty")
	require.NoError(t, err)
	assert.Equal(t, GroqName, out.Provider)
	assert.Len(t, out.Rules, 2)
	assert.Contains(t, srv.requests[0].Messages[1].Content, "Section 4. Royalty")
}

func TestGroqAdapter_UnparseableOutputIsBadOutput(t *testing.T) {
	srv := newChatServer(t, func(_ int, w http.ResponseWriter) {
		writeJSON(w, http.StatusOK, completion("I'm sorry, I can't help with that."))
	})
	a := NewGroqAdapter(ChatConfig{BaseURL: srv.URL, APIKey: "k"}, testSchemas, nil, nil)

	_, err := a.AnalyzeContract(context.Background(), "text")
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.BadOutput)
	assert.Equal(t, OpAnalyze, pe.Operation)
	assert.False(t, IsRetriable(err))
}

func TestRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, retryAfter(h))
	h.Set("Retry-After", "5")
	assert.Equal(t, 5*time.Second, retryAfter(h))
	h.Set("Retry-After", "120")
	assert.Equal(t, maxRetryDelay, retryAfter(h))
	h.Set("Retry-After", "Wed, 21 Oct 2015 07:28:00 GMT")
	assert.Zero(t, retryAfter(h))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, outcomeOf(nil))
	assert.Equal(t, OutcomeCancelled, outcomeOf(context.Canceled))
	assert.Equal(t, OutcomeRateLimited, outcomeOf(&ProviderError{StatusCode: 429}))
	assert.Equal(t, OutcomeBadOutput, outcomeOf(&ProviderError{BadOutput: true}))
	assert.Equal(t, OutcomeError, outcomeOf(&ProviderError{StatusCode: 500}))
	assert.Equal(t, OutcomeError, outcomeOf(errors.New("boom")))
}

func TestToAppError_BothFailed(t *testing.T) {
	err := &BothProvidersFailedError{Primary: errors.New("a"), Fallback: errors.New("b")}
	assert.True(t, apperrors.IsCode(ToAppError(err), apperrors.ErrCodeBothProvidersFailed))
	assert.Nil(t, ToAppError(nil))
}
