package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/common"
)

// Chat defaults shared by both providers.
const (
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 4000
	DefaultTimeout     = 60 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryBase   = time.Second
	maxRetryDelay      = 30 * time.Second
	maxResponseBytes   = 4 << 20
)

// ChatConfig configures an OpenAI-compatible chat completions endpoint.
type ChatConfig struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	RetryBase   time.Duration
	// RatePerSec caps outbound requests; zero disables the limiter.
	RatePerSec float64
	// JSONMode asks the endpoint for a JSON object response.
	JSONMode bool
}

func (c *ChatConfig) applyDefaults(baseURL, model string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
}

// ChatOption configures a ChatClient.
type ChatOption func(*ChatClient)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ChatOption {
	return func(c *ChatClient) { c.http = hc }
}

// WithSleep replaces the retry wait, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ChatOption {
	return func(c *ChatClient) { c.sleep = sleep }
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatClient calls a chat completions endpoint. Rate-limited responses are
// retried with exponential backoff before the error is returned.
type ChatClient struct {
	cfg     ChatConfig
	http    *http.Client
	limiter *rate.Limiter
	retry   *common.RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	logger  logging.Logger
	metrics Metrics
}

// NewChatClient creates a client for cfg. Callers set defaults first.
func NewChatClient(cfg ChatConfig, logger logging.Logger, metrics Metrics, opts ...ChatOption) *ChatClient {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	c := &ChatClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		retry: &common.RetryPolicy{
			MaxRetries:        cfg.MaxRetries,
			InitialBackoff:    cfg.RetryBase,
			MaxBackoff:        maxRetryDelay,
			BackoffMultiplier: 2,
		},
		sleep:   sleepCtx,
		logger:  logger.Named(cfg.Name),
		metrics: metrics,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Name returns the provider name.
func (c *ChatClient) Name() string { return c.cfg.Name }

// Complete sends p and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, op string, p Prompt) (string, error) {
	if c.cfg.APIKey == "" {
		return "", &ProviderError{Provider: c.cfg.Name, Operation: op, Message: "api key not configured", Err: ErrNotConfigured}
	}
	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    p.Messages(),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if c.cfg.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &ProviderError{Provider: c.cfg.Name, Operation: op, Message: "encode request", Err: err}
	}

	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", c.transportError(ctx, op, err)
			}
		}
		start := time.Now()
		text, retryAfter, err := c.do(ctx, op, payload)
		c.metrics.RecordProviderRequest(c.cfg.Name, op, outcomeOf(err), time.Since(start))
		if err == nil {
			return text, nil
		}
		pe, ok := err.(*ProviderError)
		if !ok || pe.StatusCode != http.StatusTooManyRequests || attempt >= c.retry.MaxRetries {
			return "", err
		}
		delay := common.CalculateBackoff(attempt, c.retry)
		if retryAfter > delay {
			delay = retryAfter
		}
		c.logger.Warn("rate limited, retrying",
			logging.String("operation", op),
			logging.Int("attempt", attempt+1),
			logging.Duration("delay", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return "", c.transportError(ctx, op, err)
		}
	}
}

func (c *ChatClient) do(ctx context.Context, op string, payload []byte) (string, time.Duration, error) {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", 0, &ProviderError{Provider: c.cfg.Name, Operation: op, Message: "create request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, c.transportError(ctx, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", 0, c.transportError(ctx, op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", retryAfter(resp.Header), &ProviderError{
			Provider:   c.cfg.Name,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
			Retriable:  IsRetriableStatus(resp.StatusCode),
		}
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return "", 0, &ProviderError{Provider: c.cfg.Name, Operation: op, BadOutput: true, Message: "decode response", Err: err}
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", 0, &ProviderError{Provider: c.cfg.Name, Operation: op, BadOutput: true, Message: "empty completion"}
	}
	c.logger.Debug("completion received",
		logging.String("operation", op),
		logging.Int("prompt_tokens", cr.Usage.PromptTokens),
		logging.Int("completion_tokens", cr.Usage.CompletionTokens),
	)
	return cr.Choices[0].Message.Content, 0, nil
}

// transportError classifies a failure that produced no HTTP status. Caller
// cancellation is permanent; anything else is an upstream failure.
func (c *ChatClient) transportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ProviderError{Provider: c.cfg.Name, Operation: op, Message: "request cancelled", Err: ctxErr}
	}
	return &ProviderError{Provider: c.cfg.Name, Operation: op, Retriable: true, Err: err}
}

func errorMessage(body []byte) string {
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Message != "" {
		return ae.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		d := time.Duration(secs) * time.Second
		if d > maxRetryDelay {
			d = maxRetryDelay
		}
		return d
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// badOutput wraps a parse failure as a permanent provider error.
func badOutput(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Operation: op, BadOutput: true, Message: fmt.Sprintf("unusable output: %v", err), Err: err}
}
