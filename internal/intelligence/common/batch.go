// Package common holds the concurrency helpers shared by the AI provider
// layer: a generic batch processor and the retry backoff policy.
package common

import (
	"context"
	stdliberrors "errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// ---------------------------------------------------------------------------
// ItemStatus enumeration
// ---------------------------------------------------------------------------

// ItemStatus represents the outcome status of a single batch item.
type ItemStatus int

const (
	ItemStatusSuccess   ItemStatus = iota // processing completed successfully
	ItemStatusFailed                      // processing failed with an error
	ItemStatusTimeout                     // processing exceeded its timeout
	ItemStatusCancelled                   // processing was cancelled (context or shutdown)
)

// String returns the human-readable representation of an ItemStatus.
func (s ItemStatus) String() string {
	switch s {
	case ItemStatusSuccess:
		return "SUCCESS"
	case ItemStatusFailed:
		return "FAILED"
	case ItemStatusTimeout:
		return "TIMEOUT"
	case ItemStatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ---------------------------------------------------------------------------
// Generic types
// ---------------------------------------------------------------------------

// ProcessFunc is the signature for a function that processes a single item.
type ProcessFunc[T, R any] func(ctx context.Context, item T) (R, error)

// ItemResult holds the outcome of processing a single item within a batch.
type ItemResult[R any] struct {
	Index      int        `json:"index"`
	Result     R          `json:"result"`
	Error      error      `json:"error,omitempty"`
	DurationMs float64    `json:"duration_ms"`
	Status     ItemStatus `json:"status"`
}

// BatchResult aggregates the outcomes of an entire batch processing run.
// Results are in input order.
type BatchResult[R any] struct {
	Results           []*ItemResult[R] `json:"results"`
	TotalCount        int              `json:"total_count"`
	SuccessCount      int              `json:"success_count"`
	FailureCount      int              `json:"failure_count"`
	TotalDurationMs   float64          `json:"total_duration_ms"`
	AvgItemDurationMs float64          `json:"avg_item_duration_ms"`
}

// BatchProcessor runs a function over a batch of items.
type BatchProcessor[T, R any] interface {
	// ProcessChunks splits items into chunks of size and processes each chunk
	// concurrently, waiting for a chunk to finish before starting the next.
	ProcessChunks(ctx context.Context, items []T, size int, fn ProcessFunc[T, R]) (*BatchResult[R], error)
}

// BatchMetrics receives one event per finished batch.
type BatchMetrics interface {
	RecordBatchProcessing(name string, total, succeeded, failed int, d time.Duration)
}

type noopBatchMetrics struct{}

func (noopBatchMetrics) RecordBatchProcessing(string, int, int, int, time.Duration) {}

// ---------------------------------------------------------------------------
// RetryPolicy
// ---------------------------------------------------------------------------

// RetryPolicy is an exponential backoff schedule.
type RetryPolicy struct {
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	InitialBackoff    time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// CalculateBackoff returns the delay before retry number attempt+1:
// InitialBackoff * multiplier^attempt with ±25 % jitter, capped at MaxBackoff.
func CalculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil || policy.InitialBackoff <= 0 {
		return 0
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	base := float64(policy.InitialBackoff) * math.Pow(multiplier, float64(attempt))
	if policy.MaxBackoff > 0 && base > float64(policy.MaxBackoff) {
		base = float64(policy.MaxBackoff)
	}
	// jitter: ±25 %
	jitter := base * 0.25 * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// ---------------------------------------------------------------------------
// BatchOption functional options
// ---------------------------------------------------------------------------

type batchConfig struct {
	name           string
	maxConcurrency int
	itemTimeout    time.Duration
	metrics        BatchMetrics
	logger         logging.Logger
}

func defaultBatchConfig() *batchConfig {
	return &batchConfig{
		name:           "batch-processor",
		maxConcurrency: runtime.NumCPU(),
	}
}

// BatchOption configures a batchProcessor.
type BatchOption func(*batchConfig)

// WithBatchName labels the processor in logs and metrics.
func WithBatchName(name string) BatchOption {
	return func(c *batchConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMaxConcurrency sets the maximum number of items processed concurrently.
func WithMaxConcurrency(n int) BatchOption {
	return func(c *batchConfig) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithItemTimeout sets the per-item processing timeout. Zero means none.
func WithItemTimeout(d time.Duration) BatchOption {
	return func(c *batchConfig) {
		if d > 0 {
			c.itemTimeout = d
		}
	}
}

// WithBatchMetrics injects a metrics sink.
func WithBatchMetrics(m BatchMetrics) BatchOption {
	return func(c *batchConfig) {
		c.metrics = m
	}
}

// WithBatchLogger injects a logger.
func WithBatchLogger(l logging.Logger) BatchOption {
	return func(c *batchConfig) {
		c.logger = l
	}
}

// ---------------------------------------------------------------------------
// batchProcessor implementation
// ---------------------------------------------------------------------------

type batchProcessor[T, R any] struct {
	cfg     *batchConfig
	metrics BatchMetrics
	logger  logging.Logger
}

// NewBatchProcessor creates a new BatchProcessor with the supplied options.
func NewBatchProcessor[T, R any](opts ...BatchOption) BatchProcessor[T, R] {
	cfg := defaultBatchConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = noopBatchMetrics{}
	}
	if cfg.logger == nil {
		cfg.logger = logging.NewNopLogger()
	}
	return &batchProcessor[T, R]{
		cfg:     cfg,
		metrics: cfg.metrics,
		logger:  cfg.logger,
	}
}

func (bp *batchProcessor[T, R]) ProcessChunks(ctx context.Context, items []T, size int, fn ProcessFunc[T, R]) (*BatchResult[R], error) {
	if fn == nil {
		return nil, errors.InvalidParam("process function must not be nil")
	}
	n := len(items)
	if n == 0 {
		return &BatchResult[R]{Results: []*ItemResult[R]{}}, nil
	}
	if size <= 0 || size > n {
		size = n
	}

	batchStart := time.Now()

	results := make([]*ItemResult[R], n)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		if err := ctx.Err(); err != nil {
			for i := start; i < n; i++ {
				results[i] = &ItemResult[R]{Index: i, Error: err, Status: classifyCtxError(err)}
			}
			break
		}
		bp.runChunk(ctx, items, start, end, fn, results)
	}

	br := buildBatchResult(results, time.Since(batchStart))
	bp.metrics.RecordBatchProcessing(bp.cfg.name, br.TotalCount, br.SuccessCount, br.FailureCount, time.Since(batchStart))
	if br.FailureCount > 0 {
		bp.logger.Debug("batch finished with failures",
			logging.String("batch", bp.cfg.name),
			logging.Int("total", br.TotalCount),
			logging.Int("failed", br.FailureCount),
		)
	}
	return br, nil
}

// runChunk processes items[start:end] concurrently, writing into results by
// index.
func (bp *batchProcessor[T, R]) runChunk(ctx context.Context, items []T, start, end int, fn ProcessFunc[T, R], results []*ItemResult[R]) {
	var g errgroup.Group
	g.SetLimit(bp.cfg.maxConcurrency)
	for i := start; i < end; i++ {
		idx := i
		g.Go(func() error {
			results[idx] = bp.processOneItem(ctx, idx, items[idx], fn)
			return nil
		})
	}
	_ = g.Wait()
}

// processOneItem runs fn once under the item timeout.
func (bp *batchProcessor[T, R]) processOneItem(batchCtx context.Context, idx int, item T, fn ProcessFunc[T, R]) *ItemResult[R] {
	itemStart := time.Now()
	itemCtx, cancel := batchCtx, context.CancelFunc(func() {})
	if bp.cfg.itemTimeout > 0 {
		itemCtx, cancel = context.WithTimeout(batchCtx, bp.cfg.itemTimeout)
	}
	result, err := fn(itemCtx, item)
	cancel()

	if err != nil {
		return &ItemResult[R]{
			Index:      idx,
			Error:      err,
			Status:     classifyError(batchCtx, err),
			DurationMs: msSince(itemStart),
		}
	}
	return &ItemResult[R]{
		Index:      idx,
		Result:     result,
		Status:     ItemStatusSuccess,
		DurationMs: msSince(itemStart),
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func buildBatchResult[R any](results []*ItemResult[R], totalDuration time.Duration) *BatchResult[R] {
	br := &BatchResult[R]{
		Results:         results,
		TotalCount:      len(results),
		TotalDurationMs: float64(totalDuration.Microseconds()) / 1000.0,
	}
	var sumItemMs float64
	for _, r := range results {
		switch r.Status {
		case ItemStatusSuccess:
			br.SuccessCount++
		default:
			br.FailureCount++
		}
		sumItemMs += r.DurationMs
	}
	if br.TotalCount > 0 {
		br.AvgItemDurationMs = sumItemMs / float64(br.TotalCount)
	}
	return br
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}

func classifyCtxError(err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if stdliberrors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	return ItemStatusCancelled
}

func classifyError(batchCtx context.Context, err error) ItemStatus {
	if err == nil {
		return ItemStatusSuccess
	}
	if stdliberrors.Is(err, context.DeadlineExceeded) {
		return ItemStatusTimeout
	}
	if stdliberrors.Is(err, context.Canceled) {
		return ItemStatusCancelled
	}
	// Check if the batch context itself expired.
	if batchCtx.Err() != nil {
		return classifyCtxError(batchCtx.Err())
	}
	return ItemStatusFailed
}
