package provider

import (
	"context"
	"errors"
	"time"
)

// Request outcomes reported to Metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
	OutcomeBadOutput   = "bad_output"
	OutcomeCancelled   = "cancelled"
)

// Metrics receives provider observability events.
type Metrics interface {
	RecordProviderRequest(provider, operation, outcome string, d time.Duration)
	RecordBreakerTransition(provider, from, to string)
	RecordFailover(operation, reason string)
}

type noopMetrics struct{}

// NewNoopMetrics returns a Metrics that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordProviderRequest(string, string, string, time.Duration) {}
func (noopMetrics) RecordBreakerTransition(string, string, string)             {}
func (noopMetrics) RecordFailover(string, string)                             {}

// MetricsListener adapts m into a StateListener for a HealthTracker.
func MetricsListener(m Metrics) StateListener {
	return func(provider string, from, to BreakerState) {
		m.RecordBreakerTransition(provider, from.String(), to.String())
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancelled
	}
	var pe *ProviderError
	switch {
	case !errors.As(err, &pe):
		return OutcomeError
	case pe.BadOutput:
		return OutcomeBadOutput
	case pe.StatusCode == 429:
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}
