package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// ErrNotConfigured is returned by adapters without credentials.
var ErrNotConfigured = stderrors.New("provider not configured")

// ProviderError describes a failed provider call.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Message    string
	Retriable  bool
	// BadOutput marks a response that arrived but could not be used.
	BadOutput bool
	Err       error
}

func (e *ProviderError) Error() string {
	status := "transport"
	if e.StatusCode > 0 {
		status = fmt.Sprintf("status %d", e.StatusCode)
	}
	if e.BadOutput {
		status = "bad output"
	}
	msg := fmt.Sprintf("%s %s: %s", e.Provider, e.Operation, status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil && e.Message == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetriableStatus reports whether status is a transient upstream failure.
func IsRetriableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// IsRetriable reports whether err should trip the breaker and trigger the
// fallback provider. Caller cancellation never does.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if stderrors.As(err, &pe) {
		return pe.Retriable
	}
	return false
}

// BothProvidersFailedError is returned when the primary failed retriably and
// the fallback failed too.
type BothProvidersFailedError struct {
	Primary  error
	Fallback error
}

func (e *BothProvidersFailedError) Error() string {
	return fmt.Sprintf("both providers failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *BothProvidersFailedError) Unwrap() []error { return []error{e.Primary, e.Fallback} }

// ToAppError maps provider failures onto application error codes.
func ToAppError(err error) error {
	if err == nil {
		return nil
	}
	var both *BothProvidersFailedError
	if stderrors.As(err, &both) {
		return errors.Wrap(err, errors.ErrCodeBothProvidersFailed, "all AI providers failed")
	}
	if stderrors.Is(err, ErrNotConfigured) {
		return errors.Wrap(err, errors.ErrCodeProviderNotConfigured, "AI provider not configured")
	}
	var pe *ProviderError
	if !stderrors.As(err, &pe) {
		return err
	}
	switch {
	case pe.BadOutput:
		return errors.Wrap(err, errors.ErrCodeProviderBadOutput, "AI provider returned unusable output")
	case pe.StatusCode == http.StatusTooManyRequests:
		return errors.Wrap(err, errors.ErrCodeProviderRateLimited, "AI provider rate limited")
	case pe.Retriable:
		return errors.Wrap(err, errors.ErrCodeProviderUnavailable, "AI provider unavailable")
	default:
		return errors.Wrap(err, errors.ErrCodeProviderRejected, "AI provider rejected the request")
	}
}
