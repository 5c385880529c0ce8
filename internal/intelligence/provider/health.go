package provider

import (
	"sync"
	"time"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
)

// BreakerState is the state of a provider health tracker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the state by name.
func (s BreakerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Default breaker tuning.
const (
	DefaultMaxFailures = 3
	DefaultCooldown    = 5 * time.Minute
)

// HealthConfig tunes a HealthTracker.
type HealthConfig struct {
	MaxFailures int           `json:"max_failures" yaml:"max_failures"`
	Cooldown    time.Duration `json:"cooldown" yaml:"cooldown"`
}

// ProviderHealthState is a point-in-time copy of tracker state.
type ProviderHealthState struct {
	Provider      string       `json:"provider"`
	State         BreakerState `json:"state"`
	FailureCount  int          `json:"failureCount"`
	CooldownUntil time.Time    `json:"cooldownUntil,omitempty"`
}

// StateListener is notified of every state transition.
type StateListener func(provider string, from, to BreakerState)

// HealthTracker is a two-state breaker for the primary provider. After
// MaxFailures retriable failures it opens for Cooldown. Once the cooldown
// has elapsed the provider is available again; a success closes the
// breaker, a retriable failure re-opens it at once.
type HealthTracker struct {
	mu            sync.Mutex
	provider      string
	cfg           HealthConfig
	state         BreakerState
	failureCount  int
	cooldownUntil time.Time

	now      func() time.Time
	listener StateListener
	logger   logging.Logger
}

// TrackerOption configures a HealthTracker.
type TrackerOption func(*HealthTracker)

// WithClock injects the time source.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *HealthTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithStateListener registers a transition callback. It is invoked while
// the tracker lock is held and must not call back into the tracker.
func WithStateListener(l StateListener) TrackerOption {
	return func(t *HealthTracker) { t.listener = l }
}

// NewHealthTracker creates a closed tracker for provider.
func NewHealthTracker(provider string, cfg HealthConfig, logger logging.Logger, opts ...TrackerOption) *HealthTracker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	t := &HealthTracker{
		provider: provider,
		cfg:      cfg,
		state:    StateClosed,
		now:      time.Now,
		logger:   logger,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// RecordSuccess resets the failure count and closes an open breaker whose
// cooldown has elapsed.
func (t *HealthTracker) RecordSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureCount = 0
	if t.state == StateOpen && !t.now().Before(t.cooldownUntil) {
		t.cooldownUntil = time.Time{}
		t.transition(StateClosed)
	}
}

// RecordFailure counts a retriable failure. Permanent failures leave the
// tracker untouched.
func (t *HealthTracker) RecordFailure(retriable bool) {
	if !retriable {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failureCount++
	now := t.now()
	switch {
	case t.state == StateOpen:
		// trial call after cooldown failed
		t.cooldownUntil = now.Add(t.cfg.Cooldown)
		t.logger.Warn("provider trial call failed, breaker re-opened",
			logging.String("provider", t.provider),
			logging.Int("failure_count", t.failureCount),
		)
		t.notify(StateOpen, StateOpen)
	case t.failureCount >= t.cfg.MaxFailures:
		t.cooldownUntil = now.Add(t.cfg.Cooldown)
		t.transition(StateOpen)
	}
}

// IsAvailable reports whether the provider may be called.
func (t *HealthTracker) IsAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateClosed || !t.now().Before(t.cooldownUntil)
}

// Snapshot returns a copy of the tracker state.
func (t *HealthTracker) Snapshot() ProviderHealthState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ProviderHealthState{
		Provider:      t.provider,
		State:         t.state,
		FailureCount:  t.failureCount,
		CooldownUntil: t.cooldownUntil,
	}
}

func (t *HealthTracker) transition(to BreakerState) {
	from := t.state
	t.state = to
	t.logger.Info("provider breaker state change",
		logging.String("provider", t.provider),
		logging.Stringer("from", from),
		logging.Stringer("to", to),
		logging.Int("failure_count", t.failureCount),
	)
	t.notify(from, to)
}

func (t *HealthTracker) notify(from, to BreakerState) {
	if t.listener != nil {
		t.listener(t.provider, from, to)
	}
}
