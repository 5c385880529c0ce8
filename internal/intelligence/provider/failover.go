package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/common"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// Orchestrator defaults.
const (
	DefaultFallbackInterval    = 100 * time.Millisecond
	DefaultValidationBatchSize = 5
)

// OrchestratorConfig tunes an Orchestrator.
type OrchestratorConfig struct {
	// FallbackInterval is the minimum spacing between fallback calls.
	FallbackInterval time.Duration
	// ValidationBatchSize is the number of match validations run at once.
	ValidationBatchSize int
	// ValidationTimeout bounds each match validation. Zero means none.
	ValidationTimeout time.Duration
	Filter            *TextFilter
	// BatchMetrics receives one event per validation batch. Optional.
	BatchMetrics common.BatchMetrics
}

// Orchestrator routes provider operations to the primary adapter while its
// health tracker allows, and to the fallback otherwise or on transient
// primary failure.
type Orchestrator struct {
	primary   Adapter
	fallback  Adapter
	tracker   *HealthTracker
	limiter   *rate.Limiter
	filter    *TextFilter
	batch     common.BatchProcessor[MatchValidationRequest, *MatchValidation]
	batchSize int
	logger    logging.Logger
	metrics   Metrics
}

// NewOrchestrator wires primary and fallback behind tracker. tracker must
// track primary.
func NewOrchestrator(primary, fallback Adapter, tracker *HealthTracker, cfg OrchestratorConfig, logger logging.Logger, metrics Metrics) (*Orchestrator, error) {
	if primary == nil || fallback == nil {
		return nil, errors.InvalidParam("primary and fallback adapters are required")
	}
	if tracker == nil {
		return nil, errors.InvalidParam("health tracker is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if metrics == nil {
		metrics = NewNoopMetrics()
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = DefaultFallbackInterval
	}
	if cfg.ValidationBatchSize <= 0 {
		cfg.ValidationBatchSize = DefaultValidationBatchSize
	}
	if cfg.Filter == nil {
		cfg.Filter = NewTextFilter(DefaultContextLines, DefaultMinLength, DefaultFallbackLength)
	}
	logger = logger.Named("orchestrator")
	return &Orchestrator{
		primary:   primary,
		fallback:  fallback,
		tracker:   tracker,
		limiter:   rate.NewLimiter(rate.Every(cfg.FallbackInterval), 1),
		filter:    cfg.Filter,
		batchSize: cfg.ValidationBatchSize,
		batch:     newValidationBatch(cfg, logger),
		logger:    logger,
		metrics:   metrics,
	}, nil
}

func newValidationBatch(cfg OrchestratorConfig, logger logging.Logger) common.BatchProcessor[MatchValidationRequest, *MatchValidation] {
	opts := []common.BatchOption{
		common.WithBatchName("match_validation"),
		common.WithMaxConcurrency(cfg.ValidationBatchSize),
		common.WithItemTimeout(cfg.ValidationTimeout),
		common.WithBatchLogger(logger),
	}
	if cfg.BatchMetrics != nil {
		opts = append(opts, common.WithBatchMetrics(cfg.BatchMetrics))
	}
	return common.NewBatchProcessor[MatchValidationRequest, *MatchValidation](opts...)
}

// Operation is one provider call run against whichever adapter is chosen.
type Operation[T any] struct {
	Name string
	Call func(ctx context.Context, a Adapter) (T, error)
}

// ExecuteWithFailover runs op on the primary adapter and falls back on a
// transient failure. Permanent failures are returned as they are, without
// touching the tracker. When the tracker reports the primary unavailable
// only the fallback is called.
func ExecuteWithFailover[T any](ctx context.Context, o *Orchestrator, op Operation[T]) (T, error) {
	var zero T
	if !o.tracker.IsAvailable() {
		o.metrics.RecordFailover(op.Name, "breaker_open")
		o.logger.Info("primary unavailable, using fallback",
			logging.String("operation", op.Name),
			logging.String("fallback", o.fallback.Name()),
		)
		return callFallback(ctx, o, op)
	}

	res, err := op.Call(ctx, o.primary)
	if err == nil {
		o.tracker.RecordSuccess()
		return res, nil
	}
	if ctx.Err() != nil || !IsRetriable(err) {
		return zero, err
	}

	o.tracker.RecordFailure(true)
	o.metrics.RecordFailover(op.Name, outcomeOf(err))
	o.logger.Warn("primary failed, falling back",
		logging.String("operation", op.Name),
		logging.String("primary", o.primary.Name()),
		logging.String("fallback", o.fallback.Name()),
		logging.Err(err),
	)
	fres, ferr := callFallback(ctx, o, op)
	if ferr != nil {
		return zero, &BothProvidersFailedError{Primary: err, Fallback: ferr}
	}
	return fres, nil
}

func callFallback[T any](ctx context.Context, o *Orchestrator, op Operation[T]) (T, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	return op.Call(ctx, o.fallback)
}

// AnalyzeContract produces a general analysis of text.
func (o *Orchestrator) AnalyzeContract(ctx context.Context, text string) (*ContractAnalysis, error) {
	return ExecuteWithFailover(ctx, o, Operation[*ContractAnalysis]{
		Name: OpAnalyze,
		Call: func(ctx context.Context, a Adapter) (*ContractAnalysis, error) {
			return a.AnalyzeContract(ctx, text)
		},
	})
}

// FilterText applies the orchestrator's relevant text filter.
func (o *Orchestrator) FilterText(text string) string {
	return o.filter.Apply(text)
}

// ExtractRoyaltyRules filters text down to royalty passages and extracts
// rules from it.
func (o *Orchestrator) ExtractRoyaltyRules(ctx context.Context, text string) (*RuleExtraction, error) {
	return o.ExtractFiltered(ctx, o.FilterText(text))
}

// ExtractFiltered extracts rules from already filtered text.
func (o *Orchestrator) ExtractFiltered(ctx context.Context, filtered string) (*RuleExtraction, error) {
	return ExecuteWithFailover(ctx, o, Operation[*RuleExtraction]{
		Name: OpExtract,
		Call: func(ctx context.Context, a Adapter) (*RuleExtraction, error) {
			return a.ExtractRoyaltyRules(ctx, filtered)
		},
	})
}

// ValidateMatches asks the providers to confirm each rule match. Requests
// run in concurrent chunks, one chunk at a time. A failed request yields a
// negative verdict asking for manual review; it never fails the batch.
func (o *Orchestrator) ValidateMatches(ctx context.Context, reqs []MatchValidationRequest) ([]MatchValidation, error) {
	res, err := o.batch.ProcessChunks(ctx, reqs, o.batchSize, func(ctx context.Context, req MatchValidationRequest) (*MatchValidation, error) {
		return ExecuteWithFailover(ctx, o, Operation[*MatchValidation]{
			Name: OpValidate,
			Call: func(ctx context.Context, a Adapter) (*MatchValidation, error) {
				return a.ValidateMatch(ctx, req)
			},
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]MatchValidation, len(reqs))
	for i, ir := range res.Results {
		if ir.Error != nil || ir.Result == nil {
			cause := ir.Error
			if cause == nil {
				cause = errors.Internal("empty validation result")
			}
			o.logger.Warn("match validation failed",
				logging.String("transaction_ref", reqs[i].TransactionRef),
				logging.Err(cause),
			)
			out[i] = MatchValidation{
				TransactionRef:  reqs[i].TransactionRef,
				IsValid:         false,
				Confidence:      0,
				Reasoning:       "Validation failed: " + cause.Error(),
				Recommendations: []string{"Manual review required"},
			}
			continue
		}
		v := *ir.Result
		v.Confidence = clamp01(v.Confidence)
		out[i] = v
	}
	return out, nil
}

// Health returns the primary provider's tracker state.
func (o *Orchestrator) Health() ProviderHealthState {
	return o.tracker.Snapshot()
}

// Providers returns the primary and fallback names.
func (o *Orchestrator) Providers() (primary, fallback string) {
	return o.primary.Name(), o.fallback.Name()
}
