package calculation

import (
	"context"
	"time"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// Service calculates royalties for stored contracts.
type Service interface {
	// Calculate loads the contract's active rules and evaluates req.
	Calculate(ctx context.Context, req Request) (*royalty.CalculationResult, error)
}

// RuleSource supplies the active rules of a contract.
type RuleSource interface {
	ActiveRules(ctx context.Context, contractID string) ([]*royalty.RoyaltyRule, error)
}

// EventPublisher announces calculation outcomes.
type EventPublisher interface {
	PublishCalculationCompleted(ctx context.Context, res *royalty.CalculationResult) error
	PublishRuleGaps(ctx context.Context, contractID string, gaps []royalty.RuleGap) error
}

// Metrics records calculation outcomes.
type Metrics interface {
	RecordCalculation(complete bool, transactions, unmatched int, d time.Duration)
}

type noopPublisher struct{}

func (noopPublisher) PublishCalculationCompleted(context.Context, *royalty.CalculationResult) error {
	return nil
}
func (noopPublisher) PublishRuleGaps(context.Context, string, []royalty.RuleGap) error { return nil }

type noopMetrics struct{}

func (noopMetrics) RecordCalculation(bool, int, int, time.Duration) {}

type serviceImpl struct {
	engine    *Engine
	rules     RuleSource
	publisher EventPublisher
	metrics   Metrics
	logger    logging.Logger
}

// ServiceOption configures the service.
type ServiceOption func(*serviceImpl)

// WithPublisher sets the event publisher.
func WithPublisher(p EventPublisher) ServiceOption {
	return func(s *serviceImpl) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *serviceImpl) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService wires an engine to a rule source.
func NewService(engine *Engine, rules RuleSource, logger logging.Logger, opts ...ServiceOption) (Service, error) {
	if engine == nil {
		return nil, errors.InvalidParam("engine is required")
	}
	if rules == nil {
		return nil, errors.InvalidParam("rule source is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		engine:    engine,
		rules:     rules,
		publisher: noopPublisher{},
		metrics:   noopMetrics{},
		logger:    logger.Named("calculation"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *serviceImpl) Calculate(ctx context.Context, req Request) (*royalty.CalculationResult, error) {
	if req.ContractID == "" {
		return nil, errors.New(errors.ErrCodeCalculationInput, "contract id is required")
	}
	start := time.Now()
	rules, err := s.rules.ActiveRules(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, errors.New(errors.ErrCodeNoActiveRules, "no active rules for contract").
			WithDetail("contract_id=" + req.ContractID)
	}

	res, err := s.engine.Calculate(ctx, rules, req)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordCalculation(res.Complete, res.TransactionCount, res.UnmatchedCount, time.Since(start))

	if !res.Complete {
		s.logger.Warn("calculation incomplete",
			logging.String("contract_id", req.ContractID),
			logging.Int("resolved", res.TransactionCount),
			logging.Int("requested", len(req.Transactions)))
		return res, nil
	}
	// Publishing is detached from caller cancellation.
	pubCtx := context.WithoutCancel(ctx)
	if len(res.RuleGaps) > 0 {
		if err := s.publisher.PublishRuleGaps(pubCtx, req.ContractID, res.RuleGaps); err != nil {
			s.logger.Warn("publish rule gaps failed", logging.String("contract_id", req.ContractID), logging.Err(err))
		}
	}
	if err := s.publisher.PublishCalculationCompleted(pubCtx, res); err != nil {
		s.logger.Warn("publish calculation completed failed", logging.String("contract_id", req.ContractID), logging.Err(err))
	}
	s.logger.Info("royalty calculated",
		logging.String("contract_id", req.ContractID),
		logging.String("final_royalty", res.FinalRoyalty.StringFixed(2)),
		logging.Int("line_items", len(res.LineItems)),
		logging.Int("unmatched", res.UnmatchedCount),
		logging.Int("rule_errors", len(res.RuleErrors)))
	return res, nil
}
