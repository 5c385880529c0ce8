// Package rules owns the royalty rule lifecycle: storing extracted rules,
// human review, and serving active rules to the calculation engine.
package rules

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// DefaultReviewThreshold is the confidence below which extracted rules wait
// for human review.
const DefaultReviewThreshold = 0.7

// StoreResult summarizes a StoreRules call.
type StoreResult struct {
	ContractID    string                   `json:"contractId"`
	Stored        int                      `json:"stored"`
	Active        int                      `json:"active"`
	PendingReview int                      `json:"pendingReview"`
	RuleIDs       []string                 `json:"ruleIds"`
	RuleErrors    []royalty.RuleShapeError `json:"ruleErrors"`
}

// Service exposes the rule store.
type Service interface {
	// StoreRules replaces the contract's rules with rules. Rules at or above
	// the review threshold become active, the rest pending_review. Rules
	// that fail validation are reported and not stored.
	StoreRules(ctx context.Context, contractID string, rules []*royalty.RoyaltyRule) (*StoreResult, error)

	ListRules(ctx context.Context, contractID string, opts ...royalty.QueryOption) ([]*royalty.RoyaltyRule, error)
	GetRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error)

	// ActiveRules returns the rules the calculation engine may use.
	ActiveRules(ctx context.Context, contractID string) ([]*royalty.RoyaltyRule, error)

	PromoteRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error)
	RejectRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error)

	StatusCounts(ctx context.Context, contractID string) (map[royalty.RuleStatus]int, error)
}

// Config tunes the rule store.
type Config struct {
	// ReviewThreshold is used as given; 0 activates every valid rule.
	ReviewThreshold float64
}

// DefaultConfig returns the rule store defaults.
func DefaultConfig() Config {
	return Config{ReviewThreshold: DefaultReviewThreshold}
}

type serviceImpl struct {
	repo   royalty.RuleRepository
	cfg    Config
	now    func() time.Time
	logger logging.Logger
}

// Option configures the service.
type Option func(*serviceImpl)

// WithClock injects the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a rule store over repo.
func NewService(repo royalty.RuleRepository, cfg Config, logger logging.Logger, opts ...Option) (Service, error) {
	if repo == nil {
		return nil, errors.InvalidParam("rule repository is required")
	}
	if cfg.ReviewThreshold < 0 || cfg.ReviewThreshold > 1 {
		return nil, errors.InvalidParam("review threshold must be within [0,1]")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:   repo,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Named("rules"),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *serviceImpl) StoreRules(ctx context.Context, contractID string, rules []*royalty.RoyaltyRule) (*StoreResult, error) {
	if contractID == "" {
		return nil, errors.InvalidParam("contract id is required")
	}
	now := s.now()
	res := &StoreResult{
		ContractID: contractID,
		RuleIDs:    []string{},
		RuleErrors: []royalty.RuleShapeError{},
	}

	keep := make([]*royalty.RoyaltyRule, 0, len(rules))
	for i, in := range rules {
		if in == nil {
			continue
		}
		r := *in
		r.ContractID = contractID
		r.ExtractionOrder = i
		r.CreatedAt = now
		r.UpdatedAt = now
		if r.ID == "" {
			r.ID = string(common.NewID())
		}
		r.Conditions.Normalize()
		r.Status = royalty.StatusActive
		r.ApplyReviewThreshold(s.cfg.ReviewThreshold)
		if err := r.Validate(); err != nil {
			var se *royalty.RuleShapeError
			if !stderrors.As(err, &se) {
				se = &royalty.RuleShapeError{RuleID: r.ID, RuleType: r.RuleType, Reason: err.Error()}
			}
			res.RuleErrors = append(res.RuleErrors, *se)
			continue
		}
		keep = append(keep, &r)
	}
	for i, r := range keep {
		r.ExtractionOrder = i
		res.RuleIDs = append(res.RuleIDs, r.ID)
		if r.Status == royalty.StatusActive {
			res.Active++
		} else {
			res.PendingReview++
		}
	}

	if err := s.replace(ctx, contractID, keep); err != nil {
		return nil, err
	}
	res.Stored = len(keep)

	s.logger.Info("rules stored",
		logging.String("contract_id", contractID),
		logging.Int("stored", res.Stored),
		logging.Int("active", res.Active),
		logging.Int("pending_review", res.PendingReview),
		logging.Int("rejected_shapes", len(res.RuleErrors)),
	)
	return res, nil
}

func (s *serviceImpl) replace(ctx context.Context, contractID string, keep []*royalty.RoyaltyRule) error {
	if rp, ok := s.repo.(royalty.ContractReplacer); ok {
		if err := rp.ReplaceByContract(ctx, contractID, keep); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to replace rules")
		}
		return nil
	}
	if err := s.repo.DeleteByContract(ctx, contractID); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to clear previous rules")
	}
	if len(keep) > 0 {
		if err := s.repo.SaveBatch(ctx, keep); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to store rules")
		}
	}
	return nil
}

func (s *serviceImpl) ListRules(ctx context.Context, contractID string, opts ...royalty.QueryOption) ([]*royalty.RoyaltyRule, error) {
	if contractID == "" {
		return nil, errors.InvalidParam("contract id is required")
	}
	return s.repo.FindByContract(ctx, contractID, opts...)
}

func (s *serviceImpl) GetRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error) {
	if ruleID == "" {
		return nil, errors.InvalidParam("rule id is required")
	}
	return s.repo.FindByID(ctx, ruleID)
}

func (s *serviceImpl) ActiveRules(ctx context.Context, contractID string) ([]*royalty.RoyaltyRule, error) {
	return s.ListRules(ctx, contractID, royalty.WithStatus(royalty.StatusActive))
}

func (s *serviceImpl) PromoteRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error) {
	return s.transition(ctx, ruleID, "promote", (*royalty.RoyaltyRule).Promote)
}

func (s *serviceImpl) RejectRule(ctx context.Context, ruleID string) (*royalty.RoyaltyRule, error) {
	return s.transition(ctx, ruleID, "reject", (*royalty.RoyaltyRule).Reject)
}

func (s *serviceImpl) transition(ctx context.Context, ruleID, action string, apply func(*royalty.RoyaltyRule, time.Time) error) (*royalty.RoyaltyRule, error) {
	r, err := s.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	from := r.Status
	if err := apply(r, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to save rule")
	}
	s.logger.Info("rule reviewed",
		logging.String("rule_id", r.ID),
		logging.String("contract_id", r.ContractID),
		logging.String("action", action),
		logging.String("from", string(from)),
		logging.String("to", string(r.Status)),
	)
	return r, nil
}

func (s *serviceImpl) StatusCounts(ctx context.Context, contractID string) (map[royalty.RuleStatus]int, error) {
	if contractID == "" {
		return nil, errors.InvalidParam("contract id is required")
	}
	return s.repo.CountByContract(ctx, contractID)
}
