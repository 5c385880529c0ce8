// Package memory provides in-process repository implementations used by the
// CLI, tests and single-node deployments without PostgreSQL.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// RuleRepository is a map-backed royalty.RuleRepository. Stored rules are
// copied on the way in and out.
type RuleRepository struct {
	mu    sync.RWMutex
	rules map[string]*royalty.RoyaltyRule
}

// NewRuleRepository returns an empty repository.
func NewRuleRepository() *RuleRepository {
	return &RuleRepository{rules: make(map[string]*royalty.RoyaltyRule)}
}

func (r *RuleRepository) Save(ctx context.Context, rule *royalty.RoyaltyRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rule == nil || rule.ID == "" {
		return errors.InvalidParam("rule id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(rule); err != nil {
		return err
	}
	r.rules[rule.ID] = cloneRule(rule)
	return nil
}

func (r *RuleRepository) SaveBatch(ctx context.Context, rules []*royalty.RoyaltyRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, rule := range rules {
		if rule == nil || rule.ID == "" {
			return errors.InvalidParam("rule id is required")
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range rules {
		if err := r.checkOwner(rule); err != nil {
			return err
		}
	}
	for _, rule := range rules {
		r.rules[rule.ID] = cloneRule(rule)
	}
	return nil
}

func (r *RuleRepository) FindByID(ctx context.Context, id string) (*royalty.RoyaltyRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, errors.New(errors.ErrCodeRuleNotFound, "royalty rule not found").WithDetail("id=" + id)
	}
	return cloneRule(rule), nil
}

func (r *RuleRepository) FindByContract(ctx context.Context, contractID string, opts ...royalty.QueryOption) ([]*royalty.RoyaltyRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := royalty.ApplyOptions(opts...)

	r.mu.RLock()
	out := make([]*royalty.RoyaltyRule, 0)
	for _, rule := range r.rules {
		if rule.ContractID == contractID && q.Matches(rule) {
			out = append(out, cloneRule(rule))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExtractionOrder != out[j].ExtractionOrder {
			return out[i].ExtractionOrder < out[j].ExtractionOrder
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, q.Limit, q.Offset), nil
}

func (r *RuleRepository) CountByContract(ctx context.Context, contractID string) (map[royalty.RuleStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[royalty.RuleStatus]int)
	for _, rule := range r.rules {
		if rule.ContractID == contractID {
			counts[rule.Status]++
		}
	}
	return counts, nil
}

func (r *RuleRepository) DeleteByContract(ctx context.Context, contractID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, rule := range r.rules {
		if rule.ContractID == contractID {
			delete(r.rules, id)
		}
	}
	return nil
}

// ReplaceByContract swaps the contract's rules under a single lock.
func (r *RuleRepository) ReplaceByContract(ctx context.Context, contractID string, rules []*royalty.RoyaltyRule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, rule := range rules {
		if rule == nil || rule.ID == "" {
			return errors.InvalidParam("rule id is required")
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range rules {
		if rule.ContractID != contractID {
			return errors.InvalidParam("rule belongs to a different contract").WithDetail("id=" + rule.ID)
		}
		if err := r.checkOwner(rule); err != nil {
			return err
		}
	}
	for id, rule := range r.rules {
		if rule.ContractID == contractID {
			delete(r.rules, id)
		}
	}
	for _, rule := range rules {
		r.rules[rule.ID] = cloneRule(rule)
	}
	return nil
}

// checkOwner rejects a rule whose id is already stored under another
// contract. Callers hold mu.
func (r *RuleRepository) checkOwner(rule *royalty.RoyaltyRule) error {
	if cur, ok := r.rules[rule.ID]; ok && cur.ContractID != rule.ContractID {
		return errors.Conflict("rule id belongs to another contract").WithDetail("id=" + rule.ID)
	}
	return nil
}

func paginate(rules []*royalty.RoyaltyRule, limit, offset int) []*royalty.RoyaltyRule {
	if offset > 0 {
		if offset >= len(rules) {
			return []*royalty.RoyaltyRule{}
		}
		rules = rules[offset:]
	}
	if limit > 0 && limit < len(rules) {
		rules = rules[:limit]
	}
	return rules
}

func cloneRule(in *royalty.RoyaltyRule) *royalty.RoyaltyRule {
	out := *in
	out.Conditions.ProductCategories = append([]string(nil), in.Conditions.ProductCategories...)
	out.Conditions.Territories = append([]string(nil), in.Conditions.Territories...)
	return &out
}

var (
	_ royalty.RuleRepository   = (*RuleRepository)(nil)
	_ royalty.ContractReplacer = (*RuleRepository)(nil)
)
