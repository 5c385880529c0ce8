package royalty

import (
	"context"
)

// RuleQuery narrows FindByContract.
type RuleQuery struct {
	Statuses []RuleStatus
	Types    []RuleType
	Limit    int
	Offset   int
}

// QueryOption configures a RuleQuery.
type QueryOption func(*RuleQuery)

// WithStatus restricts results to the given statuses.
func WithStatus(statuses ...RuleStatus) QueryOption {
	return func(q *RuleQuery) { q.Statuses = append(q.Statuses, statuses...) }
}

// WithTypes restricts results to the given rule types.
func WithTypes(types ...RuleType) QueryOption {
	return func(q *RuleQuery) { q.Types = append(q.Types, types...) }
}

// WithPagination sets limit and offset.
func WithPagination(limit, offset int) QueryOption {
	return func(q *RuleQuery) {
		q.Limit = limit
		q.Offset = offset
	}
}

// ApplyOptions builds a RuleQuery from opts.
func ApplyOptions(opts ...QueryOption) RuleQuery {
	var q RuleQuery
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Matches reports whether r passes the status and type filters of q.
func (q RuleQuery) Matches(r *RoyaltyRule) bool {
	if len(q.Statuses) > 0 {
		ok := false
		for _, s := range q.Statuses {
			if r.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(q.Types) > 0 {
		for _, t := range q.Types {
			if r.RuleType == t {
				return true
			}
		}
		return false
	}
	return true
}

// RuleRepository persists rules. FindByContract returns rules ordered by
// extraction order, then id.
type RuleRepository interface {
	Save(ctx context.Context, rule *RoyaltyRule) error
	SaveBatch(ctx context.Context, rules []*RoyaltyRule) error
	FindByID(ctx context.Context, id string) (*RoyaltyRule, error)
	FindByContract(ctx context.Context, contractID string, opts ...QueryOption) ([]*RoyaltyRule, error)
	CountByContract(ctx context.Context, contractID string) (map[RuleStatus]int, error)
	DeleteByContract(ctx context.Context, contractID string) error
}

// ContractReplacer is implemented by repositories that can swap a contract's
// rule set atomically.
type ContractReplacer interface {
	ReplaceByContract(ctx context.Context, contractID string, rules []*RoyaltyRule) error
}
