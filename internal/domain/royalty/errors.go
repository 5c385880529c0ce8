package royalty

import (
	"fmt"
)

// RuleShapeError reports a rule whose payload does not fit its type or
// violates a rule invariant. Bad rules are reported, never repaired.
type RuleShapeError struct {
	RuleID   string   `json:"ruleId"`
	RuleType RuleType `json:"ruleType"`
	Reason   string   `json:"reason"`
}

func (e *RuleShapeError) Error() string {
	return fmt.Sprintf("rule %s (%s): %s", e.RuleID, e.RuleType, e.Reason)
}

// TieBreakPolicy picks among equally ranked candidate rules.
type TieBreakPolicy string

const (
	TieBreakFirstExtracted TieBreakPolicy = "first_extracted"
	TieBreakLowestID       TieBreakPolicy = "lowest_id"
)

// IsValid reports whether p is a known policy.
func (p TieBreakPolicy) IsValid() bool {
	return p == TieBreakFirstExtracted || p == TieBreakLowestID
}

// AmbiguousMatchWarning records a selection decided by the tie-break policy.
type AmbiguousMatchWarning struct {
	TransactionRef string         `json:"transactionRef"`
	RuleIDs        []string       `json:"ruleIds"`
	Chosen         string         `json:"chosen"`
	Policy         TieBreakPolicy `json:"policy"`
}

// ValidateShape checks the rule invariants that make it computable.
func ValidateShape(r *RoyaltyRule) *RuleShapeError {
	fail := func(reason string) *RuleShapeError {
		return &RuleShapeError{RuleID: r.ID, RuleType: r.RuleType, Reason: reason}
	}
	if !r.RuleType.IsValid() {
		return fail("unknown rule type")
	}
	if r.Calculation == nil {
		return fail("missing calculation")
	}
	if r.Calculation.Type() != r.RuleType {
		return fail(fmt.Sprintf("calculation shape %s does not match rule type", r.Calculation.Type()))
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		return fail(fmt.Sprintf("priority %d outside %d..%d", r.Priority, MinPriority, MaxPriority))
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fail(fmt.Sprintf("confidence %.2f outside 0..1", r.Confidence))
	}
	c := r.Conditions
	if c.SalesVolumeMin != nil && c.SalesVolumeMax != nil && c.SalesVolumeMin.GreaterThan(*c.SalesVolumeMax) {
		return fail("salesVolumeMin exceeds salesVolumeMax")
	}
	if c.EffectiveFrom != nil && c.EffectiveTo != nil && c.EffectiveFrom.After(*c.EffectiveTo) {
		return fail("effectiveFrom is after effectiveTo")
	}
	if reason := r.Calculation.validate(); reason != "" {
		return fail(reason)
	}
	return nil
}
