package calculation

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
)

// RuleSet is a contract's active rules split by role and ranked. Rules that
// fail validation are kept aside in Errors and never used.
type RuleSet struct {
	Base       []*royalty.RoyaltyRule
	Seasonal   []*royalty.RoyaltyRule
	Territory  []*royalty.RoyaltyRule
	Guarantees []*royalty.RoyaltyRule
	Errors     []royalty.RuleShapeError
	policy     royalty.TieBreakPolicy
	// malformed base rules, kept to explain why a transaction went unmatched
	broken []brokenRule
}

type brokenRule struct {
	rule   *royalty.RoyaltyRule
	reason string
}

// NewRuleSet prepares rules for matching. Only active rules are considered.
func NewRuleSet(rules []*royalty.RoyaltyRule, policy royalty.TieBreakPolicy) *RuleSet {
	if !policy.IsValid() {
		policy = royalty.TieBreakFirstExtracted
	}
	rs := &RuleSet{policy: policy, Errors: []royalty.RuleShapeError{}}
	for _, r := range rules {
		if r == nil || r.Status != royalty.StatusActive {
			continue
		}
		if se := royalty.ValidateShape(r); se != nil {
			rs.Errors = append(rs.Errors, *se)
			if r.RuleType.IsBase() || !r.RuleType.IsValid() {
				rs.broken = append(rs.broken, brokenRule{rule: r, reason: se.Reason})
			}
			continue
		}
		switch r.RuleType {
		case royalty.RuleTypeFlat, royalty.RuleTypeTiered:
			rs.Base = append(rs.Base, r)
		case royalty.RuleTypeSeasonal:
			rs.Seasonal = append(rs.Seasonal, r)
		case royalty.RuleTypeTerritory:
			rs.Territory = append(rs.Territory, r)
		case royalty.RuleTypeMinimumGuarantee:
			rs.Guarantees = append(rs.Guarantees, r)
		}
	}
	for _, group := range [][]*royalty.RoyaltyRule{rs.Base, rs.Seasonal, rs.Territory, rs.Guarantees} {
		rs.rank(group)
	}
	return rs
}

// Policy returns the tie-break policy in effect.
func (rs *RuleSet) Policy() royalty.TieBreakPolicy { return rs.policy }

func (rs *RuleSet) currencyOf(ruleID string) string {
	for _, r := range rs.Base {
		if r.ID == ruleID {
			return r.Conditions.Currency
		}
	}
	return ""
}

// Total is the number of usable rules.
func (rs *RuleSet) Total() int {
	return len(rs.Base) + len(rs.Seasonal) + len(rs.Territory) + len(rs.Guarantees)
}

// rank orders rules by priority, then specificity, then the tie-break
// policy.
func (rs *RuleSet) rank(rules []*royalty.RoyaltyRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		sa, sb := a.Conditions.Specificity(), b.Conditions.Specificity()
		if sa != sb {
			return sa > sb
		}
		return rs.before(a, b)
	})
}

func (rs *RuleSet) before(a, b *royalty.RoyaltyRule) bool {
	if rs.policy == royalty.TieBreakFirstExtracted && a.ExtractionOrder != b.ExtractionOrder {
		return a.ExtractionOrder < b.ExtractionOrder
	}
	return a.ID < b.ID
}

// Selection is the outcome of matching one transaction against the base
// rules.
type Selection struct {
	Rule       *royalty.RoyaltyRule
	Candidates []*royalty.RoyaltyRule
	Warning    *royalty.AmbiguousMatchWarning
	Reason     string
}

// Matched reports whether a rule was selected.
func (s Selection) Matched() bool { return s.Rule != nil }

// Applies reports whether r's conditions admit tx at volume.
func Applies(r *royalty.RoyaltyRule, tx royalty.SalesTransaction, volume decimal.Decimal) bool {
	c := r.Conditions
	return royalty.MatchesSet(c.ProductCategories, tx.Category) &&
		royalty.MatchesSet(c.Territories, tx.Territory) &&
		c.InWindow(tx.TransactionDate) &&
		c.InVolume(volume)
}

// Select picks the base rule for tx. Candidates are already ranked, so the
// first candidate wins; a tie on priority and specificity with the next
// candidate is reported as an ambiguous match.
func (rs *RuleSet) Select(tx royalty.SalesTransaction, volume decimal.Decimal) Selection {
	var sel Selection
	for _, r := range rs.Base {
		if Applies(r, tx, volume) {
			sel.Candidates = append(sel.Candidates, r)
		}
	}
	if len(sel.Candidates) == 0 {
		sel.Reason = fmt.Sprintf("no active rule matches category %q in territory %q",
			tx.CategoryOrDefault(), tx.TerritoryOrDefault())
		for _, b := range rs.broken {
			if Applies(b.rule, tx, volume) {
				sel.Reason = fmt.Sprintf("rule %s skipped: %s", b.rule.ID, b.reason)
				break
			}
		}
		return sel
	}
	sel.Rule = sel.Candidates[0]

	var tied []string
	top := sel.Rule
	for _, r := range sel.Candidates {
		if r.Priority != top.Priority || r.Conditions.Specificity() != top.Conditions.Specificity() {
			break
		}
		tied = append(tied, r.ID)
	}
	if len(tied) > 1 {
		sel.Warning = &royalty.AmbiguousMatchWarning{
			TransactionRef: tx.ID,
			RuleIDs:        tied,
			Chosen:         top.ID,
			Policy:         rs.policy,
		}
	}
	return sel
}

// SeasonalMultiplier returns the adjustment of the first applicable seasonal
// rule that covers the transaction's season, or 1.
func (rs *RuleSet) SeasonalMultiplier(tx royalty.SalesTransaction, volume decimal.Decimal) (decimal.Decimal, royalty.Season) {
	season := royalty.SeasonOf(tx.TransactionDate)
	for _, r := range rs.Seasonal {
		if !Applies(r, tx, volume) {
			continue
		}
		if calc, ok := r.Calculation.(royalty.SeasonalCalculation); ok {
			if m, ok := calc.Multiplier(season); ok {
				return m, season
			}
		}
	}
	return one, season
}

// TerritoryMultiplier returns the premium of the first applicable territory
// rule that names the transaction's territory, or 1.
func (rs *RuleSet) TerritoryMultiplier(tx royalty.SalesTransaction, volume decimal.Decimal) (decimal.Decimal, string) {
	territory := tx.TerritoryOrDefault()
	for _, r := range rs.Territory {
		if !Applies(r, tx, volume) {
			continue
		}
		if calc, ok := r.Calculation.(royalty.TerritoryCalculation); ok {
			if m, ok := calc.Multiplier(territory); ok {
				return m, territory
			}
		}
	}
	return one, territory
}

// Guarantee returns the first ranked minimum guarantee covering period and
// the number of guarantees that applied.
func (rs *RuleSet) Guarantee(period royalty.TimePeriod) (*royalty.RoyaltyRule, decimal.Decimal, int) {
	var (
		chosen *royalty.RoyaltyRule
		amount decimal.Decimal
		n      int
	)
	for _, r := range rs.Guarantees {
		calc, ok := r.Calculation.(royalty.MinimumGuaranteeCalculation)
		if !ok || !calc.AppliesTo(period) {
			continue
		}
		n++
		if chosen == nil {
			chosen, amount = r, calc.Amount
		}
	}
	return chosen, amount, n
}
