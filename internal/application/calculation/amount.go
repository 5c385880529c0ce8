package calculation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// evaluate computes the line item for one transaction.
func (e *Engine) evaluate(rs *RuleSet, tx royalty.SalesTransaction, volume decimal.Decimal) (royalty.LineItem, *royalty.AmbiguousMatchWarning) {
	item := royalty.LineItem{
		TransactionRef:      tx.ID,
		ProductName:         tx.ProductName,
		Category:            tx.CategoryOrDefault(),
		Territory:           tx.TerritoryOrDefault(),
		Quantity:            tx.Quantity,
		GrossAmount:         tx.GrossAmount,
		SeasonalMultiplier:  one,
		TerritoryMultiplier: one,
		CalculatedRoyalty:   decimal.Zero,
	}

	sel := rs.Select(tx, volume)
	if !sel.Matched() {
		return unmatched(item, sel.Reason), nil
	}
	rule := sel.Rule

	var (
		rate decimal.Decimal
		kind royalty.RateKind
	)
	switch calc := rule.Calculation.(type) {
	case royalty.FlatCalculation:
		rate, kind = calc.BaseRate, calc.RateKind.Resolve(calc.BaseRate)
	case royalty.TieredCalculation:
		tier, _, ok := calc.TierFor(volume)
		if !ok {
			return unmatched(item, fmt.Sprintf("volume %s is outside every tier of rule %q", volume.String(), rule.Label())), sel.Warning
		}
		rate, kind = tier.Rate, calc.RateKind.Resolve(tier.Rate)
		item.Tier = tier.Label()
	default:
		return unmatched(item, fmt.Sprintf("rule %q has no base rate", rule.Label())), sel.Warning
	}

	base := tx.GrossAmount.Mul(rate)
	if kind == royalty.RatePerUnit {
		base = tx.Quantity.Mul(rate)
	}
	seasonal, season := rs.SeasonalMultiplier(tx, volume)
	territorial, territory := rs.TerritoryMultiplier(tx, volume)

	r := rate
	item.RuleApplied = &royalty.RuleRef{ID: rule.ID, Name: rule.Label()}
	item.BaseRate = &r
	item.RateKind = kind
	item.SeasonalMultiplier = seasonal
	item.TerritoryMultiplier = territorial
	item.CalculatedRoyalty = base.Mul(seasonal).Mul(territorial).Round(e.cfg.MoneyScale)
	item.Matched = true
	item.Explanation = explain(tx, rate, kind, item.Tier, seasonal, season, territorial, territory)
	return item, sel.Warning
}

func unmatched(item royalty.LineItem, reason string) royalty.LineItem {
	item.Matched = false
	item.UnmatchedReason = reason
	item.Explanation = "No matching rule: " + reason
	return item
}

// explain renders the arithmetic of a matched line item, for example
// "200 units × $1.25 × 1.2 (Spring) × 1.1 (Secondary)".
func explain(tx royalty.SalesTransaction, rate decimal.Decimal, kind royalty.RateKind, tier string,
	seasonal decimal.Decimal, season royalty.Season, territorial decimal.Decimal, territory string) string {
	var b strings.Builder
	sym := currencySymbol(tx.Currency)
	if kind == royalty.RatePerUnit {
		fmt.Fprintf(&b, "%s units × %s%s", tx.Quantity.String(), sym, formatRate(rate))
	} else {
		fmt.Fprintf(&b, "%s%s × %s%%", sym, tx.GrossAmount.StringFixed(2), rate.Mul(hundred).StringFixed(2))
	}
	if !seasonal.Equal(one) {
		fmt.Fprintf(&b, " × %s (%s)", seasonal.String(), season)
	}
	if !territorial.Equal(one) {
		fmt.Fprintf(&b, " × %s (%s)", territorial.String(), territory)
	}
	if tier != "" {
		fmt.Fprintf(&b, " [tier %s]", tier)
	}
	return b.String()
}

func formatRate(rate decimal.Decimal) string {
	if rate.Equal(rate.Round(2)) {
		return rate.StringFixed(2)
	}
	return rate.String()
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "", "USD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	default:
		return strings.ToUpper(currency) + " "
	}
}
