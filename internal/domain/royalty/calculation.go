package royalty

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// RateKind says how a rate applies to a transaction.
type RateKind string

const (
	// RateInferred lets the rate value decide: above 1 is per unit,
	// otherwise a fraction of gross.
	RateInferred   RateKind = ""
	RatePerUnit    RateKind = "per_unit"
	RatePercentage RateKind = "percentage"
)

// Resolve returns the effective kind for rate.
func (k RateKind) Resolve(rate decimal.Decimal) RateKind {
	if k == RatePerUnit || k == RatePercentage {
		return k
	}
	if rate.GreaterThan(decimal.NewFromInt(1)) {
		return RatePerUnit
	}
	return RatePercentage
}

// Calculation is the typed payload of a rule. Exactly one implementation
// exists per RuleType.
type Calculation interface {
	Type() RuleType
	// Key is a canonical string of the payload, stable across map orderings.
	Key() string
	validate() string
}

// FlatCalculation applies a single rate.
type FlatCalculation struct {
	BaseRate decimal.Decimal
	RateKind RateKind
}

func (FlatCalculation) Type() RuleType { return RuleTypeFlat }

func (c FlatCalculation) Key() string {
	return "rate=" + c.BaseRate.String() + ";kind=" + string(c.RateKind)
}

func (c FlatCalculation) validate() string {
	if !c.BaseRate.IsPositive() {
		return "baseRate must be greater than zero"
	}
	return ""
}

// Tier is one band of a tiered schedule. Max is exclusive; nil means
// unbounded.
type Tier struct {
	Min  decimal.Decimal
	Max  *decimal.Decimal
	Rate decimal.Decimal
}

// Label renders the band for explanations.
func (t Tier) Label() string {
	if t.Max == nil {
		return t.Min.String() + "+"
	}
	return t.Min.String() + "-" + t.Max.String()
}

// TieredCalculation applies the rate of the tier containing the volume.
type TieredCalculation struct {
	Tiers    []Tier
	RateKind RateKind
}

func (TieredCalculation) Type() RuleType { return RuleTypeTiered }

func (c TieredCalculation) Key() string {
	parts := make([]string, len(c.Tiers))
	for i, t := range c.Tiers {
		hi := "inf"
		if t.Max != nil {
			hi = t.Max.String()
		}
		parts[i] = t.Min.String() + ":" + hi + "@" + t.Rate.String()
	}
	return "tiers=" + strings.Join(parts, ",") + ";kind=" + string(c.RateKind)
}

func (c TieredCalculation) validate() string {
	if len(c.Tiers) == 0 {
		return "tiered rule needs at least one tier"
	}
	for i, t := range c.Tiers {
		if t.Min.IsNegative() {
			return fmt.Sprintf("tier %d: min must not be negative", i+1)
		}
		if !t.Rate.IsPositive() {
			return fmt.Sprintf("tier %d: rate must be greater than zero", i+1)
		}
		if t.Max != nil && !t.Max.GreaterThan(t.Min) {
			return fmt.Sprintf("tier %d: max must be greater than min", i+1)
		}
		if i == 0 {
			continue
		}
		prev := c.Tiers[i-1]
		if !t.Min.GreaterThan(prev.Min) {
			return fmt.Sprintf("tier %d: tiers must be ascending by min", i+1)
		}
		if prev.Max == nil {
			return fmt.Sprintf("tier %d: only the last tier may be unbounded", i)
		}
		if prev.Max.GreaterThan(t.Min) {
			return fmt.Sprintf("tier %d overlaps tier %d", i, i+1)
		}
	}
	return ""
}

// TierFor returns the tier whose [min, max) band contains volume. A volume
// that falls between one tier's max and the next tier's min belongs to the
// lower tier. Volumes below the first min or at or beyond a bounded last
// tier have no tier.
func (c TieredCalculation) TierFor(volume decimal.Decimal) (Tier, int, bool) {
	idx := -1
	for i, t := range c.Tiers {
		if t.Min.LessThanOrEqual(volume) {
			idx = i
		}
	}
	if idx < 0 {
		return Tier{}, -1, false
	}
	t := c.Tiers[idx]
	if t.Max == nil || volume.LessThan(*t.Max) || idx < len(c.Tiers)-1 {
		return t, idx, true
	}
	return Tier{}, -1, false
}

// SeasonalCalculation multiplies by the adjustment of the transaction's
// season. Keys match case-insensitively.
type SeasonalCalculation struct {
	Adjustments map[string]decimal.Decimal
}

func (SeasonalCalculation) Type() RuleType { return RuleTypeSeasonal }

func (c SeasonalCalculation) Key() string { return "seasons=" + mapKey(c.Adjustments) }

func (c SeasonalCalculation) validate() string {
	if len(c.Adjustments) == 0 {
		return "seasonal rule needs at least one adjustment"
	}
	return validateMultipliers(c.Adjustments)
}

// Multiplier returns the adjustment for season.
func (c SeasonalCalculation) Multiplier(season Season) (decimal.Decimal, bool) {
	return lookupFold(c.Adjustments, string(season))
}

// TerritoryCalculation multiplies by the premium of the transaction's
// territory. Keys match case-insensitively.
type TerritoryCalculation struct {
	Premiums map[string]decimal.Decimal
}

func (TerritoryCalculation) Type() RuleType { return RuleTypeTerritory }

func (c TerritoryCalculation) Key() string { return "territories=" + mapKey(c.Premiums) }

func (c TerritoryCalculation) validate() string {
	if len(c.Premiums) == 0 {
		return "territory rule needs at least one premium"
	}
	return validateMultipliers(c.Premiums)
}

// Multiplier returns the premium for territory.
func (c TerritoryCalculation) Multiplier(territory string) (decimal.Decimal, bool) {
	return lookupFold(c.Premiums, territory)
}

// MinimumGuaranteeCalculation floors the total for a period.
type MinimumGuaranteeCalculation struct {
	Amount decimal.Decimal
	Period TimePeriod
}

func (MinimumGuaranteeCalculation) Type() RuleType { return RuleTypeMinimumGuarantee }

func (c MinimumGuaranteeCalculation) Key() string {
	return "amount=" + c.Amount.String() + ";period=" + string(c.Period)
}

func (c MinimumGuaranteeCalculation) validate() string {
	if !c.Amount.IsPositive() {
		return "minimum guarantee amount must be greater than zero"
	}
	return ""
}

// AppliesTo reports whether the guarantee covers the requested period. An
// empty request period or an "any" guarantee always applies.
func (c MinimumGuaranteeCalculation) AppliesTo(period TimePeriod) bool {
	return period == "" || period == PeriodAny || c.Period == "" || c.Period == PeriodAny || c.Period == period
}

func validateMultipliers(m map[string]decimal.Decimal) string {
	for _, k := range sortedKeys(m) {
		if !m[k].IsPositive() {
			return fmt.Sprintf("multiplier for %q must be greater than zero", k)
		}
	}
	return ""
}

func lookupFold(m map[string]decimal.Decimal, key string) (decimal.Decimal, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	key = strings.ToLower(strings.TrimSpace(key))
	for _, k := range sortedKeys(m) {
		if strings.ToLower(strings.TrimSpace(k)) == key {
			return m[k], true
		}
	}
	return decimal.Decimal{}, false
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mapKey(m map[string]decimal.Decimal) string {
	keys := sortedKeys(m)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strings.ToLower(k) + ":" + m[k].String()
	}
	return strings.Join(parts, ",")
}
