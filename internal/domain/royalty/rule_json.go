package royalty

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ruleTypeAliases maps labels seen in extraction output onto rule types and
// the rate kind they imply.
var ruleTypeAliases = map[string]struct {
	t    RuleType
	kind RateKind
}{
	"flat":                     {RuleTypeFlat, RateInferred},
	"flat_rate":                {RuleTypeFlat, RateInferred},
	"percentage":               {RuleTypeFlat, RatePercentage},
	"percentage_of_sales":      {RuleTypeFlat, RatePercentage},
	"per_unit":                 {RuleTypeFlat, RatePerUnit},
	"fixed_price":              {RuleTypeFlat, RatePerUnit},
	"tiered":                   {RuleTypeTiered, RateInferred},
	"tiered_pricing":           {RuleTypeTiered, RateInferred},
	"tiered_volume":            {RuleTypeTiered, RateInferred},
	"seasonal":                 {RuleTypeSeasonal, RateInferred},
	"seasonal_adjustment":      {RuleTypeSeasonal, RateInferred},
	"territory":                {RuleTypeTerritory, RateInferred},
	"territory_premium":        {RuleTypeTerritory, RateInferred},
	"minimum_guarantee":        {RuleTypeMinimumGuarantee, RateInferred},
	"minimum_annual_guarantee": {RuleTypeMinimumGuarantee, RateInferred},
}

// NormalizeRuleType resolves an extraction label to a rule type.
func NormalizeRuleType(label string) (RuleType, RateKind, bool) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), "-", "_")
	a, ok := ruleTypeAliases[key]
	return a.t, a.kind, ok
}

type tierJSON struct {
	Min  *decimal.Decimal `json:"min"`
	Max  *decimal.Decimal `json:"max,omitempty"`
	Rate *decimal.Decimal `json:"rate"`
}

type calculationJSON struct {
	BaseRate            *decimal.Decimal           `json:"baseRate,omitempty"`
	Rate                *decimal.Decimal           `json:"rate,omitempty"`
	RateKind            RateKind                   `json:"rateKind,omitempty"`
	Tiers               []tierJSON                 `json:"tiers,omitempty"`
	SeasonalAdjustments map[string]decimal.Decimal `json:"seasonalAdjustments,omitempty"`
	TerritoryPremiums   map[string]decimal.Decimal `json:"territoryPremiums,omitempty"`
	Amount              *decimal.Decimal           `json:"amount,omitempty"`
	Period              string                     `json:"period,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// percentRate turns "5" into 0.05 for explicit percentage rates written as
// whole percents.
func percentRate(kind RateKind, rate decimal.Decimal) decimal.Decimal {
	if kind == RatePercentage && rate.GreaterThan(decimal.NewFromInt(1)) {
		return rate.Div(hundred)
	}
	return rate
}

// DecodeCalculation decodes raw into the calculation shape of t. kind is the
// rate kind implied by the rule label; an explicit rateKind in raw wins.
// period is the rule's condition period, used when a guarantee omits its own.
// A non-empty reason means raw does not fit the shape.
func DecodeCalculation(t RuleType, kind RateKind, period TimePeriod, raw json.RawMessage) (Calculation, string) {
	var in calculationJSON
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, "malformed calculation: " + err.Error()
		}
	}
	if in.RateKind != "" {
		if in.RateKind != RatePerUnit && in.RateKind != RatePercentage {
			return nil, "unknown rateKind " + string(in.RateKind)
		}
		kind = in.RateKind
	}

	switch t {
	case RuleTypeFlat:
		rate := in.BaseRate
		if rate == nil {
			rate = in.Rate
		}
		if rate == nil {
			return nil, "flat rule needs baseRate"
		}
		return FlatCalculation{BaseRate: percentRate(kind, *rate), RateKind: kind}, ""
	case RuleTypeTiered:
		if len(in.Tiers) == 0 {
			return nil, "tiered rule needs tiers"
		}
		tiers := make([]Tier, len(in.Tiers))
		for i, tj := range in.Tiers {
			if tj.Rate == nil {
				return nil, "tier without rate"
			}
			lo := decimal.Zero
			if tj.Min != nil {
				lo = *tj.Min
			} else if i > 0 {
				return nil, "tier without min"
			}
			tiers[i] = Tier{Min: lo, Max: tj.Max, Rate: percentRate(kind, *tj.Rate)}
		}
		return TieredCalculation{Tiers: tiers, RateKind: kind}, ""
	case RuleTypeSeasonal:
		if len(in.SeasonalAdjustments) == 0 {
			return nil, "seasonal rule needs seasonalAdjustments"
		}
		return SeasonalCalculation{Adjustments: in.SeasonalAdjustments}, ""
	case RuleTypeTerritory:
		if len(in.TerritoryPremiums) == 0 {
			return nil, "territory rule needs territoryPremiums"
		}
		return TerritoryCalculation{Premiums: in.TerritoryPremiums}, ""
	case RuleTypeMinimumGuarantee:
		if in.Amount == nil {
			return nil, "minimum guarantee needs amount"
		}
		p := period
		if in.Period != "" {
			p = NormalizePeriod(in.Period)
		}
		if p == "" {
			p = PeriodAny
		}
		return MinimumGuaranteeCalculation{Amount: *in.Amount, Period: p}, ""
	}
	return nil, "unknown rule type"
}

// EncodeCalculation renders c in the wire shape DecodeCalculation reads.
func EncodeCalculation(c Calculation) json.RawMessage {
	var out calculationJSON
	switch v := c.(type) {
	case FlatCalculation:
		rate := v.BaseRate
		out.BaseRate, out.RateKind = &rate, v.RateKind
	case TieredCalculation:
		out.RateKind = v.RateKind
		out.Tiers = make([]tierJSON, len(v.Tiers))
		for i := range v.Tiers {
			t := v.Tiers[i]
			out.Tiers[i] = tierJSON{Min: &t.Min, Max: t.Max, Rate: &t.Rate}
		}
	case SeasonalCalculation:
		out.SeasonalAdjustments = v.Adjustments
	case TerritoryCalculation:
		out.TerritoryPremiums = v.Premiums
	case MinimumGuaranteeCalculation:
		amount := v.Amount
		out.Amount, out.Period = &amount, string(v.Period)
	default:
		return json.RawMessage("null")
	}
	b, _ := json.Marshal(out)
	return b
}

type ruleAlias RoyaltyRule

// MarshalJSON writes the calculation in its typed wire shape.
func (r RoyaltyRule) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ruleAlias
		Calculation json.RawMessage `json:"calculation"`
	}{ruleAlias(r), EncodeCalculation(r.Calculation)})
}

// UnmarshalJSON decodes the calculation by ruleType. Labels such as
// "percentage" or "tiered_pricing" are normalized to their rule type. A
// payload that does not fit its type fails with *RuleShapeError.
func (r *RoyaltyRule) UnmarshalJSON(data []byte) error {
	aux := struct {
		*ruleAlias
		Calculation json.RawMessage `json:"calculation"`
	}{ruleAlias: (*ruleAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	label := string(r.RuleType)
	t, kind, ok := NormalizeRuleType(label)
	if !ok {
		return &RuleShapeError{RuleID: r.ID, RuleType: r.RuleType, Reason: "unknown rule type " + label}
	}
	r.RuleType = t
	r.Conditions.Normalize()
	calc, reason := DecodeCalculation(t, kind, r.Conditions.TimePeriod, aux.Calculation)
	if reason != "" {
		return &RuleShapeError{RuleID: r.ID, RuleType: t, Reason: reason}
	}
	r.Calculation = calc
	return nil
}
