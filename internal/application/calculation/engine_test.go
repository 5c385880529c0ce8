package calculation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

var spring = time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func rule(id string, order, priority int, calc royalty.Calculation, categories ...string) *royalty.RoyaltyRule {
	r := &royalty.RoyaltyRule{
		ID:              id,
		ContractID:      "c-1",
		RuleName:        "Rule " + id,
		RuleType:        calc.Type(),
		Calculation:     calc,
		Priority:        priority,
		Confidence:      0.9,
		Status:          royalty.StatusActive,
		ExtractionOrder: order,
	}
	r.Conditions.ProductCategories = categories
	r.Conditions.Normalize()
	return r
}

func flat(id, rate string, categories ...string) *royalty.RoyaltyRule {
	return rule(id, 0, royalty.DefaultPriority, royalty.FlatCalculation{BaseRate: d(rate)}, categories...)
}

func tieredSchedule() royalty.TieredCalculation {
	return royalty.TieredCalculation{Tiers: []royalty.Tier{
		{Min: d("0"), Max: dp("4999"), Rate: d("1.25")},
		{Min: d("5000"), Rate: d("1.10")},
	}}
}

func tx(id, category, qty, gross string) royalty.SalesTransaction {
	return royalty.SalesTransaction{
		ID:              id,
		ProductName:     "Product " + id,
		Category:        category,
		TransactionDate: spring,
		Quantity:        d(qty),
		GrossAmount:     d(gross),
	}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return e
}

func calculate(t *testing.T, rules []*royalty.RoyaltyRule, txs ...royalty.SalesTransaction) *royalty.CalculationResult {
	t.Helper()
	res, err := newTestEngine(t, DefaultConfig()).Calculate(context.Background(), rules, Request{ContractID: "c-1", Transactions: txs})
	require.NoError(t, err)
	return res
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestCalculate_FlatPercentage(t *testing.T) {
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "0.10")}, tx("t1", "roses", "10", "1000"))

	require.Len(t, res.LineItems, 1)
	item := res.LineItems[0]
	assert.True(t, item.Matched)
	assert.Equal(t, royalty.RatePercentage, item.RateKind)
	assertMoney(t, "100.00", item.CalculatedRoyalty)
	assert.Equal(t, "$1000.00 × 10.00%", item.Explanation)
	assertMoney(t, "100.00", res.TotalRoyalty)
	assertMoney(t, "100.00", res.FinalRoyalty)
	assert.Nil(t, res.MinimumGuarantee)
	assert.True(t, res.Complete)
	assert.Equal(t, []string{"Rule r1"}, res.RulesApplied)
}

func TestCalculate_FlatPerUnit(t *testing.T) {
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "1.25")}, tx("t1", "roses", "200", "5000"))

	item := res.LineItems[0]
	assert.Equal(t, royalty.RatePerUnit, item.RateKind)
	assertMoney(t, "250.00", item.CalculatedRoyalty)
	assert.Equal(t, "200 units × $1.25", item.Explanation)
}

func TestCalculate_ExplicitRateKindOverridesInference(t *testing.T) {
	r := rule("r1", 0, 10, royalty.FlatCalculation{BaseRate: d("0.50"), RateKind: royalty.RatePerUnit})
	res := calculate(t, []*royalty.RoyaltyRule{r}, tx("t1", "roses", "100", "9999"))

	assertMoney(t, "50.00", res.LineItems[0].CalculatedRoyalty)
	assert.Equal(t, "100 units × $0.50", res.LineItems[0].Explanation)
}

func TestCalculate_Tiered(t *testing.T) {
	r := rule("tiers", 0, 10, tieredSchedule(), "roses")
	res := calculate(t, []*royalty.RoyaltyRule{r},
		tx("small", "roses", "3000", "0"),
		tx("large", "roses", "6000", "0"),
	)

	require.Len(t, res.LineItems, 2)
	assertMoney(t, "3750.00", res.LineItems[0].CalculatedRoyalty)
	assert.Equal(t, "0-4999", res.LineItems[0].Tier)
	assert.Equal(t, "3000 units × $1.25 [tier 0-4999]", res.LineItems[0].Explanation)
	assertMoney(t, "6600.00", res.LineItems[1].CalculatedRoyalty)
	assert.Equal(t, "5000+", res.LineItems[1].Tier)
	assertMoney(t, "10350.00", res.TotalRoyalty)
}

func TestCalculate_TieredBelowFirstTierIsUnmatched(t *testing.T) {
	calc := royalty.TieredCalculation{Tiers: []royalty.Tier{{Min: d("100"), Rate: d("2")}}}
	res := calculate(t, []*royalty.RoyaltyRule{rule("tiers", 0, 10, calc)}, tx("t1", "roses", "50", "0"))

	item := res.LineItems[0]
	assert.False(t, item.Matched)
	assert.Nil(t, item.RuleApplied)
	assert.Contains(t, item.UnmatchedReason, "outside every tier")
	assert.Equal(t, 1, res.UnmatchedCount)
}

func TestCalculate_SeasonalMultiplier(t *testing.T) {
	base := flat("base", "2.00")
	seasonal := rule("season", 1, 10, royalty.SeasonalCalculation{Adjustments: map[string]decimal.Decimal{
		"spring": d("1.20"),
		"Fall":   d("1.0"),
	}})
	rules := []*royalty.RoyaltyRule{base, seasonal}

	t.Run("matching season", func(t *testing.T) {
		res := calculate(t, rules, tx("t1", "roses", "50", "0"))
		item := res.LineItems[0]
		assertMoney(t, "120.00", item.CalculatedRoyalty)
		assertMoney(t, "1.2", item.SeasonalMultiplier)
		assert.Equal(t, "50 units × $2.00 × 1.2 (Spring)", item.Explanation)
	})

	t.Run("multiplier of one", func(t *testing.T) {
		fall := tx("t2", "roses", "50", "0")
		fall.TransactionDate = time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)
		res := calculate(t, rules, fall)
		assertMoney(t, "100.00", res.LineItems[0].CalculatedRoyalty)
		assert.Equal(t, "50 units × $2.00", res.LineItems[0].Explanation)
	})

	t.Run("season without adjustment", func(t *testing.T) {
		winter := tx("t3", "roses", "50", "0")
		winter.TransactionDate = time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
		res := calculate(t, rules, winter)
		assertMoney(t, "100.00", res.LineItems[0].CalculatedRoyalty)
		assertMoney(t, "1", res.LineItems[0].SeasonalMultiplier)
	})
}

func TestCalculate_SeasonalAndTerritoryMultipliers(t *testing.T) {
	rules := []*royalty.RoyaltyRule{
		flat("base", "1.25"),
		rule("season", 1, 10, royalty.SeasonalCalculation{Adjustments: map[string]decimal.Decimal{"Spring": d("1.2")}}),
		rule("territory", 2, 10, royalty.TerritoryCalculation{Premiums: map[string]decimal.Decimal{"Secondary": d("1.1")}}),
	}
	in := tx("t1", "roses", "200", "0")
	in.Territory = "secondary"

	res := calculate(t, rules, in)

	item := res.LineItems[0]
	assertMoney(t, "330.00", item.CalculatedRoyalty)
	assertMoney(t, "1.1", item.TerritoryMultiplier)
	assert.Equal(t, "200 units × $1.25 × 1.2 (Spring) × 1.1 (secondary)", item.Explanation)
	assert.Equal(t, []string{"Rule base"}, res.RulesApplied)
}

func TestCalculate_Unmatched(t *testing.T) {
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "0.10", "roses")},
		tx("t1", "roses", "1", "100"),
		tx("t2", "tulips", "5", "500"),
	)

	require.Len(t, res.LineItems, 2)
	item := res.LineItems[1]
	assert.False(t, item.Matched)
	assert.Nil(t, item.RuleApplied)
	assert.True(t, item.CalculatedRoyalty.IsZero())
	assert.Contains(t, item.UnmatchedReason, `"tulips"`)
	assert.Equal(t, 1, res.UnmatchedCount)
	assert.Equal(t, 2, res.TransactionCount)
	assertMoney(t, "10.00", res.TotalRoyalty)
	require.Len(t, res.RuleGaps, 1)
	assert.Equal(t, "tulips", res.RuleGaps[0].Category)
	assert.Equal(t, royalty.DefaultTerritory, res.RuleGaps[0].Territory)
	assert.Equal(t, []string{"t2"}, res.RuleGaps[0].TransactionRefs)
}

func TestCalculate_RuleGapsGroupedInFirstSeenOrder(t *testing.T) {
	eu := tx("t3", "tulips", "1", "1")
	eu.Territory = "EU"
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "0.10", "roses")},
		tx("t1", "Tulips", "1", "1"),
		eu,
		tx("t2", "tulips", "1", "1"),
		tx("t4", "lilies", "1", "1"),
	)

	require.Len(t, res.RuleGaps, 3)
	assert.Equal(t, "Tulips", res.RuleGaps[0].Category)
	assert.Equal(t, []string{"t1", "t2"}, res.RuleGaps[0].TransactionRefs)
	assert.Equal(t, "EU", res.RuleGaps[1].Territory)
	assert.Equal(t, "lilies", res.RuleGaps[2].Category)
}

func TestCalculate_SelectionOrder(t *testing.T) {
	t.Run("lower priority wins", func(t *testing.T) {
		general := rule("general", 1, 5, royalty.FlatCalculation{BaseRate: d("0.05")})
		specific := rule("specific", 0, 10, royalty.FlatCalculation{BaseRate: d("0.10")}, "roses")
		res := calculate(t, []*royalty.RoyaltyRule{specific, general}, tx("t1", "roses", "1", "100"))
		assert.Equal(t, "general", res.LineItems[0].RuleApplied.ID)
		assert.Empty(t, res.Warnings)
	})

	t.Run("specificity breaks priority ties", func(t *testing.T) {
		general := rule("general", 0, 10, royalty.FlatCalculation{BaseRate: d("0.05")}, "*")
		specific := rule("specific", 1, 10, royalty.FlatCalculation{BaseRate: d("0.10")}, "Roses")
		res := calculate(t, []*royalty.RoyaltyRule{general, specific}, tx("t1", "roses", "1", "100"))
		assert.Equal(t, "specific", res.LineItems[0].RuleApplied.ID)
		assert.Empty(t, res.Warnings)
	})
}

func TestCalculate_TieBreakPolicy(t *testing.T) {
	rules := []*royalty.RoyaltyRule{
		rule("b", 0, 10, royalty.FlatCalculation{BaseRate: d("0.10")}, "roses"),
		rule("a", 1, 10, royalty.FlatCalculation{BaseRate: d("0.20")}, "roses"),
	}
	e := newTestEngine(t, DefaultConfig())

	tests := []struct {
		policy royalty.TieBreakPolicy
		chosen string
		tied   []string
		amount string
	}{
		{"", "b", []string{"b", "a"}, "10.00"},
		{royalty.TieBreakFirstExtracted, "b", []string{"b", "a"}, "10.00"},
		{royalty.TieBreakLowestID, "a", []string{"a", "b"}, "20.00"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			res, err := e.Calculate(context.Background(), rules, Request{
				ContractID:   "c-1",
				Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "100")},
				TieBreak:     tt.policy,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.chosen, res.LineItems[0].RuleApplied.ID)
			assertMoney(t, tt.amount, res.LineItems[0].CalculatedRoyalty)
			require.Len(t, res.Warnings, 1)
			w := res.Warnings[0]
			assert.Equal(t, "t1", w.TransactionRef)
			assert.Equal(t, tt.tied, w.RuleIDs)
			assert.Equal(t, tt.chosen, w.Chosen)
		})
	}
}

func TestCalculate_MissingCategoryMatchesOnlyUnconstrainedRules(t *testing.T) {
	specific := rule("roses", 0, 1, royalty.FlatCalculation{BaseRate: d("0.50")}, "roses")
	res := calculate(t, []*royalty.RoyaltyRule{specific}, tx("t1", "", "1", "100"))
	assert.False(t, res.LineItems[0].Matched)
	assert.Equal(t, royalty.DefaultCategory, res.LineItems[0].Category)

	catchAll := rule("any", 1, 50, royalty.FlatCalculation{BaseRate: d("0.10")}, "general")
	res = calculate(t, []*royalty.RoyaltyRule{specific, catchAll}, tx("t1", "", "1", "100"))
	require.True(t, res.LineItems[0].Matched)
	assert.Equal(t, "any", res.LineItems[0].RuleApplied.ID)
}

func TestCalculate_VolumeConditions(t *testing.T) {
	bulk := rule("bulk", 0, 5, royalty.FlatCalculation{BaseRate: d("0.05")})
	bulk.Conditions.SalesVolumeMin = dp("1000")
	standard := rule("standard", 1, 10, royalty.FlatCalculation{BaseRate: d("0.10")})

	res := calculate(t, []*royalty.RoyaltyRule{bulk, standard},
		tx("small", "roses", "10", "100"),
		tx("big", "roses", "1000", "100"),
	)
	assert.Equal(t, "standard", res.LineItems[0].RuleApplied.ID)
	assert.Equal(t, "bulk", res.LineItems[1].RuleApplied.ID)
}

func TestCalculate_EffectiveWindow(t *testing.T) {
	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC)
	q1 := rule("q1", 0, 5, royalty.FlatCalculation{BaseRate: d("0.20")})
	q1.Conditions.EffectiveFrom, q1.Conditions.EffectiveTo = &from, &to
	other := rule("other", 1, 10, royalty.FlatCalculation{BaseRate: d("0.10")})

	inQ1 := tx("t1", "roses", "1", "100")
	inQ1.TransactionDate = time.Date(2024, time.March, 31, 18, 0, 0, 0, time.UTC)
	res := calculate(t, []*royalty.RoyaltyRule{q1, other}, inQ1, tx("t2", "roses", "1", "100"))

	assert.Equal(t, "q1", res.LineItems[0].RuleApplied.ID)
	assert.Equal(t, "other", res.LineItems[1].RuleApplied.ID)
}

func TestCalculate_AggregateVolume(t *testing.T) {
	rules := []*royalty.RoyaltyRule{rule("tiers", 0, 10, tieredSchedule(), "roses")}
	txs := []royalty.SalesTransaction{tx("t1", "roses", "3000", "0"), tx("t2", "Roses", "3000", "0")}
	e := newTestEngine(t, DefaultConfig())

	res, err := e.Calculate(context.Background(), rules, Request{ContractID: "c-1", Transactions: txs})
	require.NoError(t, err)
	assertMoney(t, "3750.00", res.LineItems[0].CalculatedRoyalty)
	assertMoney(t, "7500.00", res.TotalRoyalty)

	res, err = e.Calculate(context.Background(), rules, Request{ContractID: "c-1", Transactions: txs, AggregateVolume: true})
	require.NoError(t, err)
	assertMoney(t, "3300.00", res.LineItems[0].CalculatedRoyalty)
	assertMoney(t, "3300.00", res.LineItems[1].CalculatedRoyalty)
	assert.Equal(t, "5000+", res.LineItems[1].Tier)
}

func TestCalculate_MinimumGuarantee(t *testing.T) {
	base := flat("base", "0.10")
	quarterly := rule("mg-q", 1, 20, royalty.MinimumGuaranteeCalculation{Amount: d("500"), Period: royalty.PeriodQuarterly})
	e := newTestEngine(t, DefaultConfig())
	txs := []royalty.SalesTransaction{tx("t1", "roses", "1", "1000")}

	res, err := e.Calculate(context.Background(), []*royalty.RoyaltyRule{base, quarterly},
		Request{ContractID: "c-1", Period: royalty.PeriodQuarterly, Transactions: txs})
	require.NoError(t, err)
	assertMoney(t, "100.00", res.TotalRoyalty)
	require.NotNil(t, res.MinimumGuarantee)
	assertMoney(t, "500.00", *res.MinimumGuarantee)
	assertMoney(t, "500.00", res.FinalRoyalty)

	res, err = e.Calculate(context.Background(), []*royalty.RoyaltyRule{base, quarterly},
		Request{ContractID: "c-1", Period: royalty.PeriodMonthly, Transactions: txs})
	require.NoError(t, err)
	assert.Nil(t, res.MinimumGuarantee)
	assertMoney(t, "100.00", res.FinalRoyalty)

	low := rule("mg-low", 1, 20, royalty.MinimumGuaranteeCalculation{Amount: d("50"), Period: royalty.PeriodAny})
	res, err = e.Calculate(context.Background(), []*royalty.RoyaltyRule{base, low},
		Request{ContractID: "c-1", Transactions: txs})
	require.NoError(t, err)
	assertMoney(t, "50.00", *res.MinimumGuarantee)
	assertMoney(t, "100.00", res.FinalRoyalty)
}

func TestCalculate_SeveralGuaranteesUseFirstRanked(t *testing.T) {
	rules := []*royalty.RoyaltyRule{
		flat("base", "0.10"),
		rule("mg-a", 1, 20, royalty.MinimumGuaranteeCalculation{Amount: d("900"), Period: royalty.PeriodQuarterly}),
		rule("mg-b", 2, 10, royalty.MinimumGuaranteeCalculation{Amount: d("300"), Period: royalty.PeriodAny}),
	}
	res, err := newTestEngine(t, DefaultConfig()).Calculate(context.Background(), rules, Request{
		ContractID:   "c-1",
		Period:       royalty.PeriodQuarterly,
		Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "1000")},
	})
	require.NoError(t, err)
	assertMoney(t, "300.00", *res.MinimumGuarantee)
	assertMoney(t, "300.00", res.FinalRoyalty)
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "2 minimum guarantees apply")
	assert.Contains(t, res.Notes[0], "Rule mg-b")
}

func TestCalculate_MalformedRulesAreReportedAndSkipped(t *testing.T) {
	bad := rule("bad", 0, 10, royalty.TieredCalculation{}, "roses")
	mismatch := rule("mismatch", 1, 10, royalty.FlatCalculation{BaseRate: d("0.1")}, "tulips")
	mismatch.RuleType = royalty.RuleTypeTiered
	good := flat("good", "0.10", "lilies")

	res := calculate(t, []*royalty.RoyaltyRule{bad, mismatch, good},
		tx("t1", "roses", "1", "100"),
		tx("t2", "tulips", "1", "100"),
		tx("t3", "lilies", "1", "100"),
	)

	require.Len(t, res.RuleErrors, 2)
	assert.Equal(t, "bad", res.RuleErrors[0].RuleID)
	assert.Equal(t, "mismatch", res.RuleErrors[1].RuleID)
	assert.False(t, res.LineItems[0].Matched)
	assert.Contains(t, res.LineItems[0].UnmatchedReason, "rule bad skipped")
	assert.Contains(t, res.LineItems[1].UnmatchedReason, "rule mismatch skipped")
	assert.True(t, res.LineItems[2].Matched)
	assert.Equal(t, 2, res.UnmatchedCount)
}

func TestCalculate_IgnoresInactiveRules(t *testing.T) {
	pending := flat("pending", "0.10")
	pending.Status = royalty.StatusPendingReview
	rejected := flat("rejected", "0.10")
	rejected.Status = royalty.StatusRejected

	res := calculate(t, []*royalty.RoyaltyRule{pending, rejected, nil}, tx("t1", "roses", "1", "100"))

	assert.False(t, res.LineItems[0].Matched)
	assert.Empty(t, res.RuleErrors)
}

func TestCalculate_InputWarnings(t *testing.T) {
	r := flat("r1", "0.10")
	r.Conditions.Currency = "USD"
	refund := tx("t1", "roses", "-2", "-50")
	foreign := tx("t2", "roses", "1", "100")
	foreign.Currency = "EUR"

	res := calculate(t, []*royalty.RoyaltyRule{r}, refund, foreign)

	require.Len(t, res.InputWarnings, 3)
	assert.Contains(t, res.InputWarnings[0].Message, "negative quantity -2")
	assert.Contains(t, res.InputWarnings[1].Message, "negative gross amount -50.00")
	assert.Equal(t, "t2", res.InputWarnings[2].TransactionRef)
	assert.Contains(t, res.InputWarnings[2].Message, "EUR")
	assertMoney(t, "-5.00", res.LineItems[0].CalculatedRoyalty)
	assert.Equal(t, "€100.00 × 10.00%", res.LineItems[1].Explanation)
}

func TestCalculate_Rounding(t *testing.T) {
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "0.1")},
		tx("up", "roses", "1", "0.25"),
		tx("down", "roses", "1", "0.24"),
	)
	assertMoney(t, "0.03", res.LineItems[0].CalculatedRoyalty)
	assertMoney(t, "0.02", res.LineItems[1].CalculatedRoyalty)

	cfg := DefaultConfig()
	cfg.MoneyScale = 0
	out, err := newTestEngine(t, cfg).Calculate(context.Background(), []*royalty.RoyaltyRule{flat("r1", "0.1")},
		Request{ContractID: "c-1", Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "15")}})
	require.NoError(t, err)
	assertMoney(t, "2", out.LineItems[0].CalculatedRoyalty)
}

func TestCalculate_AssignsPositionalRefs(t *testing.T) {
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "0.1")}, tx("", "roses", "1", "10"), tx("", "roses", "1", "10"))
	assert.Equal(t, "tx-1", res.LineItems[0].TransactionRef)
	assert.Equal(t, "tx-2", res.LineItems[1].TransactionRef)
}

func TestCalculate_Deterministic(t *testing.T) {
	rules := []*royalty.RoyaltyRule{
		rule("tiers", 0, 10, tieredSchedule(), "roses"),
		rule("flat", 1, 10, royalty.FlatCalculation{BaseRate: d("0.08")}, "shrubs", "perennials"),
		rule("season", 2, 10, royalty.SeasonalCalculation{Adjustments: map[string]decimal.Decimal{"Spring": d("1.15"), "Holiday": d("1.3")}}),
		rule("territory", 3, 10, royalty.TerritoryCalculation{Premiums: map[string]decimal.Decimal{"Secondary": d("1.1"), "Canada": d("0.95")}}),
	}
	categories := []string{"roses", "shrubs", "perennials", "tulips"}
	territories := []string{"", "secondary", "Canada"}
	var txs []royalty.SalesTransaction
	for i := 0; i < 60; i++ {
		in := tx(fmt.Sprintf("t%02d", i), categories[i%len(categories)], fmt.Sprintf("%d", 100*(i+1)), fmt.Sprintf("%d.37", 250*(i+1)))
		in.Territory = territories[i%len(territories)]
		in.TransactionDate = spring.AddDate(0, i%12, 0)
		txs = append(txs, in)
	}
	req := Request{ContractID: "c-1", Period: royalty.PeriodQuarterly, Transactions: txs}

	serial := DefaultConfig()
	serial.Workers = 1
	r1, err := newTestEngine(t, serial).Calculate(context.Background(), rules, req)
	require.NoError(t, err)
	r2, err := newTestEngine(t, DefaultConfig()).Calculate(context.Background(), rules, req)
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Len(t, r1.Digest, 64)
	assert.Equal(t, 15, r1.UnmatchedCount)
}

func TestCalculate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newTestEngine(t, DefaultConfig()).Calculate(ctx, []*royalty.RoyaltyRule{flat("r1", "0.1")}, Request{
		ContractID:   "c-1",
		Transactions: []royalty.SalesTransaction{tx("t1", "roses", "1", "10"), tx("t2", "roses", "1", "10")},
	})

	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Empty(t, res.LineItems)
	assert.Equal(t, 0, res.TransactionCount)
	assert.True(t, res.FinalRoyalty.IsZero())
	require.Len(t, res.Notes, 1)
	assert.Contains(t, res.Notes[0], "0 of 2")
}

func TestCalculate_InvalidRequest(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())

	_, err := e.Calculate(context.Background(), nil, Request{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeCalculationInput))

	_, err = e.Calculate(context.Background(), nil, Request{ContractID: "c-1", TieBreak: "random"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeCalculationInput))
}

func TestNewEngine_Config(t *testing.T) {
	e, err := NewEngine(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers, e.Config().Workers)
	assert.Equal(t, royalty.TieBreakFirstExtracted, e.Config().TieBreak)

	_, err = NewEngine(Config{TieBreak: "coin_flip"}, nil)
	assert.Error(t, err)
	_, err = NewEngine(Config{MoneyScale: -1}, nil)
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	res := calculate(t, []*royalty.RoyaltyRule{flat("r1", "0.1")}, tx("t1", "roses", "1", "10"))

	again, err := Digest(res)
	require.NoError(t, err)
	assert.Equal(t, res.Digest, again)

	changed := *res
	changed.FinalRoyalty = d("99")
	other, err := Digest(&changed)
	require.NoError(t, err)
	assert.NotEqual(t, res.Digest, other)
}
