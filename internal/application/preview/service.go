// Package preview shows which formula each product would get before a full
// calculation is run.
package preview

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/calculation"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// DefaultPerCategory is the number of samples shown per category.
const DefaultPerCategory = 3

// Options tunes one preview.
type Options struct {
	PerCategory     int  `json:"perCategory,omitempty"`
	AggregateVolume bool `json:"aggregateVolume,omitempty"`
}

// Sample is the formula chosen for one sampled transaction.
type Sample struct {
	TransactionRef string          `json:"transactionRef"`
	ProductName    string          `json:"productName"`
	Category       string          `json:"category"`
	SampleUnits    decimal.Decimal `json:"sampleUnits"`
	Matched        bool            `json:"matched"`
	RuleID         string          `json:"ruleId,omitempty"`
	RuleName       string          `json:"ruleName,omitempty"`
	FormulaType    string          `json:"formulaType"`
	Confidence     float64         `json:"confidence,omitempty"`
}

// Result is a formula preview over a batch of transactions.
type Result struct {
	ContractID     string          `json:"contractId"`
	Samples        []Sample        `json:"samples"`
	TotalProducts  int             `json:"totalProducts"`
	TotalRules     int             `json:"totalRules"`
	UnmatchedCount int             `json:"unmatchedSales"`
	UnmatchedRatio decimal.Decimal `json:"unmatchedRatio"`
}

// Service builds formula previews.
type Service interface {
	// Preview matches every transaction against the contract's active rules
	// without computing amounts and returns up to PerCategory samples per
	// category, categories in first-seen order.
	Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, opts Options) (*Result, error)
}

// Config holds service defaults.
type Config struct {
	PerCategory     int
	TieBreak        royalty.TieBreakPolicy
	AggregateVolume bool
}

// DefaultConfig returns the preview defaults.
func DefaultConfig() Config {
	return Config{PerCategory: DefaultPerCategory, TieBreak: royalty.TieBreakFirstExtracted}
}

type serviceImpl struct {
	rules  calculation.RuleSource
	cfg    Config
	logger logging.Logger
}

// NewService creates a preview service over rules.
func NewService(rules calculation.RuleSource, cfg Config, logger logging.Logger) (Service, error) {
	if rules == nil {
		return nil, errors.InvalidParam("rule source is required")
	}
	if cfg.PerCategory <= 0 {
		cfg.PerCategory = DefaultPerCategory
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = royalty.TieBreakFirstExtracted
	}
	if !cfg.TieBreak.IsValid() {
		return nil, errors.InvalidParam("unknown tie-break policy: " + string(cfg.TieBreak))
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{rules: rules, cfg: cfg, logger: logger.Named("preview")}, nil
}

func (s *serviceImpl) Preview(ctx context.Context, contractID string, txs []royalty.SalesTransaction, opts Options) (*Result, error) {
	if contractID == "" {
		return nil, errors.InvalidParam("contract id is required")
	}
	perCategory := opts.PerCategory
	if perCategory <= 0 {
		perCategory = s.cfg.PerCategory
	}
	rules, err := s.rules.ActiveRules(ctx, contractID)
	if err != nil {
		return nil, err
	}
	rs := calculation.NewRuleSet(rules, s.cfg.TieBreak)

	res := &Result{
		ContractID:     contractID,
		Samples:        []Sample{},
		TotalRules:     rs.Total(),
		UnmatchedRatio: decimal.Zero,
	}
	volumes := calculation.MatchVolumes(txs, opts.AggregateVolume || s.cfg.AggregateVolume)
	products := make(map[string]bool)
	taken := make(map[string]int)
	for i, tx := range txs {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCalculationCancelled, "preview cancelled")
		}
		products[productKey(tx)] = true
		sel := rs.Select(tx, volumes[i])
		if !sel.Matched() {
			res.UnmatchedCount++
		}
		category := strings.ToLower(tx.CategoryOrDefault())
		if taken[category] >= perCategory {
			continue
		}
		taken[category]++
		res.Samples = append(res.Samples, sampleOf(i, tx, sel))
	}
	res.TotalProducts = len(products)
	if len(txs) > 0 {
		res.UnmatchedRatio = decimal.NewFromInt(int64(res.UnmatchedCount)).
			DivRound(decimal.NewFromInt(int64(len(txs))), 4)
	}

	s.logger.Debug("formula preview built",
		logging.String("contract_id", contractID),
		logging.Int("samples", len(res.Samples)),
		logging.Int("unmatched", res.UnmatchedCount))
	return res, nil
}

func sampleOf(i int, tx royalty.SalesTransaction, sel calculation.Selection) Sample {
	ref := tx.ID
	if ref == "" {
		ref = fmt.Sprintf("tx-%d", i+1)
	}
	sm := Sample{
		TransactionRef: ref,
		ProductName:    tx.ProductName,
		Category:       tx.CategoryOrDefault(),
		SampleUnits:    tx.Quantity,
		FormulaType:    "No matching rule",
	}
	if !sel.Matched() {
		return sm
	}
	r := sel.Rule
	sm.Matched = true
	sm.RuleID = r.ID
	sm.RuleName = r.Label()
	sm.Confidence = r.Confidence
	sm.FormulaType = describe(r.Calculation, tx.Quantity)
	return sm
}

func productKey(tx royalty.SalesTransaction) string {
	if tx.ProductCode != "" {
		return "code:" + strings.ToLower(tx.ProductCode)
	}
	return "name:" + strings.ToLower(strings.TrimSpace(tx.ProductName))
}

// describe renders a short formula label such as "Tiered: 0-4999 @ $1.25/unit".
func describe(calc royalty.Calculation, volume decimal.Decimal) string {
	switch c := calc.(type) {
	case royalty.FlatCalculation:
		return "Flat: " + rateLabel(c.BaseRate, c.RateKind)
	case royalty.TieredCalculation:
		tier, _, ok := c.TierFor(volume)
		if !ok {
			return fmt.Sprintf("Tiered: no tier for %s units", volume.String())
		}
		return fmt.Sprintf("Tiered: %s @ %s", tier.Label(), rateLabel(tier.Rate, c.RateKind))
	default:
		return string(calc.Type())
	}
}

func rateLabel(rate decimal.Decimal, kind royalty.RateKind) string {
	if kind.Resolve(rate) == royalty.RatePerUnit {
		return "$" + rate.StringFixed(2) + "/unit"
	}
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "% of gross"
}
