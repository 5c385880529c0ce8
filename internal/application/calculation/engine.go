// Package calculation turns sales transactions and a contract's active
// royalty rules into a deterministic, explained royalty result.
package calculation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
)

// Engine defaults.
const (
	DefaultWorkers    = 8
	DefaultMoneyScale = 2
)

// Config tunes the engine.
type Config struct {
	Workers         int
	TieBreak        royalty.TieBreakPolicy
	MoneyScale      int32
	AggregateVolume bool
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    DefaultWorkers,
		TieBreak:   royalty.TieBreakFirstExtracted,
		MoneyScale: DefaultMoneyScale,
	}
}

// Request is one calculation over a batch of transactions.
type Request struct {
	ContractID string             `json:"contractId"`
	Period     royalty.TimePeriod `json:"period,omitempty"`
	// Currency is the contract currency; transactions in another currency
	// get an input warning. Empty falls back to the applied rule's currency.
	Currency     string                     `json:"currency,omitempty"`
	Transactions []royalty.SalesTransaction `json:"transactions"`
	// TieBreak overrides the configured policy when set.
	TieBreak royalty.TieBreakPolicy `json:"tieBreak,omitempty"`
	// AggregateVolume matches volume conditions and tiers against the
	// category's total quantity in the batch instead of the line quantity.
	AggregateVolume bool `json:"aggregateVolume,omitempty"`
}

// Engine evaluates transactions against rules. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	cfg    Config
	logger logging.Logger
}

// NewEngine creates an engine, filling zero config values with defaults.
func NewEngine(cfg Config, logger logging.Logger) (*Engine, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = royalty.TieBreakFirstExtracted
	}
	if !cfg.TieBreak.IsValid() {
		return nil, errors.InvalidParam("unknown tie-break policy: " + string(cfg.TieBreak))
	}
	if cfg.MoneyScale < 0 {
		return nil, errors.InvalidParam("money scale cannot be negative")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{cfg: cfg, logger: logger.Named("calculation")}, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Calculate evaluates req against rules. Inactive rules are ignored and
// malformed ones reported in RuleErrors. When ctx is cancelled mid-run the
// resolved line items are kept and the result has Complete set to false.
func (e *Engine) Calculate(ctx context.Context, rules []*royalty.RoyaltyRule, req Request) (*royalty.CalculationResult, error) {
	if strings.TrimSpace(req.ContractID) == "" {
		return nil, errors.New(errors.ErrCodeCalculationInput, "contract id is required")
	}
	policy := e.cfg.TieBreak
	if req.TieBreak != "" {
		if !req.TieBreak.IsValid() {
			return nil, errors.New(errors.ErrCodeCalculationInput, "unknown tie-break policy: "+string(req.TieBreak))
		}
		policy = req.TieBreak
	}
	rs := NewRuleSet(rules, policy)
	txs := withRefs(req.Transactions)
	volumes := MatchVolumes(txs, req.AggregateVolume || e.cfg.AggregateVolume)

	items := make([]royalty.LineItem, len(txs))
	warnings := make([]*royalty.AmbiguousMatchWarning, len(txs))
	done := make([]bool, len(txs))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Workers)
	for i := range txs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			items[i], warnings[i] = e.evaluate(rs, txs[i], volumes[i])
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	res := &royalty.CalculationResult{
		ContractID:    req.ContractID,
		Period:        req.Period,
		TotalRoyalty:  decimal.Zero,
		LineItems:     make([]royalty.LineItem, 0, len(txs)),
		RulesApplied:  []string{},
		Warnings:      []royalty.AmbiguousMatchWarning{},
		RuleErrors:    rs.Errors,
		InputWarnings: []royalty.InputWarning{},
		Complete:      true,
	}
	applied := make(map[string]bool)
	for i := range txs {
		if !done[i] {
			res.Complete = false
			continue
		}
		item := items[i]
		res.LineItems = append(res.LineItems, item)
		res.TotalRoyalty = res.TotalRoyalty.Add(item.CalculatedRoyalty)
		if !item.Matched {
			res.UnmatchedCount++
		} else if !applied[item.RuleApplied.ID] {
			applied[item.RuleApplied.ID] = true
			res.RulesApplied = append(res.RulesApplied, item.RuleApplied.Name)
		}
		if warnings[i] != nil {
			res.Warnings = append(res.Warnings, *warnings[i])
		}
		currency := req.Currency
		if currency == "" && item.Matched {
			currency = rs.currencyOf(item.RuleApplied.ID)
		}
		res.InputWarnings = append(res.InputWarnings, inputWarnings(txs[i], currency)...)
	}
	res.TransactionCount = len(res.LineItems)
	res.RuleGaps = collectGaps(res.LineItems)
	if !res.Complete {
		res.Notes = append(res.Notes, fmt.Sprintf("calculation cancelled after %d of %d transactions", len(res.LineItems), len(txs)))
	}

	res.FinalRoyalty = res.TotalRoyalty
	if mg, amount, n := rs.Guarantee(req.Period); mg != nil {
		amount = amount.Round(e.cfg.MoneyScale)
		res.MinimumGuarantee = &amount
		if amount.GreaterThan(res.TotalRoyalty) {
			res.FinalRoyalty = amount
		}
		if n > 1 {
			res.Notes = append(res.Notes, fmt.Sprintf("%d minimum guarantees apply; using %q", n, mg.Label()))
		}
	}

	digest, err := Digest(res)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "digest calculation result")
	}
	res.Digest = digest

	e.logger.Debug("calculation finished",
		logging.String("contract_id", req.ContractID),
		logging.Int("transactions", len(txs)),
		logging.Int("unmatched", res.UnmatchedCount),
		logging.Bool("complete", res.Complete))
	return res, nil
}

// MatchVolumes returns the volume each transaction is matched with: its own
// quantity, or its category total across txs when aggregate is set.
func MatchVolumes(txs []royalty.SalesTransaction, aggregate bool) []decimal.Decimal {
	out := make([]decimal.Decimal, len(txs))
	if !aggregate {
		for i, tx := range txs {
			out[i] = tx.Quantity
		}
		return out
	}
	totals := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		key := strings.ToLower(tx.CategoryOrDefault())
		totals[key] = totals[key].Add(tx.Quantity)
	}
	for i, tx := range txs {
		out[i] = totals[strings.ToLower(tx.CategoryOrDefault())]
	}
	return out
}

// withRefs gives transactions without an id a positional reference.
func withRefs(in []royalty.SalesTransaction) []royalty.SalesTransaction {
	out := make([]royalty.SalesTransaction, len(in))
	copy(out, in)
	for i := range out {
		if strings.TrimSpace(out[i].ID) == "" {
			out[i].ID = fmt.Sprintf("tx-%d", i+1)
		}
	}
	return out
}
