package royalty

import (
	"github.com/shopspring/decimal"

	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// Event types.
const (
	EventRulesExtracted       = "royalty.rules.extracted"
	EventRuleGapDetected      = "royalty.rule_gap.detected"
	EventCalculationCompleted = "royalty.calculation.completed"
)

// RulesExtractedEvent announces a new rule set for a contract.
type RulesExtractedEvent struct {
	common.BaseEvent
	ContractID    string   `json:"contractId"`
	Provider      string   `json:"provider"`
	RuleIDs       []string `json:"ruleIds"`
	Active        int      `json:"active"`
	PendingReview int      `json:"pendingReview"`
	Rejected      int      `json:"rejected"`
	Cached        bool     `json:"cached"`
}

// NewRulesExtractedEvent builds the event for a stored extraction.
func NewRulesExtractedEvent(contractID, provider string, ruleIDs []string, active, pending, rejected int, cached bool) *RulesExtractedEvent {
	return &RulesExtractedEvent{
		BaseEvent:     common.NewBaseEvent(EventRulesExtracted, contractID),
		ContractID:    contractID,
		Provider:      provider,
		RuleIDs:       ruleIDs,
		Active:        active,
		PendingReview: pending,
		Rejected:      rejected,
		Cached:        cached,
	}
}

// RuleGapEvent reports transactions no rule covered.
type RuleGapEvent struct {
	common.BaseEvent
	ContractID string    `json:"contractId"`
	Gaps       []RuleGap `json:"gaps"`
}

// NewRuleGapEvent builds a gap event.
func NewRuleGapEvent(contractID string, gaps []RuleGap) *RuleGapEvent {
	return &RuleGapEvent{
		BaseEvent:  common.NewBaseEvent(EventRuleGapDetected, contractID),
		ContractID: contractID,
		Gaps:       gaps,
	}
}

// CalculationCompletedEvent summarizes a finished calculation.
type CalculationCompletedEvent struct {
	common.BaseEvent
	ContractID       string           `json:"contractId"`
	Period           TimePeriod       `json:"period,omitempty"`
	TotalRoyalty     decimal.Decimal  `json:"totalRoyalty"`
	MinimumGuarantee *decimal.Decimal `json:"minimumGuarantee,omitempty"`
	FinalRoyalty     decimal.Decimal  `json:"finalRoyalty"`
	TransactionCount int              `json:"transactionCount"`
	UnmatchedCount   int              `json:"unmatchedCount"`
	Digest           string           `json:"digest"`
}

// NewCalculationCompletedEvent summarizes res.
func NewCalculationCompletedEvent(res *CalculationResult) *CalculationCompletedEvent {
	return &CalculationCompletedEvent{
		BaseEvent:        common.NewBaseEvent(EventCalculationCompleted, res.ContractID),
		ContractID:       res.ContractID,
		Period:           res.Period,
		TotalRoyalty:     res.TotalRoyalty,
		MinimumGuarantee: res.MinimumGuarantee,
		FinalRoyalty:     res.FinalRoyalty,
		TransactionCount: res.TransactionCount,
		UnmatchedCount:   res.UnmatchedCount,
		Digest:           res.Digest,
	}
}
