package royalty

import (
	"github.com/shopspring/decimal"
)

// RuleRef identifies the rule applied to a line item.
type RuleRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LineItem is the royalty computed for one transaction.
type LineItem struct {
	TransactionRef      string           `json:"transactionRef"`
	ProductName         string           `json:"productName,omitempty"`
	Category            string           `json:"category,omitempty"`
	Territory           string           `json:"territory,omitempty"`
	Quantity            decimal.Decimal  `json:"quantity"`
	GrossAmount         decimal.Decimal  `json:"grossAmount"`
	RuleApplied         *RuleRef         `json:"ruleApplied"`
	BaseRate            *decimal.Decimal `json:"baseRate,omitempty"`
	RateKind            RateKind         `json:"rateKind,omitempty"`
	Tier                string           `json:"tier,omitempty"`
	SeasonalMultiplier  decimal.Decimal  `json:"seasonalMultiplier"`
	TerritoryMultiplier decimal.Decimal  `json:"territoryMultiplier"`
	CalculatedRoyalty   decimal.Decimal  `json:"calculatedRoyalty"`
	Explanation         string           `json:"explanation"`
	Matched             bool             `json:"matched"`
	UnmatchedReason     string           `json:"unmatchedReason,omitempty"`
}

// RuleGap groups unmatched transactions that share a category and territory.
type RuleGap struct {
	Category        string   `json:"category"`
	Territory       string   `json:"territory"`
	Reason          string   `json:"reason"`
	TransactionRefs []string `json:"transactionRefs"`
}

// InputWarning flags a suspicious transaction that was still calculated.
type InputWarning struct {
	TransactionRef string `json:"transactionRef"`
	Message        string `json:"message"`
}

// CalculationResult is the outcome of one calculation request.
type CalculationResult struct {
	ContractID       string                  `json:"contractId"`
	Period           TimePeriod              `json:"period,omitempty"`
	TotalRoyalty     decimal.Decimal         `json:"totalRoyalty"`
	MinimumGuarantee *decimal.Decimal        `json:"minimumGuarantee,omitempty"`
	FinalRoyalty     decimal.Decimal         `json:"finalRoyalty"`
	LineItems        []LineItem              `json:"lineItems"`
	TransactionCount int                     `json:"transactionCount"`
	UnmatchedCount   int                     `json:"unmatchedCount"`
	RulesApplied     []string                `json:"rulesApplied"`
	Warnings         []AmbiguousMatchWarning `json:"warnings"`
	RuleErrors       []RuleShapeError        `json:"ruleErrors"`
	RuleGaps         []RuleGap               `json:"ruleGaps"`
	InputWarnings    []InputWarning          `json:"inputWarnings"`
	Notes            []string                `json:"notes,omitempty"`
	Complete         bool                    `json:"complete"`
	Digest           string                  `json:"digest"`
}
