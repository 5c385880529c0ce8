package provider

import (
	"context"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
)

// Operation names used in logs, metrics and errors.
const (
	OpAnalyze  = "analyze_contract"
	OpExtract  = "extract_rules"
	OpValidate = "validate_match"
)

// Adapter is one AI provider. Adapters return schema-validated, defaulted
// outputs or a *ProviderError.
type Adapter interface {
	Name() string
	AnalyzeContract(ctx context.Context, text string) (*ContractAnalysis, error)
	ExtractRoyaltyRules(ctx context.Context, text string) (*RuleExtraction, error)
	ValidateMatch(ctx context.Context, req MatchValidationRequest) (*MatchValidation, error)
}

// KeyTerm is a notable contract term.
type KeyTerm struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Location    string  `json:"location"`
}

// RiskItem is a risk flagged in the contract.
type RiskItem struct {
	Level       string `json:"level"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Insight is a free-form observation about the contract.
type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ContractAnalysis is the general analysis of a contract.
type ContractAnalysis struct {
	Summary      string     `json:"summary"`
	KeyTerms     []KeyTerm  `json:"keyTerms"`
	RiskAnalysis []RiskItem `json:"riskAnalysis"`
	Insights     []Insight  `json:"insights"`
	Confidence   float64    `json:"confidence"`
	Provider     string     `json:"provider,omitempty"`
}

// Parties names the contract parties.
type Parties struct {
	Licensor string `json:"licensor"`
	Licensee string `json:"licensee"`
}

// Rule complexity buckets.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

// ExtractionMetadata summarizes an extraction.
type ExtractionMetadata struct {
	TotalRulesFound int     `json:"totalRulesFound"`
	AvgConfidence   float64 `json:"avgConfidence"`
	ProcessingTime  string  `json:"processingTime"`
	RuleComplexity  string  `json:"ruleComplexity"`
}

// RuleExtraction is the structured output of rule extraction. Rules carry no
// contract id or status; the rule store assigns both.
type RuleExtraction struct {
	DocumentType          string                   `json:"documentType"`
	LicenseType           string                   `json:"licenseType"`
	Parties               Parties                  `json:"parties"`
	EffectiveDate         *string                  `json:"effectiveDate,omitempty"`
	ExpirationDate        *string                  `json:"expirationDate,omitempty"`
	Rules                 []*royalty.RoyaltyRule   `json:"rules"`
	RuleErrors            []royalty.RuleShapeError `json:"ruleErrors"`
	Currency              string                   `json:"currency"`
	PaymentTerms          string                   `json:"paymentTerms"`
	ReportingRequirements []string                 `json:"reportingRequirements"`
	ExtractionMetadata    ExtractionMetadata       `json:"extractionMetadata"`
	Provider              string                   `json:"provider,omitempty"`
	// Raw is the model text the extraction was parsed from.
	Raw string `json:"-"`
}

// MatchValidationRequest asks whether a rule fits a sales line.
type MatchValidationRequest struct {
	TransactionRef string               `json:"transactionRef"`
	ProductName    string               `json:"productName"`
	Category       string               `json:"category"`
	Territory      string               `json:"territory"`
	Rule           *royalty.RoyaltyRule `json:"rule"`
}

// MatchValidation is the model's verdict on a match.
type MatchValidation struct {
	TransactionRef  string   `json:"transactionRef"`
	IsValid         bool     `json:"isValid"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
}
