package provider

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// Output defaults.
const (
	DefaultCurrency   = "USD"
	DefaultConfidence = 0.5
)

var errNoJSONObject = stderrors.New("no JSON object in model output")

// CleanJSON strips markdown fences and returns the text between the first
// '{' and the last '}'.
func CleanJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", errNoJSONObject
	}
	return s[start : end+1], nil
}

// decodeValidated cleans text, validates it against schema and decodes it
// into out.
func decodeValidated(schema *jsonschema.Schema, text string, out any) error {
	cleaned, err := CleanJSON(text)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

type extractionWire struct {
	DocumentType          string            `json:"documentType"`
	LicenseType           string            `json:"licenseType"`
	Parties               Parties           `json:"parties"`
	EffectiveDate         *string           `json:"effectiveDate"`
	ExpirationDate        *string           `json:"expirationDate"`
	Currency              string            `json:"currency"`
	PaymentTerms          string            `json:"paymentTerms"`
	ReportingRequirements []string          `json:"reportingRequirements"`
	Rules                 []json.RawMessage `json:"rules"`
}

// ParseExtraction turns model text into a RuleExtraction. Rules that do not
// fit their type are reported in RuleErrors and left out of Rules.
// Duplicate rules collapse to the most confident one.
func ParseExtraction(schemas *Schemas, text string, elapsed time.Duration) (*RuleExtraction, error) {
	var wire extractionWire
	if err := decodeValidated(schemas.Extraction, text, &wire); err != nil {
		return nil, err
	}

	out := &RuleExtraction{
		DocumentType:          wire.DocumentType,
		LicenseType:           wire.LicenseType,
		Parties:               wire.Parties,
		EffectiveDate:         nonEmpty(wire.EffectiveDate),
		ExpirationDate:        nonEmpty(wire.ExpirationDate),
		Currency:              strings.ToUpper(strings.TrimSpace(wire.Currency)),
		PaymentTerms:          wire.PaymentTerms,
		ReportingRequirements: wire.ReportingRequirements,
		Rules:                 []*royalty.RoyaltyRule{},
		RuleErrors:            []royalty.RuleShapeError{},
		Raw:                   text,
	}
	if out.Currency == "" {
		out.Currency = DefaultCurrency
	}
	if out.ReportingRequirements == nil {
		out.ReportingRequirements = []string{}
	}

	byFingerprint := make(map[string]int)
	for i, raw := range wire.Rules {
		ref := fmt.Sprintf("rule[%d]", i)
		r, shapeErr := decodeRule(raw, ref, out.Currency)
		if shapeErr != nil {
			out.RuleErrors = append(out.RuleErrors, *shapeErr)
			continue
		}
		fp := r.Fingerprint()
		if at, dup := byFingerprint[fp]; dup {
			if r.Confidence > out.Rules[at].Confidence {
				r.ExtractionOrder = at
				out.Rules[at] = r
			}
			continue
		}
		r.ExtractionOrder = len(out.Rules)
		byFingerprint[fp] = len(out.Rules)
		out.Rules = append(out.Rules, r)
	}
	out.ExtractionMetadata = summarize(out.Rules, elapsed)
	return out, nil
}

// decodeRule applies defaults to one raw rule and decodes it. The returned
// rule has a fresh id and no contract or status.
func decodeRule(raw json.RawMessage, ref, currency string) (*royalty.RoyaltyRule, *royalty.RuleShapeError) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &royalty.RuleShapeError{RuleID: ref, Reason: "rule is not an object"}
	}
	label, _ := m["ruleType"].(string)
	if m["priority"] == nil {
		m["priority"] = royalty.DefaultPriority
	} else if p, ok := m["priority"].(float64); ok && p != math.Trunc(p) {
		return nil, &royalty.RuleShapeError{RuleID: ref, RuleType: royalty.RuleType(label), Reason: "priority must be an integer"}
	}
	if m["confidence"] == nil {
		m["confidence"] = DefaultConfidence
	}
	delete(m, "id")
	delete(m, "contractId")
	delete(m, "status")
	b, err := json.Marshal(m)
	if err != nil {
		return nil, &royalty.RuleShapeError{RuleID: ref, RuleType: royalty.RuleType(label), Reason: err.Error()}
	}

	var r royalty.RoyaltyRule
	if err := json.Unmarshal(b, &r); err != nil {
		var se *royalty.RuleShapeError
		if stderrors.As(err, &se) {
			se.RuleID = ref
			return nil, se
		}
		return nil, &royalty.RuleShapeError{RuleID: ref, RuleType: royalty.RuleType(label), Reason: err.Error()}
	}
	if r.Conditions.Currency == "" {
		r.Conditions.Currency = currency
	}
	r.SourceSpan.Clamp()

	r.ID = ref
	r.ContractID = "-"
	r.Status = royalty.StatusPendingReview
	if se := royalty.ValidateShape(&r); se != nil {
		return nil, se
	}
	r.ID = string(common.NewID())
	r.ContractID = ""
	r.Status = ""
	return &r, nil
}

func summarize(rules []*royalty.RoyaltyRule, elapsed time.Duration) ExtractionMetadata {
	md := ExtractionMetadata{
		TotalRulesFound: len(rules),
		ProcessingTime:  elapsed.Round(time.Millisecond).String(),
		RuleComplexity:  complexity(len(rules)),
	}
	if len(rules) > 0 {
		var sum float64
		for _, r := range rules {
			sum += r.Confidence
		}
		md.AvgConfidence = math.Round(sum/float64(len(rules))*100) / 100
	}
	return md
}

func complexity(n int) string {
	switch {
	case n <= 2:
		return ComplexitySimple
	case n <= 5:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

type analysisWire struct {
	Summary  string `json:"summary"`
	KeyTerms []struct {
		Type        string   `json:"type"`
		Description string   `json:"description"`
		Confidence  *float64 `json:"confidence"`
		Location    string   `json:"location"`
	} `json:"keyTerms"`
	RiskAnalysis []RiskItem `json:"riskAnalysis"`
	Insights     []Insight  `json:"insights"`
	Confidence   *float64   `json:"confidence"`
}

// ParseAnalysis turns model text into a ContractAnalysis.
func ParseAnalysis(schemas *Schemas, text string) (*ContractAnalysis, error) {
	var wire analysisWire
	if err := decodeValidated(schemas.Analysis, text, &wire); err != nil {
		return nil, err
	}
	out := &ContractAnalysis{
		Summary:      wire.Summary,
		KeyTerms:     make([]KeyTerm, 0, len(wire.KeyTerms)),
		RiskAnalysis: wire.RiskAnalysis,
		Insights:     wire.Insights,
		Confidence:   clamp01(valueOr(wire.Confidence, DefaultConfidence)),
	}
	for _, kt := range wire.KeyTerms {
		out.KeyTerms = append(out.KeyTerms, KeyTerm{
			Type:        kt.Type,
			Description: kt.Description,
			Confidence:  clamp01(valueOr(kt.Confidence, DefaultConfidence)),
			Location:    kt.Location,
		})
	}
	if out.RiskAnalysis == nil {
		out.RiskAnalysis = []RiskItem{}
	}
	if out.Insights == nil {
		out.Insights = []Insight{}
	}
	return out, nil
}

type validationWire struct {
	IsValid         bool     `json:"isValid"`
	Confidence      *float64 `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	Recommendations []string `json:"recommendations"`
}

// ParseValidation turns model text into a MatchValidation.
func ParseValidation(schemas *Schemas, text, transactionRef string) (*MatchValidation, error) {
	var wire validationWire
	if err := decodeValidated(schemas.Validation, text, &wire); err != nil {
		return nil, err
	}
	out := &MatchValidation{
		TransactionRef:  transactionRef,
		IsValid:         wire.IsValid,
		Confidence:      clamp01(valueOr(wire.Confidence, DefaultConfidence)),
		Reasoning:       wire.Reasoning,
		Recommendations: wire.Recommendations,
	}
	if out.Recommendations == nil {
		out.Recommendations = []string{}
	}
	return out, nil
}

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
