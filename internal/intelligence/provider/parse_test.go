package provider

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
)

var testSchemas = MustCompileSchemas()

const extractionFixture = "```json\n" + `{
  "documentType": "license",
  "licenseType": "plant variety",
  "parties": {"licensor": "Green Genetics", "licensee": "Valley Nursery"},
  "effectiveDate": "2024-01-01",
  "expirationDate": "",
  "currency": "usd",
  "paymentTerms": "quarterly",
  "rules": [
    {
      "ruleType": "tiered_pricing",
      "ruleName": "Tier 1 - Shrubs",
      "conditions": {"productCategories": ["Shrubs"], "territories": ["Primary"]},
      "calculation": {"tiers": [{"min": 0, "max": 5000, "rate": 1.25}, {"min": 5000, "rate": 1.10}]},
      "priority": 10,
      "confidence": 0.9,
      "sourceSpan": {"section": "Exhibit A", "text": "Tier 1 royalty rates"}
    },
    {
      "ruleType": "percentage",
      "ruleName": "Perennials",
      "conditions": {"productCategories": ["perennials"]},
      "calculation": {"rate": 5}
    },
    {
      "ruleType": "cap",
      "ruleName": "Annual cap",
      "calculation": {"amount": 100000}
    },
    {
      "ruleType": "tiered_pricing",
      "ruleName": "tier 1 - shrubs",
      "conditions": {"productCategories": ["shrubs"]},
      "calculation": {"tiers": [{"min": 0, "max": 5000, "rate": 1.25}, {"min": 5000, "rate": 1.10}]},
      "priority": 10,
      "confidence": 0.96
    }
  ]
}` + "\n```"

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", "Here you go: {\"a\":{\"b\":2}} hope it helps", `{"a":{"b":2}}`, false},
		{"no object", "sorry, I cannot", "", true},
		{"reversed braces", "} nothing {", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanJSON(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExtraction(t *testing.T) {
	out, err := ParseExtraction(testSchemas, extractionFixture, 1500*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, "license", out.DocumentType)
	assert.Equal(t, "Green Genetics", out.Parties.Licensor)
	require.NotNil(t, out.EffectiveDate)
	assert.Nil(t, out.ExpirationDate)
	assert.Equal(t, "USD", out.Currency)
	assert.Empty(t, out.ReportingRequirements)
	assert.NotNil(t, out.ReportingRequirements)

	require.Len(t, out.Rules, 2)
	tiered := out.Rules[0]
	assert.Equal(t, royalty.RuleTypeTiered, tiered.RuleType)
	assert.Equal(t, 0.96, tiered.Confidence, "duplicate keeps the more confident rule")
	assert.Equal(t, 0, tiered.ExtractionOrder)
	assert.Equal(t, "USD", tiered.Conditions.Currency)
	assert.Empty(t, tiered.Status)
	assert.Empty(t, tiered.ContractID)
	assert.NotEmpty(t, tiered.ID)

	flat := out.Rules[1]
	assert.Equal(t, royalty.RuleTypeFlat, flat.RuleType)
	assert.Equal(t, royalty.DefaultPriority, flat.Priority)
	assert.Equal(t, DefaultConfidence, flat.Confidence)
	assert.Equal(t, 1, flat.ExtractionOrder)
	calc, ok := flat.Calculation.(royalty.FlatCalculation)
	require.True(t, ok)
	assert.True(t, calc.BaseRate.Equal(decimal.RequireFromString("0.05")))
	assert.Equal(t, royalty.RatePercentage, calc.RateKind)

	require.Len(t, out.RuleErrors, 1)
	assert.Equal(t, "rule[2]", out.RuleErrors[0].RuleID)

	md := out.ExtractionMetadata
	assert.Equal(t, 2, md.TotalRulesFound)
	assert.Equal(t, 0.73, md.AvgConfidence)
	assert.Equal(t, ComplexitySimple, md.RuleComplexity)
	assert.Equal(t, "1.5s", md.ProcessingTime)
}

func TestParseExtraction_Errors(t *testing.T) {
	_, err := ParseExtraction(testSchemas, "I could not find any rules.", 0)
	assert.Error(t, err)

	_, err = ParseExtraction(testSchemas, `{"documentType": "license"}`, 0)
	assert.ErrorContains(t, err, "schema validation failed")

	_, err = ParseExtraction(testSchemas, `{"rules": [{"ruleType": "percentage"}]}`, 0)
	assert.ErrorContains(t, err, "schema validation failed")

	_, err = ParseExtraction(testSchemas, `{"rules": [ {"ruleType": "x",, } ]}`, 0)
	assert.ErrorContains(t, err, "invalid JSON")
}

func TestParseExtraction_ShapeErrors(t *testing.T) {
	text := `{"rules": [
	  {"ruleType": "percentage", "calculation": {"rate": 5}, "priority": 2.5},
	  {"ruleType": "percentage", "calculation": {"rate": 5}, "confidence": 3},
	  {"ruleType": "tiered", "calculation": {"tiers": [{"min": 0, "max": 100, "rate": 1}, {"min": 50, "rate": 2}]}},
	  {"ruleType": "minimum_guarantee", "calculation": {}},
	  {"ruleType": "per_unit", "calculation": {"baseRate": 1.5}}
	]}`
	out, err := ParseExtraction(testSchemas, text, 0)
	require.NoError(t, err)
	require.Len(t, out.Rules, 1)
	assert.Equal(t, 0, out.Rules[0].ExtractionOrder)
	require.Len(t, out.RuleErrors, 4)
	for i, se := range out.RuleErrors {
		assert.Equal(t, "rule["+string(rune('0'+i))+"]", se.RuleID)
		assert.NotEmpty(t, se.Reason)
	}
	assert.Contains(t, out.RuleErrors[0].Reason, "integer")
}

func TestParseExtraction_Complexity(t *testing.T) {
	var rules []string
	for i := 0; i < 6; i++ {
		rules = append(rules, `{"ruleType": "per_unit", "ruleName": "r`+string(rune('a'+i))+`", "calculation": {"baseRate": 1}}`)
	}
	out, err := ParseExtraction(testSchemas, `{"rules": [`+strings.Join(rules, ",")+`]}`, 0)
	require.NoError(t, err)
	assert.Equal(t, ComplexityComplex, out.ExtractionMetadata.RuleComplexity)

	out, err = ParseExtraction(testSchemas, `{"rules": []}`, 0)
	require.NoError(t, err)
	assert.Zero(t, out.ExtractionMetadata.AvgConfidence)
	assert.Equal(t, ComplexitySimple, out.ExtractionMetadata.RuleComplexity)
}

func TestParseExtraction_ClampsSourceSpan(t *testing.T) {
	long := strings.Repeat("word ", 100)
	out, err := ParseExtraction(testSchemas, `{"rules": [{"ruleType": "per_unit", "calculation": {"baseRate": 1}, "sourceSpan": {"text": "`+long+`"}}]}`, 0)
	require.NoError(t, err)
	require.Len(t, out.Rules, 1)
	assert.LessOrEqual(t, len([]rune(out.Rules[0].SourceSpan.Text)), 150)
	assert.True(t, strings.HasSuffix(out.Rules[0].SourceSpan.Text, "..."))
}

func TestParseAnalysis(t *testing.T) {
	out, err := ParseAnalysis(testSchemas, `{"summary": "A plant license", "keyTerms": [{"type": "royalty", "description": "5%"}], "confidence": 1.7}`)
	require.NoError(t, err)
	assert.Equal(t, "A plant license", out.Summary)
	require.Len(t, out.KeyTerms, 1)
	assert.Equal(t, DefaultConfidence, out.KeyTerms[0].Confidence)
	assert.Equal(t, 1.0, out.Confidence)
	assert.NotNil(t, out.RiskAnalysis)
	assert.NotNil(t, out.Insights)

	_, err = ParseAnalysis(testSchemas, `{"keyTerms": []}`)
	assert.Error(t, err)
}

func TestParseValidation(t *testing.T) {
	out, err := ParseValidation(testSchemas, "```json\n{\"isValid\": true, \"confidence\": 0.8, \"reasoning\": \"category matches\"}\n```", "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", out.TransactionRef)
	assert.True(t, out.IsValid)
	assert.Equal(t, 0.8, out.Confidence)
	assert.NotNil(t, out.Recommendations)

	_, err = ParseValidation(testSchemas, `{"confidence": 0.8}`, "tx-1")
	assert.Error(t, err)
}
