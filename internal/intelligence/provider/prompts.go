package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is a rendered system and user message pair.
type Prompt struct {
	System string
	User   string
}

// Messages returns the prompt as chat messages.
func (p Prompt) Messages() []Message {
	return []Message{
		{Role: "system", Content: p.System},
		{Role: "user", Content: p.User},
	}
}

const systemExtraction = `You are a licensing analyst who extracts royalty payment rules from license agreements.
Return ONLY a JSON object. Do not add commentary or markdown.`

const userExtraction = `Extract every royalty rule from the contract text below.

Use exactly one of these ruleType values:
- "flat": one rate. calculation: {"baseRate": number, "rateKind": "per_unit" | "percentage"}
- "tiered": volume tiers. calculation: {"tiers": [{"min": number, "max": number | null, "rate": number}]}
- "seasonal": season multipliers. calculation: {"seasonalAdjustments": {"spring": 1.15, "fall": 0.95, "holiday": 1.2}}
- "territory": territory multipliers. calculation: {"territoryPremiums": {"secondary": 1.1}}
- "minimum_guarantee": a payment floor. calculation: {"amount": number, "period": "annual" | "quarterly" | "monthly"}

Each rule: ruleType, ruleName, description (under 80 characters), conditions
(productCategories, territories, salesVolumeMin, salesVolumeMax, timePeriod),
calculation, priority (1-100, lower applies first), confidence (0-1),
sourceSpan (section, text).

Percentages are fractions: 5% is 0.05. Tier max is exclusive; the last tier may omit max.

Response shape:
{"documentType": "...", "licenseType": "...", "parties": {"licensor": "...", "licensee": "..."},
 "effectiveDate": "YYYY-MM-DD" | null, "expirationDate": "YYYY-MM-DD" | null,
 "currency": "USD", "paymentTerms": "...", "reportingRequirements": ["..."], "rules": [...]}

CONTRACT TEXT:
{{.Text}}`

const systemAnalysis = `You are a contract analyst. Summarize license agreements and flag commercial risk.
Return ONLY a JSON object. Do not add commentary or markdown.`

const userAnalysis = `Analyze the license agreement below.

Response shape:
{"summary": "2-3 sentences",
 "keyTerms": [{"type": "...", "description": "...", "confidence": 0.0-1.0, "location": "section"}],
 "riskAnalysis": [{"level": "high" | "medium" | "low", "title": "...", "description": "..."}],
 "insights": [{"type": "...", "title": "...", "description": "..."}],
 "confidence": 0.0-1.0}

CONTRACT TEXT:
{{truncate 8000 .Text}}`

const systemValidation = `You review whether a royalty rule was correctly matched to a sales transaction.
Return ONLY a JSON object. Do not add commentary or markdown.`

const userValidation = `Transaction:
- reference: {{.Request.TransactionRef}}
- product: {{.Request.ProductName}}
- category: {{.Request.Category}}
- territory: {{.Request.Territory}}

Matched rule:
{{.RuleJSON}}

Is this rule the right one for this transaction?

Response shape:
{"isValid": true | false, "confidence": 0.0-1.0, "reasoning": "...", "recommendations": ["..."]}`

var builtinTemplates = map[string]string{
	"extraction": userExtraction,
	"analysis":   userAnalysis,
	"validation": userValidation,
}

var templates = func() map[string]*template.Template {
	out := make(map[string]*template.Template, len(builtinTemplates))
	funcs := template.FuncMap{"truncate": func(n int, s string) string { return truncateRunes(s, n) }}
	for name, raw := range builtinTemplates {
		out[name] = template.Must(template.New(name).Funcs(funcs).Parse(raw))
	}
	return out
}()

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates[name].Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// ExtractionPrompt builds the rule extraction prompt.
func ExtractionPrompt(text string) (Prompt, error) {
	user, err := render("extraction", struct{ Text string }{text})
	return Prompt{System: systemExtraction, User: user}, err
}

// AnalysisPrompt builds the contract analysis prompt.
func AnalysisPrompt(text string) (Prompt, error) {
	user, err := render("analysis", struct{ Text string }{text})
	return Prompt{System: systemAnalysis, User: user}, err
}

// ValidationPrompt builds the match validation prompt.
func ValidationPrompt(req MatchValidationRequest) (Prompt, error) {
	ruleJSON := []byte("null")
	if req.Rule != nil {
		b, err := json.MarshalIndent(req.Rule, "", "  ")
		if err != nil {
			return Prompt{}, fmt.Errorf("encode rule: %w", err)
		}
		ruleJSON = b
	}
	user, err := render("validation", struct {
		Request  MatchValidationRequest
		RuleJSON string
	}{req, string(ruleJSON)})
	return Prompt{System: systemValidation, User: user}, err
}
