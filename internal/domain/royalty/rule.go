// Package royalty holds the domain model of the royalty pipeline: extracted
// rules with their typed calculation payloads, sales transactions and the
// calculation result types.
package royalty

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/turtacn/LicenseIQ-Royalty/pkg/errors"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/types/common"
)

// RuleType discriminates the calculation payload of a rule.
type RuleType string

const (
	RuleTypeFlat             RuleType = "flat"
	RuleTypeTiered           RuleType = "tiered"
	RuleTypeSeasonal         RuleType = "seasonal"
	RuleTypeTerritory        RuleType = "territory"
	RuleTypeMinimumGuarantee RuleType = "minimum_guarantee"
)

// IsValid reports whether t is a known rule type.
func (t RuleType) IsValid() bool {
	switch t {
	case RuleTypeFlat, RuleTypeTiered, RuleTypeSeasonal, RuleTypeTerritory, RuleTypeMinimumGuarantee:
		return true
	}
	return false
}

// IsBase reports whether rules of this type produce a base amount. Seasonal
// and territory rules only adjust; minimum guarantees only floor the total.
func (t RuleType) IsBase() bool {
	return t == RuleTypeFlat || t == RuleTypeTiered
}

// RuleStatus is the review lifecycle state of a rule.
type RuleStatus string

const (
	StatusPendingReview RuleStatus = "pending_review"
	StatusActive        RuleStatus = "active"
	StatusRejected      RuleStatus = "rejected"
)

// TimePeriod is the cadence a rule or guarantee applies to.
type TimePeriod string

const (
	PeriodAny       TimePeriod = "any"
	PeriodMonthly   TimePeriod = "monthly"
	PeriodQuarterly TimePeriod = "quarterly"
	PeriodAnnual    TimePeriod = "annual"
	PeriodSeasonal  TimePeriod = "seasonal"
)

// NormalizePeriod maps free-form period labels produced by extraction onto
// the TimePeriod enum. Unknown labels map to PeriodAny.
func NormalizePeriod(s string) TimePeriod {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month":
		return PeriodMonthly
	case "quarterly", "quarter":
		return PeriodQuarterly
	case "annual", "annually", "yearly", "year":
		return PeriodAnnual
	case "seasonal", "season":
		return PeriodSeasonal
	default:
		return PeriodAny
	}
}

// wildcards are condition values that match everything.
var wildcards = map[string]bool{"": true, "*": true, "all": true, "general": true}

// IsWildcard reports whether v matches every value of its dimension.
func IsWildcard(v string) bool {
	return wildcards[strings.ToLower(strings.TrimSpace(v))]
}

// Conditions restrict which transactions a rule applies to. Empty dimensions
// match everything.
type Conditions struct {
	ProductCategories []string         `json:"productCategories,omitempty"`
	Territories       []string         `json:"territories,omitempty"`
	SalesVolumeMin    *decimal.Decimal `json:"salesVolumeMin,omitempty"`
	SalesVolumeMax    *decimal.Decimal `json:"salesVolumeMax,omitempty"`
	TimePeriod        TimePeriod       `json:"timePeriod,omitempty"`
	EffectiveFrom     *time.Time       `json:"effectiveFrom,omitempty"`
	EffectiveTo       *time.Time       `json:"effectiveTo,omitempty"`
	Currency          string           `json:"currency,omitempty"`
}

// Normalize sorts and de-duplicates the set-valued dimensions so they have set
// semantics and a canonical order.
func (c *Conditions) Normalize() {
	c.ProductCategories = normalizeSet(c.ProductCategories)
	c.Territories = normalizeSet(c.Territories)
	c.TimePeriod = NormalizePeriod(string(c.TimePeriod))
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
}

func normalizeSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i]) < strings.ToLower(out[j]) })
	return out
}

// constrains reports whether a set dimension restricts anything.
func constrains(set []string) bool {
	for _, v := range set {
		if !IsWildcard(v) {
			return true
		}
	}
	return false
}

// MatchesSet reports whether value is admitted by set. An empty or all-wildcard
// set admits everything. Comparison is case-insensitive.
func MatchesSet(set []string, value string) bool {
	if !constrains(set) {
		return true
	}
	value = strings.ToLower(strings.TrimSpace(value))
	for _, v := range set {
		if IsWildcard(v) || strings.ToLower(v) == value {
			return true
		}
	}
	return false
}

// Specificity is the number of condition dimensions the rule constrains.
func (c Conditions) Specificity() int {
	n := 0
	if constrains(c.ProductCategories) {
		n++
	}
	if constrains(c.Territories) {
		n++
	}
	if c.SalesVolumeMin != nil || c.SalesVolumeMax != nil {
		n++
	}
	if c.EffectiveFrom != nil || c.EffectiveTo != nil {
		n++
	}
	return n
}

// VolumeGated reports whether the rule has a sales volume range.
func (c Conditions) VolumeGated() bool {
	return c.SalesVolumeMin != nil || c.SalesVolumeMax != nil
}

// InVolume reports whether v falls inside [SalesVolumeMin, SalesVolumeMax].
func (c Conditions) InVolume(v decimal.Decimal) bool {
	if c.SalesVolumeMin != nil && v.LessThan(*c.SalesVolumeMin) {
		return false
	}
	if c.SalesVolumeMax != nil && v.GreaterThan(*c.SalesVolumeMax) {
		return false
	}
	return true
}

// InWindow reports whether t falls inside the explicit effective window.
// Bounds are inclusive and compared by calendar date.
func (c Conditions) InWindow(t time.Time) bool {
	if c.EffectiveFrom != nil && t.Before(*c.EffectiveFrom) {
		return false
	}
	if c.EffectiveTo != nil && t.After(endOfDay(*c.EffectiveTo)) {
		return false
	}
	return true
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// SourceSpan records where in the contract the rule was found.
type SourceSpan struct {
	Page    int    `json:"page,omitempty"`
	Section string `json:"section,omitempty"`
	Text    string `json:"text,omitempty"`
}

// MaxSourceTextLength bounds SourceSpan.Text.
const MaxSourceTextLength = 150

// Clamp truncates Text to MaxSourceTextLength runes.
func (s *SourceSpan) Clamp() {
	r := []rune(s.Text)
	if len(r) > MaxSourceTextLength {
		s.Text = string(r[:MaxSourceTextLength-3]) + "..."
	}
}

// RoyaltyRule is one extracted contract rule.
type RoyaltyRule struct {
	ID              string      `json:"id"`
	ContractID      string      `json:"contractId"`
	RuleName        string      `json:"ruleName"`
	Description     string      `json:"description,omitempty"`
	RuleType        RuleType    `json:"ruleType"`
	Conditions      Conditions  `json:"conditions"`
	Calculation     Calculation `json:"-"`
	Priority        int         `json:"priority"`
	Confidence      float64     `json:"confidence"`
	SourceSpan      SourceSpan  `json:"sourceSpan"`
	Status          RuleStatus  `json:"status"`
	ExtractionOrder int         `json:"extractionOrder"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Rule priority bounds.
const (
	MinPriority     = 1
	MaxPriority     = 100
	DefaultPriority = 50
)

// NewRoyaltyRule creates a pending rule with a fresh id.
func NewRoyaltyRule(contractID, name string, calc Calculation) (*RoyaltyRule, error) {
	if contractID == "" {
		return nil, errors.NewValidation("contractID cannot be empty")
	}
	if calc == nil {
		return nil, errors.NewValidation("calculation cannot be nil")
	}
	now := time.Now().UTC()
	r := &RoyaltyRule{
		ID:          string(common.NewID()),
		ContractID:  contractID,
		RuleName:    name,
		RuleType:    calc.Type(),
		Calculation: calc,
		Priority:    DefaultPriority,
		Confidence:  1,
		Status:      StatusPendingReview,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.Conditions.Normalize()
	return r, nil
}

// Label returns the human label of the rule, falling back to its id.
func (r *RoyaltyRule) Label() string {
	if strings.TrimSpace(r.RuleName) != "" {
		return r.RuleName
	}
	return r.ID
}

// Validate checks the rule and its calculation. Shape problems are reported
// as *RuleShapeError.
func (r *RoyaltyRule) Validate() error {
	if r.ID == "" {
		return errors.NewValidation("rule id cannot be empty")
	}
	if r.ContractID == "" {
		return errors.NewValidation("contract id cannot be empty")
	}
	switch r.Status {
	case StatusPendingReview, StatusActive, StatusRejected:
	default:
		return errors.NewValidation("invalid status: " + string(r.Status))
	}
	if se := ValidateShape(r); se != nil {
		return se
	}
	return nil
}

// ApplyReviewThreshold forces rules below threshold into pending review.
// Rules at or above threshold keep their status.
func (r *RoyaltyRule) ApplyReviewThreshold(threshold float64) {
	if r.Confidence < threshold && r.Status == StatusActive {
		r.Status = StatusPendingReview
	}
}

// Promote moves a pending rule to active.
func (r *RoyaltyRule) Promote(now time.Time) error {
	if r.Status != StatusPendingReview {
		return errors.New(errors.ErrCodeRuleTransitionInvalid, "can only promote a pending_review rule").
			WithDetail("rule=" + r.ID + " status=" + string(r.Status))
	}
	r.Status = StatusActive
	r.UpdatedAt = now
	return nil
}

// Reject moves a pending or active rule to rejected. Rejected is terminal.
func (r *RoyaltyRule) Reject(now time.Time) error {
	if r.Status == StatusRejected {
		return errors.New(errors.ErrCodeRuleTransitionInvalid, "rule is already rejected").
			WithDetail("rule=" + r.ID)
	}
	r.Status = StatusRejected
	r.UpdatedAt = now
	return nil
}

// Fingerprint identifies rules that express the same term, used to collapse
// duplicates from extraction.
func (r *RoyaltyRule) Fingerprint() string {
	cats := make([]string, len(r.Conditions.ProductCategories))
	for i, c := range r.Conditions.ProductCategories {
		cats[i] = strings.ToLower(strings.TrimSpace(c))
	}
	sort.Strings(cats)
	key := string(r.RuleType) + "|" + strings.ToLower(strings.TrimSpace(r.RuleName)) + "|" + strings.Join(cats, ",")
	if r.Calculation != nil {
		key += "|" + r.Calculation.Key()
	}
	return key
}
