package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/turtacn/LicenseIQ-Royalty/internal/application/extraction"
	"github.com/turtacn/LicenseIQ-Royalty/internal/application/preview"
	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
	"github.com/turtacn/LicenseIQ-Royalty/internal/infrastructure/database/postgres"
	"github.com/turtacn/LicenseIQ-Royalty/internal/intelligence/provider"
	"github.com/turtacn/LicenseIQ-Royalty/pkg/client"
)

var hundred = decimal.NewFromInt(100)

type tableProvider interface {
	TableHeaders() []string
	TableRows() [][]string
}

// table is a precomputed tableProvider.
type table struct {
	headers []string
	rows    [][]string
}

func (t table) TableHeaders() []string { return t.headers }
func (t table) TableRows() [][]string  { return t.rows }

// asTable returns a table rendering for the result types the commands print.
func asTable(data interface{}) (tableProvider, bool) {
	switch v := data.(type) {
	case tableProvider:
		return v, true
	case *royalty.CalculationResult:
		return calculationTable(v), true
	case *preview.Result:
		return previewTable(v), true
	case *client.RuleList:
		return rulesTable(v.Rules, v.Counts), true
	case *royalty.RoyaltyRule:
		return rulesTable([]*royalty.RoyaltyRule{v}, nil), true
	case *extraction.Result:
		return extractionTable(v), true
	case []provider.MatchValidation:
		return validationTable(v), true
	case postgres.MigrationState:
		return table{
			headers: []string{"VERSION", "DIRTY"},
			rows:    [][]string{{strconv.FormatUint(uint64(v.Version), 10), strconv.FormatBool(v.Dirty)}},
		}, true
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		t := table{headers: []string{"KEY", "VALUE"}}
		for _, k := range keys {
			t.rows = append(t.rows, []string{k, v[k]})
		}
		return t, true
	}
	return nil, false
}

func calculationTable(res *royalty.CalculationResult) table {
	t := table{headers: []string{"TRANSACTION", "PRODUCT", "CATEGORY", "QTY", "RULE", "TIER", "ROYALTY"}}
	for _, li := range res.LineItems {
		rule := "-"
		if li.RuleApplied != nil {
			rule = li.RuleApplied.Name
		} else if li.UnmatchedReason != "" {
			rule = "(" + li.UnmatchedReason + ")"
		}
		t.rows = append(t.rows, []string{
			li.TransactionRef, li.ProductName, li.Category, li.Quantity.String(),
			rule, li.Tier, li.CalculatedRoyalty.StringFixed(2),
		})
	}
	t.rows = append(t.rows, []string{"TOTAL", "", "", "", "", "", res.TotalRoyalty.StringFixed(2)})
	if res.MinimumGuarantee != nil {
		t.rows = append(t.rows, []string{"MINIMUM", "", "", "", "", "", res.MinimumGuarantee.StringFixed(2)})
	}
	final := res.FinalRoyalty.StringFixed(2)
	if !res.Complete {
		final += " (incomplete)"
	}
	t.rows = append(t.rows, []string{"FINAL", "", "", "", "", "", final})
	return t
}

func previewTable(res *preview.Result) table {
	t := table{headers: []string{"CATEGORY", "TRANSACTION", "PRODUCT", "RULE", "FORMULA"}}
	for _, s := range res.Samples {
		rule := s.RuleName
		if !s.Matched {
			rule = "(no rule)"
		}
		t.rows = append(t.rows, []string{s.Category, s.TransactionRef, s.ProductName, rule, s.FormulaType})
	}
	t.rows = append(t.rows, []string{
		"UNMATCHED", "", "", strconv.Itoa(res.UnmatchedCount),
		res.UnmatchedRatio.Mul(hundred).StringFixed(1) + "%",
	})
	return t
}

func rulesTable(rules []*royalty.RoyaltyRule, counts map[royalty.RuleStatus]int) table {
	t := table{headers: []string{"ID", "NAME", "TYPE", "STATUS", "PRIORITY", "CONFIDENCE", "CATEGORIES"}}
	for _, r := range rules {
		t.rows = append(t.rows, []string{
			r.ID, r.RuleName, string(r.RuleType), string(r.Status), strconv.Itoa(r.Priority),
			strconv.FormatFloat(r.Confidence, 'f', 2, 64),
			strings.Join(r.Conditions.ProductCategories, ","),
		})
	}
	if len(counts) > 0 {
		t.rows = append(t.rows, []string{"", fmt.Sprintf("active=%d pending_review=%d rejected=%d",
			counts[royalty.StatusActive], counts[royalty.StatusPendingReview], counts[royalty.StatusRejected])})
	}
	return t
}

func extractionTable(res *extraction.Result) table {
	t := table{
		headers: []string{"FIELD", "VALUE"},
		rows: [][]string{
			{"contract", res.ContractID},
			{"provider", res.Provider},
			{"cached", strconv.FormatBool(res.Cached)},
			{"filtered chars", strconv.Itoa(res.FilteredSize)},
			{"currency", res.Currency},
		},
	}
	if res.Stored != nil {
		t.rows = append(t.rows,
			[]string{"stored", strconv.Itoa(res.Stored.Stored)},
			[]string{"active", strconv.Itoa(res.Stored.Active)},
			[]string{"pending review", strconv.Itoa(res.Stored.PendingReview)},
			[]string{"rule errors", strconv.Itoa(len(res.Stored.RuleErrors))},
		)
	}
	t.rows = append(t.rows, []string{"parse errors", strconv.Itoa(len(res.ParseErrors))})
	if res.ArchiveKey != "" {
		t.rows = append(t.rows, []string{"archive", res.ArchiveKey})
	}
	return t
}

func validationTable(vs []provider.MatchValidation) table {
	t := table{headers: []string{"TRANSACTION", "VALID", "CONFIDENCE", "REASONING"}}
	for _, v := range vs {
		t.rows = append(t.rows, []string{
			v.TransactionRef, strconv.FormatBool(v.IsValid),
			strconv.FormatFloat(v.Confidence, 'f', 2, 64), v.Reasoning,
		})
	}
	return t
}
