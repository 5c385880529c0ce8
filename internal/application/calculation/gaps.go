package calculation

import (
	"fmt"
	"strings"

	"github.com/turtacn/LicenseIQ-Royalty/internal/domain/royalty"
)

// collectGaps groups unmatched line items by category and territory in
// first-seen order.
func collectGaps(items []royalty.LineItem) []royalty.RuleGap {
	gaps := []royalty.RuleGap{}
	index := make(map[string]int)
	for _, it := range items {
		if it.Matched {
			continue
		}
		key := strings.ToLower(it.Category) + "\x00" + strings.ToLower(it.Territory)
		i, ok := index[key]
		if !ok {
			i = len(gaps)
			index[key] = i
			gaps = append(gaps, royalty.RuleGap{
				Category:  it.Category,
				Territory: it.Territory,
				Reason:    it.UnmatchedReason,
			})
		}
		gaps[i].TransactionRefs = append(gaps[i].TransactionRefs, it.TransactionRef)
	}
	return gaps
}

// inputWarnings flags values that are calculated but look wrong.
func inputWarnings(tx royalty.SalesTransaction, currency string) []royalty.InputWarning {
	var out []royalty.InputWarning
	if tx.Quantity.IsNegative() {
		out = append(out, royalty.InputWarning{
			TransactionRef: tx.ID,
			Message:        fmt.Sprintf("negative quantity %s", tx.Quantity.String()),
		})
	}
	if tx.GrossAmount.IsNegative() {
		out = append(out, royalty.InputWarning{
			TransactionRef: tx.ID,
			Message:        fmt.Sprintf("negative gross amount %s", tx.GrossAmount.StringFixed(2)),
		})
	}
	if currency != "" && tx.Currency != "" && !strings.EqualFold(currency, tx.Currency) {
		out = append(out, royalty.InputWarning{
			TransactionRef: tx.ID,
			Message:        fmt.Sprintf("currency %s differs from contract currency %s", tx.Currency, currency),
		})
	}
	return out
}
