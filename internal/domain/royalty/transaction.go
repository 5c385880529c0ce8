package royalty

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Fallback dimension values for transactions that omit them.
const (
	DefaultCategory  = "general"
	DefaultTerritory = "primary"
)

// SalesTransaction is one normalized sales line. It is passed by value and
// never modified by the engine.
type SalesTransaction struct {
	ID              string          `json:"id"`
	ProductCode     string          `json:"productCode,omitempty"`
	ProductName     string          `json:"productName"`
	Category        string          `json:"category"`
	Territory       string          `json:"territory"`
	TransactionDate time.Time       `json:"transactionDate"`
	Quantity        decimal.Decimal `json:"quantity"`
	GrossAmount     decimal.Decimal `json:"grossAmount"`
	Currency        string          `json:"currency,omitempty"`
}

// CategoryOrDefault returns the category, or DefaultCategory when blank.
func (t SalesTransaction) CategoryOrDefault() string {
	if strings.TrimSpace(t.Category) == "" {
		return DefaultCategory
	}
	return t.Category
}

// TerritoryOrDefault returns the territory, or DefaultTerritory when blank.
func (t SalesTransaction) TerritoryOrDefault() string {
	if strings.TrimSpace(t.Territory) == "" {
		return DefaultTerritory
	}
	return t.Territory
}

// HasCategory reports whether the transaction names a category.
func (t SalesTransaction) HasCategory() bool { return strings.TrimSpace(t.Category) != "" }

// HasTerritory reports whether the transaction names a territory.
func (t SalesTransaction) HasTerritory() bool { return strings.TrimSpace(t.Territory) != "" }
