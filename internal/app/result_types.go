package app

import (
	"github.com/shopspring/decimal"

	"quoteflow/internal/core"
)

// PriceQuoteResult is returned by PriceQuote.
type PriceQuoteResult struct {
	Lines      []core.LineItem       `json:"lines"`
	Breakdowns []core.PriceBreakdown `json:"breakdowns"`
	Totals     core.Totals           `json:"totals"`
	Currency   core.Currency         `json:"currency"`
	Display    *core.Totals          `json:"display,omitempty"` // totals in Currency when it is not GHS
	Rate       *decimal.Decimal      `json:"rate,omitempty"`
}

// TotalsResult is returned by ComputeTotals.
type TotalsResult struct {
	Totals core.Totals `json:"totals"`
}

// ConvertResult is returned by ConvertAmount.
type ConvertResult struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency core.Currency   `json:"currency"`
	Month    string          `json:"month"`
}

// InvoiceResult is returned by invoice reads and draft operations.
type InvoiceResult struct {
	Invoice        *core.Invoice    `json:"invoice"`
	AllowedActions []core.Action    `json:"allowed_actions"`
	DisplayTotal   *decimal.Decimal `json:"display_total,omitempty"`
	DisplayError   string           `json:"display_error,omitempty"`
}

// InvoiceListResult is returned by ListInvoices.
type InvoiceListResult struct {
	Invoices []core.Invoice `json:"invoices"`
}

// HistoryResult is returned by GetInvoiceHistory.
type HistoryResult struct {
	Transitions []core.TransitionRecord `json:"transitions"`
	Movements   []core.StockMovement    `json:"movements"`
}

// StockResult is returned by GetStockLevels.
type StockResult struct {
	Levels []core.InventoryStock `json:"levels"`
}

// StaleQuotesResult is returned by stale quote checks.
type StaleQuotesResult struct {
	ThresholdDays int               `json:"threshold_days"`
	Quotes        []core.StaleQuote `json:"quotes"`
}

// ResolveStaleResult is returned by ResolveStaleQuotes.
type ResolveStaleResult struct {
	Results   []core.ResolveResult `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

// TaxRulesResult lists every stored tax rule, enabled or not, in id order.
type TaxRulesResult struct {
	Rules []core.TaxRule `json:"rules"`
}

// RatesResult lists the monthly exchange rates in month order.
type RatesResult struct {
	Rates []core.ExchangeRate `json:"rates"`
}

// CatalogResult lists catalog items in sku order.
type CatalogResult struct {
	Items []core.CatalogItem `json:"items"`
}
