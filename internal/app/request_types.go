package app

import (
	"github.com/shopspring/decimal"

	"quoteflow/internal/core"
)

// PriceQuoteRequest prices catalog SKUs with the stored pricing settings and
// previews the cart totals with the live tax rules.
type PriceQuoteRequest struct {
	Lines         []core.QuoteLineRequest `json:"lines" jsonschema_description:"Catalog SKUs and quantities to price"`
	InboundCharge decimal.Decimal         `json:"inbound_charge" jsonschema_description:"Order-level inbound charge spread over the lines with the configured allocation method"`
	Charges       core.OrderCharges       `json:"charges" jsonschema_description:"Shipping, handling and discount applied once per order"`
	Currency      string                  `json:"currency,omitempty" jsonschema_description:"Display currency, GHS (default) or USD"`
}

// TotalsRequest folds already priced lines into totals. Nil TaxRules means
// the live tax configuration.
type TotalsRequest struct {
	Lines    []core.LineItem   `json:"lines"`
	Charges  core.OrderCharges `json:"charges"`
	TaxRules []core.TaxRule    `json:"tax_rules,omitempty" jsonschema_description:"Explicit rule set; omit to use the stored rules"`
}

// ConvertRequest converts a GHS amount for display.
type ConvertRequest struct {
	Amount   decimal.Decimal `json:"amount" jsonschema_description:"Amount in GHS"`
	Currency string          `json:"currency" jsonschema_description:"Target currency, GHS or USD"`
	Month    string          `json:"month,omitempty" jsonschema_description:"Rate month as YYYY-MM; defaults to the current month"`
}

// DraftRequest creates or replaces a DRAFT invoice.
type DraftRequest struct {
	CustomerRef  string            `json:"customer_ref" jsonschema_description:"Customer reference; the name is looked up when customer_name is empty"`
	CustomerName string            `json:"customer_name,omitempty"`
	Currency     string            `json:"currency,omitempty" jsonschema_description:"Invoice currency, GHS (default) or USD"`
	Lines        []core.LineItem   `json:"lines"`
	Charges      core.OrderCharges `json:"charges"`
	Notes        string            `json:"notes,omitempty"`
	CreatedBy    string            `json:"created_by,omitempty"`
}

// TransitionRequest applies an action to an invoice identified by id or number.
type TransitionRequest struct {
	Ref            string `json:"ref" jsonschema_description:"Invoice UUID or invoice number such as INV-2025-00042"`
	Action         string `json:"action" jsonschema:"enum=submit,enum=approve,enum=reject,enum=send,enum=accept,enum=customer_reject,enum=revise,enum=mark_paid"`
	Actor          string `json:"actor,omitempty"`
	ExpectedStatus string `json:"expected_status,omitempty" jsonschema_description:"Fails with a stale transition when the invoice is no longer in this status"`
	SignatureID    string `json:"signature_id,omitempty" jsonschema_description:"Controller signature bound on approve"`
	Reason         string `json:"reason,omitempty" jsonschema_description:"Stored on reject and customer_reject"`
}

// ResolveStaleRequest resolves stale quotes in bulk.
type ResolveStaleRequest struct {
	Refs    []string `json:"refs" jsonschema_description:"Invoice UUIDs or numbers"`
	Outcome string   `json:"outcome" jsonschema:"enum=accept,enum=customer_reject"`
	Actor   string   `json:"actor,omitempty"`
}

// ExchangeRateRequest sets one month's USD→GHS rate.
type ExchangeRateRequest struct {
	Month    string          `json:"month" jsonschema_description:"Rate month as YYYY-MM"`
	USDToGHS decimal.Decimal `json:"usd_to_ghs" jsonschema_description:"GHS per USD; must be positive"`
}

// StockAdjustRequest records a stock count for a SKU.
type StockAdjustRequest struct {
	SKU              string `json:"sku"`
	Stock            int64  `json:"stock" jsonschema_description:"Counted on-hand quantity; may be negative while backorders are outstanding"`
	RestockThreshold int64  `json:"restock_threshold" jsonschema_description:"Stock at or below this level is reported as low"`
}
