package app

import (
	"context"

	"github.com/invopop/jsonschema"

	"quoteflow/internal/core"
)

// ApplicationService is the single interface all UI adapters (CLI, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
type ApplicationService interface {
	// PriceQuote prices catalog SKUs and previews the cart totals.
	PriceQuote(ctx context.Context, req PriceQuoteRequest) (*PriceQuoteResult, error)

	// ComputeTotals runs the tax cascade over already priced lines.
	ComputeTotals(ctx context.Context, req TotalsRequest) (*TotalsResult, error)

	// ConvertAmount converts a GHS amount to the requested display currency.
	ConvertAmount(ctx context.Context, req ConvertRequest) (*ConvertResult, error)

	// CreateDraft creates a new DRAFT invoice.
	CreateDraft(ctx context.Context, req DraftRequest) (*InvoiceResult, error)

	// UpdateDraft replaces the editable part of a DRAFT invoice. ref may be a
	// UUID or an invoice number.
	UpdateDraft(ctx context.Context, ref string, req DraftRequest) (*InvoiceResult, error)

	// GetInvoice returns a single invoice with its total in display currency.
	// An empty display currency means the invoice's own currency.
	GetInvoice(ctx context.Context, ref, display string) (*InvoiceResult, error)

	// ListInvoices returns invoices, optionally filtered by status.
	ListInvoices(ctx context.Context, status *string) (*InvoiceListResult, error)

	// GetInvoiceHistory returns the transition audit trail and stock movements.
	GetInvoiceHistory(ctx context.Context, ref string) (*HistoryResult, error)

	// TransitionInvoice applies an approval workflow action. submit freezes the
	// stored tax rules and the current month's rate; approve binds SignatureID.
	TransitionInvoice(ctx context.Context, req TransitionRequest) (*core.TransitionResult, error)

	// GetStockLevels returns stock for the given SKUs, or all SKUs when empty.
	GetStockLevels(ctx context.Context, skus ...string) (*StockResult, error)

	// CheckStaleQuotes returns stale quotes the first time it is called in a
	// user session and an empty result afterwards.
	CheckStaleQuotes(ctx context.Context, userID, sessionID string) (*StaleQuotesResult, error)

	// ListStaleQuotes returns every stale quote regardless of session.
	ListStaleQuotes(ctx context.Context) (*StaleQuotesResult, error)

	// EndSession forgets a user session's stale check.
	EndSession(userID, sessionID string)

	// ResolveStaleQuotes accepts or rejects stale quotes in bulk.
	ResolveStaleQuotes(ctx context.Context, req ResolveStaleRequest) (*ResolveStaleResult, error)

	// GetPricingSettings returns the stored pricing settings.
	GetPricingSettings(ctx context.Context) (*core.PricingSettings, error)

	// SavePricingSettings validates and stores the pricing settings.
	SavePricingSettings(ctx context.Context, settings core.PricingSettings) (*core.PricingSettings, error)

	// ListTaxRules returns every stored tax rule.
	ListTaxRules(ctx context.Context) (*TaxRulesResult, error)

	// SaveTaxRule creates or replaces a tax rule. Invoices already submitted
	// keep the snapshot they froze.
	SaveTaxRule(ctx context.Context, rule core.TaxRule) (*TaxRulesResult, error)

	// ListExchangeRates returns the monthly USD→GHS table.
	ListExchangeRates(ctx context.Context) (*RatesResult, error)

	// SetExchangeRate stores one month's rate.
	SetExchangeRate(ctx context.Context, req ExchangeRateRequest) (*RatesResult, error)

	// ListCatalogItems returns active catalog items, all of them when skus is empty.
	ListCatalogItems(ctx context.Context, skus ...string) (*CatalogResult, error)

	// SaveCatalogItem creates or replaces a catalog item.
	SaveCatalogItem(ctx context.Context, item core.CatalogItem) (*CatalogResult, error)

	GetCustomer(ctx context.Context, ref string) (*core.Customer, error)
	SaveCustomer(ctx context.Context, c core.Customer) (*core.Customer, error)

	// GetSignature returns a controller signature usable on approve.
	GetSignature(ctx context.Context, id string) (*core.Signature, error)

	// SaveSignature registers or replaces a controller signature.
	SaveSignature(ctx context.Context, sig core.Signature) (*core.Signature, error)

	// AdjustStock records a stock count outside the approval workflow.
	AdjustStock(ctx context.Context, req StockAdjustRequest) (*StockResult, error)
}

// PayloadSchema returns the JSON Schema of a request payload accepted by the
// adapters, or nil when name is unknown.
func PayloadSchema(name string) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	switch name {
	case "price":
		return reflector.Reflect(&PriceQuoteRequest{})
	case "totals":
		return reflector.Reflect(&TotalsRequest{})
	case "convert":
		return reflector.Reflect(&ConvertRequest{})
	case "draft":
		return reflector.Reflect(&DraftRequest{})
	case "transition":
		return reflector.Reflect(&TransitionRequest{})
	case "resolve":
		return reflector.Reflect(&ResolveStaleRequest{})
	case "settings":
		return reflector.Reflect(&core.PricingSettings{})
	case "tax_rule":
		return reflector.Reflect(&core.TaxRule{})
	case "rate":
		return reflector.Reflect(&ExchangeRateRequest{})
	case "catalog_item":
		return reflector.Reflect(&core.CatalogItem{})
	case "customer":
		return reflector.Reflect(&core.Customer{})
	case "signature":
		return reflector.Reflect(&core.Signature{})
	case "stock":
		return reflector.Reflect(&StockAdjustRequest{})
	}
	return nil
}

// PayloadSchemaNames lists the names PayloadSchema accepts.
func PayloadSchemaNames() []string {
	return []string{
		"catalog_item", "convert", "customer", "draft", "price", "rate",
		"resolve", "settings", "signature", "stock", "tax_rule", "totals", "transition",
	}
}
