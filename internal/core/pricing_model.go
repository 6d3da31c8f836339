package core

import (
	"github.com/shopspring/decimal"
)

// PricingMode selects how the sell price is derived from landed cost.
type PricingMode string

const (
	PricingModeMarkup PricingMode = "MARKUP"
	PricingModeMargin PricingMode = "MARGIN"
)

// AllocationMethod selects how an order-level charge is split across lines.
type AllocationMethod string

const (
	AllocateByWeight AllocationMethod = "WEIGHT"
	AllocateByValue  AllocationMethod = "VALUE"
	AllocateEqually  AllocationMethod = "EQUAL"
)

// ItemType distinguishes stocked goods from drop-shipped ones.
// SOURCED items never touch inventory_stock.
type ItemType string

const (
	ItemTypeStocked ItemType = "STOCKED"
	ItemTypeSourced ItemType = "SOURCED"
)

// CostComponents are the per-unit inbound costs added to base cost.
type CostComponents struct {
	InboundFreight decimal.Decimal `json:"inbound_freight"`
	Duty           decimal.Decimal `json:"duty"`
	Insurance      decimal.Decimal `json:"insurance"`
	Packaging      decimal.Decimal `json:"packaging"`
	Other          decimal.Decimal `json:"other"`
}

// Sum returns the total of all components.
func (c CostComponents) Sum() decimal.Decimal {
	return c.InboundFreight.Add(c.Duty).Add(c.Insurance).Add(c.Packaging).Add(c.Other)
}

func (c CostComponents) hasNegative() bool {
	for _, v := range []decimal.Decimal{c.InboundFreight, c.Duty, c.Insurance, c.Packaging, c.Other} {
		if v.IsNegative() {
			return true
		}
	}
	return false
}

// CatalogItem is a sellable catalog record. It is read-only to the engine.
type CatalogItem struct {
	SKU                   string           `json:"sku"`
	Name                  string           `json:"name"`
	BaseCost              decimal.Decimal  `json:"base_cost"`
	Weight                decimal.Decimal  `json:"weight"`
	Costs                 CostComponents   `json:"cost_components"`
	MarkupOverridePercent *decimal.Decimal `json:"markup_override_percent,omitempty"`
	PricingTier           string           `json:"pricing_tier"`
	ItemType              ItemType         `json:"item_type"`
}

// PricingSettings is the global pricing configuration. It is passed into the
// calculator explicitly; nothing in this package reads it from shared state.
type PricingSettings struct {
	DefaultMarkupPercent decimal.Decimal  `json:"default_markup_percent"`
	PricingMode          PricingMode      `json:"pricing_mode"`
	AllocationMethod     AllocationMethod `json:"allocation_method"`
	RoundingDecimals     int32            `json:"rounding_decimals"`
	DefaultCurrency      Currency         `json:"default_currency"`
	TaxDefaultRate       decimal.Decimal  `json:"tax_default_rate"`

	// TierMarkups maps a catalog pricing tier to its markup (or margin) percent.
	// It applies when the item has no override of its own.
	TierMarkups map[string]decimal.Decimal `json:"tier_markups,omitempty"`
}

// DefaultPricingSettings returns the settings used when none are stored.
func DefaultPricingSettings() PricingSettings {
	return PricingSettings{
		DefaultMarkupPercent: decimal.NewFromInt(32),
		PricingMode:          PricingModeMarkup,
		AllocationMethod:     AllocateByWeight,
		RoundingDecimals:     CurrencyDecimals,
		DefaultCurrency:      CurrencyGHS,
		TaxDefaultRate:       decimal.NewFromInt(15),
	}
}

// PriceBreakdown is the full result of pricing one catalog item.
type PriceBreakdown struct {
	SKU              string          `json:"sku"`
	BaseCost         decimal.Decimal `json:"base_cost"`
	ComponentCost    decimal.Decimal `json:"component_cost"`
	AllocatedPerUnit decimal.Decimal `json:"allocated_per_unit"`
	LandedCost       decimal.Decimal `json:"landed_cost"`
	Mode             PricingMode     `json:"mode"`
	Percent          decimal.Decimal `json:"percent"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

// QuoteLineRequest asks for a catalog SKU at a quantity when assembling a quote.
type QuoteLineRequest struct {
	SKU         string           `json:"sku"`
	Quantity    int64            `json:"quantity"`
	Override    *decimal.Decimal `json:"markup_override_percent,omitempty"`
	IsBackorder bool             `json:"is_backorder,omitempty"`
}
