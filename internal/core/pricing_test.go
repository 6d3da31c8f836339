package core_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteflow/internal/core"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func TestComputeUnitPrice_MarkupOnLandedCost(t *testing.T) {
	item := core.CatalogItem{
		SKU:      "A",
		BaseCost: d("100"),
		Costs:    core.CostComponents{InboundFreight: d("10"), Duty: d("5")},
	}

	b, err := core.PriceItem(item, core.DefaultPricingSettings(), nil, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, b.LandedCost.Equal(d("115")), "landed cost = %s", b.LandedCost)
	assert.True(t, b.UnitPrice.Equal(d("151.80")), "unit price = %s", b.UnitPrice)
	assert.Equal(t, "151.8", b.UnitPrice.String())

	price, err := core.ComputeUnitPrice(item, core.DefaultPricingSettings(), nil)
	require.NoError(t, err)
	assert.True(t, price.Equal(b.UnitPrice))
}

func TestComputeUnitPrice_PercentPrecedence(t *testing.T) {
	settings := core.DefaultPricingSettings()
	settings.TierMarkups = map[string]decimal.Decimal{"premium": d("50")}

	item := core.CatalogItem{SKU: "A", BaseCost: d("100"), PricingTier: "premium"}

	tests := []struct {
		name     string
		item     core.CatalogItem
		override *decimal.Decimal
		want     string
	}{
		{name: "tier", item: item, want: "150"},
		{name: "item override beats tier", item: withOverride(item, "10"), want: "110"},
		{name: "call override beats item", item: withOverride(item, "10"), override: dp("20"), want: "120"},
		{name: "unknown tier falls back to default", item: core.CatalogItem{SKU: "B", BaseCost: d("100"), PricingTier: "gold"}, want: "132"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := core.ComputeUnitPrice(tt.item, settings, tt.override)
			require.NoError(t, err)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func withOverride(item core.CatalogItem, pct string) core.CatalogItem {
	item.MarkupOverridePercent = dp(pct)
	return item
}

func TestComputeUnitPrice_Margin(t *testing.T) {
	settings := core.DefaultPricingSettings()
	settings.PricingMode = core.PricingModeMargin
	settings.DefaultMarkupPercent = d("20")

	got, err := core.ComputeUnitPrice(core.CatalogItem{SKU: "A", BaseCost: d("80")}, settings, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("100")), "got %s", got)

	// 1/(1-0.3) is non-terminating: only the emitted price is rounded.
	settings.DefaultMarkupPercent = d("30")
	got, err = core.ComputeUnitPrice(core.CatalogItem{SKU: "A", BaseCost: d("10")}, settings, nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(d("14.29")), "got %s", got)
}

func TestComputeUnitPrice_InvalidConfiguration(t *testing.T) {
	margin := core.DefaultPricingSettings()
	margin.PricingMode = core.PricingModeMargin
	margin.DefaultMarkupPercent = d("100")

	negDecimals := core.DefaultPricingSettings()
	negDecimals.RoundingDecimals = -1

	unknownMode := core.DefaultPricingSettings()
	unknownMode.PricingMode = "COST_PLUS"

	tests := []struct {
		name     string
		item     core.CatalogItem
		settings core.PricingSettings
	}{
		{name: "margin 100%", item: core.CatalogItem{SKU: "A", BaseCost: d("10")}, settings: margin},
		{name: "negative decimals", item: core.CatalogItem{SKU: "A", BaseCost: d("10")}, settings: negDecimals},
		{name: "unknown mode", item: core.CatalogItem{SKU: "A", BaseCost: d("10")}, settings: unknownMode},
		{name: "negative base cost", item: core.CatalogItem{SKU: "A", BaseCost: d("-1")}, settings: core.DefaultPricingSettings()},
		{name: "negative component", item: core.CatalogItem{SKU: "A", BaseCost: d("1"), Costs: core.CostComponents{Duty: d("-0.5")}}, settings: core.DefaultPricingSettings()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.ComputeUnitPrice(tt.item, tt.settings, nil)
			assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
		})
	}
}

func TestPriceQuoteLines_AllocatesInboundCharge(t *testing.T) {
	catalog := map[string]core.CatalogItem{
		"A": {SKU: "A", Name: "Widget", BaseCost: d("100"), Weight: d("3")},
		"B": {SKU: "B", Name: "Gadget", BaseCost: d("50"), Weight: d("1"), ItemType: core.ItemTypeSourced},
	}
	settings := core.DefaultPricingSettings()
	settings.DefaultMarkupPercent = decimal.Zero

	lines, breakdowns, err := core.PriceQuoteLines([]core.QuoteLineRequest{
		{SKU: "A", Quantity: 1},
		{SKU: "B", Quantity: 2},
	}, catalog, settings, d("50"))
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// weight keys 3 and 2: A takes 30, B the remaining 20 (10 per unit).
	assert.True(t, breakdowns[0].AllocatedPerUnit.Equal(d("30")))
	assert.True(t, breakdowns[1].AllocatedPerUnit.Equal(d("10")))
	assert.True(t, lines[0].UnitPrice.Equal(d("130")))
	assert.True(t, lines[1].UnitPrice.Equal(d("60")))
	assert.Equal(t, core.ItemTypeStocked, lines[0].ItemType)
	assert.Equal(t, core.ItemTypeSourced, lines[1].ItemType)
}

func TestPriceQuoteLines_Errors(t *testing.T) {
	catalog := map[string]core.CatalogItem{"A": {SKU: "A", BaseCost: d("1")}}

	_, _, err := core.PriceQuoteLines([]core.QuoteLineRequest{{SKU: "Z", Quantity: 1}}, catalog, core.DefaultPricingSettings(), decimal.Zero)
	assert.ErrorIs(t, err, core.ErrUnknownSKU)

	_, _, err = core.PriceQuoteLines([]core.QuoteLineRequest{{SKU: "A", Quantity: 0}}, catalog, core.DefaultPricingSettings(), decimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalidLineItem)

	_, _, err = core.PriceQuoteLines([]core.QuoteLineRequest{{SKU: "A", Quantity: 1}}, catalog, core.DefaultPricingSettings(), d("-5"))
	assert.ErrorIs(t, err, core.ErrInvalidCharge)
}
