package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ComputeUnitPrice returns the sellable unit price of item under settings.
// override, when non-nil, takes precedence over every other percent source.
func ComputeUnitPrice(item CatalogItem, settings PricingSettings, override *decimal.Decimal) (decimal.Decimal, error) {
	b, err := PriceItem(item, settings, override, decimal.Zero)
	if err != nil {
		return decimal.Zero, err
	}
	return b.UnitPrice, nil
}

// PriceItem prices one catalog item and returns every intermediate value.
// allocatedPerUnit is the item's share of an order-level inbound charge, per unit.
//
// Landed cost is kept at full precision; only the unit price is rounded.
func PriceItem(item CatalogItem, settings PricingSettings, override *decimal.Decimal, allocatedPerUnit decimal.Decimal) (*PriceBreakdown, error) {
	if settings.RoundingDecimals < 0 {
		return nil, fmt.Errorf("%w: rounding decimals must be >= 0, got %d", ErrInvalidConfiguration, settings.RoundingDecimals)
	}
	if item.BaseCost.IsNegative() {
		return nil, fmt.Errorf("%w: sku %s has negative base cost %s", ErrInvalidConfiguration, item.SKU, item.BaseCost)
	}
	if item.Costs.hasNegative() {
		return nil, fmt.Errorf("%w: sku %s has a negative cost component", ErrInvalidConfiguration, item.SKU)
	}
	if allocatedPerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: sku %s has negative allocated charge %s", ErrInvalidCharge, item.SKU, allocatedPerUnit)
	}

	components := item.Costs.Sum()
	landed := item.BaseCost.Add(components).Add(allocatedPerUnit)
	pct := selectPercent(item, settings, override)
	if pct.IsNegative() {
		return nil, fmt.Errorf("%w: sku %s resolves to negative percent %s", ErrInvalidConfiguration, item.SKU, pct)
	}

	mode := settings.PricingMode
	if mode == "" {
		mode = PricingModeMarkup
	}

	var price decimal.Decimal
	switch mode {
	case PricingModeMargin:
		if pct.GreaterThanOrEqual(hundred) {
			return nil, fmt.Errorf("%w: margin must be below 100%%, got %s%% for sku %s", ErrInvalidConfiguration, pct, item.SKU)
		}
		price = landed.Div(decimal.NewFromInt(1).Sub(pct.Div(hundred)))
	case PricingModeMarkup:
		price = landed.Add(percentOf(landed, pct))
	default:
		return nil, fmt.Errorf("%w: unknown pricing mode %q", ErrInvalidConfiguration, mode)
	}

	return &PriceBreakdown{
		SKU:              item.SKU,
		BaseCost:         item.BaseCost,
		ComponentCost:    components,
		AllocatedPerUnit: allocatedPerUnit,
		LandedCost:       landed,
		Mode:             mode,
		Percent:          pct,
		UnitPrice:        roundMoney(price, settings.RoundingDecimals),
	}, nil
}

// selectPercent resolves the markup/margin percent for an item:
// explicit override, then the item's own override, then its tier, then the default.
func selectPercent(item CatalogItem, settings PricingSettings, override *decimal.Decimal) decimal.Decimal {
	if override != nil {
		return *override
	}
	if item.MarkupOverridePercent != nil {
		return *item.MarkupOverridePercent
	}
	if item.PricingTier != "" {
		if pct, ok := settings.TierMarkups[item.PricingTier]; ok {
			return pct
		}
	}
	return settings.DefaultMarkupPercent
}

// PriceQuoteLines prices quote requests against a catalog snapshot. A non-zero
// inboundCharge is spread across the lines with settings.AllocationMethod and
// folded into each line's landed cost as a per-unit share.
func PriceQuoteLines(reqs []QuoteLineRequest, catalog map[string]CatalogItem, settings PricingSettings, inboundCharge decimal.Decimal) ([]LineItem, []PriceBreakdown, error) {
	items := make([]CatalogItem, len(reqs))
	alloc := make([]AllocationInput, len(reqs))
	for i, r := range reqs {
		if r.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: line %d: quantity must be > 0, got %d", ErrInvalidLineItem, i+1, r.Quantity)
		}
		item, ok := catalog[r.SKU]
		if !ok {
			return nil, nil, fmt.Errorf("%w: line %d: %s", ErrUnknownSKU, i+1, r.SKU)
		}
		items[i] = item
		alloc[i] = AllocationInput{SKU: item.SKU, Quantity: r.Quantity, UnitWeight: item.Weight, BaseCost: item.BaseCost}
	}

	shares := make([]decimal.Decimal, len(reqs))
	if !inboundCharge.IsZero() {
		allocations, err := AllocateCharge(alloc, inboundCharge, settings.AllocationMethod, CurrencyDecimals)
		if err != nil {
			return nil, nil, err
		}
		for i, a := range allocations {
			shares[i] = a.Amount
		}
	}

	lines := make([]LineItem, len(reqs))
	breakdowns := make([]PriceBreakdown, len(reqs))
	for i, r := range reqs {
		perUnit := shares[i].Div(decimal.NewFromInt(r.Quantity))
		b, err := PriceItem(items[i], settings, r.Override, perUnit)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		itemType := items[i].ItemType
		if itemType == "" {
			itemType = ItemTypeStocked
		}
		breakdowns[i] = *b
		lines[i] = LineItem{
			SKU:         items[i].SKU,
			Name:        items[i].Name,
			Quantity:    r.Quantity,
			UnitPrice:   b.UnitPrice,
			IsBackorder: r.IsBackorder,
			ItemType:    itemType,
		}
	}
	return lines, breakdowns, nil
}
