package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LineItem is a priced line on a quote or invoice.
type LineItem struct {
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Quantity    int64           `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	IsBackorder bool            `json:"is_backorder"`
	ItemType    ItemType        `json:"item_type"`
}

// Extended returns unit price × quantity.
func (l LineItem) Extended() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// OrderCharges are absolute amounts applied once per order.
type OrderCharges struct {
	Shipping decimal.Decimal `json:"shipping"`
	Handling decimal.Decimal `json:"handling"`
	Discount decimal.Decimal `json:"discount"`
}

// Totals is the full breakdown of a cart. Once frozen onto an invoice it is
// never recomputed.
type Totals struct {
	Subtotal            decimal.Decimal            `json:"subtotal"`
	Shipping            decimal.Decimal            `json:"shipping"`
	Handling            decimal.Decimal            `json:"handling"`
	Discount            decimal.Decimal            `json:"discount"`
	SubtotalWithCharges decimal.Decimal            `json:"subtotal_with_charges"`
	SubtotalTaxes       map[string]decimal.Decimal `json:"subtotal_taxes"`
	SubtotalTaxTotal    decimal.Decimal            `json:"subtotal_tax_total"`
	LevyTotal           decimal.Decimal            `json:"levy_total"`
	LevyTaxes           map[string]decimal.Decimal `json:"levy_taxes"`
	LevyTaxTotal        decimal.Decimal            `json:"levy_tax_total"`
	GrandTotal          decimal.Decimal            `json:"grand_total"`
}

func zeroTotals() Totals {
	return Totals{
		SubtotalTaxes: map[string]decimal.Decimal{},
		LevyTaxes:     map[string]decimal.Decimal{},
	}
}

// ComputeTotals folds priced lines, order charges and tax rules into Totals.
//
// SUBTOTAL-tier rules are all evaluated on subtotalWithCharges before any
// LEVY_TOTAL-tier rule is evaluated on the resulting levy total. Each emitted
// tax amount is rounded to CurrencyDecimals and the running totals are sums of
// the emitted amounts. Disabled rules are skipped and leave no key.
func ComputeTotals(lines []LineItem, charges OrderCharges, rules []TaxRule) (Totals, error) {
	if err := validateCharges(charges); err != nil {
		return Totals{}, err
	}
	for _, r := range rules {
		if r.RatePercent.IsNegative() {
			return Totals{}, fmt.Errorf("%w: tax %s has negative rate %s", ErrInvalidConfiguration, r.ID, r.RatePercent)
		}
		if r.Enabled && r.Tier != TaxTierSubtotal && r.Tier != TaxTierLevyTotal {
			return Totals{}, fmt.Errorf("%w: tax %s has unknown tier %q", ErrInvalidConfiguration, r.ID, r.Tier)
		}
	}
	if len(lines) == 0 {
		return zeroTotals(), nil
	}

	t := zeroTotals()
	for i, l := range lines {
		if l.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: line %d (%s): quantity must be > 0, got %d", ErrInvalidLineItem, i+1, l.SKU, l.Quantity)
		}
		if l.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: line %d (%s): negative unit price %s", ErrInvalidLineItem, i+1, l.SKU, l.UnitPrice)
		}
		t.Subtotal = t.Subtotal.Add(l.Extended())
	}

	t.Shipping = charges.Shipping
	t.Handling = charges.Handling
	t.Discount = charges.Discount
	gross := t.Subtotal.Add(charges.Shipping).Add(charges.Handling)
	if charges.Discount.GreaterThan(gross) {
		return Totals{}, fmt.Errorf("%w: discount %s exceeds subtotal with charges %s", ErrInvalidCharge, charges.Discount, gross)
	}
	t.SubtotalWithCharges = gross.Sub(charges.Discount)

	// Pass 1: levies on the pre-levy subtotal.
	for _, r := range rules {
		if !r.Enabled || r.Tier != TaxTierSubtotal {
			continue
		}
		amt := roundMoney(percentOf(t.SubtotalWithCharges, r.RatePercent), CurrencyDecimals)
		t.SubtotalTaxes[r.ID] = amt
		t.SubtotalTaxTotal = t.SubtotalTaxTotal.Add(amt)
	}
	t.LevyTotal = t.SubtotalWithCharges.Add(t.SubtotalTaxTotal)

	// Pass 2: taxes on the levy total from the end of pass 1.
	for _, r := range rules {
		if !r.Enabled || r.Tier != TaxTierLevyTotal {
			continue
		}
		amt := roundMoney(percentOf(t.LevyTotal, r.RatePercent), CurrencyDecimals)
		t.LevyTaxes[r.ID] = amt
		t.LevyTaxTotal = t.LevyTaxTotal.Add(amt)
	}
	t.GrandTotal = t.LevyTotal.Add(t.LevyTaxTotal)
	return t, nil
}

func validateCharges(c OrderCharges) error {
	if c.Shipping.IsNegative() {
		return fmt.Errorf("%w: shipping cannot be negative (%s)", ErrInvalidCharge, c.Shipping)
	}
	if c.Handling.IsNegative() {
		return fmt.Errorf("%w: handling cannot be negative (%s)", ErrInvalidCharge, c.Handling)
	}
	if c.Discount.IsNegative() {
		return fmt.Errorf("%w: discount cannot be negative (%s)", ErrInvalidCharge, c.Discount)
	}
	return nil
}
