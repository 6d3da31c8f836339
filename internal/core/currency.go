package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Currency is a display/transaction currency. Amounts are stored in GHS.
type Currency string

const (
	CurrencyGHS Currency = "GHS"
	CurrencyUSD Currency = "USD"
)

// ParseCurrency normalizes a currency code.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case CurrencyGHS, CurrencyUSD:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unsupported currency %q", ErrInvalidConfiguration, s)
	}
}

// RateMonthLayout is the key format of the monthly rate table.
const RateMonthLayout = "2006-01"

// ParseRateMonth parses a YYYY-MM rate key.
func ParseRateMonth(month string) (time.Time, error) {
	t, err := time.Parse(RateMonthLayout, month)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: rate month must be YYYY-MM, got %q", ErrInvalidConfiguration, month)
	}
	return t, nil
}

// ExchangeRate is one month's USD→GHS rate.
type ExchangeRate struct {
	Month    string          `json:"month"` // YYYY-MM
	USDToGHS decimal.Decimal `json:"usd_to_ghs"`
}

// RateTable maps YYYY-MM to GHS per USD.
type RateTable map[string]decimal.Decimal

// NewRateTable indexes rates by month.
func NewRateTable(rates []ExchangeRate) RateTable {
	t := make(RateTable, len(rates))
	for _, r := range rates {
		t[r.Month] = r.USDToGHS
	}
	return t
}

// RateFor returns the rate for the month containing asOf. A missing or
// non-positive rate is ErrRateUnavailable; no fallback is ever substituted.
func (t RateTable) RateFor(asOf time.Time) (decimal.Decimal, error) {
	month := asOf.Format(RateMonthLayout)
	rate, ok := t[month]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w (%s)", ErrRateUnavailable, month)
	}
	return rate, nil
}

// ConvertForDisplay converts a GHS amount into target using the rate for the
// month of asOf. Callers pass their clock's time; a zero asOf is rejected for USD.
func ConvertForDisplay(amountGHS decimal.Decimal, target Currency, rates RateTable, asOf time.Time) (decimal.Decimal, error) {
	switch target {
	case CurrencyGHS:
		return roundMoney(amountGHS, CurrencyDecimals), nil
	case CurrencyUSD:
		if asOf.IsZero() {
			return decimal.Zero, fmt.Errorf("%w: conversion month is required", ErrInvalidConfiguration)
		}
		rate, err := rates.RateFor(asOf)
		if err != nil {
			return decimal.Zero, err
		}
		return ConvertAtRate(amountGHS, rate)
	default:
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %q", ErrInvalidConfiguration, target)
	}
}

// ConvertAtRate converts GHS to USD at an explicit GHS-per-USD rate.
func ConvertAtRate(amountGHS, usdToGHS decimal.Decimal) (decimal.Decimal, error) {
	if !usdToGHS.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate must be > 0, got %s", ErrRateUnavailable, usdToGHS)
	}
	return roundMoney(amountGHS.Div(usdToGHS), CurrencyDecimals), nil
}

// ConvertToBase converts a USD amount back to GHS at the given rate.
func ConvertToBase(amountUSD, usdToGHS decimal.Decimal) (decimal.Decimal, error) {
	if !usdToGHS.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate must be > 0, got %s", ErrRateUnavailable, usdToGHS)
	}
	return roundMoney(amountUSD.Mul(usdToGHS), CurrencyDecimals), nil
}

// InvoiceDisplayRate returns the rate a persisted invoice must be displayed at:
// the rate captured at creation, else the rate of its creation month. Today's
// rate is never used for a historical document.
func InvoiceDisplayRate(inv *Invoice, rates RateTable) (decimal.Decimal, error) {
	if inv.ExchangeRateAtCreation != nil && inv.ExchangeRateAtCreation.IsPositive() {
		return *inv.ExchangeRateAtCreation, nil
	}
	return rates.RateFor(inv.CreatedAt)
}

// DisplayInvoiceTotal renders a persisted invoice's grand total in target.
func DisplayInvoiceTotal(inv *Invoice, target Currency, rates RateTable) (decimal.Decimal, error) {
	if target == CurrencyGHS {
		return roundMoney(inv.Totals.GrandTotal, CurrencyDecimals), nil
	}
	if target != CurrencyUSD {
		return decimal.Zero, fmt.Errorf("%w: unsupported currency %q", ErrInvalidConfiguration, target)
	}
	rate, err := InvoiceDisplayRate(inv, rates)
	if err != nil {
		return decimal.Zero, err
	}
	return ConvertAtRate(inv.Totals.GrandTotal, rate)
}

// ConvertTotals renders every amount of t in USD at rate. Tax maps are copied.
func ConvertTotals(t Totals, usdToGHS decimal.Decimal) (Totals, error) {
	conv := func(d decimal.Decimal) decimal.Decimal {
		v, _ := ConvertAtRate(d, usdToGHS)
		return v
	}
	if !usdToGHS.IsPositive() {
		return Totals{}, fmt.Errorf("%w: rate must be > 0, got %s", ErrRateUnavailable, usdToGHS)
	}
	out := Totals{
		Subtotal:            conv(t.Subtotal),
		Shipping:            conv(t.Shipping),
		Handling:            conv(t.Handling),
		Discount:            conv(t.Discount),
		SubtotalWithCharges: conv(t.SubtotalWithCharges),
		SubtotalTaxes:       make(map[string]decimal.Decimal, len(t.SubtotalTaxes)),
		SubtotalTaxTotal:    conv(t.SubtotalTaxTotal),
		LevyTotal:           conv(t.LevyTotal),
		LevyTaxes:           make(map[string]decimal.Decimal, len(t.LevyTaxes)),
		LevyTaxTotal:        conv(t.LevyTaxTotal),
		GrandTotal:          conv(t.GrandTotal),
	}
	for k, v := range t.SubtotalTaxes {
		out.SubtotalTaxes[k] = conv(v)
	}
	for k, v := range t.LevyTaxes {
		out.LevyTaxes[k] = conv(v)
	}
	return out, nil
}
