package core

import "github.com/shopspring/decimal"

// CurrencyDecimals is the precision of every emitted monetary amount other than
// a unit price, which follows PricingSettings.RoundingDecimals.
const CurrencyDecimals int32 = 2

var hundred = decimal.NewFromInt(100)

// roundMoney rounds half away from zero, which is what decimal.Round does.
func roundMoney(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// percentOf returns base × pct/100 at full precision.
func percentOf(base, pct decimal.Decimal) decimal.Decimal {
	return base.Mul(pct).Div(hundred)
}
