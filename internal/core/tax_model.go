package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TaxTier says which running total a levy is computed on.
type TaxTier string

const (
	// TaxTierSubtotal levies apply to subtotal plus order charges.
	TaxTierSubtotal TaxTier = "SUBTOTAL"
	// TaxTierLevyTotal levies apply to the total after every SUBTOTAL levy.
	TaxTierLevyTotal TaxTier = "LEVY_TOTAL"
)

// TaxRule is one tax definition. Tiers are exclusive, so a rule is evaluated
// in exactly one pass.
type TaxRule struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	Enabled     bool            `json:"enabled"`
	Tier        TaxTier         `json:"tier"`
}

// TaxRuleSet is the tax configuration keyed by rule id.
type TaxRuleSet map[string]TaxRule

// NewTaxRuleSet indexes rules by id. A later rule with a repeated id wins.
func NewTaxRuleSet(rules []TaxRule) TaxRuleSet {
	set := make(TaxRuleSet, len(rules))
	for _, r := range rules {
		set[r.ID] = r
	}
	return set
}

// Enabled returns the enabled rules sorted by id. The sort only makes output
// stable; amounts do not depend on order within a tier.
func (s TaxRuleSet) Enabled() []TaxRule {
	out := make([]TaxRule, 0, len(s))
	for _, r := range s {
		if r.Enabled {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a deep copy of the enabled rules for freezing onto an invoice.
func (s TaxRuleSet) Snapshot() []TaxRule {
	return append([]TaxRule(nil), s.Enabled()...)
}

// DefaultGhanaTaxRules is the levy schedule new installations are seeded with.
func DefaultGhanaTaxRules() []TaxRule {
	return []TaxRule{
		{ID: "nhil", Name: "NHIL", RatePercent: decimal.RequireFromString("2.5"), Enabled: true, Tier: TaxTierSubtotal},
		{ID: "getfund", Name: "GETFund", RatePercent: decimal.RequireFromString("2.5"), Enabled: true, Tier: TaxTierSubtotal},
		{ID: "covid", Name: "COVID-19 Levy", RatePercent: decimal.NewFromInt(1), Enabled: false, Tier: TaxTierSubtotal},
		{ID: "vat", Name: "VAT", RatePercent: decimal.NewFromInt(15), Enabled: true, Tier: TaxTierLevyTotal},
	}
}
