package core_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteflow/internal/core"
)

func TestCatalogService_ConfigurationRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := core.NewCatalogService(pool)
	ctx := context.Background()

	ps, err := svc.GetPricingSettings(ctx)
	require.NoError(t, err)
	assert.True(t, ps.DefaultMarkupPercent.Equal(d("32")))
	assert.Equal(t, core.PricingModeMarkup, ps.PricingMode)

	ps.PricingMode = core.PricingModeMargin
	ps.DefaultMarkupPercent = d("20")
	ps.TierMarkups = map[string]decimal.Decimal{"premium": d("45")}
	require.NoError(t, svc.SavePricingSettings(ctx, ps))

	got, err := svc.GetPricingSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.PricingModeMargin, got.PricingMode)
	assert.True(t, got.TierMarkups["premium"].Equal(d("45")))

	ps.DefaultMarkupPercent = d("100")
	assert.ErrorIs(t, svc.SavePricingSettings(ctx, ps), core.ErrInvalidConfiguration)

	ps.DefaultMarkupPercent = d("20")
	ps.PricingMode = "COST_PLUS"
	assert.ErrorIs(t, svc.SavePricingSettings(ctx, ps), core.ErrInvalidConfiguration)

	ps.PricingMode = core.PricingModeMarkup
	ps.DefaultCurrency = "EUR"
	assert.ErrorIs(t, svc.SavePricingSettings(ctx, ps), core.ErrInvalidConfiguration)
}

func TestCatalogService_TaxRulesAndRates(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := core.NewCatalogService(pool)
	ctx := context.Background()

	rules, err := svc.GetTaxRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 4)
	assert.Len(t, rules.Enabled(), 3)

	require.NoError(t, svc.UpsertTaxRule(ctx, core.TaxRule{
		ID: "covid", Name: "COVID-19 Levy", RatePercent: d("1"), Enabled: true, Tier: core.TaxTierSubtotal,
	}))
	rules, err = svc.GetTaxRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules.Enabled(), 4)

	assert.ErrorIs(t, svc.UpsertTaxRule(ctx, core.TaxRule{ID: "bad", RatePercent: d("-1"), Tier: core.TaxTierSubtotal}), core.ErrInvalidConfiguration)
	assert.ErrorIs(t, svc.UpsertTaxRule(ctx, core.TaxRule{ID: "bad", RatePercent: d("1"), Tier: "ORDER"}), core.ErrInvalidConfiguration)

	require.NoError(t, svc.SetExchangeRate(ctx, core.ExchangeRate{Month: "2025-03", USDToGHS: d("15.25")}))
	assert.ErrorIs(t, svc.SetExchangeRate(ctx, core.ExchangeRate{Month: "March", USDToGHS: d("15")}), core.ErrInvalidConfiguration)
	assert.ErrorIs(t, svc.SetExchangeRate(ctx, core.ExchangeRate{Month: "2025-04", USDToGHS: d("0")}), core.ErrInvalidConfiguration)

	rates, err := svc.GetExchangeRates(ctx)
	require.NoError(t, err)
	assert.True(t, rates["2025-03"].Equal(d("15.25")))
}

func TestCatalogService_ItemsAndParties(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := core.NewCatalogService(pool)
	ctx := context.Background()

	override := d("40")
	require.NoError(t, svc.UpsertCatalogItem(ctx, core.CatalogItem{
		SKU: "D", Name: "Override Item", BaseCost: d("80"), Weight: d("2"),
		Costs:                 core.CostComponents{Duty: d("5")},
		MarkupOverridePercent: &override,
		ItemType:              core.ItemTypeStocked,
	}))

	items, err := svc.GetCatalogItems(ctx, "A", "D")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Nil(t, items["A"].MarkupOverridePercent)
	require.NotNil(t, items["D"].MarkupOverridePercent)
	assert.True(t, items["D"].MarkupOverridePercent.Equal(override))
	assert.True(t, items["D"].Costs.Duty.Equal(d("5")))

	cust, err := svc.GetCustomer(ctx, "CUST-1")
	require.NoError(t, err)
	assert.Equal(t, "Test Customer", cust.Name)

	_, err = svc.GetCustomer(ctx, "NOPE")
	assert.ErrorIs(t, err, core.ErrUnknownCustomer)

	require.NoError(t, svc.UpsertCustomer(ctx, core.Customer{Ref: "CUST-2", Name: "Kumasi Traders"}))
	cust, err = svc.GetCustomer(ctx, "CUST-2")
	require.NoError(t, err)
	assert.Equal(t, "Kumasi Traders", cust.Name)
	assert.ErrorIs(t, svc.UpsertCustomer(ctx, core.Customer{Ref: "CUST-3"}), core.ErrInvalidConfiguration)

	require.NoError(t, svc.UpsertSignature(ctx, core.Signature{ID: "sig-2", ControllerName: "Kofi Boateng", Subsidiary: "Accra"}))
	sig2, err := svc.GetSignature(ctx, "sig-2")
	require.NoError(t, err)
	assert.Equal(t, "Accra", sig2.Subsidiary)

	sig, err := svc.GetSignature(ctx, "sig-1")
	require.NoError(t, err)
	assert.Equal(t, "Ama Mensah", sig.ControllerName)

	_, err = svc.GetSignature(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrMissingSignature)
}
