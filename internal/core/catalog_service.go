package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CatalogService reads and maintains the configuration the pure pricing, tax
// and currency functions are fed with. Nothing here is cached: every caller
// receives a fresh snapshot and passes it on explicitly.
type CatalogService interface {
	// Catalog
	GetCatalogItems(ctx context.Context, skus ...string) (map[string]CatalogItem, error)
	UpsertCatalogItem(ctx context.Context, item CatalogItem) error

	// Configuration
	GetPricingSettings(ctx context.Context) (PricingSettings, error)
	SavePricingSettings(ctx context.Context, settings PricingSettings) error
	GetTaxRules(ctx context.Context) (TaxRuleSet, error)
	UpsertTaxRule(ctx context.Context, rule TaxRule) error
	GetExchangeRates(ctx context.Context) (RateTable, error)
	SetExchangeRate(ctx context.Context, rate ExchangeRate) error

	// Parties
	GetCustomer(ctx context.Context, ref string) (*Customer, error)
	UpsertCustomer(ctx context.Context, c Customer) error
	GetSignature(ctx context.Context, id string) (*Signature, error)
	UpsertSignature(ctx context.Context, sig Signature) error
}

type catalogService struct {
	pool *pgxpool.Pool
}

func NewCatalogService(pool *pgxpool.Pool) CatalogService {
	return &catalogService{pool: pool}
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRowQuerier is satisfied by both *pgxpool.Pool and pgx.Tx (for Query).
type pgxRowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *catalogService) GetCatalogItems(ctx context.Context, skus ...string) (map[string]CatalogItem, error) {
	query := `
		SELECT sku, name, base_cost, weight,
		       inbound_freight, duty, insurance, packaging, other_cost,
		       markup_override_percent, pricing_tier, item_type
		FROM catalog_items
		WHERE is_active = true
	`
	var args []any
	if len(skus) > 0 {
		query += " AND sku = ANY($1)"
		args = append(args, skus)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog items: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CatalogItem)
	for rows.Next() {
		var it CatalogItem
		var override decimal.NullDecimal
		if err := rows.Scan(
			&it.SKU, &it.Name, &it.BaseCost, &it.Weight,
			&it.Costs.InboundFreight, &it.Costs.Duty, &it.Costs.Insurance, &it.Costs.Packaging, &it.Costs.Other,
			&override, &it.PricingTier, &it.ItemType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan catalog item: %w", err)
		}
		if override.Valid {
			pct := override.Decimal
			it.MarkupOverridePercent = &pct
		}
		out[it.SKU] = it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog items: %w", err)
	}
	return out, nil
}

func (s *catalogService) UpsertCatalogItem(ctx context.Context, item CatalogItem) error {
	if item.SKU == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidConfiguration)
	}
	if item.BaseCost.IsNegative() || item.Costs.hasNegative() {
		return fmt.Errorf("%w: sku %s has a negative cost", ErrInvalidConfiguration, item.SKU)
	}
	itemType := item.ItemType
	if itemType == "" {
		itemType = ItemTypeStocked
	}
	var override decimal.NullDecimal
	if item.MarkupOverridePercent != nil {
		override = decimal.NewNullDecimal(*item.MarkupOverridePercent)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO catalog_items (sku, name, base_cost, weight,
		                           inbound_freight, duty, insurance, packaging, other_cost,
		                           markup_override_percent, pricing_tier, item_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (sku) DO UPDATE SET
			name = EXCLUDED.name,
			base_cost = EXCLUDED.base_cost,
			weight = EXCLUDED.weight,
			inbound_freight = EXCLUDED.inbound_freight,
			duty = EXCLUDED.duty,
			insurance = EXCLUDED.insurance,
			packaging = EXCLUDED.packaging,
			other_cost = EXCLUDED.other_cost,
			markup_override_percent = EXCLUDED.markup_override_percent,
			pricing_tier = EXCLUDED.pricing_tier,
			item_type = EXCLUDED.item_type
	`, item.SKU, item.Name, item.BaseCost, item.Weight,
		item.Costs.InboundFreight, item.Costs.Duty, item.Costs.Insurance, item.Costs.Packaging, item.Costs.Other,
		override, item.PricingTier, string(itemType))
	if err != nil {
		return fmt.Errorf("failed to upsert catalog item %s: %w", item.SKU, err)
	}
	return nil
}

// ── Configuration ────────────────────────────────────────────────────────────

// GetPricingSettings returns the stored settings, or the defaults when no row exists.
func (s *catalogService) GetPricingSettings(ctx context.Context) (PricingSettings, error) {
	var ps PricingSettings
	var tiers []byte
	err := s.pool.QueryRow(ctx, `
		SELECT default_markup_percent, pricing_mode, allocation_method, rounding_decimals,
		       default_currency, tax_default_rate, tier_markups
		FROM pricing_settings
		WHERE id = 1
	`).Scan(&ps.DefaultMarkupPercent, &ps.PricingMode, &ps.AllocationMethod, &ps.RoundingDecimals,
		&ps.DefaultCurrency, &ps.TaxDefaultRate, &tiers)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultPricingSettings(), nil
	}
	if err != nil {
		return PricingSettings{}, fmt.Errorf("failed to fetch pricing settings: %w", err)
	}
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &ps.TierMarkups); err != nil {
			return PricingSettings{}, fmt.Errorf("failed to decode tier markups: %w", err)
		}
	}
	return ps, nil
}

func (s *catalogService) SavePricingSettings(ctx context.Context, ps PricingSettings) error {
	if ps.RoundingDecimals < 0 {
		return fmt.Errorf("%w: rounding decimals must be >= 0, got %d", ErrInvalidConfiguration, ps.RoundingDecimals)
	}
	switch ps.PricingMode {
	case PricingModeMarkup, PricingModeMargin:
	default:
		return fmt.Errorf("%w: unknown pricing mode %q", ErrInvalidConfiguration, ps.PricingMode)
	}
	switch ps.AllocationMethod {
	case AllocateByWeight, AllocateByValue, AllocateEqually:
	default:
		return fmt.Errorf("%w: unknown allocation method %q", ErrInvalidConfiguration, ps.AllocationMethod)
	}
	if _, err := ParseCurrency(string(ps.DefaultCurrency)); err != nil {
		return err
	}
	if ps.DefaultMarkupPercent.IsNegative() || ps.TaxDefaultRate.IsNegative() {
		return fmt.Errorf("%w: markup and default tax rate must be >= 0", ErrInvalidConfiguration)
	}
	if ps.PricingMode == PricingModeMargin && ps.DefaultMarkupPercent.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("%w: margin must be below 100%%, got %s%%", ErrInvalidConfiguration, ps.DefaultMarkupPercent)
	}
	tiers, err := json.Marshal(ps.TierMarkups)
	if err != nil {
		return fmt.Errorf("failed to encode tier markups: %w", err)
	}
	if ps.TierMarkups == nil {
		tiers = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pricing_settings (id, default_markup_percent, pricing_mode, allocation_method,
		                              rounding_decimals, default_currency, tax_default_rate, tier_markups)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			default_markup_percent = EXCLUDED.default_markup_percent,
			pricing_mode = EXCLUDED.pricing_mode,
			allocation_method = EXCLUDED.allocation_method,
			rounding_decimals = EXCLUDED.rounding_decimals,
			default_currency = EXCLUDED.default_currency,
			tax_default_rate = EXCLUDED.tax_default_rate,
			tier_markups = EXCLUDED.tier_markups,
			updated_at = NOW()
	`, ps.DefaultMarkupPercent, string(ps.PricingMode), string(ps.AllocationMethod),
		ps.RoundingDecimals, string(ps.DefaultCurrency), ps.TaxDefaultRate, tiers)
	if err != nil {
		return fmt.Errorf("failed to save pricing settings: %w", err)
	}
	return nil
}

func (s *catalogService) GetTaxRules(ctx context.Context) (TaxRuleSet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, rate_percent, enabled, tier
		FROM tax_rules
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tax rules: %w", err)
	}
	defer rows.Close()

	var rules []TaxRule
	for rows.Next() {
		var r TaxRule
		if err := rows.Scan(&r.ID, &r.Name, &r.RatePercent, &r.Enabled, &r.Tier); err != nil {
			return nil, fmt.Errorf("failed to scan tax rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tax rules: %w", err)
	}
	return NewTaxRuleSet(rules), nil
}

func (s *catalogService) UpsertTaxRule(ctx context.Context, r TaxRule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: tax rule id is required", ErrInvalidConfiguration)
	}
	if r.RatePercent.IsNegative() {
		return fmt.Errorf("%w: tax rule %s has negative rate %s", ErrInvalidConfiguration, r.ID, r.RatePercent)
	}
	if r.Tier != TaxTierSubtotal && r.Tier != TaxTierLevyTotal {
		return fmt.Errorf("%w: tax rule %s has unknown tier %q", ErrInvalidConfiguration, r.ID, r.Tier)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tax_rules (id, name, rate_percent, enabled, tier)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, rate_percent = EXCLUDED.rate_percent,
			enabled = EXCLUDED.enabled, tier = EXCLUDED.tier
	`, r.ID, r.Name, r.RatePercent, r.Enabled, string(r.Tier))
	if err != nil {
		return fmt.Errorf("failed to upsert tax rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *catalogService) GetExchangeRates(ctx context.Context) (RateTable, error) {
	rows, err := s.pool.Query(ctx, "SELECT month, usd_to_ghs FROM exchange_rates ORDER BY month")
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange rates: %w", err)
	}
	defer rows.Close()

	var rates []ExchangeRate
	for rows.Next() {
		var r ExchangeRate
		if err := rows.Scan(&r.Month, &r.USDToGHS); err != nil {
			return nil, fmt.Errorf("failed to scan exchange rate: %w", err)
		}
		rates = append(rates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange rates: %w", err)
	}
	return NewRateTable(rates), nil
}

func (s *catalogService) SetExchangeRate(ctx context.Context, r ExchangeRate) error {
	if !r.USDToGHS.IsPositive() {
		return fmt.Errorf("%w: rate for %s must be > 0, got %s", ErrInvalidConfiguration, r.Month, r.USDToGHS)
	}
	if _, err := ParseRateMonth(r.Month); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO exchange_rates (month, usd_to_ghs)
		VALUES ($1, $2)
		ON CONFLICT (month) DO UPDATE SET usd_to_ghs = EXCLUDED.usd_to_ghs, updated_at = NOW()
	`, r.Month, r.USDToGHS)
	if err != nil {
		return fmt.Errorf("failed to set exchange rate for %s: %w", r.Month, err)
	}
	return nil
}

// ── Parties ──────────────────────────────────────────────────────────────────

func (s *catalogService) GetCustomer(ctx context.Context, ref string) (*Customer, error) {
	var c Customer
	err := s.pool.QueryRow(ctx, "SELECT ref, name FROM customers WHERE ref = $1", ref).Scan(&c.Ref, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCustomer, ref)
		}
		return nil, fmt.Errorf("failed to fetch customer %s: %w", ref, err)
	}
	return &c, nil
}

func (s *catalogService) UpsertCustomer(ctx context.Context, c Customer) error {
	if c.Ref == "" || c.Name == "" {
		return fmt.Errorf("%w: customer ref and name are required", ErrInvalidConfiguration)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (ref, name) VALUES ($1, $2)
		ON CONFLICT (ref) DO UPDATE SET name = EXCLUDED.name
	`, c.Ref, c.Name)
	if err != nil {
		return fmt.Errorf("failed to upsert customer %s: %w", c.Ref, err)
	}
	return nil
}

func (s *catalogService) GetSignature(ctx context.Context, id string) (*Signature, error) {
	return fetchSignatureQ(ctx, s.pool, id)
}

func (s *catalogService) UpsertSignature(ctx context.Context, sig Signature) error {
	if sig.ID == "" || sig.ControllerName == "" {
		return fmt.Errorf("%w: signature id and controller name are required", ErrMissingSignature)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO signatures (id, controller_name, subsidiary, signature_image_ref)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			controller_name = EXCLUDED.controller_name,
			subsidiary = EXCLUDED.subsidiary,
			signature_image_ref = EXCLUDED.signature_image_ref
	`, sig.ID, sig.ControllerName, sig.Subsidiary, sig.SignatureImageRef)
	if err != nil {
		return fmt.Errorf("failed to upsert signature %s: %w", sig.ID, err)
	}
	return nil
}

func fetchSignatureQ(ctx context.Context, q pgxQuerier, id string) (*Signature, error) {
	var sig Signature
	err := q.QueryRow(ctx, `
		SELECT id, controller_name, subsidiary, signature_image_ref
		FROM signatures WHERE id = $1
	`, id).Scan(&sig.ID, &sig.ControllerName, &sig.Subsidiary, &sig.SignatureImageRef)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: signature %s not found", ErrMissingSignature, id)
		}
		return nil, fmt.Errorf("failed to fetch signature %s: %w", id, err)
	}
	return &sig, nil
}
