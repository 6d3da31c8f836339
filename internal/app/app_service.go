package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quoteflow/internal/clock"
	"quoteflow/internal/core"
)

type appService struct {
	catalog   core.CatalogService
	approvals core.ApprovalService
	inventory core.InventoryService
	monitor   *core.StaleQuoteMonitor
	clock     clock.Clock
	log       *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	catalog core.CatalogService,
	approvals core.ApprovalService,
	inventory core.InventoryService,
	monitor *core.StaleQuoteMonitor,
	clk clock.Clock,
	log *zap.Logger,
) ApplicationService {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &appService{
		catalog:   catalog,
		approvals: approvals,
		inventory: inventory,
		monitor:   monitor,
		clock:     clk,
		log:       log,
	}
}

// ── Pricing ──────────────────────────────────────────────────────────────────

// PriceQuote prices the requested SKUs against one snapshot of the catalog,
// pricing settings and tax rules.
func (s *appService) PriceQuote(ctx context.Context, req PriceQuoteRequest) (*PriceQuoteResult, error) {
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", core.ErrInvalidLineItem)
	}
	currency, err := parseCurrencyOrDefault(req.Currency)
	if err != nil {
		return nil, err
	}

	skus := make([]string, 0, len(req.Lines))
	for _, l := range req.Lines {
		skus = append(skus, l.SKU)
	}
	items, err := s.catalog.GetCatalogItems(ctx, skus...)
	if err != nil {
		return nil, err
	}
	settings, err := s.catalog.GetPricingSettings(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.catalog.GetTaxRules(ctx)
	if err != nil {
		return nil, err
	}

	lines, breakdowns, err := core.PriceQuoteLines(req.Lines, items, settings, req.InboundCharge)
	if err != nil {
		return nil, err
	}
	totals, err := core.ComputeTotals(lines, req.Charges, rules.Snapshot())
	if err != nil {
		return nil, err
	}

	result := &PriceQuoteResult{
		Lines:      lines,
		Breakdowns: breakdowns,
		Totals:     totals,
		Currency:   currency,
	}
	if currency == core.CurrencyUSD {
		rates, err := s.catalog.GetExchangeRates(ctx)
		if err != nil {
			return nil, err
		}
		rate, err := rates.RateFor(s.clock.Now())
		if err != nil {
			return nil, err
		}
		display, err := core.ConvertTotals(totals, rate)
		if err != nil {
			return nil, err
		}
		result.Display = &display
		result.Rate = &rate
	}
	return result, nil
}

// ComputeTotals runs the tax cascade over already priced lines.
func (s *appService) ComputeTotals(ctx context.Context, req TotalsRequest) (*TotalsResult, error) {
	rules := req.TaxRules
	if rules == nil {
		set, err := s.catalog.GetTaxRules(ctx)
		if err != nil {
			return nil, err
		}
		rules = set.Snapshot()
	}
	totals, err := core.ComputeTotals(req.Lines, req.Charges, rules)
	if err != nil {
		return nil, err
	}
	return &TotalsResult{Totals: totals}, nil
}

// ConvertAmount converts a GHS amount at the rate of the requested month.
func (s *appService) ConvertAmount(ctx context.Context, req ConvertRequest) (*ConvertResult, error) {
	currency, err := parseCurrencyOrDefault(req.Currency)
	if err != nil {
		return nil, err
	}
	asOf := s.clock.Now()
	if req.Month != "" {
		asOf, err = core.ParseRateMonth(req.Month)
		if err != nil {
			return nil, err
		}
	}
	rates, err := s.catalog.GetExchangeRates(ctx)
	if err != nil {
		return nil, err
	}
	amount, err := core.ConvertForDisplay(req.Amount, currency, rates, asOf)
	if err != nil {
		return nil, err
	}
	return &ConvertResult{Amount: amount, Currency: currency, Month: asOf.Format(core.RateMonthLayout)}, nil
}

// ── Invoices ─────────────────────────────────────────────────────────────────

// CreateDraft creates a new DRAFT invoice.
func (s *appService) CreateDraft(ctx context.Context, req DraftRequest) (*InvoiceResult, error) {
	in, err := s.draftInput(ctx, req)
	if err != nil {
		return nil, err
	}
	inv, err := s.approvals.CreateDraft(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.invoiceResult(ctx, inv, ""), nil
}

// UpdateDraft replaces the editable part of a DRAFT invoice.
func (s *appService) UpdateDraft(ctx context.Context, ref string, req DraftRequest) (*InvoiceResult, error) {
	id, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	in, err := s.draftInput(ctx, req)
	if err != nil {
		return nil, err
	}
	inv, err := s.approvals.UpdateDraft(ctx, id, in)
	if err != nil {
		return nil, err
	}
	return s.invoiceResult(ctx, inv, ""), nil
}

// GetInvoice returns a single invoice by UUID or invoice number. The display
// total defaults to the invoice's own currency.
func (s *appService) GetInvoice(ctx context.Context, ref, display string) (*InvoiceResult, error) {
	id, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	inv, err := s.approvals.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	target := inv.Currency
	if display != "" {
		if target, err = core.ParseCurrency(display); err != nil {
			return nil, err
		}
	}
	return s.invoiceResult(ctx, inv, target), nil
}

// ListInvoices returns invoices, optionally filtered by status.
func (s *appService) ListInvoices(ctx context.Context, status *string) (*InvoiceListResult, error) {
	var filter *core.Status
	if status != nil && *status != "" {
		st := core.Status(strings.ToUpper(*status))
		filter = &st
	}
	invoices, err := s.approvals.ListInvoices(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &InvoiceListResult{Invoices: invoices}, nil
}

// GetInvoiceHistory returns the transition audit trail and stock movements.
func (s *appService) GetInvoiceHistory(ctx context.Context, ref string) (*HistoryResult, error) {
	id, err := s.resolveRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	transitions, err := s.approvals.GetTransitions(ctx, id)
	if err != nil {
		return nil, err
	}
	movements, err := s.inventory.GetMovements(ctx, id)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{Transitions: transitions, Movements: movements}, nil
}

// TransitionInvoice applies an approval workflow action.
func (s *appService) TransitionInvoice(ctx context.Context, req TransitionRequest) (*core.TransitionResult, error) {
	action, err := core.ParseAction(req.Action)
	if err != nil {
		return nil, err
	}
	id, err := s.resolveRef(ctx, req.Ref)
	if err != nil {
		return nil, err
	}

	tc := core.TransitionContext{
		Actor:          req.Actor,
		ExpectedStatus: core.Status(strings.ToUpper(req.ExpectedStatus)),
		Reason:         req.Reason,
	}
	if req.SignatureID != "" {
		tc.Signature = &core.Signature{ID: req.SignatureID}
	}

	// submit freezes whatever the configuration says right now.
	if action == core.ActionSubmit {
		rules, err := s.catalog.GetTaxRules(ctx)
		if err != nil {
			return nil, err
		}
		tc.TaxRules = rules.Snapshot()
		if tc.TaxRules == nil {
			tc.TaxRules = []core.TaxRule{}
		}
		if tc.Rates, err = s.catalog.GetExchangeRates(ctx); err != nil {
			return nil, err
		}
	}

	return s.approvals.Transition(ctx, id, action, tc)
}

// ── Inventory ────────────────────────────────────────────────────────────────

// GetStockLevels returns stock for the given SKUs, or all SKUs when empty.
func (s *appService) GetStockLevels(ctx context.Context, skus ...string) (*StockResult, error) {
	levels, err := s.inventory.GetStock(ctx, skus...)
	if err != nil {
		return nil, err
	}
	return &StockResult{Levels: levels}, nil
}

// ── Stale quotes ─────────────────────────────────────────────────────────────

// CheckStaleQuotes runs the once-per-session stale check.
func (s *appService) CheckStaleQuotes(ctx context.Context, userID, sessionID string) (*StaleQuotesResult, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("%w: user id and session id are required", core.ErrInvalidConfiguration)
	}
	quotes, err := s.monitor.CheckSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return s.staleResult(quotes), nil
}

// ListStaleQuotes returns every stale quote regardless of session.
func (s *appService) ListStaleQuotes(ctx context.Context) (*StaleQuotesResult, error) {
	quotes, err := s.monitor.ListStale(ctx)
	if err != nil {
		return nil, err
	}
	return s.staleResult(quotes), nil
}

// EndSession forgets a user session's stale check.
func (s *appService) EndSession(userID, sessionID string) {
	s.monitor.EndSession(userID, sessionID)
}

// ResolveStaleQuotes accepts or rejects stale quotes in bulk. A ref that does
// not resolve is reported as a failed result instead of aborting the batch.
func (s *appService) ResolveStaleQuotes(ctx context.Context, req ResolveStaleRequest) (*ResolveStaleResult, error) {
	outcome, err := core.ParseAction(req.Outcome)
	if err != nil {
		return nil, err
	}

	result := &ResolveStaleResult{}
	ids := make([]uuid.UUID, 0, len(req.Refs))
	for _, ref := range req.Refs {
		id, err := s.resolveRef(ctx, ref)
		if err != nil {
			result.Results = append(result.Results, core.ResolveResult{Err: err, Error: err.Error()})
			continue
		}
		ids = append(ids, id)
	}

	resolved, err := s.monitor.Resolve(ctx, ids, outcome, req.Actor)
	if err != nil {
		return nil, err
	}
	result.Results = append(result.Results, resolved...)
	for _, r := range result.Results {
		if r.Err != nil {
			result.Failed++
		} else {
			result.Succeeded++
		}
	}
	return result, nil
}

// ── Configuration ────────────────────────────────────────────────────────────

func (s *appService) GetPricingSettings(ctx context.Context) (*core.PricingSettings, error) {
	ps, err := s.catalog.GetPricingSettings(ctx)
	if err != nil {
		return nil, err
	}
	return &ps, nil
}

func (s *appService) SavePricingSettings(ctx context.Context, settings core.PricingSettings) (*core.PricingSettings, error) {
	if err := s.catalog.SavePricingSettings(ctx, settings); err != nil {
		return nil, err
	}
	s.log.Info("pricing settings saved",
		zap.String("mode", string(settings.PricingMode)),
		zap.String("default_markup_percent", settings.DefaultMarkupPercent.String()),
	)
	return s.GetPricingSettings(ctx)
}

func (s *appService) ListTaxRules(ctx context.Context) (*TaxRulesResult, error) {
	set, err := s.catalog.GetTaxRules(ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]core.TaxRule, 0, len(set))
	for _, r := range set {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return &TaxRulesResult{Rules: rules}, nil
}

func (s *appService) SaveTaxRule(ctx context.Context, rule core.TaxRule) (*TaxRulesResult, error) {
	if err := s.catalog.UpsertTaxRule(ctx, rule); err != nil {
		return nil, err
	}
	s.log.Info("tax rule saved",
		zap.String("id", rule.ID),
		zap.String("rate_percent", rule.RatePercent.String()),
		zap.Bool("enabled", rule.Enabled),
	)
	return s.ListTaxRules(ctx)
}

func (s *appService) ListExchangeRates(ctx context.Context) (*RatesResult, error) {
	table, err := s.catalog.GetExchangeRates(ctx)
	if err != nil {
		return nil, err
	}
	rates := make([]core.ExchangeRate, 0, len(table))
	for month, rate := range table {
		rates = append(rates, core.ExchangeRate{Month: month, USDToGHS: rate})
	}
	sort.Slice(rates, func(i, j int) bool { return rates[i].Month < rates[j].Month })
	return &RatesResult{Rates: rates}, nil
}

func (s *appService) SetExchangeRate(ctx context.Context, req ExchangeRateRequest) (*RatesResult, error) {
	rate := core.ExchangeRate{Month: strings.TrimSpace(req.Month), USDToGHS: req.USDToGHS}
	if err := s.catalog.SetExchangeRate(ctx, rate); err != nil {
		return nil, err
	}
	s.log.Info("exchange rate set", zap.String("month", rate.Month), zap.String("usd_to_ghs", rate.USDToGHS.String()))
	return s.ListExchangeRates(ctx)
}

func (s *appService) ListCatalogItems(ctx context.Context, skus ...string) (*CatalogResult, error) {
	byKey, err := s.catalog.GetCatalogItems(ctx, skus...)
	if err != nil {
		return nil, err
	}
	items := make([]core.CatalogItem, 0, len(byKey))
	for _, it := range byKey {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return &CatalogResult{Items: items}, nil
}

func (s *appService) SaveCatalogItem(ctx context.Context, item core.CatalogItem) (*CatalogResult, error) {
	if err := s.catalog.UpsertCatalogItem(ctx, item); err != nil {
		return nil, err
	}
	return s.ListCatalogItems(ctx, item.SKU)
}

// ── Parties ──────────────────────────────────────────────────────────────────

func (s *appService) GetCustomer(ctx context.Context, ref string) (*core.Customer, error) {
	return s.catalog.GetCustomer(ctx, strings.TrimSpace(ref))
}

func (s *appService) SaveCustomer(ctx context.Context, c core.Customer) (*core.Customer, error) {
	c.Ref = strings.TrimSpace(c.Ref)
	if err := s.catalog.UpsertCustomer(ctx, c); err != nil {
		return nil, err
	}
	return s.catalog.GetCustomer(ctx, c.Ref)
}

func (s *appService) GetSignature(ctx context.Context, id string) (*core.Signature, error) {
	return s.catalog.GetSignature(ctx, strings.TrimSpace(id))
}

func (s *appService) SaveSignature(ctx context.Context, sig core.Signature) (*core.Signature, error) {
	sig.ID = strings.TrimSpace(sig.ID)
	if err := s.catalog.UpsertSignature(ctx, sig); err != nil {
		return nil, err
	}
	s.log.Info("signature registered", zap.String("id", sig.ID), zap.String("controller", sig.ControllerName))
	return s.catalog.GetSignature(ctx, sig.ID)
}

// AdjustStock overwrites the stored count for a SKU. Approval deltas keep
// applying relative to whatever value it leaves.
func (s *appService) AdjustStock(ctx context.Context, req StockAdjustRequest) (*StockResult, error) {
	sku := strings.TrimSpace(req.SKU)
	if err := s.inventory.AdjustStock(ctx, sku, req.Stock, req.RestockThreshold); err != nil {
		return nil, err
	}
	s.log.Info("stock adjusted", zap.String("sku", sku), zap.Int64("stock", req.Stock))
	return s.GetStockLevels(ctx, sku)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (s *appService) staleResult(quotes []core.StaleQuote) *StaleQuotesResult {
	if quotes == nil {
		quotes = []core.StaleQuote{}
	}
	return &StaleQuotesResult{
		ThresholdDays: int(s.monitor.Threshold() / (24 * time.Hour)),
		Quotes:        quotes,
	}
}

// resolveRef accepts a UUID or an invoice number.
func (s *appService) resolveRef(ctx context.Context, ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return uuid.Nil, fmt.Errorf("%w: empty invoice reference", core.ErrInvoiceNotFound)
	}
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	inv, err := s.approvals.GetInvoiceByNumber(ctx, ref)
	if err != nil {
		return uuid.Nil, err
	}
	return inv.ID, nil
}

func (s *appService) draftInput(ctx context.Context, req DraftRequest) (core.DraftInput, error) {
	currency, err := parseCurrencyOrDefault(req.Currency)
	if err != nil {
		return core.DraftInput{}, err
	}
	name := req.CustomerName
	if name == "" && req.CustomerRef != "" {
		cust, err := s.catalog.GetCustomer(ctx, req.CustomerRef)
		if err != nil {
			return core.DraftInput{}, err
		}
		name = cust.Name
	}
	return core.DraftInput{
		CustomerRef:  req.CustomerRef,
		CustomerName: name,
		Currency:     currency,
		Lines:        req.Lines,
		Charges:      req.Charges,
		Notes:        req.Notes,
		CreatedBy:    req.CreatedBy,
	}, nil
}

// invoiceResult decorates an invoice with its allowed actions and, when
// target is set, its grand total in that currency. A missing rate is reported
// in DisplayError rather than failing the read.
func (s *appService) invoiceResult(ctx context.Context, inv *core.Invoice, target core.Currency) *InvoiceResult {
	res := &InvoiceResult{Invoice: inv, AllowedActions: core.AllowedActions(inv.Status)}
	if target == "" {
		return res
	}
	total, err := s.displayTotal(ctx, inv, target)
	if err == nil {
		res.DisplayTotal = &total
		return res
	}
	if !errors.Is(err, core.ErrRateUnavailable) {
		s.log.Warn("display conversion failed", zap.String("invoice_id", inv.ID.String()), zap.Error(err))
	}
	res.DisplayError = err.Error()
	return res
}

func (s *appService) displayTotal(ctx context.Context, inv *core.Invoice, target core.Currency) (decimal.Decimal, error) {
	if target == core.CurrencyGHS {
		return core.DisplayInvoiceTotal(inv, target, nil)
	}
	rates, err := s.catalog.GetExchangeRates(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return core.DisplayInvoiceTotal(inv, target, rates)
}

func parseCurrencyOrDefault(s string) (core.Currency, error) {
	if s == "" {
		return core.CurrencyGHS, nil
	}
	return core.ParseCurrency(s)
}
