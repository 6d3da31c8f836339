package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"quoteflow/internal/app"
	"quoteflow/internal/core"
)

func money(d decimal.Decimal) string {
	return d.StringFixed(core.CurrencyDecimals)
}

func printQuote(out io.Writer, q *app.PriceQuoteResult) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 72))
	fmt.Fprintf(out, "  %-10s %6s %12s %12s %8s %12s\n", "SKU", "QTY", "LANDED", "UNIT PRICE", "PCT", "EXTENDED")
	fmt.Fprintln(out, strings.Repeat("-", 72))
	for i, l := range q.Lines {
		b := q.Breakdowns[i]
		fmt.Fprintf(out, "  %-10s %6d %12s %12s %8s %12s\n",
			l.SKU, l.Quantity, money(b.LandedCost), money(l.UnitPrice), b.Percent.String(), money(l.Extended()))
	}
	printTotals(out, q.Totals)
	if q.Display != nil && q.Rate != nil {
		fmt.Fprintf(out, "  %-44s %12s %s (rate %s)\n", "GRAND TOTAL", money(q.Display.GrandTotal), q.Currency, q.Rate.String())
	}
}

func printTotals(out io.Writer, t core.Totals) {
	fmt.Fprintln(out, strings.Repeat("-", 72))
	row := func(label string, v decimal.Decimal) {
		fmt.Fprintf(out, "  %-44s %12s\n", label, money(v))
	}
	row("Subtotal", t.Subtotal)
	row("Shipping", t.Shipping)
	row("Handling", t.Handling)
	row("Discount", t.Discount.Neg())
	row("Subtotal with charges", t.SubtotalWithCharges)
	for _, id := range sortedKeys(t.SubtotalTaxes) {
		row("  "+id, t.SubtotalTaxes[id])
	}
	row("Levy total", t.LevyTotal)
	for _, id := range sortedKeys(t.LevyTaxes) {
		row("  "+id, t.LevyTaxes[id])
	}
	fmt.Fprintln(out, strings.Repeat("=", 72))
	row("GRAND TOTAL (GHS)", t.GrandTotal)
}

func printInvoice(out io.Writer, r *app.InvoiceResult) {
	inv := r.Invoice
	number := inv.Number
	if number == "" {
		number = "(unnumbered draft)"
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Invoice  : %s  [%s]\n", number, inv.Status)
	fmt.Fprintf(out, "  ID       : %s\n", inv.ID)
	fmt.Fprintf(out, "  Customer : %s (%s)\n", inv.CustomerName, inv.CustomerRef)
	fmt.Fprintf(out, "  Currency : %s\n", inv.Currency)
	if inv.ExchangeRateAtCreation != nil {
		fmt.Fprintf(out, "  Rate     : %s GHS/USD (at creation)\n", inv.ExchangeRateAtCreation.String())
	}
	if inv.ApprovedBy != nil {
		fmt.Fprintf(out, "  Approved : %s\n", *inv.ApprovedBy)
	}
	fmt.Fprintln(out, strings.Repeat("-", 72))
	for _, l := range inv.Lines {
		fmt.Fprintf(out, "  %-10s %-28s %6d %12s %s\n", l.SKU, l.Name, l.Quantity, money(l.UnitPrice), l.ItemType)
	}
	printTotals(out, inv.Totals)
	if r.DisplayTotal != nil {
		fmt.Fprintf(out, "  %-44s %12s\n", "DISPLAY TOTAL", money(*r.DisplayTotal))
	}
	if r.DisplayError != "" {
		fmt.Fprintf(out, "  display: %s\n", r.DisplayError)
	}
	actions := make([]string, len(r.AllowedActions))
	for i, a := range r.AllowedActions {
		actions[i] = string(a)
	}
	fmt.Fprintf(out, "  Next     : %s\n", strings.Join(actions, ", "))
}

func printStock(out io.Writer, r *app.StockResult) {
	fmt.Fprintf(out, "  %-12s %10s %10s\n", "SKU", "STOCK", "RESTOCK AT")
	fmt.Fprintln(out, strings.Repeat("-", 36))
	for _, s := range r.Levels {
		marker := ""
		if s.Stock < 0 {
			marker = "  BACKORDER"
		} else if s.Stock <= s.RestockThreshold {
			marker = "  LOW"
		}
		fmt.Fprintf(out, "  %-12s %10d %10d%s\n", s.SKU, s.Stock, s.RestockThreshold, marker)
	}
}

func printStale(out io.Writer, r *app.StaleQuotesResult) {
	if len(r.Quotes) == 0 {
		fmt.Fprintf(out, "No quotes waiting longer than %d days.\n", r.ThresholdDays)
		return
	}
	fmt.Fprintf(out, "%d quote(s) waiting longer than %d days:\n", len(r.Quotes), r.ThresholdDays)
	for _, q := range r.Quotes {
		fmt.Fprintf(out, "  %-16s %-28s %4d days  %12s\n",
			q.Invoice.Number, q.Invoice.CustomerName, q.DaysWaiting, money(q.Invoice.Totals.GrandTotal))
	}
}

func printTaxRules(out io.Writer, r *app.TaxRulesResult) {
	fmt.Fprintf(out, "  %-10s %-28s %8s %-10s %s\n", "ID", "NAME", "RATE %", "TIER", "ENABLED")
	fmt.Fprintln(out, strings.Repeat("-", 68))
	for _, t := range r.Rules {
		enabled := "no"
		if t.Enabled {
			enabled = "yes"
		}
		fmt.Fprintf(out, "  %-10s %-28s %8s %-10s %s\n", t.ID, t.Name, t.RatePercent.String(), t.Tier, enabled)
	}
}

func printRates(out io.Writer, r *app.RatesResult) {
	if len(r.Rates) == 0 {
		fmt.Fprintln(out, "No exchange rates set.")
		return
	}
	for _, rate := range r.Rates {
		fmt.Fprintf(out, "  %s  1 USD = %s GHS\n", rate.Month, rate.USDToGHS.String())
	}
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
