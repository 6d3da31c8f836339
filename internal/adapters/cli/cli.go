package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"quoteflow/internal/app"
	"quoteflow/internal/core"
)

// Usage lists the available subcommands.
const Usage = `Usage: app <command> [args]

  price                         price a quote; PriceQuoteRequest JSON on stdin
  totals                        run the tax cascade; TotalsRequest JSON on stdin
  convert <amount> <currency> [YYYY-MM]
  draft                         create a draft invoice; DraftRequest JSON on stdin
  submit <ref> [-actor name]
  show <ref> [currency]
  history <ref>
  transition <ref> <action> [-actor name] [-signature id] [-reason text] [-expect STATUS]
  stock [sku...]
  adjust <sku> <stock> [threshold]
  stale                         list quotes awaiting a response past the threshold
  resolve <accept|customer_reject> <ref>... [-actor name]
  settings [set]                show pricing settings; "set" reads PricingSettings JSON on stdin
  tax-rules                     list tax rules
  tax-rule <id> <rate> <on|off> [-tier SUBTOTAL|LEVY_TOTAL] [-name text]
  rates                         list monthly USD→GHS rates
  rate <YYYY-MM> <usd_to_ghs>
  catalog [sku...]
  item                          create or replace a catalog item; CatalogItem JSON on stdin
  customer <ref> [name...]      show a customer, or save it when a name is given
  signature <id> [controller name...] [-subsidiary s] [-image ref]
  schema [name]                 print the JSON Schema of a request payload

Flags may appear before or after positional arguments.`

// ErrUsage is returned for unknown commands and missing arguments.
var ErrUsage = errors.New("usage")

// Run executes a one-shot CLI command. args is os.Args[1:]; the first element
// is the subcommand name. Results are written to out as JSON or a table.
func Run(ctx context.Context, svc app.ApplicationService, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w\n%s", ErrUsage, Usage)
	}

	switch args[0] {
	case "price", "p":
		var req app.PriceQuoteRequest
		if err := decodeStdin(in, &req); err != nil {
			return err
		}
		result, err := svc.PriceQuote(ctx, req)
		if err != nil {
			return err
		}
		printQuote(out, result)
		return nil

	case "totals":
		var req app.TotalsRequest
		if err := decodeStdin(in, &req); err != nil {
			return err
		}
		result, err := svc.ComputeTotals(ctx, req)
		if err != nil {
			return err
		}
		printTotals(out, result.Totals)
		return nil

	case "convert":
		if len(args) < 3 {
			return fmt.Errorf("%w: app convert <amount> <currency> [YYYY-MM]", ErrUsage)
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("%w: invalid amount %q", core.ErrInvalidConfiguration, args[1])
		}
		req := app.ConvertRequest{Amount: amount, Currency: args[2]}
		if len(args) > 3 {
			req.Month = args[3]
		}
		result, err := svc.ConvertAmount(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s (rate month %s)\n", result.Amount.StringFixed(core.CurrencyDecimals), result.Currency, result.Month)
		return nil

	case "draft":
		var req app.DraftRequest
		if err := decodeStdin(in, &req); err != nil {
			return err
		}
		result, err := svc.CreateDraft(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Draft %s created for %s.\n", result.Invoice.ID, result.Invoice.CustomerName)
		return nil

	case "submit":
		if len(args) < 2 {
			return fmt.Errorf("%w: app submit <ref>", ErrUsage)
		}
		return runTransition(ctx, svc, args[1], string(core.ActionSubmit), args[2:], out)

	case "transition", "t":
		if len(args) < 3 {
			return fmt.Errorf("%w: app transition <ref> <action> [flags]", ErrUsage)
		}
		return runTransition(ctx, svc, args[1], args[2], args[3:], out)

	case "show":
		if len(args) < 2 {
			return fmt.Errorf("%w: app show <ref> [currency]", ErrUsage)
		}
		display := ""
		if len(args) > 2 {
			display = args[2]
		}
		result, err := svc.GetInvoice(ctx, args[1], display)
		if err != nil {
			return err
		}
		printInvoice(out, result)
		return nil

	case "history":
		if len(args) < 2 {
			return fmt.Errorf("%w: app history <ref>", ErrUsage)
		}
		result, err := svc.GetInvoiceHistory(ctx, args[1])
		if err != nil {
			return err
		}
		return encodeJSON(out, result)

	case "stock":
		result, err := svc.GetStockLevels(ctx, args[1:]...)
		if err != nil {
			return err
		}
		printStock(out, result)
		return nil

	case "stale":
		result, err := svc.ListStaleQuotes(ctx)
		if err != nil {
			return err
		}
		printStale(out, result)
		return nil

	case "resolve":
		if len(args) < 3 {
			return fmt.Errorf("%w: app resolve <accept|customer_reject> <ref>...", ErrUsage)
		}
		fs := newFlagSet("resolve")
		actor := fs.String("actor", "cli", "actor recorded on the audit trail")
		refs, err := parseInterleaved(fs, args[2:])
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return fmt.Errorf("%w: app resolve <accept|customer_reject> <ref>...", ErrUsage)
		}
		result, err := svc.ResolveStaleQuotes(ctx, app.ResolveStaleRequest{
			Refs:    refs,
			Outcome: args[1],
			Actor:   *actor,
		})
		if err != nil {
			return err
		}
		for _, r := range result.Results {
			if r.Result == nil || r.Error != "" {
				fmt.Fprintf(out, "  FAILED  %s: %s\n", r.InvoiceID, r.Error)
				continue
			}
			number := r.InvoiceID.String()
			if r.Result.Invoice != nil && r.Result.Invoice.Number != "" {
				number = r.Result.Invoice.Number
			}
			fmt.Fprintf(out, "  OK      %s %s → %s\n", number, r.Result.From, r.Result.To)
		}
		fmt.Fprintf(out, "%d resolved, %d failed.\n", result.Succeeded, result.Failed)
		return nil

	case "adjust":
		if len(args) < 3 {
			return fmt.Errorf("%w: app adjust <sku> <stock> [threshold]", ErrUsage)
		}
		req := app.StockAdjustRequest{SKU: args[1]}
		var err error
		if req.Stock, err = strconv.ParseInt(args[2], 10, 64); err != nil {
			return fmt.Errorf("%w: invalid stock %q", ErrUsage, args[2])
		}
		if len(args) > 3 {
			if req.RestockThreshold, err = strconv.ParseInt(args[3], 10, 64); err != nil {
				return fmt.Errorf("%w: invalid threshold %q", ErrUsage, args[3])
			}
		}
		result, err := svc.AdjustStock(ctx, req)
		if err != nil {
			return err
		}
		printStock(out, result)
		return nil

	case "settings":
		if len(args) > 1 && args[1] == "set" {
			var req core.PricingSettings
			if err := decodeStdin(in, &req); err != nil {
				return err
			}
			result, err := svc.SavePricingSettings(ctx, req)
			if err != nil {
				return err
			}
			return encodeJSON(out, result)
		}
		result, err := svc.GetPricingSettings(ctx)
		if err != nil {
			return err
		}
		return encodeJSON(out, result)

	case "tax-rules":
		result, err := svc.ListTaxRules(ctx)
		if err != nil {
			return err
		}
		printTaxRules(out, result)
		return nil

	case "tax-rule":
		return runTaxRule(ctx, svc, args[1:], out)

	case "rates":
		result, err := svc.ListExchangeRates(ctx)
		if err != nil {
			return err
		}
		printRates(out, result)
		return nil

	case "rate":
		if len(args) < 3 {
			return fmt.Errorf("%w: app rate <YYYY-MM> <usd_to_ghs>", ErrUsage)
		}
		rate, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("%w: invalid rate %q", core.ErrInvalidConfiguration, args[2])
		}
		result, err := svc.SetExchangeRate(ctx, app.ExchangeRateRequest{Month: args[1], USDToGHS: rate})
		if err != nil {
			return err
		}
		printRates(out, result)
		return nil

	case "catalog":
		result, err := svc.ListCatalogItems(ctx, args[1:]...)
		if err != nil {
			return err
		}
		return encodeJSON(out, result)

	case "item":
		var req core.CatalogItem
		if err := decodeStdin(in, &req); err != nil {
			return err
		}
		result, err := svc.SaveCatalogItem(ctx, req)
		if err != nil {
			return err
		}
		return encodeJSON(out, result)

	case "customer":
		if len(args) < 2 {
			return fmt.Errorf("%w: app customer <ref> [name...]", ErrUsage)
		}
		var (
			c   *core.Customer
			err error
		)
		if len(args) > 2 {
			c, err = svc.SaveCustomer(ctx, core.Customer{Ref: args[1], Name: strings.Join(args[2:], " ")})
		} else {
			c, err = svc.GetCustomer(ctx, args[1])
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %s\n", c.Ref, c.Name)
		return nil

	case "signature":
		return runSignature(ctx, svc, args[1:], out)

	case "schema":
		name := "transition"
		if len(args) > 1 {
			name = args[1]
		}
		schema := app.PayloadSchema(name)
		if schema == nil {
			return fmt.Errorf("%w: unknown schema %q; available: %s", ErrUsage, name, strings.Join(app.PayloadSchemaNames(), ", "))
		}
		return encodeJSON(out, schema)

	default:
		return fmt.Errorf("%w: unknown command %s\n%s", ErrUsage, args[0], Usage)
	}
}

func runTransition(ctx context.Context, svc app.ApplicationService, ref, action string, flags []string, out io.Writer) error {
	fs := newFlagSet("transition")
	actor := fs.String("actor", "cli", "actor recorded on the audit trail")
	signature := fs.String("signature", "", "signature id bound on approve")
	reason := fs.String("reason", "", "reason stored on reject")
	expect := fs.String("expect", "", "expected current status")
	extra, err := parseInterleaved(fs, flags)
	if err != nil {
		return err
	}
	if len(extra) > 0 {
		return fmt.Errorf("%w: unexpected arguments %q", ErrUsage, extra)
	}

	res, err := svc.TransitionInvoice(ctx, app.TransitionRequest{
		Ref:            ref,
		Action:         action,
		Actor:          *actor,
		ExpectedStatus: *expect,
		SignatureID:    *signature,
		Reason:         *reason,
	})
	if err != nil {
		return err
	}

	number := ref
	if res.Invoice != nil && res.Invoice.Number != "" {
		number = res.Invoice.Number
	}
	fmt.Fprintf(out, "%s: %s → %s\n", number, res.From, res.To)
	for _, d := range res.Deltas {
		fmt.Fprintf(out, "  stock %-12s %+d\n", d.SKU, d.Delta)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  WARNING %s\n", w.Error())
	}
	return nil
}

// runTaxRule creates or updates one tax rule. Name and tier default to the
// stored rule's so a levy can be toggled by id alone.
func runTaxRule(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	fs := newFlagSet("tax-rule")
	tier := fs.String("tier", "", "SUBTOTAL or LEVY_TOTAL")
	name := fs.String("name", "", "display name")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 3 {
		return fmt.Errorf("%w: app tax-rule <id> <rate> <on|off> [-tier T] [-name text]", ErrUsage)
	}
	rate, err := decimal.NewFromString(pos[1])
	if err != nil {
		return fmt.Errorf("%w: invalid rate %q", core.ErrInvalidConfiguration, pos[1])
	}
	var enabled bool
	switch strings.ToLower(pos[2]) {
	case "on", "true", "enabled":
		enabled = true
	case "off", "false", "disabled":
	default:
		return fmt.Errorf("%w: expected on or off, got %q", ErrUsage, pos[2])
	}

	rule := core.TaxRule{ID: pos[0], Name: *name, RatePercent: rate, Enabled: enabled, Tier: core.TaxTier(strings.ToUpper(*tier))}
	if rule.Name == "" || rule.Tier == "" {
		existing, err := svc.ListTaxRules(ctx)
		if err != nil {
			return err
		}
		for _, r := range existing.Rules {
			if r.ID != rule.ID {
				continue
			}
			if rule.Name == "" {
				rule.Name = r.Name
			}
			if rule.Tier == "" {
				rule.Tier = r.Tier
			}
		}
	}
	if rule.Tier == "" {
		rule.Tier = core.TaxTierSubtotal
	}

	result, err := svc.SaveTaxRule(ctx, rule)
	if err != nil {
		return err
	}
	printTaxRules(out, result)
	return nil
}

func runSignature(ctx context.Context, svc app.ApplicationService, args []string, out io.Writer) error {
	fs := newFlagSet("signature")
	subsidiary := fs.String("subsidiary", "", "subsidiary the controller signs for")
	image := fs.String("image", "", "reference to the stored signature image")
	pos, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(pos) == 0 {
		return fmt.Errorf("%w: app signature <id> [controller name...]", ErrUsage)
	}

	var sig *core.Signature
	if len(pos) > 1 {
		sig, err = svc.SaveSignature(ctx, core.Signature{
			ID:                pos[0],
			ControllerName:    strings.Join(pos[1:], " "),
			Subsidiary:        *subsidiary,
			SignatureImageRef: *image,
		})
	} else {
		sig, err = svc.GetSignature(ctx, pos[0])
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  %s  %s\n", sig.ID, sig.ControllerName, sig.Subsidiary)
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseInterleaved parses flags wherever they appear in args and returns the
// positional arguments in order. flag.Parse alone stops at the first one.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUsage, err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return pos, nil
		}
		pos = append(pos, args[0])
		args = args[1:]
	}
}

func decodeStdin(in io.Reader, v any) error {
	if err := json.NewDecoder(in).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON on stdin: %v", ErrUsage, err)
	}
	return nil
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
