package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AllocationInput is one line's allocation key material.
type AllocationInput struct {
	SKU        string
	Quantity   int64
	UnitWeight decimal.Decimal
	BaseCost   decimal.Decimal
}

// Allocation is one line's share of an order-level charge.
type Allocation struct {
	SKU    string          `json:"sku"`
	Amount decimal.Decimal `json:"amount"`
}

// AllocateCharge splits amount across items by method. Shares are returned in
// input order. Every share but the last is truncated to decimals places and the
// last absorbs the remainder, so the shares always sum to amount exactly.
// A zero weight or value key falls back to an equal split.
func AllocateCharge(items []AllocationInput, amount decimal.Decimal, method AllocationMethod, decimals int32) ([]Allocation, error) {
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: charge to allocate is negative (%s)", ErrInvalidCharge, amount)
	}
	if len(items) == 0 {
		if amount.IsZero() {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: cannot allocate %s across zero items", ErrInvalidCharge, amount)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("%w: allocation decimals must be >= 0, got %d", ErrInvalidConfiguration, decimals)
	}

	keys := make([]decimal.Decimal, len(items))
	total := decimal.Zero
	for i, it := range items {
		qty := decimal.NewFromInt(it.Quantity)
		switch method {
		case AllocateByWeight:
			keys[i] = qty.Mul(it.UnitWeight)
		case AllocateByValue:
			keys[i] = qty.Mul(it.BaseCost)
		case AllocateEqually, "":
			keys[i] = decimal.NewFromInt(1)
		default:
			return nil, fmt.Errorf("%w: unknown allocation method %q", ErrInvalidConfiguration, method)
		}
		if keys[i].IsNegative() {
			return nil, fmt.Errorf("%w: negative allocation key for sku %s", ErrInvalidConfiguration, it.SKU)
		}
		total = total.Add(keys[i])
	}
	if total.IsZero() {
		for i := range keys {
			keys[i] = decimal.NewFromInt(1)
		}
		total = decimal.NewFromInt(int64(len(keys)))
	}

	out := make([]Allocation, len(items))
	allocated := decimal.Zero
	last := len(items) - 1
	for i, it := range items {
		if i == last {
			out[i] = Allocation{SKU: it.SKU, Amount: amount.Sub(allocated)}
			break
		}
		share := amount.Mul(keys[i]).Div(total).Truncate(decimals)
		allocated = allocated.Add(share)
		out[i] = Allocation{SKU: it.SKU, Amount: share}
	}
	return out, nil
}

// AllocationsBySKU sums allocations per SKU.
func AllocationsBySKU(allocs []Allocation) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(allocs))
	for _, a := range allocs {
		out[a.SKU] = out[a.SKU].Add(a.Amount)
	}
	return out
}
