package core

import (
	"fmt"
	"sort"
)

// StockEffect is the inventory side effect of a transition.
type StockEffect int

const (
	StockEffectNone StockEffect = iota
	// StockEffectDebit decrements stock for every non-SOURCED line.
	StockEffectDebit
	// StockEffectRestore reverses whatever the invoice still has debited.
	StockEffectRestore
)

func (e StockEffect) String() string {
	switch e {
	case StockEffectDebit:
		return "debit"
	case StockEffectRestore:
		return "restore"
	default:
		return "none"
	}
}

type transitionRule struct {
	from   []Status
	to     Status
	effect StockEffect
}

var transitionRules = map[Action]transitionRule{
	ActionSubmit:         {from: []Status{StatusDraft}, to: StatusPendingApproval},
	ActionApprove:        {from: []Status{StatusPendingApproval}, to: StatusApproved, effect: StockEffectDebit},
	ActionReject:         {from: []Status{StatusPendingApproval}, to: StatusRejected},
	ActionSend:           {from: []Status{StatusApproved}, to: StatusAwaitingAcceptance},
	ActionAccept:         {from: []Status{StatusAwaitingAcceptance}, to: StatusCustomerAccepted},
	ActionCustomerReject: {from: []Status{StatusAwaitingAcceptance}, to: StatusCustomerRejected, effect: StockEffectRestore},
	ActionRevise:         {from: []Status{StatusCustomerRejected, StatusRejected}, to: StatusDraft, effect: StockEffectRestore},
	ActionMarkPaid:       {from: []Status{StatusCustomerAccepted}, to: StatusPaid},
}

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := transitionRules[a]; !ok {
		return "", fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, s)
	}
	return a, nil
}

// PlanTransition resolves the target status and stock effect of applying
// action to an invoice currently in status current. A current status that is
// not a valid pre-state means the record has moved on: ErrStaleTransition.
func PlanTransition(current Status, action Action) (Status, StockEffect, error) {
	rule, ok := transitionRules[action]
	if !ok {
		return "", StockEffectNone, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
	}
	for _, from := range rule.from {
		if from == current {
			return rule.to, rule.effect, nil
		}
	}
	return "", StockEffectNone, fmt.Errorf("%w: cannot %s an invoice in status %s (expected %v)", ErrStaleTransition, action, current, rule.from)
}

// AllowedActions lists the actions that are valid from status, in a stable order.
func AllowedActions(status Status) []Action {
	var out []Action
	for a, rule := range transitionRules {
		for _, from := range rule.from {
			if from == status {
				out = append(out, a)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsTerminal reports whether the approval workflow is over for status.
// mark_paid still records payment on a CUSTOMER_ACCEPTED invoice.
func (s Status) IsTerminal() bool {
	return s == StatusCustomerAccepted || s == StatusPaid
}

// IsClosed reports whether status is shown as closed. REJECTED is closed for
// display but can still be revised.
func (s Status) IsClosed() bool {
	return s.IsTerminal() || s == StatusRejected
}

// DebitDeltas returns the stock debit for lines: one negative delta per
// non-SOURCED sku, quantities summed, sorted by sku so concurrent
// transactions lock inventory rows in the same order.
func DebitDeltas(lines []LineItem) []StockDelta {
	bySKU := make(map[string]int64)
	for _, l := range lines {
		if l.ItemType == ItemTypeSourced {
			continue
		}
		bySKU[l.SKU] -= l.Quantity
	}
	return sortedDeltas(bySKU)
}

// RestoreDeltas returns the deltas that cancel an invoice's outstanding
// movements. Restoring twice is impossible because the second call sees the
// first call's movements and nets to zero.
func RestoreDeltas(movements []StockMovement) []StockDelta {
	net := make(map[string]int64)
	for _, m := range movements {
		net[m.SKU] += m.Delta
	}
	restore := make(map[string]int64, len(net))
	for sku, d := range net {
		restore[sku] = -d
	}
	return sortedDeltas(restore)
}

func sortedDeltas(bySKU map[string]int64) []StockDelta {
	out := make([]StockDelta, 0, len(bySKU))
	for sku, d := range bySKU {
		if d == 0 {
			continue
		}
		out = append(out, StockDelta{SKU: sku, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}
