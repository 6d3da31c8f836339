package core_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteflow/internal/core"
)

func TestPlanTransition_Table(t *testing.T) {
	tests := []struct {
		from   core.Status
		action core.Action
		to     core.Status
		effect core.StockEffect
	}{
		{core.StatusDraft, core.ActionSubmit, core.StatusPendingApproval, core.StockEffectNone},
		{core.StatusPendingApproval, core.ActionApprove, core.StatusApproved, core.StockEffectDebit},
		{core.StatusPendingApproval, core.ActionReject, core.StatusRejected, core.StockEffectNone},
		{core.StatusApproved, core.ActionSend, core.StatusAwaitingAcceptance, core.StockEffectNone},
		{core.StatusAwaitingAcceptance, core.ActionAccept, core.StatusCustomerAccepted, core.StockEffectNone},
		{core.StatusAwaitingAcceptance, core.ActionCustomerReject, core.StatusCustomerRejected, core.StockEffectRestore},
		{core.StatusCustomerRejected, core.ActionRevise, core.StatusDraft, core.StockEffectRestore},
		{core.StatusRejected, core.ActionRevise, core.StatusDraft, core.StockEffectRestore},
		{core.StatusCustomerAccepted, core.ActionMarkPaid, core.StatusPaid, core.StockEffectNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			to, effect, err := core.PlanTransition(tt.from, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.to, to)
			assert.Equal(t, tt.effect, effect)
		})
	}
}

func TestPlanTransition_WrongPreStateIsStale(t *testing.T) {
	// A second approve sees the status the first one committed.
	_, _, err := core.PlanTransition(core.StatusApproved, core.ActionApprove)
	assert.ErrorIs(t, err, core.ErrStaleTransition)

	_, _, err = core.PlanTransition(core.StatusPaid, core.ActionRevise)
	assert.ErrorIs(t, err, core.ErrStaleTransition)

	_, _, err = core.PlanTransition(core.StatusDraft, core.ActionSend)
	assert.ErrorIs(t, err, core.ErrStaleTransition)
}

func TestPlanTransition_UnknownAction(t *testing.T) {
	_, _, err := core.PlanTransition(core.StatusDraft, "archive")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.False(t, errors.Is(err, core.ErrStaleTransition))

	_, err = core.ParseAction("archive")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestAllowedActions(t *testing.T) {
	assert.Equal(t, []core.Action{core.ActionApprove, core.ActionReject}, core.AllowedActions(core.StatusPendingApproval))
	assert.Equal(t, []core.Action{core.ActionAccept, core.ActionCustomerReject}, core.AllowedActions(core.StatusAwaitingAcceptance))
	assert.Empty(t, core.AllowedActions(core.StatusPaid))
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, core.StatusCustomerAccepted.IsTerminal())
	assert.True(t, core.StatusPaid.IsTerminal())
	assert.False(t, core.StatusRejected.IsTerminal())
	assert.True(t, core.StatusRejected.IsClosed())
	assert.False(t, core.StatusAwaitingAcceptance.IsClosed())
}

func TestDebitDeltas_SkipsSourcedAndAggregates(t *testing.T) {
	lines := []core.LineItem{
		{SKU: "B", Quantity: 2, ItemType: core.ItemTypeSourced},
		{SKU: "C", Quantity: 1, ItemType: core.ItemTypeStocked},
		{SKU: "A", Quantity: 3},
		{SKU: "A", Quantity: 4, ItemType: core.ItemTypeStocked},
	}

	got := core.DebitDeltas(lines)
	assert.Equal(t, []core.StockDelta{{SKU: "A", Delta: -7}, {SKU: "C", Delta: -1}}, got)
}

func TestRestoreDeltas_NetsOutstandingMovements(t *testing.T) {
	id := uuid.New()
	debit := []core.StockMovement{
		{InvoiceID: id, SKU: "A", Delta: -3, Type: core.MovementDebit},
		{InvoiceID: id, SKU: "C", Delta: -1, Type: core.MovementDebit},
	}

	restore := core.RestoreDeltas(debit)
	assert.Equal(t, []core.StockDelta{{SKU: "A", Delta: 3}, {SKU: "C", Delta: 1}}, restore)

	// Once the restore rows are in the ledger nothing is outstanding.
	after := append(debit,
		core.StockMovement{InvoiceID: id, SKU: "A", Delta: 3, Type: core.MovementRestore},
		core.StockMovement{InvoiceID: id, SKU: "C", Delta: 1, Type: core.MovementRestore},
	)
	assert.Empty(t, core.RestoreDeltas(after))

	// Debit, restore, debit again: only the second debit is outstanding.
	again := append(after, core.StockMovement{InvoiceID: id, SKU: "A", Delta: -2, Type: core.MovementDebit})
	assert.Equal(t, []core.StockDelta{{SKU: "A", Delta: 2}}, core.RestoreDeltas(again))

	assert.Empty(t, core.RestoreDeltas(nil))
}

func TestStockWarning_Kinds(t *testing.T) {
	under := core.StockWarning{SKU: "A", Stock: -2, Underflow: true}
	assert.ErrorIs(t, under, core.ErrInventoryUnderflow)

	low := core.StockWarning{SKU: "A", Stock: 1, RestockThreshold: 5}
	assert.False(t, errors.Is(low, core.ErrInventoryUnderflow))
	assert.Contains(t, low.Error(), "restock threshold")
}
