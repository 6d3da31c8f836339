package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quoteflow/internal/clock"
	"quoteflow/internal/core"
)

type testServices struct {
	approvals core.ApprovalService
	inventory core.InventoryService
	clock     *clock.FakeClock
}

func newTestServices(pool *pgxpool.Pool) testServices {
	clk := clock.NewFakeClock(time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC))
	inv := core.NewInventoryService(pool)
	docs := core.NewDocumentService(pool)
	return testServices{
		approvals: core.NewApprovalService(pool, inv, docs, zap.NewNop(), core.WithClock(clk)),
		inventory: inv,
		clock:     clk,
	}
}

func stockOf(t *testing.T, inv core.InventoryService, sku string) int64 {
	t.Helper()
	rows, err := inv.GetStock(context.Background(), sku)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0].Stock
}

// createPending creates a draft with 3×A (stocked) and 2×B (sourced) and submits it.
func createPending(t *testing.T, svc testServices) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	draft, err := svc.approvals.CreateDraft(ctx, core.DraftInput{
		CustomerRef:  "CUST-1",
		CustomerName: "Test Customer",
		Lines: []core.LineItem{
			{SKU: "A", Name: "Stocked Widget", Quantity: 3, UnitPrice: d("151.80"), ItemType: core.ItemTypeStocked},
			{SKU: "B", Name: "Sourced Gadget", Quantity: 2, UnitPrice: d("66.00"), ItemType: core.ItemTypeSourced},
		},
		Charges: core.OrderCharges{Shipping: d("50")},
	})
	require.NoError(t, err)
	require.Equal(t, core.StatusDraft, draft.Status)

	_, err = svc.approvals.Transition(ctx, draft.ID, core.ActionSubmit, core.TransitionContext{
		Actor:    "sales",
		TaxRules: core.DefaultGhanaTaxRules(),
	})
	require.NoError(t, err)
	return draft.ID
}

func TestApproval_SubmitFreezesTotalsAndNumbers(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)
	inv, err := svc.approvals.GetInvoice(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, core.StatusPendingApproval, inv.Status)
	assert.Equal(t, "INV-2025-00001", inv.Number)
	assert.Len(t, inv.TaxSnapshot, 3)
	assert.True(t, inv.Totals.Subtotal.Equal(d("587.40")), "subtotal %s", inv.Totals.Subtotal)
	assert.NotNil(t, inv.SubmittedAt)
	assert.Nil(t, inv.ExchangeRateAtCreation)

	// Changing the live configuration does not touch the frozen snapshot.
	frozen := inv.Totals.GrandTotal
	_, err = pool.Exec(ctx, "UPDATE tax_rules SET rate_percent = 50 WHERE id = 'vat'")
	require.NoError(t, err)
	again, err := svc.approvals.GetInvoice(ctx, id)
	require.NoError(t, err)
	assert.True(t, again.Totals.GrandTotal.Equal(frozen))
}

func TestApproval_ApproveDebitsStockedOnly_ThenCustomerRejectRestores(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)

	res, err := svc.approvals.Transition(ctx, id, core.ActionApprove, core.TransitionContext{
		Actor:     "controller",
		Signature: &core.Signature{ID: "sig-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusApproved, res.To)
	assert.Equal(t, []core.StockDelta{{SKU: "A", Delta: -3}}, res.Deltas)
	assert.Equal(t, int64(7), stockOf(t, svc.inventory, "A"))
	require.NotNil(t, res.Invoice.ApprovedBy)
	assert.Equal(t, "Ama Mensah", *res.Invoice.ApprovedBy)

	_, err = svc.approvals.Transition(ctx, id, core.ActionSend, core.TransitionContext{Actor: "sales"})
	require.NoError(t, err)

	res, err = svc.approvals.Transition(ctx, id, core.ActionCustomerReject, core.TransitionContext{
		Actor:          "sales",
		ExpectedStatus: core.StatusAwaitingAcceptance,
		Reason:         "went with another supplier",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCustomerRejected, res.To)
	assert.Equal(t, int64(10), stockOf(t, svc.inventory, "A"))

	// Revise after the customer rejection has nothing left to restore.
	res, err = svc.approvals.Transition(ctx, id, core.ActionRevise, core.TransitionContext{Actor: "sales"})
	require.NoError(t, err)
	assert.Empty(t, res.Deltas)
	assert.Equal(t, int64(10), stockOf(t, svc.inventory, "A"))
	assert.Nil(t, res.Invoice.SignatureID)
	assert.Nil(t, res.Invoice.ApprovedBy)
	assert.Equal(t, "INV-2025-00001", res.Invoice.Number)

	history, err := svc.approvals.GetTransitions(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, core.ActionRevise, history[4].Action)
}

func TestApproval_ConcurrentDoubleApproveDebitsOnce(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)

	const attempts = 8
	var wg sync.WaitGroup
	errCh := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.approvals.Transition(ctx, id, core.ActionApprove, core.TransitionContext{
				Actor:          "controller",
				ExpectedStatus: core.StatusPendingApproval,
				Signature:      &core.Signature{ID: "sig-1"},
			})
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)

	succeeded := 0
	for err := range errCh {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, core.ErrStaleTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(7), stockOf(t, svc.inventory, "A"))

	movements, err := svc.inventory.GetMovements(ctx, id)
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestApproval_ConcurrentApprovalsOfDifferentInvoicesKeepEveryDelta(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	ids := []uuid.UUID{createPending(t, svc), createPending(t, svc), createPending(t, svc)}

	var wg sync.WaitGroup
	errCh := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(invoiceID uuid.UUID) {
			defer wg.Done()
			if _, err := svc.approvals.Transition(ctx, invoiceID, core.ActionApprove, core.TransitionContext{
				Signature: &core.Signature{ID: "sig-1"},
			}); err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent approve error: %v", err)
	}

	// 10 - 3×3: stock is allowed to reach 1 and nothing is lost.
	assert.Equal(t, int64(1), stockOf(t, svc.inventory, "A"))
}

func TestApproval_MissingSignatureLeavesNothingBehind(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)

	_, err := svc.approvals.Transition(ctx, id, core.ActionApprove, core.TransitionContext{Actor: "controller"})
	assert.ErrorIs(t, err, core.ErrMissingSignature)

	_, err = svc.approvals.Transition(ctx, id, core.ActionApprove, core.TransitionContext{
		Signature: &core.Signature{ID: "no-such-signature"},
	})
	assert.ErrorIs(t, err, core.ErrMissingSignature)

	inv, err := svc.approvals.GetInvoice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPendingApproval, inv.Status)
	assert.Equal(t, int64(10), stockOf(t, svc.inventory, "A"))
}

func TestApproval_UnknownStockedSKURollsBack(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	draft, err := svc.approvals.CreateDraft(ctx, core.DraftInput{
		CustomerRef: "CUST-1",
		Lines: []core.LineItem{
			{SKU: "A", Quantity: 1, UnitPrice: d("10")},
			{SKU: "ZZZ", Quantity: 1, UnitPrice: d("10")},
		},
	})
	require.NoError(t, err)
	_, err = svc.approvals.Transition(ctx, draft.ID, core.ActionSubmit, core.TransitionContext{TaxRules: []core.TaxRule{}})
	require.NoError(t, err)

	_, err = svc.approvals.Transition(ctx, draft.ID, core.ActionApprove, core.TransitionContext{Signature: &core.Signature{ID: "sig-1"}})
	assert.ErrorIs(t, err, core.ErrUnknownSKU)
	assert.Equal(t, int64(10), stockOf(t, svc.inventory, "A"), "debit of A must roll back with the failed transition")
}

func TestApproval_UnderflowIsAWarning(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	draft, err := svc.approvals.CreateDraft(ctx, core.DraftInput{
		CustomerRef: "CUST-1",
		Lines:       []core.LineItem{{SKU: "C", Quantity: 3, UnitPrice: d("12"), IsBackorder: true}},
	})
	require.NoError(t, err)
	_, err = svc.approvals.Transition(ctx, draft.ID, core.ActionSubmit, core.TransitionContext{TaxRules: []core.TaxRule{}})
	require.NoError(t, err)

	res, err := svc.approvals.Transition(ctx, draft.ID, core.ActionApprove, core.TransitionContext{Signature: &core.Signature{ID: "sig-1"}})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.True(t, errors.Is(res.Warnings[0], core.ErrInventoryUnderflow))
	assert.Equal(t, int64(-2), stockOf(t, svc.inventory, "C"))
}

func TestApproval_RejectedReviseRestoresNothing(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)
	_, err := svc.approvals.Transition(ctx, id, core.ActionReject, core.TransitionContext{Reason: "price too low"})
	require.NoError(t, err)

	res, err := svc.approvals.Transition(ctx, id, core.ActionRevise, core.TransitionContext{})
	require.NoError(t, err)
	assert.Empty(t, res.Deltas)
	assert.Equal(t, int64(10), stockOf(t, svc.inventory, "A"))

	// Resubmitting keeps the number and reuses the previous tax snapshot.
	res, err = svc.approvals.Transition(ctx, id, core.ActionSubmit, core.TransitionContext{})
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-00001", res.Invoice.Number)
	assert.Len(t, res.Invoice.TaxSnapshot, 3)
}

func TestApproval_StaleExpectedStatus(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)

	_, err := svc.approvals.Transition(ctx, id, core.ActionReject, core.TransitionContext{ExpectedStatus: core.StatusDraft})
	assert.ErrorIs(t, err, core.ErrStaleTransition)

	_, err = svc.approvals.Transition(ctx, id, core.ActionSend, core.TransitionContext{})
	assert.ErrorIs(t, err, core.ErrStaleTransition)

	_, err = svc.approvals.Transition(ctx, uuid.New(), core.ActionSend, core.TransitionContext{})
	assert.ErrorIs(t, err, core.ErrInvoiceNotFound)

	_, err = svc.approvals.UpdateDraft(ctx, id, core.DraftInput{CustomerRef: "CUST-1"})
	assert.ErrorIs(t, err, core.ErrStaleTransition)
}

func TestApproval_USDSubmitPinsRate(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	draft, err := svc.approvals.CreateDraft(ctx, core.DraftInput{
		CustomerRef: "CUST-1",
		Currency:    core.CurrencyUSD,
		Lines:       []core.LineItem{{SKU: "B", Quantity: 1, UnitPrice: d("1000"), ItemType: core.ItemTypeSourced}},
		Charges:     core.OrderCharges{Shipping: d("50")},
	})
	require.NoError(t, err)

	_, err = svc.approvals.Transition(ctx, draft.ID, core.ActionSubmit, core.TransitionContext{
		TaxRules: core.DefaultGhanaTaxRules(),
		Rates:    core.RateTable{"2025-02": d("14")},
	})
	assert.ErrorIs(t, err, core.ErrRateUnavailable)

	res, err := svc.approvals.Transition(ctx, draft.ID, core.ActionSubmit, core.TransitionContext{
		TaxRules: core.DefaultGhanaTaxRules(),
		Rates:    core.RateTable{"2025-03": d("15.25")},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Invoice.ExchangeRateAtCreation)
	assert.True(t, res.Invoice.ExchangeRateAtCreation.Equal(d("15.25")))

	usd, err := core.DisplayInvoiceTotal(res.Invoice, core.CurrencyUSD, core.RateTable{"2025-09": d("11")})
	require.NoError(t, err)
	assert.True(t, usd.Equal(d("83.14")), "usd %s", usd)
}

func TestApproval_ListAwaitingSince(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	svc := newTestServices(pool)
	ctx := context.Background()

	id := createPending(t, svc)
	_, err := svc.approvals.Transition(ctx, id, core.ActionApprove, core.TransitionContext{Signature: &core.Signature{ID: "sig-1"}})
	require.NoError(t, err)
	_, err = svc.approvals.Transition(ctx, id, core.ActionSend, core.TransitionContext{})
	require.NoError(t, err)

	svc.clock.Advance(8 * 24 * time.Hour)
	monitor := core.NewStaleQuoteMonitor(svc.approvals, core.StaleMonitorConfig{Clock: svc.clock})

	stale, err := monitor.CheckSession(ctx, "user-1", "session-1")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, id, stale[0].Invoice.ID)

	results, err := monitor.Resolve(ctx, []uuid.UUID{id}, core.ActionCustomerReject, "controller")
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	assert.Equal(t, int64(10), stockOf(t, svc.inventory, "A"))
}
