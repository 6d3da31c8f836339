package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteflow/internal/clock"
	"quoteflow/internal/core"
)

type fakeStaleStore struct {
	mu          sync.Mutex
	invoices    []core.Invoice
	listCalls   int
	listErr     error
	failIDs     map[uuid.UUID]error
	transitions []fakeTransition
	lastCutoff  time.Time
}

type fakeTransition struct {
	id     uuid.UUID
	action core.Action
	tc     core.TransitionContext
}

func (f *fakeStaleStore) ListAwaitingSince(_ context.Context, cutoff time.Time) ([]core.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastCutoff = cutoff
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []core.Invoice
	for _, inv := range f.invoices {
		if inv.Status == core.StatusAwaitingAcceptance && inv.SentAt != nil && inv.SentAt.Before(cutoff) {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStaleStore) Transition(_ context.Context, id uuid.UUID, action core.Action, tc core.TransitionContext) (*core.TransitionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, fakeTransition{id: id, action: action, tc: tc})
	if err := f.failIDs[id]; err != nil {
		return nil, err
	}
	to, _, err := core.PlanTransition(core.StatusAwaitingAcceptance, action)
	if err != nil {
		return nil, err
	}
	return &core.TransitionResult{From: core.StatusAwaitingAcceptance, To: to}, nil
}

type countingRecorder struct {
	mu     sync.Mutex
	ok     int
	failed int
}

func (r *countingRecorder) StaleResolved(_ core.Action, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func sentInvoice(sentAt time.Time) core.Invoice {
	return core.Invoice{ID: uuid.New(), Status: core.StatusAwaitingAcceptance, SentAt: &sentAt}
}

func TestStaleQuoteMonitor_CheckSessionOncePerSession(t *testing.T) {
	now := time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	store := &fakeStaleStore{invoices: []core.Invoice{
		sentInvoice(now.Add(-10 * 24 * time.Hour)),
		sentInvoice(now.Add(-2 * 24 * time.Hour)),
	}}
	m := core.NewStaleQuoteMonitor(store, core.StaleMonitorConfig{Clock: clk})
	ctx := context.Background()

	first, err := m.CheckSession(ctx, "user-1", "session-1")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 10, first[0].DaysWaiting)
	assert.Equal(t, now.Add(-core.DefaultStaleThreshold), store.lastCutoff)

	again, err := m.CheckSession(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, 1, store.listCalls)

	// A new session, or another user, gets its own check.
	other, err := m.CheckSession(ctx, "user-1", "session-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
	other, err = m.CheckSession(ctx, "user-2", "session-1")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	m.EndSession("user-1", "session-1")
	clk.Advance(6 * 24 * time.Hour)
	later, err := m.CheckSession(ctx, "user-1", "session-1")
	require.NoError(t, err)
	assert.Len(t, later, 2)
}

func TestStaleQuoteMonitor_ConcurrentChecksFireOnce(t *testing.T) {
	now := time.Now().UTC()
	store := &fakeStaleStore{invoices: []core.Invoice{sentInvoice(now.Add(-30 * 24 * time.Hour))}}
	m := core.NewStaleQuoteMonitor(store, core.StaleMonitorConfig{Clock: clock.NewFakeClock(now)})

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.CheckSession(context.Background(), "user-1", "session-1")
			if err == nil && len(got) > 0 {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fired)
}

func TestStaleQuoteMonitor_FailedCheckCanRetry(t *testing.T) {
	store := &fakeStaleStore{listErr: errors.New("connection reset")}
	m := core.NewStaleQuoteMonitor(store, core.StaleMonitorConfig{})

	_, err := m.CheckSession(context.Background(), "u", "s")
	require.Error(t, err)

	store.mu.Lock()
	store.listErr = nil
	store.mu.Unlock()
	_, err = m.CheckSession(context.Background(), "u", "s")
	require.NoError(t, err)
	assert.Equal(t, 2, store.listCalls)
}

func TestStaleQuoteMonitor_CustomThreshold(t *testing.T) {
	now := time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC)
	store := &fakeStaleStore{invoices: []core.Invoice{sentInvoice(now.Add(-3 * 24 * time.Hour))}}
	m := core.NewStaleQuoteMonitor(store, core.StaleMonitorConfig{Threshold: 48 * time.Hour, Clock: clock.NewFakeClock(now)})

	got, err := m.ListStale(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 48*time.Hour, m.Threshold())
}

func TestStaleQuoteMonitor_ResolveCollectsPerInvoiceResults(t *testing.T) {
	ids := make([]uuid.UUID, 6)
	for i := range ids {
		ids[i] = uuid.New()
	}
	staleErr := fmt.Errorf("invoice %s: %w", ids[2], core.ErrStaleTransition)
	store := &fakeStaleStore{failIDs: map[uuid.UUID]error{ids[2]: staleErr}}
	rec := &countingRecorder{}
	m := core.NewStaleQuoteMonitor(store, core.StaleMonitorConfig{Concurrency: 2, Recorder: rec})

	results, err := m.Resolve(context.Background(), ids, core.ActionCustomerReject, "controller")
	require.NoError(t, err)
	require.Len(t, results, len(ids))

	for i, r := range results {
		assert.Equal(t, ids[i], r.InvoiceID)
		if i == 2 {
			assert.ErrorIs(t, r.Err, core.ErrStaleTransition)
			assert.NotEmpty(t, r.Error)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, core.StatusCustomerRejected, r.Result.To)
	}

	require.Len(t, store.transitions, len(ids))
	for _, tr := range store.transitions {
		assert.Equal(t, core.StatusAwaitingAcceptance, tr.tc.ExpectedStatus)
		assert.Equal(t, "controller", tr.tc.Actor)
	}
	assert.Equal(t, 5, rec.ok)
	assert.Equal(t, 1, rec.failed)
}

func TestStaleQuoteMonitor_ResolveRejectsOtherActions(t *testing.T) {
	m := core.NewStaleQuoteMonitor(&fakeStaleStore{}, core.StaleMonitorConfig{})

	_, err := m.Resolve(context.Background(), []uuid.UUID{uuid.New()}, core.ActionApprove, "x")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}
