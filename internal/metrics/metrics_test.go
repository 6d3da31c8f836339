package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"quoteflow/internal/core"
)

func TestClassifyReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "stale", err: fmt.Errorf("approve: %w", core.ErrStaleTransition), want: ReasonStale},
		{name: "invalid", err: core.ErrInvalidTransition, want: ReasonInvalid},
		{name: "signature", err: core.ErrMissingSignature, want: ReasonMissingSignature},
		{name: "rate", err: core.ErrRateUnavailable, want: ReasonRateUnavailable},
		{name: "sku", err: core.ErrUnknownSKU, want: ReasonUnknownSKU},
		{name: "charge", err: core.ErrInvalidCharge, want: ReasonValidation},
		{name: "deadline", err: context.DeadlineExceeded, want: ReasonDeadlineExceeded},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ReasonDBLockTimeout},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: ReasonSerialization},
		{name: "unknown", err: errors.New("boom"), want: ReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyReason(tc.err))
		})
	}
}

func TestTransitionCommitted_CountsMovementsAndWarnings(t *testing.T) {
	m := New(prometheus.NewRegistry(), Config{Environment: "test"})

	m.TransitionCommitted(core.ActionApprove, &core.TransitionResult{
		From:   core.StatusPendingApproval,
		To:     core.StatusApproved,
		Deltas: []core.StockDelta{{SKU: "A", Delta: -3}, {SKU: "B", Delta: -1}},
		Warnings: []core.StockWarning{
			{SKU: "A", Stock: -1, Underflow: true},
			{SKU: "B", Stock: 2, RestockThreshold: 5},
		},
	}, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve", "PENDING_APPROVAL", "APPROVED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stockMovements.WithLabelValues("DEBIT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockWarnings.WithLabelValues("underflow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockWarnings.WithLabelValues("low_stock")))
}

func TestTransitionFailed_UsesReason(t *testing.T) {
	m := New(prometheus.NewRegistry(), Config{})

	m.TransitionFailed(core.ActionApprove, core.ErrStaleTransition, time.Millisecond)
	m.StaleResolved(core.ActionAccept, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionFailures.WithLabelValues("approve", ReasonStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleResolutions.WithLabelValues("accept", "ok")))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *QuoteMetrics
	assert.NotPanics(t, func() {
		m.TransitionCommitted(core.ActionSend, &core.TransitionResult{}, 0)
		m.TransitionFailed(core.ActionSend, core.ErrStaleTransition, 0)
		m.StaleResolved(core.ActionAccept, nil)
	})
}
