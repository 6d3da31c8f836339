package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"

	"quoteflow/internal/core"
)

// Low-cardinality failure reasons.
const (
	ReasonStale            = "stale"
	ReasonInvalid          = "invalid_transition"
	ReasonMissingSignature = "missing_signature"
	ReasonRateUnavailable  = "rate_unavailable"
	ReasonUnknownSKU       = "unknown_sku"
	ReasonNotFound         = "not_found"
	ReasonValidation       = "validation"
	ReasonDeadlineExceeded = "deadline_exceeded"
	ReasonDBLockTimeout    = "db_lock_timeout"
	ReasonSerialization    = "serialization_failure"
	ReasonUnknown          = "unknown"
)

// Config labels every series.
type Config struct {
	ServiceName string
	Environment string
}

// QuoteMetrics records invoice workflow signals. It satisfies
// core.TransitionObserver.
type QuoteMetrics struct {
	transitions        *prometheus.CounterVec
	transitionFailures *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	stockMovements     *prometheus.CounterVec
	stockWarnings      *prometheus.CounterVec
	staleResolutions   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *QuoteMetrics
)

// Default returns the process-wide metrics registered on the default registerer.
func Default(cfg Config) *QuoteMetrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer, cfg)
	})
	return defaultMetrics
}

// New registers a fresh set of collectors on registerer.
func New(registerer prometheus.Registerer, cfg Config) *QuoteMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "quoteflow"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &QuoteMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_invoice_transitions_total",
			Help:        "Committed invoice transitions by action and status pair.",
			ConstLabels: constLabels,
		}, []string{"action", "from", "to"}),
		transitionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_invoice_transition_failures_total",
			Help:        "Rolled back invoice transitions by low-cardinality reason.",
			ConstLabels: constLabels,
		}, []string{"action", "reason"}),
		transitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "quoteflow_invoice_transition_duration_seconds",
			Help:        "Invoice transition latency including row locks.",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"action"}),
		stockMovements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_stock_movements_total",
			Help:        "Inventory movement rows written by invoice transitions.",
			ConstLabels: constLabels,
		}, []string{"type"}),
		stockWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_stock_warnings_total",
			Help:        "Skus left negative or at their restock threshold.",
			ConstLabels: constLabels,
		}, []string{"kind"}),
		staleResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "quoteflow_stale_resolutions_total",
			Help:        "Bulk stale quote resolutions by outcome and result.",
			ConstLabels: constLabels,
		}, []string{"outcome", "result"}),
	}

	registerer.MustRegister(
		m.transitions,
		m.transitionFailures,
		m.transitionDuration,
		m.stockMovements,
		m.stockWarnings,
		m.staleResolutions,
	)
	return m
}

// TransitionCommitted implements core.TransitionObserver.
func (m *QuoteMetrics) TransitionCommitted(action core.Action, res *core.TransitionResult, elapsed time.Duration) {
	if m == nil || res == nil {
		return
	}
	m.transitions.WithLabelValues(string(action), string(res.From), string(res.To)).Inc()
	m.transitionDuration.WithLabelValues(string(action)).Observe(elapsed.Seconds())

	movementType := string(core.MovementDebit)
	if action != core.ActionApprove {
		movementType = string(core.MovementRestore)
	}
	if n := len(res.Deltas); n > 0 {
		m.stockMovements.WithLabelValues(movementType).Add(float64(n))
	}
	for _, w := range res.Warnings {
		kind := "low_stock"
		if w.Underflow {
			kind = "underflow"
		}
		m.stockWarnings.WithLabelValues(kind).Inc()
	}
}

// TransitionFailed implements core.TransitionObserver.
func (m *QuoteMetrics) TransitionFailed(action core.Action, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.transitionFailures.WithLabelValues(string(action), ClassifyReason(err)).Inc()
	m.transitionDuration.WithLabelValues(string(action)).Observe(elapsed.Seconds())
}

// StaleResolved records one bulk resolution attempt.
func (m *QuoteMetrics) StaleResolved(outcome core.Action, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = ClassifyReason(err)
	}
	m.staleResolutions.WithLabelValues(string(outcome), result).Inc()
}

// ClassifyReason maps a transition error to a low-cardinality reason.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case errors.Is(err, core.ErrStaleTransition):
		return ReasonStale
	case errors.Is(err, core.ErrInvalidTransition):
		return ReasonInvalid
	case errors.Is(err, core.ErrMissingSignature):
		return ReasonMissingSignature
	case errors.Is(err, core.ErrRateUnavailable):
		return ReasonRateUnavailable
	case errors.Is(err, core.ErrUnknownSKU):
		return ReasonUnknownSKU
	case errors.Is(err, core.ErrInvoiceNotFound):
		return ReasonNotFound
	case errors.Is(err, core.ErrInvalidConfiguration),
		errors.Is(err, core.ErrInvalidCharge),
		errors.Is(err, core.ErrInvalidLineItem):
		return ReasonValidation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return ReasonDBLockTimeout
		case "40001", "40P01":
			return ReasonSerialization
		}
	}
	return ReasonUnknown
}
