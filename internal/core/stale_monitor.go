package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quoteflow/internal/clock"
)

// DefaultStaleThreshold is how long a sent quote may go unanswered.
const DefaultStaleThreshold = 7 * 24 * time.Hour

// StaleInvoiceStore is the part of ApprovalService the monitor needs.
type StaleInvoiceStore interface {
	ListAwaitingSince(ctx context.Context, cutoff time.Time) ([]Invoice, error)
	Transition(ctx context.Context, invoiceID uuid.UUID, action Action, tc TransitionContext) (*TransitionResult, error)
}

// ResolutionRecorder is told the result of every bulk resolution.
type ResolutionRecorder interface {
	StaleResolved(outcome Action, err error)
}

// StaleQuote is an invoice still awaiting a customer response past the threshold.
type StaleQuote struct {
	Invoice     Invoice `json:"invoice"`
	DaysWaiting int     `json:"days_waiting"`
}

// ResolveResult is the per-invoice outcome of a bulk resolution.
type ResolveResult struct {
	InvoiceID uuid.UUID         `json:"invoice_id"`
	Result    *TransitionResult `json:"result,omitempty"`
	Err       error             `json:"-"`
	Error     string            `json:"error,omitempty"`
}

// StaleMonitorConfig configures a StaleQuoteMonitor. Zero values take defaults.
type StaleMonitorConfig struct {
	Threshold   time.Duration
	Concurrency int
	Clock       clock.Clock
	Log         *zap.Logger
	Recorder    ResolutionRecorder
}

type sessionKey struct {
	userID    string
	sessionID string
}

// StaleQuoteMonitor surfaces unanswered quotes once per user session and
// resolves them in bulk.
type StaleQuoteMonitor struct {
	store       StaleInvoiceStore
	threshold   time.Duration
	concurrency int
	clock       clock.Clock
	log         *zap.Logger
	recorder    ResolutionRecorder

	mu      sync.Mutex
	checked map[sessionKey]struct{}
}

func NewStaleQuoteMonitor(store StaleInvoiceStore, cfg StaleMonitorConfig) *StaleQuoteMonitor {
	m := &StaleQuoteMonitor{
		store:       store,
		threshold:   cfg.Threshold,
		concurrency: cfg.Concurrency,
		clock:       cfg.Clock,
		log:         cfg.Log,
		recorder:    cfg.Recorder,
		checked:     make(map[sessionKey]struct{}),
	}
	if m.threshold <= 0 {
		m.threshold = DefaultStaleThreshold
	}
	if m.concurrency <= 0 {
		m.concurrency = 4
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m
}

// Threshold returns the configured staleness threshold.
func (m *StaleQuoteMonitor) Threshold() time.Duration {
	return m.threshold
}

// CheckSession returns the stale quotes the first time it is called for a
// (user, session) pair and nothing on later calls. A failed lookup does not
// consume the session's check.
func (m *StaleQuoteMonitor) CheckSession(ctx context.Context, userID, sessionID string) ([]StaleQuote, error) {
	key := sessionKey{userID: userID, sessionID: sessionID}

	m.mu.Lock()
	if _, done := m.checked[key]; done {
		m.mu.Unlock()
		return nil, nil
	}
	m.checked[key] = struct{}{}
	m.mu.Unlock()

	stale, err := m.ListStale(ctx)
	if err != nil {
		m.mu.Lock()
		delete(m.checked, key)
		m.mu.Unlock()
		return nil, err
	}

	if len(stale) > 0 {
		m.log.Info("stale quotes surfaced",
			zap.String("user_id", userID),
			zap.String("session_id", sessionID),
			zap.Int("count", len(stale)),
		)
	}
	return stale, nil
}

// EndSession forgets a session so its memory is released.
func (m *StaleQuoteMonitor) EndSession(userID, sessionID string) {
	m.mu.Lock()
	delete(m.checked, sessionKey{userID: userID, sessionID: sessionID})
	m.mu.Unlock()
}

// ListStale returns every stale quote regardless of session.
func (m *StaleQuoteMonitor) ListStale(ctx context.Context) ([]StaleQuote, error) {
	now := m.clock.Now()
	invoices, err := m.store.ListAwaitingSince(ctx, now.Add(-m.threshold))
	if err != nil {
		return nil, fmt.Errorf("failed to list stale quotes: %w", err)
	}

	out := make([]StaleQuote, 0, len(invoices))
	for _, inv := range invoices {
		days := 0
		if inv.SentAt != nil {
			days = int(now.Sub(*inv.SentAt) / (24 * time.Hour))
		}
		out = append(out, StaleQuote{Invoice: inv, DaysWaiting: days})
	}
	return out, nil
}

// Resolve applies outcome (accept or customer_reject) to every id, each in its
// own transaction guarded by ExpectedStatus = AWAITING_ACCEPTANCE. One failure
// does not stop the others; results are returned in input order.
func (m *StaleQuoteMonitor) Resolve(ctx context.Context, ids []uuid.UUID, outcome Action, actor string) ([]ResolveResult, error) {
	if outcome != ActionAccept && outcome != ActionCustomerReject {
		return nil, fmt.Errorf("%w: bulk resolution outcome must be %s or %s, got %q",
			ErrInvalidTransition, ActionAccept, ActionCustomerReject, outcome)
	}

	results := make([]ResolveResult, len(ids))
	var g errgroup.Group
	g.SetLimit(m.concurrency)

	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res, err := m.store.Transition(ctx, id, outcome, TransitionContext{
				Actor:          actor,
				ExpectedStatus: StatusAwaitingAcceptance,
				Reason:         "bulk stale quote resolution",
			})
			results[i] = ResolveResult{InvoiceID: id, Result: res, Err: err}
			if err != nil {
				results[i].Error = err.Error()
			}
			if m.recorder != nil {
				m.recorder.StaleResolved(outcome, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	m.log.Info("stale quotes resolved",
		zap.String("outcome", string(outcome)),
		zap.String("actor", actor),
		zap.Int("requested", len(ids)),
		zap.Int("failed", failed),
	)
	return results, nil
}
