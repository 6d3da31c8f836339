package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"quoteflow/internal/clock"
)

// ApprovalService owns the invoice lifecycle. Every transition runs in one
// transaction together with the stock deltas it implies.
type ApprovalService interface {
	// Drafts
	CreateDraft(ctx context.Context, in DraftInput) (*Invoice, error)
	// UpdateDraft replaces customer, lines, charges and notes of a DRAFT invoice.
	UpdateDraft(ctx context.Context, invoiceID uuid.UUID, in DraftInput) (*Invoice, error)

	// Transition applies action to the invoice. On any error nothing is written.
	Transition(ctx context.Context, invoiceID uuid.UUID, action Action, tc TransitionContext) (*TransitionResult, error)

	// Queries
	GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error)
	GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error)
	ListInvoices(ctx context.Context, status *Status) ([]Invoice, error)
	// ListAwaitingSince returns AWAITING_ACCEPTANCE invoices sent before cutoff, oldest first.
	ListAwaitingSince(ctx context.Context, cutoff time.Time) ([]Invoice, error)
	GetTransitions(ctx context.Context, invoiceID uuid.UUID) ([]TransitionRecord, error)
}

// TransitionObserver is told about every transition attempt after it commits
// or rolls back.
type TransitionObserver interface {
	TransitionCommitted(action Action, res *TransitionResult, elapsed time.Duration)
	TransitionFailed(action Action, err error, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) TransitionCommitted(Action, *TransitionResult, time.Duration) {}
func (nopObserver) TransitionFailed(Action, error, time.Duration) {}

// ApprovalOption customizes NewApprovalService.
type ApprovalOption func(*approvalService)

// WithClock sets the clock used for lifecycle timestamps.
func WithClock(c clock.Clock) ApprovalOption {
	return func(s *approvalService) { s.clock = c }
}

// WithObserver registers a transition observer (metrics).
func WithObserver(o TransitionObserver) ApprovalOption {
	return func(s *approvalService) { s.observer = o }
}

type approvalService struct {
	pool      *pgxpool.Pool
	inventory InventoryService
	documents DocumentService
	log       *zap.Logger
	clock     clock.Clock
	observer  TransitionObserver
}

func NewApprovalService(pool *pgxpool.Pool, inventory InventoryService, documents DocumentService, log *zap.Logger, opts ...ApprovalOption) ApprovalService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &approvalService{
		pool:      pool,
		inventory: inventory,
		documents: documents,
		log:       log,
		clock:     clock.System{},
		observer:  nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Drafts ───────────────────────────────────────────────────────────────────

func validateDraft(in DraftInput) (Currency, error) {
	if strings.TrimSpace(in.CustomerRef) == "" {
		return "", fmt.Errorf("%w: customer reference is required", ErrInvalidLineItem)
	}
	currency := in.Currency
	if currency == "" {
		currency = CurrencyGHS
	}
	currency, err := ParseCurrency(string(currency))
	if err != nil {
		return "", err
	}
	// Totals are frozen at submit; this only rejects lines and charges that
	// could never be submitted.
	if _, err := ComputeTotals(in.Lines, in.Charges, nil); err != nil {
		return "", err
	}
	return currency, nil
}

func (s *approvalService) CreateDraft(ctx context.Context, in DraftInput) (*Invoice, error) {
	currency, err := validateDraft(in)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	now := s.clock.Now()
	_, err = tx.Exec(ctx, `
		INSERT INTO invoices (id, customer_ref, customer_name, shipping, handling, discount,
		                      currency, status, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, id, in.CustomerRef, in.CustomerName, in.Charges.Shipping, in.Charges.Handling, in.Charges.Discount,
		string(currency), string(StatusDraft), in.Notes, in.CreatedBy, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	if err := insertInvoiceLinesTx(ctx, tx, id, in.Lines); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice creation: %w", err)
	}

	s.log.Info("invoice draft created",
		zap.String("invoice_id", id.String()),
		zap.String("customer_ref", in.CustomerRef),
		zap.Int("lines", len(in.Lines)),
	)
	return s.GetInvoice(ctx, id)
}

func (s *approvalService) UpdateDraft(ctx context.Context, invoiceID uuid.UUID, in DraftInput) (*Invoice, error) {
	currency, err := validateDraft(in)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status Status
	err = tx.QueryRow(ctx, "SELECT status FROM invoices WHERE id = $1 FOR UPDATE", invoiceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", invoiceID, err)
	}
	if status != StatusDraft {
		return nil, fmt.Errorf("%w: invoice %s cannot be edited: status is %s (must be DRAFT)", ErrStaleTransition, invoiceID, status)
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET customer_ref = $1, customer_name = $2, shipping = $3, handling = $4, discount = $5,
		    currency = $6, notes = $7, updated_at = $8
		WHERE id = $9
	`, in.CustomerRef, in.CustomerName, in.Charges.Shipping, in.Charges.Handling, in.Charges.Discount,
		string(currency), in.Notes, s.clock.Now(), invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %s: %w", invoiceID, err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM invoice_lines WHERE invoice_id = $1", invoiceID); err != nil {
		return nil, fmt.Errorf("failed to clear invoice lines: %w", err)
	}
	if err := insertInvoiceLinesTx(ctx, tx, invoiceID, in.Lines); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice update: %w", err)
	}
	return s.GetInvoice(ctx, invoiceID)
}

func insertInvoiceLinesTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, lines []LineItem) error {
	for i, l := range lines {
		itemType := l.ItemType
		if itemType == "" {
			itemType = ItemTypeStocked
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO invoice_lines (invoice_id, line_number, sku, name, quantity, unit_price, is_backorder, item_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, invoiceID, i+1, l.SKU, l.Name, l.Quantity, l.UnitPrice, l.IsBackorder, string(itemType))
		if err != nil {
			return fmt.Errorf("failed to insert invoice line %d: %w", i+1, err)
		}
	}
	return nil
}

// ── Transitions ──────────────────────────────────────────────────────────────

func (s *approvalService) Transition(ctx context.Context, invoiceID uuid.UUID, action Action, tc TransitionContext) (*TransitionResult, error) {
	start := time.Now()
	res, err := s.transition(ctx, invoiceID, action, tc)
	elapsed := time.Since(start)

	if err != nil {
		s.observer.TransitionFailed(action, err, elapsed)
		s.log.Warn("invoice transition failed",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("action", string(action)),
			zap.String("actor", tc.Actor),
			zap.Error(err),
		)
		return nil, err
	}

	s.observer.TransitionCommitted(action, res, elapsed)
	s.log.Info("invoice transition committed",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("action", string(action)),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
		zap.String("actor", tc.Actor),
		zap.Int("stock_deltas", len(res.Deltas)),
	)
	for _, w := range res.Warnings {
		s.log.Warn("stock warning",
			zap.String("invoice_id", invoiceID.String()),
			zap.String("sku", w.SKU),
			zap.Int64("stock", w.Stock),
			zap.Int64("restock_threshold", w.RestockThreshold),
			zap.Bool("underflow", w.Underflow),
		)
	}
	return res, nil
}

func (s *approvalService) transition(ctx context.Context, invoiceID uuid.UUID, action Action, tc TransitionContext) (*TransitionResult, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the invoice row; a concurrent transition on the same invoice waits
	// here and then sees the committed status.
	inv, err := scanInvoice(tx.QueryRow(ctx, selectInvoiceSQL+" WHERE id = $1 FOR UPDATE", invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", invoiceID, err)
	}
	if tc.ExpectedStatus != "" && inv.Status != tc.ExpectedStatus {
		return nil, fmt.Errorf("%w: invoice %s is %s, expected %s", ErrStaleTransition, invoiceID, inv.Status, tc.ExpectedStatus)
	}

	to, effect, err := PlanTransition(inv.Status, action)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: %w", invoiceID, err)
	}

	lines, err := fetchInvoiceLinesQ(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines

	now := s.clock.Now()
	res := &TransitionResult{From: inv.Status, To: to}

	if err := s.applyActionTx(ctx, tx, inv, action, tc, now); err != nil {
		return nil, err
	}

	switch effect {
	case StockEffectDebit:
		res.Deltas = DebitDeltas(inv.Lines)
		res.Warnings, err = s.inventory.ApplyDeltasTx(ctx, tx, invoiceID, action, MovementDebit, res.Deltas)
		if err != nil {
			return nil, fmt.Errorf("stock debit failed: %w", err)
		}
	case StockEffectRestore:
		res.Deltas, res.Warnings, err = s.inventory.RestoreOutstandingTx(ctx, tx, invoiceID, action)
		if err != nil {
			return nil, fmt.Errorf("stock restore failed: %w", err)
		}
	}

	inv.Status = to
	inv.UpdatedAt = now
	if err := updateInvoiceTx(ctx, tx, inv); err != nil {
		return nil, err
	}

	var reason *string
	if tc.Reason != "" {
		reason = &tc.Reason
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO invoice_transitions (invoice_id, action, from_status, to_status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, invoiceID, string(action), string(res.From), string(to), tc.Actor, reason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to record transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit %s on invoice %s: %w", action, invoiceID, err)
	}

	res.Invoice, err = s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyActionTx sets the fields each action owns on the locked invoice.
func (s *approvalService) applyActionTx(ctx context.Context, tx pgx.Tx, inv *Invoice, action Action, tc TransitionContext, now time.Time) error {
	switch action {
	case ActionSubmit:
		return s.freezeSubmissionTx(ctx, tx, inv, tc, now)

	case ActionApprove:
		if tc.Signature != nil {
			if strings.TrimSpace(tc.Signature.ID) == "" {
				return fmt.Errorf("%w: signature id is empty", ErrMissingSignature)
			}
			sig, err := fetchSignatureQ(ctx, tx, tc.Signature.ID)
			if err != nil {
				return err
			}
			inv.SignatureID = &sig.ID
			approvedBy := sig.ControllerName
			inv.ApprovedBy = &approvedBy
		} else if inv.SignatureID == nil {
			return fmt.Errorf("%w: invoice %s", ErrMissingSignature, inv.ID)
		}
		if inv.ApprovedBy == nil && tc.Actor != "" {
			actor := tc.Actor
			inv.ApprovedBy = &actor
		}
		inv.ApprovedAt = &now

	case ActionReject:
		inv.RejectedAt = &now
		inv.RejectReason = optionalString(tc.Reason)

	case ActionSend:
		inv.SentAt = &now

	case ActionAccept:
		inv.RespondedAt = &now

	case ActionCustomerReject:
		inv.RespondedAt = &now
		inv.RejectReason = optionalString(tc.Reason)

	case ActionRevise:
		// The number survives; approval and response metadata do not.
		inv.SignatureID = nil
		inv.ApprovedBy = nil
		inv.ApprovedAt = nil
		inv.RejectedAt = nil
		inv.RejectReason = nil
		inv.SentAt = nil
		inv.RespondedAt = nil

	case ActionMarkPaid:
		inv.PaidAt = &now
	}
	return nil
}

// freezeSubmissionTx computes and freezes totals and the tax snapshot, pins the
// exchange rate of a USD invoice and assigns the number on first submission.
func (s *approvalService) freezeSubmissionTx(ctx context.Context, tx pgx.Tx, inv *Invoice, tc TransitionContext, now time.Time) error {
	if len(inv.Lines) == 0 {
		return fmt.Errorf("%w: invoice %s has no lines", ErrInvalidLineItem, inv.ID)
	}

	rules := tc.TaxRules
	if rules == nil {
		if inv.SubmittedAt == nil {
			return fmt.Errorf("%w: no tax rules supplied and invoice %s has no previous snapshot", ErrInvalidConfiguration, inv.ID)
		}
		rules = inv.TaxSnapshot
	}
	snapshot := NewTaxRuleSet(rules).Snapshot()

	totals, err := ComputeTotals(inv.Lines, inv.Charges, snapshot)
	if err != nil {
		return fmt.Errorf("invoice %s: %w", inv.ID, err)
	}

	inv.ExchangeRateAtCreation = nil
	if inv.Currency == CurrencyUSD {
		rate, err := tc.Rates.RateFor(now)
		if err != nil {
			return fmt.Errorf("invoice %s: %w", inv.ID, err)
		}
		inv.ExchangeRateAtCreation = &rate
	}

	if inv.Number == "" {
		num, err := s.documents.NextNumberTx(ctx, tx, InvoiceNumberPrefix, now)
		if err != nil {
			return err
		}
		inv.Number = num
	}

	inv.TaxSnapshot = snapshot
	inv.Totals = totals
	inv.SubmittedAt = &now
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func updateInvoiceTx(ctx context.Context, tx pgx.Tx, inv *Invoice) error {
	snapshot, err := json.Marshal(inv.TaxSnapshot)
	if err != nil {
		return fmt.Errorf("failed to encode tax snapshot: %w", err)
	}
	if inv.TaxSnapshot == nil {
		snapshot = []byte("[]")
	}
	totals, err := json.Marshal(inv.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode totals: %w", err)
	}
	var rate decimal.NullDecimal
	if inv.ExchangeRateAtCreation != nil {
		rate = decimal.NewNullDecimal(*inv.ExchangeRateAtCreation)
	}
	var number *string
	if inv.Number != "" {
		number = &inv.Number
	}

	_, err = tx.Exec(ctx, `
		UPDATE invoices
		SET status = $1, invoice_number = $2, tax_snapshot = $3, totals = $4,
		    exchange_rate_at_creation = $5, signature_id = $6, approved_by = $7, approved_at = $8,
		    rejected_at = $9, reject_reason = $10, submitted_at = $11, sent_at = $12,
		    responded_at = $13, paid_at = $14, updated_at = $15
		WHERE id = $16
	`, string(inv.Status), number, snapshot, totals,
		rate, inv.SignatureID, inv.ApprovedBy, inv.ApprovedAt,
		inv.RejectedAt, inv.RejectReason, inv.SubmittedAt, inv.SentAt,
		inv.RespondedAt, inv.PaidAt, inv.UpdatedAt, inv.ID)
	if err != nil {
		return fmt.Errorf("failed to update invoice %s: %w", inv.ID, err)
	}
	return nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

const selectInvoiceSQL = `
	SELECT id, COALESCE(invoice_number, ''), customer_ref, customer_name,
	       shipping, handling, discount, tax_snapshot, totals, currency,
	       exchange_rate_at_creation, status, notes, signature_id, approved_by,
	       approved_at, rejected_at, reject_reason, submitted_at, sent_at,
	       responded_at, paid_at, created_by, created_at, updated_at
	FROM invoices`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var snapshot, totals []byte
	var rate decimal.NullDecimal
	if err := row.Scan(
		&inv.ID, &inv.Number, &inv.CustomerRef, &inv.CustomerName,
		&inv.Charges.Shipping, &inv.Charges.Handling, &inv.Charges.Discount, &snapshot, &totals, &inv.Currency,
		&rate, &inv.Status, &inv.Notes, &inv.SignatureID, &inv.ApprovedBy,
		&inv.ApprovedAt, &inv.RejectedAt, &inv.RejectReason, &inv.SubmittedAt, &inv.SentAt,
		&inv.RespondedAt, &inv.PaidAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if rate.Valid {
		r := rate.Decimal
		inv.ExchangeRateAtCreation = &r
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &inv.TaxSnapshot); err != nil {
			return nil, fmt.Errorf("failed to decode tax snapshot: %w", err)
		}
	}
	inv.Totals = zeroTotals()
	if len(totals) > 0 {
		if err := json.Unmarshal(totals, &inv.Totals); err != nil {
			return nil, fmt.Errorf("failed to decode totals: %w", err)
		}
	}
	return &inv, nil
}

func (s *approvalService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	inv, err := scanInvoice(s.pool.QueryRow(ctx, selectInvoiceSQL+" WHERE id = $1", invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
		}
		return nil, fmt.Errorf("failed to fetch invoice %s: %w", invoiceID, err)
	}

	lines, err := fetchInvoiceLinesQ(ctx, s.pool, invoiceID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (s *approvalService) GetInvoiceByNumber(ctx context.Context, number string) (*Invoice, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, "SELECT id FROM invoices WHERE invoice_number = $1", number).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, number)
		}
		return nil, fmt.Errorf("failed to lookup invoice by number: %w", err)
	}
	return s.GetInvoice(ctx, id)
}

func (s *approvalService) ListInvoices(ctx context.Context, status *Status) ([]Invoice, error) {
	query := selectInvoiceSQL
	var args []any
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC"
	return s.queryInvoices(ctx, query, args...)
}

func (s *approvalService) ListAwaitingSince(ctx context.Context, cutoff time.Time) ([]Invoice, error) {
	return s.queryInvoices(ctx,
		selectInvoiceSQL+" WHERE status = $1 AND sent_at < $2 ORDER BY sent_at",
		string(StatusAwaitingAcceptance), cutoff,
	)
}

// queryInvoices returns invoice headers without lines.
func (s *approvalService) queryInvoices(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return out, nil
}

func (s *approvalService) GetTransitions(ctx context.Context, invoiceID uuid.UUID) ([]TransitionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, action, from_status, to_status, actor, reason, created_at
		FROM invoice_transitions
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		if err := rows.Scan(&r.ID, &r.InvoiceID, &r.Action, &r.From, &r.To, &r.Actor, &r.Reason, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func fetchInvoiceLinesQ(ctx context.Context, q pgxRowQuerier, invoiceID uuid.UUID) ([]LineItem, error) {
	rows, err := q.Query(ctx, `
		SELECT sku, name, quantity, unit_price, is_backorder, item_type
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY line_number
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.SKU, &l.Name, &l.Quantity, &l.UnitPrice, &l.IsBackorder, &l.ItemType); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoice lines: %w", err)
	}
	return lines, nil
}
