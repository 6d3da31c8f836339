package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is an invoice lifecycle status.
//
//	DRAFT → PENDING_APPROVAL → APPROVED → AWAITING_ACCEPTANCE → CUSTOMER_ACCEPTED → PAID
//	                         ↘ REJECTED                      ↘ CUSTOMER_REJECTED
//	REJECTED, CUSTOMER_REJECTED → DRAFT (revise)
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusPendingApproval    Status = "PENDING_APPROVAL"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusAwaitingAcceptance Status = "AWAITING_ACCEPTANCE"
	StatusCustomerAccepted   Status = "CUSTOMER_ACCEPTED"
	StatusCustomerRejected   Status = "CUSTOMER_REJECTED"
	StatusPaid               Status = "PAID"
)

// Action is a request to move an invoice to another status.
type Action string

const (
	ActionSubmit         Action = "submit"
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionSend           Action = "send"
	ActionAccept         Action = "accept"
	ActionCustomerReject Action = "customer_reject"
	ActionRevise         Action = "revise"
	ActionMarkPaid       Action = "mark_paid"
)

// Customer is an opaque customer reference with a display name.
type Customer struct {
	Ref  string `json:"ref"`
	Name string `json:"name"`
}

// Signature is a controller's stored approval signature.
type Signature struct {
	ID                string `json:"id"`
	ControllerName    string `json:"controller_name"`
	Subsidiary        string `json:"subsidiary"`
	SignatureImageRef string `json:"signature_image_ref"`
}

// Invoice is a submitted quote. Totals and TaxSnapshot are written only by
// submit and are never recomputed from live configuration afterwards.
type Invoice struct {
	ID                     uuid.UUID        `json:"id"`
	Number                 string           `json:"number,omitempty"` // assigned at first submission
	CustomerRef            string           `json:"customer_ref"`
	CustomerName           string           `json:"customer_name"`
	Lines                  []LineItem       `json:"lines"`
	Charges                OrderCharges     `json:"charges"`
	TaxSnapshot            []TaxRule        `json:"tax_snapshot"`
	Totals                 Totals           `json:"totals"`
	Currency               Currency         `json:"currency"`
	ExchangeRateAtCreation *decimal.Decimal `json:"exchange_rate_at_creation,omitempty"`
	Status                 Status           `json:"status"`
	Notes                  string           `json:"notes,omitempty"`

	SignatureID  *string    `json:"signature_id,omitempty"`
	ApprovedBy   *string    `json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	RejectedAt   *time.Time `json:"rejected_at,omitempty"`
	RejectReason *string    `json:"reject_reason,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	RespondedAt  *time.Time `json:"responded_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DraftInput creates or replaces the editable part of an invoice.
type DraftInput struct {
	CustomerRef  string
	CustomerName string
	Currency     Currency
	Lines        []LineItem
	Charges      OrderCharges
	Notes        string
	CreatedBy    string
}

// TransitionContext carries the caller-supplied inputs of a transition.
type TransitionContext struct {
	// Actor is recorded on the audit row.
	Actor string

	// ExpectedStatus, when set, must equal the locked row's status.
	ExpectedStatus Status

	// Signature is bound by approve. Required unless one is already bound.
	Signature *Signature

	// TaxRules is the snapshot frozen by submit. Nil keeps the previous snapshot.
	TaxRules []TaxRule

	// Rates supplies the current month's rate when submitting a USD invoice.
	Rates RateTable

	// Reason is stored on reject/customer_reject.
	Reason string
}

// TransitionResult is the outcome of a committed transition.
type TransitionResult struct {
	Invoice  *Invoice       `json:"invoice"`
	From     Status         `json:"from"`
	To       Status         `json:"to"`
	Deltas   []StockDelta   `json:"deltas,omitempty"`
	Warnings []StockWarning `json:"warnings,omitempty"`
}

// TransitionRecord is one row of an invoice's transition audit trail.
type TransitionRecord struct {
	ID        int64     `json:"id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
	Action    Action    `json:"action"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Actor     string    `json:"actor"`
	Reason    *string   `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
