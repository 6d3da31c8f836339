package core

import "errors"

// Error kinds returned by the pricing, tax, currency and approval code.
// Callers match them with errors.Is; the message wrapping them carries detail.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidCharge        = errors.New("invalid charge")
	ErrInvalidLineItem      = errors.New("invalid line item")
	ErrRateUnavailable      = errors.New("no exchange rate set for this month")
	ErrMissingSignature     = errors.New("approval requires a bound signature")
	ErrStaleTransition      = errors.New("stale transition")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrInventoryUnderflow   = errors.New("inventory underflow")
	ErrUnknownSKU           = errors.New("unknown sku")
	ErrUnknownCustomer      = errors.New("unknown customer")
	ErrInvoiceNotFound      = errors.New("invoice not found")
)
