package core

import (
	"time"

	"github.com/google/uuid"
)

// InventoryStock is the on-hand count of a sku. Stock may go negative to
// represent a backorder.
type InventoryStock struct {
	SKU              string    `json:"sku"`
	Stock            int64     `json:"stock"`
	RestockThreshold int64     `json:"restock_threshold"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// MovementType labels a stock movement row.
type MovementType string

const (
	MovementDebit   MovementType = "DEBIT"
	MovementRestore MovementType = "RESTORE"
)

// StockMovement is an append-only record of one signed delta applied to a sku
// by one invoice transition.
type StockMovement struct {
	ID        int64        `json:"id"`
	InvoiceID uuid.UUID    `json:"invoice_id"`
	SKU       string       `json:"sku"`
	Delta     int64        `json:"delta"`
	Type      MovementType `json:"type"`
	Action    Action       `json:"action"`
	CreatedAt time.Time    `json:"created_at"`
}

// StockDelta is a signed change to apply to a sku.
type StockDelta struct {
	SKU   string `json:"sku"`
	Delta int64  `json:"delta"`
}

// StockWarning flags a sku left below zero or at its restock threshold.
// Neither blocks the transition.
type StockWarning struct {
	SKU              string `json:"sku"`
	Stock            int64  `json:"stock"`
	RestockThreshold int64  `json:"restock_threshold"`
	Underflow        bool   `json:"underflow"`
}

func (w StockWarning) Error() string {
	if w.Underflow {
		return ErrInventoryUnderflow.Error() + ": " + w.SKU
	}
	return "stock at or below restock threshold: " + w.SKU
}

// Unwrap lets errors.Is(w, ErrInventoryUnderflow) identify backorders.
func (w StockWarning) Unwrap() error {
	if w.Underflow {
		return ErrInventoryUnderflow
	}
	return nil
}

func stockWarning(sku string, after, threshold int64) *StockWarning {
	if after < 0 {
		return &StockWarning{SKU: sku, Stock: after, RestockThreshold: threshold, Underflow: true}
	}
	if after <= threshold {
		return &StockWarning{SKU: sku, Stock: after, RestockThreshold: threshold}
	}
	return nil
}
