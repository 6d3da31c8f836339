package core

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryService owns inventory_stock and its append-only movement ledger.
// Stock only ever changes through signed deltas keyed by an invoice id.
type InventoryService interface {
	// Standalone operations (manage their own transactions).
	GetStock(ctx context.Context, skus ...string) ([]InventoryStock, error)
	GetMovements(ctx context.Context, invoiceID uuid.UUID) ([]StockMovement, error)
	// AdjustStock sets stock and threshold for a sku. Used for seeding and counts.
	AdjustStock(ctx context.Context, sku string, stock, restockThreshold int64) error

	// TX-scoped operations: work within a caller-provided transaction.
	// Used by ApprovalService to keep stock changes atomic with status transitions.

	// ApplyDeltasTx applies deltas relative to the current row value and appends
	// one movement per delta. Deltas are applied in sku order.
	ApplyDeltasTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, action Action, kind MovementType, deltas []StockDelta) ([]StockWarning, error)
	// RestoreOutstandingTx reverses whatever the invoice still has debited and
	// returns the deltas it applied (empty when nothing is outstanding).
	RestoreOutstandingTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, action Action) ([]StockDelta, []StockWarning, error)
}

type inventoryService struct {
	pool *pgxpool.Pool
}

func NewInventoryService(pool *pgxpool.Pool) InventoryService {
	return &inventoryService{pool: pool}
}

// ── Standalone operations ─────────────────────────────────────────────────────

func (s *inventoryService) GetStock(ctx context.Context, skus ...string) ([]InventoryStock, error) {
	query := `
		SELECT sku, stock, restock_threshold, updated_at
		FROM inventory_stock
	`
	var args []any
	if len(skus) > 0 {
		query += " WHERE sku = ANY($1)"
		args = append(args, skus)
	}
	query += " ORDER BY sku"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory stock: %w", err)
	}
	defer rows.Close()

	var out []InventoryStock
	for rows.Next() {
		var st InventoryStock
		if err := rows.Scan(&st.SKU, &st.Stock, &st.RestockThreshold, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inventory stock: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *inventoryService) GetMovements(ctx context.Context, invoiceID uuid.UUID) ([]StockMovement, error) {
	return fetchMovementsQ(ctx, s.pool, invoiceID)
}

func (s *inventoryService) AdjustStock(ctx context.Context, sku string, stock, restockThreshold int64) error {
	if sku == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidConfiguration)
	}
	if restockThreshold < 0 {
		return fmt.Errorf("%w: restock threshold must be >= 0, got %d", ErrInvalidConfiguration, restockThreshold)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inventory_stock (sku, stock, restock_threshold)
		VALUES ($1, $2, $3)
		ON CONFLICT (sku) DO UPDATE
		SET stock = EXCLUDED.stock, restock_threshold = EXCLUDED.restock_threshold, updated_at = NOW()
	`, sku, stock, restockThreshold)
	if err != nil {
		return fmt.Errorf("failed to adjust stock for sku %s: %w", sku, err)
	}
	return nil
}

// ── TX-scoped operations ──────────────────────────────────────────────────────

func (s *inventoryService) ApplyDeltasTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, action Action, kind MovementType, deltas []StockDelta) ([]StockWarning, error) {
	ordered := append([]StockDelta(nil), deltas...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].SKU < ordered[j].SKU })

	var warnings []StockWarning
	for _, d := range ordered {
		if d.Delta == 0 {
			continue
		}
		// Relative update: concurrent writers on the same sku serialize on the
		// row lock and each sees the other's committed value.
		var after, threshold int64
		err := tx.QueryRow(ctx, `
			UPDATE inventory_stock
			SET stock = stock + $1, updated_at = NOW()
			WHERE sku = $2
			RETURNING stock, restock_threshold
		`, d.Delta, d.SKU).Scan(&after, &threshold)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no inventory row for stocked sku %s", ErrUnknownSKU, d.SKU)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to apply stock delta for sku %s: %w", d.SKU, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO inventory_movements (invoice_id, sku, delta, movement_type, action)
			VALUES ($1, $2, $3, $4, $5)
		`, invoiceID, d.SKU, d.Delta, string(kind), string(action))
		if err != nil {
			return nil, fmt.Errorf("failed to insert stock movement for sku %s: %w", d.SKU, err)
		}

		if w := stockWarning(d.SKU, after, threshold); w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings, nil
}

func (s *inventoryService) RestoreOutstandingTx(ctx context.Context, tx pgx.Tx, invoiceID uuid.UUID, action Action) ([]StockDelta, []StockWarning, error) {
	movements, err := fetchMovementsQ(ctx, tx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	deltas := RestoreDeltas(movements)
	if len(deltas) == 0 {
		return nil, nil, nil
	}
	warnings, err := s.ApplyDeltasTx(ctx, tx, invoiceID, action, MovementRestore, deltas)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore stock for invoice %s: %w", invoiceID, err)
	}
	return deltas, warnings, nil
}

func fetchMovementsQ(ctx context.Context, q pgxRowQuerier, invoiceID uuid.UUID) ([]StockMovement, error) {
	rows, err := q.Query(ctx, `
		SELECT id, invoice_id, sku, delta, movement_type, action, created_at
		FROM inventory_movements
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stock movements for invoice %s: %w", invoiceID, err)
	}
	defer rows.Close()

	var out []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.InvoiceID, &m.SKU, &m.Delta, &m.Type, &m.Action, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stock movement: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock movements: %w", err)
	}
	return out, nil
}
