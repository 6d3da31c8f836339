package core_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	schema, err := os.ReadFile("../../migrations/001_quoteflow.sql")
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}

	// Clean and seed test DB
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE invoice_transitions, inventory_movements, invoice_lines, invoices,
		               document_sequences, signatures, exchange_rates, inventory_stock,
		               catalog_items, customers, tax_rules, pricing_settings CASCADE;

		INSERT INTO pricing_settings (id) VALUES (1);
		INSERT INTO tax_rules (id, name, rate_percent, enabled, tier) VALUES
		('nhil',    'NHIL',          2.5, true,  'SUBTOTAL'),
		('getfund', 'GETFund',       2.5, true,  'SUBTOTAL'),
		('covid',   'COVID-19 Levy', 1.0, false, 'SUBTOTAL'),
		('vat',     'VAT',           15,  true,  'LEVY_TOTAL');

		INSERT INTO customers (ref, name) VALUES ('CUST-1', 'Test Customer');

		INSERT INTO catalog_items (sku, name, base_cost, weight, item_type) VALUES
		('A', 'Stocked Widget', 100, 1, 'STOCKED'),
		('B', 'Sourced Gadget', 50, 1, 'SOURCED'),
		('C', 'Low Stock Part', 10, 1, 'STOCKED');

		INSERT INTO inventory_stock (sku, stock, restock_threshold) VALUES
		('A', 10, 2),
		('C', 1, 0);

		INSERT INTO signatures (id, controller_name, subsidiary, signature_image_ref) VALUES
		('sig-1', 'Ama Mensah', 'Accra', 'signatures/ama.png');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}
