package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InvoiceNumberPrefix is the document type code used for invoice numbers.
const InvoiceNumberPrefix = "INV"

// DocumentService hands out gapless per-year document numbers.
type DocumentService interface {
	// NextNumberTx allocates a number inside the caller's transaction. A rollback
	// of that transaction releases the number, so committed numbers stay gapless.
	NextNumberTx(ctx context.Context, tx pgx.Tx, typeCode string, at time.Time) (string, error)
}

type documentService struct {
	pool *pgxpool.Pool
}

func NewDocumentService(pool *pgxpool.Pool) DocumentService {
	return &documentService{pool: pool}
}

func (s *documentService) NextNumberTx(ctx context.Context, tx pgx.Tx, typeCode string, at time.Time) (string, error) {
	return nextNumberWithTx(ctx, tx, typeCode, at)
}

func nextNumberWithTx(ctx context.Context, tx pgx.Tx, typeCode string, at time.Time) (string, error) {
	year := at.Year()

	// Concurrency-safe gapless sequence generation
	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (type_code, year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (type_code, year)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, typeCode, year).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to generate gapless sequence number: %w", err)
	}

	return FormatDocumentNumber(typeCode, year, lastNumber), nil
}

// FormatDocumentNumber renders e.g. INV-2025-00042.
func FormatDocumentNumber(typeCode string, year int, n int64) string {
	return fmt.Sprintf("%s-%d-%05d", typeCode, year, n)
}
