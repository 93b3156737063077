package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Document number prefixes.
const (
	NumSale        = "SL"
	NumPurchase    = "PO"
	NumARInvoice   = "INV"
	NumAPInvoice   = "BILL"
	NumPayment     = "PAY"
	NumAdjustment  = "ADJ"
	NumCreditMemo  = "CM"
	NumConsignment = "CR"
)

// documentNumberTx issues the next document number for a type within a
// year, gaplessly and concurrency-safe: the sequence row is upserted and
// bumped in one statement, so concurrent callers serialize on the row lock.
func documentNumberTx(ctx context.Context, tx pgx.Tx, typeCode string, date time.Time) (string, error) {
	year := date.Year()

	var lastNumber int64
	err := tx.QueryRow(ctx, `
		INSERT INTO document_sequences (type_code, year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (type_code, year)
		DO UPDATE SET last_number = document_sequences.last_number + 1
		RETURNING last_number
	`, typeCode, year).Scan(&lastNumber)
	if err != nil {
		return "", fmt.Errorf("failed to generate document number for %s: %w", typeCode, err)
	}

	return fmt.Sprintf("%s-%d-%05d", typeCode, year, lastNumber), nil
}
