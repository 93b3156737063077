package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// VoidService undoes posted documents without deleting history: the
// document and its journal entry get void flags, a reversing entry swaps
// the original debits and credits, and inventory effects are rolled back.
// Each void runs in a single transaction.
type VoidService interface {
	Void(ctx context.Context, input VoidInput) error
}

type VoidInput struct {
	DocType  string `validate:"required,oneof=SALE PURCHASE AR_INVOICE AP_INVOICE PAYMENT CREDIT_MEMO STOCK_ADJUSTMENT JOURNAL"`
	DocID    int    `validate:"required"`
	Reason   string `validate:"required"`
	VoidedBy string `validate:"required"`
}

type voidService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory InventoryService
}

func NewVoidService(pool *pgxpool.Pool, ledger *Ledger, inventory InventoryService) VoidService {
	return &voidService{pool: pool, ledger: ledger, inventory: inventory}
}

func (s *voidService) Void(ctx context.Context, input VoidInput) error {
	if err := validate.Struct(input); err != nil {
		return fmt.Errorf("invalid void input: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	switch input.DocType {
	case RefTypeSale:
		err = s.voidSaleTx(ctx, tx, input)
	case RefTypePurchase:
		err = s.voidPurchaseTx(ctx, tx, input)
	case RefTypeARInvoice:
		err = s.voidARInvoiceTx(ctx, tx, input)
	case RefTypeAPInvoice:
		err = s.voidAPInvoiceTx(ctx, tx, input)
	case RefTypePayment:
		err = s.voidPaymentTx(ctx, tx, input)
	case RefTypeCreditMemo:
		err = s.voidCreditMemoTx(ctx, tx, input)
	case RefTypeStockAdjustment:
		err = s.voidAdjustmentTx(ctx, tx, input)
	case RefTypeJournal:
		err = s.voidJournalTx(ctx, tx, input)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit void: %w", err)
	}
	return nil
}

// reverseEntryTx reverses the original journal entry for a document and
// stamps its void flags.
func (s *voidService) reverseEntryTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	entryID, err := entryIDByReferenceTx(ctx, tx, input.DocType, input.DocID)
	if err != nil {
		return err
	}
	description := fmt.Sprintf("Void of %s %d: %s", input.DocType, input.DocID, input.Reason)
	if _, err := s.ledger.ReverseTx(ctx, tx, entryID, description, time.Now()); err != nil {
		return err
	}
	return markEntryVoidedTx(ctx, tx, entryID, input.VoidedBy, input.Reason)
}

// flagDocumentTx stamps the void flags on a document row.
func flagDocumentTx(ctx context.Context, tx pgx.Tx, table string, input VoidInput) error {
	tag, err := tx.Exec(ctx,
		"UPDATE "+table+" SET voided_at = NOW(), voided_by = $1, void_reason = $2 WHERE id = $3 AND voided_at IS NULL",
		input.VoidedBy, input.Reason, input.DocID)
	if err != nil {
		return fmt.Errorf("failed to flag %s %d voided: %w", input.DocType, input.DocID, err)
	}
	if tag.RowsAffected() == 0 {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}
	return nil
}

// restoreProducts adds reversed consumption quantities back onto the
// product rows and refreshes their display cost.
func (s *voidService) restoreProducts(ctx context.Context, tx pgx.Tx, restored map[int]decimal.Decimal) error {
	for productID, qty := range restored {
		_, err := tx.Exec(ctx, "UPDATE products SET quantity = quantity + $1 WHERE id = $2", qty, productID)
		if err != nil {
			return fmt.Errorf("failed to restore quantity for product %d: %w", productID, err)
		}
		avg, err := s.inventory.WeightedAverageCostTx(ctx, tx, productID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "UPDATE products SET cost_price = $1 WHERE id = $2", avg, productID)
		if err != nil {
			return fmt.Errorf("failed to update cost price for product %d: %w", productID, err)
		}
	}
	return nil
}

func (s *voidService) voidSaleTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	err := tx.QueryRow(ctx, "SELECT voided_at FROM sales WHERE id = $1 FOR UPDATE", input.DocID).Scan(&voidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("sale %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock sale %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}

	restored, err := s.inventory.ReverseConsumptionTx(ctx, tx, RefTypeSale, input.DocID)
	if err != nil {
		return err
	}
	if err := s.restoreProducts(ctx, tx, restored); err != nil {
		return err
	}
	// A fully discounted sale of zero-cost goods posts no entry; only the
	// stock movement gets unwound.
	if err := s.reverseEntryTx(ctx, tx, input); err != nil && !errors.Is(err, errNoEntryForReference) {
		return err
	}
	return flagDocumentTx(ctx, tx, "sales", input)
}

func (s *voidService) voidPurchaseTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	err := tx.QueryRow(ctx, "SELECT voided_at FROM purchases WHERE id = $1 FOR UPDATE", input.DocID).Scan(&voidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("purchase %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock purchase %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}

	// The purchase can only be unwound while its lots are intact. Once any
	// slice has been sold the cost basis is downstream in other documents.
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, quantity_received, quantity_remaining
		FROM inventory_lots
		WHERE source_type = $1 AND source_id = $2
		FOR UPDATE
	`, RefTypePurchase, input.DocID)
	if err != nil {
		return fmt.Errorf("failed to lock lots for purchase %d: %w", input.DocID, err)
	}
	type lotRow struct {
		id        int
		productID int
		received  decimal.Decimal
		remaining decimal.Decimal
	}
	var lots []lotRow
	for rows.Next() {
		var lot lotRow
		if err := rows.Scan(&lot.id, &lot.productID, &lot.received, &lot.remaining); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating lots: %w", err)
	}

	for _, lot := range lots {
		if !lot.remaining.Equal(lot.received) {
			return &ConsumedLotsError{PurchaseID: input.DocID, LotID: lot.id}
		}
	}

	for _, lot := range lots {
		if _, err := tx.Exec(ctx, "DELETE FROM inventory_lots WHERE id = $1", lot.id); err != nil {
			return fmt.Errorf("failed to delete lot %d: %w", lot.id, err)
		}
		_, err := tx.Exec(ctx, "UPDATE products SET quantity = quantity - $1 WHERE id = $2", lot.received, lot.productID)
		if err != nil {
			return fmt.Errorf("failed to restore quantity for product %d: %w", lot.productID, err)
		}
		avg, err := s.inventory.WeightedAverageCostTx(ctx, tx, lot.productID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "UPDATE products SET cost_price = $1 WHERE id = $2", avg, lot.productID)
		if err != nil {
			return fmt.Errorf("failed to update cost price for product %d: %w", lot.productID, err)
		}
	}

	if err := s.reverseEntryTx(ctx, tx, input); err != nil {
		return err
	}
	return flagDocumentTx(ctx, tx, "purchases", input)
}

func (s *voidService) voidARInvoiceTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	var paid, credited decimal.Decimal
	err := tx.QueryRow(ctx, "SELECT voided_at, paid, credited FROM ar_invoices WHERE id = $1 FOR UPDATE", input.DocID).
		Scan(&voidedAt, &paid, &credited)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("invoice %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock invoice %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}
	if paid.IsPositive() {
		return &HasDependentPaymentsError{DocType: input.DocType, DocID: input.DocID, Paid: paid}
	}
	if credited.IsPositive() {
		return fmt.Errorf("invoice %d has credit memos totalling %s; void them first", input.DocID, credited.StringFixed(2))
	}

	restored, err := s.inventory.ReverseConsumptionTx(ctx, tx, RefTypeARInvoice, input.DocID)
	if err != nil {
		return err
	}
	if err := s.restoreProducts(ctx, tx, restored); err != nil {
		return err
	}
	if err := s.reverseEntryTx(ctx, tx, input); err != nil && !errors.Is(err, errNoEntryForReference) {
		return err
	}
	return flagDocumentTx(ctx, tx, "ar_invoices", input)
}

func (s *voidService) voidAPInvoiceTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	var paid decimal.Decimal
	err := tx.QueryRow(ctx, "SELECT voided_at, paid FROM ap_invoices WHERE id = $1 FOR UPDATE", input.DocID).
		Scan(&voidedAt, &paid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("invoice %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock invoice %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}
	if paid.IsPositive() {
		return &HasDependentPaymentsError{DocType: input.DocType, DocID: input.DocID, Paid: paid}
	}

	if err := s.reverseEntryTx(ctx, tx, input); err != nil {
		return err
	}
	return flagDocumentTx(ctx, tx, "ap_invoices", input)
}

func (s *voidService) voidPaymentTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	var invoiceType string
	var invoiceID int
	var amount decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT voided_at, invoice_type, invoice_id, amount FROM payments WHERE id = $1 FOR UPDATE
	`, input.DocID).Scan(&voidedAt, &invoiceType, &invoiceID, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("payment %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock payment %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}

	// Put the settled amount back on the invoice and rederive its status.
	switch invoiceType {
	case InvoiceTypeAR:
		var gross, paid, credited decimal.Decimal
		err = tx.QueryRow(ctx, "SELECT gross_total, paid, credited FROM ar_invoices WHERE id = $1 FOR UPDATE", invoiceID).
			Scan(&gross, &paid, &credited)
		if err != nil {
			return fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
		}
		newPaid := paid.Sub(amount)
		_, err = tx.Exec(ctx, "UPDATE ar_invoices SET paid = $1, status = $2 WHERE id = $3",
			newPaid, invoiceStatus(gross, newPaid, credited), invoiceID)
	case InvoiceTypeAP:
		var gross, paid decimal.Decimal
		err = tx.QueryRow(ctx, "SELECT gross_total, paid FROM ap_invoices WHERE id = $1 FOR UPDATE", invoiceID).
			Scan(&gross, &paid)
		if err != nil {
			return fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
		}
		newPaid := paid.Sub(amount)
		_, err = tx.Exec(ctx, "UPDATE ap_invoices SET paid = $1, status = $2 WHERE id = $3",
			newPaid, invoiceStatus(gross, newPaid, decimal.Zero), invoiceID)
	default:
		return fmt.Errorf("payment %d has unknown invoice type %q", input.DocID, invoiceType)
	}
	if err != nil {
		return fmt.Errorf("failed to restore invoice %d: %w", invoiceID, err)
	}

	if err := s.reverseEntryTx(ctx, tx, input); err != nil {
		return err
	}
	return flagDocumentTx(ctx, tx, "payments", input)
}

func (s *voidService) voidCreditMemoTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	var invoiceID int
	var gross decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT voided_at, invoice_id, gross_amount FROM credit_memos WHERE id = $1 FOR UPDATE
	`, input.DocID).Scan(&voidedAt, &invoiceID, &gross)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("credit memo %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock credit memo %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}

	var invoiceGross, paid, credited decimal.Decimal
	err = tx.QueryRow(ctx, "SELECT gross_total, paid, credited FROM ar_invoices WHERE id = $1 FOR UPDATE", invoiceID).
		Scan(&invoiceGross, &paid, &credited)
	if err != nil {
		return fmt.Errorf("failed to lock invoice %d: %w", invoiceID, err)
	}
	newCredited := credited.Sub(gross)
	_, err = tx.Exec(ctx, "UPDATE ar_invoices SET credited = $1, status = $2 WHERE id = $3",
		newCredited, invoiceStatus(invoiceGross, paid, newCredited), invoiceID)
	if err != nil {
		return fmt.Errorf("failed to restore invoice %d: %w", invoiceID, err)
	}

	if err := s.reverseEntryTx(ctx, tx, input); err != nil {
		return err
	}
	return flagDocumentTx(ctx, tx, "credit_memos", input)
}

func (s *voidService) voidAdjustmentTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var voidedAt *time.Time
	var direction string
	var amount decimal.Decimal
	err := tx.QueryRow(ctx, `
		SELECT voided_at, direction, amount FROM stock_adjustments WHERE id = $1 FOR UPDATE
	`, input.DocID).Scan(&voidedAt, &direction, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("adjustment %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock adjustment %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}

	switch direction {
	case AdjustmentGain:
		var lotID, productID int
		var received, remaining decimal.Decimal
		err = tx.QueryRow(ctx, `
			SELECT id, product_id, quantity_received, quantity_remaining
			FROM inventory_lots
			WHERE source_type = $1 AND source_id = $2
			FOR UPDATE
		`, RefTypeStockAdjustment, input.DocID).Scan(&lotID, &productID, &received, &remaining)
		if err != nil {
			return fmt.Errorf("failed to lock lot for adjustment %d: %w", input.DocID, err)
		}
		if !remaining.Equal(received) {
			return fmt.Errorf("adjustment %d cannot be voided: lot %d has been partially consumed", input.DocID, lotID)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM inventory_lots WHERE id = $1", lotID); err != nil {
			return fmt.Errorf("failed to delete lot %d: %w", lotID, err)
		}
		if err := s.restoreProducts(ctx, tx, map[int]decimal.Decimal{productID: received.Neg()}); err != nil {
			return err
		}
	case AdjustmentLoss:
		restored, err := s.inventory.ReverseConsumptionTx(ctx, tx, RefTypeStockAdjustment, input.DocID)
		if err != nil {
			return err
		}
		if err := s.restoreProducts(ctx, tx, restored); err != nil {
			return err
		}
	}

	if amount.IsPositive() {
		if err := s.reverseEntryTx(ctx, tx, input); err != nil {
			return err
		}
	}
	return flagDocumentTx(ctx, tx, "stock_adjustments", input)
}

// voidJournalTx voids a manual journal entry directly. Entries tied to a
// document must be voided through the document so inventory and document
// state stay consistent.
func (s *voidService) voidJournalTx(ctx context.Context, tx pgx.Tx, input VoidInput) error {
	var refType *string
	var reversesEntryID *int
	var voidedAt *time.Time
	err := tx.QueryRow(ctx, `
		SELECT reference_type, reverses_entry_id, voided_at FROM journal_entries WHERE id = $1 FOR UPDATE
	`, input.DocID).Scan(&refType, &reversesEntryID, &voidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("entry %d not found", input.DocID)
		}
		return fmt.Errorf("failed to lock entry %d: %w", input.DocID, err)
	}
	if voidedAt != nil {
		return &AlreadyVoidedError{DocType: input.DocType, DocID: input.DocID}
	}
	if reversesEntryID != nil {
		return fmt.Errorf("entry %d is a reversing entry and cannot be voided", input.DocID)
	}
	if refType != nil && *refType != RefTypeJournal {
		return fmt.Errorf("entry %d belongs to %s; void the document instead", input.DocID, *refType)
	}

	description := fmt.Sprintf("Void of entry %d: %s", input.DocID, input.Reason)
	if _, err := s.ledger.ReverseTx(ctx, tx, input.DocID, description, time.Now()); err != nil {
		return err
	}
	return markEntryVoidedTx(ctx, tx, input.DocID, input.VoidedBy, input.Reason)
}
