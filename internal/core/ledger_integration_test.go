package core_test

import (
	"context"
	"errors"
	"testing"

	"pos-ledger/internal/core"

	"github.com/google/uuid"
)

func TestLedger_RecordAndFetch(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	entry, err := e.ledger.Record(ctx, core.EntryInput{
		Description: "Owner puts in capital",
		EntryDate:   date(2026, 1, 2),
		Lines: []core.LineInput{
			{AccountCode: "101", Debit: dec("5000.00")},
			{AccountCode: "301", Credit: dec("5000.00")},
		},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	fetched, err := e.ledger.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if len(fetched.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(fetched.Lines))
	}
	if fetched.Voided() {
		t.Error("fresh entry should not be voided")
	}

	assertBalance(t, e, "101", "5000.00")
	assertBalance(t, e, "301", "-5000.00")
}

func TestLedger_Idempotency(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	key := uuid.NewString()
	in := core.EntryInput{
		Description:    "Idempotent entry",
		EntryDate:      date(2026, 1, 3),
		IdempotencyKey: key,
		Lines: []core.LineInput{
			{AccountCode: "101", Debit: dec("150.00")},
			{AccountCode: "402", Credit: dec("150.00")},
		},
	}

	if _, err := e.ledger.Record(ctx, in); err != nil {
		t.Fatalf("First record failed: %v", err)
	}

	_, err := e.ledger.Record(ctx, in)
	var dup *core.DuplicateEntryError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateEntryError on second record, got %v", err)
	}
	if dup.IdempotencyKey != key {
		t.Errorf("error carries key %q, want %q", dup.IdempotencyKey, key)
	}

	// Only one entry landed.
	var count int
	if err := e.pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries WHERE idempotency_key = $1", key).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 entry with key, got %d", count)
	}
}

func TestLedger_UnknownAccount(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.ledger.Record(context.Background(), core.EntryInput{
		Description: "References a missing account",
		EntryDate:   date(2026, 1, 3),
		Lines: []core.LineInput{
			{AccountCode: "9999", Debit: dec("10.00")},
			{AccountCode: "101", Credit: dec("10.00")},
		},
	})

	var unknown *core.UnknownAccountError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownAccountError, got %v", err)
	}
	if unknown.Code != "9999" {
		t.Errorf("error carries code %q, want 9999", unknown.Code)
	}
}

func TestLedger_ReversalSwapsSides(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	original, err := e.ledger.Record(ctx, core.EntryInput{
		Description: "To be reversed",
		EntryDate:   date(2026, 1, 4),
		Lines: []core.LineInput{
			{AccountCode: "101", Debit: dec("500.00")},
			{AccountCode: "402", Credit: dec("500.00")},
		},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx.Rollback(ctx)

	reversalID, err := e.ledger.ReverseTx(ctx, tx, original.ID, "Reversal of original", date(2026, 1, 5))
	if err != nil {
		t.Fatalf("ReverseTx failed: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	reversal, err := e.ledger.GetEntry(ctx, reversalID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if reversal.ReversesEntryID == nil || *reversal.ReversesEntryID != original.ID {
		t.Fatalf("reversal does not point at the original entry")
	}

	// Sides are swapped, amounts kept positive. Nothing is negated.
	for _, line := range reversal.Lines {
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			t.Errorf("reversal line for %s has a negative amount", line.AccountCode)
		}
		switch line.AccountCode {
		case "101":
			if line.Credit.StringFixed(2) != "500.00" {
				t.Errorf("expected 101 credited 500.00, got debit %s credit %s",
					line.Debit.StringFixed(2), line.Credit.StringFixed(2))
			}
		case "402":
			if line.Debit.StringFixed(2) != "500.00" {
				t.Errorf("expected 402 debited 500.00, got debit %s credit %s",
					line.Debit.StringFixed(2), line.Credit.StringFixed(2))
			}
		}
	}

	// Original and reversal cancel in the aggregate.
	assertBalance(t, e, "101", "0.00")
	assertBalance(t, e, "402", "0.00")

	// A second reversal of the same entry must be rejected.
	tx2, err := e.pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer tx2.Rollback(ctx)
	if _, err := e.ledger.ReverseTx(ctx, tx2, original.ID, "Again", date(2026, 1, 6)); err == nil {
		t.Fatal("expected double reversal to fail, but it succeeded")
	}
}

func TestLedger_AggregateDateRange(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	record := func(day int, amount string) {
		t.Helper()
		_, err := e.ledger.Record(ctx, core.EntryInput{
			Description: "Dated entry",
			EntryDate:   date(2026, 2, day),
			Lines: []core.LineInput{
				{AccountCode: "101", Debit: dec(amount)},
				{AccountCode: "402", Credit: dec(amount)},
			},
		})
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	record(1, "100.00")
	record(15, "40.00")
	record(28, "7.00")

	start := date(2026, 2, 10)
	end := date(2026, 2, 20)
	balances, err := e.ledger.Aggregate(ctx, &start, &end)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if got := balances["101"].StringFixed(2); got != "40.00" {
		t.Errorf("expected only the mid-month entry in range, got %s", got)
	}

	// Inclusive bounds.
	first := date(2026, 2, 1)
	balances, err = e.ledger.Aggregate(ctx, &first, &first)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if got := balances["101"].StringFixed(2); got != "100.00" {
		t.Errorf("expected boundary entry included, got %s", got)
	}
}

func TestLedger_VoidedEntriesStayInAggregates(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	entry, err := e.ledger.Record(ctx, core.EntryInput{
		Description: "Manual entry to void",
		EntryDate:   date(2026, 3, 1),
		Lines: []core.LineInput{
			{AccountCode: "101", Debit: dec("75.00")},
			{AccountCode: "402", Credit: dec("75.00")},
		},
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if err := e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypeJournal,
		DocID:    entry.ID,
		Reason:   "entered twice",
		VoidedBy: "tester",
	}); err != nil {
		t.Fatalf("Void failed: %v", err)
	}

	voided, err := e.ledger.GetEntry(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if !voided.Voided() {
		t.Error("expected entry to be flagged voided")
	}

	// Both rows remain; the pair nets to zero.
	var entries int
	if err := e.pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries").Scan(&entries); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if entries != 2 {
		t.Errorf("expected original + reversal = 2 entries, got %d", entries)
	}
	assertBalance(t, e, "101", "0.00")

	// Voiding again must fail.
	err = e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypeJournal,
		DocID:    entry.ID,
		Reason:   "again",
		VoidedBy: "tester",
	})
	if err == nil {
		t.Fatal("expected second void to fail")
	}
}

func TestLedger_VoidRejectsDocumentLinkedEntry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "SKU-1", "Test Product", "25.00")
	purchase := e.stock(t, supplierID, productID, "10", "11.20")

	var entryID int
	err := e.pool.QueryRow(ctx, `
		SELECT id FROM journal_entries WHERE reference_type = $1 AND reference_id = $2
	`, core.RefTypePurchase, purchase.ID).Scan(&entryID)
	if err != nil {
		t.Fatalf("failed to find purchase entry: %v", err)
	}

	err = e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypeJournal,
		DocID:    entryID,
		Reason:   "should not work",
		VoidedBy: "tester",
	})
	if err == nil {
		t.Fatal("expected void of document-linked entry to fail; the document must be voided instead")
	}
}
