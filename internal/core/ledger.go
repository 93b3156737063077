package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Ledger owns journal entry recording and aggregation. Every monetary event
// in the system flows through Record or RecordTx as a balanced entry; there
// is no other write path to journal_entries.
type Ledger struct {
	pool  *pgxpool.Pool
	cache accountCache
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{
		pool:  pool,
		cache: accountCache{byCode: make(map[string]int)},
	}
}

// accountCache is a read-through map of account code to account id.
// AccountService invalidates it on every account mutation.
type accountCache struct {
	mu     sync.RWMutex
	byCode map[string]int
}

func (c *accountCache) get(code string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.byCode[code]
	return id, ok
}

func (c *accountCache) put(code string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCode[code] = id
}

// Invalidate drops all cached account mappings.
func (c *accountCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byCode = make(map[string]int)
}

// InvalidateAccounts drops the account code cache. Called after any change
// to the chart of accounts.
func (l *Ledger) InvalidateAccounts() {
	l.cache.Invalidate()
}

func (l *Ledger) resolveAccount(ctx context.Context, q querier, code string) (int, error) {
	if id, ok := l.cache.get(code); ok {
		return id, nil
	}
	var id int
	err := q.QueryRow(ctx, "SELECT id FROM accounts WHERE code = $1", code).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, &UnknownAccountError{Code: code}
		}
		return 0, fmt.Errorf("failed to fetch account id for code %s: %w", code, err)
	}
	l.cache.put(code, id)
	return id, nil
}

// Record validates and persists a journal entry in its own transaction.
func (l *Ledger) Record(ctx context.Context, in EntryInput) (*JournalEntry, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := l.RecordTx(ctx, tx, in)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// RecordTx validates and persists a journal entry inside the caller's
// transaction. Orchestrators use this so that the document write, the
// inventory mutation and the journal entry land atomically.
func (l *Ledger) RecordTx(ctx context.Context, tx pgx.Tx, in EntryInput) (*JournalEntry, error) {
	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("entry validation failed: %w", err)
	}

	var refType *string
	var refID *int
	if in.ReferenceType != "" {
		refType = &in.ReferenceType
		if in.ReferenceID != 0 {
			refID = &in.ReferenceID
		}
	}

	var entryID int
	var err error
	if in.IdempotencyKey != "" {
		err = tx.QueryRow(ctx, `
			INSERT INTO journal_entries (entry_date, description, reference_type, reference_id, idempotency_key, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING id
		`, in.EntryDate, in.Description, refType, refID, in.IdempotencyKey).Scan(&entryID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &DuplicateEntryError{IdempotencyKey: in.IdempotencyKey}
		}
	} else {
		err = tx.QueryRow(ctx, `
			INSERT INTO journal_entries (entry_date, description, reference_type, reference_id, created_at)
			VALUES ($1, $2, $3, $4, NOW())
			RETURNING id
		`, in.EntryDate, in.Description, refType, refID).Scan(&entryID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert journal entry: %w", err)
	}

	entry := &JournalEntry{
		ID:            entryID,
		EntryDate:     in.EntryDate,
		Description:   in.Description,
		ReferenceType: refType,
		ReferenceID:   refID,
	}

	for _, line := range in.Lines {
		accountID, err := l.resolveAccount(ctx, tx, line.AccountCode)
		if err != nil {
			return nil, err
		}
		var lineID int
		err = tx.QueryRow(ctx, `
			INSERT INTO journal_lines (entry_id, account_id, debit, credit)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, entryID, accountID, round2(line.Debit).StringFixed(2), round2(line.Credit).StringFixed(2)).Scan(&lineID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert journal line: %w", err)
		}
		entry.Lines = append(entry.Lines, JournalLine{
			ID:          lineID,
			EntryID:     entryID,
			AccountID:   accountID,
			AccountCode: line.AccountCode,
			Debit:       round2(line.Debit),
			Credit:      round2(line.Credit),
		})
	}

	return entry, nil
}

// errNoEntryForReference marks a document that never posted a journal
// entry, such as a fully discounted sale of zero-cost goods.
var errNoEntryForReference = errors.New("no journal entry found")

// entryIDByReferenceTx locates the original (non-reversing) journal entry
// for a source document.
func entryIDByReferenceTx(ctx context.Context, q querier, refType string, refID int) (int, error) {
	var id int
	err := q.QueryRow(ctx, `
		SELECT id FROM journal_entries
		WHERE reference_type = $1 AND reference_id = $2 AND reverses_entry_id IS NULL
		ORDER BY id
		LIMIT 1
	`, refType, refID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w for %s %d", errNoEntryForReference, refType, refID)
		}
		return 0, fmt.Errorf("failed to locate journal entry for %s %d: %w", refType, refID, err)
	}
	return id, nil
}

// ReverseTx inserts a reversing entry for entryID inside the caller's
// transaction: same accounts and amounts with debit and credit swapped,
// never negated. The original entry is left untouched; callers mark its
// void flags separately.
func (l *Ledger) ReverseTx(ctx context.Context, tx pgx.Tx, entryID int, description string, entryDate time.Time) (int, error) {
	var count int
	err := tx.QueryRow(ctx, "SELECT count(*) FROM journal_entries WHERE reverses_entry_id = $1", entryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to check reversal status: %w", err)
	}
	if count > 0 {
		return 0, fmt.Errorf("entry %d is already reversed", entryID)
	}

	var newEntryID int
	err = tx.QueryRow(ctx, `
		INSERT INTO journal_entries (entry_date, description, reference_type, reference_id, reverses_entry_id, created_at)
		SELECT $1, $2, reference_type, reference_id, id, NOW()
		FROM journal_entries WHERE id = $3
		RETURNING id
	`, entryDate, description, entryID).Scan(&newEntryID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("entry %d not found", entryID)
		}
		return 0, fmt.Errorf("failed to insert reversing entry: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO journal_lines (entry_id, account_id, debit, credit)
		SELECT $1, account_id, credit, debit
		FROM journal_lines WHERE entry_id = $2
	`, newEntryID, entryID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert reversing lines: %w", err)
	}

	return newEntryID, nil
}

// markEntryVoidedTx stamps the void flags on a journal entry. The entry
// itself is never deleted or mutated beyond these flags.
func markEntryVoidedTx(ctx context.Context, tx pgx.Tx, entryID int, voidedBy, reason string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE journal_entries
		SET voided_at = NOW(), voided_by = $1, void_reason = $2
		WHERE id = $3 AND voided_at IS NULL
	`, voidedBy, reason, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry %d voided: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("entry %d is already voided", entryID)
	}
	return nil
}

// Aggregate sums debits minus credits per account code over the optional
// date range (inclusive bounds on entry_date). Voided entries and their
// reversals are both included; they cancel arithmetically, which keeps
// historical reports reproducible.
func (l *Ledger) Aggregate(ctx context.Context, start, end *time.Time) (map[string]decimal.Decimal, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT a.code, COALESCE(SUM(jl.debit), 0) - COALESCE(SUM(jl.credit), 0) AS balance
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.entry_id
		JOIN accounts a ON a.id = jl.account_id
		WHERE ($1::date IS NULL OR je.entry_date >= $1)
		  AND ($2::date IS NULL OR je.entry_date <= $2)
		GROUP BY a.code
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate query failed: %w", err)
	}
	defer rows.Close()

	balances := make(map[string]decimal.Decimal)
	for rows.Next() {
		var code string
		var balance decimal.Decimal
		if err := rows.Scan(&code, &balance); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balances[code] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

// GetEntry fetches a journal entry with its lines.
func (l *Ledger) GetEntry(ctx context.Context, entryID int) (*JournalEntry, error) {
	var e JournalEntry
	err := l.pool.QueryRow(ctx, `
		SELECT id, entry_date, description, reference_type, reference_id, idempotency_key,
		       reverses_entry_id, voided_at, voided_by, void_reason, created_at
		FROM journal_entries WHERE id = $1
	`, entryID).Scan(
		&e.ID, &e.EntryDate, &e.Description, &e.ReferenceType, &e.ReferenceID, &e.IdempotencyKey,
		&e.ReversesEntryID, &e.VoidedAt, &e.VoidedBy, &e.VoidReason, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("entry %d not found", entryID)
		}
		return nil, fmt.Errorf("failed to fetch entry %d: %w", entryID, err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT jl.id, jl.entry_id, jl.account_id, a.code, jl.debit, jl.credit
		FROM journal_lines jl
		JOIN accounts a ON a.id = jl.account_id
		WHERE jl.entry_id = $1
		ORDER BY jl.id
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch lines for entry %d: %w", entryID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.AccountCode, &line.Debit, &line.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		e.Lines = append(e.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lines: %w", err)
	}
	return &e, nil
}
