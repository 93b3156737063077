package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountType string

const (
	Asset     AccountType = "asset"
	Liability AccountType = "liability"
	Equity    AccountType = "equity"
	Revenue   AccountType = "revenue"
	Expense   AccountType = "expense"
)

// DebitNatural reports whether the account type carries a debit natural
// balance. Assets and expenses grow on the debit side, everything else on
// the credit side.
func (t AccountType) DebitNatural() bool {
	return t == Asset || t == Expense
}

type Account struct {
	ID          int         `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Type        AccountType `json:"type"`
	Description *string     `json:"description,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Reference types linking journal entries to source documents.
const (
	RefTypeSale            = "SALE"
	RefTypePurchase        = "PURCHASE"
	RefTypeARInvoice       = "AR_INVOICE"
	RefTypeAPInvoice       = "AP_INVOICE"
	RefTypePayment         = "PAYMENT"
	RefTypeStockAdjustment = "STOCK_ADJUSTMENT"
	RefTypeCreditMemo      = "CREDIT_MEMO"
	RefTypeJournal         = "JOURNAL"
)

type JournalEntry struct {
	ID              int           `json:"id"`
	EntryDate       time.Time     `json:"entry_date"`
	Description     string        `json:"description"`
	ReferenceType   *string       `json:"reference_type,omitempty"`
	ReferenceID     *int          `json:"reference_id,omitempty"`
	IdempotencyKey  *string       `json:"idempotency_key,omitempty"`
	ReversesEntryID *int          `json:"reverses_entry_id,omitempty"`
	VoidedAt        *time.Time    `json:"voided_at,omitempty"`
	VoidedBy        *string       `json:"voided_by,omitempty"`
	VoidReason      *string       `json:"void_reason,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	Lines           []JournalLine `json:"lines"`
}

// Voided reports whether the entry carries a void flag. Voided entries stay
// in the ledger; their reversing entry cancels them arithmetically.
func (e *JournalEntry) Voided() bool {
	return e.VoidedAt != nil
}

type JournalLine struct {
	ID          int             `json:"id"`
	EntryID     int             `json:"entry_id"`
	AccountID   int             `json:"account_id"`
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// LineInput is one leg of a journal entry to be recorded. Exactly one of
// Debit or Credit must be positive.
type LineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// EntryInput describes a balanced journal entry to be recorded against the
// ledger. ReferenceType/ReferenceID link the entry to its source document;
// manual entries use RefTypeJournal with no reference ID.
type EntryInput struct {
	Description    string
	EntryDate      time.Time
	ReferenceType  string
	ReferenceID    int
	IdempotencyKey string
	Lines          []LineInput
}

func debitLine(code string, amount decimal.Decimal) LineInput {
	return LineInput{AccountCode: code, Debit: amount}
}

func creditLine(code string, amount decimal.Decimal) LineInput {
	return LineInput{AccountCode: code, Credit: amount}
}
