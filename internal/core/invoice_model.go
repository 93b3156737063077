package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice lifecycle statuses.
const (
	InvoiceStatusOpen          = "open"
	InvoiceStatusPartiallyPaid = "partially_paid"
	InvoiceStatusPaid          = "paid"
)

// Invoice types addressed by payments.
const (
	InvoiceTypeAR = "AR"
	InvoiceTypeAP = "AP"
)

// ARInvoice is a credit sale. Goods ship on issue, so FIFO consumption and
// COGS are booked with the invoice, not with the payment.
type ARInvoice struct {
	ID             int        `json:"id"`
	DocumentNumber string     `json:"document_number"`
	CustomerID     int        `json:"customer_id"`
	InvoiceDate    time.Time  `json:"invoice_date"`
	DueDate        *time.Time `json:"due_date,omitempty"`

	GrossTotal    decimal.Decimal `json:"gross_total"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	NetTotal      decimal.Decimal `json:"net_total"`
	VATTotal      decimal.Decimal `json:"vat_total"`
	COGSTotal     decimal.Decimal `json:"cogs_total"`
	Paid          decimal.Decimal `json:"paid"`
	Credited      decimal.Decimal `json:"credited"`
	Status        string          `json:"status"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	Items []ARInvoiceItem `json:"items"`
}

// Outstanding is what the customer still owes.
func (inv *ARInvoice) Outstanding() decimal.Decimal {
	return inv.GrossTotal.Sub(inv.Paid).Sub(inv.Credited)
}

type ARInvoiceItem struct {
	ID        int             `json:"id"`
	InvoiceID int             `json:"invoice_id"`
	ProductID int             `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Gross     decimal.Decimal `json:"gross"`
	COGS      decimal.Decimal `json:"cogs"`
}

// APInvoice is a supplier bill for expenses. Stock receipts go through
// purchases instead, so bill lines debit expense accounts directly.
type APInvoice struct {
	ID             int        `json:"id"`
	DocumentNumber string     `json:"document_number"`
	SupplierID     int        `json:"supplier_id"`
	InvoiceDate    time.Time  `json:"invoice_date"`
	DueDate        *time.Time `json:"due_date,omitempty"`

	GrossTotal decimal.Decimal `json:"gross_total"`
	NetTotal   decimal.Decimal `json:"net_total"`
	VATTotal   decimal.Decimal `json:"vat_total"`
	Paid       decimal.Decimal `json:"paid"`
	Status     string          `json:"status"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	Lines []APInvoiceLine `json:"lines"`
}

func (inv *APInvoice) Outstanding() decimal.Decimal {
	return inv.GrossTotal.Sub(inv.Paid)
}

type APInvoiceLine struct {
	ID          int             `json:"id"`
	InvoiceID   int             `json:"invoice_id"`
	AccountCode string          `json:"account_code"`
	Description string          `json:"description"`
	Gross       decimal.Decimal `json:"gross"`
	Net         decimal.Decimal `json:"net"`
}

// Payment settles part or all of an invoice. For AR payments the customer
// may withhold creditable tax; the cash received is the amount less the
// withheld portion.
type Payment struct {
	ID             int       `json:"id"`
	DocumentNumber string    `json:"document_number"`
	InvoiceType    string    `json:"invoice_type"`
	InvoiceID      int       `json:"invoice_id"`
	PaymentDate    time.Time `json:"payment_date"`

	Amount     decimal.Decimal `json:"amount"`
	WHTAmount  decimal.Decimal `json:"wht_amount"`
	CashAmount decimal.Decimal `json:"cash_amount"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// CreditMemo reduces an AR invoice after issue, for returns or billing
// corrections. The VAT portion claws back output VAT.
type CreditMemo struct {
	ID             int       `json:"id"`
	DocumentNumber string    `json:"document_number"`
	InvoiceID      int       `json:"invoice_id"`
	MemoDate       time.Time `json:"memo_date"`

	GrossAmount decimal.Decimal `json:"gross_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	Reason      string          `json:"reason"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
