package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// UnbalancedEntryError reports a journal entry whose debits and credits do
// not match after rounding to two decimal places.
type UnbalancedEntryError struct {
	Debits  decimal.Decimal
	Credits decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("journal entry is unbalanced: debits %s != credits %s",
		e.Debits.StringFixed(2), e.Credits.StringFixed(2))
}

// UnknownAccountError reports a journal line referencing an account code
// that does not exist in the chart of accounts.
type UnknownAccountError struct {
	Code string
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("unknown account code %q", e.Code)
}

// InsufficientInventoryError reports a consumption request that exceeds the
// quantity available across a product's lots. No partial consumption occurs.
type InsufficientInventoryError struct {
	ProductID   int
	ProductName string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient inventory for %s: requested %s, available %s",
		name, e.Requested.String(), e.Available.String())
}

// Shortfall is the quantity that could not be satisfied.
func (e *InsufficientInventoryError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

// AlreadyVoidedError reports a void attempt on a document that has already
// been voided.
type AlreadyVoidedError struct {
	DocType string
	DocID   int
}

func (e *AlreadyVoidedError) Error() string {
	return fmt.Sprintf("%s %d is already voided", e.DocType, e.DocID)
}

// HasDependentPaymentsError reports a void attempt on an invoice that still
// has recorded payments. The payments must be voided first.
type HasDependentPaymentsError struct {
	DocType string
	DocID   int
	Paid    decimal.Decimal
}

func (e *HasDependentPaymentsError) Error() string {
	return fmt.Sprintf("%s %d has %s in recorded payments; void the payments first",
		e.DocType, e.DocID, e.Paid.StringFixed(2))
}

// ConsumedLotsError reports a purchase void attempt after some of the stock
// received by that purchase has already been sold or consumed.
type ConsumedLotsError struct {
	PurchaseID int
	LotID      int
}

func (e *ConsumedLotsError) Error() string {
	return fmt.Sprintf("purchase %d cannot be voided: lot %d has been partially consumed",
		e.PurchaseID, e.LotID)
}

// DuplicateEntryError reports an idempotency key collision on journal entry
// insertion. The original entry is left untouched.
type DuplicateEntryError struct {
	IdempotencyKey string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate journal entry: idempotency key %s already exists", e.IdempotencyKey)
}
