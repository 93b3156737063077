package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods for purchases.
const (
	PaymentMethodCash   = "cash"
	PaymentMethodCredit = "credit"
)

// Purchase is a goods receipt from a supplier. Prices are VAT-inclusive;
// each item becomes one FIFO lot at its VAT-exclusive unit cost.
type Purchase struct {
	ID             int       `json:"id"`
	DocumentNumber string    `json:"document_number"`
	SupplierID     int       `json:"supplier_id"`
	PurchaseDate   time.Time `json:"purchase_date"`
	PaymentMethod  string    `json:"payment_method"`

	GrossTotal decimal.Decimal `json:"gross_total"`
	NetTotal   decimal.Decimal `json:"net_total"`
	VATTotal   decimal.Decimal `json:"vat_total"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	Items []PurchaseItem `json:"items"`
}

type PurchaseItem struct {
	ID         int             `json:"id"`
	PurchaseID int             `json:"purchase_id"`
	ProductID  int             `json:"product_id"`
	LotID      int             `json:"lot_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	// UnitCost is the VAT-inclusive purchase price per unit.
	UnitCost decimal.Decimal `json:"unit_cost"`
	Gross    decimal.Decimal `json:"gross"`
	Net      decimal.Decimal `json:"net"`
}
