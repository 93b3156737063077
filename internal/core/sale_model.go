package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a point-of-sale cash transaction. Monetary totals are split
// between owned goods (which carry VAT and COGS) and consigned goods
// (which carry commission income and a payable to the consignor).
type Sale struct {
	ID             int       `json:"id"`
	DocumentNumber string    `json:"document_number"`
	CustomerID     *int      `json:"customer_id,omitempty"`
	SaleDate       time.Time `json:"sale_date"`

	GrossTotal       decimal.Decimal `json:"gross_total"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	NetTotal         decimal.Decimal `json:"net_total"`
	VATTotal         decimal.Decimal `json:"vat_total"`
	COGSTotal        decimal.Decimal `json:"cogs_total"`
	ConsignedGross   decimal.Decimal `json:"consigned_gross"`
	CommissionTotal  decimal.Decimal `json:"commission_total"`
	ConsignorPayable decimal.Decimal `json:"consignor_payable"`
	CashTotal        decimal.Decimal `json:"cash_total"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	Items []SaleItem `json:"items"`
}

type SaleItem struct {
	ID          int             `json:"id"`
	SaleID      int             `json:"sale_id"`
	ProductID   int             `json:"product_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Gross       decimal.Decimal `json:"gross"`
	COGS        decimal.Decimal `json:"cogs"`
	IsConsigned bool            `json:"is_consigned"`
}
