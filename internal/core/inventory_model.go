package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int             `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	IsActive    bool            `json:"is_active"`
	IsConsigned bool            `json:"is_consigned"`
	ConsignorID *int            `json:"consignor_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InventoryLot is a FIFO cost layer: one receipt of stock at one unit cost.
// Lots are consumed oldest first (created_at, then id). Cost of goods sold
// is always derived from lots, never from products.cost_price.
type InventoryLot struct {
	ID                int             `json:"id"`
	ProductID         int             `json:"product_id"`
	QuantityReceived  decimal.Decimal `json:"quantity_received"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	SourceType        string          `json:"source_type"`
	SourceID          *int            `json:"source_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// InventoryTransaction is the audit row for one slice of a FIFO consumption:
// which lot was drawn, how much, and at what cost. Rows are deleted (not
// voided) when the consumption is reversed, restoring the lot quantities.
type InventoryTransaction struct {
	ID            int             `json:"id"`
	ProductID     int             `json:"product_id"`
	LotID         int             `json:"lot_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   int             `json:"reference_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ReconciliationResult compares a product's denormalized quantity against
// the sum of its lot remainders. Advisory only; nothing is auto-corrected.
type ReconciliationResult struct {
	ProductID       int             `json:"product_id"`
	ProductQuantity decimal.Decimal `json:"product_quantity"`
	LotTotal        decimal.Decimal `json:"lot_total"`
	Discrepancy     decimal.Decimal `json:"discrepancy"`
	IsBalanced      bool            `json:"is_balanced"`
}

// LotSummaryRow is one live lot in a product's valuation listing.
type LotSummaryRow struct {
	LotID             int             `json:"lot_id"`
	QuantityRemaining decimal.Decimal `json:"quantity_remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	Value             decimal.Decimal `json:"value"`
	ReceivedAt        time.Time       `json:"received_at"`
}
