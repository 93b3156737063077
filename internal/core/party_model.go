package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID    int     `json:"id"`
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
	// WHTRatePercent is the creditable withholding tax this customer
	// deducts from payments, as a percentage of the VAT-exclusive base.
	WHTRatePercent decimal.Decimal `json:"wht_rate_percent"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Supplier struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Consignor owns goods sold on consignment. The store earns a commission on
// each sale and owes the consignor the remainder.
type Consignor struct {
	ID                    int             `json:"id"`
	Name                  string          `json:"name"`
	Email                 *string         `json:"email,omitempty"`
	Phone                 *string         `json:"phone,omitempty"`
	CommissionRatePercent decimal.Decimal `json:"commission_rate_percent"`
	IsActive              bool            `json:"is_active"`
	CreatedAt             time.Time       `json:"created_at"`
}
