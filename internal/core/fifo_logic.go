package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// lotState is the in-memory view of a lot during a consumption walk.
// The slice handed to planConsumption must already be in FIFO order
// (created_at, then id).
type lotState struct {
	ID        int
	Remaining decimal.Decimal
	UnitCost  decimal.Decimal
}

// consumptionSlice is one lot's contribution to a consumption: the quantity
// drawn and its cost, rounded at the slice level.
type consumptionSlice struct {
	LotID    int
	Quantity decimal.Decimal
	UnitCost decimal.Decimal
	Cost     decimal.Decimal
}

// planConsumption walks the lots oldest-first and allocates qty across them.
// Availability is checked up front across all lots: if the total remaining
// falls short, no slice is produced and an InsufficientInventoryError is
// returned. Each slice's cost is rounded to two decimals individually, so
// the total COGS is the sum of rounded slice costs.
func planConsumption(lots []lotState, qty decimal.Decimal) ([]consumptionSlice, decimal.Decimal, error) {
	if !qty.IsPositive() {
		return nil, decimal.Zero, fmt.Errorf("consumption quantity must be positive, got %s", qty)
	}

	available := decimal.Zero
	for _, lot := range lots {
		available = available.Add(lot.Remaining)
	}
	if available.LessThan(qty) {
		return nil, decimal.Zero, &InsufficientInventoryError{Requested: qty, Available: available}
	}

	var slices []consumptionSlice
	totalCost := decimal.Zero
	remaining := qty

	for _, lot := range lots {
		if remaining.IsZero() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}
		take := lot.Remaining
		if take.GreaterThan(remaining) {
			take = remaining
		}
		cost := round2(take.Mul(lot.UnitCost))
		slices = append(slices, consumptionSlice{
			LotID:    lot.ID,
			Quantity: take,
			UnitCost: lot.UnitCost,
			Cost:     cost,
		})
		totalCost = totalCost.Add(cost)
		remaining = remaining.Sub(take)
	}

	// The availability check above guarantees the walk reaches zero; a
	// nonzero remainder here means the lot data itself is inconsistent.
	if !remaining.IsZero() {
		return nil, decimal.Zero, fmt.Errorf("internal: FIFO walk left %s unallocated despite sufficient availability", remaining)
	}

	return slices, totalCost, nil
}
