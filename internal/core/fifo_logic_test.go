package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanConsumption_OldestFirst(t *testing.T) {
	lots := []lotState{
		{ID: 1, Remaining: d("10"), UnitCost: d("5.00")},
		{ID: 2, Remaining: d("10"), UnitCost: d("6.00")},
	}

	slices, total, err := planConsumption(lots, d("12"))
	require.NoError(t, err)
	require.Len(t, slices, 2)

	assert.Equal(t, 1, slices[0].LotID)
	assert.Equal(t, "10", slices[0].Quantity.String())
	assert.Equal(t, "50.00", slices[0].Cost.StringFixed(2))

	assert.Equal(t, 2, slices[1].LotID)
	assert.Equal(t, "2", slices[1].Quantity.String())
	assert.Equal(t, "12.00", slices[1].Cost.StringFixed(2))

	assert.Equal(t, "62.00", total.StringFixed(2))
}

func TestPlanConsumption_SingleLotPartial(t *testing.T) {
	lots := []lotState{
		{ID: 7, Remaining: d("100"), UnitCost: d("2.50")},
	}

	slices, total, err := planConsumption(lots, d("3"))
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Equal(t, "3", slices[0].Quantity.String())
	assert.Equal(t, "7.50", total.StringFixed(2))
}

func TestPlanConsumption_SkipsEmptyLots(t *testing.T) {
	lots := []lotState{
		{ID: 1, Remaining: decimal.Zero, UnitCost: d("5.00")},
		{ID: 2, Remaining: d("4"), UnitCost: d("6.00")},
	}

	slices, _, err := planConsumption(lots, d("4"))
	require.NoError(t, err)
	require.Len(t, slices, 1)
	assert.Equal(t, 2, slices[0].LotID)
}

func TestPlanConsumption_Insufficient(t *testing.T) {
	lots := []lotState{
		{ID: 1, Remaining: d("3"), UnitCost: d("5.00")},
		{ID: 2, Remaining: d("2"), UnitCost: d("6.00")},
	}

	slices, _, err := planConsumption(lots, d("10"))
	var insufficient *InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "10", insufficient.Requested.String())
	assert.Equal(t, "5", insufficient.Available.String())
	assert.Equal(t, "5", insufficient.Shortfall().String())
	// No partial consumption: nothing is allocated when availability falls short.
	assert.Nil(t, slices)
}

func TestPlanConsumption_NonPositiveQuantity(t *testing.T) {
	lots := []lotState{{ID: 1, Remaining: d("5"), UnitCost: d("1.00")}}

	_, _, err := planConsumption(lots, decimal.Zero)
	require.Error(t, err)

	_, _, err = planConsumption(lots, d("-1"))
	require.Error(t, err)
}

func TestPlanConsumption_PerSliceRounding(t *testing.T) {
	// Each slice rounds on its own: 3 × round2(1 × 0.333) = 0.99, not
	// round2(3 × 0.333) = 1.00.
	lots := []lotState{
		{ID: 1, Remaining: d("1"), UnitCost: d("0.333")},
		{ID: 2, Remaining: d("1"), UnitCost: d("0.333")},
		{ID: 3, Remaining: d("1"), UnitCost: d("0.333")},
	}

	slices, total, err := planConsumption(lots, d("3"))
	require.NoError(t, err)
	require.Len(t, slices, 3)
	assert.Equal(t, "0.99", total.StringFixed(2))
}

func TestPlanConsumption_FractionalQuantities(t *testing.T) {
	lots := []lotState{
		{ID: 1, Remaining: d("0.75"), UnitCost: d("8.40")},
		{ID: 2, Remaining: d("2.25"), UnitCost: d("9.10")},
	}

	slices, total, err := planConsumption(lots, d("1.5"))
	require.NoError(t, err)
	require.Len(t, slices, 2)
	assert.Equal(t, "0.75", slices[0].Quantity.String())
	assert.Equal(t, "6.30", slices[0].Cost.StringFixed(2))
	assert.Equal(t, "0.75", slices[1].Quantity.String())
	assert.Equal(t, "6.83", slices[1].Cost.StringFixed(2))
	assert.Equal(t, "13.13", total.StringFixed(2))
}
