package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSplitVAT(t *testing.T) {
	rate := d("0.12")

	tests := []struct {
		name  string
		gross string
		net   string
		vat   string
	}{
		{"even split", "112.00", "100.00", "12.00"},
		{"rounded net", "50.00", "44.64", "5.36"},
		{"one cent", "0.01", "0.01", "0.00"},
		{"zero", "0.00", "0.00", "0.00"},
		{"large", "1120000.00", "1000000.00", "120000.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			net, vat := splitVAT(d(tt.gross), rate)
			assert.Equal(t, tt.net, net.StringFixed(2))
			assert.Equal(t, tt.vat, vat.StringFixed(2))
			// The split must reassemble to the gross exactly.
			assert.True(t, net.Add(vat).Equal(d(tt.gross)))
		})
	}
}

func TestSplitVAT_ZeroRate(t *testing.T) {
	net, vat := splitVAT(d("75.50"), decimal.Zero)
	assert.Equal(t, "75.50", net.StringFixed(2))
	assert.True(t, vat.IsZero())
}

func TestApplyDiscount(t *testing.T) {
	tests := []struct {
		name         string
		gross        string
		discountType string
		value        string
		want         string
		wantErr      bool
	}{
		{"none", "100.00", DiscountNone, "0", "100.00", false},
		{"percent", "200.00", DiscountPercent, "10", "180.00", false},
		{"percent rounds", "99.99", DiscountPercent, "33.33", "66.66", false},
		{"percent clamped high", "100.00", DiscountPercent, "150", "0.00", false},
		{"percent clamped low", "100.00", DiscountPercent, "-5", "100.00", false},
		{"fixed", "100.00", DiscountFixed, "15.50", "84.50", false},
		{"fixed clamped to gross", "100.00", DiscountFixed, "250.00", "0.00", false},
		{"fixed clamped low", "100.00", DiscountFixed, "-10", "100.00", false},
		{"unknown type", "100.00", "bogus", "1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := applyDiscount(d(tt.gross), tt.discountType, d(tt.value))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.StringFixed(2))
		})
	}
}

func TestAbsorbResidual_Balanced(t *testing.T) {
	lines := []LineInput{
		debitLine("101", d("112.00")),
		creditLine("401", d("100.00")),
		creditLine("601", d("12.00")),
	}
	require.NoError(t, absorbResidual(lines, "101"))
	assert.Equal(t, "112.00", lines[0].Debit.StringFixed(2))
}

func TestAbsorbResidual_OneCentOntoDebit(t *testing.T) {
	// Debits exceed credits by a cent; the designated debit line gives it up.
	lines := []LineInput{
		debitLine("101", d("112.01")),
		creditLine("401", d("100.00")),
		creditLine("601", d("12.00")),
	}
	require.NoError(t, absorbResidual(lines, "101"))
	assert.Equal(t, "112.00", lines[0].Debit.StringFixed(2))
}

func TestAbsorbResidual_OneCentOntoCredit(t *testing.T) {
	// Debits exceed credits by a cent; a designated credit line absorbs it
	// by growing.
	lines := []LineInput{
		debitLine("120", d("56.00")),
		creditLine("201", d("55.99")),
	}
	require.NoError(t, absorbResidual(lines, "201"))
	assert.Equal(t, "56.00", lines[1].Credit.StringFixed(2))
}

func TestAbsorbResidual_TooLarge(t *testing.T) {
	lines := []LineInput{
		debitLine("101", d("112.05")),
		creditLine("401", d("112.00")),
	}
	err := absorbResidual(lines, "101")
	var unbalanced *UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	assert.Equal(t, "112.05", unbalanced.Debits.StringFixed(2))
	assert.Equal(t, "112.00", unbalanced.Credits.StringFixed(2))
}

func TestAbsorbResidual_SkipsLineItWouldZero(t *testing.T) {
	// A one-cent designated line cannot give up a one-cent residual without
	// dropping to zero, so it is left alone and the residual goes unabsorbed.
	lines := []LineInput{
		debitLine("101", d("0.01")),
		creditLine("401", d("10.00")),
		debitLine("501", d("10.00")),
	}
	require.Error(t, absorbResidual(lines, "101"))
	assert.Equal(t, "0.01", lines[0].Debit.StringFixed(2))
}

func TestAbsorbResidual_FallsThroughToNextDesignatedLine(t *testing.T) {
	lines := []LineInput{
		debitLine("101", d("0.01")),
		debitLine("101", d("5.00")),
		creditLine("401", d("5.00")),
	}
	require.NoError(t, absorbResidual(lines, "101"))
	assert.Equal(t, "0.01", lines[0].Debit.StringFixed(2))
	assert.Equal(t, "4.99", lines[1].Debit.StringFixed(2))
}

func TestAbsorbResidual_NoDesignatedLine(t *testing.T) {
	lines := []LineInput{
		debitLine("101", d("10.01")),
		creditLine("401", d("10.00")),
	}
	require.Error(t, absorbResidual(lines, "999"))
}
