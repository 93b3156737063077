package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// round2 rounds half-up to two decimal places. All monetary amounts are
// rounded at the point of computation, never deferred.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// splitVAT decomposes a VAT-inclusive gross amount into net and VAT portions
// at the given rate: net = gross / (1 + rate), vat = gross - net.
// The two parts always sum back to the gross exactly.
func splitVAT(gross, rate decimal.Decimal) (net, vat decimal.Decimal) {
	net = round2(gross.Div(decimal.NewFromInt(1).Add(rate)))
	vat = gross.Sub(net)
	return net, vat
}

const (
	DiscountNone    = ""
	DiscountPercent = "percent"
	DiscountFixed   = "fixed"
)

// applyDiscount reduces a gross amount by a percentage (clamped to 0-100) or
// a fixed amount (clamped to the gross). Discounts apply before VAT is split
// out, so VAT is computed on the discounted amount.
func applyDiscount(gross decimal.Decimal, discountType string, value decimal.Decimal) (decimal.Decimal, error) {
	switch discountType {
	case DiscountNone:
		return gross, nil
	case DiscountPercent:
		pct := value
		if pct.IsNegative() {
			pct = decimal.Zero
		}
		if pct.GreaterThan(decimal.NewFromInt(100)) {
			pct = decimal.NewFromInt(100)
		}
		off := round2(gross.Mul(pct).Div(decimal.NewFromInt(100)))
		return gross.Sub(off), nil
	case DiscountFixed:
		off := round2(value)
		if off.IsNegative() {
			off = decimal.Zero
		}
		if off.GreaterThan(gross) {
			off = gross
		}
		return gross.Sub(off), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown discount type %q", discountType)
	}
}

// maxRoundingResidual is the largest imbalance a builder may absorb onto a
// designated line. Anything larger is a real imbalance, not rounding noise.
var maxRoundingResidual = decimal.NewFromFloat(0.01)

// SetRoundingTolerance overrides the absorbable residual, in cents. Called
// once at startup from configuration, before any orchestrator runs.
func SetRoundingTolerance(cents int) {
	if cents < 0 {
		cents = 0
	}
	maxRoundingResidual = decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
}

// absorbResidual balances a rounding residual of at most one cent by
// adjusting the first line carrying the designated account code. A line the
// adjustment would zero out or turn negative is skipped; a zero line would
// fail entry validation anyway. Larger residuals are rejected as
// UnbalancedEntryError.
func absorbResidual(lines []LineInput, accountCode string) error {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, l := range lines {
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}

	residual := totalDebit.Sub(totalCredit)
	if residual.IsZero() {
		return nil
	}
	if residual.Abs().GreaterThan(maxRoundingResidual) {
		return &UnbalancedEntryError{Debits: totalDebit, Credits: totalCredit}
	}

	for i := range lines {
		if lines[i].AccountCode != accountCode {
			continue
		}
		if lines[i].Debit.IsPositive() {
			adjusted := lines[i].Debit.Sub(residual)
			if !adjusted.IsPositive() {
				continue
			}
			lines[i].Debit = adjusted
		} else {
			adjusted := lines[i].Credit.Add(residual)
			if !adjusted.IsPositive() {
				continue
			}
			lines[i].Credit = adjusted
		}
		return nil
	}
	return fmt.Errorf("no line with account %s to absorb residual %s", accountCode, residual.StringFixed(2))
}
