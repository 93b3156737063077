package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize cleans up caller input before validation.
func (in *EntryInput) Normalize() {
	in.Description = strings.TrimSpace(in.Description)
	in.ReferenceType = strings.ToUpper(strings.TrimSpace(in.ReferenceType))
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	for i := range in.Lines {
		in.Lines[i].AccountCode = strings.TrimSpace(in.Lines[i].AccountCode)
	}
}

// Validate enforces the double-entry rules on the input: at least two lines,
// each line a pure debit or a pure credit with a positive amount, and total
// debits equal to total credits after rounding to two decimal places.
func (in *EntryInput) Validate() error {
	if in.Description == "" {
		return errors.New("entry must have a description")
	}
	if in.EntryDate.IsZero() {
		return errors.New("entry must have an entry date")
	}
	if len(in.Lines) < 2 {
		return errors.New("entry must have at least 2 lines")
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero

	for _, line := range in.Lines {
		if line.AccountCode == "" {
			return errors.New("line is missing an account code")
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("negative amount on account %s", line.AccountCode)
		}
		debit := line.Debit.IsPositive()
		credit := line.Credit.IsPositive()
		if debit == credit {
			return fmt.Errorf("line for account %s must be either a debit or a credit", line.AccountCode)
		}
		totalDebit = totalDebit.Add(round2(line.Debit))
		totalCredit = totalCredit.Add(round2(line.Credit))
	}

	if !totalDebit.Equal(totalCredit) {
		return &UnbalancedEntryError{Debits: totalDebit, Credits: totalCredit}
	}
	return nil
}
