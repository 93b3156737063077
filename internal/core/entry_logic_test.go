package core_test

import (
	"errors"
	"testing"
	"time"

	"pos-ledger/internal/core"

	"github.com/shopspring/decimal"
)

func line(code, debit, credit string) core.LineInput {
	return core.LineInput{
		AccountCode: code,
		Debit:       decimal.RequireFromString(debit),
		Credit:      decimal.RequireFromString(credit),
	}
}

func TestEntryInput_NormalizationAndValidation(t *testing.T) {
	entryDate := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		description string
		lines       []core.LineInput
		expectErr   bool
	}{
		{
			name:        "happy path",
			description: "Cash sale",
			lines: []core.LineInput{
				line("101", "112.00", "0"),
				line("401", "0", "100.00"),
				line("601", "0", "12.00"),
			},
			expectErr: false,
		},
		{
			name:        "missing description",
			description: "   ",
			lines: []core.LineInput{
				line("101", "100.00", "0"),
				line("401", "0", "100.00"),
			},
			expectErr: true,
		},
		{
			name:        "single line",
			description: "Half an entry",
			lines: []core.LineInput{
				line("101", "100.00", "0"),
			},
			expectErr: true,
		},
		{
			name:        "unbalanced",
			description: "Does not add up",
			lines: []core.LineInput{
				line("101", "100.00", "0"),
				line("401", "0", "99.00"),
			},
			expectErr: true,
		},
		{
			name:        "line both debit and credit",
			description: "Confused line",
			lines: []core.LineInput{
				line("101", "50.00", "50.00"),
				line("401", "0", "0"),
			},
			expectErr: true,
		},
		{
			name:        "zero amount line",
			description: "Empty line",
			lines: []core.LineInput{
				line("101", "100.00", "0"),
				line("401", "0", "100.00"),
				line("601", "0", "0"),
			},
			expectErr: true,
		},
		{
			name:        "negative amount",
			description: "Negative line",
			lines: []core.LineInput{
				line("101", "-100.00", "0"),
				line("401", "0", "-100.00"),
			},
			expectErr: true,
		},
		{
			name:        "missing account code",
			description: "Anonymous line",
			lines: []core.LineInput{
				line("", "100.00", "0"),
				line("401", "0", "100.00"),
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := core.EntryInput{
				Description: tt.description,
				EntryDate:   entryDate,
				Lines:       tt.lines,
			}
			in.Normalize()
			err := in.Validate()

			if tt.expectErr && err == nil {
				t.Errorf("expected error, got nil")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEntryInput_MissingDate(t *testing.T) {
	in := core.EntryInput{
		Description: "No date",
		Lines: []core.LineInput{
			line("101", "100.00", "0"),
			line("401", "0", "100.00"),
		},
	}
	in.Normalize()
	if err := in.Validate(); err == nil {
		t.Error("expected error for zero entry date, got nil")
	}
}

func TestEntryInput_UnbalancedReportsTotals(t *testing.T) {
	in := core.EntryInput{
		Description: "Unbalanced",
		EntryDate:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Lines: []core.LineInput{
			line("101", "100.00", "0"),
			line("401", "0", "90.00"),
		},
	}
	in.Normalize()
	err := in.Validate()

	var unbalanced *core.UnbalancedEntryError
	if !errors.As(err, &unbalanced) {
		t.Fatalf("expected UnbalancedEntryError, got %v", err)
	}
	if unbalanced.Debits.StringFixed(2) != "100.00" || unbalanced.Credits.StringFixed(2) != "90.00" {
		t.Errorf("unexpected totals: debits %s, credits %s",
			unbalanced.Debits.StringFixed(2), unbalanced.Credits.StringFixed(2))
	}
}
