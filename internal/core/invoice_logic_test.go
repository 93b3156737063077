package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceStatus(t *testing.T) {
	tests := []struct {
		name     string
		gross    string
		paid     string
		credited string
		want     string
	}{
		{"untouched", "100.00", "0", "0", InvoiceStatusOpen},
		{"partial payment", "100.00", "40.00", "0", InvoiceStatusPartiallyPaid},
		{"fully paid", "100.00", "100.00", "0", InvoiceStatusPaid},
		{"settled by credit memo", "100.00", "0", "100.00", InvoiceStatusPaid},
		{"payment plus credit", "100.00", "60.00", "40.00", InvoiceStatusPaid},
		{"credit only partial", "100.00", "0", "25.00", InvoiceStatusPartiallyPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := invoiceStatus(d(tt.gross), d(tt.paid), d(tt.credited))
			assert.Equal(t, tt.want, got)
		})
	}
}
