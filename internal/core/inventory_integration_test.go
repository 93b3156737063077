package core_test

import (
	"context"
	"errors"
	"testing"

	"pos-ledger/internal/core"
)

func TestPurchase_CreatesLotAndBalancedEntry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "RICE-25KG", "Premium Rice 25kg", "1450.00")

	purchase := e.stock(t, supplierID, productID, "10", "11.20")

	if purchase.GrossTotal.StringFixed(2) != "112.00" {
		t.Errorf("gross: got %s, want 112.00", purchase.GrossTotal.StringFixed(2))
	}
	if purchase.NetTotal.StringFixed(2) != "100.00" {
		t.Errorf("net: got %s, want 100.00", purchase.NetTotal.StringFixed(2))
	}
	if purchase.VATTotal.StringFixed(2) != "12.00" {
		t.Errorf("vat: got %s, want 12.00", purchase.VATTotal.StringFixed(2))
	}

	// Inventory debited at net, input VAT reclaimed, cash credited at gross.
	assertBalance(t, e, "120", "100.00")
	assertBalance(t, e, "602", "12.00")
	assertBalance(t, e, "101", "-112.00")

	// The lot carries the VAT-exclusive unit cost.
	var remaining, unitCost string
	err := e.pool.QueryRow(ctx, `
		SELECT quantity_remaining::text, unit_cost::text FROM inventory_lots WHERE product_id = $1
	`, productID).Scan(&remaining, &unitCost)
	if err != nil {
		t.Fatalf("lot lookup failed: %v", err)
	}
	if dec(remaining).StringFixed(2) != "10.00" {
		t.Errorf("lot remaining: got %s, want 10", remaining)
	}
	if dec(unitCost).StringFixed(4) != "10.0000" {
		t.Errorf("lot unit cost: got %s, want 10.0000", unitCost)
	}

	product, err := e.products.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if product.Quantity.StringFixed(2) != "10.00" {
		t.Errorf("product quantity: got %s, want 10", product.Quantity.StringFixed(2))
	}
	if product.CostPrice.StringFixed(4) != "10.0000" {
		t.Errorf("product weighted average cost: got %s, want 10.0000", product.CostPrice.StringFixed(4))
	}
}

func TestPurchase_OnCreditPostsToAccountsPayable(t *testing.T) {
	e := newTestEnv(t)

	supplierID := e.createSupplier(t, "Golden Grains Co.")
	productID := e.createProduct(t, "SUGAR-1KG", "Refined Sugar 1kg", "68.00")

	_, err := e.purchases.RecordPurchase(context.Background(), core.PurchaseInput{
		SupplierID:    supplierID,
		PurchaseDate:  date(2026, 1, 6),
		PaymentMethod: core.PaymentMethodCredit,
		Items: []core.PurchaseItemInput{
			{ProductID: productID, Quantity: dec("50"), UnitCost: dec("44.80")},
		},
	})
	if err != nil {
		t.Fatalf("RecordPurchase failed: %v", err)
	}

	// 50 × 44.80 = 2240.00 gross → 2000.00 net + 240.00 VAT, owed to the supplier.
	assertBalance(t, e, "120", "2000.00")
	assertBalance(t, e, "602", "240.00")
	assertBalance(t, e, "201", "-2240.00")
	assertBalance(t, e, "101", "0.00")
}

func TestInventory_FIFOConsumesOldestLotFirst(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")

	// Two lots at different costs; the first purchase is the older lot.
	e.stock(t, supplierID, productID, "10", "56.00") // lot 1: unit cost 50.00 net
	e.stock(t, supplierID, productID, "10", "67.20") // lot 2: unit cost 60.00 net

	// Selling 12 must draw 10 from lot 1 and 2 from lot 2:
	// COGS = 10×50 + 2×60 = 620.00.
	sale, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 10),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("12")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if sale.COGSTotal.StringFixed(2) != "620.00" {
		t.Errorf("COGS: got %s, want 620.00", sale.COGSTotal.StringFixed(2))
	}

	// Lot 1 exhausted, lot 2 down to 8.
	rows, err := e.pool.Query(ctx, `
		SELECT quantity_remaining::text FROM inventory_lots
		WHERE product_id = $1 ORDER BY created_at, id
	`, productID)
	if err != nil {
		t.Fatalf("lot query failed: %v", err)
	}
	defer rows.Close()
	var remainders []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		remainders = append(remainders, dec(r).StringFixed(0))
	}
	if len(remainders) != 2 || remainders[0] != "0" || remainders[1] != "8" {
		t.Errorf("lot remainders: got %v, want [0 8]", remainders)
	}

	result, err := e.inventory.Reconcile(ctx, productID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !result.IsBalanced {
		t.Errorf("product quantity and lot total diverged: %+v", result)
	}
}

func TestInventory_EstimateCostMatchesSaleWithoutConsuming(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	e.stock(t, supplierID, productID, "10", "56.00") // net 50.00/unit
	e.stock(t, supplierID, productID, "10", "67.20") // net 60.00/unit

	// 12 units span both lots: 10×50 + 2×60 = 620.00.
	estimate, err := e.inventory.EstimateCost(ctx, productID, dec("12"))
	if err != nil {
		t.Fatalf("EstimateCost failed: %v", err)
	}
	if estimate.StringFixed(2) != "620.00" {
		t.Errorf("estimate: got %s, want 620.00", estimate.StringFixed(2))
	}

	// Estimating must not touch the lots.
	lots, err := e.inventory.LotSummary(ctx, productID)
	if err != nil {
		t.Fatalf("LotSummary failed: %v", err)
	}
	if len(lots) != 2 {
		t.Fatalf("lots: got %d, want 2", len(lots))
	}
	if lots[0].QuantityRemaining.StringFixed(0) != "10" || lots[1].QuantityRemaining.StringFixed(0) != "10" {
		t.Errorf("lot remainders changed: got %s and %s, want 10 and 10",
			lots[0].QuantityRemaining.StringFixed(0), lots[1].QuantityRemaining.StringFixed(0))
	}
	if lots[0].Value.StringFixed(2) != "500.00" || lots[1].Value.StringFixed(2) != "600.00" {
		t.Errorf("lot values: got %s and %s, want 500.00 and 600.00",
			lots[0].Value.StringFixed(2), lots[1].Value.StringFixed(2))
	}

	// A real sale of the same quantity costs out exactly the estimate.
	sale, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 10),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("12")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}
	if !sale.COGSTotal.Equal(estimate) {
		t.Errorf("sale COGS %s diverged from estimate %s",
			sale.COGSTotal.StringFixed(2), estimate.StringFixed(2))
	}

	// Exhausted lots drop out of the summary.
	lots, err = e.inventory.LotSummary(ctx, productID)
	if err != nil {
		t.Fatalf("LotSummary failed: %v", err)
	}
	if len(lots) != 1 || lots[0].QuantityRemaining.StringFixed(0) != "8" {
		t.Fatalf("lots after sale: got %+v, want one lot with 8 remaining", lots)
	}

	// Estimating beyond available stock fails the same way a sale would.
	_, err = e.inventory.EstimateCost(ctx, productID, dec("9"))
	var insufficient *core.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
}

func TestInventory_InsufficientStockRejectsWholeSale(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	e.stock(t, supplierID, productID, "5", "56.00")

	_, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 10),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("8")},
		},
	})

	var insufficient *core.InsufficientInventoryError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
	if insufficient.Available.StringFixed(0) != "5" {
		t.Errorf("available: got %s, want 5", insufficient.Available.StringFixed(0))
	}
	if insufficient.ProductName != "Cooking Oil 1L" {
		t.Errorf("error should name the product, got %q", insufficient.ProductName)
	}

	// Nothing was consumed, recorded or posted.
	var lotRemaining string
	if err := e.pool.QueryRow(ctx,
		"SELECT quantity_remaining::text FROM inventory_lots WHERE product_id = $1", productID,
	).Scan(&lotRemaining); err != nil {
		t.Fatalf("lot lookup failed: %v", err)
	}
	if dec(lotRemaining).StringFixed(0) != "5" {
		t.Errorf("lot remaining changed: got %s, want 5", lotRemaining)
	}
	var saleCount int
	if err := e.pool.QueryRow(ctx, "SELECT count(*) FROM sales").Scan(&saleCount); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if saleCount != 0 {
		t.Errorf("expected no sale rows, got %d", saleCount)
	}
}

func TestInventory_WeightedAverageIsDisplayOnly(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")

	e.stock(t, supplierID, productID, "10", "56.00") // net 50.00/unit
	e.stock(t, supplierID, productID, "10", "67.20") // net 60.00/unit

	avg, err := e.inventory.WeightedAverageCost(ctx, productID)
	if err != nil {
		t.Fatalf("WeightedAverageCost failed: %v", err)
	}
	if avg.StringFixed(2) != "55.00" {
		t.Errorf("weighted average: got %s, want 55.00", avg.StringFixed(2))
	}

	product, err := e.products.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if product.CostPrice.StringFixed(2) != "55.00" {
		t.Errorf("product cost_price: got %s, want 55.00", product.CostPrice.StringFixed(2))
	}
}

func TestAdjustment_LossAndGain(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "SUGAR-1KG", "Refined Sugar 1kg", "68.00")
	e.stock(t, supplierID, productID, "20", "44.80") // net 40.00/unit

	// Loss of 5 units: shrinkage expense at FIFO cost.
	loss, err := e.adjustments.AdjustStock(ctx, core.AdjustmentInput{
		ProductID:      productID,
		Direction:      core.AdjustmentLoss,
		AdjustmentDate: date(2026, 1, 12),
		Quantity:       dec("5"),
		Reason:         "spoilage found during count",
	})
	if err != nil {
		t.Fatalf("loss adjustment failed: %v", err)
	}
	if loss.Amount.StringFixed(2) != "200.00" {
		t.Errorf("loss amount: got %s, want 200.00", loss.Amount.StringFixed(2))
	}
	assertBalance(t, e, "502", "200.00")

	// Gain of 2 units at explicit cost: new lot plus adjustment gain.
	gain, err := e.adjustments.AdjustStock(ctx, core.AdjustmentInput{
		ProductID:      productID,
		Direction:      core.AdjustmentGain,
		AdjustmentDate: date(2026, 1, 13),
		Quantity:       dec("2"),
		UnitCost:       dec("40.00"),
		Reason:         "found in back room",
	})
	if err != nil {
		t.Fatalf("gain adjustment failed: %v", err)
	}
	if gain.Amount.StringFixed(2) != "80.00" {
		t.Errorf("gain amount: got %s, want 80.00", gain.Amount.StringFixed(2))
	}
	assertBalance(t, e, "406", "-80.00")

	// Quantity: 20 - 5 + 2 = 17, and lots agree.
	product, err := e.products.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if product.Quantity.StringFixed(0) != "17" {
		t.Errorf("quantity: got %s, want 17", product.Quantity.StringFixed(0))
	}
	result, err := e.inventory.Reconcile(ctx, productID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !result.IsBalanced {
		t.Errorf("reconciliation off after adjustments: %+v", result)
	}
}
