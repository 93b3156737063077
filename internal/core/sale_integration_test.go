package core_test

import (
	"context"
	"errors"
	"testing"

	"pos-ledger/internal/core"
)

func TestSale_CashSaleSplitsVATAndPostsCOGS(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	e.stock(t, supplierID, productID, "10", "56.00") // net 50.00/unit

	sale, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 15),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("2")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	// 2 × 95.00 = 190.00 gross, VAT-inclusive: 169.64 net + 20.36 VAT.
	if sale.GrossTotal.StringFixed(2) != "190.00" {
		t.Errorf("gross: got %s, want 190.00", sale.GrossTotal.StringFixed(2))
	}
	if sale.NetTotal.StringFixed(2) != "169.64" {
		t.Errorf("net: got %s, want 169.64", sale.NetTotal.StringFixed(2))
	}
	if sale.VATTotal.StringFixed(2) != "20.36" {
		t.Errorf("vat: got %s, want 20.36", sale.VATTotal.StringFixed(2))
	}
	if sale.COGSTotal.StringFixed(2) != "100.00" {
		t.Errorf("cogs: got %s, want 100.00", sale.COGSTotal.StringFixed(2))
	}
	if sale.DocumentNumber == "" {
		t.Error("sale has no document number")
	}

	// Cash: 560.00 out for the purchase, 190.00 in from the sale. Revenue
	// and VAT payable credited, COGS moved out of inventory (500.00 in,
	// 100.00 out).
	assertBalance(t, e, "101", "-370.00")
	assertBalance(t, e, "401", "-169.64")
	assertBalance(t, e, "601", "-20.36")
	assertBalance(t, e, "501", "100.00")
	assertBalance(t, e, "120", "400.00")
}

func TestSale_PercentDiscountAppliesBeforeVAT(t *testing.T) {
	e := newTestEnv(t)

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	e.stock(t, supplierID, productID, "10", "56.00")

	sale, err := e.sales.RecordSale(context.Background(), core.SaleInput{
		SaleDate:      date(2026, 1, 15),
		DiscountType:  core.DiscountPercent,
		DiscountValue: dec("10"),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("2")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	// 190.00 gross − 10% = 171.00; VAT is split from the discounted amount.
	if sale.DiscountTotal.StringFixed(2) != "19.00" {
		t.Errorf("discount: got %s, want 19.00", sale.DiscountTotal.StringFixed(2))
	}
	if sale.CashTotal.StringFixed(2) != "171.00" {
		t.Errorf("cash total: got %s, want 171.00", sale.CashTotal.StringFixed(2))
	}
	if sale.NetTotal.StringFixed(2) != "152.68" {
		t.Errorf("net: got %s, want 152.68", sale.NetTotal.StringFixed(2))
	}
	if sale.VATTotal.StringFixed(2) != "18.32" {
		t.Errorf("vat: got %s, want 18.32", sale.VATTotal.StringFixed(2))
	}
}

func TestSale_FullDiscountPostsOnlyCOGS(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	e.stock(t, supplierID, productID, "10", "56.00")

	sale, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate:      date(2026, 1, 15),
		DiscountType:  core.DiscountPercent,
		DiscountValue: dec("100"),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("2")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	if !sale.CashTotal.IsZero() {
		t.Errorf("cash total: got %s, want 0.00", sale.CashTotal.StringFixed(2))
	}
	if sale.COGSTotal.StringFixed(2) != "100.00" {
		t.Errorf("cogs: got %s, want 100.00", sale.COGSTotal.StringFixed(2))
	}

	// Giving the goods away still moves them out of inventory at cost, but
	// there are no cash, revenue or VAT legs to post.
	assertBalance(t, e, "101", "-560.00")
	assertBalance(t, e, "401", "0.00")
	assertBalance(t, e, "601", "0.00")
	assertBalance(t, e, "501", "100.00")
	assertBalance(t, e, "120", "400.00")

	if err := e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypeSale,
		DocID:    sale.ID,
		Reason:   "promo entered twice",
		VoidedBy: "tester",
	}); err != nil {
		t.Fatalf("Void failed: %v", err)
	}
	assertBalance(t, e, "501", "0.00")
	assertBalance(t, e, "120", "500.00")
}

func TestSale_ConsignedGoodsSplitCommission(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	consignorID := e.createConsignor(t, "Luna Crafts", "15")
	product, err := e.products.CreateProduct(ctx, core.ProductInput{
		SKU:         "CRAFT-BAG",
		Name:        "Handwoven Bag",
		SalePrice:   dec("650.00"),
		IsConsigned: true,
		ConsignorID: consignorID,
	})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	// Receiving consigned goods creates memo lots but posts nothing.
	if _, err := e.consignment.ReceiveConsignment(ctx, core.ConsignmentReceiptInput{
		ConsignorID: consignorID,
		ReceiptDate: date(2026, 1, 8),
		Items: []core.ConsignmentReceiptItemInput{
			{ProductID: product.ID, Quantity: dec("5"), UnitCost: dec("400.00")},
		},
	}); err != nil {
		t.Fatalf("ReceiveConsignment failed: %v", err)
	}
	var entries int
	if err := e.pool.QueryRow(ctx, "SELECT count(*) FROM journal_entries").Scan(&entries); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if entries != 0 {
		t.Fatalf("consignment receipt must not create journal entries, found %d", entries)
	}

	sale, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 16),
		Items: []core.SaleItemInput{
			{ProductID: product.ID, Quantity: dec("1")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	// 650.00 consigned gross: 15% commission income, the rest owed to the
	// consignor. No VAT and no COGS on consigned goods.
	if sale.CommissionTotal.StringFixed(2) != "97.50" {
		t.Errorf("commission: got %s, want 97.50", sale.CommissionTotal.StringFixed(2))
	}
	if sale.ConsignorPayable.StringFixed(2) != "552.50" {
		t.Errorf("payable: got %s, want 552.50", sale.ConsignorPayable.StringFixed(2))
	}
	if !sale.VATTotal.IsZero() {
		t.Errorf("consigned sale must carry no VAT, got %s", sale.VATTotal.StringFixed(2))
	}
	if !sale.COGSTotal.IsZero() {
		t.Errorf("consigned sale must carry no COGS, got %s", sale.COGSTotal.StringFixed(2))
	}

	assertBalance(t, e, "101", "650.00")
	assertBalance(t, e, "403", "-97.50")
	assertBalance(t, e, "202", "-552.50")
	assertBalance(t, e, "120", "0.00")
}

func TestSale_VoidRestoresLotsAndReversesEntry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	e.stock(t, supplierID, productID, "10", "56.00")

	postPurchase, err := e.ledger.Aggregate(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	sale, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 15),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("4")},
		},
	})
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	if err := e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypeSale,
		DocID:    sale.ID,
		Reason:   "customer returned everything",
		VoidedBy: "tester",
	}); err != nil {
		t.Fatalf("Void failed: %v", err)
	}

	// Lots and product quantity are back to the post-purchase state.
	result, err := e.inventory.Reconcile(ctx, productID)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if !result.IsBalanced || result.LotTotal.StringFixed(0) != "10" {
		t.Errorf("expected 10 units restored and balanced, got %+v", result)
	}

	// Consumption audit rows are gone.
	var txns int
	if err := e.pool.QueryRow(ctx, `
		SELECT count(*) FROM inventory_transactions WHERE reference_type = $1 AND reference_id = $2
	`, core.RefTypeSale, sale.ID).Scan(&txns); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if txns != 0 {
		t.Errorf("expected consumption records deleted, found %d", txns)
	}

	// Every account is back where it was before the sale.
	after, err := e.ledger.Aggregate(ctx, nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	for code, before := range postPurchase {
		if !after[code].Equal(before) {
			t.Errorf("account %s: got %s, want %s after void",
				code, after[code].StringFixed(2), before.StringFixed(2))
		}
	}

	// The sale is flagged, its history intact, and a second void fails.
	voided, err := e.sales.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("GetSale failed: %v", err)
	}
	if voided.VoidedAt == nil {
		t.Error("expected voided_at set on sale")
	}

	err = e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypeSale,
		DocID:    sale.ID,
		Reason:   "again",
		VoidedBy: "tester",
	})
	var already *core.AlreadyVoidedError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyVoidedError, got %v", err)
	}
}

func TestPurchase_VoidBlockedOnceLotsAreConsumed(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	purchase := e.stock(t, supplierID, productID, "10", "56.00")

	if _, err := e.sales.RecordSale(ctx, core.SaleInput{
		SaleDate: date(2026, 1, 15),
		Items: []core.SaleItemInput{
			{ProductID: productID, Quantity: dec("1")},
		},
	}); err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	err := e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypePurchase,
		DocID:    purchase.ID,
		Reason:   "wrong supplier",
		VoidedBy: "tester",
	})
	var consumed *core.ConsumedLotsError
	if !errors.As(err, &consumed) {
		t.Fatalf("expected ConsumedLotsError, got %v", err)
	}
}

func TestPurchase_VoidRemovesUntouchedLots(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	supplierID := e.createSupplier(t, "Metro Distributors")
	productID := e.createProduct(t, "OIL-1L", "Cooking Oil 1L", "95.00")
	purchase := e.stock(t, supplierID, productID, "10", "56.00")

	if err := e.voids.Void(ctx, core.VoidInput{
		DocType:  core.RefTypePurchase,
		DocID:    purchase.ID,
		Reason:   "duplicate entry",
		VoidedBy: "tester",
	}); err != nil {
		t.Fatalf("Void failed: %v", err)
	}

	var lots int
	if err := e.pool.QueryRow(ctx, "SELECT count(*) FROM inventory_lots WHERE product_id = $1", productID).Scan(&lots); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if lots != 0 {
		t.Errorf("expected lots removed, found %d", lots)
	}

	product, err := e.products.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("GetProduct failed: %v", err)
	}
	if !product.Quantity.IsZero() {
		t.Errorf("expected quantity back to zero, got %s", product.Quantity.StringFixed(2))
	}

	assertBalance(t, e, "120", "0.00")
	assertBalance(t, e, "602", "0.00")
	assertBalance(t, e, "101", "0.00")
}
