package core_test

import (
	"context"
	"os"
	"testing"
	"time"

	"pos-ledger/internal/core"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var testVATRate = decimal.RequireFromString("0.12")

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	// Clean and seed the test DB with the standard chart and role mappings.
	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE
			journal_lines, journal_entries,
			inventory_transactions, inventory_lots,
			sale_items, sales,
			purchase_items, purchases,
			ar_invoice_items, ar_invoices,
			ap_invoice_lines, ap_invoices,
			payments, credit_memos, stock_adjustments,
			consignment_receipt_items, consignment_receipts,
			products, customers, suppliers, consignors,
			document_sequences, system_accounts, accounts
		CASCADE;

		INSERT INTO accounts (code, name, type) VALUES
		('101', 'Cash',                       'asset'),
		('110', 'Accounts Receivable',        'asset'),
		('120', 'Inventory',                  'asset'),
		('121', 'Creditable Withholding Tax', 'asset'),
		('201', 'Accounts Payable',           'liability'),
		('202', 'Due to Consignors',          'liability'),
		('301', 'Owner Capital',              'equity'),
		('401', 'Sales Revenue',              'revenue'),
		('402', 'Other Revenue',              'revenue'),
		('403', 'Commission Income',          'revenue'),
		('405', 'Sales Returns',              'revenue'),
		('406', 'Inventory Adjustment Gain',  'revenue'),
		('501', 'Cost of Goods Sold',         'expense'),
		('502', 'Inventory Shrinkage',        'expense'),
		('601', 'VAT Payable',                'liability'),
		('602', 'VAT Input',                  'asset');

		INSERT INTO system_accounts (role, account_code) VALUES
		('cash',                        '101'),
		('accounts_receivable',         '110'),
		('inventory',                   '120'),
		('creditable_withholding_tax',  '121'),
		('accounts_payable',            '201'),
		('due_to_consignors',           '202'),
		('sales_revenue',               '401'),
		('other_revenue',               '402'),
		('commission_income',           '403'),
		('sales_returns',               '405'),
		('inventory_adjustment_gain',   '406'),
		('cogs',                        '501'),
		('inventory_shrinkage',         '502'),
		('vat_payable',                 '601'),
		('vat_input',                   '602');
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

// testEnv bundles the full service wiring against the test database.
type testEnv struct {
	pool        *pgxpool.Pool
	ledger      *core.Ledger
	inventory   core.InventoryService
	products    core.ProductService
	parties     core.PartyService
	sales       core.SaleService
	purchases   core.PurchaseService
	invoices    core.InvoiceService
	adjustments core.AdjustmentService
	consignment core.ConsignmentService
	voids       core.VoidService
	reports     core.ReportingService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pool := setupTestDB(t)

	ledger := core.NewLedger(pool)
	accounts := core.NewSystemAccounts(pool)
	inventory := core.NewInventoryService(pool)

	return &testEnv{
		pool:        pool,
		ledger:      ledger,
		inventory:   inventory,
		products:    core.NewProductService(pool),
		parties:     core.NewPartyService(pool),
		sales:       core.NewSaleService(pool, ledger, inventory, accounts, testVATRate),
		purchases:   core.NewPurchaseService(pool, ledger, inventory, accounts, testVATRate),
		invoices:    core.NewInvoiceService(pool, ledger, inventory, accounts, testVATRate),
		adjustments: core.NewAdjustmentService(pool, ledger, inventory, accounts),
		consignment: core.NewConsignmentService(pool, inventory),
		voids:       core.NewVoidService(pool, ledger, inventory),
		reports:     core.NewReportingService(pool, accounts),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func (e *testEnv) createSupplier(t *testing.T, name string) int {
	t.Helper()
	s, err := e.parties.CreateSupplier(context.Background(), core.SupplierInput{Name: name})
	if err != nil {
		t.Fatalf("Failed to create supplier: %v", err)
	}
	return s.ID
}

func (e *testEnv) createCustomer(t *testing.T, name, whtRate string) int {
	t.Helper()
	c, err := e.parties.CreateCustomer(context.Background(), core.CustomerInput{
		Name:           name,
		WHTRatePercent: dec(whtRate),
	})
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return c.ID
}

func (e *testEnv) createConsignor(t *testing.T, name, commissionRate string) int {
	t.Helper()
	c, err := e.parties.CreateConsignor(context.Background(), core.ConsignorInput{
		Name:                  name,
		CommissionRatePercent: dec(commissionRate),
	})
	if err != nil {
		t.Fatalf("Failed to create consignor: %v", err)
	}
	return c.ID
}

func (e *testEnv) createProduct(t *testing.T, sku, name, salePrice string) int {
	t.Helper()
	p, err := e.products.CreateProduct(context.Background(), core.ProductInput{
		SKU:       sku,
		Name:      name,
		SalePrice: dec(salePrice),
	})
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return p.ID
}

// stock buys qty units of the product at a VAT-inclusive unit cost, which
// creates a FIFO lot and the corresponding purchase entry.
func (e *testEnv) stock(t *testing.T, supplierID, productID int, qty, unitCost string) *core.Purchase {
	t.Helper()
	purchase, err := e.purchases.RecordPurchase(context.Background(), core.PurchaseInput{
		SupplierID:    supplierID,
		PurchaseDate:  date(2026, 1, 5),
		PaymentMethod: core.PaymentMethodCash,
		Items: []core.PurchaseItemInput{
			{ProductID: productID, Quantity: dec(qty), UnitCost: dec(unitCost)},
		},
	})
	if err != nil {
		t.Fatalf("Failed to record stocking purchase: %v", err)
	}
	return purchase
}

// balance returns the debit-minus-credit balance of one account across all
// journal activity.
func (e *testEnv) balance(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	balances, err := e.ledger.Aggregate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	return balances[code]
}

func assertBalance(t *testing.T, e *testEnv, code, want string) {
	t.Helper()
	got := e.balance(t, code)
	if got.StringFixed(2) != dec(want).StringFixed(2) {
		t.Errorf("account %s balance: got %s, want %s", code, got.StringFixed(2), want)
	}
}
