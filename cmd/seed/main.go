// seed loads the chart of accounts and the system account role mappings
// the orchestrators depend on. It is idempotent and safe to re-run.
// Pass "demo" to also load a small set of demo parties and products.
//
// Usage: go run ./cmd/seed [demo]
package main

import (
	"context"
	"log"
	"os"

	"pos-ledger/internal/config"
	"pos-ledger/internal/db"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Seeding chart of accounts...")
	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (code, name, type)
		VALUES
		    ('101', 'Cash',                        'asset'),
		    ('110', 'Accounts Receivable',         'asset'),
		    ('120', 'Inventory',                   'asset'),
		    ('121', 'Creditable Withholding Tax',  'asset'),
		    ('201', 'Accounts Payable',            'liability'),
		    ('202', 'Due to Consignors',           'liability'),
		    ('301', 'Owner Capital',               'equity'),
		    ('401', 'Sales Revenue',               'revenue'),
		    ('402', 'Other Revenue',               'revenue'),
		    ('403', 'Commission Income',           'revenue'),
		    ('405', 'Sales Returns',               'revenue'),
		    ('406', 'Inventory Adjustment Gain',   'revenue'),
		    ('501', 'Cost of Goods Sold',          'expense'),
		    ('502', 'Inventory Shrinkage',         'expense'),
		    ('601', 'VAT Payable',                 'liability'),
		    ('602', 'VAT Input',                   'asset')
		ON CONFLICT (code) DO UPDATE
		  SET name = EXCLUDED.name,
		      type = EXCLUDED.type;
	`); err != nil {
		log.Fatalf("Failed to seed accounts: %v", err)
	}

	log.Println("Seeding system account mappings...")
	if _, err := tx.Exec(ctx, `
		INSERT INTO system_accounts (role, account_code)
		VALUES
		    ('cash',                         '101'),
		    ('accounts_receivable',          '110'),
		    ('inventory',                    '120'),
		    ('creditable_withholding_tax',   '121'),
		    ('accounts_payable',             '201'),
		    ('due_to_consignors',            '202'),
		    ('sales_revenue',                '401'),
		    ('other_revenue',                '402'),
		    ('commission_income',            '403'),
		    ('sales_returns',                '405'),
		    ('inventory_adjustment_gain',    '406'),
		    ('cogs',                         '501'),
		    ('inventory_shrinkage',          '502'),
		    ('vat_payable',                  '601'),
		    ('vat_input',                    '602')
		ON CONFLICT (role) DO UPDATE
		  SET account_code = EXCLUDED.account_code;
	`); err != nil {
		log.Fatalf("Failed to seed system accounts: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "demo" {
		log.Println("Seeding demo data...")
		if err := seedDemo(ctx, tx); err != nil {
			log.Fatalf("Failed to seed demo data: %v", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}

	log.Println("Seed complete.")
}

func seedDemo(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO customers (name, email, wht_rate_percent)
		SELECT v.name, v.email, v.rate
		FROM (VALUES
		    ('Walk-in Customer',    NULL::text,               0.00),
		    ('Mercado Hardware',    'ap@mercadohw.example',   2.00),
		    ('Santos Catering',     'office@santos.example',  1.00)
		) AS v(name, email, rate)
		WHERE NOT EXISTS (SELECT 1 FROM customers c WHERE c.name = v.name);
	`); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO suppliers (name, email)
		SELECT v.name, v.email
		FROM (VALUES
		    ('Metro Distributors', 'sales@metrodist.example'),
		    ('Golden Grains Co.',  'orders@goldengrains.example')
		) AS v(name, email)
		WHERE NOT EXISTS (SELECT 1 FROM suppliers s WHERE s.name = v.name);
	`); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO consignors (name, email, commission_rate_percent)
		SELECT v.name, v.email, v.rate
		FROM (VALUES
		    ('Luna Crafts', 'luna@crafts.example', 15.00)
		) AS v(name, email, rate)
		WHERE NOT EXISTS (SELECT 1 FROM consignors c WHERE c.name = v.name);
	`); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO products (sku, name, sale_price, is_consigned, consignor_id)
		SELECT v.sku, v.name, v.price, v.consigned,
		       CASE WHEN v.consigned THEN (SELECT id FROM consignors WHERE name = 'Luna Crafts') END
		FROM (VALUES
		    ('RICE-25KG', 'Premium Rice 25kg',        1450.00, false),
		    ('OIL-1L',    'Cooking Oil 1L',             95.00, false),
		    ('SUGAR-1KG', 'Refined Sugar 1kg',          68.00, false),
		    ('CRAFT-BAG', 'Handwoven Bag',              650.00, true)
		) AS v(sku, name, price, consigned)
		ON CONFLICT (sku) DO NOTHING;
	`); err != nil {
		return err
	}

	return nil
}
