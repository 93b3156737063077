// posledger is the operator CLI over the ledger, inventory and
// document services. Document commands read a JSON payload from stdin
// and print the recorded document; report commands print tables.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"pos-ledger/internal/config"
	"pos-ledger/internal/core"
	"pos-ledger/internal/db"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const usage = `Usage: posledger <command> [args]

Documents (JSON on stdin):
  sale             record a point-of-sale transaction
  purchase         record a stock purchase
  ar-invoice       create a credit sale invoice
  ap-invoice       create a supplier bill
  payment          settle an invoice
  credit-memo      issue a credit memo against an AR invoice
  adjust           record a stock adjustment
  consign          receive consigned goods
  journal          record a manual journal entry

Other:
  void <type> <id> <voided-by> <reason...>
  products
  estimate <product-id> <qty>
  lots <product-id>
  reconcile <product-id>
  trial-balance [start end]
  balance-sheet [as-of]
  income-statement [start end]
  general-ledger <account-code> [start end]
  vat-return <year> <month>

Dates are YYYY-MM-DD.`

type services struct {
	ledger      *core.Ledger
	sales       core.SaleService
	purchases   core.PurchaseService
	invoices    core.InvoiceService
	adjustments core.AdjustmentService
	consignment core.ConsignmentService
	voids       core.VoidService
	inventory   core.InventoryService
	products    core.ProductService
	reports     core.ReportingService
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	core.SetRoundingTolerance(cfg.RoundingToleranceCents)
	ledger := core.NewLedger(pool)
	accounts := core.NewSystemAccounts(pool)
	inventory := core.NewInventoryService(pool)
	svc := services{
		ledger:      ledger,
		sales:       core.NewSaleService(pool, ledger, inventory, accounts, cfg.VAT()),
		purchases:   core.NewPurchaseService(pool, ledger, inventory, accounts, cfg.VAT()),
		invoices:    core.NewInvoiceService(pool, ledger, inventory, accounts, cfg.VAT()),
		adjustments: core.NewAdjustmentService(pool, ledger, inventory, accounts),
		consignment: core.NewConsignmentService(pool, inventory),
		voids:       core.NewVoidService(pool, ledger, inventory),
		inventory:   inventory,
		products:    core.NewProductService(pool),
		reports:     core.NewReportingService(pool, accounts),
	}

	if err := run(ctx, svc, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, svc services, command string, args []string) error {
	switch command {
	case "sale":
		var input core.SaleInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		sale, err := svc.sales.RecordSale(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(sale)

	case "purchase":
		var input core.PurchaseInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		purchase, err := svc.purchases.RecordPurchase(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(purchase)

	case "ar-invoice":
		var input core.ARInvoiceInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		invoice, err := svc.invoices.CreateARInvoice(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(invoice)

	case "ap-invoice":
		var input core.APInvoiceInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		invoice, err := svc.invoices.CreateAPInvoice(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(invoice)

	case "payment":
		var input core.PaymentInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		payment, err := svc.invoices.RecordPayment(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(payment)

	case "credit-memo":
		var input core.CreditMemoInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		memo, err := svc.invoices.CreateCreditMemo(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(memo)

	case "adjust":
		var input core.AdjustmentInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		adjustment, err := svc.adjustments.AdjustStock(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(adjustment)

	case "consign":
		var input core.ConsignmentReceiptInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		receipt, err := svc.consignment.ReceiveConsignment(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(receipt)

	case "journal":
		var input core.EntryInput
		if err := json.NewDecoder(os.Stdin).Decode(&input); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		// Manual entries carry the JOURNAL reference so they stay voidable
		// on their own; document references belong to the document commands.
		if input.ReferenceType == "" {
			input.ReferenceType = core.RefTypeJournal
		}
		if input.ReferenceType != core.RefTypeJournal {
			return fmt.Errorf("manual entries cannot reference %s documents", input.ReferenceType)
		}
		entry, err := svc.ledger.Record(ctx, input)
		if err != nil {
			return err
		}
		return printJSON(entry)

	case "void":
		if len(args) < 4 {
			return fmt.Errorf("usage: posledger void <type> <id> <voided-by> <reason...>")
		}
		docID, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid document id %q", args[1])
		}
		if err := svc.voids.Void(ctx, core.VoidInput{
			DocType:  args[0],
			DocID:    docID,
			VoidedBy: args[2],
			Reason:   strings.Join(args[3:], " "),
		}); err != nil {
			return err
		}
		fmt.Printf("Voided %s %d.\n", args[0], docID)
		return nil

	case "products":
		return printProducts(ctx, svc)

	case "estimate":
		if len(args) < 2 {
			return fmt.Errorf("usage: posledger estimate <product-id> <qty>")
		}
		productID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		qty, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}
		cost, err := svc.inventory.EstimateCost(ctx, productID, qty)
		if err != nil {
			return err
		}
		fmt.Printf("FIFO cost for %s units of product %d: %s\n", qty.String(), productID, cost.StringFixed(2))
		return nil

	case "lots":
		if len(args) < 1 {
			return fmt.Errorf("usage: posledger lots <product-id>")
		}
		productID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		return printLots(ctx, svc, productID)

	case "reconcile":
		if len(args) < 1 {
			return fmt.Errorf("usage: posledger reconcile <product-id>")
		}
		productID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}
		result, err := svc.inventory.Reconcile(ctx, productID)
		if err != nil {
			return err
		}
		return printJSON(result)

	case "trial-balance":
		start, end, err := parseRange(args)
		if err != nil {
			return err
		}
		return printTrialBalance(ctx, svc, start, end)

	case "balance-sheet":
		asOf := time.Now()
		if len(args) > 0 {
			parsed, err := parseDate(args[0])
			if err != nil {
				return err
			}
			asOf = parsed
		}
		return printBalanceSheet(ctx, svc, asOf)

	case "income-statement":
		start, end, err := parseRange(args)
		if err != nil {
			return err
		}
		return printIncomeStatement(ctx, svc, start, end)

	case "general-ledger":
		if len(args) < 1 {
			return fmt.Errorf("usage: posledger general-ledger <account-code> [start end]")
		}
		start, end, err := parseRange(args[1:])
		if err != nil {
			return err
		}
		return printGeneralLedger(ctx, svc, args[0], start, end)

	case "vat-return":
		if len(args) < 2 {
			return fmt.Errorf("usage: posledger vat-return <year> <month>")
		}
		year, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid year %q", args[0])
		}
		month, err := strconv.Atoi(args[1])
		if err != nil || month < 1 || month > 12 {
			return fmt.Errorf("invalid month %q", args[1])
		}
		ret, err := svc.reports.GetVATReturn(ctx, year, time.Month(month))
		if err != nil {
			return err
		}
		return printJSON(ret)

	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil

	default:
		return fmt.Errorf("unknown command %q (run posledger help)", command)
	}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseRange(args []string) (start, end *time.Time, err error) {
	if len(args) > 0 {
		t, err := parseDate(args[0])
		if err != nil {
			return nil, nil, err
		}
		start = &t
	}
	if len(args) > 1 {
		t, err := parseDate(args[1])
		if err != nil {
			return nil, nil, err
		}
		end = &t
	}
	return start, end, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProducts(ctx context.Context, svc services) error {
	products, err := svc.products.GetProducts(ctx, false)
	if err != nil {
		return err
	}
	fmt.Printf("%-5s %-12s %-30s %10s %10s %10s %s\n", "ID", "SKU", "NAME", "QTY", "AVG COST", "PRICE", "FLAGS")
	fmt.Println(strings.Repeat("-", 88))
	for _, p := range products {
		var flags []string
		if !p.IsActive {
			flags = append(flags, "inactive")
		}
		if p.IsConsigned {
			flags = append(flags, "consigned")
		}
		fmt.Printf("%-5d %-12s %-30s %10s %10s %10s %s\n",
			p.ID, p.SKU, p.Name,
			p.Quantity.StringFixed(2), p.CostPrice.StringFixed(2), p.SalePrice.StringFixed(2),
			strings.Join(flags, ","))
	}
	return nil
}

func printLots(ctx context.Context, svc services, productID int) error {
	lots, err := svc.inventory.LotSummary(ctx, productID)
	if err != nil {
		return err
	}
	fmt.Printf("%-6s %-12s %12s %12s %14s\n", "LOT", "RECEIVED", "REMAINING", "UNIT COST", "VALUE")
	fmt.Println(strings.Repeat("-", 60))
	total := decimal.Zero
	for _, l := range lots {
		fmt.Printf("%-6d %-12s %12s %12s %14s\n",
			l.LotID, l.ReceivedAt.Format("2006-01-02"),
			l.QuantityRemaining.StringFixed(2), l.UnitCost.StringFixed(4), l.Value.StringFixed(2))
		total = total.Add(l.Value)
	}
	fmt.Printf("%-32s %27s\n", "TOTAL", total.StringFixed(2))
	return nil
}

func printTrialBalance(ctx context.Context, svc services, start, end *time.Time) error {
	rows, err := svc.reports.TrialBalance(ctx, start, end)
	if err != nil {
		return err
	}
	fmt.Printf("%-8s %-32s %14s %14s\n", "CODE", "NAME", "DEBIT", "CREDIT")
	fmt.Println(strings.Repeat("-", 72))
	for _, r := range rows {
		fmt.Printf("%-8s %-32s %14s %14s\n", r.Code, r.Name, r.Debit.StringFixed(2), r.Credit.StringFixed(2))
	}
	return nil
}

func printBalanceSheet(ctx context.Context, svc services, asOf time.Time) error {
	bs, err := svc.reports.GetBalanceSheet(ctx, asOf)
	if err != nil {
		return err
	}
	section := func(title string, lines []core.ReportLine, total string) {
		fmt.Printf("\n%s\n", title)
		for _, l := range lines {
			fmt.Printf("  %-8s %-32s %14s\n", l.Code, l.Name, l.Amount.StringFixed(2))
		}
		fmt.Printf("  %-41s %14s\n", "TOTAL", total)
	}
	fmt.Printf("BALANCE SHEET as of %s\n", asOf.Format("2006-01-02"))
	section("ASSETS", bs.Assets, bs.TotalAssets.StringFixed(2))
	section("LIABILITIES", bs.Liabilities, bs.TotalLiabilities.StringFixed(2))
	section("EQUITY", bs.Equity, bs.TotalEquity.StringFixed(2))
	if !bs.IsBalanced {
		fmt.Println("\nWARNING: balance sheet does not balance")
	}
	return nil
}

func printIncomeStatement(ctx context.Context, svc services, start, end *time.Time) error {
	is, err := svc.reports.GetIncomeStatement(ctx, start, end)
	if err != nil {
		return err
	}
	fmt.Println("INCOME STATEMENT")
	fmt.Println("\nREVENUE")
	for _, l := range is.Revenue {
		fmt.Printf("  %-8s %-32s %14s\n", l.Code, l.Name, l.Amount.StringFixed(2))
	}
	fmt.Printf("  %-41s %14s\n", "TOTAL REVENUE", is.TotalRevenue.StringFixed(2))
	fmt.Printf("\n  %-41s %14s\n", "COST OF GOODS SOLD", is.COGS.StringFixed(2))
	fmt.Printf("  %-41s %14s\n", "GROSS PROFIT", is.GrossProfit.StringFixed(2))
	fmt.Println("\nOPERATING EXPENSES")
	for _, l := range is.Expenses {
		fmt.Printf("  %-8s %-32s %14s\n", l.Code, l.Name, l.Amount.StringFixed(2))
	}
	fmt.Printf("  %-41s %14s\n", "TOTAL EXPENSES", is.TotalExpenses.StringFixed(2))
	fmt.Printf("\n  %-41s %14s\n", "NET INCOME", is.NetIncome.StringFixed(2))
	return nil
}

func printGeneralLedger(ctx context.Context, svc services, code string, start, end *time.Time) error {
	lines, err := svc.reports.GeneralLedger(ctx, code, start, end)
	if err != nil {
		return err
	}
	fmt.Printf("%-12s %-40s %12s %12s %14s\n", "DATE", "DESCRIPTION", "DEBIT", "CREDIT", "BALANCE")
	fmt.Println(strings.Repeat("-", 94))
	for _, l := range lines {
		fmt.Printf("%-12s %-40s %12s %12s %14s\n",
			l.EntryDate.Format("2006-01-02"), l.Description,
			l.Debit.StringFixed(2), l.Credit.StringFixed(2), l.RunningBalance.StringFixed(2))
	}
	return nil
}
