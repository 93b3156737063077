package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type InvoiceService interface {
	// CreateARInvoice posts a credit sale: FIFO consumption, COGS and the
	// receivable in one transaction.
	CreateARInvoice(ctx context.Context, input ARInvoiceInput) (*ARInvoice, error)
	GetARInvoice(ctx context.Context, id int) (*ARInvoice, error)

	// CreateAPInvoice posts a supplier bill against expense accounts.
	CreateAPInvoice(ctx context.Context, input APInvoiceInput) (*APInvoice, error)
	GetAPInvoice(ctx context.Context, id int) (*APInvoice, error)

	// RecordPayment settles part of an AR or AP invoice. AR payments
	// withhold creditable tax per the customer's rate.
	RecordPayment(ctx context.Context, input PaymentInput) (*Payment, error)
	GetPayment(ctx context.Context, id int) (*Payment, error)

	// CreateCreditMemo reduces an AR invoice and claws back output VAT.
	CreateCreditMemo(ctx context.Context, input CreditMemoInput) (*CreditMemo, error)
}

type ARInvoiceInput struct {
	CustomerID     int                  `validate:"required"`
	InvoiceDate    time.Time            `validate:"required"`
	DueDate        time.Time
	Items          []ARInvoiceItemInput `validate:"required,min=1,dive"`
	DiscountType   string               `validate:"omitempty,oneof=percent fixed"`
	DiscountValue  decimal.Decimal
	IdempotencyKey string
}

type ARInvoiceItemInput struct {
	ProductID int `validate:"required"`
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

type APInvoiceInput struct {
	SupplierID     int                  `validate:"required"`
	InvoiceDate    time.Time            `validate:"required"`
	DueDate        time.Time
	Lines          []APInvoiceLineInput `validate:"required,min=1,dive"`
	IdempotencyKey string
}

type APInvoiceLineInput struct {
	AccountCode string `validate:"required"`
	Description string
	// Amount is the VAT-inclusive amount for this line.
	Amount decimal.Decimal
}

type PaymentInput struct {
	InvoiceType    string    `validate:"required,oneof=AR AP"`
	InvoiceID      int       `validate:"required"`
	PaymentDate    time.Time `validate:"required"`
	Amount         decimal.Decimal
	IdempotencyKey string
}

type CreditMemoInput struct {
	InvoiceID      int       `validate:"required"`
	MemoDate       time.Time `validate:"required"`
	Amount         decimal.Decimal
	Reason         string `validate:"required"`
	IdempotencyKey string
}

type invoiceService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory InventoryService
	accounts  *SystemAccounts
	vatRate   decimal.Decimal
}

func NewInvoiceService(pool *pgxpool.Pool, ledger *Ledger, inventory InventoryService, accounts *SystemAccounts, vatRate decimal.Decimal) InvoiceService {
	return &invoiceService{pool: pool, ledger: ledger, inventory: inventory, accounts: accounts, vatRate: vatRate}
}

// invoiceStatus derives the lifecycle status from the amounts settled so far.
func invoiceStatus(gross, paid, credited decimal.Decimal) string {
	settled := paid.Add(credited)
	switch {
	case settled.GreaterThanOrEqual(gross):
		return InvoiceStatusPaid
	case settled.IsPositive():
		return InvoiceStatusPartiallyPaid
	default:
		return InvoiceStatusOpen
	}
}

// ── AR invoices ───────────────────────────────────────────────────────────────

func (s *invoiceService) CreateARInvoice(ctx context.Context, input ARInvoiceInput) (*ARInvoice, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid invoice input: %w", err)
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("invoice quantity must be positive for product %d", item.ProductID)
		}
		if item.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("unit price cannot be negative for product %d", item.ProductID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var customerActive bool
	err = tx.QueryRow(ctx, "SELECT is_active FROM customers WHERE id = $1", input.CustomerID).Scan(&customerActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %d not found", input.CustomerID)
		}
		return nil, fmt.Errorf("failed to resolve customer %d: %w", input.CustomerID, err)
	}
	if !customerActive {
		return nil, fmt.Errorf("customer %d is inactive", input.CustomerID)
	}

	// Credit sales cover owned goods only; consigned items go through the
	// cash register so the consignor settlement stays tied to receipts.
	type pricedItem struct {
		productID int
		quantity  decimal.Decimal
		unitPrice decimal.Decimal
		gross     decimal.Decimal
	}
	var priced []pricedItem
	grossTotal := decimal.Zero
	for _, item := range input.Items {
		var name string
		var isActive, isConsigned bool
		var listPrice decimal.Decimal
		err := tx.QueryRow(ctx, `
			SELECT name, is_active, is_consigned, sale_price
			FROM products WHERE id = $1
			FOR UPDATE
		`, item.ProductID).Scan(&name, &isActive, &isConsigned, &listPrice)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product %d not found", item.ProductID)
			}
			return nil, fmt.Errorf("failed to resolve product %d: %w", item.ProductID, err)
		}
		if !isActive {
			return nil, fmt.Errorf("product %q is inactive", name)
		}
		if isConsigned {
			return nil, fmt.Errorf("consigned product %q cannot be sold on credit", name)
		}

		price := item.UnitPrice
		if price.IsZero() {
			price = listPrice
		}
		gross := round2(item.Quantity.Mul(price))
		priced = append(priced, pricedItem{item.ProductID, item.Quantity, price, gross})
		grossTotal = grossTotal.Add(gross)
	}

	discounted, err := applyDiscount(grossTotal, input.DiscountType, input.DiscountValue)
	if err != nil {
		return nil, err
	}
	discountTotal := grossTotal.Sub(discounted)
	net, vat := splitVAT(discounted, s.vatRate)

	docNumber, err := documentNumberTx(ctx, tx, NumARInvoice, input.InvoiceDate)
	if err != nil {
		return nil, err
	}

	var dueDate *time.Time
	if !input.DueDate.IsZero() {
		dueDate = &input.DueDate
	}

	inv := &ARInvoice{
		DocumentNumber: docNumber,
		CustomerID:     input.CustomerID,
		InvoiceDate:    input.InvoiceDate,
		DueDate:        dueDate,
		GrossTotal:     discounted,
		DiscountTotal:  discountTotal,
		NetTotal:       net,
		VATTotal:       vat,
		Status:         InvoiceStatusOpen,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ar_invoices (document_number, customer_id, invoice_date, due_date,
		                         gross_total, discount_total, net_total, vat_total, cogs_total,
		                         paid, credited, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, 0, 0, $9)
		RETURNING id, created_at
	`, docNumber, input.CustomerID, input.InvoiceDate, dueDate,
		discounted, discountTotal, net, vat, InvoiceStatusOpen,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	cogsTotal := decimal.Zero
	for _, p := range priced {
		cogs, _, err := s.inventory.ConsumeTx(ctx, tx, p.productID, p.quantity, RefTypeARInvoice, inv.ID)
		if err != nil {
			return nil, err
		}
		cogsTotal = cogsTotal.Add(cogs)

		item := ARInvoiceItem{
			InvoiceID: inv.ID,
			ProductID: p.productID,
			Quantity:  p.quantity,
			UnitPrice: p.unitPrice,
			Gross:     p.gross,
			COGS:      cogs,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO ar_invoice_items (invoice_id, product_id, quantity, unit_price, gross, cogs)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, inv.ID, p.productID, p.quantity, p.unitPrice, p.gross, cogs).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)

		_, err = tx.Exec(ctx, "UPDATE products SET quantity = quantity - $1 WHERE id = $2", p.quantity, p.productID)
		if err != nil {
			return nil, fmt.Errorf("failed to update quantity for product %d: %w", p.productID, err)
		}
	}
	inv.COGSTotal = cogsTotal

	_, err = tx.Exec(ctx, "UPDATE ar_invoices SET cogs_total = $1 WHERE id = $2", cogsTotal, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice totals: %w", err)
	}

	ar, err := s.accounts.ResolveTx(ctx, tx, RoleAR)
	if err != nil {
		return nil, err
	}
	revenue, err := s.accounts.ResolveTx(ctx, tx, RoleSalesRevenue)
	if err != nil {
		return nil, err
	}
	vatPayable, err := s.accounts.ResolveTx(ctx, tx, RoleVATPayable)
	if err != nil {
		return nil, err
	}
	cogsAcct, err := s.accounts.ResolveTx(ctx, tx, RoleCOGS)
	if err != nil {
		return nil, err
	}
	inventoryAcct, err := s.accounts.ResolveTx(ctx, tx, RoleInventory)
	if err != nil {
		return nil, err
	}

	// A full discount zeroes the receivable, revenue and VAT legs; what
	// remains is the COGS pair, which balances on its own. An invoice for
	// zero-cost goods at full discount posts nothing at all.
	var lines []LineInput
	if discounted.IsPositive() {
		lines = append(lines, debitLine(ar, discounted))
	}
	if net.IsPositive() {
		lines = append(lines, creditLine(revenue, net))
	}
	if vat.IsPositive() {
		lines = append(lines, creditLine(vatPayable, vat))
	}
	if cogsTotal.IsPositive() {
		lines = append(lines,
			debitLine(cogsAcct, cogsTotal),
			creditLine(inventoryAcct, cogsTotal),
		)
	}
	if len(lines) > 0 {
		absorbOn := ar
		if !discounted.IsPositive() {
			absorbOn = cogsAcct
		}
		if err := absorbResidual(lines, absorbOn); err != nil {
			return nil, err
		}
		_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
			Description:    fmt.Sprintf("Invoice %s", docNumber),
			EntryDate:      input.InvoiceDate,
			ReferenceType:  RefTypeARInvoice,
			ReferenceID:    inv.ID,
			IdempotencyKey: input.IdempotencyKey,
			Lines:          lines,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return inv, nil
}

func (s *invoiceService) GetARInvoice(ctx context.Context, id int) (*ARInvoice, error) {
	inv := &ARInvoice{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, customer_id, invoice_date, due_date, gross_total, discount_total,
		       net_total, vat_total, cogs_total, paid, credited, status,
		       voided_at, voided_by, void_reason, created_at
		FROM ar_invoices WHERE id = $1
	`, id).Scan(
		&inv.ID, &inv.DocumentNumber, &inv.CustomerID, &inv.InvoiceDate, &inv.DueDate,
		&inv.GrossTotal, &inv.DiscountTotal, &inv.NetTotal, &inv.VATTotal, &inv.COGSTotal,
		&inv.Paid, &inv.Credited, &inv.Status,
		&inv.VoidedAt, &inv.VoidedBy, &inv.VoidReason, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d not found", id)
		}
		return nil, fmt.Errorf("fetch invoice %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, product_id, quantity, unit_price, gross, cogs
		FROM ar_invoice_items WHERE invoice_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item ARInvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.Gross, &item.COGS); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, nil
}

// ── AP invoices ───────────────────────────────────────────────────────────────

func (s *invoiceService) CreateAPInvoice(ctx context.Context, input APInvoiceInput) (*APInvoice, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid invoice input: %w", err)
	}
	for _, line := range input.Lines {
		if !line.Amount.IsPositive() {
			return nil, fmt.Errorf("line amount must be positive for account %s", line.AccountCode)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var supplierActive bool
	err = tx.QueryRow(ctx, "SELECT is_active FROM suppliers WHERE id = $1", input.SupplierID).Scan(&supplierActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("supplier %d not found", input.SupplierID)
		}
		return nil, fmt.Errorf("failed to resolve supplier %d: %w", input.SupplierID, err)
	}
	if !supplierActive {
		return nil, fmt.Errorf("supplier %d is inactive", input.SupplierID)
	}

	grossTotal := decimal.Zero
	netTotal := decimal.Zero
	type pricedLine struct {
		input APInvoiceLineInput
		gross decimal.Decimal
		net   decimal.Decimal
	}
	var priced []pricedLine
	for _, line := range input.Lines {
		gross := round2(line.Amount)
		net, _ := splitVAT(gross, s.vatRate)
		priced = append(priced, pricedLine{input: line, gross: gross, net: net})
		grossTotal = grossTotal.Add(gross)
		netTotal = netTotal.Add(net)
	}
	vatTotal := grossTotal.Sub(netTotal)

	docNumber, err := documentNumberTx(ctx, tx, NumAPInvoice, input.InvoiceDate)
	if err != nil {
		return nil, err
	}

	var dueDate *time.Time
	if !input.DueDate.IsZero() {
		dueDate = &input.DueDate
	}

	inv := &APInvoice{
		DocumentNumber: docNumber,
		SupplierID:     input.SupplierID,
		InvoiceDate:    input.InvoiceDate,
		DueDate:        dueDate,
		GrossTotal:     grossTotal,
		NetTotal:       netTotal,
		VATTotal:       vatTotal,
		Status:         InvoiceStatusOpen,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO ap_invoices (document_number, supplier_id, invoice_date, due_date,
		                         gross_total, net_total, vat_total, paid, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		RETURNING id, created_at
	`, docNumber, input.SupplierID, input.InvoiceDate, dueDate,
		grossTotal, netTotal, vatTotal, InvoiceStatusOpen,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert invoice: %w", err)
	}

	entryLines := make([]LineInput, 0, len(priced)+2)
	for _, p := range priced {
		line := APInvoiceLine{
			InvoiceID:   inv.ID,
			AccountCode: p.input.AccountCode,
			Description: p.input.Description,
			Gross:       p.gross,
			Net:         p.net,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO ap_invoice_lines (invoice_id, account_code, description, gross, net)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, inv.ID, p.input.AccountCode, p.input.Description, p.gross, p.net).Scan(&line.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, line)
		entryLines = append(entryLines, debitLine(p.input.AccountCode, p.net))
	}

	vatInput, err := s.accounts.ResolveTx(ctx, tx, RoleVATInput)
	if err != nil {
		return nil, err
	}
	ap, err := s.accounts.ResolveTx(ctx, tx, RoleAP)
	if err != nil {
		return nil, err
	}

	if vatTotal.IsPositive() {
		entryLines = append(entryLines, debitLine(vatInput, vatTotal))
	}
	entryLines = append(entryLines, creditLine(ap, grossTotal))
	if err := absorbResidual(entryLines, ap); err != nil {
		return nil, err
	}

	_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
		Description:    fmt.Sprintf("Bill %s", docNumber),
		EntryDate:      input.InvoiceDate,
		ReferenceType:  RefTypeAPInvoice,
		ReferenceID:    inv.ID,
		IdempotencyKey: input.IdempotencyKey,
		Lines:          entryLines,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invoice: %w", err)
	}
	return inv, nil
}

func (s *invoiceService) GetAPInvoice(ctx context.Context, id int) (*APInvoice, error) {
	inv := &APInvoice{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, supplier_id, invoice_date, due_date,
		       gross_total, net_total, vat_total, paid, status,
		       voided_at, voided_by, void_reason, created_at
		FROM ap_invoices WHERE id = $1
	`, id).Scan(
		&inv.ID, &inv.DocumentNumber, &inv.SupplierID, &inv.InvoiceDate, &inv.DueDate,
		&inv.GrossTotal, &inv.NetTotal, &inv.VATTotal, &inv.Paid, &inv.Status,
		&inv.VoidedAt, &inv.VoidedBy, &inv.VoidReason, &inv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d not found", id)
		}
		return nil, fmt.Errorf("fetch invoice %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, invoice_id, account_code, description, gross, net
		FROM ap_invoice_lines WHERE invoice_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch invoice lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line APInvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.AccountCode, &line.Description,
			&line.Gross, &line.Net); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, line)
	}
	return inv, nil
}

// ── Payments ──────────────────────────────────────────────────────────────────

func (s *invoiceService) RecordPayment(ctx context.Context, input PaymentInput) (*Payment, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid payment input: %w", err)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("payment amount must be positive, got %s", input.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	amount := round2(input.Amount)
	var entryLines []LineInput
	wht := decimal.Zero
	cashAmount := amount

	switch input.InvoiceType {
	case InvoiceTypeAR:
		var gross, paid, credited, whtRate decimal.Decimal
		var voidedAt *time.Time
		err = tx.QueryRow(ctx, `
			SELECT i.gross_total, i.paid, i.credited, i.voided_at, c.wht_rate_percent
			FROM ar_invoices i
			JOIN customers c ON c.id = i.customer_id
			WHERE i.id = $1
			FOR UPDATE OF i
		`, input.InvoiceID).Scan(&gross, &paid, &credited, &voidedAt, &whtRate)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("invoice %d not found", input.InvoiceID)
			}
			return nil, fmt.Errorf("failed to lock invoice %d: %w", input.InvoiceID, err)
		}
		if voidedAt != nil {
			return nil, &AlreadyVoidedError{DocType: RefTypeARInvoice, DocID: input.InvoiceID}
		}
		outstanding := gross.Sub(paid).Sub(credited)
		if amount.GreaterThan(outstanding) {
			return nil, fmt.Errorf("payment %s exceeds outstanding balance %s on invoice %d",
				amount.StringFixed(2), outstanding.StringFixed(2), input.InvoiceID)
		}

		// Withholding is computed on the VAT-exclusive base of the amount
		// being settled.
		if whtRate.IsPositive() {
			base, _ := splitVAT(amount, s.vatRate)
			wht = round2(base.Mul(whtRate).Div(decimal.NewFromInt(100)))
			cashAmount = amount.Sub(wht)
		}

		newPaid := paid.Add(amount)
		_, err = tx.Exec(ctx, "UPDATE ar_invoices SET paid = $1, status = $2 WHERE id = $3",
			newPaid, invoiceStatus(gross, newPaid, credited), input.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("failed to update invoice %d: %w", input.InvoiceID, err)
		}

		cash, err := s.accounts.ResolveTx(ctx, tx, RoleCash)
		if err != nil {
			return nil, err
		}
		ar, err := s.accounts.ResolveTx(ctx, tx, RoleAR)
		if err != nil {
			return nil, err
		}
		entryLines = []LineInput{debitLine(cash, cashAmount)}
		if wht.IsPositive() {
			cwt, err := s.accounts.ResolveTx(ctx, tx, RoleCWT)
			if err != nil {
				return nil, err
			}
			entryLines = append(entryLines, debitLine(cwt, wht))
		}
		entryLines = append(entryLines, creditLine(ar, amount))

	case InvoiceTypeAP:
		var gross, paid decimal.Decimal
		var voidedAt *time.Time
		err = tx.QueryRow(ctx, `
			SELECT gross_total, paid, voided_at FROM ap_invoices WHERE id = $1 FOR UPDATE
		`, input.InvoiceID).Scan(&gross, &paid, &voidedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("invoice %d not found", input.InvoiceID)
			}
			return nil, fmt.Errorf("failed to lock invoice %d: %w", input.InvoiceID, err)
		}
		if voidedAt != nil {
			return nil, &AlreadyVoidedError{DocType: RefTypeAPInvoice, DocID: input.InvoiceID}
		}
		outstanding := gross.Sub(paid)
		if amount.GreaterThan(outstanding) {
			return nil, fmt.Errorf("payment %s exceeds outstanding balance %s on invoice %d",
				amount.StringFixed(2), outstanding.StringFixed(2), input.InvoiceID)
		}

		newPaid := paid.Add(amount)
		_, err = tx.Exec(ctx, "UPDATE ap_invoices SET paid = $1, status = $2 WHERE id = $3",
			newPaid, invoiceStatus(gross, newPaid, decimal.Zero), input.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("failed to update invoice %d: %w", input.InvoiceID, err)
		}

		cash, err := s.accounts.ResolveTx(ctx, tx, RoleCash)
		if err != nil {
			return nil, err
		}
		ap, err := s.accounts.ResolveTx(ctx, tx, RoleAP)
		if err != nil {
			return nil, err
		}
		entryLines = []LineInput{
			debitLine(ap, amount),
			creditLine(cash, amount),
		}
	}

	docNumber, err := documentNumberTx(ctx, tx, NumPayment, input.PaymentDate)
	if err != nil {
		return nil, err
	}

	payment := &Payment{
		DocumentNumber: docNumber,
		InvoiceType:    input.InvoiceType,
		InvoiceID:      input.InvoiceID,
		PaymentDate:    input.PaymentDate,
		Amount:         amount,
		WHTAmount:      wht,
		CashAmount:     cashAmount,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO payments (document_number, invoice_type, invoice_id, payment_date, amount, wht_amount, cash_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, docNumber, input.InvoiceType, input.InvoiceID, input.PaymentDate, amount, wht, cashAmount,
	).Scan(&payment.ID, &payment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}

	_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
		Description:    fmt.Sprintf("Payment %s", docNumber),
		EntryDate:      input.PaymentDate,
		ReferenceType:  RefTypePayment,
		ReferenceID:    payment.ID,
		IdempotencyKey: input.IdempotencyKey,
		Lines:          entryLines,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}
	return payment, nil
}

func (s *invoiceService) GetPayment(ctx context.Context, id int) (*Payment, error) {
	p := &Payment{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, invoice_type, invoice_id, payment_date,
		       amount, wht_amount, cash_amount, voided_at, voided_by, void_reason, created_at
		FROM payments WHERE id = $1
	`, id).Scan(
		&p.ID, &p.DocumentNumber, &p.InvoiceType, &p.InvoiceID, &p.PaymentDate,
		&p.Amount, &p.WHTAmount, &p.CashAmount,
		&p.VoidedAt, &p.VoidedBy, &p.VoidReason, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment %d not found", id)
		}
		return nil, fmt.Errorf("fetch payment %d: %w", id, err)
	}
	return p, nil
}

// ── Credit memos ──────────────────────────────────────────────────────────────

func (s *invoiceService) CreateCreditMemo(ctx context.Context, input CreditMemoInput) (*CreditMemo, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid credit memo input: %w", err)
	}
	if !input.Amount.IsPositive() {
		return nil, fmt.Errorf("credit memo amount must be positive, got %s", input.Amount)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var gross, paid, credited decimal.Decimal
	var voidedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT gross_total, paid, credited, voided_at FROM ar_invoices WHERE id = $1 FOR UPDATE
	`, input.InvoiceID).Scan(&gross, &paid, &credited, &voidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %d not found", input.InvoiceID)
		}
		return nil, fmt.Errorf("failed to lock invoice %d: %w", input.InvoiceID, err)
	}
	if voidedAt != nil {
		return nil, &AlreadyVoidedError{DocType: RefTypeARInvoice, DocID: input.InvoiceID}
	}

	amount := round2(input.Amount)
	outstanding := gross.Sub(paid).Sub(credited)
	if amount.GreaterThan(outstanding) {
		return nil, fmt.Errorf("credit memo %s exceeds outstanding balance %s on invoice %d",
			amount.StringFixed(2), outstanding.StringFixed(2), input.InvoiceID)
	}

	net, vat := splitVAT(amount, s.vatRate)

	docNumber, err := documentNumberTx(ctx, tx, NumCreditMemo, input.MemoDate)
	if err != nil {
		return nil, err
	}

	memo := &CreditMemo{
		DocumentNumber: docNumber,
		InvoiceID:      input.InvoiceID,
		MemoDate:       input.MemoDate,
		GrossAmount:    amount,
		NetAmount:      net,
		VATAmount:      vat,
		Reason:         input.Reason,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO credit_memos (document_number, invoice_id, memo_date, gross_amount, net_amount, vat_amount, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, docNumber, input.InvoiceID, input.MemoDate, amount, net, vat, input.Reason,
	).Scan(&memo.ID, &memo.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert credit memo: %w", err)
	}

	newCredited := credited.Add(amount)
	_, err = tx.Exec(ctx, "UPDATE ar_invoices SET credited = $1, status = $2 WHERE id = $3",
		newCredited, invoiceStatus(gross, paid, newCredited), input.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to update invoice %d: %w", input.InvoiceID, err)
	}

	salesReturns, err := s.accounts.ResolveTx(ctx, tx, RoleSalesReturns)
	if err != nil {
		return nil, err
	}
	vatPayable, err := s.accounts.ResolveTx(ctx, tx, RoleVATPayable)
	if err != nil {
		return nil, err
	}
	ar, err := s.accounts.ResolveTx(ctx, tx, RoleAR)
	if err != nil {
		return nil, err
	}

	lines := []LineInput{debitLine(salesReturns, net)}
	if vat.IsPositive() {
		lines = append(lines, debitLine(vatPayable, vat))
	}
	lines = append(lines, creditLine(ar, amount))
	if err := absorbResidual(lines, ar); err != nil {
		return nil, err
	}

	_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
		Description:    fmt.Sprintf("Credit memo %s", docNumber),
		EntryDate:      input.MemoDate,
		ReferenceType:  RefTypeCreditMemo,
		ReferenceID:    memo.ID,
		IdempotencyKey: input.IdempotencyKey,
		Lines:          lines,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit credit memo: %w", err)
	}
	return memo, nil
}
