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

type SaleService interface {
	// RecordSale posts a cash sale: FIFO consumption, VAT split, discount
	// and the balanced journal entry, all in one transaction.
	RecordSale(ctx context.Context, input SaleInput) (*Sale, error)
	GetSale(ctx context.Context, id int) (*Sale, error)
}

type SaleInput struct {
	CustomerID     int
	SaleDate       time.Time       `validate:"required"`
	Items          []SaleItemInput `validate:"required,min=1,dive"`
	DiscountType   string          `validate:"omitempty,oneof=percent fixed"`
	DiscountValue  decimal.Decimal
	IdempotencyKey string
}

type SaleItemInput struct {
	ProductID int `validate:"required"`
	Quantity  decimal.Decimal
	// UnitPrice zero means "use the product's list price".
	UnitPrice decimal.Decimal
}

type saleService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory InventoryService
	accounts  *SystemAccounts
	vatRate   decimal.Decimal
}

func NewSaleService(pool *pgxpool.Pool, ledger *Ledger, inventory InventoryService, accounts *SystemAccounts, vatRate decimal.Decimal) SaleService {
	return &saleService{pool: pool, ledger: ledger, inventory: inventory, accounts: accounts, vatRate: vatRate}
}

// saleLine is the resolved, priced form of one input item.
type saleLine struct {
	productID      int
	productName    string
	quantity       decimal.Decimal
	unitPrice      decimal.Decimal
	gross          decimal.Decimal
	isConsigned    bool
	commissionRate decimal.Decimal
	cogs           decimal.Decimal
}

func (s *saleService) RecordSale(ctx context.Context, input SaleInput) (*Sale, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid sale input: %w", err)
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("sale quantity must be positive for product %d", item.ProductID)
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

	lines, err := resolveSaleLines(ctx, tx, input.Items)
	if err != nil {
		return nil, err
	}

	ownedGross := decimal.Zero
	consignedGross := decimal.Zero
	commissionTotal := decimal.Zero
	for _, line := range lines {
		if line.isConsigned {
			consignedGross = consignedGross.Add(line.gross)
			commissionTotal = commissionTotal.Add(round2(line.gross.Mul(line.commissionRate).Div(decimal.NewFromInt(100))))
		} else {
			ownedGross = ownedGross.Add(line.gross)
		}
	}

	// Discounts apply to owned goods only: consigned proceeds belong to the
	// consignor and are remitted on the undiscounted price.
	ownedDiscounted, err := applyDiscount(ownedGross, input.DiscountType, input.DiscountValue)
	if err != nil {
		return nil, err
	}
	discountTotal := ownedGross.Sub(ownedDiscounted)
	net, vat := splitVAT(ownedDiscounted, s.vatRate)
	consignorPayable := consignedGross.Sub(commissionTotal)
	cashTotal := ownedDiscounted.Add(consignedGross)

	docNumber, err := documentNumberTx(ctx, tx, NumSale, input.SaleDate)
	if err != nil {
		return nil, err
	}

	var customerID *int
	if input.CustomerID != 0 {
		customerID = &input.CustomerID
	}

	sale := &Sale{
		DocumentNumber:   docNumber,
		CustomerID:       customerID,
		SaleDate:         input.SaleDate,
		GrossTotal:       ownedGross.Add(consignedGross),
		DiscountTotal:    discountTotal,
		NetTotal:         net,
		VATTotal:         vat,
		ConsignedGross:   consignedGross,
		CommissionTotal:  commissionTotal,
		ConsignorPayable: consignorPayable,
		CashTotal:        cashTotal,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO sales (document_number, customer_id, sale_date, gross_total, discount_total,
		                   net_total, vat_total, cogs_total, consigned_gross, commission_total,
		                   consignor_payable, cash_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11)
		RETURNING id, created_at
	`, docNumber, customerID, input.SaleDate, sale.GrossTotal, discountTotal, net, vat,
		consignedGross, commissionTotal, consignorPayable, cashTotal,
	).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sale: %w", err)
	}

	cogsTotal := decimal.Zero
	for i := range lines {
		line := &lines[i]
		cogs, _, err := s.inventory.ConsumeTx(ctx, tx, line.productID, line.quantity, RefTypeSale, sale.ID)
		if err != nil {
			return nil, err
		}
		line.cogs = cogs
		if !line.isConsigned {
			cogsTotal = cogsTotal.Add(cogs)
		}

		item := SaleItem{
			SaleID:      sale.ID,
			ProductID:   line.productID,
			Quantity:    line.quantity,
			UnitPrice:   line.unitPrice,
			Gross:       line.gross,
			COGS:        cogs,
			IsConsigned: line.isConsigned,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO sale_items (sale_id, product_id, quantity, unit_price, gross, cogs, is_consigned)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, sale.ID, line.productID, line.quantity, line.unitPrice, line.gross, cogs, line.isConsigned).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert sale item: %w", err)
		}
		sale.Items = append(sale.Items, item)

		_, err = tx.Exec(ctx, "UPDATE products SET quantity = quantity - $1 WHERE id = $2", line.quantity, line.productID)
		if err != nil {
			return nil, fmt.Errorf("failed to update quantity for product %d: %w", line.productID, err)
		}
	}
	sale.COGSTotal = cogsTotal

	_, err = tx.Exec(ctx, "UPDATE sales SET cogs_total = $1 WHERE id = $2", cogsTotal, sale.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update sale totals: %w", err)
	}

	entryLines, err := s.buildSaleEntry(ctx, tx, sale)
	if err != nil {
		return nil, err
	}

	if len(entryLines) > 0 {
		_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
			Description:    fmt.Sprintf("Sale %s", docNumber),
			EntryDate:      input.SaleDate,
			ReferenceType:  RefTypeSale,
			ReferenceID:    sale.ID,
			IdempotencyKey: input.IdempotencyKey,
			Lines:          entryLines,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit sale: %w", err)
	}
	return sale, nil
}

// buildSaleEntry assembles the journal legs for a posted sale. Rounding
// residuals of at most one cent are absorbed onto the cash line, or onto
// the COGS line when a full discount leaves no cash leg. A fully
// discounted sale of zero-cost goods produces no legs at all.
func (s *saleService) buildSaleEntry(ctx context.Context, tx pgx.Tx, sale *Sale) ([]LineInput, error) {
	cash, err := s.accounts.ResolveTx(ctx, tx, RoleCash)
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

	var lines []LineInput
	if sale.CashTotal.IsPositive() {
		lines = append(lines, debitLine(cash, sale.CashTotal))
	}
	if sale.NetTotal.IsPositive() {
		lines = append(lines, creditLine(revenue, sale.NetTotal))
	}
	if sale.VATTotal.IsPositive() {
		lines = append(lines, creditLine(vatPayable, sale.VATTotal))
	}
	if sale.CommissionTotal.IsPositive() || sale.ConsignorPayable.IsPositive() {
		commission, err := s.accounts.ResolveTx(ctx, tx, RoleCommission)
		if err != nil {
			return nil, err
		}
		dueToConsignors, err := s.accounts.ResolveTx(ctx, tx, RoleDueToConsignors)
		if err != nil {
			return nil, err
		}
		if sale.CommissionTotal.IsPositive() {
			lines = append(lines, creditLine(commission, sale.CommissionTotal))
		}
		if sale.ConsignorPayable.IsPositive() {
			lines = append(lines, creditLine(dueToConsignors, sale.ConsignorPayable))
		}
	}
	if sale.COGSTotal.IsPositive() {
		lines = append(lines,
			debitLine(cogsAcct, sale.COGSTotal),
			creditLine(inventoryAcct, sale.COGSTotal),
		)
	}

	if len(lines) == 0 {
		return nil, nil
	}
	absorbOn := cash
	if !sale.CashTotal.IsPositive() {
		absorbOn = cogsAcct
	}
	if err := absorbResidual(lines, absorbOn); err != nil {
		return nil, err
	}
	return lines, nil
}

func resolveSaleLines(ctx context.Context, tx pgx.Tx, items []SaleItemInput) ([]saleLine, error) {
	var lines []saleLine
	for _, item := range items {
		var line saleLine
		var isActive bool
		var consignorID *int
		var listPrice decimal.Decimal
		var commissionRate *decimal.Decimal
		err := tx.QueryRow(ctx, `
			SELECT p.id, p.name, p.is_active, p.sale_price, p.is_consigned, p.consignor_id, c.commission_rate_percent
			FROM products p
			LEFT JOIN consignors c ON c.id = p.consignor_id
			WHERE p.id = $1
			FOR UPDATE OF p
		`, item.ProductID).Scan(&line.productID, &line.productName, &isActive, &listPrice,
			&line.isConsigned, &consignorID, &commissionRate)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product %d not found", item.ProductID)
			}
			return nil, fmt.Errorf("failed to resolve product %d: %w", item.ProductID, err)
		}
		if !isActive {
			return nil, fmt.Errorf("product %q is inactive", line.productName)
		}
		if line.isConsigned {
			if commissionRate == nil {
				return nil, fmt.Errorf("consigned product %q has no consignor", line.productName)
			}
			line.commissionRate = *commissionRate
		}

		line.quantity = item.Quantity
		line.unitPrice = item.UnitPrice
		if line.unitPrice.IsZero() {
			line.unitPrice = listPrice
		}
		line.gross = round2(line.quantity.Mul(line.unitPrice))
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *saleService) GetSale(ctx context.Context, id int) (*Sale, error) {
	sale := &Sale{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, customer_id, sale_date, gross_total, discount_total,
		       net_total, vat_total, cogs_total, consigned_gross, commission_total,
		       consignor_payable, cash_total, voided_at, voided_by, void_reason, created_at
		FROM sales WHERE id = $1
	`, id).Scan(
		&sale.ID, &sale.DocumentNumber, &sale.CustomerID, &sale.SaleDate,
		&sale.GrossTotal, &sale.DiscountTotal, &sale.NetTotal, &sale.VATTotal,
		&sale.COGSTotal, &sale.ConsignedGross, &sale.CommissionTotal,
		&sale.ConsignorPayable, &sale.CashTotal,
		&sale.VoidedAt, &sale.VoidedBy, &sale.VoidReason, &sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sale %d not found", id)
		}
		return nil, fmt.Errorf("fetch sale %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price, gross, cogs, is_consigned
		FROM sale_items WHERE sale_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch sale items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.Gross, &item.COGS, &item.IsConsigned); err != nil {
			return nil, fmt.Errorf("scan sale item: %w", err)
		}
		sale.Items = append(sale.Items, item)
	}
	return sale, nil
}
