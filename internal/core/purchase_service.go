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

type PurchaseService interface {
	// RecordPurchase receives stock from a supplier: one FIFO lot per item
	// at the VAT-exclusive cost, plus the balanced journal entry.
	RecordPurchase(ctx context.Context, input PurchaseInput) (*Purchase, error)
	GetPurchase(ctx context.Context, id int) (*Purchase, error)
}

type PurchaseInput struct {
	SupplierID     int                 `validate:"required"`
	PurchaseDate   time.Time           `validate:"required"`
	PaymentMethod  string              `validate:"required,oneof=cash credit"`
	Items          []PurchaseItemInput `validate:"required,min=1,dive"`
	IdempotencyKey string
}

type PurchaseItemInput struct {
	ProductID int `validate:"required"`
	Quantity  decimal.Decimal
	// UnitCost is the VAT-inclusive price per unit.
	UnitCost decimal.Decimal
}

type purchaseService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory InventoryService
	accounts  *SystemAccounts
	vatRate   decimal.Decimal
}

func NewPurchaseService(pool *pgxpool.Pool, ledger *Ledger, inventory InventoryService, accounts *SystemAccounts, vatRate decimal.Decimal) PurchaseService {
	return &purchaseService{pool: pool, ledger: ledger, inventory: inventory, accounts: accounts, vatRate: vatRate}
}

func (s *purchaseService) RecordPurchase(ctx context.Context, input PurchaseInput) (*Purchase, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid purchase input: %w", err)
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("purchase quantity must be positive for product %d", item.ProductID)
		}
		if !item.UnitCost.IsPositive() {
			return nil, fmt.Errorf("unit cost must be positive for product %d", item.ProductID)
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
	type pricedItem struct {
		input PurchaseItemInput
		gross decimal.Decimal
		net   decimal.Decimal
		// lotCost is the VAT-exclusive per-unit cost carried by the lot,
		// kept at four decimals to limit drift on fractional quantities.
		lotCost decimal.Decimal
	}
	var priced []pricedItem
	for _, item := range input.Items {
		gross := round2(item.Quantity.Mul(item.UnitCost))
		net, _ := splitVAT(gross, s.vatRate)
		priced = append(priced, pricedItem{
			input:   item,
			gross:   gross,
			net:     net,
			lotCost: net.Div(item.Quantity).Round(4),
		})
		grossTotal = grossTotal.Add(gross)
		netTotal = netTotal.Add(net)
	}
	vatTotal := grossTotal.Sub(netTotal)

	docNumber, err := documentNumberTx(ctx, tx, NumPurchase, input.PurchaseDate)
	if err != nil {
		return nil, err
	}

	purchase := &Purchase{
		DocumentNumber: docNumber,
		SupplierID:     input.SupplierID,
		PurchaseDate:   input.PurchaseDate,
		PaymentMethod:  input.PaymentMethod,
		GrossTotal:     grossTotal,
		NetTotal:       netTotal,
		VATTotal:       vatTotal,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO purchases (document_number, supplier_id, purchase_date, payment_method, gross_total, net_total, vat_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, docNumber, input.SupplierID, input.PurchaseDate, input.PaymentMethod, grossTotal, netTotal, vatTotal,
	).Scan(&purchase.ID, &purchase.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert purchase: %w", err)
	}

	for _, p := range priced {
		lot, err := s.inventory.ReceiveTx(ctx, tx, ReceiveInput{
			ProductID:  p.input.ProductID,
			Quantity:   p.input.Quantity,
			UnitCost:   p.lotCost,
			SourceType: RefTypePurchase,
			SourceID:   purchase.ID,
		})
		if err != nil {
			return nil, err
		}

		item := PurchaseItem{
			PurchaseID: purchase.ID,
			ProductID:  p.input.ProductID,
			LotID:      lot.ID,
			Quantity:   p.input.Quantity,
			UnitCost:   p.input.UnitCost,
			Gross:      p.gross,
			Net:        p.net,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO purchase_items (purchase_id, product_id, lot_id, quantity, unit_cost, gross, net)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, purchase.ID, p.input.ProductID, lot.ID, p.input.Quantity, p.input.UnitCost, p.gross, p.net).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert purchase item: %w", err)
		}
		purchase.Items = append(purchase.Items, item)

		if err := bumpProductAfterReceipt(ctx, tx, s.inventory, p.input.ProductID, p.input.Quantity); err != nil {
			return nil, err
		}
	}

	inventoryAcct, err := s.accounts.ResolveTx(ctx, tx, RoleInventory)
	if err != nil {
		return nil, err
	}
	vatInput, err := s.accounts.ResolveTx(ctx, tx, RoleVATInput)
	if err != nil {
		return nil, err
	}
	creditRole := RoleAP
	if input.PaymentMethod == PaymentMethodCash {
		creditRole = RoleCash
	}
	creditAcct, err := s.accounts.ResolveTx(ctx, tx, creditRole)
	if err != nil {
		return nil, err
	}

	lines := []LineInput{
		debitLine(inventoryAcct, netTotal),
		creditLine(creditAcct, grossTotal),
	}
	if vatTotal.IsPositive() {
		lines = append(lines, debitLine(vatInput, vatTotal))
	}
	if err := absorbResidual(lines, inventoryAcct); err != nil {
		return nil, err
	}

	_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
		Description:    fmt.Sprintf("Purchase %s", docNumber),
		EntryDate:      input.PurchaseDate,
		ReferenceType:  RefTypePurchase,
		ReferenceID:    purchase.ID,
		IdempotencyKey: input.IdempotencyKey,
		Lines:          lines,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return purchase, nil
}

// bumpProductAfterReceipt increases the denormalized quantity and refreshes
// the display cost from the lots. cost_price never feeds COGS.
func bumpProductAfterReceipt(ctx context.Context, tx pgx.Tx, inventory InventoryService, productID int, qty decimal.Decimal) error {
	tag, err := tx.Exec(ctx, "UPDATE products SET quantity = quantity + $1 WHERE id = $2", qty, productID)
	if err != nil {
		return fmt.Errorf("failed to update quantity for product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d not found", productID)
	}

	avg, err := inventory.WeightedAverageCostTx(ctx, tx, productID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "UPDATE products SET cost_price = $1 WHERE id = $2", avg, productID)
	if err != nil {
		return fmt.Errorf("failed to update cost price for product %d: %w", productID, err)
	}
	return nil
}

func (s *purchaseService) GetPurchase(ctx context.Context, id int) (*Purchase, error) {
	purchase := &Purchase{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, supplier_id, purchase_date, payment_method,
		       gross_total, net_total, vat_total, voided_at, voided_by, void_reason, created_at
		FROM purchases WHERE id = $1
	`, id).Scan(
		&purchase.ID, &purchase.DocumentNumber, &purchase.SupplierID, &purchase.PurchaseDate,
		&purchase.PaymentMethod, &purchase.GrossTotal, &purchase.NetTotal, &purchase.VATTotal,
		&purchase.VoidedAt, &purchase.VoidedBy, &purchase.VoidReason, &purchase.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("purchase %d not found", id)
		}
		return nil, fmt.Errorf("fetch purchase %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, purchase_id, product_id, lot_id, quantity, unit_cost, gross, net
		FROM purchase_items WHERE purchase_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch purchase items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item PurchaseItem
		if err := rows.Scan(&item.ID, &item.PurchaseID, &item.ProductID, &item.LotID,
			&item.Quantity, &item.UnitCost, &item.Gross, &item.Net); err != nil {
			return nil, fmt.Errorf("scan purchase item: %w", err)
		}
		purchase.Items = append(purchase.Items, item)
	}
	return purchase, nil
}
