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

// ConsignmentReceipt records goods taken in on consignment. The goods are
// never owned, so receiving them creates memo lots and no journal entry;
// the ledger is only touched when a consigned item sells.
type ConsignmentReceipt struct {
	ID             int       `json:"id"`
	DocumentNumber string    `json:"document_number"`
	ConsignorID    int       `json:"consignor_id"`
	ReceiptDate    time.Time `json:"receipt_date"`
	CreatedAt      time.Time `json:"created_at"`

	Items []ConsignmentReceiptItem `json:"items"`
}

type ConsignmentReceiptItem struct {
	ID        int             `json:"id"`
	ReceiptID int             `json:"receipt_id"`
	ProductID int             `json:"product_id"`
	LotID     int             `json:"lot_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type ConsignmentService interface {
	ReceiveConsignment(ctx context.Context, input ConsignmentReceiptInput) (*ConsignmentReceipt, error)
	GetReceipt(ctx context.Context, id int) (*ConsignmentReceipt, error)
}

type ConsignmentReceiptInput struct {
	ConsignorID int                           `validate:"required"`
	ReceiptDate time.Time                     `validate:"required"`
	Items       []ConsignmentReceiptItemInput `validate:"required,min=1,dive"`
}

type ConsignmentReceiptItemInput struct {
	ProductID int `validate:"required"`
	Quantity  decimal.Decimal
	// UnitCost is the consignor's price, kept on the lot for settlement
	// records. It never reaches cost of goods sold.
	UnitCost decimal.Decimal
}

type consignmentService struct {
	pool      *pgxpool.Pool
	inventory InventoryService
}

func NewConsignmentService(pool *pgxpool.Pool, inventory InventoryService) ConsignmentService {
	return &consignmentService{pool: pool, inventory: inventory}
}

func (s *consignmentService) ReceiveConsignment(ctx context.Context, input ConsignmentReceiptInput) (*ConsignmentReceipt, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid consignment input: %w", err)
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return nil, fmt.Errorf("consignment quantity must be positive for product %d", item.ProductID)
		}
		if item.UnitCost.IsNegative() {
			return nil, fmt.Errorf("unit cost cannot be negative for product %d", item.ProductID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var consignorActive bool
	err = tx.QueryRow(ctx, "SELECT is_active FROM consignors WHERE id = $1", input.ConsignorID).Scan(&consignorActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("consignor %d not found", input.ConsignorID)
		}
		return nil, fmt.Errorf("failed to resolve consignor %d: %w", input.ConsignorID, err)
	}
	if !consignorActive {
		return nil, fmt.Errorf("consignor %d is inactive", input.ConsignorID)
	}

	docNumber, err := documentNumberTx(ctx, tx, NumConsignment, input.ReceiptDate)
	if err != nil {
		return nil, err
	}

	receipt := &ConsignmentReceipt{
		DocumentNumber: docNumber,
		ConsignorID:    input.ConsignorID,
		ReceiptDate:    input.ReceiptDate,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO consignment_receipts (document_number, consignor_id, receipt_date)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, docNumber, input.ConsignorID, input.ReceiptDate).Scan(&receipt.ID, &receipt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert consignment receipt: %w", err)
	}

	for _, item := range input.Items {
		var isConsigned bool
		var productConsignor *int
		err := tx.QueryRow(ctx, "SELECT is_consigned, consignor_id FROM products WHERE id = $1 FOR UPDATE",
			item.ProductID).Scan(&isConsigned, &productConsignor)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product %d not found", item.ProductID)
			}
			return nil, fmt.Errorf("failed to resolve product %d: %w", item.ProductID, err)
		}
		if !isConsigned || productConsignor == nil || *productConsignor != input.ConsignorID {
			return nil, fmt.Errorf("product %d is not consigned by consignor %d", item.ProductID, input.ConsignorID)
		}

		lot, err := s.inventory.ReceiveTx(ctx, tx, ReceiveInput{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			UnitCost:   item.UnitCost,
			SourceType: "CONSIGNMENT",
			SourceID:   receipt.ID,
		})
		if err != nil {
			return nil, err
		}

		receiptItem := ConsignmentReceiptItem{
			ReceiptID: receipt.ID,
			ProductID: item.ProductID,
			LotID:     lot.ID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO consignment_receipt_items (receipt_id, product_id, lot_id, quantity, unit_cost)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, receipt.ID, item.ProductID, lot.ID, item.Quantity, item.UnitCost).Scan(&receiptItem.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert consignment receipt item: %w", err)
		}
		receipt.Items = append(receipt.Items, receiptItem)

		_, err = tx.Exec(ctx, "UPDATE products SET quantity = quantity + $1 WHERE id = $2", item.Quantity, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to update quantity for product %d: %w", item.ProductID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit consignment receipt: %w", err)
	}
	return receipt, nil
}

func (s *consignmentService) GetReceipt(ctx context.Context, id int) (*ConsignmentReceipt, error) {
	receipt := &ConsignmentReceipt{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, consignor_id, receipt_date, created_at
		FROM consignment_receipts WHERE id = $1
	`, id).Scan(&receipt.ID, &receipt.DocumentNumber, &receipt.ConsignorID, &receipt.ReceiptDate, &receipt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("consignment receipt %d not found", id)
		}
		return nil, fmt.Errorf("fetch consignment receipt %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, receipt_id, product_id, lot_id, quantity, unit_cost
		FROM consignment_receipt_items WHERE receipt_id = $1 ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("fetch consignment receipt items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item ConsignmentReceiptItem
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.ProductID, &item.LotID, &item.Quantity, &item.UnitCost); err != nil {
			return nil, fmt.Errorf("scan consignment receipt item: %w", err)
		}
		receipt.Items = append(receipt.Items, item)
	}
	return receipt, nil
}
