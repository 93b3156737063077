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

// Adjustment directions.
const (
	AdjustmentGain = "gain"
	AdjustmentLoss = "loss"
)

// StockAdjustment corrects inventory outside of sales and purchases: found
// stock, shrinkage, damage. Gains receive a new lot; losses consume FIFO at
// derived cost, so the write-off hits the ledger at what the goods actually
// cost.
type StockAdjustment struct {
	ID             int       `json:"id"`
	DocumentNumber string    `json:"document_number"`
	ProductID      int       `json:"product_id"`
	Direction      string    `json:"direction"`
	AdjustmentDate time.Time `json:"adjustment_date"`

	Quantity decimal.Decimal `json:"quantity"`
	// UnitCost is the received cost for gains; zero for losses.
	UnitCost decimal.Decimal `json:"unit_cost"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`

	VoidedAt   *time.Time `json:"voided_at,omitempty"`
	VoidedBy   *string    `json:"voided_by,omitempty"`
	VoidReason *string    `json:"void_reason,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type AdjustmentService interface {
	AdjustStock(ctx context.Context, input AdjustmentInput) (*StockAdjustment, error)
	GetAdjustment(ctx context.Context, id int) (*StockAdjustment, error)
}

type AdjustmentInput struct {
	ProductID      int       `validate:"required"`
	Direction      string    `validate:"required,oneof=gain loss"`
	AdjustmentDate time.Time `validate:"required"`
	Quantity       decimal.Decimal
	// UnitCost applies to gains only. Zero means "use the product's
	// current weighted average cost".
	UnitCost       decimal.Decimal
	Reason         string `validate:"required"`
	IdempotencyKey string
}

type adjustmentService struct {
	pool      *pgxpool.Pool
	ledger    *Ledger
	inventory InventoryService
	accounts  *SystemAccounts
}

func NewAdjustmentService(pool *pgxpool.Pool, ledger *Ledger, inventory InventoryService, accounts *SystemAccounts) AdjustmentService {
	return &adjustmentService{pool: pool, ledger: ledger, inventory: inventory, accounts: accounts}
}

func (s *adjustmentService) AdjustStock(ctx context.Context, input AdjustmentInput) (*StockAdjustment, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid adjustment input: %w", err)
	}
	if !input.Quantity.IsPositive() {
		return nil, fmt.Errorf("adjustment quantity must be positive, got %s", input.Quantity)
	}
	if input.UnitCost.IsNegative() {
		return nil, fmt.Errorf("unit cost cannot be negative, got %s", input.UnitCost)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var productName string
	err = tx.QueryRow(ctx, "SELECT name FROM products WHERE id = $1 FOR UPDATE", input.ProductID).Scan(&productName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d not found", input.ProductID)
		}
		return nil, fmt.Errorf("failed to lock product %d: %w", input.ProductID, err)
	}

	docNumber, err := documentNumberTx(ctx, tx, NumAdjustment, input.AdjustmentDate)
	if err != nil {
		return nil, err
	}

	adj := &StockAdjustment{
		DocumentNumber: docNumber,
		ProductID:      input.ProductID,
		Direction:      input.Direction,
		AdjustmentDate: input.AdjustmentDate,
		Quantity:       input.Quantity,
		Reason:         input.Reason,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO stock_adjustments (document_number, product_id, direction, adjustment_date, quantity, unit_cost, amount, reason)
		VALUES ($1, $2, $3, $4, $5, 0, 0, $6)
		RETURNING id, created_at
	`, docNumber, input.ProductID, input.Direction, input.AdjustmentDate, input.Quantity, input.Reason,
	).Scan(&adj.ID, &adj.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert adjustment: %w", err)
	}

	inventoryAcct, err := s.accounts.ResolveTx(ctx, tx, RoleInventory)
	if err != nil {
		return nil, err
	}

	var entryLines []LineInput
	switch input.Direction {
	case AdjustmentGain:
		unitCost := input.UnitCost
		if unitCost.IsZero() {
			unitCost, err = s.inventory.WeightedAverageCostTx(ctx, tx, input.ProductID)
			if err != nil {
				return nil, err
			}
		}
		adj.UnitCost = unitCost
		adj.Amount = round2(input.Quantity.Mul(unitCost))

		_, err = s.inventory.ReceiveTx(ctx, tx, ReceiveInput{
			ProductID:  input.ProductID,
			Quantity:   input.Quantity,
			UnitCost:   unitCost,
			SourceType: RefTypeStockAdjustment,
			SourceID:   adj.ID,
		})
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, "UPDATE products SET quantity = quantity + $1 WHERE id = $2", input.Quantity, input.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to update quantity for product %d: %w", input.ProductID, err)
		}

		gainAcct, err := s.accounts.ResolveTx(ctx, tx, RoleAdjustmentGain)
		if err != nil {
			return nil, err
		}
		entryLines = []LineInput{
			debitLine(inventoryAcct, adj.Amount),
			creditLine(gainAcct, adj.Amount),
		}

	case AdjustmentLoss:
		cogs, _, err := s.inventory.ConsumeTx(ctx, tx, input.ProductID, input.Quantity, RefTypeStockAdjustment, adj.ID)
		if err != nil {
			return nil, err
		}
		adj.Amount = cogs

		_, err = tx.Exec(ctx, "UPDATE products SET quantity = quantity - $1 WHERE id = $2", input.Quantity, input.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to update quantity for product %d: %w", input.ProductID, err)
		}

		shrinkage, err := s.accounts.ResolveTx(ctx, tx, RoleShrinkage)
		if err != nil {
			return nil, err
		}
		entryLines = []LineInput{
			debitLine(shrinkage, cogs),
			creditLine(inventoryAcct, cogs),
		}
	}

	_, err = tx.Exec(ctx, "UPDATE stock_adjustments SET unit_cost = $1, amount = $2 WHERE id = $3",
		adj.UnitCost, adj.Amount, adj.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update adjustment %d: %w", adj.ID, err)
	}

	// Refresh the display cost after the lot change.
	avg, err := s.inventory.WeightedAverageCostTx(ctx, tx, input.ProductID)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, "UPDATE products SET cost_price = $1 WHERE id = $2", avg, input.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to update cost price for product %d: %w", input.ProductID, err)
	}

	// A zero-value adjustment (gain of goods with no cost basis) moves
	// quantity but has nothing to post.
	if adj.Amount.IsPositive() {
		_, err = s.ledger.RecordTx(ctx, tx, EntryInput{
			Description:    fmt.Sprintf("Stock adjustment %s: %s %s of %s", docNumber, input.Direction, input.Quantity, productName),
			EntryDate:      input.AdjustmentDate,
			ReferenceType:  RefTypeStockAdjustment,
			ReferenceID:    adj.ID,
			IdempotencyKey: input.IdempotencyKey,
			Lines:          entryLines,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment: %w", err)
	}
	return adj, nil
}

func (s *adjustmentService) GetAdjustment(ctx context.Context, id int) (*StockAdjustment, error) {
	adj := &StockAdjustment{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, document_number, product_id, direction, adjustment_date, quantity, unit_cost, amount, reason,
		       voided_at, voided_by, void_reason, created_at
		FROM stock_adjustments WHERE id = $1
	`, id).Scan(
		&adj.ID, &adj.DocumentNumber, &adj.ProductID, &adj.Direction, &adj.AdjustmentDate,
		&adj.Quantity, &adj.UnitCost, &adj.Amount, &adj.Reason,
		&adj.VoidedAt, &adj.VoidedBy, &adj.VoidReason, &adj.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("adjustment %d not found", id)
		}
		return nil, fmt.Errorf("fetch adjustment %d: %w", id, err)
	}
	return adj, nil
}
