package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// InventoryService owns the FIFO lot layer. Orchestrators call the Tx
// variants so lot mutations commit atomically with the document and its
// journal entry. Product quantity upkeep is the caller's job; this service
// only moves lots.
type InventoryService interface {
	// ReceiveTx creates a new lot for a receipt of stock.
	ReceiveTx(ctx context.Context, tx pgx.Tx, in ReceiveInput) (*InventoryLot, error)
	// ConsumeTx draws qty from the product's lots oldest-first and returns
	// the derived cost of goods sold plus one audit row per lot touched.
	// Fails whole with InsufficientInventoryError; never partially consumes.
	ConsumeTx(ctx context.Context, tx pgx.Tx, productID int, qty decimal.Decimal, refType string, refID int) (decimal.Decimal, []InventoryTransaction, error)
	// EstimateCost runs the same FIFO walk read-only, without consuming.
	EstimateCost(ctx context.Context, productID int, qty decimal.Decimal) (decimal.Decimal, error)
	// ReverseConsumptionTx restores lot quantities for all consumptions
	// recorded under (refType, refID) and deletes the audit rows. Returns
	// quantity restored per product.
	ReverseConsumptionTx(ctx context.Context, tx pgx.Tx, refType string, refID int) (map[int]decimal.Decimal, error)
	// Reconcile compares products.quantity against the lot total. Advisory.
	Reconcile(ctx context.Context, productID int) (*ReconciliationResult, error)
	// WeightedAverageCost derives the display cost from live lots.
	WeightedAverageCost(ctx context.Context, productID int) (decimal.Decimal, error)
	WeightedAverageCostTx(ctx context.Context, tx pgx.Tx, productID int) (decimal.Decimal, error)
	// LotSummary lists a product's live lots with per-lot value.
	LotSummary(ctx context.Context, productID int) ([]LotSummaryRow, error)
}

type ReceiveInput struct {
	ProductID  int
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	SourceType string
	SourceID   int
}

type inventoryService struct {
	pool *pgxpool.Pool
}

func NewInventoryService(pool *pgxpool.Pool) InventoryService {
	return &inventoryService{pool: pool}
}

func (s *inventoryService) ReceiveTx(ctx context.Context, tx pgx.Tx, in ReceiveInput) (*InventoryLot, error) {
	if !in.Quantity.IsPositive() {
		return nil, fmt.Errorf("receive quantity must be positive, got %s", in.Quantity)
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("unit cost cannot be negative, got %s", in.UnitCost)
	}

	var sourceID *int
	if in.SourceID != 0 {
		sourceID = &in.SourceID
	}

	lot := &InventoryLot{}
	err := tx.QueryRow(ctx, `
		INSERT INTO inventory_lots (product_id, quantity_received, quantity_remaining, unit_cost, source_type, source_id)
		VALUES ($1, $2, $2, $3, $4, $5)
		RETURNING id, product_id, quantity_received, quantity_remaining, unit_cost, source_type, source_id, created_at
	`, in.ProductID, in.Quantity, in.UnitCost, in.SourceType, sourceID).Scan(
		&lot.ID, &lot.ProductID, &lot.QuantityReceived, &lot.QuantityRemaining,
		&lot.UnitCost, &lot.SourceType, &lot.SourceID, &lot.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inventory lot for product %d: %w", in.ProductID, err)
	}
	return lot, nil
}

func (s *inventoryService) ConsumeTx(ctx context.Context, tx pgx.Tx, productID int, qty decimal.Decimal, refType string, refID int) (decimal.Decimal, []InventoryTransaction, error) {
	lots, err := fetchLots(ctx, tx, productID, true)
	if err != nil {
		return decimal.Zero, nil, err
	}

	slices, totalCost, err := planConsumption(lots, qty)
	if err != nil {
		var insufficient *InsufficientInventoryError
		if errors.As(err, &insufficient) {
			insufficient.ProductID = productID
			insufficient.ProductName = productName(ctx, tx, productID)
		}
		return decimal.Zero, nil, err
	}

	var txns []InventoryTransaction
	for _, slice := range slices {
		_, err := tx.Exec(ctx, `
			UPDATE inventory_lots
			SET quantity_remaining = quantity_remaining - $1
			WHERE id = $2
		`, slice.Quantity, slice.LotID)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("failed to draw from lot %d: %w", slice.LotID, err)
		}

		var t InventoryTransaction
		err = tx.QueryRow(ctx, `
			INSERT INTO inventory_transactions (product_id, lot_id, quantity, unit_cost, total_cost, reference_type, reference_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, product_id, lot_id, quantity, unit_cost, total_cost, reference_type, reference_id, created_at
		`, productID, slice.LotID, slice.Quantity, slice.UnitCost, slice.Cost, refType, refID).Scan(
			&t.ID, &t.ProductID, &t.LotID, &t.Quantity, &t.UnitCost, &t.TotalCost,
			&t.ReferenceType, &t.ReferenceID, &t.CreatedAt,
		)
		if err != nil {
			return decimal.Zero, nil, fmt.Errorf("failed to record inventory transaction for lot %d: %w", slice.LotID, err)
		}
		txns = append(txns, t)
	}

	return totalCost, txns, nil
}

func (s *inventoryService) EstimateCost(ctx context.Context, productID int, qty decimal.Decimal) (decimal.Decimal, error) {
	lots, err := fetchLots(ctx, s.pool, productID, false)
	if err != nil {
		return decimal.Zero, err
	}
	_, totalCost, err := planConsumption(lots, qty)
	if err != nil {
		var insufficient *InsufficientInventoryError
		if errors.As(err, &insufficient) {
			insufficient.ProductID = productID
			insufficient.ProductName = productName(ctx, s.pool, productID)
		}
		return decimal.Zero, err
	}
	return totalCost, nil
}

func (s *inventoryService) ReverseConsumptionTx(ctx context.Context, tx pgx.Tx, refType string, refID int) (map[int]decimal.Decimal, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, product_id, lot_id, quantity
		FROM inventory_transactions
		WHERE reference_type = $1 AND reference_id = $2
		ORDER BY id
	`, refType, refID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory transactions for %s %d: %w", refType, refID, err)
	}

	type txnRow struct {
		id        int
		productID int
		lotID     int
		quantity  decimal.Decimal
	}
	var txns []txnRow
	for rows.Next() {
		var r txnRow
		if err := rows.Scan(&r.id, &r.productID, &r.lotID, &r.quantity); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan inventory transaction: %w", err)
		}
		txns = append(txns, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory transactions: %w", err)
	}

	restored := make(map[int]decimal.Decimal)
	for _, t := range txns {
		// Lots keep their created_at, so FIFO order survives the restore.
		_, err := tx.Exec(ctx, `
			UPDATE inventory_lots
			SET quantity_remaining = quantity_remaining + $1
			WHERE id = $2
		`, t.quantity, t.lotID)
		if err != nil {
			return nil, fmt.Errorf("failed to restore lot %d: %w", t.lotID, err)
		}

		// Audit rows are deleted, not voided: the consumption never happened.
		_, err = tx.Exec(ctx, "DELETE FROM inventory_transactions WHERE id = $1", t.id)
		if err != nil {
			return nil, fmt.Errorf("failed to delete inventory transaction %d: %w", t.id, err)
		}

		restored[t.productID] = restored[t.productID].Add(t.quantity)
	}

	return restored, nil
}

func (s *inventoryService) Reconcile(ctx context.Context, productID int) (*ReconciliationResult, error) {
	r := &ReconciliationResult{ProductID: productID}
	err := s.pool.QueryRow(ctx, `
		SELECT p.quantity,
		       COALESCE((SELECT SUM(quantity_remaining) FROM inventory_lots WHERE product_id = p.id), 0)
		FROM products p
		WHERE p.id = $1
	`, productID).Scan(&r.ProductQuantity, &r.LotTotal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d not found", productID)
		}
		return nil, fmt.Errorf("failed to reconcile product %d: %w", productID, err)
	}
	r.Discrepancy = r.ProductQuantity.Sub(r.LotTotal)
	r.IsBalanced = r.Discrepancy.IsZero()
	return r, nil
}

func (s *inventoryService) WeightedAverageCost(ctx context.Context, productID int) (decimal.Decimal, error) {
	return weightedAverageCost(ctx, s.pool, productID)
}

func (s *inventoryService) WeightedAverageCostTx(ctx context.Context, tx pgx.Tx, productID int) (decimal.Decimal, error) {
	return weightedAverageCost(ctx, tx, productID)
}

// weightedAverageCost derives a display-only average from live lots. It
// never feeds COGS; costing authority stays with the lots themselves.
func weightedAverageCost(ctx context.Context, q querier, productID int) (decimal.Decimal, error) {
	var totalQty, totalValue decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity_remaining), 0),
		       COALESCE(SUM(quantity_remaining * unit_cost), 0)
		FROM inventory_lots
		WHERE product_id = $1 AND quantity_remaining > 0
	`, productID).Scan(&totalQty, &totalValue)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to compute weighted average cost for product %d: %w", productID, err)
	}
	if totalQty.IsZero() {
		return decimal.Zero, nil
	}
	return round2(totalValue.Div(totalQty)), nil
}

func (s *inventoryService) LotSummary(ctx context.Context, productID int) ([]LotSummaryRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, quantity_remaining, unit_cost, created_at
		FROM inventory_lots
		WHERE product_id = $1 AND quantity_remaining > 0
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots for product %d: %w", productID, err)
	}
	defer rows.Close()

	var summary []LotSummaryRow
	for rows.Next() {
		var row LotSummaryRow
		if err := rows.Scan(&row.LotID, &row.QuantityRemaining, &row.UnitCost, &row.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		row.Value = round2(row.QuantityRemaining.Mul(row.UnitCost))
		summary = append(summary, row)
	}
	return summary, nil
}

// fetchLots loads a product's live lots in FIFO order. When forUpdate is
// set the rows are locked for the duration of the caller's transaction.
func fetchLots(ctx context.Context, q querier, productID int, forUpdate bool) ([]lotState, error) {
	query := `
		SELECT id, quantity_remaining, unit_cost
		FROM inventory_lots
		WHERE product_id = $1 AND quantity_remaining > 0
		ORDER BY created_at, id`
	if forUpdate {
		query += `
		FOR UPDATE`
	}

	rows, err := q.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots for product %d: %w", productID, err)
	}
	defer rows.Close()

	var lots []lotState
	for rows.Next() {
		var lot lotState
		if err := rows.Scan(&lot.ID, &lot.Remaining, &lot.UnitCost); err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}
	return lots, nil
}

func productName(ctx context.Context, q querier, productID int) string {
	var name string
	if err := q.QueryRow(ctx, "SELECT name FROM products WHERE id = $1", productID).Scan(&name); err != nil {
		return ""
	}
	return name
}
