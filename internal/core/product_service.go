package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type ProductService interface {
	CreateProduct(ctx context.Context, input ProductInput) (*Product, error)
	UpdateProduct(ctx context.Context, id int, input ProductInput) (*Product, error)
	DeactivateProduct(ctx context.Context, id int) error
	GetProduct(ctx context.Context, id int) (*Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*Product, error)
	GetProducts(ctx context.Context, activeOnly bool) ([]Product, error)
}

type ProductInput struct {
	SKU         string          `validate:"required"`
	Name        string          `validate:"required"`
	SalePrice   decimal.Decimal
	IsConsigned bool
	ConsignorID int
}

type productService struct {
	pool *pgxpool.Pool
}

func NewProductService(pool *pgxpool.Pool) ProductService {
	return &productService{pool: pool}
}

const productColumns = `id, sku, name, quantity, cost_price, sale_price, is_active, is_consigned, consignor_id, created_at`

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Quantity, &p.CostPrice, &p.SalePrice,
		&p.IsActive, &p.IsConsigned, &p.ConsignorID, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *productService) CreateProduct(ctx context.Context, input ProductInput) (*Product, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid product input: %w", err)
	}
	if input.SalePrice.IsNegative() {
		return nil, fmt.Errorf("sale price cannot be negative, got %s", input.SalePrice)
	}
	if input.IsConsigned && input.ConsignorID == 0 {
		return nil, errors.New("consigned product must reference a consignor")
	}

	var consignorID *int
	if input.IsConsigned {
		consignorID = &input.ConsignorID
	}

	p, err := scanProduct(s.pool.QueryRow(ctx, `
		INSERT INTO products (sku, name, quantity, cost_price, sale_price, is_active, is_consigned, consignor_id)
		VALUES ($1, $2, 0, 0, $3, true, $4, $5)
		RETURNING `+productColumns,
		input.SKU, input.Name, input.SalePrice, input.IsConsigned, consignorID,
	))
	if err != nil {
		return nil, fmt.Errorf("create product %q: %w", input.SKU, err)
	}
	return p, nil
}

// UpdateProduct changes descriptive fields. Quantity and cost_price are
// derived from lots and movements; they are never set directly here.
func (s *productService) UpdateProduct(ctx context.Context, id int, input ProductInput) (*Product, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid product input: %w", err)
	}
	if input.SalePrice.IsNegative() {
		return nil, fmt.Errorf("sale price cannot be negative, got %s", input.SalePrice)
	}
	if input.IsConsigned && input.ConsignorID == 0 {
		return nil, errors.New("consigned product must reference a consignor")
	}

	var consignorID *int
	if input.IsConsigned {
		consignorID = &input.ConsignorID
	}

	p, err := scanProduct(s.pool.QueryRow(ctx, `
		UPDATE products
		SET sku = $1, name = $2, sale_price = $3, is_consigned = $4, consignor_id = $5
		WHERE id = $6
		RETURNING `+productColumns,
		input.SKU, input.Name, input.SalePrice, input.IsConsigned, consignorID, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d not found", id)
		}
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

func (s *productService) DeactivateProduct(ctx context.Context, id int) error {
	tag, err := s.pool.Exec(ctx, "UPDATE products SET is_active = false WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deactivate product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product %d not found", id)
	}
	return nil
}

func (s *productService) GetProduct(ctx context.Context, id int) (*Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %d not found", id)
		}
		return nil, fmt.Errorf("fetch product %d: %w", id, err)
	}
	return p, nil
}

func (s *productService) GetProductBySKU(ctx context.Context, sku string) (*Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE sku = $1", sku))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %q not found", sku)
		}
		return nil, fmt.Errorf("fetch product %q: %w", sku, err)
	}
	return p, nil
}

func (s *productService) GetProducts(ctx context.Context, activeOnly bool) ([]Product, error) {
	query := "SELECT " + productColumns + " FROM products"
	if activeOnly {
		query += " WHERE is_active = true"
	}
	query += " ORDER BY sku"

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Quantity, &p.CostPrice, &p.SalePrice,
			&p.IsActive, &p.IsConsigned, &p.ConsignorID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, nil
}
