package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PartyService interface {
	CreateCustomer(ctx context.Context, input CustomerInput) (*Customer, error)
	GetCustomer(ctx context.Context, id int) (*Customer, error)
	GetCustomers(ctx context.Context) ([]Customer, error)

	CreateSupplier(ctx context.Context, input SupplierInput) (*Supplier, error)
	GetSupplier(ctx context.Context, id int) (*Supplier, error)
	GetSuppliers(ctx context.Context) ([]Supplier, error)

	CreateConsignor(ctx context.Context, input ConsignorInput) (*Consignor, error)
	GetConsignor(ctx context.Context, id int) (*Consignor, error)
	GetConsignors(ctx context.Context) ([]Consignor, error)
}

type CustomerInput struct {
	Name           string `validate:"required"`
	Email          string `validate:"omitempty,email"`
	Phone          string
	WHTRatePercent decimal.Decimal
}

type SupplierInput struct {
	Name  string `validate:"required"`
	Email string `validate:"omitempty,email"`
	Phone string
}

type ConsignorInput struct {
	Name                  string          `validate:"required"`
	Email                 string          `validate:"omitempty,email"`
	Phone                 string
	CommissionRatePercent decimal.Decimal
}

type partyService struct {
	pool *pgxpool.Pool
}

func NewPartyService(pool *pgxpool.Pool) PartyService {
	return &partyService{pool: pool}
}

func toPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ── Customers ─────────────────────────────────────────────────────────────────

func (s *partyService) CreateCustomer(ctx context.Context, input CustomerInput) (*Customer, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid customer input: %w", err)
	}
	if input.WHTRatePercent.IsNegative() || input.WHTRatePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("withholding tax rate must be between 0 and 100, got %s", input.WHTRatePercent)
	}

	c := &Customer{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO customers (name, email, phone, wht_rate_percent)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, phone, wht_rate_percent, is_active, created_at`,
		input.Name, toPtr(input.Email), toPtr(input.Phone), input.WHTRatePercent,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.WHTRatePercent, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create customer %q: %w", input.Name, err)
	}
	return c, nil
}

func (s *partyService) GetCustomer(ctx context.Context, id int) (*Customer, error) {
	c := &Customer{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, wht_rate_percent, is_active, created_at
		FROM customers WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.WHTRatePercent, &c.IsActive, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("customer %d not found", id)
		}
		return nil, fmt.Errorf("fetch customer %d: %w", id, err)
	}
	return c, nil
}

func (s *partyService) GetCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, wht_rate_percent, is_active, created_at
		FROM customers
		WHERE is_active = true
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("get customers: %w", err)
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.WHTRatePercent, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, nil
}

// ── Suppliers ─────────────────────────────────────────────────────────────────

func (s *partyService) CreateSupplier(ctx context.Context, input SupplierInput) (*Supplier, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid supplier input: %w", err)
	}

	sup := &Supplier{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO suppliers (name, email, phone)
		VALUES ($1, $2, $3)
		RETURNING id, name, email, phone, is_active, created_at`,
		input.Name, toPtr(input.Email), toPtr(input.Phone),
	).Scan(&sup.ID, &sup.Name, &sup.Email, &sup.Phone, &sup.IsActive, &sup.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create supplier %q: %w", input.Name, err)
	}
	return sup, nil
}

func (s *partyService) GetSupplier(ctx context.Context, id int) (*Supplier, error) {
	sup := &Supplier{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, is_active, created_at
		FROM suppliers WHERE id = $1`,
		id,
	).Scan(&sup.ID, &sup.Name, &sup.Email, &sup.Phone, &sup.IsActive, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("supplier %d not found", id)
		}
		return nil, fmt.Errorf("fetch supplier %d: %w", id, err)
	}
	return sup, nil
}

func (s *partyService) GetSuppliers(ctx context.Context) ([]Supplier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, is_active, created_at
		FROM suppliers
		WHERE is_active = true
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("get suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var sup Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Email, &sup.Phone, &sup.IsActive, &sup.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, nil
}

// ── Consignors ────────────────────────────────────────────────────────────────

func (s *partyService) CreateConsignor(ctx context.Context, input ConsignorInput) (*Consignor, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid consignor input: %w", err)
	}
	if input.CommissionRatePercent.IsNegative() || input.CommissionRatePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("commission rate must be between 0 and 100, got %s", input.CommissionRatePercent)
	}

	c := &Consignor{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO consignors (name, email, phone, commission_rate_percent)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, phone, commission_rate_percent, is_active, created_at`,
		input.Name, toPtr(input.Email), toPtr(input.Phone), input.CommissionRatePercent,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CommissionRatePercent, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create consignor %q: %w", input.Name, err)
	}
	return c, nil
}

func (s *partyService) GetConsignor(ctx context.Context, id int) (*Consignor, error) {
	c := &Consignor{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, phone, commission_rate_percent, is_active, created_at
		FROM consignors WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CommissionRatePercent, &c.IsActive, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("consignor %d not found", id)
		}
		return nil, fmt.Errorf("fetch consignor %d: %w", id, err)
	}
	return c, nil
}

func (s *partyService) GetConsignors(ctx context.Context) ([]Consignor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, email, phone, commission_rate_percent, is_active, created_at
		FROM consignors
		WHERE is_active = true
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("get consignors: %w", err)
	}
	defer rows.Close()

	var consignors []Consignor
	for rows.Next() {
		var c Consignor
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CommissionRatePercent, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan consignor: %w", err)
		}
		consignors = append(consignors, c)
	}
	return consignors, nil
}
