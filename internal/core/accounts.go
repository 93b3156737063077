package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AccountService interface {
	CreateAccount(ctx context.Context, input AccountInput) (*Account, error)
	UpdateAccount(ctx context.Context, id int, input AccountInput) (*Account, error)
	GetAccountByCode(ctx context.Context, code string) (*Account, error)
	GetAccounts(ctx context.Context) ([]Account, error)
}

type AccountInput struct {
	Code        string      `validate:"required"`
	Name        string      `validate:"required"`
	Type        AccountType `validate:"required,oneof=asset liability equity revenue expense"`
	Description string
}

type accountService struct {
	pool   *pgxpool.Pool
	ledger *Ledger
}

// NewAccountService constructs an AccountService. Mutations invalidate the
// ledger's account code cache.
func NewAccountService(pool *pgxpool.Pool, ledger *Ledger) AccountService {
	return &accountService{pool: pool, ledger: ledger}
}

func (s *accountService) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid account input: %w", err)
	}

	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM accounts WHERE code = $1)", input.Code).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check account code %q: %w", input.Code, err)
	}
	if exists {
		return nil, fmt.Errorf("account code %q already exists", input.Code)
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}

	a := &Account{}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO accounts (code, name, type, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id, code, name, type, description, created_at`,
		input.Code, input.Name, string(input.Type), desc,
	).Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Description, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account %q: %w", input.Code, err)
	}

	s.ledger.InvalidateAccounts()
	return a, nil
}

// UpdateAccount renames or re-describes an account. The code becomes
// immutable once any journal line references the account.
func (s *accountService) UpdateAccount(ctx context.Context, id int, input AccountInput) (*Account, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("invalid account input: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var currentCode string
	err = tx.QueryRow(ctx, "SELECT code FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&currentCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %d not found", id)
		}
		return nil, fmt.Errorf("failed to fetch account %d: %w", id, err)
	}

	if input.Code != currentCode {
		var referenced bool
		err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM journal_lines WHERE account_id = $1)", id).Scan(&referenced)
		if err != nil {
			return nil, fmt.Errorf("check account references: %w", err)
		}
		if referenced {
			return nil, fmt.Errorf("account code %q cannot change: journal lines reference it", currentCode)
		}

		var taken bool
		err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM accounts WHERE code = $1 AND id <> $2)", input.Code, id).Scan(&taken)
		if err != nil {
			return nil, fmt.Errorf("check account code %q: %w", input.Code, err)
		}
		if taken {
			return nil, fmt.Errorf("account code %q already exists", input.Code)
		}
	}

	var desc *string
	if input.Description != "" {
		desc = &input.Description
	}

	a := &Account{}
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET code = $1, name = $2, type = $3, description = $4
		WHERE id = $5
		RETURNING id, code, name, type, description, created_at`,
		input.Code, input.Name, string(input.Type), desc, id,
	).Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Description, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("update account %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.ledger.InvalidateAccounts()
	return a, nil
}

func (s *accountService) GetAccountByCode(ctx context.Context, code string) (*Account, error) {
	a := &Account{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, type, description, created_at
		FROM accounts WHERE code = $1`,
		code,
	).Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Description, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnknownAccountError{Code: code}
		}
		return nil, fmt.Errorf("fetch account %q: %w", code, err)
	}
	return a, nil
}

func (s *accountService) GetAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, type, description, created_at
		FROM accounts
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, nil
}
