package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// System account roles. Orchestrators never hardcode account codes; they
// resolve a role against the system_accounts table, so retailers can remap
// the chart without code changes.
const (
	RoleCash            = "cash"
	RoleAR              = "accounts_receivable"
	RoleInventory       = "inventory"
	RoleCWT             = "creditable_withholding_tax"
	RoleAP              = "accounts_payable"
	RoleDueToConsignors = "due_to_consignors"
	RoleSalesRevenue    = "sales_revenue"
	RoleOtherRevenue    = "other_revenue"
	RoleCommission      = "commission_income"
	RoleSalesReturns    = "sales_returns"
	RoleAdjustmentGain  = "inventory_adjustment_gain"
	RoleCOGS            = "cogs"
	RoleShrinkage       = "inventory_shrinkage"
	RoleVATPayable      = "vat_payable"
	RoleVATInput        = "vat_input"
)

// SystemAccounts resolves account roles to chart codes from the
// system_accounts table, with a read-through cache.
type SystemAccounts struct {
	pool *pgxpool.Pool

	mu     sync.RWMutex
	byRole map[string]string
}

func NewSystemAccounts(pool *pgxpool.Pool) *SystemAccounts {
	return &SystemAccounts{pool: pool, byRole: make(map[string]string)}
}

// Resolve returns the account code mapped to a role.
func (s *SystemAccounts) Resolve(ctx context.Context, role string) (string, error) {
	return s.resolve(ctx, s.pool, role)
}

// ResolveTx resolves a role inside the caller's transaction.
func (s *SystemAccounts) ResolveTx(ctx context.Context, tx pgx.Tx, role string) (string, error) {
	return s.resolve(ctx, tx, role)
}

func (s *SystemAccounts) resolve(ctx context.Context, q querier, role string) (string, error) {
	s.mu.RLock()
	code, ok := s.byRole[role]
	s.mu.RUnlock()
	if ok {
		return code, nil
	}

	err := q.QueryRow(ctx, `
		SELECT account_code FROM system_accounts WHERE role = $1
	`, role).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("no system account mapped for role %q; seed system_accounts or run migrations", role)
		}
		return "", fmt.Errorf("failed to resolve system account for role %q: %w", role, err)
	}

	s.mu.Lock()
	s.byRole[role] = code
	s.mu.Unlock()
	return code, nil
}

// Invalidate drops the role cache. Called after remapping system accounts.
func (s *SystemAccounts) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byRole = make(map[string]string)
}
