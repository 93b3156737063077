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

// ── Report types ──────────────────────────────────────────────────────────────

// TrialBalanceRow carries an account's net movement split onto its debit or
// credit column by sign.
type TrialBalanceRow struct {
	Code   string
	Name   string
	Type   AccountType
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// ReportLine is a single account line in a financial statement, expressed
// in the sign convention of its section (positive = normal balance).
type ReportLine struct {
	Code   string
	Name   string
	Amount decimal.Decimal
}

// BalanceSheet as of a date. Because income is not closed to equity at
// period end, the accumulated net income appears as a synthetic equity
// line; with it, assets always equal liabilities plus equity.
type BalanceSheet struct {
	AsOf             time.Time
	Assets           []ReportLine
	Liabilities      []ReportLine
	Equity           []ReportLine
	NetIncome        decimal.Decimal
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	TotalEquity      decimal.Decimal
	IsBalanced       bool
}

// IncomeStatement over a date range, with cost of goods sold broken out of
// the other expenses so gross profit is visible.
type IncomeStatement struct {
	Start         *time.Time
	End           *time.Time
	Revenue       []ReportLine
	TotalRevenue  decimal.Decimal
	COGS          decimal.Decimal
	GrossProfit   decimal.Decimal
	Expenses      []ReportLine
	TotalExpenses decimal.Decimal
	NetIncome     decimal.Decimal
}

// StatementLine is one journal line in a general ledger statement.
// RunningBalance accumulates on the account's natural side, so a healthy
// account reads positive.
type StatementLine struct {
	EntryDate      time.Time
	Description    string
	ReferenceType  *string
	ReferenceID    *int
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	RunningBalance decimal.Decimal
}

// VATReturn summarizes one month's VAT position: output VAT collected on
// sales and invoices, less credit memo clawbacks, less input VAT paid.
// Positive NetPayable is owed to the tax authority; negative is refundable.
type VATReturn struct {
	Year          int
	Month         int
	OutputVAT     decimal.Decimal
	CreditMemoVAT decimal.Decimal
	InputVAT      decimal.Decimal
	NetPayable    decimal.Decimal
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only aggregation over the ledger. Reports
// include voided entries together with their reversals; the pair cancels,
// so a report re-run for a past period never changes.
type ReportingService interface {
	TrialBalance(ctx context.Context, start, end *time.Time) ([]TrialBalanceRow, error)
	GetBalanceSheet(ctx context.Context, asOf time.Time) (*BalanceSheet, error)
	GetIncomeStatement(ctx context.Context, start, end *time.Time) (*IncomeStatement, error)
	// GeneralLedger returns an account's journal lines over the range with
	// a running balance on the account's natural side.
	GeneralLedger(ctx context.Context, accountCode string, start, end *time.Time) ([]StatementLine, error)
	// GetVATReturn summarizes the VAT position for one calendar month from
	// the source documents, skipping voided ones.
	GetVATReturn(ctx context.Context, year int, month time.Month) (*VATReturn, error)
}

type reportingService struct {
	pool     *pgxpool.Pool
	accounts *SystemAccounts
}

func NewReportingService(pool *pgxpool.Pool, accounts *SystemAccounts) ReportingService {
	return &reportingService{pool: pool, accounts: accounts}
}

type accountMovement struct {
	code    string
	name    string
	accType string
	debit   decimal.Decimal
	credit  decimal.Decimal
}

// accountMovements sums debits and credits per account over the range.
func (s *reportingService) accountMovements(ctx context.Context, start, end *time.Time, types []string) ([]accountMovement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.code, a.name, a.type,
		       COALESCE(m.debit_total, 0),
		       COALESCE(m.credit_total, 0)
		FROM accounts a
		LEFT JOIN (
		    SELECT jl.account_id,
		           SUM(jl.debit)  AS debit_total,
		           SUM(jl.credit) AS credit_total
		    FROM journal_lines jl
		    JOIN journal_entries je ON je.id = jl.entry_id
		    WHERE ($1::date IS NULL OR je.entry_date >= $1)
		      AND ($2::date IS NULL OR je.entry_date <= $2)
		    GROUP BY jl.account_id
		) m ON m.account_id = a.id
		WHERE a.type = ANY($3)
		ORDER BY a.code
	`, start, end, types)
	if err != nil {
		return nil, fmt.Errorf("failed to query account movements: %w", err)
	}
	defer rows.Close()

	var out []accountMovement
	for rows.Next() {
		var r accountMovement
		if err := rows.Scan(&r.code, &r.name, &r.accType, &r.debit, &r.credit); err != nil {
			return nil, fmt.Errorf("failed to scan account movement: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating account movements: %w", err)
	}
	return out, nil
}

var allAccountTypes = []string{"asset", "liability", "equity", "revenue", "expense"}

func (s *reportingService) TrialBalance(ctx context.Context, start, end *time.Time) ([]TrialBalanceRow, error) {
	movements, err := s.accountMovements(ctx, start, end, allAccountTypes)
	if err != nil {
		return nil, err
	}

	var tb []TrialBalanceRow
	for _, m := range movements {
		row := TrialBalanceRow{Code: m.code, Name: m.name, Type: AccountType(m.accType)}
		net := m.debit.Sub(m.credit)
		if net.IsPositive() {
			row.Debit = net
		} else {
			row.Credit = net.Neg()
		}
		tb = append(tb, row)
	}
	return tb, nil
}

func (s *reportingService) GetBalanceSheet(ctx context.Context, asOf time.Time) (*BalanceSheet, error) {
	movements, err := s.accountMovements(ctx, nil, &asOf, allAccountTypes)
	if err != nil {
		return nil, err
	}

	report := &BalanceSheet{AsOf: asOf}
	netIncome := decimal.Zero
	for _, m := range movements {
		net := m.debit.Sub(m.credit)
		switch AccountType(m.accType) {
		case Asset:
			report.Assets = append(report.Assets, ReportLine{Code: m.code, Name: m.name, Amount: net})
			report.TotalAssets = report.TotalAssets.Add(net)
		case Liability:
			bal := net.Neg()
			report.Liabilities = append(report.Liabilities, ReportLine{Code: m.code, Name: m.name, Amount: bal})
			report.TotalLiabilities = report.TotalLiabilities.Add(bal)
		case Equity:
			bal := net.Neg()
			report.Equity = append(report.Equity, ReportLine{Code: m.code, Name: m.name, Amount: bal})
			report.TotalEquity = report.TotalEquity.Add(bal)
		case Revenue:
			netIncome = netIncome.Add(m.credit.Sub(m.debit))
		case Expense:
			netIncome = netIncome.Sub(m.debit.Sub(m.credit))
		}
	}

	report.NetIncome = netIncome
	report.Equity = append(report.Equity, ReportLine{Name: "Current Period Net Income", Amount: netIncome})
	report.TotalEquity = report.TotalEquity.Add(netIncome)
	report.IsBalanced = report.TotalAssets.Equal(report.TotalLiabilities.Add(report.TotalEquity))
	return report, nil
}

func (s *reportingService) GetIncomeStatement(ctx context.Context, start, end *time.Time) (*IncomeStatement, error) {
	cogsCode, err := s.accounts.Resolve(ctx, RoleCOGS)
	if err != nil {
		return nil, err
	}

	movements, err := s.accountMovements(ctx, start, end, []string{"revenue", "expense"})
	if err != nil {
		return nil, err
	}

	report := &IncomeStatement{Start: start, End: end}
	for _, m := range movements {
		switch AccountType(m.accType) {
		case Revenue:
			bal := m.credit.Sub(m.debit)
			report.Revenue = append(report.Revenue, ReportLine{Code: m.code, Name: m.name, Amount: bal})
			report.TotalRevenue = report.TotalRevenue.Add(bal)
		case Expense:
			bal := m.debit.Sub(m.credit)
			if m.code == cogsCode {
				report.COGS = report.COGS.Add(bal)
				continue
			}
			report.Expenses = append(report.Expenses, ReportLine{Code: m.code, Name: m.name, Amount: bal})
			report.TotalExpenses = report.TotalExpenses.Add(bal)
		}
	}

	report.GrossProfit = report.TotalRevenue.Sub(report.COGS)
	report.NetIncome = report.GrossProfit.Sub(report.TotalExpenses)
	return report, nil
}

func (s *reportingService) GeneralLedger(ctx context.Context, accountCode string, start, end *time.Time) ([]StatementLine, error) {
	var accType AccountType
	err := s.pool.QueryRow(ctx, "SELECT type FROM accounts WHERE code = $1", accountCode).Scan(&accType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnknownAccountError{Code: accountCode}
		}
		return nil, fmt.Errorf("failed to resolve account %q: %w", accountCode, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT je.entry_date, je.description, je.reference_type, je.reference_id, jl.debit, jl.credit
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.entry_id
		JOIN accounts a ON a.id = jl.account_id
		WHERE a.code = $1
		  AND ($2::date IS NULL OR je.entry_date >= $2)
		  AND ($3::date IS NULL OR je.entry_date <= $3)
		ORDER BY je.entry_date, je.id, jl.id
	`, accountCode, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query general ledger: %w", err)
	}
	defer rows.Close()

	var lines []StatementLine
	running := decimal.Zero
	for rows.Next() {
		var sl StatementLine
		if err := rows.Scan(&sl.EntryDate, &sl.Description, &sl.ReferenceType, &sl.ReferenceID, &sl.Debit, &sl.Credit); err != nil {
			return nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		if accType.DebitNatural() {
			running = running.Add(sl.Debit).Sub(sl.Credit)
		} else {
			running = running.Add(sl.Credit).Sub(sl.Debit)
		}
		sl.RunningBalance = running
		lines = append(lines, sl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statement lines: %w", err)
	}
	return lines, nil
}

func (s *reportingService) GetVATReturn(ctx context.Context, year int, month time.Month) (*VATReturn, error) {
	ret := &VATReturn{Year: year, Month: int(month)}

	err := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(vat_total) FROM sales
			          WHERE voided_at IS NULL
			            AND EXTRACT(YEAR FROM sale_date)::int = $1
			            AND EXTRACT(MONTH FROM sale_date)::int = $2), 0)
			+ COALESCE((SELECT SUM(vat_total) FROM ar_invoices
			          WHERE voided_at IS NULL
			            AND EXTRACT(YEAR FROM invoice_date)::int = $1
			            AND EXTRACT(MONTH FROM invoice_date)::int = $2), 0),
			COALESCE((SELECT SUM(vat_amount) FROM credit_memos
			          WHERE voided_at IS NULL
			            AND EXTRACT(YEAR FROM memo_date)::int = $1
			            AND EXTRACT(MONTH FROM memo_date)::int = $2), 0),
			COALESCE((SELECT SUM(vat_total) FROM purchases
			          WHERE voided_at IS NULL
			            AND EXTRACT(YEAR FROM purchase_date)::int = $1
			            AND EXTRACT(MONTH FROM purchase_date)::int = $2), 0)
			+ COALESCE((SELECT SUM(vat_total) FROM ap_invoices
			          WHERE voided_at IS NULL
			            AND EXTRACT(YEAR FROM invoice_date)::int = $1
			            AND EXTRACT(MONTH FROM invoice_date)::int = $2), 0)
	`, year, int(month)).Scan(&ret.OutputVAT, &ret.CreditMemoVAT, &ret.InputVAT)
	if err != nil {
		return nil, fmt.Errorf("failed to compute VAT return for %d-%02d: %w", year, month, err)
	}

	ret.NetPayable = ret.OutputVAT.Sub(ret.CreditMemoVAT).Sub(ret.InputVAT)
	return ret, nil
}
