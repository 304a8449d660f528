package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/meta"
)

const accountCols = `a.id, a.user_id, a.name, a.type, a.currency, a.balance::text, a.is_default, a.created_at, a.updated_at`

// transactionCols expects transactions aliased t joined with accounts aliased a (for currency).
const transactionCols = `t.id, t.account_id, t.user_id, t.type, t.amount::text, t.date, t.description, t.category,
    t.is_recurring, t.recurring_interval, t.next_recurring_date, t.last_processed, t.metadata,
    t.created_at, t.updated_at, a.currency`

const budgetCols = `id, user_id, currency, amount::text, created_at, updated_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var curr, balance string
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Type, &curr, &balance, &a.IsDefault, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return ledger.Account{}, err
	}
	a.Currency = strings.TrimSpace(curr)
	amt, err := money.ParseAmount(a.Currency, balance)
	if err != nil {
		return ledger.Account{}, err
	}
	a.Balance = amt
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]ledger.Account, error) {
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func getAccount(ctx context.Context, q querier, userID, accountID uuid.UUID, lock bool) (ledger.Account, error) {
	sql := `select ` + accountCols + ` from accounts a where a.id = $1 and a.user_id = $2`
	if lock {
		sql += ` for update`
	}
	a, err := scanAccount(q.QueryRow(ctx, sql, accountID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func scanTransaction(row pgx.Row) (ledger.Transaction, error) {
	var t ledger.Transaction
	var amount, curr string
	var interval *string
	var md []byte
	if err := row.Scan(&t.ID, &t.AccountID, &t.UserID, &t.Type, &amount, &t.Date, &t.Description, &t.Category,
		&t.IsRecurring, &interval, &t.NextRecurringDate, &t.LastProcessed, &md, &t.CreatedAt, &t.UpdatedAt, &curr); err != nil {
		return ledger.Transaction{}, err
	}
	amt, err := money.ParseAmount(strings.TrimSpace(curr), amount)
	if err != nil {
		return ledger.Transaction{}, err
	}
	t.Amount = amt
	if interval != nil {
		t.RecurringInterval = ledger.RecurringInterval(*interval)
	}
	if len(md) > 0 {
		var m meta.Metadata
		if err := m.UnmarshalJSON(md); err == nil {
			t.Metadata = m
		}
	}
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]ledger.Transaction, error) {
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func getTransaction(ctx context.Context, q querier, userID, transactionID uuid.UUID, lock bool) (ledger.Transaction, error) {
	sql := `select ` + transactionCols + ` from transactions t
        join accounts a on a.id = t.account_id
        where t.id = $1 and t.user_id = $2`
	if lock {
		sql += ` for update of t`
	}
	t, err := scanTransaction(q.QueryRow(ctx, sql, transactionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return t, err
}

func scanBudget(row pgx.Row) (ledger.Budget, error) {
	var b ledger.Budget
	var curr, amount string
	if err := row.Scan(&b.ID, &b.UserID, &curr, &amount, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return ledger.Budget{}, err
	}
	amt, err := money.ParseAmount(strings.TrimSpace(curr), amount)
	if err != nil {
		return ledger.Budget{}, err
	}
	b.Amount = amt
	return b, nil
}

func accountTransactions(ctx context.Context, q querier, userID, accountID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := q.Query(ctx, `select `+transactionCols+` from transactions t
        join accounts a on a.id = t.account_id
        where t.account_id = $1 and t.user_id = $2
        order by t.date desc, t.created_at desc, t.id desc`, accountID, userID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}
