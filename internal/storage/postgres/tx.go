package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
)

// Tx wraps a pgx.Tx and implements storage.Tx.
type Tx struct{ q querier }

func (t *Tx) LockUserAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := t.q.Query(ctx, `select `+accountCols+` from accounts a
        where a.user_id = $1
        order by a.id
        for update`, userID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (t *Tx) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	return getAccount(ctx, t.q, userID, accountID, true)
}

func (t *Tx) InsertAccount(ctx context.Context, a ledger.Account) error {
	_, err := t.q.Exec(ctx, `
        insert into accounts (id, user_id, name, type, currency, balance, is_default, created_at, updated_at)
        values ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9)`,
		a.ID, a.UserID, a.Name, a.Type, a.Currency, a.Balance.Decimal().String(), a.IsDefault, a.CreatedAt, a.UpdatedAt)
	return err
}

func (t *Tx) ClearDefault(ctx context.Context, userID uuid.UUID) error {
	_, err := t.q.Exec(ctx, `update accounts set is_default = false, updated_at = now() where user_id = $1 and is_default`, userID)
	return err
}

func (t *Tx) MarkDefault(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	row := t.q.QueryRow(ctx, `update accounts a set is_default = true, updated_at = now()
        where a.id = $1 and a.user_id = $2
        returning `+accountCols, accountID, userID)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

func (t *Tx) IncrementBalance(ctx context.Context, userID, accountID uuid.UUID, delta money.Amount) error {
	ct, err := t.q.Exec(ctx, `update accounts set balance = balance + $1::numeric, updated_at = now()
        where id = $2 and user_id = $3`, delta.Decimal().String(), accountID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *Tx) GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (ledger.Transaction, error) {
	return getTransaction(ctx, t.q, userID, transactionID, true)
}

func (t *Tx) TransactionsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]ledger.Transaction, error) {
	if len(ids) == 0 {
		return []ledger.Transaction{}, nil
	}
	rows, err := t.q.Query(ctx, `select `+transactionCols+` from transactions t
        join accounts a on a.id = t.account_id
        where t.user_id = $1 and t.id = any($2)
        order by t.id
        for update of t`, userID, ids)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (t *Tx) InsertTransaction(ctx context.Context, tr ledger.Transaction) error {
	md, _ := tr.Metadata.MarshalJSON()
	_, err := t.q.Exec(ctx, `
        insert into transactions (id, account_id, user_id, type, amount, date, description, category,
            is_recurring, recurring_interval, next_recurring_date, last_processed, metadata, created_at, updated_at)
        values ($1,$2,$3,$4,$5::numeric,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		tr.ID, tr.AccountID, tr.UserID, tr.Type, tr.Amount.Decimal().String(), tr.Date, tr.Description, tr.Category,
		tr.IsRecurring, nullInterval(tr.RecurringInterval), tr.NextRecurringDate, tr.LastProcessed, md, tr.CreatedAt, tr.UpdatedAt)
	return err
}

func (t *Tx) UpdateTransaction(ctx context.Context, tr ledger.Transaction) error {
	md, _ := tr.Metadata.MarshalJSON()
	ct, err := t.q.Exec(ctx, `
        update transactions
        set account_id=$1, type=$2, amount=$3::numeric, date=$4, description=$5, category=$6,
            is_recurring=$7, recurring_interval=$8, next_recurring_date=$9, last_processed=$10,
            metadata=$11, updated_at=$12
        where id=$13 and user_id=$14`,
		tr.AccountID, tr.Type, tr.Amount.Decimal().String(), tr.Date, tr.Description, tr.Category,
		tr.IsRecurring, nullInterval(tr.RecurringInterval), tr.NextRecurringDate, tr.LastProcessed,
		md, tr.UpdatedAt, tr.ID, tr.UserID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteTransaction(ctx context.Context, userID, transactionID uuid.UUID) error {
	ct, err := t.q.Exec(ctx, `delete from transactions where id = $1 and user_id = $2`, transactionID, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (t *Tx) DeleteTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ct, err := t.q.Exec(ctx, `delete from transactions where user_id = $1 and id = any($2)`, userID, ids)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (t *Tx) UpsertBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error) {
	row := t.q.QueryRow(ctx, `
        insert into budgets (id, user_id, currency, amount, created_at, updated_at)
        values ($1,$2,$3,$4::numeric,$5,$6)
        on conflict (user_id) do update
            set amount = excluded.amount,
                currency = excluded.currency,
                updated_at = excluded.updated_at
        returning `+budgetCols,
		b.ID, b.UserID, b.Amount.Curr().Code(), b.Amount.Decimal().String(), b.CreatedAt, b.UpdatedAt)
	return scanBudget(row)
}

func (t *Tx) EnsureUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	var out ledger.User
	err := t.q.QueryRow(ctx, `
        insert into users (id, external_auth_id, created_at) values ($1,$2,$3)
        on conflict (external_auth_id) do update set external_auth_id = excluded.external_auth_id
        returning id, external_auth_id, created_at`, u.ID, u.ExternalAuthID, u.CreatedAt).
		Scan(&out.ID, &out.ExternalAuthID, &out.CreatedAt)
	return out, err
}

func nullInterval(i ledger.RecurringInterval) *string {
	if i == ledger.IntervalNone {
		return nil
	}
	s := string(i)
	return &s
}
