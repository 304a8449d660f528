// Package postgres provides the pgx-backed Ledger Store.
//
// Balance writes are always evaluated by the database as
// balance = balance + $delta, and rows read inside a transaction are locked
// FOR UPDATE, so concurrent writers to one account serialise while writers to
// different accounts do not contend. The schema lives in migrations/ and is
// applied with Migrate.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	txTimeout time.Duration
}

// Open establishes a pgx pool using the provided connection string. txTimeout
// bounds every RunInTx call; zero leaves it to the caller's context.
func Open(ctx context.Context, dsn string, txTimeout time.Duration) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, txTimeout: txTimeout}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// RunInTx runs fn in a read-committed transaction. Any error from fn rolls
// everything back; a panic is converted into an error after rollback.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transaction aborted: %v", rec)
		}
	}()
	if err := fn(ctx, &Tx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SeedDev inserts one user with a default current account and a savings account.
func (s *Store) SeedDev(ctx context.Context, currency string) (ledger.User, []ledger.Account, error) {
	user := ledger.User{ID: uuid.New(), ExternalAuthID: "dev-" + uuid.NewString()[:8], CreatedAt: time.Now().UTC()}
	zero, err := money.NewAmountFromMinorUnits(currency, 0)
	if err != nil {
		return ledger.User{}, nil, err
	}
	accs := []ledger.Account{
		{ID: uuid.New(), UserID: user.ID, Name: "Current", Type: ledger.AccountTypeCurrent, Currency: currency, Balance: zero, IsDefault: true, CreatedAt: user.CreatedAt, UpdatedAt: user.CreatedAt},
		{ID: uuid.New(), UserID: user.ID, Name: "Savings", Type: ledger.AccountTypeSavings, Currency: currency, Balance: zero, CreatedAt: user.CreatedAt, UpdatedAt: user.CreatedAt},
	}
	err = s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.EnsureUser(ctx, user); err != nil {
			return err
		}
		for _, a := range accs {
			if err := tx.InsertAccount(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ledger.User{}, nil, err
	}
	return user, accs, nil
}

// --- Reader ---

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts a
        where a.user_id = $1
        order by a.is_default desc, a.name, a.id`, userID)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	return getAccount(ctx, s.pool, userID, accountID, false)
}

func (s *Store) ListAccountTransactions(ctx context.Context, userID, accountID uuid.UUID) ([]ledger.Transaction, error) {
	return accountTransactions(ctx, s.pool, userID, accountID)
}

// AccountView reads the account and its transactions in one repeatable-read
// snapshot so the balance always matches the listed rows.
func (s *Store) AccountView(ctx context.Context, userID, accountID uuid.UUID) (ledger.AccountView, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return ledger.AccountView{}, err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	acc, err := getAccount(ctx, tx, userID, accountID, false)
	if err != nil {
		return ledger.AccountView{}, err
	}
	txs, err := accountTransactions(ctx, tx, userID, accountID)
	if err != nil {
		return ledger.AccountView{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ledger.AccountView{}, err
	}
	return ledger.AccountView{Account: acc, Transactions: txs, TransactionCount: len(txs)}, nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (ledger.Transaction, error) {
	return getTransaction(ctx, s.pool, userID, transactionID, false)
}

func (s *Store) GetBudget(ctx context.Context, userID uuid.UUID) (ledger.Budget, error) {
	row := s.pool.QueryRow(ctx, `select `+budgetCols+` from budgets where user_id = $1`, userID)
	b, err := scanBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Budget{}, errs.ErrNotFound
	}
	return b, err
}

func (s *Store) SumExpenses(ctx context.Context, userID, accountID uuid.UUID, from, to time.Time) (money.Amount, error) {
	var curr, total string
	err := s.pool.QueryRow(ctx, `
        select a.currency, coalesce(sum(t.amount), 0)::text
        from accounts a
        left join transactions t
          on t.account_id = a.id and t.type = 'EXPENSE' and t.date >= $3 and t.date < $4
        where a.id = $1 and a.user_id = $2
        group by a.currency`, accountID, userID, from, to).Scan(&curr, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return money.Amount{}, errs.ErrNotFound
	}
	if err != nil {
		return money.Amount{}, err
	}
	return money.ParseAmount(strings.TrimSpace(curr), total)
}

func (s *Store) DueRecurring(ctx context.Context, asOf time.Time, limit int) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx, `select `+transactionCols+` from transactions t
        join accounts a on a.id = t.account_id
        where t.is_recurring and t.next_recurring_date <= $1
        order by t.next_recurring_date, t.id
        limit $2`, asOf, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func (s *Store) UserByExternalID(ctx context.Context, externalAuthID string) (ledger.User, error) {
	var u ledger.User
	err := s.pool.QueryRow(ctx, `select id, external_auth_id, created_at from users where external_auth_id = $1`, externalAuthID).
		Scan(&u.ID, &u.ExternalAuthID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.User{}, errs.ErrNotFound
	}
	return u, err
}
