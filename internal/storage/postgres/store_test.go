package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	if err := Migrate(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn, 5*time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `truncate table budgets, transactions, accounts, users cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func usd(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.ParseAmount("USD", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return a
}

func sameAmount(a, b money.Amount) bool {
	c, err := a.Cmp(b)
	return err == nil && c == 0
}

func TestStore_AccountsAndTransactions(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Ready(ctx); err != nil {
		t.Fatalf("ready: %v", err)
	}
	user, accs, err := s.SeedDev(ctx, "USD")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	list, err := s.ListAccounts(ctx, user.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("list accounts: %v (%d)", err, len(list))
	}
	if !list[0].IsDefault {
		t.Fatalf("default account should sort first")
	}

	now := time.Now().UTC()
	tr := ledger.Transaction{
		ID: uuid.New(), AccountID: accs[0].ID, UserID: user.ID,
		Type: ledger.TransactionTypeExpense, Amount: usd(t, "12.3456"),
		Date: now, Category: "groceries", CreatedAt: now, UpdatedAt: now,
	}
	err = s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertTransaction(ctx, tr); err != nil {
			return err
		}
		return tx.IncrementBalance(ctx, user.ID, tr.AccountID, ledger.SignedDelta(tr))
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	acc, err := s.GetAccount(ctx, user.ID, accs[0].ID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !sameAmount(acc.Balance, usd(t, "-12.3456")) {
		t.Fatalf("balance = %s", acc.Balance)
	}
	txs, err := s.ListAccountTransactions(ctx, user.ID, accs[0].ID)
	if err != nil || len(txs) != 1 {
		t.Fatalf("list transactions: %v (%d)", err, len(txs))
	}
	view, err := s.AccountView(ctx, user.ID, accs[0].ID)
	if err != nil || view.TransactionCount != 1 || !sameAmount(view.Account.Balance, acc.Balance) {
		t.Fatalf("account view: %v (%d, %s)", err, view.TransactionCount, view.Account.Balance)
	}
	if _, err := s.AccountView(ctx, uuid.New(), accs[0].ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("foreign account view: expected not found, got %v", err)
	}
	sum, err := s.SumExpenses(ctx, user.ID, accs[0].ID, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil || !sameAmount(sum, usd(t, "12.3456")) {
		t.Fatalf("sum expenses = %s, %v", sum, err)
	}

	// Foreign users never see the row.
	if _, err := s.GetTransaction(ctx, uuid.New(), tr.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStore_RollbackOnError(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx := context.Background()
	user, accs, err := s.SeedDev(ctx, "USD")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	boom := errors.New("boom")
	err = s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.IncrementBalance(ctx, user.ID, accs[0].ID, usd(t, "50")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	acc, _ := s.GetAccount(ctx, user.ID, accs[0].ID)
	if !acc.Balance.IsZero() {
		t.Fatalf("rollback left balance %s", acc.Balance)
	}
}

func TestStore_BudgetUpsertAndEnsureUser(t *testing.T) {
	s := mustOpen(t, getTestDSN(t))
	ctx := context.Background()
	var user ledger.User
	err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		user, err = tx.EnsureUser(ctx, ledger.User{ID: uuid.New(), ExternalAuthID: "ext-1"})
		return err
	})
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	var again ledger.User
	_ = s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		again, err = tx.EnsureUser(ctx, ledger.User{ID: uuid.New(), ExternalAuthID: "ext-1"})
		return err
	})
	if again.ID != user.ID {
		t.Fatalf("ensure user not idempotent: %s != %s", again.ID, user.ID)
	}

	now := time.Now().UTC()
	for _, v := range []string{"500", "750.25"} {
		err := s.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			_, err := tx.UpsertBudget(ctx, ledger.Budget{ID: uuid.New(), UserID: user.ID, Amount: usd(t, v), CreatedAt: now, UpdatedAt: now})
			return err
		})
		if err != nil {
			t.Fatalf("upsert %s: %v", v, err)
		}
	}
	b, err := s.GetBudget(ctx, user.ID)
	if err != nil || !sameAmount(b.Amount, usd(t, "750.25")) {
		t.Fatalf("budget = %s, %v", b.Amount, err)
	}
}
