// Package storage defines the Ledger Store contract shared by the memory and
// Postgres backends. Reads outside a transaction go through Reader; every
// mutation runs inside TxRunner.RunInTx and commits or aborts as one unit.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/ledger"
)

// Reader holds the read-only queries used outside of a transaction.
type Reader interface {
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	// ListAccountTransactions returns the account's transactions newest first.
	ListAccountTransactions(ctx context.Context, userID, accountID uuid.UUID) ([]ledger.Transaction, error)
	// AccountView returns the account and its transactions from one snapshot.
	AccountView(ctx context.Context, userID, accountID uuid.UUID) (ledger.AccountView, error)
	GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (ledger.Transaction, error)
	GetBudget(ctx context.Context, userID uuid.UUID) (ledger.Budget, error)
	// SumExpenses totals EXPENSE amounts on the account dated in [from, to).
	SumExpenses(ctx context.Context, userID, accountID uuid.UUID, from, to time.Time) (money.Amount, error)
	// DueRecurring returns recurring templates whose next date is at or before asOf.
	DueRecurring(ctx context.Context, asOf time.Time, limit int) ([]ledger.Transaction, error)
	UserByExternalID(ctx context.Context, externalAuthID string) (ledger.User, error)
}

// Tx is the set of reads and writes available inside one store transaction.
// Getters lock the rows they return until the transaction ends.
type Tx interface {
	LockUserAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	GetAccount(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	InsertAccount(ctx context.Context, a ledger.Account) error
	// ClearDefault unsets is_default on every account of the user.
	ClearDefault(ctx context.Context, userID uuid.UUID) error
	MarkDefault(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	// IncrementBalance applies balance = balance + delta evaluated by the store.
	IncrementBalance(ctx context.Context, userID, accountID uuid.UUID, delta money.Amount) error

	GetTransaction(ctx context.Context, userID, transactionID uuid.UUID) (ledger.Transaction, error)
	TransactionsByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]ledger.Transaction, error)
	InsertTransaction(ctx context.Context, t ledger.Transaction) error
	UpdateTransaction(ctx context.Context, t ledger.Transaction) error
	DeleteTransaction(ctx context.Context, userID, transactionID uuid.UUID) error
	// DeleteTransactions removes the given ids owned by the user and reports how many went.
	DeleteTransactions(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)

	UpsertBudget(ctx context.Context, b ledger.Budget) (ledger.Budget, error)
	EnsureUser(ctx context.Context, u ledger.User) (ledger.User, error)
}

// TxRunner runs fn inside a single atomic store transaction. A non-nil error
// from fn, a panic or a commit failure leaves no effect behind.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is what a backend provides.
type Store interface {
	Reader
	TxRunner
	Ready(ctx context.Context) error
	Close()
}
