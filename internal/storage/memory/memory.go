// Package memory provides the in-memory Ledger Store used for development and tests.
//
// RunInTx takes the single writer lock, works on a copy of the state and swaps
// the copy in only when fn succeeds; readers never observe a half-applied
// transaction.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

type state struct {
	users        map[uuid.UUID]ledger.User
	usersByExt   map[string]uuid.UUID
	accounts     map[uuid.UUID]ledger.Account
	transactions map[uuid.UUID]ledger.Transaction
	budgets      map[uuid.UUID]ledger.Budget // keyed by user id
}

func newState() *state {
	return &state{
		users:        make(map[uuid.UUID]ledger.User),
		usersByExt:   make(map[string]uuid.UUID),
		accounts:     make(map[uuid.UUID]ledger.Account),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		budgets:      make(map[uuid.UUID]ledger.Budget),
	}
}

func (s *state) clone() *state {
	c := &state{
		users:        make(map[uuid.UUID]ledger.User, len(s.users)),
		usersByExt:   make(map[string]uuid.UUID, len(s.usersByExt)),
		accounts:     make(map[uuid.UUID]ledger.Account, len(s.accounts)),
		transactions: make(map[uuid.UUID]ledger.Transaction, len(s.transactions)),
		budgets:      make(map[uuid.UUID]ledger.Budget, len(s.budgets)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usersByExt {
		c.usersByExt[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = copyTransaction(v)
	}
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	return c
}

// Store is an in-memory implementation of storage.Store.
// It is guarded by an RWMutex; RunInTx holds the write lock for its whole duration.
type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// Seed helpers for local dev/tests. They bypass the engine's invariants.
func (s *Store) SeedUser(u ledger.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
	if u.ExternalAuthID != "" {
		s.st.usersByExt[u.ExternalAuthID] = u.ID
	}
}

func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.st.accounts[a.ID] = a; s.mu.Unlock() }

func (s *Store) SeedTransaction(t ledger.Transaction) {
	s.mu.Lock()
	s.st.transactions[t.ID] = copyTransaction(t)
	s.mu.Unlock()
}

func (s *Store) Reset() { s.mu.Lock(); s.st = newState(); s.mu.Unlock() }

// Ready always succeeds for the memory store.
func (s *Store) Ready(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// RunInTx implements storage.TxRunner.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.st.clone()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("transaction aborted: %v", rec)
		}
	}()
	if err := fn(ctx, &memTx{st: work, now: s.now}); err != nil {
		return err
	}
	// A deadline that passed while fn ran aborts the commit.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// --- Reader ---

func (s *Store) ListAccounts(_ context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.userAccounts(userID), nil
}

func (s *Store) GetAccount(_ context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.account(userID, accountID)
}

func (s *Store) ListAccountTransactions(_ context.Context, userID, accountID uuid.UUID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.accountTransactions(userID, accountID), nil
}

// AccountView reads the account and its transactions under one read lock.
func (s *Store) AccountView(_ context.Context, userID, accountID uuid.UUID) (ledger.AccountView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, err := s.st.account(userID, accountID)
	if err != nil {
		return ledger.AccountView{}, err
	}
	txs := s.st.accountTransactions(userID, accountID)
	return ledger.AccountView{Account: acc, Transactions: txs, TransactionCount: len(txs)}, nil
}

func (st *state) accountTransactions(userID, accountID uuid.UUID) []ledger.Transaction {
	out := make([]ledger.Transaction, 0)
	for _, t := range st.transactions {
		if t.UserID == userID && t.AccountID == accountID {
			out = append(out, copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (s *Store) GetTransaction(_ context.Context, userID, transactionID uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.transaction(userID, transactionID)
}

func (s *Store) GetBudget(_ context.Context, userID uuid.UUID) (ledger.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.budgets[userID]
	if !ok {
		return ledger.Budget{}, errs.ErrNotFound
	}
	return b, nil
}

func (s *Store) SumExpenses(_ context.Context, userID, accountID uuid.UUID, from, to time.Time) (money.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, err := s.st.account(userID, accountID)
	if err != nil {
		return money.Amount{}, err
	}
	deltas := make([]money.Amount, 0)
	for _, t := range s.st.transactions {
		if t.UserID != userID || t.AccountID != accountID || t.Type != ledger.TransactionTypeExpense {
			continue
		}
		if t.Date.Before(from) || !t.Date.Before(to) {
			continue
		}
		deltas = append(deltas, t.Amount)
	}
	return ledger.SumDeltas(acc.Currency, deltas...)
}

func (s *Store) DueRecurring(_ context.Context, asOf time.Time, limit int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Transaction, 0)
	for _, t := range s.st.transactions {
		if t.IsRecurring && t.NextRecurringDate != nil && !t.NextRecurringDate.After(asOf) {
			out = append(out, copyTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRecurringDate.Before(*out[j].NextRecurringDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UserByExternalID(_ context.Context, externalAuthID string) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.st.usersByExt[externalAuthID]
	if !ok {
		return ledger.User{}, errs.ErrNotFound
	}
	return s.st.users[id], nil
}

// --- state helpers (caller holds the lock) ---

func (s *state) userAccounts(userID uuid.UUID) []ledger.Account {
	out := make([]ledger.Account, 0)
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *state) account(userID, accountID uuid.UUID) (ledger.Account, error) {
	a, ok := s.accounts[accountID]
	if !ok || a.UserID != userID {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

func (s *state) transaction(userID, transactionID uuid.UUID) (ledger.Transaction, error) {
	t, ok := s.transactions[transactionID]
	if !ok || t.UserID != userID {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return copyTransaction(t), nil
}

func copyTransaction(t ledger.Transaction) ledger.Transaction {
	if t.Metadata != nil {
		t.Metadata = t.Metadata.Clone()
	}
	if t.NextRecurringDate != nil {
		d := *t.NextRecurringDate
		t.NextRecurringDate = &d
	}
	if t.LastProcessed != nil {
		d := *t.LastProcessed
		t.LastProcessed = &d
	}
	return t
}
