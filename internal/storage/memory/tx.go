package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
)

// memTx mutates a private copy of the store state. The copy is published by
// RunInTx only on success.
type memTx struct {
	st  *state
	now func() time.Time
}

func (t *memTx) LockUserAccounts(_ context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	return t.st.userAccounts(userID), nil
}

func (t *memTx) GetAccount(_ context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	return t.st.account(userID, accountID)
}

func (t *memTx) InsertAccount(_ context.Context, a ledger.Account) error {
	if _, exists := t.st.accounts[a.ID]; exists {
		return errs.ErrConflict
	}
	if a.IsDefault {
		for _, other := range t.st.accounts {
			if other.UserID == a.UserID && other.IsDefault {
				return errs.Wrapf(errs.ErrConflict, "second default account for user %s", a.UserID)
			}
		}
	}
	t.st.accounts[a.ID] = a
	return nil
}

func (t *memTx) ClearDefault(_ context.Context, userID uuid.UUID) error {
	now := t.now()
	for id, a := range t.st.accounts {
		if a.UserID == userID && a.IsDefault {
			a.IsDefault = false
			a.UpdatedAt = now
			t.st.accounts[id] = a
		}
	}
	return nil
}

func (t *memTx) MarkDefault(_ context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	a, err := t.st.account(userID, accountID)
	if err != nil {
		return ledger.Account{}, err
	}
	for _, other := range t.st.accounts {
		if other.UserID == userID && other.IsDefault && other.ID != accountID {
			return ledger.Account{}, errs.Wrapf(errs.ErrConflict, "second default account for user %s", userID)
		}
	}
	a.IsDefault = true
	a.UpdatedAt = t.now()
	t.st.accounts[accountID] = a
	return a, nil
}

func (t *memTx) IncrementBalance(_ context.Context, userID, accountID uuid.UUID, delta money.Amount) error {
	a, err := t.st.account(userID, accountID)
	if err != nil {
		return err
	}
	next, err := a.Balance.Add(delta)
	if err != nil {
		return err
	}
	a.Balance = next
	a.UpdatedAt = t.now()
	t.st.accounts[accountID] = a
	return nil
}

func (t *memTx) GetTransaction(_ context.Context, userID, transactionID uuid.UUID) (ledger.Transaction, error) {
	return t.st.transaction(userID, transactionID)
}

func (t *memTx) TransactionsByIDs(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]ledger.Transaction, error) {
	out := make([]ledger.Transaction, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if tr, err := t.st.transaction(userID, id); err == nil {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr ledger.Transaction) error {
	if _, exists := t.st.transactions[tr.ID]; exists {
		return errs.ErrConflict
	}
	if _, err := t.st.account(tr.UserID, tr.AccountID); err != nil {
		return err
	}
	t.st.transactions[tr.ID] = copyTransaction(tr)
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, tr ledger.Transaction) error {
	if _, err := t.st.transaction(tr.UserID, tr.ID); err != nil {
		return err
	}
	if _, err := t.st.account(tr.UserID, tr.AccountID); err != nil {
		return err
	}
	t.st.transactions[tr.ID] = copyTransaction(tr)
	return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, userID, transactionID uuid.UUID) error {
	if _, err := t.st.transaction(userID, transactionID); err != nil {
		return err
	}
	delete(t.st.transactions, transactionID)
	return nil
}

func (t *memTx) DeleteTransactions(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if tr, ok := t.st.transactions[id]; ok && tr.UserID == userID {
			delete(t.st.transactions, id)
			n++
		}
	}
	return n, nil
}

func (t *memTx) UpsertBudget(_ context.Context, b ledger.Budget) (ledger.Budget, error) {
	if prev, ok := t.st.budgets[b.UserID]; ok {
		b.ID = prev.ID
		b.CreatedAt = prev.CreatedAt
	}
	t.st.budgets[b.UserID] = b
	return b, nil
}

func (t *memTx) EnsureUser(_ context.Context, u ledger.User) (ledger.User, error) {
	if id, ok := t.st.usersByExt[u.ExternalAuthID]; ok {
		return t.st.users[id], nil
	}
	t.st.users[u.ID] = u
	t.st.usersByExt[u.ExternalAuthID] = u.ID
	return u, nil
}
