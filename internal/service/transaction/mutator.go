// Package transaction implements the TransactionMutator and the
// BulkDeleteCoordinator. Every operation is one store transaction: the row
// change and the balance increments it implies commit together or not at all.
package transaction

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/recurring"
	"github.com/tinoosan/budgetledger/internal/storage"
)

var balanceIncrements = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "budgetledger",
		Name:      "balance_increments_total",
		Help:      "Committed account balance increments by operation",
	},
	[]string{"op"},
)

type Mutator interface {
	Create(ctx context.Context, userID uuid.UUID, in Input) (ledger.Transaction, error)
	Update(ctx context.Context, userID, transactionID uuid.UUID, in Input) (ledger.Transaction, error)
	Delete(ctx context.Context, userID, transactionID uuid.UUID) error
}

type mutator struct {
	tx  storage.TxRunner
	log *slog.Logger
	now func() time.Time
}

func NewMutator(tx storage.TxRunner, log *slog.Logger) Mutator {
	if log == nil {
		log = slog.Default()
	}
	return &mutator{tx: tx, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (m *mutator) Create(ctx context.Context, userID uuid.UUID, in Input) (ledger.Transaction, error) {
	if userID == uuid.Nil {
		return ledger.Transaction{}, errs.ErrUnauthorized
	}
	v, err := validate(in)
	if err != nil {
		return ledger.Transaction{}, err
	}
	now := m.now()
	var out ledger.Transaction
	err = m.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		acc, err := tx.GetAccount(ctx, userID, v.AccountID)
		if err != nil {
			return err
		}
		t, err := build(v, acc.Currency)
		if err != nil {
			return err
		}
		t.ID = uuid.New()
		t.UserID = userID
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if err := tx.IncrementBalance(ctx, userID, acc.ID, ledger.SignedDelta(t)); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, m.fail("transaction.create", userID, err)
	}
	balanceIncrements.WithLabelValues("create").Inc()
	return out, nil
}

// Update reverses the stored delta and applies the new one in the same store
// transaction as the row change. Moving to another account adjusts both accounts.
func (m *mutator) Update(ctx context.Context, userID, transactionID uuid.UUID, in Input) (ledger.Transaction, error) {
	if userID == uuid.Nil {
		return ledger.Transaction{}, errs.ErrUnauthorized
	}
	v, err := validate(in)
	if err != nil {
		return ledger.Transaction{}, err
	}
	now := m.now()
	increments := 0
	var out ledger.Transaction
	err = m.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		increments = 0
		old, err := tx.GetTransaction(ctx, userID, transactionID)
		if err != nil {
			return err
		}
		accs, err := lockAccounts(ctx, tx, userID, old.AccountID, v.AccountID)
		if err != nil {
			return err
		}
		t, err := build(v, accs[v.AccountID].Currency)
		if err != nil {
			return err
		}
		t.ID = old.ID
		t.UserID = userID
		t.CreatedAt = old.CreatedAt
		t.UpdatedAt = now
		if t.IsRecurring && old.IsRecurring && old.RecurringInterval == t.RecurringInterval && old.Date.Equal(t.Date) {
			t.NextRecurringDate = old.NextRecurringDate
			t.LastProcessed = old.LastProcessed
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}

		if old.AccountID == t.AccountID {
			net, err := ledger.SumDeltas(old.Amount.Curr().Code(), ledger.ReversalDelta(old), ledger.SignedDelta(t))
			if err != nil {
				return err
			}
			if net.IsZero() {
				out = t
				return nil
			}
			increments = 1
			out = t
			return tx.IncrementBalance(ctx, userID, t.AccountID, net)
		}
		deltas := map[uuid.UUID]money.Amount{
			old.AccountID: ledger.ReversalDelta(old),
			t.AccountID:   ledger.SignedDelta(t),
		}
		for _, id := range sortedIDs(deltas) {
			if err := tx.IncrementBalance(ctx, userID, id, deltas[id]); err != nil {
				return err
			}
		}
		increments = 2
		out = t
		return nil
	})
	if err != nil {
		return ledger.Transaction{}, m.fail("transaction.update", userID, err)
	}
	balanceIncrements.WithLabelValues("update").Add(float64(increments))
	return out, nil
}

// Delete removes the row and applies its reversal delta.
func (m *mutator) Delete(ctx context.Context, userID, transactionID uuid.UUID) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	err := m.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		old, err := tx.GetTransaction(ctx, userID, transactionID)
		if err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, userID, old.ID); err != nil {
			return err
		}
		return tx.IncrementBalance(ctx, userID, old.AccountID, ledger.ReversalDelta(old))
	})
	if err != nil {
		return m.fail("transaction.delete", userID, err)
	}
	balanceIncrements.WithLabelValues("delete").Inc()
	return nil
}

// fail logs store-level failures and wraps them; domain errors pass through quietly.
func (m *mutator) fail(op string, userID uuid.UUID, err error) error {
	if !errs.IsDomain(err) {
		m.log.Warn("store transaction aborted", "op", op, "user_id", userID, "err", err)
	}
	return errs.StoreFailure(err)
}

// build turns validated input into a transaction in the account's currency.
func build(v validated, currency string) (ledger.Transaction, error) {
	amt, err := money.ParseAmount(currency, v.amount.String())
	if err != nil {
		return ledger.Transaction{}, errs.Invalid("amount", err.Error())
	}
	t := ledger.Transaction{
		AccountID:   v.AccountID,
		Type:        v.Type,
		Amount:      amt,
		Date:        v.Date.UTC(),
		Description: v.Description,
		Category:    v.Category,
		IsRecurring: v.IsRecurring,
		Metadata:    v.Metadata.Clone(),
	}
	if v.IsRecurring {
		next, err := recurring.NextOccurrence(t.Date, v.RecurringInterval)
		if err != nil {
			return ledger.Transaction{}, err
		}
		t.RecurringInterval = v.RecurringInterval
		t.NextRecurringDate = &next
	}
	return t, nil
}

// lockAccounts locks the given accounts in ascending id order.
func lockAccounts(ctx context.Context, tx storage.Tx, userID uuid.UUID, ids ...uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := make(map[uuid.UUID]ledger.Account, len(set))
	for _, id := range sortedIDs(set) {
		a, err := tx.GetAccount(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		out[id] = a
	}
	return out, nil
}

func sortedIDs[V any](m map[uuid.UUID]V) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}
