package transaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
	"github.com/tinoosan/budgetledger/internal/storage/memory"
)

type fixture struct {
	st     *memory.Store
	mut    Mutator
	bulk   BulkDeleter
	userID uuid.UUID
	a, b   ledger.Account
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func usd(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.ParseAmount("USD", s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return a
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	user := ledger.User{ID: uuid.New(), ExternalAuthID: "ext-tx"}
	st.SeedUser(user)
	a := ledger.Account{ID: uuid.New(), UserID: user.ID, Name: "A", Type: ledger.AccountTypeCurrent, Currency: "USD", Balance: usd(t, "100"), IsDefault: true}
	b := ledger.Account{ID: uuid.New(), UserID: user.ID, Name: "B", Type: ledger.AccountTypeSavings, Currency: "USD", Balance: usd(t, "0")}
	st.SeedAccount(a)
	st.SeedAccount(b)
	return &fixture{st: st, mut: NewMutator(st, quiet()), bulk: NewBulkDeleter(st, quiet()), userID: user.ID, a: a, b: b}
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) money.Amount {
	t.Helper()
	acc, err := f.st.GetAccount(context.Background(), f.userID, id)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

func assertBalance(t *testing.T, got money.Amount, want string) {
	t.Helper()
	w, _ := money.ParseAmount("USD", want)
	if c, err := got.Cmp(w); err != nil || c != 0 {
		t.Fatalf("balance = %s, want %s", got, want)
	}
}

// reconcile checks balance == opening + signed sum of the rows that remain.
func (f *fixture) reconcile(t *testing.T, acc ledger.Account) {
	t.Helper()
	txs, err := f.st.ListAccountTransactions(context.Background(), f.userID, acc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	deltas := []money.Amount{acc.Balance}
	for _, tr := range txs {
		deltas = append(deltas, ledger.SignedDelta(tr))
	}
	want, err := ledger.SumDeltas("USD", deltas...)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if c, _ := f.balance(t, acc.ID).Cmp(want); c != 0 {
		t.Fatalf("account %s: balance %s != expected %s", acc.Name, f.balance(t, acc.ID), want)
	}
}

func input(acc uuid.UUID, typ ledger.TransactionType, amount string) Input {
	return Input{Type: typ, Amount: amount, Date: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), AccountID: acc, Category: "Groceries"}
}

func TestScenario_CreateCreateBulkDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	exp, err := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "30"))
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "70")
	inc, err := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeIncome, "20"))
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "90")

	if err := f.bulk.DeleteMany(ctx, f.userID, []uuid.UUID{exp.ID, inc.ID}); err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "100")
	txs, _ := f.st.ListAccountTransactions(ctx, f.userID, f.a.ID)
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
}

func TestCreate_NormalisesCategoryAndSchedulesRecurring(t *testing.T) {
	f := newFixture(t)
	in := input(f.a.ID, ledger.TransactionTypeExpense, "12.5")
	in.Category = "Eating Out"
	in.IsRecurring = true
	in.RecurringInterval = ledger.IntervalMonthly
	in.Date = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	got, err := f.mut.Create(context.Background(), f.userID, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Category != "eating_out" {
		t.Fatalf("category = %q", got.Category)
	}
	if got.NextRecurringDate == nil || !got.NextRecurringDate.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("next recurring date = %v", got.NextRecurringDate)
	}
}

func TestReversalLaw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, in := range []Input{
		input(f.a.ID, ledger.TransactionTypeExpense, "0.0001"),
		input(f.a.ID, ledger.TransactionTypeIncome, "99999.99"),
		input(f.b.ID, ledger.TransactionTypeExpense, "42.4242"),
	} {
		before := f.balance(t, in.AccountID)
		tr, err := f.mut.Create(ctx, f.userID, in)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := f.mut.Delete(ctx, f.userID, tr.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if c, _ := f.balance(t, in.AccountID).Cmp(before); c != 0 {
			t.Fatalf("create+delete moved balance from %s to %s", before, f.balance(t, in.AccountID))
		}
	}
}

func TestUpdate_SameAccountAppliesNetDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr, _ := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "30"))
	if _, err := f.mut.Update(ctx, f.userID, tr.ID, input(f.a.ID, ledger.TransactionTypeIncome, "50")); err != nil {
		t.Fatalf("update: %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "150")
	f.reconcile(t, f.a)
}

func TestUpdate_MoveBetweenAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr, _ := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "30"))
	got, err := f.mut.Update(ctx, f.userID, tr.ID, input(f.b.ID, ledger.TransactionTypeExpense, "30"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.AccountID != f.b.ID || got.CreatedAt != tr.CreatedAt {
		t.Fatalf("unexpected updated row %+v", got)
	}
	assertBalance(t, f.balance(t, f.a.ID), "100")
	assertBalance(t, f.balance(t, f.b.ID), "-30")
	f.reconcile(t, f.a)
	f.reconcile(t, f.b)
}

func TestUpdate_ForeignTransactionIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr, _ := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "30"))
	stranger := ledger.User{ID: uuid.New(), ExternalAuthID: "ext-stranger"}
	f.st.SeedUser(stranger)

	if _, err := f.mut.Update(ctx, stranger.ID, tr.ID, input(f.a.ID, ledger.TransactionTypeIncome, "1")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("update: expected not found, got %v", err)
	}
	if err := f.mut.Delete(ctx, stranger.ID, tr.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("delete: expected not found, got %v", err)
	}
	if _, err := f.mut.Create(ctx, stranger.ID, input(f.a.ID, ledger.TransactionTypeIncome, "1")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("create on foreign account: expected not found, got %v", err)
	}
	// Moving onto an account the caller does not own is rejected too.
	if _, err := f.mut.Update(ctx, f.userID, tr.ID, input(uuid.New(), ledger.TransactionTypeExpense, "30")); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("move to unknown account: expected not found, got %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "70")
}

// countingRunner records whether the store was reached.
type countingRunner struct {
	storage.TxRunner
	calls int
}

func (c *countingRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	c.calls++
	return c.TxRunner.RunInTx(ctx, fn)
}

func TestValidationHappensBeforeStore(t *testing.T) {
	f := newFixture(t)
	runner := &countingRunner{TxRunner: f.st}
	mut := NewMutator(runner, quiet())
	base := input(f.a.ID, ledger.TransactionTypeExpense, "10")
	cases := map[string]func(in *Input){
		"zero amount":          func(in *Input) { in.Amount = "0" },
		"negative amount":      func(in *Input) { in.Amount = "-5" },
		"too many decimals":    func(in *Input) { in.Amount = "1.00001" },
		"garbage amount":       func(in *Input) { in.Amount = "ten" },
		"bad type":             func(in *Input) { in.Type = "TRANSFER" },
		"missing date":         func(in *Input) { in.Date = time.Time{} },
		"missing account":      func(in *Input) { in.AccountID = uuid.Nil },
		"missing category":     func(in *Input) { in.Category = " " },
		"recurring, no period": func(in *Input) { in.IsRecurring = true },
		"period, no recurring": func(in *Input) { in.RecurringInterval = ledger.IntervalWeekly },
		"bad interval":         func(in *Input) { in.IsRecurring = true; in.RecurringInterval = "HOURLY" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			if _, err := mut.Create(context.Background(), f.userID, in); !errors.Is(err, errs.ErrInvalid) {
				t.Fatalf("create: expected validation error, got %v", err)
			}
			if _, err := mut.Update(context.Background(), f.userID, uuid.New(), in); !errors.Is(err, errs.ErrInvalid) {
				t.Fatalf("update: expected validation error, got %v", err)
			}
		})
	}
	if runner.calls != 0 {
		t.Fatalf("store reached %d times on invalid input", runner.calls)
	}
}

func TestReconciliation_RandomSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	accounts := []uuid.UUID{f.a.ID, f.b.ID}
	types := []ledger.TransactionType{ledger.TransactionTypeIncome, ledger.TransactionTypeExpense}
	var live []uuid.UUID
	randomInput := func() Input {
		amt := fmt.Sprintf("%d.%04d", r.Intn(500)+1, r.Intn(10000))
		return input(accounts[r.Intn(2)], types[r.Intn(2)], amt)
	}
	for step := 0; step < 200; step++ {
		switch op := r.Intn(10); {
		case op < 5 || len(live) == 0:
			tr, err := f.mut.Create(ctx, f.userID, randomInput())
			if err != nil {
				t.Fatalf("step %d create: %v", step, err)
			}
			live = append(live, tr.ID)
		case op < 7:
			id := live[r.Intn(len(live))]
			if _, err := f.mut.Update(ctx, f.userID, id, randomInput()); err != nil {
				t.Fatalf("step %d update: %v", step, err)
			}
		case op < 9:
			i := r.Intn(len(live))
			if err := f.mut.Delete(ctx, f.userID, live[i]); err != nil {
				t.Fatalf("step %d delete: %v", step, err)
			}
			live = append(live[:i], live[i+1:]...)
		default:
			n := r.Intn(len(live)) + 1
			batch := append([]uuid.UUID{uuid.New()}, live[:n]...)
			if err := f.bulk.DeleteMany(ctx, f.userID, batch); err != nil {
				t.Fatalf("step %d bulk: %v", step, err)
			}
			live = live[n:]
		}
		f.reconcile(t, f.a)
		f.reconcile(t, f.b)
	}
}

func TestDeleteMany_AggregatesPerAccountAndIgnoresForeign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []uuid.UUID
	for _, in := range []Input{
		input(f.a.ID, ledger.TransactionTypeExpense, "10"),
		input(f.a.ID, ledger.TransactionTypeExpense, "5.25"),
		input(f.a.ID, ledger.TransactionTypeIncome, "1"),
		input(f.b.ID, ledger.TransactionTypeIncome, "40"),
	} {
		tr, err := f.mut.Create(ctx, f.userID, in)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, tr.ID)
	}
	keep, _ := f.mut.Create(ctx, f.userID, input(f.b.ID, ledger.TransactionTypeExpense, "3"))

	stranger := ledger.User{ID: uuid.New(), ExternalAuthID: "ext-stranger"}
	f.st.SeedUser(stranger)
	foreignAcc := ledger.Account{ID: uuid.New(), UserID: stranger.ID, Name: "X", Type: ledger.AccountTypeCurrent, Currency: "USD", Balance: usd(t, "0"), IsDefault: true}
	f.st.SeedAccount(foreignAcc)
	foreign, err := f.mut.Create(ctx, stranger.ID, input(foreignAcc.ID, ledger.TransactionTypeExpense, "7"))
	if err != nil {
		t.Fatalf("create foreign: %v", err)
	}

	req := append(append([]uuid.UUID{}, ids...), foreign.ID, uuid.New(), ids[0])
	if err := f.bulk.DeleteMany(ctx, f.userID, req); err != nil {
		t.Fatalf("bulk delete: %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "100")
	assertBalance(t, f.balance(t, f.b.ID), "-3")
	left, _ := f.st.ListAccountTransactions(ctx, f.userID, f.b.ID)
	if len(left) != 1 || left[0].ID != keep.ID {
		t.Fatalf("expected only %s left, got %+v", keep.ID, left)
	}
	if _, err := f.st.GetTransaction(ctx, stranger.ID, foreign.ID); err != nil {
		t.Fatalf("foreign transaction should survive: %v", err)
	}
}

// failingTx aborts the n-th balance increment.
type failingTx struct {
	storage.Tx
	failAt int
	seen   int
}

func (f *failingTx) IncrementBalance(ctx context.Context, userID, accountID uuid.UUID, delta money.Amount) error {
	f.seen++
	if f.seen == f.failAt {
		return errors.New("connection reset by peer")
	}
	return f.Tx.IncrementBalance(ctx, userID, accountID, delta)
}

type failingRunner struct {
	inner  storage.TxRunner
	failAt int
}

func (r failingRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return r.inner.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &failingTx{Tx: tx, failAt: r.failAt})
	})
}

func TestDeleteMany_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1, _ := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "30"))
	b1, _ := f.mut.Create(ctx, f.userID, input(f.b.ID, ledger.TransactionTypeIncome, "20"))

	// The first account's increment lands, the second fails: nothing may stick.
	bulk := NewBulkDeleter(failingRunner{inner: f.st, failAt: 2}, quiet())
	err := bulk.DeleteMany(ctx, f.userID, []uuid.UUID{a1.ID, b1.ID})
	if !errors.Is(err, errs.ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}
	if err.Error() != "connection reset by peer" {
		t.Fatalf("store message should surface as-is, got %q", err.Error())
	}
	assertBalance(t, f.balance(t, f.a.ID), "70")
	assertBalance(t, f.balance(t, f.b.ID), "20")
	for _, id := range []uuid.UUID{a1.ID, b1.ID} {
		if _, err := f.st.GetTransaction(ctx, f.userID, id); err != nil {
			t.Fatalf("row %s should still exist: %v", id, err)
		}
	}
}

func TestUpdate_AbortLeavesBothAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tr, _ := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "30"))
	mut := NewMutator(failingRunner{inner: f.st, failAt: 2}, quiet())
	if _, err := mut.Update(ctx, f.userID, tr.ID, input(f.b.ID, ledger.TransactionTypeExpense, "45")); !errors.Is(err, errs.ErrStoreFailure) {
		t.Fatalf("expected store failure, got %v", err)
	}
	assertBalance(t, f.balance(t, f.a.ID), "70")
	assertBalance(t, f.balance(t, f.b.ID), "0")
	got, _ := f.st.GetTransaction(ctx, f.userID, tr.ID)
	if got.AccountID != f.a.ID {
		t.Fatalf("row should not have moved")
	}
}

func TestConcurrentMutations_SameAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const workers, rounds = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				tr, err := f.mut.Create(ctx, f.userID, input(f.a.ID, ledger.TransactionTypeExpense, "1.25"))
				if err != nil {
					t.Errorf("worker %d create: %v", w, err)
					return
				}
				upd := input(f.a.ID, ledger.TransactionTypeIncome, "3")
				if i%4 == 0 {
					upd.AccountID = f.b.ID
				}
				if _, err := f.mut.Update(ctx, f.userID, tr.ID, upd); err != nil {
					t.Errorf("worker %d update: %v", w, err)
					return
				}
				if i%3 == 0 {
					if err := f.mut.Delete(ctx, f.userID, tr.ID); err != nil {
						t.Errorf("worker %d delete: %v", w, err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	f.reconcile(t, f.a)
	f.reconcile(t, f.b)
}

func TestConcurrentDeleteMany_TwoAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i := 0; i < 40; i++ {
		acc, typ := f.a.ID, ledger.TransactionTypeExpense
		if i%2 == 1 {
			acc, typ = f.b.ID, ledger.TransactionTypeIncome
		}
		tr, err := f.mut.Create(ctx, f.userID, input(acc, typ, fmt.Sprintf("%d.50", i+1)))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, tr.ID)
	}

	var wg sync.WaitGroup
	// Overlapping batches race to remove the same rows while new rows arrive.
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			batch := ids[w*8 : w*8+16]
			if err := f.bulk.DeleteMany(ctx, f.userID, batch); err != nil {
				t.Errorf("batch %d: %v", w, err)
			}
		}(w)
		go func(w int) {
			defer wg.Done()
			acc := f.a.ID
			if w%2 == 1 {
				acc = f.b.ID
			}
			if _, err := f.mut.Create(ctx, f.userID, input(acc, ledger.TransactionTypeExpense, "2")); err != nil {
				t.Errorf("create during delete: %v", err)
			}
		}(w)
	}
	wg.Wait()

	for _, id := range ids {
		if _, err := f.st.GetTransaction(ctx, f.userID, id); err == nil {
			t.Fatalf("transaction %s should be gone", id)
		}
	}
	f.reconcile(t, f.a)
	f.reconcile(t, f.b)
}
