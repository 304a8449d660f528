package recurring

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage/memory"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

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

func seedTemplate(t *testing.T, interval ledger.RecurringInterval, next time.Time) (*memory.Store, ledger.Account, ledger.Transaction) {
	t.Helper()
	s := memory.New()
	user := ledger.User{ID: uuid.New(), ExternalAuthID: "ext-sweep"}
	s.SeedUser(user)
	acc := ledger.Account{ID: uuid.New(), UserID: user.ID, Name: "Main", Type: ledger.AccountTypeCurrent, Currency: "USD", Balance: usd(t, "0"), IsDefault: true}
	s.SeedAccount(acc)
	tmpl := ledger.Transaction{
		ID: uuid.New(), AccountID: acc.ID, UserID: user.ID,
		Type: ledger.TransactionTypeExpense, Amount: usd(t, "10"),
		Date: next, Category: "rent", IsRecurring: true, RecurringInterval: interval,
		NextRecurringDate: &next,
	}
	s.SeedTransaction(tmpl)
	return s, acc, tmpl
}

func TestSweeper_MaterialisesDueOccurrences(t *testing.T) {
	ctx := context.Background()
	s, acc, tmpl := seedTemplate(t, ledger.IntervalMonthly, day(2024, 1, 31))
	sw := NewSweeper(s, Options{Batch: 10, Workers: 2}, quietLogger())

	now := day(2024, 3, 15)
	res, err := sw.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Templates != 1 || res.Created != 2 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	got, _ := s.GetAccount(ctx, acc.UserID, acc.ID)
	if !sameAmount(got.Balance, usd(t, "-20")) {
		t.Fatalf("balance = %s, want -20", got.Balance)
	}
	updated, _ := s.GetTransaction(ctx, acc.UserID, tmpl.ID)
	if updated.NextRecurringDate == nil || !updated.NextRecurringDate.Equal(day(2024, 3, 31)) {
		t.Fatalf("next date = %v, want 2024-03-31", updated.NextRecurringDate)
	}
	if updated.LastProcessed == nil || !updated.LastProcessed.Equal(now) {
		t.Fatalf("last processed = %v", updated.LastProcessed)
	}

	// Children are plain transactions; a second sweep at the same instant is a no-op.
	txs, _ := s.ListAccountTransactions(ctx, acc.UserID, acc.ID)
	if len(txs) != 3 {
		t.Fatalf("expected template + 2 children, got %d", len(txs))
	}
	for _, tr := range txs {
		if tr.ID != tmpl.ID && (tr.IsRecurring || tr.NextRecurringDate != nil) {
			t.Fatalf("child %s should not be recurring", tr.ID)
		}
	}
	res, _ = sw.RunOnce(ctx, now)
	if res.Templates != 0 || res.Created != 0 {
		t.Fatalf("second sweep should do nothing, got %+v", res)
	}
}

func TestSweeper_MonthEndAnchorSurvivesShortMonths(t *testing.T) {
	ctx := context.Background()
	s, acc, tmpl := seedTemplate(t, ledger.IntervalMonthly, day(2024, 1, 31))
	// The template itself is the January occurrence.
	tmpl.NextRecurringDate = ptr(day(2024, 2, 29))
	s.SeedTransaction(tmpl)
	sw := NewSweeper(s, Options{}, quietLogger())

	if _, err := sw.RunOnce(ctx, day(2024, 6, 1)); err != nil {
		t.Fatalf("run: %v", err)
	}
	txs, _ := s.ListAccountTransactions(ctx, acc.UserID, acc.ID)
	var got []string
	for _, tr := range txs {
		if tr.ID != tmpl.ID {
			got = append(got, tr.Date.Format("2006-01-02"))
		}
	}
	want := []string{"2024-05-31", "2024-04-30", "2024-03-31", "2024-02-29"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("occurrences = %v, want %v", got, want)
	}
	updated, _ := s.GetTransaction(ctx, acc.UserID, tmpl.ID)
	if !updated.NextRecurringDate.Equal(day(2024, 6, 30)) {
		t.Fatalf("next date = %s, want 2024-06-30", updated.NextRecurringDate)
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestSweeper_CatchUpIsBounded(t *testing.T) {
	ctx := context.Background()
	now := day(2024, 6, 1)
	s, acc, tmpl := seedTemplate(t, ledger.IntervalDaily, now.AddDate(0, 0, -100))
	sw := NewSweeper(s, Options{}, quietLogger())

	res, err := sw.RunOnce(ctx, now)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Created != MaxCatchUp {
		t.Fatalf("created %d, want %d", res.Created, MaxCatchUp)
	}
	updated, _ := s.GetTransaction(ctx, acc.UserID, tmpl.ID)
	if want := now.AddDate(0, 0, -100+MaxCatchUp); !updated.NextRecurringDate.Equal(want) {
		t.Fatalf("next date = %s, want %s", updated.NextRecurringDate, want)
	}
}

func TestSweeper_RunDisabledReturnsImmediately(t *testing.T) {
	sw := NewSweeper(memory.New(), Options{Interval: 0}, quietLogger())
	if err := sw.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sw := NewSweeper(memory.New(), Options{Interval: time.Millisecond}, quietLogger())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
