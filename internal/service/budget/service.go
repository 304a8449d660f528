package budget

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

// Repo defines the reads the tracker needs.
type Repo interface {
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	GetBudget(ctx context.Context, userID uuid.UUID) (ledger.Budget, error)
	SumExpenses(ctx context.Context, userID, accountID uuid.UUID, from, to time.Time) (money.Amount, error)
}

// Status is the budget for the current period compared against the default
// account's expenses in that period.
type Status struct {
	Budget      ledger.Budget
	AccountID   uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Expenses    money.Amount
	Usage       Usage
}

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (ledger.Budget, error)
	Upsert(ctx context.Context, userID uuid.UUID, amount string) (ledger.Budget, error)
	// Status returns errs.ErrNotFound when the user has no budget or no default account.
	Status(ctx context.Context, userID uuid.UUID, now time.Time) (Status, error)
}

type service struct {
	repo     Repo
	tx       storage.TxRunner
	currency string
	log      *slog.Logger
}

func New(repo Repo, tx storage.TxRunner, currency string, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, tx: tx, currency: strings.ToUpper(currency), log: log}
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (ledger.Budget, error) {
	if userID == uuid.Nil {
		return ledger.Budget{}, errs.ErrUnauthorized
	}
	b, err := s.repo.GetBudget(ctx, userID)
	if err != nil {
		return ledger.Budget{}, errs.StoreFailure(err)
	}
	return b, nil
}

func (s *service) Upsert(ctx context.Context, userID uuid.UUID, amount string) (ledger.Budget, error) {
	if userID == uuid.Nil {
		return ledger.Budget{}, errs.ErrUnauthorized
	}
	d, err := decimal.Parse(strings.TrimSpace(amount))
	if err != nil {
		return ledger.Budget{}, errs.Invalid("amount", "not a decimal number")
	}
	if !d.IsPos() {
		return ledger.Budget{}, errs.Invalid("amount", "must be > 0")
	}
	if d.Scale() > 4 {
		return ledger.Budget{}, errs.Invalid("amount", "at most 4 decimal places")
	}
	amt, err := money.ParseAmount(s.currency, d.String())
	if err != nil {
		return ledger.Budget{}, errs.Invalid("amount", err.Error())
	}
	now := time.Now().UTC()
	var out ledger.Budget
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.UpsertBudget(ctx, ledger.Budget{ID: uuid.New(), UserID: userID, Amount: amt, CreatedAt: now, UpdatedAt: now})
		return err
	})
	if err != nil {
		if !errs.IsDomain(err) {
			s.log.Warn("upsert budget failed", "op", "budget.upsert", "user_id", userID, "err", err)
		}
		return ledger.Budget{}, errs.StoreFailure(err)
	}
	return out, nil
}

func (s *service) Status(ctx context.Context, userID uuid.UUID, now time.Time) (Status, error) {
	b, err := s.Get(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	accs, err := s.repo.ListAccounts(ctx, userID)
	if err != nil {
		return Status{}, errs.StoreFailure(err)
	}
	var def *ledger.Account
	for i := range accs {
		if accs[i].IsDefault {
			def = &accs[i]
			break
		}
	}
	if def == nil {
		return Status{}, errs.Wrapf(errs.ErrNotFound, "default account")
	}
	from, to := MonthOf(now)
	spent, err := s.repo.SumExpenses(ctx, userID, def.ID, from, to)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return Status{}, err
		}
		return Status{}, errs.StoreFailure(err)
	}
	return Status{
		Budget:      b,
		AccountID:   def.ID,
		PeriodStart: from,
		PeriodEnd:   to,
		Expenses:    spent,
		Usage:       ComputeUsage(b.Amount.Decimal(), spent.Decimal()),
	}, nil
}

// MonthOf returns the calendar month [start, end) containing t, in UTC.
func MonthOf(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
