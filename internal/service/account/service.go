// Package account implements the AccountRegistry: account creation, listing,
// the single-default-account rule and the owner-scoped account view.
package account

import (
	"context"
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

// Repo defines the reads needed outside a transaction.
type Repo interface {
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	// AccountView reads the account and its transactions from one snapshot.
	AccountView(ctx context.Context, userID, accountID uuid.UUID) (ledger.AccountView, error)
}

// CreateInput is the caller-supplied part of a new account.
type CreateInput struct {
	Name      string
	Type      ledger.AccountType
	Balance   string // decimal text; empty means zero
	IsDefault bool
}

type Service interface {
	ValidateCreate(in CreateInput) error
	Create(ctx context.Context, userID uuid.UUID, in CreateInput) (ledger.Account, error)
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error)
	SetDefault(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error)
	// GetAccountView returns errs.ErrNotFound both for absent accounts and for
	// accounts owned by someone else.
	GetAccountView(ctx context.Context, userID, accountID uuid.UUID) (ledger.AccountView, error)
}

type service struct {
	repo     Repo
	tx       storage.TxRunner
	currency string
	log      *slog.Logger
	now      func() time.Time
}

// New builds the registry. currency is assigned to every new account.
func New(repo Repo, tx storage.TxRunner, currency string, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, tx: tx, currency: strings.ToUpper(currency), log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) ValidateCreate(in CreateInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errs.Invalid("name", "required")
	}
	if !in.Type.Valid() {
		return errs.Invalid("type", "must be CURRENT or SAVINGS")
	}
	_, err := parseOpening(in.Balance)
	return err
}

// parseOpening accepts an empty string as zero.
func parseOpening(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.Parse(raw)
	if err != nil {
		return decimal.Decimal{}, errs.Invalid("balance", "not a decimal number")
	}
	if d.IsNeg() {
		return decimal.Decimal{}, errs.Invalid("balance", "must be >= 0")
	}
	if d.Scale() > 4 {
		return decimal.Decimal{}, errs.Invalid("balance", "at most 4 decimal places")
	}
	return d, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (ledger.Account, error) {
	if userID == uuid.Nil {
		return ledger.Account{}, errs.ErrUnauthorized
	}
	if err := s.ValidateCreate(in); err != nil {
		return ledger.Account{}, err
	}
	opening, _ := parseOpening(in.Balance)
	bal, err := money.ParseAmount(s.currency, opening.String())
	if err != nil {
		return ledger.Account{}, errs.Invalid("balance", err.Error())
	}
	now := s.now()
	acc := ledger.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Type:      in.Type,
		Currency:  s.currency,
		Balance:   bal,
		IsDefault: in.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		existing, err := tx.LockUserAccounts(ctx, userID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			acc.IsDefault = true
		}
		if acc.IsDefault && len(existing) > 0 {
			if err := tx.ClearDefault(ctx, userID); err != nil {
				return err
			}
		}
		return tx.InsertAccount(ctx, acc)
	})
	if err != nil {
		if !errs.IsDomain(err) {
			s.log.Warn("create account failed", "op", "account.create", "user_id", userID, "err", err)
		}
		return ledger.Account{}, errs.StoreFailure(err)
	}
	return acc, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ledger.Account, error) {
	if userID == uuid.Nil {
		return nil, errs.ErrUnauthorized
	}
	accs, err := s.repo.ListAccounts(ctx, userID)
	if err != nil {
		return nil, errs.StoreFailure(err)
	}
	return accs, nil
}

// SetDefault clears the flag on every account of the user and sets it on
// accountID in one transaction. Calling it again with the same id changes nothing.
func (s *service) SetDefault(ctx context.Context, userID, accountID uuid.UUID) (ledger.Account, error) {
	if userID == uuid.Nil {
		return ledger.Account{}, errs.ErrUnauthorized
	}
	if accountID == uuid.Nil {
		return ledger.Account{}, errs.ErrNotFound
	}
	var out ledger.Account
	err := s.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		accs, err := tx.LockUserAccounts(ctx, userID)
		if err != nil {
			return err
		}
		var target *ledger.Account
		for i := range accs {
			if accs[i].ID == accountID {
				target = &accs[i]
			}
		}
		if target == nil {
			return errs.ErrNotFound
		}
		if target.IsDefault {
			out = *target
			return nil
		}
		if err := tx.ClearDefault(ctx, userID); err != nil {
			return err
		}
		out, err = tx.MarkDefault(ctx, userID, accountID)
		return err
	})
	if err != nil {
		if !errs.IsDomain(err) {
			s.log.Warn("set default failed", "op", "account.set_default", "user_id", userID, "account_id", accountID, "err", err)
		}
		return ledger.Account{}, errs.StoreFailure(err)
	}
	return out, nil
}

func (s *service) GetAccountView(ctx context.Context, userID, accountID uuid.UUID) (ledger.AccountView, error) {
	if userID == uuid.Nil {
		return ledger.AccountView{}, errs.ErrUnauthorized
	}
	view, err := s.repo.AccountView(ctx, userID, accountID)
	if err != nil {
		return ledger.AccountView{}, errs.StoreFailure(err)
	}
	return view, nil
}
