package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/meta"
)

// AccountType enumerates the kinds of account a user can hold.
type AccountType string

const (
	AccountTypeCurrent AccountType = "CURRENT"
	AccountTypeSavings AccountType = "SAVINGS"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool { return t == AccountTypeCurrent || t == AccountTypeSavings }

// TransactionType is the direction of a transaction relative to its account.
type TransactionType string

const (
	// TransactionTypeIncome increases the account balance.
	TransactionTypeIncome TransactionType = "INCOME"
	// TransactionTypeExpense decreases the account balance.
	TransactionTypeExpense TransactionType = "EXPENSE"
)

func (t TransactionType) Valid() bool { return t == TransactionTypeIncome || t == TransactionTypeExpense }

// RecurringInterval is the cadence at which a recurring transaction regenerates.
// The empty value means the transaction does not recur.
type RecurringInterval string

const (
	IntervalNone    RecurringInterval = ""
	IntervalDaily   RecurringInterval = "DAILY"
	IntervalWeekly  RecurringInterval = "WEEKLY"
	IntervalMonthly RecurringInterval = "MONTHLY"
	IntervalYearly  RecurringInterval = "YEARLY"
)

func (i RecurringInterval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// User captures the owner of ledger data.
type User struct {
	ID uuid.UUID
	// ExternalAuthID is the opaque identity-provider key.
	ExternalAuthID string
	CreatedAt      time.Time
}

// Account holds a cached balance that always equals the signed sum of its transactions
// plus the opening balance supplied at creation.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Type      AccountType
	Currency  string
	Balance   money.Amount
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a single income or expense posted to an account.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	UserID      uuid.UUID
	Type        TransactionType
	Amount      money.Amount
	Date        time.Time
	Description string
	Category    string
	IsRecurring bool
	// RecurringInterval is IntervalNone unless IsRecurring.
	RecurringInterval RecurringInterval
	NextRecurringDate *time.Time
	LastProcessed     *time.Time
	Metadata          meta.Metadata
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Budget is a monthly spending limit tracked against the user's default account.
type Budget struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Amount    money.Amount
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountView is an account together with its transactions, newest first.
type AccountView struct {
	Account          Account
	Transactions     []Transaction
	TransactionCount int
}
