package v1

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/meta"
	"github.com/tinoosan/budgetledger/internal/service/budget"
)

// flexAmount accepts a JSON number or a JSON string holding a decimal. Any
// other JSON value is kept verbatim so the field's own validation rejects it
// under the right name.
type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexAmount(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*a = flexAmount(b)
		return nil
	}
	*a = flexAmount(n.String())
	return nil
}

// flexDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC midnight).
type flexDate struct{ time.Time }

func (d *flexDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errs.Invalid("date", "must be a string")
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		d.Time = t.UTC()
		return nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return errs.Invalid("date", "must be RFC 3339 or YYYY-MM-DD")
	}
	d.Time = t
	return nil
}

// number renders an amount as a JSON number.
func number(a money.Amount) json.Number { return json.Number(a.Decimal().String()) }

// Accounts

type postAccountRequest struct {
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Balance   flexAmount         `json:"balance"`
	IsDefault bool               `json:"isDefault"`
}

type accountResponse struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"userId"`
	Name      string             `json:"name"`
	Type      ledger.AccountType `json:"type"`
	Currency  string             `json:"currency"`
	Balance   json.Number        `json:"balance"`
	IsDefault bool               `json:"isDefault"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

type accountViewResponse struct {
	accountResponse
	Transactions     []transactionResponse `json:"transactions"`
	TransactionCount int                   `json:"transactionCount"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		Name:      a.Name,
		Type:      a.Type,
		Currency:  a.Currency,
		Balance:   number(a.Balance),
		IsDefault: a.IsDefault,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toAccountViewResponse(v ledger.AccountView) accountViewResponse {
	out := accountViewResponse{
		accountResponse:  toAccountResponse(v.Account),
		Transactions:     make([]transactionResponse, 0, len(v.Transactions)),
		TransactionCount: v.TransactionCount,
	}
	for _, t := range v.Transactions {
		out.Transactions = append(out.Transactions, toTransactionResponse(t))
	}
	return out
}

// Transactions

type transactionRequest struct {
	Type              ledger.TransactionType   `json:"type"`
	Amount            flexAmount               `json:"amount"`
	Date              flexDate                 `json:"date"`
	AccountID         uuid.UUID                `json:"accountId"`
	Category          string                   `json:"category"`
	Description       string                   `json:"description"`
	IsRecurring       bool                     `json:"isRecurring"`
	RecurringInterval *ledger.RecurringInterval `json:"recurringInterval"`
	Metadata          meta.Metadata            `json:"metadata,omitempty"`
}

type transactionResponse struct {
	ID                uuid.UUID                `json:"id"`
	AccountID         uuid.UUID                `json:"accountId"`
	UserID            uuid.UUID                `json:"userId"`
	Type              ledger.TransactionType   `json:"type"`
	Amount            json.Number              `json:"amount"`
	Date              time.Time                `json:"date"`
	Description       string                   `json:"description"`
	Category          string                   `json:"category"`
	IsRecurring       bool                     `json:"isRecurring"`
	RecurringInterval *ledger.RecurringInterval `json:"recurringInterval"`
	NextRecurringDate *time.Time               `json:"nextRecurringDate"`
	LastProcessed     *time.Time               `json:"lastProcessed"`
	Metadata          meta.Metadata            `json:"metadata,omitempty"`
	CreatedAt         time.Time                `json:"createdAt"`
	UpdatedAt         time.Time                `json:"updatedAt"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	out := transactionResponse{
		ID:                t.ID,
		AccountID:         t.AccountID,
		UserID:            t.UserID,
		Type:              t.Type,
		Amount:            number(t.Amount),
		Date:              t.Date,
		Description:       t.Description,
		Category:          t.Category,
		IsRecurring:       t.IsRecurring,
		NextRecurringDate: t.NextRecurringDate,
		LastProcessed:     t.LastProcessed,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
	}
	if t.RecurringInterval != ledger.IntervalNone {
		iv := t.RecurringInterval
		out.RecurringInterval = &iv
	}
	if len(t.Metadata) > 0 {
		out.Metadata = t.Metadata.Clone()
	}
	return out
}

type bulkDeleteRequest struct {
	TransactionIDs []string `json:"transactionIds"`
}

// Budget

type putBudgetRequest struct {
	Amount flexAmount `json:"amount"`
}

type budgetResponse struct {
	ID        uuid.UUID   `json:"id"`
	Amount    json.Number `json:"amount"`
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func toBudgetResponse(b ledger.Budget) budgetResponse {
	return budgetResponse{ID: b.ID, Amount: number(b.Amount), Currency: b.Amount.Curr().Code(), CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt}
}

type usageResponse struct {
	PercentUsed float64     `json:"percentUsed"`
	Remaining   json.Number `json:"remaining"`
	Band        budget.Band `json:"band"`
}

func toUsageResponse(u budget.Usage) usageResponse {
	return usageResponse{PercentUsed: u.PercentUsed, Remaining: json.Number(u.Remaining.String()), Band: u.Band}
}

type budgetStatusResponse struct {
	Budget      budgetResponse `json:"budget"`
	AccountID   uuid.UUID      `json:"accountId"`
	PeriodStart time.Time      `json:"periodStart"`
	PeriodEnd   time.Time      `json:"periodEnd"`
	Expenses    json.Number    `json:"expenses"`
	usageResponse
}

type usageRequest struct {
	BudgetAmount    flexAmount `json:"budgetAmount"`
	CurrentExpenses flexAmount `json:"currentExpenses"`
}
