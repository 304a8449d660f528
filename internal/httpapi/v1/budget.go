package v1

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/service/budget"
)

// getBudgetStatus answers 200 with null data when no budget is set.
func (s *Server) getBudgetStatus(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	st, err := s.deps.Budgets.Status(r.Context(), user.ID, time.Now().UTC())
	if errors.Is(err, errs.ErrNotFound) {
		ok(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, budgetStatusResponse{
		Budget:        toBudgetResponse(st.Budget),
		AccountID:     st.AccountID,
		PeriodStart:   st.PeriodStart,
		PeriodEnd:     st.PeriodEnd,
		Expenses:      number(st.Expenses),
		usageResponse: toUsageResponse(st.Usage),
	})
}

func (s *Server) putBudget(w http.ResponseWriter, r *http.Request) {
	var req putBudgetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := userFrom(r.Context())
	b, err := s.deps.Budgets.Upsert(r.Context(), user.ID, string(req.Amount))
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, toBudgetResponse(b))
}

// computeBudgetUsage is a pure calculation over the posted figures.
func (s *Server) computeBudgetUsage(w http.ResponseWriter, r *http.Request) {
	var req usageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseFigure("budgetAmount", req.BudgetAmount)
	if err != nil {
		writeError(w, err)
		return
	}
	expenses, err := parseFigure("currentExpenses", req.CurrentExpenses)
	if err != nil {
		writeError(w, err)
		return
	}
	var u budget.Usage
	if amount.exact && expenses.exact {
		u = budget.ComputeUsage(amount.dec, expenses.dec)
	} else {
		u = budget.ComputeUsageFloat(amount.f, expenses.f)
	}
	ok(w, http.StatusOK, toUsageResponse(u))
}

// figure is a posted number. exact is false when it only parses as a float
// (NaN, Infinity or a magnitude beyond the decimal range).
type figure struct {
	dec   decimal.Decimal
	f     float64
	exact bool
}

func parseFigure(field string, raw flexAmount) (figure, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return figure{dec: decimal.Zero, exact: true}, nil
	}
	if d, err := decimal.Parse(s); err == nil {
		f, _ := d.Float64()
		return figure{dec: d, f: f, exact: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return figure{}, errs.Invalid(field, "must be a number")
	}
	return figure{f: f}, nil
}
