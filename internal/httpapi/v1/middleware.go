package v1

import (
	"context"
	"net/http"

	"github.com/tinoosan/budgetledger/internal/service/account"
	"github.com/tinoosan/budgetledger/internal/service/transaction"
)

const (
	ctxKeyPostAccount     ctxKey = "validatedPostAccount"
	ctxKeyTransactionBody ctxKey = "validatedTransactionBody"
)

// validatePostAccount decodes POST /v1/accounts and stores the validated
// account.CreateInput in the request context.
func (s *Server) validatePostAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postAccountRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			in := account.CreateInput{
				Name:      req.Name,
				Type:      req.Type,
				Balance:   string(req.Balance),
				IsDefault: req.IsDefault,
			}
			if err := s.deps.Accounts.ValidateCreate(in); err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostAccount, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateTransactionBody decodes the create/update transaction body, runs the
// schema checks and stores the transaction.Input in the request context.
func (s *Server) validateTransactionBody() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req transactionRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			in := toTransactionInput(req)
			if err := transaction.Validate(in); err != nil {
				writeError(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyTransactionBody, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func toTransactionInput(req transactionRequest) transaction.Input {
	in := transaction.Input{
		Type:        req.Type,
		Amount:      string(req.Amount),
		Date:        req.Date.Time,
		AccountID:   req.AccountID,
		Category:    req.Category,
		Description: req.Description,
		IsRecurring: req.IsRecurring,
		Metadata:    req.Metadata,
	}
	if req.RecurringInterval != nil {
		in.RecurringInterval = *req.RecurringInterval
	}
	return in
}
