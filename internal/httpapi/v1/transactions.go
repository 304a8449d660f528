package v1

import (
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/service/transaction"
)

func (s *Server) postTransaction(w http.ResponseWriter, r *http.Request) {
	in, _ := r.Context().Value(ctxKeyTransactionBody).(transaction.Input)
	user := userFrom(r.Context())
	t, err := s.deps.Transactions.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) putTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.ErrNotFound)
		return
	}
	in, _ := r.Context().Value(ctxKeyTransactionBody).(transaction.Input)
	user := userFrom(r.Context())
	t, err := s.deps.Transactions.Update(r.Context(), user.ID, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.ErrNotFound)
		return
	}
	user := userFrom(r.Context())
	if err := s.deps.Transactions.Delete(r.Context(), user.ID, id); err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (s *Server) bulkDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.TransactionIDs) > transaction.MaxBulkDelete {
		writeError(w, errs.Invalid("transactionIds", "too many ids"))
		return
	}
	// An id that is not a uuid cannot match a row; it is skipped like a foreign one.
	ids := make([]uuid.UUID, 0, len(req.TransactionIDs))
	for _, raw := range req.TransactionIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	user := userFrom(r.Context())
	if err := s.deps.BulkDelete.DeleteMany(r.Context(), user.ID, ids); err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, nil)
}
