package v1

import (
	"errors"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/service/account"
)

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	in, _ := r.Context().Value(ctxKeyPostAccount).(account.CreateInput)
	user := userFrom(r.Context())
	acc, err := s.deps.Accounts.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusCreated, toAccountResponse(acc))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	accs, err := s.deps.Accounts.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accs))
	for _, a := range accs {
		out = append(out, toAccountResponse(a))
	}
	ok(w, http.StatusOK, out)
}

// getAccountView answers 200 with null data for accounts the caller cannot see.
func (s *Server) getAccountView(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		ok(w, http.StatusOK, nil)
		return
	}
	user := userFrom(r.Context())
	view, err := s.deps.Accounts.GetAccountView(r.Context(), user.ID, id)
	if errors.Is(err, errs.ErrNotFound) {
		ok(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, toAccountViewResponse(view))
}

func (s *Server) setDefaultAccount(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errs.ErrNotFound)
		return
	}
	user := userFrom(r.Context())
	acc, err := s.deps.Accounts.SetDefault(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	ok(w, http.StatusOK, toAccountResponse(acc))
}
