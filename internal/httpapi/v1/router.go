// Package v1 wires the HTTP surface of the budget ledger.
// Handlers stay thin and delegate every rule to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/budgetledger/internal/service/account"
	"github.com/tinoosan/budgetledger/internal/service/budget"
	"github.com/tinoosan/budgetledger/internal/service/transaction"
)

// Deps are the services the API delegates to.
type Deps struct {
	Accounts     account.Service
	Transactions transaction.Mutator
	BulkDelete   transaction.BulkDeleter
	Budgets      budget.Service
	Identity     IdentityResolver
	Ready        ReadyChecker
}

// Server wires handlers and middleware using Chi.
type Server struct {
	deps Deps
	auth AuthConfig
	log  *slog.Logger
	rt   *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(deps Deps, auth AuthConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{deps: deps, auth: auth, log: logger, rt: r}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
	s.rt.Get("/v1/dictionary/categories", s.getCategoriesDictionary)

	s.rt.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.With(s.validatePostAccount()).Post("/v1/accounts", s.postAccount)
		r.Get("/v1/accounts", s.listAccounts)
		r.Get("/v1/accounts/{id}", s.getAccountView)
		r.Post("/v1/accounts/{id}/default", s.setDefaultAccount)

		r.With(s.validateTransactionBody()).Post("/v1/transactions", s.postTransaction)
		r.With(s.validateTransactionBody()).Put("/v1/transactions/{id}", s.putTransaction)
		r.Delete("/v1/transactions/{id}", s.deleteTransaction)
		r.Post("/v1/transactions/bulk-delete", s.bulkDeleteTransactions)

		r.Get("/v1/budget", s.getBudgetStatus)
		r.Put("/v1/budget", s.putBudget)
		r.Post("/v1/budget/usage", s.computeBudgetUsage)
	})
}
