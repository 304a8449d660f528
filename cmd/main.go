package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/config"
	httpapi "github.com/tinoosan/budgetledger/internal/httpapi/v1"
	"github.com/tinoosan/budgetledger/internal/identity"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/recurring"
	"github.com/tinoosan/budgetledger/internal/service/account"
	"github.com/tinoosan/budgetledger/internal/service/budget"
	"github.com/tinoosan/budgetledger/internal/service/transaction"
	"github.com/tinoosan/budgetledger/internal/storage"
	"github.com/tinoosan/budgetledger/internal/storage/memory"
	pgstore "github.com/tinoosan/budgetledger/internal/storage/postgres"
)

// devSubject is the external auth id of the seeded memory-backend user.
const devSubject = "dev-user"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	logger := cfg.Logger()
	slog.SetDefault(logger)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	deps := httpapi.Deps{
		Accounts:     account.New(store, store, cfg.Currency, logger),
		Transactions: transaction.NewMutator(store, logger),
		BulkDelete:   transaction.NewBulkDeleter(store, logger),
		Budgets:      budget.New(store, store, cfg.Currency, logger),
		Identity:     identity.NewResolver(store),
		Ready:        store,
	}
	auth := httpapi.AuthConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}
	if auth.Secret == "" {
		logger.Warn("JWT_HS256_SECRET unset; trusting " + httpapi.SubjectHeader + " header")
	}

	sweeper := recurring.NewSweeper(store, recurring.Options{
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
		Workers:  cfg.SweepWorkers,
	}, logger)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("recurring sweeper stopped", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(deps, auth, logger).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("budget ledger listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
		stop()
	}
	<-sweepDone
}

// openStore picks Postgres when DATABASE_URL is set and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		store := memory.New()
		user, accs, err := seedMemory(store, cfg.Currency)
		if err != nil {
			return nil, err
		}
		logDevSeed(logger, "memory", user, accs)
		printDevSeedBanner(user, accs)
		logger.Info("storage backend: memory")
		return store, nil
	}

	if cfg.MigrateOnStart {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	pg, err := pgstore.Open(ctx, cfg.DatabaseURL, cfg.TxTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if cfg.DevSeed {
		user, accs, err := pg.SeedDev(ctx, cfg.Currency)
		if err != nil {
			logger.Error("dev seed failed", "err", err)
		} else {
			logDevSeed(logger, "postgres", user, accs)
			printDevSeedBanner(user, accs)
		}
	}
	logger.Info("storage backend: postgres")
	return pg, nil
}

func seedMemory(store *memory.Store, currency string) (ledger.User, []ledger.Account, error) {
	zero, err := money.NewAmountFromMinorUnits(currency, 0)
	if err != nil {
		return ledger.User{}, nil, err
	}
	now := time.Now().UTC()
	user := ledger.User{ID: uuid.New(), ExternalAuthID: devSubject, CreatedAt: now}
	store.SeedUser(user)
	accs := []ledger.Account{
		{ID: uuid.New(), UserID: user.ID, Name: "Current", Type: ledger.AccountTypeCurrent, Currency: currency, Balance: zero, IsDefault: true, CreatedAt: now, UpdatedAt: now},
		{ID: uuid.New(), UserID: user.ID, Name: "Savings", Type: ledger.AccountTypeSavings, Currency: currency, Balance: zero, CreatedAt: now, UpdatedAt: now},
	}
	for _, a := range accs {
		store.SeedAccount(a)
	}
	return user, accs, nil
}

// logDevSeed emits structured logs with useful IDs
func logDevSeed(l *slog.Logger, backend string, user ledger.User, accs []ledger.Account) {
	ids := map[string]string{}
	for _, a := range accs {
		if a.IsDefault {
			ids["default_account_id"] = a.ID.String()
		} else {
			ids[string(a.Type)+"_account_id"] = a.ID.String()
		}
	}
	l.Info("DEV seed ("+backend+")", "user_id", user.ID.String(), "subject", user.ExternalAuthID, "ids", ids)
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(user ledger.User, accs []ledger.Account) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("user_id: %s\n", user.ID.String())
	fmt.Printf("%s: %s\n", httpapi.SubjectHeader, user.ExternalAuthID)
	for _, a := range accs {
		fmt.Printf("%s account_id: %s (default=%t)\n", a.Name, a.ID.String(), a.IsDefault)
	}
	fmt.Println("==================================================")
}
