package recurring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

// MaxCatchUp bounds how many missed occurrences one template materialises per sweep.
const MaxCatchUp = 31

var (
	occurrencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "budgetledger",
		Name:      "recurring_occurrences_total",
		Help:      "Transactions materialised from recurring templates",
	})
	sweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "budgetledger",
		Name:      "recurring_template_failures_total",
		Help:      "Recurring templates whose materialisation transaction aborted",
	})
)

// Store is the slice of the Ledger Store the sweeper needs.
type Store interface {
	DueRecurring(ctx context.Context, asOf time.Time, limit int) ([]ledger.Transaction, error)
	storage.TxRunner
}

// Options configures a Sweeper. Zero values fall back to defaults.
type Options struct {
	Interval time.Duration
	Batch    int
	Workers  int
}

// Result summarises one sweep.
type Result struct {
	Templates int
	Created   int
	Failed    int
}

// Sweeper finds recurring templates that are due and materialises each due
// occurrence as a regular transaction, advancing the template in the same
// store transaction.
type Sweeper struct {
	store Store
	opts  Options
	log   *slog.Logger
	now   func() time.Time
}

func NewSweeper(store Store, opts Options, log *slog.Logger) *Sweeper {
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{store: store, opts: opts, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A non-positive interval disables the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.log.Warn("recurring sweep failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce materialises everything due at or before now. A failing template is
// logged and counted; it does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (Result, error) {
	due, err := s.store.DueRecurring(ctx, now, s.opts.Batch)
	if err != nil {
		return Result{}, errs.StoreFailure(err)
	}
	var created, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for _, tmpl := range due {
		tmpl := tmpl
		g.Go(func() error {
			n, err := s.materialise(gctx, tmpl.UserID, tmpl.ID, now)
			if err != nil {
				failed.Add(1)
				sweepFailuresTotal.Inc()
				s.log.Warn("recurring template failed", "template_id", tmpl.ID, "user_id", tmpl.UserID, "err", err)
				return nil
			}
			created.Add(int64(n))
			occurrencesTotal.Add(float64(n))
			return nil
		})
	}
	_ = g.Wait()
	res := Result{Templates: len(due), Created: int(created.Load()), Failed: int(failed.Load())}
	if res.Templates > 0 {
		s.log.Info("recurring sweep", "templates", res.Templates, "created", res.Created, "failed", res.Failed)
	}
	return res, ctx.Err()
}

func (s *Sweeper) materialise(ctx context.Context, userID, templateID uuid.UUID, now time.Time) (int, error) {
	n := 0
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		n = 0
		tmpl, err := tx.GetTransaction(ctx, userID, templateID)
		if err != nil {
			return err
		}
		// Another sweep may have advanced it since DueRecurring ran.
		if !tmpl.IsRecurring || tmpl.NextRecurringDate == nil || tmpl.NextRecurringDate.After(now) {
			return nil
		}
		next := *tmpl.NextRecurringDate
		for n < MaxCatchUp && !next.After(now) {
			child := occurrence(tmpl, next, now)
			if err := tx.InsertTransaction(ctx, child); err != nil {
				return err
			}
			if err := tx.IncrementBalance(ctx, userID, child.AccountID, ledger.SignedDelta(child)); err != nil {
				return err
			}
			n++
			if next, err = NextAfter(tmpl.Date, next, tmpl.RecurringInterval); err != nil {
				return err
			}
		}
		processed := now
		tmpl.NextRecurringDate = &next
		tmpl.LastProcessed = &processed
		tmpl.UpdatedAt = now
		return tx.UpdateTransaction(ctx, tmpl)
	})
	if err != nil {
		return 0, errs.StoreFailure(err)
	}
	return n, nil
}

// occurrence is a non-recurring copy of tmpl dated at.
func occurrence(tmpl ledger.Transaction, at, now time.Time) ledger.Transaction {
	return ledger.Transaction{
		ID:          uuid.New(),
		AccountID:   tmpl.AccountID,
		UserID:      tmpl.UserID,
		Type:        tmpl.Type,
		Amount:      tmpl.Amount,
		Date:        at,
		Description: tmpl.Description,
		Category:    tmpl.Category,
		Metadata:    tmpl.Metadata.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
