package transaction

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

// MaxBulkDelete bounds the ids accepted by one DeleteMany call.
const MaxBulkDelete = 1000

type BulkDeleter interface {
	// DeleteMany deletes the caller's transactions among ids. Ids that are
	// absent or owned by someone else are ignored.
	DeleteMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
}

type bulkDeleter struct {
	tx  storage.TxRunner
	log *slog.Logger
}

func NewBulkDeleter(tx storage.TxRunner, log *slog.Logger) BulkDeleter {
	if log == nil {
		log = slog.Default()
	}
	return &bulkDeleter{tx: tx, log: log}
}

// DeleteMany removes every owned row and applies one aggregated reversal
// increment per touched account, all inside a single store transaction.
func (b *bulkDeleter) DeleteMany(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if userID == uuid.Nil {
		return errs.ErrUnauthorized
	}
	if len(ids) > MaxBulkDelete {
		return errs.Invalid("transactionIds", "too many ids")
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	touched := 0
	err := b.tx.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		rows, err := tx.TransactionsByIDs(ctx, userID, ids)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			touched = 0
			return nil
		}
		byAccount := make(map[uuid.UUID][]money.Amount)
		owned := make([]uuid.UUID, 0, len(rows))
		for _, r := range rows {
			byAccount[r.AccountID] = append(byAccount[r.AccountID], ledger.ReversalDelta(r))
			owned = append(owned, r.ID)
		}
		n, err := tx.DeleteTransactions(ctx, userID, owned)
		if err != nil {
			return err
		}
		if n != int64(len(owned)) {
			return errs.Wrapf(errs.ErrConflict, "deleted %d of %d locked rows", n, len(owned))
		}
		for _, accID := range sortedIDs(byAccount) {
			deltas := byAccount[accID]
			sum, err := ledger.SumDeltas(deltas[0].Curr().Code(), deltas...)
			if err != nil {
				return err
			}
			if sum.IsZero() {
				continue
			}
			if err := tx.IncrementBalance(ctx, userID, accID, sum); err != nil {
				return err
			}
		}
		touched = len(byAccount)
		return nil
	})
	if err != nil {
		if !errs.IsDomain(err) {
			b.log.Warn("bulk delete aborted", "op", "transaction.bulk_delete", "user_id", userID, "requested", len(ids), "err", err)
		}
		return errs.StoreFailure(err)
	}
	if touched > 0 {
		balanceIncrements.WithLabelValues("bulk_delete").Add(float64(touched))
	}
	return nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
