// Package identity maps an authenticated subject to a ledger User, creating
// the user the first time the subject is seen.
package identity

import (
	"container/list"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/budgetledger/internal/errs"
	"github.com/tinoosan/budgetledger/internal/ledger"
	"github.com/tinoosan/budgetledger/internal/storage"
)

// MaxSubjectLen bounds external auth ids.
const MaxSubjectLen = 255

type Store interface {
	UserByExternalID(ctx context.Context, externalAuthID string) (ledger.User, error)
	storage.TxRunner
}

// MaxCachedSubjects bounds the resolver cache of a NewResolver.
const MaxCachedSubjects = 10000

// Resolver caches subject -> user in a bounded LRU; users are never deleted
// so entries never go stale, and an evicted subject is just looked up again.
type Resolver struct {
	store Store
	size  int

	mu    sync.Mutex
	order *list.List // of cacheEntry, most recent first
	byKey map[string]*list.Element
}

type cacheEntry struct {
	subject string
	user    ledger.User
}

func NewResolver(store Store) *Resolver { return NewResolverWithCache(store, MaxCachedSubjects) }

// NewResolverWithCache keeps at most size subjects cached; size < 1 means 1.
func NewResolverWithCache(store Store, size int) *Resolver {
	if size < 1 {
		size = 1
	}
	return &Resolver{store: store, size: size, order: list.New(), byKey: make(map[string]*list.Element)}
}

// Resolve returns errs.ErrUnauthorized for an empty or oversized subject.
func (r *Resolver) Resolve(ctx context.Context, subject string) (ledger.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || len(subject) > MaxSubjectLen {
		return ledger.User{}, errs.ErrUnauthorized
	}
	if u, ok := r.lookup(subject); ok {
		return u, nil
	}
	u, err := r.store.UserByExternalID(ctx, subject)
	if errors.Is(err, errs.ErrNotFound) {
		err = r.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			u, err = tx.EnsureUser(ctx, ledger.User{ID: uuid.New(), ExternalAuthID: subject, CreatedAt: time.Now().UTC()})
			return err
		})
	}
	if err != nil {
		return ledger.User{}, errs.StoreFailure(err)
	}
	r.remember(subject, u)
	return u, nil
}

func (r *Resolver) lookup(subject string) (ledger.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.byKey[subject]
	if !ok {
		return ledger.User{}, false
	}
	r.order.MoveToFront(el)
	return el.Value.(cacheEntry).user, true
}

func (r *Resolver) remember(subject string, u ledger.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if el, ok := r.byKey[subject]; ok {
		el.Value = cacheEntry{subject: subject, user: u}
		r.order.MoveToFront(el)
		return
	}
	r.byKey[subject] = r.order.PushFront(cacheEntry{subject: subject, user: u})
	for r.order.Len() > r.size {
		oldest := r.order.Back()
		r.order.Remove(oldest)
		delete(r.byKey, oldest.Value.(cacheEntry).subject)
	}
}
