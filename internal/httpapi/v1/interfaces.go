package v1

import (
	"context"

	"github.com/tinoosan/budgetledger/internal/ledger"
)

// IdentityResolver maps an authenticated subject to a ledger user.
type IdentityResolver interface {
	Resolve(ctx context.Context, subject string) (ledger.User, error)
}

// ReadyChecker is implemented by stores that can report readiness.
type ReadyChecker interface {
	Ready(ctx context.Context) error
}
