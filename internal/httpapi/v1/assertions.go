package v1

import (
	"github.com/tinoosan/budgetledger/internal/identity"
	"github.com/tinoosan/budgetledger/internal/storage/memory"
	"github.com/tinoosan/budgetledger/internal/storage/postgres"
)

// Compile-time interface assertions for the concrete dependencies wired in cmd.
var (
	_ IdentityResolver = (*identity.Resolver)(nil)
	_ ReadyChecker     = (*memory.Store)(nil)
	_ ReadyChecker     = (*postgres.Store)(nil)
)
