package postgres

import "github.com/tinoosan/budgetledger/internal/storage"

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*Tx)(nil)
)
