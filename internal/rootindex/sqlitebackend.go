package rootindex

import (
	"context"

	"github.com/ar-io/gatewaycore/internal/types"
)

// ChainDatabase is the external collaborator for the local chain
// database. Schema ownership and migrations belong to the indexer; this
// package only consumes the lookup contract.
type ChainDatabase interface {
	LookupRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error)
}

// SQLiteBackend adapts a ChainDatabase to the Backend contract.
type SQLiteBackend struct {
	db ChainDatabase
}

func NewSQLiteBackend(db ChainDatabase) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Name() string { return "sqlite" }

func (b *SQLiteBackend) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	return b.db.LookupRootTx(ctx, id)
}
