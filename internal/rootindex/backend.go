// Package rootindex implements the composite root-transaction index: an
// ordered chain of backends, each wrapped in its own
// circuit breaker, answering dataItemId -> rootTxId(+offsets) lookups.
// Traversal tries each backend in order, skips one whose breaker is open,
// returns the first complete result immediately, and remembers an
// offset-less result as a fallback for when no later backend does better.
package rootindex

import (
	"context"

	"github.com/ar-io/gatewaycore/internal/types"
)

// Backend resolves a single data-item id to a root-transaction record. A
// nil record with a nil error means this backend has no opinion, distinct
// from an error, which is also treated as no opinion but logged.
type Backend interface {
	Name() string
	GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error)
}
