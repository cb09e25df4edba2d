package rootindex

import (
	"context"

	"github.com/ar-io/gatewaycore/internal/types"
)

// TurboClient is the external collaborator for the Turbo index, a remote
// KV lookup service. Its transport and schema are out of scope here; only
// the lookup contract this package consumes is owned by this module.
type TurboClient interface {
	GetItem(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error)
}

// TurboBackend adapts a TurboClient to the Backend contract.
type TurboBackend struct {
	client TurboClient
}

func NewTurboBackend(client TurboClient) *TurboBackend {
	return &TurboBackend{client: client}
}

func (b *TurboBackend) Name() string { return "turbo" }

func (b *TurboBackend) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	return b.client.GetItem(ctx, id)
}
