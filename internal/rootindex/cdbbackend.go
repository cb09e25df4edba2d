package rootindex

import (
	"context"

	"github.com/ar-io/gatewaycore/internal/cdb"
	"github.com/ar-io/gatewaycore/internal/types"
)

// CDBSource is satisfied by both cdb.Reader (single file) and
// cdb.Directory (watched directory of files).
type CDBSource interface {
	GetValue(key []byte) (cdb.Value, bool, error)
}

// CDBBackend answers root-tx lookups from a local CDB64 store in O(1)
// disk reads.
type CDBBackend struct {
	source CDBSource
}

// NewCDBBackend wraps an already-open CDB64 source.
func NewCDBBackend(source CDBSource) *CDBBackend {
	return &CDBBackend{source: source}
}

func (b *CDBBackend) Name() string { return "cdb" }

func (b *CDBBackend) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	v, ok, err := b.source.GetValue(id[:])
	if err != nil {
		return nil, types.Wrap(types.NetworkError, "rootindex.CDBBackend.GetRootTx", err)
	}
	if !ok {
		return nil, nil
	}
	rec := v.ToRootTxRecord()
	return &rec, nil
}
