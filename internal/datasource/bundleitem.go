package datasource

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/bundle"
	"github.com/ar-io/gatewaycore/internal/types"
)

// RootTxIndex is satisfied by *rootindex.CompositeIndex.
type RootTxIndex interface {
	GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error)
}

// MaxBundleNestingDepth bounds ANS-104 bundle recursion.
const MaxBundleNestingDepth = 8

// byteRangeAdapter satisfies bundle.ByteRangeSource by fully draining the
// stream a ContiguousDataSource produces for a given region: the ANS-104
// offset parser needs random access to a handful of small fields, not a
// long-lived stream.
type byteRangeAdapter struct {
	source ContiguousDataSource
	id     types.Identifier
	attrs  types.RequestAttributes
}

func (a byteRangeAdapter) ReadRange(ctx context.Context, offset, size int64) ([]byte, error) {
	data, err := a.source.GetData(ctx, a.id, &types.Region{Offset: offset, Size: size}, a.attrs)
	if err != nil {
		return nil, err
	}
	defer data.Body.Close()
	return io.ReadAll(data.Body)
}

// BundleItemSource serves nested ANS-104 data items: resolve the item's root transaction and offsets via the
// composite root-tx index, then read the corresponding byte range of the
// root transaction. When the index only furnishes the root tx id without
// offsets, it falls back to parsing the root transaction's own bundle
// envelope with internal/bundle, recursing through nested bundles the same
// way the composite index's GraphQL backend would have.
type BundleItemSource struct {
	index   RootTxIndex
	rootTxs ContiguousDataSource
	log     *logrus.Entry
}

// NewBundleItemSource constructs a BundleItemSource. rootTxs resolves plain
// (non-nested) transaction ids, typically a TxDataSource.
func NewBundleItemSource(index RootTxIndex, rootTxs ContiguousDataSource, log *logrus.Logger) *BundleItemSource {
	if log == nil {
		log = logrus.New()
	}
	return &BundleItemSource{index: index, rootTxs: rootTxs, log: log.WithField("component", "datasource.bundleitem")}
}

func (s *BundleItemSource) GetData(ctx context.Context, dataItemID types.Identifier, region *types.Region, attrs types.RequestAttributes) (types.ContiguousData, error) {
	rec, err := s.index.GetRootTx(ctx, dataItemID)
	if err != nil {
		return types.ContiguousData{}, err
	}
	if rec == nil {
		return types.ContiguousData{}, types.ErrNotFound
	}

	offset, itemSize := rec.RootOffset, rec.DataSize
	if rec.RootDataOffset != nil {
		offset = rec.RootDataOffset
	}
	if offset == nil || itemSize == nil {
		loc, err := bundle.GetDataItemOffset(ctx, byteRangeAdapter{source: s.rootTxs, id: rec.RootTxID, attrs: attrs}, 0, rec.RootTxID, dataItemID, MaxBundleNestingDepth)
		if err != nil {
			return types.ContiguousData{}, err
		}
		if loc == nil {
			return types.ContiguousData{}, types.ErrNotFound
		}
		o, sz := loc.Offset, loc.Size
		offset, itemSize = &o, &sz
	}

	parentRegion := &types.Region{Offset: *offset, Size: *itemSize}
	if region != nil {
		parentRegion = &types.Region{Offset: *offset + region.Offset, Size: region.Size}
	}

	data, err := s.rootTxs.GetData(ctx, rec.RootTxID, parentRegion, attrs)
	if err != nil {
		return types.ContiguousData{}, err
	}
	data.SourceContentType = rec.ContentType
	data.RootTxID = rec.RootTxID
	data.RootOffset = rec.RootOffset
	data.RootDataOffset = rec.RootDataOffset
	return data, nil
}
