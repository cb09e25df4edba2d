// Package bundle implements the ANS-104 offset source: parsing a bundle
// envelope to locate a nested data item's byte range, recursing through
// nested bundles with cycle detection and a depth bound. Parsing reads a
// fixed header, then walks entries advancing a running byte cursor; no
// reflection-based decoding.
package bundle

import (
	"context"

	"github.com/ar-io/gatewaycore/internal/types"
)

// itemCountLen is the bundle envelope's leading item-count field.
const itemCountLen = 32

// entryLen is one bundle-index entry: (size:uint256_le, id:32 bytes).
const entryLen = 32 + 32

// ItemLocation is the result of a successful getDataItemOffset.
type ItemLocation struct {
	// Offset is relative to the outermost bundle's start.
	Offset int64
	Size   int64
}

// bundleEntry is one decoded index-header entry.
type bundleEntry struct {
	id   types.Identifier
	size int64
}

// readIndex reads a bundle's item count and index entries at bundleOffset.
func readIndex(ctx context.Context, src ByteRangeSource, bundleOffset int64) ([]bundleEntry, int64, error) {
	countBytes, err := src.ReadRange(ctx, bundleOffset, itemCountLen)
	if err != nil {
		return nil, 0, types.Wrap(types.NetworkError, "bundle.readIndex", err)
	}
	itemCount := readUint256AsInt64(countBytes, true)

	indexBytes, err := src.ReadRange(ctx, bundleOffset+itemCountLen, itemCount*entryLen)
	if err != nil {
		return nil, 0, types.Wrap(types.NetworkError, "bundle.readIndex", err)
	}

	entries := make([]bundleEntry, itemCount)
	for i := int64(0); i < itemCount; i++ {
		rec := indexBytes[i*entryLen : (i+1)*entryLen]
		size := readUint256AsInt64(rec[0:32], true)
		var id types.Identifier
		copy(id[:], rec[32:64])
		entries[i] = bundleEntry{id: id, size: size}
	}

	payloadStart := itemCountLen + itemCount*entryLen
	return entries, payloadStart, nil
}

// GetDataItemOffset implements getDataItemOffset(targetId,
// bundleId). bundleOffset is where the outermost bundle starts within src;
// bundleId identifies it for cycle detection. maxDepth bounds recursion into
// nested bundles (MAX_BUNDLE_NESTING_DEPTH).
func GetDataItemOffset(ctx context.Context, src ByteRangeSource, bundleOffset int64, bundleID types.Identifier, targetID types.Identifier, maxDepth int) (*ItemLocation, error) {
	return resolve(ctx, src, bundleOffset, bundleID, targetID, maxDepth, map[types.Identifier]bool{})
}

// Entry is one top-level data item as enumerated by ListEntries: its id
// and its location within the bundle's own byte range (not recursively
// descended into nested bundles). EnvelopeOffset is where the item's
// envelope header starts; Offset is where its payload starts, past that
// header.
type Entry struct {
	ID             types.Identifier
	EnvelopeOffset int64
	Offset         int64
	Size           int64
}

// ListEntries reads a bundle's index and returns every top-level entry's id
// and payload location, without recursing into nested bundles. This backs
// the data-item indexer worker,
// which needs to enumerate every item a freshly-imported bundle carries
// rather than resolve one target id at a time.
func ListEntries(ctx context.Context, src ByteRangeSource, bundleOffset int64) ([]Entry, error) {
	entries, payloadStart, err := readIndex(ctx, src, bundleOffset)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(entries))
	cursor := payloadStart
	for _, e := range entries {
		hdr, err := parseItemHeader(ctx, src, bundleOffset+cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{
			ID:             e.id,
			EnvelopeOffset: cursor,
			Offset:         cursor + hdr.headerLen,
			Size:           e.size - hdr.headerLen,
		})
		cursor += e.size
	}
	return out, nil
}

func resolve(ctx context.Context, src ByteRangeSource, bundleOffset int64, bundleID types.Identifier, targetID types.Identifier, depthRemaining int, visited map[types.Identifier]bool) (*ItemLocation, error) {
	if depthRemaining < 0 {
		return nil, types.Wrap(types.InvalidInput, "bundle.resolve", errDepthExceeded)
	}
	if visited[bundleID] {
		return nil, types.Wrap(types.InvalidInput, "bundle.resolve", errCycleDetected)
	}
	visited[bundleID] = true

	entries, payloadStart, err := readIndex(ctx, src, bundleOffset)
	if err != nil {
		return nil, err
	}

	cursor := payloadStart
	for _, e := range entries {
		if e.id == targetID {
			hdr, err := parseItemHeader(ctx, src, bundleOffset+cursor)
			if err != nil {
				return nil, err
			}
			return &ItemLocation{
				Offset: cursor + hdr.headerLen,
				Size:   e.size - hdr.headerLen,
			}, nil
		}

		hdr, err := parseItemHeader(ctx, src, bundleOffset+cursor)
		if err == nil && hdr.isNestedBundle() {
			nestedOffset := bundleOffset + cursor + hdr.headerLen
			if loc, err := resolve(ctx, src, nestedOffset, e.id, targetID, depthRemaining-1, visited); err == nil {
				// Nested recursion returns offsets relative to the nested
				// bundle's own start; translate back to the outermost
				// bundle's frame.
				loc.Offset += cursor + hdr.headerLen
				return loc, nil
			}
			// A malformed or non-matching nested bundle doesn't abort the
			// whole traversal; keep walking sibling entries.
		}

		cursor += e.size
	}

	return nil, types.Wrap(types.NotFound, "bundle.resolve", errNotFound)
}
