package bundle

import (
	"context"
	"encoding/binary"
	"math/big"

	"github.com/ar-io/gatewaycore/internal/types"
)

// ByteRangeSource is the random-access reader abstraction the bundle
// parser walks: read(offset, size) -> bytes. Implementations may back onto
// a local file, an HTTP range request, or another composite data source.
type ByteRangeSource interface {
	ReadRange(ctx context.Context, offset, size int64) ([]byte, error)
}

// Tag is a decoded name/value pair from a data item's tag list.
type Tag struct {
	Name  string
	Value string
}

// itemHeader is everything offset.go needs out of a parsed data-item
// envelope.
type itemHeader struct {
	signatureType uint16
	owner         []byte
	tags          []Tag
	headerLen     int64 // bytes from the start of the envelope to the start of data
}

const uint256Len = 32

// readUint256AsInt64 interprets a 32-byte little- or big-endian integer as
// an int64, clamping to MaxInt64 on overflow (no real bundle field reaches
// that size).
func readUint256AsInt64(b []byte, littleEndian bool) int64 {
	buf := make([]byte, uint256Len)
	copy(buf, b)
	if littleEndian {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	n := new(big.Int).SetBytes(buf)
	if !n.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return n.Int64()
}

// parseItemHeader parses a data item's envelope starting at the given
// absolute offset within src, reading only what each field requires (rather
// than a worst-case fixed prefix) so it never reads past the item's actual
// bounds.
//
// Tag encoding: the envelope carries (tagCount, tagBytes, tagsBlob)
// without a self-describing layout for tagsBlob. This reads each tag as
// (nameLen:uint32_le, name, valLen:uint32_le, value) rather than full
// Avro array encoding.
func parseItemHeader(ctx context.Context, src ByteRangeSource, offset int64) (itemHeader, error) {
	cursor := offset

	head, err := src.ReadRange(ctx, cursor, 2)
	if err != nil {
		return itemHeader{}, types.Wrap(types.NetworkError, "bundle.parseItemHeader", err)
	}
	sigType := binary.LittleEndian.Uint16(head)
	cursor += 2

	spec, ok := lookupSignatureSpec(sigType)
	if !ok {
		return itemHeader{}, types.Wrap(types.InvalidInput, "bundle.parseItemHeader", errUnknownSignatureType)
	}
	cursor += int64(spec.SigLen) // signature bytes are skipped, never needed

	owner, err := src.ReadRange(ctx, cursor, int64(spec.PubLen))
	if err != nil {
		return itemHeader{}, types.Wrap(types.NetworkError, "bundle.parseItemHeader", err)
	}
	cursor += int64(spec.PubLen)

	targetFlag, err := src.ReadRange(ctx, cursor, 1)
	if err != nil {
		return itemHeader{}, types.Wrap(types.NetworkError, "bundle.parseItemHeader", err)
	}
	cursor++
	if targetFlag[0] != 0 {
		cursor += uint256Len
	}

	anchorFlag, err := src.ReadRange(ctx, cursor, 1)
	if err != nil {
		return itemHeader{}, types.Wrap(types.NetworkError, "bundle.parseItemHeader", err)
	}
	cursor++
	if anchorFlag[0] != 0 {
		cursor += uint256Len
	}

	counts, err := src.ReadRange(ctx, cursor, 16)
	if err != nil {
		return itemHeader{}, types.Wrap(types.NetworkError, "bundle.parseItemHeader", err)
	}
	tagCount := binary.LittleEndian.Uint64(counts[0:8])
	tagBytesLen := binary.LittleEndian.Uint64(counts[8:16])
	cursor += 16

	tagsBlob, err := src.ReadRange(ctx, cursor, int64(tagBytesLen))
	if err != nil {
		return itemHeader{}, types.Wrap(types.NetworkError, "bundle.parseItemHeader", err)
	}
	cursor += int64(tagBytesLen)

	return itemHeader{
		signatureType: sigType,
		owner:         append([]byte{}, owner...),
		tags:          parseTags(tagsBlob, tagCount),
		headerLen:     cursor - offset,
	}, nil
}

func parseTags(blob []byte, count uint64) []Tag {
	tags := make([]Tag, 0, count)
	cursor := 0
	for i := uint64(0); i < count; i++ {
		if cursor+4 > len(blob) {
			break
		}
		nameLen := int(binary.LittleEndian.Uint32(blob[cursor : cursor+4]))
		cursor += 4
		if cursor+nameLen > len(blob) {
			break
		}
		name := string(blob[cursor : cursor+nameLen])
		cursor += nameLen

		if cursor+4 > len(blob) {
			break
		}
		valLen := int(binary.LittleEndian.Uint32(blob[cursor : cursor+4]))
		cursor += 4
		if cursor+valLen > len(blob) {
			break
		}
		value := string(blob[cursor : cursor+valLen])
		cursor += valLen

		tags = append(tags, Tag{Name: name, Value: value})
	}
	return tags
}

// isNestedBundle reports whether h's tags mark its item as a binary ANS-104
// bundle in its own right.
func (h itemHeader) isNestedBundle() bool {
	var format, version string
	for _, t := range h.tags {
		switch t.Name {
		case "Bundle-Format":
			format = t.Value
		case "Bundle-Version":
			version = t.Value
		}
	}
	return format == "binary" && version == "2.0.0"
}

type bundleError string

func (e bundleError) Error() string { return string(e) }

const (
	errUnknownSignatureType bundleError = "bundle: unrecognized signatureType"
	errNotFound             bundleError = "bundle: data item not found"
	errCycleDetected        bundleError = "bundle: cyclic bundle reference"
	errDepthExceeded        bundleError = "bundle: nesting depth exceeded"
)
