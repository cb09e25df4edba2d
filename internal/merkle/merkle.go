// Package merkle verifies a chunk against a transaction's data_root and a
// claimed data_path. Arweave proofs are unbalanced trees whose branch
// nodes carry an offset boundary alongside the two child hashes, so
// verification walks the path top-down from the known root, re-deriving
// each SHA-256 and narrowing the offset range at every branch.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"math/big"

	"github.com/ar-io/gatewaycore/internal/types"
)

const (
	hashSize   = 32
	noteSize   = 32
	branchSize = hashSize*2 + noteSize // left || right || boundary
	leafSize   = hashSize + noteSize   // dataHash || offset
)

// Verify checks c against its own declared data_root and data_path, and that
// SHA256(c.Data) == c.Hash. relativeOffset is the
// byte offset within the transaction that c claims to cover; txSize bounds
// the whole-transaction range the tree was built over.
func Verify(c types.Chunk) error {
	sum := sha256.Sum256(c.Data)
	if sum != c.Hash {
		return types.Wrap(types.VerificationFailed, "merkle.Verify", errDataHashMismatch)
	}
	return VerifyPath(c.DataRoot, c.DataPath, c.RelativeOffset, c.TxSize, c.Hash)
}

// VerifyPath descends the path from the (already-known) root, at each
// branch recomputing its hash and picking the left or right child based on
// whether offset falls below the branch's boundary, narrowing [low, high)
// as it goes. At the leaf it checks the accumulated hash chain reaches
// leafHash and that offset is consistent with the narrowed range and the
// leaf's own declared end-offset.
func VerifyPath(dataRoot types.Identifier, path []byte, offset, txSize int64, leafHash [32]byte) error {
	_, _, err := descend(dataRoot, path, offset, txSize, &leafHash)
	return err
}

// Bounds walks and checks path the same way VerifyPath does, except that
// it does not compare the leaf's data hash against a chunk hash, and
// returns the leaf's [start, end) byte range within the transaction, which
// range reads use to slice a chunk to the requested window.
func Bounds(dataRoot types.Identifier, path []byte, offset, txSize int64) (start, end int64, err error) {
	return descend(dataRoot, path, offset, txSize, nil)
}

// descend walks path from the root, narrowing [low, high) at each branch,
// and returns the leaf's final [low, leafOffset) range. If wantHash is
// non-nil, it is additionally checked against the leaf's data hash
// (VerifyPath's stricter contract); Bounds passes nil to skip that check
// when the caller only wants the chunk's boundaries for an already-trusted
// chunk.
func descend(dataRoot types.Identifier, path []byte, offset, txSize int64, wantHash *[32]byte) (low, high int64, err error) {
	expected := [32]byte(dataRoot)
	low, high = 0, txSize

	remaining := path
	for len(remaining) > leafSize {
		if len(remaining) < branchSize {
			return 0, 0, types.Wrap(types.VerificationFailed, "merkle.descend", errMalformedPath)
		}
		left := remaining[0:hashSize]
		right := remaining[hashSize : hashSize*2]
		boundaryBytes := remaining[hashSize*2 : branchSize]

		h := sha256.Sum256(append(append(append([]byte{}, left...), right...), boundaryBytes...))
		if h != expected {
			return 0, 0, types.Wrap(types.VerificationFailed, "merkle.descend", errHashMismatch)
		}

		boundary := boundaryToInt64(boundaryBytes)
		if offset < boundary {
			copy(expected[:], left)
			high = boundary
		} else {
			copy(expected[:], right)
			low = boundary
		}
		remaining = remaining[branchSize:]
	}

	if len(remaining) != leafSize {
		return 0, 0, types.Wrap(types.VerificationFailed, "merkle.descend", errMalformedPath)
	}
	dataHash := remaining[0:hashSize]
	leafOffset := boundaryToInt64(remaining[hashSize:leafSize])

	if !bytes.Equal(dataHash, expected[:]) {
		return 0, 0, types.Wrap(types.VerificationFailed, "merkle.descend", errHashMismatch)
	}
	if wantHash != nil && !bytes.Equal(dataHash, wantHash[:]) {
		return 0, 0, types.Wrap(types.VerificationFailed, "merkle.descend", errDataHashMismatch)
	}
	if offset < low || offset >= leafOffset || leafOffset > high {
		return 0, 0, types.Wrap(types.VerificationFailed, "merkle.descend", errOffsetInconsistent)
	}
	return low, leafOffset, nil
}

func boundaryToInt64(b []byte) int64 {
	n := new(big.Int).SetBytes(b)
	if !n.IsInt64() {
		return int64(^uint64(0) >> 1) // clamp to max int64; any real tx size is far smaller
	}
	return n.Int64()
}

type verifyError string

func (e verifyError) Error() string { return string(e) }

const (
	errDataHashMismatch    verifyError = "merkle: chunk hash does not match data"
	errHashMismatch        verifyError = "merkle: recomputed hash does not match expected"
	errMalformedPath       verifyError = "merkle: malformed data path"
	errOffsetInconsistent  verifyError = "merkle: leaf offset inconsistent with branch boundaries"
)
