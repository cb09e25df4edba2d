package types

// RootTxRecord answers where a data item ultimately lives. Complete
// distinguishes the simple record (root tx id only) from the complete one
// (offsets known), modeled as an explicit discriminant rather than relying
// on nil-pointer structural optionality.
type RootTxRecord struct {
	RootTxID        Identifier
	RootOffset      *int64
	RootDataOffset  *int64
	ContentType     string
	Size            *int64
	DataSize        *int64

	// Complete is true once both RootOffset and RootDataOffset are known.
	Complete bool
}

// WithOffsets returns a copy of r marked complete once both offsets have
// been supplied, typically by a later backend in the composite index chain.
func (r RootTxRecord) WithOffsets(rootOffset, rootDataOffset int64) RootTxRecord {
	r.RootOffset = &rootOffset
	r.RootDataOffset = &rootDataOffset
	r.Complete = true
	return r
}

// TxOffset describes a transaction's byte range within the weave, as
// reported by the chain offset index collaborator.
type TxOffset struct {
	EndOffset int64
	Size      int64
}

// StartOffset returns the absolute weave offset of the transaction's
// first byte: endOffset - size + 1.
func (o TxOffset) StartOffset() int64 {
	return o.EndOffset - o.Size + 1
}
