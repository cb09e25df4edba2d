package types

import "io"

// ContiguousData is the result of resolving an identifier: a byte stream
// plus the metadata a caller needs to decide how to serve it. The stream
// must be drained or closed by the caller. Closing it stops the producer
// before its next chunk fetch; a fetch already in progress is aborted only
// by cancelling the request context.
type ContiguousData struct {
	Body              io.ReadCloser
	Size              int64
	SourceContentType string
	Verified          bool
	Trusted           bool
	Cached            bool
	Attrs             RequestAttributes

	// RootTxID, RootOffset and RootDataOffset are populated when this
	// region was resolved through a bundle; they back the
	// X-AR-IO-Root-Transaction-Id / -Root-Data-Item-Offset / -Root-Data-Offset
	// headers on the (out of scope) HTTP surface.
	RootTxID       Identifier
	RootOffset     *int64
	RootDataOffset *int64
}

// Region describes a byte range request against a ContiguousData stream.
type Region struct {
	Offset int64
	Size   int64
}
