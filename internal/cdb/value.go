package cdb

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ar-io/gatewaycore/internal/types"
)

// Value is the MessagePack-encoded record body stored under each key.
// RootDataItemOffset and RootDataOffset are omitted (nil) for a "simple"
// record and both present for a "complete" one.
type Value struct {
	RootTxID           [32]byte `msgpack:"rootTxId"`
	RootDataItemOffset *int64   `msgpack:"rootDataItemOffset,omitempty"`
	RootDataOffset     *int64   `msgpack:"rootDataOffset,omitempty"`
}

// Complete reports whether both offsets are present.
func (v Value) Complete() bool {
	return v.RootDataItemOffset != nil && v.RootDataOffset != nil
}

// Encode MessagePack-serializes v.
func Encode(v Value) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode parses a MessagePack-encoded Value.
func Decode(b []byte) (Value, error) {
	var v Value
	err := msgpack.Unmarshal(b, &v)
	return v, err
}

// ToRootTxRecord adapts a decoded Value into the shared types.RootTxRecord.
func (v Value) ToRootTxRecord() types.RootTxRecord {
	r := types.RootTxRecord{RootTxID: types.Identifier(v.RootTxID)}
	if v.Complete() {
		r = r.WithOffsets(*v.RootDataItemOffset, *v.RootDataOffset)
	}
	return r
}
