package bundle

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ar-io/gatewaycore/internal/types"
)

type memSource struct {
	data []byte
}

func (m *memSource) ReadRange(ctx context.Context, offset, size int64) ([]byte, error) {
	if offset < 0 || size < 0 || offset+size > int64(len(m.data)) {
		return nil, errOutOfRange
	}
	return m.data[offset : offset+size], nil
}

type rangeError string

func (e rangeError) Error() string { return string(e) }

const errOutOfRange rangeError = "out of range"

func putUint256LE(dst []byte, v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	copy(dst, buf[:])
}

func ed25519Item(owner byte, tags []Tag, data []byte) []byte {
	tagsBlob := []byte{}
	for _, t := range tags {
		nameLen := make([]byte, 4)
		binary.LittleEndian.PutUint32(nameLen, uint32(len(t.Name)))
		valLen := make([]byte, 4)
		binary.LittleEndian.PutUint32(valLen, uint32(len(t.Value)))
		tagsBlob = append(tagsBlob, nameLen...)
		tagsBlob = append(tagsBlob, []byte(t.Name)...)
		tagsBlob = append(tagsBlob, valLen...)
		tagsBlob = append(tagsBlob, []byte(t.Value)...)
	}

	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, 2) // Ed25519
	buf = append(buf, make([]byte, 64)...) // signature
	ownerBytes := make([]byte, 32)
	ownerBytes[0] = owner
	buf = append(buf, ownerBytes...)
	buf = append(buf, 0) // no target
	buf = append(buf, 0) // no anchor

	tagCount := make([]byte, 8)
	binary.LittleEndian.PutUint64(tagCount, uint64(len(tags)))
	tagBytesLen := make([]byte, 8)
	binary.LittleEndian.PutUint64(tagBytesLen, uint64(len(tagsBlob)))
	buf = append(buf, tagCount...)
	buf = append(buf, tagBytesLen...)
	buf = append(buf, tagsBlob...)
	buf = append(buf, data...)
	return buf
}

func idFromByte(b byte) types.Identifier {
	var id types.Identifier
	id[0] = b
	return id
}

func buildSingleLevelBundle(items [][]byte, ids []types.Identifier) []byte {
	itemCount := int64(len(items))
	countBytes := make([]byte, 32)
	putUint256LE(countBytes, itemCount)

	index := []byte{}
	for i, item := range items {
		sizeBytes := make([]byte, 32)
		putUint256LE(sizeBytes, int64(len(item)))
		index = append(index, sizeBytes...)
		index = append(index, ids[i][:]...)
	}

	out := append([]byte{}, countBytes...)
	out = append(out, index...)
	for _, item := range items {
		out = append(out, item...)
	}
	return out
}

func TestGetDataItemOffsetFindsSecondItem(t *testing.T) {
	id1 := idFromByte(1)
	id2 := idFromByte(2)

	item1 := ed25519Item(0xAA, nil, []byte("first item payload"))
	item2 := ed25519Item(0xBB, []Tag{{Name: "Content-Type", Value: "text/plain"}}, []byte("second item payload"))

	bundleBytes := buildSingleLevelBundle([][]byte{item1, item2}, []types.Identifier{id1, id2})
	src := &memSource{data: bundleBytes}

	loc, err := GetDataItemOffset(context.Background(), src, 0, idFromByte(0xFF), id2, 4)
	if err != nil {
		t.Fatalf("GetDataItemOffset: %v", err)
	}

	want := "second item payload"
	got := bundleBytes[loc.Offset : loc.Offset+loc.Size]
	if string(got) != want {
		t.Fatalf("resolved offset/size mismatch: got %q, want %q", got, want)
	}
}

func TestGetDataItemOffsetNotFound(t *testing.T) {
	id1 := idFromByte(1)
	item1 := ed25519Item(0xAA, nil, []byte("only item"))
	bundleBytes := buildSingleLevelBundle([][]byte{item1}, []types.Identifier{id1})
	src := &memSource{data: bundleBytes}

	_, err := GetDataItemOffset(context.Background(), src, 0, idFromByte(0xFF), idFromByte(9), 4)
	if types.KindOf(err) != types.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestGetDataItemOffsetRecursesIntoNestedBundle(t *testing.T) {
	innerID := idFromByte(100)
	innerData := []byte("nested payload")
	innerItem := ed25519Item(0xCC, nil, innerData)
	innerBundle := buildSingleLevelBundle([][]byte{innerItem}, []types.Identifier{innerID})

	outerNestedID := idFromByte(50)
	outerItem := ed25519Item(0xDD, []Tag{
		{Name: "Bundle-Format", Value: "binary"},
		{Name: "Bundle-Version", Value: "2.0.0"},
	}, innerBundle)

	bundleBytes := buildSingleLevelBundle([][]byte{outerItem}, []types.Identifier{outerNestedID})
	src := &memSource{data: bundleBytes}

	loc, err := GetDataItemOffset(context.Background(), src, 0, idFromByte(0xFF), innerID, 4)
	if err != nil {
		t.Fatalf("GetDataItemOffset: %v", err)
	}

	got := bundleBytes[loc.Offset : loc.Offset+loc.Size]
	if string(got) != string(innerData) {
		t.Fatalf("nested resolution mismatch: got %q, want %q", got, innerData)
	}
}

func TestListEntriesEnumeratesTopLevelItems(t *testing.T) {
	id1 := idFromByte(1)
	id2 := idFromByte(2)
	item1 := ed25519Item(0xAA, nil, []byte("first item payload"))
	item2 := ed25519Item(0xBB, []Tag{{Name: "Content-Type", Value: "text/plain"}}, []byte("second item payload"))
	bundleBytes := buildSingleLevelBundle([][]byte{item1, item2}, []types.Identifier{id1, id2})
	src := &memSource{data: bundleBytes}

	entries, err := ListEntries(context.Background(), src, 0)
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != id1 || entries[1].ID != id2 {
		t.Fatalf("entries out of order: %+v", entries)
	}
	got := bundleBytes[entries[1].Offset : entries[1].Offset+entries[1].Size]
	if string(got) != "second item payload" {
		t.Fatalf("entry 1 location mismatch: got %q", got)
	}
}

func TestGetDataItemOffsetCycleDetection(t *testing.T) {
	id1 := idFromByte(1)
	item1 := ed25519Item(0xAA, nil, []byte("x"))
	bundleBytes := buildSingleLevelBundle([][]byte{item1}, []types.Identifier{id1})
	src := &memSource{data: bundleBytes}

	repeated := idFromByte(0xFF)
	_, err := resolve(context.Background(), src, 0, repeated, idFromByte(9), 4, map[types.Identifier]bool{repeated: true})
	if types.KindOf(err) != types.InvalidInput {
		t.Fatalf("expected cycle-detection InvalidInput, got %v", err)
	}
}
