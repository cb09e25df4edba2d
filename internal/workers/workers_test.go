package workers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ar-io/gatewaycore/internal/types"
)

// buildVerifiableChunk returns a single-leaf (no-branch) data_path whose
// data_root is directly the leaf's data hash, the simplest tree merkle.Verify
// accepts: a one-chunk transaction.
func buildVerifiableChunk(params types.ChunkFetchParams) types.Chunk {
	payload := []byte("verified-payload")
	hash := sha256.Sum256(payload)
	txSize := params.TxSize
	if txSize <= 0 {
		txSize = int64(len(payload))
	}

	var leafOffsetBytes [32]byte
	binary.BigEndian.PutUint64(leafOffsetBytes[24:], uint64(txSize))
	path := append(append([]byte{}, hash[:]...), leafOffsetBytes[:]...)

	return types.Chunk{
		Data:           payload,
		DataPath:       path,
		DataRoot:       types.Identifier(hash),
		TxSize:         txSize,
		RelativeOffset: 0,
		Hash:           hash,
	}
}

func TestQueueDrainsBeforeStop(t *testing.T) {
	q := NewQueue(4, 2, nil, "test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var mu sync.Mutex
	var ran int
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, func(ctx context.Context) {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}
	q.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, ran)
}

type fakeImportIndex struct {
	mu   sync.Mutex
	jobs []TxImportJob
	err  error
}

func (f *fakeImportIndex) PutContiguousData(ctx context.Context, job TxImportJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeMetrics struct {
	mu         sync.Mutex
	imported   int
	indexed    int
	verifiedOK int
	verifiedNG int
	repaired   int
	failures   int
}

func (f *fakeMetrics) IncFailure(types.ErrorKind)               { f.mu.Lock(); f.failures++; f.mu.Unlock() }
func (f *fakeMetrics) IncCacheHit()                              {}
func (f *fakeMetrics) IncCacheMiss()                             {}
func (f *fakeMetrics) SetCacheKeptFiles(int64)                   {}
func (f *fakeMetrics) SetCacheKeptBytes(int64)                   {}
func (f *fakeMetrics) ObservePeerWeight(string, string, int)     {}
func (f *fakeMetrics) IncImported()                              { f.mu.Lock(); f.imported++; f.mu.Unlock() }
func (f *fakeMetrics) IncIndexed()                               { f.mu.Lock(); f.indexed++; f.mu.Unlock() }
func (f *fakeMetrics) IncOffsetRepaired()                        { f.mu.Lock(); f.repaired++; f.mu.Unlock() }
func (f *fakeMetrics) IncVerified(ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ok {
		f.verifiedOK++
	} else {
		f.verifiedNG++
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestDataImporterRecordsJobs(t *testing.T) {
	idx := &fakeImportIndex{}
	m := &fakeMetrics{}
	imp := NewDataImporter(4, 2, idx, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	imp.Start(ctx)

	var id types.Identifier
	id[0] = 7
	require.NoError(t, imp.Submit(ctx, TxImportJob{TxID: id, Size: 100}))
	imp.Stop()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	require.Len(t, idx.jobs, 1)
	assert.Equal(t, id, idx.jobs[0].TxID)
	assert.Equal(t, 1, m.imported)
}

func TestDataImporterRecordsFailureMetric(t *testing.T) {
	idx := &fakeImportIndex{err: types.ErrNetworkError}
	m := &fakeMetrics{}
	imp := NewDataImporter(1, 1, idx, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	imp.Start(ctx)

	require.NoError(t, imp.Submit(ctx, TxImportJob{}))
	imp.Stop()

	assert.Equal(t, 1, m.failures)
	assert.Equal(t, 0, m.imported)
}

type memByteSource struct {
	data []byte
}

func (m *memByteSource) ReadRange(ctx context.Context, offset, size int64) ([]byte, error) {
	return m.data[offset : offset+size], nil
}

type fakeRootTxIndex struct {
	mu      sync.Mutex
	records map[types.Identifier]types.RootTxRecord
}

func (f *fakeRootTxIndex) PutRootTx(ctx context.Context, id types.Identifier, rec types.RootTxRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = map[types.Identifier]types.RootTxRecord{}
	}
	f.records[id] = rec
	return nil
}

func buildTinyBundle(id types.Identifier, payload []byte) []byte {
	countBytes := make([]byte, 32)
	binary.LittleEndian.PutUint64(countBytes, 1)

	sizeBytes := make([]byte, 32)
	binary.LittleEndian.PutUint64(sizeBytes, uint64(len(payload)))

	out := append([]byte{}, countBytes...)
	out = append(out, sizeBytes...)
	out = append(out, id[:]...)
	out = append(out, payload...)
	return out
}

func TestDataItemIndexerWritesEntries(t *testing.T) {
	var itemID types.Identifier
	itemID[0] = 42
	// A minimal Ed25519 item envelope: sigType(2) + sig(64) + owner(32) +
	// noTarget(1) + noAnchor(1) + tagCount(8) + tagBytesLen(8) + data.
	item := make([]byte, 0, 2+64+32+1+1+8+8)
	item = append(item, 2, 0) // Ed25519 sigType, little-endian uint16
	item = append(item, make([]byte, 64)...)
	item = append(item, make([]byte, 32)...)
	item = append(item, 0, 0) // no target, no anchor
	item = append(item, make([]byte, 8)...)
	item = append(item, make([]byte, 8)...)
	item = append(item, []byte("payload")...)

	bundleBytes := buildTinyBundle(itemID, item)
	src := &memByteSource{data: bundleBytes}
	idx := &fakeRootTxIndex{}
	m := &fakeMetrics{}

	var rootID types.Identifier
	rootID[0] = 9
	indexer := NewDataItemIndexer(2, 1, src, idx, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	indexer.Start(ctx)
	require.NoError(t, indexer.Submit(ctx, IndexJob{RootTxID: rootID, BundleOffset: 0}))
	indexer.Stop()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	rec, ok := idx.records[itemID]
	require.True(t, ok)
	assert.Equal(t, rootID, rec.RootTxID)
	assert.True(t, rec.Complete)
	assert.Equal(t, 1, m.indexed)
}

type fakeResolver struct {
	rec *types.RootTxRecord
	err error
}

func (f *fakeResolver) GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error) {
	return f.rec, f.err
}

func TestOffsetRepairWorkerSkipsIncomplete(t *testing.T) {
	resolver := &fakeResolver{rec: &types.RootTxRecord{Complete: false}}
	idx := &fakeRootTxIndex{}
	m := &fakeMetrics{}
	w := NewOffsetRepairWorker(1, 1, resolver, idx, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var id types.Identifier
	id[0] = 1
	require.NoError(t, w.Submit(ctx, RepairJob{DataItemID: id}))
	w.Stop()

	assert.Equal(t, 0, m.repaired)
	idx.mu.Lock()
	_, ok := idx.records[id]
	idx.mu.Unlock()
	assert.False(t, ok)
}

func TestOffsetRepairWorkerWritesCompleteRecord(t *testing.T) {
	rootOffset, rootDataOffset := int64(10), int64(20)
	rec := &types.RootTxRecord{Complete: true, RootOffset: &rootOffset, RootDataOffset: &rootDataOffset}
	resolver := &fakeResolver{rec: rec}
	idx := &fakeRootTxIndex{}
	m := &fakeMetrics{}
	w := NewOffsetRepairWorker(1, 1, resolver, idx, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var id types.Identifier
	id[0] = 2
	require.NoError(t, w.Submit(ctx, RepairJob{DataItemID: id}))
	w.Stop()

	assert.Equal(t, 1, m.repaired)
	idx.mu.Lock()
	got, ok := idx.records[id]
	idx.mu.Unlock()
	require.True(t, ok)
	assert.True(t, got.Complete)
}

type fakeChunkFetcher struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeChunkFetcher) GetChunkByAny(ctx context.Context, params types.ChunkFetchParams) (types.Chunk, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fail {
		return types.Chunk{}, types.ErrVerificationFailed
	}
	// Build a trivially-verifiable single-chunk transaction: a leaf-only
	// data_path whose declared end offset is the transaction size.
	return buildVerifiableChunk(params), nil
}

type fakeMarker struct {
	mu  sync.Mutex
	got map[types.Identifier]bool
}

func (f *fakeMarker) MarkVerified(ctx context.Context, id types.Identifier, ok bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.got == nil {
		f.got = map[types.Identifier]bool{}
	}
	f.got[id] = ok
	return nil
}

func TestVerificationWorkerMarksFailureOnChunkError(t *testing.T) {
	fetcher := &fakeChunkFetcher{fail: true}
	marker := &fakeMarker{}
	m := &fakeMetrics{}
	w := NewVerificationWorker(1, 1, 2, fetcher, marker, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var id types.Identifier
	id[0] = 3
	require.NoError(t, w.Submit(ctx, VerifyJob{ID: id, TxSize: 10}))
	w.Stop()

	marker.mu.Lock()
	defer marker.mu.Unlock()
	assert.False(t, marker.got[id])
	assert.Equal(t, 1, m.verifiedNG)
}

func TestVerificationWorkerMarksSuccessOnValidChunk(t *testing.T) {
	fetcher := &fakeChunkFetcher{}
	marker := &fakeMarker{}
	m := &fakeMetrics{}
	w := NewVerificationWorker(1, 1, 2, fetcher, marker, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	var id types.Identifier
	id[0] = 4
	require.NoError(t, w.Submit(ctx, VerifyJob{ID: id, TxSize: 10}))
	waitFor(t, func() bool {
		marker.mu.Lock()
		defer marker.mu.Unlock()
		_, ok := marker.got[id]
		return ok
	})
	w.Stop()

	marker.mu.Lock()
	defer marker.mu.Unlock()
	assert.True(t, marker.got[id])
	assert.Equal(t, 1, m.verifiedOK)
}

func TestChunkOffsetsRejectsNonPositiveSize(t *testing.T) {
	_, err := chunkOffsets(0)
	assert.Error(t, err)
}

func TestChunkOffsetsCoversWholeTransaction(t *testing.T) {
	offsets, err := chunkOffsets(int64(types.MaxChunkSize)*2 + 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, int64(types.MaxChunkSize), int64(types.MaxChunkSize) * 2}, offsets)
}
