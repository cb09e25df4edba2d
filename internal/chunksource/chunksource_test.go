package chunksource

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ar-io/gatewaycore/internal/peer"
	"github.com/ar-io/gatewaycore/internal/types"
)

type fakeClient struct {
	fail      map[string]bool
	chunkFor  func(peerURL string, params types.ChunkFetchParams) types.Chunk
	calls     []string
}

func (f *fakeClient) FetchChunk(ctx context.Context, peerURL string, params types.ChunkFetchParams) (types.Chunk, error) {
	f.calls = append(f.calls, peerURL)
	if f.fail[peerURL] {
		return types.Chunk{}, context.DeadlineExceeded
	}
	return f.chunkFor(peerURL, params), nil
}

func validChunk(data []byte) types.Chunk {
	sum := sha256.Sum256(data)
	// Degenerate single-leaf tree: dataRoot is the leaf hash itself, and the
	// leaf's declared end-offset is the whole transaction size.
	offsetBytes := make([]byte, 32)
	binary.BigEndian.PutUint64(offsetBytes[24:], uint64(len(data)))
	return types.Chunk{
		Data:     data,
		DataRoot: types.Identifier(sum),
		DataPath: append(append([]byte{}, sum[:]...), offsetBytes...),
		TxSize:   int64(len(data)),
		Hash:     sum,
	}
}

func TestGetChunkByAnySucceedsOnFirstPeer(t *testing.T) {
	mgr := peer.NewManager(nil, nil, peer.DefaultWeightConfig())
	mgr.Seed(Category, []string{"http://a", "http://b"})

	data := []byte("hello chunk")
	client := &fakeClient{
		fail:     map[string]bool{},
		chunkFor: func(peerURL string, params types.ChunkFetchParams) types.Chunk { return validChunk(data) },
	}

	src := New(mgr, client, DefaultConfig(), nil)
	params := types.ChunkFetchParams{TxSize: int64(len(data))}

	chunk, err := src.GetChunkByAny(context.Background(), params)
	if err != nil {
		t.Fatalf("GetChunkByAny: %v", err)
	}
	if string(chunk.Data) != string(data) {
		t.Fatalf("unexpected chunk data: %q", chunk.Data)
	}
	if chunk.Source != Category {
		t.Fatalf("expected source label %q, got %q", Category, chunk.Source)
	}
}

func TestGetChunkByAnyFallsBackToNextPeer(t *testing.T) {
	mgr := peer.NewManager(nil, nil, peer.DefaultWeightConfig())
	mgr.Seed(Category, []string{"http://bad", "http://good"})

	data := []byte("fallback data")
	client := &fakeClient{
		fail:     map[string]bool{"http://bad": true},
		chunkFor: func(peerURL string, params types.ChunkFetchParams) types.Chunk { return validChunk(data) },
	}

	cfg := DefaultConfig()
	cfg.PeerSelectionCount = 2
	src := New(mgr, client, cfg, nil)

	chunk, err := src.GetChunkByAny(context.Background(), types.ChunkFetchParams{TxSize: int64(len(data))})
	if err != nil {
		t.Fatalf("GetChunkByAny: %v", err)
	}
	if chunk.SourceHost != "http://good" {
		t.Fatalf("expected fallback peer to serve the chunk, got %q", chunk.SourceHost)
	}
}

func TestGetChunkByAnyAllPeersFailed(t *testing.T) {
	mgr := peer.NewManager(nil, nil, peer.DefaultWeightConfig())
	mgr.Seed(Category, []string{"http://a"})

	client := &fakeClient{
		fail:     map[string]bool{"http://a": true},
		chunkFor: func(peerURL string, params types.ChunkFetchParams) types.Chunk { return types.Chunk{} },
	}

	cfg := DefaultConfig()
	cfg.RetryCount = 2
	src := New(mgr, client, cfg, nil)

	_, err := src.GetChunkByAny(context.Background(), types.ChunkFetchParams{})
	if types.KindOf(err) != types.NetworkError {
		t.Fatalf("expected AllPeersFailed (NetworkError kind), got %v", err)
	}
}

func TestGetChunkByAnyHopsExceeded(t *testing.T) {
	mgr := peer.NewManager(nil, nil, peer.DefaultWeightConfig())
	src := New(mgr, &fakeClient{fail: map[string]bool{}}, DefaultConfig(), nil)

	params := types.ChunkFetchParams{Attrs: types.RequestAttributes{Hops: 1}}
	_, err := src.GetChunkByAny(context.Background(), params)
	if types.KindOf(err) != types.HopsExceeded {
		t.Fatalf("expected HopsExceeded, got %v", err)
	}
}

func TestGetChunkByAnySkippedForCompute(t *testing.T) {
	mgr := peer.NewManager(nil, nil, peer.DefaultWeightConfig())
	src := New(mgr, &fakeClient{fail: map[string]bool{}}, DefaultConfig(), nil)

	params := types.ChunkFetchParams{Attrs: types.RequestAttributes{SkipRemoteForwarding: true}}
	_, err := src.GetChunkByAny(context.Background(), params)
	if err != types.ErrSkippedForCompute {
		t.Fatalf("expected ErrSkippedForCompute, got %v", err)
	}
}

func TestGetChunkByAnyCancellationIsolatedPerCaller(t *testing.T) {
	mgr := peer.NewManager(nil, nil, peer.DefaultWeightConfig())
	mgr.Seed(Category, []string{"http://a"})

	release := make(chan struct{})
	data := []byte("slow chunk")
	client := &fakeClient{
		fail: map[string]bool{},
		chunkFor: func(peerURL string, params types.ChunkFetchParams) types.Chunk {
			<-release
			return validChunk(data)
		},
	}
	src := New(mgr, client, DefaultConfig(), nil)
	params := types.ChunkFetchParams{TxSize: int64(len(data))}

	ctx1, cancel1 := context.WithCancel(context.Background())
	doneA := make(chan error, 1)
	doneB := make(chan error, 1)

	go func() {
		_, err := src.GetChunkByAny(ctx1, params)
		doneA <- err
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		_, err := src.GetChunkByAny(context.Background(), params)
		doneB <- err
	}()
	time.Sleep(20 * time.Millisecond)

	cancel1()
	errA := <-doneA
	if types.KindOf(errA) != types.Cancelled {
		t.Fatalf("expected caller A to see Cancelled, got %v", errA)
	}

	close(release)
	errB := <-doneB
	if errB != nil {
		t.Fatalf("expected caller B to still succeed, got %v", errB)
	}
}
