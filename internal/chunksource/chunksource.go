// Package chunksource fetches single chunks from untrusted peers: select
// candidate peers from the weighted peer manager, try each in turn with
// per-peer success/failure reporting, verify every response, and coalesce
// concurrent callers sharing the same fingerprint.
package chunksource

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/coalesce"
	"github.com/ar-io/gatewaycore/internal/merkle"
	"github.com/ar-io/gatewaycore/internal/peer"
	"github.com/ar-io/gatewaycore/internal/types"
)

// Category is the peer-manager category chunk fetches draw peers from.
const Category = "chunk"

// CoalesceTTL is the window within which callers share one in-flight
// fetch per fingerprint.
const CoalesceTTL = 60 * time.Second

// Client fetches a single chunk from a specific peer; the actual HTTP
// transport lives behind this interface so the retry/coalescing logic here
// can be tested without a network.
type Client interface {
	FetchChunk(ctx context.Context, peerURL string, params types.ChunkFetchParams) (types.Chunk, error)
}

// Config holds the retry and hop-limit tunables.
type Config struct {
	MaxHops            int
	RetryCount         int
	PeerSelectionCount int
}

// DefaultConfig limits forwarding to one hop and budgets three passes of
// three peers each before giving up.
func DefaultConfig() Config {
	return Config{MaxHops: 1, RetryCount: 3, PeerSelectionCount: 3}
}

// Source answers getChunkByAny requests.
type Source struct {
	peers     *peer.Manager
	client    Client
	coalescer *coalesce.Group
	cfg       Config
	log       *logrus.Entry
}

// New constructs a Source.
func New(peers *peer.Manager, client Client, cfg Config, log *logrus.Logger) *Source {
	if log == nil {
		log = logrus.New()
	}
	return &Source{
		peers:     peers,
		client:    client,
		coalescer: coalesce.New(CoalesceTTL),
		cfg:       cfg,
		log:       log.WithField("component", "chunksource"),
	}
}

// GetChunkByAny fetches and verifies the chunk params describes from any
// available peer.
func (s *Source) GetChunkByAny(ctx context.Context, params types.ChunkFetchParams) (types.Chunk, error) {
	if params.Attrs.ExceedsHops(s.cfg.MaxHops) {
		return types.Chunk{}, &types.Error{Kind: types.HopsExceeded, Op: "chunksource.GetChunkByAny"}
	}
	if params.Attrs.SkipRemoteForwarding {
		return types.Chunk{}, types.ErrSkippedForCompute
	}

	result, err := s.coalescer.Do(ctx, params.Fingerprint(), func(ctx context.Context) (interface{}, error) {
		return s.fetchWithRetry(ctx, params)
	})
	if err != nil {
		return types.Chunk{}, err
	}
	return result.(types.Chunk), nil
}

func (s *Source) fetchWithRetry(ctx context.Context, params types.ChunkFetchParams) (types.Chunk, error) {
	for attempt := 0; attempt < s.cfg.RetryCount; attempt++ {
		candidates, err := s.peers.SelectPeers(Category, s.cfg.PeerSelectionCount)
		if err != nil {
			return types.Chunk{}, err
		}

		for _, url := range candidates {
			if ctx.Err() != nil {
				return types.Chunk{}, &types.Error{Kind: types.Cancelled, Op: "chunksource.fetchWithRetry", Err: ctx.Err()}
			}

			start := time.Now()
			chunk, err := s.client.FetchChunk(ctx, url, params)
			if err != nil {
				s.peers.ReportFailure(Category, url)
				s.log.WithError(err).WithField("peer", url).Debug("chunk fetch failed")
				continue
			}
			if err := merkle.Verify(chunk); err != nil {
				s.peers.ReportFailure(Category, url)
				s.log.WithError(err).WithField("peer", url).Warn("chunk failed verification")
				continue
			}

			s.peers.ReportSuccess(Category, url, time.Since(start), int64(len(chunk.Data)))
			chunk.Source = Category
			chunk.SourceHost = url
			return chunk, nil
		}
	}
	return types.Chunk{}, types.ErrAllPeersFailed
}
