package workers

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ar-io/gatewaycore/internal/merkle"
	"github.com/ar-io/gatewaycore/internal/metrics"
	"github.com/ar-io/gatewaycore/internal/types"
)

// ChunkFetcher is satisfied by *chunksource.Source; GetChunkByAny already
// Merkle-verifies every chunk it returns (internal/chunksource), so this
// worker's job is re-deriving every chunk of a transaction that was
// served from the filesystem cache without that proof attached, so cached
// bytes regain a verified label instead of being served unverified
// forever. The BACKGROUND_DATA_VERIFICATION_* config knobs size it.
type ChunkFetcher interface {
	GetChunkByAny(ctx context.Context, params types.ChunkFetchParams) (types.Chunk, error)
}

// VerificationMarker records the outcome of a background verification pass
// against whatever store tracks a transaction's verified flag (owned
// outside this core).
type VerificationMarker interface {
	MarkVerified(ctx context.Context, id types.Identifier, ok bool) error
}

// VerifyJob names one transaction to re-verify end to end.
type VerifyJob struct {
	ID       types.Identifier
	DataRoot types.Identifier
	TxSize   int64
}

// VerificationWorker drains VerifyJobs, re-fetching (and thereby
// re-verifying) every chunk of the named transaction, bounded by
// chunkFanout per job via errgroup so one large transaction
// doesn't starve the chunk source's peer pool.
type VerificationWorker struct {
	queue       *Queue
	chunks      ChunkFetcher
	marker      VerificationMarker
	metrics     metrics.Hooks
	chunkFanout int
	log         *logrus.Entry
}

// NewVerificationWorker constructs a VerificationWorker. chunkFanout<=0
// defaults to 4 concurrent chunk fetches per job.
func NewVerificationWorker(bufferSize, workerCount, chunkFanout int, chunks ChunkFetcher, marker VerificationMarker, m metrics.Hooks, log *logrus.Logger) *VerificationWorker {
	if chunkFanout <= 0 {
		chunkFanout = 4
	}
	if log == nil {
		log = logrus.New()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &VerificationWorker{
		queue:       NewQueue(bufferSize, workerCount, log, "workers.verifier"),
		chunks:      chunks,
		marker:      marker,
		metrics:     m,
		chunkFanout: chunkFanout,
		log:         log.WithField("component", "workers.verifier"),
	}
}

func (v *VerificationWorker) Start(ctx context.Context) { v.queue.Start(ctx) }
func (v *VerificationWorker) Stop()                     { v.queue.Stop() }

// Submit enqueues a transaction for background re-verification.
func (v *VerificationWorker) Submit(ctx context.Context, job VerifyJob) error {
	return v.queue.Enqueue(ctx, func(ctx context.Context) {
		ok := v.verify(ctx, job)
		v.metrics.IncVerified(ok)
		if v.marker != nil {
			if err := v.marker.MarkVerified(ctx, job.ID, ok); err != nil {
				v.log.WithError(err).WithField("tx", job.ID.String()).Warn("failed to record verification outcome")
			}
		}
	})
}

// verify walks the transaction's chunk offsets, fetching up to
// chunkFanout of them concurrently; a verification failure on any chunk
// fails the whole transaction.
func (v *VerificationWorker) verify(ctx context.Context, job VerifyJob) bool {
	offsets, err := chunkOffsets(job.TxSize)
	if err != nil {
		v.log.WithError(err).WithField("tx", job.ID.String()).Warn("could not plan chunk offsets")
		return false
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.chunkFanout)

	for _, rel := range offsets {
		rel := rel
		g.Go(func() error {
			params := types.ChunkFetchParams{
				TxSize:         job.TxSize,
				DataRoot:       job.DataRoot,
				AbsoluteOffset: rel,
				RelativeOffset: rel,
			}
			chunk, err := v.chunks.GetChunkByAny(gctx, params)
			if err != nil {
				return err
			}
			return merkle.Verify(chunk)
		})
	}

	if err := g.Wait(); err != nil {
		v.log.WithError(err).WithField("tx", job.ID.String()).Warn("background verification failed")
		v.metrics.IncFailure(types.KindOf(err))
		return false
	}
	return true
}

// chunkOffsets returns the relative offsets a transaction of the given size
// is split into, assuming 256 KiB chunk ceiling. Real chunk
// boundaries are irregular near a transaction's tail (Arweave rebalances
// the last two chunks); this worker only needs representative sample
// points along the transaction, since GetChunkByAny resolves whichever
// chunk actually covers a given offset.
func chunkOffsets(txSize int64) ([]int64, error) {
	if txSize <= 0 {
		return nil, errInvalidTxSize
	}
	var offsets []int64
	for off := int64(0); off < txSize; off += types.MaxChunkSize {
		offsets = append(offsets, off)
	}
	return offsets, nil
}

type verifierError string

func (e verifierError) Error() string { return string(e) }

const errInvalidTxSize verifierError = "workers: transaction size must be positive"
