package workers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/metrics"
	"github.com/ar-io/gatewaycore/internal/types"
)

// RootTxResolver is satisfied by *rootindex.CompositeIndex: it tries every
// backend in priority order and returns the best record found, complete or
// not.
type RootTxResolver interface {
	GetRootTx(ctx context.Context, id types.Identifier) (*types.RootTxRecord, error)
}

// PendingOffsetsSource lists data-item ids whose last-known RootTxRecord was
// incomplete (a simple record, offsets unknown) and so is a candidate for
// repair once a slower backend (GraphQL traversal, SQLite backfill) has had
// a chance to learn its offsets.
type PendingOffsetsSource interface {
	PendingOffsets(ctx context.Context, limit int) ([]types.Identifier, error)
}

// RepairJob names one data item to re-resolve.
type RepairJob struct {
	DataItemID types.Identifier
}

// OffsetRepairWorker is the offset repair queue:
// it periodically re-resolves data items whose root-tx record is still
// missing offsets, and persists any record that has since become complete.
type OffsetRepairWorker struct {
	queue    *Queue
	resolver RootTxResolver
	writer   DataItemRootTxIndexWriter
	metrics  metrics.Hooks
	log      *logrus.Entry
}

// NewOffsetRepairWorker constructs an OffsetRepairWorker.
func NewOffsetRepairWorker(bufferSize, workerCount int, resolver RootTxResolver, writer DataItemRootTxIndexWriter, m metrics.Hooks, log *logrus.Logger) *OffsetRepairWorker {
	if log == nil {
		log = logrus.New()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &OffsetRepairWorker{
		queue:    NewQueue(bufferSize, workerCount, log, "workers.offsetrepair"),
		resolver: resolver,
		writer:   writer,
		metrics:  m,
		log:      log.WithField("component", "workers.offsetrepair"),
	}
}

func (o *OffsetRepairWorker) Start(ctx context.Context) { o.queue.Start(ctx) }
func (o *OffsetRepairWorker) Stop()                     { o.queue.Stop() }

// Submit enqueues a single data item for re-resolution.
func (o *OffsetRepairWorker) Submit(ctx context.Context, job RepairJob) error {
	return o.queue.Enqueue(ctx, func(ctx context.Context) {
		rec, err := o.resolver.GetRootTx(ctx, job.DataItemID)
		if err != nil {
			o.log.WithError(err).WithField("dataItem", job.DataItemID.String()).Debug("offset repair resolve failed")
			o.metrics.IncFailure(types.KindOf(err))
			return
		}
		if rec == nil || !rec.Complete {
			return // still no offsets available; a later sweep may succeed
		}
		if err := o.writer.PutRootTx(ctx, job.DataItemID, *rec); err != nil {
			o.log.WithError(err).WithField("dataItem", job.DataItemID.String()).Warn("offset repair write failed")
			o.metrics.IncFailure(types.KindOf(err))
			return
		}
		o.metrics.IncOffsetRepaired()
	})
}

// SweepOnce drains up to limit pending offsets from src and submits each
// for repair, returning once all have been enqueued (not once all have
// completed; repair happens asynchronously on the worker pool).
func (o *OffsetRepairWorker) SweepOnce(ctx context.Context, src PendingOffsetsSource, limit int) error {
	ids, err := src.PendingOffsets(ctx, limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := o.Submit(ctx, RepairJob{DataItemID: id}); err != nil {
			return err
		}
	}
	return nil
}
