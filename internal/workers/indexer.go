package workers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/bundle"
	"github.com/ar-io/gatewaycore/internal/metrics"
	"github.com/ar-io/gatewaycore/internal/types"
)

// IndexJob describes a root transaction whose payload is an ANS-104 bundle
// envelope and that needs every nested data item it carries
// recorded in the DataItemRootTxIndex collaborator.
type IndexJob struct {
	RootTxID     types.Identifier
	BundleOffset int64 // absolute offset of the bundle envelope's start
	ContentType  string
}

// DataItemRootTxIndexWriter is the write side of the DataItemRootTxIndex
// collaborator.
type DataItemRootTxIndexWriter interface {
	PutRootTx(ctx context.Context, dataItemID types.Identifier, rec types.RootTxRecord) error
}

// DataItemIndexer drains IndexJobs: for each, it enumerates the bundle's
// top-level entries via bundle.ListEntries and writes one RootTxRecord per
// entry, translating each item's bundle-relative offset into the absolute
// rootOffset/rootDataOffset pair the root-tx record carries.
type DataItemIndexer struct {
	queue   *Queue
	src     bundle.ByteRangeSource
	index   DataItemRootTxIndexWriter
	metrics metrics.Hooks
	log     *logrus.Entry
}

// NewDataItemIndexer constructs a DataItemIndexer. src is the byte-range
// source bundle envelopes are read from (typically the same composite data
// source the retrieval path already uses).
func NewDataItemIndexer(bufferSize, workerCount int, src bundle.ByteRangeSource, index DataItemRootTxIndexWriter, m metrics.Hooks, log *logrus.Logger) *DataItemIndexer {
	if log == nil {
		log = logrus.New()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &DataItemIndexer{
		queue:   NewQueue(bufferSize, workerCount, log, "workers.indexer"),
		src:     src,
		index:   index,
		metrics: m,
		log:     log.WithField("component", "workers.indexer"),
	}
}

func (d *DataItemIndexer) Start(ctx context.Context) { d.queue.Start(ctx) }
func (d *DataItemIndexer) Stop()                     { d.queue.Stop() }

// Submit enqueues a bundle for indexing.
func (d *DataItemIndexer) Submit(ctx context.Context, job IndexJob) error {
	return d.queue.Enqueue(ctx, func(ctx context.Context) {
		entries, err := bundle.ListEntries(ctx, d.src, job.BundleOffset)
		if err != nil {
			d.log.WithError(err).WithField("rootTx", job.RootTxID.String()).Warn("bundle index read failed")
			d.metrics.IncFailure(types.KindOf(err))
			return
		}

		for _, e := range entries {
			rec := types.RootTxRecord{
				RootTxID:    job.RootTxID,
				ContentType: job.ContentType,
			}
			rec = rec.WithOffsets(job.BundleOffset+e.EnvelopeOffset, job.BundleOffset+e.Offset)
			size := e.Size
			rec.Size = &size
			rec.DataSize = &size

			if err := d.index.PutRootTx(ctx, e.ID, rec); err != nil {
				d.log.WithError(err).WithField("dataItem", e.ID.String()).Warn("data-item index write failed")
				d.metrics.IncFailure(types.KindOf(err))
				continue
			}
			d.metrics.IncIndexed()
		}
	})
}
