package workers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ar-io/gatewaycore/internal/metrics"
	"github.com/ar-io/gatewaycore/internal/types"
)

// TxImportJob describes a transaction the (out-of-scope) chain importer
// has discovered but not yet recorded in the ContiguousDataIndex
// collaborator. Schema ownership stays with the SQLite-backed indexer;
// this core only hands it a resolved record through the narrow interface
// below.
type TxImportJob struct {
	TxID        types.Identifier
	DataRoot    types.Identifier
	Size        int64
	ContentType string
}

// ContiguousDataIndexWriter is the write side of the ContiguousDataIndex
// collaborator.
type ContiguousDataIndexWriter interface {
	PutContiguousData(ctx context.Context, job TxImportJob) error
}

// DataImporter drains TxImportJobs onto a ContiguousDataIndexWriter
// through a bounded worker pool, so a burst of newly-imported transactions
// doesn't serialize against the chain importer that discovered them.
type DataImporter struct {
	queue   *Queue
	index   ContiguousDataIndexWriter
	metrics metrics.Hooks
	log     *logrus.Entry
}

// NewDataImporter constructs a DataImporter backed by a fresh Queue with
// workerCount goroutines.
func NewDataImporter(bufferSize, workerCount int, index ContiguousDataIndexWriter, m metrics.Hooks, log *logrus.Logger) *DataImporter {
	if log == nil {
		log = logrus.New()
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &DataImporter{
		queue:   NewQueue(bufferSize, workerCount, log, "workers.importer"),
		index:   index,
		metrics: m,
		log:     log.WithField("component", "workers.importer"),
	}
}

// Start launches the underlying worker pool.
func (d *DataImporter) Start(ctx context.Context) { d.queue.Start(ctx) }

// Stop drains and shuts the worker pool down.
func (d *DataImporter) Stop() { d.queue.Stop() }

// Submit enqueues a transaction for import, blocking only on buffer space.
func (d *DataImporter) Submit(ctx context.Context, job TxImportJob) error {
	return d.queue.Enqueue(ctx, func(ctx context.Context) {
		if err := d.index.PutContiguousData(ctx, job); err != nil {
			d.log.WithError(err).WithField("tx", job.TxID.String()).Warn("import failed")
			d.metrics.IncFailure(types.KindOf(err))
			return
		}
		d.metrics.IncImported()
	})
}
