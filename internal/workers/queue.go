// Package workers hosts the background queues (data importer, data-item
// indexer, verification worker, offset repair worker) that turn
// chain-discovered transactions and bundles into populated indexes, and
// that re-verify or repair records after the fact. Symlink cleanup lives
// in internal/fscache, next to the cache layout it cleans; this package
// covers the other four queues.
//
// Every queue follows the same accept-while-running, drain-on-stop
// shutdown shape: Stop closes intake, in-flight jobs finish, then Stop
// returns.
package workers

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Job is one unit of queued work. It receives the context passed to Start,
// not a per-job one, so cancelling that context reaches a job that is
// already running; Stop itself does not cancel it.
type Job func(ctx context.Context)

// Queue is a bounded channel of Jobs drained by a fixed pool of worker
// goroutines. It is the generic engine every worker in this package is
// built on.
type Queue struct {
	jobs    chan Job
	workers int
	wg      sync.WaitGroup
	log     *logrus.Entry

	closeOnce sync.Once
}

// NewQueue constructs a Queue with the given channel buffer and worker
// pool size. bufferSize<=0 makes Enqueue synchronous with a waiting
// worker; workers<=0 defaults to 1.
func NewQueue(bufferSize, workerCount int, log *logrus.Logger, component string) *Queue {
	if workerCount <= 0 {
		workerCount = 1
	}
	if bufferSize < 0 {
		bufferSize = 0
	}
	if log == nil {
		log = logrus.New()
	}
	return &Queue{
		jobs:    make(chan Job, bufferSize),
		workers: workerCount,
		log:     log.WithField("component", component),
	}
}

// Start launches the worker pool. Each worker runs until ctx is cancelled
// or the queue is stopped, at which point it finishes any job already
// pulled off the channel before returning.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.loop(ctx)
	}
}

func (q *Queue) loop(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						q.log.WithField("panic", r).Error("worker job panicked")
					}
				}()
				job(ctx)
			}()
		}
	}
}

// Enqueue submits a job, blocking until there is buffer space or the
// caller's ctx is cancelled, whichever comes first.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the job channel so no further work is accepted, then waits
// for every in-flight and already-buffered job to drain. Stop is
// idempotent.
func (q *Queue) Stop() {
	q.closeOnce.Do(func() {
		close(q.jobs)
	})
	q.wg.Wait()
}
