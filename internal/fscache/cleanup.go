package fscache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the walk batch size when none is configured: a
// modest batch keeps any one pause short enough not to starve foreground
// reads of the same directory tree.
const DefaultBatchSize = 500

// CleanupWorker walks a cache's base directory in lexicographic order,
// batched, deleting files the DeletePredicate selects and publishing
// kept-file/kept-byte totals once a full traversal completes. Counters
// reset at the start of each cycle, so a restart never publishes stale
// totals.
type CleanupWorker struct {
	base      string
	predicate DeletePredicate
	batchSize int
	pause     time.Duration
	metrics   Metrics
	log       *logrus.Entry
}

// NewCleanupWorker constructs a CleanupWorker. batchSize<=0 uses
// DefaultBatchSize.
func NewCleanupWorker(base string, predicate DeletePredicate, batchSize int, pause time.Duration, metrics Metrics, log *logrus.Logger) *CleanupWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = logrus.New()
	}
	return &CleanupWorker{
		base:      base,
		predicate: predicate,
		batchSize: batchSize,
		pause:     pause,
		metrics:   metrics,
		log:       log.WithField("component", "fscache.cleanup"),
	}
}

// RunOnce performs exactly one full traversal, batching the walk and
// pausing between batches so a long-running cleanup doesn't starve
// foreground I/O to the same volume. Running counts of kept files and
// bytes accumulate across the whole traversal and are published only once
// it completes; a fresh CleanupWorker starts its counters from zero.
func (w *CleanupWorker) RunOnce(ctx context.Context) error {
	paths, err := w.sortedPaths()
	if err != nil {
		return err
	}

	var keptFiles, keptBytes int64
	for i := 0; i < len(paths); i += w.batchSize {
		end := i + w.batchSize
		if end > len(paths) {
			end = len(paths)
		}
		for _, p := range paths[i:end] {
			info, err := os.Lstat(p)
			if err != nil {
				continue // removed concurrently; skip
			}
			if info.Mode()&os.ModeSymlink != 0 {
				keptFiles++
				continue // symlinks are handled by SymlinkCleanupWorker
			}
			if w.predicate(ctx, p, info) {
				if err := os.Remove(p); err != nil {
					w.log.WithError(err).WithField("path", p).Warn("failed to delete cache file")
				}
				continue
			}
			keptFiles++
			keptBytes += info.Size()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if w.pause > 0 && end < len(paths) {
			time.Sleep(w.pause)
		}
	}

	if w.metrics != nil {
		w.metrics.SetCacheKeptFiles(keptFiles)
		w.metrics.SetCacheKeptBytes(keptBytes)
	}
	return nil
}

// Run repeatedly calls RunOnce on interval until ctx is cancelled, draining
// cleanly on stop.
func (w *CleanupWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.WithError(err).Warn("cleanup traversal failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) sortedPaths() ([]string, error) {
	var paths []string
	err := filepath.Walk(w.base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // best-effort: skip unreadable entries rather than aborting the whole walk
		}
		if info.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
