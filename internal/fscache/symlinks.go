package fscache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// SymlinkCleanupWorker recursively removes dangling symlinks under a base
// directory on a timer, so secondary
// indexes left pointing at a file the main cleanup worker already deleted
// don't accumulate indefinitely.
type SymlinkCleanupWorker struct {
	base string
	log  *logrus.Entry
}

// NewSymlinkCleanupWorker constructs a SymlinkCleanupWorker rooted at base.
func NewSymlinkCleanupWorker(base string, log *logrus.Logger) *SymlinkCleanupWorker {
	if log == nil {
		log = logrus.New()
	}
	return &SymlinkCleanupWorker{base: base, log: log.WithField("component", "fscache.symlinks")}
}

// RunOnce walks base once, removing every symlink whose target no longer
// exists.
func (w *SymlinkCleanupWorker) RunOnce() error {
	return filepath.Walk(w.base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return nil
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			if rmErr := os.Remove(path); rmErr != nil {
				w.log.WithError(rmErr).WithField("path", path).Warn("failed to remove dangling symlink")
			}
		}
		return nil
	})
}

// Run calls RunOnce on interval until ctx is cancelled.
func (w *SymlinkCleanupWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := w.RunOnce(); err != nil {
			w.log.WithError(err).Warn("symlink cleanup traversal failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
