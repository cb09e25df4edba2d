package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ar-io/gatewaycore/internal/fscache"
	"github.com/ar-io/gatewaycore/internal/logging"
	"github.com/ar-io/gatewaycore/internal/metrics"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Operate on the filesystem data cache"}
	cmd.AddCommand(cacheGCCmd())
	return cmd
}

func cacheGCCmd() *cobra.Command {
	var dir string
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Run one cache cleanup traversal, deleting files older than --max-age",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheGC(dir, maxAge)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./data/cache", "cache base directory")
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "delete files whose mtime is older than this (0 disables age-based deletion)")
	return cmd
}

func runCacheGC(dir string, maxAge time.Duration) error {
	log := logging.New(logging.Options{Level: "info"})
	m := metrics.NewPrometheus()

	predicate := func(ctx context.Context, path string, info os.FileInfo) bool {
		if maxAge <= 0 {
			return false
		}
		return time.Since(info.ModTime()) > maxAge
	}

	worker := fscache.NewCleanupWorker(dir, predicate, fscache.DefaultBatchSize, 0, m, log)
	if err := worker.RunOnce(context.Background()); err != nil {
		return fmt.Errorf("cache gc: %w", err)
	}
	fmt.Fprintln(os.Stdout, "cache gc: traversal complete")
	return nil
}
