// Package fscache implements the content-addressed filesystem data
// cache: sharded by-hash storage keyed by content hash, a by-dataroot
// chunk cache, and symlinked secondary indexes. Eviction is not inline;
// a separate retention-driven cleanup worker walks the tree.
package fscache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Cache is a content-addressed filesystem cache over a base directory.
type Cache struct {
	base string
	log  *logrus.Entry
}

// New constructs a Cache rooted at base, creating it if necessary.
func New(base string, log *logrus.Logger) (*Cache, error) {
	if log == nil {
		log = logrus.New()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &Cache{base: base, log: log.WithField("component", "fscache")}, nil
}

// hashPath returns the sharded by-hash/<first-two>/<next-two>/<hash>
// path. Hashes shorter than 4 characters fall back to the base-level
// by-hash directory.
func hashPath(base, hash string) string {
	if len(hash) < 4 {
		return filepath.Join(base, "by-hash", hash)
	}
	return filepath.Join(base, "by-hash", hash[0:2], hash[2:4], hash)
}

// dataRootChunkPath returns the by-dataroot/<2>/<2>/<dataRoot>/<relativeOffset>
// path for a single cached chunk.
func dataRootChunkPath(base, dataRoot string, relativeOffset int64) string {
	var dir string
	if len(dataRoot) < 4 {
		dir = filepath.Join(base, "by-dataroot", dataRoot)
	} else {
		dir = filepath.Join(base, "by-dataroot", dataRoot[0:2], dataRoot[2:4], dataRoot)
	}
	return filepath.Join(dir, strconv.FormatInt(relativeOffset, 10))
}

// PutByHash writes data under its content hash, creating parent
// directories as needed. Writes are atomic via a temp-file-then-rename, the
// same pattern internal/cdb's writer uses for its finalize step.
func (c *Cache) PutByHash(hash string, data []byte) error {
	p := hashPath(c.base, hash)
	return atomicWrite(p, data)
}

// GetByHash reads back content previously stored under hash.
func (c *Cache) GetByHash(hash string) ([]byte, bool, error) {
	b, err := os.ReadFile(hashPath(c.base, hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// PutChunk caches a single chunk by (dataRoot, relativeOffset).
func (c *Cache) PutChunk(dataRoot string, relativeOffset int64, data []byte) error {
	return atomicWrite(dataRootChunkPath(c.base, dataRoot, relativeOffset), data)
}

// GetChunk reads back a cached chunk, if present.
func (c *Cache) GetChunk(dataRoot string, relativeOffset int64) ([]byte, bool, error) {
	b, err := os.ReadFile(dataRootChunkPath(c.base, dataRoot, relativeOffset))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// LinkIndex creates (or replaces) a symlink at indexPath pointing at the
// content identified by hash in the by-hash namespace; secondary indexes
// are all symlinks into by-hash rather than copies.
func (c *Cache) LinkIndex(indexPath, hash string) error {
	target := hashPath(c.base, hash)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(indexPath)
	return os.Symlink(target, indexPath)
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Unique temp name so concurrent writers of the same hash never share
	// a partially-written file; the loser's rename just overwrites the
	// same final bytes.
	tmp := path + ".tmp-" + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// DeletePredicate decides whether a single file should be deleted during a
// cleanup traversal.
type DeletePredicate func(ctx context.Context, path string, info os.FileInfo) bool

// Metrics receives the running totals a cleanup cycle accumulates.
type Metrics interface {
	SetCacheKeptFiles(n int64)
	SetCacheKeptBytes(n int64)
}
