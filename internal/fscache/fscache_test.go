package fscache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGetByHash(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	require.NoError(t, err)

	require.NoError(t, c.PutByHash("abcd1234", []byte("payload")))
	got, ok, err := c.GetByHash("abcd1234")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "payload", string(got))

	_, ok, err = c.GetByHash("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	want := filepath.Join(dir, "by-hash", "ab", "cd", "abcd1234")
	_, statErr := os.Stat(want)
	assert.NoError(t, statErr)
}

func TestCachePutGetChunk(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	require.NoError(t, err)

	require.NoError(t, c.PutChunk("roothash", 4096, []byte("chunkdata")))
	got, ok, err := c.GetChunk("roothash", 4096)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "chunkdata", string(got))
}

func TestLinkIndex(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, c.PutByHash("deadbeef", []byte("x")))

	indexPath := filepath.Join(dir, "by-name", "foo")
	require.NoError(t, c.LinkIndex(indexPath, "deadbeef"))

	target, err := os.Readlink(indexPath)
	require.NoError(t, err)
	assert.Equal(t, hashPath(dir, "deadbeef"), target)
}

func TestCleanupWorkerKeepsAndDeletes(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, nil)
	require.NoError(t, err)
	require.NoError(t, c.PutByHash("keepme00", []byte("keep")))
	require.NoError(t, c.PutByHash("deleteme", []byte("drop")))

	var kept, keptBytes int64
	metrics := &fakeMetrics{}
	predicate := func(ctx context.Context, path string, info os.FileInfo) bool {
		return filepath.Base(path) == "deleteme"
	}
	w := NewCleanupWorker(dir, predicate, 1, 0, metrics, nil)
	require.NoError(t, w.RunOnce(context.Background()))

	_, ok, err := c.GetByHash("deleteme")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.GetByHash("keepme00")
	require.NoError(t, err)
	assert.True(t, ok)

	kept = metrics.keptFiles
	keptBytes = metrics.keptBytes
	assert.Equal(t, int64(1), kept)
	assert.Equal(t, int64(len("keep")), keptBytes)
}

type fakeMetrics struct {
	keptFiles int64
	keptBytes int64
}

func (f *fakeMetrics) SetCacheKeptFiles(n int64) { f.keptFiles = n }
func (f *fakeMetrics) SetCacheKeptBytes(n int64) { f.keptBytes = n }

func TestSymlinkCleanupRemovesDangling(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))

	require.NoError(t, os.Remove(target))

	w := NewSymlinkCleanupWorker(dir, nil)
	require.NoError(t, w.RunOnce())

	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
}
