package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleManifest = `{
  "manifest": "arweave/paths",
  "version": "0.1.0",
  "index": {"id": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaA"},
  "paths": {
    "index.html": {"id": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaA"},
    "about.html": {"id": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbA"}
  }
}`

func TestManifestResolve(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	id, err := m.Resolve("about.html")
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbA", id.String())

	id, err = m.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaA", id.String())
}

func TestManifestResolveMissingPathFallsBackToIndex(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleManifest))
	require.NoError(t, err)

	id, err := m.Resolve("nonexistent.html")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaA", id.String())
}

func TestManifestResolveNoIndexNotFound(t *testing.T) {
	m := &Manifest{Paths: map[string]PathEntry{}}
	_, err := m.Resolve("missing")
	assert.Error(t, err)
}
