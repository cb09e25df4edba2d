// Package manifest resolves a path segment inside an Arweave path
// manifest to the embedded identifier it points at.
package manifest

import (
	"encoding/json"
	"io"

	"github.com/ar-io/gatewaycore/internal/types"
)

// PathEntry is one entry under a manifest's "paths" object.
type PathEntry struct {
	ID string `json:"id"`
}

// Manifest is an Arweave path manifest (the "arweave/paths" document
// format): a map of path segments to transaction/data-item ids, plus an
// optional index entry used when the requested path is empty.
type Manifest struct {
	ManifestType string               `json:"manifest"`
	Version      string               `json:"version"`
	Index        *PathEntry           `json:"index,omitempty"`
	Paths        map[string]PathEntry `json:"paths"`
}

// Parse streams a manifest from r. The manifest is small by construction
// (a path index, not the data it points to), but this still decodes
// directly off the reader rather than requiring io.ReadAll first.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, types.Wrap(types.InvalidInput, "manifest.Parse", err)
	}
	return &m, nil
}

// Resolve maps a request path to the identifier it names. An empty path
// resolves through Index, if present. A path absent from Paths and with no
// Index configured is a NotFound.
func (m *Manifest) Resolve(path string) (types.Identifier, error) {
	if path == "" {
		if m.Index == nil {
			return types.Identifier{}, types.ErrNotFound
		}
		return types.ParseIdentifier(m.Index.ID)
	}
	entry, ok := m.Paths[path]
	if !ok {
		if m.Index != nil {
			return types.ParseIdentifier(m.Index.ID)
		}
		return types.Identifier{}, types.ErrNotFound
	}
	return types.ParseIdentifier(entry.ID)
}
