package cacheindex

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/outrungo/outrungo/internal/cachemodel"
)

// JSONStore persists the index exactly the way spec.md §6 describes it:
// a single index.json file, written via a temp-file-then-rename for atomic
// install. Selected via cachemode.IndexFormatJSON when literal on-disk
// fidelity to the specification's described layout matters more than the
// transactional guarantees BoltStore gives.
type JSONStore struct {
	path string
}

// OpenJSONStore returns a JSONStore that reads/writes path (conventionally
// named index.json inside the cache directory).
func OpenJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

type jsonEntry struct {
	Path       string                 `json:"path"`
	Meta       jsonMetadata           `json:"meta"`
	LastAccess int64                  `json:"last_access"`
	LastUpdate int64                  `json:"last_update"`
	Contents   *cachemodel.ContentsBlob `json:"contents,omitempty"`
}

type jsonMetadata struct {
	Attr *cachemodel.Attributes  `json:"attr,omitempty"`
	Link *string                 `json:"link,omitempty"`
	Err  *cachemodel.WireError   `json:"err,omitempty"`
}

// Load implements Store. A missing file is treated as an empty index, not
// an error - matching spec.md's "missing index means start empty".
func (s *JSONStore) Load() (map[string]cachemodel.CacheEntry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]cachemodel.CacheEntry{}, nil
		}
		return nil, errors.Wrap(err, "cacheindex: read index.json")
	}
	var raw map[string]jsonEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		// Corrupt index: start empty rather than fail session startup.
		return map[string]cachemodel.CacheEntry{}, nil
	}
	entries := make(map[string]cachemodel.CacheEntry, len(raw))
	for key, je := range raw {
		entries[key] = cachemodel.CacheEntry{
			Path:       je.Path,
			Meta:       cachemodel.Metadata{Attr: je.Meta.Attr, Link: je.Meta.Link, Err: je.Meta.Err},
			LastAccess: je.LastAccess,
			LastUpdate: je.LastUpdate,
			Contents:   je.Contents,
		}
	}
	return entries, nil
}

// Save implements Store via write-temp-then-rename, the same atomic-install
// pattern spec.md §4.5 step 4 describes.
func (s *JSONStore) Save(entries map[string]cachemodel.CacheEntry) error {
	raw := make(map[string]jsonEntry, len(entries))
	for key, e := range entries {
		raw[key] = jsonEntry{
			Path:       e.Path,
			Meta:       jsonMetadata{Attr: e.Meta.Attr, Link: e.Meta.Link, Err: e.Meta.Err},
			LastAccess: e.LastAccess,
			LastUpdate: e.LastUpdate,
			Contents:   e.Contents,
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cacheindex: marshal index.json")
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "index.json.tmp-*")
	if err != nil {
		return errors.Wrap(err, "cacheindex: create temp index file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "cacheindex: write temp index file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "cacheindex: close temp index file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "cacheindex: rename temp index file")
	}
	return nil
}

// Close implements Store; JSONStore holds no persistent handle.
func (s *JSONStore) Close() error { return nil }
