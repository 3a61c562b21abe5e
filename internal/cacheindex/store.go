// Package cacheindex persists the cache engine's entry map between
// sessions. Two implementations share the Store interface: a bbolt-backed
// store (the default, grounded on the teacher's backend/cache persistent
// storage engine) and a literal JSON-file store matching the on-disk
// layout the distilled specification describes directly (index.json plus
// an index.lock advisory lock file).
package cacheindex

import "github.com/outrungo/outrungo/internal/cachemodel"

// Store loads and saves the full set of cache entries, keyed by the
// "<machine-id>:<path>" entry key (see the glossary). Implementations do
// not perform their own cross-process locking - internal/cacheengine holds
// a gofrs/flock advisory lock around every Load/Save call.
type Store interface {
	// Load reads every persisted entry. A missing index is not an error:
	// implementations return an empty map.
	Load() (map[string]cachemodel.CacheEntry, error)
	// Save atomically replaces the persisted index with entries.
	Save(entries map[string]cachemodel.CacheEntry) error
	// Close releases any open handle (a bbolt DB file, for example).
	Close() error
}
