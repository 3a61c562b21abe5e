package cacheengine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/rpc"
	"github.com/outrungo/outrungo/internal/wire"
)

// Load takes the inter-process index lock and reads the on-disk index into
// memory. A missing or corrupt index means "start empty" - Store
// implementations already absorb that, so Load just surfaces whatever they
// return.
func (e *Engine) Load() error {
	if err := e.lock.Lock(); err != nil {
		return errors.Wrap(err, "cacheengine: acquire index lock for load")
	}
	defer e.lock.Unlock()

	loaded, err := e.store.Load()
	if err != nil {
		e.log.WithError(err).Warn("index load failed, starting with an empty cache")
		loaded = map[string]cachemodel.CacheEntry{}
	}

	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	e.entries = make(map[string]*cachemodel.CacheEntry, len(loaded))
	for k, v := range loaded {
		entryCopy := v
		e.entries[k] = &entryCopy
	}
	e.metrics.entries.Set(float64(len(e.entries)))
	return nil
}

// Sync reconciles this machine's entries against the local side's current
// metadata at startup: the local service re-reads every path and reports
// back only what changed. For each changed path this reacquires the entry,
// replaces its metadata, and adjusts cached contents per spec.md §4.5's
// sync algorithm. Finally it tells the local side which paths still carry
// a clean cached blob, so its prefetcher won't resend their contents.
func (e *Engine) Sync() error {
	cached := e.entriesForThisMachine()
	if len(cached) == 0 {
		return nil
	}

	wrapped := make(map[string]any, len(cached))
	for path, meta := range cached {
		wrapped[path] = wire.WrapMetadata(meta)
	}
	value, err := e.Client.Call(e.WorkerID, rpc.MethodGetChangedMetadata, wrapped)
	if err != nil {
		return err
	}
	rawChanged, ok := value.(map[string]any)
	if !ok {
		return nil
	}
	changed := make(map[string]cachemodel.Metadata, len(rawChanged))
	for path, v := range rawChanged {
		if meta, ok := v.(cachemodel.Metadata); ok {
			changed[path] = meta
		}
	}

	var stillClean []string
	for path, newMeta := range changed {
		e.applySyncedMetadata(path, newMeta)
	}

	prefix := e.MachineID + ":"
	e.mapMu.Lock()
	for key, entry := range e.entries {
		if strings.HasPrefix(key, prefix) && entry.Contents != nil && !entry.Contents.Dirty {
			stillClean = append(stillClean, entry.Path)
		}
	}
	e.mapMu.Unlock()

	if len(stillClean) > 0 {
		_, _ = e.Client.Call(e.WorkerID, rpc.MethodMarkPreviouslyFetchedContent, stillClean)
	}
	return nil
}

func (e *Engine) entriesForThisMachine() map[string]cachemodel.Metadata {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	prefix := e.MachineID + ":"
	out := make(map[string]cachemodel.Metadata, len(e.entries))
	for key, entry := range e.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out[entry.Path] = entry.Meta
	}
	return out
}

func (e *Engine) applySyncedMetadata(path string, newMeta cachemodel.Metadata) {
	key := e.keyFor(path)
	unlock := e.keys.Acquire(key)
	defer unlock()

	entry, ok := e.getEntry(key)
	if !ok {
		return
	}
	entry.Meta = newMeta
	entry.LastUpdate = now()

	switch {
	case newMeta.IsErr():
		entry.Contents = nil
	case newMeta.Attr != nil && (newMeta.Attr.Mode&0o170000) != 0o100000:
		entry.Contents = nil
	default:
		if entry.Contents != nil {
			entry.Contents.Dirty = true
		}
	}
}

// Save takes the inter-process index lock, merges with whatever is
// currently on disk (by LastUpdate), runs the LRU pass against Budget,
// garbage-collects orphaned blob files, and atomically rewrites the index.
func (e *Engine) Save() error {
	if err := e.lock.Lock(); err != nil {
		return errors.Wrap(err, "cacheengine: acquire index lock for save")
	}
	defer e.lock.Unlock()

	onDisk, err := e.store.Load()
	if err != nil {
		e.log.WithError(err).Warn("index re-read before save failed; skipping merge step")
		onDisk = nil
	}

	e.mapMu.Lock()
	for key, diskEntry := range onDisk {
		mem, exists := e.entries[key]
		if !exists || diskEntry.LastUpdate > mem.LastUpdate {
			copyEntry := diskEntry
			e.entries[key] = &copyEntry
		}
	}
	merged := e.entries
	e.mapMu.Unlock()

	e.runLRU(merged)
	e.gcOrphanBlobs(merged)

	snapshot := e.snapshotEntries()
	if err := e.store.Save(snapshot); err != nil {
		return errors.Wrap(err, "cacheengine: save index")
	}
	e.metrics.entries.Set(float64(len(snapshot)))
	return nil
}

// runLRU sorts entries ascending by LastAccess and, oldest first, drops
// contents (not the whole entry) while the byte budget is exceeded, then
// deletes whole entries while the count budget is exceeded. Contents are
// always shed before entries, so the least recently used entries lose
// their cached bytes first.
func (e *Engine) runLRU(entries map[string]*cachemodel.CacheEntry) {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return entries[keys[i]].LastAccess < entries[keys[j]].LastAccess
	})

	var totalBytes int64
	for _, k := range keys {
		if entries[k].Contents != nil {
			totalBytes += entries[k].Contents.Size
		}
	}

	if e.Budget.Bytes > 0 {
		for _, k := range keys {
			if totalBytes <= e.Budget.Bytes {
				break
			}
			entry := entries[k]
			if entry.Contents == nil {
				continue
			}
			totalBytes -= entry.Contents.Size
			entry.Contents = nil
		}
	}

	if e.Budget.Entries > 0 {
		for _, k := range keys {
			if len(entries) <= e.Budget.Entries {
				break
			}
			delete(entries, k)
		}
	}
}

// gcOrphanBlobs deletes every file under the cache directory's contents/
// subdirectory not referenced by any surviving entry's ContentsBlob. It
// never touches CacheDir's root, where the index and its lock file live, so
// a Save never deletes the index it's about to (re)write. A blob already
// removed out of band is tolerated.
func (e *Engine) gcOrphanBlobs(entries map[string]*cachemodel.CacheEntry) {
	referenced := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.Contents != nil {
			referenced[entry.Contents.StoragePath] = struct{}{}
		}
	}

	dir := contentsDir(e.CacheDir)
	files, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		full := filepath.Join(dir, f.Name())
		if _, ok := referenced[full]; !ok {
			_ = os.Remove(full)
		}
	}
}
