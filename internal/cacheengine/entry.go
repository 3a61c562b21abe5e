package cacheengine

import (
	"os"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/errkind"
	"github.com/outrungo/outrungo/internal/rpc"
)

// withEntry is the locked-entry scope spec.md §4.5 describes: acquire the
// per-key mutex, install a fresh entry on first access (fetching metadata,
// optionally with prefetch), otherwise bump LastAccess on the existing
// entry, and return it still under lock alongside the unlock function the
// caller must call exactly once.
func (e *Engine) withEntry(path string, withPrefetch bool) (*cachemodel.CacheEntry, func(), error) {
	key := e.keyFor(path)
	unlock := e.keys.Acquire(key)

	if entry, ok := e.getEntry(key); ok {
		entry.Touch(now())
		e.metrics.hitsTotal.Inc()
		return entry, unlock, nil
	}

	e.metrics.missesTotal.Inc()
	meta, prefetched, err := e.fetchMetadata(path, withPrefetch)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	entry := &cachemodel.CacheEntry{Path: path, Meta: meta, LastAccess: now(), LastUpdate: now()}
	e.setEntry(key, entry)
	e.metrics.entries.Inc()

	if len(prefetched) > 0 {
		e.storePrefetches(prefetched, path)
	}
	return entry, unlock, nil
}

func (e *Engine) fetchMetadata(path string, withPrefetch bool) (cachemodel.Metadata, []cachemodel.PrefetchEntry, error) {
	id := e.acquireWorker()
	defer e.releaseWorker(id)

	if withPrefetch {
		value, err := e.Client.Call(id, rpc.MethodGetMetadataPrefetch, path)
		if err != nil {
			return cachemodel.Metadata{}, nil, err
		}
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return cachemodel.Metadata{}, nil, &errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedMetadataPrefetchReply"}
		}
		meta, _ := pair[0].(cachemodel.Metadata)
		rawEntries, _ := pair[1].([]any)
		entries := make([]cachemodel.PrefetchEntry, 0, len(rawEntries))
		for _, re := range rawEntries {
			if pe, ok := re.(cachemodel.PrefetchEntry); ok {
				entries = append(entries, pe)
			}
		}
		return meta, entries, nil
	}
	value, err := e.Client.Call(id, rpc.MethodGetMetadata, path)
	if err != nil {
		return cachemodel.Metadata{}, nil, err
	}
	meta, ok := value.(cachemodel.Metadata)
	if !ok {
		return cachemodel.Metadata{}, nil, &errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedMetadataReply"}
	}
	return meta, nil, nil
}

// Metadata returns path's attributes (write bits cleared) and symlink
// target, re-raising any error the cached metadata carries.
func (e *Engine) Metadata(path string) (cachemodel.Attributes, *string, error) {
	entry, unlock, err := e.withEntry(path, true)
	if err != nil {
		return cachemodel.Attributes{}, nil, err
	}
	defer unlock()

	if entry.Meta.IsErr() {
		return cachemodel.Attributes{}, nil, entry.Meta.Err.ToError()
	}
	return entry.Meta.Attr.AsReadOnly(), entry.Meta.Link, nil
}

// OpenContents returns a read-only *os.File for path's cached content,
// refreshing the blob first if it is absent or dirty, and retrying once if
// the blob has disappeared from disk out of band.
func (e *Engine) OpenContents(path string) (*os.File, error) {
	entry, unlock, err := e.withEntry(path, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if entry.Contents == nil || entry.Contents.Dirty {
		if err := e.refreshContents(entry, path); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(entry.Contents.StoragePath)
	if err == nil {
		return f, nil
	}
	if !os.IsNotExist(err) {
		return nil, errkind.FromOSError(err)
	}

	// Blob disappeared from disk between lookup and open: force one
	// refresh and retry.
	if err := e.forceRefreshContents(entry, path); err != nil {
		return nil, err
	}
	f, err = os.Open(entry.Contents.StoragePath)
	if err != nil {
		return nil, &errkind.Error{Kind: errkind.IOError, Class: "BlobMissingAfterRefresh", Args: []any{path}}
	}
	return f, nil
}

func (e *Engine) refreshContents(entry *cachemodel.CacheEntry, path string) error {
	if entry.Contents != nil && entry.Contents.Dirty {
		return e.conditionalRefresh(entry, path)
	}
	return e.forceRefreshContents(entry, path)
}

func (e *Engine) conditionalRefresh(entry *cachemodel.CacheEntry, path string) error {
	id := e.acquireWorker()
	defer e.releaseWorker(id)
	value, err := e.Client.Call(id, rpc.MethodReadFileConditional, path, entry.Contents.Checksum)
	if err != nil {
		return err
	}
	if value == nil {
		entry.Contents.Dirty = false
		entry.Touch(now())
		return nil
	}
	fc, ok := value.(cachemodel.FileContents)
	if !ok {
		return &errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedFileContentsReply"}
	}
	return e.installBlob(entry, &fc)
}

func (e *Engine) forceRefreshContents(entry *cachemodel.CacheEntry, path string) error {
	id := e.acquireWorker()
	defer e.releaseWorker(id)
	value, err := e.Client.Call(id, rpc.MethodReadFile, path)
	if err != nil {
		return err
	}
	fc, ok := value.(cachemodel.FileContents)
	if !ok {
		return &errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedFileContentsReply"}
	}
	return e.installBlob(entry, &fc)
}

func (e *Engine) installBlob(entry *cachemodel.CacheEntry, fc *cachemodel.FileContents) error {
	raw, err := fc.Decompress()
	if err != nil {
		return errkind.FromOSError(err)
	}
	storagePath, err := writeBlob(e.CacheDir, raw)
	if err != nil {
		return errkind.FromOSError(err)
	}
	if entry.Contents != nil && entry.Contents.StoragePath != "" {
		_ = os.Remove(entry.Contents.StoragePath)
	} else {
		e.metrics.cachedBytes.Add(0)
	}
	entry.Contents = &cachemodel.ContentsBlob{
		StoragePath: storagePath,
		Size:        fc.Size,
		Checksum:    fc.Checksum,
		Dirty:       false,
	}
	entry.Touch(now())
	e.metrics.cachedBytes.Add(float64(fc.Size))
	return nil
}
