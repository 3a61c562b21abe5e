package cacheengine

import "github.com/outrungo/outrungo/internal/cachemodel"

// storePrefetches installs each PrefetchEntry best-effort, exactly per
// spec.md §4.5: a non-blocking lock attempt per key, skipping silently
// (rather than blocking) when the key is already held by someone other than
// the triggering call itself - identified by string equality of the
// absolute path, since the entry key carries the machine-id prefix and two
// different triggering calls never share a path.
func (e *Engine) storePrefetches(prefetched []cachemodel.PrefetchEntry, triggerPath string) {
	for _, p := range prefetched {
		e.storeOnePrefetch(p, triggerPath)
	}
}

func (e *Engine) storeOnePrefetch(p cachemodel.PrefetchEntry, triggerPath string) {
	key := e.keyFor(p.Path)
	unlock, ok := e.keys.TryAcquire(key)
	if !ok {
		if p.Path != triggerPath {
			return
		}
		// The trigger path's own key lock is already held by this same
		// call (withEntry holds it while prefetch storage runs): fall
		// back to the already-locked entry directly instead of trying
		// to acquire it again, which would deadlock.
		if entry, found := e.getEntry(key); found {
			e.applyPrefetch(entry, p)
		}
		return
	}
	defer unlock()

	entry, found := e.getEntry(key)
	if !found {
		entry = &cachemodel.CacheEntry{Path: p.Path, Meta: p.Metadata, LastAccess: 0, LastUpdate: now()}
		e.setEntry(key, entry)
		e.metrics.entries.Inc()
	}
	e.applyPrefetch(entry, p)
}

func (e *Engine) applyPrefetch(entry *cachemodel.CacheEntry, p cachemodel.PrefetchEntry) {
	if p.Contents == nil {
		return
	}
	if entry.Contents != nil && !entry.Contents.Dirty {
		return // existing clean blob is never overwritten
	}
	if err := e.installBlob(entry, p.Contents); err != nil {
		e.log.WithError(err).WithField("path", p.Path).Warn("prefetch blob install failed")
	} else {
		e.metrics.prefetchesTotal.Inc()
	}
}
