// Package keylock provides a reference-counted map of per-key mutexes: the
// direct Go translation of the original implementation's LockIndex. Exactly
// one goroutine at a time can hold the lock for a given key; once the last
// holder releases it, the key's entry is removed from the map so the
// structure never grows without bound.
package keylock

import "sync"

type entry struct {
	mu       sync.Mutex
	refcount int
}

// Index is a reference-counted map of per-key mutexes, safe for concurrent
// use. The zero value is ready to use.
type Index struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func (idx *Index) ensure() {
	if idx.entries == nil {
		idx.entries = make(map[string]*entry)
	}
}

func (idx *Index) take(key string) *entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.ensure()
	e, ok := idx.entries[key]
	if !ok {
		e = &entry{}
		idx.entries[key] = e
	}
	e.refcount++
	return e
}

func (idx *Index) release(key string, e *entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	e.refcount--
	if e.refcount == 0 {
		delete(idx.entries, key)
	}
}

// Acquire blocks until key's lock is held and returns a function that
// releases it.
func (idx *Index) Acquire(key string) func() {
	e := idx.take(key)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		idx.release(key, e)
	}
}

// TryAcquire attempts to acquire key's lock without blocking. If it
// succeeds, ok is true and unlock releases it; if some other goroutine
// already holds it, ok is false and unlock is nil.
func (idx *Index) TryAcquire(key string) (unlock func(), ok bool) {
	e := idx.take(key)
	if !e.mu.TryLock() {
		idx.release(key, e)
		return nil, false
	}
	return func() {
		e.mu.Unlock()
		idx.release(key, e)
	}, true
}
