// Package cacheengine implements the remote side's cache: the entry map
// keyed by (machine id, path), the key-locking discipline that makes
// concurrent file system operations safe, the LRU/GC pass run at session
// shutdown, and the on-disk index lifecycle (Load/Sync/Save). Grounded on
// backend/cache/cache.go's Fs-level metadata caching and
// backend/cache/storage_persistent.go's persistence lifecycle, generalized
// from rclone's remote-object caching semantics to this system's
// session-scoped entry lifecycle (filesystem/caching/cache.py,
// filesystem/caching/service.py in the original implementation).
package cacheengine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/cacheindex"
	"github.com/outrungo/outrungo/internal/keylock"
	"github.com/outrungo/outrungo/internal/rpc"
)

// DefaultCacheablePaths is the read-mostly system directory list spec.md
// §4.5 names as the default cacheability predicate.
var DefaultCacheablePaths = []string{
	"/bin", "/sbin", "/lib", "/lib32", "/lib64", "/etc", "/opt", "/usr",
}

// Budget bounds how much the LRU pass at Save keeps: at most Entries cache
// entries and at most Bytes of cached content.
type Budget struct {
	Entries int
	Bytes   int64
}

// Engine is the remote-side cache: an in-memory entry map guarded by
// per-key locks, backed by an on-disk index and a blob directory.
type Engine struct {
	Client         *rpc.Client
	WorkerID       int
	MachineID      string
	CacheDir       string
	CacheablePaths []string
	Budget         Budget

	store     cacheindex.Store
	indexPath string
	lock      *flock.Flock

	mapMu   sync.Mutex
	entries map[string]*cachemodel.CacheEntry

	keys keylock.Index

	// workerIDs is the pool of rpc.Client worker ids the engine's own
	// backend calls draw from, one per concurrently in-flight fetch -
	// a net.Conn is not safe for concurrent use, so two cacheable-path
	// lookups racing on different keys must never share a connection.
	workerIDs chan int

	metrics *Metrics
	log     *logrus.Entry
}

// NewEngine builds an Engine. indexLockPath is the advisory lock file
// guarding Load/Save against other processes touching the same index.
// workers bounds how many of the engine's own backend calls may be
// in flight at once (a value <= 0 defaults to 8); WorkerID is reserved
// for the startup-only Load/Sync sequence, which never overlaps with
// concurrent file system traffic.
func NewEngine(client *rpc.Client, store cacheindex.Store, cacheDir, machineID, indexLockPath string, budget Budget, workers int) *Engine {
	if workers <= 0 {
		workers = 8
	}
	cacheable := append([]string(nil), DefaultCacheablePaths...)
	pool := make(chan int, workers)
	for i := 1; i <= workers; i++ {
		pool <- i
	}
	return &Engine{
		Client:         client,
		WorkerID:       0,
		MachineID:      machineID,
		CacheDir:       cacheDir,
		CacheablePaths: cacheable,
		Budget:         budget,
		store:          store,
		lock:           flock.New(indexLockPath),
		entries:        make(map[string]*cachemodel.CacheEntry),
		workerIDs:      pool,
		metrics:        newMetrics(),
		log:            logrus.WithField("component", "cacheengine"),
	}
}

// acquireWorker reserves one of the engine's backend-call worker ids,
// blocking until one is free.
func (e *Engine) acquireWorker() int {
	return <-e.workerIDs
}

func (e *Engine) releaseWorker(id int) {
	e.workerIDs <- id
}

// keyFor builds the (machine id, path) entry key this Engine's entry map
// and the on-disk index are both keyed by.
func (e *Engine) keyFor(path string) string {
	return e.MachineID + ":" + path
}

func (e *Engine) getEntry(key string) (*cachemodel.CacheEntry, bool) {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	entry, ok := e.entries[key]
	return entry, ok
}

func (e *Engine) setEntry(key string, entry *cachemodel.CacheEntry) {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	e.entries[key] = entry
}

func (e *Engine) deleteEntry(key string) {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	delete(e.entries, key)
}

func (e *Engine) snapshotEntries() map[string]cachemodel.CacheEntry {
	e.mapMu.Lock()
	defer e.mapMu.Unlock()
	out := make(map[string]cachemodel.CacheEntry, len(e.entries))
	for k, v := range e.entries {
		out[k] = *v
	}
	return out
}

func now() int64 { return time.Now().Unix() }

// contentsDir is where content blobs live, per spec.md §6's on-disk layout:
// CacheDir holds the index/lock files at its root and a contents/
// subdirectory for blob files, so gcOrphanBlobs never has to share a
// directory listing with the index it must not touch.
func contentsDir(cacheDir string) string {
	return filepath.Join(cacheDir, "contents")
}

func newBlobPath(cacheDir string) string {
	return filepath.Join(contentsDir(cacheDir), uuid.New().String())
}

func writeBlob(cacheDir string, data []byte) (string, error) {
	if err := os.MkdirAll(contentsDir(cacheDir), 0o755); err != nil {
		return "", err
	}
	p := newBlobPath(cacheDir)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", err
	}
	return p, nil
}
