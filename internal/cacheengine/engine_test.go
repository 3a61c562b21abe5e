package cacheengine

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outrungo/outrungo/internal/cacheindex"
	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/errkind"
	"github.com/outrungo/outrungo/internal/rpc"
)

// fakeBackend is a minimal in-process stand-in for the local-side services
// an Engine calls over RPC, letting these tests exercise real wire framing
// without a FUSE mount or an actual remote machine.
type fakeBackend struct {
	token [16]byte

	mu          sync.Mutex
	metadataCalls int32
	contents    map[string][]byte
	attrs       map[string]cachemodel.Attributes
}

func newFakeBackend(t *testing.T) (*fakeBackend, *rpc.Client, func()) {
	t.Helper()
	token := [16]byte{7}
	fb := &fakeBackend{token: token, contents: map[string][]byte{}, attrs: map[string]cachemodel.Attributes{}}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := rpc.NewServer(token, 4)
	srv.Register(rpc.MethodGetMetadata, func(args []any) (any, error) {
		path, _ := args[0].(string)
		return fb.getMetadata(path), nil
	})
	srv.Register(rpc.MethodGetMetadataPrefetch, func(args []any) (any, error) {
		path, _ := args[0].(string)
		atomic.AddInt32(&fb.metadataCalls, 1)
		return []any{fb.getMetadata(path), []any{}}, nil
	})
	srv.Register(rpc.MethodReadFile, func(args []any) (any, error) {
		path, _ := args[0].(string)
		fb.mu.Lock()
		raw, ok := fb.contents[path]
		fb.mu.Unlock()
		if !ok {
			return nil, &errkind.Error{Kind: errkind.NotFound, Class: "FileNotFoundError"}
		}
		fc, err := cachemodel.NewFileContents(raw)
		if err != nil {
			return nil, err
		}
		return *fc, nil
	})
	srv.Register(rpc.MethodReadFileConditional, func(args []any) (any, error) {
		path, _ := args[0].(string)
		fb.mu.Lock()
		raw, ok := fb.contents[path]
		fb.mu.Unlock()
		if !ok {
			return nil, &errkind.Error{Kind: errkind.NotFound, Class: "FileNotFoundError"}
		}
		fc, err := cachemodel.NewFileContents(raw)
		if err != nil {
			return nil, err
		}
		return *fc, nil
	})

	go func() { _ = srv.Serve(l) }()
	client := rpc.NewClient(l.Addr().String(), token)
	return fb, client, func() { _ = l.Close(); _ = client.Close() }
}

func (fb *fakeBackend) getMetadata(path string) cachemodel.Metadata {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	attr, ok := fb.attrs[path]
	if !ok {
		return cachemodel.NewMetadataErr(&errkind.Error{Kind: errkind.NotFound, Class: "FileNotFoundError"})
	}
	return cachemodel.NewMetadataAttr(attr, nil)
}

func (fb *fakeBackend) setFile(path string, mode uint32, data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.attrs[path] = cachemodel.Attributes{Mode: mode, Size: int64(len(data)), Nlink: 1}
	fb.contents[path] = data
}

func newTestEngine(t *testing.T, client *rpc.Client, budget Budget) *Engine {
	t.Helper()
	dir := t.TempDir()
	store := cacheindex.OpenJSONStore(filepath.Join(dir, "index.json"))
	e := NewEngine(client, store, dir, "machine-1", filepath.Join(dir, "index.lock"), budget, 4)
	e.CacheablePaths = []string{"/bin", "/etc"}
	require.NoError(t, e.Load())
	return e
}

func TestMetadataNotFoundSurfacesAsError(t *testing.T) {
	fb, client, stop := newFakeBackend(t)
	defer stop()
	_ = fb
	e := newTestEngine(t, client, Budget{})

	_, _, err := e.Metadata("/bin/missing")
	require.Error(t, err)
	ke, ok := err.(*errkind.Error)
	require.True(t, ok)
	assert.Equal(t, errkind.NotFound, ke.Kind)
}

func TestMetadataReturnsReadOnlyAttributes(t *testing.T) {
	fb, client, stop := newFakeBackend(t)
	defer stop()
	fb.setFile("/bin/ls", 0o100755, []byte("binary"))
	e := newTestEngine(t, client, Budget{})

	attr, link, err := e.Metadata("/bin/ls")
	require.NoError(t, err)
	assert.Nil(t, link)
	assert.Equal(t, int64(len("binary")), attr.Size)
	assert.Equal(t, uint32(0o100555), attr.Mode)
}

// TestConcurrentMetadataLookupsDedupFetch exercises spec.md §8's "concurrent
// metadata dedup" scenario: many goroutines racing to look up the same
// not-yet-cached path must result in exactly one backend fetch.
func TestConcurrentMetadataLookupsDedupFetch(t *testing.T) {
	fb, client, stop := newFakeBackend(t)
	defer stop()
	fb.setFile("/bin/dup", 0o100644, []byte("x"))
	e := newTestEngine(t, client, Budget{})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := e.Metadata("/bin/dup")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fb.metadataCalls))
}

func TestOpenContentsFetchesAndCachesBlob(t *testing.T) {
	fb, client, stop := newFakeBackend(t)
	defer stop()
	fb.setFile("/etc/hosts", 0o100644, []byte("127.0.0.1 localhost"))
	e := newTestEngine(t, client, Budget{})

	f, err := e.OpenContents("/etc/hosts")
	require.NoError(t, err)
	defer f.Close()
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost", string(data))
}

func TestLRUDropsContentsByByteBudgetBeforeDroppingEntries(t *testing.T) {
	fb, client, stop := newFakeBackend(t)
	defer stop()
	fb.setFile("/etc/a", 0o100644, make([]byte, 100))
	fb.setFile("/etc/b", 0o100644, make([]byte, 100))
	e := newTestEngine(t, client, Budget{Bytes: 150})

	for _, p := range []string{"/etc/a", "/etc/b"} {
		f, err := e.OpenContents(p)
		require.NoError(t, err)
		f.Close()
	}

	snapshot := e.snapshotEntries()
	require.Len(t, snapshot, 2)
	e.runLRU(e.entries)

	var withContents int
	for _, entry := range e.entries {
		if entry.Contents != nil {
			withContents++
		}
	}
	assert.Equal(t, 1, withContents, "LRU pass should have shed the oldest entry's cached bytes to fit the byte budget")
	assert.Len(t, e.entries, 2, "byte budget alone must not delete whole entries")
}

func TestLRUDeletesEntriesByCountBudget(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{Entries: 1})

	e.setEntry("k1", &cachemodel.CacheEntry{Path: "/etc/a", LastAccess: 1})
	e.setEntry("k2", &cachemodel.CacheEntry{Path: "/etc/b", LastAccess: 2})

	e.runLRU(e.entries)
	assert.Len(t, e.entries, 1)
}

func TestGCOrphanBlobsRemovesUnreferencedFiles(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{})

	require.NoError(t, os.MkdirAll(contentsDir(e.CacheDir), 0o755))
	orphan := filepath.Join(contentsDir(e.CacheDir), "orphan-blob")
	require.NoError(t, os.WriteFile(orphan, []byte("x"), 0o600))

	e.gcOrphanBlobs(e.entries)
	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}

func TestGCOrphanBlobsKeepsReferencedFiles(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{})

	require.NoError(t, os.MkdirAll(contentsDir(e.CacheDir), 0o755))
	kept := filepath.Join(contentsDir(e.CacheDir), "kept-blob")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0o600))
	e.setEntry("k1", &cachemodel.CacheEntry{Path: "/etc/a", Contents: &cachemodel.ContentsBlob{StoragePath: kept}})

	e.gcOrphanBlobs(e.entries)
	_, err := os.Stat(kept)
	assert.NoError(t, err)
}

// TestGCOrphanBlobsNeverTouchesIndexFilesInCacheDirRoot guards the bug this
// test accompanies: blobs live under contents/, the index and its lock live
// in CacheDir's root, and a GC pass must never delete the latter.
func TestGCOrphanBlobsNeverTouchesIndexFilesInCacheDirRoot(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{})

	indexPath := filepath.Join(e.CacheDir, "index.json")
	require.NoError(t, os.WriteFile(indexPath, []byte("{}"), 0o600))
	lockPath := filepath.Join(e.CacheDir, "index.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte(""), 0o600))

	e.gcOrphanBlobs(e.entries)
	_, err := os.Stat(indexPath)
	assert.NoError(t, err, "gcOrphanBlobs must not delete the on-disk index")
	_, err = os.Stat(lockPath)
	assert.NoError(t, err, "gcOrphanBlobs must not delete the index lock file")
}

// TestPrefetchBundleStoresSymlinkMetadataOnly exercises spec.md §8's
// "prefetch symlink" scenario: a prefetch entry for a symlink carries
// metadata (with a Link target) but no Contents, and storeOnePrefetch must
// install the entry without attempting a blob write.
func TestPrefetchBundleStoresSymlinkMetadataOnly(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{})

	target := "/etc/real-hosts"
	meta := cachemodel.NewMetadataAttr(cachemodel.Attributes{Mode: 0o120777}, &target)
	e.storePrefetches([]cachemodel.PrefetchEntry{{Path: "/etc/hosts-link", Metadata: meta}}, "/etc/trigger")

	entry, ok := e.getEntry(e.keyFor("/etc/hosts-link"))
	require.True(t, ok)
	assert.Nil(t, entry.Contents)
	require.NotNil(t, entry.Meta.Link)
	assert.Equal(t, target, *entry.Meta.Link)
}

// TestPrefetchBundleInstallsContentBlob covers the non-symlink case: a
// prefetch entry that does carry Contents gets its blob written eagerly.
func TestPrefetchBundleInstallsContentBlob(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{})

	fc, err := cachemodel.NewFileContents([]byte("prefetched"))
	require.NoError(t, err)
	meta := cachemodel.NewMetadataAttr(cachemodel.Attributes{Mode: 0o100644, Size: fc.Size}, nil)
	e.storePrefetches([]cachemodel.PrefetchEntry{{Path: "/etc/prefetched", Metadata: meta, Contents: fc}}, "/etc/trigger")

	entry, ok := e.getEntry(e.keyFor("/etc/prefetched"))
	require.True(t, ok)
	require.NotNil(t, entry.Contents)
	data, err := os.ReadFile(entry.Contents.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "prefetched", string(data))
}

// TestSaveThenFreshLoadRoundTripsEntriesAndBlobs exercises spec.md §8's
// "save then load round-trips all non-evicted entries/blobs" property: a
// Save must not delete anything a subsequent Load on a brand new Engine
// still needs, including the index file itself and every surviving blob.
func TestSaveThenFreshLoadRoundTripsEntriesAndBlobs(t *testing.T) {
	fb, client, stop := newFakeBackend(t)
	defer stop()
	fb.setFile("/etc/hosts", 0o100644, []byte("127.0.0.1 localhost"))

	dir := t.TempDir()
	indexPath := filepath.Join(dir, "index.json")
	store := cacheindex.OpenJSONStore(indexPath)
	e := NewEngine(client, store, dir, "machine-1", filepath.Join(dir, "index.lock"), Budget{}, 4)
	e.CacheablePaths = []string{"/etc"}
	require.NoError(t, e.Load())

	f, err := e.OpenContents("/etc/hosts")
	require.NoError(t, err)
	blobPath := f.Name()
	require.NoError(t, f.Close())

	require.NoError(t, e.Save())

	_, err = os.Stat(indexPath)
	require.NoError(t, err, "Save must leave the index file behind for a later Load")
	_, err = os.Stat(blobPath)
	require.NoError(t, err, "Save must not garbage-collect a blob still referenced by a surviving entry")

	freshStore := cacheindex.OpenJSONStore(indexPath)
	fresh := NewEngine(client, freshStore, dir, "machine-1", filepath.Join(dir, "index.lock"), Budget{}, 4)
	fresh.CacheablePaths = []string{"/etc"}
	require.NoError(t, fresh.Load())

	entry, ok := fresh.getEntry(fresh.keyFor("/etc/hosts"))
	require.True(t, ok, "a fresh engine must load the entry persisted by the prior Save")
	require.NotNil(t, entry.Contents)
	assert.Equal(t, blobPath, entry.Contents.StoragePath)
	data, err := os.ReadFile(entry.Contents.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost", string(data))
}

func TestIsCacheableRespectsPathBoundaries(t *testing.T) {
	_, client, stop := newFakeBackend(t)
	defer stop()
	e := newTestEngine(t, client, Budget{})

	assert.True(t, e.IsCacheable("/etc/hosts"))
	assert.True(t, e.IsCacheable("/etc"))
	assert.False(t, e.IsCacheable("/etcsomething"))
	assert.False(t, e.IsCacheable("/home/user"))
}
