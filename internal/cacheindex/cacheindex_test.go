package cacheindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outrungo/outrungo/internal/cachemodel"
)

func sampleEntries() map[string]cachemodel.CacheEntry {
	link := "/usr/bin/real"
	return map[string]cachemodel.CacheEntry{
		"machine-1:/bin/ls": {
			Path:       "/bin/ls",
			Meta:       cachemodel.NewMetadataAttr(cachemodel.Attributes{Mode: 0o100755, Size: 42}, nil),
			LastAccess: 10,
			LastUpdate: 10,
			Contents:   &cachemodel.ContentsBlob{StoragePath: "/cache/abc", Size: 42, Dirty: false},
		},
		"machine-1:/bin/link": {
			Path:       "/bin/link",
			Meta:       cachemodel.NewMetadataAttr(cachemodel.Attributes{Mode: cachemodel.SIFLNK}, &link),
			LastAccess: 5,
			LastUpdate: 5,
		},
	}
}

func TestJSONStoreSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	store := OpenJSONStore(path)

	want := sampleEntries()
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, want["machine-1:/bin/ls"].Meta.Attr.Size, got["machine-1:/bin/ls"].Meta.Attr.Size)
	assert.Equal(t, *want["machine-1:/bin/link"].Meta.Link, *got["machine-1:/bin/link"].Meta.Link)
}

func TestJSONStoreLoadOnMissingFileReturnsEmptyMap(t *testing.T) {
	store := OpenJSONStore(filepath.Join(t.TempDir(), "missing.json"))
	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONStoreLoadOnCorruptFileReturnsEmptyMapNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o600))

	store := OpenJSONStore(path)
	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestJSONStoreSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	store := OpenJSONStore(path)
	require.NoError(t, store.Save(sampleEntries()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the final index.json should remain, no leftover temp file")
	assert.Equal(t, "index.json", entries[0].Name())
}

func TestBoltStoreSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bolt")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	want := sampleEntries()
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, want["machine-1:/bin/ls"].Meta.Attr.Size, got["machine-1:/bin/ls"].Meta.Attr.Size)
}

func TestBoltStoreSaveReplacesPriorContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bolt")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(sampleEntries()))
	require.NoError(t, store.Save(map[string]cachemodel.CacheEntry{
		"machine-1:/etc/hosts": {Path: "/etc/hosts", LastAccess: 1, LastUpdate: 1},
	}))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, got, 1)
	_, ok := got["machine-1:/etc/hosts"]
	assert.True(t, ok)
}

func TestBoltStoreLoadOnEmptyDatabaseReturnsEmptyMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bolt")
	store, err := OpenBoltStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}
