package cachemodel

// FileContents is a file's data as it crosses the wire: LZ4-frame
// compressed, with the uncompressed size and a SHA-256 checksum of the
// uncompressed bytes carried alongside so the receiver can validate without
// decompressing twice.
type FileContents struct {
	CompressedData []byte
	Size           int64
	Checksum       [32]byte
}

// PrefetchEntry is one item of an opportunistic prefetch bundle returned
// alongside the result of a primary RPC call.
type PrefetchEntry struct {
	Path     string
	Metadata Metadata
	Contents *FileContents
}

// ContentsBlob is the on-disk-index record for a cached file's content: the
// path of the blob file under the cache directory, its size and checksum,
// and whether it still matches the remote (Dirty means a fresh read is
// required before it can be served).
type ContentsBlob struct {
	StoragePath string
	Size        int64
	Checksum    [32]byte
	Dirty       bool
}

// CacheEntry is the full state held per (machine, path) key: the last known
// metadata, access/update bookkeeping for LRU and merge-by-last-update, and
// an optional cached content blob.
type CacheEntry struct {
	Path       string
	Meta       Metadata
	LastAccess int64
	LastUpdate int64
	Contents   *ContentsBlob
}

// Touch bumps LastAccess to now, clamped so it never decreases within a
// session, and refreshes LastUpdate.
func (e *CacheEntry) Touch(nowUnix int64) {
	if nowUnix > e.LastAccess {
		e.LastAccess = nowUnix
	}
	e.LastUpdate = nowUnix
}
