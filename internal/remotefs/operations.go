package remotefs

import (
	"github.com/winfsp/cgofuse/fuse"

	"github.com/outrungo/outrungo/internal/errkind"
	"github.com/outrungo/outrungo/internal/rpc"
)

// Getattr answers cacheable paths from the cache engine; everything else
// is forwarded to the local file system service.
func (fs *FS) Getattr(path string, stat *fuse.Stat_t, fh uint64) int {
	if fs.Engine.IsCacheable(path) {
		attr, _, err := fs.Engine.Metadata(path)
		if err != nil {
			return errnoOf(err)
		}
		attrToStat(attr, stat)
		return 0
	}
	value, err := fs.call(rpc.MethodGetAttr, path)
	if err != nil {
		return errnoOf(err)
	}
	pair, ok := value.([]any)
	if !ok || len(pair) != 3 {
		return errnoOf(&errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedGetattrReply"})
	}
	if err := wireAttrToStat(pair[0], stat); err != nil {
		return errnoOf(err)
	}
	return 0
}

// Readlink answers from cached metadata's symlink target when the path is
// cacheable, failing with invalid-argument if the cached metadata has no
// link (matching spec.md §4.6); otherwise forwards to the local side.
func (fs *FS) Readlink(path string) (int, string) {
	if fs.Engine.IsCacheable(path) {
		_, link, err := fs.Engine.Metadata(path)
		if err != nil {
			return errnoOf(err), ""
		}
		if link == nil {
			return errnoOf(&errkind.Error{Kind: errkind.InvalidArgument, Class: "NotASymlink"}), ""
		}
		return 0, *link
	}
	value, err := fs.call(rpc.MethodReadlink, path)
	if err != nil {
		return errnoOf(err), ""
	}
	target, _ := value.(string)
	return 0, target
}

// Open answers cacheable paths by opening the cached blob read-only
// through the cache engine; everything else opens a remote descriptor via
// the local file system service.
func (fs *FS) Open(path string, flags int) (int, uint64) {
	if fs.Engine.IsCacheable(path) {
		f, err := fs.Engine.OpenContents(path)
		if err != nil {
			return errnoOf(err), 0
		}
		fh := fs.newHandle(&handle{kind: handleCached, local: f})
		return 0, fh
	}
	value, err := fs.call(rpc.MethodOpen, path, flags, uint32(0o644))
	if err != nil {
		return errnoOf(err), 0
	}
	remoteFd, ok := toInt(value)
	if !ok {
		return errnoOf(&errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedOpenReply"}), 0
	}
	fh := fs.newHandle(&handle{kind: handleRemote, remoteFd: remoteFd})
	return 0, fh
}

// Create behaves like Open on a non-cacheable path: creation only ever
// happens on the writable, local-truth side.
func (fs *FS) Create(path string, flags int, mode uint32) (int, uint64) {
	value, err := fs.call(rpc.MethodOpen, path, flags, mode)
	if err != nil {
		return errnoOf(err), 0
	}
	remoteFd, ok := toInt(value)
	if !ok {
		return errnoOf(&errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedOpenReply"}), 0
	}
	fh := fs.newHandle(&handle{kind: handleRemote, remoteFd: remoteFd})
	return 0, fh
}

// Read serves a cached handle locally or forwards to a remote positional
// read.
func (fs *FS) Read(path string, buff []byte, ofst int64, fh uint64) int {
	h, ok := fs.handleFor(fh)
	if !ok {
		return errkind.Errno(&errkind.Error{Kind: errkind.InvalidArgument, Class: "UnknownHandle"})
	}
	if h.kind == handleCached {
		n, err := h.local.ReadAt(buff, ofst)
		if err != nil && n == 0 {
			return errnoOf(errkind.FromOSError(err))
		}
		return n
	}
	value, err := fs.call(rpc.MethodRead, h.remoteFd, len(buff), ofst)
	if err != nil {
		return errnoOf(err)
	}
	data, _ := value.([]byte)
	n := copy(buff, data)
	return n
}

// Write always forwards: cached paths are read-only, so this naturally
// only ever hits a remote handle.
func (fs *FS) Write(path string, buff []byte, ofst int64, fh uint64) int {
	h, ok := fs.handleFor(fh)
	if !ok || h.kind != handleRemote {
		return errkind.Errno(&errkind.Error{Kind: errkind.InvalidArgument, Class: "UnknownHandle"})
	}
	value, err := fs.call(rpc.MethodWrite, h.remoteFd, buff, ofst)
	if err != nil {
		return errnoOf(err)
	}
	n, _ := toInt(value)
	return n
}

// Release closes a cached handle locally or forwards to the remote
// release.
func (fs *FS) Release(path string, fh uint64) int {
	h, ok := fs.handleFor(fh)
	if !ok {
		return 0
	}
	fs.dropHandle(fh)
	if h.kind == handleCached {
		_ = h.local.Close()
		return 0
	}
	if _, err := fs.call(rpc.MethodRelease, h.remoteFd); err != nil {
		return errnoOf(err)
	}
	return 0
}

// Flush is a no-op for cached (read-only) handles; remote handles forward
// to the dup-close emulation in localfs.Service.Flush.
func (fs *FS) Flush(path string, fh uint64) int {
	h, ok := fs.handleFor(fh)
	if !ok || h.kind == handleCached {
		return 0
	}
	if _, err := fs.call(rpc.MethodFlush, h.remoteFd); err != nil {
		return errnoOf(err)
	}
	return 0
}

// Fsync forwards for remote handles and returns success without a call for
// any other handle; cached content is never dirty from this side.
func (fs *FS) Fsync(path string, datasync bool, fh uint64) int {
	h, ok := fs.handleFor(fh)
	if !ok || h.kind != handleRemote {
		return 0
	}
	if _, err := fs.call(rpc.MethodFsync, h.remoteFd, datasync); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Truncate(path string, size int64, fh uint64) int {
	remoteFd := -1
	if h, ok := fs.handleFor(fh); ok && h.kind == handleRemote {
		remoteFd = h.remoteFd
	}
	if _, err := fs.call(rpc.MethodTruncate, path, remoteFd, size); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Chmod(path string, mode uint32) int {
	if _, err := fs.call(rpc.MethodChmod, path, -1, mode); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Chown(path string, uid uint32, gid uint32) int {
	if _, err := fs.call(rpc.MethodChown, path, -1, int(uid), int(gid)); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Utimens(path string, tmsp []fuse.Timespec) int {
	var atimeNs, mtimeNs int64
	if len(tmsp) >= 2 {
		atimeNs = tmsp[0].Sec*1e9 + tmsp[0].Nsec
		mtimeNs = tmsp[1].Sec*1e9 + tmsp[1].Nsec
	}
	if _, err := fs.call(rpc.MethodUtimens, path, -1, atimeNs, mtimeNs); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Mkdir(path string, mode uint32) int {
	if _, err := fs.call(rpc.MethodMkdir, path, mode); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Rmdir(path string) int {
	if _, err := fs.call(rpc.MethodRmdir, path); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Unlink(path string) int {
	if _, err := fs.call(rpc.MethodUnlink, path); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Rename(oldpath string, newpath string) int {
	if _, err := fs.call(rpc.MethodRename, oldpath, newpath); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Symlink(target string, newpath string) int {
	if _, err := fs.call(rpc.MethodSymlink, target, newpath); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Link(oldpath string, newpath string) int {
	if _, err := fs.call(rpc.MethodLink, oldpath, newpath); err != nil {
		return errnoOf(err)
	}
	return 0
}

func (fs *FS) Mknod(path string, mode uint32, dev uint64) int {
	if _, err := fs.call(rpc.MethodMknod, path, mode, dev); err != nil {
		return errnoOf(err)
	}
	return 0
}

// Readdir is never answered from cache (directory enumeration is rare on
// this workload, per spec.md §4.6) - always forwarded.
func (fs *FS) Readdir(path string, fill func(name string, stat *fuse.Stat_t, ofst int64) bool, ofst int64, fh uint64) int {
	value, err := fs.call(rpc.MethodReaddir, path)
	if err != nil {
		return errnoOf(err)
	}
	names, ok := value.([]any)
	if !ok {
		return errnoOf(&errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedReaddirReply"})
	}
	for _, n := range names {
		name, _ := n.(string)
		if !fill(name, nil, 0) {
			break
		}
	}
	return 0
}

func (fs *FS) Statfs(path string, stat *fuse.Statfs_t) int {
	value, err := fs.call(rpc.MethodStatfs, path)
	if err != nil {
		return errnoOf(err)
	}
	m, ok := value.(map[string]any)
	if !ok {
		return errnoOf(&errkind.Error{Kind: errkind.ProtocolError, Class: "MalformedStatfsReply"})
	}
	stat.Bsize = uint64(toInt64(m["bsize"]))
	stat.Blocks = uint64(toInt64(m["blocks"]))
	stat.Bfree = uint64(toInt64(m["bfree"]))
	stat.Bavail = uint64(toInt64(m["bavail"]))
	stat.Files = uint64(toInt64(m["files"]))
	stat.Ffree = uint64(toInt64(m["ffree"]))
	stat.Namemax = uint64(toInt64(m["namelen"]))
	return 0
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
