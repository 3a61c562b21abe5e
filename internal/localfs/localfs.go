// Package localfs is the stateless passthrough file system service exposed
// over RPC: each exported operation maps one-to-one onto a kernel call,
// preferring the file-descriptor variant when a handle is given and
// falling back to a path variant otherwise. The path variants of Chown and
// Utimens do not follow a trailing symlink; those of Truncate and Chmod
// do. Grounded
// on the passthrough style of the teacher's backend/local package (direct
// os/golang.org/x/sys/unix syscalls) generalized from a remote-object
// abstraction to a flat path-keyed RPC surface.
package localfs

import (
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/errkind"
)

// Service implements every operation spec.md's local file system service
// exposes. It is stateless and safe for concurrent use: every method opens
// and closes its own descriptors.
type Service struct{}

// GetAttr stats path without following a trailing symlink, returning the
// Attributes record plus, for a symlink, its raw target.
func (Service) GetAttr(p string) (cachemodel.Attributes, *string, error) {
	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		return cachemodel.Attributes{}, nil, errkind.FromErrno(err.(unix.Errno))
	}
	attr := attributesFromStat(&st)
	if !attr.IsSymlink() {
		return attr, nil, nil
	}
	link, err := readlink(p)
	if err != nil {
		return attr, nil, err
	}
	return attr, &link, nil
}

// Readlink returns the raw target of the symlink at path.
func (Service) Readlink(p string) (string, error) {
	return readlink(p)
}

func readlink(p string) (string, error) {
	buf := make([]byte, 4096)
	n, err := unix.Readlink(p, buf)
	if err != nil {
		return "", errkind.FromErrno(err.(unix.Errno))
	}
	return string(buf[:n]), nil
}

// Open opens path with the given POSIX flags and mode, returning a raw fd
// the caller is responsible for closing via Release.
func (Service) Open(p string, flags int, mode uint32) (int, error) {
	fd, err := unix.Open(p, flags, mode)
	if err != nil {
		return -1, errkind.FromErrno(err.(unix.Errno))
	}
	return fd, nil
}

// Read performs a positional read of up to len(buf) bytes from fd at
// offset.
func (Service) Read(fd int, buf []byte, offset int64) (int, error) {
	n, err := unix.Pread(fd, buf, offset)
	if err != nil {
		return 0, errkind.FromErrno(err.(unix.Errno))
	}
	return n, nil
}

// Write performs a positional write of buf to fd at offset.
func (Service) Write(fd int, buf []byte, offset int64) (int, error) {
	n, err := unix.Pwrite(fd, buf, offset)
	if err != nil {
		return 0, errkind.FromErrno(err.(unix.Errno))
	}
	return n, nil
}

// Release closes fd.
func (Service) Release(fd int) error {
	if err := unix.Close(fd); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Flush dup-closes fd to emulate a close's side effects (flushing
// descriptor-level state) without releasing the original descriptor the
// caller still holds.
func (Service) Flush(fd int) error {
	dup, err := unix.Dup(fd)
	if err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	if err := unix.Close(dup); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Truncate sets path's (or, if fd >= 0, fd's) size.
func (Service) Truncate(p string, fd int, size int64) error {
	if fd >= 0 {
		if err := unix.Ftruncate(fd, size); err != nil {
			return errkind.FromErrno(err.(unix.Errno))
		}
		return nil
	}
	if err := unix.Truncate(p, size); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Chmod sets path's (or fd's) permission bits.
func (Service) Chmod(p string, fd int, mode uint32) error {
	if fd >= 0 {
		if err := unix.Fchmod(fd, mode); err != nil {
			return errkind.FromErrno(err.(unix.Errno))
		}
		return nil
	}
	if err := unix.Chmod(p, mode); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Chown sets path's (or fd's) owner/group without following a trailing
// symlink on the path variant.
func (Service) Chown(p string, fd int, uid, gid int) error {
	if fd >= 0 {
		if err := unix.Fchown(fd, uid, gid); err != nil {
			return errkind.FromErrno(err.(unix.Errno))
		}
		return nil
	}
	if err := unix.Lchown(p, uid, gid); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Utimens sets path's (or fd's) access and modification times, given in
// nanoseconds since the epoch.
func (Service) Utimens(p string, fd int, atimeNs, mtimeNs int64) error {
	ts := []unix.Timespec{
		unix.NsecToTimespec(atimeNs),
		unix.NsecToTimespec(mtimeNs),
	}
	if fd >= 0 {
		if err := unix.Futimens(fd, ts); err != nil {
			return errkind.FromErrno(err.(unix.Errno))
		}
		return nil
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, p, ts, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Mkdir creates a directory.
func (Service) Mkdir(p string, mode uint32) error {
	if err := unix.Mkdir(p, mode); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Rmdir removes an empty directory.
func (Service) Rmdir(p string) error {
	if err := unix.Rmdir(p); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Unlink removes a file.
func (Service) Unlink(p string) error {
	if err := unix.Unlink(p); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Rename moves oldpath to newpath.
func (Service) Rename(oldpath, newpath string) error {
	if err := unix.Rename(oldpath, newpath); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Symlink creates a symlink at linkpath pointing at target.
func (Service) Symlink(target, linkpath string) error {
	if err := unix.Symlink(target, linkpath); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Link creates a hard link at newpath pointing at oldpath.
func (Service) Link(oldpath, newpath string) error {
	if err := unix.Link(oldpath, newpath); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Fsync flushes fd's in-kernel buffers to storage; datasync restricts the
// flush to file data (skipping metadata that doesn't affect a subsequent
// read), the same distinction fdatasync makes over fsync.
func (Service) Fsync(fd int, datasync bool) error {
	var err error
	if datasync {
		err = unix.Fdatasync(fd)
	} else {
		err = unix.Fsync(fd)
	}
	if err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Mknod creates a device node or FIFO.
func (Service) Mknod(p string, mode uint32, dev uint64) error {
	if err := unix.Mknod(p, mode, int(dev)); err != nil {
		return errkind.FromErrno(err.(unix.Errno))
	}
	return nil
}

// Readdir lists path's entries, always including "." and "..".
func (Service) Readdir(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, errkind.FromOSError(err)
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil && err != io.EOF {
		return nil, errkind.FromOSError(err)
	}
	entries := append([]string{".", ".."}, names...)
	return entries, nil
}

// Statfs reports file system level statistics for path.
func (Service) Statfs(p string) (unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(p, &st); err != nil {
		return unix.Statfs_t{}, errkind.FromErrno(err.(unix.Errno))
	}
	return st, nil
}

func attributesFromStat(st *unix.Stat_t) cachemodel.Attributes {
	return cachemodel.Attributes{
		Mode:    st.Mode,
		Ino:     st.Ino,
		Dev:     uint64(st.Dev),
		Nlink:   uint64(st.Nlink),
		UID:     st.Uid,
		GID:     st.Gid,
		Size:    st.Size,
		AtimeNs: st.Atim.Nano(),
		MtimeNs: st.Mtim.Nano(),
		CtimeNs: st.Ctim.Nano(),
		Blocks:  st.Blocks,
		Rdev:    uint64(st.Rdev),
	}
}

// asErrno is a small helper Preallocate uses to translate a
// syscall.Errno (or other error) into an errkind error; kept here rather than in preallocate.go so
// the platform-specific file only has the actual fallocate/posix_fallocate
// call.
func asErrno(err error) error {
	if errno, ok := err.(syscall.Errno); ok {
		return errkind.FromErrno(unix.Errno(errno))
	}
	return errkind.FromOSError(err)
}
