package localfs

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

var (
	fallocFlags = [...]uint32{
		unix.FALLOC_FL_KEEP_SIZE,
		unix.FALLOC_FL_KEEP_SIZE | unix.FALLOC_FL_PUNCH_HOLE,
	}
	fallocFlagsIndex int32
)

// Preallocate reserves size bytes for fd, for performance, falling back
// through progressively more permissive fallocate flag combinations when
// the underlying file system doesn't support one.
func (Service) Preallocate(fd int, size int64) error {
	if size <= 0 {
		return nil
	}
	index := atomic.LoadInt32(&fallocFlagsIndex)
	for {
		if index >= int32(len(fallocFlags)) {
			return nil
		}
		err := unix.Fallocate(fd, fallocFlags[index], 0, size)
		if err == unix.ENOTSUP {
			index++
			atomic.StoreInt32(&fallocFlagsIndex, index)
			continue
		}
		if err != nil {
			return asErrno(err)
		}
		return nil
	}
}
