package errkind

import "golang.org/x/sys/unix"

// Errno returns the negative errno cgofuse's FileSystemInterface methods
// expect for a failing call (0 means success in that convention). A nil
// error yields 0.
func Errno(err error) int {
	if err == nil {
		return 0
	}
	var ke *Error
	if e, ok := err.(*Error); ok {
		ke = e
	} else {
		ke = FromOSError(err)
	}
	return -int(ToErrno(ke.Kind))
}

// ErrnoOf is a convenience for call sites that already hold a raw unix.Errno
// rather than a wrapped *Error.
func ErrnoOf(errno unix.Errno) int {
	return -int(errno)
}
