package errkind

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// FromErrno classifies a raw syscall errno into a Kind, preserving the
// errno's message text (errno.Error()) as Class for the Other/unmapped case.
func FromErrno(errno unix.Errno) *Error {
	switch errno {
	case unix.ENOENT:
		return &Error{Kind: NotFound, Class: "ENOENT"}
	case unix.EACCES, unix.EPERM:
		return &Error{Kind: PermissionDenied, Class: errno.Error()}
	case unix.EINVAL:
		return &Error{Kind: InvalidArgument, Class: "EINVAL"}
	case unix.EISDIR:
		return &Error{Kind: IsADirectory, Class: "EISDIR"}
	case unix.ENOTDIR:
		return &Error{Kind: NotADirectory, Class: "ENOTDIR"}
	case unix.EEXIST:
		return &Error{Kind: AlreadyExists, Class: "EEXIST"}
	case unix.EIO:
		return &Error{Kind: IOError, Class: "EIO"}
	default:
		return &Error{Kind: Other, Class: errno.Error()}
	}
}

// FromOSError classifies an os package error (as returned by os.Open,
// os.Stat, and friends) into a Kind, unwrapping down to the raw errno when
// possible and falling back to sentinel comparisons otherwise.
func FromOSError(err error) *Error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return FromErrno(errno)
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return &Error{Kind: NotFound, Class: "ENOENT"}
	case errors.Is(err, os.ErrPermission):
		return &Error{Kind: PermissionDenied, Class: "EACCES"}
	case errors.Is(err, os.ErrExist):
		return &Error{Kind: AlreadyExists, Class: "EEXIST"}
	case errors.Is(err, os.ErrDeadlineExceeded):
		return &Error{Kind: IOError, Class: "ETIMEDOUT"}
	default:
		return &Error{Kind: Other, Class: "Error", Args: []any{err.Error()}}
	}
}

// ToErrno maps a Kind back onto the closest POSIX errno, for surfacing
// through a FUSE operation's int return value.
func ToErrno(k Kind) unix.Errno {
	switch k {
	case NotFound:
		return unix.ENOENT
	case PermissionDenied:
		return unix.EACCES
	case InvalidArgument:
		return unix.EINVAL
	case IsADirectory:
		return unix.EISDIR
	case NotADirectory:
		return unix.ENOTDIR
	case AlreadyExists:
		return unix.EEXIST
	case IOError:
		return unix.EIO
	case ProtocolError:
		return unix.EPROTO
	default:
		return unix.EIO
	}
}
