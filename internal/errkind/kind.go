// Package errkind classifies errors crossing the RPC boundary into a small
// closed set, with a catch-all for anything that doesn't fit. This replaces
// the original implementation's approach of serializing an exception's class
// name and constructor arguments directly: we keep enough of that shape
// (class name + args) to reconstruct a faithful message, but dispatch and
// errno translation only ever switch on Kind.
package errkind

import "fmt"

// Kind is a closed classification of the errors that can cross the wire.
type Kind int

const (
	// Other catches every error that doesn't map onto a specific Kind below.
	// The original class name and arguments are preserved alongside it so
	// no information is lost, but callers must not grow new switch cases on
	// the string - Kind is what's load-bearing.
	Other Kind = iota
	NotFound
	PermissionDenied
	InvalidArgument
	IsADirectory
	NotADirectory
	AlreadyExists
	IOError
	ProtocolError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case PermissionDenied:
		return "permission-denied"
	case InvalidArgument:
		return "invalid-argument"
	case IsADirectory:
		return "is-a-directory"
	case NotADirectory:
		return "not-a-directory"
	case AlreadyExists:
		return "already-exists"
	case IOError:
		return "i-o-error"
	case ProtocolError:
		return "protocol-error"
	default:
		return "other"
	}
}

// Error is the Go error type carried across the RPC boundary. It preserves
// the remote exception's class name and positional arguments so a Kind of
// Other can still produce a faithful message.
type Error struct {
	Kind  Kind
	Class string
	Args  []any
}

func (e *Error) Error() string {
	if e.Class == "" {
		return e.Kind.String()
	}
	return e.Class + ": " + formatArgs(e.Args)
}

func formatArgs(args []any) string {
	if len(args) == 0 {
		return ""
	}
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += formatArg(a)
	}
	return s
}

func formatArg(a any) string {
	if s, ok := a.(string); ok {
		return s
	}
	return fmt.Sprint(a)
}
