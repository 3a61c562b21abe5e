package cachemodel

import (
	"reflect"

	"github.com/outrungo/outrungo/internal/errkind"
)

// WireError is the serializable shape of an errkind.Error: a closed Kind
// plus the original class name and arguments, so a Kind of errkind.Other
// still round-trips a faithful message.
type WireError struct {
	Kind  errkind.Kind
	Class string
	Args  []any
}

// ToError converts a WireError back into an *errkind.Error.
func (w *WireError) ToError() *errkind.Error {
	if w == nil {
		return nil
	}
	return &errkind.Error{Kind: w.Kind, Class: w.Class, Args: w.Args}
}

// FromError builds a WireError from any error, classifying it first if it
// isn't already an *errkind.Error.
func FromError(err error) *WireError {
	if err == nil {
		return nil
	}
	ke, ok := err.(*errkind.Error)
	if !ok {
		ke = errkind.FromOSError(err)
	}
	return &WireError{Kind: ke.Kind, Class: ke.Class, Args: ke.Args}
}

// Metadata describes the result of a stat-like lookup: either attributes
// (plus, for a symlink, its target) or an error. Attr and Err are mutually
// exclusive by construction; the constructors below are the only place that
// invariant needs to be kept.
type Metadata struct {
	Attr *Attributes
	Link *string
	Err  *WireError
}

// NewMetadataAttr builds a Metadata for a successful lookup.
func NewMetadataAttr(attr Attributes, link *string) Metadata {
	return Metadata{Attr: &attr, Link: link}
}

// NewMetadataErr builds a Metadata carrying a lookup failure.
func NewMetadataErr(err error) Metadata {
	return Metadata{Err: FromError(err)}
}

// IsErr reports whether this Metadata represents a failed lookup.
func (m Metadata) IsErr() bool { return m.Err != nil }

// Significant reports whether two Metadata values differ in any field that
// matters for cache invalidation. Per the original implementation, atime is
// deliberately excluded: a bare read of a file bumps atime but should never
// by itself invalidate cached content.
func (m Metadata) Significant(other Metadata) bool {
	if m.IsErr() != other.IsErr() {
		return true
	}
	if m.IsErr() {
		return m.Err.Kind != other.Err.Kind || m.Err.Class != other.Err.Class ||
			!reflect.DeepEqual(m.Err.Args, other.Err.Args)
	}
	a, b := m.Attr, other.Attr
	if a == nil || b == nil {
		return a != b
	}
	if a.Mode != b.Mode || a.Size != b.Size || a.MtimeNs != b.MtimeNs ||
		a.CtimeNs != b.CtimeNs || a.UID != b.UID || a.GID != b.GID ||
		a.Nlink != b.Nlink {
		return true
	}
	if (m.Link == nil) != (other.Link == nil) {
		return true
	}
	if m.Link != nil && *m.Link != *other.Link {
		return true
	}
	return false
}
