// Package wire implements the MessagePack-based encoding this system's RPC
// layer uses to move requests, replies, and tagged data records across the
// network, plus the length-prefixed framing those encoded payloads travel
// in.
//
// The original implementation discovers which dataclasses are wire records
// by introspecting the module at import time. Go has no equivalent runtime
// introspection over "every type that looks like a dataclass", so instead
// every wire-visible record type is registered explicitly, once, from the
// init() in this package's records.go. RegisterRecord is that registration
// call.
package wire

import "fmt"

// Record is anything that can appear as a tagged value in an encoded
// message: a type name plus its own field-to-value encoding.
type Record interface {
	// TypeName is the stable name under which this type round-trips. It
	// must match what was passed to RegisterRecord.
	TypeName() string
}

// Encodable converts a Record into the plain map that the msgpack codec
// will serialize as the record's "fields" payload.
type Encodable interface {
	Record
	EncodeFields() map[string]any
}

// Decoder builds a value of a registered type from a decoded fields map.
type Decoder func(fields map[string]any) (any, error)

var registry = map[string]Decoder{}

// RegisterRecord associates a type name with the function that rebuilds a
// value of that type from its decoded fields map. It must be called from an
// init() before any decode of that type name is attempted; calling it twice
// for the same name is a programmer error and panics, matching the
// fail-fast behavior of a duplicate dataclass registration in the original.
func RegisterRecord(name string, decode Decoder) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("wire: record type %q already registered", name))
	}
	registry[name] = decode
}

// Lookup returns the decoder registered for name, or (nil, false) if name
// was never registered.
func Lookup(name string) (Decoder, bool) {
	d, ok := registry[name]
	return d, ok
}
