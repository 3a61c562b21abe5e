package wire

import (
	"reflect"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/pkg/errors"

	"github.com/outrungo/outrungo/internal/errkind"
)

// ReturnTag classifies a call reply: did the call succeed, did the remote
// method raise, or did the token fail authentication before the method ever
// ran.
type ReturnTag int

const (
	Normal ReturnTag = iota
	Exception
	TokenError
)

// handle decodes msgpack maps into map[string]any (rather than the
// default map[interface{}]interface{}) so every decode site in this
// package and its callers can type-assert on string keys directly.
var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.MapType = reflect.TypeOf(map[string]any(nil))
	h.RawToString = true
	return h
}

// Request is one RPC call: a bearer token, a method name (nil encodes a
// bare ping with no method dispatch), and its positional arguments.
type Request struct {
	Token  [16]byte
	Method *string
	Args   []any
}

// Response is one RPC reply.
type Response struct {
	Tag   ReturnTag
	Value any
}

// Encode serializes v (a Request, a Response, or any registered Record, or
// a plain msgpack-compatible value) to bytes.
func Encode(v any) ([]byte, error) {
	wrapped, err := toWire(v)
	if err != nil {
		return nil, err
	}
	var out []byte
	enc := codec.NewEncoderBytes(&out, handle)
	if err := enc.Encode(wrapped); err != nil {
		return nil, errors.Wrap(err, "wire: encode")
	}
	return out, nil
}

// newRawDecoder returns a decoder over bytes produced by Encode. It yields
// msgpack's native map[string]any/[]any/scalar shapes; DecodeRequest and
// DecodeResponse build the envelopes from those, and fromWire turns
// registered Record type names into the type their decoder constructs.
func newRawDecoder(data []byte) *codec.Decoder {
	return codec.NewDecoderBytes(data, handle)
}

// toWire recursively converts Go values (including registered Records) into
// the plain map/slice/scalar shapes the codec knows how to write, tagging
// records as {"type": name, "fields": {...}} and errors as
// {"kind": int, "class": string, "args": [...]}.
func toWire(v any) (any, error) {
	switch t := v.(type) {
	case *Request:
		var method any
		if t.Method != nil {
			method = *t.Method
		}
		args := make([]any, len(t.Args))
		for i, a := range t.Args {
			w, err := toWire(a)
			if err != nil {
				return nil, err
			}
			args[i] = w
		}
		return map[string]any{
			"token":  t.Token[:],
			"method": method,
			"args":   args,
		}, nil
	case *Response:
		val, err := toWire(t.Value)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"tag":   int(t.Tag),
			"value": val,
		}, nil
	case *errkind.Error:
		return map[string]any{
			"kind":  int(t.Kind),
			"class": t.Class,
			"args":  t.Args,
		}, nil
	case Encodable:
		fields := t.EncodeFields()
		wireFields := make(map[string]any, len(fields))
		for k, fv := range fields {
			w, err := toWire(fv)
			if err != nil {
				return nil, err
			}
			wireFields[k] = w
		}
		return map[string]any{
			"type":   t.TypeName(),
			"fields": wireFields,
		}, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			w, err := toWire(e)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			w, err := toWire(e)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return map[string]any{"type": "@map", "fields": out}, nil
	default:
		return v, nil
	}
}

// fromWire is the inverse of toWire for tagged records, error maps and the
// arrays that hold them; everything else passes through unchanged, since
// Request/Response envelopes are decoded explicitly by their own callers.
func fromWire(v any) (any, error) {
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i, e := range s {
			r, err := fromWire(e)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	if name, ok := m["type"].(string); ok {
		fields, _ := m["fields"].(map[string]any)
		resolved := make(map[string]any, len(fields))
		for k, fv := range fields {
			r, err := fromWire(fv)
			if err != nil {
				return nil, err
			}
			resolved[k] = r
		}
		if name == "@map" {
			return resolved, nil
		}
		decode, known := Lookup(name)
		if !known {
			return nil, &errkind.Error{Kind: errkind.ProtocolError, Class: "UnknownRecordType", Args: []any{name}}
		}
		return decode(resolved)
	}
	if _, hasKind := m["kind"]; hasKind {
		if _, hasClass := m["class"]; hasClass {
			return decodeErrkindError(m)
		}
	}
	return v, nil
}

func decodeErrkindError(m map[string]any) (any, error) {
	var kind errkind.Kind
	switch k := m["kind"].(type) {
	case int64:
		kind = errkind.Kind(k)
	case int:
		kind = errkind.Kind(k)
	}
	if kind < errkind.Other || kind > errkind.ProtocolError {
		kind = errkind.Other
	}
	class, _ := m["class"].(string)
	args, _ := m["args"].([]any)
	return &errkind.Error{Kind: kind, Class: class, Args: args}, nil
}
