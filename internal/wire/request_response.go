package wire

import "github.com/pkg/errors"

// EncodeRequest serializes an RPC request frame.
func EncodeRequest(req *Request) ([]byte, error) {
	return Encode(req)
}

// DecodeRequest deserializes bytes into a Request.
func DecodeRequest(data []byte) (*Request, error) {
	var raw any
	if err := decodeInto(data, &raw); err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("wire: malformed request envelope")
	}
	req := &Request{}
	if tokBytes, ok := m["token"].([]byte); ok {
		copy(req.Token[:], tokBytes)
	}
	if method, ok := m["method"].(string); ok {
		req.Method = &method
	}
	if rawArgs, ok := m["args"].([]any); ok {
		args := make([]any, len(rawArgs))
		for i, a := range rawArgs {
			resolved, err := fromWire(a)
			if err != nil {
				return nil, err
			}
			args[i] = resolved
		}
		req.Args = args
	}
	return req, nil
}

// EncodeResponse serializes an RPC response frame.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Encode(resp)
}

// DecodeResponse deserializes bytes into a Response.
func DecodeResponse(data []byte) (*Response, error) {
	var raw any
	if err := decodeInto(data, &raw); err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, errors.New("wire: malformed response envelope")
	}
	resp := &Response{}
	if tag, ok := m["tag"].(int64); ok {
		resp.Tag = ReturnTag(tag)
	}
	val, err := fromWire(m["value"])
	if err != nil {
		return nil, err
	}
	resp.Value = val
	return resp, nil
}

func decodeInto(data []byte, out *any) error {
	v, err := decodeRawUntagged(data)
	if err != nil {
		return err
	}
	*out = v
	return nil
}

// decodeRawUntagged decodes the top-level envelope without applying the
// tagged-record resolution pass - the envelope itself (request/response) is
// never a tagged record, only its nested values may be.
func decodeRawUntagged(data []byte) (any, error) {
	var raw any
	dec := newRawDecoder(data)
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "wire: decode envelope")
	}
	return raw, nil
}
