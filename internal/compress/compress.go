// Package compress wraps LZ4 frame compression for file contents flowing
// over the RPC layer, the direct Go equivalent of the original
// implementation's lz4.frame usage.
package compress

import (
	"bytes"

	"github.com/pierrec/lz4/v4"
)

// Compress returns the LZ4-frame-compressed form of b.
func Compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(compressed []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(compressed))
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
