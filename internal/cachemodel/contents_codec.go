package cachemodel

import (
	"github.com/outrungo/outrungo/internal/checksum"
	"github.com/outrungo/outrungo/internal/compress"
)

// NewFileContents compresses raw and computes its checksum, producing the
// wire-ready FileContents.
func NewFileContents(raw []byte) (*FileContents, error) {
	compressed, err := compress.Compress(raw)
	if err != nil {
		return nil, err
	}
	return &FileContents{
		CompressedData: compressed,
		Size:           int64(len(raw)),
		Checksum:       checksum.Sum256(raw),
	}, nil
}

// Decompress returns the raw bytes of fc, verifying the checksum.
func (fc *FileContents) Decompress() ([]byte, error) {
	raw, err := compress.Decompress(fc.CompressedData)
	if err != nil {
		return nil, err
	}
	if checksum.Sum256(raw) != fc.Checksum {
		return nil, errChecksumMismatch
	}
	return raw, nil
}
