package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog, repeated repeated repeated")

	compressed, err := Compress(original)
	require.NoError(t, err)
	assert.NotEmpty(t, compressed)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestCompressDecompressRoundTripOnEmptyInput(t *testing.T) {
	compressed, err := Compress(nil)
	require.NoError(t, err)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Empty(t, decompressed)
}

func TestCompressProducesFramedOutputDistinctFromInput(t *testing.T) {
	original := bytes.Repeat([]byte("a"), 4096)

	compressed, err := Compress(original)
	require.NoError(t, err)
	assert.NotEqual(t, original, compressed)
}
