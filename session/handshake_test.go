package session

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildHandshakeFrame(tokenHex string) []byte {
	sum := sha256.Sum256([]byte(tokenHex))
	checksum := hex.EncodeToString(sum[:])

	var buf bytes.Buffer
	buf.WriteByte(soh)
	buf.WriteString(tokenHex)
	buf.WriteByte(stx)
	buf.WriteString(checksum)
	return buf.Bytes()
}

func TestReadHandshakeTokenParsesValidFrame(t *testing.T) {
	tokenHex := "0123456789abcdef0123456789abcdef"[:32]
	frame := buildHandshakeFrame(tokenHex)

	token, err := ReadHandshakeToken(bytes.NewReader(frame))
	require.NoError(t, err)

	want, err := hex.DecodeString(tokenHex)
	require.NoError(t, err)
	assert.Equal(t, want, token[:])
}

func TestReadHandshakeTokenRejectsWrongLeadByte(t *testing.T) {
	frame := buildHandshakeFrame("0123456789abcdef0123456789abcdef")
	frame[0] = 0xff

	_, err := ReadHandshakeToken(bytes.NewReader(frame))
	assert.Error(t, err)
}

func TestReadHandshakeTokenRejectsWrongMidByte(t *testing.T) {
	frame := buildHandshakeFrame("0123456789abcdef0123456789abcdef")
	frame[33] = 0xff

	_, err := ReadHandshakeToken(bytes.NewReader(frame))
	assert.Error(t, err)
}

func TestReadHandshakeTokenRejectsChecksumMismatch(t *testing.T) {
	frame := buildHandshakeFrame("0123456789abcdef0123456789abcdef")
	frame[len(frame)-1] ^= 0x01

	_, err := ReadHandshakeToken(bytes.NewReader(frame))
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestReadHandshakeTokenRejectsNonHexToken(t *testing.T) {
	frame := buildHandshakeFrame("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")

	_, err := ReadHandshakeToken(bytes.NewReader(frame))
	assert.Error(t, err)
}

func TestReadHandshakeTokenRejectsTruncatedInput(t *testing.T) {
	frame := buildHandshakeFrame("0123456789abcdef0123456789abcdef")
	truncated := frame[:len(frame)-10]

	_, err := ReadHandshakeToken(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestReadHandshakeTokenRejectsEmptyInput(t *testing.T) {
	_, err := ReadHandshakeToken(bytes.NewReader(nil))
	assert.Error(t, err)
}
