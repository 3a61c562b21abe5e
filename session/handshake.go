package session

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

const (
	soh = 0x01
	stx = 0x02
)

// ReadHandshakeToken implements spec.md §6's startup byte protocol: the
// remote side sends SOH, 32 hex characters encoding a 128-bit token, STX,
// then a hex-encoded SHA-256 checksum of the token's hex text. Both sides
// verify the checksum; a mismatch or malformed frame terminates the
// handshake. Taking a bare io.Reader (rather than any SSH/process type)
// keeps this testable without a real pipe - any io.Reader stands in for
// the SSH-tunneled byte channel spec.md treats as an external collaborator.
func ReadHandshakeToken(r io.Reader) ([16]byte, error) {
	var token [16]byte
	br := bufio.NewReader(r)

	if err := expectByte(br, soh); err != nil {
		return token, err
	}

	tokenHex := make([]byte, 32)
	if _, err := io.ReadFull(br, tokenHex); err != nil {
		return token, errors.Wrap(err, "session: read handshake token")
	}

	if err := expectByte(br, stx); err != nil {
		return token, err
	}

	checksumHex := make([]byte, 64)
	if _, err := io.ReadFull(br, checksumHex); err != nil {
		return token, errors.Wrap(err, "session: read handshake checksum")
	}

	sum := sha256.Sum256(tokenHex)
	want := hex.EncodeToString(sum[:])
	if want != string(checksumHex) {
		return token, errors.New("session: handshake checksum mismatch")
	}

	raw, err := hex.DecodeString(string(tokenHex))
	if err != nil || len(raw) != 16 {
		return token, errors.New("session: malformed handshake token")
	}
	copy(token[:], raw)
	return token, nil
}

func expectByte(br *bufio.Reader, want byte) error {
	b, err := br.ReadByte()
	if err != nil {
		return errors.Wrap(err, "session: read handshake frame byte")
	}
	if b != want {
		return errors.Errorf("session: expected frame byte 0x%02x, got 0x%02x", want, b)
	}
	return nil
}
