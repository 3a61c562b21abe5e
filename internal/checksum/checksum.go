// Package checksum provides the SHA-256 helpers used to validate file
// contents crossing the RPC boundary and to derive the app-specific machine
// id. crypto/sha256 is used directly: the original implementation's own
// choice was hashlib.sha256, and no third-party hashing library in the
// retrieval pack improves on the standard library's implementation for
// this use.
package checksum

import (
	"crypto/sha256"
	"io"
)

// Sum256 returns the SHA-256 digest of b.
func Sum256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Sum256Reader returns the SHA-256 digest of everything read from r.
func Sum256Reader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// Equal reports whether two digests match.
func Equal(a, b [32]byte) bool {
	return a == b
}
