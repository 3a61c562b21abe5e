package localcache

import (
	"encoding/hex"
	"os"
	"runtime"

	"github.com/outrungo/outrungo/internal/checksum"
)

// appSalt is a fixed, non-secret salt mixed into the machine-id hash so the
// derived identifier is specific to this application and never collides
// with another tool hashing the same host id for a different purpose.
var appSalt = []byte("outrungo-app-specific-machine-id-salt-v1")

const machineIDFallbackPath = "/var/lib/outrungo/machine-id"

// GetAppSpecificMachineID returns a stable, opaque 32-hex-character
// identifier for this host, derived by hashing the host's persistent
// machine id together with appSalt. The raw host id is never returned.
func (s *Service) GetAppSpecificMachineID() (string, error) {
	raw, err := hostMachineID()
	if err != nil {
		return "", errFromOS(err)
	}
	sum := checksum.Sum256(append(append([]byte{}, raw...), appSalt...))
	return hex.EncodeToString(sum[:])[:32], nil
}

func hostMachineID() ([]byte, error) {
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/etc/machine-id"); err == nil {
			return trimTrailingNewline(data), nil
		}
	}
	if data, err := os.ReadFile(machineIDFallbackPath); err == nil {
		return trimTrailingNewline(data), nil
	}
	return generateAndPersistMachineID()
}

func generateAndPersistMachineID() ([]byte, error) {
	id := make([]byte, 16)
	if _, err := readRandom(id); err != nil {
		return nil, err
	}
	if err := os.MkdirAll("/var/lib/outrungo", 0o755); err == nil {
		_ = os.WriteFile(machineIDFallbackPath, id, 0o644)
	}
	return id, nil
}

func trimTrailingNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
