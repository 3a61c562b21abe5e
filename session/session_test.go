package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMountRequiresMountPoint(t *testing.T) {
	_, err := Mount(Config{})
	assert.ErrorContains(t, err, "mount point required")
}

func TestIndexPathHelpersJoinCacheDir(t *testing.T) {
	assert.Equal(t, "/var/cache/outrun/index.lock", indexLockPath("/var/cache/outrun"))
	assert.Equal(t, "/var/cache/outrun/index.json", indexJSONPath("/var/cache/outrun"))
	assert.Equal(t, "/var/cache/outrun/index.bolt", indexBoltPath("/var/cache/outrun"))
}
