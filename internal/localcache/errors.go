package localcache

import "github.com/outrungo/outrungo/internal/errkind"

func errFromOS(err error) error {
	return errkind.FromOSError(err)
}
