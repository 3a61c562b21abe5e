package cachemodel

import "errors"

var errChecksumMismatch = errors.New("cachemodel: content checksum mismatch after decompression")
