// Package cachemode defines the small pflag.Value-shaped enums that
// configure the cache engine, following the String/Set/Type shape rclone
// uses for its own CacheMode flag type (vfs/vfscommon/cachemode.go).
package cachemode

import "fmt"

// IndexFormat selects which on-disk representation internal/cacheindex
// persists the cache index in.
type IndexFormat int

const (
	// IndexFormatBolt is the default: a single bbolt database file, the
	// same storage engine the teacher's own persistent cache backend uses.
	IndexFormatBolt IndexFormat = iota
	// IndexFormatJSON keeps the on-disk layout literally described by the
	// distilled specification: an index.json file plus an index.lock
	// advisory lock file.
	IndexFormatJSON
)

var indexFormatNames = map[IndexFormat]string{
	IndexFormatBolt: "bolt",
	IndexFormatJSON: "json",
}

func (f IndexFormat) String() string {
	if name, ok := indexFormatNames[f]; ok {
		return name
	}
	return "unknown"
}

// Set implements pflag.Value.
func (f *IndexFormat) Set(s string) error {
	switch s {
	case "bolt":
		*f = IndexFormatBolt
	case "json":
		*f = IndexFormatJSON
	default:
		return fmt.Errorf("cachemode: unknown index format %q (want bolt or json)", s)
	}
	return nil
}

// Type implements pflag.Value.
func (f IndexFormat) Type() string { return "IndexFormat" }
