package wire

import (
	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/errkind"
)

// This file is the static registry the package doc promises: every
// wire-visible cachemodel type gets one init()-time RegisterRecord call
// here (errkind errors need none: toWire and fromWire handle them
// directly), plus a Wrap* helper callers use to mark a value as that
// registered type before handing it to Encode. There is no reflection-based
// discovery - each type is named once, explicitly, the Go analogue of the
// original's dataclass registration.

type attributesRecord cachemodel.Attributes

func WrapAttributes(a cachemodel.Attributes) Encodable { return attributesRecord(a) }

func (attributesRecord) TypeName() string { return "Attributes" }

func (a attributesRecord) EncodeFields() map[string]any {
	return map[string]any{
		"mode": a.Mode, "ino": a.Ino, "dev": a.Dev, "nlink": a.Nlink,
		"uid": a.UID, "gid": a.GID, "size": a.Size,
		"atime_ns": a.AtimeNs, "mtime_ns": a.MtimeNs, "ctime_ns": a.CtimeNs,
		"blocks": a.Blocks, "rdev": a.Rdev,
	}
}

func decodeAttributes(f map[string]any) (any, error) {
	return cachemodel.Attributes{
		Mode: toUint32(f["mode"]), Ino: toUint64(f["ino"]), Dev: toUint64(f["dev"]),
		Nlink: toUint64(f["nlink"]), UID: toUint32(f["uid"]), GID: toUint32(f["gid"]),
		Size: toInt64(f["size"]), AtimeNs: toInt64(f["atime_ns"]),
		MtimeNs: toInt64(f["mtime_ns"]), CtimeNs: toInt64(f["ctime_ns"]),
		Blocks: toInt64(f["blocks"]), Rdev: toUint64(f["rdev"]),
	}, nil
}

type wireErrorRecord cachemodel.WireError

func WrapWireError(w cachemodel.WireError) Encodable { return wireErrorRecord(w) }

func (wireErrorRecord) TypeName() string { return "WireError" }

func (w wireErrorRecord) EncodeFields() map[string]any {
	return map[string]any{"kind": int(w.Kind), "class": w.Class, "args": w.Args}
}

func decodeWireError(f map[string]any) (any, error) {
	kind := errkind.Kind(toInt64(f["kind"]))
	class, _ := f["class"].(string)
	args, _ := f["args"].([]any)
	return cachemodel.WireError{Kind: kind, Class: class, Args: args}, nil
}

type metadataRecord cachemodel.Metadata

func WrapMetadata(m cachemodel.Metadata) Encodable { return metadataRecord(m) }

func (metadataRecord) TypeName() string { return "Metadata" }

func (m metadataRecord) EncodeFields() map[string]any {
	fields := map[string]any{}
	if m.Attr != nil {
		fields["attr"] = WrapAttributes(*m.Attr)
	}
	if m.Link != nil {
		fields["link"] = *m.Link
	}
	if m.Err != nil {
		fields["err"] = WrapWireError(*m.Err)
	}
	return fields
}

func decodeMetadata(f map[string]any) (any, error) {
	m := cachemodel.Metadata{}
	if attr, ok := f["attr"].(cachemodel.Attributes); ok {
		m.Attr = &attr
	}
	if link, ok := f["link"].(string); ok {
		m.Link = &link
	}
	if werr, ok := f["err"].(cachemodel.WireError); ok {
		m.Err = &werr
	}
	return m, nil
}

type fileContentsRecord cachemodel.FileContents

func WrapFileContents(c cachemodel.FileContents) Encodable { return fileContentsRecord(c) }

func (fileContentsRecord) TypeName() string { return "FileContents" }

func (c fileContentsRecord) EncodeFields() map[string]any {
	return map[string]any{
		"compressed_data": c.CompressedData,
		"size":            c.Size,
		"checksum":        c.Checksum[:],
	}
}

func decodeFileContents(f map[string]any) (any, error) {
	data, _ := f["compressed_data"].([]byte)
	var sum [32]byte
	if raw, ok := f["checksum"].([]byte); ok {
		copy(sum[:], raw)
	}
	return cachemodel.FileContents{
		CompressedData: data,
		Size:           toInt64(f["size"]),
		Checksum:       sum,
	}, nil
}

type prefetchEntryRecord cachemodel.PrefetchEntry

func WrapPrefetchEntry(p cachemodel.PrefetchEntry) Encodable { return prefetchEntryRecord(p) }

func (prefetchEntryRecord) TypeName() string { return "PrefetchEntry" }

func (p prefetchEntryRecord) EncodeFields() map[string]any {
	fields := map[string]any{
		"path": p.Path,
		"meta": WrapMetadata(p.Metadata),
	}
	if p.Contents != nil {
		fields["contents"] = WrapFileContents(*p.Contents)
	}
	return fields
}

func decodePrefetchEntry(f map[string]any) (any, error) {
	path, _ := f["path"].(string)
	meta, _ := f["meta"].(cachemodel.Metadata)
	entry := cachemodel.PrefetchEntry{Path: path, Metadata: meta}
	if contents, ok := f["contents"].(cachemodel.FileContents); ok {
		entry.Contents = &contents
	}
	return entry, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toUint32(v any) uint32 { return uint32(toInt64(v)) }
func toUint64(v any) uint64 { return uint64(toInt64(v)) }

func init() {
	RegisterRecord("Attributes", decodeAttributes)
	RegisterRecord("WireError", decodeWireError)
	RegisterRecord("Metadata", decodeMetadata)
	RegisterRecord("FileContents", decodeFileContents)
	RegisterRecord("PrefetchEntry", decodePrefetchEntry)
}
