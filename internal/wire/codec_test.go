package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/errkind"
)

func encodeDecode(t *testing.T, v any) any {
	t.Helper()
	data, err := Encode(v)
	require.NoError(t, err)
	raw, err := decodeRawUntagged(data)
	require.NoError(t, err)
	resolved, err := fromWire(raw)
	require.NoError(t, err)
	return resolved
}

func TestAttributesRoundTrip(t *testing.T) {
	attr := cachemodel.Attributes{
		Mode: 0o100644, Ino: 42, Dev: 1, Nlink: 1,
		UID: 1000, GID: 1000, Size: 4096,
		AtimeNs: 111, MtimeNs: 222, CtimeNs: 333,
		Blocks: 8, Rdev: 0,
	}
	got := encodeDecode(t, WrapAttributes(attr))
	assert.Equal(t, attr, got)
}

func TestMetadataRoundTrip(t *testing.T) {
	attr := cachemodel.Attributes{Mode: 0o40755, Size: 4096}
	meta := cachemodel.NewMetadataAttr(attr, nil)
	got := encodeDecode(t, WrapMetadata(meta))
	gotMeta, ok := got.(cachemodel.Metadata)
	require.True(t, ok)
	require.NotNil(t, gotMeta.Attr)
	assert.Equal(t, attr, *gotMeta.Attr)
	assert.Nil(t, gotMeta.Link)
	assert.Nil(t, gotMeta.Err)
}

func TestMetadataErrRoundTrip(t *testing.T) {
	meta := cachemodel.NewMetadataErr(&errkind.Error{Kind: errkind.NotFound, Class: "FileNotFoundError", Args: []any{"no such file"}})
	got := encodeDecode(t, WrapMetadata(meta))
	gotMeta, ok := got.(cachemodel.Metadata)
	require.True(t, ok)
	require.NotNil(t, gotMeta.Err)
	assert.Equal(t, errkind.NotFound, gotMeta.Err.Kind)
	assert.Equal(t, "FileNotFoundError", gotMeta.Err.Class)
}

func TestFileContentsRoundTrip(t *testing.T) {
	fc, err := cachemodel.NewFileContents([]byte("hello world"))
	require.NoError(t, err)
	got := encodeDecode(t, WrapFileContents(*fc))
	gotFC, ok := got.(cachemodel.FileContents)
	require.True(t, ok)
	assert.Equal(t, fc.Size, gotFC.Size)
	assert.Equal(t, fc.Checksum, gotFC.Checksum)
	assert.Equal(t, fc.CompressedData, gotFC.CompressedData)
}

func TestPrefetchEntryRoundTrip(t *testing.T) {
	attr := cachemodel.Attributes{Mode: 0o100644, Size: 5}
	fc, err := cachemodel.NewFileContents([]byte("hello"))
	require.NoError(t, err)
	entry := cachemodel.PrefetchEntry{
		Path:     "/a/b",
		Metadata: cachemodel.NewMetadataAttr(attr, nil),
		Contents: fc,
	}
	got := encodeDecode(t, WrapPrefetchEntry(entry))
	gotEntry, ok := got.(cachemodel.PrefetchEntry)
	require.True(t, ok)
	assert.Equal(t, entry.Path, gotEntry.Path)
	require.NotNil(t, gotEntry.Contents)
	assert.Equal(t, fc.Checksum, gotEntry.Contents.Checksum)
}

// TestGenericMapRoundTrip exercises the "@map" tag used for values like
// GetChangedMetadata's map[string]cachemodel.Metadata reply, which aren't
// registered records but still need their nested records resolved.
func TestGenericMapRoundTrip(t *testing.T) {
	attr := cachemodel.Attributes{Mode: 0o100644, Size: 10}
	in := map[string]any{
		"/a": WrapMetadata(cachemodel.NewMetadataAttr(attr, nil)),
		"/b": WrapMetadata(cachemodel.NewMetadataErr(&errkind.Error{Kind: errkind.PermissionDenied})),
	}
	got := encodeDecode(t, in)
	gotMap, ok := got.(map[string]any)
	require.True(t, ok)
	require.Len(t, gotMap, 2)
	a, ok := gotMap["/a"].(cachemodel.Metadata)
	require.True(t, ok)
	require.NotNil(t, a.Attr)
	assert.Equal(t, attr, *a.Attr)
	b, ok := gotMap["/b"].(cachemodel.Metadata)
	require.True(t, ok)
	require.NotNil(t, b.Err)
	assert.Equal(t, errkind.PermissionDenied, b.Err.Kind)
}

// TestArrayReplyRoundTrip exercises a top-level []any reply shape, like
// getattr's (Attributes, bool, string) or get_metadata_prefetch's
// (Metadata, []PrefetchEntry) - fromWire must recurse into slice elements,
// not just map values.
func TestArrayReplyRoundTrip(t *testing.T) {
	attr := cachemodel.Attributes{Mode: 0o120777, Size: 3}
	reply := []any{WrapAttributes(attr), true, "target"}
	got := encodeDecode(t, reply)
	gotSlice, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, gotSlice, 3)
	gotAttr, ok := gotSlice[0].(cachemodel.Attributes)
	require.True(t, ok)
	assert.Equal(t, attr, gotAttr)
	assert.Equal(t, true, gotSlice[1])
	assert.Equal(t, "target", gotSlice[2])
}

func TestNestedArrayOfRecordsRoundTrip(t *testing.T) {
	attr := cachemodel.Attributes{Mode: 0o100644, Size: 1}
	meta := cachemodel.NewMetadataAttr(attr, nil)
	entries := []any{
		WrapPrefetchEntry(cachemodel.PrefetchEntry{Path: "/x", Metadata: meta}),
		WrapPrefetchEntry(cachemodel.PrefetchEntry{Path: "/y", Metadata: meta}),
	}
	reply := []any{WrapMetadata(meta), entries}
	got := encodeDecode(t, reply)
	gotSlice, ok := got.([]any)
	require.True(t, ok)
	require.Len(t, gotSlice, 2)
	gotEntries, ok := gotSlice[1].([]any)
	require.True(t, ok)
	require.Len(t, gotEntries, 2)
	first, ok := gotEntries[0].(cachemodel.PrefetchEntry)
	require.True(t, ok)
	assert.Equal(t, "/x", first.Path)
}

func TestRequestResponseEnvelopeRoundTrip(t *testing.T) {
	method := "get_metadata"
	req := &Request{Token: [16]byte{1, 2, 3}, Method: &method, Args: []any{"/a/b", int64(7)}}
	data, err := EncodeRequest(req)
	require.NoError(t, err)
	got, err := DecodeRequest(data)
	require.NoError(t, err)
	assert.Equal(t, req.Token, got.Token)
	require.NotNil(t, got.Method)
	assert.Equal(t, method, *got.Method)
	require.Len(t, got.Args, 2)
	assert.Equal(t, "/a/b", got.Args[0])

	resp := &Response{Tag: Normal, Value: WrapAttributes(cachemodel.Attributes{Mode: 1})}
	data, err = EncodeResponse(resp)
	require.NoError(t, err)
	gotResp, err := DecodeResponse(data)
	require.NoError(t, err)
	assert.Equal(t, Normal, gotResp.Tag)
	attr, ok := gotResp.Value.(cachemodel.Attributes)
	require.True(t, ok)
	assert.Equal(t, uint32(1), attr.Mode)
}

type unregisteredRecord struct{}

func (unregisteredRecord) TypeName() string                { return "NotARealType" }
func (unregisteredRecord) EncodeFields() map[string]any { return map[string]any{} }

func TestUnknownRecordTypeErrors(t *testing.T) {
	data, err := Encode(unregisteredRecord{})
	require.NoError(t, err)
	raw, err := decodeRawUntagged(data)
	require.NoError(t, err)
	_, err = fromWire(raw)
	assert.Error(t, err)
}
