// Package localservice wires internal/localfs and internal/localcache onto
// an internal/rpc.Server: this is the local side of the RPC boundary, the
// process running on the machine whose files are being shared. Grounded on
// the original implementation's service registration in
// filesystem/caching/service.py and operations/local.py, generalized from
// duck-typed attribute dispatch to this system's explicit method registry
// (internal/rpc.Method* constants).
package localservice

import (
	"net"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/errkind"
	"github.com/outrungo/outrungo/internal/localcache"
	"github.com/outrungo/outrungo/internal/localfs"
	"github.com/outrungo/outrungo/internal/rpc"
	"github.com/outrungo/outrungo/internal/wire"
)

// Register builds every handler spec.md §4.2/§4.3 names and adds them to
// server.
func Register(server *rpc.Server, fs localfs.Service, cache *localcache.Service) {
	registerFSHandlers(server, fs)
	registerCacheHandlers(server, cache)
}

// Listen opens addr and returns it ready for server.Serve.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

func registerCacheHandlers(server *rpc.Server, cache *localcache.Service) {
	server.Register(rpc.MethodGetMetadata, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		return wire.WrapMetadata(cache.GetMetadata(path)), nil
	})

	server.Register(rpc.MethodGetChangedMetadata, func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, protocolErr("get_changed_metadata")
		}
		raw, ok := args[0].(map[string]any)
		if !ok {
			return nil, protocolErr("get_changed_metadata")
		}
		cached := make(map[string]cachemodel.Metadata, len(raw))
		for path, v := range raw {
			if meta, ok := v.(cachemodel.Metadata); ok {
				cached[path] = meta
			}
		}
		changed := cache.GetChangedMetadata(cached)
		out := make(map[string]any, len(changed))
		for path, meta := range changed {
			out[path] = wire.WrapMetadata(meta)
		}
		return out, nil
	})

	server.Register(rpc.MethodReadFile, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		fc, err := cache.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return wire.WrapFileContents(*fc), nil
	})

	server.Register(rpc.MethodReadFileConditional, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		checksum, err := argChecksum(args, 1)
		if err != nil {
			return nil, err
		}
		fc, err := cache.ReadFileConditional(path, checksum)
		if err != nil {
			return nil, err
		}
		if fc == nil {
			return nil, nil
		}
		return wire.WrapFileContents(*fc), nil
	})

	server.Register(rpc.MethodGetMetadataPrefetch, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		meta, entries := cache.GetMetadataPrefetch(path)
		return []any{wire.WrapMetadata(meta), wrapEntries(entries)}, nil
	})

	server.Register(rpc.MethodReadFilePrefetch, func(args []any) (any, error) {
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		fc, entries, err := cache.ReadFilePrefetch(path)
		if err != nil {
			return nil, err
		}
		return []any{wire.WrapFileContents(*fc), wrapEntries(entries)}, nil
	})

	server.Register(rpc.MethodMarkPreviouslyFetchedContent, func(args []any) (any, error) {
		paths, err := argStringSlice(args, 0)
		if err != nil {
			return nil, err
		}
		cache.MarkPreviouslyFetchedContents(paths)
		return nil, nil
	})

	server.Register(rpc.MethodSetPrefetchablePaths, func(args []any) (any, error) {
		if len(args) == 0 || args[0] == nil {
			cache.SetPrefetchablePaths(nil)
			return nil, nil
		}
		paths, err := argStringSlice(args, 0)
		if err != nil {
			return nil, err
		}
		cache.SetPrefetchablePaths(paths)
		return nil, nil
	})

	server.Register(rpc.MethodGetAppSpecificMachineID, func(args []any) (any, error) {
		return cache.GetAppSpecificMachineID()
	})
}

func wrapEntries(entries []cachemodel.PrefetchEntry) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = wire.WrapPrefetchEntry(e)
	}
	return out
}

func argString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", protocolErr("missing argument")
	}
	s, ok := args[i].(string)
	if !ok {
		return "", protocolErr("expected string argument")
	}
	return s, nil
}

func argStringSlice(args []any, i int) ([]string, error) {
	if i >= len(args) {
		return nil, protocolErr("missing argument")
	}
	raw, ok := args[i].([]any)
	if !ok {
		return nil, protocolErr("expected string list argument")
	}
	out := make([]string, len(raw))
	for j, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, protocolErr("expected string list argument")
		}
		out[j] = s
	}
	return out, nil
}

func argChecksum(args []any, i int) ([32]byte, error) {
	var sum [32]byte
	if i >= len(args) {
		return sum, protocolErr("missing argument")
	}
	raw, ok := args[i].([]byte)
	if !ok {
		return sum, protocolErr("expected checksum bytes")
	}
	copy(sum[:], raw)
	return sum, nil
}

func protocolErr(what string) error {
	return &errkind.Error{Kind: errkind.ProtocolError, Class: "BadArguments", Args: []any{what}}
}
