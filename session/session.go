// Package session wires the core (internal/rpc, internal/cacheengine,
// internal/remotefs) to the narrow set of things spec.md says the core
// consumes from its external collaborators: a bearer token, three
// loopback RPC endpoints, a mountpoint, a machine id, a cache directory,
// and a mount-complete callback. It deliberately has no SSH/process
// orchestration or CLI argument parsing - those are out of scope per
// SPEC_FULL.md §1 and live, if at all, in cmd/outrun-remote.
package session

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/winfsp/cgofuse/fuse"

	"github.com/outrungo/outrungo/internal/cacheengine"
	"github.com/outrungo/outrungo/internal/cacheindex"
	"github.com/outrungo/outrungo/internal/cachemode"
	"github.com/outrungo/outrungo/internal/remotefs"
	"github.com/outrungo/outrungo/internal/rpc"
)

// Config is everything session.Mount needs from its caller. The
// environment RPC endpoint is accepted for symmetry with spec.md §6's
// three-service loopback layout but is otherwise untouched by this
// package - environment variable propagation is out of scope here.
type Config struct {
	Token               [16]byte
	EnvironmentEndpoint string
	FilesystemEndpoint  string
	CacheEndpoint       string

	MountPoint     string
	MachineID      string
	CacheDir       string
	IndexFormat    cachemode.IndexFormat
	CacheablePaths []string
	Budget         cacheengine.Budget
	Workers        int

	OnMounted func()
}

// Session is a mounted file system: an *rpc.Client pair, a
// *cacheengine.Engine, and the *fuse.FileSystemHost hosting the
// *remotefs.FS adapter, run in a background goroutine until Unmount.
type Session struct {
	fsClient    *rpc.Client
	cacheClient *rpc.Client
	engine      *cacheengine.Engine
	adapter     *remotefs.FS
	host        *fuse.FileSystemHost
	mountPoint  string

	mu       sync.Mutex
	mounted  bool
	errCh    chan error
	unmounts sync.Once
}

// Mount builds the engine and adapter from cfg, performs Load+Sync
// against the on-disk index, and starts the FUSE mount in a background
// goroutine. The returned *Session is usable (Unmount, Err) even if the
// background Mount call hasn't returned yet; failures there are reported
// on Err().
func Mount(cfg Config) (*Session, error) {
	if cfg.MountPoint == "" {
		return nil, errors.New("session: mount point required")
	}

	fsClient := rpc.NewClient(cfg.FilesystemEndpoint, cfg.Token)
	cacheClient := rpc.NewClient(cfg.CacheEndpoint, cfg.Token)

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	budget := cfg.Budget
	engine := cacheengine.NewEngine(cacheClient, store, cfg.CacheDir, cfg.MachineID, indexLockPath(cfg.CacheDir), budget, cfg.Workers)
	if len(cfg.CacheablePaths) > 0 {
		engine.CacheablePaths = cfg.CacheablePaths
	}

	if err := engine.Load(); err != nil {
		return nil, errors.Wrap(err, "session: load cache index")
	}
	if err := engine.Sync(); err != nil {
		logrus.WithError(err).Warn("session: startup cache sync failed, continuing with stale entries")
	}

	adapter := remotefs.New(engine, fsClient, cfg.OnMounted, cfg.Workers)
	host := fuse.NewFileSystemHost(adapter)

	s := &Session{
		fsClient:    fsClient,
		cacheClient: cacheClient,
		engine:      engine,
		adapter:     adapter,
		host:        host,
		mountPoint:  cfg.MountPoint,
		errCh:       make(chan error, 1),
	}

	go s.run()
	return s, nil
}

func (s *Session) run() {
	if ok := s.host.Mount(s.mountPoint, nil); !ok {
		s.errCh <- errors.New("session: fuse mount failed")
		return
	}
	s.mu.Lock()
	s.mounted = true
	s.mu.Unlock()
	if err := s.adapter.SaveErr(); err != nil {
		s.errCh <- err
	}
}

// Unmount requests the FUSE mount tear down; Destroy (triggered by the
// kernel FS contract as part of unmounting) runs the cache's synchronous
// Save. Safe to call more than once.
func (s *Session) Unmount() error {
	var unmountOK bool
	s.unmounts.Do(func() {
		unmountOK = s.host.Unmount()
	})
	_ = s.fsClient.Close()
	_ = s.cacheClient.Close()
	if !unmountOK {
		return errors.New("session: unmount failed")
	}
	return s.adapter.SaveErr()
}

// Err surfaces asynchronous mount/save failures: spec.md §1's "synchronous
// error surface" translated into a channel a caller can select on.
func (s *Session) Err() <-chan error {
	return s.errCh
}

func openStore(cfg Config) (cacheindex.Store, error) {
	switch cfg.IndexFormat {
	case cachemode.IndexFormatJSON:
		return cacheindex.OpenJSONStore(indexJSONPath(cfg.CacheDir)), nil
	default:
		store, err := cacheindex.OpenBoltStore(indexBoltPath(cfg.CacheDir))
		if err != nil {
			return nil, errors.Wrap(err, "session: open cache index")
		}
		return store, nil
	}
}

func indexLockPath(cacheDir string) string { return cacheDir + "/index.lock" }
func indexJSONPath(cacheDir string) string { return cacheDir + "/index.json" }
func indexBoltPath(cacheDir string) string { return cacheDir + "/index.bolt" }
