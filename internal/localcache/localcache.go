// Package localcache is the bulk/conditional local cache service exposed
// over RPC: operations that exist purely to avoid extra round trips
// (fetch many, fetch-if-changed, fetch-with-prefetch-bundle). Grounded on
// the original implementation's operations/local.py LocalCacheService.
package localcache

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/localfs"
	"github.com/outrungo/outrungo/internal/prefetch"
)

// Service implements spec.md §4.3's local cache service operations.
type Service struct {
	fs     localfs.Service
	policy prefetch.Policy

	mu               sync.Mutex
	fetchedMetadata  map[string]struct{}
	fetchedContents  map[string]struct{}
	prefetchable     []string
	prefetchFilterOn bool

	log *logrus.Entry
}

// NewService builds a Service with the default prefetch policy (all rules
// enabled) and no prefetchable-path restriction.
func NewService() *Service {
	return &Service{
		fetchedMetadata: make(map[string]struct{}),
		fetchedContents: make(map[string]struct{}),
		log:             logrus.WithField("component", "localcache"),
	}
}

// GetMetadata returns path's Metadata and marks it as fetched this session.
func (s *Service) GetMetadata(path string) cachemodel.Metadata {
	meta := s.statMetadata(path)
	s.markMetadataFetched(path)
	return meta
}

func (s *Service) statMetadata(path string) cachemodel.Metadata {
	attr, link, err := s.fs.GetAttr(path)
	if err != nil {
		return cachemodel.NewMetadataErr(err)
	}
	return cachemodel.NewMetadataAttr(attr, link)
}

func (s *Service) markMetadataFetched(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedMetadata[path] = struct{}{}
}

func (s *Service) markContentsFetched(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchedContents[path] = struct{}{}
}

func (s *Service) alreadyFetchedContents(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fetchedContents[path]
	return ok
}

// GetChangedMetadata re-reads every path in cached and returns only the
// entries whose significant metadata differs from what the caller already
// has.
func (s *Service) GetChangedMetadata(cached map[string]cachemodel.Metadata) map[string]cachemodel.Metadata {
	changed := make(map[string]cachemodel.Metadata)
	for path, prior := range cached {
		fresh := s.statMetadata(path)
		if fresh.Significant(prior) {
			changed[path] = fresh
		}
	}
	return changed
}

// ReadFile reads the whole file at path and marks it as fetched.
func (s *Service) ReadFile(path string) (*cachemodel.FileContents, error) {
	fc, err := s.readFileContents(path)
	if err != nil {
		return nil, err
	}
	s.markContentsFetched(path)
	return fc, nil
}

// ReadFileConditional reads path and returns its contents only if their
// checksum differs from checksum, returning nil if it's unchanged.
func (s *Service) ReadFileConditional(path string, checksum [32]byte) (*cachemodel.FileContents, error) {
	fc, err := s.readFileContents(path)
	if err != nil {
		return nil, err
	}
	if fc.Checksum == checksum {
		return nil, nil
	}
	s.markContentsFetched(path)
	return fc, nil
}

func (s *Service) readFileContents(path string) (*cachemodel.FileContents, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errFromOS(err)
	}
	return cachemodel.NewFileContents(raw)
}

// MarkPreviouslyFetchedContents records that the remote already holds
// these contents, so the prefetcher suppresses resending them.
func (s *Service) MarkPreviouslyFetchedContents(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		s.fetchedContents[p] = struct{}{}
	}
}

// SetPrefetchablePaths restricts prefetch suggestions to paths under one of
// the given prefixes. A nil slice disables the filter.
func (s *Service) SetPrefetchablePaths(paths []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefetchable = paths
	s.prefetchFilterOn = paths != nil
}
