package localcache

import "github.com/outrungo/outrungo/internal/cachemodel"

// GetMetadataPrefetch returns path's Metadata alongside the prefetch bundle
// produced by the access-time rules.
func (s *Service) GetMetadataPrefetch(path string) (cachemodel.Metadata, []cachemodel.PrefetchEntry) {
	meta := s.GetMetadata(path)
	entries := safeResolve(s, path, false)
	return meta, entries
}

// ReadFilePrefetch reads path's content alongside the prefetch bundle
// produced by the read-time rules.
func (s *Service) ReadFilePrefetch(path string) (*cachemodel.FileContents, []cachemodel.PrefetchEntry, error) {
	fc, err := s.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	entries := safeResolve(s, path, true)
	return fc, entries, nil
}

// safeResolve runs the prefetch resolver and converts any panic or
// otherwise-unexpected failure into an empty bundle rather than letting it
// escape to the primary call - resolvePrefetch itself never returns an
// error, but individual rule functions are third-party-adjacent code
// (shelling out to ldd) and this is the documented last line of defense.
func safeResolve(s *Service, path string, onRead bool) (entries []cachemodel.PrefetchEntry) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("path", path).WithField("panic", r).Warn("prefetch resolver panicked, continuing without prefetch")
			entries = nil
		}
	}()
	raw := resolvePrefetch(s, path, onRead)
	entries = make([]cachemodel.PrefetchEntry, len(raw))
	for i, e := range raw {
		entries[i] = e.toModel()
	}
	return entries
}
