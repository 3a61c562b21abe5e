package localcache

import (
	"path/filepath"

	"github.com/outrungo/outrungo/internal/cachemodel"
	"github.com/outrungo/outrungo/internal/prefetch"
)

// fsysAdapter lets prefetch rules read symlink targets, whole-file bytes,
// regular-file status, and directory globs through this service's own
// localfs.Service, without prefetch depending on localfs directly.
type fsysAdapter struct{ s *Service }

func (a fsysAdapter) Readlink(path string) (string, error) {
	return a.s.fs.Readlink(path)
}

func (a fsysAdapter) ReadAll(path string) ([]byte, error) {
	fc, err := a.s.readFileContents(path)
	if err != nil {
		return nil, err
	}
	return fc.Decompress()
}

func (a fsysAdapter) IsRegularFile(path string) bool {
	attr, _, err := a.s.fs.GetAttr(path)
	if err != nil {
		return false
	}
	return attr.IsRegular()
}

func (a fsysAdapter) Glob(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	return matches
}

// suggestion collapses the per-path contents flag by logical OR across
// however many rules proposed the same path.
type suggestion struct {
	path     string
	contents bool
}

func gatherSuggestions(s *Service, path string, onRead bool) []suggestion {
	rules := prefetch.Apply(s.policy, onRead)
	if len(rules) == 0 {
		return nil
	}
	fsys := fsysAdapter{s: s}
	byPath := make(map[string]*suggestion)
	var order []string
	for _, r := range rules {
		for _, sug := range r.Suggest(path, fsys) {
			if existing, ok := byPath[sug.Path]; ok {
				existing.contents = existing.contents || sug.Contents
				continue
			}
			byPath[sug.Path] = &suggestion{path: sug.Path, contents: sug.Contents}
			order = append(order, sug.Path)
		}
	}
	out := make([]suggestion, 0, len(order))
	for _, p := range order {
		out = append(out, *byPath[p])
	}
	return out
}

func (s *Service) isPrefetchable(path string) bool {
	s.mu.Lock()
	filterOn := s.prefetchFilterOn
	prefetchable := s.prefetchable
	s.mu.Unlock()
	if !filterOn {
		return true
	}
	for _, prefix := range prefetchable {
		if pathHasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func pathHasPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	if path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// resolvePrefetch turns raw rule suggestions into fetched PrefetchEntry
// records: dedup by path (done by gatherSuggestions), filter against the
// prefetchable set and the already-fetched-this-session sets, then fetch
// metadata (and, if requested and safe, contents) for each survivor. A
// stat failure is carried in the entry's metadata as an error; a contents
// read failure is logged and the entry is kept with metadata only. A
// resolver failure never fails the primary call.
func resolvePrefetch(s *Service, triggerPath string, onRead bool) []prefetchEntry {
	suggestions := gatherSuggestions(s, triggerPath, onRead)
	var entries []prefetchEntry
	for _, sug := range suggestions {
		if !s.isPrefetchable(sug.path) {
			continue
		}

		s.mu.Lock()
		_, metaDone := s.fetchedMetadata[sug.path]
		_, contentsDone := s.fetchedContents[sug.path]
		s.mu.Unlock()

		wantContents := sug.contents && !contentsDone
		if metaDone && !wantContents {
			continue
		}

		meta := s.statMetadata(sug.path)
		if !metaDone {
			s.markMetadataFetched(sug.path)
		}

		entry := prefetchEntry{path: sug.path, meta: meta}
		if wantContents && !meta.IsErr() && meta.Attr != nil && meta.Attr.IsRegular() {
			fc, err := s.readFileContents(sug.path)
			if err != nil {
				s.log.WithError(err).WithField("path", sug.path).Warn("prefetch content read failed")
			} else {
				s.markContentsFetched(sug.path)
				entry.contents = fc
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

type prefetchEntry struct {
	path     string
	meta     cachemodel.Metadata
	contents *cachemodel.FileContents
}

func (e prefetchEntry) toModel() cachemodel.PrefetchEntry {
	return cachemodel.PrefetchEntry{Path: e.path, Metadata: e.meta, Contents: e.contents}
}
