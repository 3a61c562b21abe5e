// Package prefetch implements the opportunistic prefetch rules run
// alongside a primary metadata/content fetch: small, pure, non-recursive
// predicates that each look only at the path they're given and suggest
// zero or more related paths worth fetching speculatively. Grounded
// directly on the original implementation's
// filesystem/caching/prefetching.py, rule for rule.
package prefetch

import (
	"bufio"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Suggestion is one speculative fetch a rule proposes.
type Suggestion struct {
	Path     string
	Contents bool
}

// PathFS is the minimal file system surface a rule needs to inspect the
// triggering path - just enough to read a symlink target, check whether a
// path names a regular file, or list a directory's matching entries. Rules
// never walk a directory tree, only glob a single one.
type PathFS interface {
	Readlink(path string) (string, error)
	ReadAll(path string) ([]byte, error)
	IsRegularFile(path string) bool
	Glob(pattern string) []string
}

// Rule is one prefetch predicate, dispatched on either an access or a read
// of path.
type Rule struct {
	Name    string
	OnRead  bool // runs only on read when true; otherwise on both access and read
	Suggest func(path string, fsys PathFS) []Suggestion
}

// Rules is the fixed set of prefetch rules this system runs, in order.
var Rules = []Rule{
	{Name: "symlink-target", Suggest: SymlinkTarget},
	{Name: "python-bytecode", Suggest: PythonBytecode},
	{Name: "compiled-perl-module", Suggest: CompiledPerlModule},
	{Name: "elf-dependencies", OnRead: true, Suggest: ElfDependencies},
}

// SymlinkTarget suggests the normalized target of a symlink being accessed,
// since a caller that stats a symlink is very likely about to follow it. A
// relative target is resolved against the symlink's own containing
// directory, mirroring os.path.normpath(os.path.join(path, "..", target)).
func SymlinkTarget(path string, fsys PathFS) []Suggestion {
	target, err := fsys.Readlink(path)
	if err != nil || target == "" {
		return nil
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(path), target)
	}
	return []Suggestion{{Path: filepath.Clean(target), Contents: false}}
}

// PythonBytecode suggests the compiled __pycache__ companion of an existing
// .py file: the source itself, the __pycache__ directory (metadata only, to
// let a subsequent listing find what's there), and every cache file already
// matching the module's basename, mirroring CPython's interpreter-tagged
// naming convention (foo.cpython-311.pyc, not a single fixed suffix).
func PythonBytecode(path string, fsys PathFS) []Suggestion {
	if !strings.HasSuffix(path, ".py") || !fsys.IsRegularFile(path) {
		return nil
	}

	suggestions := []Suggestion{{Path: path, Contents: true}}

	pycacheDir := filepath.Join(filepath.Dir(path), "__pycache__")
	suggestions = append(suggestions, Suggestion{Path: pycacheDir, Contents: false})

	base := strings.ReplaceAll(filepath.Base(path), ".py", "")
	for _, f := range fsys.Glob(filepath.Join(pycacheDir, base+"*")) {
		suggestions = append(suggestions, Suggestion{Path: f, Contents: true})
	}
	return suggestions
}

// CompiledPerlModule suggests the source .pm for a compiled .pmc, matching
// Perl's own module-compilation cache convention. There is no corresponding
// .pm -> .pmc direction: a .pmc is only ever a derived artifact, never one
// whose existence implies the other should be prefetched.
func CompiledPerlModule(path string, fsys PathFS) []Suggestion {
	if !strings.HasSuffix(path, ".pmc") {
		return nil
	}
	return []Suggestion{{Path: strings.ReplaceAll(path, ".pmc", ".pm"), Contents: true}}
}

var lddLine = regexp.MustCompile(`^\S+ => (\S+) \(0x[0-9a-f]+\)$`)

// ElfDependencies runs ldd against a path already confirmed to be an ELF
// binary (via the file(1) utility) and suggests, for each resolved
// shared-object dependency, both the dependency path itself (metadata only
// - it may be a symlink) and its fully resolved realpath (contents), since
// an executable or shared library almost always immediately needs its
// dependencies read too.
//
// The line parser below is a literal port of the original implementation's
// regex and is known not to handle every ldd output shape (entries with an
// embedded space in the resolved path, or a "=>" inside the path itself,
// are silently skipped rather than parsed correctly). That's preserved
// intentionally, not fixed.
func ElfDependencies(path string, fsys PathFS) []Suggestion {
	if !isELFBinary(path) {
		return nil
	}
	deps := readELFDependencies(path)
	if len(deps) == 0 {
		return nil
	}

	suggestions := make([]Suggestion, 0, len(deps)*2)
	for _, dep := range deps {
		suggestions = append(suggestions, Suggestion{Path: dep, Contents: false})
	}
	for _, dep := range deps {
		suggestions = append(suggestions, Suggestion{Path: realpath(dep), Contents: true})
	}
	return suggestions
}

func isELFBinary(path string) bool {
	out, err := exec.Command("file", path).Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "ELF")
}

func readELFDependencies(path string) []string {
	out, err := exec.Command("ldd", path).Output()
	if err != nil {
		return nil
	}
	var deps []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		m := lddLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		deps = append(deps, m[1])
	}
	return deps
}

func realpath(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}
