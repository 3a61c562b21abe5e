package prefetch

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFS struct {
	links    map[string]string
	regulars map[string]bool
	globs    map[string][]string
}

func (f fakeFS) Readlink(path string) (string, error) {
	target, ok := f.links[path]
	if !ok {
		return "", assertErr
	}
	return target, nil
}

func (f fakeFS) ReadAll(path string) ([]byte, error) { return nil, assertErr }

func (f fakeFS) IsRegularFile(path string) bool { return f.regulars[path] }

func (f fakeFS) Glob(pattern string) []string { return f.globs[pattern] }

var assertErr = &notFoundErr{}

type notFoundErr struct{}

func (*notFoundErr) Error() string { return "not found" }

func TestSymlinkTargetSuggestsAbsoluteTarget(t *testing.T) {
	fsys := fakeFS{links: map[string]string{"/etc/alternatives/x": "/usr/bin/x-real"}}
	got := SymlinkTarget("/etc/alternatives/x", fsys)
	require.Len(t, got, 1)
	assert.Equal(t, "/usr/bin/x-real", got[0].Path)
	assert.False(t, got[0].Contents)
}

func TestSymlinkTargetNormalizesRelativeTargetAgainstContainingDir(t *testing.T) {
	fsys := fakeFS{links: map[string]string{"/usr/lib/x86_64-linux-gnu/libfoo.so": "../libfoo.so.1"}}
	got := SymlinkTarget("/usr/lib/x86_64-linux-gnu/libfoo.so", fsys)
	require.Len(t, got, 1)
	assert.Equal(t, "/usr/lib/libfoo.so.1", got[0].Path)
}

func TestSymlinkTargetReturnsNothingForNonSymlink(t *testing.T) {
	fsys := fakeFS{links: map[string]string{}}
	got := SymlinkTarget("/etc/hosts", fsys)
	assert.Nil(t, got)
}

func TestPythonBytecodeSuggestsSourcePycacheDirAndGlobMatches(t *testing.T) {
	pycacheDir := "/usr/lib/python3/__pycache__"
	pattern := filepath.Join(pycacheDir, "foo*")
	fsys := fakeFS{
		regulars: map[string]bool{"/usr/lib/python3/foo.py": true},
		globs:    map[string][]string{pattern: {filepath.Join(pycacheDir, "foo.cpython-311.pyc")}},
	}
	got := PythonBytecode("/usr/lib/python3/foo.py", fsys)
	require.Len(t, got, 3)
	assert.Equal(t, Suggestion{Path: "/usr/lib/python3/foo.py", Contents: true}, got[0])
	assert.Equal(t, Suggestion{Path: pycacheDir, Contents: false}, got[1])
	assert.Equal(t, Suggestion{Path: filepath.Join(pycacheDir, "foo.cpython-311.pyc"), Contents: true}, got[2])
}

func TestPythonBytecodeSkipsNonexistentSource(t *testing.T) {
	got := PythonBytecode("/usr/lib/python3/foo.py", fakeFS{})
	assert.Nil(t, got)
}

func TestPythonBytecodeIgnoresPycacheFile(t *testing.T) {
	got := PythonBytecode("/usr/lib/python3/__pycache__/foo.cpython-311.pyc", fakeFS{})
	assert.Nil(t, got)
}

func TestPythonBytecodeIgnoresUnrelatedPath(t *testing.T) {
	got := PythonBytecode("/usr/lib/libfoo.so", fakeFS{regulars: map[string]bool{"/usr/lib/libfoo.so": true}})
	assert.Nil(t, got)
}

func TestCompiledPerlModuleOnlySuggestsSourceForCompiled(t *testing.T) {
	got := CompiledPerlModule("/usr/share/perl5/Foo.pmc", fakeFS{})
	require.Len(t, got, 1)
	assert.Equal(t, "/usr/share/perl5/Foo.pm", got[0].Path)
	assert.True(t, got[0].Contents)
}

func TestCompiledPerlModuleSuggestsNothingForSource(t *testing.T) {
	got := CompiledPerlModule("/usr/share/perl5/Foo.pm", fakeFS{})
	assert.Nil(t, got)
}

func TestApplyPolicyAllRunsEverySuitableRule(t *testing.T) {
	onAccess := Apply(PolicyAll, false)
	var names []string
	for _, r := range onAccess {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "symlink-target")
	assert.NotContains(t, names, "elf-dependencies", "elf-dependencies only runs on read")

	onRead := Apply(PolicyAll, true)
	names = nil
	for _, r := range onRead {
		names = append(names, r.Name)
	}
	assert.Contains(t, names, "elf-dependencies")
}

func TestApplyPolicyMetadataOnlySkipsReads(t *testing.T) {
	assert.Nil(t, Apply(PolicyMetadataOnly, true))
	assert.NotEmpty(t, Apply(PolicyMetadataOnly, false))
}

func TestApplyPolicyOffRunsNothing(t *testing.T) {
	assert.Nil(t, Apply(PolicyOff, false))
	assert.Nil(t, Apply(PolicyOff, true))
}

func TestPolicySetAndString(t *testing.T) {
	var p Policy
	require.NoError(t, p.Set("metadata-only"))
	assert.Equal(t, PolicyMetadataOnly, p)
	assert.Equal(t, "metadata-only", p.String())
	assert.Error(t, p.Set("bogus"))
}
