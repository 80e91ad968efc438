package gitignore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func timeNowPlusSecond() time.Time {
	return time.Now().Add(time.Second)
}

func TestDirectoryPatternMatchesAllDepths(t *testing.T) {
	m := New()
	m.AddPattern("node_modules/")

	assert.True(t, m.Match("node_modules", true))
	assert.True(t, m.Match("node_modules/react/index.js", false))
	assert.True(t, m.Match("packages/app/node_modules/lodash/fp/map.js", false))
	assert.False(t, m.Match("src/modules/node.js", false))
}

func TestNegation(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!important.log")

	assert.True(t, m.Match("debug.log", false))
	assert.False(t, m.Match("important.log", false))
}

func TestAnchoredPattern(t *testing.T) {
	m := New()
	m.AddPattern("/build")

	assert.True(t, m.Match("build", true))
	assert.True(t, m.Match("build/output.bin", false))
	assert.False(t, m.Match("src/build", true))
}

func TestInternalSlashAnchorsToRoot(t *testing.T) {
	m := New()
	m.AddPattern("doc/frotz")

	assert.True(t, m.Match("doc/frotz", true))
	assert.False(t, m.Match("a/doc/frotz", true))
}

func TestDoubleStarGlob(t *testing.T) {
	m := New()
	m.AddPattern("**/generated.go")

	assert.True(t, m.Match("generated.go", false))
	assert.True(t, m.Match("deep/nested/pkg/generated.go", false))
}

func TestCommentsAndBlanksIgnored(t *testing.T) {
	m := New()
	m.AddPattern("# a comment")
	m.AddPattern("")
	m.AddPattern("real-pattern")

	assert.False(t, m.Match("# a comment", false))
	assert.True(t, m.Match("real-pattern", false))
}

func TestWildcardMatchesBasenameAtAnyDepth(t *testing.T) {
	m := New()
	m.AddPattern("*.tmp")

	assert.True(t, m.Match("scratch.tmp", false))
	assert.True(t, m.Match("sub/dir/scratch.tmp", false)) // basename match
}

func TestCacheInvalidatesOnGitignoreChange(t *testing.T) {
	root := t.TempDir()
	gitignorePath := filepath.Join(root, ".gitignore")
	require.NoError(t, os.WriteFile(gitignorePath, []byte("alpha/\n"), 0o644))

	cache := NewCache(4)
	assert.True(t, cache.Get(root).Match("alpha/file.go", false))
	assert.False(t, cache.Get(root).Match("beta/file.go", false))

	firstHash := cache.Hash(root)
	assert.NotEmpty(t, firstHash)

	// Rewrite with a different mtime.
	require.NoError(t, os.WriteFile(gitignorePath, []byte("beta/\n"), 0o644))
	future := timeNowPlusSecond()
	require.NoError(t, os.Chtimes(gitignorePath, future, future))

	assert.True(t, cache.Get(root).Match("beta/file.go", false))
	assert.NotEqual(t, firstHash, cache.Hash(root))
}

func TestGlobalPatternsAlwaysApply(t *testing.T) {
	cache := NewCache(4)
	root := t.TempDir()

	m := cache.Get(root)
	assert.True(t, m.Match(".git/HEAD", false))
	assert.True(t, m.Match("node_modules/x/y.js", false))
	assert.True(t, m.Match("bundle.min.js", false))
	assert.False(t, m.Match("src/main.go", false))
}

func TestCcengramignoreConsulted(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ccengramignore"), []byte("secret/\n"), 0o644))

	cache := NewCache(4)
	assert.True(t, cache.Get(root).Match("secret/keys.txt", false))
}
