package gitignore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// globalPatterns are always applied regardless of project ignore files:
// version control, dependencies, build output, caches, coverage,
// minified assets, and lock files.
var globalPatterns = []string{
	".git/",
	".hg/",
	".svn/",
	"node_modules/",
	"vendor/",
	"target/",
	"dist/",
	"build/",
	"out/",
	".next/",
	".nuxt/",
	"__pycache__/",
	".pytest_cache/",
	".mypy_cache/",
	".ruff_cache/",
	".venv/",
	"venv/",
	".tox/",
	".gradle/",
	".idea/",
	".vscode/",
	"coverage/",
	".coverage",
	"*.min.js",
	"*.min.css",
	"*.map",
	"*.lock",
	"package-lock.json",
	"yarn.lock",
	"pnpm-lock.yaml",
	"Cargo.lock",
	"go.sum",
	"*.pyc",
	"*.o",
	"*.a",
	"*.so",
	"*.dylib",
	"*.class",
	".DS_Store",
	".ccengram/",
}

// ignoreFileNames are the project ignore files consulted, in order.
var ignoreFileNames = []string{
	".gitignore",
	filepath.Join(".git", "info", "exclude"),
	".ccengramignore",
}

// cacheEntry holds a compiled matcher and its invalidation key.
type cacheEntry struct {
	matcher        *Matcher
	gitignoreMtime time.Time
	hash           string
}

// Cache is a process-wide read-mostly map of compiled matchers keyed by
// project root. Reads take a shared lock; compiles take the write lock.
// Independent projects never block each other's reads. Entries
// invalidate when the project .gitignore mtime changes.
type Cache struct {
	mu      sync.RWMutex
	entries *lru.Cache[string, *cacheEntry]
}

// defaultCache is the process-wide instance.
var defaultCache = NewCache(64)

// NewCache creates a cache bounded to maxProjects entries.
func NewCache(maxProjects int) *Cache {
	entries, err := lru.New[string, *cacheEntry](maxProjects)
	if err != nil {
		panic(err) // only fails for non-positive size
	}
	return &Cache{entries: entries}
}

// ForProject returns the process-wide cached matcher for a project root.
func ForProject(root string) *Matcher {
	return defaultCache.Get(root)
}

// HashForProject returns the process-wide combined ignore hash for a root.
func HashForProject(root string) string {
	return defaultCache.Hash(root)
}

// Invalidate drops the process-wide cache entry for a root.
func Invalidate(root string) {
	defaultCache.Invalidate(root)
}

// Get returns the matcher for a root, compiling it on miss or when the
// project .gitignore mtime changed.
func (c *Cache) Get(root string) *Matcher {
	if entry := c.lookup(root); entry != nil {
		return entry.matcher
	}
	return c.compile(root).matcher
}

// Hash returns the SHA-256 over the concatenated ignore-file contents,
// used for checkpoint invalidation.
func (c *Cache) Hash(root string) string {
	if entry := c.lookup(root); entry != nil {
		return entry.hash
	}
	return c.compile(root).hash
}

// Invalidate drops the entry for a root.
func (c *Cache) Invalidate(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(root)
}

func (c *Cache) lookup(root string) *cacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries.Get(root)
	if !ok {
		return nil
	}
	if entry.gitignoreMtime != gitignoreMtime(root) {
		return nil
	}
	return entry
}

func (c *Cache) compile(root string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Another writer may have compiled while we waited.
	if entry, ok := c.entries.Get(root); ok && entry.gitignoreMtime == gitignoreMtime(root) {
		return entry
	}

	matcher := New()
	for _, p := range globalPatterns {
		matcher.AddPattern(p)
	}

	hasher := sha256.New()
	for _, name := range ignoreFileNames {
		path := filepath.Join(root, name)
		_ = matcher.AddFile(path)
		if data, err := os.ReadFile(path); err == nil {
			_, _ = hasher.Write(data)
		}
	}

	entry := &cacheEntry{
		matcher:        matcher,
		gitignoreMtime: gitignoreMtime(root),
		hash:           hex.EncodeToString(hasher.Sum(nil)),
	}
	c.entries.Add(root, entry)
	return entry
}

// gitignoreMtime returns the project .gitignore mtime, zero when absent.
func gitignoreMtime(root string) time.Time {
	info, err := os.Stat(filepath.Join(root, ".gitignore"))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
