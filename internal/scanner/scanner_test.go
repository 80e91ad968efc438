package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, content, 0o644))
}

func relPaths(files []FileInfo) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestScanRespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", []byte("ignored/\n"))
	writeFile(t, root, "src/main.go", []byte("package main\n"))
	writeFile(t, root, "ignored/secret.go", []byte("package secret\n"))

	files, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)

	paths := relPaths(files)
	assert.Contains(t, paths, "src/main.go")
	assert.NotContains(t, paths, "ignored/secret.go")
}

func TestScanSkipsBinaryAndOversize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "ok.go", []byte("package ok\n"))
	writeFile(t, root, "blob.go", append([]byte("package blob\x00"), make([]byte, 100)...))
	writeFile(t, root, "big.go", make([]byte, 2048))

	files, err := Scan(context.Background(), root, Options{MaxFileSize: 1024})
	require.NoError(t, err)

	paths := relPaths(files)
	assert.Equal(t, []string{"ok.go"}, paths)
}

func TestScanSkipsUnknownExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.bin2", []byte("not code"))
	writeFile(t, root, "main.go", []byte("package main\n"))

	files, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go"}, relPaths(files))
}

func TestScanComputesChecksumAndLanguage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib.py", []byte("def f():\n    pass\n"))

	files, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "python", f.Language)
	assert.Len(t, f.Checksum, 64)
	assert.Positive(t, f.Size)
	assert.False(t, f.ModTime.IsZero())
}

func TestScanDocsOnlyWhenRequested(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "README.md", []byte("# readme\n"))
	writeFile(t, root, "main.go", []byte("package main\n"))

	withoutDocs, err := Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.NotContains(t, relPaths(withoutDocs), "README.md")

	withDocs, err := Scan(context.Background(), root, Options{IncludeDocs: true})
	require.NoError(t, err)
	assert.Contains(t, relPaths(withDocs), "README.md")
}
