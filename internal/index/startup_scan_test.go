package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/config"
)

func TestStartupScanDetectsDeletion(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "src/lib.go", "package src\n\nfunc Original() {}\n")
	require.NoError(t, f.indexer.IndexFile(context.Background(), "src/lib.go"))

	// Delete while "the actor is down", then reconcile.
	require.NoError(t, os.Remove(filepath.Join(f.root, "src", "lib.go")))

	s := NewStartupScanner(f.indexer)
	result, err := s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeFull})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.go"}, result.Deleted)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Modified)

	applied := s.Apply(context.Background(), result)
	assert.Equal(t, 1, applied.FilesDeleted)

	entries, err := f.store.ListFileEntries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStartupScanDetectsModification(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "src/lib.go", "package src\n\nfunc Original() {}\n")
	require.NoError(t, f.indexer.IndexFile(context.Background(), "src/lib.go"))

	f.writeFile(t, "src/lib.go", "package src\n\nfunc Modified() {}\n")

	s := NewStartupScanner(f.indexer)
	result, err := s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeFull})
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.go"}, result.Modified)

	applied := s.Apply(context.Background(), result)
	assert.Equal(t, 1, applied.FilesReindexed)

	chunks, err := f.store.ChunksByPath("src/lib.go")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	sawModified := false
	for _, c := range chunks {
		assert.NotContains(t, c.Content, "Original")
		if c.DefinitionName == "Modified" {
			sawModified = true
		}
	}
	assert.True(t, sawModified)
}

func TestStartupScanDetectsAddition(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "known.go", "package p\n\nfunc Known() {}\n")
	require.NoError(t, f.indexer.IndexFile(context.Background(), "known.go"))

	f.writeFile(t, "fresh.go", "package p\n\nfunc Fresh() {}\n")

	s := NewStartupScanner(f.indexer)
	result, err := s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeFull})
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh.go"}, result.Added)
	assert.Equal(t, 1, result.UnchangedCount)

	applied := s.Apply(context.Background(), result)
	assert.Equal(t, 1, applied.FilesIndexed)
}

func TestStartupScanModeGating(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "keep.go", "package p\n\nfunc Keep() {}\n")
	require.NoError(t, f.indexer.IndexFile(context.Background(), "keep.go"))

	f.writeFile(t, "keep.go", "package p\n\nfunc Changed() {}\n")
	f.writeFile(t, "added.go", "package p\n\nfunc Added() {}\n")

	// DeletedOnly: nothing but deletions survive.
	s := NewStartupScanner(f.indexer)
	result, err := s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeDeletedOnly})
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Modified)
	assert.Equal(t, 2, result.UnchangedCount)

	// DeletedAndNew: additions survive, modifications fold away.
	result, err = s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeDeletedAndNew})
	require.NoError(t, err)
	assert.Equal(t, []string{"added.go"}, result.Added)
	assert.Empty(t, result.Modified)
}

func TestStartupScanConvergesDBToFilesystem(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "stay.go", "package p\n\nfunc Stay() {}\n")
	f.writeFile(t, "drop.go", "package p\n\nfunc Drop() {}\n")
	require.NoError(t, f.indexer.IndexFile(context.Background(), "stay.go"))
	require.NoError(t, f.indexer.IndexFile(context.Background(), "drop.go"))

	require.NoError(t, os.Remove(filepath.Join(f.root, "drop.go")))
	f.writeFile(t, "join.go", "package p\n\nfunc Join() {}\n")

	s := NewStartupScanner(f.indexer)
	result, err := s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeFull})
	require.NoError(t, err)
	s.Apply(context.Background(), result)

	// After apply, DB paths equal filesystem paths.
	entries, err := f.store.ListFileEntries()
	require.NoError(t, err)
	paths := make(map[string]bool)
	for _, e := range entries {
		paths[e.Path] = true
	}
	assert.Equal(t, map[string]bool{"stay.go": true, "join.go": true}, paths)
}

func TestStartupScanCancellation(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "a.go", "package p\n\nfunc A() {}\n")

	s := NewStartupScanner(f.indexer)
	s.Cancel()

	result, err := s.Scan(context.Background(), ScanOptions{Mode: config.ScanModeFull})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Errors)
}
