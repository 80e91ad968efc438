package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/gitignore"
	"github.com/ccengram/ccengram/internal/store"
	"github.com/ccengram/ccengram/internal/testutil"
	"github.com/ccengram/ccengram/internal/watcher"
)

type indexFixture struct {
	root     string
	store    *store.Store
	embedder *testutil.FakeEmbedder
	indexer  *Indexer
}

func newFixture(t *testing.T) *indexFixture {
	t.Helper()

	root := t.TempDir()
	st, err := store.Open(t.TempDir(), testutil.TestDimensions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Embedding.Dimensions = testutil.TestDimensions
	embedder := testutil.NewFakeEmbedder()

	return &indexFixture{
		root:     root,
		store:    st,
		embedder: embedder,
		indexer:  New(st, embedder, cfg, config.ProjectID(root), root),
	}
}

func (f *indexFixture) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestIndexProjectIndexesAllFiles(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "src/alpha.go", "package src\n\nfunc Alpha() int { return 1 }\n")
	f.writeFile(t, "src/beta.go", "package src\n\nfunc Beta() int { return 2 }\n")

	report, err := f.indexer.IndexProject(context.Background(), Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesScanned)
	assert.Equal(t, 2, report.FilesIndexed)
	assert.Empty(t, report.Errors)

	count, err := f.store.CountCodeChunks(nil)
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	// Clean completion clears the checkpoint.
	cp, err := f.store.LoadCheckpoint(f.indexer.projectID, store.CheckpointCode)
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestIndexProjectDryRunOnlyCounts(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "one.go", "package main\n\nfunc main() {}\n")

	report, err := f.indexer.IndexProject(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesScanned)
	assert.Zero(t, report.FilesIndexed)

	count, err := f.store.CountCodeChunks(nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, f.embedder.CallCount)
}

func TestCheckpointResumeSkipsProcessed(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "a.go", "package p\n\nfunc A() {}\n")
	f.writeFile(t, "b.go", "package p\n\nfunc B() {}\n")
	f.writeFile(t, "c.go", "package p\n\nfunc C() {}\n")

	// Simulate an interrupted run: a.go already processed.
	require.NoError(t, f.indexer.IndexFile(context.Background(), "a.go"))
	require.NoError(t, f.store.SaveCheckpoint(&store.Checkpoint{
		ProjectID:      f.indexer.projectID,
		Type:           store.CheckpointCode,
		PendingFiles:   []string{"b.go", "c.go"},
		ProcessedFiles: []string{"a.go"},
		GitignoreHash:  gitignore.HashForProject(f.root),
	}))
	f.embedder.BatchCalls = nil

	report, err := f.indexer.IndexProject(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	// Only the unprocessed files embed on resume.
	assert.Equal(t, 2, report.ResumedPending)
	for _, batch := range f.embedder.Batches() {
		for _, text := range batch {
			assert.NotContains(t, text, "func A()")
		}
	}

	// Final chunk set covers all three files.
	entries, err := f.store.ListFileEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestCheckpointInvalidatedByGitignoreChange(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "a.go", "package p\n\nfunc A() {}\n")

	require.NoError(t, f.store.SaveCheckpoint(&store.Checkpoint{
		ProjectID:     f.indexer.projectID,
		Type:          store.CheckpointCode,
		PendingFiles:  []string{},
		ProcessedFiles: []string{"a.go"},
		GitignoreHash: "stale-hash",
	}))

	report, err := f.indexer.IndexProject(context.Background(), Options{Resume: true})
	require.NoError(t, err)

	// The stale checkpoint was discarded, so a.go indexes again.
	assert.Equal(t, 1, report.FilesIndexed)
}

func TestDeltaReindexReusesVectors(t *testing.T) {
	f := newFixture(t)
	content := "package p\n\nfunc Stable() int { return 1 }\n\nfunc Changing() int { return 2 }\n"
	f.writeFile(t, "delta.go", content)
	require.NoError(t, f.indexer.IndexFile(context.Background(), "delta.go"))

	firstCalls := f.embedder.CallCount
	require.Greater(t, firstCalls, 0)

	// Shift Changing's body; Stable's chunk content is untouched.
	f.writeFile(t, "delta.go", "package p\n\nfunc Stable() int { return 1 }\n\nfunc Changing() int { return 99 }\n")
	f.embedder.BatchCalls = nil
	require.NoError(t, f.indexer.IndexFile(context.Background(), "delta.go"))

	for _, batch := range f.embedder.Batches() {
		for _, text := range batch {
			assert.NotContains(t, text, "func Stable()", "unchanged chunk must reuse its vector")
		}
	}
}

func TestRenamePairingPreservesChunks(t *testing.T) {
	f := newFixture(t)
	content := "package p\n\nfunc Moved() int { return 7 }\n"
	f.writeFile(t, "old.go", content)
	require.NoError(t, f.indexer.IndexFile(context.Background(), "old.go"))

	before, err := f.store.ChunksByPath("old.go")
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// Simulate the rename on disk, then deliver the paired events.
	require.NoError(t, os.Rename(filepath.Join(f.root, "old.go"), filepath.Join(f.root, "new.go")))
	f.embedder.BatchCalls = nil

	f.indexer.ApplyChanges(context.Background(), []watcher.Change{
		{Path: "old.go", Kind: watcher.KindDeleted},
		{Path: "new.go", Kind: watcher.KindCreated},
	})

	after, err := f.store.ChunksByPath("new.go")
	require.NoError(t, err)
	require.NotEmpty(t, after)
	assert.Equal(t, before[0].ID, after[0].ID, "rename must preserve chunk identity")
	assert.Equal(t, before[0].Vector, after[0].Vector)
	assert.Empty(t, f.embedder.Batches(), "rename must not re-embed")

	gone, err := f.store.ChunksByPath("old.go")
	require.NoError(t, err)
	assert.Empty(t, gone)
}
