// Package index drives project indexing: the checkpointed full index,
// watcher-triggered delta updates, document ingestion, and the startup
// reconciliation scan.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ccengram/ccengram/internal/chunk"
	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/embed"
	"github.com/ccengram/ccengram/internal/gitignore"
	"github.com/ccengram/ccengram/internal/scanner"
	"github.com/ccengram/ccengram/internal/watcher"
	"github.com/ccengram/ccengram/internal/store"
)

// checkpointInterval is how many files process between checkpoint saves.
const checkpointInterval = 10

// Indexer coordinates chunking, embedding, and storage for one project.
type Indexer struct {
	store     *store.Store
	embedder  embed.Embedder
	chunker   *chunk.CodeChunker
	cfg       *config.Config
	projectID uuid.UUID
	root      string

	mu       sync.Mutex
	progress Progress
}

// Progress is a snapshot of a running index.
type Progress struct {
	InProgress bool   `json:"in_progress"`
	Total      int    `json:"total"`
	Processed  int    `json:"processed"`
	Phase      string `json:"phase"`
}

// Options configures a full-project index.
type Options struct {
	Force  bool
	DryRun bool
	Resume bool
}

// Report summarizes a full-project index.
type Report struct {
	FilesScanned   int           `json:"files_scanned"`
	FilesIndexed   int           `json:"files_indexed"`
	FilesSkipped   int           `json:"files_skipped"`
	ChunksIndexed  int           `json:"chunks_indexed"`
	Errors         []string      `json:"errors,omitempty"`
	Duration       time.Duration `json:"duration"`
	DryRun         bool          `json:"dry_run,omitempty"`
	ResumedPending int           `json:"resumed_pending,omitempty"`
}

// New creates an indexer.
func New(st *store.Store, embedder embed.Embedder, cfg *config.Config, projectID uuid.UUID, root string) *Indexer {
	return &Indexer{
		store:     st,
		embedder:  embedder,
		chunker:   chunk.NewCodeChunker(chunk.NewParser()),
		cfg:       cfg,
		projectID: projectID,
		root:      root,
	}
}

// Progress returns the current index progress snapshot.
func (ix *Indexer) Progress() Progress {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.progress
}

func (ix *Indexer) setProgress(p Progress) {
	ix.mu.Lock()
	ix.progress = p
	ix.mu.Unlock()
}

// IndexProject runs the checkpointed full index:
//
//  1. Scan the project and compute the current gitignore hash.
//  2. Load any checkpoint; discard when forced, complete, or the
//     gitignore hash changed; otherwise resume.
//  3. Index pending files with bounded parallelism, persisting the
//     checkpoint every few files.
//  4. On clean completion, clear the checkpoint.
func (ix *Indexer) IndexProject(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{DryRun: opts.DryRun}

	gitignoreHash := gitignore.HashForProject(ix.root)

	ix.setProgress(Progress{InProgress: true, Phase: "scanning"})
	defer func() { ix.setProgress(Progress{}) }()

	files, err := scanner.Scan(ctx, ix.root, scanner.Options{MaxFileSize: ix.cfg.Index.MaxFileSize})
	if err != nil {
		return nil, err
	}
	report.FilesScanned = len(files)

	if opts.DryRun {
		report.Duration = time.Since(start)
		return report, nil
	}

	byPath := make(map[string]scanner.FileInfo, len(files))
	allPaths := make([]string, 0, len(files))
	for _, f := range files {
		byPath[f.RelPath] = f
		allPaths = append(allPaths, f.RelPath)
	}

	cp := ix.loadOrCreateCheckpoint(opts, allPaths, gitignoreHash)
	report.ResumedPending = len(cp.pendingFiles)

	ix.setProgress(Progress{InProgress: true, Total: len(cp.pendingFiles), Phase: "indexing"})

	var mu sync.Mutex
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Index.ParallelFiles)

	pending := append([]string(nil), cp.pendingFiles...)
	for _, relPath := range pending {
		info, ok := byPath[relPath]
		if !ok {
			// File vanished between scan and index.
			mu.Lock()
			cp.markProcessed(relPath)
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}

			chunks, err := ix.indexOne(gctx, info)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				cp.markError(relPath)
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", relPath, err))
				slog.Warn("failed to index file", "path", relPath, "error", err)
			} else {
				cp.markProcessed(relPath)
				report.FilesIndexed++
				report.ChunksIndexed += chunks
			}

			done++
			ix.setProgress(Progress{InProgress: true, Total: len(pending), Processed: done, Phase: "indexing"})

			if done%checkpointInterval == 0 {
				if err := ix.store.SaveCheckpoint(cp.Checkpoint()); err != nil {
					// Never abort the index for a checkpoint write failure.
					slog.Warn("checkpoint save failed", "error", err)
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Cancelled mid-run: persist progress for resume.
		if saveErr := ix.store.SaveCheckpoint(cp.Checkpoint()); saveErr != nil {
			slog.Warn("checkpoint save failed on cancellation", "error", saveErr)
		}
		report.Duration = time.Since(start)
		return report, err
	}

	if len(cp.errorFiles) == 0 {
		if err := ix.store.ClearCheckpoint(ix.projectID, store.CheckpointCode); err != nil {
			slog.Warn("failed to clear checkpoint", "error", err)
		}
	} else {
		final := cp.Checkpoint()
		final.IsComplete = true
		if err := ix.store.SaveCheckpoint(final); err != nil {
			slog.Warn("checkpoint save failed", "error", err)
		}
	}

	report.FilesSkipped = report.FilesScanned - report.FilesIndexed - len(report.Errors)
	report.Duration = time.Since(start)
	return report, nil
}

// loadOrCreateCheckpoint applies the resume protocol.
func (ix *Indexer) loadOrCreateCheckpoint(opts Options, allPaths []string, gitignoreHash string) *checkpointState {
	fresh := func() *checkpointState {
		return newCheckpointState(ix.projectID, store.CheckpointCode, allPaths, gitignoreHash)
	}

	if opts.Force || !opts.Resume {
		return fresh()
	}

	existing, err := ix.store.LoadCheckpoint(ix.projectID, store.CheckpointCode)
	if err != nil || existing == nil {
		return fresh()
	}
	if existing.IsComplete || existing.GitignoreHash != gitignoreHash {
		slog.Info("discarding stale checkpoint",
			"complete", existing.IsComplete,
			"gitignore_changed", existing.GitignoreHash != gitignoreHash)
		return fresh()
	}

	return resumeCheckpointState(existing, allPaths)
}

// indexOne indexes one file: chunk, embed in document mode with vector
// reuse, then delete-and-insert the file's chunks.
func (ix *Indexer) indexOne(ctx context.Context, info scanner.FileInfo) (int, error) {
	content, err := os.ReadFile(info.AbsPath)
	if err != nil {
		return 0, err
	}
	return ix.indexContent(ctx, info.RelPath, content, info.Language)
}

// indexContent chunks content, reuses vectors for chunks whose content
// hash already exists for the path, embeds the residue, and replaces the
// file's chunks (delete-by-path, then a separate insert).
func (ix *Indexer) indexContent(ctx context.Context, relPath string, content []byte, language string) (int, error) {
	fileHash := chunk.FileHash(content)
	chunks := ix.chunker.Chunk(content, language)
	if len(chunks) == 0 {
		// Still clear stale chunks for an emptied file.
		return 0, ix.store.DeleteChunksByPaths([]string{relPath})
	}

	// Existing vectors keyed by content hash for reuse.
	existing, err := ix.store.ChunksByPath(relPath)
	if err != nil {
		return 0, err
	}
	reusable := make(map[string][]float32, len(existing))
	for _, c := range existing {
		if c.ContentHash != "" && c.Vector != nil {
			reusable[c.ContentHash] = c.Vector
		}
	}

	rows := make([]*store.CodeChunk, len(chunks))
	var embedTexts []string
	var embedTargets []int

	now := time.Now()
	for i, c := range chunks {
		row := &store.CodeChunk{
			ID:               uuid.New(),
			ProjectID:        ix.projectID,
			FilePath:         relPath,
			Content:          c.Content,
			Language:         language,
			ChunkType:        c.ChunkType,
			Symbols:          c.Symbols,
			Imports:          c.Imports,
			Calls:            c.Calls,
			StartLine:        c.StartLine,
			EndLine:          c.EndLine,
			FileHash:         fileHash,
			ContentHash:      c.ContentHash,
			IndexedAt:        now,
			TokensEstimate:   chunk.TokensEstimate(c.Content),
			DefinitionKind:   c.DefinitionKind,
			DefinitionName:   c.DefinitionName,
			Visibility:       c.Visibility,
			Signature:        c.Signature,
			Docstring:        c.Docstring,
			ParentDefinition: c.ParentDefinition,
			EmbeddingText:    c.EmbeddingText,
		}
		rows[i] = row

		if vec, ok := reusable[c.ContentHash]; ok {
			row.Vector = vec
		} else {
			embedTexts = append(embedTexts, c.EmbeddingText)
			embedTargets = append(embedTargets, i)
		}
	}

	if len(embedTexts) > 0 {
		vectors, err := ix.embedder.EmbedBatch(ctx, embedTexts, embed.ModeDocument)
		if err != nil {
			return 0, fmt.Errorf("embedding failed: %w", err)
		}
		for j, vec := range vectors {
			rows[embedTargets[j]].Vector = vec
		}
	}

	if err := ix.store.DeleteChunksByPaths([]string{relPath}); err != nil {
		return 0, err
	}
	if err := ix.store.AddCodeChunks(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ApplyChanges handles a debounced change batch from the watcher.
// A Deleted+Created pair with matching stored file hash is treated as a
// rename, preserving embeddings by rewriting file_path in place.
func (ix *Indexer) ApplyChanges(ctx context.Context, changes []watcher.Change) {
	deleted := make(map[string]bool)
	var created, modified []string

	for _, ch := range changes {
		switch ch.Kind {
		case watcher.KindDeleted:
			deleted[ch.Path] = true
		case watcher.KindCreated:
			created = append(created, ch.Path)
		case watcher.KindModified:
			modified = append(modified, ch.Path)
		case watcher.KindRenamed:
			if err := ix.store.RenameFile(ch.Path, ch.RenamedTo); err != nil {
				slog.Warn("rename failed", "from", ch.Path, "to", ch.RenamedTo, "error", err)
			}
		}
	}

	// Pair deletions with creations by content hash to detect renames.
	if len(deleted) > 0 && len(created) > 0 {
		entries, err := ix.store.ListFileEntries()
		if err == nil {
			hashByPath := make(map[string]string)
			for _, e := range entries {
				if deleted[e.Path] {
					hashByPath[e.Path] = e.FileHash
				}
			}

			var remaining []string
			for _, newPath := range created {
				content, readErr := os.ReadFile(filepath.Join(ix.root, filepath.FromSlash(newPath)))
				if readErr != nil {
					continue
				}
				newHash := chunk.FileHash(content)

				renamed := false
				for oldPath, oldHash := range hashByPath {
					if oldHash == newHash {
						slog.Info("rename detected", "from", oldPath, "to", newPath)
						if err := ix.store.RenameFile(oldPath, newPath); err == nil {
							delete(deleted, oldPath)
							delete(hashByPath, oldPath)
							renamed = true
						}
						break
					}
				}
				if !renamed {
					remaining = append(remaining, newPath)
				}
			}
			created = remaining
		}
	}

	if len(deleted) > 0 {
		paths := make([]string, 0, len(deleted))
		for p := range deleted {
			paths = append(paths, p)
		}
		if err := ix.store.DeleteChunksByPaths(paths); err != nil {
			slog.Warn("delete failed", "paths", len(paths), "error", err)
		}
	}

	for _, p := range append(created, modified...) {
		if err := ix.IndexFile(ctx, p); err != nil {
			slog.Warn("reindex failed", "path", p, "error", err)
		}
	}
}

// IndexFile indexes a single file by project-relative path.
func (ix *Indexer) IndexFile(ctx context.Context, relPath string) error {
	abs := filepath.Join(ix.root, filepath.FromSlash(relPath))
	content, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ix.store.DeleteChunksByPaths([]string{relPath})
		}
		return err
	}

	language := chunk.DetectLanguage(relPath)
	if language == "" {
		return nil
	}
	if chunk.IsDocLanguage(language) {
		if ix.inDocsDirectory(relPath) {
			return ix.indexDocument(ctx, relPath, content)
		}
		return nil
	}

	_, err = ix.indexContent(ctx, relPath, content, language)
	return err
}

// DeleteFile removes a file's chunks (code or docs).
func (ix *Indexer) DeleteFile(relPath string) error {
	if chunk.IsDocLanguage(chunk.DetectLanguage(relPath)) {
		return ix.store.DeleteDocumentChunksBySource(relPath)
	}
	return ix.store.DeleteChunksByPaths([]string{relPath})
}

func (ix *Indexer) inDocsDirectory(relPath string) bool {
	dir := ix.cfg.Docs.Directory
	if dir == "" {
		return false
	}
	return relPath == dir || strings.HasPrefix(relPath, strings.TrimSuffix(dir, "/")+"/")
}

// indexDocument ingests one prose document.
func (ix *Indexer) indexDocument(ctx context.Context, relPath string, content []byte) error {
	docChunks := chunk.ChunkDocument(string(content))
	if len(docChunks) == 0 {
		return ix.store.DeleteDocumentChunksBySource(relPath)
	}

	texts := make([]string, len(docChunks))
	for i, c := range docChunks {
		texts[i] = c.Content
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts, embed.ModeDocument)
	if err != nil {
		return err
	}

	now := time.Now()
	rows := make([]*store.DocumentChunk, len(docChunks))
	for i, c := range docChunks {
		rows[i] = &store.DocumentChunk{
			ID:          uuid.New(),
			DocumentID:  relPath,
			ProjectID:   ix.projectID,
			Content:     c.Content,
			Title:       c.Title,
			Source:      relPath,
			SourceKind:  "file",
			ChunkIndex:  c.ChunkIndex,
			TotalChunks: len(docChunks),
			CharOffset:  c.CharOffset,
			IndexedAt:   now,
			Vector:      vectors[i],
		}
	}

	if err := ix.store.DeleteDocumentChunksBySource(relPath); err != nil {
		return err
	}
	return ix.store.AddDocumentChunks(rows)
}

// IndexDocs ingests every document under the configured docs directory.
func (ix *Indexer) IndexDocs(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if ix.cfg.Docs.Directory == "" {
		return report, nil
	}

	docsRoot := filepath.Join(ix.root, filepath.FromSlash(ix.cfg.Docs.Directory))
	files, err := scanner.Scan(ctx, docsRoot, scanner.Options{
		MaxFileSize: ix.cfg.Docs.MaxFileSize,
		IncludeDocs: true,
	})
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		if !chunk.IsDocLanguage(f.Language) {
			continue
		}
		rel := ix.cfg.Docs.Directory + "/" + f.RelPath
		content, readErr := os.ReadFile(f.AbsPath)
		if readErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, readErr))
			continue
		}
		if err := ix.indexDocument(ctx, rel, content); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", rel, err))
			continue
		}
		report.FilesIndexed++
	}

	report.FilesScanned = len(files)
	report.Duration = time.Since(start)
	return report, nil
}
