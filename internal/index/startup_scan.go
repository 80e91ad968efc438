package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/scanner"
)

// ScanState is the observable progress of a startup scan.
type ScanState struct {
	InProgress     bool   `json:"in_progress"`
	TotalFiles     int    `json:"total_files"`
	ProcessedFiles int    `json:"processed_files"`
	Phase          string `json:"phase"`
}

// ScanOptions bounds a startup scan.
type ScanOptions struct {
	Mode     config.StartupScanMode
	MaxFiles int           // 0 = unlimited
	Timeout  time.Duration // 0 = unlimited
}

// ScanResult is the classification outcome of the DB-vs-filesystem diff.
type ScanResult struct {
	Deleted        []string      `json:"deleted"`
	Added          []string      `json:"added"`
	Modified       []string      `json:"modified"`
	UnchangedCount int           `json:"unchanged_count"`
	ScanDuration   time.Duration `json:"scan_duration"`
	Errors         []string      `json:"errors,omitempty"`
}

// ApplyResult reports what reconciliation changed.
type ApplyResult struct {
	FilesDeleted   int           `json:"files_deleted"`
	FilesIndexed   int           `json:"files_indexed"`
	FilesReindexed int           `json:"files_reindexed"`
	ApplyDuration  time.Duration `json:"apply_duration"`
	Errors         []string      `json:"errors,omitempty"`
}

// StartupScanner reconciles DB contents against the live filesystem
// when a watcher starts for a previously indexed project.
type StartupScanner struct {
	indexer *Indexer

	mu        sync.Mutex
	state     ScanState
	cancelled bool
}

// NewStartupScanner creates a scanner over an indexer.
func NewStartupScanner(indexer *Indexer) *StartupScanner {
	return &StartupScanner{indexer: indexer}
}

// State returns the current scan state.
func (s *StartupScanner) State() ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cancel requests cooperative cancellation; the scanner checks between
// phases and between batches.
func (s *StartupScanner) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
}

func (s *StartupScanner) isCancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *StartupScanner) setState(st ScanState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Scan diffs the indexed file set against the filesystem:
//
//	path in DB, not on disk            -> Deleted
//	path on disk, not in DB            -> Added
//	both, hashes equal                 -> Unchanged
//	both, hashes differ                -> Modified
//
// An mtime clearly older than the index time still classifies as
// Modified: trusting the hash is safer than trusting mtime, the usual
// causes being a hash-algorithm change or a restore from backup.
func (s *StartupScanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	start := time.Now()
	result := &ScanResult{}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s.setState(ScanState{InProgress: true, Phase: "loading indexed files"})
	defer s.setState(ScanState{})

	indexed, err := s.indexer.store.ListFileEntries()
	if err != nil {
		return nil, err
	}
	indexedByPath := make(map[string]struct {
		hash      string
		indexedAt time.Time
	}, len(indexed))
	for _, e := range indexed {
		indexedByPath[e.Path] = struct {
			hash      string
			indexedAt time.Time
		}{e.FileHash, e.IndexedAt}
	}

	if s.isCancelled(ctx) {
		result.Errors = append(result.Errors, "scan cancelled")
		result.ScanDuration = time.Since(start)
		return result, nil
	}

	s.setState(ScanState{InProgress: true, Phase: "walking filesystem"})

	files, err := scanner.Scan(ctx, s.indexer.root, scanner.Options{
		MaxFileSize: s.indexer.cfg.Index.MaxFileSize,
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("walk: %v", err))
		result.ScanDuration = time.Since(start)
		return result, nil
	}
	if opts.MaxFiles > 0 && len(files) > opts.MaxFiles {
		result.Errors = append(result.Errors, fmt.Sprintf("capped at %d of %d files", opts.MaxFiles, len(files)))
		files = files[:opts.MaxFiles]
	}

	s.setState(ScanState{InProgress: true, TotalFiles: len(files), Phase: "classifying"})

	onDisk := make(map[string]bool, len(files))
	for i, f := range files {
		if s.isCancelled(ctx) {
			result.Errors = append(result.Errors, "scan cancelled")
			break
		}
		onDisk[f.RelPath] = true

		entry, wasIndexed := indexedByPath[f.RelPath]
		switch {
		case !wasIndexed:
			result.Added = append(result.Added, f.RelPath)
		case entry.hash == f.Checksum:
			result.UnchangedCount++
		default:
			if f.ModTime.UnixMilli() < entry.indexedAt.UnixMilli()-1000 {
				slog.Debug("hash mismatch with older mtime, treating as modified",
					"path", f.RelPath,
					"hint", "hash algorithm drift or restore from backup")
			}
			result.Modified = append(result.Modified, f.RelPath)
		}

		s.setState(ScanState{InProgress: true, TotalFiles: len(files), ProcessedFiles: i + 1, Phase: "classifying"})
	}

	for path := range indexedByPath {
		if !onDisk[path] {
			result.Deleted = append(result.Deleted, path)
		}
	}

	// Scan modes gate which classifications survive.
	switch opts.Mode {
	case config.ScanModeDeletedOnly:
		result.UnchangedCount += len(result.Added) + len(result.Modified)
		result.Added = nil
		result.Modified = nil
	case config.ScanModeDeletedAndNew:
		result.UnchangedCount += len(result.Modified)
		result.Modified = nil
	}

	result.ScanDuration = time.Since(start)
	return result, nil
}

// Apply reconciles the store with a scan result: bulk-delete the
// Deleted paths, then index Added and re-index Modified through the
// per-file path. Errors accumulate; the batch never aborts.
func (s *StartupScanner) Apply(ctx context.Context, result *ScanResult) *ApplyResult {
	start := time.Now()
	applied := &ApplyResult{}

	s.setState(ScanState{InProgress: true, Phase: "deleting removed files"})
	defer s.setState(ScanState{})

	if len(result.Deleted) > 0 {
		if err := s.indexer.store.DeleteChunksByPaths(result.Deleted); err != nil {
			applied.Errors = append(applied.Errors, fmt.Sprintf("delete: %v", err))
		} else {
			applied.FilesDeleted = len(result.Deleted)
		}
	}

	total := len(result.Added) + len(result.Modified)
	s.setState(ScanState{InProgress: true, TotalFiles: total, Phase: "indexing changed files"})

	processed := 0
	indexBatch := func(paths []string, reindex bool) {
		for _, path := range paths {
			if s.isCancelled(ctx) {
				applied.Errors = append(applied.Errors, "apply cancelled")
				return
			}
			if err := s.indexer.IndexFile(ctx, path); err != nil {
				applied.Errors = append(applied.Errors, fmt.Sprintf("%s: %v", path, err))
			} else if reindex {
				applied.FilesReindexed++
			} else {
				applied.FilesIndexed++
			}
			processed++
			s.setState(ScanState{InProgress: true, TotalFiles: total, ProcessedFiles: processed, Phase: "indexing changed files"})
		}
	}
	indexBatch(result.Modified, true)
	indexBatch(result.Added, false)

	applied.ApplyDuration = time.Since(start)
	return applied
}
