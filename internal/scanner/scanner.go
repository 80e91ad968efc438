// Package scanner walks a project root and yields one record per
// candidate file, applying the gitignore cache, a size cap, and a
// binary-content heuristic.
package scanner

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ccengram/ccengram/internal/chunk"
	"github.com/ccengram/ccengram/internal/gitignore"
)

// binarySniffBytes is how much of a file the NUL-byte heuristic reads.
const binarySniffBytes = 8 * 1024

// FileInfo is one scanned candidate file.
type FileInfo struct {
	AbsPath  string
	RelPath  string // slash-separated, project-relative
	Size     int64
	ModTime  time.Time
	Checksum string // SHA-256 of content
	Language string
}

// Options configures a scan.
type Options struct {
	// MaxFileSize skips files larger than this many bytes (0 = 2MB).
	MaxFileSize int64

	// IncludeDocs admits prose files (markdown/text) as well as code.
	IncludeDocs bool

	// Progress, when set, receives the running file count.
	Progress func(scanned int)
}

// Scan walks root and returns candidate files. The walk honors ctx
// cancellation between directory entries.
func Scan(ctx context.Context, root string, opts Options) ([]FileInfo, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 2 * 1024 * 1024
	}

	matcher := gitignore.ForProject(root)
	var files []FileInfo

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("scan error, skipping", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matcher.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher.Match(rel, false) {
			return nil
		}

		lang := chunk.DetectLanguage(rel)
		if lang == "" {
			return nil
		}
		if chunk.IsDocLanguage(lang) && !opts.IncludeDocs {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if info.Size() > opts.MaxFileSize {
			slog.Debug("skipping oversize file", "path", rel, "size", info.Size())
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			slog.Debug("skipping unreadable file", "path", rel, "error", readErr)
			return nil
		}
		if looksBinary(content) {
			return nil
		}

		files = append(files, FileInfo{
			AbsPath:  path,
			RelPath:  rel,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Checksum: checksum(content),
			Language: lang,
		})

		if opts.Progress != nil {
			opts.Progress(len(files))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// looksBinary applies the NUL-byte heuristic to the first 8 KiB.
func looksBinary(content []byte) bool {
	n := len(content)
	if n > binarySniffBytes {
		n = binarySniffBytes
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// checksum hashes file content with SHA-256.
func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
