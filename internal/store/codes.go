package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CodeFilter restricts code chunk queries.
type CodeFilter struct {
	Language   string
	PathPrefix string
}

func (f *CodeFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f != nil {
		if f.Language != "" {
			conds = append(conds, "language = ?")
			args = append(args, f.Language)
		}
		if f.PathPrefix != "" {
			conds = append(conds, "file_path LIKE ?")
			args = append(args, f.PathPrefix+"%")
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const codeChunkCols = `id, project_id, file_path, content, language, chunk_type,
	symbols, imports, calls, start_line, end_line, file_hash, content_hash,
	indexed_at, tokens_estimate, definition_kind, definition_name, visibility,
	signature, docstring, parent_definition, embedding_text, vector`

// AddCodeChunks inserts chunks in one transaction. Vectors are padded or
// truncated to the store dimension. Keyword and vector indexes update
// alongside the rows.
func (s *Store) AddCodeChunks(chunks []*CodeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO code_chunks (` + codeChunkCols + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		vec := s.padVector(c.Vector)
		if _, err := stmt.Exec(
			c.ID.String(), c.ProjectID.String(), c.FilePath, c.Content, c.Language, string(c.ChunkType),
			encodeList(c.Symbols), encodeList(c.Imports), encodeList(c.Calls),
			c.StartLine, c.EndLine, c.FileHash, c.ContentHash,
			toMillis(c.IndexedAt), c.TokensEstimate,
			c.DefinitionKind, c.DefinitionName, c.Visibility,
			c.Signature, c.Docstring, c.ParentDefinition, c.EmbeddingText,
			encodeVector(vec),
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, c := range chunks {
		if c.Vector != nil {
			s.codeVectors.Add(c.ID.String(), s.padVector(c.Vector))
		}
		if s.keyword != nil {
			if err := s.keyword.Index(c.ID.String(), "code", c.Content, strings.Join(c.Symbols, " "), c.FilePath); err != nil {
				slog.Debug("keyword index update failed", "chunk", c.ID, "error", err)
			}
		}
	}
	return nil
}

// DeleteChunksByPaths removes all chunks whose file_path is in paths,
// batching the IN filter to at most 100 values per statement.
func (s *Store) DeleteChunksByPaths(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, batch := range batchStrings(paths) {
		args := make([]any, len(batch))
		for i, p := range batch {
			args[i] = p
		}

		// Collect ids first so the vector and keyword indexes stay in sync.
		rows, err := s.db.Query(
			`SELECT id FROM code_chunks WHERE file_path IN (`+placeholders(len(batch))+`)`, args...)
		if err != nil {
			return err
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err == nil {
				ids = append(ids, id)
			}
		}
		_ = rows.Close()

		if _, err := s.db.Exec(
			`DELETE FROM code_chunks WHERE file_path IN (`+placeholders(len(batch))+`)`, args...); err != nil {
			return fmt.Errorf("failed to delete chunks: %w", err)
		}

		for _, id := range ids {
			s.codeVectors.Delete(id)
			if s.keyword != nil {
				_ = s.keyword.Delete(id)
			}
		}
	}
	return nil
}

// RenameFile rewrites file_path for all chunks of oldPath, preserving
// ids and therefore embeddings. Idempotent: renaming an absent path is
// a no-op.
func (s *Store) RenameFile(oldPath, newPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE code_chunks SET file_path = ? WHERE file_path = ?`, newPath, oldPath)
	if err != nil {
		return fmt.Errorf("failed to rename %s -> %s: %w", oldPath, newPath, err)
	}
	return nil
}

// ListFileEntries collapses the code chunk table to one entry per path,
// keeping the most recent file hash by indexed_at. This is the DB side
// of the startup reconciliation diff.
func (s *Store) ListFileEntries() ([]FileEntry, error) {
	rows, err := s.db.Query(`
		SELECT file_path, file_hash, MAX(indexed_at)
		FROM code_chunks GROUP BY file_path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []FileEntry
	for rows.Next() {
		var e FileEntry
		var ms int64
		if err := rows.Scan(&e.Path, &e.FileHash, &ms); err != nil {
			slog.Debug("skipping file entry row", "error", err)
			continue
		}
		e.IndexedAt = fromMillis(ms)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ChunksByPath returns all chunks for one file, vectors included.
// Used by delta re-indexing to reuse embeddings by content hash.
func (s *Store) ChunksByPath(path string) ([]*CodeChunk, error) {
	rows, err := s.db.Query(
		`SELECT `+codeChunkCols+` FROM code_chunks WHERE file_path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanCodeChunks(rows), rows.Err()
}

// GetCodeChunk loads one chunk by id.
func (s *Store) GetCodeChunk(id uuid.UUID) (*CodeChunk, error) {
	rows, err := s.db.Query(
		`SELECT `+codeChunkCols+` FROM code_chunks WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := scanCodeChunks(rows)
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// ListCodeChunks returns chunks ordered by path and start line.
func (s *Store) ListCodeChunks(limit int) ([]*CodeChunk, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+codeChunkCols+` FROM code_chunks ORDER BY file_path, start_line LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanCodeChunks(rows), rows.Err()
}

// CountCodeChunks counts chunks matching the filter.
func (s *Store) CountCodeChunks(filter *CodeFilter) (int, error) {
	where, args := filter.where()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM code_chunks`+where, args...).Scan(&n)
	return n, err
}

// KNNCodeChunks returns the k nearest chunks to vec. When a filter is
// present, candidates are restricted by predicate before ranking;
// otherwise the HNSW graph serves the search. Rows without vectors are
// never returned.
func (s *Store) KNNCodeChunks(vec []float32, k int, filter *CodeFilter) ([]*CodeChunk, []float64, error) {
	if filter == nil || (filter.Language == "" && filter.PathPrefix == "") {
		hits := s.codeVectors.Search(vec, k)
		return s.loadCodeHits(hits)
	}

	where, args := filter.where()
	query := `SELECT id, vector FROM code_chunks` + where
	if where == "" {
		query += ` WHERE vector IS NOT NULL`
	} else {
		query += ` AND vector IS NOT NULL`
	}

	hits, err := s.bruteForceKNN(query, args, vec, k)
	if err != nil {
		return nil, nil, err
	}
	return s.loadCodeHits(hits)
}

func (s *Store) loadCodeHits(hits []VectorHit) ([]*CodeChunk, []float64, error) {
	chunks := make([]*CodeChunk, 0, len(hits))
	distances := make([]float64, 0, len(hits))
	for _, h := range hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		c, err := s.GetCodeChunk(id)
		if err != nil || c == nil {
			// Skip-if-missing: the vector index may briefly lead the rows.
			continue
		}
		chunks = append(chunks, c)
		distances = append(distances, h.Distance)
	}
	return chunks, distances, nil
}

// bruteForceKNN scans (id, vector) rows from query, computes distances,
// and returns the k closest.
func (s *Store) bruteForceKNN(query string, args []any, vec []float32, k int) ([]VectorHit, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []VectorHit
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			continue
		}
		v := decodeVector(blob)
		if len(v) == 0 {
			continue
		}
		hits = append(hits, VectorHit{ID: id, Distance: cosineDistance(vec, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// sortHits orders hits by ascending distance (insertion sort; candidate
// sets here are small).
func sortHits(hits []VectorHit) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Distance < hits[j-1].Distance; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

func scanCodeChunks(rows *sql.Rows) []*CodeChunk {
	var chunks []*CodeChunk
	for rows.Next() {
		c, err := scanCodeChunk(rows)
		if err != nil {
			slog.Debug("skipping code chunk row", "error", err)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}

func scanCodeChunk(rows *sql.Rows) (*CodeChunk, error) {
	var c CodeChunk
	var id, projectID, chunkType string
	var symbols, imports, calls sql.NullString
	var contentHash, defKind, defName, visibility, signature, docstring, parentDef, embeddingText sql.NullString
	var indexedAt int64
	var vector []byte

	if err := rows.Scan(
		&id, &projectID, &c.FilePath, &c.Content, &c.Language, &chunkType,
		&symbols, &imports, &calls, &c.StartLine, &c.EndLine, &c.FileHash, &contentHash,
		&indexedAt, &c.TokensEstimate, &defKind, &defName, &visibility,
		&signature, &docstring, &parentDef, &embeddingText, &vector,
	); err != nil {
		return nil, err
	}

	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if c.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, err
	}
	c.ChunkType = ChunkType(chunkType)
	c.Symbols = decodeList(symbols)
	c.Imports = decodeList(imports)
	c.Calls = decodeList(calls)
	c.ContentHash = contentHash.String
	c.IndexedAt = fromMillis(indexedAt)
	c.DefinitionKind = defKind.String
	c.DefinitionName = defName.String
	c.Visibility = visibility.String
	c.Signature = signature.String
	c.Docstring = docstring.String
	c.ParentDefinition = parentDef.String
	c.EmbeddingText = embeddingText.String
	c.Vector = decodeVector(vector)
	return &c, nil
}

// TouchIndexedAt is used by tests to age entries; production code sets
// IndexedAt at insert.
func (s *Store) TouchIndexedAt(path string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE code_chunks SET indexed_at = ? WHERE file_path = ?`, toMillis(t), path)
	return err
}
