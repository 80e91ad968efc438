package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const docChunkCols = `id, document_id, project_id, content, title, source,
	source_kind, chunk_index, total_chunks, char_offset, indexed_at, vector`

// AddDocumentChunks inserts document chunks in one transaction.
func (s *Store) AddDocumentChunks(chunks []*DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO document_chunks (` + docChunkCols + `)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		vec := s.padVector(c.Vector)
		if _, err := stmt.Exec(
			c.ID.String(), c.DocumentID, c.ProjectID.String(), c.Content, c.Title,
			c.Source, c.SourceKind, c.ChunkIndex, c.TotalChunks, c.CharOffset,
			toMillis(c.IndexedAt), encodeVector(vec),
		); err != nil {
			return fmt.Errorf("failed to insert document chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, c := range chunks {
		if c.Vector != nil {
			s.docVectors.Add(c.ID.String(), s.padVector(c.Vector))
		}
		if s.keyword != nil {
			if err := s.keyword.Index(c.ID.String(), "docs", c.Content, "", c.Source); err != nil {
				slog.Debug("keyword index update failed", "doc", c.ID, "error", err)
			}
		}
	}
	return nil
}

// DeleteDocumentChunksBySource removes all chunks of one source file.
// Document chunks delete as a group when the source is deleted.
func (s *Store) DeleteDocumentChunksBySource(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id FROM document_chunks WHERE source = ?`, source)
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

	if _, err := s.db.Exec(`DELETE FROM document_chunks WHERE source = ?`, source); err != nil {
		return err
	}
	for _, id := range ids {
		s.docVectors.Delete(id)
		if s.keyword != nil {
			_ = s.keyword.Delete(id)
		}
	}
	return nil
}

// GetDocumentChunk loads one document chunk by id.
func (s *Store) GetDocumentChunk(id uuid.UUID) (*DocumentChunk, error) {
	rows, err := s.db.Query(`SELECT `+docChunkCols+` FROM document_chunks WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := scanDocChunks(rows)
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// CountDocumentChunks counts all document chunks.
func (s *Store) CountDocumentChunks() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM document_chunks`).Scan(&n)
	return n, err
}

// KNNDocumentChunks returns the k nearest document chunks to vec.
func (s *Store) KNNDocumentChunks(vec []float32, k int) ([]*DocumentChunk, []float64, error) {
	hits := s.docVectors.Search(vec, k)

	chunks := make([]*DocumentChunk, 0, len(hits))
	distances := make([]float64, 0, len(hits))
	for _, h := range hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		c, err := s.GetDocumentChunk(id)
		if err != nil || c == nil {
			continue
		}
		chunks = append(chunks, c)
		distances = append(distances, h.Distance)
	}
	return chunks, distances, nil
}

func scanDocChunks(rows *sql.Rows) []*DocumentChunk {
	var chunks []*DocumentChunk
	for rows.Next() {
		var c DocumentChunk
		var id, projectID string
		var title, sourceKind sql.NullString
		var indexedAt int64
		var vector []byte

		if err := rows.Scan(
			&id, &c.DocumentID, &projectID, &c.Content, &title, &c.Source,
			&sourceKind, &c.ChunkIndex, &c.TotalChunks, &c.CharOffset,
			&indexedAt, &vector,
		); err != nil {
			slog.Debug("skipping document chunk row", "error", err)
			continue
		}

		var err error
		if c.ID, err = uuid.Parse(id); err != nil {
			continue
		}
		if c.ProjectID, err = uuid.Parse(projectID); err != nil {
			continue
		}
		c.Title = title.String
		c.SourceKind = sourceKind.String
		c.IndexedAt = fromMillis(indexedAt)
		c.Vector = decodeVector(vector)
		chunks = append(chunks, &c)
	}
	return chunks
}
