package store

import (
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
)

const relationshipCols = `id, from_memory_id, to_memory_id, relationship_type, confidence, created_at, source`

// AddRelationship inserts a directed memory-to-memory link.
func (s *Store) AddRelationship(r *Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO relationships (`+relationshipCols+`)
		VALUES (?,?,?,?,?,?,?)`,
		r.ID.String(), r.FromMemoryID.String(), r.ToMemoryID.String(),
		string(r.Type), r.Confidence, toMillis(r.CreatedAt), r.Source)
	return err
}

// DeleteRelationship removes a relationship by id.
func (s *Store) DeleteRelationship(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM relationships WHERE id = ?`, id.String())
	return err
}

// ListRelationships returns all relationships touching a memory in
// either direction, optionally restricted by type.
func (s *Store) ListRelationships(memoryID uuid.UUID, relType RelationshipType) ([]*Relationship, error) {
	query := `SELECT ` + relationshipCols + ` FROM relationships WHERE (from_memory_id = ? OR to_memory_id = ?)`
	args := []any{memoryID.String(), memoryID.String()}
	if relType != "" {
		query += ` AND relationship_type = ?`
		args = append(args, string(relType))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanRelationships(rows), rows.Err()
}

// FindRelationship returns the relationship matching (from, to, type),
// or nil when absent.
func (s *Store) FindRelationship(from, to uuid.UUID, relType RelationshipType) (*Relationship, error) {
	rows, err := s.db.Query(`SELECT `+relationshipCols+` FROM relationships
		WHERE from_memory_id = ? AND to_memory_id = ? AND relationship_type = ? LIMIT 1`,
		from.String(), to.String(), string(relType))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	rels := scanRelationships(rows)
	if len(rels) == 0 {
		return nil, nil
	}
	return rels[0], nil
}

func scanRelationships(rows *sql.Rows) []*Relationship {
	var rels []*Relationship
	for rows.Next() {
		var r Relationship
		var id, from, to, relType string
		var createdAt int64
		var source sql.NullString

		if err := rows.Scan(&id, &from, &to, &relType, &r.Confidence, &createdAt, &source); err != nil {
			slog.Debug("skipping relationship row", "error", err)
			continue
		}

		var err error
		if r.ID, err = uuid.Parse(id); err != nil {
			continue
		}
		if r.FromMemoryID, err = uuid.Parse(from); err != nil {
			continue
		}
		if r.ToMemoryID, err = uuid.Parse(to); err != nil {
			continue
		}
		r.Type = RelationshipType(relType)
		r.CreatedAt = fromMillis(createdAt)
		r.Source = source.String
		rels = append(rels, &r)
	}
	return rels
}
