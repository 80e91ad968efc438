package store

import (
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
)

// AddEntity inserts a named concept.
func (s *Store) AddEntity(e *Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO entities (id, project_id, name, kind, created_at)
		VALUES (?,?,?,?,?)`,
		e.ID.String(), e.ProjectID.String(), e.Name, e.Kind, toMillis(e.CreatedAt))
	return err
}

// FindEntityByName returns the first entity with the given name, or nil.
func (s *Store) FindEntityByName(name string) (*Entity, error) {
	row := s.db.QueryRow(`SELECT id, project_id, name, kind, created_at FROM entities WHERE name = ? LIMIT 1`, name)
	return scanEntity(row)
}

// LinkMemoryEntity connects a memory to an entity.
func (s *Store) LinkMemoryEntity(l *MemoryEntityLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT OR REPLACE INTO memory_entity_links (id, memory_id, entity_id, created_at)
		VALUES (?,?,?,?)`,
		l.ID.String(), l.MemoryID.String(), l.EntityID.String(), toMillis(l.CreatedAt))
	return err
}

// EntitiesForMemory returns entities linked to one memory.
func (s *Store) EntitiesForMemory(memoryID uuid.UUID) ([]*Entity, error) {
	rows, err := s.db.Query(`SELECT e.id, e.project_id, e.name, e.kind, e.created_at
		FROM entities e
		JOIN memory_entity_links l ON l.entity_id = e.id
		WHERE l.memory_id = ?`, memoryID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entities []*Entity
	for rows.Next() {
		var e Entity
		var id, projectID string
		var kind sql.NullString
		var createdAt int64
		if err := rows.Scan(&id, &projectID, &e.Name, &kind, &createdAt); err != nil {
			slog.Debug("skipping entity row", "error", err)
			continue
		}
		var perr error
		if e.ID, perr = uuid.Parse(id); perr != nil {
			continue
		}
		if e.ProjectID, perr = uuid.Parse(projectID); perr != nil {
			continue
		}
		e.Kind = kind.String
		e.CreatedAt = fromMillis(createdAt)
		entities = append(entities, &e)
	}
	return entities, rows.Err()
}

func scanEntity(row *sql.Row) (*Entity, error) {
	var e Entity
	var id, projectID string
	var kind sql.NullString
	var createdAt int64

	err := row.Scan(&id, &projectID, &e.Name, &kind, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if e.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, err
	}
	e.Kind = kind.String
	e.CreatedAt = fromMillis(createdAt)
	return &e, nil
}
