package store

import (
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
)

const sessionLinkCols = `id, session_id, memory_id, usage_type, linked_at`

// AddSessionMemoryLink records one usage of a memory within a session.
func (s *Store) AddSessionMemoryLink(l *SessionMemoryLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO session_memories (`+sessionLinkCols+`)
		VALUES (?,?,?,?,?)`,
		l.ID.String(), l.SessionID, l.MemoryID.String(), string(l.UsageType), toMillis(l.LinkedAt))
	return err
}

// ListSessionLinks returns all links for one session.
func (s *Store) ListSessionLinks(sessionID string) ([]*SessionMemoryLink, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionLinkCols+` FROM session_memories WHERE session_id = ? ORDER BY linked_at ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSessionLinks(rows), rows.Err()
}

// ListMemoryLinks returns all links touching one memory across sessions.
func (s *Store) ListMemoryLinks(memoryID uuid.UUID) ([]*SessionMemoryLink, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionLinkCols+` FROM session_memories WHERE memory_id = ?`, memoryID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanSessionLinks(rows), rows.Err()
}

// DeleteSessionLinks cascades deletion of one session's links.
// Deleting a memory leaves dangling links; search skips them.
func (s *Store) DeleteSessionLinks(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM session_memories WHERE session_id = ?`, sessionID)
	return err
}

func scanSessionLinks(rows *sql.Rows) []*SessionMemoryLink {
	var links []*SessionMemoryLink
	for rows.Next() {
		var l SessionMemoryLink
		var id, memoryID, usage string
		var linkedAt int64

		if err := rows.Scan(&id, &l.SessionID, &memoryID, &usage, &linkedAt); err != nil {
			slog.Debug("skipping session link row", "error", err)
			continue
		}

		var err error
		if l.ID, err = uuid.Parse(id); err != nil {
			continue
		}
		if l.MemoryID, err = uuid.Parse(memoryID); err != nil {
			continue
		}
		l.UsageType = UsageType(usage)
		l.LinkedAt = fromMillis(linkedAt)
		links = append(links, &l)
	}
	return links
}
