package store

import (
	"database/sql"

	"github.com/google/uuid"
)

// SaveCheckpoint persists index progress for (project, type).
// Checkpoint-save failures are tolerated by callers: a long index never
// aborts because a checkpoint write failed.
func (s *Store) SaveCheckpoint(c *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	isComplete := 0
	if c.IsComplete {
		isComplete = 1
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO checkpoints
		(project_id, checkpoint_type, pending_files, processed_files, error_files,
		 is_complete, gitignore_hash, started_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ProjectID.String(), string(c.Type),
		encodeList(c.PendingFiles), encodeList(c.ProcessedFiles), encodeList(c.ErrorFiles),
		isComplete, c.GitignoreHash, toMillis(c.StartedAt), toMillis(c.UpdatedAt))
	return err
}

// LoadCheckpoint returns the stored checkpoint, or nil when absent.
func (s *Store) LoadCheckpoint(projectID uuid.UUID, cpType CheckpointType) (*Checkpoint, error) {
	row := s.db.QueryRow(`SELECT pending_files, processed_files, error_files,
		is_complete, gitignore_hash, started_at, updated_at
		FROM checkpoints WHERE project_id = ? AND checkpoint_type = ?`,
		projectID.String(), string(cpType))

	var pending, processed, errFiles, hash sql.NullString
	var isComplete int
	var startedAt, updatedAt int64

	err := row.Scan(&pending, &processed, &errFiles, &isComplete, &hash, &startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &Checkpoint{
		ProjectID:      projectID,
		Type:           cpType,
		PendingFiles:   decodeList(pending),
		ProcessedFiles: decodeList(processed),
		ErrorFiles:     decodeList(errFiles),
		IsComplete:     isComplete != 0,
		GitignoreHash:  hash.String,
		StartedAt:      fromMillis(startedAt),
		UpdatedAt:      fromMillis(updatedAt),
	}, nil
}

// ClearCheckpoint removes the checkpoint after clean completion.
func (s *Store) ClearCheckpoint(projectID uuid.UUID, cpType CheckpointType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM checkpoints WHERE project_id = ? AND checkpoint_type = ?`,
		projectID.String(), string(cpType))
	return err
}
