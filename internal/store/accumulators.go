package store

import (
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

const accumulatorCols = `id, session_id, project_id, segment_start, user_prompts,
	files_read, files_modified, commands_run, errors_encountered,
	searches_performed, completed_tasks, last_assistant_message,
	tool_call_count, updated_at`

// SaveAccumulator inserts or replaces the active accumulator for a
// session. The session_id UNIQUE constraint keeps exactly one active
// row per session.
func (s *Store) SaveAccumulator(a *SegmentAccumulator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prompts, err := json.Marshal(a.UserPrompts)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`INSERT INTO segment_accumulators (`+accumulatorCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(session_id) DO UPDATE SET
			id = excluded.id,
			segment_start = excluded.segment_start,
			user_prompts = excluded.user_prompts,
			files_read = excluded.files_read,
			files_modified = excluded.files_modified,
			commands_run = excluded.commands_run,
			errors_encountered = excluded.errors_encountered,
			searches_performed = excluded.searches_performed,
			completed_tasks = excluded.completed_tasks,
			last_assistant_message = excluded.last_assistant_message,
			tool_call_count = excluded.tool_call_count,
			updated_at = excluded.updated_at`,
		a.ID.String(), a.SessionID, a.ProjectID.String(), toMillis(a.SegmentStart),
		string(prompts),
		encodeList(a.FilesRead), encodeList(a.FilesModified), encodeList(a.CommandsRun),
		encodeList(a.ErrorsEncountered), encodeList(a.SearchesPerformed), encodeList(a.CompletedTasks),
		a.LastAssistantMessage, a.ToolCallCount, toMillis(a.UpdatedAt))
	return err
}

// GetAccumulator loads the active accumulator for a session.
// Returns nil when the session has none.
func (s *Store) GetAccumulator(sessionID string) (*SegmentAccumulator, error) {
	rows, err := s.db.Query(
		`SELECT `+accumulatorCols+` FROM segment_accumulators WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var a SegmentAccumulator
		var id, projectID string
		var segmentStart, updatedAt int64
		var prompts, filesRead, filesModified, commands, errs, searches, tasks sql.NullString
		var lastMsg sql.NullString

		if err := rows.Scan(
			&id, &a.SessionID, &projectID, &segmentStart, &prompts,
			&filesRead, &filesModified, &commands, &errs, &searches, &tasks,
			&lastMsg, &a.ToolCallCount, &updatedAt,
		); err != nil {
			slog.Debug("skipping accumulator row", "error", err)
			continue
		}

		var err error
		if a.ID, err = uuid.Parse(id); err != nil {
			continue
		}
		if a.ProjectID, err = uuid.Parse(projectID); err != nil {
			continue
		}
		a.SegmentStart = fromMillis(segmentStart)
		a.UpdatedAt = fromMillis(updatedAt)
		if prompts.Valid && prompts.String != "" {
			_ = json.Unmarshal([]byte(prompts.String), &a.UserPrompts)
		}
		a.FilesRead = decodeList(filesRead)
		a.FilesModified = decodeList(filesModified)
		a.CommandsRun = decodeList(commands)
		a.ErrorsEncountered = decodeList(errs)
		a.SearchesPerformed = decodeList(searches)
		a.CompletedTasks = decodeList(tasks)
		a.LastAssistantMessage = lastMsg.String
		return &a, rows.Err()
	}
	return nil, rows.Err()
}

// DeleteAccumulator clears the accumulator on session end.
func (s *Store) DeleteAccumulator(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM segment_accumulators WHERE session_id = ?`, sessionID)
	return err
}
