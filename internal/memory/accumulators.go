package memory

import (
	"github.com/google/uuid"

	"github.com/ccengram/ccengram/internal/store"
)

// Per-field caps for segment accumulators.
const (
	maxFilesRead         = 100
	maxFilesModified     = 100
	maxCommandsRun       = 50
	maxErrors            = 20
	maxSearches          = 50
	maxCompletedTasks    = 50
	maxAssistantMsgBytes = 10 * 1024
)

// Extraction gates.
const (
	extractMinToolCalls     = 3
	todoExtractMinTasks     = 3
	todoExtractMinToolCalls = 5
)

// Accumulator returns the active segment accumulator for a session,
// creating one when absent. Exactly one active accumulator per session.
func (s *Service) Accumulator(sessionID string) (*store.SegmentAccumulator, error) {
	acc, err := s.store.GetAccumulator(sessionID)
	if err != nil {
		return nil, err
	}
	if acc != nil {
		return acc, nil
	}

	now := s.now()
	acc = &store.SegmentAccumulator{
		ID:           uuid.New(),
		SessionID:    sessionID,
		ProjectID:    s.projectID,
		SegmentStart: now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveAccumulator(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// AccumulatorUpdate is one append-only event batch for a segment.
type AccumulatorUpdate struct {
	Prompt           *store.UserPrompt
	FileRead         string
	FileModified     string
	CommandRun       string
	ErrorEncountered string
	SearchPerformed  string
	CompletedTask    string
	AssistantMessage string
	ToolCalls        int
}

// RecordActivity appends events to the session's active accumulator,
// enforcing per-field caps.
func (s *Service) RecordActivity(sessionID string, update AccumulatorUpdate) (*store.SegmentAccumulator, error) {
	acc, err := s.Accumulator(sessionID)
	if err != nil {
		return nil, err
	}

	if update.Prompt != nil {
		acc.UserPrompts = append(acc.UserPrompts, *update.Prompt)
	}
	acc.FilesRead = appendCapped(acc.FilesRead, update.FileRead, maxFilesRead)
	acc.FilesModified = appendCapped(acc.FilesModified, update.FileModified, maxFilesModified)
	acc.CommandsRun = appendCapped(acc.CommandsRun, update.CommandRun, maxCommandsRun)
	acc.ErrorsEncountered = appendCapped(acc.ErrorsEncountered, update.ErrorEncountered, maxErrors)
	acc.SearchesPerformed = appendCapped(acc.SearchesPerformed, update.SearchPerformed, maxSearches)
	acc.CompletedTasks = appendCapped(acc.CompletedTasks, update.CompletedTask, maxCompletedTasks)

	if update.AssistantMessage != "" {
		msg := update.AssistantMessage
		if len(msg) > maxAssistantMsgBytes {
			msg = msg[:maxAssistantMsgBytes]
		}
		acc.LastAssistantMessage = msg
	}
	acc.ToolCallCount += update.ToolCalls
	acc.UpdatedAt = s.now()

	if err := s.store.SaveAccumulator(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func appendCapped(list []string, value string, limit int) []string {
	if value == "" || len(list) >= limit {
		return list
	}
	return append(list, value)
}

// ShouldExtract reports whether a segment has accumulated meaningful
// work: enough tool calls, or any modified file, completed task, or
// error.
func ShouldExtract(acc *store.SegmentAccumulator) bool {
	if acc == nil {
		return false
	}
	return acc.ToolCallCount >= extractMinToolCalls ||
		len(acc.FilesModified) > 0 ||
		len(acc.CompletedTasks) > 0 ||
		len(acc.ErrorsEncountered) > 0
}

// ShouldExtractTodos gates todo extraction on completed-task volume.
func ShouldExtractTodos(acc *store.SegmentAccumulator) bool {
	if acc == nil {
		return false
	}
	return len(acc.CompletedTasks) >= todoExtractMinTasks &&
		acc.ToolCallCount >= todoExtractMinToolCalls
}

// ResetAfterExtraction starts a fresh segment for the session: new id
// and segment start, same session and project.
func (s *Service) ResetAfterExtraction(sessionID string) (*store.SegmentAccumulator, error) {
	now := s.now()
	acc := &store.SegmentAccumulator{
		ID:           uuid.New(),
		SessionID:    sessionID,
		ProjectID:    s.projectID,
		SegmentStart: now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveAccumulator(acc); err != nil {
		return nil, err
	}
	return acc, nil
}
