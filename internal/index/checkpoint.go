package index

import (
	"time"

	"github.com/google/uuid"

	"github.com/ccengram/ccengram/internal/store"
)

// checkpointState is the in-memory working form of an index checkpoint.
// Callers hold the indexer's batch mutex around mutations.
type checkpointState struct {
	projectID     uuid.UUID
	cpType        store.CheckpointType
	pendingFiles  []string
	processed     map[string]bool
	errorFiles    map[string]bool
	gitignoreHash string
	startedAt     time.Time
}

// newCheckpointState starts a fresh checkpoint over all scanned paths.
func newCheckpointState(projectID uuid.UUID, cpType store.CheckpointType, allPaths []string, gitignoreHash string) *checkpointState {
	return &checkpointState{
		projectID:     projectID,
		cpType:        cpType,
		pendingFiles:  append([]string(nil), allPaths...),
		processed:     make(map[string]bool),
		errorFiles:    make(map[string]bool),
		gitignoreHash: gitignoreHash,
		startedAt:     time.Now(),
	}
}

// resumeCheckpointState keeps processed and error sets from a stored
// checkpoint and shrinks pending to the scanned paths not yet handled.
func resumeCheckpointState(cp *store.Checkpoint, allPaths []string) *checkpointState {
	st := &checkpointState{
		projectID:     cp.ProjectID,
		cpType:        cp.Type,
		processed:     make(map[string]bool, len(cp.ProcessedFiles)),
		errorFiles:    make(map[string]bool, len(cp.ErrorFiles)),
		gitignoreHash: cp.GitignoreHash,
		startedAt:     cp.StartedAt,
	}
	for _, p := range cp.ProcessedFiles {
		st.processed[p] = true
	}
	for _, p := range cp.ErrorFiles {
		st.errorFiles[p] = true
	}
	for _, p := range allPaths {
		if !st.processed[p] {
			st.pendingFiles = append(st.pendingFiles, p)
		}
	}
	return st
}

// markProcessed moves a path from pending to processed.
func (c *checkpointState) markProcessed(path string) {
	c.processed[path] = true
	delete(c.errorFiles, path)
}

// markError records a failed path.
func (c *checkpointState) markError(path string) {
	c.errorFiles[path] = true
}

// Checkpoint snapshots the state into its persisted form.
func (c *checkpointState) Checkpoint() *store.Checkpoint {
	var pending, processed, errored []string
	for _, p := range c.pendingFiles {
		if !c.processed[p] && !c.errorFiles[p] {
			pending = append(pending, p)
		}
	}
	for p := range c.processed {
		processed = append(processed, p)
	}
	for p := range c.errorFiles {
		errored = append(errored, p)
	}

	return &store.Checkpoint{
		ProjectID:      c.projectID,
		Type:           c.cpType,
		PendingFiles:   pending,
		ProcessedFiles: processed,
		ErrorFiles:     errored,
		GitignoreHash:  c.gitignoreHash,
		StartedAt:      c.startedAt,
		UpdatedAt:      time.Now(),
	}
}
