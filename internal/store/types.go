// Package store is the persistence layer for one project: SQLite row
// tables, an in-memory HNSW vector index per embedded table, and a bleve
// keyword index used for degraded search when no embedding is available.
//
// Writes are visible to subsequent reads on the same Store (read-your-writes).
// Row-decode failures are logged at debug and the row is skipped so that
// schema evolution never takes the whole table down.
package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sector partitions memories by epistemic kind.
type Sector string

const (
	SectorSemantic   Sector = "semantic"
	SectorEpisodic   Sector = "episodic"
	SectorProcedural Sector = "procedural"
	SectorEmotional  Sector = "emotional"
	SectorReflective Sector = "reflective"
)

// ParseSector parses a sector case-insensitively. Unknown values are an
// error; use SectorOrDefault when decoding legacy rows.
func ParseSector(s string) (Sector, error) {
	switch Sector(strings.ToLower(strings.TrimSpace(s))) {
	case SectorSemantic, SectorEpisodic, SectorProcedural, SectorEmotional, SectorReflective:
		return Sector(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("unknown sector: %q", s)
}

// SectorOrDefault decodes a sector leniently, falling back to semantic.
func SectorOrDefault(s string) Sector {
	if sec, err := ParseSector(s); err == nil {
		return sec
	}
	return SectorSemantic
}

// Tier distinguishes ephemeral from durable memories.
type Tier string

const (
	TierSession Tier = "session"
	TierProject Tier = "project"
)

// ParseTier parses a tier case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierSession, TierProject:
		return Tier(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("unknown tier: %q", s)
}

// MemoryType is the optional fine-grained memory classification.
type MemoryType string

const (
	MemoryTypePreference     MemoryType = "preference"
	MemoryTypeCodebase       MemoryType = "codebase"
	MemoryTypeDecision       MemoryType = "decision"
	MemoryTypeGotcha         MemoryType = "gotcha"
	MemoryTypePattern        MemoryType = "pattern"
	MemoryTypeTurnSummary    MemoryType = "turn_summary"
	MemoryTypeTaskCompletion MemoryType = "task_completion"
)

// ParseMemoryType parses a memory type case-insensitively.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(strings.ToLower(strings.TrimSpace(s))) {
	case MemoryTypePreference, MemoryTypeCodebase, MemoryTypeDecision,
		MemoryTypeGotcha, MemoryTypePattern, MemoryTypeTurnSummary, MemoryTypeTaskCompletion:
		return MemoryType(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("unknown memory type: %q", s)
}

// RelationshipType is the kind of directed link between two memories.
type RelationshipType string

const (
	RelSupersedes    RelationshipType = "supersedes"
	RelContradicts   RelationshipType = "contradicts"
	RelRelatedTo     RelationshipType = "related_to"
	RelBuildsOn      RelationshipType = "builds_on"
	RelConfirms      RelationshipType = "confirms"
	RelAppliesTo     RelationshipType = "applies_to"
	RelDependsOn     RelationshipType = "depends_on"
	RelAlternativeTo RelationshipType = "alternative_to"
)

// ParseRelationshipType parses a relationship type case-insensitively.
func ParseRelationshipType(s string) (RelationshipType, error) {
	switch RelationshipType(strings.ToLower(strings.TrimSpace(s))) {
	case RelSupersedes, RelContradicts, RelRelatedTo, RelBuildsOn,
		RelConfirms, RelAppliesTo, RelDependsOn, RelAlternativeTo:
		return RelationshipType(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("unknown relationship type: %q", s)
}

// UsageType records how a memory was used within a session.
type UsageType string

const (
	UsageCreated    UsageType = "created"
	UsageRecalled   UsageType = "recalled"
	UsageUpdated    UsageType = "updated"
	UsageReinforced UsageType = "reinforced"
)

// ParseUsageType parses a usage type case-insensitively.
func ParseUsageType(s string) (UsageType, error) {
	switch UsageType(strings.ToLower(strings.TrimSpace(s))) {
	case UsageCreated, UsageRecalled, UsageUpdated, UsageReinforced:
		return UsageType(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return "", fmt.Errorf("unknown usage type: %q", s)
}

// ChunkType classifies a code chunk.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeModule   ChunkType = "module"
	ChunkTypeBlock    ChunkType = "block"
	ChunkTypeImport   ChunkType = "import"
)

// CheckpointType distinguishes code and docs index checkpoints.
type CheckpointType string

const (
	CheckpointCode CheckpointType = "code"
	CheckpointDocs CheckpointType = "docs"
)

// Memory is a durable fact, preference, decision, or reflection.
type Memory struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Content   string
	Summary   string

	Sector     Sector
	Tier       Tier
	MemoryType MemoryType // empty when unclassified

	Importance float64
	Salience   float64
	Confidence float64

	AccessCount int

	Tags        []string
	Concepts    []string
	Files       []string
	Categories  []string
	ScopePath   string
	ScopeModule string
	SessionID   string
	SegmentID   string

	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastAccessed time.Time
	ValidFrom    time.Time
	ValidUntil   *time.Time
	DeletedAt    *time.Time
	IsDeleted    bool

	ContentHash  string
	Simhash      uint64
	SupersededBy *uuid.UUID

	DecayRate        *float64
	NextDecayAt      *time.Time
	EmbeddingModelID string

	Vector []float32
}

// CodeChunk is a contiguous span of source with extracted metadata.
type CodeChunk struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	FilePath  string // project-relative
	Content   string
	Language  string
	ChunkType ChunkType

	Symbols []string
	Imports []string
	Calls   []string

	StartLine int // 1-indexed
	EndLine   int // inclusive

	FileHash    string // hash of whole file when chunk was produced
	ContentHash string // hash of this chunk's content only

	IndexedAt      time.Time
	TokensEstimate int

	DefinitionKind   string
	DefinitionName   string
	Visibility       string
	Signature        string
	Docstring        string
	ParentDefinition string
	EmbeddingText    string

	Vector []float32
}

// DocumentChunk is one segment of an ingested prose document.
type DocumentChunk struct {
	ID          uuid.UUID
	DocumentID  string
	ProjectID   uuid.UUID
	Content     string
	Title       string
	Source      string
	SourceKind  string
	ChunkIndex  int
	TotalChunks int
	CharOffset  int
	IndexedAt   time.Time

	Vector []float32
}

// Relationship is a directed link between two memories.
type Relationship struct {
	ID           uuid.UUID
	FromMemoryID uuid.UUID
	ToMemoryID   uuid.UUID
	Type         RelationshipType
	Confidence   float64
	CreatedAt    time.Time
	Source       string
}

// SessionMemoryLink records usage of a memory within a session.
type SessionMemoryLink struct {
	ID        uuid.UUID
	SessionID string
	MemoryID  uuid.UUID
	UsageType UsageType
	LinkedAt  time.Time
}

// UserPrompt is one prompt captured by a segment accumulator.
type UserPrompt struct {
	Prompt        string    `json:"prompt"`
	Category      string    `json:"category,omitempty"`
	IsExtractable bool      `json:"is_extractable"`
	Timestamp     time.Time `json:"ts"`
}

// SegmentAccumulator is the per-session working context between
// memory-extraction triggers. Exactly one active row per session.
type SegmentAccumulator struct {
	ID           uuid.UUID
	SessionID    string
	ProjectID    uuid.UUID
	SegmentStart time.Time

	UserPrompts          []UserPrompt
	FilesRead            []string
	FilesModified        []string
	CommandsRun          []string
	ErrorsEncountered    []string
	SearchesPerformed    []string
	CompletedTasks       []string
	LastAssistantMessage string
	ToolCallCount        int
	UpdatedAt            time.Time
}

// Checkpoint is persistent progress for a full-project index.
type Checkpoint struct {
	ProjectID      uuid.UUID
	Type           CheckpointType
	PendingFiles   []string
	ProcessedFiles []string
	ErrorFiles     []string
	IsComplete     bool
	GitignoreHash  string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// Entity is a named concept extracted from memories, used by explore
// context responses.
type Entity struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Name      string
	Kind      string
	CreatedAt time.Time
}

// MemoryEntityLink connects a memory to an entity.
type MemoryEntityLink struct {
	ID        uuid.UUID
	MemoryID  uuid.UUID
	EntityID  uuid.UUID
	CreatedAt time.Time
}

// FileEntry is the per-path summary used by the startup scan: one entry
// per indexed path with the most recent file hash and index time.
type FileEntry struct {
	Path      string
	FileHash  string
	IndexedAt time.Time
}
