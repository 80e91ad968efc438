package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/embed"
	engramerrors "github.com/ccengram/ccengram/internal/errors"
	"github.com/ccengram/ccengram/internal/store"
)

// Salience bounds and adjustment clamps.
const (
	SalienceFloor   = 0.05
	SalienceCeiling = 1.0
	MinAdjustment   = 0.01
	MaxAdjustment   = 0.5
)

// minPrefixLength is the shortest accepted ID prefix for lookups.
const minPrefixLength = 6

// jaccardNearDuplicate is the token-set similarity at or above which two
// contents count as near-duplicates even when SimHash disagrees.
const jaccardNearDuplicate = 0.8

// Service owns memory operations for one project.
type Service struct {
	store     *store.Store
	embedder  embed.Embedder
	cfg       *config.Config
	projectID uuid.UUID

	now func() time.Time
}

// NewService creates the memory service.
func NewService(st *store.Store, embedder embed.Embedder, cfg *config.Config, projectID uuid.UUID) *Service {
	return &Service{
		store:     st,
		embedder:  embedder,
		cfg:       cfg,
		projectID: projectID,
		now:       time.Now,
	}
}

// SetClock overrides the time source; used by decay tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// DuplicateMatch describes how new content matched an existing memory.
type DuplicateMatch struct {
	Kind     string  `json:"kind"` // "exact" | "simhash"
	MemoryID string  `json:"memory_id"`
	Distance int     `json:"distance,omitempty"`
	Jaccard  float64 `json:"jaccard,omitempty"`
}

// AddParams are the inputs to Add.
type AddParams struct {
	Content     string
	Summary     string
	Sector      store.Sector
	Tier        store.Tier
	MemoryType  store.MemoryType
	Importance  float64
	Confidence  float64
	Tags        []string
	Concepts    []string
	Files       []string
	Categories  []string
	ScopePath   string
	ScopeModule string
	SessionID   string
	SegmentID   string
}

// AddResult reports the outcome of Add.
type AddResult struct {
	Memory      *store.Memory
	IsDuplicate bool
	Match       *DuplicateMatch
}

// Add deduplicates and inserts a memory:
//
//  1. Identical normalized content returns the existing memory with
//     IsDuplicate set; nothing is inserted.
//  2. A SimHash or Jaccard near-duplicate still inserts, and records a
//     related_to relationship to the near-duplicate.
func (s *Service) Add(ctx context.Context, p AddParams) (*AddResult, error) {
	if len(p.Content) < s.cfg.Memory.MinContentLength {
		return nil, engramerrors.InvalidInput("memory content too short")
	}
	if len(p.Content) > s.cfg.Memory.MaxContentLength {
		return nil, engramerrors.InvalidInput("memory content too long")
	}
	if p.Sector == "" {
		p.Sector = store.SectorSemantic
	}
	if p.Tier == "" {
		p.Tier = store.TierSession
	}

	contentHash := ContentHash(p.Content)
	simhash := Simhash(p.Content)

	// Exact duplicate: return the first memory with the same hash.
	if existing, err := s.store.FindMemoryByContentHash(contentHash); err != nil {
		return nil, engramerrors.StoreError("dedup lookup failed", err)
	} else if existing != nil {
		return &AddResult{
			Memory:      existing,
			IsDuplicate: true,
			Match:       &DuplicateMatch{Kind: "exact", MemoryID: existing.ID.String()},
		}, nil
	}

	match := s.findNearDuplicate(p.Content, simhash)

	vector, err := s.embedder.Embed(ctx, p.Content, embed.ModeDocument)
	if err != nil {
		return nil, engramerrors.Wrap(engramerrors.ErrCodeEmbeddingFailed, err)
	}

	now := s.now()
	salience := p.Importance
	if salience == 0 {
		salience = 0.5
	}
	salience = clampSalience(salience)

	m := &store.Memory{
		ID:               uuid.New(),
		ProjectID:        s.projectID,
		Content:          p.Content,
		Summary:          p.Summary,
		Sector:           p.Sector,
		Tier:             p.Tier,
		MemoryType:       p.MemoryType,
		Importance:       p.Importance,
		Salience:         salience,
		Confidence:       p.Confidence,
		Tags:             p.Tags,
		Concepts:         p.Concepts,
		Files:            p.Files,
		Categories:       p.Categories,
		ScopePath:        p.ScopePath,
		ScopeModule:      p.ScopeModule,
		SessionID:        p.SessionID,
		SegmentID:        p.SegmentID,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastAccessed:     now,
		ValidFrom:        now,
		ContentHash:      contentHash,
		Simhash:          simhash,
		EmbeddingModelID: s.embedder.ModelID(),
		Vector:           vector,
	}

	if err := s.store.AddMemory(m); err != nil {
		return nil, engramerrors.StoreError("failed to insert memory", err)
	}

	if match != nil {
		if nearID, parseErr := uuid.Parse(match.MemoryID); parseErr == nil {
			_ = s.store.AddRelationship(&store.Relationship{
				ID:           uuid.New(),
				FromMemoryID: m.ID,
				ToMemoryID:   nearID,
				Type:         store.RelRelatedTo,
				Confidence:   match.Jaccard,
				CreatedAt:    now,
				Source:       "dedup",
			})
		}
	}

	if p.SessionID != "" {
		_ = s.store.AddSessionMemoryLink(&store.SessionMemoryLink{
			ID:        uuid.New(),
			SessionID: p.SessionID,
			MemoryID:  m.ID,
			UsageType: store.UsageCreated,
			LinkedAt:  now,
		})
	}

	s.linkConcepts(m, now)

	return &AddResult{Memory: m, IsDuplicate: false, Match: match}, nil
}

// linkConcepts materializes the memory's concepts as entities and
// links them, so explore context can pivot through named concepts.
func (s *Service) linkConcepts(m *store.Memory, now time.Time) {
	for _, concept := range m.Concepts {
		entity, err := s.store.FindEntityByName(concept)
		if err != nil {
			continue
		}
		if entity == nil {
			entity = &store.Entity{
				ID:        uuid.New(),
				ProjectID: s.projectID,
				Name:      concept,
				Kind:      "concept",
				CreatedAt: now,
			}
			if err := s.store.AddEntity(entity); err != nil {
				continue
			}
		}
		_ = s.store.LinkMemoryEntity(&store.MemoryEntityLink{
			ID:        uuid.New(),
			MemoryID:  m.ID,
			EntityID:  entity.ID,
			CreatedAt: now,
		})
	}
}

// Entities returns the entities linked to a memory.
func (s *Service) Entities(memoryID uuid.UUID) ([]*store.Entity, error) {
	return s.store.EntitiesForMemory(memoryID)
}

// findNearDuplicate scans active memories for a small Hamming distance
// or a high token-set Jaccard. Returns the first qualifying candidate.
func (s *Service) findNearDuplicate(content string, simhash uint64) *DuplicateMatch {
	active, err := s.store.ActiveMemories()
	if err != nil {
		return nil
	}

	maxDistance := s.cfg.Memory.SimhashMaxDistance
	for _, m := range active {
		distance := HammingDistance(simhash, m.Simhash)
		if distance <= maxDistance {
			return &DuplicateMatch{
				Kind:     "simhash",
				MemoryID: m.ID.String(),
				Distance: distance,
				Jaccard:  Jaccard(content, m.Content),
			}
		}
		if j := Jaccard(content, m.Content); j >= jaccardNearDuplicate {
			return &DuplicateMatch{
				Kind:     "simhash",
				MemoryID: m.ID.String(),
				Distance: distance,
				Jaccard:  j,
			}
		}
	}
	return nil
}

// Get loads a memory by id. Returns nil when absent.
func (s *Service) Get(id uuid.UUID) (*store.Memory, error) {
	return s.store.GetMemory(id)
}

// ResolveID resolves a full id or an id prefix of at least 6 characters.
func (s *Service) ResolveID(idOrPrefix string) (uuid.UUID, error) {
	if id, err := uuid.Parse(idOrPrefix); err == nil {
		return id, nil
	}
	if len(idOrPrefix) < minPrefixLength {
		return uuid.Nil, engramerrors.New(engramerrors.ErrCodePrefixTooShort,
			"id prefix must be at least 6 characters", nil)
	}

	ids, err := s.store.FindMemoryIDsByPrefix(idOrPrefix)
	if err != nil {
		return uuid.Nil, engramerrors.StoreError("prefix lookup failed", err)
	}
	switch len(ids) {
	case 0:
		return uuid.Nil, engramerrors.NotFound("memory", idOrPrefix)
	case 1:
		return ids[0], nil
	default:
		return uuid.Nil, engramerrors.AmbiguousPrefix(idOrPrefix, len(ids))
	}
}

// List returns memories matching the filter.
func (s *Service) List(filter *store.MemoryFilter, limit, offset int) ([]*store.Memory, error) {
	return s.store.ListMemories(filter, limit, offset)
}

// Reinforce raises salience with diminishing returns:
//
//	new = min(old + amount*(1-old), 1.0)
//
// amount clamps to [0.01, 0.5]. Access count and timestamps update.
// Read-modify-write: a concurrent writer may win the race; last write
// wins with a small window.
func (s *Service) Reinforce(id uuid.UUID, amount float64) (*store.Memory, error) {
	return s.adjustSalience(id, amount, func(old, amt float64) float64 {
		return min(old+amt*(1-old), SalienceCeiling)
	})
}

// Deemphasize lowers salience: new = max(old - amount, 0.05).
func (s *Service) Deemphasize(id uuid.UUID, amount float64) (*store.Memory, error) {
	return s.adjustSalience(id, amount, func(old, amt float64) float64 {
		return max(old-amt, SalienceFloor)
	})
}

func (s *Service) adjustSalience(id uuid.UUID, amount float64, f func(old, amt float64) float64) (*store.Memory, error) {
	m, err := s.store.GetMemory(id)
	if err != nil {
		return nil, engramerrors.StoreError("lookup failed", err)
	}
	if m == nil {
		return nil, engramerrors.NotFound("memory", id.String())
	}

	amount = clampAdjustment(amount)
	now := s.now()

	m.Salience = f(m.Salience, amount)
	m.AccessCount++
	m.LastAccessed = now
	m.UpdatedAt = now

	if err := s.store.UpdateMemory(m); err != nil {
		return nil, engramerrors.StoreError("update failed", err)
	}
	return m, nil
}

// SetSalience sets an explicit value clamped to [0.05, 1.0].
func (s *Service) SetSalience(id uuid.UUID, value float64) (*store.Memory, error) {
	m, err := s.store.GetMemory(id)
	if err != nil {
		return nil, engramerrors.StoreError("lookup failed", err)
	}
	if m == nil {
		return nil, engramerrors.NotFound("memory", id.String())
	}

	m.Salience = clampSalience(value)
	m.UpdatedAt = s.now()
	if err := s.store.UpdateMemory(m); err != nil {
		return nil, engramerrors.StoreError("update failed", err)
	}
	return m, nil
}

// Touch records an access: bump access count and last_accessed.
func (s *Service) Touch(id uuid.UUID) error {
	m, err := s.store.GetMemory(id)
	if err != nil || m == nil {
		return err
	}
	m.AccessCount++
	m.LastAccessed = s.now()
	return s.store.UpdateMemory(m)
}

// Delete soft-deletes by default; hard removes the row permanently.
func (s *Service) Delete(id uuid.UUID, hard bool) error {
	if hard {
		return s.store.HardDeleteMemory(id)
	}

	m, err := s.store.GetMemory(id)
	if err != nil {
		return engramerrors.StoreError("lookup failed", err)
	}
	if m == nil {
		return engramerrors.NotFound("memory", id.String())
	}

	now := s.now()
	m.IsDeleted = true
	m.DeletedAt = &now
	m.UpdatedAt = now
	return s.store.UpdateMemory(m)
}

// Restore un-deletes a soft-deleted memory.
func (s *Service) Restore(id uuid.UUID) (*store.Memory, error) {
	m, err := s.store.GetMemory(id)
	if err != nil {
		return nil, engramerrors.StoreError("lookup failed", err)
	}
	if m == nil {
		return nil, engramerrors.NotFound("memory", id.String())
	}

	m.IsDeleted = false
	m.DeletedAt = nil
	m.UpdatedAt = s.now()
	if err := s.store.UpdateMemory(m); err != nil {
		return nil, engramerrors.StoreError("update failed", err)
	}
	return m, nil
}

// ListDeleted returns soft-deleted memories.
func (s *Service) ListDeleted(limit int) ([]*store.Memory, error) {
	return s.store.ListDeletedMemories(limit)
}

// Supersede marks old as replaced by new and records the supersedes
// relationship with full confidence. Idempotent.
func (s *Service) Supersede(oldID, newID uuid.UUID) error {
	oldMem, err := s.store.GetMemory(oldID)
	if err != nil {
		return engramerrors.StoreError("lookup failed", err)
	}
	if oldMem == nil {
		return engramerrors.NotFound("memory", oldID.String())
	}
	newMem, err := s.store.GetMemory(newID)
	if err != nil {
		return engramerrors.StoreError("lookup failed", err)
	}
	if newMem == nil {
		return engramerrors.NotFound("memory", newID.String())
	}

	now := s.now()
	if oldMem.ValidUntil == nil {
		oldMem.ValidUntil = &now
	}
	oldMem.SupersededBy = &newID
	oldMem.UpdatedAt = now
	if err := s.store.UpdateMemory(oldMem); err != nil {
		return engramerrors.StoreError("update failed", err)
	}

	existing, err := s.store.FindRelationship(newID, oldID, store.RelSupersedes)
	if err != nil {
		return engramerrors.StoreError("relationship lookup failed", err)
	}
	if existing == nil {
		if err := s.store.AddRelationship(&store.Relationship{
			ID:           uuid.New(),
			FromMemoryID: newID,
			ToMemoryID:   oldID,
			Type:         store.RelSupersedes,
			Confidence:   1.0,
			CreatedAt:    now,
			Source:       "supersede",
		}); err != nil {
			return engramerrors.StoreError("relationship insert failed", err)
		}
	}
	return nil
}

// Timeline returns memories around an anchor by creation time:
// depthBefore older (newest first flipped to chronological) and
// depthAfter newer, with the anchor in the middle.
func (s *Service) Timeline(anchorID uuid.UUID, depthBefore, depthAfter int) ([]*store.Memory, error) {
	anchor, err := s.store.GetMemory(anchorID)
	if err != nil {
		return nil, engramerrors.StoreError("lookup failed", err)
	}
	if anchor == nil {
		return nil, engramerrors.NotFound("memory", anchorID.String())
	}

	anchorMillis := anchor.CreatedAt.UnixMilli()
	before, err := s.store.MemoriesBefore(anchorMillis, depthBefore)
	if err != nil {
		return nil, err
	}
	after, err := s.store.MemoriesAfter(anchorMillis, depthAfter)
	if err != nil {
		return nil, err
	}

	// before comes newest-first; flip to chronological order.
	timeline := make([]*store.Memory, 0, len(before)+1+len(after))
	for i := len(before) - 1; i >= 0; i-- {
		timeline = append(timeline, before[i])
	}
	timeline = append(timeline, anchor)
	timeline = append(timeline, after...)
	return timeline, nil
}

func clampSalience(v float64) float64 {
	return min(max(v, SalienceFloor), SalienceCeiling)
}

func clampAdjustment(v float64) float64 {
	return min(max(v, MinAdjustment), MaxAdjustment)
}
