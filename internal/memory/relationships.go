package memory

import (
	"github.com/google/uuid"

	engramerrors "github.com/ccengram/ccengram/internal/errors"
	"github.com/ccengram/ccengram/internal/store"
)

// AddRelationship creates a directed link between two memories.
func (s *Service) AddRelationship(from, to uuid.UUID, relType store.RelationshipType, confidence float64, source string) (*store.Relationship, error) {
	if from == to {
		return nil, engramerrors.InvalidInput("relationship endpoints must differ")
	}
	for _, id := range []uuid.UUID{from, to} {
		m, err := s.store.GetMemory(id)
		if err != nil {
			return nil, engramerrors.StoreError("lookup failed", err)
		}
		if m == nil {
			return nil, engramerrors.NotFound("memory", id.String())
		}
	}

	r := &store.Relationship{
		ID:           uuid.New(),
		FromMemoryID: from,
		ToMemoryID:   to,
		Type:         relType,
		Confidence:   confidence,
		CreatedAt:    s.now(),
		Source:       source,
	}
	if err := s.store.AddRelationship(r); err != nil {
		return nil, engramerrors.StoreError("relationship insert failed", err)
	}
	return r, nil
}

// ListRelationships returns links touching a memory.
func (s *Service) ListRelationships(memoryID uuid.UUID, relType store.RelationshipType) ([]*store.Relationship, error) {
	return s.store.ListRelationships(memoryID, relType)
}

// DeleteRelationship removes a link by id.
func (s *Service) DeleteRelationship(id uuid.UUID) error {
	return s.store.DeleteRelationship(id)
}

// RelatedMemory is one neighbor in the relationship graph.
type RelatedMemory struct {
	Memory       *store.Memory           `json:"memory"`
	Relationship *store.Relationship     `json:"relationship"`
	Depth        int                     `json:"depth"`
}

// Related walks the relationship graph breadth-first from a memory up
// to depth hops, returning at most limit neighbors with their memories
// loaded. The graph may be cyclic; a visited set bounds the walk.
// Dangling links (deleted endpoint) are skipped.
func (s *Service) Related(memoryID uuid.UUID, depth, limit int) ([]*RelatedMemory, error) {
	if depth <= 0 {
		depth = 1
	}
	if limit <= 0 {
		limit = 20
	}

	visited := map[uuid.UUID]bool{memoryID: true}
	frontier := []uuid.UUID{memoryID}
	var related []*RelatedMemory

	for d := 1; d <= depth && len(frontier) > 0 && len(related) < limit; d++ {
		var next []uuid.UUID
		for _, id := range frontier {
			rels, err := s.store.ListRelationships(id, "")
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				neighbor := r.ToMemoryID
				if neighbor == id {
					neighbor = r.FromMemoryID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				m, err := s.store.GetMemory(neighbor)
				if err != nil || m == nil || m.IsDeleted {
					continue // skip-if-missing
				}

				related = append(related, &RelatedMemory{Memory: m, Relationship: r, Depth: d})
				next = append(next, neighbor)
				if len(related) >= limit {
					return related, nil
				}
			}
		}
		frontier = next
	}
	return related, nil
}
