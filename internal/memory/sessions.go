package memory

import (
	"github.com/google/uuid"

	engramerrors "github.com/ccengram/ccengram/internal/errors"
	"github.com/ccengram/ccengram/internal/store"
)

// LinkMemory records a usage of a memory within a session.
func (s *Service) LinkMemory(sessionID string, memoryID uuid.UUID, usage store.UsageType) error {
	if sessionID == "" {
		return engramerrors.InvalidInput("session id required")
	}
	return s.store.AddSessionMemoryLink(&store.SessionMemoryLink{
		ID:        uuid.New(),
		SessionID: sessionID,
		MemoryID:  memoryID,
		UsageType: usage,
		LinkedAt:  s.now(),
	})
}

// SessionStats aggregates a session's memory usage.
type SessionStats struct {
	SessionID    string         `json:"session_id"`
	TotalLinks   int            `json:"total_links"`
	ByUsage      map[string]int `json:"by_usage"`
	BySector     map[string]int `json:"by_sector"`
	MeanSalience float64        `json:"mean_salience"`
}

// Stats aggregates counts by usage and sector plus mean salience for
// the memories a session touched. Dangling links are skipped.
func (s *Service) Stats(sessionID string) (*SessionStats, error) {
	links, err := s.store.ListSessionLinks(sessionID)
	if err != nil {
		return nil, err
	}

	stats := &SessionStats{
		SessionID: sessionID,
		ByUsage:   make(map[string]int),
		BySector:  make(map[string]int),
	}

	var salienceSum float64
	var counted int
	seen := make(map[uuid.UUID]bool)

	for _, l := range links {
		stats.TotalLinks++
		stats.ByUsage[string(l.UsageType)]++

		if seen[l.MemoryID] {
			continue
		}
		seen[l.MemoryID] = true

		m, err := s.store.GetMemory(l.MemoryID)
		if err != nil || m == nil {
			continue
		}
		stats.BySector[string(m.Sector)]++
		salienceSum += m.Salience
		counted++
	}

	if counted > 0 {
		stats.MeanSalience = salienceSum / float64(counted)
	}
	return stats, nil
}

// PromotionResult reports a promotion pass.
type PromotionResult struct {
	Examined int `json:"examined"`
	Promoted int `json:"promoted"`
}

// PromoteByUses promotes session-tier memories created in this session
// to project tier when they were used across at least minUses distinct
// sessions. Idempotent: already-promoted memories count as examined only.
func (s *Service) PromoteByUses(sessionID string, minUses int) (*PromotionResult, error) {
	if minUses <= 0 {
		minUses = 2
	}
	return s.promote(sessionID, func(m *store.Memory) (bool, error) {
		links, err := s.store.ListMemoryLinks(m.ID)
		if err != nil {
			return false, err
		}
		sessions := make(map[string]bool)
		for _, l := range links {
			sessions[l.SessionID] = true
		}
		return len(sessions) >= minUses, nil
	})
}

// PromoteBySalience promotes created memories whose salience meets the
// threshold.
func (s *Service) PromoteBySalience(sessionID string, threshold float64) (*PromotionResult, error) {
	if threshold <= 0 {
		threshold = 0.8
	}
	return s.promote(sessionID, func(m *store.Memory) (bool, error) {
		return m.Salience >= threshold, nil
	})
}

func (s *Service) promote(sessionID string, qualifies func(*store.Memory) (bool, error)) (*PromotionResult, error) {
	links, err := s.store.ListSessionLinks(sessionID)
	if err != nil {
		return nil, err
	}

	result := &PromotionResult{}
	seen := make(map[uuid.UUID]bool)

	for _, l := range links {
		if l.UsageType != store.UsageCreated || seen[l.MemoryID] {
			continue
		}
		seen[l.MemoryID] = true

		m, err := s.store.GetMemory(l.MemoryID)
		if err != nil || m == nil || m.IsDeleted {
			continue
		}
		result.Examined++

		if m.Tier == store.TierProject {
			continue // promotion is idempotent
		}

		ok, err := qualifies(m)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		m.Tier = store.TierProject
		m.UpdatedAt = s.now()
		if err := s.store.UpdateMemory(m); err != nil {
			return nil, err
		}
		result.Promoted++
	}
	return result, nil
}

// EndSession cascades deletion of a session's links and clears its
// segment accumulator.
func (s *Service) EndSession(sessionID string) error {
	if err := s.store.DeleteSessionLinks(sessionID); err != nil {
		return err
	}
	return s.store.DeleteAccumulator(sessionID)
}
