package memory

import (
	"log/slog"
	"math"
	"time"

	"github.com/ccengram/ccengram/internal/store"
)

// sectorDecayRates are per-day exponential decay constants. Episodic
// memories fade fastest; semantic knowledge is the most durable. A
// memory's own DecayRate overrides its sector's default.
var sectorDecayRates = map[store.Sector]float64{
	store.SectorSemantic:   0.005,
	store.SectorEpisodic:   0.02,
	store.SectorProcedural: 0.008,
	store.SectorEmotional:  0.015,
	store.SectorReflective: 0.01,
}

// DecayOptions bounds a decay pass.
type DecayOptions struct {
	// ArchiveThreshold archives memories decayed below it (default 0.1).
	ArchiveThreshold float64

	// MaxIdleDays is the idle period required before archival (default 90).
	MaxIdleDays int
}

// DecayResult reports a decay pass.
type DecayResult struct {
	Examined int `json:"examined"`
	Decayed  int `json:"decayed"`
	Archived int `json:"archived"`
}

// ApplyDecay iterates active memories and applies time-based salience
// decay:
//
//	new = old * exp(-rate * days_idle)
//
// clamped to the 0.05 floor. A memory below the archive threshold that
// has been idle past MaxIdleDays is archived (soft-deleted); higher
// level cleanup may later hard-delete it.
func (s *Service) ApplyDecay(opts DecayOptions) (*DecayResult, error) {
	if opts.ArchiveThreshold <= 0 {
		opts.ArchiveThreshold = s.cfg.Memory.ArchiveThreshold
	}
	if opts.MaxIdleDays <= 0 {
		opts.MaxIdleDays = s.cfg.Memory.MaxIdleDays
	}

	active, err := s.store.ActiveMemories()
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &DecayResult{Examined: len(active)}

	for _, m := range active {
		daysIdle := now.Sub(m.LastAccessed).Hours() / 24
		if daysIdle <= 0 {
			continue
		}

		rate := sectorDecayRates[m.Sector]
		if m.DecayRate != nil {
			rate = *m.DecayRate
		}

		newSalience := math.Max(m.Salience*math.Exp(-rate*daysIdle), SalienceFloor)
		changed := newSalience != m.Salience

		archive := newSalience < opts.ArchiveThreshold && daysIdle > float64(opts.MaxIdleDays)

		if !changed && !archive {
			continue
		}

		m.Salience = newSalience
		m.UpdatedAt = now
		nextDecay := now.Add(24 * time.Hour)
		m.NextDecayAt = &nextDecay

		if archive {
			m.IsDeleted = true
			m.DeletedAt = &now
			result.Archived++
			slog.Debug("archiving idle memory",
				"id", m.ID, "salience", newSalience, "days_idle", int(daysIdle))
		}

		if err := s.store.UpdateMemory(m); err != nil {
			slog.Warn("decay update failed", "id", m.ID, "error", err)
			continue
		}
		result.Decayed++
	}

	return result, nil
}
