package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// MemoryFilter restricts memory queries. Zero values mean "no constraint".
// Default searches exclude deleted and superseded memories.
type MemoryFilter struct {
	Sector            Sector
	Tier              Tier
	MemoryType        MemoryType
	MinSalience       float64
	ScopePath         string // prefix match
	ScopeModule       string
	SessionID         string
	IncludeSuperseded bool
	IncludeDeleted    bool
}

func (f *MemoryFilter) where() (string, []any) {
	var conds []string
	var args []any

	if f == nil {
		f = &MemoryFilter{}
	}
	if !f.IncludeDeleted {
		conds = append(conds, "is_deleted = 0")
	}
	if !f.IncludeSuperseded {
		conds = append(conds, "valid_until IS NULL")
	}
	if f.Sector != "" {
		conds = append(conds, "sector = ?")
		args = append(args, string(f.Sector))
	}
	if f.Tier != "" {
		conds = append(conds, "tier = ?")
		args = append(args, string(f.Tier))
	}
	if f.MemoryType != "" {
		conds = append(conds, "memory_type = ?")
		args = append(args, string(f.MemoryType))
	}
	if f.MinSalience > 0 {
		conds = append(conds, "salience >= ?")
		args = append(args, f.MinSalience)
	}
	if f.ScopePath != "" {
		conds = append(conds, "scope_path LIKE ?")
		args = append(args, f.ScopePath+"%")
	}
	if f.ScopeModule != "" {
		conds = append(conds, "scope_module = ?")
		args = append(args, f.ScopeModule)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

const memoryCols = `id, project_id, content, summary, sector, tier, memory_type,
	importance, salience, confidence, access_count,
	tags, concepts, files, categories, scope_path, scope_module, session_id, segment_id,
	created_at, updated_at, last_accessed, valid_from, valid_until, deleted_at, is_deleted,
	content_hash, simhash, superseded_by, decay_rate, next_decay_at, embedding_model_id, vector`

// AddMemory inserts a memory row with its vector.
func (s *Store) AddMemory(m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeMemory(m, true)
}

// UpdateMemory replaces a memory row. The vector index is refreshed only
// when the memory carries a vector.
func (s *Store) UpdateMemory(m *Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeMemory(m, m.Vector != nil)
}

func (s *Store) writeMemory(m *Memory, withVector bool) error {
	vec := s.padVector(m.Vector)

	var supersededBy any
	if m.SupersededBy != nil {
		supersededBy = m.SupersededBy.String()
	}
	var memoryType any
	if m.MemoryType != "" {
		memoryType = string(m.MemoryType)
	}
	var decayRate any
	if m.DecayRate != nil {
		decayRate = *m.DecayRate
	}

	isDeleted := 0
	if m.IsDeleted {
		isDeleted = 1
	}

	_, err := s.db.Exec(`INSERT OR REPLACE INTO memories (`+memoryCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID.String(), m.ProjectID.String(), m.Content, m.Summary,
		string(m.Sector), string(m.Tier), memoryType,
		m.Importance, m.Salience, m.Confidence, m.AccessCount,
		encodeList(m.Tags), encodeList(m.Concepts), encodeList(m.Files), encodeList(m.Categories),
		m.ScopePath, m.ScopeModule, m.SessionID, m.SegmentID,
		toMillis(m.CreatedAt), toMillis(m.UpdatedAt), toMillis(m.LastAccessed), toMillis(m.ValidFrom),
		optMillis(m.ValidUntil), optMillis(m.DeletedAt), isDeleted,
		m.ContentHash, int64(m.Simhash), supersededBy,
		decayRate, optMillis(m.NextDecayAt), m.EmbeddingModelID,
		encodeVector(vec),
	)
	if err != nil {
		return fmt.Errorf("failed to write memory %s: %w", m.ID, err)
	}

	if withVector && vec != nil {
		s.memoryVectors.Add(m.ID.String(), vec)
	}
	if s.keyword != nil {
		if err := s.keyword.Index(m.ID.String(), "memory", m.Content, strings.Join(m.Concepts, " "), m.ScopePath); err != nil {
			slog.Debug("keyword index update failed", "memory", m.ID, "error", err)
		}
	}
	return nil
}

// GetMemory loads one memory by id. Returns nil when absent.
func (s *Store) GetMemory(id uuid.UUID) (*Memory, error) {
	rows, err := s.db.Query(`SELECT `+memoryCols+` FROM memories WHERE id = ?`, id.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	mems := scanMemories(rows)
	if len(mems) == 0 {
		return nil, nil
	}
	return mems[0], nil
}

// FindMemoryIDsByPrefix returns ids whose string form starts with prefix.
func (s *Store) FindMemoryIDsByPrefix(prefix string) ([]uuid.UUID, error) {
	rows, err := s.db.Query(`SELECT id FROM memories WHERE id LIKE ?`, prefix+"%")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			continue
		}
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// FindMemoryByContentHash returns the first active memory with the given
// normalized content hash.
func (s *Store) FindMemoryByContentHash(hash string) (*Memory, error) {
	rows, err := s.db.Query(`SELECT `+memoryCols+` FROM memories
		WHERE content_hash = ? AND is_deleted = 0 AND valid_until IS NULL
		ORDER BY created_at ASC LIMIT 1`, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	mems := scanMemories(rows)
	if len(mems) == 0 {
		return nil, nil
	}
	return mems[0], nil
}

// ListMemories returns memories matching the filter, newest first.
func (s *Store) ListMemories(filter *MemoryFilter, limit, offset int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := filter.where()
	args = append(args, limit, offset)

	rows, err := s.db.Query(
		`SELECT `+memoryCols+` FROM memories`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows), rows.Err()
}

// ActiveMemories returns all non-deleted, non-superseded memories.
// Used by dedup candidate scans and the decay job.
func (s *Store) ActiveMemories() ([]*Memory, error) {
	rows, err := s.db.Query(
		`SELECT ` + memoryCols + ` FROM memories WHERE is_deleted = 0 AND valid_until IS NULL`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows), rows.Err()
}

// ListDeletedMemories returns soft-deleted memories, newest deletion first.
func (s *Store) ListDeletedMemories(limit int) ([]*Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT `+memoryCols+` FROM memories WHERE is_deleted = 1 ORDER BY deleted_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows), rows.Err()
}

// HardDeleteMemory permanently removes a memory row and its vector.
func (s *Store) HardDeleteMemory(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM memories WHERE id = ?`, id.String()); err != nil {
		return err
	}
	s.memoryVectors.Delete(id.String())
	if s.keyword != nil {
		_ = s.keyword.Delete(id.String())
	}
	return nil
}

// MemoriesBefore returns up to limit memories created strictly before t,
// newest first. Used by timeline assembly.
func (s *Store) MemoriesBefore(t int64, limit int) ([]*Memory, error) {
	rows, err := s.db.Query(`SELECT `+memoryCols+` FROM memories
		WHERE created_at < ? AND is_deleted = 0 ORDER BY created_at DESC LIMIT ?`, t, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows), rows.Err()
}

// MemoriesAfter returns up to limit memories created strictly after t,
// oldest first.
func (s *Store) MemoriesAfter(t int64, limit int) ([]*Memory, error) {
	rows, err := s.db.Query(`SELECT `+memoryCols+` FROM memories
		WHERE created_at > ? AND is_deleted = 0 ORDER BY created_at ASC LIMIT ?`, t, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMemories(rows), rows.Err()
}

// CountMemories counts memories matching the filter.
func (s *Store) CountMemories(filter *MemoryFilter) (int, error) {
	where, args := filter.where()
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`+where, args...).Scan(&n)
	return n, err
}

// KNNMemories returns the k nearest memories to vec. A filter restricts
// candidates by predicate before ranking.
func (s *Store) KNNMemories(vec []float32, k int, filter *MemoryFilter) ([]*Memory, []float64, error) {
	where, args := filter.where()

	if where == " WHERE is_deleted = 0 AND valid_until IS NULL" && len(args) == 0 {
		// Default filter: the HNSW fast path plus a liveness check on load.
		hits := s.memoryVectors.Search(vec, k*2)
		mems := make([]*Memory, 0, k)
		distances := make([]float64, 0, k)
		for _, h := range hits {
			id, err := uuid.Parse(h.ID)
			if err != nil {
				continue
			}
			m, err := s.GetMemory(id)
			if err != nil || m == nil || m.IsDeleted || m.ValidUntil != nil {
				continue
			}
			mems = append(mems, m)
			distances = append(distances, h.Distance)
			if len(mems) >= k {
				break
			}
		}
		return mems, distances, nil
	}

	query := `SELECT id, vector FROM memories` + where
	if where == "" {
		query += ` WHERE vector IS NOT NULL`
	} else {
		query += ` AND vector IS NOT NULL`
	}
	hits, err := s.bruteForceKNN(query, args, vec, k)
	if err != nil {
		return nil, nil, err
	}

	mems := make([]*Memory, 0, len(hits))
	distances := make([]float64, 0, len(hits))
	for _, h := range hits {
		id, err := uuid.Parse(h.ID)
		if err != nil {
			continue
		}
		m, err := s.GetMemory(id)
		if err != nil || m == nil {
			continue
		}
		mems = append(mems, m)
		distances = append(distances, h.Distance)
	}
	return mems, distances, nil
}

func scanMemories(rows *sql.Rows) []*Memory {
	var mems []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			slog.Debug("skipping memory row", "error", err)
			continue
		}
		mems = append(mems, m)
	}
	return mems
}

func scanMemory(rows *sql.Rows) (*Memory, error) {
	var m Memory
	var id, projectID, sector, tier string
	var summary, memoryType, scopePath, scopeModule, sessionID, segmentID sql.NullString
	var tags, concepts, files, categories sql.NullString
	var createdAt, updatedAt, lastAccessed, validFrom int64
	var validUntil, deletedAt, nextDecayAt sql.NullInt64
	var isDeleted int
	var contentHash string
	var simhash int64
	var supersededBy, embeddingModelID sql.NullString
	var decayRate sql.NullFloat64
	var vector []byte

	if err := rows.Scan(
		&id, &projectID, &m.Content, &summary, &sector, &tier, &memoryType,
		&m.Importance, &m.Salience, &m.Confidence, &m.AccessCount,
		&tags, &concepts, &files, &categories,
		&scopePath, &scopeModule, &sessionID, &segmentID,
		&createdAt, &updatedAt, &lastAccessed, &validFrom,
		&validUntil, &deletedAt, &isDeleted,
		&contentHash, &simhash, &supersededBy,
		&decayRate, &nextDecayAt, &embeddingModelID, &vector,
	); err != nil {
		return nil, err
	}

	var err error
	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if m.ProjectID, err = uuid.Parse(projectID); err != nil {
		return nil, err
	}
	m.Summary = summary.String
	m.Sector = SectorOrDefault(sector)
	if t, err := ParseTier(tier); err == nil {
		m.Tier = t
	} else {
		m.Tier = TierSession
	}
	if memoryType.Valid {
		m.MemoryType = MemoryType(memoryType.String)
	}
	m.Tags = decodeList(tags)
	m.Concepts = decodeList(concepts)
	m.Files = decodeList(files)
	m.Categories = decodeList(categories)
	m.ScopePath = scopePath.String
	m.ScopeModule = scopeModule.String
	m.SessionID = sessionID.String
	m.SegmentID = segmentID.String
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	m.LastAccessed = fromMillis(lastAccessed)
	m.ValidFrom = fromMillis(validFrom)
	if validUntil.Valid {
		t := fromMillis(validUntil.Int64)
		m.ValidUntil = &t
	}
	if deletedAt.Valid {
		t := fromMillis(deletedAt.Int64)
		m.DeletedAt = &t
	}
	m.IsDeleted = isDeleted != 0
	m.ContentHash = contentHash
	m.Simhash = uint64(simhash)
	if supersededBy.Valid {
		if sid, err := uuid.Parse(supersededBy.String); err == nil {
			m.SupersededBy = &sid
		}
	}
	if decayRate.Valid {
		m.DecayRate = &decayRate.Float64
	}
	if nextDecayAt.Valid {
		t := fromMillis(nextDecayAt.Int64)
		m.NextDecayAt = &t
	}
	m.EmbeddingModelID = embeddingModelID.String
	m.Vector = decodeVector(vector)
	return &m, nil
}
