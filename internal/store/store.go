package store

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// deleteBatchSize caps multi-value IN filters to bound statement length.
const deleteBatchSize = 100

// Store owns on-disk state for one project.
// Read queries may run concurrently; writes serialize on the mutex.
type Store struct {
	db  *sql.DB
	dir string
	dim int

	mu sync.Mutex // serializes writes

	memoryVectors *VectorIndex
	codeVectors   *VectorIndex
	docVectors    *VectorIndex

	keyword *KeywordIndex
}

// Open opens (or creates) the store directory for a project.
// dim is the configured vector dimension; vectors are padded or
// truncated to it on insert.
func Open(dir string, dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := filepath.Join(dir, "store.db") + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:            db,
		dir:           dir,
		dim:           dim,
		memoryVectors: NewVectorIndex(dim),
		codeVectors:   NewVectorIndex(dim),
		docVectors:    NewVectorIndex(dim),
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := s.loadVectors(); err != nil {
		_ = db.Close()
		return nil, err
	}

	kw, err := OpenKeywordIndex(filepath.Join(dir, "keyword.bleve"))
	if err != nil {
		// Keyword index is best-effort; fallback search degrades to scans.
		slog.Warn("keyword index unavailable", "error", err)
	} else {
		s.keyword = kw
	}

	return s, nil
}

// Close releases the database handle and keyword index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyword != nil {
		_ = s.keyword.Close()
	}
	return s.db.Close()
}

// Dimensions returns the configured vector dimension.
func (s *Store) Dimensions() int {
	return s.dim
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			content TEXT NOT NULL,
			summary TEXT,
			sector TEXT NOT NULL,
			tier TEXT NOT NULL,
			memory_type TEXT,
			importance REAL NOT NULL,
			salience REAL NOT NULL,
			confidence REAL NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			tags TEXT,
			concepts TEXT,
			files TEXT,
			categories TEXT,
			scope_path TEXT,
			scope_module TEXT,
			session_id TEXT,
			segment_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL,
			valid_from INTEGER NOT NULL,
			valid_until INTEGER,
			deleted_at INTEGER,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT NOT NULL,
			simhash INTEGER NOT NULL DEFAULT 0,
			superseded_by TEXT,
			decay_rate REAL,
			next_decay_at INTEGER,
			embedding_model_id TEXT,
			vector BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id)`,
		`CREATE TABLE IF NOT EXISTS code_chunks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			file_path TEXT NOT NULL,
			content TEXT NOT NULL,
			language TEXT NOT NULL,
			chunk_type TEXT NOT NULL,
			symbols TEXT,
			imports TEXT,
			calls TEXT,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			file_hash TEXT NOT NULL,
			content_hash TEXT,
			indexed_at INTEGER NOT NULL,
			tokens_estimate INTEGER NOT NULL DEFAULT 0,
			definition_kind TEXT,
			definition_name TEXT,
			visibility TEXT,
			signature TEXT,
			docstring TEXT,
			parent_definition TEXT,
			embedding_text TEXT,
			vector BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_code_chunks_path ON code_chunks(file_path)`,
		`CREATE TABLE IF NOT EXISTS document_chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			content TEXT NOT NULL,
			title TEXT,
			source TEXT NOT NULL,
			source_kind TEXT,
			chunk_index INTEGER NOT NULL,
			total_chunks INTEGER NOT NULL,
			char_offset INTEGER NOT NULL,
			indexed_at INTEGER NOT NULL,
			vector BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_source ON document_chunks(source)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			id TEXT PRIMARY KEY,
			from_memory_id TEXT NOT NULL,
			to_memory_id TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at INTEGER NOT NULL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_memory_id)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_memory_id)`,
		`CREATE TABLE IF NOT EXISTS session_memories (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			memory_id TEXT NOT NULL,
			usage_type TEXT NOT NULL,
			linked_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_memories_session ON session_memories(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_memories_memory ON session_memories(memory_id)`,
		`CREATE TABLE IF NOT EXISTS segment_accumulators (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL UNIQUE,
			project_id TEXT NOT NULL,
			segment_start INTEGER NOT NULL,
			user_prompts TEXT,
			files_read TEXT,
			files_modified TEXT,
			commands_run TEXT,
			errors_encountered TEXT,
			searches_performed TEXT,
			completed_tasks TEXT,
			last_assistant_message TEXT,
			tool_call_count INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			project_id TEXT NOT NULL,
			checkpoint_type TEXT NOT NULL,
			pending_files TEXT,
			processed_files TEXT,
			error_files TEXT,
			is_complete INTEGER NOT NULL DEFAULT 0,
			gitignore_hash TEXT,
			started_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (project_id, checkpoint_type)
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name)`,
		`CREATE TABLE IF NOT EXISTS memory_entity_links (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// loadVectors rebuilds the in-memory vector indexes from stored rows.
func (s *Store) loadVectors() error {
	load := func(table string, idx *VectorIndex) error {
		rows, err := s.db.Query(fmt.Sprintf(`SELECT id, vector FROM %s WHERE vector IS NOT NULL`, table))
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var id string
			var blob []byte
			if err := rows.Scan(&id, &blob); err != nil {
				slog.Debug("skipping vector row", "table", table, "error", err)
				continue
			}
			vec := decodeVector(blob)
			if len(vec) == 0 {
				continue
			}
			idx.Add(id, vec)
		}
		return rows.Err()
	}

	if err := load("memories", s.memoryVectors); err != nil {
		return err
	}
	if err := load("code_chunks", s.codeVectors); err != nil {
		return err
	}
	return load("document_chunks", s.docVectors)
}

// padVector pads or truncates a vector to the configured dimension,
// logging a warning whenever the length differs.
func (s *Store) padVector(v []float32) []float32 {
	if v == nil {
		return nil
	}
	if len(v) == s.dim {
		return v
	}
	slog.Warn("vector dimension mismatch, padding or truncating", "got", len(v), "want", s.dim)
	out := make([]float32, s.dim)
	copy(out, v)
	return out
}

// encodeVector serializes a vector as little-endian float32 bytes.
func encodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector deserializes little-endian float32 bytes.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

// encodeList serializes a string list as JSON for a TEXT column.
func encodeList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeList deserializes a JSON string list, tolerating null/empty.
func decodeList(s sql.NullString) []string {
	if !s.Valid || s.String == "" || s.String == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s.String), &list); err != nil {
		slog.Debug("skipping malformed list column", "error", err)
		return nil
	}
	return list
}

// toMillis converts a time to epoch milliseconds.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts epoch milliseconds to a UTC time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// optMillis converts an optional time to a nullable column value.
func optMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// batchStrings splits values into slices of at most deleteBatchSize,
// capping IN-clause length.
func batchStrings(values []string) [][]string {
	var out [][]string
	for len(values) > 0 {
		n := deleteBatchSize
		if len(values) < n {
			n = len(values)
		}
		out = append(out, values[:n])
		values = values[n:]
	}
	return out
}

// placeholders builds "?, ?, ..." for n values.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// cosineDistance computes 1 - cosine similarity. Lower is closer.
func cosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
