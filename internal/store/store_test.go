package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 16

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir(), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func vec(seed float32) []float32 {
	v := make([]float32, testDims)
	v[0] = seed
	v[1] = 1
	return v
}

func sampleChunk(path string, line int, seed float32) *CodeChunk {
	return &CodeChunk{
		ID:          uuid.New(),
		ProjectID:   uuid.New(),
		FilePath:    path,
		Content:     "func sample() {}",
		Language:    "go",
		ChunkType:   ChunkTypeFunction,
		Symbols:     []string{"sample"},
		StartLine:   line,
		EndLine:     line + 2,
		FileHash:    "filehash-1",
		ContentHash: "contenthash-1",
		IndexedAt:   time.Now(),
		Vector:      vec(seed),
	}
}

func TestChunkRoundTrip(t *testing.T) {
	st := openTestStore(t)

	c := sampleChunk("src/a.go", 10, 0.5)
	c.Imports = []string{"fmt"}
	c.Calls = []string{"Println"}
	c.DefinitionName = "sample"
	c.Signature = "func sample()"
	require.NoError(t, st.AddCodeChunks([]*CodeChunk{c}))

	got, err := st.GetCodeChunk(c.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.FilePath, got.FilePath)
	assert.Equal(t, c.Content, got.Content)
	assert.Equal(t, c.Symbols, got.Symbols)
	assert.Equal(t, c.Imports, got.Imports)
	assert.Equal(t, c.Calls, got.Calls)
	assert.Equal(t, c.StartLine, got.StartLine)
	assert.Equal(t, c.EndLine, got.EndLine)
	assert.Equal(t, c.FileHash, got.FileHash)
	assert.Equal(t, c.ContentHash, got.ContentHash)
	assert.Equal(t, c.DefinitionName, got.DefinitionName)
	assert.Equal(t, c.Vector, got.Vector)
	assert.WithinDuration(t, c.IndexedAt, got.IndexedAt, time.Second)
}

func TestRenameFileIdempotentAndPreservesVectors(t *testing.T) {
	st := openTestStore(t)

	c := sampleChunk("src/old.go", 1, 0.9)
	require.NoError(t, st.AddCodeChunks([]*CodeChunk{c}))

	require.NoError(t, st.RenameFile("src/old.go", "src/new.go"))
	require.NoError(t, st.RenameFile("src/old.go", "src/new.go")) // second call is a no-op

	got, err := st.GetCodeChunk(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "src/new.go", got.FilePath)
	assert.Equal(t, c.Vector, got.Vector)

	old, err := st.ChunksByPath("src/old.go")
	require.NoError(t, err)
	assert.Empty(t, old)
}

func TestDeleteChunksByPathsBatches(t *testing.T) {
	st := openTestStore(t)

	// More paths than one IN batch.
	var paths []string
	var chunks []*CodeChunk
	for i := 0; i < 250; i++ {
		path := "gen/file_" + uuid.NewString()[:8] + ".go"
		paths = append(paths, path)
		chunks = append(chunks, sampleChunk(path, 1, float32(i)))
	}
	require.NoError(t, st.AddCodeChunks(chunks))

	count, err := st.CountCodeChunks(nil)
	require.NoError(t, err)
	assert.Equal(t, 250, count)

	require.NoError(t, st.DeleteChunksByPaths(paths))

	count, err = st.CountCodeChunks(nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestKNNToleratesMissingVectors(t *testing.T) {
	st := openTestStore(t)

	withVec := sampleChunk("a.go", 1, 0.8)
	noVec := sampleChunk("b.go", 1, 0)
	noVec.Vector = nil
	require.NoError(t, st.AddCodeChunks([]*CodeChunk{withVec, noVec}))

	hits, _, err := st.KNNCodeChunks(vec(0.8), 10, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, withVec.ID, hits[0].ID)
}

func TestKNNFilterAppliedBeforeRanking(t *testing.T) {
	st := openTestStore(t)

	goChunk := sampleChunk("a.go", 1, 0.7)
	pyChunk := sampleChunk("b.py", 1, 0.7)
	pyChunk.Language = "python"
	require.NoError(t, st.AddCodeChunks([]*CodeChunk{goChunk, pyChunk}))

	hits, _, err := st.KNNCodeChunks(vec(0.7), 10, &CodeFilter{Language: "python"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, pyChunk.ID, hits[0].ID)
}

func TestListFileEntriesCollapsesByPath(t *testing.T) {
	st := openTestStore(t)

	older := sampleChunk("src/x.go", 1, 0.1)
	older.FileHash = "hash-old"
	older.IndexedAt = time.Now().Add(-time.Hour)
	newer := sampleChunk("src/x.go", 10, 0.2)
	newer.FileHash = "hash-new"
	require.NoError(t, st.AddCodeChunks([]*CodeChunk{older, newer}))

	entries, err := st.ListFileEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "src/x.go", entries[0].Path)
}

func TestVectorPadding(t *testing.T) {
	st := openTestStore(t)

	c := sampleChunk("pad.go", 1, 0)
	c.Vector = []float32{1, 2, 3} // short vector pads to testDims
	require.NoError(t, st.AddCodeChunks([]*CodeChunk{c}))

	got, err := st.GetCodeChunk(c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Vector, testDims)
	assert.Equal(t, float32(1), got.Vector[0])
	assert.Equal(t, float32(0), got.Vector[3])
}

func TestMemoryRoundTripWithOptionalFields(t *testing.T) {
	st := openTestStore(t)

	now := time.Now()
	until := now.Add(time.Hour)
	supersededBy := uuid.New()
	rate := 0.01

	m := &Memory{
		ID:           uuid.New(),
		ProjectID:    uuid.New(),
		Content:      "round trip memory",
		Sector:       SectorProcedural,
		Tier:         TierProject,
		MemoryType:   MemoryTypeDecision,
		Importance:   0.7,
		Salience:     0.6,
		Confidence:   0.9,
		Tags:         []string{"t1", "t2"},
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		ValidFrom:    now,
		ValidUntil:   &until,
		ContentHash:  "hash",
		Simhash:      0xDEADBEEF,
		SupersededBy: &supersededBy,
		DecayRate:    &rate,
		Vector:       vec(0.3),
	}
	require.NoError(t, st.AddMemory(m))

	got, err := st.GetMemory(m.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, SectorProcedural, got.Sector)
	assert.Equal(t, TierProject, got.Tier)
	assert.Equal(t, MemoryTypeDecision, got.MemoryType)
	assert.Equal(t, m.Tags, got.Tags)
	assert.Equal(t, m.Simhash, got.Simhash)
	require.NotNil(t, got.SupersededBy)
	assert.Equal(t, supersededBy, *got.SupersededBy)
	require.NotNil(t, got.DecayRate)
	assert.InDelta(t, rate, *got.DecayRate, 1e-9)
	require.NotNil(t, got.ValidUntil)
}

func TestGetMemoryAbsentReturnsNil(t *testing.T) {
	st := openTestStore(t)
	got, err := st.GetMemory(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCheckpointRoundTrip(t *testing.T) {
	st := openTestStore(t)
	projectID := uuid.New()

	cp := &Checkpoint{
		ProjectID:      projectID,
		Type:           CheckpointCode,
		PendingFiles:   []string{"a.go", "b.go"},
		ProcessedFiles: []string{"c.go"},
		ErrorFiles:     []string{"d.go"},
		GitignoreHash:  "hash123",
		StartedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	require.NoError(t, st.SaveCheckpoint(cp))

	got, err := st.LoadCheckpoint(projectID, CheckpointCode)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp.PendingFiles, got.PendingFiles)
	assert.Equal(t, cp.ProcessedFiles, got.ProcessedFiles)
	assert.Equal(t, cp.ErrorFiles, got.ErrorFiles)
	assert.Equal(t, "hash123", got.GitignoreHash)
	assert.False(t, got.IsComplete)

	require.NoError(t, st.ClearCheckpoint(projectID, CheckpointCode))
	got, err = st.LoadCheckpoint(projectID, CheckpointCode)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDocumentChunksDeleteAsGroup(t *testing.T) {
	st := openTestStore(t)
	projectID := uuid.New()

	var chunks []*DocumentChunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, &DocumentChunk{
			ID:          uuid.New(),
			DocumentID:  "docs/guide.md",
			ProjectID:   projectID,
			Content:     "section content",
			Source:      "docs/guide.md",
			ChunkIndex:  i,
			TotalChunks: 3,
			IndexedAt:   time.Now(),
			Vector:      vec(float32(i)),
		})
	}
	require.NoError(t, st.AddDocumentChunks(chunks))

	count, err := st.CountDocumentChunks()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, st.DeleteDocumentChunksBySource("docs/guide.md"))
	count, err = st.CountDocumentChunks()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEnumParsing(t *testing.T) {
	sector, err := ParseSector("  Semantic ")
	require.NoError(t, err)
	assert.Equal(t, SectorSemantic, sector)

	_, err = ParseSector("bogus")
	require.Error(t, err)
	assert.Equal(t, SectorSemantic, SectorOrDefault("bogus"))

	relType, err := ParseRelationshipType("SUPERSEDES")
	require.NoError(t, err)
	assert.Equal(t, RelSupersedes, relType)

	usage, err := ParseUsageType("Created")
	require.NoError(t, err)
	assert.Equal(t, UsageCreated, usage)
}
