package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/embed"
	"github.com/ccengram/ccengram/internal/store"
	"github.com/ccengram/ccengram/internal/testutil"
)

type retrievalFixture struct {
	store    *store.Store
	embedder embed.Embedder
	engine   *Engine
	project  uuid.UUID
}

func newEngineFixture(t *testing.T) *retrievalFixture {
	t.Helper()
	st := testutil.OpenStore(t)
	embedder := embed.NewStaticEmbedder(testutil.TestDimensions)
	return &retrievalFixture{
		store:    st,
		embedder: embedder,
		engine:   NewEngine(st, embedder),
		project:  uuid.New(),
	}
}

func (f *retrievalFixture) addMemory(t *testing.T, content string, sector store.Sector) *store.Memory {
	t.Helper()
	vector, err := f.embedder.Embed(context.Background(), content, embed.ModeDocument)
	require.NoError(t, err)

	now := time.Now()
	m := &store.Memory{
		ID:           uuid.New(),
		ProjectID:    f.project,
		Content:      content,
		Sector:       sector,
		Tier:         store.TierSession,
		Salience:     0.5,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastAccessed: now,
		ValidFrom:    now,
		ContentHash:  content,
		Vector:       vector,
	}
	require.NoError(t, f.store.AddMemory(m))
	return m
}

func (f *retrievalFixture) addChunk(t *testing.T, content, path string) *store.CodeChunk {
	t.Helper()
	vector, err := f.embedder.Embed(context.Background(), content, embed.ModeDocument)
	require.NoError(t, err)

	c := &store.CodeChunk{
		ID:        uuid.New(),
		ProjectID: f.project,
		FilePath:  path,
		Content:   content,
		Language:  "go",
		ChunkType: store.ChunkTypeFunction,
		StartLine: 1,
		EndLine:   5,
		FileHash:  "fh",
		IndexedAt: time.Now(),
		Vector:    vector,
	}
	require.NoError(t, f.store.AddCodeChunks([]*store.CodeChunk{c}))
	return c
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.engine.Search(context.Background(), Request{Query: "   "})
	require.Error(t, err)
}

func TestSectorFilterAppliedBeforeRanking(t *testing.T) {
	f := newEngineFixture(t)
	content := "cache invalidation happens on write through the outbox"
	semantic := f.addMemory(t, content, store.SectorSemantic)
	f.addMemory(t, content+" ", store.SectorProcedural)

	resp, err := f.engine.Search(context.Background(), Request{
		Query:  content,
		Scope:  ScopeMemory,
		Sector: store.SectorSemantic,
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, semantic.ID.String(), resp.Results[0].ID)
}

func TestMergedResultsSortedBySimilarity(t *testing.T) {
	f := newEngineFixture(t)
	f.addMemory(t, "token refresh flows renew the session cookie silently", store.SectorSemantic)
	f.addChunk(t, "func refreshToken(session Session) error { return renew(session) }", "auth/refresh.go")
	f.addChunk(t, "func drawChart(points []Point) image.Image { return plot(points) }", "viz/chart.go")

	resp, err := f.engine.Search(context.Background(), Request{
		Query: "token refresh session",
		Scope: ScopeAll,
		Limit: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Similarity, resp.Results[i].Similarity)
	}
	assert.NotZero(t, resp.Counts["memory"]+resp.Counts["code"])
}

func TestQualitySignal(t *testing.T) {
	f := newEngineFixture(t)
	f.addMemory(t, "deploys pause during the friday afternoon freeze window", store.SectorSemantic)

	// Near-exact query: confident.
	resp, err := f.engine.Search(context.Background(), Request{
		Query: "deploys pause during the friday afternoon freeze window",
		Scope: ScopeMemory,
		Limit: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.False(t, resp.Quality.LowConfidence)

	// Unrelated query: low confidence.
	resp, err = f.engine.Search(context.Background(), Request{
		Query: "quantum entanglement spectroscopy parameters",
		Scope: ScopeMemory,
		Limit: 5,
	})
	require.NoError(t, err)
	assert.True(t, resp.Quality.LowConfidence)
}

func TestCrossDomainExpansionUsesStoredVectors(t *testing.T) {
	f := newEngineFixture(t)

	m := f.addMemory(t, "jwt token verification requires checking the signature expiry and issuer claims",
		store.SectorSemantic)
	c := f.addChunk(t,
		"func validateJWTToken(raw string) error {\n\tclaims, err := parseToken(raw)\n\tif err != nil { return err }\n\treturn verifySignature(claims)\n}\n// token verification helper for jwt signature and expiry checks",
		"auth/jwt.go")

	mems, _, err := f.engine.RelatedMemoriesForCode(c.ID, 3)
	require.NoError(t, err)
	ids := make([]string, 0, len(mems))
	for _, got := range mems {
		ids = append(ids, got.ID.String())
	}
	assert.Contains(t, ids, m.ID.String())

	code, _, err := f.engine.RelatedCodeForMemory(m.ID, 3)
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.Equal(t, c.ID, code[0].ID)
}

func TestCrossDomainExcludesDeleted(t *testing.T) {
	f := newEngineFixture(t)

	live := f.addMemory(t, "request tracing propagates span context across services", store.SectorSemantic)
	dead := f.addMemory(t, "request tracing propagates span context across workers", store.SectorSemantic)
	dead.IsDeleted = true
	deadAt := time.Now()
	dead.DeletedAt = &deadAt
	require.NoError(t, f.store.UpdateMemory(dead))

	c := f.addChunk(t, "func propagateSpanContext(ctx context.Context) trace.Span { return spanFrom(ctx) }", "trace/propagate.go")

	mems, _, err := f.engine.RelatedMemoriesForCode(c.ID, 5)
	require.NoError(t, err)
	for _, got := range mems {
		assert.NotEqual(t, dead.ID, got.ID)
	}
	_ = live
}

func TestSuggestionsExpandQueryTerms(t *testing.T) {
	suggestions := GenerateSuggestions("auth", nil, 5)
	require.NotEmpty(t, suggestions)
	assert.NotContains(t, suggestions, "auth")

	found := false
	for _, s := range suggestions {
		if s == "login" || s == "session" || s == "authorization" {
			found = true
		}
	}
	assert.True(t, found, "expected related auth terms, got %v", suggestions)
}

func TestSuggestionsDeduplicated(t *testing.T) {
	suggestions := GenerateSuggestions("database query", nil, 10)
	seen := make(map[string]bool)
	for _, s := range suggestions {
		assert.False(t, seen[s], "duplicate suggestion %q", s)
		seen[s] = true
	}
}

func TestFallbackSubstringSearch(t *testing.T) {
	f := newEngineFixture(t)
	f.addChunk(t, "func ComputeChecksum(data []byte) uint64 { return xxhash(data) }", "hash/checksum.go")

	resp := &Response{Counts: make(map[string]int)}
	f.engine.substringScan("computechecksum", Request{Scope: ScopeCode, Limit: 5}, resp)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "code", resp.Results[0].Domain)
}
