package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/config"
	"github.com/ccengram/ccengram/internal/embed"
	"github.com/ccengram/ccengram/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(t.TempDir(), 64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Embedding.Dimensions = 64
	return NewService(st, embed.NewStaticEmbedder(64), cfg, uuid.New())
}

func addMemory(t *testing.T, s *Service, content string) *store.Memory {
	t.Helper()
	result, err := s.Add(context.Background(), AddParams{Content: content})
	require.NoError(t, err)
	require.False(t, result.IsDuplicate)
	return result.Memory
}

func TestAddRejectsShortContent(t *testing.T) {
	s := newTestService(t)

	_, err := s.Add(context.Background(), AddParams{Content: "hi"})
	require.Error(t, err)
}

func TestAddDedupReturnsSameID(t *testing.T) {
	s := newTestService(t)

	first := addMemory(t, s, "prefers table-driven tests for all parsers")

	second, err := s.Add(context.Background(), AddParams{Content: "prefers table-driven tests for all parsers"})
	require.NoError(t, err)
	assert.True(t, second.IsDuplicate)
	assert.Equal(t, first.ID, second.Memory.ID)

	// Normalization: case and punctuation differences still dedupe.
	third, err := s.Add(context.Background(), AddParams{Content: "Prefers table-driven tests, for all parsers!"})
	require.NoError(t, err)
	assert.True(t, third.IsDuplicate)
	assert.Equal(t, first.ID, third.Memory.ID)
}

func TestNearDuplicateRecordsRelationship(t *testing.T) {
	s := newTestService(t)

	first := addMemory(t, s, "the build pipeline caches node modules between runs to save time")

	result, err := s.Add(context.Background(), AddParams{
		Content: "the build pipeline caches node modules between runs to save minutes",
	})
	require.NoError(t, err)
	require.False(t, result.IsDuplicate)
	require.NotNil(t, result.Match)
	assert.Equal(t, "simhash", result.Match.Kind)

	rels, err := s.ListRelationships(result.Memory.ID, store.RelRelatedTo)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, first.ID, rels[0].ToMemoryID)
}

func TestReinforceMath(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "always run the linter before committing changes")

	_, err := s.SetSalience(m.ID, 0.5)
	require.NoError(t, err)

	updated, err := s.Reinforce(m.ID, 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, updated.Salience, 1e-9)

	updated, err = s.Reinforce(m.ID, 0.2)
	require.NoError(t, err)
	assert.InDelta(t, 0.68, updated.Salience, 1e-9)
}

func TestReinforceNeverExceedsCeiling(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "release tags follow semantic versioning strictly")

	_, err := s.SetSalience(m.ID, 0.99)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		updated, err := s.Reinforce(m.ID, 0.5)
		require.NoError(t, err)
		assert.LessOrEqual(t, updated.Salience, 1.0)
	}
}

func TestDeemphasizeFloors(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "the staging database resets every sunday night")

	_, err := s.SetSalience(m.ID, 0.1)
	require.NoError(t, err)

	updated, err := s.Deemphasize(m.ID, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, updated.Salience, 1e-9)
}

func TestAdjustmentClamp(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "integration tests need the docker daemon running locally")

	_, err := s.SetSalience(m.ID, 0.5)
	require.NoError(t, err)

	// 0.9 clamps to 0.5: 0.5 + 0.5*(1-0.5) = 0.75
	updated, err := s.Reinforce(m.ID, 0.9)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, updated.Salience, 1e-9)
}

func TestSupersedeIdempotent(t *testing.T) {
	s := newTestService(t)
	older := addMemory(t, s, "deployments go through the legacy jenkins pipeline")
	newer := addMemory(t, s, "deployments now go through github actions workflows")

	require.NoError(t, s.Supersede(older.ID, newer.ID))
	require.NoError(t, s.Supersede(older.ID, newer.ID))

	reloaded, err := s.Get(older.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ValidUntil)
	require.NotNil(t, reloaded.SupersededBy)
	assert.Equal(t, newer.ID, *reloaded.SupersededBy)

	// Invariant: superseded_by set implies the supersedes edge exists.
	rels, err := s.ListRelationships(older.ID, store.RelSupersedes)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, newer.ID, rels[0].FromMemoryID)
	assert.Equal(t, older.ID, rels[0].ToMemoryID)
}

func TestSupersededExcludedFromActive(t *testing.T) {
	s := newTestService(t)
	older := addMemory(t, s, "configuration lives in a single yaml file at the root")
	newer := addMemory(t, s, "configuration is split per environment under deploy configs")

	require.NoError(t, s.Supersede(older.ID, newer.ID))

	active, err := s.List(&store.MemoryFilter{}, 10, 0)
	require.NoError(t, err)
	for _, m := range active {
		assert.NotEqual(t, older.ID, m.ID)
	}

	// include_superseded re-enables it.
	all, err := s.List(&store.MemoryFilter{IncludeSuperseded: true}, 10, 0)
	require.NoError(t, err)
	found := false
	for _, m := range all {
		if m.ID == older.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSoftDeleteAndRestore(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "error budgets reset at the start of each quarter")

	require.NoError(t, s.Delete(m.ID, false))

	deleted, err := s.ListDeleted(10)
	require.NoError(t, err)
	require.Len(t, deleted, 1)

	active, err := s.List(&store.MemoryFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, active)

	restored, err := s.Restore(m.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Nil(t, restored.DeletedAt)
}

func TestResolveIDPrefixRules(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "the websocket gateway drops idle connections after two minutes")

	_, err := s.ResolveID("abc")
	require.Error(t, err)

	id, err := s.ResolveID(m.ID.String()[:8])
	require.NoError(t, err)
	assert.Equal(t, m.ID, id)
}

func TestTimelineOrdersAroundAnchor(t *testing.T) {
	s := newTestService(t)

	base := time.Now().Add(-time.Hour)
	times := []time.Time{base, base.Add(time.Minute), base.Add(2 * time.Minute)}
	contents := []string{
		"first the cache layer was introduced for session lookups",
		"then the cache got a write-through mode for user profiles",
		"finally the cache moved to a dedicated process entirely",
	}

	var ids []uuid.UUID
	for i, content := range contents {
		fixed := times[i]
		s.SetClock(func() time.Time { return fixed })
		m := addMemory(t, s, content)
		ids = append(ids, m.ID)
	}
	s.SetClock(time.Now)

	timeline, err := s.Timeline(ids[1], 5, 5)
	require.NoError(t, err)
	require.Len(t, timeline, 3)
	assert.Equal(t, ids[0], timeline[0].ID)
	assert.Equal(t, ids[1], timeline[1].ID)
	assert.Equal(t, ids[2], timeline[2].ID)
}

func TestSalienceInvariantHoldsAfterOperations(t *testing.T) {
	s := newTestService(t)

	for _, content := range []string{
		"retry budgets apply to outbound webhook deliveries",
		"the scheduler runs compactions during low traffic windows",
	} {
		addMemory(t, s, content)
	}

	active, err := s.List(&store.MemoryFilter{}, 10, 0)
	require.NoError(t, err)
	for _, m := range active {
		assert.GreaterOrEqual(t, m.Salience, 0.05)
		assert.LessOrEqual(t, m.Salience, 1.0)
	}
}
