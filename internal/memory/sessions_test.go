package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/store"
)

func TestSessionStatsAggregates(t *testing.T) {
	s := newTestService(t)

	created, err := s.Add(context.Background(), AddParams{
		Content:   "the gateway terminates tls before the load balancer",
		SessionID: "sess-1",
	})
	require.NoError(t, err)

	other := addMemory(t, s, "migrations run automatically at daemon startup")
	require.NoError(t, s.LinkMemory("sess-1", other.ID, store.UsageRecalled))
	require.NoError(t, s.LinkMemory("sess-1", other.ID, store.UsageReinforced))

	stats, err := s.Stats("sess-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalLinks)
	assert.Equal(t, 1, stats.ByUsage["created"])
	assert.Equal(t, 1, stats.ByUsage["recalled"])
	assert.Equal(t, 1, stats.ByUsage["reinforced"])
	assert.Equal(t, 2, stats.BySector["semantic"])
	assert.Greater(t, stats.MeanSalience, 0.0)

	_ = created
}

func TestPromoteByUses(t *testing.T) {
	s := newTestService(t)

	result, err := s.Add(context.Background(), AddParams{
		Content:   "feature flags are read once at process start and cached",
		SessionID: "sess-a",
	})
	require.NoError(t, err)
	m := result.Memory
	assert.Equal(t, store.TierSession, m.Tier)

	// Used in a second session: qualifies at min_uses=2.
	require.NoError(t, s.LinkMemory("sess-b", m.ID, store.UsageRecalled))

	promoted, err := s.PromoteByUses("sess-a", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted.Promoted)

	reloaded, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TierProject, reloaded.Tier)

	// Idempotent: a second pass promotes nothing.
	again, err := s.PromoteByUses("sess-a", 2)
	require.NoError(t, err)
	assert.Zero(t, again.Promoted)
}

func TestPromoteBySalience(t *testing.T) {
	s := newTestService(t)

	result, err := s.Add(context.Background(), AddParams{
		Content:    "code review requires two approvals for storage changes",
		SessionID:  "sess-x",
		Importance: 0.9,
	})
	require.NoError(t, err)

	promoted, err := s.PromoteBySalience("sess-x", 0.8)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted.Promoted)

	reloaded, err := s.Get(result.Memory.ID)
	require.NoError(t, err)
	assert.Equal(t, store.TierProject, reloaded.Tier)
}

func TestEndSessionCascades(t *testing.T) {
	s := newTestService(t)

	_, err := s.Add(context.Background(), AddParams{
		Content:   "the importer skips symlinked directories entirely",
		SessionID: "sess-end",
	})
	require.NoError(t, err)
	_, err = s.RecordActivity("sess-end", AccumulatorUpdate{ToolCalls: 2})
	require.NoError(t, err)

	require.NoError(t, s.EndSession("sess-end"))

	stats, err := s.Stats("sess-end")
	require.NoError(t, err)
	assert.Zero(t, stats.TotalLinks)

	acc, err := s.store.GetAccumulator("sess-end")
	require.NoError(t, err)
	assert.Nil(t, acc)
}

func TestAccumulatorCapsAndGates(t *testing.T) {
	s := newTestService(t)

	// One active accumulator per session.
	first, err := s.Accumulator("sess-acc")
	require.NoError(t, err)
	second, err := s.Accumulator("sess-acc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Caps hold under excess appends.
	for i := 0; i < 30; i++ {
		_, err := s.RecordActivity("sess-acc", AccumulatorUpdate{
			ErrorEncountered: "error " + string(rune('a'+i%26)),
		})
		require.NoError(t, err)
	}
	acc, err := s.store.GetAccumulator("sess-acc")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(acc.ErrorsEncountered), 20)

	// Meaningful-work gate: any error qualifies.
	assert.True(t, ShouldExtract(acc))

	// Todo gate needs both tasks and tool calls.
	assert.False(t, ShouldExtractTodos(acc))
	for i := 0; i < 3; i++ {
		_, err = s.RecordActivity("sess-acc", AccumulatorUpdate{
			CompletedTask: "task",
			ToolCalls:     2,
		})
		require.NoError(t, err)
	}
	acc, err = s.store.GetAccumulator("sess-acc")
	require.NoError(t, err)
	assert.True(t, ShouldExtractTodos(acc))
}

func TestResetAfterExtractionStartsFreshSegment(t *testing.T) {
	s := newTestService(t)

	before, err := s.RecordActivity("sess-reset", AccumulatorUpdate{ToolCalls: 5})
	require.NoError(t, err)

	after, err := s.ResetAfterExtraction("sess-reset")
	require.NoError(t, err)

	assert.NotEqual(t, before.ID, after.ID)
	assert.Equal(t, "sess-reset", after.SessionID)
	assert.Zero(t, after.ToolCallCount)
	assert.True(t, !after.SegmentStart.Before(before.SegmentStart))
}

func TestRelatedBFSRespectsDepth(t *testing.T) {
	s := newTestService(t)

	a := addMemory(t, s, "the outbox pattern guarantees delivery of domain events")
	b := addMemory(t, s, "consumers process the outbox through a polling worker")
	c := addMemory(t, s, "poison events park in a quarantine table for review")

	_, err := s.AddRelationship(a.ID, b.ID, store.RelBuildsOn, 0.9, "test")
	require.NoError(t, err)
	_, err = s.AddRelationship(b.ID, c.ID, store.RelBuildsOn, 0.9, "test")
	require.NoError(t, err)

	depth1, err := s.Related(a.ID, 1, 10)
	require.NoError(t, err)
	ids := relatedIDs(depth1)
	assert.Contains(t, ids, b.ID)
	assert.NotContains(t, ids, c.ID)

	depth2, err := s.Related(a.ID, 2, 10)
	require.NoError(t, err)
	ids = relatedIDs(depth2)
	assert.Contains(t, ids, b.ID)
	assert.Contains(t, ids, c.ID)
}

func relatedIDs(related []*RelatedMemory) []interface{} {
	out := make([]interface{}, 0, len(related))
	for _, r := range related {
		out = append(out, r.Memory.ID)
	}
	return out
}
