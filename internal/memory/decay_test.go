package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/store"
)

func TestDecayReducesSalience(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "the metrics exporter batches points every ten seconds")
	_, err := s.SetSalience(m.ID, 0.8)
	require.NoError(t, err)

	// Thirty days idle.
	s.SetClock(func() time.Time { return time.Now().Add(30 * 24 * time.Hour) })
	result, err := s.ApplyDecay(DecayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Examined)
	assert.Equal(t, 1, result.Decayed)
	assert.Zero(t, result.Archived)

	reloaded, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Less(t, reloaded.Salience, 0.8)
	assert.GreaterOrEqual(t, reloaded.Salience, SalienceFloor)
}

func TestDecayArchivesIdleLowSalience(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "an experiment with speculative prefetching was abandoned early")
	_, err := s.SetSalience(m.ID, 0.06)
	require.NoError(t, err)

	// Two hundred days idle: deep decay plus past the idle threshold.
	s.SetClock(func() time.Time { return time.Now().Add(200 * 24 * time.Hour) })
	result, err := s.ApplyDecay(DecayOptions{ArchiveThreshold: 0.1, MaxIdleDays: 90})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)

	reloaded, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsDeleted)
	require.NotNil(t, reloaded.DeletedAt)
}

func TestDecayRespectsPerMemoryRate(t *testing.T) {
	s := newTestService(t)
	slow := addMemory(t, s, "the formatter configuration never changes between releases")
	fast := addMemory(t, s, "yesterday the canary cluster briefly ran out of disk space")

	for _, id := range []struct {
		m    *store.Memory
		rate float64
	}{{slow, 0.001}, {fast, 0.1}} {
		reloaded, err := s.Get(id.m.ID)
		require.NoError(t, err)
		rate := id.rate
		reloaded.DecayRate = &rate
		reloaded.Salience = 0.8
		require.NoError(t, s.store.UpdateMemory(reloaded))
	}

	s.SetClock(func() time.Time { return time.Now().Add(10 * 24 * time.Hour) })
	_, err := s.ApplyDecay(DecayOptions{})
	require.NoError(t, err)

	slowAfter, err := s.Get(slow.ID)
	require.NoError(t, err)
	fastAfter, err := s.Get(fast.ID)
	require.NoError(t, err)
	assert.Greater(t, slowAfter.Salience, fastAfter.Salience)
}

func TestRecentlyAccessedBarelyDecays(t *testing.T) {
	s := newTestService(t)
	m := addMemory(t, s, "unit tests stub the clock through the service setter")
	_, err := s.SetSalience(m.ID, 0.7)
	require.NoError(t, err)

	result, err := s.ApplyDecay(DecayOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Archived)

	reloaded, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, reloaded.Salience, 0.01)
}

func TestSimhashNearDuplicateDetection(t *testing.T) {
	a := "the indexing service batches embedding requests for throughput"
	b := "the indexing service batches embedding requests for performance"
	c := "completely unrelated text about cooking pasta with garlic and olive oil"

	distAB := HammingDistance(Simhash(a), Simhash(b))
	distAC := HammingDistance(Simhash(a), Simhash(c))
	assert.Less(t, distAB, distAC)

	assert.Greater(t, Jaccard(a, b), 0.7)
	assert.Less(t, Jaccard(a, c), 0.2)
}

func TestNormalizeContent(t *testing.T) {
	assert.Equal(t,
		NormalizeContent("Hello,  World!"),
		NormalizeContent("hello world"))
	assert.Equal(t, ContentHash("Hello,  World!"), ContentHash("hello world"))
}
