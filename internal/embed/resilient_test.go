package embed

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedEmbedder fails batches containing poison inputs and records
// every batch call.
type scriptedEmbedder struct {
	mu         sync.Mutex
	dims       int
	failOn     map[string]bool
	failFirst  int
	batchCalls [][]string
}

var _ Embedder = (*scriptedEmbedder)(nil)

func newScripted(failOn ...string) *scriptedEmbedder {
	m := make(map[string]bool)
	for _, f := range failOn {
		m[f] = true
	}
	return &scriptedEmbedder{dims: 8, failOn: m}
}

func (s *scriptedEmbedder) Name() string    { return "scripted" }
func (s *scriptedEmbedder) ModelID() string { return "scripted" }
func (s *scriptedEmbedder) Dimensions() int { return s.dims }

func (s *scriptedEmbedder) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *scriptedEmbedder) EmbedBatch(_ context.Context, texts []string, _ Mode) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls = append(s.batchCalls, append([]string(nil), texts...))

	if s.failFirst > 0 {
		s.failFirst--
		return nil, &ProviderError{Status: 503, Body: "transient"}
	}
	for _, text := range texts {
		if s.failOn[text] {
			return nil, &ProviderError{Status: 400, Body: "poison: " + text}
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, s.dims)
		v[0] = float32(len(text))
		out[i] = v
	}
	return out, nil
}

func (s *scriptedEmbedder) calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.batchCalls...)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		BackoffFactor:  2,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestEmbedBatchEmptyNoCall(t *testing.T) {
	inner := newScripted()
	r := NewResilientWithPolicy(inner, fastPolicy())

	out, err := r.EmbedBatch(context.Background(), nil, ModeDocument)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, inner.calls())
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	inner := newScripted()
	r := NewResilientWithPolicy(inner, fastPolicy())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	out, err := r.EmbedBatch(context.Background(), texts, ModeDocument)
	require.NoError(t, err)
	require.Len(t, out, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), out[i][0])
	}
}

func TestBinarySplitIsolatesPoisonInput(t *testing.T) {
	inner := newScripted("bad")
	r := NewResilientWithPolicy(inner, fastPolicy())

	_, err := r.EmbedBatch(context.Background(), []string{"good1", "good2", "bad", "good3"}, ModeDocument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")

	// Whole batch, then halves, then the size-1 poison batch.
	calls := inner.calls()
	assert.GreaterOrEqual(t, len(calls), 3)

	sawSingleBad := false
	for _, c := range calls {
		if len(c) == 1 && c[0] == "bad" {
			sawSingleBad = true
		}
	}
	assert.True(t, sawSingleBad, "expected the split to reach the size-1 poison batch, got %v", calls)
}

func TestSplitSucceedsWhenHalvesPass(t *testing.T) {
	// Fails the first (whole-batch) calls, then recovers: the halves
	// succeed and results reassemble in order.
	inner := newScripted()
	inner.failFirst = 2 // both retry attempts of the whole batch
	r := NewResilientWithPolicy(inner, fastPolicy())

	texts := []string{"x", "yy", "zzz", "wwww"}
	out, err := r.EmbedBatch(context.Background(), texts, ModeDocument)
	require.NoError(t, err)
	require.Len(t, out, 4)
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), out[i][0])
	}
}

func TestRetryOnTransientThenSuccess(t *testing.T) {
	inner := newScripted()
	inner.failFirst = 1
	r := NewResilientWithPolicy(inner, fastPolicy())

	out, err := r.Embed(context.Background(), "hello", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, float32(5), out[0])
	assert.Len(t, inner.calls(), 2)
}

func TestNonRetryableSurfacesImmediately(t *testing.T) {
	inner := newScripted("nope")
	r := NewResilientWithPolicy(inner, fastPolicy())

	_, err := r.Embed(context.Background(), "nope", ModeDocument)
	require.Error(t, err)
	assert.Len(t, inner.calls(), 1, "4xx must not retry")
}

func TestIsRetryableClassification(t *testing.T) {
	assert.True(t, IsRetryable(&NetworkError{Err: fmt.Errorf("refused")}))
	assert.True(t, IsRetryable(&TimeoutError{Err: context.DeadlineExceeded}))
	assert.True(t, IsRetryable(&ProviderError{Status: 429}))
	assert.True(t, IsRetryable(&ProviderError{Status: 503}))
	assert.False(t, IsRetryable(&ProviderError{Status: 401}))
	assert.False(t, IsRetryable(&ProviderError{Status: 404}))
}

func TestFormatForMode(t *testing.T) {
	assert.Equal(t, "plain", FormatForMode("plain", ModeDocument, "find code"))
	assert.Equal(t, "plain", FormatForMode("plain", ModeQuery, ""))
	assert.Equal(t,
		"Instruct: find code\nQuery:plain",
		FormatForMode("plain", ModeQuery, "find code"))
}

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := NewStaticEmbedder(32)

	a1, err := e.Embed(context.Background(), "alpha beta", ModeDocument)
	require.NoError(t, err)
	a2, err := e.Embed(context.Background(), "alpha beta", ModeDocument)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	b, err := e.Embed(context.Background(), "gamma delta", ModeDocument)
	require.NoError(t, err)
	assert.NotEqual(t, a1, b)
}
