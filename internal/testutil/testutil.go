// Package testutil provides fakes for store, embedder, and clock used
// across package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ccengram/ccengram/internal/embed"
	"github.com/ccengram/ccengram/internal/store"
)

// TestDimensions is the vector dimension used by test stores.
const TestDimensions = 64

// OpenStore opens a store in a temp directory, closed on test cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), TestDimensions)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// FakeEmbedder is a deterministic embedder that records calls and can
// be scripted to fail on specific inputs.
type FakeEmbedder struct {
	mu sync.Mutex

	// FailOn marks inputs whose presence fails the whole batch.
	FailOn map[string]bool

	// FailNext fails the next n calls regardless of input.
	FailNext int

	// FailStatus is the provider status used for scripted failures
	// (default 400, non-retryable).
	FailStatus int

	inner      *embed.StaticEmbedder
	BatchCalls [][]string
	CallCount  int
}

var _ embed.Embedder = (*FakeEmbedder)(nil)

// NewFakeEmbedder creates a fake with TestDimensions.
func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{
		FailOn: make(map[string]bool),
		inner:  embed.NewStaticEmbedder(TestDimensions),
	}
}

// Name returns "fake".
func (f *FakeEmbedder) Name() string { return "fake" }

// ModelID returns the pseudo-model id.
func (f *FakeEmbedder) ModelID() string { return "fake-test" }

// Dimensions returns the test dimension.
func (f *FakeEmbedder) Dimensions() int { return TestDimensions }

// Embed embeds one text, honoring scripted failures.
func (f *FakeEmbedder) Embed(ctx context.Context, text string, mode embed.Mode) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch records the call and fails when scripted to.
func (f *FakeEmbedder) EmbedBatch(ctx context.Context, texts []string, mode embed.Mode) ([][]float32, error) {
	f.mu.Lock()
	f.CallCount++
	f.BatchCalls = append(f.BatchCalls, append([]string(nil), texts...))

	status := f.FailStatus
	if status == 0 {
		status = 400
	}

	if f.FailNext > 0 {
		f.FailNext--
		f.mu.Unlock()
		return nil, &embed.ProviderError{Status: status, Body: "scripted failure"}
	}

	for _, text := range texts {
		if f.FailOn[text] {
			f.mu.Unlock()
			return nil, &embed.ProviderError{Status: status, Body: fmt.Sprintf("poison input: %q", text)}
		}
	}
	f.mu.Unlock()

	return f.inner.EmbedBatch(ctx, texts, mode)
}

// Batches returns a copy of the recorded batch calls.
func (f *FakeEmbedder) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.BatchCalls...)
}

// Clock is a controllable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock at the given instant.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
