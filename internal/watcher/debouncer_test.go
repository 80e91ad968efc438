package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDebouncer(window time.Duration) (*Debouncer, *time.Time) {
	d := NewDebouncer(window)
	now := time.Now()
	d.now = func() time.Time { return now }
	return d, &now
}

func TestDebounceHoldsUntilQuietWindow(t *testing.T) {
	d, now := newTestDebouncer(100 * time.Millisecond)

	d.Add(Change{Path: "a.go", Kind: KindModified})
	assert.Empty(t, d.CollectReady())

	*now = now.Add(150 * time.Millisecond)
	ready := d.CollectReady()
	require.Len(t, ready, 1)
	assert.Equal(t, "a.go", ready[0].Path)
	assert.Equal(t, KindModified, ready[0].Kind)

	// Drained.
	assert.Empty(t, d.CollectReady())
}

func TestCreateThenModifyStaysCreate(t *testing.T) {
	d, now := newTestDebouncer(50 * time.Millisecond)

	d.Add(Change{Path: "new.go", Kind: KindCreated})
	d.Add(Change{Path: "new.go", Kind: KindModified})

	*now = now.Add(time.Second)
	ready := d.CollectReady()
	require.Len(t, ready, 1)
	assert.Equal(t, KindCreated, ready[0].Kind)
}

func TestCreateThenDeleteCancels(t *testing.T) {
	d, now := newTestDebouncer(50 * time.Millisecond)

	d.Add(Change{Path: "ghost.go", Kind: KindCreated})
	d.Add(Change{Path: "ghost.go", Kind: KindDeleted})

	*now = now.Add(time.Second)
	assert.Empty(t, d.CollectReady())
}

func TestModifyThenDeleteIsDelete(t *testing.T) {
	d, now := newTestDebouncer(50 * time.Millisecond)

	d.Add(Change{Path: "gone.go", Kind: KindModified})
	d.Add(Change{Path: "gone.go", Kind: KindDeleted})

	*now = now.Add(time.Second)
	ready := d.CollectReady()
	require.Len(t, ready, 1)
	assert.Equal(t, KindDeleted, ready[0].Kind)
}

func TestDeleteThenCreateIsModify(t *testing.T) {
	d, now := newTestDebouncer(50 * time.Millisecond)

	d.Add(Change{Path: "swap.go", Kind: KindDeleted})
	d.Add(Change{Path: "swap.go", Kind: KindCreated})

	*now = now.Add(time.Second)
	ready := d.CollectReady()
	require.Len(t, ready, 1)
	assert.Equal(t, KindModified, ready[0].Kind)
}

func TestBurstCoalescesToOnePerPath(t *testing.T) {
	d, now := newTestDebouncer(100 * time.Millisecond)

	for i := 0; i < 50; i++ {
		d.Add(Change{Path: "hot.go", Kind: KindModified})
	}
	assert.Equal(t, 1, d.PendingCount())

	*now = now.Add(time.Second)
	assert.Len(t, d.CollectReady(), 1)
}

func TestEventResetsQuietWindow(t *testing.T) {
	d, now := newTestDebouncer(100 * time.Millisecond)

	d.Add(Change{Path: "busy.go", Kind: KindModified})
	*now = now.Add(80 * time.Millisecond)
	d.Add(Change{Path: "busy.go", Kind: KindModified})

	// Only 80ms since the last event: not ready yet.
	*now = now.Add(80 * time.Millisecond)
	assert.Empty(t, d.CollectReady())

	*now = now.Add(30 * time.Millisecond)
	assert.Len(t, d.CollectReady(), 1)
}

func TestIndependentPathsCollectTogether(t *testing.T) {
	d, now := newTestDebouncer(50 * time.Millisecond)

	d.Add(Change{Path: "a.go", Kind: KindCreated})
	d.Add(Change{Path: "b.go", Kind: KindCreated})
	d.Add(Change{Path: "c.go", Kind: KindDeleted})

	*now = now.Add(time.Second)
	assert.Len(t, d.CollectReady(), 3)
}
