package contextmem

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMaintainer(t *testing.T, store *Store) *Maintainer {
	t.Helper()
	m, err := NewMaintainer(store, zap.NewNop())
	require.NoError(t, err)
	return m
}

func insertAged(t *testing.T, store *Store, key string, confidence float64, accessedDaysAgo int) *ContextItem {
	t.Helper()
	item, err := NewContextItem(CategoryOther, key, "v", SourceExtracted, Metadata{})
	require.NoError(t, err)
	item.Confidence = confidence
	past := time.Now().Add(-time.Duration(accessedDaysAgo) * 24 * time.Hour)
	item.LastAccessedAt = &past
	require.NoError(t, store.backend.Insert(context.Background(), item))
	return item
}

func TestFullMaintenance_PrunesStaleItems(t *testing.T) {
	store := newTestStore(t)
	m := newTestMaintainer(t, store)
	ctx := context.Background()

	insertAged(t, store, "stale", 0.05, 95)
	insertAged(t, store, "fresh", 0.05, 1)

	report, err := m.RunFullMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.StalePruned)

	_, err = store.Fetch(ctx, CategoryOther, "stale")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Fetch(ctx, CategoryOther, "fresh")
	assert.NoError(t, err)
}

func TestFullMaintenance_PrunesWeakPatterns(t *testing.T) {
	store := newTestStore(t)
	m := newTestMaintainer(t, store)
	ctx := context.Background()

	pattern := func(key string, points int) {
		item, err := NewContextItem(CategoryPattern, key, "v", SourceExtracted,
			Metadata{Pattern: &PatternMeta{DataPoints: points}})
		require.NoError(t, err)
		item.Confidence = 0.9
		item.UpdatedAt = time.Now().Add(-31 * 24 * time.Hour)
		// Keep a recent access so the staleness pass leaves these alone.
		now := time.Now()
		item.LastAccessedAt = &now
		require.NoError(t, store.backend.Insert(ctx, item))
	}
	pattern("completion_hour_3", 2)
	pattern("completion_hour_9", 5)

	report, err := m.RunFullMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.WeakPatternsPruned)

	_, err = store.Fetch(ctx, CategoryPattern, "completion_hour_3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Fetch(ctx, CategoryPattern, "completion_hour_9")
	assert.NoError(t, err)
}

func TestFullMaintenance_CapacitySweepUsesEffectiveConfidence(t *testing.T) {
	params := DefaultParams()
	params.Capacity = 3
	store := newTestStore(t, WithParams(params))
	m := newTestMaintainer(t, store)
	ctx := context.Background()

	// Stored confidence says "keep decayed"; effective confidence says
	// otherwise (0.9 decayed to ~0.2 after 285 days, above the stale floor,
	// so only the capacity sweep can remove it). The sweep must trust the
	// decayed value.
	insertAged(t, store, "decayed", 0.9, 285)
	insertAged(t, store, "mid", 0.5, 1)
	insertAged(t, store, "strong", 0.8, 1)
	insertAged(t, store, "weak_but_fresh", 0.3, 1)

	report, err := m.RunFullMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CapacityEvicted)

	_, err = store.Fetch(ctx, CategoryOther, "decayed")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLightMaintenance_NoOpUnderCapacity(t *testing.T) {
	store := newTestStore(t)
	m := newTestMaintainer(t, store)
	ctx := context.Background()

	// 50 items, including some that full maintenance would prune.
	insertAged(t, store, "stale", 0.05, 95)
	for i := 0; i < 49; i++ {
		insertAged(t, store, fmt.Sprintf("item_%d", i), 0.5, 1)
	}

	report, err := m.RunLightMaintenance(ctx)
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, 0, report.Total())

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, count)
}

func TestLightMaintenance_TriggersFullSweepOverCapacity(t *testing.T) {
	params := DefaultParams()
	params.Capacity = 100
	store := newTestStore(t, WithParams(params))
	m := newTestMaintainer(t, store)
	ctx := context.Background()

	for i := 0; i < 101; i++ {
		insertAged(t, store, fmt.Sprintf("item_%d", i), 0.5, 1)
	}

	report, err := m.RunLightMaintenance(ctx)
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, report.CapacityEvicted)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, count)
}

func TestFullMaintenance_StopsBetweenPassesOnCancel(t *testing.T) {
	store := newTestStore(t)
	m := newTestMaintainer(t, store)

	insertAged(t, store, "stale", 0.05, 95)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := m.RunFullMaintenance(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	// The first pass still ran to completion; state stays consistent.
	assert.Equal(t, 1, report.StalePruned)
	assert.Equal(t, 0, report.WeakPatternsPruned)
	assert.Equal(t, 0, report.CapacityEvicted)
}

func TestFullMaintenance_SkipsFailingDeletes(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: NewMemoryBackend()}
	store, err := NewStore(backend, zap.NewNop())
	require.NoError(t, err)
	m := newTestMaintainer(t, store)
	ctx := context.Background()

	a := insertAged(t, store, "stale_a", 0.05, 95)
	insertAged(t, store, "stale_b", 0.05, 95)
	backend.failDelete = a.ID

	report, err := m.RunFullMaintenance(ctx)
	require.NoError(t, err)
	// The failing item is skipped, the sweep continues.
	assert.Equal(t, 1, report.StalePruned)

	_, err = store.Fetch(ctx, CategoryOther, "stale_a")
	assert.NoError(t, err)
	_, err = store.Fetch(ctx, CategoryOther, "stale_b")
	assert.ErrorIs(t, err, ErrNotFound)
}

// flakyBackend fails deletion of one configured ID.
type flakyBackend struct {
	*MemoryBackend
	failDelete string
}

func (b *flakyBackend) Delete(ctx context.Context, id string) error {
	if id == b.failDelete {
		return fmt.Errorf("simulated delete failure")
	}
	return b.MemoryBackend.Delete(ctx, id)
}
