package contextmem

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

// MaintenanceReport summarizes one maintenance run.
type MaintenanceReport struct {
	// StalePruned counts items removed by the staleness pass.
	StalePruned int `json:"stale_pruned"`

	// WeakPatternsPruned counts pattern items removed for having too few
	// data points.
	WeakPatternsPruned int `json:"weak_patterns_pruned"`

	// CapacityEvicted counts items removed by the capacity sweep.
	CapacityEvicted int `json:"capacity_evicted"`

	// Skipped is true when light maintenance found nothing to do.
	Skipped bool `json:"skipped"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`
}

// Total returns the total number of items removed.
func (r MaintenanceReport) Total() int {
	return r.StalePruned + r.WeakPatternsPruned + r.CapacityEvicted
}

// Maintainer runs the retention policy over a store: staleness pruning,
// weak-pattern pruning, and capacity eviction, in that order.
//
// Maintenance is best-effort cleanup. A failed deletion skips that item and
// the sweep continues; cancellation between passes leaves a consistent, if
// incomplete, state. It never blocks or fails the caller's primary flow.
type Maintainer struct {
	store  *Store
	logger *zap.Logger
}

// NewMaintainer creates a maintainer for the given store.
func NewMaintainer(store *Store, logger *zap.Logger) (*Maintainer, error) {
	if store == nil {
		return nil, invalidDataf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maintainer{store: store, logger: logger}, nil
}

// RunFullMaintenance executes the three ordered passes:
//
//  1. Prune every stale item (out of the access window, decayed below the floor).
//  2. Prune weak pattern items (too few data points for their age).
//  3. If the remaining count still exceeds capacity, delete the excess in
//     ascending effective-confidence order.
//
// Each pass is persisted before the next begins, and the context is checked
// between passes so a time-boxed caller can cut the run short.
func (m *Maintainer) RunFullMaintenance(ctx context.Context) (MaintenanceReport, error) {
	start := time.Now()
	report := MaintenanceReport{}

	report.StalePruned = m.pruneStale(ctx)
	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	report.WeakPatternsPruned = m.pruneWeakPatterns(ctx)
	if err := ctx.Err(); err != nil {
		report.Duration = time.Since(start)
		return report, err
	}

	report.CapacityEvicted = m.sweepCapacity(ctx)
	report.Duration = time.Since(start)

	m.logger.Info("full maintenance completed",
		zap.Int("stale_pruned", report.StalePruned),
		zap.Int("weak_patterns_pruned", report.WeakPatternsPruned),
		zap.Int("capacity_evicted", report.CapacityEvicted),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// RunLightMaintenance is the cheap foreground guard: it only triggers the
// full three-pass sweep when the item count exceeds capacity, and is a no-op
// otherwise.
func (m *Maintainer) RunLightMaintenance(ctx context.Context) (MaintenanceReport, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return MaintenanceReport{}, err
	}
	if count <= m.store.params.Capacity {
		m.logger.Debug("light maintenance skipped", zap.Int("count", count))
		return MaintenanceReport{Skipped: true}, nil
	}
	return m.RunFullMaintenance(ctx)
}

// pruneStale removes every stale item. Delete failures are skipped.
func (m *Maintainer) pruneStale(ctx context.Context) int {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.backend.List(ctx, nil)
	if err != nil {
		m.logger.Warn("staleness pass could not list items", zap.Error(err))
		return 0
	}

	now := time.Now()
	var stale []*ContextItem
	for _, it := range items {
		if s.params.IsStale(it, now) {
			stale = append(stale, it)
		}
	}

	removed := s.deleteBatchLocked(ctx, stale, "stale")
	s.metrics.addPruned(ctx, "stale", removed)
	return removed
}

// pruneWeakPatterns removes pattern items with too few data points for their
// age. Confidence does not exempt them; the rule targets rarely reinforced
// noise.
func (m *Maintainer) pruneWeakPatterns(ctx context.Context) int {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.backend.List(ctx, []Category{CategoryPattern})
	if err != nil {
		m.logger.Warn("weak-pattern pass could not list items", zap.Error(err))
		return 0
	}

	now := time.Now()
	var weak []*ContextItem
	for _, it := range items {
		if s.params.IsWeakPattern(it, now) {
			weak = append(weak, it)
		}
	}

	removed := s.deleteBatchLocked(ctx, weak, "weak_pattern")
	s.metrics.addPruned(ctx, "weak_pattern", removed)
	return removed
}

// sweepCapacity deletes the excess over capacity in ascending
// effective-confidence order. Unlike the single eviction on upsert, this
// sweep ranks by the decayed value, so long-unused items go first even when
// their stored confidence is high.
func (m *Maintainer) sweepCapacity(ctx context.Context) int {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.backend.List(ctx, nil)
	if err != nil {
		m.logger.Warn("capacity pass could not list items", zap.Error(err))
		return 0
	}
	excess := len(items) - s.params.Capacity
	if excess <= 0 {
		return 0
	}

	now := time.Now()
	sort.SliceStable(items, func(i, j int) bool {
		return s.params.EffectiveConfidence(items[i], now) < s.params.EffectiveConfidence(items[j], now)
	})

	removed := s.deleteBatchLocked(ctx, items[:excess], "capacity")
	s.metrics.addPruned(ctx, "capacity", removed)
	return removed
}
