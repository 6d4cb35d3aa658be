package contextmem

import (
	"math"
	"time"
)

// Params holds the retention and scoring tunables. The decay curve is a
// policy choice, not a hidden requirement; these knobs make it explicit and
// configurable.
type Params struct {
	// Capacity is the hard cap on total item count.
	Capacity int

	// StalenessWindow is how long an item holds its stored confidence
	// without being accessed. Measured from LastAccessedAt, or CreatedAt for
	// items never accessed.
	StalenessWindow time.Duration

	// DecayHalfLife is the half-life of the exponential decay applied past
	// the staleness window.
	DecayHalfLife time.Duration

	// StaleFloor is the effective-confidence floor below which an
	// out-of-window item counts as stale.
	StaleFloor float64

	// WeakPatternMinPoints is the data-point count a pattern item must reach
	// to survive the weak-pattern prune once it is old enough.
	WeakPatternMinPoints int

	// WeakPatternMaxAge is how long a pattern item may go without an update
	// before the data-point threshold applies.
	WeakPatternMaxAge time.Duration
}

// DefaultParams returns the standard tuning: 100-item cap, 90-day window,
// 90-day half-life past the window, 0.1 stale floor, and weak-pattern
// pruning at <3 points after 30 days.
func DefaultParams() Params {
	return Params{
		Capacity:             100,
		StalenessWindow:      90 * 24 * time.Hour,
		DecayHalfLife:        90 * 24 * time.Hour,
		StaleFloor:           0.1,
		WeakPatternMinPoints: 3,
		WeakPatternMaxAge:    30 * 24 * time.Hour,
	}
}

// EffectiveConfidence maps the stored confidence to its decayed value at now.
//
// Inside the staleness window the stored value stands. Past the window the
// value decays exponentially with the configured half-life:
//
//	eff = stored * 2^(-(elapsed - window) / halfLife)
//
// The stored value is a ceiling the effective value decays from; it is never
// exceeded and recovers fully on the next ranked access (which resets the
// reference time).
func (p Params) EffectiveConfidence(it *ContextItem, now time.Time) float64 {
	elapsed := now.Sub(it.referenceTime())
	if elapsed <= p.StalenessWindow {
		return it.Confidence
	}
	overrun := elapsed - p.StalenessWindow
	return it.Confidence * math.Exp2(-overrun.Hours()/p.DecayHalfLife.Hours())
}

// IsStale reports whether the item should be pruned for staleness: out of
// the access window and decayed below the floor. Consistent with
// EffectiveConfidence by construction: inside the window an item is never
// stale.
func (p Params) IsStale(it *ContextItem, now time.Time) bool {
	if now.Sub(it.referenceTime()) <= p.StalenessWindow {
		return false
	}
	return p.EffectiveConfidence(it, now) < p.StaleFloor
}

// IsWeakPattern reports whether a pattern item has too few data points for
// its age: below the minimum count and not updated within the max age.
// High confidence does not save a weak pattern; the rule targets rarely
// reinforced noise regardless of score.
func (p Params) IsWeakPattern(it *ContextItem, now time.Time) bool {
	if it.Category != CategoryPattern {
		return false
	}
	if it.DataPoints() >= p.WeakPatternMinPoints {
		return false
	}
	return now.Sub(it.UpdatedAt) > p.WeakPatternMaxAge
}
