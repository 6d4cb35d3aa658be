package contextmem

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Intent is a fixed label a downstream caller uses to select which context
// to retrieve. The mapping from intent to retrieval policy is static.
type Intent string

const (
	IntentCreateTask Intent = "create_task"
	IntentPlanDay    Intent = "plan_day"
	IntentPrioritize Intent = "prioritize"
	IntentQuery      Intent = "query"
	IntentGeneral    Intent = "general"
)

// intentPolicy is one row of the intent lookup table.
type intentPolicy struct {
	categories    []Category
	minConfidence float64
	limit         int
}

// intentPolicies maps each intent to (category subset, min confidence, limit).
var intentPolicies = map[Intent]intentPolicy{
	IntentCreateTask: {
		categories:    []Category{CategoryPerson, CategoryPreference, CategorySchedule, CategoryConstraint},
		minConfidence: 0.3,
		limit:         5,
	},
	IntentPlanDay: {
		categories:    []Category{CategorySchedule, CategoryPattern, CategoryGoal, CategoryConstraint},
		minConfidence: 0.3,
		limit:         8,
	},
	IntentPrioritize: {
		categories:    []Category{CategoryGoal, CategoryConstraint, CategoryPattern},
		minConfidence: 0.4,
		limit:         6,
	},
	IntentQuery: {
		categories:    nil, // all categories
		minConfidence: 0.2,
		limit:         10,
	},
	IntentGeneral: {
		categories:    []Category{CategoryGoal, CategoryPreference, CategoryPerson},
		minConfidence: 0.4,
		limit:         5,
	},
}

// Ranker scores and ranks items for prompt injection.
//
// Every item a ranked retrieval returns is marked accessed: AccessCount is
// incremented and LastAccessedAt advances, in a single batched transaction.
// This is the feedback loop that keeps the store honest: items actually
// used in prompts stay fresh and resist staleness pruning, unused items
// decay and are eventually evicted.
type Ranker struct {
	store  *Store
	logger *zap.Logger
}

// NewRanker creates a ranker over the given store.
func NewRanker(store *Store, logger *zap.Logger) (*Ranker, error) {
	if store == nil {
		return nil, invalidDataf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{store: store, logger: logger}, nil
}

// Relevant returns up to maxItems items ranked for the query.
//
// With an empty query the ranking is by effective confidence alone. With a
// query, each candidate scores:
//
//	effectiveConfidence
//	  + 1.0 when the item key is one of the query words
//	  + 0.3 per distinct query word appearing in the item value
//
// Returned items are marked accessed as a side effect.
func (r *Ranker) Relevant(ctx context.Context, query string, maxItems int, minConfidence float64) ([]*ContextItem, error) {
	if maxItems <= 0 {
		return nil, nil
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.backend.List(ctx, nil)
	if err != nil {
		return nil, fetchFailed(err)
	}

	now := time.Now()
	candidates := items[:0]
	for _, it := range items {
		if s.params.EffectiveConfidence(it, now) >= minConfidence {
			candidates = append(candidates, it)
		}
	}

	queryWords := splitWords(query)
	sort.SliceStable(candidates, func(i, j int) bool {
		return r.score(candidates[i], queryWords, now) > r.score(candidates[j], queryWords, now)
	})

	if len(candidates) > maxItems {
		candidates = candidates[:maxItems]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if err := r.markAccessedLocked(ctx, candidates, now); err != nil {
		return nil, err
	}
	return candidates, nil
}

// RelevantForIntent retrieves context using the static policy for the intent.
// Unknown intents fall back to the general policy.
func (r *Ranker) RelevantForIntent(ctx context.Context, intent Intent) ([]*ContextItem, error) {
	policy, ok := intentPolicies[intent]
	if !ok {
		policy = intentPolicies[IntentGeneral]
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.backend.List(ctx, policy.categories)
	if err != nil {
		return nil, fetchFailed(err)
	}

	now := time.Now()
	candidates := items[:0]
	for _, it := range items {
		if s.params.EffectiveConfidence(it, now) >= policy.minConfidence {
			candidates = append(candidates, it)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return s.params.EffectiveConfidence(candidates[i], now) > s.params.EffectiveConfidence(candidates[j], now)
	})
	if len(candidates) > policy.limit {
		candidates = candidates[:policy.limit]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if err := r.markAccessedLocked(ctx, candidates, now); err != nil {
		return nil, err
	}
	return candidates, nil
}

// score computes the relevance score for one item.
func (r *Ranker) score(it *ContextItem, queryWords map[string]bool, now time.Time) float64 {
	score := r.store.params.EffectiveConfidence(it, now)
	if len(queryWords) == 0 {
		return score
	}
	if queryWords[it.Key] {
		score += 1.0
	}
	valueWords := splitWords(it.Value)
	for w := range queryWords {
		if valueWords[w] {
			score += 0.3
		}
	}
	return score
}

// markAccessedLocked applies the access side effect to the returned items:
// one batched TouchAll transaction, mirrored onto the in-memory copies so
// callers see the post-access state.
func (r *Ranker) markAccessedLocked(ctx context.Context, items []*ContextItem, now time.Time) error {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := r.store.backend.TouchAll(ctx, ids, now); err != nil {
		return saveFailed(err)
	}
	for _, it := range items {
		it.AccessCount++
		t := now
		it.LastAccessedAt = &t
	}
	if r.store.metrics.itemsAccessed != nil {
		r.store.metrics.itemsAccessed.Add(ctx, int64(len(items)))
	}
	r.logger.Debug("items marked accessed", zap.Int("count", len(items)))
	return nil
}

// FormatForPrompt renders items as short "- key: value" lines for injection
// into a system prompt. Empty input yields an empty string.
func FormatForPrompt(items []*ContextItem) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it.Key)
		b.WriteString(": ")
		b.WriteString(it.Value)
		b.WriteString("\n")
	}
	return b.String()
}

// splitWords lower-cases and splits text into a set of words, trimming
// common punctuation.
func splitWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?")
		if w != "" {
			words[w] = true
		}
	}
	return words
}
