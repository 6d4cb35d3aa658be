package contextmem

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store provides CRUD, uniqueness, and reinforcement over context items.
//
// All mutations are serialized by a single mutex: the capacity check, the
// uniqueness check, and the write they guard are one critical section, so two
// concurrent upserts can never both see count == capacity-1 and overshoot the
// cap. The persistence backend only ever sees one writer at a time.
type Store struct {
	mu      sync.Mutex
	backend Backend
	params  Params
	logger  *zap.Logger
	metrics *storeMetrics
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithParams overrides the default retention and scoring tunables.
func WithParams(p Params) StoreOption {
	return func(s *Store) { s.params = p }
}

// NewStore creates a store over the given backend.
func NewStore(backend Backend, logger *zap.Logger, opts ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, invalidDataf("backend cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		backend: backend,
		params:  DefaultParams(),
		logger:  logger,
		metrics: newStoreMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Params returns the store's tunables.
func (s *Store) Params() Params {
	return s.params
}

// Upsert records an observation. If an item already exists for the
// normalized (category, key) pair it is reinforced; otherwise a new item is
// created with the source's base confidence. An insert that would exceed the
// capacity cap first evicts the single lowest stored-confidence item.
func (s *Store) Upsert(ctx context.Context, category Category, key, value string, source Source, meta Metadata) (*ContextItem, error) {
	item, err := NewContextItem(category, key, value, source, meta)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.backend.Get(ctx, item.Category, item.Key)
	if err != nil {
		return nil, fetchFailed(err)
	}
	if existing != nil {
		return s.reinforceLocked(ctx, existing, value, meta)
	}

	if err := s.evictForCapacityLocked(ctx); err != nil {
		return nil, err
	}
	if err := s.backend.Insert(ctx, item); err != nil {
		return nil, saveFailed(err)
	}

	if s.metrics.itemsCreated != nil {
		s.metrics.itemsCreated.Add(ctx, 1)
	}
	s.logger.Debug("context item created",
		zap.String("category", string(item.Category)),
		zap.String("key", item.Key),
		zap.String("source", string(item.Source)),
		zap.Float64("confidence", item.Confidence))
	return item, nil
}

// Reinforce applies one reinforcement step to an existing item:
//
//	confidence' = confidence + (1 - confidence) * boost
//
// Confidence never decreases and asymptotically approaches 1.0. The new
// value, if given, is merged into the item's value unless it is already
// present as a case-insensitive substring.
func (s *Store) Reinforce(ctx context.Context, item *ContextItem, newValue string) (*ContextItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reinforceLocked(ctx, item, newValue, Metadata{})
}

func (s *Store) reinforceLocked(ctx context.Context, item *ContextItem, newValue string, meta Metadata) (*ContextItem, error) {
	boost := item.Source.BoostFactor()
	item.Confidence += (1 - item.Confidence) * boost
	if item.Confidence > 1 {
		item.Confidence = 1
	}
	item.ReinforcementCount++
	item.UpdatedAt = time.Now()

	mergeValue(item, newValue)
	mergeMetadata(item, meta)

	if err := s.backend.Update(ctx, item); err != nil {
		return nil, saveFailed(err)
	}

	if s.metrics.reinforcements != nil {
		s.metrics.reinforcements.Add(ctx, 1)
	}
	s.logger.Debug("context item reinforced",
		zap.String("category", string(item.Category)),
		zap.String("key", item.Key),
		zap.Float64("confidence", item.Confidence),
		zap.Int("reinforcements", item.ReinforcementCount))
	return item, nil
}

// mergeValue appends newValue unless it is already contained in the value
// (case-insensitive) or the merged text would exceed the length bound.
func mergeValue(item *ContextItem, newValue string) {
	newValue = strings.TrimSpace(newValue)
	if newValue == "" {
		return
	}
	if strings.Contains(strings.ToLower(item.Value), strings.ToLower(newValue)) {
		return
	}
	merged := item.Value + "; " + newValue
	if len(merged) > MaxValueLen {
		return
	}
	item.Value = merged
}

// mergeMetadata folds an incoming payload into the item's. Pattern data
// points accumulate; other fields fill in only when missing.
func mergeMetadata(item *ContextItem, meta Metadata) {
	if meta.Pattern != nil {
		if item.Metadata.Pattern == nil {
			item.Metadata.Pattern = &PatternMeta{}
		}
		item.Metadata.Pattern.DataPoints += meta.Pattern.DataPoints
		if meta.Pattern.LastObserved.After(item.Metadata.Pattern.LastObserved) {
			item.Metadata.Pattern.LastObserved = meta.Pattern.LastObserved
		}
	}
	if meta.Person != nil {
		if item.Metadata.Person == nil {
			item.Metadata.Person = meta.Person
		} else if item.Metadata.Person.Relationship == "" {
			item.Metadata.Person.Relationship = meta.Person.Relationship
		}
	}
	if meta.Schedule != nil && item.Metadata.Schedule == nil {
		item.Metadata.Schedule = meta.Schedule
	}
	for k, v := range meta.Extra {
		if item.Metadata.Extra == nil {
			item.Metadata.Extra = make(map[string]string)
		}
		if _, ok := item.Metadata.Extra[k]; !ok {
			item.Metadata.Extra[k] = v
		}
	}
}

// evictForCapacityLocked makes room for one insert when the store is at
// capacity: the item with the lowest stored confidence goes, ties broken by
// oldest UpdatedAt. This is the cheap local eviction; the full
// effective-confidence sweep belongs to maintenance.
func (s *Store) evictForCapacityLocked(ctx context.Context) error {
	count, err := s.backend.Count(ctx)
	if err != nil {
		return fetchFailed(err)
	}
	if count < s.params.Capacity {
		return nil
	}

	items, err := s.backend.List(ctx, nil)
	if err != nil {
		return fetchFailed(err)
	}
	if len(items) == 0 {
		return nil
	}

	victim := items[0]
	for _, it := range items[1:] {
		if it.Confidence < victim.Confidence ||
			(it.Confidence == victim.Confidence && it.UpdatedAt.Before(victim.UpdatedAt)) {
			victim = it
		}
	}

	if err := s.backend.Delete(ctx, victim.ID); err != nil {
		return deleteFailed(err)
	}
	if s.metrics.evictions != nil {
		s.metrics.evictions.Add(ctx, 1)
	}
	s.logger.Info("evicted lowest-confidence item for capacity",
		zap.String("category", string(victim.Category)),
		zap.String("key", victim.Key),
		zap.Float64("confidence", victim.Confidence))
	return nil
}

// Fetch returns the item for a (category, key) pair, or ErrNotFound.
func (s *Store) Fetch(ctx context.Context, category Category, key string) (*ContextItem, error) {
	key = NormalizeKey(key)
	item, err := s.backend.Get(ctx, category, key)
	if err != nil {
		return nil, fetchFailed(err)
	}
	if item == nil {
		return nil, notFound(category, key)
	}
	return item, nil
}

// FetchOptions filters and bounds FetchAll.
type FetchOptions struct {
	// Categories restricts the result; empty means all categories.
	Categories []Category

	// MinEffectiveConfidence drops items whose decayed confidence is below
	// the threshold. The stored base confidence is a ceiling; filtering
	// always uses the effective value.
	MinEffectiveConfidence float64

	// Limit bounds the result size; 0 means unbounded.
	Limit int
}

// FetchAll returns items sorted by effective confidence descending, then by
// update recency descending.
func (s *Store) FetchAll(ctx context.Context, opts FetchOptions) ([]*ContextItem, error) {
	items, err := s.backend.List(ctx, opts.Categories)
	if err != nil {
		return nil, fetchFailed(err)
	}

	now := time.Now()
	filtered := items[:0]
	for _, it := range items {
		if s.params.EffectiveConfidence(it, now) >= opts.MinEffectiveConfidence {
			filtered = append(filtered, it)
		}
	}
	items = filtered

	sort.SliceStable(items, func(i, j int) bool {
		ei := s.params.EffectiveConfidence(items[i], now)
		ej := s.params.EffectiveConfidence(items[j], now)
		if ei != ej {
			return ei > ej
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})

	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// Search returns items whose key or value contains the keyword,
// case-insensitive.
func (s *Store) Search(ctx context.Context, keyword string) ([]*ContextItem, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil, invalidDataf("search keyword cannot be empty")
	}

	items, err := s.backend.List(ctx, nil)
	if err != nil {
		return nil, fetchFailed(err)
	}

	matches := items[:0]
	for _, it := range items {
		if strings.Contains(it.Key, keyword) || strings.Contains(strings.ToLower(it.Value), keyword) {
			matches = append(matches, it)
		}
	}
	return matches, nil
}

// Count returns the total number of items.
func (s *Store) Count(ctx context.Context) (int, error) {
	n, err := s.backend.Count(ctx)
	if err != nil {
		return 0, fetchFailed(err)
	}
	return n, nil
}

// Delete removes a single item.
func (s *Store) Delete(ctx context.Context, item *ContextItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(ctx, item.ID); err != nil {
		return deleteFailed(err)
	}
	s.logger.Debug("context item deleted",
		zap.String("category", string(item.Category)),
		zap.String("key", item.Key))
	return nil
}

// DeleteAll removes every item in a category, or every item when category is
// nil. Returns the number removed. Items that fail to delete are skipped and
// logged; the sweep continues.
func (s *Store) DeleteAll(ctx context.Context, category *Category) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var categories []Category
	if category != nil {
		categories = []Category{*category}
	}
	items, err := s.backend.List(ctx, categories)
	if err != nil {
		return 0, fetchFailed(err)
	}

	removed := 0
	for _, it := range items {
		if err := s.backend.Delete(ctx, it.ID); err != nil {
			s.logger.Warn("failed to delete item, skipping",
				zap.String("key", it.Key),
				zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// deleteBatchLocked removes the given items, skipping failures. Used by
// maintenance passes. Returns the number actually removed.
func (s *Store) deleteBatchLocked(ctx context.Context, items []*ContextItem, reason string) int {
	removed := 0
	for _, it := range items {
		if err := s.backend.Delete(ctx, it.ID); err != nil {
			s.logger.Warn("failed to delete item during maintenance, skipping",
				zap.String("reason", reason),
				zap.String("key", it.Key),
				zap.Error(err))
			continue
		}
		removed++
	}
	return removed
}
