package contextmem

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Service is the surface exposed to callers such as an LLM tool-dispatch
// layer or a UI: explicit remember/forget/recall plus ranked retrieval.
// Errors surface to the caller; rendering them as a user-facing message is
// the caller's job.
type Service struct {
	store  *Store
	ranker *Ranker
	logger *zap.Logger
}

// NewService creates the exposed service over a store.
func NewService(store *Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, invalidDataf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ranker, err := NewRanker(store, logger)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, ranker: ranker, logger: logger}, nil
}

// Store returns the underlying store, for read-side collaborators such as
// the insight aggregator.
func (s *Service) Store() *Store {
	return s.store
}

// Remember records an explicit user statement. An empty key is derived from
// the leading words of the value.
func (s *Service) Remember(ctx context.Context, category Category, key, value string, source Source) (*ContextItem, error) {
	if strings.TrimSpace(key) == "" {
		key = deriveKey(value)
	}
	return s.store.Upsert(ctx, category, key, value, source, Metadata{})
}

// ForgetRequest selects what to forget. Exactly one of Key, Category, or All
// is expected; Category may additionally scope a Key lookup.
type ForgetRequest struct {
	// Key selects a single item by normalized key. When Category is nil the
	// key is looked up across all categories.
	Key string

	// Category selects a whole category when Key is empty.
	Category *Category

	// All selects the entire store.
	All bool
}

// Forget removes items. Single-key forgets apply immediately; category-wide
// and store-wide forgets are destructive enough to require the confirmed
// flag, and fail with ErrNotConfirmed without it. Returns the number of
// items removed.
func (s *Service) Forget(ctx context.Context, req ForgetRequest, confirmed bool) (int, error) {
	switch {
	case req.All:
		if !confirmed {
			return 0, ErrNotConfirmed
		}
		return s.store.DeleteAll(ctx, nil)

	case req.Key != "":
		return s.forgetKey(ctx, req)

	case req.Category != nil:
		if !confirmed {
			return 0, ErrNotConfirmed
		}
		return s.store.DeleteAll(ctx, req.Category)

	default:
		return 0, invalidDataf("forget requires a key, a category, or all")
	}
}

func (s *Service) forgetKey(ctx context.Context, req ForgetRequest) (int, error) {
	key := NormalizeKey(req.Key)

	categories := AllCategories
	if req.Category != nil {
		categories = []Category{*req.Category}
	}

	removed := 0
	for _, c := range categories {
		item, err := s.store.Fetch(ctx, c, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if err := s.store.Delete(ctx, item); err != nil {
			return removed, err
		}
		removed++
	}
	if removed == 0 {
		if req.Category != nil {
			return 0, notFound(*req.Category, key)
		}
		return 0, notFound(CategoryOther, key)
	}
	return removed, nil
}

// Recall lists what the store knows, optionally scoped to a category and
// filtered by a topic keyword. Recall is a plain read: it does not mark
// items accessed.
func (s *Service) Recall(ctx context.Context, category *Category, topic string) ([]*ContextItem, error) {
	if strings.TrimSpace(topic) != "" {
		items, err := s.store.Search(ctx, topic)
		if err != nil {
			return nil, err
		}
		if category == nil {
			return items, nil
		}
		scoped := items[:0]
		for _, it := range items {
			if it.Category == *category {
				scoped = append(scoped, it)
			}
		}
		return scoped, nil
	}

	var categories []Category
	if category != nil {
		categories = []Category{*category}
	}
	return s.store.FetchAll(ctx, FetchOptions{Categories: categories})
}

// RelevantContext returns ranked context for a query, marking returned items
// accessed.
func (s *Service) RelevantContext(ctx context.Context, query string, maxItems int, minConfidence float64) ([]*ContextItem, error) {
	return s.ranker.Relevant(ctx, query, maxItems, minConfidence)
}

// RelevantForIntent returns ranked context for a fixed intent, marking
// returned items accessed.
func (s *Service) RelevantForIntent(ctx context.Context, intent Intent) ([]*ContextItem, error) {
	return s.ranker.RelevantForIntent(ctx, intent)
}

// deriveKey builds a key from the leading words of a value.
func deriveKey(value string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(value)))
	if len(words) > 4 {
		words = words[:4]
	}
	return strings.Join(words, " ")
}
