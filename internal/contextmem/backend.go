package contextmem

import (
	"context"
	"sync"
	"time"
)

// Backend defines the persistence interface the store runs on.
//
// Implementations can use SQLite (internal/storage) or in-memory storage.
// Each call is a single logical transaction: callers never observe a partial
// write. TouchAll in particular must apply all access marks atomically:
// a crash must not leave some items "accessed" and others not.
//
// The working set is capped at the store's capacity (100 items), so List
// returning the full matching set is cheap; ordering and effective-confidence
// filtering are the store's job, not the backend's.
type Backend interface {
	// Insert persists a new item. The (category, key) pair is expected to be
	// unique; the store checks before inserting.
	Insert(ctx context.Context, item *ContextItem) error

	// Update persists changes to an existing item, matched by ID.
	Update(ctx context.Context, item *ContextItem) error

	// Delete removes an item by ID. Deleting a missing ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Get fetches the item for a (category, key) pair. Returns (nil, nil)
	// when no such item exists.
	Get(ctx context.Context, category Category, key string) (*ContextItem, error)

	// List fetches all items in the given categories; all items when the
	// slice is empty.
	List(ctx context.Context, categories []Category) ([]*ContextItem, error)

	// Count returns the total number of items.
	Count(ctx context.Context) (int, error)

	// TouchAll increments AccessCount and sets LastAccessedAt for every
	// given ID in one transaction.
	TouchAll(ctx context.Context, ids []string, now time.Time) error
}

// MemoryBackend is an in-memory Backend. It backs unit tests and is a usable
// ephemeral backend in its own right.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]*ContextItem // id -> item
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]*ContextItem)}
}

// Insert stores a copy of the item.
func (b *MemoryBackend) Insert(ctx context.Context, item *ContextItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *item
	b.items[item.ID] = &cp
	return nil
}

// Update replaces the stored item with a copy of the given one.
func (b *MemoryBackend) Update(ctx context.Context, item *ContextItem) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *item
	b.items[item.ID] = &cp
	return nil
}

// Delete removes the item with the given ID, if present.
func (b *MemoryBackend) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.items, id)
	return nil
}

// Get returns a copy of the item for (category, key), or (nil, nil).
func (b *MemoryBackend) Get(ctx context.Context, category Category, key string) (*ContextItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, it := range b.items {
		if it.Category == category && it.Key == key {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

// List returns copies of all items in the given categories.
func (b *MemoryBackend) List(ctx context.Context, categories []Category) ([]*ContextItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	want := make(map[Category]bool, len(categories))
	for _, c := range categories {
		want[c] = true
	}

	result := make([]*ContextItem, 0, len(b.items))
	for _, it := range b.items {
		if len(want) > 0 && !want[it.Category] {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}
	return result, nil
}

// Count returns the number of stored items.
func (b *MemoryBackend) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.items), nil
}

// TouchAll marks every given ID as accessed at now.
func (b *MemoryBackend) TouchAll(ctx context.Context, ids []string, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, id := range ids {
		if it, ok := b.items[id]; ok {
			it.AccessCount++
			t := now
			it.LastAccessedAt = &t
		}
	}
	return nil
}

// Ensure MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)
