package contextmem

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies what kind of knowledge a context item records.
type Category string

const (
	// CategoryPerson records a person the user mentions or works with.
	CategoryPerson Category = "person"

	// CategoryPreference records how the user likes to organize their work
	// (e.g., which lists they actually use).
	CategoryPreference Category = "preference"

	// CategorySchedule records schedule habits (recurring days, times of day).
	CategorySchedule Category = "schedule"

	// CategoryGoal records a longer-term goal the user's tasks align with.
	CategoryGoal Category = "goal"

	// CategoryConstraint records a standing constraint ("no meetings on Fridays").
	CategoryConstraint Category = "constraint"

	// CategoryPattern records an observed behavioral pattern backed by a
	// data-point counter (e.g., completion-hour histograms).
	CategoryPattern Category = "pattern"

	// CategoryOther is the escape hatch for items that fit no closed category.
	// It is the only category allowed to carry free-form metadata.
	CategoryOther Category = "other"
)

// AllCategories lists every valid category.
var AllCategories = []Category{
	CategoryPerson,
	CategoryPreference,
	CategorySchedule,
	CategoryGoal,
	CategoryConstraint,
	CategoryPattern,
	CategoryOther,
}

// ParseCategory converts a raw string into a Category.
// Unknown values are rejected rather than silently defaulted.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllCategories {
		if c == known {
			return c, nil
		}
	}
	return "", invalidDataf("unknown category %q", raw)
}

// Valid reports whether the category is one of the closed set.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Source records how an item entered the store. Trust decreases from
// explicit user statements down to passively extracted signals, and the
// source drives both the initial confidence of a new item and how far each
// reinforcement moves the confidence.
type Source string

const (
	// SourceExplicit marks knowledge the user stated directly ("remember that...").
	SourceExplicit Source = "explicit"

	// SourceInferred marks knowledge derived by a heuristic with decent priors
	// (goal vocabulary match, recurrence flag).
	SourceInferred Source = "inferred"

	// SourceExtracted marks knowledge scraped from task text by pattern rules.
	SourceExtracted Source = "extracted"
)

// ParseSource converts a raw string into a Source, rejecting unknown values.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case SourceExplicit, SourceInferred, SourceExtracted:
		return s, nil
	}
	return "", invalidDataf("unknown source %q", raw)
}

// Valid reports whether the source is one of the closed set.
func (s Source) Valid() bool {
	switch s {
	case SourceExplicit, SourceInferred, SourceExtracted:
		return true
	}
	return false
}

// BaseConfidence is the confidence assigned to a brand-new item from this source.
func (s Source) BaseConfidence() float64 {
	switch s {
	case SourceExplicit:
		return 0.9
	case SourceInferred:
		return 0.6
	default:
		return 0.4
	}
}

// BoostFactor is the fraction of the remaining headroom (1 - confidence)
// gained on each reinforcement. Repeated weak signals still converge toward
// 1.0, but an explicit statement moves confidence further per step.
func (s Source) BoostFactor() float64 {
	switch s {
	case SourceExplicit:
		return 0.25
	case SourceInferred:
		return 0.15
	default:
		return 0.08
	}
}

// PatternMeta is the payload for CategoryPattern items. DataPoints counts
// underlying observations, not reinforcement calls; the two can differ when
// a single reinforcement carries several observations.
type PatternMeta struct {
	DataPoints   int       `json:"data_points"`
	LastObserved time.Time `json:"last_observed"`
}

// PersonMeta is the payload for CategoryPerson items.
type PersonMeta struct {
	// Relationship is an inferred tag such as "colleague" or "family".
	Relationship string `json:"relationship,omitempty"`
}

// ScheduleMeta is the payload for CategorySchedule items.
type ScheduleMeta struct {
	// Bucket is one of the six time-of-day buckets, when the item came from
	// time bucketing rather than a keyword match.
	Bucket string `json:"bucket,omitempty"`
}

// Metadata is the closed per-category payload attached to an item. Exactly
// one typed field is expected to be set, matching the item's category; Extra
// is reserved for CategoryOther.
type Metadata struct {
	Pattern  *PatternMeta      `json:"pattern,omitempty"`
	Person   *PersonMeta       `json:"person,omitempty"`
	Schedule *ScheduleMeta     `json:"schedule,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// IsZero reports whether no payload is set.
func (m Metadata) IsZero() bool {
	return m.Pattern == nil && m.Person == nil && m.Schedule == nil && len(m.Extra) == 0
}

// validFor checks that the payload shape matches the category.
func (m Metadata) validFor(c Category) error {
	if len(m.Extra) > 0 && c != CategoryOther {
		return invalidDataf("free-form metadata is only valid for category %q", CategoryOther)
	}
	if m.Pattern != nil && c != CategoryPattern {
		return invalidDataf("pattern metadata is not valid for category %q", c)
	}
	if m.Person != nil && c != CategoryPerson {
		return invalidDataf("person metadata is not valid for category %q", c)
	}
	if m.Schedule != nil && c != CategorySchedule && c != CategoryPattern {
		return invalidDataf("schedule metadata is not valid for category %q", c)
	}
	return nil
}

// MaxValueLen bounds the free-text value of an item.
const MaxValueLen = 1024

// ContextItem is the single entity of the context memory: one
// (category, key) -> value record with a confidence score.
//
// Identity is the (Category, Key) pair; Key is normalized (lower-cased,
// trimmed) before any comparison or write. A second write to an existing
// pair always reinforces the item rather than inserting a duplicate.
type ContextItem struct {
	// ID is the unique item identifier (UUID).
	ID string `json:"id" gorm:"primaryKey"`

	// Category classifies the item; part of its identity.
	Category Category `json:"category" gorm:"index:idx_category_key,unique"`

	// Key is the normalized identifier, unique within a category.
	Key string `json:"key" gorm:"index:idx_category_key,unique"`

	// Value is the free-text description. Reinforcement appends new
	// information only when it is not already a case-insensitive substring.
	Value string `json:"value"`

	// Source records how the item entered the store.
	Source Source `json:"source"`

	// Confidence is the persisted base confidence in [0.0, 1.0]. Reads that
	// filter or rank by confidence use the effective (decayed) value instead.
	Confidence float64 `json:"confidence"`

	// CreatedAt is when the item was first observed.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the item was last written (created or reinforced).
	UpdatedAt time.Time `json:"updated_at"`

	// LastAccessedAt is when the item was last returned by the ranker.
	// Nil until the first ranked retrieval.
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// AccessCount tracks ranked retrievals. Only reads advance it.
	AccessCount int `json:"access_count"`

	// ReinforcementCount tracks how many times the item has been reinforced.
	ReinforcementCount int `json:"reinforcement_count"`

	// Metadata is the category-specific structured payload.
	Metadata Metadata `json:"metadata" gorm:"serializer:json"`
}

// NormalizeKey lower-cases and trims an item key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// NewContextItem builds a validated item with a generated UUID, the source's
// base confidence, zero counters, and current timestamps.
func NewContextItem(category Category, key, value string, source Source, meta Metadata) (*ContextItem, error) {
	if !category.Valid() {
		return nil, invalidDataf("unknown category %q", category)
	}
	if !source.Valid() {
		return nil, invalidDataf("unknown source %q", source)
	}
	key = NormalizeKey(key)
	if key == "" {
		return nil, invalidDataf("key cannot be empty")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, invalidDataf("value cannot be empty")
	}
	if len(value) > MaxValueLen {
		return nil, invalidDataf("value exceeds %d bytes", MaxValueLen)
	}
	if err := meta.validFor(category); err != nil {
		return nil, err
	}

	now := time.Now()
	return &ContextItem{
		ID:         uuid.New().String(),
		Category:   category,
		Key:        key,
		Value:      value,
		Source:     source,
		Confidence: source.BaseConfidence(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Metadata:   meta,
	}, nil
}

// DataPoints returns the pattern data-point counter, or 0 when the item
// carries no pattern payload.
func (it *ContextItem) DataPoints() int {
	if it.Metadata.Pattern == nil {
		return 0
	}
	return it.Metadata.Pattern.DataPoints
}

// referenceTime is the timestamp staleness is measured from: last access when
// the item has ever been read, creation time otherwise.
func (it *ContextItem) referenceTime() time.Time {
	if it.LastAccessedAt != nil {
		return *it.LastAccessedAt
	}
	return it.CreatedAt
}
