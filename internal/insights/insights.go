// Package insights is the read-side of the context memory: it aggregates
// pattern, goal, person, and preference items into human-readable,
// confidence-ranked insights and a compact prompt summary. It never writes
// to the store, and treats every store error as non-fatal.
package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/meridianapps/contextmem/internal/contextmem"
)

const (
	// minConfidence filters noise out of aggregation reads.
	minConfidence = 0.25

	// hourKeyPrefix and dayKeyPrefix are the histogram key shapes the
	// extractor writes.
	hourKeyPrefix = "completion_hour_"
	dayKeyPrefix  = "completion_day_"

	// listKeyPrefix is the key shape of list-usage preference items.
	listKeyPrefix = "list:"

	// maxDerivedConfidence caps the saturating data-point confidence.
	maxDerivedConfidence = 0.95
)

// Peak is one hour-of-day productivity bucket, ranked by observation count.
type Peak struct {
	Hour       int `json:"hour"`
	DataPoints int `json:"data_points"`
}

// DayActivity is one weekday activity bucket.
type DayActivity struct {
	Day        string `json:"day"`
	DataPoints int    `json:"data_points"`
}

// ListUsage is one list ranked by how often tasks land in it.
type ListUsage struct {
	List           string `json:"list"`
	Reinforcements int    `json:"reinforcements"`
}

// Insight is one synthesized natural-language observation. Confidence is
// derived from the underlying data-point count, independent of the stored
// confidence of the items it came from.
type Insight struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Aggregator reads the store and synthesizes insights.
type Aggregator struct {
	store  *contextmem.Store
	logger *zap.Logger
}

// NewAggregator creates an aggregator over a store.
func NewAggregator(store *contextmem.Store, logger *zap.Logger) (*Aggregator, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{store: store, logger: logger}, nil
}

// ProductivityPeaks ranks completion hours by summed data points.
func (a *Aggregator) ProductivityPeaks(ctx context.Context) ([]Peak, error) {
	items, err := a.patternItems(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[int]int)
	for _, it := range items {
		hour, ok := parseSuffixInt(it.Key, hourKeyPrefix)
		if !ok {
			continue
		}
		totals[hour] += it.DataPoints()
	}

	peaks := make([]Peak, 0, len(totals))
	for hour, points := range totals {
		peaks = append(peaks, Peak{Hour: hour, DataPoints: points})
	}
	sort.SliceStable(peaks, func(i, j int) bool {
		if peaks[i].DataPoints != peaks[j].DataPoints {
			return peaks[i].DataPoints > peaks[j].DataPoints
		}
		return peaks[i].Hour < peaks[j].Hour
	})
	return peaks, nil
}

// ActiveDays ranks weekdays by summed completion data points.
func (a *Aggregator) ActiveDays(ctx context.Context) ([]DayActivity, error) {
	items, err := a.patternItems(ctx)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int)
	for _, it := range items {
		if !strings.HasPrefix(it.Key, dayKeyPrefix) {
			continue
		}
		day := strings.TrimPrefix(it.Key, dayKeyPrefix)
		totals[day] += it.DataPoints()
	}

	days := make([]DayActivity, 0, len(totals))
	for day, points := range totals {
		days = append(days, DayActivity{Day: day, DataPoints: points})
	}
	sort.SliceStable(days, func(i, j int) bool {
		if days[i].DataPoints != days[j].DataPoints {
			return days[i].DataPoints > days[j].DataPoints
		}
		return days[i].Day < days[j].Day
	})
	return days, nil
}

// TopGoals returns the highest effective-confidence goal items.
func (a *Aggregator) TopGoals(ctx context.Context, limit int) ([]*contextmem.ContextItem, error) {
	return a.store.FetchAll(ctx, contextmem.FetchOptions{
		Categories:             []contextmem.Category{contextmem.CategoryGoal},
		MinEffectiveConfidence: minConfidence,
		Limit:                  limit,
	})
}

// TopPeople returns person items ranked by reinforcement count, how often
// they keep coming up, not how confident any single mention was.
func (a *Aggregator) TopPeople(ctx context.Context, limit int) ([]*contextmem.ContextItem, error) {
	items, err := a.store.FetchAll(ctx, contextmem.FetchOptions{
		Categories:             []contextmem.Category{contextmem.CategoryPerson},
		MinEffectiveConfidence: minConfidence,
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ReinforcementCount > items[j].ReinforcementCount
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ListRanking ranks lists by how often tasks were filed into them, parsed
// from list-usage preference keys.
func (a *Aggregator) ListRanking(ctx context.Context) ([]ListUsage, error) {
	items, err := a.store.FetchAll(ctx, contextmem.FetchOptions{
		Categories:             []contextmem.Category{contextmem.CategoryPreference},
		MinEffectiveConfidence: minConfidence,
	})
	if err != nil {
		return nil, err
	}

	var usage []ListUsage
	for _, it := range items {
		if !strings.HasPrefix(it.Key, listKeyPrefix) {
			continue
		}
		usage = append(usage, ListUsage{
			List:           strings.TrimPrefix(it.Key, listKeyPrefix),
			Reinforcements: it.ReinforcementCount + 1, // creation counts as one use
		})
	}
	sort.SliceStable(usage, func(i, j int) bool {
		if usage[i].Reinforcements != usage[j].Reinforcements {
			return usage[i].Reinforcements > usage[j].Reinforcements
		}
		return usage[i].List < usage[j].List
	})
	return usage, nil
}

// GenerateInsights synthesizes the full insight list, sorted by derived
// confidence descending. Store errors degrade to fewer insights rather than
// failing the call.
func (a *Aggregator) GenerateInsights(ctx context.Context) []Insight {
	var out []Insight

	if peaks, err := a.ProductivityPeaks(ctx); err != nil {
		a.logger.Warn("productivity peaks unavailable", zap.Error(err))
	} else if len(peaks) > 0 {
		top := peaks[0]
		out = append(out, Insight{
			Text:       fmt.Sprintf("You are most productive around %d:00.", top.Hour),
			Confidence: derivedConfidence(top.DataPoints),
		})
	}

	if days, err := a.ActiveDays(ctx); err != nil {
		a.logger.Warn("active days unavailable", zap.Error(err))
	} else if len(days) > 0 {
		top := days[0]
		out = append(out, Insight{
			Text:       fmt.Sprintf("You complete the most tasks on %ss.", capitalize(top.Day)),
			Confidence: derivedConfidence(top.DataPoints),
		})
	}

	if goals, err := a.TopGoals(ctx, 2); err != nil {
		a.logger.Warn("top goals unavailable", zap.Error(err))
	} else if len(goals) > 0 {
		names := make([]string, len(goals))
		for i, g := range goals {
			names[i] = g.Key
		}
		out = append(out, Insight{
			Text:       fmt.Sprintf("Your tasks center on %s.", strings.Join(names, " and ")),
			Confidence: derivedConfidence(len(goals) * 2),
		})
	}

	if people, err := a.TopPeople(ctx, 1); err != nil {
		a.logger.Warn("top people unavailable", zap.Error(err))
	} else if len(people) > 0 {
		p := people[0]
		out = append(out, Insight{
			Text:       fmt.Sprintf("%s comes up often in your tasks.", capitalize(p.Key)),
			Confidence: derivedConfidence(p.ReinforcementCount),
		})
	}

	if lists, err := a.ListRanking(ctx); err != nil {
		a.logger.Warn("list ranking unavailable", zap.Error(err))
	} else if len(lists) > 0 {
		l := lists[0]
		out = append(out, Insight{
			Text:       fmt.Sprintf("Most of your tasks go into the %q list.", l.List),
			Confidence: derivedConfidence(l.Reinforcements),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// PromptSummary compresses the top insights into one line for injection
// into an LLM system prompt: top peak, top day, and up to two goals. Returns
// an empty string when there is nothing to say.
func (a *Aggregator) PromptSummary(ctx context.Context) string {
	var parts []string

	if peaks, err := a.ProductivityPeaks(ctx); err == nil && len(peaks) > 0 {
		parts = append(parts, fmt.Sprintf("most productive around %d:00", peaks[0].Hour))
	}
	if days, err := a.ActiveDays(ctx); err == nil && len(days) > 0 {
		parts = append(parts, fmt.Sprintf("most active on %ss", days[0].Day))
	}
	if goals, err := a.TopGoals(ctx, 2); err == nil && len(goals) > 0 {
		names := make([]string, len(goals))
		for i, g := range goals {
			names[i] = g.Key
		}
		parts = append(parts, "goals: "+strings.Join(names, ", "))
	}

	if len(parts) == 0 {
		return ""
	}
	return "User context: " + strings.Join(parts, "; ") + "."
}

// patternItems fetches pattern-category items above the noise floor.
func (a *Aggregator) patternItems(ctx context.Context) ([]*contextmem.ContextItem, error) {
	return a.store.FetchAll(ctx, contextmem.FetchOptions{
		Categories:             []contextmem.Category{contextmem.CategoryPattern},
		MinEffectiveConfidence: minConfidence,
	})
}

// derivedConfidence saturates in the number of data points:
//
//	1 - 2^(-n/4)
//
// Two observations give ~0.29, four give 0.5, twelve give ~0.87. Capped at
// 0.95; aggregated behavior is never a certainty.
func derivedConfidence(dataPoints int) float64 {
	if dataPoints <= 0 {
		return 0
	}
	c := 1 - math.Exp2(-float64(dataPoints)/4)
	if c > maxDerivedConfidence {
		return maxDerivedConfidence
	}
	return c
}

// parseSuffixInt extracts the integer suffix after a key prefix.
func parseSuffixInt(key, prefix string) (int, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(key, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
