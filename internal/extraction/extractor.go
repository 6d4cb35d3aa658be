// Package extraction derives context items from task lifecycle events using
// rule-based signal detection over task titles, notes, schedules, and
// completion times.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/meridianapps/contextmem/internal/contextmem"
	"github.com/meridianapps/contextmem/internal/tasks"
)

// Extractor converts task lifecycle events into context store writes using
// fixed rules, with no ML and no network. Every write is an upsert, so repeated
// observations reinforce existing items instead of duplicating them.
//
// Extraction is strictly best-effort: all failures are logged and swallowed.
// Nothing here may ever propagate an error into, or block, the task mutation
// that triggered the event.
type Extractor struct {
	store     *contextmem.Store
	taskStore tasks.TaskStore
	logger    *zap.Logger
}

// New creates a signal extractor.
func New(store *contextmem.Store, taskStore tasks.TaskStore, logger *zap.Logger) (*Extractor, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if taskStore == nil {
		return nil, fmt.Errorf("task store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{store: store, taskStore: taskStore, logger: logger}, nil
}

// Attach subscribes the extractor to a task event bus.
func (e *Extractor) Attach(bus *tasks.Bus) {
	bus.Subscribe(e.HandleEvent)
}

// HandleEvent processes one task lifecycle event. The event carries only the
// task ID; the current task fields are re-fetched from the task store.
func (e *Extractor) HandleEvent(ctx context.Context, ev tasks.Event) {
	task, err := e.taskStore.GetTask(ctx, ev.TaskID)
	if err != nil {
		e.logger.Warn("extraction skipped, task fetch failed",
			zap.String("task_id", ev.TaskID),
			zap.Error(err))
		return
	}

	switch ev.Kind {
	case tasks.EventCreated:
		e.extractFromTask(ctx, task)
	case tasks.EventCompleted:
		e.extractFromTask(ctx, task)
		e.extractCompletion(ctx, task)
	default:
		e.logger.Debug("ignoring unknown event kind", zap.String("kind", string(ev.Kind)))
	}
}

// extractFromTask runs the text and metadata rules on created or modified
// tasks: person mentions, goal alignment, schedule signals, list usage.
func (e *Extractor) extractFromTask(ctx context.Context, task *tasks.Task) {
	text := task.Title
	if task.Notes != "" {
		text += " " + task.Notes
	}

	e.extractPeople(ctx, task, text)
	e.extractGoals(ctx, task, text)
	e.extractSchedule(ctx, task, text)
	e.extractListUsage(ctx, task)
}

// extractPeople finds person mentions: an indicator phrase followed by up to
// three consecutive capitalized tokens, or an @handle.
func (e *Extractor) extractPeople(ctx context.Context, task *tasks.Task, text string) {
	for name, relationship := range mentionedPeople(text) {
		var meta contextmem.Metadata
		if relationship != "" {
			meta.Person = &contextmem.PersonMeta{Relationship: relationship}
		}
		value := fmt.Sprintf("Mentioned in task %q", task.Title)
		e.upsert(ctx, contextmem.CategoryPerson, name, value, contextmem.SourceExtracted, meta)
	}
}

// mentionedPeople scans text and returns candidate names mapped to an
// inferred relationship tag (possibly empty).
func mentionedPeople(text string) map[string]string {
	found := make(map[string]string)

	// @handles match regardless of capitalization.
	for _, tok := range strings.Fields(text) {
		if strings.HasPrefix(tok, "@") && len(tok) > 1 {
			name := strings.ToLower(strings.Trim(tok[1:], ".,;:!?"))
			if name != "" {
				found[name] = ""
			}
		}
	}

	lower := strings.ToLower(text)
	for _, indicator := range personIndicators {
		offset := 0
		for {
			idx := strings.Index(lower[offset:], indicator)
			if idx < 0 {
				break
			}
			start := offset + idx + len(indicator)
			offset = start

			name := collectName(text[start:])
			if name != "" {
				key := strings.ToLower(name)
				if _, seen := found[key]; !seen || found[key] == "" {
					found[key] = relationshipByIndicator[indicator]
				}
			}
		}
	}
	return found
}

// collectName greedily takes consecutive capitalized tokens from the start
// of text, stopping at the first lowercase token, stop word, or the 3-token
// limit.
func collectName(text string) string {
	var parts []string
	for _, tok := range strings.Fields(text) {
		cleaned := strings.Trim(tok, ".,;:!?()\"'")
		if cleaned == "" {
			break
		}
		runes := []rune(cleaned)
		if !unicode.IsUpper(runes[0]) {
			break
		}
		if nameStopWords[strings.ToLower(cleaned)] {
			break
		}
		parts = append(parts, cleaned)
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, " ")
}

// extractGoals matches task text and list name against the goal vocabulary.
func (e *Extractor) extractGoals(ctx context.Context, task *tasks.Task, text string) {
	lower := strings.ToLower(text + " " + task.ListName)
	for theme, keywords := range goalVocabulary {
		kw, ok := containsKeyword(lower, keywords)
		if !ok {
			continue
		}
		value := fmt.Sprintf("Works on %s tasks (e.g. %q)", theme, kw)
		e.upsert(ctx, contextmem.CategoryGoal, theme, value, contextmem.SourceInferred, contextmem.Metadata{})
	}
}

// extractSchedule records schedule habits from keywords, explicit recurrence
// metadata, and the time-of-day bucket of any scheduled time.
func (e *Extractor) extractSchedule(ctx context.Context, task *tasks.Task, text string) {
	lower := strings.ToLower(text)

	if kw, ok := containsKeyword(lower, scheduleKeywords); ok {
		value := fmt.Sprintf("Task text mentions %q", kw)
		e.upsert(ctx, contextmem.CategorySchedule, "mentions_"+kw, value, contextmem.SourceInferred, contextmem.Metadata{})
	}

	if task.Recurring {
		e.upsert(ctx, contextmem.CategorySchedule, "recurring_tasks",
			"Sets up recurring tasks", contextmem.SourceInferred, contextmem.Metadata{})
	}

	if task.ScheduledAt != nil {
		bucket := bucketForHour(task.ScheduledAt.Hour())
		meta := contextmem.Metadata{Schedule: &contextmem.ScheduleMeta{Bucket: string(bucket)}}
		value := fmt.Sprintf("Schedules tasks in the %s", strings.ReplaceAll(string(bucket), "_", " "))
		e.upsert(ctx, contextmem.CategorySchedule, "schedules_"+string(bucket), value, contextmem.SourceExtracted, meta)
	}
}

// extractListUsage reinforces a preference item for the task's list.
func (e *Extractor) extractListUsage(ctx context.Context, task *tasks.Task) {
	if task.ListName == "" {
		return
	}
	key := "list:" + strings.ToLower(task.ListName)
	value := fmt.Sprintf("Uses list %q", task.ListName)
	e.upsert(ctx, contextmem.CategoryPreference, key, value, contextmem.SourceExtracted, contextmem.Metadata{})
}

// extractCompletion reinforces the two completion histograms (hour of day
// and weekday) on every completed task. Each completion increments the
// pattern's data-point counter; this is a histogram, not a dedup check.
func (e *Extractor) extractCompletion(ctx context.Context, task *tasks.Task) {
	completedAt := time.Now()
	if task.CompletedAt != nil {
		completedAt = *task.CompletedAt
	}

	meta := contextmem.Metadata{Pattern: &contextmem.PatternMeta{
		DataPoints:   1,
		LastObserved: completedAt,
	}}

	hourKey := fmt.Sprintf("completion_hour_%d", completedAt.Hour())
	hourValue := fmt.Sprintf("Completes tasks around %d:00", completedAt.Hour())
	e.upsert(ctx, contextmem.CategoryPattern, hourKey, hourValue, contextmem.SourceExtracted, meta)

	day := strings.ToLower(completedAt.Weekday().String())
	dayMeta := contextmem.Metadata{Pattern: &contextmem.PatternMeta{
		DataPoints:   1,
		LastObserved: completedAt,
	}}
	dayValue := fmt.Sprintf("Completes tasks on %ss", completedAt.Weekday())
	e.upsert(ctx, contextmem.CategoryPattern, "completion_day_"+day, dayValue, contextmem.SourceExtracted, dayMeta)
}

// upsert writes one signal, logging and swallowing any failure.
func (e *Extractor) upsert(ctx context.Context, category contextmem.Category, key, value string, source contextmem.Source, meta contextmem.Metadata) {
	if _, err := e.store.Upsert(ctx, category, key, value, source, meta); err != nil {
		e.logger.Warn("signal upsert failed",
			zap.String("category", string(category)),
			zap.String("key", key),
			zap.Error(err))
	}
}
