package extraction

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianapps/contextmem/internal/contextmem"
	"github.com/meridianapps/contextmem/internal/tasks"
)

// fakeTaskStore serves tasks from a map.
type fakeTaskStore struct {
	tasks map[string]*tasks.Task
}

func (f *fakeTaskStore) GetTask(ctx context.Context, id string) (*tasks.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return task, nil
}

type fixture struct {
	store     *contextmem.Store
	extractor *Extractor
	taskStore *fakeTaskStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := contextmem.NewStore(contextmem.NewMemoryBackend(), zap.NewNop())
	require.NoError(t, err)

	taskStore := &fakeTaskStore{tasks: make(map[string]*tasks.Task)}
	extractor, err := New(store, taskStore, zap.NewNop())
	require.NoError(t, err)

	return &fixture{store: store, extractor: extractor, taskStore: taskStore}
}

func (f *fixture) created(ctx context.Context, task *tasks.Task) {
	f.taskStore.tasks[task.ID] = task
	f.extractor.HandleEvent(ctx, tasks.Event{Kind: tasks.EventCreated, TaskID: task.ID})
}

func (f *fixture) completed(ctx context.Context, task *tasks.Task) {
	f.taskStore.tasks[task.ID] = task
	f.extractor.HandleEvent(ctx, tasks.Event{Kind: tasks.EventCompleted, TaskID: task.ID})
}

func TestExtractPeople(t *testing.T) {
	tests := []struct {
		name  string
		title string
		notes string
		want  []string
	}{
		{"indicator phrase", "Call Sarah about the offsite", "", []string{"sarah"}},
		{"multi-token name", "Meeting with Anna Maria Lopez", "", []string{"anna maria lopez"}},
		{"stops at lowercase token", "Lunch with Ben tomorrow", "", []string{"ben"}},
		{"stops at stop word", "Prepare slides for The review", "", nil},
		{"at handle", "Ping @erik about the deploy", "", []string{"erik"}},
		{"name in notes", "Weekly review", "ask Priya for numbers", []string{"priya"}},
		{"limit of three tokens", "Meet Jan Willem Van Der Berg", "", []string{"jan willem van"}},
		{"no mention", "Water the plants", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			f.created(ctx, &tasks.Task{ID: "t1", Title: tt.title, Notes: tt.notes})

			people, err := f.store.FetchAll(ctx, contextmem.FetchOptions{
				Categories: []contextmem.Category{contextmem.CategoryPerson},
			})
			require.NoError(t, err)

			var keys []string
			for _, it := range people {
				keys = append(keys, it.Key)
				assert.Equal(t, contextmem.SourceExtracted, it.Source)
			}
			assert.ElementsMatch(t, tt.want, keys)
		})
	}
}

func TestExtractPeople_InfersRelationship(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.created(ctx, &tasks.Task{ID: "t1", Title: "Meeting with Dana on budget"})

	item, err := f.store.Fetch(ctx, contextmem.CategoryPerson, "dana")
	require.NoError(t, err)
	require.NotNil(t, item.Metadata.Person)
	assert.Equal(t, "colleague", item.Metadata.Person.Relationship)
}

func TestExtractPeople_RepeatMentionsReinforce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.created(ctx, &tasks.Task{ID: "t1", Title: "Call Sarah"})
	f.created(ctx, &tasks.Task{ID: "t2", Title: "Email Sarah the notes"})

	item, err := f.store.Fetch(ctx, contextmem.CategoryPerson, "sarah")
	require.NoError(t, err)
	assert.Equal(t, 1, item.ReinforcementCount)

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestExtractGoals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.created(ctx, &tasks.Task{ID: "t1", Title: "Morning gym session", ListName: "Health"})

	item, err := f.store.Fetch(ctx, contextmem.CategoryGoal, "fitness")
	require.NoError(t, err)
	assert.Equal(t, contextmem.SourceInferred, item.Source)
	assert.Equal(t, contextmem.SourceInferred.BaseConfidence(), item.Confidence)
}

func TestExtractGoals_MatchesListName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.created(ctx, &tasks.Task{ID: "t1", Title: "Chapter 4", ListName: "Study plan"})

	_, err := f.store.Fetch(ctx, contextmem.CategoryGoal, "learning")
	assert.NoError(t, err)
}

func TestExtractSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scheduled := time.Date(2026, 3, 9, 9, 30, 0, 0, time.UTC)
	f.created(ctx, &tasks.Task{
		ID:          "t1",
		Title:       "Team sync every Monday",
		Recurring:   true,
		ScheduledAt: &scheduled,
	})

	// Keyword indicator.
	_, err := f.store.Fetch(ctx, contextmem.CategorySchedule, "mentions_monday")
	assert.NoError(t, err)

	// Recurrence metadata.
	_, err = f.store.Fetch(ctx, contextmem.CategorySchedule, "recurring_tasks")
	assert.NoError(t, err)

	// Time-of-day bucket: 9:30 falls in "morning".
	item, err := f.store.Fetch(ctx, contextmem.CategorySchedule, "schedules_morning")
	require.NoError(t, err)
	require.NotNil(t, item.Metadata.Schedule)
	assert.Equal(t, "morning", item.Metadata.Schedule.Bucket)
}

func TestBucketForHour(t *testing.T) {
	tests := []struct {
		hour int
		want TimeBucket
	}{
		{5, BucketEarlyMorning},
		{8, BucketMorning},
		{11, BucketMidday},
		{14, BucketAfternoon},
		{17, BucketEvening},
		{21, BucketNight},
		{2, BucketNight},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, bucketForHour(tt.hour), "hour %d", tt.hour)
	}
}

func TestExtractListUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.created(ctx, &tasks.Task{ID: "t1", Title: "Buy milk", ListName: "Groceries"})
	f.created(ctx, &tasks.Task{ID: "t2", Title: "Buy eggs", ListName: "Groceries"})

	item, err := f.store.Fetch(ctx, contextmem.CategoryPreference, "list:groceries")
	require.NoError(t, err)
	assert.Equal(t, 1, item.ReinforcementCount)
}

func TestExtractCompletion_Histograms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	completedAt := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC) // a Tuesday
	for i := 0; i < 3; i++ {
		f.completed(ctx, &tasks.Task{
			ID:          fmt.Sprintf("t%d", i),
			Title:       "Ship it",
			CompletedAt: &completedAt,
		})
	}

	hour, err := f.store.Fetch(ctx, contextmem.CategoryPattern, "completion_hour_9")
	require.NoError(t, err)
	// Every completion increments the counter; this is a histogram, not a
	// duplicate check.
	assert.Equal(t, 3, hour.DataPoints())

	day, err := f.store.Fetch(ctx, contextmem.CategoryPattern, "completion_day_tuesday")
	require.NoError(t, err)
	assert.Equal(t, 3, day.DataPoints())
}

func TestHandleEvent_TaskFetchFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Unknown task: the event is dropped, nothing is written, no panic.
	f.extractor.HandleEvent(ctx, tasks.Event{Kind: tasks.EventCreated, TaskID: "missing"})

	count, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAttach_SubscribesToBus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bus := tasks.NewBus()
	f.extractor.Attach(bus)

	f.taskStore.tasks["t1"] = &tasks.Task{ID: "t1", Title: "Call Sarah"}
	bus.Publish(ctx, tasks.Event{Kind: tasks.EventCreated, TaskID: "t1"})

	_, err := f.store.Fetch(ctx, contextmem.CategoryPerson, "sarah")
	assert.NoError(t, err)
}
