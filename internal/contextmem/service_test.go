package contextmem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(newTestStore(t), zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestRemember_DerivesKeyFromValue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	item, err := svc.Remember(ctx, CategoryConstraint, "", "No meetings on Friday afternoons ever", SourceExplicit)
	require.NoError(t, err)
	assert.Equal(t, "no meetings on friday", item.Key)
	assert.Equal(t, SourceExplicit.BaseConfidence(), item.Confidence)
}

func TestForget_SingleKeyAcrossCategories(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Remember(ctx, CategoryPerson, "john", "colleague", SourceExplicit)
	require.NoError(t, err)
	_, err = svc.Remember(ctx, CategoryGoal, "fitness", "training", SourceExplicit)
	require.NoError(t, err)

	removed, err := svc.Forget(ctx, ForgetRequest{Key: "John"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.Forget(ctx, ForgetRequest{Key: "john"}, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

// brokenGetBackend fails every lookup, simulating an unreachable database.
type brokenGetBackend struct {
	*MemoryBackend
}

func (b *brokenGetBackend) Get(ctx context.Context, category Category, key string) (*ContextItem, error) {
	return nil, errors.New("simulated lookup failure")
}

func TestForget_SurfacesBackendFailure(t *testing.T) {
	// A failing lookup is a storage error, not a missing key. Reporting it
	// as ErrNotFound would tell the user the fact is already gone.
	store, err := NewStore(&brokenGetBackend{NewMemoryBackend()}, zap.NewNop())
	require.NoError(t, err)
	svc, err := NewService(store, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Forget(context.Background(), ForgetRequest{Key: "john"}, false)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestForget_BulkRequiresConfirmation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Remember(ctx, CategoryPerson, "john", "colleague", SourceExplicit)
	require.NoError(t, err)
	_, err = svc.Remember(ctx, CategoryGoal, "fitness", "training", SourceExplicit)
	require.NoError(t, err)

	person := CategoryPerson
	_, err = svc.Forget(ctx, ForgetRequest{Category: &person}, false)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	_, err = svc.Forget(ctx, ForgetRequest{All: true}, false)
	assert.ErrorIs(t, err, ErrNotConfirmed)

	removed, err := svc.Forget(ctx, ForgetRequest{Category: &person}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = svc.Forget(ctx, ForgetRequest{All: true}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = svc.Forget(ctx, ForgetRequest{}, true)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestRecall_TopicAndCategoryScoping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Remember(ctx, CategoryPerson, "john", "Works on the roadmap", SourceExplicit)
	require.NoError(t, err)
	_, err = svc.Remember(ctx, CategoryGoal, "fitness", "Roadmap to a half marathon", SourceExplicit)
	require.NoError(t, err)

	items, err := svc.Recall(ctx, nil, "roadmap")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	person := CategoryPerson
	items, err = svc.Recall(ctx, &person, "roadmap")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "john", items[0].Key)

	// Recall is a plain read: no access marking.
	items, err = svc.Recall(ctx, nil, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.Equal(t, 0, it.AccessCount)
		assert.Nil(t, it.LastAccessedAt)
	}
}
