package modelrouter

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeNow() func() int64 {
	var t int64
	return func() int64 {
		t++
		return t
	}
}

func TestUseModelPrefersHighestPriority(t *testing.T) {
	r := New(10)
	r.RegisterModel("TEXT_LARGE", "slow", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return "slow", nil
	})
	r.RegisterModel("TEXT_LARGE", "fast", 5, func(ctx context.Context, params map[string]any) (any, error) {
		return "fast", nil
	})

	result, exact, provider, err := r.UseModel(context.Background(), uuid.New(), "TEXT_LARGE", "", nil, fakeNow())
	require.NoError(t, err)
	assert.Equal(t, "fast", result)
	assert.True(t, exact)
	assert.Equal(t, "fast", provider)
}

func TestUseModelTieBreaksByRegistrationOrder(t *testing.T) {
	r := New(10)
	r.RegisterModel("TEXT_LARGE", "first", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return "first", nil
	})
	r.RegisterModel("TEXT_LARGE", "second", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return "second", nil
	})

	result, _, provider, err := r.UseModel(context.Background(), uuid.New(), "TEXT_LARGE", "", nil, fakeNow())
	require.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.Equal(t, "first", provider)
}

func TestUseModelExplicitProviderOverridesPriority(t *testing.T) {
	r := New(10)
	r.RegisterModel("TEXT_LARGE", "low", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return "low", nil
	})
	r.RegisterModel("TEXT_LARGE", "high", 5, func(ctx context.Context, params map[string]any) (any, error) {
		return "high", nil
	})

	result, exact, provider, err := r.UseModel(context.Background(), uuid.New(), "TEXT_LARGE", "low", nil, fakeNow())
	require.NoError(t, err)
	assert.Equal(t, "low", result)
	assert.True(t, exact)
	assert.Equal(t, "low", provider)
}

func TestUseModelFallsBackWhenProviderUnknown(t *testing.T) {
	r := New(10)
	r.RegisterModel("TEXT_LARGE", "high", 5, func(ctx context.Context, params map[string]any) (any, error) {
		return "high", nil
	})

	result, exact, provider, err := r.UseModel(context.Background(), uuid.New(), "TEXT_LARGE", "missing", nil, fakeNow())
	require.NoError(t, err)
	assert.Equal(t, "high", result)
	assert.False(t, exact)
	assert.Equal(t, "high", provider)
}

func TestUseModelNoHandlerRegistered(t *testing.T) {
	r := New(10)
	_, _, _, err := r.UseModel(context.Background(), uuid.New(), "TEXT_LARGE", "", nil, fakeNow())
	require.Error(t, err)
}

func TestUseModelRecordsSamplesInRunLedger(t *testing.T) {
	r := New(2)
	r.RegisterModel("TEXT_LARGE", "p", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})

	runID := uuid.New()
	for i := 0; i < 3; i++ {
		_, _, _, err := r.UseModel(context.Background(), runID, "TEXT_LARGE", "", nil, fakeNow())
		require.NoError(t, err)
	}

	samples := r.RunSamples(runID)
	assert.Len(t, samples, 2, "ledger should be capped at ledgerSize")

	r.ForgetRun(runID)
	assert.Empty(t, r.RunSamples(runID))
}

func TestHasReportsRegisteredModelTypes(t *testing.T) {
	r := New(10)
	assert.False(t, r.Has("TEXT_EMBEDDING"))
	r.RegisterModel("TEXT_EMBEDDING", "p", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return []float32{0.1}, nil
	})
	assert.True(t, r.Has("TEXT_EMBEDDING"))
}

func TestUseModelPropagatesHandlerError(t *testing.T) {
	r := New(10)
	r.RegisterModel("TEXT_LARGE", "p", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return nil, assert.AnError
	})

	_, _, provider, err := r.UseModel(context.Background(), uuid.New(), "TEXT_LARGE", "", nil, fakeNow())
	require.Error(t, err)
	assert.Equal(t, "p", provider)
}
