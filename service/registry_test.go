package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	stopped   bool
	stopErr   error
	heartbeat time.Time
}

func (f *fakeInstance) Stop(ctx context.Context) error {
	f.stopped = true
	return f.stopErr
}

func (f *fakeInstance) Heartbeat() time.Time { return f.heartbeat }

func TestRegisterDefersUntilStoreReady(t *testing.T) {
	r := New()
	started := false
	err := r.Register(context.Background(), Definition{
		ServiceType: "wal",
		Name:        "WAL",
		Start: func(ctx context.Context) (Instance, error) {
			started = true
			return &fakeInstance{}, nil
		},
	})
	require.NoError(t, err)
	assert.False(t, started, "start should be deferred until store is ready")

	require.NoError(t, r.SetStoreReady(context.Background()))
	assert.True(t, started)
	assert.True(t, r.Has("wal"))
}

func TestGetFallsBackFromNameToType(t *testing.T) {
	r := New()
	require.NoError(t, r.SetStoreReady(context.Background()))
	inst := &fakeInstance{}
	require.NoError(t, r.Register(context.Background(), Definition{
		ServiceType: "cache",
		Start:       func(ctx context.Context) (Instance, error) { return inst, nil },
	}))

	got, ok := r.Get("cache")
	require.True(t, ok)
	assert.Same(t, inst, got)
}

func TestGetByNameIsCaseInsensitive(t *testing.T) {
	r := New()
	require.NoError(t, r.SetStoreReady(context.Background()))
	inst := &fakeInstance{}
	require.NoError(t, r.Register(context.Background(), Definition{
		ServiceType: "cache",
		Name:        "Primary",
		Start:       func(ctx context.Context) (Instance, error) { return inst, nil },
	}))

	got, ok := r.Get("primary")
	require.True(t, ok)
	assert.Same(t, inst, got)
}

func TestStopAllCollectsErrorsAndStopsEveryInstance(t *testing.T) {
	r := New()
	require.NoError(t, r.SetStoreReady(context.Background()))
	a := &fakeInstance{stopErr: errors.New("boom")}
	b := &fakeInstance{}
	require.NoError(t, r.Register(context.Background(), Definition{ServiceType: "t", Start: func(ctx context.Context) (Instance, error) { return a, nil }}))
	require.NoError(t, r.Register(context.Background(), Definition{ServiceType: "t", Start: func(ctx context.Context) (Instance, error) { return b, nil }}))

	errs := r.StopAll(context.Background())
	assert.Len(t, errs, 1)
	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
}

func TestStaleServicesReportsOldHeartbeats(t *testing.T) {
	r := New()
	require.NoError(t, r.SetStoreReady(context.Background()))
	fresh := &fakeInstance{heartbeat: time.Now()}
	stale := &fakeInstance{heartbeat: time.Now().Add(-time.Hour)}
	require.NoError(t, r.Register(context.Background(), Definition{ServiceType: "t", Start: func(ctx context.Context) (Instance, error) { return fresh, nil }}))
	require.NoError(t, r.Register(context.Background(), Definition{ServiceType: "t", Start: func(ctx context.Context) (Instance, error) { return stale, nil }}))

	result := r.StaleServices(time.Minute)
	require.Len(t, result, 1)
	assert.Same(t, stale, result[0])
}

func TestSendToRequiresRegisteredHandler(t *testing.T) {
	r := New()
	err := r.SendTo(context.Background(), "discord", "room1", "hi")
	assert.Error(t, err)

	var got string
	r.RegisterSendHandler("discord", func(ctx context.Context, target, content string) error {
		got = content
		return nil
	})
	require.NoError(t, r.SendTo(context.Background(), "discord", "room1", "hi"))
	assert.Equal(t, "hi", got)
}
