package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitRunsAllHandlersConcurrently(t *testing.T) {
	b := New()
	var n int32
	var started sync.WaitGroup
	started.Add(3)

	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		b.On("PING", "test", func(ctx context.Context, payload any) error {
			started.Done()
			<-release
			atomic.AddInt32(&n, 1)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		b.Emit(context.Background(), "PING", nil)
		close(done)
	}()

	waitOk := make(chan struct{})
	go func() {
		started.Wait()
		close(waitOk)
	}()

	select {
	case <-waitOk:
	case <-time.After(time.Second):
		t.Fatal("handlers did not start concurrently")
	}
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit did not return after handlers finished")
	}
	assert.EqualValues(t, 3, atomic.LoadInt32(&n))
}

func TestEmitOneHandlerFailureDoesNotAbortSiblings(t *testing.T) {
	b := New()
	var ran int32
	b.On("EVT", "p1", func(ctx context.Context, payload any) error {
		return errors.New("boom")
	})
	b.On("EVT", "p2", func(ctx context.Context, payload any) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	b.Emit(context.Background(), "EVT", nil)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestEmitRecoversHandlerPanic(t *testing.T) {
	b := New()
	var ran int32
	b.On("EVT", "p1", func(ctx context.Context, payload any) error {
		panic("nope")
	})
	b.On("EVT", "p2", func(ctx context.Context, payload any) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	assert.NotPanics(t, func() {
		b.Emit(context.Background(), "EVT", nil)
	})
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestNotifyRunsSequentiallyInOrderAndStopsOnError(t *testing.T) {
	b := New()
	var order []int
	b.OnEmit("tick", func(ctx context.Context, name string, payload any) error {
		order = append(order, 1)
		return nil
	})
	b.OnEmit("tick", func(ctx context.Context, name string, payload any) error {
		order = append(order, 2)
		return errors.New("stop here")
	})
	b.OnEmit("tick", func(ctx context.Context, name string, payload any) error {
		order = append(order, 3)
		return nil
	})

	err := b.Notify(context.Background(), "tick", nil)
	require.Error(t, err)
	assert.Equal(t, []int{1, 2}, order)
}

func TestNotifyOnlyFiresEmittersRegisteredUnderThatName(t *testing.T) {
	b := New()
	var tickRan, otherRan int32
	b.OnEmit("tick", func(ctx context.Context, name string, payload any) error {
		atomic.AddInt32(&tickRan, 1)
		return nil
	})
	b.OnEmit("other", func(ctx context.Context, name string, payload any) error {
		atomic.AddInt32(&otherRan, 1)
		return nil
	})

	require.NoError(t, b.Notify(context.Background(), "tick", nil))
	assert.EqualValues(t, 1, atomic.LoadInt32(&tickRan))
	assert.EqualValues(t, 0, atomic.LoadInt32(&otherRan))
}

func TestOffRemovesHandlerFromFutureEmits(t *testing.T) {
	b := New()
	var ran int32
	id := b.On("EVT", "p1", func(ctx context.Context, payload any) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	b.Emit(context.Background(), "EVT", nil)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))

	b.Off("EVT", id)
	b.Emit(context.Background(), "EVT", nil)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran), "handler should not fire after Off")
}

func TestOffEmitRemovesEmitterFromFutureNotifies(t *testing.T) {
	b := New()
	var ran int32
	id := b.OnEmit("tick", func(ctx context.Context, name string, payload any) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})

	require.NoError(t, b.Notify(context.Background(), "tick", nil))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))

	b.OffEmit("tick", id)
	require.NoError(t, b.Notify(context.Background(), "tick", nil))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran), "emitter should not fire after OffEmit")
}

func TestGetEventReturnsRegisteredHandlersInOrder(t *testing.T) {
	b := New()
	assert.Empty(t, b.GetEvent("EVT"))

	var calls []string
	b.On("EVT", "p1", func(ctx context.Context, payload any) error { calls = append(calls, "p1"); return nil })
	b.On("EVT", "p2", func(ctx context.Context, payload any) error { calls = append(calls, "p2"); return nil })

	handlers := b.GetEvent("EVT")
	require.Len(t, handlers, 2)
	for _, h := range handlers {
		require.NoError(t, h(context.Background(), nil))
	}
	assert.Equal(t, []string{"p1", "p2"}, calls)
}

func TestEmitUnregisteredEventIsNoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() {
		b.Emit(context.Background(), "NOTHING", nil)
	})
}
