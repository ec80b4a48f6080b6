package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/kernel/provider"
	"github.com/coreagent/kernel/store"
)

type fakeRuntime struct{}

func (fakeRuntime) UseModel(ctx context.Context, modelType string, params map[string]any) (any, error) {
	return nil, nil
}

type fnAction struct {
	name    string
	similes []string
	handler Handler
}

func (f *fnAction) Name() string      { return f.name }
func (f *fnAction) Similes() []string { return f.similes }
func (f *fnAction) Handler() Handler  { return f.handler }

func newTestEngine(t *testing.T, maxWM int) (*Engine, store.Store) {
	t.Helper()
	st := store.NewMemStore()
	require.NoError(t, st.Init(context.Background()))
	composer := provider.NewComposer()
	return NewEngine(composer, st, maxWM, 5*time.Second), st
}

func TestProcessSingleActionSuccess(t *testing.T) {
	eng, st := newTestEngine(t, 50)
	eng.RegisterAction(&fnAction{
		name: "GREET",
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			return &Result{Text: "hi"}, nil
		},
	})

	turn := Turn{Message: provider.Message{ID: uuid.New(), RoomID: uuid.New()}, EntityID: uuid.New()}
	outcome, err := eng.Process(context.Background(), fakeRuntime{}, turn, []Response{{Actions: []string{"GREET"}}})
	require.NoError(t, err)

	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "hi", outcome.Results[0].Text)
	assert.True(t, outcome.Results[0].Success)
	assert.Nil(t, outcome.Plan, "single-action turns do not build a plan")

	logs, err := st.GetLogs(context.Background(), turn.Message.RoomID, "action", 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestProcessTwoActionsSecondFailsNonCritically(t *testing.T) {
	eng, _ := newTestEngine(t, 50)
	var postSawURL any
	eng.RegisterAction(&fnAction{
		name: "FETCH",
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			return &Result{Values: map[string]any{"url": "x"}}, nil
		},
	})
	eng.RegisterAction(&fnAction{
		name: "POST",
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			postSawURL = state.Values["url"]
			return nil, errors.New("boom")
		},
	})

	turn := Turn{Message: provider.Message{ID: uuid.New(), RoomID: uuid.New()}, EntityID: uuid.New()}
	outcome, err := eng.Process(context.Background(), fakeRuntime{}, turn, []Response{{Actions: []string{"FETCH", "POST"}}})
	require.NoError(t, err, "non-critical failures do not abort the turn")

	require.NotNil(t, outcome.Plan)
	assert.Equal(t, 2, outcome.Plan.CurrentStep)
	assert.Equal(t, StepCompleted, outcome.Plan.Steps[0].Status)
	assert.Equal(t, StepFailed, outcome.Plan.Steps[1].Status)
	require.Len(t, outcome.Results, 2)
	assert.False(t, outcome.Results[1].Success)
	assert.Equal(t, "POST", outcome.Results[1].Data["actionName"])
	assert.Equal(t, "x", postSawURL, "POST should see the url FETCH produced via state.Values")
}

func TestProcessCriticalErrorAbortsTurn(t *testing.T) {
	eng, _ := newTestEngine(t, 50)
	eng.RegisterAction(&fnAction{
		name: "POST",
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			return nil, &CriticalError{Err: errors.New("fatal")}
		},
	})
	eng.RegisterAction(&fnAction{
		name: "NEVER_RUNS",
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			t.Fatal("should not run after a critical error")
			return nil, nil
		},
	})

	turn := Turn{Message: provider.Message{ID: uuid.New(), RoomID: uuid.New()}, EntityID: uuid.New()}
	outcome, err := eng.Process(context.Background(), fakeRuntime{}, turn, []Response{{Actions: []string{"POST", "NEVER_RUNS"}}})
	require.Error(t, err)
	require.NotNil(t, outcome.Plan)
	assert.Equal(t, StepFailed, outcome.Plan.Steps[0].Status)
	assert.Equal(t, StepPending, outcome.Plan.Steps[1].Status)
}

func TestProcessResolvesActionViaExactSimile(t *testing.T) {
	eng, _ := newTestEngine(t, 50)
	var ran bool
	eng.RegisterAction(&fnAction{
		name:    "GREET",
		similes: []string{"sayhi"},
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			ran = true
			return &Result{Text: "hi"}, nil
		},
	})

	turn := Turn{Message: provider.Message{ID: uuid.New(), RoomID: uuid.New()}, EntityID: uuid.New()}
	_, err := eng.Process(context.Background(), fakeRuntime{}, turn, []Response{{Actions: []string{"SAY_HI"}}})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestWorkingMemoryEvictsOldestByTimestamp(t *testing.T) {
	wm := NewWorkingMemory(3)
	wm.Insert("k1", WorkingMemoryEntry{ActionName: "A", Timestamp: 1})
	wm.Insert("k2", WorkingMemoryEntry{ActionName: "A", Timestamp: 2})
	wm.Insert("k3", WorkingMemoryEntry{ActionName: "A", Timestamp: 3})
	wm.Insert("k4", WorkingMemoryEntry{ActionName: "A", Timestamp: 4})

	assert.Equal(t, 3, wm.Len())
	snap := wm.Snapshot()
	_, hasK1 := snap["k1"]
	assert.False(t, hasK1)
	for _, k := range []string{"k2", "k3", "k4"} {
		_, ok := snap[k]
		assert.True(t, ok, k)
	}
}

func TestUnknownActionRecordsFailedStepAndContinues(t *testing.T) {
	eng, _ := newTestEngine(t, 50)
	eng.RegisterAction(&fnAction{
		name: "GREET",
		handler: func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
			return &Result{Text: "hi"}, nil
		},
	})

	turn := Turn{Message: provider.Message{ID: uuid.New(), RoomID: uuid.New()}, EntityID: uuid.New()}
	outcome, err := eng.Process(context.Background(), fakeRuntime{}, turn, []Response{{Actions: []string{"NOPE", "GREET"}}})
	require.NoError(t, err)
	require.NotNil(t, outcome.Plan)
	assert.Equal(t, StepFailed, outcome.Plan.Steps[0].Status)
	assert.Equal(t, StepCompleted, outcome.Plan.Steps[1].Status)
}
