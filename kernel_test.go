package kernel

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreagent/kernel/action"
	"github.com/coreagent/kernel/provider"
	"github.com/coreagent/kernel/service"
	"github.com/coreagent/kernel/store"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k, err := New(Config{
		Store:     store.NewMemStore(),
		AgentName: "test-agent",
	})
	require.NoError(t, err)
	return k
}

func TestInitializeIsIdempotent(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	require.NoError(t, k.Initialize(ctx))
	require.NotNil(t, k.Agent())
	assert.True(t, k.IsReady(ctx))

	firstAgentID := k.Agent().ID
	require.NoError(t, k.Initialize(ctx))
	assert.Equal(t, firstAgentID, k.Agent().ID)
}

func TestInitializeBootstrapsSelfIdentity(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	require.NoError(t, k.Initialize(ctx))

	agent := k.Agent()
	require.NotNil(t, agent)

	entities, err := k.GetEntitiesByIDs(ctx, []uuid.UUID{agent.ID})
	require.NoError(t, err)
	require.Len(t, entities, 1)

	rooms, err := k.GetRoomsByIDs(ctx, []uuid.UUID{agent.ID})
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, store.RoomTypeSelf, rooms[0].Type)

	participants, err := k.GetParticipantsForRoom(ctx, agent.ID)
	require.NoError(t, err)
	assert.Contains(t, participants, agent.ID)
}

func TestGetSettingResolutionOrder(t *testing.T) {
	k, err := New(Config{
		Store:     store.NewMemStore(),
		AgentName: "settings-agent",
		Settings: map[string]any{
			"topLevel": "value",
			"flag":     "true",
		},
		Secrets: map[string]string{
			"apiKey": "sk-test",
		},
	})
	require.NoError(t, err)

	v, ok := k.GetSetting("apiKey")
	require.True(t, ok)
	assert.Equal(t, "sk-test", v)

	v, ok = k.GetSetting("topLevel")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	v, ok = k.GetSetting("flag")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, ok = k.GetSetting("missing")
	assert.False(t, ok)
}

func TestSetSettingRoundTripsNestedPath(t *testing.T) {
	k := newTestKernel(t)

	k.SetSetting("provider.model", "claude-test", false)
	v, ok := k.GetSetting("provider.model")
	require.True(t, ok)
	assert.Equal(t, "claude-test", v)

	k.SetSetting("topSecret", "shh", true)
	v, ok = k.GetSetting("topSecret")
	require.True(t, ok)
	assert.Equal(t, "shh", v)
}

func TestModelRouterPriorityAndProviderResolution(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	var called []string
	k.RegisterModel("TEXT_LARGE", "low-priority", 1, func(ctx context.Context, params map[string]any) (any, error) {
		called = append(called, "low-priority")
		return "low", nil
	})
	k.RegisterModel("TEXT_LARGE", "high-priority", 10, func(ctx context.Context, params map[string]any) (any, error) {
		called = append(called, "high-priority")
		return "high", nil
	})

	turnCtx := k.StartRun()

	result, err := k.UseModel(ctx, turnCtx, "TEXT_LARGE", map[string]any{"prompt": "hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, "high", result)
	assert.Equal(t, []string{"high-priority"}, called)

	called = nil
	result, err = k.UseModel(ctx, turnCtx, "TEXT_LARGE", map[string]any{"prompt": "hi"}, "low-priority")
	require.NoError(t, err)
	assert.Equal(t, "low", result)
	assert.Equal(t, []string{"low-priority"}, called)
}

func TestUseModelLogsAndFailsCleanly(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	require.NoError(t, k.Initialize(ctx))

	k.RegisterModel("TEXT_SMALL", "stub", 1, func(ctx context.Context, params map[string]any) (any, error) {
		return "ok", nil
	})

	turnCtx := k.StartRun()
	_, err := k.UseModel(ctx, turnCtx, "TEXT_SMALL", map[string]any{"prompt": "ping"}, "")
	require.NoError(t, err)

	logs, err := k.GetLogs(ctx, k.Agent().ID, "useModel:TEXT_SMALL", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ping", logs[0].Body["prompt"])

	_, err = k.UseModel(ctx, turnCtx, "TEXT_EMBEDDING", nil, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

type stubAction struct{ name string }

func (a stubAction) Name() string     { return a.name }
func (a stubAction) Similes() []string { return nil }
func (a stubAction) Handler() action.Handler {
	return func(ctx context.Context, rt action.Runtime, m provider.Message, state *provider.State, opts *action.DispatchOptions, responses []action.Response) (*action.Result, error) {
		return &action.Result{Success: true, Text: "done"}, nil
	}
}

func TestProcessActionsUsesTurnContextRunID(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	require.NoError(t, k.Initialize(ctx))

	k.RegisterAction(stubAction{name: "REPLY"})

	turnCtx := k.StartRun()
	roomID := uuid.New()
	turn := action.Turn{
		Message:  provider.Message{ID: uuid.New(), RoomID: roomID},
		EntityID: k.Agent().ID,
		WorldID:  k.Agent().ID,
	}

	outcome, err := k.ProcessActions(ctx, turnCtx, turn, []action.Response{{Actions: []string{"REPLY"}}})
	require.NoError(t, err)
	assert.Equal(t, turnCtx.RunID, outcome.RunID)
	require.Len(t, outcome.Results, 1)
	assert.True(t, outcome.Results[0].Success)
}

func TestSendMessageToTargetRequiresRegisteredHandler(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	err := k.SendMessageToTarget(ctx, Target{Source: "unregistered", ID: "u1"}, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var sent string
	k.RegisterSendHandler("discord", func(ctx context.Context, target, content string) error {
		sent = content
		return nil
	})
	require.NoError(t, k.SendMessageToTarget(ctx, Target{Source: "discord", ID: "c1"}, "hello"))
	assert.Equal(t, "hello", sent)
}

func TestRegisterServiceMissingTypeFailsAsConfigError(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()
	require.NoError(t, k.Initialize(ctx))

	err := k.RegisterService(ctx, service.Definition{
		Start: func(ctx context.Context) (service.Instance, error) { return nil, nil },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigError)
}

func TestEventOffAndGetEventRoundTrip(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	var ran int
	id := k.On("PING", "test", func(ctx context.Context, payload any) error {
		ran++
		return nil
	})
	assert.Len(t, k.GetEvent("PING"), 1)

	k.Emit(ctx, "PING", nil)
	assert.Equal(t, 1, ran)

	k.Off("PING", id)
	assert.Empty(t, k.GetEvent("PING"))

	k.Emit(ctx, "PING", nil)
	assert.Equal(t, 1, ran, "handler should not fire after Off")
}

func TestSendControlMessageEmitsEvent(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	received := make(chan ControlMessage, 1)
	k.RegisterEvent(EventControlMessage, "test", func(ctx context.Context, payload any) error {
		if msg, ok := payload.(ControlMessage); ok {
			received <- msg
		}
		return nil
	})

	roomID := uuid.New()
	k.SendControlMessage(ctx, ControlMessage{RoomID: roomID, Action: ControlDisableInput})

	// Emit blocks until every handler has run, so the message is already
	// waiting in the buffered channel by the time SendControlMessage returns.
	require.Len(t, received, 1)
	msg := <-received
	assert.Equal(t, roomID, msg.RoomID)
	assert.Equal(t, ControlDisableInput, msg.Action)
}
