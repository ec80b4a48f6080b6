// Package kernel implements the runtime kernel: it
// wires the Store Adapter, Event Bus, Service Registry, Model Router,
// Provider Composer and Action Engine into one bootable agent instance,
// drives plugin registration and self-identity bootstrap, and exposes the
// external API surface (turn processing, model dispatch, routing,
// persistence pass-through) plugins and callers consume.
//
// Construction follows a functional-Options pattern with lazy lifecycle
// (New wires dependencies; Initialize performs I/O), generalized from a
// single-agent tool-calling loop to this multi-component runtime.
package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/coreagent/kernel/action"
	"github.com/coreagent/kernel/eventbus"
	"github.com/coreagent/kernel/internal/klog"
	"github.com/coreagent/kernel/modelrouter"
	"github.com/coreagent/kernel/provider"
	"github.com/coreagent/kernel/service"
	"github.com/coreagent/kernel/store"
)

// ModelTypeTextEmbedding is the well-known model type probed during
// initialize() to size the store's embedding column.
const ModelTypeTextEmbedding modelrouter.ModelType = "TEXT_EMBEDDING"

// EventControlMessage is the typed event emitted by SendControlMessage.
const EventControlMessage eventbus.EventType = "CONTROL_MESSAGE"

// Kernel is one bootable agent instance. The zero value is not usable;
// construct with New. Store Adapter operations are promoted directly
// onto Kernel via the embedded store.Store, so plugins can call e.g.
// k.CreateMemory(...) without an extra accessor.
type Kernel struct {
	store.Store

	cfg *internalConfig

	events   *eventbus.Bus
	services *service.Registry
	models   *modelrouter.Router
	composer *provider.Composer
	engine   *action.Engine

	mu          sync.RWMutex
	initialized bool
	pluginNames map[string]struct{}
	agent       *store.Agent
	settings    map[string]any
	settingsRaw []byte // JSON mirror of settings, for dotted-path lookups
	secrets     map[string]string
	taskWorkers map[string]TaskWorker
	routes      []Route
}

// New constructs a Kernel. It does not perform any I/O; call Initialize
// to boot the agent identity and drain deferred plugin work.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ic := newInternalConfig(cfg)
	for _, opt := range opts {
		if err := opt(ic); err != nil {
			return nil, err
		}
	}
	ic.applyLogLevel()

	settings := make(map[string]any, len(ic.settings))
	for k, v := range ic.settings {
		settings[k] = v
	}
	secrets := make(map[string]string, len(ic.secrets))
	for k, v := range ic.secrets {
		secrets[k] = v
	}

	raw, _ := json.Marshal(settings)
	k := &Kernel{
		Store:       ic.store,
		cfg:         ic,
		events:      eventbus.New(),
		services:    service.New(),
		models:      modelrouter.New(ic.runLedgerSize),
		composer:    provider.NewComposer(),
		pluginNames: make(map[string]struct{}),
		settings:    settings,
		settingsRaw: raw,
		secrets:     secrets,
		taskWorkers: make(map[string]TaskWorker),
	}
	k.engine = action.NewEngine(k.composer, k.Store, ic.maxWorkingMemoryEntries, ic.actionTimeout)
	return k, nil
}

// Initialize boots the agent identity and drains deferred plugin work.
// It is idempotent: a second call logs a warning and returns nil without
// side effects.
func (k *Kernel) Initialize(ctx context.Context) error {
	k.mu.Lock()
	if k.initialized {
		k.mu.Unlock()
		klog.Warnf("kernel: initialize called more than once; ignoring")
		return nil
	}
	k.mu.Unlock()

	if err := k.registerPlugins(ctx, k.cfg.plugins); err != nil {
		return err
	}

	if k.Store == nil {
		return NewKernelError("Kernel.Initialize", ErrConfigError).WithContext("reason", "no store adapter registered")
	}
	if err := k.Store.Init(ctx); err != nil {
		return NewKernelError("Kernel.Initialize", fmt.Errorf("%w: %v", ErrIOError, err))
	}

	agent, err := k.ensureAgentExists(ctx)
	if err != nil {
		return err
	}
	k.mu.Lock()
	k.agent = agent
	k.mu.Unlock()

	if err := k.ensureSelfEntity(ctx, agent); err != nil {
		return err
	}
	if err := k.ensureSelfRoom(ctx, agent); err != nil {
		return err
	}
	if err := k.ensureSelfParticipant(ctx, agent); err != nil {
		return err
	}

	k.probeEmbeddingDimension(ctx)

	if err := k.services.SetStoreReady(ctx); err != nil {
		return NewKernelError("Kernel.Initialize", err)
	}

	k.mu.Lock()
	k.initialized = true
	k.mu.Unlock()
	return nil
}

// IsReady reports whether Initialize has completed and the store is
// reachable.
func (k *Kernel) IsReady(ctx context.Context) bool {
	k.mu.RLock()
	init := k.initialized
	k.mu.RUnlock()
	return init && k.Store != nil && k.Store.IsReady(ctx)
}

// Stop stops every registered service instance. Failures are logged but
// never rethrown.
func (k *Kernel) Stop(ctx context.Context) []error {
	errs := k.services.StopAll(ctx)
	for _, e := range errs {
		klog.Errorf("kernel: service stop: %v", e)
	}
	return errs
}

// Close releases the Store Adapter. The kernel never closes a store the
// caller did not ask it to close implicitly.
func (k *Kernel) Close(ctx context.Context) error {
	return k.Store.Close(ctx)
}

// RunMigrations delegates to the store if it exposes a Migrate method;
// otherwise it is a no-op. Migration file formats are a store concern,
// out of the kernel's scope.
func (k *Kernel) RunMigrations(ctx context.Context, paths ...string) error {
	type migrator interface {
		Migrate(ctx context.Context, paths ...string) error
	}
	if m, ok := k.Store.(migrator); ok {
		return m.Migrate(ctx, paths...)
	}
	return nil
}

// --- plugin registration ---

func (k *Kernel) registerPlugins(ctx context.Context, plugins []Plugin) error {
	if len(plugins) == 0 {
		return nil
	}
	results := make([]error, len(plugins))
	var wg sync.WaitGroup
	for i, p := range plugins {
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = k.RegisterPlugin(ctx, p)
		}()
	}
	wg.Wait()
	for _, err := range results {
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterPlugin registers one plugin's capabilities. Safe to call concurrently from registerPlugins or
// directly after Initialize (e.g. hot-loading a plugin at runtime).
func (k *Kernel) RegisterPlugin(ctx context.Context, p Plugin) error {
	k.mu.Lock()
	if _, dup := k.pluginNames[p.Name]; dup {
		k.mu.Unlock()
		klog.Warnf("kernel: duplicate plugin name %q skipped", p.Name)
		return nil
	}
	k.pluginNames[p.Name] = struct{}{}
	k.mu.Unlock()

	if p.Init != nil {
		if err := p.Init(ctx, p.Config, k); err != nil {
			if isInitWarning(err) {
				klog.Warnf("kernel: plugin %q init warning: %v", p.Name, err)
			} else {
				return fmt.Errorf("kernel: plugin %q init: %w", p.Name, err)
			}
		}
	}

	if p.Adapter != nil {
		k.mu.Lock()
		if k.Store == nil {
			k.Store = p.Adapter
		} else {
			klog.Warnf("kernel: plugin %q database adapter ignored: one is already registered", p.Name)
		}
		k.mu.Unlock()
	}

	// the engine's action map and evaluator list are not locked internally.
	k.mu.Lock()
	for _, a := range p.Actions {
		k.engine.RegisterAction(a)
	}
	for _, ev := range p.Evaluators {
		k.engine.RegisterEvaluator(ev)
	}
	k.mu.Unlock()
	for _, pr := range p.Providers {
		k.composer.Register(pr)
	}
	for _, mr := range p.Models {
		k.models.RegisterModel(mr.ModelType, mr.Provider, mr.Priority, mr.Handler)
	}
	for _, r := range p.Routes {
		k.mu.Lock()
		k.routes = append(k.routes, r)
		k.mu.Unlock()
	}
	for _, er := range p.Events {
		k.events.On(er.Event, p.Name, er.Handler)
	}
	for source, h := range p.SendHandlers {
		k.services.RegisterSendHandler(source, h)
	}
	for _, tw := range p.TaskWorkers {
		k.mu.Lock()
		k.taskWorkers[tw.Name] = tw
		k.mu.Unlock()
	}
	for _, svc := range p.Services {
		if err := k.services.Register(ctx, svc); err != nil {
			if errors.Is(err, service.ErrMissingServiceType) {
				return NewKernelError("Kernel.RegisterPlugin", fmt.Errorf("%w: plugin %q: %v", ErrConfigError, p.Name, err))
			}
			return fmt.Errorf("kernel: plugin %q service %q: %w", p.Name, svc.ServiceType, err)
		}
	}
	return nil
}

// isInitWarning matches the plugin-init error messages that are downgraded
// to a warning instead of aborting registration.
func isInitWarning(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, phrase := range []string{"api key", "environment variables", "invalid plugin configuration"} {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}

// --- registrar convenience wrappers ---

func (k *Kernel) RegisterAction(a action.Action)       { k.engine.RegisterAction(a) }
func (k *Kernel) RegisterEvaluator(ev action.Evaluator) { k.engine.RegisterEvaluator(ev) }
func (k *Kernel) RegisterProvider(p provider.Provider)  { k.composer.Register(p) }

func (k *Kernel) RegisterModel(modelType modelrouter.ModelType, providerName string, priority int, h modelrouter.Handler) {
	k.models.RegisterModel(modelType, providerName, priority, h)
}

func (k *Kernel) RegisterService(ctx context.Context, def service.Definition) error {
	if err := k.services.Register(ctx, def); err != nil {
		if errors.Is(err, service.ErrMissingServiceType) {
			return NewKernelError("Kernel.RegisterService", fmt.Errorf("%w: %v", ErrConfigError, err))
		}
		return err
	}
	return nil
}

func (k *Kernel) RegisterEvent(event eventbus.EventType, pluginName string, h eventbus.Handler) {
	k.events.On(event, pluginName, h)
}

func (k *Kernel) RegisterSendHandler(source string, h service.SendHandler) {
	k.services.RegisterSendHandler(source, h)
}

func (k *Kernel) RegisterTaskWorker(tw TaskWorker) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.taskWorkers[tw.Name] = tw
}

// RegisterDatabaseAdapter installs the Store Adapter if one is not
// already set, and returns an error otherwise. Since New requires
// Config.Store, a kernel built by New always has one, so this call does
// not replace an existing adapter.
func (k *Kernel) RegisterDatabaseAdapter(st store.Store) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.Store != nil {
		return fmt.Errorf("kernel: database adapter already registered")
	}
	k.Store = st
	return nil
}

// ExecuteTask runs the task worker registered for taskID's task Name.
func (k *Kernel) ExecuteTask(ctx context.Context, taskID uuid.UUID) error {
	t, err := k.Store.GetTask(ctx, taskID)
	if err != nil {
		return NewKernelError("Kernel.ExecuteTask", fmt.Errorf("%w: %v", ErrIOError, err))
	}
	k.mu.RLock()
	tw, ok := k.taskWorkers[t.Name]
	k.mu.RUnlock()
	if !ok {
		return NewKernelError("Kernel.ExecuteTask", ErrNotFound).WithContext("task", t.Name)
	}
	return tw.Execute(ctx, t)
}

// --- self-identity bootstrap ---

func (k *Kernel) ensureAgentExists(ctx context.Context) (*store.Agent, error) {
	existing, err := k.Store.GetAgentByName(ctx, k.cfg.agentName)
	if err == nil {
		existing.Bio = k.cfg.bio
		existing.System = k.cfg.system
		if uerr := k.Store.UpdateAgent(ctx, existing); uerr != nil {
			return nil, NewKernelError("ensureAgentExists", fmt.Errorf("%w: %v", ErrIOError, uerr))
		}
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, NewKernelError("ensureAgentExists", fmt.Errorf("%w: %v", ErrIOError, err))
	}

	agent := &store.Agent{
		ID:       deterministicID("agent", k.cfg.agentName),
		Name:     k.cfg.agentName,
		Bio:      k.cfg.bio,
		System:   k.cfg.system,
		Settings: k.cfg.settings,
		Secrets:  encodeSecrets(k.cfg.secrets),
	}
	if cerr := k.Store.CreateAgent(ctx, agent); cerr != nil && !errors.Is(cerr, store.ErrDuplicateKey) {
		return nil, NewKernelError("ensureAgentExists", fmt.Errorf("%w: %v", ErrIOError, cerr))
	}
	return agent, nil
}

func (k *Kernel) ensureSelfEntity(ctx context.Context, agent *store.Agent) error {
	if existing, err := k.Store.GetEntitiesByIDs(ctx, []uuid.UUID{agent.ID}); err == nil && len(existing) > 0 {
		return nil
	}
	entity := &store.Entity{
		ID:       agent.ID,
		AgentID:  agent.ID,
		Names:    []string{agent.Name},
		Metadata: map[string]map[string]any{},
	}
	if err := k.Store.CreateEntities(ctx, []*store.Entity{entity}); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		return NewKernelError("ensureSelfEntity", fmt.Errorf("%w: %v", ErrIOError, err))
	}
	return nil
}

// ensureSelfRoom also ensures a self-World exists with the same id, since
// Room.WorldID is required and a room cannot be created without a world
// to belong to.
func (k *Kernel) ensureSelfRoom(ctx context.Context, agent *store.Agent) error {
	if _, err := k.Store.GetWorld(ctx, agent.ID); errors.Is(err, store.ErrNotFound) {
		w := &store.World{ID: agent.ID, Name: agent.Name, AgentID: agent.ID, ServerID: agent.ID.String()}
		if werr := k.Store.CreateWorld(ctx, w); werr != nil && !errors.Is(werr, store.ErrDuplicateKey) {
			return NewKernelError("ensureSelfRoom", fmt.Errorf("%w: %v", ErrIOError, werr))
		}
	} else if err != nil {
		return NewKernelError("ensureSelfRoom", fmt.Errorf("%w: %v", ErrIOError, err))
	}

	if rooms, err := k.Store.GetRoomsByIDs(ctx, []uuid.UUID{agent.ID}); err == nil && len(rooms) > 0 {
		return nil
	}
	room := &store.Room{
		ID:       agent.ID,
		Name:     agent.Name,
		WorldID:  agent.ID,
		Type:     store.RoomTypeSelf,
		ServerID: agent.ID.String(),
	}
	if err := k.Store.CreateRooms(ctx, []*store.Room{room}); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		return NewKernelError("ensureSelfRoom", fmt.Errorf("%w: %v", ErrIOError, err))
	}
	return nil
}

func (k *Kernel) ensureSelfParticipant(ctx context.Context, agent *store.Agent) error {
	if err := k.Store.AddParticipantsRoom(ctx, []uuid.UUID{agent.ID}, agent.ID); err != nil && !errors.Is(err, store.ErrDuplicateKey) {
		return NewKernelError("ensureSelfParticipant", fmt.Errorf("%w: %v", ErrIOError, err))
	}
	return nil
}

// probeEmbeddingDimension calls a registered TEXT_EMBEDDING handler with
// nil params to size the store's embedding column.
func (k *Kernel) probeEmbeddingDimension(ctx context.Context) {
	if !k.models.Has(ModelTypeTextEmbedding) {
		return
	}
	result, _, _, err := k.models.UseModel(ctx, uuid.New(), ModelTypeTextEmbedding, "", nil, nowMillis)
	if err != nil {
		klog.Warnf("kernel: embedding dimension probe failed: %v", err)
		return
	}
	vec, ok := result.([]float32)
	if !ok || len(vec) == 0 {
		klog.Warnf("kernel: embedding dimension probe returned no vector")
		return
	}
	if err := k.Store.EnsureEmbeddingDimension(ctx, len(vec)); err != nil {
		klog.Warnf("kernel: ensure embedding dimension: %v", err)
	}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func deterministicID(kind, name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+name))
}

func encodeSecrets(secrets map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(secrets))
	for k, v := range secrets {
		out[k] = []byte(v)
	}
	return out
}

// --- settings ---

// GetSetting resolves a key through secrets, then settings, then a
// nested "secrets" bag inside settings, coercing the literal strings
// "true"/"false" to booleans. A key containing "." (e.g. "provider.model")
// additionally falls back to a gjson path lookup against the JSON mirror
// of settings, for values nested deeper than one level.
func (k *Kernel) GetSetting(key string) (any, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if v, ok := k.secrets[key]; ok {
		return coerceBool(v), true
	}
	if v, ok := k.settings[key]; ok {
		return coerceBool(v), true
	}
	if nested, ok := k.settings["secrets"].(map[string]any); ok {
		if v, ok := nested[key]; ok {
			return coerceBool(v), true
		}
	}
	if strings.Contains(key, ".") {
		if r := gjson.GetBytes(k.settingsRaw, key); r.Exists() {
			return coerceBool(r.Value()), true
		}
	}
	return nil, false
}

// SetSetting writes a value into the secrets bag (if secret is true) or
// the settings bag otherwise. A dotted key also updates the JSON mirror
// used by GetSetting's nested-path lookup.
func (k *Kernel) SetSetting(key string, value any, secret bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if secret {
		s, _ := value.(string)
		k.secrets[key] = s
		return
	}
	k.settings[key] = value
	if raw, err := sjson.SetBytes(k.settingsRaw, key, value); err == nil {
		k.settingsRaw = raw
	}
}

func coerceBool(v any) any {
	if s, ok := v.(string); ok {
		switch s {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return v
}

// --- turn processing ---

// ComposeState runs the Provider Composer for one message.
func (k *Kernel) ComposeState(ctx context.Context, m provider.Message, includeList []string, onlyInclude, skipCache bool) (*provider.State, error) {
	cctx, cancel := context.WithTimeout(ctx, k.cfg.composeTimeout)
	defer cancel()
	state, err := k.composer.Compose(cctx, m, provider.ComposeOpts{IncludeList: includeList, OnlyInclude: onlyInclude, SkipCache: skipCache})
	if err != nil {
		return nil, NewKernelError("Kernel.ComposeState", fmt.Errorf("%w: %v", ErrProviderError, err))
	}
	return state, nil
}

// ProcessActions runs the Action Engine for one turn. If
// turnCtx is nil a fresh one is minted; the turn's action-result memories
// and logs carry turnCtx.RunID.
func (k *Kernel) ProcessActions(ctx context.Context, turnCtx *TurnContext, turn action.Turn, responses []action.Response) (*action.ProcessOutcome, error) {
	if turnCtx == nil {
		turnCtx = NewTurnContext()
	}
	turn.RunID = turnCtx.RunID
	return k.engine.Process(ctx, k.runtimeFor(turnCtx), turn, responses)
}

// Evaluate runs the sibling Evaluators phase.
func (k *Kernel) Evaluate(ctx context.Context, turnCtx *TurnContext, m provider.Message, state *provider.State, didRespond bool) error {
	if turnCtx == nil {
		turnCtx = NewTurnContext()
	}
	return k.engine.RunEvaluators(ctx, k.runtimeFor(turnCtx), m, state, didRespond)
}

// StartRun begins a new logical run, returning the TurnContext callers
// thread through ComposeState/UseModel/ProcessActions/Evaluate for its
// duration. Runs are tracked via this explicit, per-task value rather
// than kernel-global state.
func (k *Kernel) StartRun() *TurnContext { return NewTurnContext() }

// EndRun exists for API symmetry with StartRun; runs are scoped to a
// TurnContext value rather than kernel-global state, so there is nothing
// to clear.
func (k *Kernel) EndRun(*TurnContext) {}

func (k *Kernel) runtimeFor(turnCtx *TurnContext) action.Runtime {
	return kernelRuntime{k: k, turnCtx: turnCtx}
}

type kernelRuntime struct {
	k       *Kernel
	turnCtx *TurnContext
}

func (r kernelRuntime) UseModel(ctx context.Context, modelType string, params map[string]any) (any, error) {
	return r.k.UseModel(ctx, r.turnCtx, modelrouter.ModelType(modelType), params, "")
}

// --- model dispatch ---

// UseModel resolves and invokes the handler registered for modelType,
// injecting a self-reference runtime, logging a structured useModel
// entry on success, and attributing the call to the action context
// carried on ctx (if any, via action.WithContext) unless modelType is
// TEXT_EMBEDDING.
func (k *Kernel) UseModel(ctx context.Context, turnCtx *TurnContext, modelType modelrouter.ModelType, params map[string]any, providerName string) (any, error) {
	if turnCtx == nil {
		turnCtx = NewTurnContext()
	}
	if !k.models.Has(modelType) {
		return nil, NewKernelErrorWithRun("Kernel.UseModel", turnCtx.RunID.String(), fmt.Errorf("%w: no handler registered for %s", ErrNotFound, modelType))
	}

	augmented := make(map[string]any, len(params)+1)
	for key, v := range params {
		augmented[key] = v
	}
	augmented["runtime"] = k

	start := time.Now()
	result, _, resolvedProvider, err := k.models.UseModel(ctx, turnCtx.RunID, modelType, providerName, augmented, nowMillis)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		return nil, NewKernelErrorWithRun("Kernel.UseModel", turnCtx.RunID.String(), fmt.Errorf("%w: %v", ErrModelError, err))
	}

	k.logModelCall(ctx, turnCtx, modelType, resolvedProvider, params, result, elapsed)
	return result, nil
}

func (k *Kernel) logModelCall(ctx context.Context, turnCtx *TurnContext, modelType modelrouter.ModelType, resolvedProvider string, params map[string]any, result any, elapsedMS int64) {
	prompt := extractPrompt(params)

	var actionCtx map[string]any
	if ac, ok := action.FromContext(ctx); ok && ac != nil {
		actionCtx = map[string]any{"actionName": ac.ActionName, "actionId": ac.ActionID.String()}
		if modelType != ModelTypeTextEmbedding {
			ac.Prompts = append(ac.Prompts, action.PromptRecord{
				ModelType: string(modelType),
				Prompt:    prompt,
				Timestamp: store.NowMillis(),
			})
		}
	}

	body := map[string]any{
		"modelType":     string(modelType),
		"modelKey":      string(modelType),
		"params":        params,
		"prompt":        prompt,
		"runId":         turnCtx.RunID.String(),
		"executionTime": elapsedMS,
		"provider":      resolvedProvider,
		"response":      redactResponse(result),
	}
	if actionCtx != nil {
		body["actionContext"] = actionCtx
	}

	selfID := uuid.Nil
	k.mu.RLock()
	if k.agent != nil {
		selfID = k.agent.ID
	}
	k.mu.RUnlock()

	entry := &store.LogEntry{
		ID:        uuid.New(),
		EntityID:  selfID,
		RoomID:    selfID,
		Type:      fmt.Sprintf("useModel:%s", modelType),
		Body:      body,
		CreatedAt: store.NowMillis(),
	}
	if err := k.Store.Log(ctx, entry); err != nil {
		klog.Errorf("kernel: write useModel log: %v", err)
	}
}

// extractPrompt resolves the logged prompt text with a priority chain:
// params.prompt, then params.input, then JSON(params.messages), else empty.
func extractPrompt(params map[string]any) string {
	if s, ok := params["prompt"].(string); ok && s != "" {
		return s
	}
	if s, ok := params["input"].(string); ok && s != "" {
		return s
	}
	if msgs, ok := params["messages"]; ok {
		if b, err := json.Marshal(msgs); err == nil {
			return string(b)
		}
	}
	return ""
}

// redactResponse replaces a raw numeric embedding vector with a
// placeholder before it is persisted to the log store.
func redactResponse(result any) any {
	switch v := result.(type) {
	case []float32:
		return fmt.Sprintf("<embedding redacted: %d dims>", len(v))
	case []float64:
		return fmt.Sprintf("<embedding redacted: %d dims>", len(v))
	default:
		return result
	}
}

// --- routing ---

// Target identifies where a message should be sent: Source names the
// registered send handler, ID is the handler-interpreted destination.
type Target struct {
	Source string
	ID     string
}

// ControlAction enumerates the control signals SendControlMessage may emit.
type ControlAction string

const (
	ControlEnableInput  ControlAction = "enable_input"
	ControlDisableInput ControlAction = "disable_input"
)

// ControlMessage is the payload of an EventControlMessage typed event.
type ControlMessage struct {
	RoomID uuid.UUID
	Action ControlAction
	Target string
}

// SendMessageToTarget dispatches content through the send handler
// registered for target.Source.
func (k *Kernel) SendMessageToTarget(ctx context.Context, target Target, content string) error {
	if err := k.services.SendTo(ctx, target.Source, target.ID, content); err != nil {
		return NewKernelError("Kernel.SendMessageToTarget", fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	return nil
}

// SendControlMessage emits a CONTROL_MESSAGE typed event.
func (k *Kernel) SendControlMessage(ctx context.Context, msg ControlMessage) {
	k.events.Emit(ctx, EventControlMessage, msg)
}

// --- event bus pass-through ---

func (k *Kernel) Emit(ctx context.Context, event eventbus.EventType, payload any) {
	k.events.Emit(ctx, event, payload)
}

// On registers a handler for a typed event, returning an id Off can use
// to unregister it.
func (k *Kernel) On(event eventbus.EventType, pluginName string, h eventbus.Handler) int {
	return k.events.On(event, pluginName, h)
}

// Off unregisters a handler previously registered for a typed event.
func (k *Kernel) Off(event eventbus.EventType, id int) { k.events.Off(event, id) }

// GetEvent returns the handlers currently registered for a typed event.
func (k *Kernel) GetEvent(event eventbus.EventType) []eventbus.Handler {
	return k.events.GetEvent(event)
}

// OnEmit registers a synchronous emitter under name, returning an id
// OffEmit can use to unregister it.
func (k *Kernel) OnEmit(name string, e eventbus.Emitter) int { return k.events.OnEmit(name, e) }

// OffEmit unregisters an emitter previously registered under name.
func (k *Kernel) OffEmit(name string, id int) { k.events.OffEmit(name, id) }

func (k *Kernel) NotifyEmit(ctx context.Context, name string, payload any) error {
	return k.events.Notify(ctx, name, payload)
}

// --- lookups ---

// HasModel reports whether a handler is registered for modelType.
func (k *Kernel) HasModel(modelType modelrouter.ModelType) bool { return k.models.Has(modelType) }

// Agent returns the persisted self Agent record, set once Initialize has run.
func (k *Kernel) Agent() *store.Agent {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.agent
}

// Routes returns every route descriptor collected from registered
// plugins, for a transport adapter (outside this module's scope) to mount.
func (k *Kernel) Routes() []Route {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Route, len(k.routes))
	copy(out, k.routes)
	return out
}
