package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coreagent/kernel/internal/klog"
	"github.com/coreagent/kernel/provider"
	"github.com/coreagent/kernel/store"
)

// Engine is the Action Engine (C6).
type Engine struct {
	composer   *provider.Composer
	store      store.Store
	actions    map[string]Action
	evaluators []Evaluator

	maxWorkingMemoryEntries int
	actionTimeout           time.Duration

	// retryBaseDelay is the linear backoff unit for retryable action
	// errors: attempt N waits N*retryBaseDelay before re-invoking.
	retryBaseDelay time.Duration
}

// NewEngine constructs an Engine bound to a Composer and Store.
func NewEngine(composer *provider.Composer, st store.Store, maxWorkingMemoryEntries int, actionTimeout time.Duration) *Engine {
	if maxWorkingMemoryEntries <= 0 {
		maxWorkingMemoryEntries = 50
	}
	if actionTimeout <= 0 {
		actionTimeout = 2 * time.Minute
	}
	return &Engine{
		composer:                composer,
		store:                   st,
		actions:                 make(map[string]Action),
		maxWorkingMemoryEntries: maxWorkingMemoryEntries,
		actionTimeout:           actionTimeout,
		retryBaseDelay:          200 * time.Millisecond,
	}
}

// RegisterAction adds an action, keyed by its own name.
func (e *Engine) RegisterAction(a Action) {
	e.actions[a.Name()] = a
}

// RegisterEvaluator adds an evaluator to the end of the evaluation order.
func (e *Engine) RegisterEvaluator(ev Evaluator) {
	e.evaluators = append(e.evaluators, ev)
}

// Turn carries the identity of the room/entity this turn belongs to, for
// memory and log attribution.
type Turn struct {
	Message  provider.Message
	EntityID uuid.UUID
	WorldID  uuid.UUID
	// RunID, if set, is used instead of minting a fresh one, so the
	// kernel can make the action-result runId match the TurnContext's
	// runId threaded through surrounding model calls.
	RunID uuid.UUID
}

// ProcessOutcome is everything callers need after Process returns.
type ProcessOutcome struct {
	RunID         uuid.UUID
	Plan          *Plan
	Results       []Result
	WorkingMemory *WorkingMemory
}

// Process runs the multi-step action loop for one turn. rt is passed through to each action handler unchanged.
func (e *Engine) Process(ctx context.Context, rt Runtime, turn Turn, responses []Response) (*ProcessOutcome, error) {
	var allActions []string
	for _, r := range responses {
		allActions = append(allActions, r.Actions...)
	}

	runID := turn.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	wm := NewWorkingMemory(e.maxWorkingMemoryEntries)

	var plan *Plan
	if len(allActions) > 1 {
		thought := ""
		if len(responses) > 0 {
			thought = responses[0].Thought
		}
		steps := make([]Step, len(allActions))
		for i, a := range allActions {
			steps[i] = Step{Action: a, Status: StepPending}
		}
		plan = &Plan{
			RunID:      runID,
			TotalSteps: len(allActions),
			Steps:      steps,
			Thought:    thought,
			StartTime:  store.NowMillis(),
		}
	}

	var results []Result
	// accumulatedValues carries each completed action's Values forward so a
	// later action's composed state sees earlier actions' outputs, e.g.
	// POST observing the url FETCH produced.
	accumulatedValues := map[string]any{}
	actionIndex := 0

	for _, r := range responses {
		for _, declared := range r.Actions {
			res, err := e.runOne(ctx, rt, turn, runID, plan, actionIndex, declared, results, accumulatedValues, wm)
			actionIndex++

			if err != nil {
				if res != nil {
					results = append(results, *res)
				}
				if isCritical(err) {
					return &ProcessOutcome{RunID: runID, Plan: plan, Results: results, WorkingMemory: wm}, err
				}
				// non-critical: runOne already recorded the failed step and memory.
				continue
			}
			if res != nil {
				results = append(results, *res)
				for k, v := range res.Values {
					accumulatedValues[k] = v
				}
			}
		}
	}

	if turn.Message.ID != uuid.Nil {
		cacheValues := make(map[string]any, len(accumulatedValues)+1)
		for k, v := range accumulatedValues {
			cacheValues[k] = v
		}
		cacheValues["actionResults"] = results
		cacheState := &provider.State{
			Values: cacheValues,
			Data:   map[string]any{"actionResults": results, "actionPlan": plan},
		}
		if b, err := json.Marshal(results); err == nil {
			cacheState.Text = string(b)
		}
		e.composer.PutCache(deriveCacheKey(turn.Message.ID), cacheState)
	}

	return &ProcessOutcome{RunID: runID, Plan: plan, Results: results, WorkingMemory: wm}, nil
}

// deriveCacheKey derives a "<m.id>_action_results" style cache key as a
// deterministic derived UUID, since the Composer's
// cache is keyed by uuid.UUID rather than string.
func deriveCacheKey(messageID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(messageID, []byte("action_results"))
}

func (e *Engine) runOne(ctx context.Context, rt Runtime, turn Turn, runID uuid.UUID, plan *Plan, stepIndex int, declared string, priorResults []Result, accumulatedValues map[string]any, wm *WorkingMemory) (*Result, error) {
	state, err := e.composer.Compose(ctx, turn.Message, provider.ComposeOpts{
		IncludeList: []string{"RECENT_MESSAGES", "ACTION_STATE"},
		OnlyInclude: false,
	})
	if err != nil {
		return nil, fmt.Errorf("action: compose state: %w", err)
	}
	if state.Data == nil {
		state.Data = map[string]any{}
	}
	if state.Values == nil {
		state.Values = map[string]any{}
	}
	state.Data["actionPlan"] = plan
	state.Data["actionResults"] = priorResults
	// surface every earlier action's Values in this step's composed state,
	// so e.g. POST sees the url FETCH produced.
	for k, v := range accumulatedValues {
		state.Values[k] = v
	}
	if turn.Message.ID != uuid.Nil {
		e.composer.PutCache(turn.Message.ID, state)
	}

	act, matchKind, ok := resolve(e.actions, declared)
	if !ok {
		e.markStep(plan, stepIndex, StepFailed, nil, "action not found: "+declared)
		e.persistActionResult(ctx, turn, runID, declared, plan, nil, fmt.Errorf("action not found: %s", declared))
		return nil, nil
	}
	klog.Debugf("action: resolved %q via %s -> %s", declared, matchKind, act.Name())

	actx := &Context{ActionName: act.Name(), ActionID: uuid.New()}
	opts := &DispatchOptions{Context: actx, Plan: plan.Clone(), PreviousResults: priorResults}

	dctx, cancel := context.WithTimeout(WithContext(ctx, actx), e.actionTimeout)
	result, err := e.dispatchWithRetry(dctx, rt, act, turn.Message, state, opts, responsesFromPrior())
	cancel()

	if err != nil {
		e.markStep(plan, stepIndex, StepFailed, nil, err.Error())
		e.persistActionResult(ctx, turn, runID, act.Name(), plan, nil, err)
		return &Result{Success: false, Data: map[string]any{"actionName": act.Name(), "error": err.Error()}}, err
	}

	normalized := normalizeResult(act.Name(), result)
	wm.Insert(fmt.Sprintf("action_%s_%s", act.Name(), uuid.New()), WorkingMemoryEntry{
		ActionName: act.Name(),
		Result:     &normalized,
		Timestamp:  store.NowMillis(),
	})

	e.markStep(plan, stepIndex, StepCompleted, &normalized, "")
	e.persistActionResult(ctx, turn, runID, act.Name(), plan, &normalized, nil)

	return &normalized, nil
}

// responsesFromPrior exists so dispatchWithRetry's signature matches the
// handler(kernel, m, state, options, callback, responses) shape;
// the engine does not currently thread the original response list
// further than action resolution, so this returns nil.
func responsesFromPrior() []Response { return nil }

func (e *Engine) dispatchWithRetry(ctx context.Context, rt Runtime, act Action, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error) {
	handler := act.Handler()
	attempt := 1
	for {
		result, err := handler(ctx, rt, m, state, opts, responses)
		if err == nil {
			return result, nil
		}
		retryable, ok := err.(Retryable)
		if !ok || !retryable.Retryable() || attempt >= retryable.MaxAttempts() {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * e.retryBaseDelay):
		}
		attempt++
	}
}

// normalizeResult fills in the bookkeeping fields every handler result
// needs. A nil *Result is the Go equivalent of a legacy void/bool/null
// return: it carries no
// structured payload, so it is wrapped as a successful legacy result
// rather than a structured one.
func normalizeResult(actionName string, r *Result) Result {
	if r == nil {
		return Result{Success: true, IsLegacy: true, Data: map[string]any{"actionName": actionName}}
	}
	out := *r
	if out.Data == nil {
		out.Data = map[string]any{}
	}
	out.Data["actionName"] = actionName
	out.Success = true
	return out
}

func (e *Engine) markStep(plan *Plan, index int, status StepStatus, result *Result, errMsg string) {
	if plan == nil || index >= len(plan.Steps) {
		return
	}
	plan.Steps[index].Status = status
	plan.Steps[index].Result = result
	plan.Steps[index].Error = errMsg
	plan.CurrentStep++
}

func (e *Engine) persistActionResult(ctx context.Context, turn Turn, runID uuid.UUID, actionName string, plan *Plan, result *Result, actionErr error) {
	text := fmt.Sprintf("Executed action: %s", actionName)
	status := "completed"
	content := map[string]any{
		"source":     "action",
		"type":       "action_result",
		"actionName": actionName,
		"runId":      runID.String(),
	}
	if actionErr != nil {
		status = "failed"
		content["source"] = "auto"
		content["error"] = actionErr.Error()
	} else if result != nil {
		if result.Text != "" {
			text = result.Text
		}
		if result.IsLegacy {
			content["legacy"] = result.Legacy
		} else {
			content["actionResult"] = result
		}
	}
	content["text"] = text
	content["actionStatus"] = status

	meta := store.MemoryMetadata{
		Type:       store.MemoryTypeActionResult,
		ActionName: actionName,
		RunID:      runID,
	}
	if plan != nil {
		content["planStep"] = fmt.Sprintf("%d/%d", plan.CurrentStep, plan.TotalSteps)
		content["planThought"] = plan.Thought
		meta.TotalSteps = plan.TotalSteps
		meta.CurrentStep = plan.CurrentStep
	}
	if actionErr != nil {
		meta.Error = actionErr.Error()
	}

	mem := &store.Memory{
		ID:        uuid.New(),
		EntityID:  turn.EntityID,
		RoomID:    turn.Message.RoomID,
		WorldID:   turn.WorldID,
		Content:   content,
		Metadata:  meta,
		CreatedAt: store.NowMillis(),
	}
	if _, err := e.store.CreateMemory(ctx, mem, "messages", false); err != nil {
		klog.Errorf("action: persist action_result memory: %v", err)
	}

	logBody := map[string]any{
		"action": actionName,
		"runId":  runID.String(),
	}
	if plan != nil {
		logBody["planStep"] = fmt.Sprintf("%d/%d", plan.CurrentStep, plan.TotalSteps)
	}
	if actionErr != nil {
		logBody["error"] = actionErr.Error()
	}
	if err := e.store.Log(ctx, &store.LogEntry{
		ID:        uuid.New(),
		EntityID:  turn.EntityID,
		RoomID:    turn.Message.RoomID,
		Type:      "action",
		Body:      logBody,
		CreatedAt: store.NowMillis(),
	}); err != nil {
		klog.Errorf("action: write action log: %v", err)
	}
}

// RunEvaluators runs every registered evaluator: validation concurrently,
// then the handlers of evaluators that validated true, also concurrently,
// using errgroup for both fan-out phases since a validate/handle failure
// here should surface, unlike the Event Bus's fire-and-forget handlers.
// Evaluators whose AlwaysRun is false are skipped when didRespond is false.
func (e *Engine) RunEvaluators(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, didRespond bool) error {
	var candidates []Evaluator
	for _, ev := range e.evaluators {
		if !didRespond && !ev.AlwaysRun() {
			continue
		}
		candidates = append(candidates, ev)
	}
	if len(candidates) == 0 {
		return nil
	}

	validated := make([]bool, len(candidates))
	vg, vctx := errgroup.WithContext(ctx)
	for i, ev := range candidates {
		i, ev := i, ev
		vg.Go(func() error {
			ok, err := ev.Validate(vctx, rt, m, state)
			validated[i] = ok
			return err
		})
	}
	if err := vg.Wait(); err != nil {
		return fmt.Errorf("action: evaluator validate: %w", err)
	}

	hg, hctx := errgroup.WithContext(ctx)
	for i, ev := range candidates {
		if !validated[i] {
			continue
		}
		ev := ev
		hg.Go(func() error {
			return ev.Handle(hctx, rt, m, state)
		})
	}
	if err := hg.Wait(); err != nil {
		return fmt.Errorf("action: evaluator handle: %w", err)
	}
	return nil
}
