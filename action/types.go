// Package action implements the Action Engine: plan
// construction, per-step state composition, handler dispatch, result
// normalization, working-memory eviction, and persistence, using a
// timeout-wrapped dispatch and a name-indexed action registry generalized
// from single tool calls to a multi-step action plan.
package action

import (
	"sort"

	"github.com/google/uuid"
)

// StepStatus is the lifecycle state of one ActionPlan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Result is the normalized outcome of one action handler invocation.
type Result struct {
	Success bool
	Values  map[string]any
	Data    map[string]any
	Text    string
	// Legacy holds the raw return value when the handler returned a
	// legacy void/bool/null shape instead of a structured Result.
	Legacy    any
	IsLegacy  bool
}

// Step is one entry in an ActionPlan.
type Step struct {
	Action string
	Status StepStatus
	Result *Result
	Error  string
}

// Plan is the multi-step execution ledger,
// present only for turns with more than one declared action.
type Plan struct {
	RunID       uuid.UUID
	TotalSteps  int
	CurrentStep int
	Steps       []Step
	Thought     string
	StartTime   int64
}

// Clone returns a copy of the plan safe to hand to a handler without
// exposing the engine's mutable internals.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Steps = make([]Step, len(p.Steps))
	copy(cp.Steps, p.Steps)
	return &cp
}

// WorkingMemoryEntry is one record kept under an opaque key in WorkingMemory.
type WorkingMemoryEntry struct {
	ActionName string
	Result     *Result
	Timestamp  int64
}

// WorkingMemory is a bounded mapping of opaque key -> entry. Size is
// capped at maxEntries; on overflow the oldest entries (by timestamp
// ascending) are evicted first.
type WorkingMemory struct {
	maxEntries int
	entries    map[string]WorkingMemoryEntry
}

// NewWorkingMemory constructs an empty WorkingMemory bounded at maxEntries.
func NewWorkingMemory(maxEntries int) *WorkingMemory {
	if maxEntries <= 0 {
		maxEntries = 50
	}
	return &WorkingMemory{maxEntries: maxEntries, entries: make(map[string]WorkingMemoryEntry)}
}

// Insert adds an entry under key, evicting the oldest-by-timestamp
// entries if the map now exceeds maxEntries.
func (w *WorkingMemory) Insert(key string, entry WorkingMemoryEntry) {
	w.entries[key] = entry
	if len(w.entries) <= w.maxEntries {
		return
	}

	type kv struct {
		key string
		ts  int64
	}
	ordered := make([]kv, 0, len(w.entries))
	for k, e := range w.entries {
		ordered = append(ordered, kv{k, e.Timestamp})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ts > ordered[j].ts })
	keep := ordered[:w.maxEntries]
	next := make(map[string]WorkingMemoryEntry, w.maxEntries)
	for _, k := range keep {
		next[k.key] = w.entries[k.key]
	}
	w.entries = next
}

// Len reports the current entry count.
func (w *WorkingMemory) Len() int {
	return len(w.entries)
}

// Snapshot returns a copy of every entry, for read-only inspection.
func (w *WorkingMemory) Snapshot() map[string]WorkingMemoryEntry {
	out := make(map[string]WorkingMemoryEntry, len(w.entries))
	for k, v := range w.entries {
		out[k] = v
	}
	return out
}

// Context is the current action context:
// set for the duration of one handler dispatch, carrying the prompts the
// Model Router attributes to this action.
type Context struct {
	ActionName string
	ActionID   uuid.UUID
	Prompts    []PromptRecord
}

// PromptRecord is one model-call prompt attributed to an action, appended
// by the Model Router.
type PromptRecord struct {
	ModelType string
	Prompt    string
	Timestamp int64
}

// DispatchOptions is passed to a handler alongside the composed state.
type DispatchOptions struct {
	Context *Context
	Plan    *Plan // nil for single-action turns
	// PreviousResults holds every Result produced earlier in this turn.
	PreviousResults []Result
}

// GetPreviousResult returns the first previous result whose Data["actionName"]
// matches name.
func (o *DispatchOptions) GetPreviousResult(name string) (Result, bool) {
	for _, r := range o.PreviousResults {
		if an, ok := r.Data["actionName"].(string); ok && an == name {
			return r, true
		}
	}
	return Result{}, false
}
