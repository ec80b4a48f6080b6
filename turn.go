package kernel

import (
	"github.com/google/uuid"

	"github.com/coreagent/kernel/action"
)

// TurnContext is the explicit, task-scoped carrier of the current run id
// and current action context, replacing process-wide globals.
// It is passed explicitly to Kernel.ProcessActions, Kernel.UseModel and
// Kernel.Evaluate rather than stored on the Kernel struct, so concurrent
// turns never share mutable kernel-level state. The kernel reads only
// RunID; the current action context reaches UseModel on the
// context.Context (action.WithContext), not through ActionContext.
type TurnContext struct {
	RunID         uuid.UUID
	ActionContext *action.Context
}

// NewTurnContext starts a fresh turn with a new run id and no action context.
func NewTurnContext() *TurnContext {
	return &TurnContext{RunID: uuid.New()}
}

// WithActionContext returns a copy of the TurnContext carrying the given
// action context, leaving the run id unchanged.
func (t *TurnContext) WithActionContext(ac *action.Context) *TurnContext {
	cp := *t
	cp.ActionContext = ac
	return &cp
}
