package action

import (
	"context"
	"strings"

	"github.com/coreagent/kernel/provider"
)

// Response is one response memory under consideration for this turn,
// carrying the declared action names and the thought that produced them.
type Response struct {
	Actions []string
	Thought string
}

// Handler is an action's implementation. rt is the runtime surface the
// action needs (model calls, store access, service lookup); it is kept
// as a narrow interface here rather than the concrete kernel type to
// avoid an import cycle between action and the root kernel package.
type Handler func(ctx context.Context, rt Runtime, m provider.Message, state *provider.State, opts *DispatchOptions, responses []Response) (*Result, error)

// Runtime is the subset of kernel behaviour an action handler may call.
type Runtime interface {
	UseModel(ctx context.Context, modelType string, params map[string]any) (any, error)
}

type actionContextKey struct{}

// WithContext returns a copy of ctx carrying ac as the current action
// context, so that any Runtime.UseModel call a handler makes through ctx
// can be attributed back to this action without a
// kernel-level global.
func WithContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, actionContextKey{}, ac)
}

// FromContext returns the current action context previously attached via
// WithContext, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	ac, ok := ctx.Value(actionContextKey{}).(*Context)
	return ac, ok
}

// CriticalError marks an action failure as critical: the engine aborts
// the whole turn instead of recording the step as failed and continuing.
type CriticalError struct {
	Err error
}

func (e *CriticalError) Error() string { return e.Err.Error() }
func (e *CriticalError) Unwrap() error { return e.Err }

// Critical reports true, satisfying the "is this error critical" check
// the engine performs on every handler error.
func (e *CriticalError) Critical() bool { return true }

// Retryable is an optional interface an error may implement to ask the
// engine for a bounded retry with linear backoff
// instead of an immediate failed step.
type Retryable interface {
	Retryable() bool
	MaxAttempts() int
}

func isCritical(err error) bool {
	type critical interface{ Critical() bool }
	if c, ok := err.(critical); ok {
		return c.Critical()
	}
	return false
}

// Action is a named capability a turn may dispatch.
type Action interface {
	Name() string
	Similes() []string
	Handler() Handler
}

// Evaluator is a post-response reflection/classification capability.
type Evaluator interface {
	Name() string
	// AlwaysRun reports whether this evaluator runs even when the agent
	// did not respond this turn.
	AlwaysRun() bool
	Validate(ctx context.Context, rt Runtime, m provider.Message, state *provider.State) (bool, error)
	Handle(ctx context.Context, rt Runtime, m provider.Message, state *provider.State) error
}

// normalizeActionName lowercases and strips underscores, the
// normalisation rule used when resolving a declared action name.
func normalizeActionName(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "_", "")
}

// resolve implements a four-tier resolution priority:
// exact name, substring name (either direction), exact simile, substring
// simile (either direction).
func resolve(actions map[string]Action, declared string) (Action, string, bool) {
	norm := normalizeActionName(declared)

	for _, a := range actions {
		if normalizeActionName(a.Name()) == norm {
			return a, "exact name", true
		}
	}
	for _, a := range actions {
		an := normalizeActionName(a.Name())
		if strings.Contains(an, norm) || strings.Contains(norm, an) {
			return a, "substring name", true
		}
	}
	for _, a := range actions {
		for _, s := range a.Similes() {
			if normalizeActionName(s) == norm {
				return a, "exact simile", true
			}
		}
	}
	for _, a := range actions {
		for _, s := range a.Similes() {
			ns := normalizeActionName(s)
			if strings.Contains(ns, norm) || strings.Contains(norm, ns) {
				return a, "substring simile", true
			}
		}
	}
	return nil, "", false
}
