package kernel

import (
	"context"

	"github.com/coreagent/kernel/action"
	"github.com/coreagent/kernel/eventbus"
	"github.com/coreagent/kernel/modelrouter"
	"github.com/coreagent/kernel/provider"
	"github.com/coreagent/kernel/service"
	"github.com/coreagent/kernel/store"
)

// ModelRegistration is one plugin-declared Model Router handler.
type ModelRegistration struct {
	ModelType modelrouter.ModelType
	Provider  string
	Priority  int
	Handler   modelrouter.Handler
}

// EventRegistration is one plugin-declared typed event handler.
type EventRegistration struct {
	Event   eventbus.EventType
	Handler eventbus.Handler
}

// Route is a transport-agnostic route descriptor. The kernel never serves
// routes itself (transport adapters are out of scope; it
// only retains the list so a plugin-supplied gateway can mount them.
type Route struct {
	Method  string
	Path    string
	Handler any
}

// TaskWorker executes deferred Task records registered via
// registerTaskWorker, matched to a task by Name.
type TaskWorker struct {
	Name    string
	Execute func(ctx context.Context, t *store.Task) error
}

// Plugin is a bundle of capabilities a single package contributes to the
// kernel: actions, evaluators, providers, models,
// services, routes, events, and an optional Store Adapter implementation.
type Plugin struct {
	Name   string
	Config map[string]any

	// Init runs once, during RegisterPlugin, before any capability below
	// is registered. An error whose message contains "API key",
	// "environment variables", or "Invalid plugin configuration" is
	// downgraded to a warning; any other error
	// aborts registration of this plugin.
	Init func(ctx context.Context, config map[string]any, k *Kernel) error

	// Adapter is installed only when the kernel has no Store Adapter yet;
	// otherwise it is ignored with a warning. New requires Config.Store,
	// so on a kernel built by New every plugin Adapter is ignored.
	Adapter store.Store

	Actions      []action.Action
	Evaluators   []action.Evaluator
	Providers    []provider.Provider
	Models       []ModelRegistration
	Services     []service.Definition
	Routes       []Route
	Events       []EventRegistration
	TaskWorkers  []TaskWorker
	SendHandlers map[string]service.SendHandler
}
