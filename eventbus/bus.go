// Package eventbus implements the kernel's Event Bus:
// a typed, async, fan-out "events" channel and a synchronous, ordered
// "emitters" channel, both using a snapshot-under-read-lock-then-invoke-
// outside-the-lock registration pattern. Both channels are keyed by name:
// registering a handler under one name never fires it for another.
package eventbus

import (
	"context"
	"sort"
	"sync"

	"github.com/coreagent/kernel/internal/klog"
)

// EventType names a typed event channel (e.g. "MESSAGE_RECEIVED",
// "ACTION_COMPLETED"). Plugins define their own event type constants.
type EventType string

// Handler processes a single typed event payload. A handler's error is
// logged, not propagated: one handler's failure never aborts its
// siblings.
type Handler func(ctx context.Context, payload any) error

// Emitter processes a synchronous, untyped signal in registration order.
// An emitter's error IS propagated to the caller and stops later emitters
// registered under the same name: a sequential hook chain, unlike
// Handler's fire-and-forget fan-out.
type Emitter func(ctx context.Context, name string, payload any) error

// order doubles as the registration id: both a sort key and a unique
// handle an Off/OffEmit call can reference.
type registeredHandler struct {
	handler Handler
	plugin  string
	order   int
}

type registeredEmitter struct {
	emitter Emitter
	order   int
}

// Bus is the Event Bus. The zero value is not usable; construct with New.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]registeredHandler
	emitters map[string][]registeredEmitter
	seq      int
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[EventType][]registeredHandler),
		emitters: make(map[string][]registeredEmitter),
	}
}

// On registers a handler for a typed event. plugin names the registering
// plugin, used only for log attribution on handler failure. The returned
// id can be passed to Off to unregister this handler.
func (b *Bus) On(event EventType, plugin string, h Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.handlers[event] = append(b.handlers[event], registeredHandler{handler: h, plugin: plugin, order: b.seq})
	return b.seq
}

// Off unregisters the handler previously registered under event with the
// id returned by On. A no-op if id is unknown.
func (b *Bus) Off(event EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.handlers[event]
	for i, reg := range list {
		if reg.order == id {
			b.handlers[event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// GetEvent returns the handlers currently registered for a typed event, in
// registration order, for introspection.
func (b *Bus) GetEvent(event EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.handlers[event]
	out := make([]Handler, len(list))
	for i, reg := range list {
		out[i] = reg.handler
	}
	return out
}

// OnEmit registers a synchronous emitter under name, invoked only by
// Notify calls for that same name, in registration order. The returned id
// can be passed to OffEmit to unregister this emitter.
func (b *Bus) OnEmit(name string, e Emitter) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	b.emitters[name] = append(b.emitters[name], registeredEmitter{emitter: e, order: b.seq})
	return b.seq
}

// OffEmit unregisters the emitter previously registered under name with
// the id returned by OnEmit. A no-op if id is unknown.
func (b *Bus) OffEmit(name string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.emitters[name]
	for i, reg := range list {
		if reg.order == id {
			b.emitters[name] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit fires a typed event. All registered handlers run concurrently and
// are awaited as a group; a handler's error (or panic) is logged but
// does not cancel or block its siblings.
func (b *Bus) Emit(ctx context.Context, event EventType, payload any) {
	b.mu.RLock()
	regs := make([]registeredHandler, len(b.handlers[event]))
	copy(regs, b.handlers[event])
	b.mu.RUnlock()

	if len(regs) == 0 {
		return
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })

	var wg sync.WaitGroup
	for _, reg := range regs {
		wg.Add(1)
		go func(reg registeredHandler) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					klog.Errorf("eventbus: handler panic: event=%s plugin=%s recover=%v", event, reg.plugin, r)
				}
			}()
			if err := reg.handler(ctx, payload); err != nil {
				klog.Errorf("eventbus: handler failed: event=%s plugin=%s err=%v", event, reg.plugin, err)
			}
		}(reg)
	}
	wg.Wait()
}

// Notify runs every emitter registered under name, synchronously and in
// registration order, stopping and returning on the first error. Emitters
// registered under a different name are never invoked.
func (b *Bus) Notify(ctx context.Context, name string, payload any) error {
	b.mu.RLock()
	regs := make([]registeredEmitter, len(b.emitters[name]))
	copy(regs, b.emitters[name])
	b.mu.RUnlock()

	sort.Slice(regs, func(i, j int) bool { return regs[i].order < regs[j].order })
	for _, reg := range regs {
		if err := reg.emitter(ctx, name, payload); err != nil {
			return err
		}
	}
	return nil
}
