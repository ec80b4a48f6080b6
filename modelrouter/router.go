// Package modelrouter implements the Model Router:
// registration of model-type handlers, provider-aware lookup with
// priority/order resolution and fallback, and a bounded per-run cost
// ledger, using a name-indexed, RWMutex-guarded registry generalized to
// multiple handlers per key.
package modelrouter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ModelType names a class of model call, e.g. "TEXT_LARGE", "TEXT_SMALL",
// "EMBEDDING". Plugins may define additional types.
type ModelType string

// Handler executes a single model call for a registered ModelType.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// registration is one plugin's handler for a ModelType.
type registration struct {
	handler  Handler
	provider string
	priority int
	order    int
}

// Sample is one recorded model call, kept in the run ledger.
type Sample struct {
	ModelType     ModelType
	Provider      string
	ExecutionMS   int64
	Err           error
}

// Router is the Model Router. The zero value is not usable; use New.
type Router struct {
	mu       sync.RWMutex
	handlers map[ModelType][]*registration
	seq      int

	ledgerMu   sync.Mutex
	ledgerSize int
	ledger     map[uuid.UUID][]Sample
}

// New constructs a Router whose run ledger keeps at most ledgerSize
// samples per run id.
func New(ledgerSize int) *Router {
	if ledgerSize <= 0 {
		ledgerSize = 200
	}
	return &Router{
		handlers:   make(map[ModelType][]*registration),
		ledgerSize: ledgerSize,
		ledger:     make(map[uuid.UUID][]Sample),
	}
}

// RegisterModel registers a handler for a ModelType under a named
// provider (e.g. "anthropic", "local"). Higher priority wins; ties break
// by registration order (earliest first).
func (r *Router) RegisterModel(modelType ModelType, provider string, priority int, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	reg := &registration{handler: h, provider: provider, priority: priority, order: r.seq}
	list := append(r.handlers[modelType], reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].priority != list[j].priority {
			return list[i].priority > list[j].priority
		}
		return list[i].order < list[j].order
	})
	r.handlers[modelType] = list
}

// resolve picks the handler for a model type, preferring a specific
// provider when requested and falling back (with a warning left to the
// caller to log) to the highest-priority handler otherwise.
func (r *Router) resolve(modelType ModelType, provider string) (*registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.handlers[modelType]
	if len(list) == 0 {
		return nil, false
	}
	if provider != "" {
		for _, reg := range list {
			if reg.provider == provider {
				return reg, true
			}
		}
		// no exact provider match: fall back to the top-priority handler.
		return list[0], false
	}
	return list[0], true
}

// UseModel invokes the resolved handler for modelType, recording a
// Sample in the run ledger keyed by runID. exactMatch reports whether the
// requested provider was honored (false means a fallback handler ran);
// resolvedProvider names whichever handler actually ran.
func (r *Router) UseModel(ctx context.Context, runID uuid.UUID, modelType ModelType, provider string, params map[string]any, now func() int64) (result any, exactMatch bool, resolvedProvider string, err error) {
	reg, exactMatch := r.resolve(modelType, provider)
	if reg == nil {
		return nil, false, "", fmt.Errorf("modelrouter: no handler registered for %s", modelType)
	}

	start := now()
	result, err = reg.handler(ctx, params)
	elapsed := now() - start

	r.recordSample(runID, Sample{ModelType: modelType, Provider: reg.provider, ExecutionMS: elapsed, Err: err})
	if err != nil {
		return nil, exactMatch, reg.provider, fmt.Errorf("modelrouter: handler %s/%s failed: %w", modelType, reg.provider, err)
	}
	return result, exactMatch, reg.provider, nil
}

func (r *Router) recordSample(runID uuid.UUID, s Sample) {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	samples := append(r.ledger[runID], s)
	if len(samples) > r.ledgerSize {
		samples = samples[len(samples)-r.ledgerSize:]
	}
	r.ledger[runID] = samples
}

// RunSamples returns the recorded model-call samples for a run id, most
// recent last.
func (r *Router) RunSamples(runID uuid.UUID) []Sample {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	out := make([]Sample, len(r.ledger[runID]))
	copy(out, r.ledger[runID])
	return out
}

// ForgetRun drops the ledger entry for a run id, freeing its memory once
// the run is complete and no longer queried.
func (r *Router) ForgetRun(runID uuid.UUID) {
	r.ledgerMu.Lock()
	defer r.ledgerMu.Unlock()
	delete(r.ledger, runID)
}

// Has reports whether at least one handler is registered for modelType.
func (r *Router) Has(modelType ModelType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[modelType]) > 0
}
