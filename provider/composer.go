package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/google/uuid"
)

// Composer holds the registered providers and the per-message state cache.
type Composer struct {
	mu        sync.RWMutex
	providers map[string]Provider

	cacheMu sync.Mutex
	cache   map[uuid.UUID]*State
}

// NewComposer constructs an empty Composer.
func NewComposer() *Composer {
	return &Composer{
		providers: make(map[string]Provider),
		cache:     make(map[uuid.UUID]*State),
	}
}

// Register adds a provider, keyed by its own name. Re-registering the
// same name overwrites the previous provider.
func (c *Composer) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[p.Name()] = p
}

// CachedState returns the last composed State for a message id, if any.
func (c *Composer) CachedState(messageID uuid.UUID) (*State, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	s, ok := c.cache[messageID]
	return s, ok
}

// PutCache stores a State under an arbitrary key (used by the Action
// Engine to publish its per-turn action results under a derived key).
func (c *Composer) PutCache(key uuid.UUID, s *State) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[key] = s
}

// selected is a provider paired with its resolved position, used only to
// sort the selection before execution.
type selected struct {
	provider Provider
	position int
}

// selection builds the ordered provider set.
func (c *Composer) selection(includeList []string, onlyInclude bool) []selected {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make(map[string]struct{})
	var ordered []selected

	add := func(name string) {
		if _, dup := names[name]; dup {
			return
		}
		p, ok := c.providers[name]
		if !ok {
			return
		}
		names[name] = struct{}{}
		ordered = append(ordered, selected{provider: p, position: p.Position()})
	}

	if onlyInclude && len(includeList) > 0 {
		for _, name := range includeList {
			add(name)
		}
	} else {
		for _, p := range c.providers {
			if p.Private() || p.Dynamic() {
				continue
			}
			names[p.Name()] = struct{}{}
			ordered = append(ordered, selected{provider: p, position: p.Position()})
		}
		for _, name := range includeList {
			add(name)
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].position < ordered[j].position })
	return ordered
}

// ComposeOpts controls a single Compose call.
type ComposeOpts struct {
	IncludeList []string
	OnlyInclude bool
	SkipCache   bool
}

// Compose runs the Provider Composer for one message. All
// selected providers run concurrently; a single provider failure fails
// the whole composition.
func (c *Composer) Compose(ctx context.Context, m Message, opts ComposeOpts) (*State, error) {
	var prior *State
	if !opts.SkipCache {
		if cached, ok := c.CachedState(m.ID); ok {
			prior = cached
		}
	}

	sel := c.selection(opts.IncludeList, opts.OnlyInclude)

	results := make([]Result, len(sel))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range sel {
		i, s := i, s
		g.Go(func() error {
			res, err := s.provider.Get(gctx, m, prior)
			if err != nil {
				return fmt.Errorf("provider %s: %w", s.provider.Name(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeState(prior, sel, results)

	if m.ID != uuid.Nil {
		c.cacheMu.Lock()
		c.cache[m.ID] = merged
		c.cacheMu.Unlock()
	}
	return merged, nil
}

func mergeState(prior *State, sel []selected, results []Result) *State {
	out := prior.clone()

	priorProviders, _ := out.Data["providers"].(map[string]any)
	if priorProviders == nil {
		priorProviders = map[string]any{}
	}
	providersData := make(map[string]any, len(priorProviders))
	for k, v := range priorProviders {
		providersData[k] = v
	}
	for i, s := range sel {
		providersData[s.provider.Name()] = results[i]
	}
	out.Data["providers"] = providersData

	texts := make([]string, 0, len(sel))
	for _, r := range results {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	composedText := joinNonEmpty(texts, "\n")
	out.Text = composedText

	for i, s := range sel {
		for k, v := range results[i].Values {
			out.Values[k] = v
		}
		_ = s
	}
	// merge cached providers' values that were not refreshed this turn.
	if prior != nil {
		refreshed := make(map[string]struct{}, len(sel))
		for _, s := range sel {
			refreshed[s.provider.Name()] = struct{}{}
		}
		for name, raw := range priorProviders {
			if _, ok := refreshed[name]; ok {
				continue
			}
			if r, ok := raw.(Result); ok {
				for k, v := range r.Values {
					if _, exists := out.Values[k]; !exists {
						out.Values[k] = v
					}
				}
			}
		}
	}

	out.Values["providers"] = composedText
	return out
}

func joinNonEmpty(parts []string, sep string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out == "" {
			out = p
		} else {
			out = out + sep + p
		}
	}
	return out
}
