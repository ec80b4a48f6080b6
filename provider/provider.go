// Package provider implements the Provider Composer:
// ordered, concurrent provider invocation producing a merged State, with
// per-message caching. Registration uses a read-lock/copy/invoke-outside-
// the-lock snapshot pattern, and golang.org/x/sync/errgroup drives the
// concurrent fan-out itself.
package provider

import (
	"context"

	"github.com/google/uuid"
)

// Message is the minimal shape the Composer needs from an inbound message.
type Message struct {
	ID      uuid.UUID
	RoomID  uuid.UUID
	WorldID uuid.UUID
}

// Result is what a single provider returns for one composition.
type Result struct {
	Values map[string]any
	Text   string
	Data   map[string]any
}

// Provider is a read-only context source.
type Provider interface {
	Name() string
	// Position orders providers ascending; default 0.
	Position() int
	// Private providers are never included in the default selection; they
	// must be named explicitly via includeList.
	Private() bool
	// Dynamic providers behave like Private for default-selection purposes.
	Dynamic() bool
	Get(ctx context.Context, m Message, prior *State) (Result, error)
}

// State is the composed context for one turn.
type State struct {
	Values map[string]any
	Data   map[string]any
	Text   string
}

// clone deep-copies the top-level maps of a State so cached entries are
// never mutated by a later compose.
func (s *State) clone() *State {
	if s == nil {
		return &State{Values: map[string]any{}, Data: map[string]any{}}
	}
	cp := &State{Values: make(map[string]any, len(s.Values)), Data: make(map[string]any, len(s.Data)), Text: s.Text}
	for k, v := range s.Values {
		cp.Values[k] = v
	}
	for k, v := range s.Data {
		cp.Data[k] = v
	}
	return cp
}
