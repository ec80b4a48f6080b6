package provider

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name     string
	position int
	private  bool
	dynamic  bool
	result   Result
	err      error
}

func (f *fakeProvider) Name() string     { return f.name }
func (f *fakeProvider) Position() int    { return f.position }
func (f *fakeProvider) Private() bool    { return f.private }
func (f *fakeProvider) Dynamic() bool    { return f.dynamic }
func (f *fakeProvider) Get(ctx context.Context, m Message, prior *State) (Result, error) {
	return f.result, f.err
}

func TestComposeMergesByPositionAndSkipsPrivate(t *testing.T) {
	c := NewComposer()
	c.Register(&fakeProvider{name: "A", position: 10, result: Result{Values: map[string]any{"a": 1}, Text: "A"}})
	c.Register(&fakeProvider{name: "B", position: 5, result: Result{Values: map[string]any{"b": 2, "a": 9}, Text: "B"}})
	c.Register(&fakeProvider{name: "C", position: 20, private: true, result: Result{Text: "C"}})

	st, err := c.Compose(context.Background(), Message{ID: uuid.New()}, ComposeOpts{})
	require.NoError(t, err)

	assert.Equal(t, "B\nA", st.Text)
	assert.Equal(t, "B\nA", st.Values["providers"])
	assert.EqualValues(t, 1, st.Values["a"])
	assert.EqualValues(t, 2, st.Values["b"])

	providersData, ok := st.Data["providers"].(map[string]any)
	require.True(t, ok)
	_, hasA := providersData["A"]
	_, hasB := providersData["B"]
	_, hasC := providersData["C"]
	assert.True(t, hasA)
	assert.True(t, hasB)
	assert.False(t, hasC)
}

func TestComposeOnlyIncludeUsesExactList(t *testing.T) {
	c := NewComposer()
	c.Register(&fakeProvider{name: "A", result: Result{Text: "A"}})
	c.Register(&fakeProvider{name: "B", result: Result{Text: "B"}})

	st, err := c.Compose(context.Background(), Message{ID: uuid.New()}, ComposeOpts{
		IncludeList: []string{"B"},
		OnlyInclude: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "B", st.Text)
}

func TestComposeProviderFailureFailsWholeComposition(t *testing.T) {
	c := NewComposer()
	c.Register(&fakeProvider{name: "A", result: Result{Text: "A"}})
	c.Register(&fakeProvider{name: "B", err: assert.AnError})

	_, err := c.Compose(context.Background(), Message{ID: uuid.New()}, ComposeOpts{})
	require.Error(t, err)
}

func TestComposeCachesByMessageID(t *testing.T) {
	c := NewComposer()
	c.Register(&fakeProvider{name: "A", result: Result{Text: "A", Values: map[string]any{"a": 1}}})

	id := uuid.New()
	_, err := c.Compose(context.Background(), Message{ID: id}, ComposeOpts{})
	require.NoError(t, err)

	cached, ok := c.CachedState(id)
	require.True(t, ok)
	assert.Equal(t, "A", cached.Text)
}
