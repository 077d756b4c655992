package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/contextstore"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// varHandler is a minimal Handler for tests: it declares one variable from
// its props, with no execution side effects.
type varHandler struct {
	name, value string
}

func (h *varHandler) PassiveContext(res *resolver.Resolver, local LocalValueProvider) (*blockcontext.Context, error) {
	ctx := blockcontext.New()
	vars := blockcontext.Vars{}
	vars.Upsert(blockcontext.Var{Name: h.name, Value: h.value})
	ctx.Insert(blockcontext.TagVars, vars)
	return ctx, nil
}

func (h *varHandler) Execute(ec *execctx.Context) *lifecycle.Handle { return nil }

// brokenHandler always fails passive context computation.
type brokenHandler struct{ err error }

func (h *brokenHandler) PassiveContext(res *resolver.Resolver, local LocalValueProvider) (*blockcontext.Context, error) {
	return nil, h.err
}
func (h *brokenHandler) Execute(ec *execctx.Context) *lifecycle.Handle { return nil }

func testRegistry() Registry {
	return Registry{
		"var": func(n Node) (Handler, error) {
			name, _ := n.Props["name"].(string)
			value, _ := n.Props["value"].(string)
			return &varHandler{name: name, value: value}, nil
		},
		"broken": func(n Node) (Handler, error) {
			return &brokenHandler{err: errors.New("boom")}, nil
		},
	}
}

func varNode(id, name, value string) Node {
	return Node{ID: id, Type: "var", Props: map[string]any{"name": name, "value": value}}
}

type fakeSink struct {
	messages []bridge.Message
	events   []bridge.GCEvent
}

func (s *fakeSink) Broadcast(channel string, msg bridge.Message) { s.messages = append(s.messages, msg) }
func (s *fakeSink) PublishEvent(evt bridge.GCEvent)               { s.events = append(s.events, evt) }

func newTestActor(t *testing.T, sink *fakeSink) *Actor {
	t.Helper()
	a := NewActor(Config{
		ID:            "doc1",
		Registry:      testRegistry(),
		Storage:       contextstore.NewMemory(),
		Sink:          sink,
		WorkspaceRoot: "/srv/app",
	})
	t.Cleanup(a.Shutdown)
	return a
}

func TestUpdateDocumentFoldsVariablesInOrder(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)

	err := a.UpdateDocument([]Node{
		varNode("b1", "first", "hello"),
		varNode("b2", "second", "{{ var.first }} world"),
	})
	require.NoError(t, err)

	rc, err := a.GetResolvedContext("b2")
	require.NoError(t, err)
	assert.Equal(t, "hello world", rc.Variables["second"])
	assert.Equal(t, "b2", rc.VariableSources["second"])
}

func TestUpdateDocumentBroadcastsContextUpdatePerBlock(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)

	require.NoError(t, a.UpdateDocument([]Node{
		varNode("b1", "x", "1"),
		varNode("b2", "y", "2"),
	}))

	var contextUpdates int
	for _, m := range sink.messages {
		if m.Type == bridge.MsgBlockContextUpdate {
			contextUpdates++
		}
	}
	assert.Equal(t, 2, contextUpdates)
}

func TestUpdateDocumentSkipsUnknownType(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)

	require.NoError(t, a.UpdateDocument([]Node{
		{ID: "b1", Type: "mystery"},
		varNode("b2", "x", "1"),
	}))

	blocks := a.GetBlocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, "b2", blocks[0].Node.ID)
}

func TestUpdateDocumentReorderOnlyStillRefoldsFromMoveIndex(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)

	require.NoError(t, a.UpdateDocument([]Node{
		varNode("b1", "x", "1"),
		varNode("b2", "y", "2"),
	}))
	sink.messages = nil

	require.NoError(t, a.UpdateDocument([]Node{
		varNode("b2", "y", "2"),
		varNode("b1", "x", "1"),
	}))

	rc, err := a.GetResolvedContext("b1")
	require.NoError(t, err)
	assert.Equal(t, "1", rc.Variables["x"])
	assert.Equal(t, "2", rc.Variables["y"])

	var contextUpdates int
	for _, m := range sink.messages {
		if m.Type == bridge.MsgBlockContextUpdate {
			contextUpdates++
		}
	}
	assert.Equal(t, 2, contextUpdates, "both blocks moved, so both refold")
}

func TestUpdateDocumentRemovalDeletesStoredContext(t *testing.T) {
	sink := &fakeSink{}
	store := contextstore.NewMemory()
	a := NewActor(Config{ID: "doc1", Registry: testRegistry(), Storage: store, Sink: sink})
	t.Cleanup(a.Shutdown)

	require.NoError(t, a.UpdateDocument([]Node{varNode("b1", "x", "1")}))
	require.NoError(t, a.UpdateActiveContext("b1", func(c *blockcontext.Context) {
		c.Insert(blockcontext.TagCwd, blockcontext.Cwd("/tmp"))
	}))

	_, found, err := store.Load(context.Background(), "doc1", "b1")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, a.UpdateDocument(nil))

	_, found, err = store.Load(context.Background(), "doc1", "b1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPassiveContextFailureResetsToEmptyAndPublishesGCEvent(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)

	require.NoError(t, a.UpdateDocument([]Node{
		{ID: "b1", Type: "broken"},
	}))

	blocks := a.GetBlocks()
	require.Len(t, blocks, 1)

	require.NotEmpty(t, sink.events)
	assert.Equal(t, bridge.GCBlockFailed, sink.events[0].Kind)
	assert.Equal(t, "b1", sink.events[0].BlockID)
}

func TestBlockLocalValueChangedUnknownBlockReturnsError(t *testing.T) {
	a := newTestActor(t, &fakeSink{})
	err := a.BlockLocalValueChanged("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestUpdateActiveContextPersistsAndTriggersRebuild(t *testing.T) {
	sink := &fakeSink{}
	store := contextstore.NewMemory()
	a := NewActor(Config{ID: "doc1", Registry: testRegistry(), Storage: store, Sink: sink})
	t.Cleanup(a.Shutdown)

	require.NoError(t, a.UpdateDocument([]Node{varNode("b1", "x", "1")}))

	require.NoError(t, a.UpdateActiveContext("b1", func(c *blockcontext.Context) {
		vars := blockcontext.Vars{}
		vars.Upsert(blockcontext.Var{Name: "y", Value: "active"})
		c.Insert(blockcontext.TagVars, vars)
	}))

	rc, err := a.GetResolvedContext("b1")
	require.NoError(t, err)
	assert.Equal(t, "active", rc.Variables["y"])

	data, found, err := store.Load(context.Background(), "doc1", "b1")
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, data)
}

func TestUpdateBlockStateBroadcastsOnlyWhenChanged(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)
	require.NoError(t, a.UpdateDocument([]Node{varNode("b1", "x", "1")}))
	sink.messages = nil

	require.NoError(t, a.UpdateBlockState("b1", func(s map[string]any) map[string]any {
		return map[string]any{"collapsed": true}
	}))
	require.NoError(t, a.UpdateBlockState("b1", func(s map[string]any) map[string]any {
		return s // unchanged
	}))

	var stateChanges int
	for _, m := range sink.messages {
		if m.Type == bridge.MsgBlockStateChanged {
			stateChanges++
		}
	}
	assert.Equal(t, 1, stateChanges)
}

func TestCreateExecutionContextExcludesBlocksOwnContext(t *testing.T) {
	a := newTestActor(t, &fakeSink{})
	require.NoError(t, a.UpdateDocument([]Node{
		varNode("b1", "x", "1"),
		varNode("b2", "y", "2"),
	}))

	ec, err := a.CreateExecutionContext("b2", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "1", ec.ContextResolver().Vars()["x"])
	_, hasY := ec.ContextResolver().Vars()["y"]
	assert.False(t, hasY, "b2's own context must not be folded in yet")
	assert.NotNil(t, ec.Handle())
}

func TestGetBlocksReturnsIndependentClones(t *testing.T) {
	a := newTestActor(t, &fakeSink{})
	require.NoError(t, a.UpdateDocument([]Node{varNode("b1", "x", "1")}))

	views := a.GetBlocks()
	views[0].State["mutated"] = true

	again := a.GetBlocks()
	_, present := again[0].State["mutated"]
	assert.False(t, present)
}

func TestResetStateDropsCacheAndRebroadcasts(t *testing.T) {
	sink := &fakeSink{}
	a := newTestActor(t, sink)
	require.NoError(t, a.UpdateDocument([]Node{varNode("b1", "x", "1")}))
	sink.messages = nil

	require.NoError(t, a.ResetState())

	var contextUpdates int
	for _, m := range sink.messages {
		if m.Type == bridge.MsgBlockContextUpdate {
			contextUpdates++
		}
	}
	assert.Equal(t, 1, contextUpdates)
}
