package execctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

type fakeSink struct {
	messages []bridge.Message
	events   []bridge.GCEvent
}

func (f *fakeSink) Broadcast(channel string, msg bridge.Message) { f.messages = append(f.messages, msg) }
func (f *fakeSink) PublishEvent(evt bridge.GCEvent)               { f.events = append(f.events, evt) }

type fakeActiveUpdater struct {
	blockID string
	ctx     *blockcontext.Context
}

func (f *fakeActiveUpdater) UpdateActiveContext(blockID string, fn func(*blockcontext.Context)) error {
	f.blockID = blockID
	if f.ctx == nil {
		f.ctx = blockcontext.New()
	}
	fn(f.ctx)
	return nil
}

type fakeStateUpdater struct {
	state map[string]any
}

func (f *fakeStateUpdater) UpdateBlockState(blockID string, fn func(map[string]any) map[string]any) error {
	f.state = fn(f.state)
	return nil
}

func newTestContext(t *testing.T, sink OutputSink, au ActiveContextUpdater, su BlockStateUpdater) (*Context, *lifecycle.Handle) {
	t.Helper()
	h, ctx := lifecycle.NewHandle(context.Background(), "h1", "b1", "out")
	ec := New("b1", "r1", "out", bridge.ChannelForDocument("r1"), resolver.New(), h, ctx, sink, nil, nil, au, su, nil)
	return ec, h
}

func TestBlockStartedBroadcastsAndPublishesGC(t *testing.T) {
	sink := &fakeSink{}
	ec, _ := newTestContext(t, sink, nil, nil)

	ec.BlockStarted()

	require.Len(t, sink.messages, 1)
	assert.Equal(t, bridge.MsgBlockStarted, sink.messages[0].Type)
	require.Len(t, sink.events, 1)
	assert.Equal(t, bridge.GCBlockStarted, sink.events[0].Kind)
}

func TestBlockFinishedMarksHandleSuccess(t *testing.T) {
	sink := &fakeSink{}
	ec, h := newTestContext(t, sink, nil, nil)

	code := 0
	ec.BlockFinished(&code, true)

	assert.Equal(t, lifecycle.StatusSuccess, h.Status())
	require.Len(t, sink.messages, 1)
	payload := sink.messages[0].Payload.(bridge.BlockOutputPayload)
	assert.True(t, payload.Lifecycle.Success)
}

func TestBlockFailedMarksHandleFailedWithMessage(t *testing.T) {
	sink := &fakeSink{}
	ec, h := newTestContext(t, sink, nil, nil)

	ec.BlockFailed("boom")

	assert.Equal(t, lifecycle.StatusFailed, h.Status())
	assert.Equal(t, "boom", h.Message())
	require.Len(t, sink.events, 1)
	assert.Equal(t, "boom", sink.events[0].Error)
}

func TestBlockCancelledMarksHandleCancelled(t *testing.T) {
	sink := &fakeSink{}
	ec, h := newTestContext(t, sink, nil, nil)

	ec.BlockCancelled()

	assert.Equal(t, lifecycle.StatusCancelled, h.Status())
}

func TestFirstTerminalEventWins(t *testing.T) {
	sink := &fakeSink{}
	ec, h := newTestContext(t, sink, nil, nil)

	ec.BlockFailed("first")
	ec.BlockCancelled()

	assert.Equal(t, lifecycle.StatusFailed, h.Status())
	assert.Equal(t, "first", h.Message())
}

func TestSendOutputDoesNotTouchHandleStatus(t *testing.T) {
	sink := &fakeSink{}
	ec, h := newTestContext(t, sink, nil, nil)

	stdout := "hello"
	ec.SendOutput(BlockOutput{Stdout: &stdout})

	assert.Equal(t, lifecycle.StatusRunning, h.Status())
	require.Len(t, sink.messages, 1)
	assert.Equal(t, bridge.MsgBlockOutput, sink.messages[0].Type)
}

func TestSetBlockOutputDelegatesToActiveUpdater(t *testing.T) {
	au := &fakeActiveUpdater{}
	ec, _ := newTestContext(t, &fakeSink{}, au, nil)

	err := ec.SetBlockOutput(blockcontext.ExecutionOutput{Fields: map[string]string{"result": "ok"}})
	require.NoError(t, err)

	assert.Equal(t, "b1", au.blockID)
	out, ok := au.ctx.ExecutionOutput()
	require.True(t, ok)
	val, ok := out.Get("result")
	require.True(t, ok)
	assert.Equal(t, "ok", val)
}

func TestUpdateBlockStateDelegatesToStateUpdater(t *testing.T) {
	su := &fakeStateUpdater{}
	ec, _ := newTestContext(t, &fakeSink{}, nil, su)

	err := ec.UpdateBlockState(func(prev map[string]any) map[string]any {
		return map[string]any{"count": 1}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, su.state["count"])
}

func TestCancellationTokenReflectsHandleCancel(t *testing.T) {
	ec, h := newTestContext(t, &fakeSink{}, nil, nil)

	h.Cancel()

	select {
	case <-ec.CancellationToken().Done():
	default:
		t.Fatal("expected cancellation token to be done after handle.Cancel()")
	}
}

func TestDispatchRoutesLifecycleEvents(t *testing.T) {
	sink := &fakeSink{}
	ec, h := newTestContext(t, sink, nil, nil)

	ec.Dispatch(lifecycle.Event{Kind: lifecycle.EventStarted})
	ec.Dispatch(lifecycle.Event{Kind: lifecycle.EventFinished, Success: true})

	assert.Equal(t, lifecycle.StatusSuccess, h.Status())
	require.Len(t, sink.messages, 2)
}
