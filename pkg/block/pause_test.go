package block

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

func newPauseHandler(t *testing.T, props map[string]any) document.Handler {
	t.Helper()
	h, err := NewPauseFactory()(document.Node{ID: "p1", Type: "pause", Props: props})
	require.NoError(t, err)
	return h
}

func execPause(t *testing.T, h document.Handler) (*lifecycle.Handle, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	handle, cancel := lifecycle.NewHandle(context.Background(), "h1", "p1", "")
	ec := execctx.New("p1", "doc1", "", "chan1", resolver.New(), handle, cancel, sink, nil, nil, nil, nil, nil)
	require.NotNil(t, h.Execute(ec))
	return handle, sink
}

func TestUnconditionalPauseEmitsStartedThenPaused(t *testing.T) {
	h := newPauseHandler(t, map[string]any{})
	handle, sink := execPause(t, h)

	status := handle.WaitForCompletion(context.Background())
	assert.Equal(t, lifecycle.StatusPaused, status)

	// Exactly started then paused on the bridge; a pause never finishes.
	sink.mu.Lock()
	defer sink.mu.Unlock()
	var types []string
	for _, m := range sink.messages {
		types = append(types, m.Type)
	}
	assert.Equal(t, []string{bridge.MsgBlockStarted, bridge.MsgBlockPaused}, types)
}

func TestConditionalPauseResumesWhenConditionPasses(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	h := newPauseHandler(t, map[string]any{"condition": "true", "poll_interval_ms": 10})
	handle, _ := execPause(t, h)

	status := handle.WaitForCompletion(context.Background())
	assert.Equal(t, lifecycle.StatusSuccess, status)
}

func TestConditionalPauseCancelsWhileWaiting(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	h := newPauseHandler(t, map[string]any{"condition": "false", "poll_interval_ms": 10})
	handle, _ := execPause(t, h)

	time.Sleep(30 * time.Millisecond)
	handle.Cancel()
	status := handle.WaitForCompletion(context.Background())
	assert.Equal(t, lifecycle.StatusCancelled, status)
}
