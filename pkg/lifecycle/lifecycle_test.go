package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandleStartsRunning(t *testing.T) {
	h, _ := NewHandle(context.Background(), "exec-1", "block-1", "")
	assert.Equal(t, StatusRunning, h.Status())
}

func TestFirstTerminalWins(t *testing.T) {
	h, _ := NewHandle(context.Background(), "exec-1", "block-1", "")
	won1 := h.MarkFailed("boom")
	won2 := h.MarkCancelled()
	assert.True(t, won1)
	assert.False(t, won2)
	assert.Equal(t, StatusFailed, h.Status())
	assert.Equal(t, "boom", h.Message())
}

func TestCancelPropagatesToContext(t *testing.T) {
	h, ctx := NewHandle(context.Background(), "exec-1", "block-1", "")
	h.Cancel()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}

func TestWaitForCompletion(t *testing.T) {
	h, _ := NewHandle(context.Background(), "exec-1", "block-1", "")
	go func() {
		time.Sleep(10 * time.Millisecond)
		h.MarkSuccess()
	}()
	status := h.WaitForCompletion(context.Background())
	require.Equal(t, StatusSuccess, status)
}

func TestEventKindIsTerminal(t *testing.T) {
	assert.True(t, EventFinished.IsTerminal())
	assert.True(t, EventFailed.IsTerminal())
	assert.True(t, EventCancelled.IsTerminal())
	assert.True(t, EventPaused.IsTerminal())
	assert.False(t, EventStarted.IsTerminal())
	assert.False(t, EventOutput.IsTerminal())
}
