package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/opsrunbook/engine/pkg/lifecycle"
)

func TestWaitForTerminalReturnsImmediatelyOnSuccess(t *testing.T) {
	h, _ := lifecycle.NewHandle(context.Background(), "e1", "b1", "")
	h.MarkSuccess()

	status := waitForTerminal(context.Background(), h)
	assert.Equal(t, lifecycle.StatusSuccess, status)
}

func TestWaitForTerminalCancelsOnContextDone(t *testing.T) {
	h, hctx := lifecycle.NewHandle(context.Background(), "e1", "b1", "")
	ctx, cancel := context.WithCancel(context.Background())

	// Simulate the handler observing cancellation and marking itself
	// cancelled, the same way a real block handler's background goroutine
	// reacts to hctx.Done().
	go func() {
		<-hctx.Done()
		h.MarkCancelled()
	}()

	cancel()
	status := waitForTerminal(ctx, h)
	assert.Equal(t, lifecycle.StatusCancelled, status)
}

func TestWaitForTerminalWaitsPastSlowHandlerAfterCancel(t *testing.T) {
	h, hctx := lifecycle.NewHandle(context.Background(), "e1", "b1", "")
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-hctx.Done()
		time.Sleep(20 * time.Millisecond)
		h.MarkFailed("cleanup failed")
	}()

	cancel()
	status := waitForTerminal(ctx, h)
	assert.Equal(t, lifecycle.StatusFailed, status)
	assert.Equal(t, "cleanup failed", h.Message())
}
