package execctx

import (
	"time"

	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/lifecycle"
)

// BlockStarted marks the handle running and broadcasts block.started.
func (c *Context) BlockStarted() {
	c.emit(bridge.MsgBlockStarted, bridge.BlockOutputPayload{
		Lifecycle: &bridge.Lifecycle{Started: true},
	})
	c.publishGC(bridge.GCBlockStarted, "")
}

// BlockFinished records success on the handle and broadcasts
// block.finished.
func (c *Context) BlockFinished(exitCode *int, success bool) {
	if c.handle != nil {
		if success {
			c.handle.MarkSuccess()
		} else {
			c.handle.MarkFailed("")
		}
	}
	c.emit(bridge.MsgBlockFinished, bridge.BlockOutputPayload{
		Lifecycle: &bridge.Lifecycle{Finished: true, ExitCode: exitCode, Success: success},
	})
	c.publishGC(bridge.GCBlockFinished, "")
}

// BlockFailed records a failure on the handle and broadcasts block.failed.
func (c *Context) BlockFailed(msg string) {
	if c.handle != nil {
		c.handle.MarkFailed(msg)
	}
	c.emit(bridge.MsgBlockFailed, bridge.BlockOutputPayload{
		Lifecycle: &bridge.Lifecycle{Finished: true, Error: msg},
	})
	c.publishGC(bridge.GCBlockFailed, msg)
}

// BlockCancelled records cancellation on the handle and broadcasts
// block.cancelled.
func (c *Context) BlockCancelled() {
	if c.handle != nil {
		c.handle.MarkCancelled()
	}
	c.emit(bridge.MsgBlockCancelled, bridge.BlockOutputPayload{
		Lifecycle: &bridge.Lifecycle{Finished: true, Cancelled: true},
	})
	c.publishGC(bridge.GCBlockCancelled, "")
}

// BlockPaused records the paused status on the handle and broadcasts
// block.paused.
func (c *Context) BlockPaused() {
	if c.handle != nil {
		c.handle.MarkPaused()
	}
	c.emit(bridge.MsgBlockPaused, bridge.BlockOutputPayload{})
}

// SendOutput broadcasts an intermediate output chunk (stdout/stderr/object/
// binary) without altering the handle's terminal status.
func (c *Context) SendOutput(out BlockOutput) {
	c.emit(bridge.MsgBlockOutput, bridge.BlockOutputPayload{
		Stdout: out.Stdout,
		Stderr: out.Stderr,
		Binary: out.Binary,
		Object: out.Object,
	})
}

// BlockOutput is the handler-facing shape for an intermediate output chunk,
// mirroring BlockOutputPayload minus the lifecycle sub-field a handler
// never sets directly.
type BlockOutput struct {
	Stdout *string
	Stderr *string
	Binary []byte
	Object map[string]any
}

func (c *Context) emit(msgType string, payload bridge.BlockOutputPayload) {
	if c.sink == nil {
		return
	}
	c.sink.Broadcast(c.ChannelName, bridge.Message{
		Type:      msgType,
		BlockID:   c.BlockID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

func (c *Context) publishGC(kind bridge.GCEventKind, errMsg string) {
	if c.sink == nil {
		return
	}
	c.sink.PublishEvent(bridge.GCEvent{
		Kind:      kind,
		BlockID:   c.BlockID,
		RunbookID: c.RunbookID,
		Success:   kind == bridge.GCBlockFinished,
		Error:     errMsg,
	})
}

// Dispatch routes a single lifecycle.Event emitted by a handler's streaming
// loop to the matching Block*/SendOutput wrapper, so handlers (script,
// terminal) can emit a uniform Event stream instead of calling each wrapper
// by name.
func (c *Context) Dispatch(evt lifecycle.Event) {
	switch evt.Kind {
	case lifecycle.EventStarted:
		c.BlockStarted()
	case lifecycle.EventOutput:
		c.SendOutput(BlockOutput{Stdout: evt.Stdout, Stderr: evt.Stderr, Binary: evt.Binary, Object: evt.Object})
	case lifecycle.EventFinished:
		c.BlockFinished(evt.ExitCode, evt.Success)
	case lifecycle.EventFailed:
		c.BlockFailed(evt.Message)
	case lifecycle.EventCancelled:
		c.BlockCancelled()
	case lifecycle.EventPaused:
		c.BlockPaused()
	}
}
