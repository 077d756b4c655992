package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/opsrunbook/engine/pkg/bridge"
)

// cliSink wraps a bridge.Sink so the non-serve runbook driver gets the
// same WebSocket/GCEvent fan-out pkg/api wires (in case a future caller
// attaches a bridge client to a CLI-driven run) while also writing each
// block's stdout/stderr straight to the process's own streams. Lifecycle
// terminal events are logged instead of printed, keeping raw command
// output on stdout free of interleaved status lines.
type cliSink struct {
	inner  *bridge.Sink
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newCLISink(connections *bridge.ConnectionManager, events *bridge.EventBus, log *slog.Logger, stdout, stderr io.Writer) *cliSink {
	return &cliSink{
		inner:  bridge.NewSink(connections, events),
		log:    log,
		stdout: stdout,
		stderr: stderr,
	}
}

func (s *cliSink) Broadcast(channel string, msg bridge.Message) {
	s.inner.Broadcast(channel, msg)

	switch msg.Type {
	case bridge.MsgBlockOutput:
		payload, ok := msg.Payload.(bridge.BlockOutputPayload)
		if !ok {
			return
		}
		if payload.Stdout != nil {
			fmt.Fprint(s.stdout, *payload.Stdout)
		}
		if payload.Stderr != nil {
			fmt.Fprint(s.stderr, *payload.Stderr)
		}
	case bridge.MsgBlockFailed:
		s.log.Error("block failed", "block_id", msg.BlockID, "payload", msg.Payload)
	case bridge.MsgBlockCancelled:
		s.log.Warn("block cancelled", "block_id", msg.BlockID)
	case bridge.MsgBlockPaused:
		s.log.Info("block paused", "block_id", msg.BlockID)
	}
}

func (s *cliSink) PublishEvent(evt bridge.GCEvent) {
	s.inner.PublishEvent(evt)
}
