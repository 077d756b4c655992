package aichat

import "sync"

// FSM is the pure chat state machine. It never performs I/O; Dispatch maps
// one Event onto the next State plus the Effects its driver (Session) must
// execute. All mutation happens under mu so a Session may call Dispatch from
// both its own goroutine and callbacks invoked from a streaming goroutine.
type FSM struct {
	mu sync.Mutex

	state        State
	systemPrompt string
	messages     []Message

	pendingToolCallIDs map[string]bool
	queuedUserMessages []string
	cancelled          bool
	lastError          string
}

// NewFSM starts a session Idle with systemPrompt as its first message.
func NewFSM(systemPrompt string) *FSM {
	return &FSM{
		state:        StateIdle,
		systemPrompt: systemPrompt,
	}
}

// State returns the FSM's current state.
func (f *FSM) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Messages returns a copy of the transcript accumulated so far.
func (f *FSM) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// Snapshot captures the FSM's persisted fields.
func (f *FSM) Snapshot(id, kind string) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	pending := make([]string, 0, len(f.pendingToolCallIDs))
	for id := range f.pendingToolCallIDs {
		pending = append(pending, id)
	}
	return Snapshot{
		ID:             id,
		Kind:           kind,
		SystemPrompt:   f.systemPrompt,
		State:          f.state,
		Messages:       append([]Message(nil), f.messages...),
		PendingToolIDs: pending,
	}
}

// Restore replaces the FSM's state with a previously persisted Snapshot.
func (f *FSM) Restore(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemPrompt = snap.SystemPrompt
	f.state = snap.State
	f.messages = append([]Message(nil), snap.Messages...)
	if len(snap.PendingToolIDs) > 0 {
		f.pendingToolCallIDs = make(map[string]bool, len(snap.PendingToolIDs))
		for _, id := range snap.PendingToolIDs {
			f.pendingToolCallIDs[id] = true
		}
	}
}

// Dispatch applies evt and returns the Effects the driver must execute.
func (f *FSM) Dispatch(evt Event) []Effect {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch evt.Kind {
	case EventUserMessage:
		return f.onUserMessage(evt)
	case EventCancel:
		return f.onCancel()
	case EventUpdateSystemPrompt:
		f.systemPrompt = evt.SystemPrompt
		return nil
	case EventStreamStart:
		f.state = StateStreaming
		return nil
	case EventStreamChunk:
		return []Effect{{Kind: EffectEmitChunk, Chunk: evt.Chunk}}
	case EventToolCallsReceived:
		return f.onToolCallsReceived(evt)
	case EventToolResult:
		return f.onToolResult(evt)
	case EventStreamEnd:
		return f.onStreamEnd(evt)
	case EventRequestFailed:
		return f.onRequestFailed(evt)
	}
	return nil
}

func (f *FSM) onUserMessage(evt Event) []Effect {
	if f.state == StatePendingTools {
		// Enqueued and drained exactly when the last outstanding tool result
		// arrives; a single LLM request is issued covering both.
		f.queuedUserMessages = append(f.queuedUserMessages, evt.UserMessage)
		return nil
	}
	f.messages = append(f.messages, Message{Role: "user", Content: evt.UserMessage})
	f.state = StateStreaming
	f.cancelled = false
	return []Effect{{Kind: EffectStartRequest}}
}

func (f *FSM) onCancel() []Effect {
	prev := f.state
	f.state = StateIdle
	f.pendingToolCallIDs = nil
	f.queuedUserMessages = nil
	if prev == StateIdle {
		return nil
	}
	f.cancelled = true
	return []Effect{{Kind: EffectCancelled}}
}

func (f *FSM) onToolCallsReceived(evt Event) []Effect {
	if f.cancelled {
		// The stream was cancelled while this response was in flight; a
		// late tool-calls frame must not revive the turn.
		f.cancelled = false
		return nil
	}
	f.state = StatePendingTools
	f.pendingToolCallIDs = make(map[string]bool, len(evt.ToolCalls))
	for _, tc := range evt.ToolCalls {
		f.pendingToolCallIDs[tc.ID] = true
	}
	f.messages = append(f.messages, Message{Role: "assistant", ToolCalls: evt.ToolCalls})
	return []Effect{{Kind: EffectExecuteTools, ToolCalls: evt.ToolCalls}}
}

func (f *FSM) onToolResult(evt Event) []Effect {
	tr := evt.ToolResult
	if tr == nil {
		return nil
	}
	f.messages = append(f.messages, Message{Role: "tool", Content: tr.Content, ToolCallID: tr.CallID})
	delete(f.pendingToolCallIDs, tr.CallID)

	effects := []Effect{{Kind: EffectToolResultReceived}}
	if len(f.pendingToolCallIDs) > 0 {
		return effects
	}

	for _, um := range f.queuedUserMessages {
		f.messages = append(f.messages, Message{Role: "user", Content: um})
	}
	f.queuedUserMessages = nil
	f.state = StateStreaming
	f.cancelled = false
	return append(effects, Effect{Kind: EffectStartRequest})
}

func (f *FSM) onStreamEnd(evt Event) []Effect {
	if f.cancelled {
		f.cancelled = false
		return nil
	}
	f.messages = append(f.messages, Message{Role: "assistant", Content: evt.FinalText})
	f.state = StateIdle
	return []Effect{{Kind: EffectResponseComplete}}
}

func (f *FSM) onRequestFailed(evt Event) []Effect {
	if f.cancelled {
		f.cancelled = false
		return nil
	}
	f.state = StateError
	if evt.Err != nil {
		f.lastError = evt.Err.Error()
	}
	return []Effect{{Kind: EffectError, Message: f.lastError}}
}
