package aichat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

// SubmitBlocksTool is the distinguished tool name that short-circuits normal
// tool execution: when the model calls it, the Session reports the generated
// blocks to its driver instead of invoking a ToolExecutor, and the FSM stays
// in PendingTools until the caller resolves that call id with ResolveTool
// (an acceptance or an edit).
const SubmitBlocksTool = "submit_blocks"

// Session wires one FSM to a GatewayClient and ToolExecutor, executing the
// Effects Dispatch returns. It owns the streaming goroutine, collects
// chunks, and reacts to tool calls found along the way.
type Session struct {
	ID   string
	Kind string

	log      *slog.Logger
	fsm      *FSM
	gateway  GatewayClient
	executor ToolExecutor
	store    SessionStore

	onChunk           func(StreamChunk)
	onBlocksGenerated func(toolCallID, argumentsJSON string)
	onStateChange     func(State)
	onError           func(message string)

	mu           sync.Mutex
	streamCancel context.CancelFunc
}

// Option configures a Session at construction time.
type Option func(*Session)

// WithChunkHandler registers the callback invoked for every EmitChunk
// effect (the bridge broadcast of streamed text/thinking deltas).
func WithChunkHandler(fn func(StreamChunk)) Option { return func(s *Session) { s.onChunk = fn } }

// WithBlocksGeneratedHandler registers the callback invoked when the model
// calls the submit_blocks tool.
func WithBlocksGeneratedHandler(fn func(toolCallID, argumentsJSON string)) Option {
	return func(s *Session) { s.onBlocksGenerated = fn }
}

// WithStateChangeHandler registers the callback invoked after every
// Dispatch whose effects moved the FSM to a new state.
func WithStateChangeHandler(fn func(State)) Option { return func(s *Session) { s.onStateChange = fn } }

// WithErrorHandler registers the callback invoked on EffectError.
func WithErrorHandler(fn func(message string)) Option { return func(s *Session) { s.onError = fn } }

// NewSession constructs a Session around a fresh FSM seeded with
// systemPrompt.
func NewSession(id, kind, systemPrompt string, gateway GatewayClient, executor ToolExecutor, store SessionStore, log *slog.Logger, opts ...Option) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		ID:       id,
		Kind:     kind,
		log:      log.With("session_id", id),
		fsm:      NewFSM(systemPrompt),
		gateway:  gateway,
		executor: executor,
		store:    store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a previously persisted snapshot, if store has one.
func (s *Session) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	data, ok, err := s.store.LoadSession(ctx, s.ID)
	if err != nil || !ok {
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.fsm.Restore(snap)
	return nil
}

// State returns the session's current FSM state.
func (s *Session) State() State { return s.fsm.State() }

// HandleUserMessage dispatches a new user message and runs any resulting
// effects.
func (s *Session) HandleUserMessage(ctx context.Context, content string) {
	s.dispatch(ctx, Event{Kind: EventUserMessage, UserMessage: content})
}

// UpdateSystemPrompt dispatches an updated system prompt, taking effect on
// the next request.
func (s *Session) UpdateSystemPrompt(systemPrompt string) {
	s.dispatch(context.Background(), Event{Kind: EventUpdateSystemPrompt, SystemPrompt: systemPrompt})
}

// ResolveTool feeds back the result of a tool call the driver held open
// (the submit_blocks path, or any executor call the caller wants to
// short-circuit), resuming the FSM exactly as a normal tool result would.
func (s *Session) ResolveTool(ctx context.Context, result ToolResult) {
	s.dispatch(ctx, Event{Kind: EventToolResult, ToolResult: &result})
}

// Cancel requests cooperative cancellation of any in-flight request.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.streamCancel
	s.mu.Unlock()
	s.dispatch(context.Background(), Event{Kind: EventCancel})
	if cancel != nil {
		cancel()
	}
}

func (s *Session) dispatch(ctx context.Context, evt Event) {
	effects := s.fsm.Dispatch(evt)
	s.runEffects(ctx, effects)
	if s.onStateChange != nil {
		s.onStateChange(s.fsm.State())
	}
	s.persist(ctx)
}

func (s *Session) runEffects(ctx context.Context, effects []Effect) {
	for _, e := range effects {
		switch e.Kind {
		case EffectStartRequest:
			go s.startRequest(ctx)
		case EffectEmitChunk:
			if s.onChunk != nil && e.Chunk != nil {
				s.onChunk(*e.Chunk)
			}
		case EffectExecuteTools:
			go s.executeTools(ctx, e.ToolCalls)
		case EffectError:
			if s.onError != nil {
				s.onError(e.Message)
			}
		case EffectResponseComplete, EffectCancelled, EffectToolResultReceived:
			// No I/O of their own; persistence happens once per dispatch in
			// the caller (see dispatch above).
		}
	}
}

func (s *Session) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	data, err := json.Marshal(s.fsm.Snapshot(s.ID, s.Kind))
	if err != nil {
		s.log.Warn("failed to marshal session snapshot", "error", err)
		return
	}
	if err := s.store.SaveSession(ctx, s.ID, data); err != nil {
		s.log.Warn("failed to persist session snapshot", "error", err)
	}
}

func (s *Session) startRequest(ctx context.Context) {
	reqCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.streamCancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.streamCancel = nil
		s.mu.Unlock()
		cancel()
	}()

	var tools []ToolDefinition
	if s.executor != nil {
		defs, err := s.executor.ListTools(reqCtx)
		if err != nil {
			s.log.Warn("failed to list tools", "error", err)
		} else {
			tools = defs
		}
	}

	req := GenerateRequest{SessionID: s.ID, Messages: s.fsm.Messages(), Tools: tools}
	chunks, streamCancel, err := s.gateway.Generate(reqCtx, req)
	if err != nil {
		s.dispatch(ctx, Event{Kind: EventRequestFailed, Err: err})
		return
	}
	s.mu.Lock()
	s.streamCancel = streamCancel
	s.mu.Unlock()

	var (
		text      []byte
		toolCalls []ToolCall
	)
	for chunk := range chunks {
		switch c := chunk.(type) {
		case TextChunk:
			text = append(text, c.Content...)
			s.dispatch(ctx, Event{Kind: EventStreamChunk, Chunk: &StreamChunk{Kind: ChunkText, Delta: c.Content}})
		case ThinkingChunk:
			s.dispatch(ctx, Event{Kind: EventStreamChunk, Chunk: &StreamChunk{Kind: ChunkThinking, Delta: c.Content}})
		case ToolCallChunk:
			toolCalls = append(toolCalls, ToolCall{ID: c.CallID, Name: c.Name, Arguments: c.Arguments})
		case ErrorChunk:
			s.dispatch(ctx, Event{Kind: EventRequestFailed, Err: toolchainError(c.Message)})
			return
		case UsageChunk:
			// Usage is telemetry only; nothing to fold into the FSM.
		}
	}

	if len(toolCalls) > 0 {
		s.dispatch(ctx, Event{Kind: EventToolCallsReceived, ToolCalls: toolCalls})
		return
	}
	s.dispatch(ctx, Event{Kind: EventStreamEnd, FinalText: string(text)})
}

func (s *Session) executeTools(ctx context.Context, calls []ToolCall) {
	for _, call := range calls {
		if call.Name == SubmitBlocksTool {
			if s.onBlocksGenerated != nil {
				s.onBlocksGenerated(call.ID, call.Arguments)
			}
			// Left pending: ResolveTool must be called once the front-end
			// accepts or edits the proposed blocks.
			continue
		}
		if s.executor == nil {
			s.dispatch(ctx, Event{Kind: EventToolResult, ToolResult: &ToolResult{
				CallID: call.ID, Name: call.Name, Content: "no tool executor configured", IsError: true,
			}})
			continue
		}
		result, err := s.executor.Execute(ctx, call)
		if err != nil {
			result = ToolResult{CallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true}
		}
		s.dispatch(ctx, Event{Kind: EventToolResult, ToolResult: &result})
	}
}

type toolchainError string

func (e toolchainError) Error() string { return string(e) }
