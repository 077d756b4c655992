package block

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/opsrunbook/engine/pkg/aichat"
	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/contextstore"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/mcp"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/runbookdocs"
)

// AIChatMCPServerProps names one MCP tool server an ai_chat block's session
// may call into.
type AIChatMCPServerProps struct {
	ID          string            `json:"id"`
	Transport   string            `json:"transport,omitempty"` // "stdio" (default), "http", "sse"
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	URL         string            `json:"url,omitempty"`
	BearerToken string            `json:"bearer_token,omitempty"`
}

// AIChatProps is an `ai_chat` block's static configuration.
type AIChatProps struct {
	SystemPrompt          string                  `json:"system_prompt"`
	Servers               []AIChatMCPServerProps  `json:"mcp_servers,omitempty"`
	ToolFilter            map[string][]string     `json:"tool_filter,omitempty"`
	RemediationRunbookURL string                  `json:"remediation_runbook_url,omitempty"`
}

// AIChatDeps bundles the shared collaborators every ai_chat block invocation
// needs, wired once at process startup. All fields may be left zero in a
// deployment that doesn't wire that collaborator (e.g. no MCP servers
// configured at all).
type AIChatDeps struct {
	Gateway     aichat.GatewayClient
	MCPFactory  *mcp.ClientFactory
	RunbookDocs *runbookdocs.Service
	Storage     contextstore.BlockContextStorage
	Log         *slog.Logger
}

type aiChatHandler struct {
	id    string
	props AIChatProps
	deps  AIChatDeps

	mu        sync.Mutex
	session   *aichat.Session
	mcpClient *mcp.Client
}

// NewAIChatFactory builds the document.Factory for the "ai_chat" block
// type, capturing deps for every session it starts.
func NewAIChatFactory(deps AIChatDeps) document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props AIChatProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &aiChatHandler{id: n.ID, props: props, deps: deps}, nil
	}
}

// PassiveContext is empty: an ai_chat block contributes nothing to the
// fold until it runs.
func (h *aiChatHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *aiChatHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	go func() {
		ec.BlockStarted()

		systemPrompt := h.resolveSystemPrompt(ec)
		executor, err := h.startToolExecutor(ec)
		if err != nil {
			ec.BlockFailed(err.Error())
			return
		}

		store := &sessionStoreAdapter{storage: h.deps.Storage, documentID: ec.RunbookID}
		session := aichat.NewSession(h.id, "ai_chat", systemPrompt, h.deps.Gateway, executor, store, h.log(),
			aichat.WithChunkHandler(func(c aichat.StreamChunk) {
				ec.SendOutput(execctx.BlockOutput{Object: map[string]any{"chunk_kind": string(c.Kind), "delta": c.Delta}})
			}),
			aichat.WithBlocksGeneratedHandler(func(toolCallID, args string) {
				ec.SendOutput(execctx.BlockOutput{Object: map[string]any{"blocks_generated": args, "tool_call_id": toolCallID}})
			}),
			aichat.WithStateChangeHandler(func(st aichat.State) {
				_ = ec.UpdateBlockState(func(state map[string]any) map[string]any {
					out := make(map[string]any, len(state)+1)
					for k, v := range state {
						out[k] = v
					}
					out["agent_state"] = string(st)
					return out
				})
			}),
			aichat.WithErrorHandler(func(msg string) {
				ec.SendOutput(execctx.BlockOutput{Object: map[string]any{"error": msg}})
			}),
		)
		if err := session.Restore(ec.CancellationToken()); err != nil {
			h.log().Warn("failed to restore chat session", "block_id", h.id, "error", err)
		}

		h.mu.Lock()
		h.session = session
		h.mu.Unlock()

		<-ec.CancellationToken().Done()
		session.Cancel()
		h.closeMCP()
		ec.BlockCancelled()
	}()

	return ec.Handle()
}

func (h *aiChatHandler) resolveSystemPrompt(ec *execctx.Context) string {
	systemPrompt := h.props.SystemPrompt
	if h.deps.RunbookDocs == nil || h.props.RemediationRunbookURL == "" {
		return systemPrompt
	}
	doc, err := h.deps.RunbookDocs.Resolve(ec.CancellationToken(), h.props.RemediationRunbookURL)
	if err != nil {
		h.log().Warn("failed to resolve remediation runbook", "block_id", h.id, "error", err)
		return systemPrompt
	}
	if doc == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\n" + doc
}

func (h *aiChatHandler) startToolExecutor(ec *execctx.Context) (aichat.ToolExecutor, error) {
	if h.deps.MCPFactory == nil || len(h.props.Servers) == 0 {
		return nil, nil
	}
	serverIDs := make([]string, len(h.props.Servers))
	for i, s := range h.props.Servers {
		serverIDs[i] = s.ID
	}
	toolExec, client, err := h.deps.MCPFactory.CreateToolExecutor(ec.CancellationToken(), serverIDs, h.props.ToolFilter)
	if err != nil {
		return nil, fmt.Errorf("ai_chat: connect tool servers: %w", err)
	}
	h.mu.Lock()
	h.mcpClient = client
	h.mu.Unlock()
	return &mcpExecutorAdapter{exec: toolExec}, nil
}

// HandleMessage implements document.MessageHandler, letting a front-end
// drive an already-started chat session.
func (h *aiChatHandler) HandleMessage(msg map[string]any) error {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session == nil {
		return fmt.Errorf("ai_chat: session not started")
	}

	switch kind, _ := msg["type"].(string); kind {
	case "user_message":
		content, _ := msg["content"].(string)
		session.HandleUserMessage(context.Background(), content)
	case "resolve_tool":
		callID, _ := msg["tool_call_id"].(string)
		content, _ := msg["content"].(string)
		isError, _ := msg["is_error"].(bool)
		session.ResolveTool(context.Background(), aichat.ToolResult{CallID: callID, Content: content, IsError: isError})
	case "update_system_prompt":
		prompt, _ := msg["system_prompt"].(string)
		session.UpdateSystemPrompt(prompt)
	case "cancel":
		session.Cancel()
	default:
		return fmt.Errorf("ai_chat: unknown message type %q", kind)
	}
	return nil
}

func (h *aiChatHandler) closeMCP() {
	h.mu.Lock()
	client := h.mcpClient
	h.mu.Unlock()
	if client != nil {
		_ = client.Close()
	}
}

func (h *aiChatHandler) log() *slog.Logger {
	if h.deps.Log != nil {
		return h.deps.Log
	}
	return slog.Default()
}

// mcpExecutorAdapter adapts *mcp.ToolExecutor onto aichat.ToolExecutor —
// two independent packages' equivalent but distinct ToolCall/ToolResult
// shapes, kept separate so pkg/aichat never needs to import pkg/mcp.
type mcpExecutorAdapter struct {
	exec *mcp.ToolExecutor
}

func (a *mcpExecutorAdapter) Execute(ctx context.Context, call aichat.ToolCall) (aichat.ToolResult, error) {
	result, err := a.exec.Execute(ctx, mcp.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	if err != nil {
		return aichat.ToolResult{}, err
	}
	if result == nil {
		return aichat.ToolResult{CallID: call.ID, Name: call.Name}, nil
	}
	return aichat.ToolResult{CallID: result.CallID, Name: result.Name, Content: result.Content, IsError: result.IsError}, nil
}

func (a *mcpExecutorAdapter) ListTools(ctx context.Context) ([]aichat.ToolDefinition, error) {
	defs, err := a.exec.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]aichat.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = aichat.ToolDefinition{Name: d.Name, Description: d.Description, ParametersSchema: d.ParametersSchema}
	}
	return out, nil
}

// sessionStoreAdapter adapts contextstore.BlockContextStorage onto
// aichat.SessionStore, keyed by (documentID, blockID=sessionID) so chat
// sessions reuse the engine's one persistence backend instead of needing
// their own.
type sessionStoreAdapter struct {
	storage    contextstore.BlockContextStorage
	documentID string
}

func (s *sessionStoreAdapter) SaveSession(ctx context.Context, sessionID string, data []byte) error {
	if s.storage == nil {
		return nil
	}
	return s.storage.Save(ctx, s.documentID, sessionID, data)
}

func (s *sessionStoreAdapter) LoadSession(ctx context.Context, sessionID string) ([]byte, bool, error) {
	if s.storage == nil {
		return nil, false, nil
	}
	return s.storage.Load(ctx, s.documentID, sessionID)
}
