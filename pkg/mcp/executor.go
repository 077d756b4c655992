package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolCall is a single tool invocation requested by the AI chat FSM's
// PendingTools state.
type ToolCall struct {
	ID        string
	Name      string // "server.tool" or "server__tool" (NativeThinking-style)
	Arguments string // raw JSON/YAML/key-value text, parsed by ParseActionInput
}

// ToolResult is the outcome of executing a ToolCall, fed back into the chat
// transcript as a tool message.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// ToolDefinition describes a callable tool for inclusion in the gateway
// request's tool list.
type ToolDefinition struct {
	Name             string
	Description      string
	ParametersSchema string // JSON schema, serialized
}

// ToolExecutor implements the ai_chat block's ExecuteTools effect, backed by
// real MCP servers. Created per ai_chat block invocation by ClientFactory.
type ToolExecutor struct {
	client *Client

	// serverIDs is the resolved list of server IDs this executor can access.
	serverIDs []string

	// toolFilter restricts which tools are callable per server; nil means
	// all tools on that server are available.
	toolFilter map[string][]string

	// redact scrubs secrets out of tool result content before it is added to
	// the chat transcript. May be nil (no redaction).
	redact func(string) string
}

// NewToolExecutor creates a new executor for the given servers.
func NewToolExecutor(
	client *Client,
	serverIDs []string,
	toolFilter map[string][]string,
	redact func(string) string,
) *ToolExecutor {
	return &ToolExecutor{
		client:     client,
		serverIDs:  serverIDs,
		toolFilter: toolFilter,
		redact:     redact,
	}
}

// Execute runs a tool call via MCP.
//
// Flow: normalize name, split+validate "server.tool", parse arguments, call
// the MCP server, extract text content, redact secrets, return ToolResult.
// Errors from a bad name/filter or a failed MCP call are returned as an
// error ToolResult (not a Go error) — the chat FSM's tool-round loop treats
// both uniformly as a message in the transcript.
func (e *ToolExecutor) Execute(ctx context.Context, call ToolCall) (*ToolResult, error) {
	name := NormalizeToolName(call.Name)

	serverID, toolName, err := e.resolveToolCall(name)
	if err != nil {
		return &ToolResult{CallID: call.ID, Name: call.Name, Content: err.Error(), IsError: true}, nil
	}

	params, err := ParseActionInput(call.Arguments)
	if err != nil {
		return &ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: fmt.Sprintf("failed to parse tool arguments: %s", err),
			IsError: true,
		}, nil
	}

	result, err := e.client.CallTool(ctx, serverID, toolName, params)
	if err != nil {
		return &ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: fmt.Sprintf("tool execution failed: %s", err),
			IsError: true,
		}, nil
	}

	content := extractTextContent(result)
	if e.redact != nil {
		content = e.redact(content)
	}

	return &ToolResult{CallID: call.ID, Name: call.Name, Content: content, IsError: result.IsError}, nil
}

// ListTools returns all available tools from configured MCP servers, with
// server-prefixed names (e.g. "kubernetes-server.get_pods").
func (e *ToolExecutor) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	var allTools []ToolDefinition

	for _, serverID := range e.serverIDs {
		tools, err := e.client.ListTools(ctx, serverID)
		if err != nil {
			slog.Warn("failed to list tools from server", "server", serverID, "error", err)
			continue
		}

		for _, tool := range tools {
			if filter, ok := e.toolFilter[serverID]; ok && len(filter) > 0 {
				if !slices.Contains(filter, tool.Name) {
					continue
				}
			}

			allTools = append(allTools, ToolDefinition{
				Name:             fmt.Sprintf("%s.%s", serverID, tool.Name),
				Description:      tool.Description,
				ParametersSchema: marshalSchema(tool.InputSchema),
			})
		}
	}

	return allTools, nil
}

// Close releases resources (MCP transports, subprocesses).
func (e *ToolExecutor) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

func (e *ToolExecutor) resolveToolCall(name string) (serverID, toolName string, err error) {
	serverID, toolName, err = SplitToolName(name)
	if err != nil {
		return "", "", err
	}

	if !slices.Contains(e.serverIDs, serverID) {
		return "", "", fmt.Errorf(
			"server %q is not available for this chat session (available: %s)",
			serverID, strings.Join(e.serverIDs, ", "))
	}

	if filter, ok := e.toolFilter[serverID]; ok && len(filter) > 0 {
		if !slices.Contains(filter, toolName) {
			return "", "", fmt.Errorf(
				"tool %q is not available on server %q (available: %s)",
				toolName, serverID, strings.Join(filter, ", "))
		}
	}

	return serverID, toolName, nil
}

// extractTextContent concatenates all TextContent items from an MCP
// CallToolResult. Non-text content (images, embedded resources) is skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// marshalSchema serializes a tool's InputSchema to a JSON string.
func marshalSchema(schema any) string {
	if schema == nil {
		return ""
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return ""
	}
	return string(data)
}
