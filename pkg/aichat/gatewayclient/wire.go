package gatewayclient

// wireRequest is one streaming generation request, JSON-coded over the
// gRPC stream (see codec.go).
type wireRequest struct {
	SessionID string          `json:"session_id"`
	Messages  []wireMessage   `json:"messages"`
	Tools     []wireToolDef   `json:"tools,omitempty"`
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolDef struct {
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	ParametersSchema string `json:"parameters_schema,omitempty"`
}

// wireChunk is one streamed response frame. Exactly one of the typed
// fields is set, discriminated by Type.
type wireChunk struct {
	Type string `json:"type"`

	Text      string `json:"text,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	ToolCall  *wireToolCall `json:"tool_call,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`

	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

const (
	wireChunkText     = "text"
	wireChunkThinking = "thinking"
	wireChunkToolCall = "tool_call"
	wireChunkError    = "error"
	wireChunkUsage    = "usage"
)
