package gatewayclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrunbook/engine/pkg/aichat"
)

func TestToWireRequestRoundTripsMessages(t *testing.T) {
	req := aichat.GenerateRequest{
		SessionID: "s1",
		Messages: []aichat.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", ToolCalls: []aichat.ToolCall{{ID: "a", Name: "t", Arguments: "{}"}}},
		},
		Tools: []aichat.ToolDefinition{{Name: "ping", Description: "pings"}},
	}

	wire := toWireRequest(req)
	require.Len(t, wire.Messages, 2)
	assert.Equal(t, "hi", wire.Messages[0].Content)
	require.Len(t, wire.Messages[1].ToolCalls, 1)
	assert.Equal(t, "t", wire.Messages[1].ToolCalls[0].Name)
	require.Len(t, wire.Tools, 1)
	assert.Equal(t, "ping", wire.Tools[0].Name)
}

func TestFromWireChunkDiscriminatesByType(t *testing.T) {
	assert.Equal(t, aichat.TextChunk{Content: "hi"}, fromWireChunk(wireChunk{Type: wireChunkText, Text: "hi"}))
	assert.Equal(t, aichat.ThinkingChunk{Content: "hm"}, fromWireChunk(wireChunk{Type: wireChunkThinking, Thinking: "hm"}))
	assert.Equal(t, aichat.ErrorChunk{Message: "boom", Retryable: true}, fromWireChunk(wireChunk{Type: wireChunkError, Error: "boom", Retryable: true}))
	assert.Nil(t, fromWireChunk(wireChunk{Type: "unknown"}))

	tc := fromWireChunk(wireChunk{Type: wireChunkToolCall, ToolCall: &wireToolCall{ID: "a", Name: "n", Arguments: "{}"}})
	assert.Equal(t, aichat.ToolCallChunk{CallID: "a", Name: "n", Arguments: "{}"}, tc)
}
