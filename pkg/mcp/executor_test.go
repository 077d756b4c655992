package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolExecutor_Execute_UnknownServerReturnsErrorResult(t *testing.T) {
	client := newClient(ServerSet{})
	executor := NewToolExecutor(client, []string{"kubernetes-server"}, nil, nil)

	result, err := executor.Execute(context.Background(), ToolCall{
		ID:        "call-1",
		Name:      "unknown-server.get_pods",
		Arguments: "{}",
	})

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "unknown-server")
}

func TestToolExecutor_Execute_ToolNotInFilter(t *testing.T) {
	client := newClient(ServerSet{})
	executor := NewToolExecutor(client, []string{"kubernetes-server"},
		map[string][]string{"kubernetes-server": {"get_pods"}}, nil)

	result, err := executor.Execute(context.Background(), ToolCall{
		ID:        "call-1",
		Name:      "kubernetes-server.delete_pod",
		Arguments: "{}",
	})

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "delete_pod")
}

func TestToolExecutor_Execute_NoSessionReturnsErrorResult(t *testing.T) {
	// The server is allowed but was never dialed: the failure surfaces as
	// an error tool result, not a Go error, so it lands in the transcript.
	client := newClient(ServerSet{})
	executor := NewToolExecutor(client, []string{"s"}, nil, nil)

	result, err := executor.Execute(context.Background(), ToolCall{
		ID:        "call-1",
		Name:      "s.anything",
		Arguments: "",
	})

	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "no session")
}

func TestNormalizeToolName(t *testing.T) {
	assert.Equal(t, "server.tool", NormalizeToolName("server__tool"))
	assert.Equal(t, "server.tool", NormalizeToolName("server.tool"))
}

func TestSplitToolName(t *testing.T) {
	server, tool, err := SplitToolName("kubernetes-server.get_pods")
	require.NoError(t, err)
	assert.Equal(t, "kubernetes-server", server)
	assert.Equal(t, "get_pods", tool)

	for _, bad := range []string{"", "nodot", ".tool", "server.", "server.tool.extra", "ser ver.tool", "-server.tool"} {
		_, _, err := SplitToolName(bad)
		assert.Error(t, err, "name %q", bad)
	}
}

func TestShouldRedial(t *testing.T) {
	assert.False(t, shouldRedial(nil))
	assert.False(t, shouldRedial(context.Canceled))
	assert.False(t, shouldRedial(context.DeadlineExceeded))
	assert.False(t, shouldRedial(errors.New("tool rejected the arguments")))

	assert.True(t, shouldRedial(io.EOF))
	assert.True(t, shouldRedial(fmt.Errorf("write: %w", io.ErrUnexpectedEOF)))
	assert.True(t, shouldRedial(errors.New("dial tcp: connection refused")))
	assert.True(t, shouldRedial(errors.New("read: Broken Pipe")))
}
