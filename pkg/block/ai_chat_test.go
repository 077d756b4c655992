package block

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsrunbook/engine/pkg/aichat"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/lifecycle"
)

type fakeAIChatGateway struct {
	chunks []aichat.Chunk
}

func (g *fakeAIChatGateway) Generate(ctx context.Context, req aichat.GenerateRequest) (<-chan aichat.Chunk, context.CancelFunc, error) {
	out := make(chan aichat.Chunk, len(g.chunks))
	for _, c := range g.chunks {
		out <- c
	}
	close(out)
	return out, func() {}, nil
}

func TestAIChatHandlerStreamsAndCompletes(t *testing.T) {
	gateway := &fakeAIChatGateway{chunks: []aichat.Chunk{
		aichat.TextChunk{Content: "hello"},
	}}
	factory := NewAIChatFactory(AIChatDeps{Gateway: gateway})

	registry := document.Registry{"ai_chat": factory}
	parent := document.NewActor(document.Config{
		ID:       "doc1",
		Registry: registry,
		Sink:     noopSink{},
	})
	t.Cleanup(parent.Shutdown)

	require.NoError(t, parent.UpdateDocument([]document.Node{
		{ID: "c1", Type: "ai_chat", Props: map[string]any{"system_prompt": "you are helpful"}},
	}))

	handle, err := parent.ExecuteBlock("c1", nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, handle)
	assert.Equal(t, lifecycle.StatusRunning, handle.Status())

	require.NoError(t, parent.SendBlockMessage("c1", map[string]any{
		"type":    "user_message",
		"content": "hi",
	}))

	require.Eventually(t, func() bool {
		return handle.Status() == lifecycle.StatusRunning
	}, time.Second, time.Millisecond)

	handle.Cancel()
	status := handle.WaitForCompletion(context.Background())
	assert.Equal(t, lifecycle.StatusCancelled, status)
}

func TestAIChatHandlerRejectsMessageBeforeStart(t *testing.T) {
	factory := NewAIChatFactory(AIChatDeps{})
	h, err := factory(document.Node{ID: "c1", Type: "ai_chat", Props: map[string]any{"system_prompt": "hi"}})
	require.NoError(t, err)

	handler, ok := h.(*aiChatHandler)
	require.True(t, ok)
	assert.Error(t, handler.HandleMessage(map[string]any{"type": "user_message", "content": "hi"}))
}
