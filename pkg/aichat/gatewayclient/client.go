package gatewayclient

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/opsrunbook/engine/pkg/aichat"
)

// generateMethod is the fully qualified gRPC method name this client
// streams against.
const generateMethod = "/runbook.gateway.v1.Gateway/Generate"

// Client implements aichat.GatewayClient by calling an external streaming
// LLM gateway over gRPC.
//
// Uses insecure (plaintext) transport — the gateway is expected to run as a
// sidecar or on localhost. Deploying across a network boundary needs TLS
// credentials instead.
type Client struct {
	conn *grpc.ClientConn
}

// New dials addr and returns a ready Client.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("gatewayclient: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Generate opens one server-streaming Generate call and returns a channel of
// aichat.Chunk decoded from the gateway's stream, plus a cancel func that
// aborts it.
func (c *Client) Generate(ctx context.Context, req aichat.GenerateRequest) (<-chan aichat.Chunk, context.CancelFunc, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	stream, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{
		StreamName:    "Generate",
		ServerStreams: true,
	}, generateMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("gatewayclient: open stream: %w", err)
	}

	if err := stream.SendMsg(toWireRequest(req)); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("gatewayclient: send request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("gatewayclient: close send: %w", err)
	}

	ch := make(chan aichat.Chunk, 32)
	go func() {
		defer close(ch)
		defer cancel()
		for {
			var frame wireChunk
			err := stream.RecvMsg(&frame)
			if err == io.EOF {
				return
			}
			if err != nil {
				select {
				case ch <- aichat.ErrorChunk{Message: err.Error(), Retryable: false}:
				case <-streamCtx.Done():
				}
				return
			}
			chunk := fromWireChunk(frame)
			if chunk == nil {
				continue
			}
			select {
			case ch <- chunk:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return ch, cancel, nil
}

func toWireRequest(req aichat.GenerateRequest) *wireRequest {
	out := &wireRequest{SessionID: req.SessionID}
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
		out.Messages = append(out.Messages, wm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireToolDef{Name: t.Name, Description: t.Description, ParametersSchema: t.ParametersSchema})
	}
	return out
}

func fromWireChunk(f wireChunk) aichat.Chunk {
	switch f.Type {
	case wireChunkText:
		return aichat.TextChunk{Content: f.Text}
	case wireChunkThinking:
		return aichat.ThinkingChunk{Content: f.Thinking}
	case wireChunkToolCall:
		if f.ToolCall == nil {
			return nil
		}
		return aichat.ToolCallChunk{CallID: f.ToolCall.ID, Name: f.ToolCall.Name, Arguments: f.ToolCall.Arguments}
	case wireChunkError:
		return aichat.ErrorChunk{Message: f.Error, Retryable: f.Retryable}
	case wireChunkUsage:
		return aichat.UsageChunk{InputTokens: f.InputTokens, OutputTokens: f.OutputTokens, TotalTokens: f.TotalTokens}
	default:
		return nil
	}
}
