package mcp

import "context"

// ClientFactory creates Client instances for ai_chat block invocations.
type ClientFactory struct {
	servers ServerSet
	redact  func(string) string
}

// NewClientFactory creates a new factory. redact may be nil (no redaction
// of tool results before they reach the chat transcript).
func NewClientFactory(servers ServerSet, redact func(string) string) *ClientFactory {
	return &ClientFactory{servers: servers, redact: redact}
}

// CreateClient dials the listed servers and returns the connected Client.
// The caller owns the Client and must Close it.
func (f *ClientFactory) CreateClient(ctx context.Context, serverIDs []string) (*Client, error) {
	client := newClient(f.servers)
	if err := client.Initialize(ctx, serverIDs); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// CreateToolExecutor creates a fully-wired ToolExecutor for an ai_chat
// block.
func (f *ClientFactory) CreateToolExecutor(
	ctx context.Context,
	serverIDs []string,
	toolFilter map[string][]string,
) (*ToolExecutor, *Client, error) {
	client, err := f.CreateClient(ctx, serverIDs)
	if err != nil {
		return nil, nil, err
	}
	return NewToolExecutor(client, serverIDs, toolFilter, f.redact), client, nil
}
