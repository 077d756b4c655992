// Package mcp connects ai_chat tool execution to MCP (Model Context
// Protocol) tool servers: dialing transports, listing tools, and invoking
// them with retry on transport failure.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/opsrunbook/engine/pkg/version"
)

const (
	// initTimeout caps one server's transport creation + handshake.
	initTimeout = 30 * time.Second

	// callTimeout is the per-operation deadline for CallTool/ListTools.
	// Generous: some tools are legitimately slow.
	callTimeout = 90 * time.Second

	// redialTimeout caps tearing down and re-dialing a broken session.
	redialTimeout = 10 * time.Second

	// backoffFloor/backoffCeil bound the jittered pause before the single
	// retry attempt.
	backoffFloor = 250 * time.Millisecond
	backoffCeil  = 750 * time.Millisecond
)

// serverConn is one tool server's live state: the SDK session, the cached
// tool list, and a dial mutex that serializes (re)connection attempts so
// concurrent tool calls against a broken session don't all re-dial at once.
type serverConn struct {
	dialMu  sync.Mutex
	session *mcpsdk.ClientSession
	tools   []*mcpsdk.Tool
	lastErr string
}

// Client holds the connections one ai_chat invocation makes to its declared
// tool servers. Safe for concurrent tool calls; each Client is short-lived
// (per chat session), so cached tool lists are never invalidated except on
// re-dial.
type Client struct {
	servers ServerSet
	log     *slog.Logger

	mu    sync.Mutex
	conns map[string]*serverConn
}

func newClient(servers ServerSet) *Client {
	return &Client{
		servers: servers,
		log:     slog.Default(),
		conns:   make(map[string]*serverConn),
	}
}

// conn returns serverID's connection slot, creating an empty one on first
// reference.
func (c *Client) conn(serverID string) *serverConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.conns[serverID]
	if !ok {
		sc = &serverConn{}
		c.conns[serverID] = sc
	}
	return sc
}

// Initialize dials every listed server. A server that fails to connect is
// recorded and logged but does not fail the whole call — the chat session
// degrades to the servers that did come up, and FailedServers lets the
// caller decide whether that is acceptable.
func (c *Client) Initialize(ctx context.Context, serverIDs []string) error {
	for _, serverID := range serverIDs {
		sc := c.conn(serverID)
		sc.dialMu.Lock()
		err := c.dial(ctx, serverID, sc)
		sc.dialMu.Unlock()
		if err != nil {
			c.log.Warn("tool server failed to connect", "server", serverID, "error", err)
		}
	}
	return nil
}

// dial connects sc to serverID. Callers hold sc.dialMu. A no-op when the
// session is already up.
func (c *Client) dial(ctx context.Context, serverID string, sc *serverConn) error {
	if sc.session != nil {
		return nil
	}

	cfg, ok := c.servers.Get(serverID)
	if !ok {
		err := fmt.Errorf("server %q is not configured", serverID)
		sc.lastErr = err.Error()
		return err
	}
	transport, err := createTransport(cfg.Transport)
	if err != nil {
		sc.lastErr = err.Error()
		return fmt.Errorf("transport for %q: %w", serverID, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit(),
	}, nil)
	session, err := sdkClient.Connect(dialCtx, transport, nil)
	if err != nil {
		// The SDK closes the underlying connection on most failure paths;
		// closing here too guards stdio child processes against leaking.
		if closer, ok := transport.(io.Closer); ok {
			_ = closer.Close()
		}
		sc.lastErr = err.Error()
		return fmt.Errorf("connect %q: %w", serverID, err)
	}

	sc.session = session
	sc.lastErr = ""
	c.log.Info("tool server connected", "server", serverID)
	return nil
}

// ListTools returns serverID's tool list, cached after the first probe.
func (c *Client) ListTools(ctx context.Context, serverID string) ([]*mcpsdk.Tool, error) {
	sc := c.conn(serverID)

	sc.dialMu.Lock()
	tools, session := sc.tools, sc.session
	sc.dialMu.Unlock()
	if tools != nil {
		return tools, nil
	}
	if session == nil {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}

	opCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	result, err := session.ListTools(opCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools from %q: %w", serverID, err)
	}

	tools = result.Tools
	if tools == nil {
		tools = []*mcpsdk.Tool{}
	}
	sc.dialMu.Lock()
	sc.tools = tools
	sc.dialMu.Unlock()
	return tools, nil
}

// CallTool invokes one tool. On a transport-shaped failure the session is
// re-dialed once and the call retried after a jittered pause; every other
// failure (and a failed retry) goes straight back to the caller.
func (c *Client) CallTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcpsdk.CallToolResult, error) {
	params := &mcpsdk.CallToolParams{Name: toolName, Arguments: args}

	result, err := c.callOnce(ctx, serverID, params)
	if err == nil || !shouldRedial(err) {
		return result, err
	}

	c.log.Info("tool call failed on a broken transport, re-dialing",
		"server", serverID, "tool", toolName, "error", err)

	pause := backoffFloor + time.Duration(rand.Int64N(int64(backoffCeil-backoffFloor)))
	select {
	case <-time.After(pause):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := c.redial(ctx, serverID); err != nil {
		return nil, fmt.Errorf("re-dial %q: %w", serverID, err)
	}
	result, err = c.callOnce(ctx, serverID, params)
	if err != nil {
		return nil, fmt.Errorf("retry of %q.%s: %w", serverID, toolName, err)
	}
	return result, nil
}

func (c *Client) callOnce(ctx context.Context, serverID string, params *mcpsdk.CallToolParams) (*mcpsdk.CallToolResult, error) {
	sc := c.conn(serverID)
	sc.dialMu.Lock()
	session := sc.session
	sc.dialMu.Unlock()
	if session == nil {
		return nil, fmt.Errorf("no session for server %q", serverID)
	}

	opCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return session.CallTool(opCtx, params)
}

// redial drops serverID's session (and cached tools) and dials again. If two
// goroutines race in here, the loser tears down the winner's fresh session
// and dials a second time — wasteful but correct, and rare enough not to
// warrant a generation counter.
func (c *Client) redial(ctx context.Context, serverID string) error {
	sc := c.conn(serverID)
	sc.dialMu.Lock()
	defer sc.dialMu.Unlock()

	if sc.session != nil {
		_ = sc.session.Close()
		sc.session = nil
	}
	sc.tools = nil

	dialCtx, cancel := context.WithTimeout(ctx, redialTimeout)
	defer cancel()
	return c.dial(dialCtx, serverID, sc)
}

// Close shuts every session down, reporting the first error.
func (c *Client) Close() error {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]*serverConn)
	c.mu.Unlock()

	var firstErr error
	for id, sc := range conns {
		sc.dialMu.Lock()
		if sc.session != nil {
			if err := sc.session.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close session %q: %w", id, err)
			}
			sc.session = nil
		}
		sc.dialMu.Unlock()
	}
	return firstErr
}

// FailedServers reports every server whose most recent dial failed, mapped
// to its error text.
func (c *Client) FailedServers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	failed := make(map[string]string)
	for id, sc := range c.conns {
		sc.dialMu.Lock()
		if sc.session == nil && sc.lastErr != "" {
			failed[id] = sc.lastErr
		}
		sc.dialMu.Unlock()
	}
	return failed
}
