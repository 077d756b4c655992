package mcp

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// shouldRedial reports whether a tool-call failure looks like a dead
// transport, where tearing the session down and dialing again has a real
// chance of helping. Everything else — cancellation, deadline, a protocol
// error the server deliberately returned, or an unknown failure — is not
// retried: re-running a tool whose first attempt may have taken effect is
// worse than surfacing the error.
func shouldRedial(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A JSON-RPC error reached us over a working transport.
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		// A network timeout may just be a slow server; only non-timeout
		// network failures indicate a dead connection.
		return !netErr.Timeout()
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, shape := range []string{
		"connection refused",
		"connection reset",
		"connection closed",
		"broken pipe",
		"no such host",
	} {
		if strings.Contains(msg, shape) {
			return true
		}
	}
	return false
}
