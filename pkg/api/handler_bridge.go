package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// bridgeHandler handles GET /runbooks/:id/bridge: upgrades to WebSocket
// and delegates to the shared ConnectionManager. The client
// subscribes to this runbook's channel with a {"action":"subscribe",
// "channel":"document:<id>"} control message per bridge.ClientMessage.
func (s *Server) bridgeHandler(c *gin.Context) {
	runbookID := c.Param("id")
	// Ensure the document actor exists before a client subscribes, so
	// early BlockContextUpdate messages aren't lost to an unopened channel.
	s.getOrCreateDocument(runbookID)

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		// Origin allowlisting is the caller's responsibility (pkg/config's
		// BridgeConfig.AllowedWSOrigins); this handler accepts any origin.
		InsecureSkipVerify: true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	s.deps.Connections.HandleConnection(c.Request.Context(), conn)
}
