package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// executeRequest carries the caller-supplied extra template namespaces for
// one block execution; the SSH pool and PTY store are wired from the
// server's shared Deps, only the extra namespaces vary per call.
type executeRequest struct {
	ExtraNamespaces map[string]map[string]string `json:"extra_namespaces"`
}

// executeBlockHandler handles POST /runbooks/:id/blocks/:block_id/execute. A
// nil returned handle means the block was passive-only and already completed
// synchronously.
func (s *Server) executeBlockHandler(c *gin.Context) {
	entry := s.getOrCreateDocument(c.Param("id"))
	blockID := c.Param("block_id")

	var req executeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	handle, err := entry.handle.ExecuteBlock(blockID, req.ExtraNamespaces)
	if err != nil {
		writeError(c, err)
		return
	}
	if handle == nil {
		c.JSON(http.StatusOK, ExecuteResponse{BlockID: blockID, Passive: true})
		return
	}
	c.JSON(http.StatusAccepted, ExecuteResponse{BlockID: blockID, Status: string(handle.Status())})
}

// cancelBlockHandler handles POST /runbooks/:id/blocks/:block_id/cancel.
func (s *Server) cancelBlockHandler(c *gin.Context) {
	entry := s.getOrCreateDocument(c.Param("id"))
	blockID := c.Param("block_id")

	if err := entry.handle.Cancel(blockID); err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusAccepted)
}
