package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsrunbook/engine/pkg/document"
)

// submitDocumentHandler handles POST /runbooks/:id/document: the front-end's
// document JSON replaces the runbook's current content, triggering the
// reconciliation diff and incremental rebuild.
func (s *Server) submitDocumentHandler(c *gin.Context) {
	runbookID := c.Param("id")

	var nodes []document.Node
	if err := c.ShouldBindJSON(&nodes); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	entry := s.getOrCreateDocument(runbookID)
	if err := entry.actor.UpdateDocument(nodes); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listBlocksHandler handles GET /runbooks/:id/blocks.
func (s *Server) listBlocksHandler(c *gin.Context) {
	runbookID := c.Param("id")
	entry := s.getOrCreateDocument(runbookID)

	views := entry.actor.GetBlocks()
	out := make([]BlockSummary, 0, len(views))
	for _, v := range views {
		out = append(out, BlockSummary{ID: v.Node.ID, Type: v.Node.Type, Name: v.Node.Name})
	}
	c.JSON(http.StatusOK, BlockListResponse{Blocks: out})
}

// getBlockHandler handles GET /runbooks/:id/blocks/:block_id.
func (s *Server) getBlockHandler(c *gin.Context) {
	entry := s.getOrCreateDocument(c.Param("id"))
	view, err := entry.actor.GetBlock(c.Param("block_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getResolvedContextHandler handles GET
// /runbooks/:id/blocks/:block_id/context.
func (s *Server) getResolvedContextHandler(c *gin.Context) {
	entry := s.getOrCreateDocument(c.Param("id"))
	rc, err := entry.actor.GetResolvedContext(c.Param("block_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rc)
}

// getBlockStateHandler handles GET /runbooks/:id/blocks/:block_id/state.
func (s *Server) getBlockStateHandler(c *gin.Context) {
	entry := s.getOrCreateDocument(c.Param("id"))
	state, err := entry.actor.GetBlockState(c.Param("block_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// resetStateHandler handles POST /runbooks/:id/reset.
func (s *Server) resetStateHandler(c *gin.Context) {
	entry := s.getOrCreateDocument(c.Param("id"))
	if err := entry.actor.ResetState(); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deleteDocumentHandler tears down a document actor entirely, releasing its
// mailbox goroutine.
func (s *Server) deleteDocumentHandler(c *gin.Context) {
	runbookID := c.Param("id")

	s.mu.Lock()
	entry, ok := s.documents[runbookID]
	if ok {
		delete(s.documents, runbookID)
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no open document for runbook " + runbookID})
		return
	}
	entry.actor.Shutdown()
	c.Status(http.StatusNoContent)
}
