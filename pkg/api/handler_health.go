package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsrunbook/engine/pkg/version"
)

// healthHandler handles GET /health, reporting the count of open
// documents and live bridge connections. The engine has no required
// external dependency to probe here.
func (s *Server) healthHandler(c *gin.Context) {
	s.mu.Lock()
	openDocs := len(s.documents)
	s.mu.Unlock()

	conns := 0
	if s.deps.Connections != nil {
		conns = s.deps.Connections.ActiveConnections()
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:      "healthy",
		Version:     version.Full(),
		OpenDocs:    openDocs,
		Connections: conns,
	})
}
