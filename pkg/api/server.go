// Package api is the HTTP/WebSocket surface fronting a DocumentHandle per
// runbook: document JSON in over POST, bridge messages out over a
// WebSocket upgrade, block execution and teardown over the remaining
// routes.
package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsrunbook/engine/pkg/block"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/contextstore"
	"github.com/opsrunbook/engine/pkg/dochandle"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/ptystore"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

// Deps bundles the collaborators every runbook document this server opens
// shares: one registry of block factories, one SSH pool, one PTY store, one
// active-context store, and the bridge sink every document actor
// broadcasts through. Collapsed into a single struct since the composition
// root (cmd/runbookctl) builds all of these once at startup.
type Deps struct {
	Log           *slog.Logger
	Registry      document.Registry
	Storage       contextstore.BlockContextStorage
	SSHPool       *sshpool.Pool
	PTYStore      *ptystore.Store
	Connections   *bridge.ConnectionManager
	Events        *bridge.EventBus
	WorkspaceRoot string
}

// docEntry is one open runbook document: its actor plus the handle that
// tracks in-flight ExecutionHandles for Cancel-by-block-id.
type docEntry struct {
	actor  *document.Actor
	handle *dochandle.Handle
}

// Server is the gin HTTP server fronting every open document.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	log        *slog.Logger
	deps       Deps
	sink       *bridge.Sink

	mu        sync.Mutex
	documents map[string]*docEntry
}

// NewServer builds the gin router and registers every route.
func NewServer(deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		router:    gin.New(),
		log:       log,
		deps:      deps,
		sink:      bridge.NewSink(deps.Connections, deps.Events),
		documents: make(map[string]*docEntry),
	}
	s.router.Use(gin.Recovery(), requestLogger(log))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/runbooks")
	v1.POST("/:id/document", s.submitDocumentHandler)
	v1.GET("/:id/bridge", s.bridgeHandler)
	v1.GET("/:id/blocks", s.listBlocksHandler)
	v1.GET("/:id/blocks/:block_id", s.getBlockHandler)
	v1.GET("/:id/blocks/:block_id/context", s.getResolvedContextHandler)
	v1.GET("/:id/blocks/:block_id/state", s.getBlockStateHandler)
	v1.POST("/:id/blocks/:block_id/execute", s.executeBlockHandler)
	v1.POST("/:id/blocks/:block_id/cancel", s.cancelBlockHandler)
	v1.POST("/:id/reset", s.resetStateHandler)
	v1.DELETE("/:id", s.deleteDocumentHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, for tests that need
// a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.router}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server and every open document actor.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	entries := make([]*docEntry, 0, len(s.documents))
	for _, e := range s.documents {
		entries = append(entries, e)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.actor.Shutdown()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// getOrCreateDocument returns runbookID's open document, constructing a new
// actor (and registering it under the shared SSH pool / PTY store / active
// context store) the first time it's referenced, giving top-level documents
// the same on-demand lifecycle nested sub-runbook documents already have.
func (s *Server) getOrCreateDocument(runbookID string) *docEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.documents[runbookID]; ok {
		return e
	}

	registry := s.deps.Registry
	if registry == nil {
		registry = block.NewRegistry(block.RegistryDeps{})
	}
	actor := document.NewActor(document.Config{
		ID:            runbookID,
		Log:           s.log,
		Registry:      registry,
		Storage:       s.deps.Storage,
		Sink:          s.sink,
		WorkspaceRoot: s.deps.WorkspaceRoot,
	})
	e := &docEntry{
		actor:  actor,
		handle: dochandle.New(actor, s.deps.SSHPool, s.deps.PTYStore),
	}
	s.documents[runbookID] = e
	return e
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
