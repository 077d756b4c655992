// runbookctl drives the runbook execution engine: either as a one-shot CLI
// that loads a document JSON file and runs it to completion, or as the
// HTTP/WebSocket API server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opsrunbook/engine/pkg/aichat/gatewayclient"
	"github.com/opsrunbook/engine/pkg/api"
	"github.com/opsrunbook/engine/pkg/block"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/config"
	"github.com/opsrunbook/engine/pkg/contextstore"
	"github.com/opsrunbook/engine/pkg/dochandle"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/mcp"
	"github.com/opsrunbook/engine/pkg/ptystore"
	"github.com/opsrunbook/engine/pkg/redact"
	"github.com/opsrunbook/engine/pkg/runbookdocs"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	runbookPath := flag.String("runbook", "",
		"Path to a document JSON file to execute once and exit (omit with -serve)")
	serve := flag.Bool("serve", false, "Run the HTTP/WebSocket API server instead of executing a single runbook")
	httpPort := flag.String("http-port", getEnv("HTTP_PORT", "8080"), "HTTP port for -serve mode")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: Could not load %s file: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		log.Fatalf("Failed to initialize configuration: %v", err)
	}

	logger := slog.Default()

	sshPool := sshpool.NewPool(logger)
	defer sshPool.Shutdown()
	ptyStore := ptystore.New(logger)

	storage, err := newContextStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize context store: %v", err)
	}
	defer storage.Close()

	registry, err := newRegistry(cfg, storage, logger)
	if err != nil {
		log.Fatalf("Failed to build block registry: %v", err)
	}

	if *serve {
		runServer(ctx, logger, *httpPort, registry, storage, sshPool, ptyStore)
		return
	}

	if *runbookPath == "" {
		log.Fatal("one of -serve or -runbook is required")
	}
	os.Exit(runRunbook(logger, *runbookPath, registry, storage, sshPool, ptyStore))
}

// newContextStore selects the active-context persistence backend named by
// cfg.ContextStore.Driver.
func newContextStore(ctx context.Context, cfg *config.Config) (contextstore.BlockContextStorage, error) {
	driver := "memory"
	dsn := ""
	if cfg.ContextStore != nil {
		if cfg.ContextStore.Driver != "" {
			driver = cfg.ContextStore.Driver
		}
		dsn = cfg.ContextStore.DSN
	}

	switch driver {
	case "memory":
		return contextstore.NewMemory(), nil
	case "postgres":
		return contextstore.NewPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown context_store driver %q", driver)
	}
}

// newRegistry builds the shared document.Registry every document actor in
// this process uses, wiring the ai_chat block's gateway/MCP/redaction
// collaborators from configuration. The sql/http blocks are left driverless:
// their concrete driver and HTTP client are deployment specifics outside
// this binary's scope, so blocks referencing them fail at execution with a
// clear error rather than this process fabricating a database connection or
// client it has no configuration for.
func newRegistry(cfg *config.Config, storage contextstore.BlockContextStorage, logger *slog.Logger) (document.Registry, error) {
	deps := block.RegistryDeps{}

	if cfg.AIChat != nil && cfg.AIChat.GatewayAddr != "" {
		gw, err := gatewayclient.New(cfg.AIChat.GatewayAddr)
		if err != nil {
			return nil, fmt.Errorf("connecting to ai chat gateway: %w", err)
		}
		redactor := redact.NewService()
		deps.AIChat = block.AIChatDeps{
			Gateway:     gw,
			MCPFactory:  mcp.NewClientFactory(mcp.ServerSet{}, redactor.Redact),
			RunbookDocs: runbookdocs.New(runbookdocs.WithToken(getEnv("GITHUB_TOKEN", "")), runbookdocs.WithLogger(logger)),
			Storage:     storage,
			Log:         logger,
		}
	}

	return block.NewRegistry(deps), nil
}

// runRunbook loads one document JSON file, builds a throwaway document actor
// for it, and executes every block in flattened order, halting at the first
// failure.
func runRunbook(logger *slog.Logger, path string, registry document.Registry, storage contextstore.BlockContextStorage, sshPool *sshpool.Pool, ptyStore *ptystore.Store) int {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read runbook file", "path", path, "error", err)
		return 1
	}

	var nodes []document.Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		logger.Error("failed to parse runbook document", "path", path, "error", err)
		return 1
	}

	runbookID := filepath.Base(path)
	connections := bridge.NewConnectionManager(5 * time.Second)
	events := bridge.NewEventBus()
	sink := newCLISink(connections, events, logger, os.Stdout, os.Stderr)

	actor := document.NewActor(document.Config{
		ID:       runbookID,
		Log:      logger,
		Registry: registry,
		Storage:  storage,
		Sink:     sink,
	})
	defer actor.Shutdown()

	handle := dochandle.New(actor, sshPool, ptyStore)
	if err := handle.UpdateDocument(nodes); err != nil {
		logger.Error("failed to load runbook document", "error", err)
		return 1
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	for _, b := range handle.GetBlocks() {
		h, err := handle.ExecuteBlock(b.Node.ID, nil)
		if err != nil {
			logger.Error("failed to execute block", "block_id", b.Node.ID, "error", err)
			return 1
		}
		if h == nil {
			// Passive-only block, already completed synchronously.
			continue
		}

		status := waitForTerminal(signalCtx, h)
		switch status {
		case lifecycle.StatusSuccess:
			continue
		case lifecycle.StatusFailed:
			logger.Error("block failed", "block_id", b.Node.ID, "message", h.Message())
			exitCode = 1
		case lifecycle.StatusCancelled:
			logger.Warn("block cancelled", "block_id", b.Node.ID)
			exitCode = 1
		case lifecycle.StatusPaused:
			// A pause halts the driver without being a failure: resuming it is the
			// document's own control point, not this CLI's.
			logger.Info("block paused, halting run", "block_id", b.Node.ID)
		}
		break
	}

	return exitCode
}

// waitForTerminal blocks until h reaches a terminal status. If ctx is
// cancelled first (SIGINT/SIGTERM), it requests cooperative cancellation and
// then waits, uncancellably, for the handle to actually finish — so the
// reported status reflects what the handler settled on rather than the
// instant the signal arrived.
func waitForTerminal(ctx context.Context, h *lifecycle.Handle) lifecycle.Status {
	status := h.WaitForCompletion(ctx)
	if status == lifecycle.StatusRunning {
		h.Cancel()
		status = h.WaitForCompletion(context.Background())
	}
	return status
}

// runServer starts the HTTP/WebSocket API server and blocks until an
// interrupt signal, then drains every open document before exiting.
func runServer(ctx context.Context, logger *slog.Logger, httpPort string, registry document.Registry, storage contextstore.BlockContextStorage, sshPool *sshpool.Pool, ptyStore *ptystore.Store) {
	connections := bridge.NewConnectionManager(5 * time.Second)
	events := bridge.NewEventBus()

	server := api.NewServer(api.Deps{
		Log:         logger,
		Registry:    registry,
		Storage:     storage,
		SSHPool:     sshPool,
		PTYStore:    ptyStore,
		Connections: connections,
		Events:      events,
	})

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "port", httpPort)
		if err := server.Start(":" + httpPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	case <-signalCtx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
