// Package document implements the document actor: the single-writer owner of
// one runbook's flattened blocks, their passive and active contexts, and the
// resolver fold over them. All state lives inside one goroutine; every
// public method submits a closure job to the actor's mailbox and waits for
// it to run, so two concurrent callers never observe torn state.
package document

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/contextstore"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// DocumentBlock is one flattened block together with its built Handler and
// its two context layers: passive (recomputable from config) and active
// (produced by execution, persisted).
type DocumentBlock struct {
	Node    Node
	Handler Handler
	Passive *blockcontext.Context
	Active  *blockcontext.Context
	State   map[string]any
}

// BlockView is the read-only clone returned by GetBlocks/GetBlock.
type BlockView struct {
	Node  Node
	State map[string]any
}

// job is one unit of work run on the actor's single goroutine.
type job func()

// Actor is the single-writer owner of one document: all block, context,
// and state mutations go through its mailbox and are applied serially.
type Actor struct {
	id            string
	log           *slog.Logger
	mailbox       chan job
	stop          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	blocks           []*DocumentBlock
	indexByID        map[string]int
	resolverSnapshots []*resolver.Resolver
	lastSent         map[string]sentContext

	parentResolver  *resolver.Resolver
	workspaceRoot   string
	extraNamespaces map[string]map[string]string
	registry        Registry
	storage         contextstore.BlockContextStorage
	localValues     LocalValueProvider
	runbookLoader   execctx.RunbookLoader
	executionStack  []string

	sink        execctx.OutputSink
	channelName string
}

// Config bundles NewActor's collaborators so the constructor signature
// doesn't grow every time a new optional collaborator is added.
type Config struct {
	ID              string
	Log             *slog.Logger
	Registry        Registry
	Storage         contextstore.BlockContextStorage // nil uses contextstore.NewMemory()
	Sink            execctx.OutputSink                // nil disables bridge broadcast and GCEvent publication (tests)
	ParentResolver  *resolver.Resolver                // non-nil for sub-runbooks
	WorkspaceRoot   string
	ExtraNamespaces map[string]map[string]string
	LocalValues     LocalValueProvider
	RunbookLoader   execctx.RunbookLoader
	// ExecutionStack is the chain of ancestor runbook IDs currently executing,
	// set by a sub_runbook handler when it spawns this actor for a nested
	// document. Empty for a top-level document.
	ExecutionStack []string
}

// NewActor constructs and starts a document actor.
func NewActor(cfg Config) *Actor {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	storage := cfg.Storage
	if storage == nil {
		storage = contextstore.NewMemory()
	}

	a := &Actor{
		id:              cfg.ID,
		log:             log.With("runbook_id", cfg.ID),
		mailbox:         make(chan job, 64),
		stop:            make(chan struct{}),
		indexByID:       make(map[string]int),
		lastSent:        make(map[string]sentContext),
		parentResolver:  cfg.ParentResolver,
		workspaceRoot:   cfg.WorkspaceRoot,
		extraNamespaces: cfg.ExtraNamespaces,
		registry:        cfg.Registry,
		storage:         storage,
		localValues:     cfg.LocalValues,
		runbookLoader:   cfg.RunbookLoader,
		executionStack:  append([]string{cfg.ID}, cfg.ExecutionStack...),
		sink:            cfg.Sink,
		channelName:     bridge.ChannelForDocument(cfg.ID),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Actor) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.stop:
			return
		case fn := <-a.mailbox:
			fn()
		}
	}
}

// submit enqueues fn and blocks until the actor has accepted it into its
// mailbox (not until fn has run — callers that need the result pass a
// channel inside fn and receive from it, per the exported methods below).
func (a *Actor) submit(fn job) {
	select {
	case a.mailbox <- fn:
	case <-a.stop:
	}
}

// Shutdown breaks the actor's loop and waits for it to exit.
func (a *Actor) Shutdown() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Actor) deleteBlockContext(blockID string) {
	delete(a.lastSent, blockID)
	if a.storage == nil {
		return
	}
	if err := a.storage.Delete(context.Background(), a.id, blockID); err != nil {
		a.log.Warn("failed to delete stored context", "block_id", blockID, "error", err)
	}
}
