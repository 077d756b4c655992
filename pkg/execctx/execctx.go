// Package execctx implements the execution context builder: the immutable
// snapshot — resolver, output bridge, pool handles, cancel token — a handler
// receives for one block execution, plus the convenience wrappers handlers
// use to emit lifecycle events and mutate their own context.
package execctx

import (
	"context"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/ptystore"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

// ActiveContextUpdater is implemented by the document actor: it lets a
// handler mutate its own block's active context (and trigger the
// downstream rebuild) without either package importing the other.
type ActiveContextUpdater interface {
	UpdateActiveContext(blockID string, fn func(*blockcontext.Context)) error
}

// BlockStateUpdater is implemented by the document actor: it lets a
// handler mutate its block's opaque state, emitting
// BlockStateChanged when it actually changes.
type BlockStateUpdater interface {
	UpdateBlockState(blockID string, fn func(map[string]any) map[string]any) error
}

// RunbookLoader resolves and loads a sub-runbook document by id, for the
// sub_runbook block type.
type RunbookLoader interface {
	Load(ctx context.Context, runbookID string) (RunbookSource, error)
}

// RunbookSource is the minimal view a loaded sub-runbook exposes: its raw
// node JSON, ready to hand to a new Document/Actor.
type RunbookSource interface {
	ID() string
	Nodes() []byte
}

// OutputSink is where a handler's lifecycle/output events go: the bridge's
// per-document WebSocket channel plus the best-effort GCEvent bus.
type OutputSink interface {
	Broadcast(channel string, msg bridge.Message)
	PublishEvent(evt bridge.GCEvent)
}

// Context is the immutable snapshot handed to exactly one block execution.
// Handlers read from it but mutate document state only via the Updater
// callbacks.
type Context struct {
	BlockID        string
	RunbookID      string
	OutputVariable string
	ChannelName    string // bridge.ChannelForDocument(documentID)
	Resolver       *resolver.Resolver
	handle         *lifecycle.Handle
	cancelToken    context.Context
	sink           OutputSink
	sshPool        *sshpool.Pool
	ptyStore       *ptystore.Store
	activeUpdater  ActiveContextUpdater
	stateUpdater   BlockStateUpdater
	runbookLoader  RunbookLoader
}

// New builds an execution context snapshot. cancelToken is the
// context.Context returned alongside handle by lifecycle.NewHandle. Any
// pool/loader argument may be nil when the block type doesn't need it
// (e.g. a var block never touches sshPool).
func New(
	blockID, runbookID, outputVariable, channelName string,
	res *resolver.Resolver,
	handle *lifecycle.Handle,
	cancelToken context.Context,
	sink OutputSink,
	sshPool *sshpool.Pool,
	ptyStore *ptystore.Store,
	activeUpdater ActiveContextUpdater,
	stateUpdater BlockStateUpdater,
	runbookLoader RunbookLoader,
) *Context {
	return &Context{
		BlockID:        blockID,
		RunbookID:      runbookID,
		OutputVariable: outputVariable,
		ChannelName:    channelName,
		Resolver:       res,
		handle:         handle,
		cancelToken:    cancelToken,
		sink:           sink,
		sshPool:        sshPool,
		ptyStore:       ptyStore,
		activeUpdater:  activeUpdater,
		stateUpdater:   stateUpdater,
		runbookLoader:  runbookLoader,
	}
}

// ContextResolver returns the resolver fold this block was snapshot against.
func (c *Context) ContextResolver() *resolver.Resolver { return c.Resolver }

// SSHPool returns the shared SSH session pool, or nil if none was wired.
func (c *Context) SSHPool() *sshpool.Pool { return c.sshPool }

// PTYStore returns the shared local PTY store, or nil if none was wired.
func (c *Context) PTYStore() *ptystore.Store { return c.ptyStore }

// RunbookLoader returns the sub-runbook loader, or nil if none was wired.
func (c *Context) RunbookLoader() RunbookLoader { return c.runbookLoader }

// Sink returns the output sink this execution broadcasts through, so a
// sub_runbook handler can wire the same bridge into the nested document
// actor it spawns.
func (c *Context) Sink() OutputSink { return c.sink }

// CancellationToken returns the context.Context that is Done() when this
// block's execution is cancelled.
func (c *Context) CancellationToken() context.Context {
	if c.cancelToken == nil {
		return context.Background()
	}
	return c.cancelToken
}

// Handle returns this execution's ExecutionHandle.
func (c *Context) Handle() *lifecycle.Handle { return c.handle }

// UpdateActiveContext delegates to the document actor's callback.
func (c *Context) UpdateActiveContext(fn func(*blockcontext.Context)) error {
	if c.activeUpdater == nil {
		return nil
	}
	return c.activeUpdater.UpdateActiveContext(c.BlockID, fn)
}

// UpdateBlockState delegates to the document actor's callback.
func (c *Context) UpdateBlockState(fn func(map[string]any) map[string]any) error {
	if c.stateUpdater == nil {
		return nil
	}
	return c.stateUpdater.UpdateBlockState(c.BlockID, fn)
}

// SetBlockOutput is a convenience wrapper around UpdateActiveContext that
// inserts an ExecutionOutput item.
func (c *Context) SetBlockOutput(output blockcontext.ExecutionOutput) error {
	return c.UpdateActiveContext(func(ctx *blockcontext.Context) {
		ctx.Insert(blockcontext.TagExecutionOutput, output)
	})
}
