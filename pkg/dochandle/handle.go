// Package dochandle implements the document handle: the async command API
// surface a front-end or CLI driver programs against, backed by a
// document.Actor. The actor already exposes its command set as blocking
// methods; Handle adds the one thing the bare actor doesn't track on its own
// — which blocks currently have a live ExecutionHandle, so a caller can
// cancel one by block id without having kept the handle around itself.
package dochandle

import (
	"fmt"
	"sync"

	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/ptystore"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

// Handle fronts one document.Actor with the pool handles every block
// execution needs and a registry of in-flight ExecutionHandles.
type Handle struct {
	actor    *document.Actor
	sshPool  *sshpool.Pool
	ptyStore *ptystore.Store

	mu      sync.Mutex
	running map[string]*lifecycle.Handle // blockID -> handle, while Running
}

// New wraps actor with the shared SSH pool and PTY store every block
// execution on this document may need. Either pool argument may be nil.
func New(actor *document.Actor, sshPool *sshpool.Pool, ptyStore *ptystore.Store) *Handle {
	return &Handle{
		actor:    actor,
		sshPool:  sshPool,
		ptyStore: ptyStore,
		running:  make(map[string]*lifecycle.Handle),
	}
}

// UpdateDocument submits new document JSON.
func (h *Handle) UpdateDocument(nodes []document.Node) error {
	return h.actor.UpdateDocument(nodes)
}

// GetBlocks returns every flattened block.
func (h *Handle) GetBlocks() []document.BlockView {
	return h.actor.GetBlocks()
}

// GetBlock returns one block.
func (h *Handle) GetBlock(blockID string) (document.BlockView, error) {
	return h.actor.GetBlock(blockID)
}

// GetResolvedContext returns the resolver fold at blockID.
func (h *Handle) GetResolvedContext(blockID string) (resolver.ResolvedContext, error) {
	return h.actor.GetResolvedContext(blockID)
}

// GetBlockState returns blockID's opaque state.
func (h *Handle) GetBlockState(blockID string) (map[string]any, error) {
	return h.actor.GetBlockState(blockID)
}

// ExecuteBlock runs one block and tracks its ExecutionHandle so a later
// Cancel call can find it by block id.
func (h *Handle) ExecuteBlock(blockID string, extraNamespaces map[string]map[string]string) (*lifecycle.Handle, error) {
	handle, err := h.actor.ExecuteBlock(blockID, h.sshPool, h.ptyStore, extraNamespaces)
	if err != nil {
		return nil, err
	}
	if handle != nil {
		h.mu.Lock()
		h.running[blockID] = handle
		h.mu.Unlock()
	}
	return handle, nil
}

// Cancel requests cooperative cancellation of blockID's in-flight
// execution. A no-op if the block isn't currently running (already
// finished, or passive-only and never had a handle).
func (h *Handle) Cancel(blockID string) error {
	h.mu.Lock()
	handle, ok := h.running[blockID]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("dochandle: block %s is not running", blockID)
	}
	handle.Cancel()
	return nil
}

// SendBlockMessage delivers msg to blockID's running handler, if its block
// type accepts interactive input (currently only ai_chat).
func (h *Handle) SendBlockMessage(blockID string, msg map[string]any) error {
	return h.actor.SendBlockMessage(blockID, msg)
}

// ResetState clears every block's contexts and state.
func (h *Handle) ResetState() error {
	return h.actor.ResetState()
}

// UpdateBridgeChannel hot-swaps the outbound bridge.
func (h *Handle) UpdateBridgeChannel(sink execctx.OutputSink, channelName string) {
	h.actor.UpdateBridgeChannel(sink, channelName)
}

// Shutdown stops the underlying actor.
func (h *Handle) Shutdown() {
	h.actor.Shutdown()
}
