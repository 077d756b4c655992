package document

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/google/uuid"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/ptystore"
	"github.com/opsrunbook/engine/pkg/resolver"
	"github.com/opsrunbook/engine/pkg/sshpool"
)

// BlockLocalValueChanged rebuilds contexts from blockID onward, for a front-
// end edit that hasn't been persisted into the document yet.
func (a *Actor) BlockLocalValueChanged(blockID string) error {
	errCh := make(chan error, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			errCh <- &Error{Op: "BlockLocalValueChanged", BlockID: blockID, Err: ErrBlockNotFound}
			return
		}
		a.rebuildContexts(idx)
		errCh <- nil
	})
	return <-errCh
}

// CreateExecutionContext builds the immutable execution snapshot a handler
// executes against: the resolver fold up to (not including) blockID, plus
// the pool handles and a fresh lifecycle handle.
func (a *Actor) CreateExecutionContext(
	blockID string,
	sshPool *sshpool.Pool,
	ptyStore *ptystore.Store,
	extraNamespaces map[string]map[string]string,
) (*execctx.Context, error) {
	type result struct {
		ec  *execctx.Context
		err error
	}
	resCh := make(chan result, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			resCh <- result{err: &Error{Op: "CreateExecutionContext", BlockID: blockID, Err: ErrBlockNotFound}}
			return
		}

		var base *resolver.Resolver
		if idx == 0 || a.resolverSnapshots[idx-1] == nil {
			base = a.freshResolver()
		} else {
			base = a.resolverSnapshots[idx-1].Clone()
		}
		for ns, vals := range extraNamespaces {
			base.SetExtraNamespace(ns, vals)
		}

		db := a.blocks[idx]
		handleID := uuid.New().String()
		parent := execctx.WithExecutionStack(context.Background(), a.executionStack)
		handle, cancelToken := lifecycle.NewHandle(parent, handleID, blockID, db.Node.OutputVariable)

		ec := execctx.New(
			blockID,
			a.id,
			db.Node.OutputVariable,
			a.channelName,
			base,
			handle,
			cancelToken,
			a.sink,
			sshPool,
			ptyStore,
			a,
			a,
			a.runbookLoader,
		)
		resCh <- result{ec: ec}
	})
	r := <-resCh
	return r.ec, r.err
}

// ExecuteBlock builds blockID's execution context and invokes its handler,
// returning the resulting lifecycle.Handle (nil for a passive-only block
// that completed synchronously inside Execute). This is the glue between
// CreateExecutionContext and a block's Handler; pkg/dochandle,
// cmd/runbookctl, and the sub_runbook block all drive execution through
// this one entry point.
func (a *Actor) ExecuteBlock(
	blockID string,
	sshPool *sshpool.Pool,
	ptyStore *ptystore.Store,
	extraNamespaces map[string]map[string]string,
) (*lifecycle.Handle, error) {
	ec, err := a.CreateExecutionContext(blockID, sshPool, ptyStore, extraNamespaces)
	if err != nil {
		return nil, err
	}

	hCh := make(chan Handler, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			hCh <- nil
			return
		}
		hCh <- a.blocks[idx].Handler
	})
	h := <-hCh
	if h == nil {
		return nil, &Error{Op: "ExecuteBlock", BlockID: blockID, Err: ErrBlockNotFound}
	}
	return h.Execute(ec), nil
}

// CompleteExecution replaces blockID's passive context with the finalized
// one and rebuilds downstream.
func (a *Actor) CompleteExecution(blockID string, finalContext *blockcontext.Context) error {
	errCh := make(chan error, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			errCh <- &Error{Op: "CompleteExecution", BlockID: blockID, Err: ErrBlockNotFound}
			return
		}
		a.blocks[idx].Passive = finalContext
		a.rebuildContexts(idx)
		errCh <- nil
	})
	return <-errCh
}

// UpdatePassiveContext applies fn to blockID's passive context and rebuilds
// downstream.
func (a *Actor) UpdatePassiveContext(blockID string, fn func(*blockcontext.Context)) error {
	errCh := make(chan error, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			errCh <- &Error{Op: "UpdatePassiveContext", BlockID: blockID, Err: ErrBlockNotFound}
			return
		}
		db := a.blocks[idx]
		if db.Passive == nil {
			db.Passive = blockcontext.New()
		}
		fn(db.Passive)
		a.rebuildContexts(idx)
		errCh <- nil
	})
	return <-errCh
}

// UpdateActiveContext applies fn to blockID's active context, persists it,
// and rebuilds downstream. It also satisfies execctx.ActiveContextUpdater,
// letting a handler's execctx.Context call back into the actor directly.
func (a *Actor) UpdateActiveContext(blockID string, fn func(*blockcontext.Context)) error {
	errCh := make(chan error, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			errCh <- &Error{Op: "UpdateActiveContext", BlockID: blockID, Err: ErrBlockNotFound}
			return
		}
		db := a.blocks[idx]
		if db.Active == nil {
			db.Active = blockcontext.New()
		}
		fn(db.Active)

		if a.storage != nil {
			data, err := json.Marshal(db.Active)
			if err != nil {
				a.log.Warn("failed to marshal active context for persistence", "block_id", blockID, "error", err)
			} else if err := a.storage.Save(context.Background(), a.id, blockID, data); err != nil {
				a.log.Warn("failed to persist active context", "block_id", blockID, "error", err)
			}
		}

		a.rebuildContexts(idx)
		errCh <- nil
	})
	return <-errCh
}

// UpdateBlockState applies fn to blockID's opaque state, broadcasting
// BlockStateChanged only if the result actually differs. It also satisfies
// execctx.BlockStateUpdater.
func (a *Actor) UpdateBlockState(blockID string, fn func(map[string]any) map[string]any) error {
	errCh := make(chan error, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			errCh <- &Error{Op: "UpdateBlockState", BlockID: blockID, Err: ErrBlockNotFound}
			return
		}
		db := a.blocks[idx]
		newState := fn(db.State)
		changed := !reflect.DeepEqual(db.State, newState)
		db.State = newState
		if changed {
			a.broadcastStateChanged(blockID, newState)
		}
		errCh <- nil
	})
	return <-errCh
}

// GetResolvedContext returns the resolver fold as of blockID, inclusive.
func (a *Actor) GetResolvedContext(blockID string) (resolver.ResolvedContext, error) {
	type result struct {
		ctx resolver.ResolvedContext
		err error
	}
	resCh := make(chan result, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			resCh <- result{err: &Error{Op: "GetResolvedContext", BlockID: blockID, Err: ErrBlockNotFound}}
			return
		}
		if idx >= len(a.resolverSnapshots) || a.resolverSnapshots[idx] == nil {
			resCh <- result{ctx: a.freshResolver().Snapshot()}
			return
		}
		resCh <- result{ctx: a.resolverSnapshots[idx].Snapshot()}
	})
	r := <-resCh
	return r.ctx, r.err
}

// GetBlockState returns blockID's current opaque state.
func (a *Actor) GetBlockState(blockID string) (map[string]any, error) {
	type result struct {
		state map[string]any
		err   error
	}
	resCh := make(chan result, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			resCh <- result{err: &Error{Op: "GetBlockState", BlockID: blockID, Err: ErrBlockNotFound}}
			return
		}
		state := make(map[string]any, len(a.blocks[idx].State))
		for k, v := range a.blocks[idx].State {
			state[k] = v
		}
		resCh <- result{state: state}
	})
	r := <-resCh
	return r.state, r.err
}

// GetBlocks returns a clone of every flattened block.
func (a *Actor) GetBlocks() []BlockView {
	resCh := make(chan []BlockView, 1)
	a.submit(func() {
		views := make([]BlockView, len(a.blocks))
		for i, db := range a.blocks {
			state := make(map[string]any, len(db.State))
			for k, v := range db.State {
				state[k] = v
			}
			views[i] = BlockView{Node: db.Node, State: state}
		}
		resCh <- views
	})
	return <-resCh
}

// GetBlock returns a clone of one block.
func (a *Actor) GetBlock(blockID string) (BlockView, error) {
	type result struct {
		view BlockView
		err  error
	}
	resCh := make(chan result, 1)
	a.submit(func() {
		idx, ok := a.indexByID[blockID]
		if !ok {
			resCh <- result{err: &Error{Op: "GetBlock", BlockID: blockID, Err: ErrBlockNotFound}}
			return
		}
		db := a.blocks[idx]
		state := make(map[string]any, len(db.State))
		for k, v := range db.State {
			state[k] = v
		}
		resCh <- result{view: BlockView{Node: db.Node, State: state}}
	})
	r := <-resCh
	return r.view, r.err
}

// UpdateBridgeChannel hot-swaps the outbound bridge, e.g. when a front-end
// reconnects on a new WebSocket channel.
func (a *Actor) UpdateBridgeChannel(sink execctx.OutputSink, channelName string) {
	done := make(chan struct{})
	a.submit(func() {
		a.sink = sink
		a.channelName = channelName
		close(done)
	})
	<-done
}

// ResetState clears every block's passive and active context and its
// persisted/cached state, then fully rebuilds.
func (a *Actor) ResetState() error {
	done := make(chan struct{})
	a.submit(func() {
		for _, db := range a.blocks {
			db.Passive = blockcontext.New()
			db.Active = blockcontext.New()
			db.State = map[string]any{}
			a.deleteBlockContext(db.Node.ID)
		}
		a.resolverSnapshots = make([]*resolver.Resolver, len(a.blocks))
		a.rebuildContexts(0)
		close(done)
	})
	<-done
	return nil
}
