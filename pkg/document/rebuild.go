package document

import (
	"reflect"
	"time"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/bridge"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// UpdateDocument replaces the block tree with nodes, reconciles it against
// the previous flattened list, and rebuilds contexts from the smallest
// affected index.
func (a *Actor) UpdateDocument(nodes []Node) error {
	done := make(chan struct{})
	a.submit(func() {
		a.updateDocument(nodes)
		close(done)
	})
	<-done
	return nil
}

func (a *Actor) updateDocument(nodes []Node) {
	flat := Flatten(nodes)

	execNodes := make([]Node, 0, len(flat))
	for _, n := range flat {
		if _, ok := a.registry[n.Type]; !ok {
			a.log.Warn("unknown block type, skipping", "block_id", n.ID, "type", n.Type)
			continue
		}
		execNodes = append(execNodes, n)
	}

	start, needRebuild := a.reconcile(execNodes)

	newBlocks := make([]*DocumentBlock, 0, len(execNodes))
	for _, n := range execNodes {
		if idx, ok := a.indexByID[n.ID]; ok && equalContent(a.blocks[idx].Node, n) {
			existing := a.blocks[idx]
			existing.Node = n
			newBlocks = append(newBlocks, existing)
			continue
		}
		h, err := a.registry.Build(n)
		if err != nil {
			a.log.Warn("failed to build handler, skipping block", "block_id", n.ID, "error", err)
			continue
		}
		newBlocks = append(newBlocks, &DocumentBlock{
			Node:    n,
			Handler: h,
			Passive: blockcontext.New(),
			Active:  blockcontext.New(),
			State:   map[string]any{},
		})
	}

	a.blocks = newBlocks
	a.indexByID = make(map[string]int, len(a.blocks))
	for i, b := range a.blocks {
		a.indexByID[b.Node.ID] = i
	}

	if !needRebuild {
		return
	}
	if start > len(a.blocks) {
		start = len(a.blocks)
	}
	a.rebuildContexts(start)
}

// reconcile diffs the new executable-node list against the current one,
// reporting the smallest new-list index touched by a change, move, addition,
// or removal, and deletes the stored context of any block no longer present.
func (a *Actor) reconcile(newNodes []Node) (rebuildFrom int, hasRebuild bool) {
	oldFlat := make([]Node, len(a.blocks))
	for i, b := range a.blocks {
		oldFlat[i] = b.Node
	}
	oldIndex := make(map[string]int, len(oldFlat))
	for i, n := range oldFlat {
		oldIndex[n.ID] = i
	}
	newIndex := make(map[string]int, len(newNodes))
	for i, n := range newNodes {
		newIndex[n.ID] = i
	}

	min := -1
	consider := func(j int) {
		if min == -1 || j < min {
			min = j
		}
	}

	for j, n := range newNodes {
		if i, ok := oldIndex[n.ID]; ok {
			if !equalContent(oldFlat[i], n) {
				consider(j)
			} else if i != j {
				consider(j)
			}
		} else {
			consider(j) // added
		}
	}

	for i, n := range oldFlat {
		if _, ok := newIndex[n.ID]; ok {
			continue
		}
		a.deleteBlockContext(n.ID)
		for k := i + 1; k < len(oldFlat); k++ {
			if j, ok := newIndex[oldFlat[k].ID]; ok {
				consider(j)
				break
			}
		}
	}

	if min == -1 {
		return 0, false
	}
	return min, true
}

// rebuildContexts re-walks blocks[start:] folding each block's passive then
// active context into a resolver carried forward from the snapshot just
// before start, broadcasting a BlockContextUpdate whenever a block's
// resolved context actually changed.
func (a *Actor) rebuildContexts(start int) {
	if start < 0 {
		start = 0
	}
	if start > len(a.blocks) {
		start = len(a.blocks)
	}

	if len(a.resolverSnapshots) != len(a.blocks) {
		resized := make([]*resolver.Resolver, len(a.blocks))
		copy(resized, a.resolverSnapshots)
		a.resolverSnapshots = resized
	}

	var running *resolver.Resolver
	switch {
	case start == 0 || a.resolverSnapshots[start-1] == nil:
		running = a.freshResolver()
	default:
		running = a.resolverSnapshots[start-1].Clone()
	}

	for i := start; i < len(a.blocks); i++ {
		db := a.blocks[i]

		passive, err := db.Handler.PassiveContext(running, a.localValues)
		if err != nil {
			a.log.Warn("passive context computation failed, resetting to empty", "block_id", db.Node.ID, "error", err)
			passive = blockcontext.New()
			a.publishGCEvent(bridge.GCEvent{
				Kind:      bridge.GCBlockFailed,
				BlockID:   db.Node.ID,
				RunbookID: a.id,
				Error:     err.Error(),
			})
		}
		db.Passive = passive

		bwc := resolver.BlockWithContext{ID: db.Node.ID, Name: db.Node.Name, Passive: db.Passive, Active: db.Active}
		if err := running.PushBlock(bwc); err != nil {
			a.log.Warn("context fold failed, resetting passive to empty", "block_id", db.Node.ID, "error", err)
			db.Passive = blockcontext.New()
			bwc.Passive = db.Passive
			_ = running.PushBlock(bwc)
		}

		a.resolverSnapshots[i] = running.Clone()

		sent := sentContext{resolved: running.Snapshot(), doc: running.DocumentState()}
		if prev, ok := a.lastSent[db.Node.ID]; !ok || !reflect.DeepEqual(prev, sent) {
			a.lastSent[db.Node.ID] = sent
			a.broadcastContextUpdate(db.Node.ID, sent)
		}
	}
}

// sentContext is the per-block cache entry behind BlockContextUpdate
// dedup: the resolved context plus the doc.* template state, so an
// upstream output change re-broadcasts even when the variable/env fold is
// unchanged.
type sentContext struct {
	resolved resolver.ResolvedContext
	doc      resolver.DocumentTemplateState
}

// freshResolver builds the resolver a block at index 0 folds against: the
// parent resolver (empty for a top-level document, the caller's resolver for
// a sub-runbook), plus the workspace/runbook namespaces every document
// carries.
func (a *Actor) freshResolver() *resolver.Resolver {
	r := resolver.FromParent(a.parentResolver)
	r.SetExtraNamespace("workspace", map[string]string{"root": a.workspaceRoot})
	r.SetExtraNamespace("runbook", map[string]string{"id": a.id})
	for ns, vals := range a.extraNamespaces {
		r.SetExtraNamespace(ns, vals)
	}
	return r
}

func (a *Actor) broadcastContextUpdate(blockID string, sent sentContext) {
	if a.sink == nil {
		return
	}
	a.sink.Broadcast(a.channelName, bridge.Message{
		Type:      bridge.MsgBlockContextUpdate,
		BlockID:   blockID,
		Timestamp: time.Now(),
		Payload:   bridge.BlockContextUpdatePayload{Context: sent.resolved, Doc: sent.doc},
	})
}

func (a *Actor) broadcastStateChanged(blockID string, state map[string]any) {
	if a.sink == nil {
		return
	}
	a.sink.Broadcast(a.channelName, bridge.Message{
		Type:      bridge.MsgBlockStateChanged,
		BlockID:   blockID,
		Timestamp: time.Now(),
		Payload:   bridge.BlockStateChangedPayload{State: state},
	})
}

func (a *Actor) publishGCEvent(evt bridge.GCEvent) {
	if a.sink == nil {
		return
	}
	a.sink.PublishEvent(evt)
}
