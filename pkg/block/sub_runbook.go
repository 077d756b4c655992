package block

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// SubRunbookProps is a `sub_runbook` block's static configuration.
type SubRunbookProps struct {
	RunbookID string `json:"runbook_id"`

	// ExportEnv/ExportVars/ExportCwd control whether the nested document's
	// final resolved context is folded back into the parent's active context
	// once it completes.
	ExportEnv  bool `json:"export_env,omitempty"`
	ExportVars bool `json:"export_vars,omitempty"`
	ExportCwd  bool `json:"export_cwd,omitempty"`
}

type subRunbookHandler struct {
	id       string
	props    SubRunbookProps
	registry document.Registry
}

// NewSubRunbookFactory builds the document.Factory for the "sub_runbook"
// block type. registry is the full set of block-type factories available
// to the nested document — normally the same Registry the top-level
// document was built with, obtained from NewRegistry.
func NewSubRunbookFactory(registry document.Registry) document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props SubRunbookProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &subRunbookHandler{id: n.ID, props: props, registry: registry}, nil
	}
}

// PassiveContext is empty: a sub_runbook block contributes nothing to the
// fold until it runs, same as script/terminal.
func (h *subRunbookHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	return blockcontext.New(), nil
}

func (h *subRunbookHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	go func() {
		ec.BlockStarted()

		stack := execctx.ExecutionStack(ec.CancellationToken())
		if slices.Contains(stack, h.props.RunbookID) {
			ec.BlockFailed(document.ErrRecursionDetected.Error())
			return
		}

		loader := ec.RunbookLoader()
		if loader == nil {
			ec.BlockFailed("sub_runbook: no runbook loader configured")
			return
		}
		source, err := loader.Load(ec.CancellationToken(), h.props.RunbookID)
		if err != nil {
			ec.BlockFailed(fmt.Sprintf("sub_runbook: load %s: %s", h.props.RunbookID, err))
			return
		}
		var nodes []document.Node
		if err := json.Unmarshal(source.Nodes(), &nodes); err != nil {
			ec.BlockFailed(fmt.Sprintf("sub_runbook: parse %s: %s", h.props.RunbookID, err))
			return
		}

		child := document.NewActor(document.Config{
			ID:             source.ID(),
			Registry:       h.registry,
			Sink:           ec.Sink(),
			ParentResolver: ec.ContextResolver(),
			RunbookLoader:  loader,
			ExecutionStack: stack,
		})
		defer child.Shutdown()

		if err := child.UpdateDocument(nodes); err != nil {
			ec.BlockFailed(fmt.Sprintf("sub_runbook: build %s: %s", h.props.RunbookID, err))
			return
		}

		blocks := child.GetBlocks()
		var lastBlockID string
		for _, bv := range blocks {
			select {
			case <-ec.CancellationToken().Done():
				ec.BlockCancelled()
				return
			default:
			}

			handle, err := child.ExecuteBlock(bv.Node.ID, ec.SSHPool(), ec.PTYStore(), nil)
			if err != nil {
				ec.BlockFailed(fmt.Sprintf("sub_runbook: execute %s: %s", bv.Node.ID, err))
				return
			}
			lastBlockID = bv.Node.ID
			if handle == nil {
				continue // passive-only block, completed synchronously
			}

			status := handle.WaitForCompletion(ec.CancellationToken())
			switch status {
			case lifecycle.StatusSuccess, lifecycle.StatusPaused:
				// Paused propagates the inner pause as its own terminal
				// event below only if it's the last block; otherwise
				// sub_runbook execution cannot meaningfully continue past
				// a paused child block, so stop here too.
				if status == lifecycle.StatusPaused {
					ec.BlockPaused()
					return
				}
			case lifecycle.StatusFailed:
				ec.BlockFailed(fmt.Sprintf("sub_runbook: block %s failed: %s", bv.Node.ID, handle.Message()))
				return
			case lifecycle.StatusCancelled:
				ec.BlockCancelled()
				return
			}
		}

		if lastBlockID != "" && (h.props.ExportEnv || h.props.ExportVars || h.props.ExportCwd) {
			resolved, err := child.GetResolvedContext(lastBlockID)
			if err != nil {
				ec.BlockFailed(fmt.Sprintf("sub_runbook: resolve exports: %s", err))
				return
			}
			exportErr := ec.UpdateActiveContext(func(active *blockcontext.Context) {
				if h.props.ExportEnv {
					envs := active.EnvVars()
					for name, value := range resolved.EnvVars {
						envs.Upsert(blockcontext.EnvVar{Name: name, Value: value})
					}
					active.Insert(blockcontext.TagEnvVars, envs)
				}
				if h.props.ExportVars {
					vars := active.Vars()
					for name, value := range resolved.Variables {
						vars.Upsert(blockcontext.Var{Name: name, Value: value, Source: h.id})
					}
					active.Insert(blockcontext.TagVars, vars)
				}
				if h.props.ExportCwd && resolved.Cwd != "" {
					active.Insert(blockcontext.TagCwd, blockcontext.Cwd(resolved.Cwd))
				}
			})
			if exportErr != nil {
				slog.Warn("sub_runbook: failed to export context", "block_id", h.id, "error", exportErr)
			}
		}

		ec.BlockFinished(nil, true)
	}()

	return ec.Handle()
}
