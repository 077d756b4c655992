package block

import (
	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// DirectoryProps is a `directory` block's static configuration: change the
// working directory for every subsequent block in this document.
type DirectoryProps struct {
	Path string `json:"path"`
}

// directoryHandler is passive-only, like var and env. Unlike Var/EnvVar,
// applyLayer replaces Cwd wholesale rather than rendering it, so the handler
// must resolve its own template references before inserting.
type directoryHandler struct {
	id    string
	props DirectoryProps
}

// NewDirectoryFactory builds the document.Factory for the "directory" block type.
func NewDirectoryFactory() document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props DirectoryProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &directoryHandler{id: n.ID, props: props}, nil
	}
}

func (h *directoryHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	path := h.props.Path
	if local != nil {
		if lv, ok := local.LocalValue(h.id); ok {
			if p, ok := lv["path"].(string); ok {
				path = p
			}
		}
	}

	rendered, err := res.ResolveTemplate(path)
	if err != nil {
		return nil, err
	}

	ctx := blockcontext.New()
	ctx.Insert(blockcontext.TagCwd, blockcontext.Cwd(rendered))
	return ctx, nil
}

func (h *directoryHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	return nil
}
