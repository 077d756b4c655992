package block

import (
	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// VarProps is a `var` block's static configuration: declare Name = Value,
// where Value may reference any upstream template key.
type VarProps struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// varHandler is passive-only: its entire contribution to the document is a
// rendered Var item in its passive context, so it never spawns a background
// task.
type varHandler struct {
	id    string
	props VarProps
}

// NewVarFactory builds the document.Factory for the "var" block type.
func NewVarFactory() document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props VarProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &varHandler{id: n.ID, props: props}, nil
	}
}

// PassiveContext stores the declaration's raw (unrendered) value; the
// resolver's push_block step renders it against the running fold, so the
// handler must not pre-render here.
func (h *varHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
	name, value := h.props.Name, h.props.Value
	if local != nil {
		if lv, ok := local.LocalValue(h.id); ok {
			if n, ok := lv["name"].(string); ok {
				name = n
			}
			if v, ok := lv["value"].(string); ok {
				value = v
			}
		}
	}

	ctx := blockcontext.New()
	var vars blockcontext.Vars
	vars.Upsert(blockcontext.Var{Name: name, Value: value, Source: h.id})
	ctx.Insert(blockcontext.TagVars, vars)
	return ctx, nil
}

func (h *varHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	return nil
}
