package block

import (
	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/document"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// EnvProps is an `env` block's static configuration: set the environment
// variable Name to Value for every subsequent block in this document.
type EnvProps struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// envHandler is passive-only, mirroring varHandler's shape.
type envHandler struct {
	id    string
	props EnvProps
}

// NewEnvFactory builds the document.Factory for the "env" block type.
func NewEnvFactory() document.Factory {
	return func(n document.Node) (document.Handler, error) {
		var props EnvProps
		if err := decodeProps(n, &props); err != nil {
			return nil, err
		}
		return &envHandler{id: n.ID, props: props}, nil
	}
}

func (h *envHandler) PassiveContext(res *resolver.Resolver, local document.LocalValueProvider) (*blockcontext.Context, error) {
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
	var envs blockcontext.EnvVars
	envs.Upsert(blockcontext.EnvVar{Name: name, Value: value})
	ctx.Insert(blockcontext.TagEnvVars, envs)
	return ctx, nil
}

func (h *envHandler) Execute(ec *execctx.Context) *lifecycle.Handle {
	return nil
}
