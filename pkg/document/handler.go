package document

import (
	"fmt"

	"github.com/opsrunbook/engine/pkg/blockcontext"
	"github.com/opsrunbook/engine/pkg/execctx"
	"github.com/opsrunbook/engine/pkg/lifecycle"
	"github.com/opsrunbook/engine/pkg/resolver"
)

// Handler is the block contract every block type satisfies. Implementations
// live in pkg/block; this package only depends on the shapes, never on a
// concrete block type, so new block types never need a document-package
// change.
type Handler interface {
	// PassiveContext computes the block's passive context from its static
	// configuration, the prefix resolver, and the local value provider.
	// Called on every rebuild.
	PassiveContext(res *resolver.Resolver, local LocalValueProvider) (*blockcontext.Context, error)

	// Execute runs the block. Passive-only blocks return a nil handle after
	// completing synchronously.
	Execute(ec *execctx.Context) *lifecycle.Handle
}

// LocalValueProvider supplies a block's live-edited, not-yet-persisted
// local value (e.g. an in-progress front-end edit), consulted by
// PassiveContext alongside the block's static props. A nil provider, or one
// returning ok=false, means "use the static props only".
type LocalValueProvider interface {
	LocalValue(blockID string) (map[string]any, bool)
}

// Factory builds a Handler for one Node, parsing its Props into whatever
// typed configuration the block type needs.
type Factory func(n Node) (Handler, error)

// Registry maps a Node's Type to the Factory that builds its Handler.
type Registry map[string]Factory

// Build constructs the Handler for n, or a *DocumentError wrapping
// ErrUnknownBlockType if n.Type has no registered factory.
func (r Registry) Build(n Node) (Handler, error) {
	factory, ok := r[n.Type]
	if !ok {
		return nil, fmt.Errorf("document: unknown block type %q (block %s): %w", n.Type, n.ID, ErrUnknownBlockType)
	}
	h, err := factory(n)
	if err != nil {
		return nil, fmt.Errorf("document: build handler for block %s: %w", n.ID, err)
	}
	return h, nil
}
