package resolver

import "github.com/opsrunbook/engine/pkg/blockcontext"

// DocumentTemplateState is a JSON-serializable view of a Resolver's doc.*
// namespace, used by the bridge when it ships a ResolvedContext to a front-
// end that must reproduce the same doc.above/doc.named/ doc.blocks_above
// lookups the in-memory resolver performs.
type DocumentTemplateState struct {
	Named       map[string]OutputView `json:"named"`
	Above       map[string]OutputView `json:"above"` // alias of Named
	BlocksAbove map[string]OutputView `json:"blocks_above"`
}

// OutputView is the JSON-facing form of an ExecutionOutput.
type OutputView struct {
	Output map[string]string `json:"output"`
}

// DocumentState builds a DocumentTemplateState snapshot from the resolver's
// current byBlockID/byName maps.
func (r *Resolver) DocumentState() DocumentTemplateState {
	named := make(map[string]OutputView, len(r.byName))
	for name, out := range r.byName {
		named[name] = toOutputView(out)
	}
	blocksAbove := make(map[string]OutputView, len(r.byBlockID))
	for id, out := range r.byBlockID {
		blocksAbove[id] = toOutputView(out)
	}
	return DocumentTemplateState{
		Named:       named,
		Above:       named,
		BlocksAbove: blocksAbove,
	}
}

func toOutputView(out blockcontext.ExecutionOutput) OutputView {
	view := make(map[string]string, len(out.Keys()))
	for _, k := range out.Keys() {
		if v, ok := out.Get(k); ok {
			view[k] = v
		}
	}
	return OutputView{Output: view}
}
