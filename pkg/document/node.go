package document

import (
	"encoding/json"
	"reflect"
)

// Node is one entry of the document JSON front-ends submit: `{id, type,
// props, children?}`. Name and OutputVariable are lifted out of props as
// named attributes the engine treats specially, while the block-type-
// specific remainder stays in Props for the handler to decode.
type Node struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Name           string         `json:"name,omitempty"`
	OutputVariable string         `json:"output_variable,omitempty"`
	Props          map[string]any `json:"props,omitempty"`
	Children       []Node         `json:"children,omitempty"`
}

// Flatten walks nodes depth-first, left-to-right, parent before children.
func Flatten(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	var walk func([]Node)
	walk = func(ns []Node) {
		for _, n := range ns {
			flat := n
			flat.Children = nil
			out = append(out, flat)
			if len(n.Children) > 0 {
				walk(n.Children)
			}
		}
	}
	walk(nodes)
	return out
}

// equalContent reports whether a and b have the same type/name/ output-
// variable/props — used by the reconciliation diff to distinguish a "moved"
// block (same id, same content, different position) from a "changed" one.
func equalContent(a, b Node) bool {
	if a.Type != b.Type || a.Name != b.Name || a.OutputVariable != b.OutputVariable {
		return false
	}
	return reflect.DeepEqual(canonicalizeProps(a.Props), canonicalizeProps(b.Props))
}

// canonicalizeProps round-trips Props through JSON so numeric types decoded
// differently (int vs float64) from two separate unmarshal passes still
// compare equal.
func canonicalizeProps(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(props)
	if err != nil {
		return props
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return props
	}
	return out
}
