package resolver

import (
	"encoding/json"
	"strings"

	"github.com/opsrunbook/engine/pkg/blockcontext"
)

// lookup resolves a dotted key path against the var/env/doc namespaces plus
// any extra namespaces.
func lookup(
	key string,
	vars map[string]string,
	env map[string]string,
	byBlockID map[string]blockcontext.ExecutionOutput,
	byName map[string]blockcontext.ExecutionOutput,
	extras map[string]map[string]string,
) (string, bool) {
	parts := strings.Split(key, ".")
	if len(parts) < 2 {
		return "", false
	}

	switch parts[0] {
	case "var":
		v, ok := vars[strings.Join(parts[1:], ".")]
		return v, ok
	case "env":
		v, ok := env[strings.Join(parts[1:], ".")]
		return v, ok
	case "doc":
		return lookupDoc(parts[1:], byBlockID, byName)
	default:
		ns, ok := extras[parts[0]]
		if !ok {
			return "", false
		}
		v, ok := ns[strings.Join(parts[1:], ".")]
		return v, ok
	}
}

// lookupDoc handles the doc.* sub-namespaces:
//
// 	doc.named.<name>.output.<key>   doc.named.<name>.output
// 	doc.above.<name>.<key...>
// 	doc.blocks_above[<id>].<key...>  (bracket form over a UUID)
func lookupDoc(rest []string, byBlockID map[string]blockcontext.ExecutionOutput, byName map[string]blockcontext.ExecutionOutput) (string, bool) {
	if len(rest) == 0 {
		return "", false
	}

	switch rest[0] {
	case "named", "above":
		if len(rest) < 2 {
			return "", false
		}
		name := rest[1]
		out, ok := byName[name]
		if !ok {
			return "", false
		}
		return outputLookup(out, rest[2:])
	case "blocks_above":
		// bracket form is pre-parsed by the block author as
		// "blocks_above[<id>]"; accept both that literal token and a plain
		// dotted "blocks_above.<id>" for template authors who prefer it.
		if len(rest) < 2 {
			return "", false
		}
		id := strings.TrimSuffix(strings.TrimPrefix(rest[1], "["), "]")
		id = strings.Trim(id, "[]")
		out, ok := byBlockID[id]
		if !ok {
			return "", false
		}
		return outputLookup(out, rest[2:])
	default:
		// support "doc.blocks_above[<id>]" arriving as a single token
		// (bracket syntax isn't split by "." the same way dotted paths are).
		if strings.HasPrefix(rest[0], "blocks_above[") {
			id := strings.TrimSuffix(strings.TrimPrefix(rest[0], "blocks_above["), "]")
			out, ok := byBlockID[id]
			if !ok {
				return "", false
			}
			return outputLookup(out, rest[1:])
		}
		return "", false
	}
}

// outputLookup renders either the bare output or a specific key
// ("...output.stdout").
func outputLookup(out blockcontext.ExecutionOutput, rest []string) (string, bool) {
	if len(rest) == 0 {
		return "", false
	}
	if rest[0] != "output" {
		return "", false
	}
	if len(rest) == 1 {
		return renderWholeOutput(out)
	}
	key := strings.Join(rest[1:], ".")
	return out.Get(key)
}

// renderWholeOutput serializes every template key of an output as one JSON
// object, so a bare "...output" reference embeds the prior block's full
// result. encoding/json emits map keys in sorted order, keeping the
// rendering deterministic.
func renderWholeOutput(out blockcontext.ExecutionOutput) (string, bool) {
	view := make(map[string]string, len(out.Keys()))
	for _, k := range out.Keys() {
		if v, ok := out.Get(k); ok {
			view[k] = v
		}
	}
	data, err := json.Marshal(view)
	if err != nil {
		return "", false
	}
	return string(data), true
}
