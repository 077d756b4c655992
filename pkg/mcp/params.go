package mcp

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseActionInput turns the raw argument text of a tool call into the
// structured parameter map MCP servers expect. Models emit arguments in
// several shapes, so parsing cascades, first hit wins:
//
//  1. a JSON object, used as-is
//  2. any other JSON value, wrapped as {"input": value}
//  3. YAML with nested structure (arrays or maps as values)
//  4. flat "key: value" / "key=value" pairs split on commas and newlines
//  5. the raw string itself, wrapped as {"input": text}
//
// Empty input yields an empty map for no-parameter tools. The error return
// is always nil today; it exists so a stricter mode can be added without
// changing call sites.
func ParseActionInput(input string) (map[string]any, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return map[string]any{}, nil
	}
	if params, ok := asJSON(input); ok {
		return params, nil
	}
	if params, ok := asStructuredYAML(input); ok {
		return params, nil
	}
	if params, ok := asKeyValuePairs(input); ok {
		return params, nil
	}
	return map[string]any{"input": input}, nil
}

// asJSON parses any JSON document; non-object values are wrapped under
// "input". The first-byte check cheaply rejects plain prose before
// json.Unmarshal has to.
func asJSON(input string) (map[string]any, bool) {
	switch input[0] {
	case '{', '[', '"', '-', 't', 'f', 'n',
		'0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
	default:
		return nil, false
	}

	var val any
	if err := json.Unmarshal([]byte(input), &val); err != nil {
		return nil, false
	}
	if obj, ok := val.(map[string]any); ok {
		return obj, true
	}
	return map[string]any{"input": val}, true
}

// asStructuredYAML accepts YAML only when some value is itself a sequence
// or mapping. Flat "key: value" lines are left for asKeyValuePairs, which
// is far less prone to claiming ordinary prose.
func asStructuredYAML(input string) (map[string]any, bool) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(input), &doc); err != nil || len(doc) == 0 {
		return nil, false
	}
	for _, v := range doc {
		switch v.(type) {
		case []any, map[string]any:
			return doc, true
		}
	}
	return nil, false
}

// asKeyValuePairs parses "key: value" or "key=value" fragments separated by
// commas or newlines. One unparsable fragment rejects the whole input —
// better to fall back to the raw string than to return half the arguments.
// A value containing a comma mis-splits here and likewise falls through to
// the raw fallback.
func asKeyValuePairs(input string) (map[string]any, bool) {
	params := make(map[string]any)
	for _, fragment := range strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		key, val, ok := cutPair(fragment)
		if !ok {
			return nil, false
		}
		params[key] = coerceScalar(val)
	}
	if len(params) == 0 {
		return nil, false
	}
	return params, true
}

// cutPair splits one fragment on the first ":" or "=". The key must be a
// non-empty token without spaces.
func cutPair(fragment string) (key, val string, ok bool) {
	for _, sep := range []string{":", "="} {
		k, v, found := strings.Cut(fragment, sep)
		if !found {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && !strings.Contains(k, " ") {
			return k, v, true
		}
	}
	return "", "", false
}

// coerceScalar maps bare booleans, nulls, and numbers onto their Go types;
// everything else stays a string. NaN/Inf parse as floats but aren't valid
// JSON, so they stay strings too.
func coerceScalar(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	case "null", "none":
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return s
}
