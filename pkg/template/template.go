// Package template renders strings containing "{{ dotted.key.path }}"
// placeholders against a namespaced variable environment. Rendering is
// referentially transparent and synchronous; a missing key is an error,
// never a silent substitution.
package template

import (
	"strings"
)

// Environment is anything that can answer template lookups. Implementations
// include *resolver.Resolver and resolver.DocumentTemplateState.
type Environment interface {
	// GetTemplateValue returns the rendered string for a dotted key path
	// (e.g. "var.who", "doc.above.deploy.output.stdout") and whether it
	// was found.
	GetTemplateValue(key string) (string, bool)
}

// EnvironmentFunc adapts a plain function to Environment.
type EnvironmentFunc func(key string) (string, bool)

// GetTemplateValue implements Environment.
func (f EnvironmentFunc) GetTemplateValue(key string) (string, bool) { return f(key) }

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

// Render expands every "{{ key.path }}" placeholder in s by looking it up in
// env. It returns a MissingKey error on the first unresolved reference and a
// BadExpression error for a malformed placeholder (unbalanced delimiters or
// an empty key). Evaluation is synchronous; env must already be fully built.
func Render(s string, env Environment) (string, error) {
	var out strings.Builder
	out.Grow(len(s))

	rest := s
	for {
		start := strings.Index(rest, openDelim)
		if start < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:start])

		afterOpen := rest[start+len(openDelim):]
		end := strings.Index(afterOpen, closeDelim)
		if end < 0 {
			return "", &Error{Kind: ErrBadExpression, Raw: rest[start:]}
		}

		rawKey := afterOpen[:end]
		key := strings.TrimSpace(rawKey)
		if key == "" {
			return "", &Error{Kind: ErrBadExpression, Raw: rest[start : start+len(openDelim)+end+len(closeDelim)]}
		}
		if strings.ContainsAny(key, "{}") {
			return "", &Error{Kind: ErrBadExpression, Raw: rawKey}
		}

		value, ok := env.GetTemplateValue(key)
		if !ok {
			return "", &Error{Kind: ErrMissingKey, Path: key}
		}
		out.WriteString(value)

		rest = afterOpen[end+len(closeDelim):]
	}
}

// HasPlaceholder reports whether s contains at least one "{{ ... }}" span,
// used by passive-context builders to skip rendering of static strings.
func HasPlaceholder(s string) bool {
	return strings.Contains(s, openDelim) && strings.Contains(s, closeDelim)
}
