// Package redact scrubs secrets out of block output (stdout/stderr, terminal
// bytes, AI chat tool results) before it reaches pkg/bridge. It applies a
// built-in set of regex patterns plus structurally-aware code maskers, the
// same two-phase design as a config-driven masking pass: maskers first
// (specific, parses structure), then a general regex sweep.
package redact

// Masker is a code-based masker that needs structural awareness beyond a
// regex (e.g. only mask inside a PEM block, not arbitrary base64).
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker should
	// process the data. Must be fast (string contains, not full parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result. Must be
	// defensive: return the original data on parse/processing errors.
	Mask(data string) string
}
