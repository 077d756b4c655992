package redact

import "log/slog"

// Service applies data redaction to block output before it reaches
// pkg/bridge. Created once at startup (singleton). Thread-safe and
// stateless aside from its compiled patterns.
type Service struct {
	patterns []*CompiledPattern
	maskers  []Masker
}

// NewService creates a redaction service with the built-in patterns and
// maskers plus any extra patterns supplied by the caller (e.g. custom
// per-deployment secret shapes).
func NewService(extra ...*CompiledPattern) *Service {
	patterns := make([]*CompiledPattern, 0, len(builtinPatterns)+len(extra))
	patterns = append(patterns, builtinPatterns...)
	patterns = append(patterns, extra...)

	s := &Service{
		patterns: patterns,
		maskers:  []Masker{&PrivateKeyMasker{}},
	}

	slog.Info("redact service initialized",
		"patterns", len(s.patterns), "maskers", len(s.maskers))

	return s
}

// Redact applies maskers (structural, specific) then regex patterns (general
// sweep) to content. Empty input returns unchanged.
func (s *Service) Redact(content string) string {
	if content == "" {
		return content
	}

	masked := content
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}

	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}

	return masked
}
