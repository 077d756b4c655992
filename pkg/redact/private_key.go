package redact

import (
	"regexp"
	"strings"
)

// PrivateKeyMasker redacts PEM private-key blocks wholesale, leaving
// surrounding output (e.g. the rest of a script's stdout) untouched.
type PrivateKeyMasker struct{}

// Name returns the unique identifier for this masker.
func (m *PrivateKeyMasker) Name() string { return "private_key" }

// AppliesTo performs a lightweight check before the more expensive Mask pass.
func (m *PrivateKeyMasker) AppliesTo(data string) bool {
	return strings.Contains(data, "-----BEGIN") && strings.Contains(data, "PRIVATE KEY-----")
}

// Mask replaces every PEM private-key block found in data. Defensive: if no
// block is found (AppliesTo was a false positive), returns data unchanged.
func (m *PrivateKeyMasker) Mask(data string) string {
	begin := regexp.MustCompile(`-----BEGIN ((?:RSA |EC |OPENSSH |DSA |ENCRYPTED )?PRIVATE KEY)-----`)
	var out strings.Builder
	rest := data
	for {
		loc := begin.FindStringSubmatchIndex(rest)
		if loc == nil {
			out.WriteString(rest)
			return out.String()
		}
		keyType := rest[loc[2]:loc[3]]
		end := "-----END " + keyType + "-----"
		endIdx := strings.Index(rest[loc[1]:], end)
		if endIdx == -1 {
			// Unterminated block; redact to end of string defensively.
			out.WriteString(rest[:loc[0]])
			out.WriteString("[REDACTED:private_key]")
			return out.String()
		}
		out.WriteString(rest[:loc[0]])
		out.WriteString("[REDACTED:private_key]")
		rest = rest[loc[1]+endIdx+len(end):]
	}
}
