package redact

import "regexp"

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
}

// builtinPatterns is compiled once at package init. These cover the secret
// shapes most likely to appear in script/terminal/SQL output: cloud
// credentials, bearer tokens, and generic key=value secrets. Patterns with a
// capture group preserve the group in the replacement so surrounding context
// (the key name, the "Bearer " prefix) survives redaction.
var builtinPatterns = []*CompiledPattern{
	{Name: "aws_access_key_id", Regex: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), Replacement: "[REDACTED:aws_access_key_id]"},
	{Name: "aws_secret_access_key", Regex: regexp.MustCompile(`(?i)(aws_secret_access_key\s*[=:]\s*)[A-Za-z0-9/+=]{40}`), Replacement: "${1}[REDACTED:aws_secret_access_key]"},
	{Name: "bearer_token", Regex: regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-_.]{20,}`), Replacement: "${1}[REDACTED:bearer_token]"},
	{Name: "basic_auth_header", Regex: regexp.MustCompile(`(?i)(authorization:\s*basic\s+)[A-Za-z0-9+/=]{8,}`), Replacement: "${1}[REDACTED:basic_auth]"},
	{Name: "generic_api_key_kv", Regex: regexp.MustCompile(`(?i)((?:api[_-]?key|api[_-]?secret|token|password|passwd)\s*[=:]\s*["']?)[A-Za-z0-9\-_./+=]{8,}`), Replacement: "${1}[REDACTED:secret]"},
	{Name: "github_pat", Regex: regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`), Replacement: "[REDACTED:github_pat]"},
	{Name: "jwt", Regex: regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`), Replacement: "[REDACTED:jwt]"},
	{Name: "slack_token", Regex: regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`), Replacement: "[REDACTED:slack_token]"},
}
