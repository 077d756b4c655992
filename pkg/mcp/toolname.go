package mcp

import (
	"fmt"
	"strings"
)

// NormalizeToolName maps the "server__tool" spelling (used by gateways
// whose function-name grammar forbids dots) onto the canonical
// "server.tool" form used for routing.
func NormalizeToolName(name string) string {
	if strings.Contains(name, "__") && !strings.Contains(name, ".") {
		return strings.Replace(name, "__", ".", 1)
	}
	return name
}

// SplitToolName breaks a canonical "server.tool" name into its parts. Both
// parts must be non-empty identifiers of word characters and hyphens, not
// starting with a hyphen.
func SplitToolName(name string) (serverID, toolName string, err error) {
	serverID, toolName, ok := strings.Cut(name, ".")
	if !ok || !validToolPart(serverID) || !validToolPart(toolName) {
		return "", "", fmt.Errorf(
			"invalid tool name %q: want 'server.tool' (e.g. 'kubernetes-server.get_pods')", name)
	}
	return serverID, toolName, nil
}

func validToolPart(part string) bool {
	if part == "" || part[0] == '-' {
		return false
	}
	for _, r := range part {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
