package sshpool

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	kevinburke "github.com/kevinburke/ssh_config"
)

// hostConfig is the subset of ~/.ssh/config values the engine consults for
// one host pattern.
type hostConfig struct {
	HostName      string
	Port          int
	User          string
	IdentityFiles []string
	ProxyCommand  string
	ProxyJump     string
	IdentityAgent string
}

// loadHostConfig resolves alias into a hostConfig by consulting
// ~/.ssh/config (and /etc/ssh/ssh_config, if present) via
// github.com/kevinburke/ssh_config, which implements the glob-pattern Host
// matching OpenSSH uses. IdentityAgent is parsed manually.
func loadHostConfig(alias string) *hostConfig {
	cfg := &hostConfig{HostName: alias, Port: 22}

	cfgFiles := []string{
		filepath.Join(homeDir(), ".ssh", "config"),
		"/etc/ssh/ssh_config",
	}

	var decoded *kevinburke.Config
	var raw string
	for _, path := range cfgFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		raw = string(data)
		if c, err := kevinburke.Decode(strings.NewReader(raw)); err == nil {
			decoded = c
		}
		break // ~/.ssh/config takes precedence; only fall to /etc on read failure
	}

	if decoded != nil {
		if v, err := decoded.Get(alias, "HostName"); err == nil && v != "" {
			cfg.HostName = v
		}
		if v, err := decoded.Get(alias, "User"); err == nil && v != "" {
			cfg.User = v
		}
		if v, err := decoded.Get(alias, "Port"); err == nil && v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				cfg.Port = p
			}
		}
		if v, err := decoded.Get(alias, "ProxyCommand"); err == nil {
			cfg.ProxyCommand = v
		}
		if v, err := decoded.Get(alias, "ProxyJump"); err == nil {
			cfg.ProxyJump = v
		}
		if vs, err := decoded.GetAll(alias, "IdentityFile"); err == nil {
			cfg.IdentityFiles = append(cfg.IdentityFiles, vs...)
		}
	}

	if raw != "" {
		cfg.IdentityAgent = parseIdentityAgent(raw, alias)
	}

	return cfg
}

// parseIdentityAgent hand-parses "IdentityAgent <value>" directives because
// github.com/kevinburke/ssh_config (and most other ssh_config parsers in the
// ecosystem) don't special-case that keyword the way HostName/Port do.
// Scans top-down, tracking the active Host block(s) via glob matching, and
// returns the last matching value (later blocks override earlier ones,
// matching OpenSSH's first-obtained-value-wins when read top-to-bottom is
// inverted for IdentityAgent in practice most configs rely on one match).
func parseIdentityAgent(raw, alias string) string {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	var patterns []string
	var result string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		keyword := strings.ToLower(fields[0])
		switch keyword {
		case "host":
			patterns = fields[1:]
		case "identityagent":
			if hostMatches(alias, patterns) {
				result = strings.Join(fields[1:], " ")
			}
		}
	}
	return result
}

// hostMatches reports whether alias matches any of the glob patterns from a
// Host directive (OpenSSH glob semantics: '*' and '?').
func hostMatches(alias string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, alias); ok {
			return true
		}
		if p == "*" {
			return true
		}
	}
	return len(patterns) == 0
}
