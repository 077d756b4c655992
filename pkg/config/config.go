package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// threaded through the document actor, SSH pool, PTY store, and bridge.
type Config struct {
	configDir string // Configuration directory path (for reference)

	SSHPool     *SSHPoolConfig
	PTY         *PTYConfig
	Bridge      *BridgeConfig
	ContextStore *ContextStoreConfig
	AIChat      *AIChatConfig
}

// SSHPoolConfig controls the SSH session pool (pkg/sshpool).
type SSHPoolConfig struct {
	// ConnectTimeout bounds dialing a new SSH connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// KeepaliveInterval is how often the pool pings idle sessions to evict dead ones.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	// MaxSessionsPerHost caps concurrent sessions multiplexed onto one connection.
	MaxSessionsPerHost int `yaml:"max_sessions_per_host"`
	// DefaultIdentityFiles is the fallback private key list when ssh-agent and
	// ssh-config both yield nothing (e.g. ~/.ssh/id_ed25519, ~/.ssh/id_rsa).
	DefaultIdentityFiles []string `yaml:"default_identity_files"`
}

// PTYConfig controls the local PTY store (pkg/ptystore).
type PTYConfig struct {
	DefaultShell string `yaml:"default_shell"`
	DefaultCols  int    `yaml:"default_cols"`
	DefaultRows  int    `yaml:"default_rows"`
}

// BridgeConfig controls the websocket event bridge (pkg/bridge).
type BridgeConfig struct {
	AllowedWSOrigins []string      `yaml:"allowed_ws_origins"`
	SendBufferSize   int           `yaml:"send_buffer_size"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

// ContextStoreConfig selects and configures the active-context persistence backend.
type ContextStoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the postgres connection string, required when Driver == "postgres".
	DSN string `yaml:"dsn"`
}

// AIChatConfig controls the AI chat block's gateway client and loop guards.
type AIChatConfig struct {
	GatewayAddr    string        `yaml:"gateway_addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxToolRounds  int           `yaml:"max_tool_rounds"`
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
