package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// engineYAMLConfig represents the complete runbook-engine.yaml file structure.
type engineYAMLConfig struct {
	SSHPool      *SSHPoolConfig      `yaml:"ssh_pool"`
	PTY          *PTYConfig          `yaml:"pty"`
	Bridge       *BridgeConfig       `yaml:"bridge"`
	ContextStore *ContextStoreConfig `yaml:"context_store"`
	AIChat       *AIChatConfig       `yaml:"ai_chat"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load runbook-engine.yaml from configDir (if present)
//  2. Expand environment variables
//  3. Apply built-in defaults for anything unset
//  4. Validate
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully")
	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	var yamlCfg engineYAMLConfig

	path := filepath.Join(configDir, "runbook-engine.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = expandEnvRefs(data)
		if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
			return nil, NewLoadError("runbook-engine.yaml", fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
	case os.IsNotExist(err):
		// No config file is fine; defaults apply.
	default:
		return nil, NewLoadError("runbook-engine.yaml", err)
	}

	sshPool := DefaultSSHPoolConfig()
	if yamlCfg.SSHPool != nil {
		overrideSSHPool(sshPool, yamlCfg.SSHPool)
	}

	pty := DefaultPTYConfig()
	if yamlCfg.PTY != nil {
		overridePTY(pty, yamlCfg.PTY)
	}

	bridge := DefaultBridgeConfig()
	if yamlCfg.Bridge != nil {
		overrideBridge(bridge, yamlCfg.Bridge)
	}

	store := DefaultContextStoreConfig()
	if yamlCfg.ContextStore != nil {
		overrideContextStore(store, yamlCfg.ContextStore)
	}

	aichat := DefaultAIChatConfig()
	if yamlCfg.AIChat != nil {
		overrideAIChat(aichat, yamlCfg.AIChat)
	}

	return &Config{
		configDir:    configDir,
		SSHPool:      sshPool,
		PTY:          pty,
		Bridge:       bridge,
		ContextStore: store,
		AIChat:       aichat,
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

func overrideSSHPool(dst, src *SSHPoolConfig) {
	if src.ConnectTimeout > 0 {
		dst.ConnectTimeout = src.ConnectTimeout
	}
	if src.KeepaliveInterval > 0 {
		dst.KeepaliveInterval = src.KeepaliveInterval
	}
	if src.MaxSessionsPerHost > 0 {
		dst.MaxSessionsPerHost = src.MaxSessionsPerHost
	}
	if len(src.DefaultIdentityFiles) > 0 {
		dst.DefaultIdentityFiles = src.DefaultIdentityFiles
	}
}

func overridePTY(dst, src *PTYConfig) {
	if src.DefaultShell != "" {
		dst.DefaultShell = src.DefaultShell
	}
	if src.DefaultCols > 0 {
		dst.DefaultCols = src.DefaultCols
	}
	if src.DefaultRows > 0 {
		dst.DefaultRows = src.DefaultRows
	}
}

func overrideBridge(dst, src *BridgeConfig) {
	if len(src.AllowedWSOrigins) > 0 {
		dst.AllowedWSOrigins = src.AllowedWSOrigins
	}
	if src.SendBufferSize > 0 {
		dst.SendBufferSize = src.SendBufferSize
	}
	if src.PingInterval > 0 {
		dst.PingInterval = src.PingInterval
	}
}

func overrideContextStore(dst, src *ContextStoreConfig) {
	if src.Driver != "" {
		dst.Driver = src.Driver
	}
	if src.DSN != "" {
		dst.DSN = src.DSN
	}
}

func overrideAIChat(dst, src *AIChatConfig) {
	if src.GatewayAddr != "" {
		dst.GatewayAddr = src.GatewayAddr
	}
	if src.RequestTimeout > 0 {
		dst.RequestTimeout = src.RequestTimeout
	}
	if src.MaxToolRounds > 0 {
		dst.MaxToolRounds = src.MaxToolRounds
	}
}

// DefaultSSHPoolConfig returns the built-in SSH pool defaults.
func DefaultSSHPoolConfig() *SSHPoolConfig {
	return &SSHPoolConfig{
		ConnectTimeout:     15 * time.Second,
		KeepaliveInterval:  2 * time.Minute,
		MaxSessionsPerHost: 8,
		DefaultIdentityFiles: []string{
			"~/.ssh/id_ed25519",
			"~/.ssh/id_rsa",
		},
	}
}

// DefaultPTYConfig returns the built-in local PTY defaults.
func DefaultPTYConfig() *PTYConfig {
	return &PTYConfig{
		DefaultShell: "/bin/sh",
		DefaultCols:  80,
		DefaultRows:  24,
	}
}

// DefaultBridgeConfig returns the built-in bridge defaults.
func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		AllowedWSOrigins: []string{"http://localhost:5173"},
		SendBufferSize:   256,
		PingInterval:     30 * time.Second,
	}
}

// DefaultContextStoreConfig returns the built-in context-store defaults (in-memory).
func DefaultContextStoreConfig() *ContextStoreConfig {
	return &ContextStoreConfig{
		Driver: "memory",
	}
}

// DefaultAIChatConfig returns the built-in AI chat defaults.
func DefaultAIChatConfig() *AIChatConfig {
	return &AIChatConfig{
		GatewayAddr:    "localhost:50051",
		RequestTimeout: 2 * time.Minute,
		MaxToolRounds:  8,
	}
}
