package config

import "fmt"

// Validator checks a loaded Config for internally-consistent, usable values.
type Validator struct {
	cfg *Config
}

// NewValidator creates a Validator bound to cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every section validator and returns the first failure.
func (v *Validator) ValidateAll() error {
	if err := v.validateSSHPool(); err != nil {
		return err
	}
	if err := v.validatePTY(); err != nil {
		return err
	}
	if err := v.validateContextStore(); err != nil {
		return err
	}
	if err := v.validateAIChat(); err != nil {
		return err
	}
	return nil
}

func (v *Validator) validateSSHPool() error {
	p := v.cfg.SSHPool
	if p.ConnectTimeout <= 0 {
		return NewValidationError("ssh_pool", "connect_timeout", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	if p.MaxSessionsPerHost <= 0 {
		return NewValidationError("ssh_pool", "max_sessions_per_host", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validatePTY() error {
	p := v.cfg.PTY
	if p.DefaultShell == "" {
		return NewValidationError("pty", "default_shell", ErrMissingRequiredField)
	}
	if p.DefaultCols <= 0 || p.DefaultRows <= 0 {
		return NewValidationError("pty", "default_cols/default_rows", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}

func (v *Validator) validateContextStore() error {
	s := v.cfg.ContextStore
	switch s.Driver {
	case "memory":
		return nil
	case "postgres":
		if s.DSN == "" {
			return NewValidationError("context_store", "dsn", ErrMissingRequiredField)
		}
		return nil
	default:
		return NewValidationError("context_store", "driver", fmt.Errorf("%w: %q (want memory or postgres)", ErrInvalidValue, s.Driver))
	}
}

func (v *Validator) validateAIChat() error {
	a := v.cfg.AIChat
	if a.GatewayAddr == "" {
		return NewValidationError("ai_chat", "gateway_addr", ErrMissingRequiredField)
	}
	if a.MaxToolRounds <= 0 {
		return NewValidationError("ai_chat", "max_tool_rounds", fmt.Errorf("%w: must be positive", ErrInvalidValue))
	}
	return nil
}
