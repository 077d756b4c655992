package sshpool

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a typed SSH-layer error. Kind lets callers (notably the pool)
// switch on whether the failure is network-shaped (timeout, connection
// reset, broken pipe) and should evict the session from the pool.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// ErrorKind discriminates Error.
type ErrorKind string

const (
	ErrKindNetwork ErrorKind = "network"
	ErrKindOther   ErrorKind = "other"
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sshpool: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("sshpool: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// classifyTransportError wraps err, tagging it ErrKindNetwork when its
// text matches a known network-failure shape.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	kind := ErrKindOther
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "eof") {
		kind = ErrKindNetwork
	}
	return &Error{Kind: kind, Message: "transport error", Cause: err}
}

// IsNetworkShaped reports whether err (or anything it wraps) represents a
// network failure that should evict the session from the pool.
func IsNetworkShaped(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == ErrKindNetwork
	}
	return false
}
