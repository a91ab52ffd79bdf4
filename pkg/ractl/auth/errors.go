package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss is returned when no readable cache record exists for a
	// server and identity. Callers recover by logging in again.
	ErrCacheMiss = errors.New("token cache miss")
	// ErrTimeout is returned when no authorization code reached the
	// callback listener before its deadline.
	ErrTimeout = errors.New("timed out waiting for authorization code")
)

// ConfigError reports invalid or conflicting authentication options. It is
// raised before any network or file activity.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid auth configuration: " + e.Reason
}

// AuthError reports a failed login or token exchange.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Op)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
