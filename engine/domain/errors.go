package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrUnavailable      = errors.New("page unavailable")
	ErrEmptyBody        = errors.New("empty response body")
	ErrNoStructuredData = errors.New("no structured data block")
)

// ConfigError reports a configuration value that prevents a run from
// starting. It wraps ErrInvalidConfig unless another cause is given.
type ConfigError struct {
	Field   string
	Value   string
	Reason  string
	Wrapped error
}

func (e *ConfigError) Error() string {
	if e.Wrapped != nil && !errors.Is(e.Wrapped, ErrInvalidConfig) {
		return fmt.Sprintf("config: %s=%q: %s: %v", e.Field, e.Value, e.Reason, e.Wrapped)
	}
	return fmt.Sprintf("config: %s=%q: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() []error {
	if e.Wrapped == nil || errors.Is(e.Wrapped, ErrInvalidConfig) {
		return []error{ErrInvalidConfig}
	}
	return []error{ErrInvalidConfig, e.Wrapped}
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, value, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}
