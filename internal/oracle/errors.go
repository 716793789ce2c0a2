package oracle

import (
	"errors"
	"fmt"
)

// ConfigError means the oracle is not usable at all: missing or invalid
// credentials. It is fatal to the whole detection call and must propagate
// to the top-level caller, never be swallowed into an empty alert list.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("oracle not configured: %s", e.Reason)
}

// TransportError means the reasoning service was unreachable, timed out,
// or returned no usable response. Recovered per patient.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oracle request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the service responded but the payload was not the
// expected {"alerts": [...]} structure. Recovered per patient.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oracle response unparseable: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
