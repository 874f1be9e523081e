package config

import (
	"errors"
	"fmt"
)

// LoadError reports configuration that could not be read or decoded.
type LoadError struct {
	// Path is the configuration file involved, if any.
	Path string
	Err  error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to load configuration: %v", e.Err)
	}
	return fmt.Sprintf("failed to load configuration from %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err was caused by invalid or unreadable
// configuration rather than by the environment at runtime.
func IsConfigError(err error) bool {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return true
	}
	var validationErrs ValidationErrors
	if errors.As(err, &validationErrs) {
		return true
	}
	var validationErr ValidationError
	return errors.As(err, &validationErr)
}
