// Package errs defines the error taxonomy shared by the engine packages.
//
// Callers match failures with errors.Is against the sentinels below; every
// package wraps them with fmt.Errorf("...: %w") so the underlying cause is kept.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig reports a malformed or unreadable rule source.
	ErrConfig = errors.New("config error")

	// ErrConflict reports a second obfuscation while one is still outstanding.
	ErrConflict = errors.New("conflict")

	// ErrNotFound reports a missing obfuscation map, history entry or backup.
	ErrNotFound = errors.New("not found")

	// ErrIO reports a backup, history or map persistence failure.
	ErrIO = errors.New("io error")

	// ErrInvalid reports a request argument the engine refuses to act on.
	ErrInvalid = errors.New("invalid argument")
)

// Config wraps err as an ErrConfig with a message.
func Config(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrConfig)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrConfig, err)
}

// IO wraps err as an ErrIO with a message.
func IO(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", msg, ErrIO)
	}
	return fmt.Errorf("%s: %w: %w", msg, ErrIO, err)
}

// Kind returns a short label for the taxonomy member err belongs to, or
// "internal" when it matches none of them.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	default:
		return "internal"
	}
}
