package errs

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestWrapping(t *testing.T) {
	t.Run("ConfigKeepsCause", func(t *testing.T) {
		err := Config("failed to parse rules", os.ErrPermission)
		if !errors.Is(err, ErrConfig) {
			t.Error("expected ErrConfig")
		}
		if !errors.Is(err, os.ErrPermission) {
			t.Error("expected cause to be preserved")
		}
	})

	t.Run("IOWithoutCause", func(t *testing.T) {
		err := IO("backup failed", nil)
		if !errors.Is(err, ErrIO) {
			t.Error("expected ErrIO")
		}
	})

	t.Run("Kind", func(t *testing.T) {
		cases := map[string]error{
			"config":    Config("x", nil),
			"conflict":  fmt.Errorf("obfuscate: %w", ErrConflict),
			"not_found": fmt.Errorf("undo: %w", ErrNotFound),
			"io":        IO("x", nil),
			"invalid":   fmt.Errorf("translate: %w", ErrInvalid),
			"internal":  errors.New("boom"),
			"":          nil,
		}
		for want, err := range cases {
			if got := Kind(err); got != want {
				t.Errorf("Kind(%v) = %q, want %q", err, got, want)
			}
		}
	})
}
