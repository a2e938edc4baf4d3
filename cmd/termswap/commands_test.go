package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/raaihank/termswap/internal/engine"
	"github.com/raaihank/termswap/internal/errs"
)

func TestWriteFull(t *testing.T) {
	encoded := engine.Result{Mode: engine.ModeEncode, Content: "bridge_compatibility", TotalReplacements: 1}

	t.Run("ObfuscationFailedAfterEncode", func(t *testing.T) {
		var out bytes.Buffer
		failure := fmt.Errorf("obfuscation pass failed: %w", errs.ErrConflict)

		err := writeFull(&out, engine.FullResult{Encode: encoded}, failure)
		if !errors.Is(err, errs.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		var printed engine.FullResult
		if err := json.Unmarshal(out.Bytes(), &printed); err != nil {
			t.Fatalf("committed encode pass was not printed: %q", out.String())
		}
		if printed.Encode.Content != "bridge_compatibility" || printed.Obfuscate != nil {
			t.Errorf("unexpected printed result %+v", printed)
		}
	})

	t.Run("EncodeFailed", func(t *testing.T) {
		var out bytes.Buffer
		failure := errs.IO("failed to write working text", nil)

		if err := writeFull(&out, engine.FullResult{}, failure); !errors.Is(err, errs.ErrIO) {
			t.Fatalf("expected ErrIO, got %v", err)
		}
		if out.Len() != 0 {
			t.Errorf("nothing was committed but output was %q", out.String())
		}
	})

	t.Run("Success", func(t *testing.T) {
		var out bytes.Buffer
		obfuscated := engine.Result{Mode: engine.ModeObfuscate, Content: "var_a1"}

		if err := writeFull(&out, engine.FullResult{Encode: encoded, Obfuscate: &obfuscated}, nil); err != nil {
			t.Fatalf("writeFull failed: %v", err)
		}
		var printed engine.FullResult
		if err := json.Unmarshal(out.Bytes(), &printed); err != nil || printed.Obfuscate == nil {
			t.Errorf("unexpected output %q", out.String())
		}
	})
}
