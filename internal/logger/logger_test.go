package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Run("InvalidLevel", func(t *testing.T) {
		if _, err := New(Config{Level: "loud", Format: "json"}); err == nil {
			t.Error("expected an error for an unknown level")
		}
	})

	t.Run("FileOutput", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "termswap.log")
		log, err := New(Config{
			Level:  "info",
			Format: "console",
			File:   &FileConfig{Enabled: true, Path: path},
		})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}

		log.WithComponent("engine").WithRequestID("req-1").LogOperation("encode", 3, "aaaa1111", "bbbb2222", 0)
		log.Sync()

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("log file not written: %v", err)
		}
		line := string(data)
		for _, want := range []string{`"component":"engine"`, `"request_id":"req-1"`, `"mode":"encode"`, `"replacements":3`} {
			if !strings.Contains(line, want) {
				t.Errorf("log line missing %s: %s", want, line)
			}
		}
	})
}

func TestRedactHeaders(t *testing.T) {
	safe := redactHeaders(map[string][]string{
		"Authorization": {"Basic abc"},
		"X-Api-Key":     {"k"},
		"Content-Type":  {"application/json"},
		"Empty":         {},
	})

	if safe["Authorization"] != "[REDACTED]" || safe["X-Api-Key"] != "[REDACTED]" {
		t.Errorf("sensitive headers leaked: %v", safe)
	}
	if safe["Content-Type"] != "application/json" {
		t.Errorf("plain header altered: %v", safe)
	}
	if _, ok := safe["Empty"]; ok {
		t.Error("empty header should be dropped")
	}
}

func TestLogRequest(t *testing.T) {
	log, err := New(Config{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	// Below the configured level; must not panic.
	log.LogRequest("GET", "/health", map[string][]string{"Cookie": {"x"}}, 200, time.Millisecond)
}
