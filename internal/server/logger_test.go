package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("JSON format", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&buf, "info", "JSON")
		log.Info("room created", "room", "general")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
		}
		if entry["msg"] != "room created" || entry["room"] != "general" {
			t.Errorf("Unexpected entry %v", entry)
		}
	})

	t.Run("Text format filters by level", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&buf, "warn", "text")
		log.Info("hidden")
		log.Warn("shown")

		out := buf.String()
		if strings.Contains(out, "hidden") {
			t.Errorf("Expected info to be filtered, got %q", out)
		}
		if !strings.Contains(out, "msg=shown") {
			t.Errorf("Expected warn entry, got %q", out)
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" ERROR ": slog.LevelError,
		"warn":    slog.LevelWarn,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range tests {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
