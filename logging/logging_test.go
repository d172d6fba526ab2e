package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWriterFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn", false)

	Info("hidden")
	Component("observer").Warn("shown", "frames", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "component=observer") {
		t.Errorf("warn message missing or untagged: %q", out)
	}
}

func TestInitWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "debug", true)

	Debug("tick", "n", 1)
	if !strings.Contains(buf.String(), `"msg":"tick"`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
