package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(slog.LevelInfo, "json", &buf)
	logger.Info("expanded", "jobs", 4)
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, `"msg":"expanded"`) || !strings.Contains(out, `"jobs":4`) {
		t.Errorf("Expected json record, got %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug record to be filtered, got %s", out)
	}

	buf.Reset()
	NewLoggerWithWriter(slog.LevelInfo, "text", &buf).Info("hello", "key", "value")
	if !strings.Contains(buf.String(), "key=value") {
		t.Errorf("Expected text record, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	} {
		if got := ParseLevel(in); got != want {
			t.Errorf("Expected %v for %q, got %v", want, in, got)
		}
	}
}
