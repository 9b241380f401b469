package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" INFO ":  zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"warn":    zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
	}
	for raw, expected := range testCases {
		if got := ParseLevel(raw); got != expected {
			t.Fatalf("ParseLevel(%q) = %s, want %s", raw, got, expected)
		}
	}
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlacatl.log")

	logger, err := NewLogger("warn", path)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	logger.Info("dropped below level")
	logger.Warn("rate limit exceeded", zap.String("class", "like"))
	_ = logger.Sync()

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(contents)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one entry, got %d: %s", len(lines), contents)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON entry: %v", err)
	}
	if entry["msg"] != "rate limit exceeded" || entry["class"] != "like" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewLoggerWithoutFile(t *testing.T) {
	logger, err := NewLogger("debug", "")
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("expected debug level to be enabled")
	}
}
