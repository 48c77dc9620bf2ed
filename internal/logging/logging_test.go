package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestBuild_levelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := build(Config{Level: "warn", Name: "riskd"}, zapcore.AddSync(&buf))

	logger.Info("dropped")
	logger.Warn("kept", zap.String("k", "v"))
	_ = logger.Sync()

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "dropped") {
		t.Fatalf("info entry should be filtered: %s", out)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("want one JSON entry, got %q: %v", out, err)
	}
	if entry["msg"] != "kept" || entry["k"] != "v" || entry["logger"] != "riskd" {
		t.Errorf("entry = %v", entry)
	}
}

func TestBuild_invalidLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := build(Config{Level: "chatty"}, zapcore.AddSync(&buf))
	logger.Debug("nope")
	logger.Info("yes")
	_ = logger.Sync()

	if strings.Contains(buf.String(), "nope") || !strings.Contains(buf.String(), "yes") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestBuild_fileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "riskd.log")
	var buf bytes.Buffer
	logger := build(Config{Level: "info", Format: "console", File: path, MaxSizeMB: 1}, zapcore.AddSync(&buf))
	logger.Info("to both")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"to both"`) {
		t.Errorf("file sink should hold JSON, got %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("console output = %q", buf.String())
	}
}
