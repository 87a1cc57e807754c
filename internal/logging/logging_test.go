package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/duoapp/duo/internal/config"
)

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "duo.log")
	var console bytes.Buffer

	logger, cleanup, err := newWithConsole(config.LogConfig{Level: "info", File: path, MaxSizeMB: 1}, &console)
	if err != nil {
		t.Fatalf("newWithConsole() failed: %v", err)
	}

	logger.Info("item added", zap.Int64("id", 7))
	logger.Debug("hidden")
	cleanup()

	if !strings.Contains(console.String(), "item added") {
		t.Errorf("console output missing entry: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Error("debug entry should be filtered at info level")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file is not JSON: %v (%q)", err, data)
	}
	if entry["msg"] != "item added" {
		t.Errorf("msg = %v, want 'item added'", entry["msg"])
	}
	if entry["id"] != float64(7) {
		t.Errorf("id = %v, want 7", entry["id"])
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	if _, _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Error("New() should reject unknown level")
	}
}
