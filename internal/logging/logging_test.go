package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewDebugLogsWithoutPanic(t *testing.T) {
	log := New(true, "")
	log.Info("hello", "key", "value")
}

func TestNewFileModeWritesToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log := New(false, path)
	log.Info("hello", "key", "value")

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to be created: %v", err)
	}
}
