package forwarder

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeSocat installs a stand-in socat on PATH that just sleeps, long enough
// for the test to observe and then terminate it.
func fakeSocat(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	script := "#!/bin/sh\nsleep 30\n"
	path := filepath.Join(dir, "socat")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func TestForwardStartsProcess(t *testing.T) {
	fakeSocat(t)
	h, err := Forward("10.0.0.5", 22, 30022, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	defer h.Terminate()

	if h.cmd.Process == nil {
		t.Fatal("expected a running process")
	}
}

func TestTerminateStopsProcessAndIsIdempotent(t *testing.T) {
	fakeSocat(t)
	h, err := Forward("10.0.0.5", 22, 30023, nil)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if err := h.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := h.Terminate(); err != nil {
		t.Fatalf("second Terminate should be a no-op, got: %v", err)
	}

	done := make(chan struct{})
	go func() {
		h.cmd.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not exit after Terminate")
	}
}

func TestForwardMissingToolReturnsError(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if _, err := Forward("10.0.0.5", 22, 30024, nil); err == nil {
		t.Fatal("expected error when socat is not on PATH")
	}
}
