// Package overlay manages qcow2 copy-on-write overlay disks for VM
// environments, each backed by a read-only base image shared across
// clusters.
package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Manager creates and removes overlay disk images by shelling out to
// qemu-img, the same external-tool boundary the legacy Python runtime used.
type Manager struct {
	log *slog.Logger
}

// NewManager returns a Manager that logs to log, or slog.Default if nil.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{log: log}
}

// Create builds a qcow2 overlay at overlayPath backed by basePath. It fails
// if overlayPath already exists or qemu-img reports an error.
func (m *Manager) Create(ctx context.Context, basePath, overlayPath string) error {
	if _, err := os.Stat(overlayPath); err == nil {
		return fmt.Errorf("overlay: %s already exists", overlayPath)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("overlay: stat %s: %w", overlayPath, err)
	}

	cmd := exec.CommandContext(ctx, "qemu-img", "create",
		"-f", "qcow2",
		"-F", "qcow2",
		"-b", basePath,
		overlayPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("overlay: qemu-img create %s from %s: %w: %s", overlayPath, basePath, err, out)
	}
	m.log.Debug("created vm overlay", "base", basePath, "overlay", overlayPath)
	return nil
}

// Remove deletes the overlay at overlayPath. A missing file is treated as
// success since the desired end state — no overlay present — already holds.
// It returns false only when the file exists but could not be removed.
func (m *Manager) Remove(overlayPath string) bool {
	if _, err := os.Stat(overlayPath); os.IsNotExist(err) {
		return true
	}
	if err := os.Remove(overlayPath); err != nil {
		m.log.Warn("failed to remove vm overlay", "overlay", overlayPath, "error", err)
		return false
	}
	m.log.Debug("removed vm overlay", "overlay", overlayPath)
	return true
}
