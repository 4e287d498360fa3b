// Package forwarder spawns socat processes that bridge a host-visible TCP
// port to a VM's internal IP and port, since VM environments sit on an
// isolated bridge network the host cannot route to directly.
package forwarder

import (
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// Handle represents one live socat forwarding process.
type Handle struct {
	cmd *exec.Cmd
	log *slog.Logger

	mu         sync.Mutex
	terminated bool
}

// Forward spawns `socat TCP-LISTEN:<hostPort>,fork,reuseaddr TCP:<destIP>:<destPort>`
// and returns a Handle for later termination.
func Forward(destIP string, destPort, hostPort int, log *slog.Logger) (*Handle, error) {
	if log == nil {
		log = slog.Default()
	}
	listen := fmt.Sprintf("TCP-LISTEN:%d,fork,reuseaddr", hostPort)
	dest := fmt.Sprintf("TCP:%s:%d", destIP, destPort)
	cmd := exec.Command("socat", listen, dest)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("forwarder: starting socat for %s:%d -> host:%d: %w", destIP, destPort, hostPort, err)
	}
	log.Debug("forwarding port", "dest_ip", destIP, "dest_port", destPort, "host_port", hostPort, "pid", cmd.Process.Pid)
	return &Handle{cmd: cmd, log: log}, nil
}

// Terminate kills the forwarding process. It is idempotent and safe to call
// more than once.
func (h *Handle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminated {
		return nil
	}
	h.terminated = true
	if h.cmd.Process == nil {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("forwarder: killing socat pid %d: %w", h.cmd.Process.Pid, err)
	}
	_ = h.cmd.Wait()
	return nil
}
