// Package hostprobe reads host-wide CPU, memory, and network counters. Host
// resource metrics collection is an out-of-scope external collaborator per
// the orchestrator's spec; this package is the opaque probe boundary it
// plugs into.
package hostprobe

import (
	"fmt"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shirou/gopsutil/net"
)

// Snapshot is one host-wide resource reading.
type Snapshot struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryTotal   uint64
	NetworkRx     uint64
	NetworkTx     uint64
}

// Probe reads a host resource Snapshot.
type Probe interface {
	Read() (Snapshot, error)
}

// GopsutilProbe is the production Probe, backed by gopsutil.
type GopsutilProbe struct{}

// NewGopsutilProbe returns a Probe reading from the local host.
func NewGopsutilProbe() *GopsutilProbe { return &GopsutilProbe{} }

// Read samples CPU percent (over a zero-duration/non-blocking interval),
// virtual memory, and summed network IO counters across all interfaces.
func (GopsutilProbe) Read() (Snapshot, error) {
	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("hostprobe: reading cpu percent: %w", err)
	}
	var cpuPercent float64
	if len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("hostprobe: reading virtual memory: %w", err)
	}

	counters, err := net.IOCounters(false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("hostprobe: reading network io counters: %w", err)
	}
	var rx, tx uint64
	for _, c := range counters {
		rx += c.BytesRecv
		tx += c.BytesSent
	}

	return Snapshot{
		CPUPercent:    cpuPercent,
		MemoryPercent: vm.UsedPercent,
		MemoryTotal:   vm.Total,
		NetworkRx:     rx,
		NetworkTx:     tx,
	}, nil
}
