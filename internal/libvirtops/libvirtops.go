// Package libvirtops adapts a single libvirt connection onto the two
// narrow interfaces the rest of the orchestrator depends on: bridge.Hypervisor
// (network definitions) and environment.Hypervisor/Domain (VM domains). One
// connection backs both, mirroring how a single LIBVIRT_CLIENT URI serves
// the whole process.
package libvirtops

import (
	"fmt"

	"libvirt.org/go/libvirt"

	"github.com/kestrelops/venvorch/internal/bridge"
	"github.com/kestrelops/venvorch/internal/environment"
)

// Connect wraps a *libvirt.Connect and exposes it as both the bridge and
// VM packages' Hypervisor interfaces.
type Connect struct {
	conn *libvirt.Connect
}

// Open connects to the hypervisor at uri (e.g. "qemu:///system").
func Open(uri string) (*Connect, error) {
	conn, err := libvirt.NewConnect(uri)
	if err != nil {
		return nil, fmt.Errorf("libvirtops: connecting to %s: %w", uri, err)
	}
	return &Connect{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Connect) Close() error {
	_, err := c.conn.Close()
	return err
}

// NetworkDefineXML implements bridge.Hypervisor.
func (c *Connect) NetworkDefineXML(xmlStr string) (bridge.Handle, error) {
	net, err := c.conn.NetworkDefineXML(xmlStr)
	if err != nil {
		return nil, err
	}
	return &networkHandle{net: net}, nil
}

// DefineXML implements environment.Hypervisor.
func (c *Connect) DefineXML(xmlStr string) (environment.Domain, error) {
	dom, err := c.conn.DomainDefineXML(xmlStr)
	if err != nil {
		return nil, err
	}
	return &domainHandle{dom: dom}, nil
}

type networkHandle struct {
	net *libvirt.Network
}

func (h *networkHandle) Create() error {
	return h.net.Create()
}

func (h *networkHandle) SetAutostart(autostart bool) error {
	return h.net.SetAutostart(autostart)
}

func (h *networkHandle) Destroy() error {
	return h.net.Destroy()
}

func (h *networkHandle) Undefine() error {
	return h.net.Undefine()
}

type domainHandle struct {
	dom *libvirt.Domain
}

func (h *domainHandle) Create() error {
	return h.dom.Create()
}

func (h *domainHandle) Destroy() error {
	return h.dom.Destroy()
}

func (h *domainHandle) Undefine() error {
	return h.dom.Undefine()
}

func (h *domainHandle) Reboot() error {
	return h.dom.Reboot(0)
}

func (h *domainHandle) State() (string, error) {
	state, _, err := h.dom.GetState()
	if err != nil {
		return "", err
	}
	return stateString(state), nil
}

func (h *domainHandle) XMLDesc() (string, error) {
	return h.dom.GetXMLDesc(0)
}

func (h *domainHandle) MemoryStats() (environment.MemoryStats, error) {
	stats, err := h.dom.MemoryStats(uint32(libvirt.DOMAIN_MEMORY_STAT_NR), 0)
	if err != nil {
		return environment.MemoryStats{}, err
	}
	var out environment.MemoryStats
	for _, s := range stats {
		switch libvirt.DomainMemoryStatTags(s.Tag) {
		case libvirt.DOMAIN_MEMORY_STAT_RSS:
			out.RSSKB, out.RSSOK = s.Val, true
		case libvirt.DOMAIN_MEMORY_STAT_ACTUAL_BALLOON:
			out.ActualKB, out.ActualOK = s.Val, true
		}
	}
	return out, nil
}

func (h *domainHandle) Info() (uint64, error) {
	info, err := h.dom.GetInfo()
	if err != nil {
		return 0, err
	}
	return info.Memory, nil
}

func (h *domainHandle) InterfaceStats(dev string) (rx, tx uint64, err error) {
	stats, err := h.dom.InterfaceStats(dev)
	if err != nil {
		return 0, 0, err
	}
	return uint64(stats.RxBytes), uint64(stats.TxBytes), nil
}

func stateString(state libvirt.DomainState) string {
	switch state {
	case libvirt.DOMAIN_RUNNING:
		return "running"
	case libvirt.DOMAIN_BLOCKED:
		return "blocked"
	case libvirt.DOMAIN_PAUSED:
		return "paused"
	case libvirt.DOMAIN_SHUTDOWN:
		return "shutdown"
	case libvirt.DOMAIN_SHUTOFF:
		return "shutoff"
	case libvirt.DOMAIN_PMSUSPENDED:
		return "pmsuspended"
	case libvirt.DOMAIN_CRASHED:
		return "crashed"
	default:
		return "nostate"
	}
}
