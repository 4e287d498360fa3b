// Package bridge provisions the per-cluster host bridge device that VM
// environments attach to, via libvirt's network API: a NAT-forwarding
// network with a built-in DHCP server over the cluster's netplan range.
package bridge

import (
	"bytes"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/kestrelops/venvorch/internal/netplan"
)

var networkXMLTemplate = template.Must(template.New("network").Parse(`<network>
  <name>{{.BridgeName}}</name>
  <forward mode='nat'/>
  <bridge name='{{.BridgeName}}' stp='on' delay='0'/>
  <ip address='{{.Gateway}}' netmask='255.255.255.0'>
    <dhcp>
      <range start='{{.DHCPStart}}' end='{{.DHCPEnd}}'/>
    </dhcp>
  </ip>
</network>
`))

// Hypervisor is the subset of libvirt network operations the provisioner
// needs. It is satisfied by libvirtops.Connect (a wrapper over
// *libvirt.Connect) in production and by a mock in tests.
type Hypervisor interface {
	NetworkDefineXML(xml string) (Handle, error)
}

// Handle is the subset of a libvirt Network handle the provisioner drives.
type Handle interface {
	Create() error
	SetAutostart(bool) error
	Destroy() error
	Undefine() error
}

// Provisioner creates and tears down cluster bridge networks.
type Provisioner struct {
	hv  Hypervisor
	log *slog.Logger
}

// NewProvisioner returns a Provisioner backed by hv.
func NewProvisioner(hv Hypervisor, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{hv: hv, log: log}
}

// renderXML fills the network template with the netplan for clusterIndex.
func renderXML(clusterIndex int) (string, error) {
	plan, err := netplan.New(clusterIndex)
	if err != nil {
		return "", err
	}
	start, end, err := netplan.DHCPRange(clusterIndex)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = networkXMLTemplate.Execute(&buf, struct {
		BridgeName string
		Gateway    string
		DHCPStart  string
		DHCPEnd    string
	}{plan.BridgeName, plan.Gateway, start, end})
	if err != nil {
		return "", fmt.Errorf("bridge: rendering network XML: %w", err)
	}
	return buf.String(), nil
}

// Create defines, starts, and autostarts the bridge network for
// clusterIndex, returning the live Handle so Remove can tear it down later.
func (p *Provisioner) Create(clusterIndex int) (Handle, error) {
	xml, err := renderXML(clusterIndex)
	if err != nil {
		return nil, err
	}
	net, err := p.hv.NetworkDefineXML(xml)
	if err != nil {
		return nil, fmt.Errorf("bridge: defining network for cluster %d: %w", clusterIndex, err)
	}
	if err := net.Create(); err != nil {
		return nil, fmt.Errorf("bridge: starting network for cluster %d: %w", clusterIndex, err)
	}
	if err := net.SetAutostart(true); err != nil {
		p.log.Warn("failed to set network autostart", "cluster_index", clusterIndex, "error", err)
	}
	p.log.Debug("created cluster bridge", "cluster_index", clusterIndex)
	return net, nil
}

// Remove destroys and undefines a bridge network. It is best-effort: a
// failure to undefine after a successful destroy is logged, not returned, so
// callers performing cluster teardown can continue releasing other
// resources.
func (p *Provisioner) Remove(h Handle) error {
	if h == nil {
		return nil
	}
	if err := h.Destroy(); err != nil {
		return fmt.Errorf("bridge: destroying network: %w", err)
	}
	if err := h.Undefine(); err != nil {
		p.log.Warn("failed to undefine network after destroy", "error", err)
	}
	return nil
}
