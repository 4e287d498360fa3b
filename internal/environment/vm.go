package environment

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelops/venvorch/internal/envstatus"
	"github.com/kestrelops/venvorch/internal/forwarder"
	"github.com/kestrelops/venvorch/internal/orcherrors"
	"github.com/kestrelops/venvorch/internal/overlay"
)

// requiredPlaceholders are the template tokens renderXML demands before
// substitution; any VM definition template missing one of these is rejected
// outright rather than silently booting a misconfigured domain.
var requiredPlaceholders = []string{"{{VM_NAME}}", "{{DISK_IMAGE}}", "{{VM_UUID}}", "{{NETWORK_NAME}}"}

// MemoryStats mirrors the subset of libvirt's domain memory stats this
// driver consumes, in kilobytes as libvirt itself reports them.
type MemoryStats struct {
	RSSKB    uint64
	RSSOK    bool
	ActualKB uint64
	ActualOK bool
}

// Domain is the subset of a libvirt domain handle the VM driver needs.
// Satisfied by an adapter over libvirt.org/go/libvirt in production, and by
// a hand-written mock in tests.
type Domain interface {
	Create() error
	Destroy() error
	Undefine() error
	Reboot() error
	// State returns the raw libvirt state string (e.g. "running",
	// "blocked", "paused", "shutdown", "shutoff", "pmsuspended",
	// "nostate", "crashed").
	State() (string, error)
	XMLDesc() (string, error)
	MemoryStats() (MemoryStats, error)
	// Info returns memory usage in kilobytes, the last-resort fallback
	// when MemoryStats reports neither RSS nor "actual".
	Info() (memoryKB uint64, err error)
	InterfaceStats(dev string) (rx, tx uint64, err error)
}

// Hypervisor defines a domain from rendered XML.
type Hypervisor interface {
	DefineXML(xmlStr string) (Domain, error)
}

// NeighborLookup resolves mac to the first matching IP in the host neighbor
// table, and whether a match was found.
type NeighborLookup func(mac string) (string, bool, error)

// ForwardFunc starts a port forwarder; overridable in tests.
type ForwardFunc func(destIP string, destPort, hostPort int, log *slog.Logger) (*forwarder.Handle, error)

var stateMapping = map[string]envstatus.Status{
	"running":     envstatus.Running,
	"blocked":     envstatus.Running,
	"paused":      envstatus.Paused,
	"shutdown":    envstatus.Paused,
	"shutoff":     envstatus.Paused,
	"pmsuspended": envstatus.Paused,
	"nostate":     envstatus.Unknown,
	"crashed":     envstatus.Unknown,
}

// VMInstance is the VM-backed EnvironmentInstance variant.
type VMInstance struct {
	Name              string
	DisplayNameVal    string
	XMLTemplate       string
	OverlayPath       string
	BaseImagePath     string
	InternalPorts     []int
	PublishedPortsVal []int
	AccessTemplate    string
	NetworkName       string

	hv           Hypervisor
	overlayMgr   *overlay.Manager
	neighbor     NeighborLookup
	forward      ForwardFunc
	pollInterval time.Duration
	bootTimeout  time.Duration
	log          *slog.Logger

	mu         sync.Mutex
	domain     Domain
	ip         string
	forwarders []*forwarder.Handle
}

// NewVMInstance computes the overlay path and creates the overlay disk
// before returning, per the driver's construction-time side effect.
func NewVMInstance(
	ctx context.Context,
	name, displayName, xmlTemplate, overlayPath, baseImagePath string,
	internalPorts, publishedPorts []int,
	accessTemplate, networkName string,
	hv Hypervisor,
	overlayMgr *overlay.Manager,
	neighbor NeighborLookup,
	forward ForwardFunc,
	pollInterval, bootTimeout time.Duration,
	log *slog.Logger,
) (*VMInstance, error) {
	if log == nil {
		log = slog.Default()
	}
	if neighbor == nil {
		neighbor = defaultNeighborLookup
	}
	if forward == nil {
		forward = forwarder.Forward
	}
	if err := overlayMgr.Create(ctx, baseImagePath, overlayPath); err != nil {
		return nil, orcherrors.NewVMEnvError(orcherrors.VMCauseOverlayFailure, "create overlay", err)
	}
	return &VMInstance{
		Name:              name,
		DisplayNameVal:    displayName,
		XMLTemplate:       xmlTemplate,
		OverlayPath:       overlayPath,
		BaseImagePath:     baseImagePath,
		InternalPorts:     internalPorts,
		PublishedPortsVal: publishedPorts,
		AccessTemplate:    accessTemplate,
		NetworkName:       networkName,
		hv:                hv,
		overlayMgr:        overlayMgr,
		neighbor:          neighbor,
		forward:           forward,
		pollInterval:      pollInterval,
		bootTimeout:       bootTimeout,
		log:               log,
	}, nil
}

func (v *VMInstance) DisplayName() string   { return v.DisplayNameVal }
func (v *VMInstance) PublishedPorts() []int { return v.PublishedPortsVal }

// renderXML substitutes a fresh UUIDv4 into the template, rejecting
// templates missing any required placeholder and removing the overlay on
// rejection.
func (v *VMInstance) renderXML() (string, error) {
	for _, ph := range requiredPlaceholders {
		if !strings.Contains(v.XMLTemplate, ph) {
			v.overlayMgr.Remove(v.OverlayPath)
			return "", orcherrors.NewVMEnvError(orcherrors.VMCauseLibvirtError, "render xml",
				fmt.Errorf("template missing required placeholder %s", ph))
		}
	}
	out := v.XMLTemplate
	out = strings.ReplaceAll(out, "{{VM_NAME}}", v.Name)
	out = strings.ReplaceAll(out, "{{DISK_IMAGE}}", v.OverlayPath)
	out = strings.ReplaceAll(out, "{{VM_UUID}}", uuid.New().String())
	out = strings.ReplaceAll(out, "{{NETWORK_NAME}}", v.NetworkName)
	return out, nil
}

// Start defines and creates the domain, then spawns a detached boot-watch
// task for the lifetime of boot.
func (v *VMInstance) Start(ctx context.Context) error {
	xmlStr, err := v.renderXML()
	if err != nil {
		return err
	}
	domain, err := v.hv.DefineXML(xmlStr)
	if err != nil {
		v.overlayMgr.Remove(v.OverlayPath)
		return orcherrors.NewVMEnvError(orcherrors.VMCauseLibvirtError, "define domain", err)
	}
	if err := domain.Create(); err != nil {
		v.overlayMgr.Remove(v.OverlayPath)
		return orcherrors.NewVMEnvError(orcherrors.VMCauseLibvirtError, "start domain", err)
	}

	v.mu.Lock()
	v.domain = domain
	v.mu.Unlock()

	go v.bootWatch()
	return nil
}

// bootWatch polls status until it leaves BOOTING or bootTimeout elapses. It
// is fire-and-forget: its caller does not await it, but it guarantees
// exactly one of onStarted or Destroy runs.
func (v *VMInstance) bootWatch() {
	deadline := time.Now().Add(v.bootTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(v.pollInterval)
		if v.Status() != envstatus.Booting {
			v.onStarted()
			return
		}
	}
	v.log.Warn("vm boot timed out", "name", v.Name, "timeout", v.bootTimeout)
	v.Destroy(context.Background())
}

// onStarted starts one port forwarder per internal/published pair from the
// VM's leased IP.
func (v *VMInstance) onStarted() {
	v.mu.Lock()
	ip := v.ip
	v.mu.Unlock()

	for i, internal := range v.InternalPorts {
		fh, err := v.forward(ip, internal, v.PublishedPortsVal[i], v.log)
		if err != nil {
			v.log.Warn("failed to start port forwarder", "name", v.Name, "internal_port", internal, "error", err)
			continue
		}
		v.mu.Lock()
		v.forwarders = append(v.forwarders, fh)
		v.mu.Unlock()
	}
}

// Restart fails if the domain was never defined.
func (v *VMInstance) Restart(ctx context.Context) error {
	v.mu.Lock()
	domain := v.domain
	v.mu.Unlock()
	if domain == nil {
		return orcherrors.NewRuntime(fmt.Sprintf("vm %s was never started", v.Name), nil)
	}
	if err := domain.Reboot(); err != nil {
		return orcherrors.NewVMEnvError(orcherrors.VMCauseLibvirtError, "reboot", err)
	}
	return nil
}

// Status reports UNKNOWN with no domain, BOOTING until an IP is leased, and
// otherwise the libvirt state mapped through stateMapping.
func (v *VMInstance) Status() envstatus.Status {
	v.mu.Lock()
	domain := v.domain
	cachedIP := v.ip
	v.mu.Unlock()
	if domain == nil {
		return envstatus.Unknown
	}

	if cachedIP == "" {
		if ip, ok := v.discoverIP(domain); ok {
			v.mu.Lock()
			v.ip = ip
			v.mu.Unlock()
		} else {
			return envstatus.Booting
		}
	}

	raw, err := domain.State()
	if err != nil {
		return envstatus.Unknown
	}
	if st, ok := stateMapping[strings.ToLower(raw)]; ok {
		return st
	}
	return envstatus.Unknown
}

type domainXML struct {
	Devices struct {
		Interfaces []struct {
			Source struct {
				Bridge string `xml:"bridge,attr"`
			} `xml:"source"`
			MAC struct {
				Address string `xml:"address,attr"`
			} `xml:"mac"`
			Target struct {
				Dev string `xml:"dev,attr"`
			} `xml:"target"`
		} `xml:"interface"`
	} `xml:"devices"`
}

// discoverIP parses the domain XML for the interface on this VM's bridge,
// reads its MAC, and resolves it via the host neighbor table.
func (v *VMInstance) discoverIP(domain Domain) (string, bool) {
	desc, err := domain.XMLDesc()
	if err != nil {
		return "", false
	}
	var parsed domainXML
	if err := xml.Unmarshal([]byte(desc), &parsed); err != nil {
		return "", false
	}
	for _, iface := range parsed.Devices.Interfaces {
		if iface.Source.Bridge != v.NetworkName {
			continue
		}
		ip, ok, err := v.neighbor(iface.MAC.Address)
		if err != nil || !ok {
			continue
		}
		return ip, true
	}
	return "", false
}

// AccessInfo renders the access template against the cached IP.
func (v *VMInstance) AccessInfo() AccessInfo {
	v.mu.Lock()
	ip := v.ip
	v.mu.Unlock()
	return AccessInfo{
		IP:     ipOrUnknown(ip),
		Access: renderAccess(v.AccessTemplate, ip, v.InternalPorts, v.PublishedPortsVal),
	}
}

// Resources sums memory and per-interface network usage from the domain,
// returning zeros on any failure.
func (v *VMInstance) Resources() (Resources, error) {
	v.mu.Lock()
	domain := v.domain
	v.mu.Unlock()
	if domain == nil {
		return Resources{}, nil
	}

	mem := v.memoryBytes(domain)
	rx, tx := v.networkBytes(domain)
	return Resources{MemoryBytes: mem, NetworkRx: rx, NetworkTx: tx}, nil
}

func (v *VMInstance) memoryBytes(domain Domain) uint64 {
	stats, err := domain.MemoryStats()
	if err == nil && stats.RSSOK {
		return stats.RSSKB * 1024
	}
	if err == nil && stats.ActualOK {
		return stats.ActualKB * 1024
	}
	kb, err := domain.Info()
	if err != nil {
		return 0
	}
	return kb * 1024
}

func (v *VMInstance) networkBytes(domain Domain) (uint64, uint64) {
	desc, err := domain.XMLDesc()
	if err != nil {
		return 0, 0
	}
	var parsed domainXML
	if err := xml.Unmarshal([]byte(desc), &parsed); err != nil {
		return 0, 0
	}
	var totalRx, totalTx uint64
	for _, iface := range parsed.Devices.Interfaces {
		if iface.Target.Dev == "" {
			continue
		}
		rx, tx, err := domain.InterfaceStats(iface.Target.Dev)
		if err != nil {
			return 0, 0
		}
		totalRx += rx
		totalTx += tx
	}
	return totalRx, totalTx
}

// Destroy terminates every forwarder, then destroys and undefines the
// domain, then removes the overlay. Idempotent if never started.
func (v *VMInstance) Destroy(ctx context.Context) {
	v.mu.Lock()
	domain := v.domain
	fhs := v.forwarders
	v.forwarders = nil
	v.mu.Unlock()

	for _, fh := range fhs {
		if err := fh.Terminate(); err != nil {
			v.log.Warn("failed to terminate port forwarder", "name", v.Name, "error", err)
		}
	}

	if domain == nil {
		v.log.Debug("destroy called on never-started vm", "name", v.Name)
		v.overlayMgr.Remove(v.OverlayPath)
		return
	}
	if err := domain.Destroy(); err != nil {
		v.log.Warn("failed to destroy domain", "name", v.Name, "error", err)
	}
	if err := domain.Undefine(); err != nil {
		v.log.Warn("failed to undefine domain", "name", v.Name, "error", err)
	}
	v.overlayMgr.Remove(v.OverlayPath)
}

func defaultNeighborLookup(mac string) (string, bool, error) {
	out, err := exec.Command("ip", "neigh").Output()
	if err != nil {
		return "", false, fmt.Errorf("neighbor lookup: %w", err)
	}
	lowerMAC := strings.ToLower(mac)
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(strings.ToLower(line), lowerMAC) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields[0], true, nil
	}
	return "", false, nil
}
