// Package netplan derives the subnet, gateway, host IPs, and bridge name for a
// cluster session deterministically from its numeric session index. Pure
// functions only: no I/O, no shared state.
package netplan

import "fmt"

// MaxClusters bounds the numeric session index at 246 × 256. An index maps to
// 10.x.y.0/24 with x = index/256 and y = index%256 (all 256 y values are
// used), so the bound admits x-octets 0 through 245. New rejects indexes at
// or beyond it.
const MaxClusters = 62976

// DHCPRangeStart and DHCPRangeEnd bound the last octet handed out to
// environments by the bridge's built-in DHCP server.
const (
	DHCPRangeStart = 100
	DHCPRangeEnd   = 200
)

// Plan is the fully-resolved network layout for one cluster index.
type Plan struct {
	Index      int
	Subnet     string // CIDR, e.g. "10.0.0.0/24"
	Gateway    string
	BridgeName string
}

// New computes the deterministic network plan for a cluster index. Negative
// indexes and indexes at or beyond MaxClusters are rejected.
func New(index int) (Plan, error) {
	if index < 0 {
		return Plan{}, fmt.Errorf("netplan: cluster index must be non-negative, got %d", index)
	}
	if index >= MaxClusters {
		return Plan{}, fmt.Errorf("netplan: cluster index %d exceeds MaxClusters %d", index, MaxClusters)
	}
	return Plan{
		Index:      index,
		Subnet:     Subnet(index),
		Gateway:    Gateway(index),
		BridgeName: BridgeName(index),
	}, nil
}

func octets(index int) (x, y int) {
	return index / 256, index % 256
}

// Subnet returns the /24 CIDR owned by this cluster index.
func Subnet(index int) string {
	x, y := octets(index)
	return fmt.Sprintf("10.%d.%d.0/24", x, y)
}

// Gateway returns the gateway address within Subnet(index).
func Gateway(index int) string {
	x, y := octets(index)
	return fmt.Sprintf("10.%d.%d.1", x, y)
}

// Host returns the address of host id h (2..254) within Subnet(index).
func Host(index, h int) (string, error) {
	if h < 2 || h > 254 {
		return "", fmt.Errorf("netplan: host id must be in [2, 254], got %d", h)
	}
	x, y := octets(index)
	return fmt.Sprintf("10.%d.%d.%d", x, y, h), nil
}

// BridgeName returns the deterministic host bridge device name for this
// cluster index.
func BridgeName(index int) string {
	return fmt.Sprintf("venvbr%d", index)
}

// DHCPRange returns the first and last address handed out to environments on
// this cluster's bridge.
func DHCPRange(index int) (start, end string, err error) {
	start, err = Host(index, DHCPRangeStart)
	if err != nil {
		return "", "", err
	}
	end, err = Host(index, DHCPRangeEnd)
	if err != nil {
		return "", "", err
	}
	return start, end, nil
}
