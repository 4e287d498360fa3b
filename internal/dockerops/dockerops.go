// Package dockerops adapts the real Docker Engine API client onto the two
// narrow interfaces the orchestrator drives it through: environment.ContainerOps
// (container lifecycle) and dockernet.Network (the per-cluster container
// network). One client backs both, since both ultimately talk to the same
// engine.
package dockerops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"

	"github.com/kestrelops/venvorch/internal/dockernet"
	"github.com/kestrelops/venvorch/internal/orcherrors"
)

// Client wraps the Docker Engine API client.
type Client struct {
	cli *client.Client
}

// New connects to the Docker daemon using the standard environment-derived
// configuration (DOCKER_HOST and friends).
func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerops: connecting to docker daemon: %w", err)
	}
	return &Client{cli: cli}, nil
}

// Close releases the underlying HTTP client's idle connections.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Run implements environment.ContainerOps.
func (c *Client) Run(ctx context.Context, image, name, networkID string, ports map[int]int, env map[string]string) (string, error) {
	exposedPorts, portBindings := toPortSpec(ports)

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	resp, err := c.cli.ContainerCreate(ctx, &container.Config{
		Image:        image,
		Env:          envList,
		ExposedPorts: exposedPorts,
	}, &container.HostConfig{
		PortBindings: portBindings,
		NetworkMode:  container.NetworkMode(networkID),
	}, nil, nil, name)
	if err != nil {
		return "", err
	}
	if err := c.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// IPOnNetwork implements environment.ContainerOps.
func (c *Client) IPOnNetwork(ctx context.Context, containerID, networkID string) (string, bool, error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", false, err
	}
	if info.NetworkSettings == nil {
		return "", false, nil
	}
	for name, net := range info.NetworkSettings.Networks {
		if name == networkID || (net != nil && net.NetworkID == networkID) {
			if net.IPAddress != "" {
				return net.IPAddress, true, nil
			}
		}
	}
	return "", false, nil
}

// FirstNetworkIP implements environment.ContainerOps.
func (c *Client) FirstNetworkIP(ctx context.Context, containerID string) (string, bool, error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", false, err
	}
	if info.NetworkSettings == nil {
		return "", false, nil
	}
	for _, net := range info.NetworkSettings.Networks {
		if net != nil && net.IPAddress != "" {
			return net.IPAddress, true, nil
		}
	}
	return "", false, nil
}

// Status implements environment.ContainerOps.
func (c *Client) Status(ctx context.Context, containerID string) (string, error) {
	info, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", err
	}
	if info.State == nil {
		return "", nil
	}
	return info.State.Status, nil
}

// Stats implements environment.ContainerOps.
func (c *Client) Stats(ctx context.Context, containerID string) (usage, cache, rx, tx uint64, err error) {
	resp, err := c.cli.ContainerStatsOneShot(ctx, containerID)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	defer resp.Body.Close()

	var decoded container.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, 0, 0, 0, err
	}

	usage = decoded.MemoryStats.Usage
	cache = decoded.MemoryStats.Stats["cache"]
	for _, netStats := range decoded.Networks {
		rx += netStats.RxBytes
		tx += netStats.TxBytes
	}
	return usage, cache, rx, tx, nil
}

// Restart implements environment.ContainerOps.
func (c *Client) Restart(ctx context.Context, containerID string) error {
	return c.cli.ContainerRestart(ctx, containerID, container.StopOptions{})
}

// Remove implements environment.ContainerOps. Docker's own idempotent
// "remove if exists" semantics are left to the caller; a not-found error
// here is returned, not swallowed, since the driver tracks whether it
// ever started.
func (c *Client) Remove(ctx context.Context, containerID string) error {
	return c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// Classify implements environment.ContainerOps, mapping engine API errors
// into the orchestrator's cause-kind taxonomy.
func (c *Client) Classify(err error) orcherrors.DockerCauseKind {
	switch {
	case err == nil:
		return orcherrors.DockerCauseUnknown
	case errdefs.IsNotFound(err):
		return orcherrors.DockerCauseImageNotFound
	case errdefs.IsConflict(err), errdefs.IsInvalidParameter(err):
		return orcherrors.DockerCauseContainerError
	default:
		return orcherrors.DockerCauseAPIError
	}
}

// NetworkCreate implements dockernet.Network.
func (c *Client) NetworkCreate(ctx context.Context, name string, opts dockernet.NetworkCreateOptions) (dockernet.NetworkCreateResponse, error) {
	resp, err := c.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:  opts.Driver,
		Options: opts.Options,
		IPAM: &network.IPAM{
			Config: []network.IPAMConfig{
				{Subnet: opts.IPAMConfig.Subnet, Gateway: opts.IPAMConfig.Gateway},
			},
		},
	})
	if err != nil {
		return dockernet.NetworkCreateResponse{}, err
	}
	return dockernet.NetworkCreateResponse{ID: resp.ID}, nil
}

// NetworkInspect implements dockernet.Network.
func (c *Client) NetworkInspect(ctx context.Context, name string) (dockernet.NetworkInspectResponse, error) {
	resp, err := c.cli.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		return dockernet.NetworkInspectResponse{}, err
	}
	return dockernet.NetworkInspectResponse{ID: resp.ID}, nil
}

// NetworkRemove implements dockernet.Network.
func (c *Client) NetworkRemove(ctx context.Context, id string) error {
	return c.cli.NetworkRemove(ctx, id)
}

func toPortSpec(ports map[int]int) (nat.PortSet, nat.PortMap) {
	exposed := make(nat.PortSet, len(ports))
	bindings := make(nat.PortMap, len(ports))
	for internal, published := range ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", internal))
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{
			{HostPort: fmt.Sprintf("%d", published)},
		}
	}
	return exposed, bindings
}
