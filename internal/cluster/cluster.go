// Package cluster composes environments sharing one cluster-session network
// and fans out lifecycle operations across them.
package cluster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelops/venvorch/internal/bridge"
	"github.com/kestrelops/venvorch/internal/dockernet"
	"github.com/kestrelops/venvorch/internal/environment"
	"github.com/kestrelops/venvorch/internal/envstatus"
	"github.com/kestrelops/venvorch/internal/netplan"
)

// Instance aggregates environments on a single cluster-session network.
type Instance struct {
	DBID         string
	DisplayName  string
	SessionIndex int
	NetworkName  string

	bridgeProv    *bridge.Provisioner
	bridgeH       bridge.Handle
	dockernetProv *dockernet.Provisioner
	dockernetH    *dockernet.Handle

	environments []environment.Instance
	log          *slog.Logger
}

// New plans the network, creates the host bridge, and creates the
// container-network for sessionIndex. On any step's failure it reverses the
// steps already completed before returning the error.
func New(ctx context.Context, dbID, displayName string, sessionIndex int, bridgeProv *bridge.Provisioner, dockernetProv *dockernet.Provisioner, log *slog.Logger) (*Instance, error) {
	if log == nil {
		log = slog.Default()
	}
	plan, err := netplan.New(sessionIndex)
	if err != nil {
		return nil, err
	}

	bridgeH, err := bridgeProv.Create(sessionIndex)
	if err != nil {
		return nil, fmt.Errorf("cluster: creating bridge for session %d: %w", sessionIndex, err)
	}

	dockernetH, err := dockernetProv.Create(ctx, plan.BridgeName, sessionIndex)
	if err != nil {
		if rmErr := bridgeProv.Remove(bridgeH); rmErr != nil {
			log.Warn("failed to reverse bridge creation after container-network failure", "session_index", sessionIndex, "error", rmErr)
		}
		return nil, fmt.Errorf("cluster: creating container network for session %d: %w", sessionIndex, err)
	}

	return &Instance{
		DBID:          dbID,
		DisplayName:   displayName,
		SessionIndex:  sessionIndex,
		NetworkName:   plan.BridgeName,
		bridgeProv:    bridgeProv,
		bridgeH:       bridgeH,
		dockernetProv: dockernetProv,
		dockernetH:    dockernetH,
		log:           log,
	}, nil
}

// AddEnvironment appends env to the ordered member list.
func (c *Instance) AddEnvironment(env environment.Instance) {
	c.environments = append(c.environments, env)
}

// Environments returns the ordered member list.
func (c *Instance) Environments() []environment.Instance {
	return c.environments
}

// Start invokes Start on each environment in insertion order. A failure is
// surfaced immediately with the partial cluster left intact — the caller is
// responsible for calling Destroy to clean up.
func (c *Instance) Start(ctx context.Context) error {
	for _, env := range c.environments {
		if err := env.Start(ctx); err != nil {
			return fmt.Errorf("cluster: starting environment %q: %w", env.DisplayName(), err)
		}
	}
	return nil
}

// Restart forwards to every environment.
func (c *Instance) Restart(ctx context.Context) error {
	for _, env := range c.environments {
		if err := env.Restart(ctx); err != nil {
			return fmt.Errorf("cluster: restarting environment %q: %w", env.DisplayName(), err)
		}
	}
	return nil
}

// Status returns each member's status keyed by display name.
func (c *Instance) Status() map[string]envstatus.Status {
	out := make(map[string]envstatus.Status, len(c.environments))
	for _, env := range c.environments {
		out[env.DisplayName()] = env.Status()
	}
	return out
}

// IsReady is true iff every member is RUNNING.
func (c *Instance) IsReady() bool {
	for _, env := range c.environments {
		if env.Status() != envstatus.Running {
			return false
		}
	}
	return true
}

// AccessInfo returns each member's rendered access info keyed by display
// name.
func (c *Instance) AccessInfo() map[string]environment.AccessInfo {
	out := make(map[string]environment.AccessInfo, len(c.environments))
	for _, env := range c.environments {
		out[env.DisplayName()] = env.AccessInfo()
	}
	return out
}

// Resources sums member resource usage.
type Resources struct {
	Total        environment.Resources
	Environments map[string]environment.Resources
}

// Resources aggregates member resource usage. A member whose read returns an
// error is logged and left out of both Environments and Total (the drivers
// themselves already collapse most read failures to zeros).
func (c *Instance) Resources() Resources {
	out := Resources{Environments: make(map[string]environment.Resources, len(c.environments))}
	for _, env := range c.environments {
		res, err := env.Resources()
		if err != nil {
			c.log.Warn("failed to read environment resources", "environment", env.DisplayName(), "error", err)
			continue
		}
		out.Environments[env.DisplayName()] = res
		out.Total.Add(res)
	}
	return out
}

// PublishedPorts returns every port held by every member, for the caller to
// release back to the port pool.
func (c *Instance) PublishedPorts() []int {
	var ports []int
	for _, env := range c.environments {
		ports = append(ports, env.PublishedPorts()...)
	}
	return ports
}

// Destroy destroys each environment (best-effort: a per-member failure does
// not skip subsequent members), then removes the container-network, then
// the host bridge — network teardown always runs last.
func (c *Instance) Destroy(ctx context.Context) {
	for _, env := range c.environments {
		env.Destroy(ctx)
	}
	if err := c.dockernetProv.Remove(ctx, c.dockernetH); err != nil {
		c.log.Warn("failed to remove container network", "session_index", c.SessionIndex, "error", err)
	}
	if err := c.bridgeProv.Remove(c.bridgeH); err != nil {
		c.log.Warn("failed to remove bridge", "session_index", c.SessionIndex, "error", err)
	}
}
