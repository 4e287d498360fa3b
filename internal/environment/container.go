package environment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kestrelops/venvorch/internal/envstatus"
	"github.com/kestrelops/venvorch/internal/orcherrors"
)

// ContainerOps is the subset of container-runtime operations a
// ContainerInstance drives. Satisfied by an adapter over
// github.com/docker/docker/client in production, and by a hand-written mock
// in tests — no mocking framework, matching the teacher's test style.
type ContainerOps interface {
	// Run launches a detached container named name from image on
	// networkID, publishing ports (internal -> published), with env as
	// its environment variables. Returns the runtime container ID.
	Run(ctx context.Context, image, name, networkID string, ports map[int]int, env map[string]string) (string, error)
	// IPOnNetwork returns the container's IP on the given network, and
	// whether it has one.
	IPOnNetwork(ctx context.Context, containerID, networkID string) (string, bool, error)
	// FirstNetworkIP returns the container's IP on whichever of its
	// networks has one first, used when the primary network lookup
	// comes up empty.
	FirstNetworkIP(ctx context.Context, containerID string) (string, bool, error)
	// Status returns the runtime's raw textual status.
	Status(ctx context.Context, containerID string) (string, error)
	// Stats returns raw memory usage/cache and summed network RX/TX.
	Stats(ctx context.Context, containerID string) (usage, cache, rx, tx uint64, err error)
	Restart(ctx context.Context, containerID string) error
	Remove(ctx context.Context, containerID string) error
	// Classify maps a runtime error into a DockerCauseKind, so the
	// adapter owns the runtime-specific error inspection (e.g.
	// errdefs.IsNotFound) and this package stays runtime-agnostic.
	Classify(err error) orcherrors.DockerCauseKind
}

// ContainerInstance is the container-backed EnvironmentInstance variant.
type ContainerInstance struct {
	Name              string
	DisplayNameVal    string
	Image             string
	InternalPorts     []int
	PublishedPortsVal []int
	Variables         map[string]string
	AccessTemplate    string
	NetworkHandle     string

	ops     ContainerOps
	checker ImageChecker
	log     *slog.Logger

	containerID string
	ip          string
}

// NewContainerInstance constructs a ContainerInstance. ops drives the
// underlying container runtime; checker preflights the image reference
// before Start launches it. A nil checker defaults to RegistryImageChecker.
func NewContainerInstance(name, displayName, image string, internalPorts, publishedPorts []int, variables map[string]string, accessTemplate, networkHandle string, ops ContainerOps, checker ImageChecker, log *slog.Logger) *ContainerInstance {
	if log == nil {
		log = slog.Default()
	}
	if checker == nil {
		checker = RegistryImageChecker{}
	}
	return &ContainerInstance{
		Name:              name,
		DisplayNameVal:    displayName,
		Image:             image,
		InternalPorts:     internalPorts,
		PublishedPortsVal: publishedPorts,
		Variables:         variables,
		AccessTemplate:    accessTemplate,
		NetworkHandle:     networkHandle,
		ops:               ops,
		checker:           checker,
		log:               log,
	}
}

func (c *ContainerInstance) DisplayName() string   { return c.DisplayNameVal }
func (c *ContainerInstance) PublishedPorts() []int { return c.PublishedPortsVal }

// Start launches the container and records its IP on NetworkHandle,
// falling back to the first network reporting one.
func (c *ContainerInstance) Start(ctx context.Context) error {
	if err := c.checker.Exists(c.Image); err != nil {
		return orcherrors.NewDockerEnvError(orcherrors.DockerCauseImageNotFound, "image preflight", err)
	}

	ports := make(map[int]int, len(c.InternalPorts))
	for i, internal := range c.InternalPorts {
		ports[internal] = c.PublishedPortsVal[i]
	}

	id, err := c.ops.Run(ctx, c.Image, c.Name, c.NetworkHandle, ports, c.Variables)
	if err != nil {
		return orcherrors.NewDockerEnvError(c.ops.Classify(err), "start", err)
	}
	c.containerID = id

	ip, ok, err := c.ops.IPOnNetwork(ctx, id, c.NetworkHandle)
	if err != nil {
		return orcherrors.NewDockerEnvError(c.ops.Classify(err), "inspect ip", err)
	}
	if !ok {
		ip, ok, err = c.ops.FirstNetworkIP(ctx, id)
		if err != nil {
			return orcherrors.NewDockerEnvError(c.ops.Classify(err), "inspect fallback ip", err)
		}
	}
	if ok {
		c.ip = ip
	}
	c.log.Debug("container started", "name", c.Name, "container_id", id, "ip", c.ip)
	return nil
}

// Restart fails if the container was never started.
func (c *ContainerInstance) Restart(ctx context.Context) error {
	if c.containerID == "" {
		return orcherrors.NewRuntime(fmt.Sprintf("container %s was never started", c.Name), nil)
	}
	if err := c.ops.Restart(ctx, c.containerID); err != nil {
		return orcherrors.NewDockerEnvError(c.ops.Classify(err), "restart", err)
	}
	return nil
}

// Status maps the runtime's textual status into the closed Status enum;
// unrecognized strings collapse to Unknown via envstatus.Parse.
func (c *ContainerInstance) Status() envstatus.Status {
	if c.containerID == "" {
		return envstatus.Unknown
	}
	raw, err := c.ops.Status(context.Background(), c.containerID)
	if err != nil {
		return envstatus.Unknown
	}
	return envstatus.Parse(raw)
}

func (c *ContainerInstance) AccessInfo() AccessInfo {
	return AccessInfo{
		IP:     ipOrUnknown(c.ip),
		Access: renderAccess(c.AccessTemplate, c.ip, c.InternalPorts, c.PublishedPortsVal),
	}
}

// Resources computes memory_stats.usage - stats.cache (floored at 0) and
// summed RX/TX across networks. Any error yields zeros, per spec.
func (c *ContainerInstance) Resources() (Resources, error) {
	if c.containerID == "" {
		return Resources{}, nil
	}
	usage, cache, rx, tx, err := c.ops.Stats(context.Background(), c.containerID)
	if err != nil {
		return Resources{}, nil
	}
	mem := int64(usage) - int64(cache)
	if mem < 0 {
		mem = 0
	}
	return Resources{MemoryBytes: uint64(mem), NetworkRx: rx, NetworkTx: tx}, nil
}

// Destroy stops and removes the container. A never-started instance logs
// and returns without error.
func (c *ContainerInstance) Destroy(ctx context.Context) {
	if c.containerID == "" {
		c.log.Debug("destroy called on never-started container", "name", c.Name)
		return
	}
	if err := c.ops.Remove(ctx, c.containerID); err != nil {
		c.log.Warn("failed to remove container", "name", c.Name, "container_id", c.containerID, "error", err)
	}
}

func ipOrUnknown(ip string) string {
	if ip == "" {
		return "unknown"
	}
	return ip
}
