// Package service implements the orchestration core: it mediates every
// request against the session registry, the port pool, and the per-cluster
// environment drivers, and is the sole fatal-error-and-compensate boundary
// in the system.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kestrelops/venvorch/internal/bridge"
	"github.com/kestrelops/venvorch/internal/cluster"
	"github.com/kestrelops/venvorch/internal/definitions"
	"github.com/kestrelops/venvorch/internal/dockernet"
	"github.com/kestrelops/venvorch/internal/environment"
	"github.com/kestrelops/venvorch/internal/envstatus"
	"github.com/kestrelops/venvorch/internal/hostprobe"
	"github.com/kestrelops/venvorch/internal/orcherrors"
	"github.com/kestrelops/venvorch/internal/overlay"
	"github.com/kestrelops/venvorch/internal/portpool"
	"github.com/kestrelops/venvorch/internal/registry"
	"golang.org/x/sync/errgroup"
)

// TTLPolicy is the subset of configuration the service needs for session
// TTL lifecycle, kept narrow so tests don't have to build a full
// internal/config.Config.
type TTLPolicy struct {
	Default          time.Duration
	AllowExtendAfter time.Duration
	Extend           time.Duration
	SweepInterval    time.Duration
}

// VMPaths locates the directory the VM driver builds overlay paths under;
// template XML and base image names come from the cluster definition
// itself.
type VMPaths struct {
	OverlaysPath string
	BootPoll     time.Duration
	BootTimeout  time.Duration
}

// Deps bundles every external collaborator the service wires into running
// clusters. All fields are required except Neighbor, Forward and
// ImageChecker, which default to their production implementations, and Log,
// which defaults to slog.Default.
type Deps struct {
	Store         definitions.Store
	Registry      *registry.Registry
	Ports         *portpool.Pool
	BridgeProv    *bridge.Provisioner
	DockernetProv *dockernet.Provisioner
	ContainerOps  environment.ContainerOps
	ImageChecker  environment.ImageChecker
	Hypervisor    environment.Hypervisor
	OverlayMgr    *overlay.Manager
	HostProbe     hostprobe.Probe
	Neighbor      environment.NeighborLookup
	Forward       environment.ForwardFunc
	TTL           TTLPolicy
	VM            VMPaths
	Log           *slog.Logger
}

// Service is the orchestration core.
type Service struct {
	deps Deps
	log  *slog.Logger

	sweeperStop chan struct{}
	sweeperDone chan struct{}
}

// New builds the service and starts its TTL sweeper, which runs for the
// lifetime of the process until Close is called.
func New(deps Deps) *Service {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	s := &Service{
		deps:        deps,
		log:         deps.Log,
		sweeperStop: make(chan struct{}),
		sweeperDone: make(chan struct{}),
	}
	go s.runSweeper()
	return s
}

// Close stops the TTL sweeper and waits for it to exit.
func (s *Service) Close() {
	close(s.sweeperStop)
	<-s.sweeperDone
}

// RunResult is the success payload of Run.
type RunResult struct {
	Status     string
	AccessInfo map[string]environment.AccessInfo
}

// Run validates the request, loads the cluster definition, builds and
// starts a cluster, registers it, and returns its access info. Any failure
// from step 3 onward releases already-allocated ports and destroys any
// partially built cluster before returning.
func (s *Service) Run(ctx context.Context, clusterDBID string, variables map[string]string, sessionID string) (RunResult, error) {
	sessionIndex, err := validateSessionID(sessionID)
	if err != nil {
		return RunResult{}, err
	}

	def, err := s.deps.Store.GetCluster(ctx, clusterDBID)
	if err != nil {
		return RunResult{}, err
	}

	c, err := cluster.New(ctx, def.ID, def.Name, sessionIndex, s.deps.BridgeProv, s.deps.DockernetProv, s.log)
	if err != nil {
		return RunResult{}, err
	}

	var allocated []int
	destroyPartial := func() {
		s.deps.Ports.ReleaseMany(allocated)
		c.Destroy(ctx)
	}

	for _, envDef := range def.Environments {
		ports, err := s.deps.Ports.AllocateMany(len(envDef.InternalPorts))
		if err != nil {
			destroyPartial()
			return RunResult{}, &orcherrors.NoAvailablePortsError{Message: fmt.Sprintf("allocating ports for %s: %v", envDef.ID, err)}
		}
		allocated = append(allocated, ports...)

		inst, err := s.buildEnvironment(ctx, envDef, ports, c.NetworkName, variables)
		if err != nil {
			destroyPartial()
			return RunResult{}, err
		}
		c.AddEnvironment(inst)
	}

	s.deps.Registry.Set(sessionID, c, s.deps.TTL.Default)

	if err := c.Start(ctx); err != nil {
		s.deps.Registry.Pop(sessionID)
		destroyPartial()
		return RunResult{}, err
	}

	return RunResult{Status: "started", AccessInfo: c.AccessInfo()}, nil
}

func (s *Service) buildEnvironment(ctx context.Context, def definitions.EnvironmentDef, ports []int, networkName string, variables map[string]string) (environment.Instance, error) {
	switch def.Kind {
	case "container":
		return environment.NewContainerInstance(def.ID, def.Name, def.Image, def.InternalPorts, ports, variables, def.AccessInfo, networkName, s.deps.ContainerOps, s.deps.ImageChecker, s.log), nil
	case "vm":
		overlayPath := filepath.Join(s.deps.VM.OverlaysPath, def.ID+".qcow2")
		return environment.NewVMInstance(
			ctx,
			def.ID, def.Name, def.TemplateXML, overlayPath, def.BaseImagePath,
			def.InternalPorts, ports,
			def.AccessInfo, networkName,
			s.deps.Hypervisor, s.deps.OverlayMgr, s.deps.Neighbor, s.deps.Forward,
			s.deps.VM.BootPoll, s.deps.VM.BootTimeout,
			s.log,
		)
	default:
		return nil, orcherrors.NewRuntime(fmt.Sprintf("unrecognized environment kind %q", def.Kind), nil)
	}
}

// StatusResult is the success payload of Status.
type StatusResult struct {
	ClusterID        string
	TTLRemainingSecs int64
	Statuses         map[string]envstatus.Status
}

// Status reports the live cluster's per-member status and remaining TTL.
func (s *Service) Status(sessionID string) (StatusResult, error) {
	if _, err := validateSessionID(sessionID); err != nil {
		return StatusResult{}, err
	}
	entry, ok := s.deps.Registry.GetEntry(sessionID)
	if !ok {
		return StatusResult{}, orcherrors.NewNotFound("no running session %q", sessionID)
	}
	remaining := time.Until(entry.ExpiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return StatusResult{
		ClusterID:        entry.Cluster.DBID,
		TTLRemainingSecs: int64(remaining.Seconds()),
		Statuses:         entry.Cluster.Status(),
	}, nil
}

// AccessInfo returns the live cluster's rendered access info.
func (s *Service) AccessInfo(sessionID string) (map[string]environment.AccessInfo, error) {
	if _, err := validateSessionID(sessionID); err != nil {
		return nil, err
	}
	c, ok := s.deps.Registry.Get(sessionID)
	if !ok {
		return nil, orcherrors.NewNotFound("no running session %q", sessionID)
	}
	return c.AccessInfo(), nil
}

// Restart restarts every environment in the session's cluster. The status
// name "stopped" is retained for backward compatibility though the
// operation actually restarts the cluster in place.
func (s *Service) Restart(ctx context.Context, sessionID string) (string, error) {
	if _, err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	c, ok := s.deps.Registry.Get(sessionID)
	if !ok {
		return "", orcherrors.NewNotFound("no running session %q", sessionID)
	}
	if err := c.Restart(ctx); err != nil {
		return "", err
	}
	return "stopped", nil
}

// Stop pops the session, releases its ports, and destroys its cluster.
func (s *Service) Stop(ctx context.Context, sessionID string) (string, error) {
	if _, err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	entry, ok := s.deps.Registry.Pop(sessionID)
	if !ok {
		return "", orcherrors.NewNotFound("no running session %q", sessionID)
	}
	s.deps.Ports.ReleaseMany(entry.Cluster.PublishedPorts())
	entry.Cluster.Destroy(ctx)
	return "stopped", nil
}

// ExtendTTLResult is the success payload of ExtendTTL.
type ExtendTTLResult struct {
	Status           string
	TTLRemainingSecs int64
}

// ExtendTTL extends a live session's TTL by TTL.Extend, gated by
// TTL.AllowExtendAfter (a zero policy value disables the gate).
func (s *Service) ExtendTTL(sessionID string) (ExtendTTLResult, error) {
	if _, err := validateSessionID(sessionID); err != nil {
		return ExtendTTLResult{}, err
	}
	entry, ok := s.deps.Registry.GetEntry(sessionID)
	if !ok {
		return ExtendTTLResult{}, orcherrors.NewNotFound("no running session %q", sessionID)
	}

	if s.deps.TTL.AllowExtendAfter > 0 {
		age := time.Since(entry.CreatedAt)
		if age < s.deps.TTL.AllowExtendAfter {
			wait := s.deps.TTL.AllowExtendAfter - age
			return ExtendTTLResult{}, orcherrors.NewValidation("extend_ttl not yet allowed: wait %s", wait.Round(time.Second))
		}
	}

	s.deps.Registry.Extend(sessionID, s.deps.TTL.Extend)

	updated, _ := s.deps.Registry.GetEntry(sessionID)
	remaining := time.Until(updated.ExpiresAt)
	if remaining < 0 {
		remaining = 0
	}
	return ExtendTTLResult{Status: "extended", TTLRemainingSecs: int64(remaining.Seconds())}, nil
}

// RunningCluster is one entry of RunningClusters.
type RunningCluster struct {
	SessionID   string
	ClusterName string
	ClusterID   string
}

// RunningClusters lists every live session whose cluster definition still
// exists.
func (s *Service) RunningClusters(ctx context.Context) []RunningCluster {
	items := s.deps.Registry.Items()
	out := make([]RunningCluster, 0, len(items))
	for sessionID, entry := range items {
		if _, err := s.deps.Store.GetCluster(ctx, entry.Cluster.DBID); err != nil {
			continue
		}
		out = append(out, RunningCluster{
			SessionID:   sessionID,
			ClusterName: entry.Cluster.DisplayName,
			ClusterID:   entry.Cluster.DBID,
		})
	}
	return out
}

// Catalog is the read-only environment catalog: container image tags and
// VM base images already registered in the definitions store, for an
// operator browsing what a seed file could reference without the
// excluded authoring UI.
type Catalog struct {
	DockerImageTags []string
	VMImages        []string
}

// Catalog reads the environment catalog from the definitions store.
func (s *Service) Catalog(ctx context.Context) (Catalog, error) {
	tags, err := s.deps.Store.ListDockerImageTags(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("service: listing docker image tags: %w", err)
	}
	images, err := s.deps.Store.ListVMImages(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("service: listing vm images: %w", err)
	}
	return Catalog{DockerImageTags: tags, VMImages: images}, nil
}

// ResourceTotals is the host-equivalent resource shape used for the host and
// overall summaries; per-cluster entries use environment.Resources.
type ResourceTotals struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryTotal   uint64
	NetworkRx     uint64
	NetworkTx     uint64
}

// ClusterResources is one cluster's entry in a ResourcesSummaryResult.
type ClusterResources struct {
	SessionID string
	Resources environment.Resources
}

// ResourcesSummaryResult is the success payload of ResourcesSummary.
type ResourcesSummaryResult struct {
	Host     ResourceTotals
	Overall  ResourceTotals
	Clusters []ClusterResources
}

// ResourcesSummary reads the host probe and every live cluster's resource
// usage concurrently, summing per-cluster totals into Overall. Every live
// cluster gets an entry; a failed read of one of its members is logged by
// the cluster and that member is left out of its total. A failed host probe
// read is logged and leaves Host zeroed. The summary itself never fails.
func (s *Service) ResourcesSummary(ctx context.Context) (ResourcesSummaryResult, error) {
	items := s.deps.Registry.Items()
	clusterResults := make([]ClusterResources, len(items))

	sessionIDs := make([]string, 0, len(items))
	for sessionID := range items {
		sessionIDs = append(sessionIDs, sessionID)
	}

	var hostSnap hostprobe.Snapshot
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.deps.HostProbe.Read()
		if err != nil {
			s.log.Warn("failed to read host resource probe", "error", err)
			return nil
		}
		hostSnap = snap
		return nil
	})
	for i, sessionID := range sessionIDs {
		i, sessionID := i, sessionID
		entry := items[sessionID]
		g.Go(func() error {
			res := entry.Cluster.Resources()
			clusterResults[i] = ClusterResources{SessionID: sessionID, Resources: res.Total}
			return nil
		})
	}
	_ = g.Wait()

	var overall environment.Resources
	for _, cr := range clusterResults {
		overall.Add(cr.Resources)
	}

	return ResourcesSummaryResult{
		Host: ResourceTotals{
			CPUPercent:    hostSnap.CPUPercent,
			MemoryPercent: hostSnap.MemoryPercent,
			MemoryTotal:   hostSnap.MemoryTotal,
			NetworkRx:     hostSnap.NetworkRx,
			NetworkTx:     hostSnap.NetworkTx,
		},
		Overall: ResourceTotals{
			MemoryTotal: overall.MemoryBytes,
			NetworkRx:   overall.NetworkRx,
			NetworkTx:   overall.NetworkTx,
		},
		Clusters: clusterResults,
	}, nil
}

func (s *Service) runSweeper() {
	defer close(s.sweeperDone)
	interval := s.deps.TTL.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweeperStop:
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Service) sweepOnce() {
	for _, sessionID := range s.deps.Registry.ExpiredSessions() {
		if _, err := s.Stop(context.Background(), sessionID); err != nil {
			if _, ok := err.(*orcherrors.NotFoundError); ok {
				continue
			}
			s.log.Warn("ttl sweeper failed to stop expired session", "session_id", sessionID, "error", err)
		}
	}
}

func validateSessionID(sessionID string) (int, error) {
	if sessionID == "" {
		return 0, orcherrors.NewValidation("session_id must not be empty")
	}
	idx, err := strconv.Atoi(sessionID)
	if err != nil {
		return 0, orcherrors.NewValidation("session_id must be numeric, got %q", sessionID)
	}
	return idx, nil
}
