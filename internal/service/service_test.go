package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kestrelops/venvorch/internal/bridge"
	"github.com/kestrelops/venvorch/internal/definitions"
	"github.com/kestrelops/venvorch/internal/dockernet"
	"github.com/kestrelops/venvorch/internal/envstatus"
	"github.com/kestrelops/venvorch/internal/hostprobe"
	"github.com/kestrelops/venvorch/internal/orcherrors"
	"github.com/kestrelops/venvorch/internal/overlay"
	"github.com/kestrelops/venvorch/internal/portpool"
	"github.com/kestrelops/venvorch/internal/registry"
)

// mockContainerOps is a minimal stand-in satisfying environment.ContainerOps.
type mockContainerOps struct{ runErr error }

func (m *mockContainerOps) Run(ctx context.Context, image, name, networkID string, ports map[int]int, env map[string]string) (string, error) {
	if m.runErr != nil {
		return "", m.runErr
	}
	return "container-" + name, nil
}
func (m *mockContainerOps) IPOnNetwork(ctx context.Context, containerID, networkID string) (string, bool, error) {
	return "10.0.0.2", true, nil
}
func (m *mockContainerOps) FirstNetworkIP(ctx context.Context, containerID string) (string, bool, error) {
	return "10.0.0.2", true, nil
}
func (m *mockContainerOps) Status(ctx context.Context, containerID string) (string, error) {
	return "running", nil
}
func (m *mockContainerOps) Stats(ctx context.Context, containerID string) (uint64, uint64, uint64, uint64, error) {
	return 0, 0, 0, 0, nil
}
func (m *mockContainerOps) Restart(ctx context.Context, containerID string) error { return nil }
func (m *mockContainerOps) Remove(ctx context.Context, containerID string) error  { return nil }
func (m *mockContainerOps) Classify(err error) orcherrors.DockerCauseKind {
	return orcherrors.DockerCauseUnknown
}

type mockBridgeHandle struct{}

func (h *mockBridgeHandle) Create() error           { return nil }
func (h *mockBridgeHandle) SetAutostart(bool) error { return nil }
func (h *mockBridgeHandle) Destroy() error          { return nil }
func (h *mockBridgeHandle) Undefine() error         { return nil }

type mockHypervisorNet struct{}

func (hv *mockHypervisorNet) NetworkDefineXML(xmlStr string) (bridge.Handle, error) {
	return &mockBridgeHandle{}, nil
}

type mockDockerNetwork struct{}

func (m *mockDockerNetwork) NetworkCreate(ctx context.Context, name string, opts dockernet.NetworkCreateOptions) (dockernet.NetworkCreateResponse, error) {
	return dockernet.NetworkCreateResponse{ID: "net-" + name}, nil
}
func (m *mockDockerNetwork) NetworkInspect(ctx context.Context, name string) (dockernet.NetworkInspectResponse, error) {
	return dockernet.NetworkInspectResponse{}, errors.New("not found")
}
func (m *mockDockerNetwork) NetworkRemove(ctx context.Context, id string) error { return nil }

type mockHostProbe struct{}

func (mockHostProbe) Read() (hostprobe.Snapshot, error) {
	return hostprobe.Snapshot{CPUPercent: 1, MemoryPercent: 2, MemoryTotal: 3}, nil
}

type stubImageChecker struct{}

func (stubImageChecker) Exists(image string) error { return nil }

func newTestService(t *testing.T, store definitions.Store) *Service {
	t.Helper()
	svc := New(Deps{
		Store:         store,
		Registry:      registry.New(),
		Ports:         portpool.New(20000, 20010),
		BridgeProv:    bridge.NewProvisioner(&mockHypervisorNet{}, nil),
		DockernetProv: dockernet.NewProvisioner(&mockDockerNetwork{}, nil),
		ContainerOps:  &mockContainerOps{},
		ImageChecker:  stubImageChecker{},
		HostProbe:     mockHostProbe{},
		OverlayMgr:    overlay.NewManager(nil),
		TTL: TTLPolicy{
			Default:       time.Hour,
			SweepInterval: time.Hour,
		},
	})
	t.Cleanup(svc.Close)
	return svc
}

func oneContainerClusterDef(id string) *definitions.ClusterDef {
	return &definitions.ClusterDef{
		ID:   id,
		Name: "demo",
		Environments: []definitions.EnvironmentDef{
			{
				ID:            "web",
				Name:          "web",
				Kind:          "container",
				InternalPorts: []int{80},
				AccessInfo:    "http://{{ip}}:{{80}}",
				Image:         "nginx:latest",
			},
		},
	}
}

func TestRunStartsClusterAndReturnsAccessInfo(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := newTestService(t, store)

	result, err := svc.Run(context.Background(), "c1", nil, "5")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Status != "started" {
		t.Errorf("got status %q", result.Status)
	}
	if _, ok := result.AccessInfo["web"]; !ok {
		t.Errorf("expected access info for %q, got %+v", "web", result.AccessInfo)
	}
}

func TestRunRejectsEmptySessionID(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := newTestService(t, store)

	if _, err := svc.Run(context.Background(), "c1", nil, ""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunRejectsUnknownCluster(t *testing.T) {
	store := definitions.NewMemoryStore()
	svc := newTestService(t, store)

	_, err := svc.Run(context.Background(), "missing", nil, "1")
	if !errors.As(err, new(*orcherrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRunReleasesPortsOnLaterEnvironmentFailure(t *testing.T) {
	def := oneContainerClusterDef("c1")
	def.Environments = append(def.Environments, definitions.EnvironmentDef{
		ID:            "broken",
		Name:          "broken",
		Kind:          "unknown-kind",
		InternalPorts: []int{22},
	})
	store := definitions.NewMemoryStore(*def)
	svc := newTestService(t, store)

	before := svc.deps.Ports

	_, err := svc.Run(context.Background(), "c1", nil, "1")
	if err == nil {
		t.Fatal("expected error for unrecognized environment kind")
	}

	ports, allocErr := before.AllocateMany(10)
	if allocErr != nil {
		t.Fatalf("expected all ports released back, got: %v", allocErr)
	}
	before.ReleaseMany(ports)
}

func TestStatusAndStopLifecycle(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := newTestService(t, store)

	if _, err := svc.Run(context.Background(), "c1", nil, "2"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	status, err := svc.Status("2")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.ClusterID != "c1" {
		t.Errorf("got cluster id %q", status.ClusterID)
	}
	if status.Statuses["web"] != envstatus.Running {
		t.Errorf("got status %v", status.Statuses["web"])
	}

	if _, err := svc.Stop(context.Background(), "2"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := svc.Status("2"); !errors.As(err, new(*orcherrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError after stop, got %v", err)
	}
}

func TestStopUnknownSessionIsNotFound(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := newTestService(t, store)

	if _, err := svc.Stop(context.Background(), "999"); !errors.As(err, new(*orcherrors.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestExtendTTLGatedByAllowExtendAfter(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := New(Deps{
		Store:         store,
		Registry:      registry.New(),
		Ports:         portpool.New(20000, 20010),
		BridgeProv:    bridge.NewProvisioner(&mockHypervisorNet{}, nil),
		DockernetProv: dockernet.NewProvisioner(&mockDockerNetwork{}, nil),
		ContainerOps:  &mockContainerOps{},
		ImageChecker:  stubImageChecker{},
		HostProbe:     mockHostProbe{},
		OverlayMgr:    overlay.NewManager(nil),
		TTL: TTLPolicy{
			Default:          time.Hour,
			SweepInterval:    time.Hour,
			AllowExtendAfter: time.Hour,
			Extend:           time.Hour,
		},
	})
	t.Cleanup(svc.Close)

	if _, err := svc.Run(context.Background(), "c1", nil, "3"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := svc.ExtendTTL("3"); !errors.As(err, new(*orcherrors.ValidationError)) {
		t.Fatalf("expected ValidationError before AllowExtendAfter elapses, got %v", err)
	}
}

func TestRunningClustersOmitsEntriesWithMissingDefinition(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := newTestService(t, store)

	if _, err := svc.Run(context.Background(), "c1", nil, "4"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	running := svc.RunningClusters(context.Background())
	if len(running) != 1 || running[0].SessionID != "4" {
		t.Fatalf("got %+v", running)
	}
}

func TestResourcesSummaryReportsHostAndLiveClusters(t *testing.T) {
	store := definitions.NewMemoryStore(*oneContainerClusterDef("c1"))
	svc := newTestService(t, store)

	if _, err := svc.Run(context.Background(), "c1", nil, "7"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary, err := svc.ResourcesSummary(context.Background())
	if err != nil {
		t.Fatalf("ResourcesSummary: %v", err)
	}
	if summary.Host.CPUPercent != 1 {
		t.Errorf("got host cpu percent %v", summary.Host.CPUPercent)
	}
	if len(summary.Clusters) != 1 {
		t.Fatalf("got %+v", summary.Clusters)
	}
}
