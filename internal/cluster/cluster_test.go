package cluster

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelops/venvorch/internal/bridge"
	"github.com/kestrelops/venvorch/internal/dockernet"
	"github.com/kestrelops/venvorch/internal/environment"
	"github.com/kestrelops/venvorch/internal/envstatus"
)

type mockEnv struct {
	name        string
	status      envstatus.Status
	startErr    error
	restartErr  error
	ports       []int
	started     bool
	destroyed   bool
	resourceVal environment.Resources
	resourceErr error
}

func (m *mockEnv) DisplayName() string { return m.name }
func (m *mockEnv) Start(ctx context.Context) error {
	m.started = true
	return m.startErr
}
func (m *mockEnv) Restart(ctx context.Context) error         { return m.restartErr }
func (m *mockEnv) Status() envstatus.Status                  { return m.status }
func (m *mockEnv) AccessInfo() environment.AccessInfo        { return environment.AccessInfo{IP: "10.0.0.1"} }
func (m *mockEnv) Resources() (environment.Resources, error) { return m.resourceVal, m.resourceErr }
func (m *mockEnv) Destroy(ctx context.Context)               { m.destroyed = true }
func (m *mockEnv) PublishedPorts() []int                     { return m.ports }

type mockNetHandle struct{ destroyed, undefined bool }

func (h *mockNetHandle) Create() error           { return nil }
func (h *mockNetHandle) SetAutostart(bool) error { return nil }
func (h *mockNetHandle) Destroy() error          { h.destroyed = true; return nil }
func (h *mockNetHandle) Undefine() error         { h.undefined = true; return nil }

type mockHypervisor struct {
	handle    *mockNetHandle
	defineErr error
}

func (m *mockHypervisor) NetworkDefineXML(xml string) (bridge.Handle, error) {
	if m.defineErr != nil {
		return nil, m.defineErr
	}
	return m.handle, nil
}

type mockDockerNetwork struct {
	createErr error
	removed   bool
}

func (m *mockDockerNetwork) NetworkCreate(ctx context.Context, name string, opts dockernet.NetworkCreateOptions) (dockernet.NetworkCreateResponse, error) {
	return dockernet.NetworkCreateResponse{ID: "net1"}, m.createErr
}
func (m *mockDockerNetwork) NetworkInspect(ctx context.Context, name string) (dockernet.NetworkInspectResponse, error) {
	return dockernet.NetworkInspectResponse{}, errors.New("not found")
}
func (m *mockDockerNetwork) NetworkRemove(ctx context.Context, id string) error {
	m.removed = true
	return nil
}

func newTestCluster(t *testing.T, hv *mockHypervisor, docker *mockDockerNetwork) *Instance {
	t.Helper()
	bp := bridge.NewProvisioner(hv, nil)
	dp := dockernet.NewProvisioner(docker, nil)
	c, err := New(context.Background(), "db1", "demo", 7, bp, dp, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewCreatesBridgeAndContainerNetwork(t *testing.T) {
	hv := &mockHypervisor{handle: &mockNetHandle{}}
	docker := &mockDockerNetwork{}
	c := newTestCluster(t, hv, docker)
	if c.NetworkName != "venvbr7" {
		t.Errorf("got network name %q", c.NetworkName)
	}
}

func TestNewReversesBridgeOnContainerNetworkFailure(t *testing.T) {
	hv := &mockHypervisor{handle: &mockNetHandle{}}
	docker := &mockDockerNetwork{createErr: errors.New("docker down")}
	bp := bridge.NewProvisioner(hv, nil)
	dp := dockernet.NewProvisioner(docker, nil)

	_, err := New(context.Background(), "db1", "demo", 7, bp, dp, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !hv.handle.destroyed || !hv.handle.undefined {
		t.Error("expected bridge to be reversed after container-network failure")
	}
}

func TestStartInvokesEachEnvironmentInOrder(t *testing.T) {
	c := newTestCluster(t, &mockHypervisor{handle: &mockNetHandle{}}, &mockDockerNetwork{})
	e1 := &mockEnv{name: "web"}
	e2 := &mockEnv{name: "db"}
	c.AddEnvironment(e1)
	c.AddEnvironment(e2)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e1.started || !e2.started {
		t.Error("expected both environments to be started")
	}
}

func TestStartSurfacesErrorLeavingPartialClusterIntact(t *testing.T) {
	c := newTestCluster(t, &mockHypervisor{handle: &mockNetHandle{}}, &mockDockerNetwork{})
	e1 := &mockEnv{name: "web"}
	e2 := &mockEnv{name: "db", startErr: errors.New("boom")}
	c.AddEnvironment(e1)
	c.AddEnvironment(e2)

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(c.Environments()) != 2 {
		t.Error("expected partial cluster to remain intact for cleanup")
	}
}

func TestIsReadyRequiresAllRunning(t *testing.T) {
	c := newTestCluster(t, &mockHypervisor{handle: &mockNetHandle{}}, &mockDockerNetwork{})
	c.AddEnvironment(&mockEnv{name: "web", status: envstatus.Running})
	c.AddEnvironment(&mockEnv{name: "db", status: envstatus.Booting})
	if c.IsReady() {
		t.Error("expected IsReady to be false while one member is still booting")
	}
	c.environments[1].(*mockEnv).status = envstatus.Running
	if !c.IsReady() {
		t.Error("expected IsReady to be true once all members are running")
	}
}

func TestPublishedPortsGathersFromAllMembers(t *testing.T) {
	c := newTestCluster(t, &mockHypervisor{handle: &mockNetHandle{}}, &mockDockerNetwork{})
	c.AddEnvironment(&mockEnv{name: "web", ports: []int{31000, 31001}})
	c.AddEnvironment(&mockEnv{name: "db", ports: []int{31002}})

	ports := c.PublishedPorts()
	if len(ports) != 3 {
		t.Fatalf("got %d ports, want 3", len(ports))
	}
}

func TestDestroyDestroysAllMembersThenNetworkThenBridge(t *testing.T) {
	hv := &mockHypervisor{handle: &mockNetHandle{}}
	docker := &mockDockerNetwork{}
	c := newTestCluster(t, hv, docker)
	e1 := &mockEnv{name: "web"}
	e2 := &mockEnv{name: "db"}
	c.AddEnvironment(e1)
	c.AddEnvironment(e2)

	c.Destroy(context.Background())

	if !e1.destroyed || !e2.destroyed {
		t.Error("expected all members to be destroyed")
	}
	if !docker.removed {
		t.Error("expected container network to be removed")
	}
	if !hv.handle.destroyed || !hv.handle.undefined {
		t.Error("expected bridge to be removed")
	}
}

func TestResourcesSumsMembers(t *testing.T) {
	c := newTestCluster(t, &mockHypervisor{handle: &mockNetHandle{}}, &mockDockerNetwork{})
	c.AddEnvironment(&mockEnv{name: "web", resourceVal: environment.Resources{MemoryBytes: 100, NetworkRx: 10, NetworkTx: 20}})
	c.AddEnvironment(&mockEnv{name: "db", resourceVal: environment.Resources{MemoryBytes: 200, NetworkRx: 5, NetworkTx: 5}})

	res := c.Resources()
	if res.Total.MemoryBytes != 300 || res.Total.NetworkRx != 15 || res.Total.NetworkTx != 25 {
		t.Errorf("got %+v", res.Total)
	}
	if len(res.Environments) != 2 {
		t.Errorf("got %d per-env entries, want 2", len(res.Environments))
	}
}
