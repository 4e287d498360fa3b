package environment

import (
	"context"
	"errors"
	"testing"

	"github.com/kestrelops/venvorch/internal/envstatus"
	"github.com/kestrelops/venvorch/internal/orcherrors"
)

type mockContainerOps struct {
	runID  string
	runErr error

	ip    string
	ipOK  bool
	ipErr error

	fallbackIP  string
	fallbackOK  bool
	fallbackErr error

	status    string
	statusErr error

	usage, cache, rx, tx uint64
	statsErr             error

	restartErr error
	removeErr  error

	removedID string
}

func (m *mockContainerOps) Run(ctx context.Context, image, name, networkID string, ports map[int]int, env map[string]string) (string, error) {
	return m.runID, m.runErr
}

func (m *mockContainerOps) IPOnNetwork(ctx context.Context, containerID, networkID string) (string, bool, error) {
	return m.ip, m.ipOK, m.ipErr
}

func (m *mockContainerOps) FirstNetworkIP(ctx context.Context, containerID string) (string, bool, error) {
	return m.fallbackIP, m.fallbackOK, m.fallbackErr
}

func (m *mockContainerOps) Status(ctx context.Context, containerID string) (string, error) {
	return m.status, m.statusErr
}

func (m *mockContainerOps) Stats(ctx context.Context, containerID string) (uint64, uint64, uint64, uint64, error) {
	return m.usage, m.cache, m.rx, m.tx, m.statsErr
}

func (m *mockContainerOps) Restart(ctx context.Context, containerID string) error {
	return m.restartErr
}

func (m *mockContainerOps) Remove(ctx context.Context, containerID string) error {
	m.removedID = containerID
	return m.removeErr
}

func (m *mockContainerOps) Classify(err error) orcherrors.DockerCauseKind {
	return orcherrors.DockerCauseAPIError
}

type stubImageChecker struct{ err error }

func (s stubImageChecker) Exists(image string) error { return s.err }

func newTestContainer(ops *mockContainerOps) *ContainerInstance {
	return NewContainerInstance(
		"7-web", "web", "echo:1",
		[]int{8080}, []int{31000},
		map[string]string{"K": "v"},
		"http://{{ip}}:{{8080}}",
		"venvbr7-docker",
		ops, stubImageChecker{}, nil,
	)
}

func TestContainerStartRecordsIP(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", ip: "10.0.0.5", ipOK: true}
	c := newTestContainer(ops)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.ip != "10.0.0.5" {
		t.Errorf("got ip %q", c.ip)
	}
}

func TestContainerStartFallsBackToFirstNetworkIP(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", ipOK: false, fallbackIP: "10.0.0.9", fallbackOK: true}
	c := newTestContainer(ops)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.ip != "10.0.0.9" {
		t.Errorf("got ip %q, want fallback ip", c.ip)
	}
}

func TestContainerStartFailsOnImagePreflight(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1"}
	c := NewContainerInstance(
		"7-web", "web", "missing:latest",
		[]int{8080}, []int{31000},
		map[string]string{"K": "v"},
		"http://{{ip}}:{{8080}}",
		"venvbr7-docker",
		ops, stubImageChecker{err: errors.New("not found")}, nil,
	)

	err := c.Start(context.Background())
	var de *orcherrors.DockerEnvError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DockerEnvError, got %T: %v", err, err)
	}
	if de.Kind != orcherrors.DockerCauseImageNotFound {
		t.Errorf("got kind %v, want DockerCauseImageNotFound", de.Kind)
	}
	if ops.runID == "" {
		t.Fatal("test setup error")
	}
	if c.containerID != "" {
		t.Errorf("container should not have been started after a failed preflight, got containerID %q", c.containerID)
	}
}

func TestContainerStartWrapsRuntimeError(t *testing.T) {
	ops := &mockContainerOps{runErr: errors.New("no such image")}
	c := newTestContainer(ops)

	err := c.Start(context.Background())
	var de *orcherrors.DockerEnvError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DockerEnvError, got %T: %v", err, err)
	}
}

func TestContainerRestartFailsIfNeverStarted(t *testing.T) {
	c := newTestContainer(&mockContainerOps{})
	if err := c.Restart(context.Background()); err == nil {
		t.Fatal("expected error restarting a never-started container")
	}
}

func TestContainerStatusUnknownBeforeStart(t *testing.T) {
	c := newTestContainer(&mockContainerOps{})
	if got := c.Status(); got != envstatus.Unknown {
		t.Errorf("got %v, want Unknown", got)
	}
}

func TestContainerStatusMapsRuntimeString(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", status: "running"}
	c := newTestContainer(ops)
	c.Start(context.Background())
	if got := c.Status(); got != envstatus.Running {
		t.Errorf("got %v, want Running", got)
	}
}

func TestContainerStatusUnrecognizedStringCollapsesToUnknown(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", status: "some-weird-state"}
	c := newTestContainer(ops)
	c.Start(context.Background())
	if got := c.Status(); got != envstatus.Unknown {
		t.Errorf("got %v, want Unknown", got)
	}
}

func TestContainerResourcesFloorsAtZero(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", usage: 100, cache: 500, rx: 10, tx: 20}
	c := newTestContainer(ops)
	c.Start(context.Background())

	res, err := c.Resources()
	if err != nil {
		t.Fatalf("Resources: %v", err)
	}
	if res.MemoryBytes != 0 {
		t.Errorf("got memory %d, want 0 (usage < cache)", res.MemoryBytes)
	}
	if res.NetworkRx != 10 || res.NetworkTx != 20 {
		t.Errorf("got rx/tx %d/%d", res.NetworkRx, res.NetworkTx)
	}
}

func TestContainerResourcesErrorYieldsZeros(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", statsErr: errors.New("stats unavailable")}
	c := newTestContainer(ops)
	c.Start(context.Background())

	res, err := c.Resources()
	if err != nil {
		t.Fatalf("Resources should not surface stats errors: %v", err)
	}
	if res != (Resources{}) {
		t.Errorf("got %+v, want zero value", res)
	}
}

func TestContainerDestroyNeverStartedIsNoop(t *testing.T) {
	ops := &mockContainerOps{}
	c := newTestContainer(ops)
	c.Destroy(context.Background())
	if ops.removedID != "" {
		t.Error("Remove should not be called for a never-started container")
	}
}

func TestContainerDestroyRemovesRuntimeContainer(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1"}
	c := newTestContainer(ops)
	c.Start(context.Background())
	c.Destroy(context.Background())
	if ops.removedID != "cid1" {
		t.Errorf("got removed id %q", ops.removedID)
	}
}

func TestContainerAccessInfoRendersTemplate(t *testing.T) {
	ops := &mockContainerOps{runID: "cid1", ip: "10.5.7.100", ipOK: true}
	c := newTestContainer(ops)
	c.Start(context.Background())

	info := c.AccessInfo()
	want := "http://10.5.7.100:31000"
	if info.Access != want {
		t.Errorf("got %q, want %q", info.Access, want)
	}
	if info.IP != "10.5.7.100" {
		t.Errorf("got ip %q", info.IP)
	}
}

func TestContainerAccessInfoUnknownIPBeforeStart(t *testing.T) {
	c := newTestContainer(&mockContainerOps{})
	if got := c.AccessInfo().IP; got != "unknown" {
		t.Errorf("got %q, want unknown", got)
	}
}
