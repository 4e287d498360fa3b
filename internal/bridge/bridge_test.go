package bridge

import (
	"errors"
	"strings"
	"testing"
)

type mockHandle struct {
	createErr    error
	autostartErr error
	destroyErr   error
	undefineErr  error
	created      bool
	destroyed    bool
	undefined    bool
}

func (h *mockHandle) Create() error {
	h.created = true
	return h.createErr
}

func (h *mockHandle) SetAutostart(bool) error { return h.autostartErr }

func (h *mockHandle) Destroy() error {
	h.destroyed = true
	return h.destroyErr
}

func (h *mockHandle) Undefine() error {
	h.undefined = true
	return h.undefineErr
}

type mockHypervisor struct {
	xml       string
	handle    *mockHandle
	defineErr error
}

func (hv *mockHypervisor) NetworkDefineXML(xml string) (Handle, error) {
	hv.xml = xml
	if hv.defineErr != nil {
		return nil, hv.defineErr
	}
	return hv.handle, nil
}

func TestRenderXMLContainsNetplanValues(t *testing.T) {
	xml, err := renderXML(257)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"venvbr257", "10.1.1.1", "10.1.1.100", "10.1.1.200"} {
		if !strings.Contains(xml, want) {
			t.Errorf("rendered XML missing %q:\n%s", want, xml)
		}
	}
}

func TestCreateDefinesStartsAndAutostarts(t *testing.T) {
	h := &mockHandle{}
	hv := &mockHypervisor{handle: h}
	p := NewProvisioner(hv, nil)

	got, err := p.Create(3)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got != h {
		t.Fatal("expected Create to return the defined handle")
	}
	if !h.created {
		t.Error("expected network.Create to be called")
	}
	if !strings.Contains(hv.xml, "venvbr3") {
		t.Errorf("defined XML missing bridge name: %s", hv.xml)
	}
}

func TestCreatePropagatesDefineError(t *testing.T) {
	hv := &mockHypervisor{defineErr: errors.New("libvirt down")}
	p := NewProvisioner(hv, nil)
	if _, err := p.Create(0); err == nil {
		t.Fatal("expected error")
	}
}

func TestCreatePropagatesStartError(t *testing.T) {
	h := &mockHandle{createErr: errors.New("boom")}
	hv := &mockHypervisor{handle: h}
	p := NewProvisioner(hv, nil)
	if _, err := p.Create(0); err == nil {
		t.Fatal("expected error when network fails to start")
	}
}

func TestRemoveDestroysAndUndefines(t *testing.T) {
	h := &mockHandle{}
	p := NewProvisioner(&mockHypervisor{}, nil)
	if err := p.Remove(h); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !h.destroyed || !h.undefined {
		t.Error("expected both Destroy and Undefine to be called")
	}
}

func TestRemoveToleratesUndefineFailureAfterDestroy(t *testing.T) {
	h := &mockHandle{undefineErr: errors.New("already gone")}
	p := NewProvisioner(&mockHypervisor{}, nil)
	if err := p.Remove(h); err != nil {
		t.Fatalf("Remove should not surface an undefine-only failure: %v", err)
	}
}

func TestRemoveNilHandleIsNoop(t *testing.T) {
	p := NewProvisioner(&mockHypervisor{}, nil)
	if err := p.Remove(nil); err != nil {
		t.Fatalf("Remove(nil): %v", err)
	}
}
