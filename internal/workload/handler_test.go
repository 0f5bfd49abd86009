package workload

import (
	"errors"
	"testing"

	"sunbeam/internal/core"
)

// fakeSupervisor records every push, layer and service operation.
type fakeSupervisor struct {
	reachable bool
	pushed    map[string][]byte
	pushCount int
	dirs      []string
	layers    map[string]core.ServiceLayer
	running   map[string]bool
	execs     [][]string
	execErr   error
}

func newFakeSupervisor(reachable bool) *fakeSupervisor {
	return &fakeSupervisor{
		reachable: reachable,
		pushed:    make(map[string][]byte),
		layers:    make(map[string]core.ServiceLayer),
		running:   make(map[string]bool),
	}
}

func (f *fakeSupervisor) EndpointReachable() bool { return f.reachable }

func (f *fakeSupervisor) PushFile(path string, data []byte, user, group string) error {
	f.pushed[path] = data
	f.pushCount++
	return nil
}

func (f *fakeSupervisor) MakeDir(path, user, group string) error {
	f.dirs = append(f.dirs, path)
	return nil
}

func (f *fakeSupervisor) SubmitLayer(label string, layer core.ServiceLayer) error {
	f.layers[label] = layer
	return nil
}

func (f *fakeSupervisor) StartService(name string) error {
	f.running[name] = true
	return nil
}

func (f *fakeSupervisor) StopService(name string) error {
	delete(f.running, name)
	return nil
}

func (f *fakeSupervisor) Exec(cmd []string) (string, error) {
	f.execs = append(f.execs, cmd)
	return "", f.execErr
}

func (f *fakeSupervisor) ServiceRunning(name string) bool { return f.running[name] }

// echoRenderer renders the template name itself, so tests can tell which
// template produced a pushed file.
type echoRenderer struct{}

func (echoRenderer) Render(templateName string, ctx core.RenderContext) ([]byte, error) {
	return []byte(templateName), nil
}

type failingRenderer struct{}

func (failingRenderer) Render(string, core.RenderContext) ([]byte, error) {
	return nil, errors.New("template parse error")
}

func glanceConfigs() []core.ContainerConfigFile {
	return []core.ContainerConfigFile{
		{Path: "/etc/glance/glance.conf", User: "glance", Group: "glance"},
	}
}

func TestInitServiceWritesConfigAndBecomesReady(t *testing.T) {
	sup := newFakeSupervisor(true)
	h := NewPebbleHandler("glance", "glance", sup, echoRenderer{}, glanceConfigs(), nil)
	h.SetDirectories([]core.ContainerDir{{Path: "/var/lib/glance", User: "glance", Group: "glance"}})

	if h.ServiceReady() {
		t.Fatal("handler must not be ready before initialization")
	}

	if err := h.InitService(core.RenderContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := string(sup.pushed["/etc/glance/glance.conf"]); got != "glance.conf.tpl" {
		t.Errorf("pushed content %q, want rendering of the default template", got)
	}
	if len(sup.dirs) != 1 || sup.dirs[0] != "/var/lib/glance" {
		t.Errorf("created dirs = %v", sup.dirs)
	}
	if !h.ServiceReady() {
		t.Error("handler must be ready after initialization")
	}
	if !h.ConfigPushed() {
		t.Error("config must be marked pushed")
	}
}

func TestInitServiceIdempotent(t *testing.T) {
	sup := newFakeSupervisor(true)
	h := NewPebbleHandler("glance", "glance", sup, echoRenderer{}, glanceConfigs(), nil)

	ctx := core.RenderContext{}
	if err := h.InitService(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := string(sup.pushed["/etc/glance/glance.conf"])

	if err := h.InitService(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := string(sup.pushed["/etc/glance/glance.conf"]); got != first {
		t.Errorf("re-initialization changed content: %q vs %q", got, first)
	}
	if sup.pushCount != 2 {
		t.Errorf("expected a re-push per pass, got %d pushes", sup.pushCount)
	}
}

func TestWriteConfigSkipsUnreachableContainer(t *testing.T) {
	sup := newFakeSupervisor(false)
	h := NewPebbleHandler("glance", "glance", sup, echoRenderer{}, glanceConfigs(), nil)

	if err := h.WriteConfig(core.RenderContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sup.pushed) != 0 {
		t.Error("nothing must be pushed while the endpoint is unreachable")
	}
	if h.ConfigPushed() {
		t.Error("config must not be marked pushed")
	}
}

func TestWriteConfigRenderFailure(t *testing.T) {
	sup := newFakeSupervisor(true)
	h := NewPebbleHandler("glance", "glance", sup, failingRenderer{}, glanceConfigs(), nil)

	if err := h.WriteConfig(core.RenderContext{}); err == nil {
		t.Fatal("expected render failure to surface")
	}
	if h.ConfigPushed() {
		t.Error("config must not be marked pushed after a failure")
	}
}

func TestContainerConfigManagement(t *testing.T) {
	h := NewPebbleHandler("glance", "glance", newFakeSupervisor(true), echoRenderer{}, glanceConfigs(), nil)

	extra := core.ContainerConfigFile{Path: "/etc/glance/policy.yaml", User: "glance", Group: "glance"}
	h.AddContainerConfig(extra)
	h.AddContainerConfig(extra)
	if got := len(h.ManagedConfigs()); got != 2 {
		t.Fatalf("expected 2 managed configs after duplicate add, got %d", got)
	}

	h.RemoveContainerConfig("/etc/glance/policy.yaml")
	if h.ConfigFileManaged("/etc/glance/policy.yaml") {
		t.Error("removed config must not be managed")
	}
	if !h.ConfigFileManaged("/etc/glance/glance.conf") {
		t.Error("remaining config must stay managed")
	}

	h.SetContainerConfigs(nil)
	if got := len(h.ManagedConfigs()); got != 0 {
		t.Errorf("expected empty config list after replacement, got %d", got)
	}
}

func TestServiceHandlerStartsService(t *testing.T) {
	sup := newFakeSupervisor(true)
	layer := core.ServiceLayer{
		Summary: "glance layer",
		Services: map[string]core.ServiceDefinition{
			"glance": {Override: "replace", Command: "glance-api"},
		},
	}
	h := NewServicePebbleHandler("glance", "glance", sup, echoRenderer{}, glanceConfigs(), layer, nil)

	if err := h.InitService(core.RenderContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := sup.layers["glance"]; !ok {
		t.Error("service layer must be submitted")
	}
	if !sup.running["glance"] {
		t.Error("service must be started")
	}
	if !h.ServiceReady() {
		t.Error("handler must be ready with the service running")
	}

	sup.running["glance"] = false
	if h.ServiceReady() {
		t.Error("handler must not be ready once the service stops")
	}
}

func TestWSGIHandlerManagesSiteConfig(t *testing.T) {
	sup := newFakeSupervisor(true)
	h := NewWSGIPebbleHandler("glance", "glance", sup, echoRenderer{}, glanceConfigs(), nil, "wsgi-glance")

	if !h.ConfigFileManaged("/etc/apache2/sites-available/wsgi-glance.conf") {
		t.Fatal("wsgi site config must be managed automatically")
	}

	if err := h.InitService(core.RenderContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sup.execs) != 1 || sup.execs[0][0] != "a2ensite" {
		t.Errorf("expected a2ensite invocation, got %v", sup.execs)
	}
	layer, ok := sup.layers["glance"]
	if !ok {
		t.Fatal("wsgi layer must be submitted")
	}
	if layer.Services["wsgi-glance"].Command != "/usr/sbin/apache2ctl -DFOREGROUND" {
		t.Errorf("unexpected wsgi command: %q", layer.Services["wsgi-glance"].Command)
	}
	if !h.ServiceReady() {
		t.Error("handler must be ready with the wsgi service running")
	}
}

func TestWSGIHandlerCreatesDeclaredDirectories(t *testing.T) {
	sup := newFakeSupervisor(true)
	h := NewWSGIPebbleHandler("glance", "glance", sup, echoRenderer{}, nil, nil, "wsgi-glance")
	h.SetDirectories([]core.ContainerDir{{Path: "/var/lib/glance", User: "glance", Group: "glance"}})

	if err := h.InitService(core.RenderContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sup.dirs) != 1 || sup.dirs[0] != "/var/lib/glance" {
		t.Errorf("created dirs = %v, want the declared directory", sup.dirs)
	}
}

func TestWSGIHandlerSurvivesSiteEnableFailure(t *testing.T) {
	sup := newFakeSupervisor(true)
	sup.execErr = errors.New("exited too quickly")
	h := NewWSGIPebbleHandler("glance", "glance", sup, echoRenderer{}, nil, nil, "wsgi-glance")

	if err := h.InitService(core.RenderContext{}); err != nil {
		t.Fatalf("a2ensite failure must not fail initialization: %v", err)
	}
	if !sup.running["wsgi-glance"] {
		t.Error("wsgi service must still be started")
	}
}
