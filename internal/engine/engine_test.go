package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"sunbeam/internal/config"
	"sunbeam/internal/core"
)

// mockNegotiator implements core.RelationNegotiator for testing.
type mockNegotiator struct {
	values   map[string]interface{}
	requests []map[string]interface{}
}

func (m *mockNegotiator) IsReady() bool {
	return len(m.values) > 0
}

func (m *mockNegotiator) NegotiatedValues() map[string]interface{} {
	out := make(map[string]interface{}, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (m *mockNegotiator) RequestAccess(params map[string]interface{}) error {
	m.requests = append(m.requests, params)
	return nil
}

// mockSupervisor implements core.ProcessSupervisor for testing.
type mockSupervisor struct {
	reachable bool
	pushed    map[string][]byte
	running   map[string]bool
	layers    map[string]core.ServiceLayer
	initCalls int
}

func newMockSupervisor(reachable bool) *mockSupervisor {
	return &mockSupervisor{
		reachable: reachable,
		pushed:    make(map[string][]byte),
		running:   make(map[string]bool),
		layers:    make(map[string]core.ServiceLayer),
	}
}

func (m *mockSupervisor) EndpointReachable() bool { return m.reachable }

func (m *mockSupervisor) PushFile(path string, data []byte, user, group string) error {
	m.pushed[path] = data
	m.initCalls++
	return nil
}

func (m *mockSupervisor) MakeDir(path, user, group string) error { return nil }

func (m *mockSupervisor) SubmitLayer(label string, layer core.ServiceLayer) error {
	m.layers[label] = layer
	return nil
}

func (m *mockSupervisor) StartService(name string) error {
	m.running[name] = true
	return nil
}

func (m *mockSupervisor) StopService(name string) error {
	delete(m.running, name)
	return nil
}

func (m *mockSupervisor) Exec(cmd []string) (string, error) { return "", nil }

func (m *mockSupervisor) ServiceRunning(name string) bool { return m.running[name] }

// mockStore implements relation.PeerStore in memory.
type mockStore struct {
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockStore) Set(key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockStore) GetAll(namespace string) (map[string]string, error) {
	out := make(map[string]string)
	prefix := namespace + "/"
	for k, v := range m.data {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = v
		}
	}
	return out, nil
}

// mockStatus records every status update.
type mockStatus struct {
	history []core.StatusValue
}

func (m *mockStatus) SetStatus(value core.StatusValue, message string) {
	m.history = append(m.history, value)
}

func (m *mockStatus) sawActive() bool {
	for _, s := range m.history {
		if s == core.StatusActive {
			return true
		}
	}
	return false
}

func (m *mockStatus) last() core.StatusValue {
	if len(m.history) == 0 {
		return ""
	}
	return m.history[len(m.history)-1]
}

// mockLeader implements core.LeaderChecker.
type mockLeader struct {
	leader bool
}

func (m *mockLeader) IsLeader() bool { return m.leader }

// mockRenderer renders every template to a fixed payload, or fails when an
// error is set.
type mockRenderer struct {
	err error
}

func (m *mockRenderer) Render(templateName string, ctx core.RenderContext) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []byte("rendered: " + templateName), nil
}

func testDeployment(relations ...string) *config.Deployment {
	return &config.Deployment{
		Service:    "glance",
		Kind:       config.KindBase,
		Relations:  relations,
		Containers: []string{"glance"},
		Options:    config.Options{},
	}
}

type testFixture struct {
	deployment *config.Deployment
	amqp       *mockNegotiator
	supervisor *mockSupervisor
	store      *mockStore
	status     *mockStatus
	leader     *mockLeader
	renderer   *mockRenderer
	bootstraps int
	deps       Dependencies
}

func newFixture(t *testing.T, relations ...string) *testFixture {
	t.Helper()

	f := &testFixture{
		deployment: testDeployment(relations...),
		amqp:       &mockNegotiator{values: map[string]interface{}{}},
		supervisor: newMockSupervisor(true),
		store:      newMockStore(),
		status:     &mockStatus{},
		leader:     &mockLeader{leader: true},
		renderer:   &mockRenderer{},
	}
	f.deps = Dependencies{
		Negotiators: map[string]core.RelationNegotiator{"amqp": f.amqp},
		Supervisors: map[string]core.ProcessSupervisor{"glance": f.supervisor},
		Store:       f.store,
		Status:      f.status,
		Leader:      f.leader,
		Renderer:    f.renderer,
		Bootstrap: func(ctx core.RenderContext) error {
			f.bootstraps++
			return nil
		},
		ContainerConfigs: []core.ContainerConfigFile{
			{Path: "/etc/glance/glance.conf", User: "glance", Group: "glance"},
		},
		Layers: map[string]core.ServiceLayer{
			"glance": {
				Summary: "glance layer",
				Services: map[string]core.ServiceDefinition{
					"glance": {Override: "replace", Command: "glance-api"},
				},
			},
		},
	}
	return f
}

func (f *testFixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(f.deployment, f.deps)
	if err != nil {
		t.Fatalf("unexpected error building engine: %v", err)
	}
	return e
}

func (f *testFixture) makeAMQPReady() {
	f.amqp.values = map[string]interface{}{
		"password":  "secret",
		"hostnames": []string{"rabbit-0"},
	}
}

func trigger() core.Trigger {
	return core.Trigger{Kind: core.TriggerManual, Source: "test", Timestamp: time.Now()}
}

// Scenario A: amqp not ready, so the pass aborts at the dependency gate
// with no configuration push and no bootstrap.
func TestReconcileAbortsWhenRelationNotReady(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.supervisor.pushed) != 0 {
		t.Errorf("expected no config push, got %d files", len(f.supervisor.pushed))
	}
	if e.Bootstrapped() {
		t.Error("bootstrapped must remain false when a relation is not ready")
	}
	if f.bootstraps != 0 {
		t.Errorf("bootstrap hook must not run, ran %d times", f.bootstraps)
	}
	if f.status.sawActive() {
		t.Error("status must never be active while a relation is not ready")
	}
}

// Scenario C: everything ready, bootstrap runs exactly once, status goes
// active and the flag persists.
func TestReconcileConvergesAndBootstrapsOnce(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !e.Bootstrapped() {
		t.Fatal("expected engine to be bootstrapped")
	}
	if f.bootstraps != 1 {
		t.Fatalf("expected exactly one bootstrap, got %d", f.bootstraps)
	}
	if !f.status.sawActive() {
		t.Error("expected active status after convergence")
	}
	if v, ok := f.store.data["engine/bootstrapped"]; !ok || v != "true" {
		t.Errorf("expected persisted bootstrapped flag, got %q (present=%t)", v, ok)
	}

	// Second pass: idempotent, no second bootstrap.
	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}
	if f.bootstraps != 1 {
		t.Errorf("bootstrap ran again on a converged service: %d", f.bootstraps)
	}
}

// P1: repeated passes with unchanged inputs re-push identical content and
// change nothing else.
func TestReconcileIdempotence(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := string(f.supervisor.pushed["/etc/glance/glance.conf"])

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := string(f.supervisor.pushed["/etc/glance/glance.conf"])

	if first != second {
		t.Errorf("rendered content changed between converged passes: %q vs %q", first, second)
	}
	if f.bootstraps != 1 {
		t.Errorf("expected one bootstrap across passes, got %d", f.bootstraps)
	}
}

// Scenario B: the unreachable container is skipped during initialization
// and fails the process gate, so the pass stops short of bootstrap.
func TestReconcileSkipsUnreachableWorkload(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()
	f.deployment.Containers = []string{"glance", "glance-helper"}
	helper := newMockSupervisor(false)
	f.deps.Supervisors["glance-helper"] = helper
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(helper.pushed) != 0 {
		t.Error("unreachable container must not receive configuration")
	}
	if len(f.supervisor.pushed) == 0 {
		t.Error("reachable container should still be initialized")
	}
	if e.Bootstrapped() {
		t.Error("process gate must fail while any workload is not ready")
	}
	if f.status.sawActive() {
		t.Error("status must not be active while a workload is not ready")
	}
}

// A config push failing after an earlier converged pass leaves the service
// blocked: the ready flag from the previous pass must not carry the current
// pass through to active.
func TestReconcileFailedReapplyStaysBlocked(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.status.last() != core.StatusActive {
		t.Fatalf("expected active after convergence, got %s", f.status.last())
	}

	f.renderer.err = fmt.Errorf("template parse error")
	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("a failed config push is not a hard error: %v", err)
	}

	if got := f.status.last(); got != core.StatusBlocked {
		t.Errorf("status = %s, want blocked after a failed config push", got)
	}

	// Fixing the input converges again on the next trigger.
	f.renderer.err = nil
	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.status.last() != core.StatusActive {
		t.Errorf("status = %s, want active after the push succeeds again", f.status.last())
	}
}

// A failing bootstrap hook is the one hard error: it surfaces from
// Reconcile and is retried on the next pass.
func TestBootstrapFailureRetries(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()

	fail := true
	f.deps.Bootstrap = func(ctx core.RenderContext) error {
		f.bootstraps++
		if fail {
			return fmt.Errorf("schema migration failed")
		}
		return nil
	}
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err == nil {
		t.Fatal("expected bootstrap failure to surface")
	}
	if e.Bootstrapped() {
		t.Fatal("bootstrapped must remain false after a failed bootstrap")
	}
	if f.status.sawActive() {
		t.Error("status must not be active after a failed bootstrap")
	}

	fail = false
	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if !e.Bootstrapped() {
		t.Error("expected bootstrap to succeed on retry")
	}
	if f.bootstraps != 2 {
		t.Errorf("expected two bootstrap attempts, got %d", f.bootstraps)
	}
}

// P4: no handler is built for relations missing from the manifest, even
// when a negotiator is wired and ready.
func TestManifestFiltering(t *testing.T) {
	f := newFixture(t, "peers")
	f.makeAMQPReady()
	e := f.engine(t)

	if _, ok := e.Relations().Get("amqp"); ok {
		t.Error("amqp handler must not exist when not declared in the manifest")
	}
	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.Bootstrapped() {
		t.Error("expected convergence with only the peer relation declared")
	}
}

// The bootstrapped flag is loaded at construction, so a rebuilt engine does
// not bootstrap again.
func TestBootstrappedStateSurvivesRestart(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()
	e := f.engine(t)

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.bootstraps != 1 {
		t.Fatalf("expected one bootstrap, got %d", f.bootstraps)
	}

	rebuilt := f.engine(t)
	if !rebuilt.Bootstrapped() {
		t.Fatal("rebuilt engine must load the persisted bootstrapped flag")
	}
	if err := rebuilt.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.bootstraps != 1 {
		t.Errorf("rebuilt engine re-ran bootstrap: %d attempts", f.bootstraps)
	}
}

// Scenario D: followers can read but not write peer data.
func TestLeaderGating(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	e := f.engine(t)

	if err := e.LeaderSet("admin-password", "s3cret"); err != nil {
		t.Fatalf("leader write failed: %v", err)
	}
	if v, ok, err := e.LeaderGet("admin-password"); err != nil || !ok || v != "s3cret" {
		t.Fatalf("leader read got (%q, %t, %v)", v, ok, err)
	}

	f.leader.leader = false
	if err := e.LeaderSet("other", "x"); err == nil {
		t.Fatal("expected follower write to be rejected")
	}
	if v, ok, err := e.LeaderGet("admin-password"); err != nil || !ok || v != "s3cret" {
		t.Fatalf("follower read got (%q, %t, %v)", v, ok, err)
	}
}

// EnsureLeaderSecret publishes once and then always returns the stored
// value, for leader and followers alike.
func TestEnsureLeaderSecret(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	e := f.engine(t)

	secret, err := e.EnsureLeaderSecret("service-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secret == "" {
		t.Fatal("expected a generated secret")
	}

	again, err := e.EnsureLeaderSecret("service-password")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again != secret {
		t.Errorf("secret regenerated: %q vs %q", again, secret)
	}

	f.leader.leader = false
	follower, err := e.EnsureLeaderSecret("service-password")
	if err != nil {
		t.Fatalf("unexpected error for follower read: %v", err)
	}
	if follower != secret {
		t.Errorf("follower read %q, want %q", follower, secret)
	}
}

// Without a declared peer relation the leader accessors fail cleanly.
func TestLeaderAccessorsWithoutPeers(t *testing.T) {
	f := newFixture(t, "amqp")
	e := f.engine(t)

	if err := e.LeaderSet("k", "v"); !errors.Is(err, ErrNoPeerRelation) {
		t.Errorf("expected ErrNoPeerRelation, got %v", err)
	}
	if _, _, err := e.LeaderGet("k"); !errors.Is(err, ErrNoPeerRelation) {
		t.Errorf("expected ErrNoPeerRelation, got %v", err)
	}
}

// API engines prepend the identity handler so it leads iteration order.
func TestAPIEnginePrependsIdentityHandler(t *testing.T) {
	f := newFixture(t, "identity-service", "amqp", "peers")
	f.deployment.Kind = config.KindAPI
	f.deployment.IngressPort = 9292
	f.deployment.Endpoints = []config.Endpoint{{Service: "glance", Type: "image"}}
	identity := &mockNegotiator{values: map[string]interface{}{}}
	f.deps.Negotiators["identity-service"] = identity

	e, err := NewAPI(f.deployment, f.deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	handlers := e.Relations().Handlers()
	if len(handlers) == 0 || handlers[0].Name() != "identity-service" {
		t.Fatalf("expected identity-service first, got %v", handlerNames(e))
	}
	if len(identity.requests) != 1 {
		t.Fatalf("expected one endpoint registration, got %d", len(identity.requests))
	}
	if identity.requests[0]["region"] != "RegionOne" {
		t.Errorf("expected default region registration, got %v", identity.requests[0]["region"])
	}
}

// An API deployment whose container list omits the service name falls back
// to the declared-container handlers instead of wiring a nil supervisor into
// a WSGI handler.
func TestAPIEngineWithoutServiceContainer(t *testing.T) {
	f := newFixture(t, "amqp", "peers")
	f.makeAMQPReady()
	f.deployment.Kind = config.KindAPI
	f.deployment.IngressPort = 9292
	f.deployment.Containers = []string{"glance-worker"}
	worker := newMockSupervisor(true)
	f.deps.Supervisors = map[string]core.ProcessSupervisor{"glance-worker": worker}
	f.deps.Layers = nil

	e, err := NewAPI(f.deployment, f.deps)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	workloads := e.Workloads()
	if len(workloads) != 1 || workloads[0].ContainerName() != "glance-worker" {
		t.Fatalf("expected one handler for glance-worker, got %d", len(workloads))
	}

	if err := e.Reconcile(trigger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(worker.pushed) == 0 {
		t.Error("declared container should still receive configuration")
	}
}

func handlerNames(e *Engine) []string {
	var names []string
	for _, h := range e.Relations().Handlers() {
		names = append(names, h.Name())
	}
	return names
}
