package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sunbeam/internal/config"
	"sunbeam/internal/contexts"
	"sunbeam/internal/core"
	"sunbeam/internal/relation"
	"sunbeam/internal/workload"
	"sunbeam/pkg/logging"
)

// bootstrappedKey is the persistent store key recording whether the one-time
// bootstrap has completed.
const bootstrappedKey = "engine/bootstrapped"

// ErrNoPeerRelation is returned from leader data accessors when the
// deployment declares no peer relation.
var ErrNoPeerRelation = errors.New("peer relation not available")

// BootstrapHook is the service-specific one-time setup action, run after the
// first pass in which every relation and every workload is ready. It must be
// idempotent: a failed hook is retried from scratch on the next trigger.
type BootstrapHook func(ctx core.RenderContext) error

// Dependencies bundles the external collaborators an engine is wired to.
type Dependencies struct {
	// Negotiators supplies the relation negotiator for each declared
	// relation name. Relations without a negotiator are skipped.
	Negotiators map[string]core.RelationNegotiator

	// Supervisors supplies the process supervisor per container name.
	Supervisors map[string]core.ProcessSupervisor

	// Store persists the bootstrapped flag and the peer data bag.
	Store relation.PeerStore

	// Status receives externally visible status updates.
	Status core.StatusSink

	// Leader answers peer-group leadership queries.
	Leader core.LeaderChecker

	// Renderer renders configuration file templates.
	Renderer core.TemplateRenderer

	// Bootstrap is the one-time setup hook; nil means nothing to do.
	Bootstrap BootstrapHook

	// Notify, when set, receives the triggers raised by handler change
	// callbacks instead of Reconcile being run inline. The serve loop
	// points this at the dispatcher so that every notification path goes
	// through serialized dispatch.
	Notify func(trigger core.Trigger)

	// ContainerConfigs are the configuration files managed in each
	// workload container.
	ContainerConfigs []core.ContainerConfigFile

	// Layers optionally declares a service layer per container,
	// promoting that container's handler to a service-running one.
	Layers map[string]core.ServiceLayer
}

// Engine is the reconciliation engine for one managed service. A single
// Reconcile entry point is invoked, by the event substrate and by every
// handler's change callback, whenever any input to the desired
// configuration changes. Passes never overlap; the substrate dispatches
// them one at a time.
type Engine struct {
	deployment     *config.Deployment
	deps           Dependencies
	relations      *relation.Registry
	workloads      []workload.Handler
	configContexts []contexts.ConfigContext
	peers          *relation.PeerHandler
	bootstrapped   bool
}

// New creates the engine for a base service: amqp, private database, shared
// database, ingress and peer relations (each only when declared in the
// manifest), one workload handler per container, and the options config
// context.
func New(deployment *config.Deployment, deps Dependencies) (*Engine, error) {
	return newEngine(deployment, deps, nil, nil)
}

// NewAPI creates the engine for an API service. On top of the base set it
// prepends the identity-service relation handler, fronts the service
// container with a WSGI workload handler, and adds the wsgi worker config
// context.
func NewAPI(deployment *config.Deployment, deps Dependencies) (*Engine, error) {
	e := &Engine{deployment: deployment, deps: deps}

	var prepended []relation.Handler
	if neg, ok := deps.Negotiators["identity-service"]; ok && e.relationDeclared("identity-service") {
		prepended = append(prepended, relation.NewIdentityServiceHandler(
			"identity-service", neg, e.callback(),
			e.serviceEndpoints(), deployment.Options.String("region", "RegionOne")))
	}

	// The service container may be absent from the container list; fall
	// back to the declared-container handlers rather than wiring a nil
	// supervisor into the WSGI handler.
	var workloads []workload.Handler
	if supervisor, ok := deps.Supervisors[deployment.Service]; ok {
		workloads = []workload.Handler{workload.NewWSGIPebbleHandler(
			deployment.Service,
			deployment.Service,
			supervisor,
			deps.Renderer,
			apiContainerConfigs(deployment, deps.ContainerConfigs),
			e.workloadCallback(),
			"wsgi-"+deployment.Service,
		)}
	} else {
		logging.Warn("Engine", "No supervisor wired for service container %s, skipping WSGI handler", deployment.Service)
	}

	extraContexts := []contexts.ConfigContext{
		contexts.NewWSGIWorkerConfigContext("wsgi_config", deployment.Service, deployment.Options),
	}

	return finishEngine(e, prepended, workloads, extraContexts)
}

// newEngine assembles a base engine, optionally with prepended relation
// handlers and replacement workload handlers.
func newEngine(deployment *config.Deployment, deps Dependencies, prepended []relation.Handler, workloads []workload.Handler) (*Engine, error) {
	e := &Engine{deployment: deployment, deps: deps}
	return finishEngine(e, prepended, workloads, nil)
}

// finishEngine runs the construction steps shared by every engine kind.
func finishEngine(e *Engine, prepended []relation.Handler, workloads []workload.Handler, extraContexts []contexts.ConfigContext) (*Engine, error) {
	e.buildRelationHandlers(prepended)

	if workloads == nil {
		workloads = e.buildWorkloadHandlers()
	}
	e.workloads = workloads

	e.configContexts = append(
		[]contexts.ConfigContext{contexts.NewOptionsConfigContext("options", e.deployment.Options)},
		extraContexts...)

	bootstrapped, ok, err := e.deps.Store.Get(bootstrappedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load bootstrap state: %w", err)
	}
	e.bootstrapped = ok && bootstrapped == "true"

	return e, nil
}

// Reconcile is the single idempotent entry point of the engine. It runs the
// gating/bootstrap decision procedure:
//
//  1. Abort unless every relation handler is ready.
//  2. Initialize every workload whose control endpoint is reachable with a
//     freshly aggregated render context. A failed initialization marks the
//     service blocked and aborts the pass.
//  3. Abort unless every workload's service is ready.
//  4. Run the one-time bootstrap hook if not yet bootstrapped.
//  5. Mark the service active and persist the bootstrapped flag.
//
// Gate failures are the normal still-waiting path: no error, no mutation;
// the next external trigger re-runs the pass from scratch. A bootstrap hook
// failure is the one hard error.
func (e *Engine) Reconcile(trigger core.Trigger) error {
	logging.Debug("Engine", "Reconciling %s (trigger: %s)", e.deployment.Service, trigger.Kind)

	if !e.relations.AllReady() {
		logging.Debug("Engine", "Aborting reconciliation, relations not ready")
		return nil
	}

	ctx := contexts.BuildRenderContext(e.relations, e.configContexts, e.deployment)

	for _, wh := range e.workloads {
		if !wh.PebbleReady() {
			continue
		}
		if err := wh.InitService(ctx); err != nil {
			logging.Error("Engine", err, "Failed to initialize workload %s", wh.ContainerName())
			e.deps.Status.SetStatus(core.StatusBlocked,
				fmt.Sprintf("workload %s failed to initialize", wh.ContainerName()))
			// A converged run must not be reported active over a failed
			// config push; the next trigger retries from scratch.
			return nil
		}
	}

	for _, wh := range e.workloads {
		if !wh.ServiceReady() {
			logging.Debug("Engine", "Aborting reconciliation, workload %s service not ready", wh.ContainerName())
			return nil
		}
	}

	if !e.bootstrapped {
		if err := e.runBootstrap(ctx); err != nil {
			return fmt.Errorf("bootstrap failed: %w", err)
		}
	}

	e.deps.Status.SetStatus(core.StatusActive, "")

	if err := e.setBootstrapped(); err != nil {
		return err
	}

	logging.Info("Engine", "Service %s reconciled", e.deployment.Service)
	return nil
}

// runBootstrap invokes the one-time bootstrap hook.
func (e *Engine) runBootstrap(ctx core.RenderContext) error {
	if e.deps.Bootstrap == nil {
		return nil
	}
	logging.Info("Engine", "Bootstrapping %s", e.deployment.Service)
	return e.deps.Bootstrap(ctx)
}

// Bootstrapped reports whether the one-time bootstrap has completed.
func (e *Engine) Bootstrapped() bool {
	return e.bootstrapped
}

// setBootstrapped persists the bootstrapped flag.
func (e *Engine) setBootstrapped() error {
	if e.bootstrapped {
		return nil
	}
	if err := e.deps.Store.Set(bootstrappedKey, "true"); err != nil {
		return fmt.Errorf("failed to persist bootstrap state: %w", err)
	}
	e.bootstrapped = true
	return nil
}

// LeaderSet writes a shared value on the peer relation. Only the leader may
// write.
func (e *Engine) LeaderSet(key, value string) error {
	if e.peers == nil {
		return ErrNoPeerRelation
	}
	return e.peers.SetAppData(key, value)
}

// LeaderGet reads a shared value from the peer relation.
func (e *Engine) LeaderGet(key string) (string, bool, error) {
	if e.peers == nil {
		return "", false, ErrNoPeerRelation
	}
	return e.peers.GetAppData(key)
}

// EnsureLeaderSecret returns the shared secret stored under key, generating
// and publishing one first when this instance is the leader and no value
// exists yet. Followers observing no value get ErrNotLeader and retry on a
// later pass, once the leader has published.
func (e *Engine) EnsureLeaderSecret(key string) (string, error) {
	value, ok, err := e.LeaderGet(key)
	if err != nil {
		return "", err
	}
	if ok && value != "" {
		return value, nil
	}
	secret := uuid.New().String()
	if err := e.LeaderSet(key, secret); err != nil {
		return "", err
	}
	return secret, nil
}

// Relations returns the ordered relation handler registry.
func (e *Engine) Relations() *relation.Registry {
	return e.relations
}

// Workloads returns the workload handlers in registration order.
func (e *Engine) Workloads() []workload.Handler {
	return e.workloads
}

// Deployment returns the static deployment declaration.
func (e *Engine) Deployment() *config.Deployment {
	return e.deployment
}

// notify routes a handler-raised trigger to the dispatcher when one is
// wired, and runs the pass inline otherwise. Errors cannot propagate into
// the substrate, so they are logged.
func (e *Engine) notify(trigger core.Trigger) {
	if e.deps.Notify != nil {
		e.deps.Notify(trigger)
		return
	}
	if err := e.Reconcile(trigger); err != nil {
		logging.Error("Engine", err, "Reconciliation triggered by %s failed", trigger.Kind)
	}
}

// callback adapts notify into the change callback handed to relation
// handlers.
func (e *Engine) callback() relation.Callback {
	return func(trigger core.Trigger) { e.notify(trigger) }
}

// workloadCallback is the same adapter for workload handlers.
func (e *Engine) workloadCallback() workload.Callback {
	return func(trigger core.Trigger) { e.notify(trigger) }
}
