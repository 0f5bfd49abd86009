package core

// RelationNegotiator is the narrow boundary to one dependency's wire-level
// negotiation. Implementations live outside the engine; the engine only ever
// queries already-available state through this interface.
type RelationNegotiator interface {
	// IsReady reports whether negotiation has produced a usable result.
	// It must be a pure query with no side effects.
	IsReady() bool

	// NegotiatedValues returns the values produced by the negotiation so
	// far. The returned map is owned by the caller.
	NegotiatedValues() map[string]interface{}

	// RequestAccess asks the remote side for access with the given
	// parameters (for example, requesting a database be created).
	RequestAccess(params map[string]interface{}) error
}

// ProcessSupervisor is the control-plane boundary to one workload container.
// Calls are expected to be fast local or control-plane operations with their
// own timeouts, never long network waits.
type ProcessSupervisor interface {
	// EndpointReachable reports whether the supervisor's control endpoint
	// can be reached, independent of configuration state.
	EndpointReachable() bool

	// PushFile writes a rendered configuration file into the container.
	PushFile(path string, data []byte, user, group string) error

	// MakeDir creates a directory (and parents) inside the container.
	MakeDir(path string, user, group string) error

	// SubmitLayer submits (or replaces) the service layer definition.
	SubmitLayer(label string, layer ServiceLayer) error

	// StartService starts the named service, restarting it if running.
	StartService(name string) error

	// StopService stops the named service if it is running.
	StopService(name string) error

	// Exec runs a command inside the container and returns its stdout.
	Exec(cmd []string) (string, error)

	// ServiceRunning reports whether the named service is running with
	// the currently pushed configuration.
	ServiceRunning(name string) bool
}

// TemplateRenderer renders a named template against a render context.
type TemplateRenderer interface {
	Render(templateName string, ctx RenderContext) ([]byte, error)
}

// PersistentStore is a small namespaced key/value store surviving across
// reconciliation passes.
type PersistentStore interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores the value for key.
	Set(key, value string) error
}

// LeaderChecker reports whether this instance currently holds leadership of
// the peer group. The substrate guarantees at most one leader at a time.
type LeaderChecker interface {
	IsLeader() bool
}
