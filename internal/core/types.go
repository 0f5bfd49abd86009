package core

import "time"

// RenderContext is the namespaced mapping handed to workload handlers when
// configuration is rendered. The first key is a contributor namespace (a
// relation name such as "amqp", or a config context namespace such as
// "options"); the second key is the value name within that namespace.
//
// A RenderContext is built fresh on every reconciliation pass and never
// persisted.
type RenderContext map[string]map[string]interface{}

// Namespace returns the value map for the given namespace, creating it if
// necessary. Writes through the returned map land in the context.
func (c RenderContext) Namespace(name string) map[string]interface{} {
	ns, ok := c[name]
	if !ok {
		ns = make(map[string]interface{})
		c[name] = ns
	}
	return ns
}

// ContainerConfigFile describes one configuration file managed inside a
// workload container: where it is written, who owns it, and which template
// it is rendered from. An empty Template means the file's basename with a
// ".tpl" suffix.
type ContainerConfigFile struct {
	Path     string
	User     string
	Group    string
	Template string
}

// ContainerDir describes a directory created inside a workload container
// before configuration is written.
type ContainerDir struct {
	Path  string
	User  string
	Group string
}

// ServiceLayer is the process definition submitted to a supervisor for one
// managed service. It mirrors a pebble service layer.
type ServiceLayer struct {
	Summary     string
	Description string
	Services    map[string]ServiceDefinition
}

// ServiceDefinition describes how the supervisor should run one process.
type ServiceDefinition struct {
	Override string
	Summary  string
	Command  string
	Startup  string
}

// TriggerKind classifies what caused a reconciliation pass.
type TriggerKind string

const (
	// TriggerRelationChanged indicates negotiated relation data changed.
	TriggerRelationChanged TriggerKind = "relation-changed"

	// TriggerConfigChanged indicates deployment configuration changed.
	TriggerConfigChanged TriggerKind = "config-changed"

	// TriggerPebbleReady indicates a workload control endpoint came up.
	TriggerPebbleReady TriggerKind = "pebble-ready"

	// TriggerManual indicates an operator-initiated pass.
	TriggerManual TriggerKind = "manual"
)

// Trigger identifies the event that caused a reconciliation pass. It is
// informational only: the pass runs the same decision procedure regardless
// of what woke it up.
type Trigger struct {
	Kind      TriggerKind
	Source    string
	Timestamp time.Time
}
