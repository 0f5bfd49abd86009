package config

// ServiceKind distinguishes plain services from API (WSGI-fronted) services.
// API services additionally negotiate with an identity service and run their
// workload behind a WSGI server.
type ServiceKind string

const (
	KindBase ServiceKind = "base"
	KindAPI  ServiceKind = "api"
)

// Endpoint describes one endpoint an API service registers with the identity
// service.
type Endpoint struct {
	Service string `yaml:"service"`
	Type    string `yaml:"type"`
}

// Options holds the operator-tunable option map of a deployment. Values are
// free-form; use the typed accessors.
type Options map[string]interface{}

// String returns the option as a string, or fallback when absent or empty.
func (o Options) String(key, fallback string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// Int returns the option as an int, or fallback when absent or not numeric.
func (o Options) Int(key string, fallback int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Deployment is the static declaration of one managed service: its name,
// kind, relation manifest, containers and options. The relation manifest is
// authoritative: handlers are only ever constructed for names listed there.
type Deployment struct {
	// Service is the managed service's name, used as the default AMQP
	// username, database name prefix and container name.
	Service string `yaml:"service"`

	// Kind selects base or API engine composition.
	Kind ServiceKind `yaml:"kind,omitempty"`

	// Relations is the static manifest of relation names this deployment
	// may join.
	Relations []string `yaml:"relations"`

	// Containers lists the workload containers, one handler each.
	// Defaults to the service name.
	Containers []string `yaml:"containers,omitempty"`

	// IngressPort is the default public port for ingress and endpoint
	// registration.
	IngressPort int `yaml:"ingressPort,omitempty"`

	// Endpoints are registered with the identity service (API kind only).
	Endpoints []Endpoint `yaml:"endpoints,omitempty"`

	// TemplateDir is the directory holding configuration templates.
	TemplateDir string `yaml:"templateDir,omitempty"`

	// StateDir is the directory backing the persistent store.
	StateDir string `yaml:"stateDir,omitempty"`

	// Options is the operator-tunable option map.
	Options Options `yaml:"options,omitempty"`
}

// HasRelation reports whether name is declared in the relation manifest.
func (d *Deployment) HasRelation(name string) bool {
	for _, r := range d.Relations {
		if r == name {
			return true
		}
	}
	return false
}

// DatabaseRelation returns the name of this service's private database
// relation.
func (d *Deployment) DatabaseRelation() string {
	return d.Service + "-db"
}
