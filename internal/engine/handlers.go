package engine

import (
	"fmt"

	"sunbeam/internal/config"
	"sunbeam/internal/core"
	"sunbeam/internal/relation"
	"sunbeam/internal/workload"
	"sunbeam/pkg/logging"
)

// buildRelationHandlers constructs the relation handler set for the service.
// Candidate relations are considered in a fixed order: any prepended
// handlers first (an API service's identity handler), then amqp, the private
// database, the shared database, ingress and peers. Each candidate is
// skipped when its name is missing from the manifest or a handler for it
// already exists; both cases are logged no-ops.
func (e *Engine) buildRelationHandlers(prepended []relation.Handler) {
	reg := relation.NewRegistry(e.deployment)
	cb := e.callback()
	d := e.deployment

	for _, h := range prepended {
		reg.Register(h)
	}

	if neg, ok := e.negotiator("amqp"); ok && reg.CanRegister("amqp") {
		username := d.Options.String("rabbitmq-user", d.Service)
		vhost := d.Options.String("rabbitmq-vhost", "openstack")
		reg.Register(relation.NewAMQPHandler("amqp", neg, cb, username, vhost))
	}

	dbRelation := d.DatabaseRelation()
	if neg, ok := e.negotiator(dbRelation); ok && reg.CanRegister(dbRelation) {
		reg.Register(relation.NewDatabaseHandler(dbRelation, neg, cb, d.Service))
	}

	if neg, ok := e.negotiator("shared-db"); ok && reg.CanRegister("shared-db") {
		reg.Register(relation.NewSharedDatabaseHandler("shared-db", neg, cb, []string{d.Service}))
	}

	if neg, ok := e.negotiator("ingress"); ok && reg.CanRegister("ingress") {
		reg.Register(relation.NewIngressHandler("ingress", neg, cb, relation.IngressRequest{
			ServiceHostname: d.Options.String("os-public-hostname", d.Service),
			ServiceName:     d.Service,
			ServicePort:     d.Options.Int("service-port", d.IngressPort),
		}))
	}

	if reg.CanRegister("peers") {
		peers := relation.NewPeerHandler("peers", e.deps.Store, e.deps.Leader, cb)
		reg.Register(peers)
		e.peers = peers
	}

	e.relations = reg
}

// negotiator looks up the collaborator for a relation name. A declared
// relation without a wired negotiator is skipped like an undeclared one.
func (e *Engine) negotiator(name string) (core.RelationNegotiator, bool) {
	neg, ok := e.deps.Negotiators[name]
	if !ok && e.relationDeclared(name) {
		logging.Debug("Engine", "No negotiator wired for relation %s, skipping handler", name)
	}
	return neg, ok
}

func (e *Engine) relationDeclared(name string) bool {
	return e.deployment.HasRelation(name)
}

// buildWorkloadHandlers creates one handler per declared container: a
// service-running handler when a layer is declared for the container, the
// configuration-only base handler otherwise.
func (e *Engine) buildWorkloadHandlers() []workload.Handler {
	handlers := make([]workload.Handler, 0, len(e.deployment.Containers))
	cb := e.workloadCallback()

	for _, container := range e.deployment.Containers {
		supervisor, ok := e.deps.Supervisors[container]
		if !ok {
			logging.Warn("Engine", "No supervisor wired for container %s, skipping handler", container)
			continue
		}
		if layer, ok := e.deps.Layers[container]; ok {
			handlers = append(handlers, workload.NewServicePebbleHandler(
				container, e.deployment.Service, supervisor, e.deps.Renderer,
				e.deps.ContainerConfigs, layer, cb))
			continue
		}
		handlers = append(handlers, workload.NewPebbleHandler(
			container, e.deployment.Service, supervisor, e.deps.Renderer,
			e.deps.ContainerConfigs, cb))
	}

	return handlers
}

// serviceEndpoints assembles the endpoint registrations for the identity
// service. URLs default to the service's cluster-internal address.
func (e *Engine) serviceEndpoints() []relation.ServiceEndpoint {
	d := e.deployment
	url := fmt.Sprintf("http://%s:%d", d.Service, d.IngressPort)

	endpoints := make([]relation.ServiceEndpoint, 0, len(d.Endpoints))
	for _, ep := range d.Endpoints {
		endpoints = append(endpoints, relation.ServiceEndpoint{
			ServiceName: ep.Service,
			Type:        ep.Type,
			InternalURL: url,
			PublicURL:   url,
			AdminURL:    url,
		})
	}
	return endpoints
}

// apiContainerConfigs extends the supplied configuration files with the API
// service's default configuration file, owned by the service user.
func apiContainerConfigs(d *config.Deployment, configs []core.ContainerConfigFile) []core.ContainerConfigFile {
	serviceConf := core.ContainerConfigFile{
		Path:  fmt.Sprintf("/etc/%s/%s.conf", d.Service, d.Service),
		User:  d.Options.String("service-user", d.Service),
		Group: d.Options.String("service-group", d.Service),
	}
	out := append([]core.ContainerConfigFile(nil), configs...)
	return append(out, serviceConf)
}
