package relation

import (
	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// ServiceEndpoint is one endpoint registered with the identity service.
type ServiceEndpoint struct {
	ServiceName string
	Type        string
	InternalURL string
	PublicURL   string
	AdminURL    string
}

// IdentityServiceHandler manages the identity-service relation used by API
// services. On construction it registers the service's endpoints and region;
// it is ready once the identity service has issued a service password.
type IdentityServiceHandler struct {
	name       string
	negotiator core.RelationNegotiator
	callback   Callback
	endpoints  []ServiceEndpoint
	region     string
}

// NewIdentityServiceHandler creates the identity-service relation handler
// and registers the service endpoints.
func NewIdentityServiceHandler(name string, negotiator core.RelationNegotiator, callback Callback, endpoints []ServiceEndpoint, region string) *IdentityServiceHandler {
	h := &IdentityServiceHandler{
		name:       name,
		negotiator: negotiator,
		callback:   callback,
		endpoints:  endpoints,
		region:     region,
	}

	eps := make([]interface{}, 0, len(endpoints))
	for _, ep := range endpoints {
		eps = append(eps, map[string]interface{}{
			"service_name": ep.ServiceName,
			"type":         ep.Type,
			"internal_url": ep.InternalURL,
			"public_url":   ep.PublicURL,
			"admin_url":    ep.AdminURL,
		})
	}
	params := map[string]interface{}{
		"service_endpoints": eps,
		"region":            region,
	}
	if err := negotiator.RequestAccess(params); err != nil {
		logging.Error("IdentityServiceHandler", err, "Failed to register endpoints on %s", name)
	}
	return h
}

func (h *IdentityServiceHandler) Name() string {
	return h.name
}

// Ready reports whether the identity service has issued a service password.
func (h *IdentityServiceHandler) Ready() bool {
	password, _ := h.negotiator.NegotiatedValues()["service_password"].(string)
	return password != ""
}

// OnChanged re-enters the engine once credentials have been issued.
func (h *IdentityServiceHandler) OnChanged(trigger core.Trigger) {
	if !h.Ready() {
		logging.Debug("IdentityServiceHandler", "Ignoring change on %s, no service credentials yet", h.name)
		return
	}
	h.callback(trigger)
}

// Contribute writes the negotiated identity values plus the registered
// region into the handler's namespace.
func (h *IdentityServiceHandler) Contribute(ctx core.RenderContext) {
	values := h.negotiator.NegotiatedValues()
	if len(values) == 0 {
		return
	}

	ns := ctx.Namespace(contextNamespace(h.name))
	for k, v := range values {
		ns[k] = v
	}
	ns["region"] = h.region
}
