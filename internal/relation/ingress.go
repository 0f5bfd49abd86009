package relation

import (
	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// IngressHandler manages the ingress relation. The ingress controller needs
// nothing back from us, so the handler pushes its request at construction,
// is always ready and contributes nothing to the render context.
type IngressHandler struct {
	name     string
	callback Callback
}

// IngressRequest is the configuration pushed to the ingress controller.
type IngressRequest struct {
	ServiceHostname string
	ServiceName     string
	ServicePort     int
}

// NewIngressHandler creates the ingress relation handler and immediately
// pushes the ingress request through the negotiator.
func NewIngressHandler(name string, negotiator core.RelationNegotiator, callback Callback, req IngressRequest) *IngressHandler {
	params := map[string]interface{}{
		"service-hostname": req.ServiceHostname,
		"service-name":     req.ServiceName,
		"service-port":     req.ServicePort,
	}
	if err := negotiator.RequestAccess(params); err != nil {
		logging.Error("IngressHandler", err, "Failed to push ingress request on %s", name)
	}
	return &IngressHandler{name: name, callback: callback}
}

func (h *IngressHandler) Name() string {
	return h.name
}

// Ready always holds: there is nothing to wait for.
func (h *IngressHandler) Ready() bool {
	return true
}

func (h *IngressHandler) OnChanged(trigger core.Trigger) {
	h.callback(trigger)
}

// Contribute writes nothing; ingress produces no render-context values.
func (h *IngressHandler) Contribute(ctx core.RenderContext) {}
