package relation

import (
	"fmt"
	"sort"
	"strings"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// DefaultAMQPPort is used when the broker negotiates no ssl_port.
const DefaultAMQPPort = "5672"

// AMQPHandler manages the message-queue relation. It is ready once the
// broker has negotiated a password, and contributes broker hostnames plus an
// assembled transport URL.
type AMQPHandler struct {
	name       string
	negotiator core.RelationNegotiator
	callback   Callback
	username   string
	vhost      string
}

// NewAMQPHandler creates the AMQP relation handler. Username and vhost come
// from deployment options, falling back to the service name and "openstack".
func NewAMQPHandler(name string, negotiator core.RelationNegotiator, callback Callback, username, vhost string) *AMQPHandler {
	return &AMQPHandler{
		name:       name,
		negotiator: negotiator,
		callback:   callback,
		username:   username,
		vhost:      vhost,
	}
}

func (h *AMQPHandler) Name() string {
	return h.name
}

// Ready reports whether the broker has produced a password.
func (h *AMQPHandler) Ready() bool {
	password, _ := h.negotiator.NegotiatedValues()["password"].(string)
	return password != ""
}

// OnChanged re-enters the engine once the relation is complete. The broker
// side only signals completion together with a password.
func (h *AMQPHandler) OnChanged(trigger core.Trigger) {
	if !h.Ready() {
		logging.Debug("AMQPHandler", "Ignoring change on %s, no password negotiated yet", h.name)
		return
	}
	h.callback(trigger)
}

// Contribute writes hostnames, port, password and the assembled transport
// URL into the handler's namespace.
func (h *AMQPHandler) Contribute(ctx core.RenderContext) {
	values := h.negotiator.NegotiatedValues()
	hostnames := stringSlice(values["hostnames"])
	if len(hostnames) == 0 {
		return
	}
	hostnames = dedupe(hostnames)

	password, _ := values["password"].(string)
	port, _ := values["ssl_port"].(string)
	if port == "" {
		port = DefaultAMQPPort
	}

	hostPairs := make([]string, 0, len(hostnames))
	for _, host := range hostnames {
		hostPairs = append(hostPairs, fmt.Sprintf("%s:%s@%s:%s", h.username, password, host, port))
	}

	ns := ctx.Namespace(contextNamespace(h.name))
	ns["hostnames"] = hostnames
	ns["hosts"] = strings.Join(hostnames, ",")
	ns["port"] = port
	ns["password"] = password
	ns["vhost"] = h.vhost
	ns["transport_url"] = fmt.Sprintf("rabbit://%s/%s", strings.Join(hostPairs, ","), h.vhost)
}

// stringSlice coerces a negotiated value into a string slice. Negotiators
// hand back loosely typed maps, so both []string and []interface{} appear.
func stringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// dedupe removes duplicate hostnames, keeping a deterministic order.
func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
