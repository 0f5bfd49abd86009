package relation

import (
	"sunbeam/pkg/logging"
)

// Manifest answers whether a relation name is declared for the service.
type Manifest interface {
	HasRelation(name string) bool
}

// Registry is the ordered set of relation handlers for one service. It is
// built once at engine construction. Registration enforces the manifest and
// at-most-one-handler-per-relation invariants: violating registrations are
// logged and skipped, never fatal.
type Registry struct {
	manifest Manifest
	handlers []Handler
}

// NewRegistry creates an empty registry bound to the service manifest.
func NewRegistry(manifest Manifest) *Registry {
	return &Registry{manifest: manifest}
}

// CanRegister reports whether a handler for the relation name would be
// accepted: the name must be declared in the manifest and not yet handled.
func (r *Registry) CanRegister(name string) bool {
	if !r.manifest.HasRelation(name) {
		logging.Debug("RelationRegistry",
			"Cannot add handler for relation %s, relation not present in service manifest", name)
		return false
	}
	for _, h := range r.handlers {
		if h.Name() == name {
			logging.Debug("RelationRegistry",
				"Cannot add handler for relation %s, handler already present", name)
			return false
		}
	}
	return true
}

// Register appends the handler if its relation is registrable. Rejected
// registrations are a no-op.
func (r *Registry) Register(h Handler) {
	if !r.CanRegister(h.Name()) {
		return
	}
	r.handlers = append(r.handlers, h)
}

// Handlers returns the handlers in registration order.
func (r *Registry) Handlers() []Handler {
	return r.handlers
}

// Get returns the handler for the relation name, if registered.
func (r *Registry) Get(name string) (Handler, bool) {
	for _, h := range r.handlers {
		if h.Name() == name {
			return h, true
		}
	}
	return nil, false
}

// AllReady reports whether every registered handler is ready. The first
// incomplete relation is logged at info level, matching the engine's
// soft-gate semantics.
func (r *Registry) AllReady() bool {
	for _, h := range r.handlers {
		if !h.Ready() {
			logging.Info("RelationRegistry", "Relation %s incomplete", h.Name())
			return false
		}
	}
	return true
}
