package relation

import (
	"errors"
	"strings"

	"sunbeam/internal/core"
)

// ErrNotLeader is returned when a non-leader instance attempts to write
// shared peer data.
var ErrNotLeader = errors.New("peer data writes require leadership")

// Callback re-enters the reconciliation engine. Every handler receives the
// engine's Reconcile entry point at construction and invokes it when its own
// negotiated state changes.
type Callback func(trigger core.Trigger)

// Handler manages one relation on behalf of the service. A handler wraps a
// narrow negotiator, answers readiness queries and contributes negotiated
// values to the render context. Ready must be a pure query; Contribute must
// only write namespaced entries into the given context.
type Handler interface {
	// Name returns the relation name this handler is wired to.
	Name() string

	// Ready reports whether the relation is ready for use.
	Ready() bool

	// Contribute writes this relation's negotiated values into ctx.
	Contribute(ctx core.RenderContext)

	// OnChanged is invoked by the event substrate when the relation's
	// negotiated state changes. Handlers react (for example by requesting
	// access) and then re-enter the engine through their callback.
	OnChanged(trigger core.Trigger)
}

// contextNamespace maps a relation name to its render-context namespace.
// Dashes become underscores so templates can address the namespace as a
// field, e.g. {{ .shared_db.database }}.
func contextNamespace(relationName string) string {
	return strings.ReplaceAll(relationName, "-", "_")
}
