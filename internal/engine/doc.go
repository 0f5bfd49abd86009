// Package engine implements the reconciliation engine: the decision
// procedure that determines, from the readiness of every relation and every
// workload, whether the managed service should be (re)configured, and the
// one-time bootstrap transition.
//
// The engine has a single entry point, Reconcile, invoked by the event
// substrate and by every handler's change callback. A pass runs two soft
// gates (relations ready, workload services ready) around an unconditional
// configuration push, then bootstraps at most once and marks the service
// active. Gate failures mean "not yet", never an error: convergence relies
// entirely on the substrate re-invoking Reconcile when any input changes.
// Passes are dispatched one at a time, so no internal locking is needed
// beyond what the handlers do for their own state.
//
// Engine variants are explicit composition rather than inheritance: New
// builds the base relation set (amqp, private database, shared database,
// ingress, peers, manifest permitting); NewAPI prepends an identity-service
// handler, swaps in a WSGI workload handler and adds the wsgi config
// context.
package engine
