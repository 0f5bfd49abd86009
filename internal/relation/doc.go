// Package relation implements the dependency handlers of the reconciliation
// engine, one per relation the managed service can join: message queue
// (amqp), a private database, a shared database, ingress, identity service
// and the peer group.
//
// Every handler follows the same uniform contract (Handler): it wraps a
// narrow core.RelationNegotiator, exposes Ready as a pure query of the
// negotiated state, contributes its values into a namespaced render context,
// and re-enters the engine through the callback it was constructed with
// whenever its own state changes.
//
// Handlers live in a Registry, an ordered set enforcing the manifest
// invariants: at most one handler per relation name, and no handler for a
// name the service manifest does not declare. Rejected registrations are
// logged no-ops.
package relation
