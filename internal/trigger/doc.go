// Package trigger is the event-delivery substrate around the engine: a
// dispatcher that serializes reconciliation passes (the engine assumes
// non-overlapping dispatch and takes no locks of its own) and filesystem
// watchers that re-trigger reconciliation when the deployment configuration
// or a relation's negotiated data changes. The engine itself never decides when to run; it is woken up from
// here.
package trigger
