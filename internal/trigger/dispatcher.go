package trigger

import (
	"context"
	"sync"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// triggerKey deduplicates queued triggers: a pending pass for the same kind
// and source absorbs later identical triggers.
func triggerKey(t core.Trigger) string {
	return string(t.Kind) + "/" + t.Source
}

// Dispatcher owns the serialized execution of reconciliation passes. All
// notification paths (the filesystem watcher, relation change events,
// workload readiness events) enqueue triggers here; a single worker drains
// the queue, guaranteeing that no two passes ever overlap.
type Dispatcher struct {
	mu           sync.Mutex
	cond         *sync.Cond
	queue        []core.Trigger
	queued       map[string]bool
	reconciling  bool
	shuttingDown bool

	reconcile func(core.Trigger) error
}

// NewDispatcher creates a dispatcher driving the given reconcile entry
// point.
func NewDispatcher(reconcile func(core.Trigger) error) *Dispatcher {
	d := &Dispatcher{
		queued:    make(map[string]bool),
		reconcile: reconcile,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Trigger enqueues a reconciliation pass. Duplicate triggers already queued
// are dropped; triggers arriving while a pass runs are queued behind it.
func (d *Dispatcher) Trigger(t core.Trigger) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.shuttingDown {
		return
	}

	key := triggerKey(t)
	if d.queued[key] {
		return
	}
	d.queued[key] = true
	d.queue = append(d.queue, t)
	d.cond.Signal()
}

// Run drains the queue until the context is cancelled or Shutdown is
// called. It must be the only goroutine executing passes.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer stop()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.shuttingDown && ctx.Err() == nil {
			d.cond.Wait()
		}
		if d.shuttingDown || ctx.Err() != nil {
			d.mu.Unlock()
			return ctx.Err()
		}

		t := d.queue[0]
		d.queue = d.queue[1:]
		delete(d.queued, triggerKey(t))
		d.reconciling = true
		d.mu.Unlock()

		if err := d.reconcile(t); err != nil {
			logging.Error("Dispatcher", err, "Reconciliation pass failed (trigger: %s)", t.Kind)
		}

		d.mu.Lock()
		d.reconciling = false
		d.mu.Unlock()
	}
}

// Len returns the number of queued triggers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Shutdown stops the dispatcher; queued triggers are discarded.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shuttingDown = true
	d.cond.Broadcast()
}
