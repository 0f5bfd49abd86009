package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sunbeam/internal/core"
)

func manualTrigger(source string) core.Trigger {
	return core.Trigger{Kind: core.TriggerManual, Source: source, Timestamp: time.Now()}
}

func TestDispatcherRunsQueuedTriggers(t *testing.T) {
	done := make(chan core.Trigger, 4)
	d := NewDispatcher(func(tr core.Trigger) error {
		done <- tr
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	d.Trigger(manualTrigger("a"))
	d.Trigger(manualTrigger("b"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case tr := <-done:
			got[tr.Source] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for passes")
		}
	}
	if !got["a"] || !got["b"] {
		t.Errorf("expected both triggers to run, got %v", got)
	}
}

func TestDispatcherDeduplicatesQueuedTriggers(t *testing.T) {
	block := make(chan struct{})
	var passes int32
	d := NewDispatcher(func(core.Trigger) error {
		atomic.AddInt32(&passes, 1)
		<-block
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	// First trigger starts a pass and blocks; identical triggers queued
	// behind it collapse to one.
	d.Trigger(manualTrigger("config"))
	for atomic.LoadInt32(&passes) == 0 {
		time.Sleep(time.Millisecond)
	}
	d.Trigger(manualTrigger("config"))
	d.Trigger(manualTrigger("config"))
	d.Trigger(manualTrigger("config"))

	if got := d.Len(); got != 1 {
		t.Errorf("expected 1 queued trigger after dedup, got %d", got)
	}

	close(block)
	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&passes) < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected a second pass, got %d", atomic.LoadInt32(&passes))
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestDispatcherSerializesPasses(t *testing.T) {
	var mu sync.Mutex
	var active, maxActive int
	done := make(chan struct{}, 8)

	d := NewDispatcher(func(core.Trigger) error {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	sources := []string{"a", "b", "c", "d"}
	for _, s := range sources {
		d.Trigger(manualTrigger(s))
	}
	for range sources {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for passes")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("passes overlapped: max concurrency %d", maxActive)
	}
}

func TestDispatcherShutdownDropsQueue(t *testing.T) {
	d := NewDispatcher(func(core.Trigger) error {
		t.Error("no pass must run after shutdown")
		return nil
	})

	d.Shutdown()
	d.Trigger(manualTrigger("late"))

	if got := d.Len(); got != 0 {
		t.Errorf("expected empty queue after shutdown, got %d", got)
	}

	ctx := context.Background()
	errDone := make(chan error, 1)
	go func() { errDone <- d.Run(ctx) }()

	select {
	case <-errDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestDispatcherStopsOnContextCancel(t *testing.T) {
	d := NewDispatcher(func(core.Trigger) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	errDone := make(chan error, 1)
	go func() { errDone <- d.Run(ctx) }()

	cancel()
	select {
	case err := <-errDone:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRelationFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/var/lib/relations/amqp.yaml", "amqp"},
		{"/var/lib/relations/glance-db.yml", "glance-db"},
		{"/var/lib/relations/amqp.request.yaml", ""},
		{"/var/lib/relations/notes.txt", ""},
		{"/var/lib/relations/.amqp.yaml.swp", ""},
	}
	for _, tt := range tests {
		if got := relationFromPath(tt.path); got != tt.want {
			t.Errorf("relationFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
