package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := newQueue(filepath.Join(t.TempDir(), "steps.db"))
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("step channel closed")
		}
		return string(ev)
	case <-time.After(time.Second):
		t.Fatal("no step received")
	}
	return ""
}

func TestQueueReplaysAndFollows(t *testing.T) {
	q := newTestQueue(t)
	for step := int64(1); step <= 3; step++ {
		if err := q.PushStep(step, []byte(fmt.Sprintf("step %d", step))); err != nil {
			t.Fatalf("push: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	steps := q.Steps(ctx, 1)

	if got := receive(t, steps); got != "step 2" {
		t.Fatalf("expected step 2, got %q", got)
	}
	if got := receive(t, steps); got != "step 3" {
		t.Fatalf("expected step 3, got %q", got)
	}

	q.PushStep(4, []byte("step 4"))
	if got := receive(t, steps); got != "step 4" {
		t.Fatalf("expected step 4, got %q", got)
	}
}

func TestQueueStepsStopsOnCancel(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	steps := q.Steps(ctx, 0)
	cancel()

	select {
	case _, ok := <-steps:
		if ok {
			t.Fatal("expected closed channel, got an event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop after cancel")
	}
}

func TestQueuePrunesOldSteps(t *testing.T) {
	q := newTestQueue(t)
	for step := int64(1); step <= keepSteps+5; step++ {
		if err := q.PushStep(step, []byte("x")); err != nil {
			t.Fatalf("push %d: %v", step, err)
		}
	}

	if _, err := q.getStep(5); !errors.Is(err, errStepMissing) {
		t.Fatalf("expected step 5 to be pruned, got %v", err)
	}
	if _, err := q.getStep(6); err != nil {
		t.Fatalf("expected step 6 to be kept, got %v", err)
	}
}

func TestQueueRestoresMaxStep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.db")
	q, err := newQueue(path)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	q.PushStep(11, []byte("a"))
	q.PushStep(12, []byte("b"))
	q.Close()

	q, err = newQueue(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer q.Close()

	if got := q.MaxStep(); got != 12 {
		t.Fatalf("expected max step 12, got %d", got)
	}
}

func TestQueueRewindDropsHistory(t *testing.T) {
	q := newTestQueue(t)
	for step := int64(1); step <= 5; step++ {
		q.PushStep(step, []byte(fmt.Sprintf("old %d", step)))
	}

	if err := q.Rewind(0); err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if got := q.MaxStep(); got != 0 {
		t.Fatalf("expected max step 0, got %d", got)
	}
	if _, err := q.getStep(3); !errors.Is(err, errStepMissing) {
		t.Fatalf("expected step 3 to be gone, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	steps := q.Steps(ctx, 0)

	q.PushStep(1, []byte("new 1"))
	if got := receive(t, steps); got != "new 1" {
		t.Fatalf("expected new 1, got %q", got)
	}
}
