package infra

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type countingSweeper struct {
	every time.Duration
	calls atomic.Int64
}

func (c *countingSweeper) Sweep(time.Time) int {
	c.calls.Add(1)
	return 2
}

func (c *countingSweeper) CleanupEvery() time.Duration { return c.every }

func TestRunJanitor_SweepsUntilCancelled(t *testing.T) {
	sw := &countingSweeper{every: 2 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	var removed atomic.Int64
	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, sw, func(n int) { removed.Add(int64(n)) })
		close(done)
	}()

	deadline := time.After(time.Second)
	for sw.calls.Load() < 3 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("janitor did not sweep in time")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not stop after cancel")
	}
	if removed.Load() < 6 {
		t.Fatalf("expected onSweep to receive removed counts, got %d", removed.Load())
	}
}

func TestRunJanitor_DisabledWaitsForCancel(t *testing.T) {
	sw := &countingSweeper{every: 0}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunJanitor(ctx, sw, nil)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("janitor did not return")
	}
	if sw.calls.Load() != 0 {
		t.Fatalf("expected no sweeps when disabled")
	}
}
