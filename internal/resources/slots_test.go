package resources

import (
	"context"
	"testing"
	"time"
)

type blockingPool struct{}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

type immediatePool struct {
	acquired int
}

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	return func() {}, true
}

func TestAcquireWithin_AllowsWhenNoPool(t *testing.T) {
	release, ok := acquireWithin(context.Background(), nil, 0)
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
}

func TestAcquireWithin_UsesTimeout(t *testing.T) {
	_, ok := acquireWithin(context.Background(), &blockingPool{}, 10*time.Millisecond)
	if ok {
		t.Fatalf("expected timeout and ok=false")
	}
}

func TestAcquireWithin_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}

	_, ok := acquireWithin(context.Background(), pool, 0)
	if !ok {
		t.Fatalf("expected ok")
	}
	if pool.acquired != 1 {
		t.Fatalf("expected pool Acquire to be called once, got %d", pool.acquired)
	}
}

func TestChanPool_CapacityAndRelease(t *testing.T) {
	pool := NewChanPool(1)

	release, ok := pool.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, ok := pool.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to time out")
	}

	release()
	release2, ok := pool.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire after release to succeed")
	}
	release2()
}

func TestChanPool_FreeSlotWinsOverCancelledContext(t *testing.T) {
	pool := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := pool.Acquire(ctx); !ok {
		t.Fatalf("expected free slot to be acquired even with cancelled ctx")
	}
}
