package resources

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDep struct {
	name string
	err  error
}

func (d fakeDep) Name() string                 { return d.name }
func (d fakeDep) Health(context.Context) error { return d.err }

type jobRecorder struct {
	mu      sync.Mutex
	results map[string]int
}

func (r *jobRecorder) ObserveJob(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.results == nil {
		r.results = map[string]int{}
	}
	r.results[result]++
}

func (r *jobRecorder) count(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[result]
}

func startPool(t *testing.T, cfg WorkerPoolConfig, obs JobObserver) *WorkerPool {
	t.Helper()
	p := NewWorkerPool(cfg, nil, obs)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(context.Background()) })
	return p
}

func wait(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not finish in time")
		return nil
	}
}

func TestWorkerPool_RunsJob(t *testing.T) {
	obs := &jobRecorder{}
	p := startPool(t, WorkerPoolConfig{Workers: 2, QueueSize: 4}, obs)

	var ran atomic.Bool
	ch, err := p.Submit(context.Background(), Job{ID: "j1", Run: func(context.Context) error {
		ran.Store(true)
		return nil
	}})
	require.NoError(t, err)
	require.NoError(t, wait(t, ch))
	assert.True(t, ran.Load())
	assert.Equal(t, 1, obs.count("succeeded"))
}

func TestWorkerPool_RetriesUntilSuccess(t *testing.T) {
	p := startPool(t, WorkerPoolConfig{Workers: 1, MaxRetries: 3, RetryDelay: time.Millisecond}, nil)

	var attempts atomic.Int32
	ch, err := p.Submit(context.Background(), Job{ID: "flaky", Run: func(context.Context) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	require.NoError(t, err)
	require.NoError(t, wait(t, ch))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWorkerPool_RetriesExhausted(t *testing.T) {
	obs := &jobRecorder{}
	p := startPool(t, WorkerPoolConfig{Workers: 1, MaxRetries: 2}, obs)

	boom := errors.New("agent unavailable")
	var attempts atomic.Int32
	ch, err := p.Submit(context.Background(), Job{ID: "bad", Run: func(context.Context) error {
		attempts.Add(1)
		return boom
	}})
	require.NoError(t, err)
	assert.ErrorIs(t, wait(t, ch), boom)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, 1, obs.count("failed"))
}

func TestWorkerPool_JobTimeout(t *testing.T) {
	p := startPool(t, WorkerPoolConfig{Workers: 1, JobTimeout: 10 * time.Millisecond}, nil)

	ch, err := p.Submit(context.Background(), Job{ID: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, err)
	assert.ErrorIs(t, wait(t, ch), context.DeadlineExceeded)
}

func TestWorkerPool_PanicBecomesError(t *testing.T) {
	p := startPool(t, WorkerPoolConfig{Workers: 1}, nil)

	ch, err := p.Submit(context.Background(), Job{ID: "p", Run: func(context.Context) error { panic("nil agent") }})
	require.NoError(t, err)
	err = wait(t, ch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked: nil agent")
}

func TestWorkerPool_QueueFull(t *testing.T) {
	obs := &jobRecorder{}
	p := startPool(t, WorkerPoolConfig{Workers: 1, QueueSize: 1, SubmitTimeout: 10 * time.Millisecond}, obs)

	release := make(chan struct{})
	defer close(release)
	block := Job{ID: "block", Run: func(context.Context) error {
		<-release
		return nil
	}}

	_, err := p.Submit(context.Background(), block)
	require.NoError(t, err)
	_, err = p.Submit(context.Background(), block)
	require.NoError(t, err)

	_, err = p.Submit(context.Background(), block)
	assert.ErrorIs(t, err, ErrPoolBusy)
	assert.Equal(t, 1, obs.count("rejected"))
}

func TestWorkerPool_StopDrainsQueuedJobs(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{Workers: 1, QueueSize: 10}, nil, nil)
	require.NoError(t, p.Start(context.Background()))

	var done atomic.Int32
	for i := 0; i < 5; i++ {
		_, err := p.Submit(context.Background(), Job{ID: "j", Run: func(context.Context) error {
			time.Sleep(time.Millisecond)
			done.Add(1)
			return nil
		}})
		require.NoError(t, err)
	}

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(5), done.Load())

	_, err := p.Submit(context.Background(), Job{ID: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.ErrorIs(t, p.Health(context.Background()), ErrPoolClosed)
	assert.NoError(t, p.Stop(context.Background()))
}

func TestWorkerPool_StopDeadlineCancelsInFlight(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{Workers: 1}, nil, nil)
	require.NoError(t, p.Start(context.Background()))

	started := make(chan struct{})
	ch, err := p.Submit(context.Background(), Job{ID: "long", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = p.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, wait(t, ch), context.Canceled)
}

func TestWorkerPool_StartChecksDependencies(t *testing.T) {
	p := NewWorkerPool(WorkerPoolConfig{}, nil, nil,
		fakeDep{name: "store"},
		fakeDep{name: "cache", err: errors.New("connection refused")},
	)

	err := p.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cache not ready")

	_, err = p.Submit(context.Background(), Job{ID: "x", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestWorkerPool_RejectsJobWithoutRun(t *testing.T) {
	p := startPool(t, WorkerPoolConfig{}, nil)
	_, err := p.Submit(context.Background(), Job{ID: "empty"})
	assert.Error(t, err)
	assert.Equal(t, "workers", p.Name())
}
