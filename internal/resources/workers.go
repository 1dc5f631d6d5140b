package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"orchestrator-gateway/internal/logger"
)

var (
	// ErrPoolClosed: o pool não está aceitando jobs (não iniciado ou parando).
	ErrPoolClosed = errors.New("worker pool: not accepting jobs")
	// ErrPoolBusy: fila cheia durante todo o tempo de espera.
	ErrPoolBusy = errors.New("worker pool: queue full")
)

// Job é uma unidade de trabalho de agente.
type Job struct {
	ID  string
	Run func(ctx context.Context) error
}

type WorkerPoolConfig struct {
	Workers   int
	QueueSize int
	// JobTimeout limita cada tentativa; 0 = sem limite.
	JobTimeout time.Duration
	MaxRetries int
	RetryDelay time.Duration
	// SubmitTimeout é quanto Submit espera por uma vaga na fila.
	SubmitTimeout time.Duration
	LogJobs       bool
}

// Dependency é um recurso que precisa estar saudável para o pool subir.
type Dependency interface {
	Name() string
	Health(ctx context.Context) error
}

// JobObserver recebe o resultado de cada job (ex.: métricas).
type JobObserver interface {
	ObserveJob(result string, elapsed time.Duration)
}

type queuedJob struct {
	job      Job
	result   chan error
	release  func()
	enqueued time.Time
}

// WorkerPool executa jobs de agentes com um número fixo de workers, fila
// limitada, timeout e retentativas por job.
//
// O núcleo só gerencia o ciclo de vida do pool. Quem submete jobs são os
// módulos de execução de agentes montados sobre o orquestrador, via
// App.Workers().Submit; nenhum handler do núcleo enfileira trabalho.
type WorkerPool struct {
	cfg   WorkerPoolConfig
	log   *slog.Logger
	deps  []Dependency
	obs   JobObserver
	slots SlotPool

	mu     sync.RWMutex
	open   bool
	queue  chan queuedJob
	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewWorkerPool(cfg WorkerPoolConfig, log *slog.Logger, obs JobObserver, deps ...Dependency) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if log == nil {
		log = logger.Discard()
	}
	return &WorkerPool{
		cfg:   cfg,
		log:   log,
		deps:  deps,
		obs:   obs,
		slots: NewChanPool(cfg.Workers + cfg.QueueSize),
	}
}

func (p *WorkerPool) Name() string { return "workers" }

// Start verifica as dependências e sobe os workers.
func (p *WorkerPool) Start(ctx context.Context) error {
	for _, d := range p.deps {
		if err := d.Health(ctx); err != nil {
			return fmt.Errorf("dependency %s not ready: %w", d.Name(), err)
		}
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	g, gctx := errgroup.WithContext(workCtx)
	queue := make(chan queuedJob, p.cfg.Workers+p.cfg.QueueSize)

	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for q := range queue {
				p.execute(gctx, q)
			}
			return nil
		})
	}

	p.mu.Lock()
	p.queue, p.group, p.cancel, p.open = queue, g, cancel, true
	p.mu.Unlock()

	p.log.InfoContext(ctx, "worker pool started",
		logger.KeyWorkers, p.cfg.Workers,
		"queue_size", p.cfg.QueueSize,
	)
	return nil
}

// Submit enfileira job. O canal devolvido recebe o resultado final (após
// retentativas) e é fechado em seguida. É a API pública para os módulos de
// agentes; cada resultado alimenta JobObserver (agent_jobs_total e
// agent_job_duration_seconds).
func (p *WorkerPool) Submit(ctx context.Context, job Job) (<-chan error, error) {
	if job.Run == nil {
		return nil, fmt.Errorf("worker pool: job %q has no Run func", job.ID)
	}

	if p.Health(ctx) != nil {
		return nil, ErrPoolClosed
	}

	release, ok := acquireWithin(ctx, p.slots, p.cfg.SubmitTimeout)
	if !ok {
		if p.obs != nil {
			p.obs.ObserveJob("rejected", 0)
		}
		return nil, ErrPoolBusy
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		release()
		return nil, ErrPoolClosed
	}

	result := make(chan error, 1)
	// nunca bloqueia: a fila tem a mesma capacidade do pool de vagas
	p.queue <- queuedJob{job: job, result: result, release: release, enqueued: time.Now()}
	return result, nil
}

func (p *WorkerPool) execute(ctx context.Context, q queuedJob) {
	defer q.release()
	defer close(q.result)

	start := time.Now()
	var err error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, p.cfg.RetryDelay) {
				err = fmt.Errorf("job %s: %w", q.job.ID, ctx.Err())
				break
			}
		}

		err = p.attempt(ctx, q.job)
		if err == nil {
			break
		}
		if p.cfg.LogJobs && attempt < p.cfg.MaxRetries {
			p.log.WarnContext(ctx, "agent job failed; retrying",
				logger.KeyJobID, q.job.ID,
				logger.KeyAttempt, attempt+1,
				logger.KeyError, err,
			)
		}
	}

	elapsed := time.Since(start)
	if err != nil {
		p.log.ErrorContext(ctx, "agent job failed",
			logger.KeyJobID, q.job.ID,
			logger.KeyDurationMs, elapsed.Milliseconds(),
			logger.KeyError, err,
		)
		if p.obs != nil {
			p.obs.ObserveJob("failed", elapsed)
		}
	} else {
		if p.cfg.LogJobs {
			p.log.InfoContext(ctx, "agent job completed",
				logger.KeyJobID, q.job.ID,
				logger.KeyDurationMs, elapsed.Milliseconds(),
				"queued_ms", start.Sub(q.enqueued).Milliseconds(),
			)
		}
		if p.obs != nil {
			p.obs.ObserveJob("succeeded", elapsed)
		}
	}
	q.result <- err
}

// attempt executa uma tentativa com timeout; panic vira erro.
func (p *WorkerPool) attempt(ctx context.Context, job Job) (err error) {
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.ID, r)
		}
	}()
	return job.Run(ctx)
}

// Stop fecha a fila e espera os jobs pendentes terminarem. Se ctx vencer
// antes, cancela os jobs em andamento e devolve o erro do ctx.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return nil
	}
	p.open = false
	close(p.queue)
	g, cancel := p.group, p.cancel
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		return fmt.Errorf("worker pool: drain interrupted: %w", ctx.Err())
	}
}

// Health falha se o pool não estiver aceitando jobs.
func (p *WorkerPool) Health(context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return ErrPoolClosed
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
