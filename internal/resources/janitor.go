package resources

import (
	"context"
	"log/slog"

	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/middleware/ratelimit/infra"
)

// Janitor roda a limpeza periódica dos buckets do rate limit em memória.
type Janitor struct {
	sweeper infra.Sweeper
	log     *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewJanitor(s infra.Sweeper, log *slog.Logger) *Janitor {
	if log == nil {
		log = logger.Discard()
	}
	return &Janitor{sweeper: s, log: log}
}

func (j *Janitor) Name() string { return "ratelimit-janitor" }

func (j *Janitor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.cancel = cancel
	j.done = make(chan struct{})

	go func() {
		defer close(j.done)
		infra.RunJanitor(runCtx, j.sweeper, func(removed int) {
			if removed > 0 {
				j.log.Debug("evicted idle rate limit buckets", "count", removed)
			}
		})
	}()
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	if j.cancel == nil {
		return nil
	}
	j.cancel()
	j.cancel = nil

	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
