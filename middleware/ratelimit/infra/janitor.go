package infra

import (
	"context"
	"time"
)

// Sweeper é um store que sabe descartar chaves inativas.
type Sweeper interface {
	Sweep(now time.Time) int
	CleanupEvery() time.Duration
}

// RunJanitor chama s.Sweep periodicamente até ctx encerrar. Bloqueia.
// onSweep (opcional) recebe a quantidade removida em cada rodada.
func RunJanitor(ctx context.Context, s Sweeper, onSweep func(removed int)) {
	every := s.CleanupEvery()
	if every <= 0 {
		<-ctx.Done()
		return
	}

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n := s.Sweep(now)
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}
