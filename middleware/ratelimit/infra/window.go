package infra

import (
	"context"
	"sync"
	"time"

	"orchestrator-gateway/middleware/ratelimit/domain"
)

// WindowStore é o rate limit de janela fixa em memória, por chave.
//
// A janela começa na primeira admissão e dura Window; expirada, a contagem
// recomeça. Cada bucket tem o próprio mutex, então o teto é exato sob
// concorrência sem serializar chaves diferentes.
type WindowStore struct {
	policy       domain.Policy
	cleanupEvery time.Duration

	mu      sync.Mutex
	buckets map[string]*windowBucket
}

type windowBucket struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	// evicted indica que o janitor removeu o bucket do mapa; quem ainda
	// segura o ponteiro precisa buscar de novo.
	evicted bool
}

type WindowOption func(*WindowStore)

// WithWindowCleanupEvery define o intervalo do janitor (padrão: a própria janela).
func WithWindowCleanupEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

func NewWindowStore(limit int, window time.Duration, opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		policy:       domain.Policy{Limit: limit, Window: window},
		cleanupEvery: window,
		buckets:      make(map[string]*windowBucket),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) Policy() domain.Policy       { return s.policy }
func (s *WindowStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Admit implementa domain.LimiterStore.
func (s *WindowStore) Admit(_ context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	for {
		b := s.bucket(string(key))

		b.mu.Lock()
		if b.evicted {
			b.mu.Unlock()
			continue
		}
		dec := s.admitLocked(b, now)
		b.mu.Unlock()
		return dec, nil
	}
}

func (s *WindowStore) admitLocked(b *windowBucket, now time.Time) domain.Decision {
	limit, window := s.policy.Limit, s.policy.Window

	if b.windowStart.IsZero() || !now.Before(b.windowStart.Add(window)) {
		b.windowStart = now
		b.count = 0
	}
	resetAt := b.windowStart.Add(window)

	if b.count >= limit {
		return domain.Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	b.count++
	return domain.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - b.count,
		ResetAt:   resetAt,
	}
}

func (s *WindowStore) bucket(key string) *windowBucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &windowBucket{}
		s.buckets[key] = b
	}
	return b
}

// Sweep remove os buckets cuja janela já expirou em now e devolve quantos
// foram removidos. Um bucket expirado recomeçaria do zero de qualquer forma,
// então removê-lo não muda nenhuma decisão.
func (s *WindowStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, b := range s.buckets {
		b.mu.Lock()
		if !b.windowStart.IsZero() && !now.Before(b.windowStart.Add(s.policy.Window)) {
			b.evicted = true
			delete(s.buckets, k)
			removed++
		}
		b.mu.Unlock()
	}
	return removed
}

// Len devolve o número de buckets vivos.
func (s *WindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
