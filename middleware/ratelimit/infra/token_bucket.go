package infra

import (
	"context"
	"math"
	"sync"
	"time"

	"orchestrator-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// TokenBucketStore é o algoritmo alternativo baseado em token-bucket
// (x/time/rate) com cache por chave e limpeza de chaves ociosas.
//
// burst = limit e reposição = limit/window: a média de longo prazo coincide
// com a janela fixa, mas sem o pico na virada da janela.
type TokenBucketStore struct {
	mu           sync.Mutex
	entries      map[string]*bucketEntry
	policy       domain.Policy
	rps          rate.Limit
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketOption func(*TokenBucketStore)

func WithIdleTTL(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.cleanupEvery = d }
}

func NewTokenBucketStore(limit int, window time.Duration, opts ...TokenBucketOption) *TokenBucketStore {
	rps := rate.Inf
	if window > 0 {
		rps = rate.Limit(float64(limit) / window.Seconds())
	}
	s := &TokenBucketStore{
		entries:      make(map[string]*bucketEntry),
		policy:       domain.Policy{Limit: limit, Window: window},
		rps:          rps,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenBucketStore) Policy() domain.Policy       { return s.policy }
func (s *TokenBucketStore) RPS() float64                { return float64(s.rps) }
func (s *TokenBucketStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Admit implementa domain.LimiterStore.
func (s *TokenBucketStore) Admit(_ context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	lim := s.limiter(string(key), now)
	limit := s.policy.Limit

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return domain.Decision{Allowed: false, Limit: limit, ResetAt: now, RetryAfter: s.policy.Window}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return domain.Decision{
			Allowed:    false,
			Limit:      limit,
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}, nil
	}

	tokens := lim.TokensAt(now)
	remaining := int(math.Floor(tokens))
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(s.refillTime(float64(limit) - tokens)),
	}, nil
}

// refillTime é o tempo para repor missing tokens.
func (s *TokenBucketStore) refillTime(missing float64) time.Duration {
	if missing <= 0 || s.rps == rate.Inf || s.rps <= 0 {
		return 0
	}
	return time.Duration(missing / float64(s.rps) * float64(time.Second))
}

func (s *TokenBucketStore) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.policy.Limit)
	s.entries[key] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Sweep remove chaves sem uso há mais de idleTTL.
func (s *TokenBucketStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

func (s *TokenBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
