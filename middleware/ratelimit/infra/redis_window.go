package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"orchestrator-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// windowScript faz o check-and-increment de forma atômica no servidor.
//
// KEYS[1] = chave do bucket; ARGV[1] = limite; ARGV[2] = janela em ms.
// Retorna {admitido (0/1), contagem, pttl}. Rejeição não incrementa.
var windowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, current, ttl}
end
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, n, ttl}
`)

// RedisWindowStore é a janela fixa compartilhada entre réplicas. A chave do
// bucket expira junto com a janela, então não precisa de janitor.
type RedisWindowStore struct {
	rdb    redis.Scripter
	policy domain.Policy
	prefix string
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb redis.Scripter, limit int, window time.Duration, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		policy: domain.Policy{Limit: limit, Window: window},
		prefix: "ratelimit:window",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Policy() domain.Policy { return s.policy }

// Admit implementa domain.LimiterStore.
func (s *RedisWindowStore) Admit(ctx context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	windowMs := s.policy.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	res, err := windowScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, s.policy.Limit, windowMs).Int64Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("ratelimit: redis admit: %w", err)
	}
	if len(res) != 3 {
		return domain.Decision{}, fmt.Errorf("ratelimit: redis admit: unexpected reply %v", res)
	}

	allowed, count, ttl := res[0] == 1, int(res[1]), time.Duration(res[2])*time.Millisecond
	resetAt := now.Add(ttl)
	limit := s.policy.Limit

	if !allowed {
		return domain.Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: ttl,
		}, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return domain.Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
