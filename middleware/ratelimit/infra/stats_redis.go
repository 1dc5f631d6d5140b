package infra

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"orchestrator-gateway/middleware/ratelimit/domain"
)

// RedisStatsStore agrega as decisões em hashes Redis compartilhados entre
// réplicas. Cada hash tem um campo por Outcome (allowed, denied, fail_open):
//
//	<prefix>:total                 cumulativo, sem expiração
//	<prefix>:minute:YYYYMMDDhhmm   série por minuto, expira em ttl
//	<prefix>:route                 campos "<METHOD> <route>:<outcome>"
//	<prefix>:key:<identity>        por cliente (WithStatsTrackKeys), expira em ttl
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix    string
	ttl       time.Duration
	bucket    string // "minute" ou "none"
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hashIncr é um HINCRBY com expiração opcional.
type hashIncr struct {
	key    string
	field  string
	expire bool
}

// Record grava todos os contadores do evento em um único pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil || ev.Outcome == "" {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := string(ev.Outcome)

	incrs := []hashIncr{{key: s.prefix + ":total", field: outcome}}
	if s.bucket == "minute" {
		incrs = append(incrs, hashIncr{
			key:    s.prefix + ":minute:" + at.UTC().Format("200601021504"),
			field:  outcome,
			expire: true,
		})
	}
	if rf := routeField(ev.Method, ev.Route); rf != "" {
		incrs = append(incrs, hashIncr{key: s.prefix + ":route", field: rf + ":" + outcome})
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		incrs = append(incrs, hashIncr{key: s.prefix + ":key:" + k, field: outcome, expire: true})
	}

	pipe := s.rdb.Pipeline()
	for _, in := range incrs {
		pipe.HIncrBy(ctx, in.key, in.field, 1)
		if in.expire && s.ttl > 0 {
			pipe.Expire(ctx, in.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// routeField monta "<METHOD> <route>"; vazio quando não há rota nem método.
func routeField(method, route string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(route))
}
