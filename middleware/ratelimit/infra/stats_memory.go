package infra

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"orchestrator-gateway/middleware/ratelimit/domain"
)

// Counters agrega decisões por Outcome.
type Counters struct {
	Allowed  int64
	Denied   int64
	FailOpen int64
}

func (c *Counters) count(o domain.Outcome) {
	switch o {
	case domain.OutcomeAllowed:
		c.Allowed++
	case domain.OutcomeDenied:
		c.Denied++
	case domain.OutcomeFailOpen:
		c.FailOpen++
	}
}

// MemoryStatsStore mantém os agregados do processo em memória (sem
// compartilhamento entre réplicas). Com WithTrackKeys, chaves novas além de
// maxKeys são descartadas; as já conhecidas continuam contando.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
	byKey   map[string]Counters

	trackKeys bool
	maxKeys   int
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

// WithMaxTrackedKeys limita o mapa por chave. n <= 0 = sem limite.
func WithMaxTrackedKeys(n int) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.maxKeys = n }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: map[string]Counters{},
		byKey:   map[string]Counters{},
		maxKeys: 10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := routeField(ev.Method, ev.Route)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.count(ev.Outcome)
	if route != "" {
		bump(s.byRoute, route, ev.Outcome)
	}
	if s.trackKeys && ev.Key != "" {
		k := string(ev.Key)
		if _, known := s.byKey[k]; known || s.maxKeys <= 0 || len(s.byKey) < s.maxKeys {
			bump(s.byKey, k, ev.Outcome)
		}
	}
	return nil
}

func bump(m map[string]Counters, k string, o domain.Outcome) {
	c := m[k]
	c.count(o)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// ByRoute devolve uma cópia indexada por "<METHOD> <route>".
func (s *MemoryStatsStore) ByRoute() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byRoute)
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.byKey)
}

var routeStatsDesc = prometheus.NewDesc(
	"orchestrator_rate_limit_route_decisions_total",
	"Rate limit decisions aggregated by the in-memory stats store, by method, route group and outcome",
	[]string{"method", "route", "outcome"}, nil,
)

// Describe e Collect fazem do store um prometheus.Collector: o agregado por
// rota aparece em /metrics. Contagens por chave ficam de fora (cardinalidade).
func (s *MemoryStatsStore) Describe(ch chan<- *prometheus.Desc) { ch <- routeStatsDesc }

func (s *MemoryStatsStore) Collect(ch chan<- prometheus.Metric) {
	for field, c := range s.ByRoute() {
		method, route, _ := strings.Cut(field, " ")
		for outcome, n := range map[domain.Outcome]int64{
			domain.OutcomeAllowed:  c.Allowed,
			domain.OutcomeDenied:   c.Denied,
			domain.OutcomeFailOpen: c.FailOpen,
		} {
			ch <- prometheus.MustNewConstMetric(routeStatsDesc, prometheus.CounterValue, float64(n), method, route, string(outcome))
		}
	}
}
