// Package metrics expõe o Recorder Prometheus do orquestrador e o estágio de
// métricas HTTP do pipeline.
//
// Cada processo cria o próprio registry; o endpoint /metrics serve um snapshot
// dele (pull). Labels de rota são agrupados por prefixo conhecido para manter a
// cardinalidade limitada.
package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"orchestrator-gateway/middleware/pipeline"
)

const namespace = "orchestrator"

// OtherRoute é o label usado para paths fora dos prefixos conhecidos.
const OtherRoute = "other"

// Recorder concentra os coletores do processo.
type Recorder struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	rateLimit   *prometheus.CounterVec
	resourceUp  *prometheus.GaugeVec
	jobs        *prometheus.CounterVec
	jobDuration prometheus.Histogram

	routes []string
}

// NewRegistry cria um registry com os coletores de processo e de runtime Go.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewRecorder registra os coletores em reg. routes são os prefixos usados como
// label de rota (o mais longo que casar vence).
func NewRecorder(reg prometheus.Registerer, routes ...string) *Recorder {
	sorted := append([]string(nil), routes...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	return &Recorder{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by method, route group and status",
			},
			[]string{"method", "route", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets: []float64{
					0.005, // 5ms
					0.01,
					0.025,
					0.05,
					0.1,
					0.25,
					0.5,
					1,
					2.5,
					5,
					10, // agentes longos
				},
			},
			[]string{"method", "route"},
		),
		inFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),
		rateLimit: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limiter admission decisions by outcome",
			},
			[]string{"outcome"}, // allowed, denied, error
		),
		resourceUp: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_up",
				Help:      "Whether a managed resource is started (1) or not (0)",
			},
			[]string{"resource"},
		),
		jobs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_jobs_total",
				Help:      "Agent jobs processed by the worker pool by result",
			},
			[]string{"result"}, // succeeded, failed, rejected
		),
		jobDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_job_duration_seconds",
				Help:      "Duration of agent jobs including retries",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		routes: sorted,
	}
}

// RouteLabel reduz path ao prefixo conhecido mais longo, ou OtherRoute.
func (m *Recorder) RouteLabel(path string) string {
	for _, prefix := range m.routes {
		if path == prefix || strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return prefix
		}
	}
	return OtherRoute
}

// ObserveRequest registra um request concluído.
func (m *Recorder) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	route := m.RouteLabel(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveRateLimit registra uma decisão do rate limiter. err != nil conta
// como "error" (o request foi admitido em fail-open).
func (m *Recorder) ObserveRateLimit(allowed bool, err error) {
	if m == nil {
		return
	}
	outcome := "denied"
	switch {
	case err != nil:
		outcome = "error"
	case allowed:
		outcome = "allowed"
	}
	m.rateLimit.WithLabelValues(outcome).Inc()
}

// SetResourceUp publica o estado de um recurso gerenciado.
func (m *Recorder) SetResourceUp(resource string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.resourceUp.WithLabelValues(resource).Set(v)
}

// ObserveJob registra o resultado de um job de agente. Chamado pelo
// WorkerPool a cada job submetido pelos módulos de agentes.
func (m *Recorder) ObserveJob(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(result).Inc()
	if elapsed > 0 {
		m.jobDuration.Observe(elapsed.Seconds())
	}
}

// Stage é o estágio de métricas HTTP do pipeline.
type Stage struct {
	rec *Recorder
}

func NewStage(rec *Recorder) *Stage { return &Stage{rec: rec} }

func (s *Stage) Name() string { return "metrics" }

func (s *Stage) Intercept(w http.ResponseWriter, r *http.Request, next http.Handler) {
	start := time.Now()
	s.rec.inFlight.Inc()
	defer s.rec.inFlight.Dec()

	next.ServeHTTP(w, r)

	s.rec.ObserveRequest(r.Method, r.URL.Path, pipeline.Status(w), time.Since(start))
}
