// Package server monta a superfície HTTP: health, métricas, grupos /api/v1
// e o pipeline de middlewares na frente de tudo.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"orchestrator-gateway/internal/lifecycle"
	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/internal/routers"
	"orchestrator-gateway/middleware/pipeline"
)

const (
	HealthPath  = "/health"
	ReadyPath   = "/health/ready"
	MetricsPath = "/metrics"
	InfoPath    = "/info"
)

// Readiness é quem responde pelo estado dos recursos (o lifecycle.Manager).
type Readiness interface {
	Healthy(ctx context.Context) []lifecycle.ResourceStatus
}

type Options struct {
	Addr string

	AppName     string
	Version     string
	Environment string
	// ExposeInfo habilita GET /info (fora de produção).
	ExposeInfo bool

	Pipeline  *pipeline.Pipeline
	Gatherer  prometheus.Gatherer
	Readiness Readiness
	Upstreams map[string]string

	// RequestTimeout vira deadline no context de cada request; 0 = sem limite.
	RequestTimeout time.Duration
	// Tracing envolve o handler com otelhttp.
	Tracing bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	Logger *slog.Logger
}

type Server struct {
	opts    Options
	log     *slog.Logger
	handler http.Handler
	srv     *http.Server

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
	stopErr  error
}

func New(opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Pipeline == nil {
		opts.Pipeline = pipeline.New(pipeline.Options{})
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.ReadHeaderTimeout <= 0 {
		opts.ReadHeaderTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 90 * time.Second
	}

	s := &Server{opts: opts, log: opts.Logger}

	r := chi.NewRouter()
	if opts.RequestTimeout > 0 {
		r.Use(timeout(opts.RequestTimeout))
	}
	r.Get(HealthPath, s.health)
	r.Get(ReadyPath, s.ready)
	r.Method(http.MethodGet, MetricsPath, promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	if opts.ExposeInfo {
		r.Get(InfoPath, s.info)
	}
	if err := routers.Mount(r, opts.Upstreams, opts.Logger); err != nil {
		return nil, err
	}

	h := opts.Pipeline.Then(r)
	if opts.Tracing {
		// fora do pipeline, para o RequestContext já nascer com trace id
		h = otelhttp.NewHandler(h, opts.AppName)
	}
	s.handler = h

	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler { return s.handler }

// Addr devolve o endereço efetivo depois de Start (útil com porta 0).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start abre o listener e atende até Stop. Devolve nil no encerramento
// normal.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.InfoContext(ctx, "server listening", logger.KeyAddr, ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop para de aceitar conexões e espera os requests em andamento até o
// deadline de ctx. Chamadas repetidas devolvem o resultado da primeira.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.srv.Shutdown(ctx)
		if s.stopErr != nil {
			_ = s.srv.Close()
		}
	})
	return s.stopErr
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.opts.AppName,
		"version": s.opts.Version,
	})
}

type readyBody struct {
	Status    string            `json:"status"`
	Resources map[string]string `json:"resources"`
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	body := readyBody{Status: "ready", Resources: map[string]string{}}
	status := http.StatusOK

	if s.opts.Readiness != nil {
		for _, st := range s.opts.Readiness.Healthy(r.Context()) {
			if st.Err != nil {
				body.Resources[st.Name] = st.Err.Error()
				body.Status = "not ready"
				status = http.StatusServiceUnavailable
				continue
			}
			body.Resources[st.Name] = "ok"
		}
	}
	writeJSON(w, status, body)
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        s.opts.AppName,
		"version":     s.opts.Version,
		"environment": s.opts.Environment,
		"stages":      s.opts.Pipeline.Names(),
	})
}

// timeout aplica um deadline cooperativo: handlers e proxies observam
// ctx.Done().
func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
