// Package app liga as peças do orquestrador: recursos gerenciados pelo
// lifecycle.Manager, pipeline de middlewares e servidor HTTP. Toda
// dependência é criada aqui e injetada explicitamente.
package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"orchestrator-gateway/internal/config"
	"orchestrator-gateway/internal/lifecycle"
	"orchestrator-gateway/internal/logger"
	"orchestrator-gateway/internal/resources"
	"orchestrator-gateway/internal/routers"
	"orchestrator-gateway/internal/server"
	"orchestrator-gateway/middleware/cors"
	"orchestrator-gateway/middleware/faults"
	"orchestrator-gateway/middleware/hostguard"
	"orchestrator-gateway/middleware/metrics"
	"orchestrator-gateway/middleware/pipeline"
	"orchestrator-gateway/middleware/ratelimit"
	"orchestrator-gateway/middleware/ratelimit/domain"
	"orchestrator-gateway/middleware/ratelimit/infra"
	"orchestrator-gateway/middleware/requestlog"
)

// App é o processo montado, pronto para Run.
type App struct {
	cfg *config.Config
	log *slog.Logger

	registry *prometheus.Registry
	recorder *metrics.Recorder
	pipeline *pipeline.Pipeline
	manager  *lifecycle.Manager
	server   *server.Server

	cache   *resources.Cache
	workers *resources.WorkerPool
	limiter domain.LimiterStore
	stats   domain.StatsStore
}

type settings struct {
	resources []lifecycle.Resource
	traceOut  io.Writer
}

type Option func(*settings)

// WithResources substitui os recursos de infraestrutura (store, cache,
// janitor, workers) pela lista dada, na ordem dada.
func WithResources(rs ...lifecycle.Resource) Option {
	return func(s *settings) { s.resources = rs }
}

// WithTraceOutput redireciona a exportação de spans (padrão: stdout).
func WithTraceOutput(w io.Writer) Option {
	return func(s *settings) { s.traceOut = w }
}

func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*App, error) {
	var st settings
	for _, o := range opts {
		o(&st)
	}
	if log == nil {
		log = logger.Discard()
	}

	a := &App{cfg: cfg, log: log}
	a.registry = metrics.NewRegistry()
	a.recorder = metrics.NewRecorder(a.registry, routers.Prefixes()...)

	cache, err := resources.NewCache(resources.CacheConfig{
		URL:      cfg.RedisURL,
		PoolSize: cfg.RedisPoolSize,
	}, log.With(logger.KeyResource, "cache"))
	if err != nil {
		return nil, err
	}
	a.cache = cache

	var sweeper infra.Sweeper
	a.limiter, sweeper = newLimiter(cfg, cache)
	a.stats = newStats(cfg, cache)
	if c, ok := a.stats.(prometheus.Collector); ok {
		a.registry.MustRegister(c)
	}

	a.manager = lifecycle.NewManager(lifecycle.Options{
		StartTimeout: cfg.StartupTimeout(),
		StopTimeout:  cfg.ShutdownTimeout(),
		Logger:       log,
	}, a.buildResources(st, sweeper)...)

	a.pipeline = a.buildPipeline()

	a.server, err = server.New(server.Options{
		Addr:           cfg.Addr(),
		AppName:        cfg.AppName,
		Version:        cfg.AppVersion,
		Environment:    cfg.Environment,
		ExposeInfo:     !cfg.IsProduction(),
		Pipeline:       a.pipeline,
		Gatherer:       a.registry,
		Readiness:      a.manager,
		Upstreams:      cfg.Upstreams(),
		RequestTimeout: cfg.RequestTimeout(),
		Tracing:        cfg.EnablePerformanceMonitoring,
		Logger:         log,
	})
	if err != nil {
		_ = cache.Close()
		return nil, err
	}
	return a, nil
}

// buildResources define a ordem de startup; o shutdown é o inverso.
func (a *App) buildResources(st settings, sweeper infra.Sweeper) []lifecycle.Resource {
	var rs []lifecycle.Resource
	if a.cfg.EnablePerformanceMonitoring {
		rs = append(rs, resources.NewTelemetry(a.cfg.AppName, a.cfg.AppVersion, st.traceOut, a.log))
	}

	if st.resources != nil {
		return append(rs, st.resources...)
	}

	store := resources.NewStore(resources.StoreConfig{
		URL:            a.cfg.DatabaseURL,
		PoolSize:       a.cfg.DatabasePoolSize,
		MaxConns:       a.cfg.DatabasePoolMaxConns(),
		ConnectTimeout: a.cfg.DatabaseConnectTimeout(),
		Echo:           a.cfg.DatabaseEcho,
		AppName:        a.cfg.AppName,
	}, a.log.With(logger.KeyResource, "store"))
	rs = append(rs, store, a.cache)

	if sweeper != nil {
		rs = append(rs, resources.NewJanitor(sweeper, a.log))
	}

	a.workers = resources.NewWorkerPool(resources.WorkerPoolConfig{
		Workers:    a.cfg.Workers,
		QueueSize:  a.cfg.AgentQueueSize,
		JobTimeout: a.cfg.AgentJobTimeout(),
		MaxRetries: a.cfg.AgentMaxRetries,
		RetryDelay: a.cfg.AgentBackoff(),
		LogJobs:    a.cfg.EnableAgentLogging,
	}, a.log.With(logger.KeyResource, "workers"), a.recorder, store, a.cache)
	return append(rs, a.workers)
}

// buildPipeline: hostguard → cors → requestlog → metrics → ratelimit → faults.
func (a *App) buildPipeline() *pipeline.Pipeline {
	cfg := a.cfg
	identity := ratelimit.DefaultKeyFunc(cfg.RateLimitKeyHeader, cfg.TrustXForwardedFor)

	return pipeline.New(
		pipeline.Options{
			Identity:       pipeline.IdentityFunc(identity),
			TrustRequestID: cfg.TrustXForwardedFor,
		},
		hostguard.New(cfg.AllowedHostsOrDefault(), a.log),
		cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   cfg.CORSAllowMethods,
			AllowedHeaders:   cfg.CORSAllowHeaders,
			AllowCredentials: cfg.CORSAllowCredentials,
		}),
		requestlog.New(a.log, server.HealthPath, server.ReadyPath, server.MetricsPath),
		metrics.NewStage(a.recorder),
		ratelimit.New(ratelimit.Options{
			Store:               a.limiter,
			Enabled:             cfg.EnableRateLimiting,
			Stats:               a.stats,
			KeyFn:               identity,
			AddRateLimitHeaders: cfg.RateLimitHeaders,
			Observer:            a.recorder,
			RouteLabel:          a.recorder.RouteLabel,
			Logger:              a.log,
		}),
		faults.New(a.log, cfg.IsProduction()),
	)
}

// newLimiter escolhe o store de rate limit. O Sweeper é não-nil quando o
// store vive em memória e precisa de limpeza periódica.
func newLimiter(cfg *config.Config, cache *resources.Cache) (domain.LimiterStore, infra.Sweeper) {
	limit, window := cfg.RateLimitRequests, cfg.RateLimitWindow()

	if cfg.RateLimitBackend == "redis" {
		return infra.NewRedisWindowStore(cache.Client(), limit, window), nil
	}
	if cfg.RateLimitAlgorithm == "token_bucket" {
		s := infra.NewTokenBucketStore(limit, window)
		return s, s
	}
	s := infra.NewWindowStore(limit, window)
	return s, s
}

func newStats(cfg *config.Config, cache *resources.Cache) domain.StatsStore {
	switch cfg.RateLimitStats {
	case "memory":
		return infra.NewMemoryStatsStore()
	case "redis":
		return infra.NewRedisStatsStore(cache.Client())
	default:
		return nil
	}
}

// Run sobe os recursos, atende HTTP até ctx encerrar (ou o servidor falhar)
// e desliga tudo em ordem reversa. Falha de startup é devolvida como
// *lifecycle.StartupError depois do unwind.
func (a *App) Run(ctx context.Context) error {
	defer a.cache.Close()

	a.log.InfoContext(ctx, "starting orchestrator",
		logger.KeyEnv, a.cfg.Environment,
		logger.KeyVersion, a.cfg.AppVersion,
	)

	err := a.manager.StartAll(ctx)
	a.publishStates()
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "orchestrator started successfully", "stages", a.pipeline.Names())

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.server.Start(ctx) }()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("shutting down orchestrator")
		if err := a.stopServer(ctx); err != nil {
			a.log.Warn("http server shutdown incomplete", logger.KeyError, err)
		}
		runErr = <-serveErr
	case runErr = <-serveErr:
		a.log.Error("http server failed", logger.KeyError, runErr)
		_ = a.stopServer(ctx)
	}

	a.manager.StopAll(context.WithoutCancel(ctx))
	a.publishStates()
	a.log.Info("orchestrator shutdown complete")
	return runErr
}

func (a *App) stopServer(ctx context.Context) error {
	d := a.cfg.ShutdownTimeout()
	if d <= 0 {
		d = lifecycle.DefaultStopTimeout
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d)
	defer cancel()
	return a.server.Stop(stopCtx)
}

func (a *App) publishStates() {
	for _, st := range a.manager.States() {
		a.recorder.SetResourceUp(st.Name, st.State == lifecycle.StateStarted)
	}
}

func (a *App) Handler() http.Handler          { return a.server.Handler() }
func (a *App) Manager() *lifecycle.Manager    { return a.manager }
func (a *App) Registry() *prometheus.Registry { return a.registry }
func (a *App) Pipeline() *pipeline.Pipeline   { return a.pipeline }
func (a *App) Workers() *resources.WorkerPool { return a.workers }
func (a *App) Limiter() domain.LimiterStore   { return a.limiter }
func (a *App) Stats() domain.StatsStore       { return a.stats }
func (a *App) Server() *server.Server         { return a.server }
