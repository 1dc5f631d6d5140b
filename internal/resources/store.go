package resources

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orchestrator-gateway/internal/logger"
)

// ErrNotStarted é devolvido por health checks de recursos ainda não iniciados.
var ErrNotStarted = errors.New("resource not started")

type StoreConfig struct {
	URL string
	// PoolSize conexões mantidas abertas; MaxConns inclui o overflow.
	PoolSize        int
	MaxConns        int
	ConnectTimeout  time.Duration
	MaxConnLifetime time.Duration
	// Echo loga cada statement executado.
	Echo    bool
	AppName string
}

// Store é o pool de conexões PostgreSQL.
type Store struct {
	cfg  StoreConfig
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(cfg StoreConfig, log *slog.Logger) *Store {
	if cfg.MaxConnLifetime <= 0 {
		cfg.MaxConnLifetime = time.Hour
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Store{cfg: cfg, log: log}
}

func (s *Store) Name() string { return "store" }

// PoolConfig traduz StoreConfig para a configuração do pgxpool.
func (s *Store) PoolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if s.cfg.MaxConns > 0 {
		pc.MaxConns = int32(min(s.cfg.MaxConns, math.MaxInt32))
	}
	if s.cfg.PoolSize > 0 {
		pc.MinConns = int32(min(s.cfg.PoolSize, int(pc.MaxConns)))
	}
	pc.MaxConnLifetime = s.cfg.MaxConnLifetime
	if s.cfg.ConnectTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = s.cfg.ConnectTimeout
	}
	if s.cfg.AppName != "" {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = s.cfg.AppName
	}
	if s.cfg.Echo {
		pc.ConnConfig.Tracer = &queryLogger{log: s.log}
	}
	return pc, nil
}

// Start abre o pool e valida a conexão com um ping.
func (s *Store) Start(ctx context.Context) error {
	pc, err := s.PoolConfig()
	if err != nil {
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.pool = pool
	s.log.InfoContext(ctx, "database pool ready",
		"max_conns", pc.MaxConns,
		"min_conns", pc.MinConns,
	)
	return nil
}

// Stop fecha o pool; espera conexões em uso serem devolvidas.
func (s *Store) Stop(context.Context) error {
	if s.pool == nil {
		return nil
	}
	s.pool.Close()
	s.pool = nil
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	if s.pool == nil {
		return ErrNotStarted
	}
	return s.pool.Ping(ctx)
}

// Pool é nil antes de Start.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// queryLogger implementa pgx.QueryTracer para DB_ECHO.
type queryLogger struct {
	log *slog.Logger
}

type queryStartKey struct{}

type queryStart struct {
	sql string
	at  time.Time
}

func (q *queryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, at: time.Now()})
}

func (q *queryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	st, _ := ctx.Value(queryStartKey{}).(queryStart)
	attrs := []any{
		"sql", st.sql,
		logger.KeyDurationMs, time.Since(st.at).Milliseconds(),
		"rows", data.CommandTag.RowsAffected(),
	}
	if data.Err != nil {
		q.log.WarnContext(ctx, "query failed", append(attrs, logger.KeyError, data.Err)...)
		return
	}
	q.log.DebugContext(ctx, "query", attrs...)
}
