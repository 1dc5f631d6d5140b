package resources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"orchestrator-gateway/internal/logger"
)

type CacheConfig struct {
	URL         string
	PoolSize    int
	DialTimeout time.Duration
}

// Cache é o cliente Redis compartilhado (cache, rate limit distribuído,
// estatísticas).
//
// O cliente é criado no construtor, sem I/O, para poder ser injetado em quem
// depende dele antes do Start; Start apenas valida a conexão. O pool é
// fechado uma única vez, por Stop ou Close, mesmo se Start nunca teve sucesso.
type Cache struct {
	client   *redis.Client
	log      *slog.Logger
	started  atomic.Bool
	once     sync.Once
	closeErr error
}

func NewCache(cfg CacheConfig, log *slog.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{client: redis.NewClient(opts), log: log}, nil
}

func (c *Cache) Name() string { return "cache" }

func (c *Cache) Start(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	c.started.Store(true)
	c.log.InfoContext(ctx, "redis client ready", "pool_size", c.client.Options().PoolSize)
	return nil
}

func (c *Cache) Stop(context.Context) error {
	c.started.Store(false)
	return c.Close()
}

// Close libera o pool do cliente. Chamadas repetidas devolvem o primeiro
// resultado.
func (c *Cache) Close() error {
	c.once.Do(func() {
		c.closeErr = c.client.Close()
	})
	return c.closeErr
}

func (c *Cache) Health(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Client() *redis.Client { return c.client }
