package clients

import (
	"context"
	"strings"
	"time"

	"github.com/DRSN-tech/storefront/internal/cfg"
	"github.com/DRSN-tech/storefront/pkg/e"
	"github.com/DRSN-tech/storefront/pkg/jitter"
	"github.com/jimlawless/whereami"
	r "github.com/redis/go-redis/v9"
)

// RedisClient — клиент Redis, все ключи сервиса живут под общим префиксом.
type RedisClient struct {
	Client *r.Client
	prefix string
}

func NewRedisClient(cfg *cfg.RedisCfg) *RedisClient {
	opts := &r.Options{
		Addr:                  cfg.Addr,
		Username:              cfg.User,
		Password:              cfg.Password,
		DB:                    cfg.DB,
		PoolSize:              cfg.PoolSize,
		MaxRetries:            cfg.MaxRetries,
		DialTimeout:           cfg.DialTimeout,
		ReadTimeout:           cfg.Timeout,
		WriteTimeout:          cfg.Timeout,
		ContextTimeoutEnabled: true,
	}

	return &RedisClient{
		Client: r.NewClient(opts),
		prefix: cfg.KeyPrefix,
	}
}

// Key собирает ключ вида prefix:part:part.
func (c *RedisClient) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}

	return c.prefix + ":" + strings.Join(parts, ":")
}

// Ping ждёт готовности Redis, пока не истечёт ctx.
func (c *RedisClient) Ping(ctx context.Context) error {
	const (
		baseDelay = 100 * time.Millisecond
		maxDelay  = 2 * time.Second
	)

	for attempt := 0; ; attempt++ {
		err := c.Client.Ping(ctx).Err()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return e.Wrap(whereami.WhereAmI(), err)
		case <-time.After(jitter.ExponentialBackoff(baseDelay, maxDelay, attempt, jitter.DefaultJitter)):
		}
	}
}

func (c *RedisClient) Close() error {
	return c.Client.Close()
}
