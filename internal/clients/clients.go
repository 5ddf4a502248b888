package clients

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lectern/portal/internal/config"
)

type Clients struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// New connects to Postgres and Redis and verifies both respond before
// returning. A partial failure closes whatever already connected.
func New(ctx context.Context, cfg config.Config) (*Clients, error) {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.StoreDialTimeout)
	defer cancel()

	pool, err := pgxpool.New(dialCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := redisClient.Ping(dialCtx).Err(); err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Clients{Pool: pool, Redis: redisClient}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
