package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"lectern/portal/internal/config"
	"lectern/portal/internal/metrics"
)

// StartStoreHealthJob pings both store backends on an interval and
// reports their availability through the portal_store_up gauge.
func StartStoreHealthJob(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) {
	if !cfg.StoreHealthJobEnabled {
		return
	}
	interval := cfg.StoreHealthInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	timeout := cfg.StoreHealthTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(ctx, timeout)
				if pool != nil {
					if err := pool.Ping(tickCtx); err != nil {
						metrics.StoreUp.WithLabelValues("postgres").Set(0)
						logger.Warn("postgres health check failed", "error", err)
					} else {
						metrics.StoreUp.WithLabelValues("postgres").Set(1)
					}
				}
				if redisClient != nil {
					if err := redisClient.Ping(tickCtx).Err(); err != nil {
						metrics.StoreUp.WithLabelValues("redis").Set(0)
						logger.Warn("redis health check failed", "error", err)
					} else {
						metrics.StoreUp.WithLabelValues("redis").Set(1)
					}
				}
				cancel()
			}
		}
	}()
}
