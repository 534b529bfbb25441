package redisdb

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/streamgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("redis",
	fx.Provide(Open),
)

// Open returns a client for REDIS_URL. A nil client means Redis is not
// configured and callers fall back to their in-process behaviour.
func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	raw := strings.TrimSpace(cfg.RedisURL)
	if raw == "" {
		log.Info("redis not configured")
		return nil, nil
	}

	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			log.Info("redis connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}
