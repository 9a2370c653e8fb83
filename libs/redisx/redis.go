package redisx

import (
	"context"
	"errors"
	"strings"

	"github.com/md-rashed-zaman/bookpro/libs/config"
	"github.com/redis/go-redis/v9"
)

// Options mirrors the REDIS_* environment variables.
type Options struct {
	Addr     string
	Password string
	DB       int
}

func OptionsFromEnv() Options {
	db := config.Int("REDIS_DB", 0)
	if db < 0 {
		db = 0
	}
	return Options{
		Addr:     strings.TrimSpace(config.String("REDIS_ADDR", "")),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       db,
	}
}

// Open returns nil when no address is configured; callers treat that as "redis disabled".
func Open(opts Options) *redis.Client {
	if opts.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return errors.New("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}
