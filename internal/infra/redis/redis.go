package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	pingTimeout = 5 * time.Second
	// Limiter checks sit on the request path and fail open, so a slow Redis
	// must surface as an error quickly.
	commandTimeout = 500 * time.Millisecond
)

// NewClient parses a redis:// URL, applies command timeouts suited to the
// rate limiter and verifies the server answers. PoolSize is left to the URL
// or the driver default when poolSize is zero.
func NewClient(ctx context.Context, url string, poolSize int) (goredis.UniversalClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	opts.ReadTimeout = commandTimeout
	opts.WriteTimeout = commandTimeout

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return client, nil
}
