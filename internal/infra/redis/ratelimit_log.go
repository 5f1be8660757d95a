package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "ratelimit:log"
	defaultRetention = 24 * time.Hour
)

var _ ratelimit.LogStore = (*RateLimitLogStore)(nil)

// RateLimitLogStore keeps one sorted set per identity and endpoint, scored by
// admission time in milliseconds. Entries older than the retention are trimmed
// on append and the key expires when the identity goes quiet.
type RateLimitLogStore struct {
	client    goredis.UniversalClient
	retention time.Duration
}

func NewRateLimitLogStore(client goredis.UniversalClient, retention time.Duration) (*RateLimitLogStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if retention <= 0 {
		retention = defaultRetention
	}

	return &RateLimitLogStore{
		client:    client,
		retention: retention,
	}, nil
}

func (s *RateLimitLogStore) CountSince(ctx context.Context, identity string, endpoint string, since time.Time) (int64, error) {
	count, err := s.client.ZCount(ctx, logKey(identity, endpoint), score(since), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit log: %w", err)
	}
	return count, nil
}

func (s *RateLimitLogStore) Append(ctx context.Context, entry domain.RateLimitLogEntry) error {
	key := logKey(entry.Identity, entry.Endpoint)
	cutoff := entry.CreatedAt.Add(-s.retention)

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZAdd(ctx, key, goredis.Z{
			Score:  float64(entry.CreatedAt.UnixMilli()),
			Member: entry.ID,
		})
		pipe.ZRemRangeByScore(ctx, key, "-inf", "("+score(cutoff))
		pipe.PExpire(ctx, key, s.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append rate limit log: %w", err)
	}
	return nil
}

func logKey(identity string, endpoint string) string {
	return fmt.Sprintf("%s:%s:%s",
		keyPrefix,
		strings.TrimSpace(identity),
		endpoint,
	)
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
