package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

func TestRateLimitLogStoreCountSince(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)
	store, err := NewRateLimitLogStore(rdb, time.Hour)
	if err != nil {
		t.Fatalf("NewRateLimitLogStore() error = %v", err)
	}

	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	for _, offset := range []time.Duration{-2 * time.Minute, -59 * time.Second, -time.Second, 0} {
		appendEntry(t, store, "user:1", "/login", now.Add(offset))
	}
	appendEntry(t, store, "user:2", "/login", now)
	appendEntry(t, store, "user:1", "/search", now)

	count, err := store.CountSince(ctx, "user:1", "/login", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("CountSince() = %d, want 3", count)
	}

	// The window boundary is inclusive.
	count, err = store.CountSince(ctx, "user:1", "/login", now.Add(-59*time.Second))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if count != 3 {
		t.Fatalf("CountSince() at boundary = %d, want 3", count)
	}
}

func TestRateLimitLogStoreTrimsAndExpires(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)
	store, err := NewRateLimitLogStore(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewRateLimitLogStore() error = %v", err)
	}

	now := time.Unix(1_700_000_500, 0).UTC()
	appendEntry(t, store, "ip:10.0.0.1", "/upload", now.Add(-5*time.Minute))
	appendEntry(t, store, "ip:10.0.0.1", "/upload", now)

	key := logKey("ip:10.0.0.1", "/upload")
	members, err := mr.ZMembers(key)
	if err != nil {
		t.Fatalf("ZMembers() error = %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("members after trim = %d, want 1", len(members))
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, want within retention", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists(key) {
		t.Fatal("key should expire after retention")
	}
}

func TestRateLimitLogStoreWithLimiter(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)
	store, err := NewRateLimitLogStore(rdb, time.Hour)
	if err != nil {
		t.Fatalf("NewRateLimitLogStore() error = %v", err)
	}
	limiter, err := ratelimit.NewLimiter(store, nil)
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}

	cfg := ratelimit.Config{Profile: ratelimit.ProfileAuth, MaxRequests: 2, Window: time.Minute}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if !limiter.Check(ctx, "user:7", "/login", cfg).Allowed {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	decision := limiter.Check(ctx, "user:7", "/login", cfg)
	if decision.Allowed || decision.Remaining != 0 {
		t.Fatalf("third request = %+v, want rejected with 0 remaining", decision)
	}
}

func TestRateLimitLogStoreUnavailable(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)
	store, err := NewRateLimitLogStore(rdb, time.Hour)
	if err != nil {
		t.Fatalf("NewRateLimitLogStore() error = %v", err)
	}
	mr.Close()

	if _, err := store.CountSince(context.Background(), "user:1", "/x", time.Now()); err == nil {
		t.Fatal("CountSince() expected error with redis down")
	}
}

func TestNewRateLimitLogStoreRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRateLimitLogStore(nil, time.Hour); err == nil {
		t.Fatal("NewRateLimitLogStore(nil) expected error")
	}
}

func appendEntry(t *testing.T, store *RateLimitLogStore, identity string, endpoint string, at time.Time) {
	t.Helper()

	err := store.Append(context.Background(), domain.RateLimitLogEntry{
		ID:        uuid.NewString(),
		Identity:  identity,
		Endpoint:  endpoint,
		CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
