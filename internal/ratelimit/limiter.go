package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/observability"
	"go.uber.org/zap"
)

// LogStore persists admitted requests and counts them over a trailing window.
type LogStore interface {
	CountSince(ctx context.Context, identity string, endpoint string, since time.Time) (int64, error)
	Append(ctx context.Context, entry domain.RateLimitLogEntry) error
}

// Decision is the derived outcome of one check. It is never persisted.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter is a trailing-log counter over a durable LogStore.
type Limiter struct {
	store   LogStore
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewLimiter(store LogStore, logger *zap.Logger) (*Limiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit log store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Limiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}, nil
}

func (l *Limiter) SetMetrics(metrics *observability.Metrics) {
	if l == nil {
		return
	}
	l.metrics = metrics
}

// Check decides whether identity may call endpoint under cfg and records the
// request when it is admitted. Store faults never reject a request.
func (l *Limiter) Check(ctx context.Context, identity string, endpoint string, cfg Config) Decision {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		cfg = ConfigFor(cfg.Profile)
	}

	now := l.now().UTC()
	identity = strings.TrimSpace(identity)
	endpoint = NormalizeEndpoint(endpoint)
	resetAt := now.Add(cfg.Window)
	logger := observability.WithContextLogger(l.logger, ctx).With(
		zap.String("identity", identity),
		zap.String("endpoint", endpoint),
		zap.String("profile", string(cfg.Profile)),
	)

	count, err := l.store.CountSince(ctx, identity, endpoint, now.Add(-cfg.Window))
	if err != nil {
		logger.Warn("rate limit store unavailable, failing open", zap.Error(err))
		l.metrics.IncRateLimitFailOpen(string(cfg.Profile))
		return Decision{Allowed: true, Limit: cfg.MaxRequests, Remaining: cfg.MaxRequests, ResetAt: resetAt}
	}

	decision := Decision{
		Allowed:   count < int64(cfg.MaxRequests),
		Limit:     cfg.MaxRequests,
		Remaining: remaining(cfg.MaxRequests, count),
		ResetAt:   resetAt,
	}
	l.metrics.IncRateLimitDecision(string(cfg.Profile), decision.Allowed)

	if !decision.Allowed {
		logger.Debug("rate limit exceeded", zap.Int64("count", count))
		return decision
	}

	entry := domain.RateLimitLogEntry{
		ID:        uuid.NewString(),
		Identity:  identity,
		Endpoint:  endpoint,
		CreatedAt: now,
	}
	if err := l.store.Append(ctx, entry); err != nil {
		logger.Warn("failed to append rate limit log entry", zap.Error(err))
	}

	return decision
}

// CheckEndpoint classifies endpoint into a profile and checks it.
func (l *Limiter) CheckEndpoint(ctx context.Context, identity string, endpoint string) (Decision, Config) {
	cfg := ConfigFor(ProfileForEndpoint(endpoint))
	return l.Check(ctx, identity, endpoint, cfg), cfg
}

// CheckRoute checks an HTTP request under its route class.
func (l *Limiter) CheckRoute(ctx context.Context, identity string, method string, path string) (Decision, Config) {
	cfg := ConfigFor(ProfileForEndpoint(method + " " + path))
	return l.Check(ctx, identity, RouteClass(method, path), cfg), cfg
}

func remaining(maxRequests int, count int64) int {
	left := int64(maxRequests) - count
	if left < 0 {
		return 0
	}
	return int(left)
}

// ResolveIdentity prefers the authenticated user id over the caller IP.
func ResolveIdentity(userID string, ip string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	if addr := strings.TrimSpace(ip); addr != "" {
		return "ip:" + addr
	}
	return "ip:unknown"
}
