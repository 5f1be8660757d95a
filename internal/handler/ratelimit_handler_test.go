package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
	"github.com/kursadbilgin/notify-engine/internal/ratelimit"
	"github.com/kursadbilgin/notify-engine/internal/service"
	"go.uber.org/zap"
)

type memoryLogStore struct {
	mu      sync.Mutex
	entries []domain.RateLimitLogEntry
}

func (s *memoryLogStore) CountSince(ctx context.Context, identity string, endpoint string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, e := range s.entries {
		if e.Identity == identity && e.Endpoint == endpoint && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memoryLogStore) Append(ctx context.Context, entry domain.RateLimitLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func TestRateLimitCheck(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimit.NewLimiter(&memoryLogStore{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewLimiter() error = %v", err)
	}
	app := newTestApp(t, Dependencies{Limiter: limiter})

	body := `{"endpoint":"/auth/login","userId":"u1"}`
	for i := 0; i < 5; i++ {
		resp, respBody := performRequest(t, app, http.MethodPost, "/v1/rate-limit/check", body)
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d status = %d, want 200, body=%s", i+1, resp.StatusCode, respBody)
		}
		if got := resp.Header.Get(HeaderRateLimitLimit); got != "5" {
			t.Fatalf("%s = %q, want 5", HeaderRateLimitLimit, got)
		}
		if got := resp.Header.Get(HeaderRateLimitRemaining); got != strconv.Itoa(5-i) {
			t.Fatalf("request %d %s = %q, want %d", i+1, HeaderRateLimitRemaining, got, 5-i)
		}
	}

	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/rate-limit/check", body)
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("6th request status = %d, want 429, body=%s", resp.StatusCode, respBody)
	}
	if got := resp.Header.Get(HeaderRateLimitRemaining); got != "0" {
		t.Fatalf("%s = %q, want 0", HeaderRateLimitRemaining, got)
	}
	var rejected rateLimitedResponse
	if err := json.Unmarshal(respBody, &rejected); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if rejected.Error != "rate_limit_exceeded" || rejected.Message == "" || rejected.ResetAt.IsZero() {
		t.Fatalf("rejection body = %+v", rejected)
	}
	if resp.Header.Get(HeaderRateLimitReset) != strconv.FormatInt(rejected.ResetAt.Unix(), 10) {
		t.Fatalf("%s = %q, want unix of %v", HeaderRateLimitReset, resp.Header.Get(HeaderRateLimitReset), rejected.ResetAt)
	}

	// Another identity has its own budget.
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/rate-limit/check", `{"endpoint":"/auth/login","userId":"u2"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("other identity status = %d, want 200", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/v1/rate-limit/check", `{"endpoint":" "}`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("blank endpoint status = %d, want 400", resp.StatusCode)
	}
}

func TestRateLimitMiddlewareRejectsBeforeHandler(t *testing.T) {
	t.Parallel()

	resetAt := time.Now().Add(30 * time.Second)
	var identities []string
	limiter := &stubLimiter{
		checkFn: func(ctx context.Context, identity string, endpoint string) (ratelimit.Decision, ratelimit.Config) {
			identities = append(identities, identity)
			return ratelimit.Decision{Allowed: false, Limit: 100, Remaining: 0, ResetAt: resetAt}, ratelimit.ConfigFor(ratelimit.ProfileDefault)
		},
	}
	dispatched := false
	dispatch := &stubDispatchService{
		dispatchFn: func(ctx context.Context, req service.DispatchRequest) (*service.DispatchResult, error) {
			dispatched = true
			return &service.DispatchResult{}, nil
		},
	}
	app := newTestApp(t, Dependencies{Dispatch: dispatch, Limiter: limiter})

	req, _ := http.NewRequest(http.MethodPost, "/v1/notifications", nil)
	req.Header.Set(HeaderUserID, "u9")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get(fiber.HeaderRetryAfter) == "" {
		t.Fatal("Retry-After header missing")
	}
	if dispatched {
		t.Fatal("handler ran for a rejected request")
	}
	if len(identities) != 1 || identities[0] != "user:u9" {
		t.Fatalf("identities = %v, want [user:u9]", identities)
	}

	// Health endpoints sit outside the limiter.
	resp, _ = performRequest(t, app, http.MethodGet, "/livez", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("livez status = %d, want 200", resp.StatusCode)
	}
	if len(identities) != 1 {
		t.Fatalf("limiter consulted %d times, want 1", len(identities))
	}
}

func TestRateLimitMiddlewareKeysOnRouteClass(t *testing.T) {
	t.Parallel()

	var endpoints []string
	limiter := &stubLimiter{
		checkFn: func(ctx context.Context, identity string, endpoint string) (ratelimit.Decision, ratelimit.Config) {
			endpoints = append(endpoints, endpoint)
			return admitted(ratelimit.ConfigFor(ratelimit.ProfileDefault))
		},
	}
	app := newTestApp(t, Dependencies{Limiter: limiter})

	for _, path := range []string{
		"/v1/users/u1/notifications/n1/read",
		"/v1/users/u1/notifications/n2/read",
		"/v1/users/u1/notifications/7c9e6679-7425-40de-944b-e07fc1f90ae7/read",
	} {
		_, _ = performRequest(t, app, http.MethodPost, path, "")
	}
	_, _ = performRequest(t, app, http.MethodPost, "/v1/notifications", `{}`)

	want := []string{
		"default:post /v1/users",
		"default:post /v1/users",
		"default:post /v1/users",
		"resource_creation:post /v1/notifications",
	}
	if len(endpoints) != len(want) {
		t.Fatalf("limiter consulted %d times, want %d: %v", len(endpoints), len(want), endpoints)
	}
	for i := range want {
		if endpoints[i] != want[i] {
			t.Fatalf("endpoint[%d] = %q, want %q", i, endpoints[i], want[i])
		}
	}
}
